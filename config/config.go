package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/joripage/bookfeed/pkg/feed/gemini"
	"github.com/joripage/bookfeed/pkg/queue"
	"github.com/joripage/bookfeed/pkg/sink"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	ServiceName string        `yaml:"service_name"`
	LogLevel    string        `yaml:"log_level"`
	Feed        gemini.Config `yaml:"feed"`
	Engine      EngineConfig  `yaml:"engine"`
	Sinks       SinksConfig   `yaml:"sinks"`
	HTTP        HTTPConfig    `yaml:"http"`
}

type EngineConfig struct {
	// QueueCapacity bounds the handoff queue; 0 means unbounded.
	QueueCapacity          int    `yaml:"queue_capacity"`
	OverflowPolicy         string `yaml:"overflow_policy"`
	DrainOnShutdown        bool   `yaml:"drain_on_shutdown"`
	DepthLevels            int    `yaml:"depth_levels"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
}

type SinksConfig struct {
	Console          bool                `yaml:"console"`
	PublishTimeoutMs int64               `yaml:"publish_timeout_ms"`
	Redis            sink.RedisConfig    `yaml:"redis"`
	Kafka            sink.KafkaConfig    `yaml:"kafka"`
	Postgres         sink.PostgresConfig `yaml:"postgres"`
}

// HTTPConfig serves /metrics, /healthz and /book/top. An empty addr disables
// the server.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

var ErrInvalidConfig = errors.New("invalid config")

// Default returns the configuration used when no file is given: the btcusd
// book printed to stdout.
func Default() *AppConfig {
	cfg := &AppConfig{
		Sinks: SinksConfig{Console: true},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *AppConfig) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "bookfeed"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Feed.URL == "" {
		c.Feed.URL = gemini.DefaultURL
	}
	if c.Feed.Symbol == "" {
		c.Feed.Symbol = gemini.DefaultSymbol
	}
	if c.Engine.OverflowPolicy == "" {
		c.Engine.OverflowPolicy = string(queue.Block)
	}
	if c.Engine.ShutdownTimeoutSeconds <= 0 {
		c.Engine.ShutdownTimeoutSeconds = 10
	}
	if c.Sinks.PublishTimeoutMs <= 0 {
		c.Sinks.PublishTimeoutMs = 2000
	}
}

// Validate reports every problem found, joined.
func (c *AppConfig) Validate() error {
	var errs []error
	if _, err := c.Feed.Endpoint(); err != nil {
		errs = append(errs, fmt.Errorf("feed: %w", err))
	}
	if c.Engine.QueueCapacity < 0 {
		errs = append(errs, fmt.Errorf("engine.queue_capacity must be >= 0, got %d", c.Engine.QueueCapacity))
	}
	if _, err := queue.ParsePolicy(c.Engine.OverflowPolicy); err != nil {
		errs = append(errs, fmt.Errorf("engine.overflow_policy: %w", err))
	}
	if c.Engine.DepthLevels < 0 {
		errs = append(errs, fmt.Errorf("engine.depth_levels must be >= 0, got %d", c.Engine.DepthLevels))
	}
	if c.Sinks.Redis.Enabled && c.Sinks.Redis.Conn.ConnectionURL == "" {
		errs = append(errs, errors.New("sinks.redis.conn.connection_url is required"))
	}
	if c.Sinks.Redis.Depth && c.Engine.DepthLevels == 0 {
		errs = append(errs, errors.New("sinks.redis.depth needs engine.depth_levels > 0"))
	}
	if c.Sinks.Kafka.Enabled && (len(c.Sinks.Kafka.Brokers) == 0 || c.Sinks.Kafka.Topic == "") {
		errs = append(errs, errors.New("sinks.kafka needs brokers and topic"))
	}
	if c.Sinks.Postgres.Enabled && c.Sinks.Postgres.DB.DataSource == "" {
		errs = append(errs, errors.New("sinks.postgres.db.data_source is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Load load config from file and environment variables. Variables from a
// .env file in the working directory are loaded first and ${VAR} references
// in the file are expanded. Without a path or CONFIG_FILE the defaults are
// used.
func Load(filePath string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if len(filePath) == 0 {
		filePath = os.Getenv("CONFIG_FILE")
	}

	fields := []interface{}{
		"func",
		"config.readFromFile",
		"filePath",
		filePath,
	}

	sugar := zap.S().With(fields...)

	if len(filePath) == 0 {
		sugar.Debug("no config file, using defaults")
		cfg := Default()
		return cfg, cfg.Validate()
	}

	sugar.Debug("Load config...")

	configBytes, err := os.ReadFile(filePath)
	if err != nil {
		sugar.Error("Failed to load config file")
		return nil, err
	}
	configBytes = []byte(os.ExpandEnv(string(configBytes)))

	cfg := &AppConfig{}

	err = yaml.Unmarshal(configBytes, cfg)
	if err != nil {
		sugar.Error("Failed to parse config file")
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	zap.S().Debugf("config: %+v", cfg)

	return cfg, nil
}
