package sink

import (
	"context"
	"errors"
	"strconv"
	"time"

	kafkawrapper "github.com/joripage/bookfeed/pkg/kafka_wrapper"
	"github.com/joripage/bookfeed/pkg/orderbook"
)

type KafkaConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Brokers        []string `yaml:"brokers"`
	Topic          string   `yaml:"topic"`
	RequiredAcks   string   `yaml:"required_acks"`
	Async          bool     `yaml:"async"`
	BatchTimeoutMs int64    `yaml:"batch_timeout_ms"`
}

var errNoTopic = errors.New("kafka sink: topic is required")

type jsonPublisher interface {
	PublishJSON(ctx context.Context, topic string, key string, v any, headers map[string]string) error
	Close(ctx context.Context) error
}

// Kafka publishes each change as JSON keyed by symbol, so one symbol always
// lands on one partition in emission order.
type Kafka struct {
	producer jsonPublisher
	topic    string
}

func NewKafka(cfg KafkaConfig) (*Kafka, error) {
	if cfg.Topic == "" {
		return nil, errNoTopic
	}
	acks, err := kafkawrapper.ParseRequiredAcks(cfg.RequiredAcks)
	if err != nil {
		return nil, err
	}
	p := kafkawrapper.NewProducer(kafkawrapper.ProducerConfig{
		Brokers:      cfg.Brokers,
		RequiredAcks: acks,
		Async:        cfg.Async,
		BatchTimeout: time.Duration(cfg.BatchTimeoutMs) * time.Millisecond,
	})
	return newKafka(p, cfg.Topic), nil
}

func newKafka(p jsonPublisher, topic string) *Kafka {
	return &Kafka{producer: p, topic: topic}
}

func (k *Kafka) Name() string { return "kafka" }

func (k *Kafka) Publish(ctx context.Context, top orderbook.TopOfBook) error {
	return k.producer.PublishJSON(ctx, k.topic, top.Symbol, top, map[string]string{
		"sequence": strconv.FormatUint(top.Sequence, 10),
	})
}

func (k *Kafka) Close(ctx context.Context) error {
	return k.producer.Close(ctx)
}
