package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joripage/bookfeed/config"
	"github.com/joripage/bookfeed/pkg/feed/gemini"
	"github.com/joripage/bookfeed/pkg/infra"
	redis_wrapper "github.com/joripage/bookfeed/pkg/infra/redis"
	"github.com/joripage/bookfeed/pkg/logging"
	"github.com/joripage/bookfeed/pkg/metrics"
	"github.com/joripage/bookfeed/pkg/orderbook"
	"github.com/joripage/bookfeed/pkg/queue"
	"github.com/joripage/bookfeed/pkg/repo"
	"github.com/joripage/bookfeed/pkg/sink"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config-file", "", "Specify config file path")
	flag.Parse()

	logging.NewLogger(logging.INFO).ReplaceGlobals()

	if err := run(configFile); err != nil {
		zap.S().Errorf("bookfeed exited: %v", err)
		_ = zap.L().Sync()
		os.Exit(1)
	}
}

func run(configFile string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel), zap.String("service", cfg.ServiceName))
	logger.ReplaceGlobals()
	defer logger.Sync() // nolint

	reg := metrics.Init()

	sinks, err := buildSinks(ctx, cfg, logger.Zap())
	if err != nil {
		return err
	}

	policy, _ := queue.ParsePolicy(cfg.Engine.OverflowPolicy)
	q := queue.New(cfg.Engine.QueueCapacity, policy)

	feed, err := gemini.NewFeed(&cfg.Feed, q, logger.Zap())
	if err != nil {
		return err
	}

	engine := orderbook.NewEngine(&orderbook.EngineConfig{
		Symbol:          cfg.Feed.Symbol,
		DepthLevels:     cfg.Engine.DepthLevels,
		DrainOnShutdown: cfg.Engine.DrainOnShutdown,
	}, logger.Zap())
	engine.RegisterTopOfBookCallback(sinks.Callback())
	engine.RegisterResyncCallback(feed.RequestResync)

	logger.Info("starting",
		zap.String("symbol", cfg.Feed.Symbol),
		zap.Int("queue_capacity", cfg.Engine.QueueCapacity),
		zap.String("overflow_policy", string(policy)),
		zap.Int("sinks", sinks.Len()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer q.Close()
		return feed.Run(gctx)
	})
	g.Go(func() error {
		return engine.Run(gctx, q)
	})
	if cfg.HTTP.Addr != "" {
		srv := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           newRouter(cfg.Feed.Symbol, engine, reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	runErr := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Engine.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()
	if err := sinks.Close(closeCtx); err != nil {
		logger.Warn("closing sinks", zap.Error(err))
	}
	if q.Dropped() > 0 {
		logger.Warn("events dropped by queue overflow", zap.Uint64("dropped", q.Dropped()))
	}
	logger.Info("stopped")
	return runErr
}

// buildSinks connects every enabled sink. The Postgres sink migrates its
// schema before use.
func buildSinks(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*sink.Fanout, error) {
	fanout := sink.NewFanout(logger, time.Duration(cfg.Sinks.PublishTimeoutMs)*time.Millisecond)
	symbol := cfg.Feed.Symbol

	if cfg.Sinks.Console {
		fanout.Add(sink.NewConsole(os.Stdout))
	}
	if rc := cfg.Sinks.Redis; rc.Enabled {
		client, err := redis_wrapper.InitRedis(ctx, &rc.Conn)
		if err != nil {
			return nil, closeOnError(ctx, fanout, err)
		}
		fanout.Add(sink.NewRedis(client, symbol, rc))
	}
	if kc := cfg.Sinks.Kafka; kc.Enabled {
		k, err := sink.NewKafka(kc)
		if err != nil {
			return nil, closeOnError(ctx, fanout, err)
		}
		fanout.Add(k)
	}
	if pc := cfg.Sinks.Postgres; pc.Enabled {
		db, err := infra.GetMigrateTool().CreateDBAndMigrate(ctx, &pc.DB, "file://migration/sql")
		if err != nil {
			return nil, closeOnError(ctx, fanout, err)
		}
		fanout.Add(sink.NewPostgres(repo.NewRepo(db).TopOfBookEvent(), pc, logger))
	}
	return fanout, nil
}

func closeOnError(ctx context.Context, fanout *sink.Fanout, err error) error {
	_ = fanout.Close(ctx)
	return err
}
