package sink

import (
	"context"
	"errors"
	"sync"
	"time"

	postgres_wrapper "github.com/joripage/bookfeed/pkg/infra/postgres"
	"github.com/joripage/bookfeed/pkg/model"
	"github.com/joripage/bookfeed/pkg/orderbook"
	"github.com/joripage/bookfeed/pkg/repo"
	"go.uber.org/zap"
)

type PostgresConfig struct {
	Enabled         bool                            `yaml:"enabled"`
	DB              postgres_wrapper.PostgresConfig `yaml:"db"`
	BatchSize       int                             `yaml:"batch_size"`
	FlushIntervalMs int64                           `yaml:"flush_interval_ms"`
	BufferSize      int                             `yaml:"buffer_size"`
}

var ErrPostgresBufferFull = errors.New("postgres sink: buffer full")

// Postgres records the history of changes. Publish only enqueues; a writer
// goroutine inserts in batches so the engine never waits on the database.
// Changes arriving while the buffer is full are dropped and reported.
type Postgres struct {
	events repo.ITopOfBookEvent
	logger *zap.Logger

	batchSize     int
	flushInterval time.Duration

	in        chan *model.TopOfBookEvent
	done      chan struct{}
	closeOnce sync.Once
}

func NewPostgres(events repo.ITopOfBookEvent, cfg PostgresConfig, logger *zap.Logger) *Postgres {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushIntervalMs <= 0 {
		cfg.FlushIntervalMs = 200
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 10 * cfg.BatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Postgres{
		events:        events,
		logger:        logger.With(zap.String("component", "sink"), zap.String("sink", "postgres")),
		batchSize:     cfg.BatchSize,
		flushInterval: time.Duration(cfg.FlushIntervalMs) * time.Millisecond,
		in:            make(chan *model.TopOfBookEvent, cfg.BufferSize),
		done:          make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *Postgres) Name() string { return "postgres" }

func (p *Postgres) Publish(_ context.Context, top orderbook.TopOfBook) error {
	select {
	case p.in <- model.NewTopOfBookEvent(top):
		return nil
	default:
		return ErrPostgresBufferFull
	}
}

func (p *Postgres) run() {
	defer close(p.done)
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	batch := make([]*model.TopOfBookEvent, 0, p.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if _, err := p.events.BulkCreate(context.Background(), batch); err != nil {
			p.logger.Error("insert top of book events", zap.Int("count", len(batch)), zap.Error(err))
		}
		batch = make([]*model.TopOfBookEvent, 0, p.batchSize)
	}

	for {
		select {
		case ev, ok := <-p.in:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= p.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// Close flushes buffered changes. Publish must not be called after Close.
func (p *Postgres) Close(ctx context.Context) error {
	p.closeOnce.Do(func() { close(p.in) })
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
