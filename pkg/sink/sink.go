// Package sink delivers emitted top-of-book changes to external consumers.
package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joripage/bookfeed/pkg/metrics"
	"github.com/joripage/bookfeed/pkg/orderbook"
	"go.uber.org/zap"
)

type Sink interface {
	Name() string
	Publish(ctx context.Context, top orderbook.TopOfBook) error
	Close(ctx context.Context) error
}

// Fanout publishes every change to each sink in registration order. A failing
// sink is logged and counted; it never stops the others or the engine.
type Fanout struct {
	sinks   []Sink
	timeout time.Duration
	logger  *zap.Logger
}

func NewFanout(logger *zap.Logger, timeout time.Duration, sinks ...Sink) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fanout{
		sinks:   sinks,
		timeout: timeout,
		logger:  logger.With(zap.String("component", "sink")),
	}
}

func (f *Fanout) Add(s Sink) {
	f.sinks = append(f.sinks, s)
}

func (f *Fanout) Len() int {
	return len(f.sinks)
}

func (f *Fanout) Publish(ctx context.Context, top orderbook.TopOfBook) error {
	var errs []error
	for _, s := range f.sinks {
		if err := f.publish(ctx, s, top); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) publish(ctx context.Context, s Sink, top orderbook.TopOfBook) error {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	start := time.Now()
	err := s.Publish(ctx, top)
	metrics.SinkLatencySeconds.WithLabelValues(s.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SinkErrorsTotal.WithLabelValues(s.Name()).Inc()
		f.logger.Error("publish failed",
			zap.String("sink", s.Name()),
			zap.Uint64("sequence", top.Sequence),
			zap.Error(err))
		return fmt.Errorf("%s: %w", s.Name(), err)
	}
	return nil
}

// Callback adapts the fanout to Engine.RegisterTopOfBookCallback.
func (f *Fanout) Callback() func(context.Context, orderbook.TopOfBook) {
	return func(ctx context.Context, top orderbook.TopOfBook) {
		_ = f.Publish(ctx, top)
	}
}

// Close closes every sink, reporting all failures.
func (f *Fanout) Close(ctx context.Context) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
