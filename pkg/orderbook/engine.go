package orderbook

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/joripage/bookfeed/pkg/metrics"
	"go.uber.org/zap"
)

type State int32

const (
	Synced State = iota
	Resyncing
)

func (s State) String() string {
	switch s {
	case Synced:
		return "synced"
	case Resyncing:
		return "resyncing"
	default:
		return "unknown"
	}
}

type EngineConfig struct {
	Symbol string
	// DepthLevels > 0 attaches that many levels per side to each emission.
	DepthLevels int
	// DrainOnShutdown applies the events still queued when the context is
	// cancelled instead of abandoning them.
	DrainOnShutdown bool
}

// Resync describes why the engine discarded its book.
type Resync struct {
	Reason   string
	Sequence uint64
}

const (
	ResyncUnknownOrder    = "unknown_order"
	ResyncStaleSequence   = "stale_sequence"
	ResyncInvalidSnapshot = "invalid_snapshot"
)

// Source is the consumer side of the handoff queue. Pop blocks until an event
// is available and returns io.EOF once the source is closed and empty.
type Source interface {
	Pop(ctx context.Context) (Event, error)
}

// Engine is the single consumer that owns the book. Handle and Run must be
// called from one goroutine; Latest and State are safe from any goroutine.
type Engine struct {
	cfg  *EngineConfig
	book *orderBook

	state       State
	lastSeq     uint64
	haveSeq     bool
	lastEmitted TopOfBook
	// forceNext is set when a Clear ends a resync; the next applied event
	// emits even if the rebuilt top matches the pre-resync one.
	forceNext bool

	latest      atomic.Pointer[TopOfBook]
	sharedState atomic.Int32

	callbacks       []func(context.Context, TopOfBook)
	resyncCallbacks []func(Resync)

	logger *zap.Logger
}

func NewEngine(cfg *EngineConfig, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		cfg:    cfg,
		book:   newOrderBook(cfg.Symbol),
		state:  Synced,
		logger: logger.With(zap.String("component", "engine"), zap.String("symbol", cfg.Symbol)),
	}
	e.lastEmitted = e.book.topOfBook()
	e.sharedState.Store(int32(Synced))
	metrics.EngineSynced.Set(1)
	return e
}

// RegisterTopOfBookCallback adds a callback invoked synchronously for every
// emitted top-of-book change, before the next event is handled.
func (e *Engine) RegisterTopOfBookCallback(cb func(context.Context, TopOfBook)) {
	e.callbacks = append(e.callbacks, cb)
}

// RegisterResyncCallback adds a callback invoked whenever the book is
// discarded. The feed uses it to fetch a fresh snapshot.
func (e *Engine) RegisterResyncCallback(cb func(Resync)) {
	e.resyncCallbacks = append(e.resyncCallbacks, cb)
}

// Latest returns the last emitted top-of-book.
func (e *Engine) Latest() (TopOfBook, bool) {
	p := e.latest.Load()
	if p == nil {
		return TopOfBook{}, false
	}
	return *p, true
}

func (e *Engine) State() State {
	return State(e.sharedState.Load())
}

// Run consumes src until it is closed or ctx is cancelled.
func (e *Engine) Run(ctx context.Context, src Source) error {
	e.logger.Info("engine started", zap.Bool("drain_on_shutdown", e.cfg.DrainOnShutdown))
	for {
		// the queue keeps returning buffered events after cancellation, so
		// shutdown is checked before each pop
		if ctx.Err() != nil {
			return e.stop(src)
		}
		ev, err := src.Pop(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				e.logger.Info("event source closed")
				return nil
			}
			if ctx.Err() != nil {
				return e.stop(src)
			}
			return err
		}
		_ = e.Handle(ctx, ev)
	}
}

func (e *Engine) stop(src Source) error {
	if e.cfg.DrainOnShutdown {
		return e.drain(src)
	}
	e.logger.Info("engine stopped, queued events abandoned")
	return nil
}

// drain applies what is left in src after shutdown was requested. It returns
// once the producer has closed src.
func (e *Engine) drain(src Source) error {
	ctx := context.Background()
	n := 0
	for {
		ev, err := src.Pop(ctx)
		if errors.Is(err, io.EOF) {
			e.logger.Info("engine drained", zap.Int("events", n))
			return nil
		}
		if err != nil {
			return err
		}
		_ = e.Handle(ctx, ev)
		n++
	}
}

// Handle applies one event and emits the top-of-book if it changed. The
// returned error is informational: rejected events are logged and, where
// the book can no longer be trusted, a resync is started.
func (e *Engine) Handle(ctx context.Context, ev Event) error {
	ctx = context.WithoutCancel(ctx)
	kind := Kind(ev)

	switch ev := ev.(type) {
	case Gap:
		e.resync(ev.Reason, ev.Sequence)
		return nil
	case Snapshot:
		return e.handleSnapshot(ctx, ev)
	}

	_, isClear := ev.(Clear)
	if e.state == Resyncing && !isClear {
		metrics.EventsRejectedTotal.WithLabelValues("resyncing").Inc()
		return nil
	}

	if e.isStale(ev.Seq()) {
		e.logger.Warn("stale sequence",
			zap.String("kind", kind),
			zap.Uint64("sequence", ev.Seq()),
			zap.Uint64("last_sequence", e.lastSeq))
		if e.state == Synced {
			e.resync(ResyncStaleSequence, ev.Seq())
		}
		return errStaleSequence
	}

	if isClear && e.state == Resyncing {
		// a Clear starts the replay of the book; the following events
		// rebuild it incrementally
		e.book.clear()
		e.markSeq(ev.Seq())
		e.setState(Synced)
		e.forceNext = true
		metrics.EventsAppliedTotal.WithLabelValues(kind).Inc()
		e.observeBook()
		e.logger.Info("book replay started", zap.Uint64("sequence", ev.Seq()))
		return nil
	}

	if err := e.book.apply(ev); err != nil {
		if errors.Is(err, errOrderNotFound) {
			e.logger.Warn("event references unknown order", zap.String("kind", kind), zap.Error(err))
			e.resync(ResyncUnknownOrder, ev.Seq())
			return err
		}
		// duplicate adds and invalid values are skipped without a resync
		e.logger.Warn("event rejected", zap.String("kind", kind), zap.Uint64("sequence", ev.Seq()), zap.Error(err))
		metrics.EventsRejectedTotal.WithLabelValues(rejectReason(err)).Inc()
		e.markSeq(ev.Seq())
		return err
	}

	e.markSeq(ev.Seq())
	metrics.EventsAppliedTotal.WithLabelValues(kind).Inc()
	e.evaluate(ctx, ev.Seq(), e.forceNext)
	return nil
}

// isStale reports whether seq does not advance past the last seen event.
// Before the first event every sequence, 0 included, is fresh.
func (e *Engine) isStale(seq uint64) bool {
	return e.haveSeq && seq <= e.lastSeq
}

func (e *Engine) markSeq(seq uint64) {
	e.lastSeq = seq
	e.haveSeq = true
}

func (e *Engine) handleSnapshot(ctx context.Context, s Snapshot) error {
	if e.isStale(s.Sequence) {
		e.logger.Warn("stale snapshot", zap.Uint64("sequence", s.Sequence), zap.Uint64("last_sequence", e.lastSeq))
		metrics.EventsRejectedTotal.WithLabelValues("stale_snapshot").Inc()
		if e.state == Synced {
			e.resync(ResyncStaleSequence, s.Sequence)
		}
		return errStaleSequence
	}

	if err := e.book.load(s); err != nil {
		e.logger.Error("snapshot rejected", zap.Uint64("sequence", s.Sequence), zap.Error(err))
		e.resync(ResyncInvalidSnapshot, s.Sequence)
		return err
	}

	recovered := e.state == Resyncing
	e.markSeq(s.Sequence)
	e.setState(Synced)
	metrics.EventsAppliedTotal.WithLabelValues("snapshot").Inc()
	if recovered {
		e.logger.Info("book resynced", zap.Uint64("sequence", s.Sequence), zap.Int("orders", len(s.Orders)))
	}
	e.evaluate(ctx, s.Sequence, recovered || e.forceNext)
	return nil
}

// resync discards the book and suppresses emission until a snapshot or a
// Clear starts rebuilding it.
func (e *Engine) resync(reason string, seq uint64) {
	e.book.clear()
	e.forceNext = false
	if e.state != Resyncing {
		e.logger.Warn("book discarded, resyncing", zap.String("reason", reason), zap.Uint64("sequence", seq))
	}
	e.setState(Resyncing)
	metrics.ResyncsTotal.WithLabelValues(reason).Inc()
	e.observeBook()

	r := Resync{Reason: reason, Sequence: seq}
	for _, cb := range e.resyncCallbacks {
		cb(r)
	}
}

func (e *Engine) setState(s State) {
	e.state = s
	e.sharedState.Store(int32(s))
	if s == Synced {
		metrics.EngineSynced.Set(1)
	} else {
		metrics.EngineSynced.Set(0)
	}
}

// evaluate emits the current top-of-book when it differs from the last
// emission, or unconditionally when force is set.
func (e *Engine) evaluate(ctx context.Context, seq uint64, force bool) {
	e.observeBook()

	tob := e.book.topOfBook()
	if !force && tob.Equal(e.lastEmitted) {
		return
	}
	tob.Sequence = seq
	tob.Time = time.Now().UTC()
	if e.cfg.DepthLevels > 0 {
		tob.Bids, tob.Asks = e.book.depth(e.cfg.DepthLevels)
	}

	e.lastEmitted = tob
	e.forceNext = false
	published := tob
	e.latest.Store(&published)
	metrics.EmissionsTotal.Inc()
	observeQuote("bid", tob.Bid)
	observeQuote("ask", tob.Ask)

	for _, cb := range e.callbacks {
		cb(ctx, tob)
	}
}

func (e *Engine) observeBook() {
	st := e.book.stats()
	metrics.BookLevels.WithLabelValues("bid").Set(float64(st.BidLevels))
	metrics.BookLevels.WithLabelValues("ask").Set(float64(st.AskLevels))
	metrics.BookOrders.Set(float64(st.Orders))
}

func observeQuote(side string, q *Quote) {
	if q == nil {
		metrics.BestPrice.WithLabelValues(side).Set(0)
		return
	}
	metrics.BestPrice.WithLabelValues(side).Set(q.Price.InexactFloat64())
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, errDuplicateOrder):
		return "duplicate"
	case errors.Is(err, errInvalidQuantity), errors.Is(err, errInvalidOrderPrice), errors.Is(err, errInvalidSide):
		return "invalid"
	case errors.Is(err, errUnknownEvent):
		return "unknown_event"
	default:
		return "other"
	}
}
