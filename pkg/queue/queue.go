package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/gammazero/deque"
	"github.com/joripage/bookfeed/pkg/metrics"
	"github.com/joripage/bookfeed/pkg/orderbook"
)

type OverflowPolicy string

const (
	// Block makes Push wait until the consumer frees a slot.
	Block OverflowPolicy = "block"
	// DropAndResync discards every queued event plus the incoming one and
	// leaves a single Gap so the consumer resyncs.
	DropAndResync OverflowPolicy = "drop_and_resync"

	GapQueueOverflow = "queue_overflow"
)

var (
	ErrClosed        = errors.New("queue closed")
	ErrInvalidPolicy = errors.New("invalid overflow policy")
)

func ParsePolicy(s string) (OverflowPolicy, error) {
	switch p := OverflowPolicy(s); p {
	case Block, DropAndResync:
		return p, nil
	case "":
		return Block, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
	}
}

// Queue is the FIFO handoff between one producer and one consumer. A capacity
// of zero means unbounded.
type Queue struct {
	mu       sync.Mutex
	buf      deque.Deque[orderbook.Event]
	capacity int
	policy   OverflowPolicy
	closed   bool

	notEmpty chan struct{}
	notFull  chan struct{}
	done     chan struct{}

	dropped uint64
}

func New(capacity int, policy OverflowPolicy) *Queue {
	if policy == "" {
		policy = Block
	}
	return &Queue{
		capacity: capacity,
		policy:   policy,
		notEmpty: make(chan struct{}, 1),
		notFull:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Push enqueues ev. Under Block it waits while the queue is full; it returns
// ctx.Err() if ctx ends first and ErrClosed once Close was called.
func (q *Queue) Push(ctx context.Context, ev orderbook.Event) error {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return ErrClosed
		}
		if q.capacity <= 0 || q.buf.Len() < q.capacity {
			q.buf.PushBack(ev)
			metrics.QueueDepth.Set(float64(q.buf.Len()))
			q.mu.Unlock()
			signal(q.notEmpty)
			return nil
		}
		if q.policy == DropAndResync {
			q.overflow(ev)
			q.mu.Unlock()
			signal(q.notEmpty)
			return nil
		}
		q.mu.Unlock()

		select {
		case <-q.notFull:
		case <-q.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// overflow replaces the buffer with a Gap. An incoming Snapshot supersedes
// everything before it and is kept instead. Caller holds q.mu.
func (q *Queue) overflow(ev orderbook.Event) {
	n := uint64(q.buf.Len())
	q.buf.Clear()
	if s, ok := ev.(orderbook.Snapshot); ok {
		q.buf.PushBack(s)
	} else {
		n++
		q.buf.PushBack(orderbook.Gap{Reason: GapQueueOverflow, Sequence: ev.Seq()})
	}
	q.dropped += n
	metrics.QueueOverflowsTotal.Inc()
	metrics.QueueDroppedTotal.Add(float64(n))
	metrics.QueueDepth.Set(float64(q.buf.Len()))
}

// Pop returns the oldest event, waiting while the queue is empty. Once the
// queue is closed, remaining events are still returned and io.EOF follows.
func (q *Queue) Pop(ctx context.Context) (orderbook.Event, error) {
	for {
		q.mu.Lock()
		if q.buf.Len() > 0 {
			ev := q.buf.PopFront()
			metrics.QueueDepth.Set(float64(q.buf.Len()))
			q.mu.Unlock()
			signal(q.notFull)
			return ev, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, io.EOF
		}
		q.mu.Unlock()

		select {
		case <-q.notEmpty:
		case <-q.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close stops further pushes and wakes any waiter. It is safe to call more
// than once.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.buf.Len()
}

// Dropped returns how many events overflow has discarded so far.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
