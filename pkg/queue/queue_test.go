package queue

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/joripage/bookfeed/pkg/orderbook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEv(seq uint64) orderbook.Event {
	return orderbook.Clear{Sequence: seq}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, Block, p)

	p, err = ParsePolicy("drop_and_resync")
	require.NoError(t, err)
	assert.Equal(t, DropAndResync, p)

	_, err = ParsePolicy("yolo")
	assert.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestFIFOOrder(t *testing.T) {
	q := New(0, Block)
	ctx := context.Background()
	for i := uint64(1); i <= 100; i++ {
		require.NoError(t, q.Push(ctx, clearEv(i)))
	}
	for i := uint64(1); i <= 100; i++ {
		ev, err := q.Pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, ev.Seq())
	}
}

func TestPopBlocksUntilPush(t *testing.T) {
	q := New(4, Block)
	got := make(chan orderbook.Event, 1)
	go func() {
		ev, err := q.Pop(context.Background())
		if err == nil {
			got <- ev
		}
	}()

	select {
	case <-got:
		t.Fatal("pop returned on an empty queue")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, q.Push(context.Background(), clearEv(7)))
	select {
	case ev := <-got:
		assert.Equal(t, uint64(7), ev.Seq())
	case <-time.After(time.Second):
		t.Fatal("pop did not wake up")
	}
}

func TestPopHonoursContext(t *testing.T) {
	q := New(1, Block)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBlockPolicyBackpressure(t *testing.T) {
	q := New(2, Block)
	ctx := context.Background()
	require.NoError(t, q.Push(ctx, clearEv(1)))
	require.NoError(t, q.Push(ctx, clearEv(2)))

	pushed := make(chan error, 1)
	go func() { pushed <- q.Push(ctx, clearEv(3)) }()

	select {
	case <-pushed:
		t.Fatal("push did not block on a full queue")
	case <-time.After(20 * time.Millisecond):
	}

	ev, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), ev.Seq())

	select {
	case err := <-pushed:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("push did not resume after pop")
	}
	assert.Equal(t, 2, q.Len())
	assert.Zero(t, q.Dropped())
}

func TestBlockedPushHonoursContext(t *testing.T) {
	q := New(1, Block)
	require.NoError(t, q.Push(context.Background(), clearEv(1)))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Push(ctx, clearEv(2)), context.DeadlineExceeded)
}

func TestDropAndResync(t *testing.T) {
	q := New(3, DropAndResync)
	ctx := context.Background()
	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, q.Push(ctx, clearEv(i)))
	}
	require.NoError(t, q.Push(ctx, clearEv(4)))

	assert.Equal(t, 1, q.Len())
	assert.Equal(t, uint64(4), q.Dropped())

	ev, err := q.Pop(ctx)
	require.NoError(t, err)
	gap, ok := ev.(orderbook.Gap)
	require.True(t, ok, "expected a gap, got %T", ev)
	assert.Equal(t, GapQueueOverflow, gap.Reason)
	assert.Equal(t, uint64(4), gap.Sequence)
}

func TestDropAndResyncKeepsSnapshot(t *testing.T) {
	q := New(1, DropAndResync)
	ctx := context.Background()
	require.NoError(t, q.Push(ctx, clearEv(1)))
	require.NoError(t, q.Push(ctx, orderbook.Snapshot{Sequence: 2}))

	ev, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.IsType(t, orderbook.Snapshot{}, ev)
	assert.Equal(t, uint64(1), q.Dropped())
}

func TestCloseDrainsThenEOF(t *testing.T) {
	q := New(0, Block)
	ctx := context.Background()
	require.NoError(t, q.Push(ctx, clearEv(1)))
	require.NoError(t, q.Push(ctx, clearEv(2)))
	q.Close()
	q.Close()

	assert.ErrorIs(t, q.Push(ctx, clearEv(3)), ErrClosed)

	for i := uint64(1); i <= 2; i++ {
		ev, err := q.Pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, ev.Seq())
	}
	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestCloseWakesWaiters(t *testing.T) {
	q := New(1, Block)
	require.NoError(t, q.Push(context.Background(), clearEv(1)))

	var wg sync.WaitGroup
	wg.Add(1)
	var pushErr error
	go func() {
		defer wg.Done()
		pushErr = q.Push(context.Background(), clearEv(2))
	}()
	time.Sleep(10 * time.Millisecond)
	q.Close()
	wg.Wait()
	assert.ErrorIs(t, pushErr, ErrClosed)
}

func TestConcurrentProducerConsumer(t *testing.T) {
	q := New(8, Block)
	ctx := context.Background()
	const n = 10000

	go func() {
		for i := uint64(1); i <= n; i++ {
			if err := q.Push(ctx, clearEv(i)); err != nil {
				return
			}
		}
		q.Close()
	}()

	want := uint64(1)
	for {
		ev, err := q.Pop(ctx)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		require.Equal(t, want, ev.Seq())
		want++
	}
	assert.Equal(t, uint64(n+1), want)
}
