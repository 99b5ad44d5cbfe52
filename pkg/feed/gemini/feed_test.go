package gemini

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joripage/bookfeed/pkg/orderbook"
	"github.com/joripage/bookfeed/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGemini serves one script of messages per connection, then holds the
// connection open until the client goes away.
func fakeGemini(t *testing.T, scripts ...[]string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var conns atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		n := int(conns.Add(1)) - 1
		if n < len(scripts) {
			for _, msg := range scripts[n] {
				if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
					return
				}
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &conns
}

func newTestFeed(t *testing.T, srv *httptest.Server, q *queue.Queue) *Feed {
	t.Helper()
	cfg := &Config{
		URL:                "ws" + strings.TrimPrefix(srv.URL, "http"),
		Symbol:             "btcusd",
		ReconnectInitialMs: 5,
		ReconnectMaxMs:     20,
	}
	f, err := NewFeed(cfg, q, nil)
	require.NoError(t, err)
	return f
}

func popN(t *testing.T, q *queue.Queue, n int) []orderbook.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out := make([]orderbook.Event, 0, n)
	for len(out) < n {
		ev, err := q.Pop(ctx)
		require.NoError(t, err)
		out = append(out, ev)
	}
	return out
}

func runFeed(t *testing.T, f *Feed) (context.CancelFunc, <-chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func waitStopped(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("feed did not stop")
	}
}

func TestFeedPublishesSnapshotThenUpdates(t *testing.T) {
	srv, _ := fakeGemini(t, []string{
		initialMsg,
		`{"type":"update","socket_sequence":1,"events":[{"type":"change","side":"bid","price":"6748.70","remaining":"0.047","reason":"place"}]}`,
	})
	q := queue.New(0, queue.Block)
	cancel, done := runFeed(t, newTestFeed(t, srv, q))

	events := popN(t, q, 2)
	assert.IsType(t, orderbook.Snapshot{}, events[0])
	change, ok := events[1].(orderbook.Change)
	require.True(t, ok, "got %T", events[1])
	assert.Equal(t, "bid:6748.7", change.ID)

	cancel()
	waitStopped(t, done)
}

func TestFeedReconnectsAfterSequenceGap(t *testing.T) {
	srv, conns := fakeGemini(t,
		[]string{initialMsg, `{"type":"heartbeat","socket_sequence":7}`},
		[]string{initialMsg},
	)
	q := queue.New(0, queue.Block)
	cancel, done := runFeed(t, newTestFeed(t, srv, q))

	events := popN(t, q, 3)
	assert.IsType(t, orderbook.Snapshot{}, events[0])
	gap, ok := events[1].(orderbook.Gap)
	require.True(t, ok, "got %T", events[1])
	assert.Equal(t, GapSequence, gap.Reason)
	assert.IsType(t, orderbook.Snapshot{}, events[2])
	assert.Less(t, events[1].Seq(), events[2].Seq())
	assert.Equal(t, int32(2), conns.Load())

	cancel()
	waitStopped(t, done)
}

func TestFeedResyncRequestReplacesConnection(t *testing.T) {
	srv, conns := fakeGemini(t, []string{initialMsg}, []string{initialMsg})
	q := queue.New(0, queue.Block)
	f := newTestFeed(t, srv, q)
	cancel, done := runFeed(t, f)

	first := popN(t, q, 1)[0]
	require.IsType(t, orderbook.Snapshot{}, first)

	// a request older than the current connection is ignored
	f.RequestResync(orderbook.Resync{Reason: "stale", Sequence: 0})
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), conns.Load())

	f.RequestResync(orderbook.Resync{Reason: orderbook.ResyncUnknownOrder, Sequence: first.Seq()})
	events := popN(t, q, 2)
	gap, ok := events[0].(orderbook.Gap)
	require.True(t, ok, "got %T", events[0])
	assert.Equal(t, GapDisconnected, gap.Reason)
	assert.IsType(t, orderbook.Snapshot{}, events[1])
	assert.Equal(t, int32(2), conns.Load())

	cancel()
	waitStopped(t, done)
}

func TestFeedStopsWhenQueueCloses(t *testing.T) {
	srv, _ := fakeGemini(t, []string{initialMsg, `{"type":"heartbeat","socket_sequence":1}`})
	q := queue.New(0, queue.Block)
	q.Close()
	_, done := runFeed(t, newTestFeed(t, srv, q))
	waitStopped(t, done)
}

func TestFeedGivesUp(t *testing.T) {
	q := queue.New(0, queue.Block)
	f, err := NewFeed(&Config{
		URL:                        "ws://127.0.0.1:1",
		ReconnectInitialMs:         5,
		ReconnectMaxMs:             10,
		ReconnectMaxElapsedSeconds: 1,
	}, q, nil)
	require.NoError(t, err)

	err = f.Run(context.Background())
	assert.ErrorIs(t, err, ErrGaveUp)
}
