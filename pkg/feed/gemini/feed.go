package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
	"github.com/joripage/bookfeed/pkg/logging"
	"github.com/joripage/bookfeed/pkg/metrics"
	"github.com/joripage/bookfeed/pkg/orderbook"
	"github.com/joripage/bookfeed/pkg/queue"
	"go.uber.org/zap"
)

const (
	DefaultURL    = "wss://api.gemini.com/v1/marketdata"
	DefaultSymbol = "btcusd"
)

type Config struct {
	URL                     string `yaml:"url"`
	Symbol                  string `yaml:"symbol"`
	Heartbeat               bool   `yaml:"heartbeat"`
	HandshakeTimeoutSeconds int    `yaml:"handshake_timeout_seconds"`
	PongWaitSeconds         int    `yaml:"pong_wait_seconds"`
	WriteWaitSeconds        int    `yaml:"write_wait_seconds"`
	ReconnectInitialMs      int64  `yaml:"reconnect_initial_ms"`
	ReconnectMaxMs          int64  `yaml:"reconnect_max_ms"`
	// ReconnectMaxElapsedSeconds bounds how long reconnects are retried
	// without a successful connection. Zero retries forever.
	ReconnectMaxElapsedSeconds int64 `yaml:"reconnect_max_elapsed_seconds"`
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.URL == "" {
		out.URL = DefaultURL
	}
	if out.Symbol == "" {
		out.Symbol = DefaultSymbol
	}
	if out.HandshakeTimeoutSeconds <= 0 {
		out.HandshakeTimeoutSeconds = 15
	}
	if out.PongWaitSeconds <= 0 {
		out.PongWaitSeconds = 30
	}
	if out.WriteWaitSeconds <= 0 {
		out.WriteWaitSeconds = 10
	}
	if out.ReconnectInitialMs <= 0 {
		out.ReconnectInitialMs = 500
	}
	if out.ReconnectMaxMs <= 0 {
		out.ReconnectMaxMs = 30_000
	}
	return out
}

// Endpoint returns the websocket URL for the configured symbol.
func (c *Config) Endpoint() (string, error) {
	cfg := c.withDefaults()
	u, err := url.Parse(strings.TrimRight(cfg.URL, "/") + "/" + strings.ToLower(cfg.Symbol))
	if err != nil {
		return "", err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if cfg.Heartbeat {
		v := u.Query()
		v.Set("heartbeat", "true")
		u.RawQuery = v.Encode()
	}
	return u.String(), nil
}

var (
	ErrGaveUp          = errors.New("feed: reconnect attempts exhausted")
	errResyncRequested = errors.New("resync requested")
)

// Publisher is the producer side of the handoff queue.
type Publisher interface {
	Push(ctx context.Context, ev orderbook.Event) error
}

// Feed keeps a websocket connection to Gemini open, decodes every message and
// publishes the resulting events in receipt order.
type Feed struct {
	cfg      Config
	endpoint string
	out      Publisher
	dialer   *websocket.Dialer
	logger   *zap.Logger

	seq          Sequencer
	sessionStart atomic.Uint64
	resync       chan orderbook.Resync
}

func NewFeed(cfg *Config, out Publisher, logger *zap.Logger) (*Feed, error) {
	c := cfg.withDefaults()
	endpoint, err := c.Endpoint()
	if err != nil {
		return nil, fmt.Errorf("feed endpoint: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{
		cfg:      c,
		endpoint: endpoint,
		out:      out,
		dialer: &websocket.Dialer{
			HandshakeTimeout: time.Duration(c.HandshakeTimeoutSeconds) * time.Second,
		},
		logger: logger.With(zap.String("component", "feed"), zap.String("symbol", c.Symbol)),
		resync: make(chan orderbook.Resync, 1),
	}, nil
}

// RequestResync asks the feed to replace its connection so that a fresh
// snapshot is published. Requests raised before the current connection was
// opened are ignored. It never blocks.
func (f *Feed) RequestResync(r orderbook.Resync) {
	select {
	case f.resync <- r:
	default:
	}
}

// Run connects and reconnects until ctx is cancelled, the queue is closed, or
// reconnecting fails for longer than the configured bound.
func (f *Feed) Run(ctx context.Context) error {
	boff := backoff.NewExponentialBackOff()
	boff.InitialInterval = time.Duration(f.cfg.ReconnectInitialMs) * time.Millisecond
	boff.MaxInterval = time.Duration(f.cfg.ReconnectMaxMs) * time.Millisecond
	boff.MaxElapsedTime = time.Duration(f.cfg.ReconnectMaxElapsedSeconds) * time.Second

	var stopped bool
	op := func() error {
		err := f.session(ctx, boff)
		if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
			stopped = true
			return nil
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		reason := "error"
		if errors.Is(err, errResyncRequested) {
			reason = "resync"
		} else if errors.Is(err, errSequenceGap) || errors.Is(err, errMalformedMessage) {
			reason = "decode"
		}
		metrics.FeedReconnectsTotal.WithLabelValues(reason).Inc()
		f.logger.Warn("reconnecting", zap.String("reason", reason), zap.Duration("wait", wait), zap.Error(err))
	}

	err := backoff.RetryNotify(op, backoff.WithContext(boff, ctx), notify)
	if stopped || ctx.Err() != nil {
		f.logger.Info("feed stopped")
		return nil
	}
	return fmt.Errorf("%w: %v", ErrGaveUp, err)
}

// session runs one connection until it fails or is replaced.
func (f *Feed) session(ctx context.Context, boff *backoff.ExponentialBackOff) error {
	sessionID := logging.NewSessionID()
	logger := f.logger.With(zap.String("session_id", sessionID))

	conn, _, err := f.dialer.DialContext(ctx, f.endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", f.endpoint, err)
	}
	defer conn.Close()

	boff.Reset()
	f.sessionStart.Store(f.seq.Current() + 1)
	logger.Info("connected", zap.String("endpoint", f.endpoint))

	pongWait := time.Duration(f.cfg.PongWaitSeconds) * time.Second
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var replaced atomic.Bool
	go f.keepalive(sctx, conn, &replaced, logger)

	dec := NewDecoder(&f.seq)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if pushErr := f.out.Push(ctx, orderbook.Gap{Reason: GapDisconnected, Sequence: f.seq.Next()}); pushErr != nil {
				return pushErr
			}
			if replaced.Load() {
				return errResyncRequested
			}
			return fmt.Errorf("read: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		events, decErr := dec.Decode(raw)
		for _, ev := range events {
			if err := f.out.Push(ctx, ev); err != nil {
				return err
			}
		}
		if decErr != nil {
			logger.Warn("dropping connection", zap.Error(decErr))
			return decErr
		}
	}
}

// keepalive pings the server and closes conn when the session must end, which
// unblocks the pending read.
func (f *Feed) keepalive(ctx context.Context, conn *websocket.Conn, replaced *atomic.Bool, logger *zap.Logger) {
	writeWait := time.Duration(f.cfg.WriteWaitSeconds) * time.Second
	pingPeriod := time.Duration(f.cfg.PongWaitSeconds) * time.Second * 9 / 10
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			_ = conn.Close()
			return
		case r := <-f.resync:
			if r.Sequence < f.sessionStart.Load() {
				continue
			}
			logger.Warn("resync requested, replacing connection", zap.String("reason", r.Reason), zap.Uint64("sequence", r.Sequence))
			replaced.Store(true)
			_ = conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				logger.Debug("ping failed", zap.Error(err))
				_ = conn.Close()
				return
			}
		}
	}
}
