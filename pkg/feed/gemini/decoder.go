package gemini

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/joripage/bookfeed/pkg/metrics"
	"github.com/joripage/bookfeed/pkg/orderbook"
	"github.com/shopspring/decimal"
)

const (
	GapSequence     = "sequence_gap"
	GapMalformed    = "malformed_message"
	GapDisconnected = "disconnected"
)

var (
	errSequenceGap      = errors.New("socket sequence gap")
	errMalformedMessage = errors.New("malformed message")
)

// Sequencer hands out the engine-facing event sequence. It is shared by all
// connections of a feed so sequences keep increasing across reconnects.
type Sequencer struct {
	n atomic.Uint64
}

func (s *Sequencer) Next() uint64 { return s.n.Add(1) }

func (s *Sequencer) Current() uint64 { return s.n.Load() }

// Decoder turns the messages of one connection into book events. Gemini v1
// reports price levels rather than individual orders, so each live level is
// tracked as one order with id "<side>:<price>".
type Decoder struct {
	seq        *Sequencer
	lastSocket int64
	started    bool
	levels     map[string]struct{}
}

func NewDecoder(seq *Sequencer) *Decoder {
	return &Decoder{
		seq:        seq,
		lastSocket: -1,
		levels:     make(map[string]struct{}),
	}
}

func levelID(side orderbook.Side, price decimal.Decimal) string {
	if side == orderbook.BID {
		return sideBid + ":" + price.String()
	}
	return sideAsk + ":" + price.String()
}

func parseSide(s string) (orderbook.Side, bool) {
	switch s {
	case sideBid:
		return orderbook.BID, true
	case sideAsk:
		return orderbook.ASK, true
	default:
		return "", false
	}
}

func (d *Decoder) gap(reason string) orderbook.Gap {
	metrics.FeedGapsTotal.WithLabelValues(reason).Inc()
	return orderbook.Gap{Reason: reason, Sequence: d.seq.Next()}
}

// Decode returns the events carried by raw. When the stream can no longer be
// trusted it returns a single Gap together with a non-nil error; the
// connection should then be replaced.
func (d *Decoder) Decode(raw []byte) ([]orderbook.Event, error) {
	var m message
	if err := json.Unmarshal(raw, &m); err != nil {
		return []orderbook.Event{d.gap(GapMalformed)}, fmt.Errorf("%w: %v", errMalformedMessage, err)
	}
	if m.SocketSequence == nil {
		return []orderbook.Event{d.gap(GapMalformed)}, fmt.Errorf("%w: missing socket_sequence", errMalformedMessage)
	}

	socketSeq := *m.SocketSequence
	if d.lastSocket >= 0 && socketSeq != d.lastSocket+1 {
		prev := d.lastSocket
		d.lastSocket = socketSeq
		return []orderbook.Event{d.gap(GapSequence)}, fmt.Errorf("%w: expected %d, got %d", errSequenceGap, prev+1, socketSeq)
	}
	d.lastSocket = socketSeq
	metrics.FeedMessagesTotal.WithLabelValues(m.Type).Inc()

	if m.Type != msgUpdate {
		// heartbeats only advance the socket sequence
		return nil, nil
	}
	if !d.started {
		return d.snapshot(m)
	}
	return d.incremental(m)
}

// snapshot builds the book image from the first update of the connection.
func (d *Decoder) snapshot(m message) ([]orderbook.Event, error) {
	seq := d.seq.Next()
	snap := orderbook.Snapshot{Sequence: seq}
	for _, ev := range m.Events {
		if ev.Type != evChange {
			continue
		}
		side, ok := parseSide(ev.Side)
		if !ok || ev.Price.Sign() <= 0 || ev.Remaining.Sign() < 0 {
			return []orderbook.Event{d.gap(GapMalformed)}, fmt.Errorf("%w: bad initial level %s %s", errMalformedMessage, ev.Side, ev.Price)
		}
		if ev.Remaining.IsZero() {
			continue
		}
		id := levelID(side, ev.Price)
		if _, dup := d.levels[id]; dup {
			return []orderbook.Event{d.gap(GapMalformed)}, fmt.Errorf("%w: duplicate initial level %s", errMalformedMessage, id)
		}
		d.levels[id] = struct{}{}
		snap.Orders = append(snap.Orders, orderbook.Add{
			ID:       id,
			Side:     side,
			Price:    ev.Price,
			Quantity: ev.Remaining,
			Sequence: seq,
		})
	}
	d.started = true
	return []orderbook.Event{snap}, nil
}

func (d *Decoder) incremental(m message) ([]orderbook.Event, error) {
	out := make([]orderbook.Event, 0, len(m.Events))
	for _, ev := range m.Events {
		if ev.Type == evTrade {
			// trades are reflected by the change events that accompany them
			continue
		}
		if ev.Type != evChange {
			continue
		}
		side, ok := parseSide(ev.Side)
		if !ok || ev.Price.Sign() <= 0 || ev.Remaining.Sign() < 0 {
			return append(out, d.gap(GapMalformed)), fmt.Errorf("%w: bad change %s %s %s", errMalformedMessage, ev.Side, ev.Price, ev.Remaining)
		}

		id := levelID(side, ev.Price)
		_, live := d.levels[id]
		switch {
		case ev.Remaining.IsZero():
			delete(d.levels, id)
			out = append(out, orderbook.Remove{ID: id, Sequence: d.seq.Next()})
		case live:
			out = append(out, orderbook.Change{ID: id, Quantity: ev.Remaining, Sequence: d.seq.Next()})
		default:
			d.levels[id] = struct{}{}
			out = append(out, orderbook.Add{
				ID:       id,
				Side:     side,
				Price:    ev.Price,
				Quantity: ev.Remaining,
				Sequence: d.seq.Next(),
			})
		}
	}
	return out, nil
}
