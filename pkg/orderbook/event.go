package orderbook

import "github.com/shopspring/decimal"

// Event is one decoded market-data event. The set of implementations is
// closed: Add, Change, Remove, Clear, Snapshot and Gap.
type Event interface {
	Seq() uint64
	isEvent()
}

type Add struct {
	ID       string
	Side     Side
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Sequence uint64
}

type Change struct {
	ID       string
	Quantity decimal.Decimal
	Sequence uint64
}

type Remove struct {
	ID       string
	Sequence uint64
}

type Clear struct {
	Sequence uint64
}

// Snapshot is an authoritative full image of the book. Applying it is
// equivalent to a Clear followed by one Add per order, as a single event.
type Snapshot struct {
	Orders   []Add
	Sequence uint64
}

// Gap reports that the stream can no longer be trusted (sequence
// discontinuity, malformed message, dropped events, lost connection).
type Gap struct {
	Reason   string
	Sequence uint64
}

func (e Add) Seq() uint64      { return e.Sequence }
func (e Change) Seq() uint64   { return e.Sequence }
func (e Remove) Seq() uint64   { return e.Sequence }
func (e Clear) Seq() uint64    { return e.Sequence }
func (e Snapshot) Seq() uint64 { return e.Sequence }
func (e Gap) Seq() uint64      { return e.Sequence }

func (Add) isEvent()      {}
func (Change) isEvent()   {}
func (Remove) isEvent()   {}
func (Clear) isEvent()    {}
func (Snapshot) isEvent() {}
func (Gap) isEvent()      {}

// Kind returns a short lowercase name for ev, used in logs and metric labels.
func Kind(ev Event) string {
	switch ev.(type) {
	case Add:
		return "add"
	case Change:
		return "change"
	case Remove:
		return "remove"
	case Clear:
		return "clear"
	case Snapshot:
		return "snapshot"
	case Gap:
		return "gap"
	default:
		return "unknown"
	}
}
