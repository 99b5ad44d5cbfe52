// file: pkg/orderbook/orderbook.go

package orderbook

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// orderBook is owned by a single goroutine and carries no locks.
type orderBook struct {
	symbol string

	bids *bookSide
	asks *bookSide

	index map[string]*Order
}

// bookStats summarises the size of the book.
type bookStats struct {
	BidLevels int
	AskLevels int
	Orders    int
}

func newOrderBook(symbol string) *orderBook {
	return &orderBook{
		symbol: symbol,
		bids:   newBookSide(BID),
		asks:   newBookSide(ASK),
		index:  make(map[string]*Order),
	}
}

func (ob *orderBook) sideOf(side Side) *bookSide {
	if side == BID {
		return ob.bids
	}
	return ob.asks
}

// apply mutates the book for one event. Gap is not a book mutation and is
// rejected here; the engine handles it.
func (ob *orderBook) apply(ev Event) error {
	switch e := ev.(type) {
	case Add:
		return ob.addOrder(e)
	case Change:
		return ob.changeOrder(e)
	case Remove:
		return ob.removeOrder(e)
	case Clear:
		ob.clear()
		return nil
	case Snapshot:
		return ob.load(e)
	default:
		return fmt.Errorf("%w: %T", errUnknownEvent, ev)
	}
}

func validateAdd(e Add) error {
	if !e.Side.Valid() {
		return fmt.Errorf("%w: %q", errInvalidSide, e.Side)
	}
	if e.Price.Sign() <= 0 {
		return fmt.Errorf("%w: %s", errInvalidOrderPrice, e.Price)
	}
	if e.Quantity.Sign() <= 0 {
		return fmt.Errorf("%w: %s", errInvalidQuantity, e.Quantity)
	}
	return nil
}

func (ob *orderBook) addOrder(e Add) error {
	if _, ok := ob.index[e.ID]; ok {
		return fmt.Errorf("%w: %s", errDuplicateOrder, e.ID)
	}
	if err := validateAdd(e); err != nil {
		return fmt.Errorf("add %s: %w", e.ID, err)
	}
	ob.insert(e)
	return nil
}

func (ob *orderBook) insert(e Add) {
	o := &Order{
		ID:       e.ID,
		Side:     e.Side,
		Price:    e.Price,
		Quantity: e.Quantity,
		Sequence: e.Sequence,
	}
	ob.index[o.ID] = o
	ob.sideOf(o.Side).upsertOrder(o)
}

func (ob *orderBook) changeOrder(e Change) error {
	o, ok := ob.index[e.ID]
	if !ok {
		return fmt.Errorf("change %s: %w", e.ID, errOrderNotFound)
	}
	if e.Quantity.Sign() < 0 {
		return fmt.Errorf("change %s: %w: %s", e.ID, errInvalidQuantity, e.Quantity)
	}
	o.Sequence = e.Sequence
	if ob.sideOf(o.Side).applyQuantityChange(o, e.Quantity) {
		delete(ob.index, o.ID)
	}
	return nil
}

func (ob *orderBook) removeOrder(e Remove) error {
	o, ok := ob.index[e.ID]
	if !ok {
		return fmt.Errorf("remove %s: %w", e.ID, errOrderNotFound)
	}
	ob.sideOf(o.Side).removeOrder(o)
	delete(ob.index, o.ID)
	return nil
}

func (ob *orderBook) clear() {
	ob.bids.clear()
	ob.asks.clear()
	ob.index = make(map[string]*Order)
}

// load replaces the book with the snapshot. The snapshot is validated as a
// whole first, so a rejected snapshot leaves the book untouched.
func (ob *orderBook) load(s Snapshot) error {
	seen := make(map[string]struct{}, len(s.Orders))
	for _, e := range s.Orders {
		if _, ok := seen[e.ID]; ok {
			return fmt.Errorf("snapshot: %w: %s", errDuplicateOrder, e.ID)
		}
		seen[e.ID] = struct{}{}
		if err := validateAdd(e); err != nil {
			return fmt.Errorf("snapshot %s: %w", e.ID, err)
		}
	}

	ob.clear()
	for _, e := range s.Orders {
		ob.insert(e)
	}
	return nil
}

func (ob *orderBook) topOfBook() TopOfBook {
	tob := TopOfBook{Symbol: ob.symbol}
	if pl := ob.bids.best(); pl != nil {
		tob.Bid = pl.quote()
	}
	if pl := ob.asks.best(); pl != nil {
		tob.Ask = pl.quote()
	}
	return tob
}

func (ob *orderBook) depth(n int) (bids, asks []Level) {
	return ob.bids.depth(n), ob.asks.depth(n)
}

func (ob *orderBook) stats() bookStats {
	return bookStats{
		BidLevels: ob.bids.levels.len(),
		AskLevels: ob.asks.levels.len(),
		Orders:    len(ob.index),
	}
}

// levelTotal returns the aggregate quantity resting at price on side.
func (ob *orderBook) levelTotal(side Side, price decimal.Decimal) (decimal.Decimal, bool) {
	pl := ob.sideOf(side).levels.find(price)
	if pl == nil {
		return decimal.Zero, false
	}
	return pl.total, true
}
