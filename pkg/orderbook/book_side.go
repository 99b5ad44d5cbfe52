package orderbook

import "github.com/shopspring/decimal"

// bookSide is the price-level ledger for one side of the book. Bids rank the
// highest price first, asks the lowest.
type bookSide struct {
	side   Side
	levels *priceTree
	orders int
}

func newBookSide(side Side) *bookSide {
	return &bookSide{side: side, levels: newPriceTree()}
}

func (bs *bookSide) upsertOrder(o *Order) {
	bs.levels.upsert(o.Price).append(o)
	bs.orders++
}

// applyQuantityChange sets the remaining quantity of o. A zero quantity removes
// the order and reports true.
func (bs *bookSide) applyQuantityChange(o *Order, qty decimal.Decimal) bool {
	if qty.IsZero() {
		bs.removeOrder(o)
		return true
	}
	pl := bs.levels.find(o.Price)
	if pl == nil {
		return false
	}
	pl.resize(o, qty)
	return false
}

func (bs *bookSide) removeOrder(o *Order) {
	pl := bs.levels.find(o.Price)
	if pl == nil || !pl.detach(o) {
		return
	}
	bs.orders--
	if pl.empty() {
		bs.levels.delete(pl.price)
	}
}

func (bs *bookSide) best() *priceLevel {
	if bs.side == BID {
		return bs.levels.max()
	}
	return bs.levels.min()
}

// walk visits levels best price first until fn returns false.
func (bs *bookSide) walk(fn func(*priceLevel) bool) {
	if bs.side == BID {
		bs.levels.descend(fn)
		return
	}
	bs.levels.ascend(fn)
}

func (bs *bookSide) depth(n int) []Level {
	if n <= 0 {
		return nil
	}
	out := make([]Level, 0, min(n, bs.levels.len()))
	bs.walk(func(pl *priceLevel) bool {
		out = append(out, pl.view())
		return len(out) < n
	})
	return out
}

func (bs *bookSide) clear() {
	bs.levels.clear()
	bs.orders = 0
}
