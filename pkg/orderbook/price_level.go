package orderbook

import (
	"github.com/shopspring/decimal"
)

// priceLevel holds every resting order at one price in arrival order as an
// intrusive doubly linked list, so an order found through the id index is
// detached without scanning the level. total is maintained incrementally and
// always equals the sum of the orders' quantities.
type priceLevel struct {
	price decimal.Decimal
	total decimal.Decimal

	head  *Order
	tail  *Order
	count int
}

func newPriceLevel(price decimal.Decimal) *priceLevel {
	return &priceLevel{price: price, total: decimal.Zero}
}

func (pl *priceLevel) append(o *Order) {
	o.level = pl
	o.prev, o.next = pl.tail, nil
	if pl.tail == nil {
		pl.head = o
	} else {
		pl.tail.next = o
	}
	pl.tail = o
	pl.count++
	pl.total = pl.total.Add(o.Quantity)
}

// detach unlinks o and subtracts its quantity from the total.
func (pl *priceLevel) detach(o *Order) bool {
	if o.level != pl {
		return false
	}
	if o.prev == nil {
		pl.head = o.next
	} else {
		o.prev.next = o.next
	}
	if o.next == nil {
		pl.tail = o.prev
	} else {
		o.next.prev = o.prev
	}
	o.prev, o.next, o.level = nil, nil, nil
	pl.count--
	pl.total = pl.total.Sub(o.Quantity)
	return true
}

// resize sets o's quantity in place, keeping its queue position.
func (pl *priceLevel) resize(o *Order, qty decimal.Decimal) {
	pl.total = pl.total.Add(qty.Sub(o.Quantity))
	o.Quantity = qty
}

func (pl *priceLevel) len() int { return pl.count }

func (pl *priceLevel) empty() bool { return pl.head == nil }

func (pl *priceLevel) quote() *Quote {
	return &Quote{Price: pl.price, Quantity: pl.total}
}

func (pl *priceLevel) view() Level {
	return Level{Price: pl.price, Quantity: pl.total, Orders: pl.count}
}
