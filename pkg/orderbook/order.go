package orderbook

import "github.com/shopspring/decimal"

type Side string

const (
	BID Side = "BID"
	ASK Side = "ASK"
)

func (s Side) Valid() bool {
	return s == BID || s == ASK
}

// Order is a resting order as seen through the market-data feed. Quantity is
// the remaining quantity and is mutated in place on Change.
type Order struct {
	ID       string
	Side     Side
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Sequence uint64

	level      *priceLevel
	prev, next *Order
}
