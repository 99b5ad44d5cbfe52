package orderbook

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Quote struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// Level is a read-only view of one price level.
type Level struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Orders   int             `json:"orders"`
}

// TopOfBook is the best bid and best ask of the book after the event with
// Sequence was applied. A nil side is empty. Bids and Asks carry the top
// levels of each side when depth publishing is enabled.
type TopOfBook struct {
	Symbol   string    `json:"symbol"`
	Bid      *Quote    `json:"bid"`
	Ask      *Quote    `json:"ask"`
	Sequence uint64    `json:"sequence"`
	Time     time.Time `json:"time"`
	Bids     []Level   `json:"bids,omitempty"`
	Asks     []Level   `json:"asks,omitempty"`
}

// Equal compares the four top-of-book components exactly. Sequence, Time and
// depth are ignored.
func (t TopOfBook) Equal(o TopOfBook) bool {
	return quoteEqual(t.Bid, o.Bid) && quoteEqual(t.Ask, o.Ask)
}

func quoteEqual(a, b *Quote) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Price.Equal(b.Price) && a.Quantity.Equal(b.Quantity)
}

// Spread returns ask minus bid, or false when either side is empty.
func (t TopOfBook) Spread() (decimal.Decimal, bool) {
	if t.Bid == nil || t.Ask == nil {
		return decimal.Zero, false
	}
	return t.Ask.Price.Sub(t.Bid.Price), true
}

// String renders "bid_px bid_qty<TAB>ask_px ask_qty" with "-" for an empty side.
func (t TopOfBook) String() string {
	return fmt.Sprintf("%s\t%s", formatQuote(t.Bid), formatQuote(t.Ask))
}

func formatQuote(q *Quote) string {
	if q == nil {
		return "-"
	}
	return q.Price.String() + " " + q.Quantity.String()
}
