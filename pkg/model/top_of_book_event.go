package model

import (
	"time"

	"github.com/joripage/bookfeed/pkg/orderbook"
	"github.com/shopspring/decimal"
)

// TopOfBookEvent is one emitted best bid/ask change. An empty side is stored
// as NULL price and quantity.
type TopOfBookEvent struct {
	ID        int64               `gorm:"column:id;primaryKey;autoIncrement"`
	Symbol    string              `gorm:"column:symbol"`
	Sequence  uint64              `gorm:"column:sequence"`
	BidPrice  decimal.NullDecimal `gorm:"column:bid_price"`
	BidQty    decimal.NullDecimal `gorm:"column:bid_qty"`
	AskPrice  decimal.NullDecimal `gorm:"column:ask_price"`
	AskQty    decimal.NullDecimal `gorm:"column:ask_qty"`
	EventTime time.Time           `gorm:"column:event_time"`
	CreatedAt time.Time           `gorm:"column:created_at;autoCreateTime"`
}

func (TopOfBookEvent) TableName() string {
	return "top_of_book_events"
}

func NewTopOfBookEvent(t orderbook.TopOfBook) *TopOfBookEvent {
	ev := &TopOfBookEvent{
		Symbol:    t.Symbol,
		Sequence:  t.Sequence,
		EventTime: t.Time,
	}
	if t.Bid != nil {
		ev.BidPrice = decimal.NewNullDecimal(t.Bid.Price)
		ev.BidQty = decimal.NewNullDecimal(t.Bid.Quantity)
	}
	if t.Ask != nil {
		ev.AskPrice = decimal.NewNullDecimal(t.Ask.Price)
		ev.AskQty = decimal.NewNullDecimal(t.Ask.Quantity)
	}
	return ev
}

// TopOfBook converts the stored row back to the emitted value.
func (e *TopOfBookEvent) TopOfBook() orderbook.TopOfBook {
	t := orderbook.TopOfBook{
		Symbol:   e.Symbol,
		Sequence: e.Sequence,
		Time:     e.EventTime,
	}
	if e.BidPrice.Valid {
		t.Bid = &orderbook.Quote{Price: e.BidPrice.Decimal, Quantity: e.BidQty.Decimal}
	}
	if e.AskPrice.Valid {
		t.Ask = &orderbook.Quote{Price: e.AskPrice.Decimal, Quantity: e.AskQty.Decimal}
	}
	return t
}
