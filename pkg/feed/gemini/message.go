package gemini

import "github.com/shopspring/decimal"

// Wire format of the Gemini v1 market data stream
// (wss://api.gemini.com/v1/marketdata/:symbol).

const (
	msgUpdate = "update"

	evChange = "change"
	evTrade  = "trade"

	sideBid = "bid"
	sideAsk = "ask"
)

type message struct {
	Type           string  `json:"type"`
	EventID        int64   `json:"eventId"`
	SocketSequence *int64  `json:"socket_sequence"`
	Timestamp      int64   `json:"timestamp"`
	TimestampMs    int64   `json:"timestampms"`
	Events         []event `json:"events"`
}

// event is one entry of an update. Change events carry the level's new
// remaining quantity; trade events describe executions and carry no book
// state of their own.
type event struct {
	Type      string          `json:"type"`
	Side      string          `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Remaining decimal.Decimal `json:"remaining"`
	Delta     decimal.Decimal `json:"delta"`
	Reason    string          `json:"reason"`
	Amount    decimal.Decimal `json:"amount"`
	MakerSide string          `json:"makerSide"`
	TID       int64           `json:"tid"`
}
