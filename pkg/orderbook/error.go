package orderbook

import "errors"

var (
	errOrderNotFound     = errors.New("order not found")
	errDuplicateOrder    = errors.New("duplicate order id")
	errInvalidOrderPrice = errors.New("invalid order price")
	errInvalidQuantity   = errors.New("invalid order quantity")
	errInvalidSide       = errors.New("invalid order side")
	errStaleSequence     = errors.New("sequence not greater than last applied")
	errUnknownEvent      = errors.New("unknown event type")
)
