package sink

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/joripage/bookfeed/pkg/orderbook"
)

// Console writes one "bid_px bid_qty<TAB>ask_px ask_qty" line per change.
type Console struct {
	w io.Writer
}

func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = os.Stdout
	}
	return &Console{w: w}
}

func (c *Console) Name() string { return "console" }

func (c *Console) Publish(_ context.Context, top orderbook.TopOfBook) error {
	_, err := fmt.Fprintln(c.w, top.String())
	return err
}

func (c *Console) Close(context.Context) error { return nil }
