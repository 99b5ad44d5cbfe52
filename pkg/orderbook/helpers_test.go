package orderbook

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func q(price, qty string) *Quote {
	return &Quote{Price: d(price), Quantity: d(qty)}
}

func add(id string, side Side, price, qty string, seq uint64) Add {
	return Add{ID: id, Side: side, Price: d(price), Quantity: d(qty), Sequence: seq}
}

// checkInvariants verifies level totals, absence of empty levels and that the
// id index is exactly the set of resting orders.
func checkInvariants(t *testing.T, ob *orderBook) {
	t.Helper()

	seen := make(map[string]bool)
	for _, bs := range []*bookSide{ob.bids, ob.asks} {
		count := 0
		var prev *decimal.Decimal
		bs.walk(func(pl *priceLevel) bool {
			if pl.empty() {
				t.Errorf("%s level %s is empty", bs.side, pl.price)
			}
			if prev != nil {
				if bs.side == BID && !pl.price.LessThan(*prev) {
					t.Errorf("bid levels out of order: %s after %s", pl.price, prev)
				}
				if bs.side == ASK && !pl.price.GreaterThan(*prev) {
					t.Errorf("ask levels out of order: %s after %s", pl.price, prev)
				}
			}
			p := pl.price
			prev = &p

			sum := decimal.Zero
			n := 0
			for o := pl.head; o != nil; o = o.next {
				n++
				if o.level != pl {
					t.Errorf("order %s links to the wrong level", o.ID)
				}
				if o.next != nil && o.next.prev != o {
					t.Errorf("broken back link after order %s", o.ID)
				}
				sum = sum.Add(o.Quantity)
				count++
				if seen[o.ID] {
					t.Errorf("order %s rests in more than one level", o.ID)
				}
				seen[o.ID] = true
				indexed, ok := ob.index[o.ID]
				if !ok {
					t.Errorf("order %s missing from index", o.ID)
				} else if indexed != o {
					t.Errorf("index entry for %s points at a different order", o.ID)
				}
				if o.Side != bs.side || !o.Price.Equal(pl.price) {
					t.Errorf("order %s (%s %s) filed under %s %s", o.ID, o.Side, o.Price, bs.side, pl.price)
				}
			}
			if n != pl.len() {
				t.Errorf("%s level %s counts %d orders, list holds %d", bs.side, pl.price, pl.len(), n)
			}
			if !sum.Equal(pl.total) {
				t.Errorf("%s level %s total %s, orders sum to %s", bs.side, pl.price, pl.total, sum)
			}
			return true
		})
		if count != bs.orders {
			t.Errorf("%s side counts %d orders, levels hold %d", bs.side, bs.orders, count)
		}
	}
	if len(seen) != len(ob.index) {
		t.Errorf("index holds %d ids, levels hold %d", len(ob.index), len(seen))
	}
}
