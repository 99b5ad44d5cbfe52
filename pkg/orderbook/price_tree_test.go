package orderbook

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
)

// blackHeight returns the black height of n, failing the test on any
// red-black violation below it.
func blackHeight(t *testing.T, tr *priceTree, n *treeNode) int {
	t.Helper()
	if n == tr.sentinel {
		return 1
	}
	if n.color == red && (n.left.color == red || n.right.color == red) {
		t.Fatalf("red node %s has a red child", n.price)
	}
	if n.left != tr.sentinel && !n.left.price.LessThan(n.price) {
		t.Fatalf("left child %s not below %s", n.left.price, n.price)
	}
	if n.right != tr.sentinel && !n.right.price.GreaterThan(n.price) {
		t.Fatalf("right child %s not above %s", n.right.price, n.price)
	}
	l := blackHeight(t, tr, n.left)
	r := blackHeight(t, tr, n.right)
	if l != r {
		t.Fatalf("black height mismatch under %s: %d vs %d", n.price, l, r)
	}
	if n.color == black {
		l++
	}
	return l
}

func TestPriceTreeRandomOps(t *testing.T) {
	tr := newPriceTree()
	rng := rand.New(rand.NewSource(42))
	live := make(map[int64]bool)

	for i := 0; i < 5000; i++ {
		cents := rng.Int63n(500)
		price := decimal.New(cents, -2)
		if rng.Intn(3) == 0 {
			deleted := tr.delete(price)
			if deleted != live[cents] {
				t.Fatalf("delete %s returned %v, want %v", price, deleted, live[cents])
			}
			delete(live, cents)
		} else {
			pl := tr.upsert(price)
			if !pl.price.Equal(price) {
				t.Fatalf("upsert %s returned level %s", price, pl.price)
			}
			live[cents] = true
		}
		if tr.root.color != black {
			t.Fatal("root is not black")
		}
		if tr.len() != len(live) {
			t.Fatalf("size %d, want %d", tr.len(), len(live))
		}
	}
	blackHeight(t, tr, tr.root)

	var prev *decimal.Decimal
	n := 0
	tr.ascend(func(pl *priceLevel) bool {
		if prev != nil && !pl.price.GreaterThan(*prev) {
			t.Fatalf("ascend out of order: %s after %s", pl.price, prev)
		}
		p := pl.price
		prev = &p
		n++
		return true
	})
	if n != len(live) {
		t.Fatalf("ascend visited %d levels, want %d", n, len(live))
	}
}

func TestPriceTreeExactDecimalKeys(t *testing.T) {
	tr := newPriceTree()
	a := tr.upsert(d("6748.70"))
	b := tr.upsert(d("6748.7"))
	if a != b {
		t.Fatal("6748.70 and 6748.7 must share one level")
	}
	tr.upsert(d("6748.71"))
	tr.upsert(d("6748.69"))

	if got := tr.min().price; !got.Equal(d("6748.69")) {
		t.Errorf("min = %s", got)
	}
	if got := tr.max().price; !got.Equal(d("6748.71")) {
		t.Errorf("max = %s", got)
	}
	if tr.find(d("6748.72")) != nil {
		t.Error("found a level that was never inserted")
	}

	var desc []string
	tr.descend(func(pl *priceLevel) bool {
		desc = append(desc, pl.price.String())
		return len(desc) < 2
	})
	if len(desc) != 2 || desc[0] != "6748.71" || desc[1] != "6748.7" {
		t.Errorf("descend = %v", desc)
	}

	tr.clear()
	if tr.len() != 0 || tr.min() != nil || tr.max() != nil {
		t.Error("clear left levels behind")
	}
}
