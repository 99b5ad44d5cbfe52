package orderbook

import "github.com/shopspring/decimal"

type color uint8

const (
	red color = iota
	black
)

type treeNode struct {
	price  decimal.Decimal
	level  *priceLevel
	color  color
	left   *treeNode
	right  *treeNode
	parent *treeNode
}

// priceTree is a red-black tree of price levels keyed by exact decimal price.
// Leaves point at a shared black sentinel instead of nil.
type priceTree struct {
	root     *treeNode
	sentinel *treeNode
	size     int
}

func newPriceTree() *priceTree {
	s := &treeNode{color: black}
	return &priceTree{root: s, sentinel: s}
}

func (t *priceTree) len() int { return t.size }

func (t *priceTree) find(price decimal.Decimal) *priceLevel {
	n := t.search(price)
	if n == t.sentinel {
		return nil
	}
	return n.level
}

// upsert returns the level at price, creating an empty one if needed.
func (t *priceTree) upsert(price decimal.Decimal) *priceLevel {
	parent := t.sentinel
	cur := t.root
	for cur != t.sentinel {
		parent = cur
		switch price.Cmp(cur.price) {
		case -1:
			cur = cur.left
		case 1:
			cur = cur.right
		default:
			return cur.level
		}
	}

	pl := newPriceLevel(price)
	z := &treeNode{
		price:  price,
		level:  pl,
		color:  red,
		left:   t.sentinel,
		right:  t.sentinel,
		parent: parent,
	}
	switch {
	case parent == t.sentinel:
		t.root = z
	case price.LessThan(parent.price):
		parent.left = z
	default:
		parent.right = z
	}
	t.insertFixup(z)
	t.size++
	return pl
}

func (t *priceTree) delete(price decimal.Decimal) bool {
	z := t.search(price)
	if z == t.sentinel {
		return false
	}
	t.deleteNode(z)
	t.size--
	return true
}

func (t *priceTree) min() *priceLevel {
	n := t.minNode(t.root)
	if n == t.sentinel {
		return nil
	}
	return n.level
}

func (t *priceTree) max() *priceLevel {
	n := t.maxNode(t.root)
	if n == t.sentinel {
		return nil
	}
	return n.level
}

// ascend walks levels from lowest to highest price until fn returns false.
func (t *priceTree) ascend(fn func(*priceLevel) bool) {
	for n := t.minNode(t.root); n != t.sentinel; n = t.next(n) {
		if !fn(n.level) {
			return
		}
	}
}

// descend walks levels from highest to lowest price until fn returns false.
func (t *priceTree) descend(fn func(*priceLevel) bool) {
	for n := t.maxNode(t.root); n != t.sentinel; n = t.prev(n) {
		if !fn(n.level) {
			return
		}
	}
}

func (t *priceTree) clear() {
	t.root = t.sentinel
	t.size = 0
}

func (t *priceTree) search(price decimal.Decimal) *treeNode {
	n := t.root
	for n != t.sentinel {
		switch price.Cmp(n.price) {
		case -1:
			n = n.left
		case 1:
			n = n.right
		default:
			return n
		}
	}
	return t.sentinel
}

func (t *priceTree) minNode(n *treeNode) *treeNode {
	if n == t.sentinel {
		return n
	}
	for n.left != t.sentinel {
		n = n.left
	}
	return n
}

func (t *priceTree) maxNode(n *treeNode) *treeNode {
	if n == t.sentinel {
		return n
	}
	for n.right != t.sentinel {
		n = n.right
	}
	return n
}

func (t *priceTree) next(n *treeNode) *treeNode {
	if n.right != t.sentinel {
		return t.minNode(n.right)
	}
	p := n.parent
	for p != t.sentinel && n == p.right {
		n = p
		p = p.parent
	}
	return p
}

func (t *priceTree) prev(n *treeNode) *treeNode {
	if n.left != t.sentinel {
		return t.maxNode(n.left)
	}
	p := n.parent
	for p != t.sentinel && n == p.left {
		n = p
		p = p.parent
	}
	return p
}

func (t *priceTree) rotateLeft(x *treeNode) {
	y := x.right
	x.right = y.left
	if y.left != t.sentinel {
		y.left.parent = x
	}
	y.parent = x.parent
	switch {
	case x.parent == t.sentinel:
		t.root = y
	case x == x.parent.left:
		x.parent.left = y
	default:
		x.parent.right = y
	}
	y.left = x
	x.parent = y
}

func (t *priceTree) rotateRight(y *treeNode) {
	x := y.left
	y.left = x.right
	if x.right != t.sentinel {
		x.right.parent = y
	}
	x.parent = y.parent
	switch {
	case y.parent == t.sentinel:
		t.root = x
	case y == y.parent.right:
		y.parent.right = x
	default:
		y.parent.left = x
	}
	x.right = y
	y.parent = x
}

func (t *priceTree) insertFixup(z *treeNode) {
	for z.parent.color == red {
		grand := z.parent.parent
		if z.parent == grand.left {
			uncle := grand.right
			if uncle.color == red {
				z.parent.color = black
				uncle.color = black
				grand.color = red
				z = grand
				continue
			}
			if z == z.parent.right {
				z = z.parent
				t.rotateLeft(z)
			}
			z.parent.color = black
			z.parent.parent.color = red
			t.rotateRight(z.parent.parent)
		} else {
			uncle := grand.left
			if uncle.color == red {
				z.parent.color = black
				uncle.color = black
				grand.color = red
				z = grand
				continue
			}
			if z == z.parent.left {
				z = z.parent
				t.rotateRight(z)
			}
			z.parent.color = black
			z.parent.parent.color = red
			t.rotateLeft(z.parent.parent)
		}
	}
	t.root.color = black
}

func (t *priceTree) transplant(u, v *treeNode) {
	switch {
	case u.parent == t.sentinel:
		t.root = v
	case u == u.parent.left:
		u.parent.left = v
	default:
		u.parent.right = v
	}
	v.parent = u.parent
}

func (t *priceTree) deleteNode(z *treeNode) {
	y := z
	origColor := y.color
	var x *treeNode

	switch {
	case z.left == t.sentinel:
		x = z.right
		t.transplant(z, z.right)
	case z.right == t.sentinel:
		x = z.left
		t.transplant(z, z.left)
	default:
		y = t.minNode(z.right)
		origColor = y.color
		x = y.right
		if y.parent == z {
			x.parent = y
		} else {
			t.transplant(y, y.right)
			y.right = z.right
			y.right.parent = y
		}
		t.transplant(z, y)
		y.left = z.left
		y.left.parent = y
		y.color = z.color
	}

	if origColor == black {
		t.deleteFixup(x)
	}
}

func (t *priceTree) deleteFixup(x *treeNode) {
	for x != t.root && x.color == black {
		if x == x.parent.left {
			w := x.parent.right
			if w.color == red {
				w.color = black
				x.parent.color = red
				t.rotateLeft(x.parent)
				w = x.parent.right
			}
			if w.left.color == black && w.right.color == black {
				w.color = red
				x = x.parent
				continue
			}
			if w.right.color == black {
				w.left.color = black
				w.color = red
				t.rotateRight(w)
				w = x.parent.right
			}
			w.color = x.parent.color
			x.parent.color = black
			w.right.color = black
			t.rotateLeft(x.parent)
			x = t.root
		} else {
			w := x.parent.left
			if w.color == red {
				w.color = black
				x.parent.color = red
				t.rotateRight(x.parent)
				w = x.parent.left
			}
			if w.right.color == black && w.left.color == black {
				w.color = red
				x = x.parent
				continue
			}
			if w.left.color == black {
				w.right.color = black
				w.color = red
				t.rotateLeft(w)
				w = x.parent.left
			}
			w.color = x.parent.color
			x.parent.color = black
			w.left.color = black
			t.rotateRight(x.parent)
			x = t.root
		}
	}
	x.color = black
}
