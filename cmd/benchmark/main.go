package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"time"

	"github.com/joripage/bookfeed/pkg/orderbook"
	"github.com/joripage/bookfeed/pkg/queue"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	minPrice = 10_000 // in cents
	midPrice = 15_000
	maxPrice = 20_000
	minQty   = 1
	maxQty   = 100
)

// generator produces a random but always valid event stream.
type generator struct {
	rnd  *rand.Rand
	seq  uint64
	next int
	live []string
}

func newGenerator(seed int64) *generator {
	return &generator{rnd: rand.New(rand.NewSource(seed))}
}

func (g *generator) event() orderbook.Event {
	g.seq++
	op := g.rnd.Intn(100)
	switch {
	case len(g.live) > 0 && op < 25:
		id := g.live[g.rnd.Intn(len(g.live))]
		return orderbook.Change{ID: id, Quantity: g.qty(), Sequence: g.seq}
	case len(g.live) > 0 && op < 40:
		i := g.rnd.Intn(len(g.live))
		id := g.live[i]
		g.live[i] = g.live[len(g.live)-1]
		g.live = g.live[:len(g.live)-1]
		return orderbook.Remove{ID: id, Sequence: g.seq}
	default:
		g.next++
		id := fmt.Sprintf("ORD-%07d", g.next)
		side, cents := orderbook.BID, minPrice+g.rnd.Intn(midPrice-minPrice)
		if g.rnd.Intn(2) == 0 {
			side, cents = orderbook.ASK, midPrice+1+g.rnd.Intn(maxPrice-midPrice)
		}
		g.live = append(g.live, id)
		return orderbook.Add{
			ID:       id,
			Side:     side,
			Price:    decimal.New(int64(cents), -2),
			Quantity: g.qty(),
			Sequence: g.seq,
		}
	}
}

func (g *generator) qty() decimal.Decimal {
	return decimal.NewFromInt(int64(g.rnd.Intn(maxQty-minQty+1) + minQty))
}

func main() {
	var (
		numEvents int
		capacity  int
		policy    string
		depth     int
	)
	flag.IntVar(&numEvents, "events", 1_000_000, "Number of synthetic events")
	flag.IntVar(&capacity, "queue-capacity", 10_000, "Handoff queue capacity, 0 for unbounded")
	flag.StringVar(&policy, "overflow-policy", "block", "block or drop_and_resync")
	flag.IntVar(&depth, "depth", 0, "Depth levels attached to each emission")
	flag.Parse()

	p, err := queue.ParsePolicy(policy)
	if err != nil {
		fmt.Println(err)
		return
	}

	q := queue.New(capacity, p)
	engine := orderbook.NewEngine(&orderbook.EngineConfig{Symbol: "BENCH", DepthLevels: depth}, nil)

	emissions, resyncs := 0, 0
	engine.RegisterTopOfBookCallback(func(context.Context, orderbook.TopOfBook) { emissions++ })
	engine.RegisterResyncCallback(func(orderbook.Resync) { resyncs++ })

	gen := newGenerator(time.Now().UnixNano())
	ctx := context.Background()
	start := time.Now()

	var eg errgroup.Group
	eg.Go(func() error {
		defer q.Close()
		for i := 0; i < numEvents; i++ {
			if err := q.Push(ctx, gen.event()); err != nil {
				return err
			}
		}
		return nil
	})
	eg.Go(func() error {
		return engine.Run(ctx, q)
	})
	if err := eg.Wait(); err != nil {
		fmt.Println("benchmark failed:", err)
		return
	}

	elapsed := time.Since(start)
	top, _ := engine.Latest()

	fmt.Println("--------")
	fmt.Printf("Total Events  : %d\n", numEvents)
	fmt.Printf("Emissions     : %d\n", emissions)
	fmt.Printf("Resyncs       : %d\n", resyncs)
	fmt.Printf("Dropped       : %d\n", q.Dropped())
	fmt.Printf("Final Top     : %s\n", top)
	fmt.Printf("Time Taken    : %s\n", elapsed)
	fmt.Printf("Events/sec    : %.0f\n", float64(numEvents)/elapsed.Seconds())
}
