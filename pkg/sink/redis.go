package sink

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	redis_wrapper "github.com/joripage/bookfeed/pkg/infra/redis"
	"github.com/joripage/bookfeed/pkg/orderbook"
	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis sink. Keys are <key_prefix>:<symbol>:bbo
// and <key_prefix>:<symbol>:depth. The depth key is written only when Depth
// is set, which needs engine depth levels.
type RedisConfig struct {
	Enabled    bool                      `yaml:"enabled"`
	Conn       redis_wrapper.RedisConfig `yaml:"conn"`
	KeyPrefix  string                    `yaml:"key_prefix"`
	Channel    string                    `yaml:"channel"`
	TTLSeconds int                       `yaml:"ttl_seconds"`
	Depth      bool                      `yaml:"depth"`
}

// Redis keeps the latest best bid/ask in a hash, the latest depth view in a
// string key, and publishes each change as JSON on a channel. All writes of
// one change go through a single MULTI/EXEC.
type Redis struct {
	client   redis.Cmdable
	closer   func() error
	bboKey   string
	depthKey string
	channel  string
	ttl      time.Duration
	depth    bool
}

func NewRedis(client redis.Cmdable, symbol string, cfg RedisConfig) *Redis {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "book"
	}
	r := &Redis{
		client:   client,
		bboKey:   prefix + ":" + symbol + ":bbo",
		depthKey: prefix + ":" + symbol + ":depth",
		channel:  cfg.Channel,
		ttl:      time.Duration(cfg.TTLSeconds) * time.Second,
		depth:    cfg.Depth,
	}
	if c, ok := client.(interface{ Close() error }); ok {
		r.closer = c.Close
	}
	return r
}

func (r *Redis) Name() string { return "redis" }

func bboFields(top orderbook.TopOfBook) map[string]interface{} {
	fields := map[string]interface{}{
		"bid_px":   "",
		"bid_qty":  "",
		"ask_px":   "",
		"ask_qty":  "",
		"sequence": strconv.FormatUint(top.Sequence, 10),
		"time":     top.Time.UTC().Format(time.RFC3339Nano),
	}
	if top.Bid != nil {
		fields["bid_px"] = top.Bid.Price.String()
		fields["bid_qty"] = top.Bid.Quantity.String()
	}
	if top.Ask != nil {
		fields["ask_px"] = top.Ask.Price.String()
		fields["ask_qty"] = top.Ask.Quantity.String()
	}
	return fields
}

type depthView struct {
	Sequence uint64            `json:"sequence"`
	Bids     []orderbook.Level `json:"bids"`
	Asks     []orderbook.Level `json:"asks"`
}

// depthPayload encodes the depth of top. An empty side is written as [] so an
// emptied book overwrites the previous view.
func depthPayload(top orderbook.TopOfBook) ([]byte, error) {
	v := depthView{Sequence: top.Sequence, Bids: top.Bids, Asks: top.Asks}
	if v.Bids == nil {
		v.Bids = []orderbook.Level{}
	}
	if v.Asks == nil {
		v.Asks = []orderbook.Level{}
	}
	return json.Marshal(v)
}

func (r *Redis) Publish(ctx context.Context, top orderbook.TopOfBook) error {
	payload, err := json.Marshal(top)
	if err != nil {
		return err
	}
	var depth []byte
	if r.depth {
		if depth, err = depthPayload(top); err != nil {
			return err
		}
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.bboKey, bboFields(top))
		if r.ttl > 0 {
			pipe.Expire(ctx, r.bboKey, r.ttl)
		}
		if depth != nil {
			pipe.Set(ctx, r.depthKey, depth, r.ttl)
		}
		if r.channel != "" {
			pipe.Publish(ctx, r.channel, payload)
		}
		return nil
	})
	return err
}

func (r *Redis) Close(context.Context) error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}
