package sink

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions holds connection parameters and key layout for the Redis sink.
type RedisOptions struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	TLSEnabled bool
	KeyPrefix  string
	Channel    string
	TTL        time.Duration
}

type txPipeliner interface {
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
	Close() error
}

// RedisSink stores each element's latest display in a hash and publishes
// the update for live subscribers.
type RedisSink struct {
	rdb  txPipeliner
	opts RedisOptions
}

// NewRedisSink connects and pings Redis.
func NewRedisSink(ctx context.Context, opts RedisOptions) (*RedisSink, error) {
	ropts := &redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	}
	if opts.TLSEnabled {
		ropts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(ropts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return newRedisSink(rdb, opts), nil
}

func newRedisSink(rdb txPipeliner, opts RedisOptions) *RedisSink {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "display:"
	}
	return &RedisSink{rdb: rdb, opts: opts}
}

// Present writes the display hash and publishes it in one transaction.
func (r *RedisSink) Present(ctx context.Context, d Display) error {
	key := r.opts.KeyPrefix + d.ElementID
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("redis: marshal display: %w", err)
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, displayFields(d))
		if r.opts.TTL > 0 {
			pipe.Expire(ctx, key, r.opts.TTL)
		}
		if r.opts.Channel != "" {
			pipe.Publish(ctx, r.opts.Channel, payload)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: present %s: %w", d.ElementID, err)
	}
	return nil
}

// Close closes the Redis connection.
func (r *RedisSink) Close() error {
	return r.rdb.Close()
}

func displayFields(d Display) map[string]any {
	return map[string]any{
		"instrument": d.Instrument,
		"direction":  d.Direction,
		"text":       d.Text,
		"tier":       d.Tier,
		"glyph":      d.Glyph,
		"error":      strconv.FormatBool(d.Error),
		"tick_id":    d.TickID,
		"ts":         strconv.FormatInt(d.At.UnixMilli(), 10),
	}
}

var _ Sink = (*RedisSink)(nil)
