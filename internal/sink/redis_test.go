package sink

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingPipe captures the commands queued by RedisSink. Methods it does
// not override panic through the nil embedded interface.
type recordingPipe struct {
	redis.Pipeliner
	hashes    map[string]map[string]any
	expires   map[string]time.Duration
	published map[string][]byte
}

func (p *recordingPipe) HSet(ctx context.Context, key string, values ...any) *redis.IntCmd {
	p.hashes[key] = values[0].(map[string]any)
	return redis.NewIntCmd(ctx)
}

func (p *recordingPipe) Expire(ctx context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	p.expires[key] = ttl
	return redis.NewBoolCmd(ctx)
}

func (p *recordingPipe) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	p.published[channel] = message.([]byte)
	return redis.NewIntCmd(ctx)
}

type fakeTx struct {
	pipe   *recordingPipe
	err    error
	closed bool
}

func (f *fakeTx) TxPipelined(_ context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error) {
	if err := fn(f.pipe); err != nil {
		return nil, err
	}
	return nil, f.err
}

func (f *fakeTx) Close() error {
	f.closed = true
	return nil
}

func newFakeTx() *fakeTx {
	return &fakeTx{pipe: &recordingPipe{
		hashes:    make(map[string]map[string]any),
		expires:   make(map[string]time.Duration),
		published: make(map[string][]byte),
	}}
}

func TestRedisSinkWritesHashExpiryAndPublish(t *testing.T) {
	tx := newFakeTx()
	r := newRedisSink(tx, RedisOptions{KeyPrefix: "sw:", Channel: "displays", TTL: time.Minute})

	d := display("sol-buy", "0.01000")
	d.TickID = "tick-1"
	require.NoError(t, r.Present(context.Background(), d))

	fields, ok := tx.pipe.hashes["sw:sol-buy"]
	require.True(t, ok)
	assert.Equal(t, "0.01000", fields["text"])
	assert.Equal(t, "up", fields["tier"])
	assert.Equal(t, "false", fields["error"])
	assert.Equal(t, "tick-1", fields["tick_id"])
	assert.Equal(t, "1700000000000", fields["ts"])

	assert.Equal(t, time.Minute, tx.pipe.expires["sw:sol-buy"])

	var got Display
	require.NoError(t, json.Unmarshal(tx.pipe.published["displays"], &got))
	assert.Equal(t, "sol-buy", got.ElementID)
	assert.Equal(t, "0.01000", got.Text)

	require.NoError(t, r.Close())
	assert.True(t, tx.closed)
}

func TestRedisSinkSkipsExpiryAndPublishWhenUnset(t *testing.T) {
	tx := newFakeTx()
	r := newRedisSink(tx, RedisOptions{})

	require.NoError(t, r.Present(context.Background(), display("eth-sell", "ERR")))

	assert.Contains(t, tx.pipe.hashes, "display:eth-sell")
	assert.Empty(t, tx.pipe.expires)
	assert.Empty(t, tx.pipe.published)
}

func TestRedisSinkWrapsTransactionError(t *testing.T) {
	tx := newFakeTx()
	tx.err = errors.New("connection reset")
	r := newRedisSink(tx, RedisOptions{Channel: "displays"})

	err := r.Present(context.Background(), display("sol-buy", "0.01"))
	require.ErrorIs(t, err, tx.err)
	assert.Contains(t, err.Error(), "sol-buy")
}
