package verification

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisGateway_ConfirmThenVerified(t *testing.T) {
	mr, client := newRedis(t)
	g := NewRedisGateway(client, time.Hour)
	ctx := context.Background()

	ok, err := g.IsVerified(ctx, "+15550001111")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, g.Confirm(ctx, "+15550001111"))

	ok, err = g.IsVerified(ctx, "+15550001111")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Hour, mr.TTL(keyPrefix+"+15550001111"))

	mr.FastForward(2 * time.Hour)
	ok, err = g.IsVerified(ctx, "+15550001111")
	require.NoError(t, err)
	assert.False(t, ok, "confirmation should expire with its ttl")
}

func TestRedisGateway_Unavailable(t *testing.T) {
	mr, client := newRedis(t)
	g := NewRedisGateway(client, 0)
	mr.Close()

	_, err := g.IsVerified(context.Background(), "+15550001111")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, g.Confirm(context.Background(), "+15550001111"), ErrUnavailable)
}

func TestStaticGateway(t *testing.T) {
	g := NewStaticGateway("+15550001111")
	ctx := context.Background()

	ok, _ := g.IsVerified(ctx, "+15550001111")
	assert.True(t, ok)
	ok, _ = g.IsVerified(ctx, "+15550002222")
	assert.False(t, ok)

	require.NoError(t, g.Confirm(ctx, "+15550002222"))
	ok, _ = g.IsVerified(ctx, "+15550002222")
	assert.True(t, ok)
}
