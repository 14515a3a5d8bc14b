package verification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable signals the verification channel could not answer. Callers may retry.
var ErrUnavailable = errors.New("verification channel unavailable")

const keyPrefix = "verification:v1:"

// Gateway reports whether ownership of a canonical phone number has been confirmed.
type Gateway interface {
	IsVerified(ctx context.Context, phone string) (bool, error)
}

// RedisGateway keeps confirmed phones in Redis. Confirmations arrive through
// the provider webhook; lookups are a single EXISTS.
type RedisGateway struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisGateway builds a gateway over client. A zero ttl keeps confirmations indefinitely.
func NewRedisGateway(client *redis.Client, ttl time.Duration) *RedisGateway {
	return &RedisGateway{client: client, ttl: ttl}
}

func (g *RedisGateway) IsVerified(ctx context.Context, phone string) (bool, error) {
	n, err := g.client.Exists(ctx, keyPrefix+phone).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}

// Confirm records that the provider confirmed ownership of phone.
func (g *RedisGateway) Confirm(ctx context.Context, phone string) error {
	if err := g.client.Set(ctx, keyPrefix+phone, time.Now().UTC().Format(time.RFC3339), g.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// StaticGateway answers from a fixed allow-list. Used in development and tests.
type StaticGateway struct {
	mu     sync.RWMutex
	phones map[string]struct{}
}

// NewStaticGateway seeds the allow-list with already-canonical phone numbers.
func NewStaticGateway(phones ...string) *StaticGateway {
	g := &StaticGateway{phones: make(map[string]struct{}, len(phones))}
	for _, p := range phones {
		g.phones[p] = struct{}{}
	}
	return g
}

func (g *StaticGateway) IsVerified(_ context.Context, phone string) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.phones[phone]
	return ok, nil
}

// Confirm adds phone to the allow-list.
func (g *StaticGateway) Confirm(_ context.Context, phone string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.phones[phone] = struct{}{}
	return nil
}
