package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Claimer reserves client-supplied idempotency keys for ingestion requests.
type Claimer interface {
	// Claim reserves key. It returns false when the key was already claimed
	// within its TTL.
	Claim(ctx context.Context, key string) (bool, error)
	// Release frees a key whose request persisted nothing.
	Release(ctx context.Context, key string) error
}

// RedisClaimer stores keys with SET NX and a TTL, so concurrent API instances
// sharing one redis agree on which request owns a key.
type RedisClaimer struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisClaimer returns a claimer over client. Keys expire after ttl.
func NewRedisClaimer(client *redis.Client, ttl time.Duration) *RedisClaimer {
	return &RedisClaimer{client: client, ttl: ttl, prefix: "mailqueue:idem:"}
}

func (c *RedisClaimer) key(k string) string {
	return c.prefix + k
}

func (c *RedisClaimer) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := c.client.SetNX(ctx, c.key(key), time.Now().UTC().Format(time.RFC3339), c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim idempotency key: %w", err)
	}
	return ok, nil
}

func (c *RedisClaimer) Release(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

// NopClaimer accepts every key. Used when no redis address is configured.
type NopClaimer struct{}

func (NopClaimer) Claim(context.Context, string) (bool, error) { return true, nil }
func (NopClaimer) Release(context.Context, string) error        { return nil }

var (
	_ Claimer = (*RedisClaimer)(nil)
	_ Claimer = NopClaimer{}
)
