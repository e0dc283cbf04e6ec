package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"candlekeeper/internal/model"
)

// DefaultQuoteTTL bounds how long a cached quote outlives its stream.
const DefaultQuoteTTL = 2 * time.Minute

// PriceCache keeps the most recent quote per symbol in Redis.
type PriceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPriceCache creates a cache over an existing Redis client.
// A non-positive ttl falls back to DefaultQuoteTTL.
func NewPriceCache(client *redis.Client, ttl time.Duration) *PriceCache {
	if ttl <= 0 {
		ttl = DefaultQuoteTTL
	}
	return &PriceCache{client: client, ttl: ttl}
}

func quoteKey(symbol string) string {
	return "latest:" + symbol
}

// SetLatest stores a quote at latest:<symbol> with the cache TTL.
func (c *PriceCache) SetLatest(ctx context.Context, q model.Quote) error {
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("marshal quote %s: %w", q.Symbol, err)
	}
	if err := c.client.Set(ctx, quoteKey(q.Symbol), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set latest %s: %w", q.Symbol, err)
	}
	return nil
}

// GetLatest fetches the cached quote for a symbol. The boolean is false
// on a cache miss.
func (c *PriceCache) GetLatest(ctx context.Context, symbol string) (model.Quote, bool, error) {
	data, err := c.client.Get(ctx, quoteKey(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Quote{}, false, nil
	}
	if err != nil {
		return model.Quote{}, false, fmt.Errorf("get latest %s: %w", symbol, err)
	}

	var q model.Quote
	if err := json.Unmarshal(data, &q); err != nil {
		return model.Quote{}, false, fmt.Errorf("unmarshal quote %s: %w", symbol, err)
	}
	return q, true, nil
}

// Ping verifies the Redis connection.
func (c *PriceCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
