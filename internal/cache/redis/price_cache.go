package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jacattac314/Titan-Finance/internal/domain"
)

// defaultQuoteTTL bounds how long a quote may serve as an execution
// fallback price. Past it the engine falls back to the request price or
// rejects, rather than filling against a price from a halted stream.
const defaultQuoteTTL = 5 * time.Minute

// PriceCache implements domain.PriceCache. Each symbol's last trade price is
// a plain string value at "quote:{symbol}" with a TTL, so staleness is
// enforced by Redis expiry instead of timestamp bookkeeping on the readers.
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPriceCache creates a PriceCache with the default quote TTL.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying(), ttl: defaultQuoteTTL}
}

// NewPriceCacheWithTTL creates a PriceCache with a custom quote TTL. A
// non-positive ttl disables expiry.
func NewPriceCacheWithTTL(c *Client, ttl time.Duration) *PriceCache {
	if ttl < 0 {
		ttl = 0
	}
	return &PriceCache{rdb: c.Underlying(), ttl: ttl}
}

func quoteKey(symbol string) string {
	return "quote:" + symbol
}

// SetTrade records the tick's price as the symbol's live quote. Quote ticks
// and invalid prices are ignored; only trade prints move the quote.
func (pc *PriceCache) SetTrade(ctx context.Context, tick domain.Tick) error {
	if tick.Type != domain.TickTypeTrade || !tick.Valid() {
		return nil
	}

	value := strconv.FormatFloat(tick.Price, 'f', -1, 64)
	if err := pc.rdb.Set(ctx, quoteKey(tick.Symbol), value, pc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", tick.Symbol, err)
	}
	return nil
}

// LastPrice returns the symbol's live quote. A symbol that never traded or
// whose quote has expired returns domain.ErrNotFound.
func (pc *PriceCache) LastPrice(ctx context.Context, symbol string) (float64, error) {
	value, err := pc.rdb.Get(ctx, quoteKey(symbol)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("redis: get quote %s: %w", symbol, err)
	}

	price, err := strconv.ParseFloat(value, 64)
	if err != nil || price <= 0 {
		return 0, domain.ErrNotFound
	}
	return price, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
