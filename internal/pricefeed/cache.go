package pricefeed

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"predictmarket/internal/metrics"
)

// CachedFeed wraps an upstream Feed with a Redis read-through cache. A
// short TTL keeps sweep cycles from hammering the upstream's rate limit
// while staying fresh enough for target checks.
type CachedFeed struct {
	upstream Feed
	rdb      *redis.Client
	ttl      time.Duration
}

func NewCachedFeed(upstream Feed, rdb *redis.Client, ttl time.Duration) *CachedFeed {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedFeed{upstream: upstream, rdb: rdb, ttl: ttl}
}

func priceKey(symbol string) string {
	return "pricefeed:spot:" + symbol
}

func (f *CachedFeed) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if f.rdb != nil {
		raw, err := f.rdb.Get(ctx, priceKey(symbol)).Result()
		if err == nil {
			if price, perr := decimal.NewFromString(raw); perr == nil {
				metrics.PriceFeedRequests.WithLabelValues("cache_hit").Inc()
				return price, nil
			}
		}
	}

	price, err := f.upstream.GetPrice(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	if f.rdb != nil {
		// Best effort; a cache write failure never fails the read.
		f.rdb.Set(ctx, priceKey(symbol), price.String(), f.ttl)
	}
	return price, nil
}
