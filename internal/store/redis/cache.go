package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"marketchart/internal/metrics"
	"marketchart/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	barsKeyPrefix  = "chart:bars:"
	maxBarsTTL     = time.Hour
	redisOpTimeout = 2 * time.Second
)

// PriceCache is a cache-aside model.PriceSource in front of another source.
// Redis errors never fail a fetch: the breaker opens and fetches go
// straight to the next source until Redis recovers.
type PriceCache struct {
	kv      KV
	next    model.PriceSource
	cb      *CircuitBreaker
	metrics *metrics.Metrics // optional
}

// NewPriceCache wraps next with a Redis cache. m may be nil.
func NewPriceCache(kv KV, next model.PriceSource, cb *CircuitBreaker, m *metrics.Metrics) *PriceCache {
	if cb == nil {
		cb = NewCircuitBreaker(5, 10*time.Second)
	}
	if m != nil {
		cb.OnStateChange = func(from, to State) {
			m.RedisCircuitBreakerState.Set(float64(to))
			if to == StateOpen {
				m.RedisCircuitBreakerTrips.Inc()
			}
			log.Printf("[redis] circuit breaker %s -> %s", from, to)
		}
	}
	return &PriceCache{kv: kv, next: next, cb: cb, metrics: m}
}

// BarsKey returns the cache key of one fetch window.
func BarsKey(ticker string, tf model.Timeframe, from, to int64) string {
	return fmt.Sprintf("%s%s:%s:%d:%d", barsKeyPrefix, ticker, tf, from, to)
}

// BarsTTL is one bar step, capped at an hour. Windows are aligned to the
// bar step, so a cached window is superseded by a new key once the next
// bar opens.
func BarsTTL(tf model.Timeframe) time.Duration {
	ttl := tf.Step()
	if ttl <= 0 || ttl > maxBarsTTL {
		return maxBarsTTL
	}
	return ttl
}

// FetchPriceHistory implements model.PriceSource.
func (c *PriceCache) FetchPriceHistory(ctx context.Context, ticker string, from, to int64, tf model.Timeframe) ([]model.PricePoint, error) {
	key := BarsKey(ticker, tf, from, to)

	if bars, ok := c.get(ctx, key); ok {
		c.count(true)
		return bars, nil
	}
	c.count(false)

	bars, err := c.next.FetchPriceHistory(ctx, ticker, from, to, tf)
	if err != nil {
		return nil, err
	}
	if len(bars) > 0 {
		c.set(ctx, key, bars, BarsTTL(tf))
	}
	return bars, nil
}

func (c *PriceCache) get(ctx context.Context, key string) ([]model.PricePoint, bool) {
	var raw []byte
	err := c.cb.Execute(func() error {
		opCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
		defer cancel()
		b, err := c.kv.Get(opCtx, key).Bytes()
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		raw = b
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrCircuitOpen) {
			log.Printf("[redis] cache get %s: %v", key, err)
		}
		return nil, false
	}
	if raw == nil {
		return nil, false
	}
	var bars []model.PricePoint
	if err := json.Unmarshal(raw, &bars); err != nil {
		log.Printf("[redis] corrupt cache entry %s: %v", key, err)
		return nil, false
	}
	return bars, true
}

func (c *PriceCache) set(ctx context.Context, key string, bars []model.PricePoint, ttl time.Duration) {
	data, err := json.Marshal(bars)
	if err != nil {
		return
	}
	err = c.cb.Execute(func() error {
		opCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
		defer cancel()
		return c.kv.Set(opCtx, key, data, ttl).Err()
	})
	if err != nil && !errors.Is(err, ErrCircuitOpen) {
		log.Printf("[redis] cache set %s: %v", key, err)
	}
}

func (c *PriceCache) count(hit bool) {
	if c.metrics == nil {
		return
	}
	if hit {
		c.metrics.CacheHits.Inc()
	} else {
		c.metrics.CacheMisses.Inc()
	}
}
