package metrics

import (
	"context"

	"operadoras/internal/cache"
)

// InstrumentedCache counts hits and misses of an underlying cache.
type InstrumentedCache[T any] struct {
	cache.Cache[T]
	m *Metrics
}

// WrapCache returns c with lookups recorded on m.
func WrapCache[T any](c cache.Cache[T], m *Metrics) *InstrumentedCache[T] {
	return &InstrumentedCache[T]{Cache: c, m: m}
}

func (c *InstrumentedCache[T]) Get(ctx context.Context, key string) (T, bool) {
	v, ok := c.Cache.Get(ctx, key)
	if ok {
		c.m.CacheHit()
	} else {
		c.m.CacheMiss()
	}
	return v, ok
}
