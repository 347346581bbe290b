package rates

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cached memoizes a Lookup per (date, currency). Misses are not cached so a
// source that recovers mid-run is picked up on the next transaction.
type Cached struct {
	next  Lookup
	cache *lru.Cache[string, float64]
}

// NewCached wraps next with an LRU of the given size.
func NewCached(next Lookup, size int) (*Cached, error) {
	if size <= 0 {
		size = 512
	}
	c, err := lru.New[string, float64](size)
	if err != nil {
		return nil, err
	}
	return &Cached{next: next, cache: c}, nil
}

// Rate implements Lookup.
func (c *Cached) Rate(ctx context.Context, date time.Time, currency string) (float64, bool) {
	key := date.Format("2006-01-02") + "|" + normalizeCurrency(currency)
	if rate, ok := c.cache.Get(key); ok {
		return rate, true
	}

	rate, ok := c.next.Rate(ctx, date, currency)
	if ok {
		c.cache.Add(key, rate)
	}
	return rate, ok
}

// Len returns the number of cached entries.
func (c *Cached) Len() int {
	return c.cache.Len()
}
