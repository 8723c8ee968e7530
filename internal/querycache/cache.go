// Package querycache stores normalized parse results keyed by content hash.
// Entries expire after a TTL and are evicted past a maximum size in recency
// order; concurrent misses for identical text collapse to a single parse.
package querycache

import (
	"context"

	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/simple-platform/grasql-sub001/internal/gqlparse"
	"github.com/simple-platform/grasql-sub001/internal/observability"
)

// ParseFunc parses query text into a normalized query.
type ParseFunc func(text string) (*gqlparse.ParsedQuery, error)

// Cache is the parse cache. Safe for unbounded concurrent use.
type Cache struct {
	entries *expirable.LRU[string, *gqlparse.ParsedQuery]
	group   singleflight.Group
	parse   ParseFunc
	metrics *observability.Metrics
}

// New builds a cache holding at most size entries for at most ttl each.
// metrics may be nil.
func New(size int, ttl time.Duration, parse ParseFunc, metrics *observability.Metrics) *Cache {
	return &Cache{
		entries: expirable.NewLRU[string, *gqlparse.ParsedQuery](size, nil, ttl),
		parse:   parse,
		metrics: metrics,
	}
}

// GetOrParse returns the cached query for text, parsing it on a miss. The
// hit result reports whether a parse was avoided. Parse failures are
// propagated to every caller waiting on the same text and never cached.
func (c *Cache) GetOrParse(ctx context.Context, text string) (*gqlparse.ParsedQuery, bool, error) {
	handle := gqlparse.FormatHandle(gqlparse.HashQuery(text))
	if pq, ok := c.entries.Get(handle); ok {
		c.metrics.ParseCacheLookup(ctx, true)
		return pq, true, nil
	}
	c.metrics.ParseCacheLookup(ctx, false)

	v, err, shared := c.group.Do(handle, func() (any, error) {
		// A winner may have populated the entry between the Get above and
		// this flight starting.
		if pq, ok := c.entries.Get(handle); ok {
			return pq, nil
		}
		pq, err := c.parse(text)
		if err != nil {
			return nil, err
		}
		c.entries.Add(handle, pq)
		return pq, nil
	})
	if shared {
		c.metrics.SharedFlight(ctx, "parse")
	}
	if err != nil {
		return nil, false, err
	}
	return v.(*gqlparse.ParsedQuery), false, nil
}

// Lookup returns the cached query for a previously issued handle. A handle
// whose entry expired or was evicted misses, and the caller must re-submit
// the original text.
func (c *Cache) Lookup(handle string) (*gqlparse.ParsedQuery, bool) {
	return c.entries.Get(handle)
}

// Len reports the current entry count, excluding expired entries.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Purge drops every entry. Used when the engine is re-initialized.
func (c *Cache) Purge() {
	c.entries.Purge()
}
