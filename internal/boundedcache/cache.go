// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package boundedcache is a strict-LRU key/value store with a fixed
// capacity. Entries remember when they were written; validity against a
// time-to-live is decided at lookup time, so an expired entry remains
// present (and distinguishable from a miss) until it is evicted, deleted
// or cleared.
package boundedcache

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DefaultMaxSize is used when a non-positive capacity is requested.
const DefaultMaxSize = 50

// Entry is a stored value and its write time.
type Entry[V any] struct {
	Value     V
	CreatedAt time.Time
}

// Valid reports whether the entry is younger than ttl at now.
// A non-positive ttl means entries never go stale.
func (e Entry[V]) Valid(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return true
	}
	return now.Sub(e.CreatedAt) < ttl
}

// State is the outcome of a Lookup.
type State int

const (
	Missing State = iota
	Fresh
	Stale
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "missing"
	}
}

// Stats is a snapshot of the cache counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Size      int
	MaxSize   int
}

// Cache is safe for concurrent use.
type Cache[V any] struct {
	mu      sync.Mutex
	items   *ttlcache.Cache[string, Entry[V]]
	maxSize int
	ttl     time.Duration
	now     func() time.Time
	name    attribute.KeyValue

	hits      uint64
	misses    uint64
	evictions uint64
}

// Option configures a Cache.
type Option[V any] func(*Cache[V])

// WithTTL sets the validity window used by Lookup.
func WithTTL[V any](ttl time.Duration) Option[V] {
	return func(c *Cache[V]) { c.ttl = ttl }
}

// WithClock overrides the time source used for CreatedAt and Lookup.
func WithClock[V any](now func() time.Time) Option[V] {
	return func(c *Cache[V]) { c.now = now }
}

// WithName labels the exported metrics.
func WithName[V any](name string) Option[V] {
	return func(c *Cache[V]) { c.name = attribute.String("cache", name) }
}

// New creates a cache holding at most maxSize entries.
func New[V any](maxSize int, opts ...Option[V]) *Cache[V] {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	c := &Cache[V]{
		maxSize: maxSize,
		now:     time.Now,
		name:    attribute.String("cache", "default"),
	}
	for _, opt := range opts {
		opt(c)
	}
	// No TTL is configured on the underlying cache: expiry is a lookup
	// concern here, and ttlcache would otherwise hide expired entries.
	c.items = ttlcache.New(
		ttlcache.WithCapacity[string, Entry[V]](uint64(maxSize)),
	)
	return c
}

// Get returns the value for key and promotes it to most recently used.
// Staleness is ignored.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item := c.items.Get(key)
	if item == nil {
		c.recordMiss()
		var zero V
		return zero, false
	}
	c.recordHit()
	return item.Value().Value, true
}

// Lookup returns the entry for key, promoting it, together with whether
// it is fresh or stale against the configured TTL.
func (c *Cache[V]) Lookup(key string) (Entry[V], State) {
	return c.LookupAt(key, c.now())
}

// LookupAt is Lookup evaluated at an explicit instant.
func (c *Cache[V]) LookupAt(key string, now time.Time) (Entry[V], State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item := c.items.Get(key)
	if item == nil {
		c.recordMiss()
		return Entry[V]{}, Missing
	}
	c.recordHit()
	entry := item.Value()
	if entry.Valid(now, c.ttl) {
		return entry, Fresh
	}
	return entry, Stale
}

// Set stores value under key and promotes it. Inserting a new key into a
// full cache first evicts the single least recently used entry.
func (c *Cache[V]) Set(key string, value V) {
	c.SetAt(key, value, c.now())
}

// SetAt is Set with an explicit write time.
func (c *Cache[V]) SetAt(key string, value V, createdAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.items.Has(key) && c.items.Len() >= c.maxSize {
		c.evictions++
		cacheEvictions.Add(context.Background(), 1, metric.WithAttributes(c.name))
	}
	c.items.Set(key, Entry[V]{Value: value, CreatedAt: createdAt}, ttlcache.NoTTL)
}

// Has reports presence without promoting and without regard to staleness.
func (c *Cache[V]) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items.Has(key)
}

// Delete removes key and reports whether it was present.
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.items.Has(key) {
		return false
	}
	c.items.Delete(key)
	return true
}

// DeleteFunc removes every key for which match returns true and returns
// how many were removed.
func (c *Cache[V]) DeleteFunc(match func(key string) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, key := range c.items.Keys() {
		if match(key) {
			c.items.Delete(key)
			removed++
		}
	}
	return removed
}

// Clear removes every entry. Counters are kept.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.DeleteAll()
}

// Size returns the number of present entries, stale ones included.
func (c *Cache[V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items.Len()
}

// TTL returns the validity window used by Lookup.
func (c *Cache[V]) TTL() time.Duration {
	return c.ttl
}

// Stats returns a snapshot of the counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Size:      c.items.Len(),
		MaxSize:   c.maxSize,
	}
}

func (c *Cache[V]) recordHit() {
	c.hits++
	cacheHits.Add(context.Background(), 1, metric.WithAttributes(c.name))
}

func (c *Cache[V]) recordMiss() {
	c.misses++
	cacheMisses.Add(context.Background(), 1, metric.WithAttributes(c.name))
}
