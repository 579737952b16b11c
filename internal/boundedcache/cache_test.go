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

package boundedcache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUEvictsLeastRecentlyTouched(t *testing.T) {
	c := New[int](3)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	c.Set("d", 4)

	assert.False(t, c.Has("a"), "oldest entry is evicted")
	assert.True(t, c.Has("b"))
	assert.True(t, c.Has("c"))
	assert.True(t, c.Has("d"))
	assert.Equal(t, 3, c.Size())
	assert.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestLRUGetProtectsFromEviction(t *testing.T) {
	c := New[int](3)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("d", 4)

	assert.True(t, c.Has("a"))
	assert.False(t, c.Has("b"), "b became least recently used")
}

func TestLRUSetPromotesExistingKey(t *testing.T) {
	c := New[int](2)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 10)

	c.Set("c", 3)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 10, v)
	assert.False(t, c.Has("b"))
	assert.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestHasDoesNotPromote(t *testing.T) {
	c := New[int](2)
	c.Set("a", 1)
	c.Set("b", 2)

	assert.True(t, c.Has("a"))
	c.Set("c", 3)

	assert.False(t, c.Has("a"))
}

func TestOverwriteOnFullCacheDoesNotEvict(t *testing.T) {
	c := New[int](2)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("b", 3)

	assert.Equal(t, 2, c.Size())
	assert.True(t, c.Has("a"))
	assert.Equal(t, uint64(0), c.Stats().Evictions)
}

func TestCapacityNeverExceeded(t *testing.T) {
	c := New[int](5)
	for i := range 100 {
		c.Set(fmt.Sprintf("k%d", i), i)
		assert.LessOrEqual(t, c.Size(), 5)
	}
	for i := 95; i < 100; i++ {
		assert.True(t, c.Has(fmt.Sprintf("k%d", i)))
	}
}

func TestTTLStaleness(t *testing.T) {
	ttl := 10 * time.Second
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New[string](4, WithTTL[string](ttl))

	c.SetAt("k", "v", t0)

	entry, state := c.LookupAt("k", t0.Add(ttl-time.Millisecond))
	assert.Equal(t, Fresh, state)
	assert.Equal(t, "v", entry.Value)

	entry, state = c.LookupAt("k", t0.Add(ttl+time.Millisecond))
	assert.Equal(t, Stale, state)
	assert.Equal(t, "v", entry.Value)
	assert.Equal(t, t0, entry.CreatedAt)

	assert.True(t, c.Has("k"), "expired entries stay present")
	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	_, state = c.LookupAt("missing", t0)
	assert.Equal(t, Missing, state)
}

func TestTTLUsesClock(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	c := New[int](2, WithTTL[int](time.Minute), WithClock[int](clock))

	c.Set("k", 1)
	_, state := c.Lookup("k")
	assert.Equal(t, Fresh, state)

	now = now.Add(time.Minute)
	_, state = c.Lookup("k")
	assert.Equal(t, Stale, state)
}

func TestDeleteClearSize(t *testing.T) {
	c := New[int](4)
	c.Set("a", 1)
	c.Set("b", 2)

	assert.True(t, c.Delete("a"))
	assert.False(t, c.Delete("a"))
	assert.Equal(t, 1, c.Size())

	c.Clear()
	assert.Equal(t, 0, c.Size())
	assert.False(t, c.Has("b"))
}

func TestDeleteFunc(t *testing.T) {
	c := New[int](8)
	c.Set(Key("responses.page", map[string]any{"page": 0}), 1)
	c.Set(Key("responses.page", map[string]any{"page": 1}), 2)
	c.Set("responses.pages", 3)
	c.Set("other", 4)

	removed := c.DeleteFunc(QueryPrefix("responses.page"))
	assert.Equal(t, 2, removed)
	assert.True(t, c.Has("responses.pages"))
	assert.True(t, c.Has("other"))
}

func TestHitMissCounters(t *testing.T) {
	c := New[int](2)
	c.Set("a", 1)
	_, _ = c.Get("a")
	_, _ = c.Get("b")
	_, _ = c.Lookup("a")

	stats := c.Stats()
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 2, stats.MaxSize)
}

func TestNonPositiveCapacityUsesDefault(t *testing.T) {
	c := New[int](0)
	assert.Equal(t, DefaultMaxSize, c.Stats().MaxSize)
}

func TestKeyNormalization(t *testing.T) {
	a := Key("responses.page", map[string]any{"page": 2, "size": 50})
	b := Key("responses.page", map[string]any{"size": 50, "page": 2})
	assert.Equal(t, a, b)
	assert.Equal(t, "responses.page?page=2&size=50", a)
	assert.Equal(t, "stats", Key("stats", nil))
	assert.NotEqual(t, a, Key("responses.page", map[string]any{"page": 3, "size": 50}))
}

func TestKeyNamesAreCaseInsensitive(t *testing.T) {
	assert.Equal(t,
		"responses.page?page=2&size=50",
		Key("responses.page", map[string]any{"Size": 50, "page": 2}),
		"sorted after lowercasing")
	assert.Equal(t, Key("q", map[string]any{"Page": 1}), Key("q", map[string]any{"page": 1}))

	mixed := Key("q", map[string]any{"Page": 1, "page": 2})
	assert.Equal(t, "q?page=1&page=2", mixed, "case twins are both kept")
	assert.NotEqual(t, mixed, Key("q", map[string]any{"Page": 2, "page": 1}))
}
