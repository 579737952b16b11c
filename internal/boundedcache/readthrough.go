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
	"context"
	"errors"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"
)

// LoadFunc fetches the authoritative value for a key.
type LoadFunc[V any] func(ctx context.Context) (V, error)

// RefreshFunc receives the outcome of a background refresh.
type RefreshFunc[V any] func(value V, err error)

// ReadThrough serves values from a Cache, loading on a miss and serving
// stale entries immediately while a background refresh runs.
// Concurrent loads of one key are collapsed into a single call.
type ReadThrough[V any] struct {
	cache *Cache[V]
	group singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReadThrough wraps cache. Background refreshes run until Close.
func NewReadThrough[V any](cache *Cache[V]) *ReadThrough[V] {
	ctx, cancel := context.WithCancel(context.Background())
	return &ReadThrough[V]{cache: cache, ctx: ctx, cancel: cancel}
}

// Cache returns the underlying cache.
func (r *ReadThrough[V]) Cache() *Cache[V] {
	return r.cache
}

// Get returns the value for key.
//   - Fresh: the cached value, no I/O.
//   - Stale: the cached value; load runs in the background and onRefresh
//     (if non-nil) is called with its result.
//   - Missing: load runs synchronously and its result is cached.
//
// The returned State is the state observed before any load.
func (r *ReadThrough[V]) Get(ctx context.Context, key string, load LoadFunc[V], onRefresh RefreshFunc[V]) (V, State, error) {
	entry, state := r.cache.Lookup(key)
	switch state {
	case Fresh:
		return entry.Value, Fresh, nil
	case Stale:
		r.refresh(key, load, onRefresh)
		return entry.Value, Stale, nil
	}

	v, err := r.load(ctx, key, load)
	return v, Missing, err
}

// load runs one flight per key on the context of the caller that started
// it, bounded by Close. A waiter whose flight was cancelled out from under
// it starts a new flight with its own context.
func (r *ReadThrough[V]) load(ctx context.Context, key string, load LoadFunc[V]) (V, error) {
	for {
		if err := ctx.Err(); err != nil {
			var zero V
			return zero, err
		}
		ch := r.group.DoChan(key, func() (any, error) {
			flightCtx, cancel := context.WithCancel(ctx)
			stop := context.AfterFunc(r.ctx, cancel)
			defer func() {
				stop()
				cancel()
			}()

			v, err := load(flightCtx)
			if err != nil {
				return v, err
			}
			r.cache.Set(key, v)
			return v, nil
		})
		select {
		case res := <-ch:
			if res.Err != nil && errors.Is(res.Err, context.Canceled) && ctx.Err() == nil && r.ctx.Err() == nil {
				continue
			}
			v, _ := res.Val.(V)
			return v, res.Err
		case <-ctx.Done():
			var zero V
			return zero, ctx.Err()
		}
	}
}

func (r *ReadThrough[V]) refresh(key string, load LoadFunc[V], onRefresh RefreshFunc[V]) {
	if r.ctx.Err() != nil {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		cacheRefreshes.Add(r.ctx, 1, metric.WithAttributes(r.cache.name))

		v, err := r.load(r.ctx, key, load)
		if err != nil {
			slog.Warn("Background cache refresh failed",
				slog.String("key", key),
				slog.Any("error", err))
		}
		if onRefresh != nil && r.ctx.Err() == nil {
			onRefresh(v, err)
		}
	}()
}

// Invalidate drops key so the next Get loads it.
func (r *ReadThrough[V]) Invalidate(key string) bool {
	return r.cache.Delete(key)
}

// Close cancels in-flight refreshes and waits for them to return.
func (r *ReadThrough[V]) Close() {
	r.cancel()
	r.wg.Wait()
}
