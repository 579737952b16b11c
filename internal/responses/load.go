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

package responses

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/pulseboard/internal/boundedcache"
	"github.com/cardinalhq/pulseboard/internal/joinloader"
	"github.com/cardinalhq/pulseboard/internal/notify"
)

var tracer = otel.Tracer("github.com/cardinalhq/pulseboard/responses")

func (c *Controller) pageKey(pageIndex int) string {
	return boundedcache.Key(pageQuery, map[string]any{
		"page": pageIndex,
		"size": c.opts.PageSize,
	})
}

// LoadPage shows pageIndex. A fresh cached page is shown without I/O; a
// stale one is shown immediately and replaced when its background refresh
// lands. Starting a load cancels the previous one, and a load that was
// overtaken returns ErrSuperseded without touching the view.
func (c *Controller) LoadPage(ctx context.Context, pageIndex int) error {
	ctx, span := tracer.Start(ctx, "responses.LoadPage")
	defer span.End()
	span.SetAttributes(attribute.Int("page_index", pageIndex))

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.cancelLoad != nil {
		c.cancelLoad()
	}
	if pageIndex != c.requested && c.scheduler.Cancel() {
		// A reconciliation was pending; whatever is cached may predate it.
		c.pages.Cache().DeleteFunc(boundedcache.QueryPrefix(pageQuery))
	}
	c.gen++
	gen, epoch := c.gen, c.epoch
	c.requested = pageIndex
	c.loading = true
	ctx, cancel := context.WithCancel(ctx)
	c.cancelLoad = cancel
	c.mu.Unlock()
	defer cancel()

	key := c.pageKey(pageIndex)
	page, state, err := c.pages.Get(ctx, key,
		func(ctx context.Context) (joinloader.Page, error) {
			return c.loader.LoadPage(ctx, pageIndex)
		},
		func(page joinloader.Page, err error) {
			c.applyRefresh(gen, epoch, page, err)
		},
	)
	span.SetAttributes(attribute.String("cache", state.String()))

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if gen != c.gen {
		c.mu.Unlock()
		loadsDiscarded.Add(ctx, 1)
		slog.Debug("Discarding superseded page load", slog.Int("page", pageIndex))
		return ErrSuperseded
	}
	c.loading = false
	c.cancelLoad = nil
	if err != nil {
		c.lastErr = err
		c.mu.Unlock()
		span.RecordError(err)
		span.SetStatus(codes.Error, "load page")
		if errors.Is(err, context.Canceled) {
			return err
		}
		c.notifier.Notify(ctx, notify.Notice{
			Level:   notify.LevelError,
			Op:      "load_page",
			Message: "Could not load responses, try again",
			Err:     err,
			At:      time.Now(),
		})
		return err
	}
	c.showLocked(page)
	c.stale = state == boundedcache.Stale
	c.lastErr = nil
	c.mu.Unlock()

	pageLoads.Add(ctx, 1, metric.WithAttributes(attribute.String("cache", state.String())))
	return nil
}

// showLocked replaces the current page and keeps only the selected ids
// still on it.
func (c *Controller) showLocked(page joinloader.Page) {
	c.records = page.Records
	c.window = page.Window
	if c.selection.Cardinality() == 0 {
		return
	}
	c.selection = c.selection.Intersect(recordIDs(page.Records.Records))
}

func (c *Controller) applyRefresh(gen, epoch uint64, page joinloader.Page, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.gen || epoch != c.epoch {
		return
	}
	c.stale = false
	if err != nil {
		slog.Warn("Stale page kept after failed refresh", slog.Any("error", err))
		return
	}
	c.showLocked(page)
}

// NextPage loads the page after the current one, if there is one.
func (c *Controller) NextPage(ctx context.Context) error {
	c.mu.Lock()
	w := c.window
	c.mu.Unlock()
	if !w.HasNext() {
		return nil
	}
	return c.LoadPage(ctx, w.PageIndex+1)
}

// PrevPage loads the page before the current one, if there is one.
func (c *Controller) PrevPage(ctx context.Context) error {
	c.mu.Lock()
	w := c.window
	c.mu.Unlock()
	if !w.HasPrev() {
		return nil
	}
	return c.LoadPage(ctx, w.PageIndex-1)
}

// GoToPage loads pageIndex clamped to the known page range.
func (c *Controller) GoToPage(ctx context.Context, pageIndex int) error {
	c.mu.Lock()
	w := c.window
	c.mu.Unlock()
	if w.TotalPages > 0 {
		pageIndex = joinloader.ClampPage(pageIndex, w.TotalPages)
	} else {
		pageIndex = max(pageIndex, 0)
	}
	return c.LoadPage(ctx, pageIndex)
}

// Refresh drops every cached page and reloads the requested one.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	idx := c.requested
	c.pages.Cache().DeleteFunc(boundedcache.QueryPrefix(pageQuery))
	c.mu.Unlock()
	return c.LoadPage(ctx, idx)
}

// reconcile is the scheduler's reload. An inactive view only invalidates.
func (c *Controller) reconcile(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.pages.Cache().DeleteFunc(boundedcache.QueryPrefix(pageQuery))
	if !c.active {
		c.mu.Unlock()
		slog.Debug("View inactive, reconciliation only invalidated the cache")
		return nil
	}
	idx := c.requested
	c.mu.Unlock()

	err := c.LoadPage(ctx, idx)
	if errors.Is(err, ErrSuperseded) || errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}
