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
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/cardinalhq/pulseboard/internal/boundedcache"
	"github.com/cardinalhq/pulseboard/internal/changefeed"
	"github.com/cardinalhq/pulseboard/internal/joinloader"
	"github.com/cardinalhq/pulseboard/internal/notify"
	"github.com/cardinalhq/pulseboard/surveydb"
)

// DeleteOne deletes a single profile and its submission.
func (c *Controller) DeleteOne(ctx context.Context, id uuid.UUID) error {
	_, err := c.DeleteMany(ctx, []uuid.UUID{id})
	return err
}

// DeleteSelected deletes every selected profile.
func (c *Controller) DeleteSelected(ctx context.Context) (int64, error) {
	c.mu.Lock()
	ids := c.selection.ToSlice()
	c.mu.Unlock()
	return c.DeleteMany(ctx, ids)
}

// DeleteMany deletes ids in one remote call. Only after it succeeds are
// the rows dropped from the page, the selection cleared and cached pages
// invalidated. On failure a *DeleteError is returned and nothing local
// changes.
func (c *Controller) DeleteMany(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	ctx, span := tracer.Start(ctx, "responses.DeleteMany")
	defer span.End()
	span.SetAttributes(attribute.Int("ids", len(ids)))

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}

	n, err := c.store.DeleteProfilesByIDs(ctx, ids)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete")
		deleteFailures.Add(ctx, 1)
		derr := &DeleteError{IDs: ids, Err: err}
		c.notifier.Notify(ctx, notify.Notice{
			Level:   notify.LevelError,
			Op:      "delete",
			Message: "Could not delete the selected responses",
			Err:     derr,
			At:      time.Now(),
		})
		return 0, derr
	}
	rowsDeleted.Add(ctx, n)

	drop := make(map[uuid.UUID]struct{}, len(ids))
	keys := make([]string, len(ids))
	for i, id := range ids {
		drop[id] = struct{}{}
		keys[i] = id.String()
	}

	c.mu.Lock()
	c.records = c.records.Without(drop)
	c.window = joinloader.NewWindow(c.window.PageIndex, c.window.PageSize, c.window.TotalItems-n)
	c.selection.Clear()
	c.epoch++
	c.stale = false
	c.pages.Cache().DeleteFunc(boundedcache.QueryPrefix(pageQuery))
	c.mu.Unlock()

	slog.Info("Deleted responses", slog.Int64("rows", n), slog.Int("requested", len(ids)))

	if c.publisher != nil {
		ev := changefeed.Event{
			Topic: surveydb.ProfilesTable,
			Kind:  changefeed.KindDelete,
			Keys:  keys,
			At:    time.Now(),
		}
		if err := c.publisher.Publish(ctx, ev); err != nil {
			slog.Warn("Failed to announce delete on the change feed", slog.Any("error", err))
		}
	}
	return n, nil
}
