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
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"

	"github.com/cardinalhq/pulseboard/internal/changefeed"
	"github.com/cardinalhq/pulseboard/internal/joinloader"
	"github.com/cardinalhq/pulseboard/internal/projection"
	"github.com/cardinalhq/pulseboard/internal/survey"
)

// Snapshot is everything the view renders.
type Snapshot struct {
	// Records is the current page filtered and sorted.
	Records []survey.ViewRecord
	Window  joinloader.Window
	Filter  projection.FilterSpec
	Sort    projection.SortSpec
	// Stats summarizes the whole current page, ignoring the filter.
	Stats    *survey.Stats
	Selected []uuid.UUID

	Loading bool
	// Stale is set while a cached page past its TTL is shown and its
	// refresh has not landed yet.
	Stale bool
	Err   error

	Live changefeed.State
	// LiveUnavailable is set once the change feed gave up reconnecting.
	LiveUnavailable bool
}

func (c *Controller) View() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	selected := c.selection.ToSlice()
	slices.SortFunc(selected, func(a, b uuid.UUID) int {
		return strings.Compare(a.String(), b.String())
	})
	return Snapshot{
		Records:         c.memo.Project(c.records, c.filter, c.sort),
		Window:          c.window,
		Filter:          c.filter,
		Sort:            c.sort,
		Stats:           c.agg.Stats(c.records),
		Selected:        selected,
		Loading:         c.loading,
		Stale:           c.stale,
		Err:             c.lastErr,
		Live:            c.live,
		LiveUnavailable: c.liveLost,
	}
}

// Search sets the free-text filter. An empty term matches everything.
func (c *Controller) Search(term string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filter.SearchTerm = term
}

// SetCategoricalFilter restricts the view to one risk bucket, or to all
// of them with projection.AllBuckets.
func (c *Controller) SetCategoricalFilter(value string) error {
	if value == "" {
		value = projection.AllBuckets
	}
	if err := projection.ValidateBucket(value); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filter.Bucket = value
	return nil
}

func (c *Controller) SetSort(spec projection.SortSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sort = spec
	return nil
}

// Record returns the record with id from the current page.
func (c *Controller) Record(id uuid.UUID) (survey.ViewRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.records.Records {
		if r.ID == id {
			return r, nil
		}
	}
	return survey.ViewRecord{}, ErrNotFound
}

// Select adds id to the multi-selection. Only records on the current page
// can be selected.
func (c *Controller) Select(id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !recordIDs(c.records.Records).Contains(id) {
		return ErrNotFound
	}
	c.selection.Add(id)
	return nil
}

func (c *Controller) Deselect(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selection.Remove(id)
}

// SelectAll selects every record currently visible after filtering.
func (c *Controller) SelectAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	visible := c.memo.Project(c.records, c.filter, c.sort)
	for _, r := range visible {
		c.selection.Add(r.ID)
	}
}

func (c *Controller) ClearSelection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selection.Clear()
}

func recordIDs(records []survey.ViewRecord) mapset.Set[uuid.UUID] {
	ids := mapset.NewThreadUnsafeSetWithSize[uuid.UUID](len(records))
	for _, r := range records {
		ids.Add(r.ID)
	}
	return ids
}
