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

package survey

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func record(bucket RiskBucket, completed bool) ViewRecord {
	return ViewRecord{ID: uuid.New(), RiskBucket: bucket, Completed: completed}
}

func TestAggregateStats(t *testing.T) {
	stats := AggregateStats([]ViewRecord{
		record(Low, true),
		record(Low, true),
		record(High, true),
		record(NoData, false),
	})

	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 3, stats.Completed)
	assert.Equal(t, 2, stats.Count(Low))
	assert.Equal(t, 0, stats.Count(Moderate))
	assert.Equal(t, 1, stats.Count(High))
	assert.Equal(t, 0, stats.Count(VeryHigh))
	assert.Equal(t, 1, stats.Count(NoData))
	assert.Len(t, stats.PerBucket, len(Buckets))
}

func TestAggregatorMemoizesOnIdentity(t *testing.T) {
	var agg Aggregator
	set := NewRecordSet([]ViewRecord{record(Moderate, true)})

	first := agg.Stats(set)
	second := agg.Stats(set)
	assert.Same(t, first, second)
	assert.Equal(t, 1, agg.Computations())

	// Same contents, new identity: recomputed.
	other := NewRecordSet(set.Records)
	third := agg.Stats(other)
	assert.NotSame(t, first, third)
	assert.Equal(t, first, third)
	assert.Equal(t, 2, agg.Computations())
}

func TestAggregatorNilSet(t *testing.T) {
	var agg Aggregator
	stats := agg.Stats(nil)
	assert.Equal(t, 0, stats.Total)
	assert.Same(t, stats, agg.Stats(nil))
}

func TestRecordSetWithout(t *testing.T) {
	a, b := record(Low, true), record(High, true)
	set := NewRecordSet([]ViewRecord{a, b})

	out := set.Without(map[uuid.UUID]struct{}{a.ID: {}})
	assert.Equal(t, 1, out.Len())
	assert.Equal(t, b.ID, out.Records[0].ID)
	assert.Equal(t, 2, set.Len())
}
