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

import "sync"

// Stats is the reduction of a record set into bucketed counts.
type Stats struct {
	Total     int
	Completed int
	PerBucket map[RiskBucket]int
}

// Count returns the number of records in bucket b.
func (s *Stats) Count(b RiskBucket) int {
	if s == nil {
		return 0
	}
	return s.PerBucket[b]
}

// AggregateStats reduces records into bucket counts. It never fails.
func AggregateStats(records []ViewRecord) *Stats {
	stats := &Stats{
		Total:     len(records),
		PerBucket: make(map[RiskBucket]int, len(Buckets)),
	}
	for _, b := range Buckets {
		stats.PerBucket[b] = 0
	}
	for _, r := range records {
		if r.Completed {
			stats.Completed++
		}
		stats.PerBucket[r.RiskBucket]++
	}
	return stats
}

// Aggregator memoizes AggregateStats on the identity of the record set.
// Asking twice for the same *RecordSet returns the same *Stats.
type Aggregator struct {
	mu    sync.Mutex
	set   *RecordSet
	stats *Stats
	runs  int
}

// Stats returns the cached result for set, recomputing only when the
// pointer differs from the last call.
func (a *Aggregator) Stats(set *RecordSet) *Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stats != nil && a.set == set {
		return a.stats
	}

	var records []ViewRecord
	if set != nil {
		records = set.Records
	}
	a.set = set
	a.stats = AggregateStats(records)
	a.runs++
	return a.stats
}

// Computations reports how many times the reduction actually ran.
func (a *Aggregator) Computations() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runs
}
