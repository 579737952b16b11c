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

package projection

import (
	"sync"

	"github.com/cardinalhq/pulseboard/internal/survey"
)

// Memo caches the last projection keyed on record set identity plus the
// filter and sort specs.
type Memo struct {
	mu     sync.Mutex
	set    *survey.RecordSet
	filter FilterSpec
	sort   SortSpec
	result []survey.ViewRecord
	valid  bool
	runs   int
}

// Project returns the cached projection when none of the inputs changed.
func (m *Memo) Project(set *survey.RecordSet, filter FilterSpec, sort SortSpec) []survey.ViewRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.valid && m.set == set && m.filter == filter && m.sort == sort {
		return m.result
	}

	var records []survey.ViewRecord
	if set != nil {
		records = set.Records
	}
	m.result = Project(records, filter, sort)
	m.set, m.filter, m.sort = set, filter, sort
	m.valid = true
	m.runs++
	return m.result
}

// Computations reports how many times the projection actually ran.
func (m *Memo) Computations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs
}
