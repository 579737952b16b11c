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
	"cmp"
	"slices"
	"strings"

	"github.com/cardinalhq/pulseboard/internal/survey"
)

// Project filters and sorts records. The input slice is never modified.
// Both the search and bucket predicates must pass. Only the empty search
// term disables the search predicate; whitespace is matched literally. Sorting is stable, so
// records that compare equal keep their input order.
func Project(records []survey.ViewRecord, filter FilterSpec, sort SortSpec) []survey.ViewRecord {
	needle := strings.ToLower(filter.SearchTerm)

	out := make([]survey.ViewRecord, 0, len(records))
	for _, r := range records {
		if !matchesSearch(r, needle) || !matchesBucket(r, filter.Bucket) {
			continue
		}
		out = append(out, r)
	}

	compare := comparator(sort.Field)
	if sort.Direction == Descending {
		asc := compare
		compare = func(a, b survey.ViewRecord) int { return asc(b, a) }
	}
	slices.SortStableFunc(out, compare)
	return out
}

func matchesSearch(r survey.ViewRecord, needle string) bool {
	if needle == "" {
		return true
	}
	for _, field := range []string{r.FirstName, r.LastName, r.FullName(), r.Email, r.Department} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func matchesBucket(r survey.ViewRecord, bucket string) bool {
	if bucket == "" || bucket == AllBuckets {
		return true
	}
	return r.RiskBucket.String() == bucket
}

// comparator returns the ascending order for field. Missing values compare
// as the smallest: a record without a submission has a zero completion time
// and sorts below every scored record.
func comparator(field SortField) func(a, b survey.ViewRecord) int {
	switch field {
	case SortByName:
		return func(a, b survey.ViewRecord) int {
			return cmp.Compare(strings.ToLower(a.FullName()), strings.ToLower(b.FullName()))
		}
	case SortByRiskScore:
		return func(a, b survey.ViewRecord) int {
			return cmp.Compare(scoreKey(a), scoreKey(b))
		}
	default:
		return func(a, b survey.ViewRecord) int {
			return a.CompletedAt.Compare(b.CompletedAt)
		}
	}
}

func scoreKey(r survey.ViewRecord) int {
	if !r.Completed {
		return -1
	}
	return r.TotalScore
}
