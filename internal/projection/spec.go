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

// Package projection computes the filtered and sorted view of a record set.
package projection

import (
	"fmt"
	"strings"

	"github.com/cardinalhq/pulseboard/internal/survey"
)

// AllBuckets is the categorical filter sentinel that matches every record.
const AllBuckets = "all"

// FilterSpec selects records by search term and risk bucket.
type FilterSpec struct {
	SearchTerm string
	Bucket     string
}

// DefaultFilter matches every record.
func DefaultFilter() FilterSpec {
	return FilterSpec{Bucket: AllBuckets}
}

// SortField is one of the fixed orderable fields.
type SortField string

const (
	SortByCreatedAt SortField = "created_at"
	SortByName      SortField = "name"
	SortByRiskScore SortField = "risk_score"
)

// Direction orders ascending or descending.
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// SortSpec is a field and direction pair.
type SortSpec struct {
	Field     SortField
	Direction Direction
}

// DefaultSort orders newest first.
func DefaultSort() SortSpec {
	return SortSpec{Field: SortByCreatedAt, Direction: Descending}
}

// ParseSortSpec parses "field" or "field:direction".
func ParseSortSpec(s string) (SortSpec, error) {
	field, dir, found := strings.Cut(strings.TrimSpace(s), ":")
	spec := SortSpec{Field: SortField(strings.ToLower(field)), Direction: Ascending}
	if found {
		spec.Direction = Direction(strings.ToLower(dir))
	}
	if err := spec.Validate(); err != nil {
		return SortSpec{}, err
	}
	return spec, nil
}

// Validate reports an unknown field or direction.
func (s SortSpec) Validate() error {
	switch s.Field {
	case SortByCreatedAt, SortByName, SortByRiskScore:
	default:
		return fmt.Errorf("unknown sort field %q", s.Field)
	}
	switch s.Direction {
	case Ascending, Descending:
	default:
		return fmt.Errorf("unknown sort direction %q", s.Direction)
	}
	return nil
}

// ValidateBucket accepts the sentinel or any known bucket name.
func ValidateBucket(v string) error {
	if v == AllBuckets {
		return nil
	}
	if _, ok := survey.ParseRiskBucket(v); !ok {
		return fmt.Errorf("unknown risk bucket %q", v)
	}
	return nil
}
