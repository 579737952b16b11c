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
	"strings"
	"time"

	"github.com/google/uuid"
)

// ViewRecord is one account joined with its optional submission.
type ViewRecord struct {
	ID         uuid.UUID
	FirstName  string
	LastName   string
	Email      string
	Department string
	CreatedAt  time.Time

	SubmissionID uuid.UUID
	Answers      Answers
	Invalid      []InvalidAnswer
	CompletedAt  time.Time

	Completed   bool
	TotalScore  int
	RiskBucket  RiskBucket
	AnswerCount int
}

// FullName joins first and last name with a single space.
func (r ViewRecord) FullName() string {
	return strings.TrimSpace(r.FirstName + " " + r.LastName)
}

// RecordSet is an immutable, identity-bearing collection of records.
// Derived views are memoized on the *RecordSet pointer, so a new set must
// be allocated whenever the records change.
type RecordSet struct {
	Records []ViewRecord
}

// NewRecordSet wraps records in a new set. The slice is not copied.
func NewRecordSet(records []ViewRecord) *RecordSet {
	return &RecordSet{Records: records}
}

// Len returns the number of records, treating a nil set as empty.
func (s *RecordSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Records)
}

// Without returns a new set excluding the given ids. The receiver is unchanged.
func (s *RecordSet) Without(ids map[uuid.UUID]struct{}) *RecordSet {
	if s == nil {
		return NewRecordSet(nil)
	}
	kept := make([]ViewRecord, 0, len(s.Records))
	for _, r := range s.Records {
		if _, drop := ids[r.ID]; drop {
			continue
		}
		kept = append(kept, r)
	}
	return NewRecordSet(kept)
}
