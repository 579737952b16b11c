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

package surveydb

import (
	"time"

	"github.com/google/uuid"
)

// Profile is an account holder row.
type Profile struct {
	ID         uuid.UUID `json:"id" yaml:"id"`
	FirstName  string    `json:"first_name" yaml:"first_name"`
	LastName   string    `json:"last_name" yaml:"last_name"`
	Email      string    `json:"email" yaml:"email"`
	Department string    `json:"department" yaml:"department"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
}

// Submission is a completed questionnaire. Answers is the stored document
// exactly as decoded; validation happens when it is joined into a view.
type Submission struct {
	ID          uuid.UUID      `json:"id" yaml:"id"`
	UserID      uuid.UUID      `json:"user_id" yaml:"user_id"`
	Answers     map[string]any `json:"answers" yaml:"answers"`
	SubmittedAt time.Time      `json:"submitted_at" yaml:"submitted_at"`
}

// PageRequest selects a window of profiles ordered by creation time, newest first.
type PageRequest struct {
	Offset int
	Limit  int
}

// ProfilePage is one window of profiles plus the exact total row count.
type ProfilePage struct {
	Profiles   []Profile
	TotalCount int64
}
