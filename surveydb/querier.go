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

// Package surveydb is the remote store holding account profiles and their
// questionnaire submissions.
package surveydb

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrSchemaAbsent is returned when a queried table does not exist yet.
// Readers treat it as an empty result rather than a failure.
var ErrSchemaAbsent = errors.New("surveydb: schema not provisioned")

const (
	ProfilesTable    = "profiles"
	SubmissionsTable = "survey_responses"
)

// Reader is the read side consumed by the paginated join loader.
type Reader interface {
	// SelectProfilesPage returns profiles ordered by created_at descending.
	SelectProfilesPage(ctx context.Context, req PageRequest) (ProfilePage, error)
	// SelectSubmissionsByUserIDs returns every submission owned by one of ids
	// in a single round trip.
	SelectSubmissionsByUserIDs(ctx context.Context, ids []uuid.UUID) ([]Submission, error)
}

// Deleter removes profiles and their submissions in one all-or-nothing call.
type Deleter interface {
	DeleteProfilesByIDs(ctx context.Context, ids []uuid.UUID) (int64, error)
}

// Writer inserts rows; used by seeding and tests.
type Writer interface {
	InsertProfile(ctx context.Context, p Profile) error
	InsertSubmission(ctx context.Context, s Submission) error
}

// Querier is the full store surface.
type Querier interface {
	Reader
	Deleter
	Writer
	Close() error
}
