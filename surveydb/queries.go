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
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by both a pool and a transaction.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Queries runs single statements against a DBTX.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

const countProfiles = `-- name: CountProfiles :one
SELECT count(*) FROM profiles
`

func (q *Queries) CountProfiles(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countProfiles).Scan(&n)
	return n, mapError(err)
}

const listProfilesPage = `-- name: ListProfilesPage :many
SELECT id, first_name, last_name, email, department, created_at
FROM profiles
ORDER BY created_at DESC, id
LIMIT $1 OFFSET $2
`

func (q *Queries) ListProfilesPage(ctx context.Context, limit, offset int) ([]Profile, error) {
	rows, err := q.db.Query(ctx, listProfilesPage, limit, offset)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var items []Profile
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.Department, &p.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, mapError(rows.Err())
}

const listSubmissionsByUserIDs = `-- name: ListSubmissionsByUserIDs :many
SELECT id, user_id, answers, submitted_at
FROM survey_responses
WHERE user_id = ANY($1::uuid[])
ORDER BY submitted_at
`

func (q *Queries) ListSubmissionsByUserIDs(ctx context.Context, ids []uuid.UUID) ([]Submission, error) {
	rows, err := q.db.Query(ctx, listSubmissionsByUserIDs, ids)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var items []Submission
	for rows.Next() {
		var (
			s   Submission
			raw []byte
		)
		if err := rows.Scan(&s.ID, &s.UserID, &raw, &s.SubmittedAt); err != nil {
			return nil, err
		}
		if s.Answers, err = decodeAnswers(raw); err != nil {
			return nil, fmt.Errorf("submission %s: %w", s.ID, err)
		}
		items = append(items, s)
	}
	return items, mapError(rows.Err())
}

const deleteSubmissionsByUserIDs = `-- name: DeleteSubmissionsByUserIDs :exec
DELETE FROM survey_responses WHERE user_id = ANY($1::uuid[])
`

func (q *Queries) DeleteSubmissionsByUserIDs(ctx context.Context, ids []uuid.UUID) error {
	_, err := q.db.Exec(ctx, deleteSubmissionsByUserIDs, ids)
	return mapError(err)
}

const deleteProfilesByIDs = `-- name: DeleteProfilesByIDs :execrows
DELETE FROM profiles WHERE id = ANY($1::uuid[])
`

func (q *Queries) DeleteProfiles(ctx context.Context, ids []uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteProfilesByIDs, ids)
	if err != nil {
		return 0, mapError(err)
	}
	return tag.RowsAffected(), nil
}

const insertProfile = `-- name: InsertProfile :exec
INSERT INTO profiles (id, first_name, last_name, email, department, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`

func (q *Queries) InsertProfile(ctx context.Context, p Profile) error {
	_, err := q.db.Exec(ctx, insertProfile, p.ID, p.FirstName, p.LastName, p.Email, p.Department, p.CreatedAt)
	return mapError(err)
}

const insertSubmission = `-- name: InsertSubmission :exec
INSERT INTO survey_responses (id, user_id, answers, submitted_at)
VALUES ($1, $2, $3, $4)
`

func (q *Queries) InsertSubmission(ctx context.Context, s Submission) error {
	raw, err := json.Marshal(s.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	_, err = q.db.Exec(ctx, insertSubmission, s.ID, s.UserID, raw, s.SubmittedAt)
	return mapError(err)
}

func decodeAnswers(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	answers := map[string]any{}
	if err := json.Unmarshal(raw, &answers); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	return answers, nil
}

// undefinedTable is the SQLSTATE for a missing relation.
const undefinedTable = "42P01"

func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == undefinedTable {
		return fmt.Errorf("%w: %s", ErrSchemaAbsent, pgErr.Message)
	}
	return err
}
