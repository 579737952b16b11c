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

// Package sqlitestore is an embedded survey store on SQLite, used for local
// runs and tests where no Postgres server is available.
package sqlitestore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"

	"github.com/cardinalhq/pulseboard/surveydb"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const migrationsTable = "gomigrate_surveydb"

// Store persists profiles and submissions in SQLite.
type Store struct {
	sqlDB *sql.DB
}

var _ surveydb.Querier = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the database file at path and applies embedded migrations.
// ":memory:" opens a private in-memory database.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := ":memory:"
	if path != ":memory:" {
		dsn = filepath.Clean(path)
	}
	dsn += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A second connection to :memory: would see a different database.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// New wraps an already open handle without touching its schema.
func New(sqlDB *sql.DB) *Store {
	return &Store{sqlDB: sqlDB}
}

func applyMigrations(sqlDB *sql.DB) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create iofs driver: %w", err)
	}
	// The driver owns no resources beyond sqlDB, which outlives it; closing
	// the driver would close sqlDB.
	dbDriver, err := migratesqlite.WithInstance(sqlDB, &migratesqlite.Config{
		MigrationsTable: migrationsTable,
	})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() { _ = src.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) SelectProfilesPage(ctx context.Context, req surveydb.PageRequest) (surveydb.ProfilePage, error) {
	var total int64
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT count(*) FROM profiles`).Scan(&total); err != nil {
		return surveydb.ProfilePage{}, fmt.Errorf("count profiles: %w", mapError(err))
	}
	if req.Limit <= 0 || int64(req.Offset) >= total {
		return surveydb.ProfilePage{TotalCount: total}, nil
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, first_name, last_name, email, department, created_at
		 FROM profiles
		 ORDER BY created_at DESC, id
		 LIMIT ? OFFSET ?`,
		req.Limit, req.Offset)
	if err != nil {
		return surveydb.ProfilePage{}, fmt.Errorf("list profiles: %w", mapError(err))
	}
	defer func() { _ = rows.Close() }()

	page := surveydb.ProfilePage{TotalCount: total}
	for rows.Next() {
		var (
			p         surveydb.Profile
			id        string
			createdAt int64
		)
		if err := rows.Scan(&id, &p.FirstName, &p.LastName, &p.Email, &p.Department, &createdAt); err != nil {
			return surveydb.ProfilePage{}, fmt.Errorf("scan profile: %w", err)
		}
		if p.ID, err = uuid.Parse(id); err != nil {
			return surveydb.ProfilePage{}, fmt.Errorf("profile id %q: %w", id, err)
		}
		p.CreatedAt = fromMillis(createdAt)
		page.Profiles = append(page.Profiles, p)
	}
	if err := rows.Err(); err != nil {
		return surveydb.ProfilePage{}, mapError(err)
	}
	return page, nil
}

func (s *Store) SelectSubmissionsByUserIDs(ctx context.Context, ids []uuid.UUID) ([]surveydb.Submission, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args := inClause(
		`SELECT id, user_id, answers, submitted_at FROM survey_responses WHERE user_id IN (%s) ORDER BY submitted_at`,
		ids)
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", mapError(err))
	}
	defer func() { _ = rows.Close() }()

	var out []surveydb.Submission
	for rows.Next() {
		var (
			sub                 surveydb.Submission
			id, userID, answers string
			submittedAt         int64
		)
		if err := rows.Scan(&id, &userID, &answers, &submittedAt); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		if sub.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("submission id %q: %w", id, err)
		}
		if sub.UserID, err = uuid.Parse(userID); err != nil {
			return nil, fmt.Errorf("submission user id %q: %w", userID, err)
		}
		sub.Answers = map[string]any{}
		if answers != "" {
			if err := json.Unmarshal([]byte(answers), &sub.Answers); err != nil {
				return nil, fmt.Errorf("submission %s: decode answers: %w", sub.ID, err)
			}
		}
		sub.SubmittedAt = fromMillis(submittedAt)
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

// DeleteProfilesByIDs removes submissions then profiles inside one transaction.
func (s *Store) DeleteProfilesByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query, args := inClause(`DELETE FROM survey_responses WHERE user_id IN (%s)`, ids)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return 0, fmt.Errorf("delete submissions: %w", mapError(err))
	}
	query, args = inClause(`DELETE FROM profiles WHERE id IN (%s)`, ids)
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete profiles: %w", mapError(err))
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return removed, nil
}

func (s *Store) InsertProfile(ctx context.Context, p surveydb.Profile) error {
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO profiles (id, first_name, last_name, email, department, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID.String(), p.FirstName, p.LastName, p.Email, p.Department, toMillis(createdAt))
	return mapError(err)
}

func (s *Store) InsertSubmission(ctx context.Context, sub surveydb.Submission) error {
	raw, err := json.Marshal(sub.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	submittedAt := sub.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now()
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO survey_responses (id, user_id, answers, submitted_at) VALUES (?, ?, ?, ?)`,
		sub.ID.String(), sub.UserID.String(), string(raw), toMillis(submittedAt))
	return mapError(err)
}

func inClause(format string, ids []uuid.UUID) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id.String()
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	return fmt.Sprintf(format, placeholders), args
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) && strings.Contains(sqliteErr.Error(), "no such table") {
		return fmt.Errorf("%w: %s", surveydb.ErrSchemaAbsent, sqliteErr.Error())
	}
	return err
}
