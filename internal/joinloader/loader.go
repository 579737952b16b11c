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

// Package joinloader assembles pages of view records from the profile and
// submission tables with one batch submissions query per page.
package joinloader

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardinalhq/pulseboard/internal/survey"
	"github.com/cardinalhq/pulseboard/surveydb"
)

const DefaultPageSize = 25

const (
	OpSelectPage        = "select_profiles_page"
	OpSelectSubmissions = "select_submissions"
)

// Page is one loaded window of records.
type Page struct {
	Records *survey.RecordSet
	Window  Window
}

// Loader fetches pages from a surveydb.Reader.
type Loader struct {
	store    surveydb.Reader
	pageSize int
}

func New(store surveydb.Reader, pageSize int) *Loader {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Loader{store: store, pageSize: pageSize}
}

func (l *Loader) PageSize() int {
	return l.pageSize
}

// LoadPage returns the records on pageIndex, newest profile first.
// An unprovisioned schema or an empty table yields an empty page and a nil
// error. A pageIndex past the end is clamped to the last page.
func (l *Loader) LoadPage(ctx context.Context, pageIndex int) (Page, error) {
	tracer := otel.Tracer("github.com/cardinalhq/pulseboard/joinloader")
	ctx, span := tracer.Start(ctx, "joinloader.LoadPage")
	defer span.End()
	span.SetAttributes(
		attribute.Int("page_index", pageIndex),
		attribute.Int("page_size", l.pageSize),
	)

	requested := max(pageIndex, 0)
	profilePage, err := l.store.SelectProfilesPage(ctx, surveydb.PageRequest{
		Offset: requested * l.pageSize,
		Limit:  l.pageSize,
	})
	if err != nil {
		return l.failed(span, OpSelectPage, pageIndex, err)
	}
	window := NewWindow(requested, l.pageSize, profilePage.TotalCount)

	// The requested page no longer exists, typically after deletes.
	if len(profilePage.Profiles) == 0 && window.PageIndex != requested {
		profilePage, err = l.store.SelectProfilesPage(ctx, surveydb.PageRequest{
			Offset: window.Offset(),
			Limit:  l.pageSize,
		})
		if err != nil {
			return l.failed(span, OpSelectPage, pageIndex, err)
		}
		window = NewWindow(window.PageIndex, l.pageSize, profilePage.TotalCount)
	}

	if len(profilePage.Profiles) == 0 {
		return Page{Records: survey.NewRecordSet(nil), Window: window}, nil
	}

	ids := make([]uuid.UUID, len(profilePage.Profiles))
	for i, p := range profilePage.Profiles {
		ids[i] = p.ID
	}

	submissions, err := l.store.SelectSubmissionsByUserIDs(ctx, ids)
	if err != nil {
		if !errors.Is(err, surveydb.ErrSchemaAbsent) {
			return l.failed(span, OpSelectSubmissions, pageIndex, err)
		}
		slog.Debug("Submissions table absent, treating page as unanswered")
		submissions = nil
	}

	byUser := make(map[uuid.UUID]*surveydb.Submission, len(submissions))
	for i := range submissions {
		s := &submissions[i]
		if prev, dup := byUser[s.UserID]; dup {
			slog.Warn("Multiple submissions for one profile, keeping the latest",
				slog.String("userID", s.UserID.String()),
				slog.String("kept", latest(prev, s).ID.String()))
			s = latest(prev, s)
		}
		byUser[s.UserID] = s
	}

	records := make([]survey.ViewRecord, len(profilePage.Profiles))
	for i, p := range profilePage.Profiles {
		records[i] = BuildRecord(p, byUser[p.ID])
	}

	span.SetAttributes(
		attribute.Int("records", len(records)),
		attribute.Int("submissions", len(submissions)),
		attribute.Int64("total_items", window.TotalItems),
	)
	return Page{Records: survey.NewRecordSet(records), Window: window}, nil
}

func (l *Loader) failed(span trace.Span, op string, pageIndex int, err error) (Page, error) {
	if errors.Is(err, surveydb.ErrSchemaAbsent) {
		slog.Debug("Profiles table absent, returning empty page")
		return Page{Records: survey.NewRecordSet(nil), Window: NewWindow(0, l.pageSize, 0)}, nil
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, op)
	return Page{}, &FetchError{Op: op, PageIndex: pageIndex, Err: err}
}

func latest(a, b *surveydb.Submission) *surveydb.Submission {
	if b.SubmittedAt.After(a.SubmittedAt) {
		return b
	}
	return a
}

// BuildRecord joins a profile with its optional submission and derives the
// completion, score and bucket fields.
func BuildRecord(p surveydb.Profile, s *surveydb.Submission) survey.ViewRecord {
	r := survey.ViewRecord{
		ID:         p.ID,
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		Email:      p.Email,
		Department: p.Department,
		CreatedAt:  p.CreatedAt,
		RiskBucket: survey.NoData,
	}
	if s == nil {
		return r
	}

	answers, invalid := survey.ParseAnswers(s.Answers)
	if len(invalid) > 0 {
		slog.Warn("Rejected invalid answers",
			slog.String("submissionID", s.ID.String()),
			slog.Int("count", len(invalid)),
			slog.Any("invalid", invalid))
	}
	c := survey.Classify(answers)

	r.SubmissionID = s.ID
	r.Answers = answers
	r.Invalid = invalid
	r.CompletedAt = s.SubmittedAt
	r.Completed = true
	r.TotalScore = c.Score
	r.RiskBucket = c.Bucket
	r.AnswerCount = len(answers)
	return r
}
