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

package sqlitestore

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/pulseboard/surveydb"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedProfiles(t *testing.T, store *Store, n int) []surveydb.Profile {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	profiles := make([]surveydb.Profile, n)
	for i := range profiles {
		profiles[i] = surveydb.Profile{
			ID:         uuid.New(),
			FirstName:  "First",
			LastName:   "Last",
			Email:      "user@example.com",
			Department: "Ops",
			CreatedAt:  base.Add(time.Duration(i) * time.Hour),
		}
		require.NoError(t, store.InsertProfile(ctx, profiles[i]))
	}
	return profiles
}

func TestSelectProfilesPageOrdersNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := openMemory(t)
	profiles := seedProfiles(t, store, 5)

	page, err := store.SelectProfilesPage(ctx, surveydb.PageRequest{Offset: 0, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.TotalCount)
	require.Len(t, page.Profiles, 2)
	assert.Equal(t, profiles[4].ID, page.Profiles[0].ID)
	assert.Equal(t, profiles[3].ID, page.Profiles[1].ID)
	assert.True(t, profiles[4].CreatedAt.Equal(page.Profiles[0].CreatedAt))

	page, err = store.SelectProfilesPage(ctx, surveydb.PageRequest{Offset: 4, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Profiles, 1)
	assert.Equal(t, profiles[0].ID, page.Profiles[0].ID)

	page, err = store.SelectProfilesPage(ctx, surveydb.PageRequest{Offset: 10, Limit: 2})
	require.NoError(t, err)
	assert.Empty(t, page.Profiles)
	assert.Equal(t, int64(5), page.TotalCount)
}

func TestSelectSubmissionsByUserIDs(t *testing.T) {
	ctx := context.Background()
	store := openMemory(t)
	profiles := seedProfiles(t, store, 3)

	sub := surveydb.Submission{
		ID:          uuid.New(),
		UserID:      profiles[1].ID,
		Answers:     map[string]any{"q1": 3, "q2": 1},
		SubmittedAt: time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.InsertSubmission(ctx, sub))

	subs, err := store.SelectSubmissionsByUserIDs(ctx, []uuid.UUID{profiles[0].ID, profiles[1].ID})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, sub.ID, subs[0].ID)
	assert.Equal(t, profiles[1].ID, subs[0].UserID)
	assert.Equal(t, float64(3), subs[0].Answers["q1"])
	assert.True(t, sub.SubmittedAt.Equal(subs[0].SubmittedAt))

	subs, err = store.SelectSubmissionsByUserIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestDeleteProfilesByIDsCascades(t *testing.T) {
	ctx := context.Background()
	store := openMemory(t)
	profiles := seedProfiles(t, store, 3)
	require.NoError(t, store.InsertSubmission(ctx, surveydb.Submission{
		ID: uuid.New(), UserID: profiles[0].ID, Answers: map[string]any{"q1": 1},
	}))

	removed, err := store.DeleteProfilesByIDs(ctx, []uuid.UUID{profiles[0].ID, profiles[2].ID, uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	page, err := store.SelectProfilesPage(ctx, surveydb.PageRequest{Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Profiles, 1)
	assert.Equal(t, profiles[1].ID, page.Profiles[0].ID)

	subs, err := store.SelectSubmissionsByUserIDs(ctx, []uuid.UUID{profiles[0].ID})
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestMissingSchemaMapsToSchemaAbsent(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	store := New(db)
	t.Cleanup(func() { _ = store.Close() })

	_, err = store.SelectProfilesPage(context.Background(), surveydb.PageRequest{Limit: 10})
	assert.ErrorIs(t, err, surveydb.ErrSchemaAbsent)

	_, err = store.SelectSubmissionsByUserIDs(context.Background(), []uuid.UUID{uuid.New()})
	assert.ErrorIs(t, err, surveydb.ErrSchemaAbsent)
}

func TestOpenIsIdempotentOnFile(t *testing.T) {
	path := t.TempDir() + "/survey.db"
	first, err := Open(path)
	require.NoError(t, err)
	seedProfiles(t, first, 1)
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	page, err := second.SelectProfilesPage(context.Background(), surveydb.PageRequest{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.TotalCount)
}
