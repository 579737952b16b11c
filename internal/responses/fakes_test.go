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

package responses

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/cardinalhq/pulseboard/internal/changefeed"
	"github.com/cardinalhq/pulseboard/surveydb"
)

// fakeStore keeps profiles newest first and counts calls. A page whose
// offset has a gate blocks until the gate is closed, ignoring ctx.
type fakeStore struct {
	mu          sync.Mutex
	profiles    []surveydb.Profile
	submissions map[uuid.UUID]surveydb.Submission
	pageErr     error
	deleteErr   error
	gates       map[int]chan struct{}
	entered     chan int

	pageCalls   atomic.Int32
	subCalls    atomic.Int32
	deleteCalls atomic.Int32
}

var baseTime = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func answersAll(v int) map[string]any {
	out := make(map[string]any, 12)
	for q := 1; q <= 12; q++ {
		out[fmt.Sprintf("q%d", q)] = float64(v)
	}
	return out
}

// newFakeStore creates n profiles. Every even-numbered profile answered
// every question with (i/2)%4, giving scores 0, 12, 24, 36 in turn.
func newFakeStore(n int) *fakeStore {
	s := &fakeStore{submissions: map[uuid.UUID]surveydb.Submission{}, entered: make(chan int, 8)}
	for i := range n {
		p := surveydb.Profile{
			ID:         uuid.New(),
			FirstName:  fmt.Sprintf("Person%02d", i),
			LastName:   "Tester",
			Email:      fmt.Sprintf("person%02d@example.com", i),
			Department: []string{"Ops", "Finance", "Field"}[i%3],
			CreatedAt:  baseTime.Add(-time.Duration(i) * time.Hour),
		}
		s.profiles = append(s.profiles, p)
		if i%2 == 0 {
			s.submissions[p.ID] = surveydb.Submission{
				ID:          uuid.New(),
				UserID:      p.ID,
				Answers:     answersAll((i / 2) % 4),
				SubmittedAt: p.CreatedAt.Add(30 * time.Minute),
			}
		}
	}
	return s
}

func (s *fakeStore) gate(offset int) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gates == nil {
		s.gates = map[int]chan struct{}{}
	}
	ch := make(chan struct{})
	s.gates[offset] = ch
	return ch
}

func (s *fakeStore) SelectProfilesPage(_ context.Context, req surveydb.PageRequest) (surveydb.ProfilePage, error) {
	s.pageCalls.Add(1)
	s.mu.Lock()
	gate := s.gates[req.Offset]
	s.mu.Unlock()
	if gate != nil {
		s.entered <- req.Offset
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pageErr != nil {
		return surveydb.ProfilePage{}, s.pageErr
	}
	page := surveydb.ProfilePage{TotalCount: int64(len(s.profiles))}
	if req.Offset < len(s.profiles) {
		end := min(req.Offset+req.Limit, len(s.profiles))
		page.Profiles = slices.Clone(s.profiles[req.Offset:end])
	}
	return page, nil
}

func (s *fakeStore) SelectSubmissionsByUserIDs(_ context.Context, ids []uuid.UUID) ([]surveydb.Submission, error) {
	s.subCalls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []surveydb.Submission
	for _, id := range ids {
		if sub, ok := s.submissions[id]; ok {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *fakeStore) DeleteProfilesByIDs(_ context.Context, ids []uuid.UUID) (int64, error) {
	s.deleteCalls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return 0, s.deleteErr
	}
	var n int64
	s.profiles = slices.DeleteFunc(s.profiles, func(p surveydb.Profile) bool {
		if slices.Contains(ids, p.ID) {
			n++
			return true
		}
		return false
	})
	for _, id := range ids {
		delete(s.submissions, id)
	}
	return n, nil
}

// prepend adds a profile newer than every existing one.
func (s *fakeStore) prepend(first string) surveydb.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := surveydb.Profile{
		ID:         uuid.New(),
		FirstName:  first,
		LastName:   "New",
		Email:      first + "@example.com",
		Department: "Ops",
		CreatedAt:  baseTime.Add(time.Hour),
	}
	s.profiles = append([]surveydb.Profile{p}, s.profiles...)
	return p
}

func (s *fakeStore) rename(id uuid.UUID, first string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.profiles {
		if s.profiles[i].ID == id {
			s.profiles[i].FirstName = first
		}
	}
}

func (s *fakeStore) setPageErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageErr = err
}

// recordingPublisher keeps published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []changefeed.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev changefeed.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) published() []changefeed.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.events)
}
