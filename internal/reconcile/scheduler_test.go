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

package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type reloadRecorder struct {
	mu    sync.Mutex
	times []time.Time
	err   error
}

func (r *reloadRecorder) reload(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.times = append(r.times, time.Now())
	return r.err
}

func (r *reloadRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.times)
}

func (r *reloadRecorder) at(i int) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.times[i]
}

func TestBurstCoalescesIntoOneReload(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		rec := &reloadRecorder{}
		s := New(Config{Debounce: 500 * time.Millisecond, MinInterval: 2 * time.Second}, rec.reload)
		defer s.Close()

		start := time.Now()
		for range 10 {
			s.OnChangeEvent("survey_responses")
			time.Sleep(10 * time.Millisecond)
		}
		lastEvent := start.Add(90 * time.Millisecond)

		time.Sleep(lastEvent.Add(500*time.Millisecond - time.Millisecond).Sub(time.Now()))
		synctest.Wait()
		assert.Equal(t, 0, rec.count(), "no reload before the quiet period ends")

		time.Sleep(time.Millisecond)
		synctest.Wait()
		require.Equal(t, 1, rec.count())
		assert.Equal(t, lastEvent.Add(500*time.Millisecond), rec.at(0))

		time.Sleep(5 * time.Second)
		synctest.Wait()
		assert.Equal(t, 1, rec.count())

		c := s.Counters()
		assert.Equal(t, int64(1), c.Reloads)
		assert.Equal(t, int64(9), c.Coalesced)
		assert.Equal(t, int64(0), c.Dropped)
	})
}

func TestCoolDownDropsEvents(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		rec := &reloadRecorder{}
		minInterval := 2 * time.Second
		s := New(Config{Debounce: 500 * time.Millisecond, MinInterval: minInterval}, rec.reload)
		defer s.Close()

		s.OnChangeEvent("profiles")
		time.Sleep(500 * time.Millisecond)
		synctest.Wait()
		require.Equal(t, 1, rec.count())
		t0 := rec.at(0)

		time.Sleep(minInterval - time.Millisecond)
		s.OnChangeEvent("profiles")
		time.Sleep(time.Second)
		synctest.Wait()
		assert.Equal(t, 1, rec.count(), "event inside the cool-down is dropped, not deferred")
		assert.Equal(t, int64(1), s.Counters().Dropped)

		s.OnChangeEvent("profiles")
		time.Sleep(500 * time.Millisecond)
		synctest.Wait()
		require.Equal(t, 2, rec.count())
		assert.GreaterOrEqual(t, rec.at(1).Sub(t0), minInterval)
	})
}

func TestCancelDiscardsPendingReload(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		rec := &reloadRecorder{}
		s := New(Config{Debounce: 500 * time.Millisecond}, rec.reload)
		defer s.Close()

		s.OnChangeEvent("profiles")
		time.Sleep(100 * time.Millisecond)
		assert.True(t, s.Cancel(), "a reload was pending")
		time.Sleep(time.Second)
		synctest.Wait()
		assert.Equal(t, 0, rec.count())

		s.OnChangeEvent("profiles")
		time.Sleep(500 * time.Millisecond)
		synctest.Wait()
		assert.Equal(t, 1, rec.count(), "scheduler stays usable after Cancel")
	})
}

func TestCloseIgnoresEventsAndCancelsRunningReload(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		started := make(chan struct{})
		var sawCancel bool
		s := New(Config{Debounce: 100 * time.Millisecond}, func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			sawCancel = true
			return ctx.Err()
		})

		s.OnChangeEvent("profiles")
		<-started
		s.Close()
		assert.True(t, sawCancel)

		s.OnChangeEvent("profiles")
		time.Sleep(time.Second)
		synctest.Wait()
		assert.Equal(t, int64(1), s.Counters().Reloads)
	})
}

func TestReloadFailureIsCounted(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		rec := &reloadRecorder{err: errors.New("store unavailable")}
		s := New(Config{Debounce: 100 * time.Millisecond}, rec.reload)
		defer s.Close()

		s.OnChangeEvent("profiles")
		time.Sleep(100 * time.Millisecond)
		synctest.Wait()
		assert.Equal(t, int64(1), s.Counters().Failures)
	})
}

func TestDefaults(t *testing.T) {
	s := New(Config{}, func(context.Context) error { return nil })
	defer s.Close()
	assert.Equal(t, DefaultDebounce, s.debounce)
	assert.Equal(t, 1, s.gate.Burst())
}
