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

package changefeed

import (
	"context"
	"errors"
	"strings"
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

// observer records manager callbacks.
type observer struct {
	mu        sync.Mutex
	states    []State
	events    []Event
	exhausted []error
}

func (o *observer) config(topics ...string) ManagerConfig {
	return ManagerConfig{
		ChannelPrefix:    "responses",
		Topics:           topics,
		Retry:            DefaultRetryPolicy(),
		SubscribeTimeout: 5 * time.Second,
		OnEvent: func(ev Event) {
			o.mu.Lock()
			defer o.mu.Unlock()
			o.events = append(o.events, ev)
		},
		OnStateChange: func(s State) {
			o.mu.Lock()
			defer o.mu.Unlock()
			o.states = append(o.states, s)
		},
		OnExhausted: func(err error) {
			o.mu.Lock()
			defer o.mu.Unlock()
			o.exhausted = append(o.exhausted, err)
		},
	}
}

func (o *observer) stateLog() []State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]State(nil), o.states...)
}

func (o *observer) eventCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.events)
}

func (o *observer) exhaustedErrs() []error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]error(nil), o.exhausted...)
}

// countingTransport counts Subscribe calls made to the wrapped transport.
type countingTransport struct {
	Transport
	mu       sync.Mutex
	calls    int
	channels []string
}

func (c *countingTransport) Subscribe(ctx context.Context, channel string, topics []string, h Handler) (Subscription, error) {
	c.mu.Lock()
	c.calls++
	c.channels = append(c.channels, channel)
	c.mu.Unlock()
	return c.Transport.Subscribe(ctx, channel, topics, h)
}

func (c *countingTransport) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// scriptedTransport never reports on its own; tests drive the handlers.
type scriptedTransport struct {
	mu       sync.Mutex
	handlers []Handler
	subs     []*scriptedSub
	err      error
}

type scriptedSub struct {
	mu     sync.Mutex
	closed int
}

func (s *scriptedSub) Unsubscribe() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *scriptedSub) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *scriptedTransport) Subscribe(_ context.Context, _ string, _ []string, h Handler) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	sub := &scriptedSub{}
	s.handlers = append(s.handlers, h)
	s.subs = append(s.subs, sub)
	return sub, nil
}

func (s *scriptedTransport) handler(i int) Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handlers[i]
}

func (s *scriptedTransport) sub(i int) *scriptedSub {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs[i]
}

func (s *scriptedTransport) attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}

func TestManagerSubscribesAndForwardsEvents(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		mt := NewMemoryTransport()
		obs := &observer{}
		m := NewManager(mt, obs.config("profiles", "survey_responses"))

		m.Start(ctx)
		synctest.Wait()
		require.Equal(t, Subscribed, m.State())
		assert.True(t, strings.HasPrefix(m.Channel(), "responses-"))
		assert.Equal(t, 1, mt.Subscribers())

		require.NoError(t, mt.Publish(ctx, Event{Topic: "survey_responses", Kind: KindInsert}))
		require.NoError(t, mt.Publish(ctx, Event{Topic: "unrelated"}))
		assert.Equal(t, 1, obs.eventCount())

		require.NoError(t, m.Close())
		assert.Equal(t, Closed, m.State())
		assert.Equal(t, 0, mt.Subscribers())

		require.NoError(t, mt.Publish(ctx, Event{Topic: "survey_responses"}))
		assert.Equal(t, 1, obs.eventCount())
		assert.NoError(t, m.Close(), "second close is a no-op")
	})
}

func TestManagerRetriesWithExponentialBackoff(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		mt := NewMemoryTransport()
		ct := &countingTransport{Transport: mt}
		mt.FailNext(StatusErrored, StatusErrored)
		obs := &observer{}
		m := NewManager(ct, obs.config("profiles"))
		defer m.Close()

		m.Start(context.Background())
		synctest.Wait()
		assert.Equal(t, Errored, m.State())
		assert.Equal(t, 1, m.Retry().Attempt)
		assert.Error(t, m.LastError())

		time.Sleep(time.Second - time.Millisecond)
		synctest.Wait()
		assert.Equal(t, 1, ct.count(), "first retry waits the base backoff")

		time.Sleep(time.Millisecond)
		synctest.Wait()
		assert.Equal(t, 2, ct.count())
		assert.Equal(t, Errored, m.State())
		assert.Equal(t, 2, m.Retry().Attempt)

		time.Sleep(2*time.Second - time.Millisecond)
		synctest.Wait()
		assert.Equal(t, 2, ct.count(), "second retry waits twice as long")

		time.Sleep(time.Millisecond)
		synctest.Wait()
		assert.Equal(t, 3, ct.count())
		assert.Equal(t, Subscribed, m.State())
		assert.Equal(t, 0, m.Retry().Attempt, "subscribing resets the retry count")
		assert.NoError(t, m.LastError())
		assert.Empty(t, obs.exhaustedErrs())

		assert.Equal(t, []State{Errored, Connecting, Errored, Connecting, Subscribed}, obs.stateLog())
	})
}

func TestManagerStopsAfterRetryBudget(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		mt := NewMemoryTransport()
		ct := &countingTransport{Transport: mt}
		mt.FailNext(StatusErrored, StatusErrored, StatusErrored, StatusErrored, StatusErrored)
		obs := &observer{}
		m := NewManager(ct, obs.config("survey_responses"))
		defer m.Close()

		m.Start(context.Background())
		// 1s + 2s + 4s of backoff between four attempts.
		time.Sleep(7 * time.Second)
		synctest.Wait()

		assert.Equal(t, DefaultMaxAttempts+1, ct.count())
		assert.Equal(t, Disconnected, m.State())
		assert.False(t, m.State().Live())

		errs := obs.exhaustedErrs()
		require.Len(t, errs, 1)
		var subErr *SubscriptionError
		require.ErrorAs(t, errs[0], &subErr)
		assert.Equal(t, DefaultMaxAttempts+1, subErr.Attempts)
		assert.Equal(t, []string{"survey_responses"}, subErr.Topics)
		assert.Contains(t, subErr.Error(), "live updates unavailable")

		time.Sleep(10 * time.Minute)
		synctest.Wait()
		assert.Equal(t, DefaultMaxAttempts+1, ct.count(), "no retries once disconnected")
		assert.Len(t, obs.exhaustedErrs(), 1)
	})
}

func TestManagerReconnectsAfterRemoteClose(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		mt := NewMemoryTransport()
		ct := &countingTransport{Transport: mt}
		obs := &observer{}
		m := NewManager(ct, obs.config("profiles"))
		defer m.Close()

		m.Start(context.Background())
		synctest.Wait()
		require.Equal(t, Subscribed, m.State())

		mt.Drop(StatusClosed, nil)
		synctest.Wait()
		assert.Equal(t, Closed, m.State())
		assert.ErrorIs(t, m.LastError(), ErrChannelClosed)

		time.Sleep(time.Second)
		synctest.Wait()
		assert.Equal(t, Subscribed, m.State())
		require.Equal(t, 2, ct.count())
		assert.NotEqual(t, ct.channels[0], ct.channels[1], "each attempt gets its own channel")
		assert.Equal(t, 1, mt.Subscribers())
	})
}

func TestManagerTimesOutSilentAttempt(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		mt := NewMemoryTransport()
		mt.Silence(true)
		obs := &observer{}
		m := NewManager(mt, obs.config("profiles"))
		defer m.Close()

		m.Start(context.Background())
		synctest.Wait()
		assert.Equal(t, Connecting, m.State())

		time.Sleep(5 * time.Second)
		synctest.Wait()
		assert.Equal(t, TimedOut, m.State())
		assert.ErrorIs(t, m.LastError(), ErrSubscribeTimeout)
		assert.Equal(t, 0, mt.Subscribers(), "timed out attempt is torn down")

		mt.Silence(false)
		time.Sleep(time.Second)
		synctest.Wait()
		assert.Equal(t, Subscribed, m.State())
	})
}

func TestManagerIgnoresStaleAttempts(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		st := &scriptedTransport{}
		obs := &observer{}
		m := NewManager(st, obs.config("survey_responses"))
		defer m.Close()

		m.Start(context.Background())
		synctest.Wait()
		first := st.handler(0)
		first.OnStatus(StatusSubscribed, nil)
		assert.Equal(t, Subscribed, m.State())

		first.OnStatus(StatusTimedOut, errors.New("heartbeat lost"))
		synctest.Wait()
		assert.Equal(t, TimedOut, m.State())
		assert.Equal(t, 1, st.sub(0).closeCount())

		time.Sleep(time.Second)
		synctest.Wait()
		require.Equal(t, 2, st.attempts())
		assert.Equal(t, Connecting, m.State())

		first.OnEvent(Event{Topic: "survey_responses"})
		first.OnStatus(StatusErrored, errors.New("late"))
		first.OnStatus(StatusSubscribed, nil)
		assert.Equal(t, Connecting, m.State(), "callbacks from a torn down attempt are ignored")
		assert.Equal(t, 0, obs.eventCount())

		second := st.handler(1)
		second.OnStatus(StatusSubscribed, nil)
		second.OnEvent(Event{Topic: "survey_responses"})
		assert.Equal(t, Subscribed, m.State())
		assert.Equal(t, 1, obs.eventCount())
	})
}

func TestManagerEventsBeforeSubscribeAreDropped(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		st := &scriptedTransport{}
		obs := &observer{}
		m := NewManager(st, obs.config("profiles"))
		defer m.Close()

		m.Start(context.Background())
		synctest.Wait()
		st.handler(0).OnEvent(Event{Topic: "profiles"})
		assert.Equal(t, 0, obs.eventCount())
	})
}

func TestManagerSubscribeErrorCountsAsFailure(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		st := &scriptedTransport{err: errors.New("connection refused")}
		obs := &observer{}
		cfg := obs.config("profiles")
		cfg.Retry.MaxAttempts = 0
		m := NewManager(st, cfg)
		defer m.Close()

		m.Start(context.Background())
		synctest.Wait()
		assert.Equal(t, Disconnected, m.State())
		errs := obs.exhaustedErrs()
		require.Len(t, errs, 1)
		assert.ErrorContains(t, errs[0], "connection refused")
	})
}

func TestManagerCloseCancelsPendingRetry(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		mt := NewMemoryTransport()
		ct := &countingTransport{Transport: mt}
		mt.FailNext(StatusErrored)
		m := NewManager(ct, (&observer{}).config("profiles"))

		m.Start(context.Background())
		synctest.Wait()
		require.NoError(t, m.Close())

		time.Sleep(time.Minute)
		synctest.Wait()
		assert.Equal(t, 1, ct.count())
		assert.Equal(t, Closed, m.State())
	})
}

func TestManagerStartAfterCloseDoesNothing(t *testing.T) {
	st := &scriptedTransport{}
	m := NewManager(st, ManagerConfig{Topics: []string{"profiles"}})
	require.NoError(t, m.Close())
	m.Start(context.Background())
	assert.Equal(t, 0, st.attempts())
	assert.Equal(t, []string{"profiles"}, m.Topics())
}
