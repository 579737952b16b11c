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
	"slices"
	"sync"
	"time"
)

// MemoryTransport is an in-process broker. It is a Transport and a
// Publisher, so events published by a process reach its own subscribers.
type MemoryTransport struct {
	mu       sync.Mutex
	subs     map[*memorySub]struct{}
	failNext []Status
	silent   bool
	closed   bool
}

var (
	_ Transport = (*MemoryTransport)(nil)
	_ Publisher = (*MemoryTransport)(nil)
)

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{subs: map[*memorySub]struct{}{}}
}

type memorySub struct {
	t       *MemoryTransport
	channel string
	topics  []string
	h       Handler
}

func (s *memorySub) Unsubscribe() error {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	delete(s.t.subs, s)
	return nil
}

// Subscribe registers h and reports subscribed before returning, unless a
// failure was queued with FailNext or Silence is set.
func (t *MemoryTransport) Subscribe(ctx context.Context, channel string, topics []string, h Handler) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, errors.New("memory transport closed")
	}
	if len(t.failNext) > 0 {
		status := t.failNext[0]
		t.failNext = t.failNext[1:]
		t.mu.Unlock()
		h.OnStatus(status, errors.New("injected failure"))
		return nil, nil
	}
	sub := &memorySub{t: t, channel: channel, topics: slices.Clone(topics), h: h}
	t.subs[sub] = struct{}{}
	silent := t.silent
	t.mu.Unlock()

	if !silent {
		h.OnStatus(StatusSubscribed, nil)
	}
	return sub, nil
}

// FailNext makes the next len(statuses) Subscribe calls fail with the
// given statuses in order.
func (t *MemoryTransport) FailNext(statuses ...Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failNext = append(t.failNext, statuses...)
}

// Silence stops Subscribe from acknowledging, so attempts time out.
func (t *MemoryTransport) Silence(silent bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.silent = silent
}

// Drop ends every live subscription with status.
func (t *MemoryTransport) Drop(status Status, err error) {
	for _, s := range t.snapshot() {
		_ = s.Unsubscribe()
		s.h.OnStatus(status, err)
	}
}

// Subscribers is the number of live subscriptions.
func (t *MemoryTransport) Subscribers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Publish delivers ev to every subscription watching ev.Topic.
func (t *MemoryTransport) Publish(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	for _, s := range t.snapshot() {
		if slices.Contains(s.topics, ev.Topic) {
			s.h.OnEvent(ev)
		}
	}
	eventsPublished.Add(ctx, 1)
	return nil
}

func (t *MemoryTransport) snapshot() []*memorySub {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*memorySub, 0, len(t.subs))
	for s := range t.subs {
		out = append(out, s)
	}
	return out
}

// Close drops all subscriptions without notifying them.
func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	clear(t.subs)
	return nil
}
