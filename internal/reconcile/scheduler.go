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

// Package reconcile turns bursts of change notifications into at most one
// reload per quiet period, and at most one reload per cool-down interval.
package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"
)

const (
	DefaultDebounce    = 500 * time.Millisecond
	DefaultMinInterval = 2 * time.Second
)

// ReloadFunc refetches whatever the notifications invalidated.
type ReloadFunc func(ctx context.Context) error

type Config struct {
	// Debounce is the silence required after the last event before reloading.
	Debounce time.Duration `mapstructure:"debounce"`
	// MinInterval is the minimum spacing between reload starts. Events that
	// arrive inside it are dropped, not deferred.
	MinInterval time.Duration `mapstructure:"min_interval"`
	// Name labels logs and metrics.
	Name string `mapstructure:"name"`
}

// Counters is a snapshot of scheduler activity.
type Counters struct {
	Reloads   int64
	Failures  int64
	Coalesced int64
	Dropped   int64
}

// Scheduler debounces change events into reloads behind a cool-down gate.
// It knows nothing about what a reload does.
type Scheduler struct {
	debounce time.Duration
	reload   ReloadFunc
	attrs    metric.MeasurementOption

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	gate    *rate.Limiter
	closed  bool
	pending string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	reloads   atomic.Int64
	failures  atomic.Int64
	coalesced atomic.Int64
	dropped   atomic.Int64
}

// New returns a scheduler that calls reload. Zero durations take the defaults.
func New(cfg Config, reload ReloadFunc) *Scheduler {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		debounce: cfg.Debounce,
		reload:   reload,
		attrs:    metric.WithAttributes(attribute.String("scheduler", cfg.Name)),
		gate:     rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// OnChangeEvent records a change notification for topic. During the
// cool-down the event is dropped; otherwise the debounce timer is re-armed.
func (s *Scheduler) OnChangeEvent(topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if s.gate.TokensAt(time.Now()) < 1 {
		s.dropped.Add(1)
		eventsDropped.Add(s.ctx, 1, s.attrs)
		slog.Info("Change event dropped during reload cool-down", slog.String("topic", topic))
		return
	}

	if s.timer != nil && s.timer.Stop() {
		s.coalesced.Add(1)
		eventsCoalesced.Add(s.ctx, 1, s.attrs)
	}
	s.gen++
	gen := s.gen
	s.pending = topic
	s.timer = time.AfterFunc(s.debounce, func() { s.fire(gen) })
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	topic := s.pending
	if !s.gate.AllowN(time.Now(), 1) {
		s.mu.Unlock()
		s.dropped.Add(1)
		eventsDropped.Add(s.ctx, 1, s.attrs)
		slog.Info("Debounced reload dropped during cool-down", slog.String("topic", topic))
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	s.reloads.Add(1)
	reloadsStarted.Add(s.ctx, 1, s.attrs)
	slog.Debug("Reconciling after change events", slog.String("topic", topic))
	if err := s.reload(s.ctx); err != nil {
		s.failures.Add(1)
		reloadFailures.Add(s.ctx, 1, s.attrs)
		slog.Warn("Reconciliation reload failed",
			slog.String("topic", topic),
			slog.Any("error", err))
	}
}

// Cancel discards any pending debounced reload and reports whether one
// was pending.
func (s *Scheduler) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *Scheduler) stopLocked() bool {
	pending := false
	if s.timer != nil {
		pending = s.timer.Stop()
		s.timer = nil
	}
	s.gen++
	return pending
}

// Close cancels pending work, cancels the context of a running reload and
// waits for it to return. Later events are ignored.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.stopLocked()
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) Counters() Counters {
	return Counters{
		Reloads:   s.reloads.Load(),
		Failures:  s.failures.Load(),
		Coalesced: s.coalesced.Load(),
		Dropped:   s.dropped.Load(),
	}
}
