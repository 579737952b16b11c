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
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/pulseboard/internal/idgen"
)

const DefaultSubscribeTimeout = 10 * time.Second

type ManagerConfig struct {
	// ChannelPrefix names channels "<prefix>-<id>"; the id is unique per
	// attempt so concurrent watchers of the same topics never collide.
	ChannelPrefix string
	Topics        []string
	Retry         RetryPolicy
	// SubscribeTimeout bounds how long an attempt may stay Connecting.
	SubscribeTimeout time.Duration

	OnEvent       func(Event)
	OnStateChange func(State)
	// OnExhausted is called once when the manager gives up.
	OnExhausted func(error)
}

// attempt is one Subscribe call. Callbacks carrying an old attempt are
// ignored.
type attempt struct {
	epoch   uint64
	channel string
	sub     Subscription
	failed  bool
	timer   *time.Timer
}

// Manager runs the subscription state machine for one topic group:
//
//	Connecting --subscribed--> Subscribed
//	Connecting --error/timeout--> Errored --backoff--> Connecting
//	Subscribed --closed--> Closed --backoff--> Connecting
//	Subscribed --timeout--> TimedOut --backoff--> Connecting
//	any failure with the retry budget spent --> Disconnected
type Manager struct {
	transport Transport
	cfg       ManagerConfig
	attrs     metric.MeasurementOption

	mu       sync.Mutex
	state    State
	retry    RetryPolicy
	epoch    uint64
	current  *attempt
	retryT   *time.Timer
	started  bool
	stopped  bool
	lastErr  error
	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
	teardown sync.WaitGroup
}

func NewManager(transport Transport, cfg ManagerConfig) *Manager {
	cfg.Retry = cfg.Retry.withDefaults()
	if cfg.SubscribeTimeout <= 0 {
		cfg.SubscribeTimeout = DefaultSubscribeTimeout
	}
	if cfg.ChannelPrefix == "" {
		cfg.ChannelPrefix = "pulseboard"
	}
	cfg.Topics = slices.Clone(cfg.Topics)
	return &Manager{
		transport: transport,
		cfg:       cfg,
		attrs:     metric.WithAttributes(attribute.String("topics", topicsLabel(cfg.Topics))),
		state:     Connecting,
		retry:     cfg.Retry.Reset(),
	}
}

// Start begins the first attempt. Attempts run until Close or until ctx
// is cancelled.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started || m.stopped {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	m.connect()
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Retry returns the current retry state.
func (m *Manager) Retry() RetryPolicy {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retry
}

// Channel is the name of the current or most recent attempt's channel.
func (m *Manager) Channel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ""
	}
	return m.current.channel
}

func (m *Manager) Topics() []string {
	return slices.Clone(m.cfg.Topics)
}

func (m *Manager) connect() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.inflight.Add(1)
	defer m.inflight.Done()
	m.epoch++
	a := &attempt{epoch: m.epoch, channel: idgen.SessionName(m.cfg.ChannelPrefix)}
	m.current = a
	changed := m.setStateLocked(Connecting)
	a.timer = time.AfterFunc(m.cfg.SubscribeTimeout, func() {
		m.transition(a, StatusTimedOut, ErrSubscribeTimeout, true)
	})
	ctx := m.ctx
	m.mu.Unlock()
	m.notifyState(changed)

	slog.Debug("Opening change feed channel",
		slog.String("channel", a.channel),
		slog.Any("topics", m.cfg.Topics))
	sub, err := m.transport.Subscribe(ctx, a.channel, m.cfg.Topics, &attemptHandler{m: m, a: a})
	if err != nil {
		m.handleStatus(a, StatusErrored, err)
	}

	m.mu.Lock()
	a.sub = sub
	drop := sub != nil && (a.failed || m.stopped || a.epoch != m.epoch)
	m.mu.Unlock()
	if drop {
		m.release(sub)
	}
}

type attemptHandler struct {
	m *Manager
	a *attempt
}

func (h *attemptHandler) OnStatus(status Status, err error) {
	h.m.handleStatus(h.a, status, err)
}

func (h *attemptHandler) OnEvent(ev Event) {
	h.m.handleEvent(h.a, ev)
}

func (m *Manager) handleEvent(a *attempt, ev Event) {
	m.mu.Lock()
	live := !m.stopped && a.epoch == m.epoch && !a.failed && m.state == Subscribed
	m.mu.Unlock()
	if !live {
		return
	}
	eventsReceived.Add(context.Background(), 1, m.attrs)
	if m.cfg.OnEvent != nil {
		m.cfg.OnEvent(ev)
	}
}

func (m *Manager) handleStatus(a *attempt, status Status, err error) {
	m.transition(a, status, err, false)
}

// transition applies status to attempt a. With connectingOnly set it is a
// no-op unless the manager is still Connecting.
func (m *Manager) transition(a *attempt, status Status, err error, connectingOnly bool) {
	m.mu.Lock()
	if m.stopped || a.epoch != m.epoch || a.failed || (connectingOnly && m.state != Connecting) {
		m.mu.Unlock()
		return
	}

	if status == StatusSubscribed {
		if m.state != Connecting {
			m.mu.Unlock()
			return
		}
		a.timer.Stop()
		m.retry = m.retry.Reset()
		m.lastErr = nil
		changed := m.setStateLocked(Subscribed)
		m.mu.Unlock()
		slog.Info("Change feed subscribed", slog.String("channel", a.channel))
		m.notifyState(changed)
		return
	}

	a.failed = true
	a.timer.Stop()
	if err == nil && status == StatusClosed {
		err = ErrChannelClosed
	}
	m.lastErr = err
	changed := m.setStateLocked(status.state())
	sub := a.sub

	var (
		exhausted error
		delay     time.Duration
	)
	if m.retry.Exhausted() {
		exhausted = &SubscriptionError{
			Channel:  a.channel,
			Topics:   slices.Clone(m.cfg.Topics),
			Attempts: m.retry.Attempt + 1,
			Err:      err,
		}
		m.setStateLocked(Disconnected)
	} else {
		delay = m.retry.Delay()
		m.retry = m.retry.Next()
		retryAttempts.Add(context.Background(), 1, m.attrs)
		m.retryT = time.AfterFunc(delay, m.connect)
	}
	final := m.state
	m.mu.Unlock()

	if sub != nil {
		m.release(sub)
	}
	if changed {
		m.notify(status.state())
	}

	if exhausted != nil {
		slog.Warn("Change feed retries exhausted, live updates unavailable",
			slog.Any("topics", m.cfg.Topics),
			slog.Any("error", err))
		m.notify(final)
		if m.cfg.OnExhausted != nil {
			m.cfg.OnExhausted(exhausted)
		}
		return
	}
	slog.Info("Change feed attempt failed, retrying",
		slog.String("channel", a.channel),
		slog.String("status", status.String()),
		slog.Duration("backoff", delay),
		slog.Any("error", err))
}

func (m *Manager) setStateLocked(s State) bool {
	if m.state == s {
		return false
	}
	m.state = s
	stateTransitions.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("state", s.String()),
	))
	return true
}

func (m *Manager) notifyState(changed bool) {
	if !changed {
		return
	}
	m.notify(m.State())
}

func (m *Manager) notify(s State) {
	if m.cfg.OnStateChange != nil {
		m.cfg.OnStateChange(s)
	}
}

// release unsubscribes off the callback goroutine; transports may wait for
// their delivery goroutine, which could be the caller.
func (m *Manager) release(sub Subscription) {
	m.teardown.Add(1)
	go func() {
		defer m.teardown.Done()
		if err := sub.Unsubscribe(); err != nil {
			slog.Debug("Unsubscribe failed", slog.Any("error", err))
		}
	}()
}

// LastError is the failure behind the current non-live state, if any.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Close stops retrying, tears the channel down and waits for teardown.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	if m.retryT != nil {
		m.retryT.Stop()
	}
	var sub Subscription
	if a := m.current; a != nil {
		if a.timer != nil {
			a.timer.Stop()
		}
		if !a.failed {
			sub = a.sub
		}
	}
	m.state = Closed
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Unlock()

	var errs *multierror.Error
	if sub != nil {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, context.Canceled) {
			errs = multierror.Append(errs, err)
		}
	}
	m.inflight.Wait()
	m.teardown.Wait()
	return errs.ErrorOrNil()
}

func topicsLabel(topics []string) string {
	sorted := slices.Clone(topics)
	slices.Sort(sorted)
	return strings.Join(sorted, ",")
}
