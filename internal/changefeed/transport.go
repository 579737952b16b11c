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
	"fmt"
	"strings"
	"time"
)

// Event is one change notification. Consumers treat it purely as "topic
// changed"; Kind and Keys are informational.
type Event struct {
	Topic string    `json:"topic"`
	Kind  string    `json:"kind,omitempty"`
	Keys  []string  `json:"keys,omitempty"`
	At    time.Time `json:"at"`
}

const (
	KindInsert = "insert"
	KindUpdate = "update"
	KindDelete = "delete"
)

// Handler receives the callbacks of one subscription attempt. Calls may
// arrive on any goroutine and must not block.
type Handler interface {
	OnStatus(status Status, err error)
	OnEvent(ev Event)
}

// Subscription is a live channel returned by a Transport.
type Subscription interface {
	// Unsubscribe tears the channel down. No callbacks are delivered after
	// it returns.
	Unsubscribe() error
}

// Transport opens push channels. Subscribe returns promptly; the outcome is
// reported through Handler.OnStatus. An error return is an immediate
// failure of the attempt.
type Transport interface {
	Subscribe(ctx context.Context, channel string, topics []string, h Handler) (Subscription, error)
}

// Publisher emits change events onto the feed.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

var (
	ErrSubscribeTimeout = errors.New("changefeed: subscribe timed out")
	ErrChannelClosed    = errors.New("changefeed: channel closed by remote")
	ErrIdleTimeout      = errors.New("changefeed: no traffic from remote")
)

// SubscriptionError is reported once the retry budget is exhausted.
type SubscriptionError struct {
	Channel  string
	Topics   []string
	Attempts int
	Err      error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("live updates unavailable for %s after %d attempts: %v",
		strings.Join(e.Topics, ","), e.Attempts, e.Err)
}

func (e *SubscriptionError) Unwrap() error {
	return e.Err
}
