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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDoublesUntilCap(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 10, Base: time.Second, Max: 30 * time.Second}

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for attempt, d := range want {
		assert.Equal(t, d, p.Backoff(attempt), "attempt %d", attempt)
	}
	assert.Equal(t, time.Second, p.Backoff(-1))
	assert.Equal(t, 30*time.Second, p.Backoff(200))
}

func TestRetryPolicyIsAValue(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.False(t, p.Exhausted())
	assert.Equal(t, time.Second, p.Delay())

	q := p.Next().Next()
	assert.Equal(t, 0, p.Attempt)
	assert.Equal(t, 2, q.Attempt)
	assert.Equal(t, 4*time.Second, q.Delay())
	assert.False(t, q.Exhausted())

	q = q.Next()
	assert.True(t, q.Exhausted())
	assert.Equal(t, 0, q.Reset().Attempt)
}

func TestRetryPolicyDefaults(t *testing.T) {
	p := RetryPolicy{MaxAttempts: -2}.withDefaults()
	assert.Equal(t, 0, p.MaxAttempts)
	assert.True(t, p.Exhausted())
	assert.Equal(t, DefaultBackoffBase, p.Base)
	assert.Equal(t, DefaultBackoffMax, p.Max)
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "timed_out", TimedOut.String())
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "unknown", State(42).String())
	assert.True(t, Subscribed.Live())
	assert.False(t, Errored.Live())

	assert.Equal(t, Closed, StatusClosed.state())
	assert.Equal(t, TimedOut, StatusTimedOut.state())
	assert.Equal(t, Errored, StatusErrored.state())
	assert.Equal(t, "subscribed", StatusSubscribed.String())
}
