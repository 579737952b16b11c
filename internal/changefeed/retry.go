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

import "time"

const (
	DefaultMaxAttempts = 3
	DefaultBackoffBase = time.Second
	DefaultBackoffMax  = 30 * time.Second
)

// RetryPolicy is the inspectable retry state of one topic group. Attempt
// counts consecutive failed attempts; a successful subscribe resets it.
type RetryPolicy struct {
	Attempt     int
	MaxAttempts int
	Base        time.Duration
	Max         time.Duration
}

// DefaultRetryPolicy allows three retries starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		Base:        DefaultBackoffBase,
		Max:         DefaultBackoffMax,
	}
}

// Backoff is min(Max, Base * 2^attempt).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := p.Base
	for range attempt {
		if p.Max > 0 && d >= p.Max {
			break
		}
		d *= 2
		if d <= 0 {
			return p.Max
		}
	}
	if p.Max > 0 && d > p.Max {
		return p.Max
	}
	return d
}

// Delay is the backoff before the next retry.
func (p RetryPolicy) Delay() time.Duration {
	return p.Backoff(p.Attempt)
}

// Exhausted reports whether no retries remain.
func (p RetryPolicy) Exhausted() bool {
	return p.Attempt >= p.MaxAttempts
}

// Next records one more retry.
func (p RetryPolicy) Next() RetryPolicy {
	p.Attempt++
	return p
}

// Reset clears the attempt count after a successful subscribe.
func (p RetryPolicy) Reset() RetryPolicy {
	p.Attempt = 0
	return p
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts < 0 {
		p.MaxAttempts = 0
	}
	if p.Base <= 0 {
		p.Base = DefaultBackoffBase
	}
	if p.Max <= 0 {
		p.Max = DefaultBackoffMax
	}
	return p
}
