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

// Package changefeed keeps a push subscription to a group of change topics
// alive, reconnecting with exponential backoff, and forwards every change
// notification as an invalidation signal.
package changefeed

// State is the connection state of a Manager.
type State int

const (
	Connecting State = iota
	Subscribed
	Errored
	Closed
	TimedOut
	// Disconnected is terminal: the retry budget is spent and no further
	// attempts are scheduled.
	Disconnected
)

var stateNames = [...]string{
	Connecting:   "connecting",
	Subscribed:   "subscribed",
	Errored:      "errored",
	Closed:       "closed",
	TimedOut:     "timed_out",
	Disconnected: "disconnected",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Live reports whether change events are currently being received.
func (s State) Live() bool {
	return s == Subscribed
}

// Status is what a Transport reports about one subscription attempt.
type Status int

const (
	StatusSubscribed Status = iota
	StatusClosed
	StatusErrored
	StatusTimedOut
)

func (s Status) String() string {
	switch s {
	case StatusSubscribed:
		return "subscribed"
	case StatusClosed:
		return "closed"
	case StatusErrored:
		return "errored"
	case StatusTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// state is the State entered when status arrives.
func (s Status) state() State {
	switch s {
	case StatusSubscribed:
		return Subscribed
	case StatusClosed:
		return Closed
	case StatusTimedOut:
		return TimedOut
	default:
		return Errored
	}
}
