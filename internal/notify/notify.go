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

// Package notify carries user-facing notices from controllers to whatever
// is presenting them. A Notifier is constructed by the application and
// injected; there is no package-level default.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// Notice is one message for the user. Op names the operation that produced
// it, e.g. "load_page" or "delete".
type Notice struct {
	Level   Level
	Op      string
	Message string
	Err     error
	At      time.Time
}

type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, n Notice)

func (f Func) Notify(ctx context.Context, n Notice) {
	f(ctx, n)
}

// Logger writes notices to a slog.Logger.
type Logger struct {
	log *slog.Logger
}

// NewLogger returns a Logger writing to l, or to slog.Default when l is nil.
func NewLogger(l *slog.Logger) *Logger {
	if l == nil {
		l = slog.Default()
	}
	return &Logger{log: l}
}

func (l *Logger) Notify(ctx context.Context, n Notice) {
	level := slog.LevelInfo
	switch n.Level {
	case LevelWarning:
		level = slog.LevelWarn
	case LevelError:
		level = slog.LevelError
	}
	attrs := []slog.Attr{slog.String("op", n.Op)}
	if n.Err != nil {
		attrs = append(attrs, slog.Any("error", n.Err))
	}
	l.log.LogAttrs(ctx, level, n.Message, attrs...)
}

// Multi fans a notice out to every notifier in order.
func Multi(notifiers ...Notifier) Notifier {
	return Func(func(ctx context.Context, n Notice) {
		for _, nt := range notifiers {
			if nt != nil {
				nt.Notify(ctx, n)
			}
		}
	})
}

// Recorder keeps every notice it receives.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *Recorder) Notify(_ context.Context, n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// Ops lists the Op of each notice at level.
func (r *Recorder) Ops(level Level) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ops []string
	for _, n := range r.notices {
		if n.Level == level {
			ops = append(ops, n.Op)
		}
	}
	return ops
}
