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

package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerMapsLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	l.Notify(context.Background(), Notice{Level: LevelError, Op: "delete", Message: "Delete failed", Err: errors.New("boom")})
	l.Notify(context.Background(), Notice{Level: LevelWarning, Op: "live", Message: "Live updates unavailable"})

	out := buf.String()
	assert.Contains(t, out, `level=ERROR msg="Delete failed" op=delete error=boom`)
	assert.Contains(t, out, `level=WARN msg="Live updates unavailable" op=live`)
}

func TestMultiAndRecorder(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	n := Multi(a, nil, b)

	n.Notify(context.Background(), Notice{Level: LevelInfo, Op: "one"})
	n.Notify(context.Background(), Notice{Level: LevelError, Op: "two"})

	require.Len(t, a.Notices(), 2)
	assert.Equal(t, a.Notices(), b.Notices())
	assert.Equal(t, []string{"two"}, a.Ops(LevelError))
	assert.Nil(t, a.Ops(LevelWarning))
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "warning", LevelWarning.String())
	assert.Equal(t, "unknown", Level(9).String())
}
