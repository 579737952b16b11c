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

package healthcheck

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, h http.Handler, path string) (int, Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	return rec.Code, resp
}

func TestReadyWithoutProbes(t *testing.T) {
	s := NewServer(Config{})
	code, resp := get(t, s.Handler(), "/readyz")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Healthy)
}

func TestReadyReportsFailingProbe(t *testing.T) {
	s := NewServer(Config{})
	loaded := false
	s.AddProbe("page_loaded", func() error {
		if !loaded {
			return errors.New("first page not loaded")
		}
		return nil
	})
	s.AddProbe("live_updates", func() error { return nil })

	code, resp := get(t, s.Handler(), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.False(t, resp.Healthy)
	assert.Equal(t, map[string]string{
		"page_loaded":  "first page not loaded",
		"live_updates": "ok",
	}, resp.Conditions)

	loaded = true
	code, resp = get(t, s.Handler(), "/readyz")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Healthy)

	s.RemoveProbe("live_updates")
	assert.Len(t, s.Ready().Conditions, 1)
}

func TestLiveness(t *testing.T) {
	s := NewServer(Config{})
	code, _ := get(t, s.Handler(), "/livez")
	assert.Equal(t, http.StatusOK, code)

	s.SetAlive(false)
	code, resp := get(t, s.Handler(), "/livez")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.False(t, resp.Healthy)
	assert.False(t, s.Ready().Healthy, "a dead process is never ready")
}

func TestStartDisabled(t *testing.T) {
	s := NewServer(Config{})
	assert.False(t, s.Enabled())
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
}

func TestStartStopsOnCancel(t *testing.T) {
	s := NewServer(Config{Port: 18391})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://127.0.0.1:18391/livez")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
