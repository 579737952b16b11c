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

// Package healthcheck serves liveness and readiness endpoints for
// long-running commands. Readiness is the conjunction of named probes.
package healthcheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

type Config struct {
	// Port is the listen port. Zero disables the server.
	Port int `mapstructure:"port"`
}

// Probe reports why a condition is not yet met, or nil when it is.
type Probe func() error

// Response is the body of every endpoint.
type Response struct {
	Healthy    bool              `json:"healthy"`
	Conditions map[string]string `json:"conditions,omitempty"`
}

type Server struct {
	port  int
	alive atomic.Bool

	mu     sync.Mutex
	probes map[string]Probe
	server *http.Server
}

func NewServer(cfg Config) *Server {
	s := &Server{
		port:   cfg.Port,
		probes: map[string]Probe{},
	}
	s.alive.Store(true)
	return s
}

// Enabled reports whether a port was configured.
func (s *Server) Enabled() bool {
	return s.port > 0
}

// SetAlive flips the liveness endpoint.
func (s *Server) SetAlive(alive bool) {
	s.alive.Store(alive)
	slog.Debug("Liveness updated", slog.Bool("alive", alive))
}

// AddProbe registers or replaces a named readiness condition.
func (s *Server) AddProbe(name string, p Probe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probes[name] = p
}

func (s *Server) RemoveProbe(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.probes, name)
}

// Ready evaluates every probe. Conditions maps each probe name to "ok" or
// the reason it failed.
func (s *Server) Ready() Response {
	s.mu.Lock()
	names := make([]string, 0, len(s.probes))
	for name := range s.probes {
		names = append(names, name)
	}
	probes := make([]Probe, len(names))
	slices.Sort(names)
	for i, name := range names {
		probes[i] = s.probes[name]
	}
	s.mu.Unlock()

	resp := Response{Healthy: s.alive.Load(), Conditions: make(map[string]string, len(names))}
	for i, name := range names {
		if err := probes[i](); err != nil {
			resp.Healthy = false
			resp.Conditions[name] = err.Error()
			continue
		}
		resp.Conditions[name] = "ok"
	}
	return resp
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", s.livezHandler)
	mux.HandleFunc("/readyz", s.readyzHandler)
	return mux
}

// Start serves until ctx is done. It returns nil right away when the
// server is disabled.
func (s *Server) Start(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("health check listen: %w", err)
	}

	s.mu.Lock()
	s.server = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	srv := s.server
	s.mu.Unlock()

	slog.Info("Starting health check server", slog.Int("port", s.port))
	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) Stop() error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	slog.Info("Stopping health check server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func (s *Server) livezHandler(w http.ResponseWriter, _ *http.Request) {
	writeResponse(w, Response{Healthy: s.alive.Load()})
}

func (s *Server) readyzHandler(w http.ResponseWriter, _ *http.Request) {
	writeResponse(w, s.Ready())
}

func writeResponse(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	if resp.Healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode health check response", slog.Any("error", err))
	}
}
