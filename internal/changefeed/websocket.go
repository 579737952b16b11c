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
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketConfig points at a realtime gateway speaking the join/event
// protocol below.
type WebSocketConfig struct {
	URL               string        `mapstructure:"url"`
	Token             string        `mapstructure:"token"`
	HandshakeTimeout  time.Duration `mapstructure:"handshake_timeout"`
	JoinTimeout       time.Duration `mapstructure:"join_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		URL:               "ws://localhost:4000/realtime",
		HandshakeTimeout:  10 * time.Second,
		JoinTimeout:       10 * time.Second,
		HeartbeatInterval: 30 * time.Second,
	}
}

// Wire messages. The client sends join and heartbeat; the gateway answers
// with join_ack, then streams event messages until either side closes.
// Every heartbeat also carries a websocket ping. A subscribed connection
// that hears nothing, not even a pong, for two heartbeat intervals is
// reported as timed out.
const (
	MsgJoin      = "join"
	MsgJoinAck   = "join_ack"
	MsgHeartbeat = "heartbeat"
	MsgEvent     = "event"
	MsgLeave     = "leave"
)

type Message struct {
	Type    string   `json:"type"`
	Ref     string   `json:"ref,omitempty"`
	Channel string   `json:"channel,omitempty"`
	Topics  []string `json:"topics,omitempty"`
	Status  string   `json:"status,omitempty"`
	Reason  string   `json:"reason,omitempty"`
	Event   *Event   `json:"event,omitempty"`
}

type WebSocketTransport struct {
	cfg    WebSocketConfig
	dialer *websocket.Dialer
}

var _ Transport = (*WebSocketTransport)(nil)

func NewWebSocketTransport(cfg WebSocketConfig) *WebSocketTransport {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = 10 * time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	return &WebSocketTransport{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
	}
}

type wsSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	channel string
	closing atomic.Bool
}

func (s *wsSubscription) send(msg Message) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return errors.New("websocket not connected")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteJSON(msg)
}

func (s *wsSubscription) ping() error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return errors.New("websocket not connected")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
}

func (s *wsSubscription) Unsubscribe() error {
	s.closing.Store(true)
	s.cancel()
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		_ = s.send(Message{Type: MsgLeave, Channel: s.channel})
		s.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		_ = conn.Close()
	}
	<-s.done
	return nil
}

func (t *WebSocketTransport) Subscribe(ctx context.Context, channel string, topics []string, h Handler) (Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	sub := &wsSubscription{cancel: cancel, done: make(chan struct{}), channel: channel}
	go func() {
		defer close(sub.done)
		t.run(ctx, sub, channel, topics, h)
	}()
	return sub, nil
}

func (t *WebSocketTransport) run(ctx context.Context, sub *wsSubscription, channel string, topics []string, h Handler) {
	header := http.Header{}
	if t.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+t.cfg.Token)
	}
	conn, resp, err := t.dialer.DialContext(ctx, t.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		h.OnStatus(dialStatus(err), fmt.Errorf("dial %s: %w", t.cfg.URL, err))
		return
	}
	sub.mu.Lock()
	sub.conn = conn
	sub.mu.Unlock()
	if ctx.Err() != nil {
		_ = conn.Close()
		return
	}

	if err := sub.send(Message{Type: MsgJoin, Ref: "1", Channel: channel, Topics: topics}); err != nil {
		h.OnStatus(StatusErrored, fmt.Errorf("send join: %w", err))
		_ = conn.Close()
		return
	}

	_ = conn.SetReadDeadline(time.Now().Add(t.cfg.JoinTimeout))
	var ack Message
	if err := conn.ReadJSON(&ack); err != nil {
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		if isTimeout(err) {
			h.OnStatus(StatusTimedOut, ErrSubscribeTimeout)
		} else {
			h.OnStatus(StatusErrored, fmt.Errorf("read join ack: %w", err))
		}
		return
	}
	if ack.Type != MsgJoinAck || ack.Status != "ok" {
		_ = conn.Close()
		h.OnStatus(StatusErrored, fmt.Errorf("join rejected: %s %s", ack.Status, ack.Reason))
		return
	}
	idle := 2 * t.cfg.HeartbeatInterval
	extend := func() error { return conn.SetReadDeadline(time.Now().Add(idle)) }
	_ = extend()
	conn.SetPongHandler(func(string) error { return extend() })
	h.OnStatus(StatusSubscribed, nil)

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t.heartbeat(hbCtx, sub)
	}()
	defer wg.Wait()
	defer stopHeartbeat()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			_ = conn.Close()
			if sub.closing.Load() || ctx.Err() != nil {
				return
			}
			if isTimeout(err) {
				h.OnStatus(StatusTimedOut, fmt.Errorf("%w for %s", ErrIdleTimeout, idle))
				return
			}
			h.OnStatus(StatusClosed, fmt.Errorf("%w: %v", ErrChannelClosed, err))
			return
		}
		_ = extend()
		switch msg.Type {
		case MsgEvent:
			if msg.Event != nil {
				h.OnEvent(*msg.Event)
			}
		case MsgHeartbeat, MsgJoinAck:
		default:
			slog.Debug("Ignoring realtime message", slog.String("type", msg.Type))
		}
	}
}

func (t *WebSocketTransport) heartbeat(ctx context.Context, sub *wsSubscription) {
	ticker := time.NewTicker(t.cfg.HeartbeatInterval)
	defer ticker.Stop()
	ref := 1
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ref++
			if err := sub.send(Message{Type: MsgHeartbeat, Ref: strconv.Itoa(ref)}); err != nil {
				slog.Debug("Heartbeat failed", slog.Any("error", err))
				return
			}
			if err := sub.ping(); err != nil {
				slog.Debug("Ping failed", slog.Any("error", err))
				return
			}
		}
	}
}

func dialStatus(err error) Status {
	if isTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return StatusTimedOut
	}
	return StatusErrored
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
