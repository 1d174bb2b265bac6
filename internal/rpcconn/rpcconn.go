/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package rpcconn is the participant-facing transport: it accepts a
// client's WebSocket connection, authorizes it against a Room, and
// bridges the text-framed JSON event/command protocol onto the Room's
// Connection interface. No pings are sent and no idle timeout or
// reconnect window is applied: a failed read closes the member's
// connection at once with room.ReasonLostConnection.
package rpcconn

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/friendsincode/signalcore/internal/room"
)

// Registry is the subset of room.Registry that rpcconn needs.
type Registry interface {
	GetOrCreate(id string) *room.Room
	Get(id string) (*room.Room, bool)
}

// Server upgrades HTTP connections to WebSocket and runs the client RPC
// protocol loop for each.
type Server struct {
	rooms  Registry
	logger zerolog.Logger

	mu            sync.Mutex
	reconnectTimers map[string]*time.Timer
}

// NewServer constructs an RPC server bound to a room registry.
func NewServer(rooms Registry, logger zerolog.Logger) *Server {
	return &Server{
		rooms:           rooms,
		logger:          logger.With().Str("component", "rpcconn").Logger(),
		reconnectTimers: make(map[string]*time.Timer),
	}
}

// ServeHTTP implements the WebSocket upgrade endpoint. Expected query
// parameters: room_id, member_id, token (the member's credential).
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room_id")
	memberID := r.URL.Query().Get("member_id")
	token := r.URL.Query().Get("token")
	if roomID == "" || memberID == "" {
		http.Error(w, "missing room_id or member_id", http.StatusBadRequest)
		return
	}

	rm, ok := s.rooms.Get(roomID)
	if !ok {
		http.Error(w, "unknown room", http.StatusNotFound)
		return
	}

	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := &clientConnection{ws: c, logger: s.logger.With().Str("member_id", memberID).Logger()}

	s.cancelReconnectTimer(roomID + "/" + memberID)

	if err := rm.RpcConnectionEstablished(memberID, token, conn); err != nil {
		s.logger.Warn().Err(err).Str("member_id", memberID).Msg("rpc connection rejected")
		_ = c.Close(websocket.StatusPolicyViolation, "unauthorized")
		return
	}

	s.readLoop(r.Context(), rm, memberID, conn)
}

func (s *Server) readLoop(ctx context.Context, rm *room.Room, memberID string, conn *clientConnection) {
	reason := room.ReasonDisconnected
	defer func() {
		_ = rm.RpcConnectionClosed(memberID, reason)
		_ = conn.ws.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := conn.ws.Read(ctx)
		if err != nil {
			reason = room.ReasonLostConnection
			return
		}
		var envelope struct {
			Command string          `json:"command"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			s.logger.Warn().Err(err).Msg("malformed command envelope")
			continue
		}
		cmd, ok := decodeCommand(envelope.Command, envelope.Payload)
		if !ok {
			s.logger.Warn().Str("command", envelope.Command).Msg("unknown command")
			continue
		}
		if err := rm.HandleCommand(memberID, cmd); err != nil {
			s.logger.Warn().Err(err).Str("member_id", memberID).Msg("command handling failed")
		}
	}
}

func (s *Server) cancelReconnectTimer(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.reconnectTimers[key]; ok {
		t.Stop()
		delete(s.reconnectTimers, key)
	}
}

// clientConnection adapts a websocket.Conn to room.Connection.
type clientConnection struct {
	mu     sync.Mutex
	ws     *websocket.Conn
	logger zerolog.Logger
}

// Send implements room.Connection. A write failure is returned to the
// caller; the Room ignores it, so the connection stays open until its
// read loop fails.
func (c *clientConnection) Send(e room.Event) error {
	data, err := json.Marshal(encodeEvent(e))
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.Write(ctx, websocket.MessageText, data)
}
