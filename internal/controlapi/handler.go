/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package controlapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"

	"github.com/friendsincode/signalcore/internal/room"
)

// Handler is the REST-JSON (and YAML body) mirror of the gRPC Control-API
// surface, mounted under the chi router. medea's own control API accepts
// YAML room specs over HTTP; this mirrors that while reusing the same
// Apply reconciliation the gRPC surface calls.
type Handler struct {
	rooms Rooms
}

// NewHandler constructs a REST-JSON Control-API handler.
func NewHandler(rooms Rooms) *Handler {
	return &Handler{rooms: rooms}
}

// Routes registers the Control-API REST endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Put("/control-api/rooms/{room_id}", h.applyRoom)
	r.Delete("/control-api/rooms/{room_id}", h.deleteRoom)
}

func (h *Handler) applyRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "room_id")

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, 1000, "failed to read request body")
		return
	}

	var spec RoomSpec
	if decodeErr := decodeSpecBody(r.Header.Get("Content-Type"), body, &spec); decodeErr != nil {
		writeError(w, http.StatusBadRequest, 1001, "malformed room spec: "+decodeErr.Error())
		return
	}
	if spec.ID == "" {
		spec.ID = roomID
	}
	if spec.ID != roomID {
		writeError(w, http.StatusBadRequest, 1002, "room id in path and body disagree")
		return
	}

	rm := h.rooms.GetOrCreate(roomID)
	if err := Apply(rm, spec); err != nil {
		writeRoomError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ApplyResponse{RoomID: roomID})
}

func (h *Handler) deleteRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "room_id")
	h.rooms.Delete(roomID)
	w.WriteHeader(http.StatusNoContent)
}

func decodeSpecBody(contentType string, body []byte, spec *RoomSpec) error {
	if strings.Contains(contentType, "yaml") {
		return yaml.Unmarshal(body, spec)
	}
	return json.Unmarshal(body, spec)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status, code int, text string) {
	writeJSON(w, status, ErrorResponse{Code: code, Text: text})
}

// writeRoomError maps a room.Error to the Control-API's client (1000s) /
// server (2000s) error code ranges.
func writeRoomError(w http.ResponseWriter, err error) {
	roomErr, ok := err.(*room.Error)
	if !ok {
		writeError(w, http.StatusInternalServerError, 2000, err.Error())
		return
	}

	switch roomErr.Kind {
	case room.BadRoomSpec, room.MemberAlreadyExists, room.EndpointAlreadyExists, room.WrongRoomID:
		writeError(w, http.StatusBadRequest, 1100+int(roomErr.Kind), roomErr.Message)
	case room.MemberError, room.PeerNotFound:
		writeError(w, http.StatusNotFound, 1200+int(roomErr.Kind), roomErr.Message)
	default:
		writeError(w, http.StatusInternalServerError, 2100+int(roomErr.Kind), roomErr.Message)
	}
}
