/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package controlapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/signalcore/internal/room"
	"github.com/friendsincode/signalcore/internal/trafficwatcher"
	"github.com/friendsincode/signalcore/internal/turnauth"
)

func newTestRooms(t *testing.T) *room.Registry {
	t.Helper()
	watcher := trafficwatcher.New(context.Background(), zerolog.Nop())
	t.Cleanup(watcher.Close)
	turn := turnauth.New(turnauth.Config{}, nil, zerolog.Nop())
	t.Cleanup(turn.Close)
	return room.NewRegistry(turn, watcher, nil, nil, zerolog.Nop())
}

func newTestRouter(rooms Rooms) chi.Router {
	r := chi.NewRouter()
	NewHandler(rooms).Routes(r)
	return r
}

func TestApplyRoom_CreatesMembers(t *testing.T) {
	rooms := newTestRooms(t)
	router := newTestRouter(rooms)

	spec := RoomSpec{
		ID: "room1",
		Members: []MemberSpec{
			{ID: "alice", Credential: "secret"},
		},
	}
	body, err := json.Marshal(spec)
	if err != nil {
		t.Fatalf("marshal spec: %v", err)
	}

	req := httptest.NewRequest(http.MethodPut, "/control-api/rooms/room1", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rm, ok := rooms.Get("room1")
	if !ok {
		t.Fatal("expected room1 to exist")
	}
	if ids := rm.MemberIDs(); len(ids) != 1 || ids[0] != "alice" {
		t.Fatalf("expected member alice, got %v", ids)
	}
}

func TestApplyRoom_RejectsRoomIDMismatch(t *testing.T) {
	rooms := newTestRooms(t)
	router := newTestRouter(rooms)

	spec := RoomSpec{ID: "other"}
	body, _ := json.Marshal(spec)

	req := httptest.NewRequest(http.MethodPut, "/control-api/rooms/room1", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Code != 1002 {
		t.Fatalf("expected error code 1002, got %d", errResp.Code)
	}
}

func TestApplyRoom_AcceptsYAMLBody(t *testing.T) {
	rooms := newTestRooms(t)
	router := newTestRouter(rooms)

	yamlBody := "id: room1\nmembers:\n  - id: bob\n    credential: secret\n"

	req := httptest.NewRequest(http.MethodPut, "/control-api/rooms/room1", strings.NewReader(yamlBody))
	req.Header.Set("Content-Type", "application/yaml")
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rm, ok := rooms.Get("room1")
	if !ok {
		t.Fatal("expected room1 to exist")
	}
	if ids := rm.MemberIDs(); len(ids) != 1 || ids[0] != "bob" {
		t.Fatalf("expected member bob, got %v", ids)
	}
}

func TestDeleteRoom_RemovesRoom(t *testing.T) {
	rooms := newTestRooms(t)
	router := newTestRouter(rooms)

	rooms.GetOrCreate("room1")

	req := httptest.NewRequest(http.MethodDelete, "/control-api/rooms/room1", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if _, ok := rooms.Get("room1"); ok {
		t.Fatal("expected room1 to be gone")
	}
}

func TestWriteRoomError_MapsMemberAlreadyExists(t *testing.T) {
	rr := httptest.NewRecorder()
	writeRoomError(rr, &room.Error{Kind: room.MemberAlreadyExists, Message: "member alice already exists"})

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Code != 1100+int(room.MemberAlreadyExists) {
		t.Fatalf("unexpected error code %d", errResp.Code)
	}
}
