/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package controlapi

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/signalcore/internal/room"
	"github.com/friendsincode/signalcore/internal/trafficwatcher"
	"github.com/friendsincode/signalcore/internal/turnauth"
)

func newTestRoom(t *testing.T) *room.Room {
	t.Helper()
	watcher := trafficwatcher.New(context.Background(), zerolog.Nop())
	t.Cleanup(watcher.Close)
	turn := turnauth.New(turnauth.Config{}, nil, zerolog.Nop())
	t.Cleanup(turn.Close)
	r := room.New("room1", turn, watcher, noopCallback{}, noopAudit{}, zerolog.Nop())
	t.Cleanup(r.Close)
	return r
}

type noopCallback struct{}

func (noopCallback) OnJoin(string, time.Time)                         {}
func (noopCallback) OnLeave(string, time.Time, room.CloseReason)       {}
func (noopCallback) OnStart(string, string, string, time.Time)        {}
func (noopCallback) OnStop(string, string, string, string, time.Time) {}

type noopAudit struct{}

func (noopAudit) Record(string, string, string, string, string, map[string]any) {}

func TestApplyCreatesMembersAndEndpoints(t *testing.T) {
	rm := newTestRoom(t)
	spec := RoomSpec{
		ID: "room1",
		Members: []MemberSpec{
			{
				ID:         "alice",
				Credential: "secret",
				Publish:    []PublishEndpointSpec{{ID: "webcam"}},
			},
			{
				ID:         "bob",
				Credential: "secret2",
				Play:       []PlayEndpointSpec{{ID: "view", Src: "local://room1/alice/webcam"}},
			},
		},
	}
	if err := Apply(rm, spec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rm.HasMember("alice") || !rm.HasMember("bob") {
		t.Fatal("expected both members to be created")
	}
	pub, _ := rm.EndpointIDs("alice")
	if len(pub) != 1 || pub[0] != "webcam" {
		t.Fatalf("expected alice to have webcam publish endpoint, got %v", pub)
	}
	_, play := rm.EndpointIDs("bob")
	if len(play) != 1 || play[0] != "view" {
		t.Fatalf("expected bob to have view play endpoint, got %v", play)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	rm := newTestRoom(t)
	spec := RoomSpec{
		ID: "room1",
		Members: []MemberSpec{
			{ID: "alice", Credential: "secret", Publish: []PublishEndpointSpec{{ID: "webcam"}}},
		},
	}
	if err := Apply(rm, spec); err != nil {
		t.Fatalf("unexpected error on first apply: %v", err)
	}
	if err := Apply(rm, spec); err != nil {
		t.Fatalf("unexpected error on repeat apply: %v", err)
	}
	pub, _ := rm.EndpointIDs("alice")
	if len(pub) != 1 {
		t.Fatalf("expected exactly one publish endpoint after repeat apply, got %v", pub)
	}
}

func TestApplyRemovesMembersAndEndpointsNotInSpec(t *testing.T) {
	rm := newTestRoom(t)
	first := RoomSpec{
		ID: "room1",
		Members: []MemberSpec{
			{ID: "alice", Credential: "secret", Publish: []PublishEndpointSpec{{ID: "webcam"}, {ID: "screen"}}},
			{ID: "bob", Credential: "secret2"},
		},
	}
	if err := Apply(rm, first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second := RoomSpec{
		ID: "room1",
		Members: []MemberSpec{
			{ID: "alice", Credential: "secret", Publish: []PublishEndpointSpec{{ID: "webcam"}}},
		},
	}
	if err := Apply(rm, second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rm.HasMember("bob") {
		t.Fatal("expected bob to be removed")
	}
	pub, _ := rm.EndpointIDs("alice")
	if len(pub) != 1 || pub[0] != "webcam" {
		t.Fatalf("expected only webcam to remain, got %v", pub)
	}
}
