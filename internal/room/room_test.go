/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package room

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/signalcore/internal/trafficwatcher"
	"github.com/friendsincode/signalcore/internal/turnauth"
)

type fakeConn struct {
	events []Event
}

func (f *fakeConn) Send(e Event) error {
	f.events = append(f.events, e)
	return nil
}

type noopCallback struct{}

func (noopCallback) OnJoin(string, time.Time)                          {}
func (noopCallback) OnLeave(string, time.Time, CloseReason)            {}
func (noopCallback) OnStart(string, string, string, time.Time)         {}
func (noopCallback) OnStop(string, string, string, string, time.Time)  {}

type noopAudit struct{}

func (noopAudit) Record(string, string, string, string, string, map[string]any) {}

func newTestRoom(t *testing.T) *Room {
	t.Helper()
	watcher := trafficwatcher.New(context.Background(), zerolog.Nop())
	t.Cleanup(watcher.Close)
	turn := turnauth.New(turnauth.Config{}, nil, zerolog.Nop())
	t.Cleanup(turn.Close)
	r := New("room1", turn, watcher, noopCallback{}, noopAudit{}, zerolog.Nop())
	t.Cleanup(r.Close)
	return r
}

func TestMemberDeleteIsIdempotent(t *testing.T) {
	r := newTestRoom(t)
	if err := r.EnsureMember("alice", "secret", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.DeleteMember("alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.DeleteMember("alice"); err != nil {
		t.Fatalf("expected idempotent delete, got %v", err)
	}
}

func TestEnsureMemberAlreadyExists(t *testing.T) {
	r := newTestRoom(t)
	if err := r.EnsureMember("alice", "secret", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := r.EnsureMember("alice", "secret", true)
	roomErr, ok := err.(*Error)
	if !ok || roomErr.Kind != MemberAlreadyExists {
		t.Fatalf("expected MemberAlreadyExists, got %v", err)
	}
}

func TestRpcConnectionEstablishedRejectsBadCredential(t *testing.T) {
	r := newTestRoom(t)
	if err := r.EnsureMember("alice", "secret", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := r.RpcConnectionEstablished("alice", "wrong", &fakeConn{})
	if err == nil {
		t.Fatal("expected credential mismatch error")
	}
}

func TestCommandOnUnknownPeerIsDroppedNotErrored(t *testing.T) {
	r := newTestRoom(t)
	if err := r.EnsureMember("alice", "secret", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	conn := &fakeConn{}
	if err := r.RpcConnectionEstablished("alice", "secret", conn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := r.HandleCommand("alice", Command{Kind: CommandSetIceCandidate, PeerID: "does-not-exist"})
	if err != nil {
		t.Fatalf("expected unknown-peer command to be silently dropped, got %v", err)
	}
}

func TestConnectionNotExistsOnCloseWithoutEstablish(t *testing.T) {
	r := newTestRoom(t)
	if err := r.EnsureMember("alice", "secret", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := r.RpcConnectionClosed("alice", ReasonDisconnected)
	roomErr, ok := err.(*Error)
	if !ok || roomErr.Kind != ConnectionNotExists {
		t.Fatalf("expected ConnectionNotExists, got %v", err)
	}
}
