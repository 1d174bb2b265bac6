/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package callback

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/signalcore/internal/models"
)

type fakeResolver struct {
	targets []models.CallbackTarget
}

func (f *fakeResolver) ResolveTargets(roomID string, kind models.CallbackKind) []models.CallbackTarget {
	var out []models.CallbackTarget
	for _, t := range f.targets {
		if t.RoomID == roomID && t.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}

func TestOnJoinDeliversToMatchingTarget(t *testing.T) {
	var mu sync.Mutex
	var gotSignature string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotSignature = r.Header.Get("X-Signature")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resolver := &fakeResolver{targets: []models.CallbackTarget{
		{ID: "t1", RoomID: "room1", Kind: models.CallbackOnJoin, URL: srv.URL, Secret: "sekret", Active: true},
	}}
	var outcomes []string
	svc := NewService(nil, resolver, zerolog.Nop(), func(o string) {
		mu.Lock()
		outcomes = append(outcomes, o)
		mu.Unlock()
	})

	svc.OnJoin("room1/alice", time.Now())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := len(outcomes) > 0
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(outcomes) != 1 || outcomes[0] != "success" {
		t.Fatalf("expected one success outcome, got %v", outcomes)
	}
	if gotSignature == "" {
		t.Fatal("expected HMAC signature header to be set")
	}
}

func TestOnLeaveSkipsUnrelatedTargets(t *testing.T) {
	var hit int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hit++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resolver := &fakeResolver{targets: []models.CallbackTarget{
		{ID: "t1", RoomID: "other-room", Kind: models.CallbackOnLeave, URL: srv.URL, Active: true},
	}}
	svc := NewService(nil, resolver, zerolog.Nop(), nil)
	svc.OnLeave("room1/alice", time.Now(), 0)

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if hit != 0 {
		t.Fatalf("expected no delivery for unrelated room, got %d hits", hit)
	}
}
