/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package turnauth

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestCreateFallsBackToStaticWhenUnconfigured(t *testing.T) {
	svc := New(Config{
		Static: []StaticServer{{URLs: []string{"stun:stun.example.com:3478"}, User: "u", Pass: "p"}},
	}, nil, zerolog.Nop())
	defer svc.Close()

	user, err := svc.Create(context.Background(), "room1", "peer1", ReturnStatic)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !user.IsStatic || user.Username != "u" {
		t.Fatalf("expected static bundle, got %+v", user)
	}
}

func TestCreateFailsUnderReturnErrWithoutStore(t *testing.T) {
	svc := New(Config{}, nil, zerolog.Nop())
	defer svc.Close()

	_, err := svc.Create(context.Background(), "room1", "peer1", ReturnErr)
	if err == nil {
		t.Fatal("expected an error when the credential store is unavailable and policy is ReturnErr")
	}
}

func TestDeleteUnknownPeerIsNoop(t *testing.T) {
	svc := New(Config{}, nil, zerolog.Nop())
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := svc.Delete(ctx, "room1", "never-issued"); err != nil {
		t.Fatalf("expected no-op delete, got %v", err)
	}
}
