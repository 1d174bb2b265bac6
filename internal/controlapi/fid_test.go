/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package controlapi

import "testing"

func TestParseRoundTrip(t *testing.T) {
	cases := []string{"room1", "room1/alice", "room1/alice/webcam"}
	for _, c := range cases {
		f, err := Parse(c)
		if err != nil {
			t.Fatalf("Parse(%q): %v", c, err)
		}
		if f.String() != c {
			t.Fatalf("round trip mismatch: got %q want %q", f.String(), c)
		}
	}
}

func TestParseRejectsEmptySegments(t *testing.T) {
	if _, err := Parse("room1//webcam"); err != ErrMissingPaths {
		t.Fatalf("expected ErrMissingPaths, got %v", err)
	}
}

func TestParseRejectsTooManySegments(t *testing.T) {
	if _, err := Parse("a/b/c/d"); err != ErrTooManyPaths {
		t.Fatalf("expected ErrTooManyPaths, got %v", err)
	}
}

func TestParseLocalURIRequiresScheme(t *testing.T) {
	if _, err := ParseLocalURI("room1/alice/webcam"); err != ErrNotLocal {
		t.Fatalf("expected ErrNotLocal, got %v", err)
	}
}

func TestParseLocalURIRequiresEndpoint(t *testing.T) {
	if _, err := ParseLocalURI("local://room1/alice"); err != ErrMissingPaths {
		t.Fatalf("expected ErrMissingPaths, got %v", err)
	}
}

func TestParseLocalURIFull(t *testing.T) {
	f, err := ParseLocalURI("local://room1/alice/webcam")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.RoomID != "room1" || f.MemberID != "alice" || f.EndpointID != "webcam" {
		t.Fatalf("unexpected parse result: %+v", f)
	}
}
