/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mediastate

import (
	"testing"
	"time"
)

func isDisabledBool(v bool) bool { return v == false }

func TestRequiredSenderCannotDisable(t *testing.T) {
	c := NewController(true, func(bool) {})
	c.SetRequired(true)

	err := c.TransitionTo(false, isDisabledBool)
	if err != ErrRequired {
		t.Fatalf("expected ErrRequired, got %v", err)
	}
}

func TestTransitionConfirmStabilizes(t *testing.T) {
	var requested bool
	c := NewController(false, func(target bool) { requested = target })

	if err := c.TransitionTo(true, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !requested {
		t.Fatal("expected onIntent to fire with target=true")
	}
	st := c.Get()
	if !st.Transition || st.To != true {
		t.Fatalf("expected in-flight transition to true, got %+v", st)
	}

	c.Confirm(true)
	st = c.Get()
	if st.Transition || st.Stable != true {
		t.Fatalf("expected stable true after confirm, got %+v", st)
	}
}

func TestTransitionTimeoutSnapsBack(t *testing.T) {
	c := NewController(false, func(bool) {})
	c.SetTimeout(10 * time.Millisecond)

	if err := c.TransitionTo(true, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-c.WhenStabilized():
	case <-time.After(time.Second):
		t.Fatal("expected timeout to stabilize the controller")
	}

	st := c.Get()
	if st.Transition || st.Stable != false {
		t.Fatalf("expected snap-back to false, got %+v", st)
	}
}

func TestRedundantTransitionRequestIsNoop(t *testing.T) {
	calls := 0
	c := NewController(false, func(bool) { calls++ })

	if err := c.TransitionTo(true, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.TransitionTo(true, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one intent dispatch, got %d", calls)
	}
}
