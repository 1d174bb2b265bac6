/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package reactive

import (
	"testing"
	"time"
)

func TestFieldNoNotifyOnNoopWrite(t *testing.T) {
	f := NewField(5)
	ch, cancel := f.Subscribe()
	defer cancel()

	f.Set(5)

	select {
	case v := <-ch:
		t.Fatalf("expected no notification for a no-op write, got %v", v)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestFieldCoalescesWritesWithinMutate(t *testing.T) {
	f := NewField(0)
	ch, cancel := f.Subscribe()
	defer cancel()

	f.Mutate(func(cur int) int {
		cur = 1
		cur = 2
		cur = 3
		return cur
	})

	select {
	case v := <-ch:
		if v != 3 {
			t.Fatalf("expected coalesced final value 3, got %d", v)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a notification for the coalesced write")
	}

	select {
	case v, ok := <-ch:
		if ok {
			t.Fatalf("expected exactly one notification, got extra value %v", v)
		}
	case <-time.After(20 * time.Millisecond):
	}
}

func TestFieldWhenResolvesImmediatelyIfAlreadyTrue(t *testing.T) {
	f := NewField("stable")
	select {
	case err := <-f.When(func(s string) bool { return s == "stable" }):
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("expected immediate resolution")
	}
}

func TestFieldWhenEqResolvesOnMatchingWrite(t *testing.T) {
	f := NewField(0)
	done := f.WhenEq(3)

	f.Set(1)
	f.Set(2)
	f.Set(3)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("expected resolution once value reached 3")
	}
}

func TestFieldCloseResolvesWaitersWithDropped(t *testing.T) {
	f := NewField(0)
	done := f.When(func(v int) bool { return v == 99 })
	f.Close()

	select {
	case err := <-done:
		if err != ErrDropped {
			t.Fatalf("expected ErrDropped, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("expected waiter to resolve on Close")
	}
}

func TestProgressableFieldWhenAllProcessed(t *testing.T) {
	p := NewProgressableField(0)
	guarded, cancel := p.SubscribeGuarded()
	defer cancel()

	p.Set(1)
	g := <-guarded

	select {
	case <-p.WhenAllProcessed():
		t.Fatal("should not resolve while a guarded value is outstanding")
	case <-time.After(20 * time.Millisecond):
	}

	g.Done()

	select {
	case <-p.WhenAllProcessed():
	case <-time.After(time.Second):
		t.Fatal("expected WhenAllProcessed to resolve after Done")
	}
}

func TestProgressableMapReplayOnInsert(t *testing.T) {
	m := NewProgressableMap[string, int]()
	m.Insert("a", 1)

	ch, cancel := m.ReplayOnInsert()
	defer cancel()

	select {
	case g := <-ch:
		if g.Value.Key != "a" || g.Value.Value != 1 {
			t.Fatalf("unexpected replayed entry: %+v", g.Value)
		}
		g.Done()
	case <-time.After(time.Second):
		t.Fatal("expected replay of existing entry")
	}

	m.Insert("b", 2)
	select {
	case g := <-ch:
		if g.Value.Key != "b" {
			t.Fatalf("expected live insert for b, got %+v", g.Value)
		}
		g.Done()
	case <-time.After(time.Second):
		t.Fatal("expected live insert notification")
	}
}
