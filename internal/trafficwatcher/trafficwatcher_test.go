/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package trafficwatcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeSink struct {
	mu       sync.Mutex
	verdicts []Verdict
}

func (f *fakeSink) TrafficVerdict(v Verdict) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verdicts = append(f.verdicts, v)
}

func (f *fakeSink) last() (Verdict, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.verdicts) == 0 {
		return Verdict{}, false
	}
	return f.verdicts[len(f.verdicts)-1], true
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.verdicts)
}

func TestAllRequiredSourcesWithinWindowStartsOnce(t *testing.T) {
	w := New(context.Background(), zerolog.Nop())
	defer w.Close()

	sink := &fakeSink{}
	w.RegisterRoom("room1", sink)
	w.RegisterPeer("room1", "peer1", false)

	now := time.Now()
	w.TrafficFlows("room1", "peer1", now, PeerTraffic)
	w.TrafficFlows("room1", "peer1", now, PartnerPeerTraffic)

	time.Sleep(50 * time.Millisecond)

	if got := sink.count(); got != 1 {
		t.Fatalf("expected exactly one verdict, got %d", got)
	}
	v, _ := sink.last()
	if v.Kind != PeerStarted {
		t.Fatalf("expected PeerStarted, got %v", v.Kind)
	}
}

func TestMissingRequiredSourceFailsAfterWindow(t *testing.T) {
	w := New(context.Background(), zerolog.Nop())
	defer w.Close()
	w.startCheckOverride(20 * time.Millisecond)

	sink := &fakeSink{}
	w.RegisterRoom("room1", sink)
	w.RegisterPeer("room1", "peer1", true) // requires Coturn too

	w.TrafficFlows("room1", "peer1", time.Now(), PeerTraffic)

	time.Sleep(100 * time.Millisecond)

	v, ok := sink.last()
	if !ok || v.Kind != PeerFailed {
		t.Fatalf("expected PeerFailed after missing required source, got %+v ok=%v", v, ok)
	}
}

func TestUnregisterPeersIsSilent(t *testing.T) {
	w := New(context.Background(), zerolog.Nop())
	defer w.Close()

	sink := &fakeSink{}
	w.RegisterRoom("room1", sink)
	w.RegisterPeer("room1", "peer1", false)
	w.UnregisterPeers("room1", []string{"peer1"})

	w.TrafficStopped("room1", "peer1", time.Now(), StopPeerRemoved)

	if got := sink.count(); got != 0 {
		t.Fatalf("expected no verdict once the peer was already unregistered, got %d", got)
	}
}
