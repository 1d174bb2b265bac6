/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package peer

import (
	"testing"
)

func TestOffererCycleVisitsEveryStateInOrder(t *testing.T) {
	p := New("peer1", "alice", "peer2", "bob", false)

	var seen []NegotiationState
	ch, cancel := p.SubscribeNegotiation()
	defer cancel()
	done := make(chan struct{})
	go func() {
		for s := range ch {
			seen = append(seen, s)
			if _, ok := s.(StateStable); ok && len(seen) > 1 {
				close(done)
				return
			}
		}
	}()

	if err := p.StartNegotiation(RoleOfferer, "", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.LocalSdpProduced("v=0 offer"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.ServerAcked(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.RemoteSdpApplied(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	<-done

	if len(seen) < 3 {
		t.Fatalf("expected at least 3 transitions, got %d: %+v", len(seen), seen)
	}
	if _, ok := seen[0].(StateWaitLocalSdp); !ok {
		t.Fatalf("expected first transition to WaitLocalSdp, got %+v", seen[0])
	}
	if _, ok := seen[1].(StateWaitLocalSdpApprove); !ok {
		t.Fatalf("expected second transition to WaitLocalSdpApprove, got %+v", seen[1])
	}
}

func TestCannotSkipToApproveWithoutWaitLocalSdp(t *testing.T) {
	p := New("peer1", "alice", "peer2", "bob", false)
	if err := p.LocalSdpProduced("v=0"); err == nil {
		t.Fatal("expected an error producing local SDP outside WaitLocalSdp")
	}
}

func TestIceCandidatesBufferedThenFlushedInOrder(t *testing.T) {
	p := New("peer1", "alice", "peer2", "bob", false)

	var delivered []string
	deliver := func(c IceCandidate) { delivered = append(delivered, c.Candidate) }

	p.BufferOrDeliverCandidate(IceCandidate{Candidate: "c1"}, false, deliver)
	p.BufferOrDeliverCandidate(IceCandidate{Candidate: "c2"}, false, deliver)
	p.BufferOrDeliverCandidate(IceCandidate{Candidate: "c3"}, false, deliver)

	if len(delivered) != 0 {
		t.Fatalf("expected no immediate delivery while remote not ready, got %v", delivered)
	}

	p.FlushBufferedCandidates(deliver)

	if len(delivered) != 3 || delivered[0] != "c1" || delivered[1] != "c2" || delivered[2] != "c3" {
		t.Fatalf("expected buffered candidates flushed in arrival order, got %v", delivered)
	}
}

func TestScheduledChangeDeferredUntilStable(t *testing.T) {
	p := New("peer1", "alice", "peer2", "bob", false)
	_ = p.StartNegotiation(RoleOfferer, "", false)

	applied := false
	p.ScheduleChange(ChangeSet{RemoveTracks: []string{"t1"}}, func(ChangeSet) { applied = true })

	if applied {
		t.Fatal("expected change to be queued, not applied, while non-Stable")
	}
	if !p.PendingChanges() {
		t.Fatal("expected a pending scheduled change")
	}

	_ = p.LocalSdpProduced("v=0")
	_ = p.ServerAcked()
	_ = p.RemoteSdpApplied()

	queued := p.DrainSchedule()
	if len(queued) != 1 {
		t.Fatalf("expected exactly one drained changeset, got %d", len(queued))
	}
}
