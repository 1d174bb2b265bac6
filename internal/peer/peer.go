/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package peer

import (
	"fmt"
	"sync"
	"time"

	"github.com/friendsincode/signalcore/internal/mediastate"
	"github.com/friendsincode/signalcore/internal/reactive"
	"github.com/friendsincode/signalcore/internal/turnauth"
)

// IceCandidate mirrors the wire shape of a trickled ICE candidate.
type IceCandidate struct {
	Candidate     string
	SdpMLineIndex *uint16
	SdpMid        *string
}

// TrackPatch is a sparse update to a track's exchange/mute state.
type TrackPatch struct {
	TrackID           string
	EnabledIndividual *bool
	EnabledGeneral    *bool
	Muted             *bool
}

// ChangeSet is one deferred mutation queued while the peer is
// negotiating.
type ChangeSet struct {
	AddSenders    []*Sender
	AddReceivers  []*Receiver
	RemoveTracks  []string
	PatchTracks   []TrackPatch
}

// Sender is the signaling-side representation of one outbound track.
type Sender struct {
	TrackID         string
	MediaKind       MediaKind
	SourceKind      SourceKind
	Mid             *string
	Required        bool
	MediaExchange   *mediastate.Controller[bool]
	Mute            *mediastate.Controller[bool]
	PartnerPeerID   string
}

// Receiver is the signaling-side representation of one inbound track.
type Receiver struct {
	TrackID        string
	MediaKind      MediaKind
	SourceKind     SourceKind
	Mid            *string
	SenderMemberID string
	MediaExchange  *mediastate.Controller[bool]
	Muted          bool
}

type MediaKind int

const (
	Audio MediaKind = iota
	Video
)

type SourceKind int

const (
	Device SourceKind = iota
	Display
)

// Peer owns one side of a signaling peer pair: its SDP/ICE negotiation
// state, its senders and receivers, and the queue of mutations deferred
// while negotiation is in progress.
type Peer struct {
	ID              string
	MemberID        string
	PartnerPeerID   string
	PartnerMemberID string
	IsForceRelayed  bool
	IceUser         turnauth.IceUser

	negotiation *reactive.Field[NegotiationState]
	role        Role
	roleMu      sync.Mutex

	mu        sync.Mutex
	senders   map[string]*Sender
	receivers map[string]*Receiver

	knownToRemote bool
	remoteApplied bool

	iceCandidates *reactive.ProgressableVec[IceCandidate]

	scheduleMu sync.Mutex
	schedule   []ChangeSet

	rollbackTimeout time.Duration
	rollbackTimer   *time.Timer
}

// New constructs a Peer in the Stable negotiation state.
func New(id, memberID, partnerPeerID, partnerMemberID string, forceRelayed bool) *Peer {
	return &Peer{
		ID:              id,
		MemberID:        memberID,
		PartnerPeerID:   partnerPeerID,
		PartnerMemberID: partnerMemberID,
		IsForceRelayed:  forceRelayed,
		negotiation:     reactive.NewField[NegotiationState](StateStable{}),
		senders:         make(map[string]*Sender),
		receivers:       make(map[string]*Receiver),
		iceCandidates:   reactive.NewProgressableVec[IceCandidate](),
		rollbackTimeout: 10 * time.Second,
	}
}

// SetRollbackTimeout overrides the local-SDP-approval rollback timer
// (shortened in tests).
func (p *Peer) SetRollbackTimeout(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rollbackTimeout = d
}

// NegotiationState returns the current negotiation state.
func (p *Peer) NegotiationState() NegotiationState { return p.negotiation.Get() }

// SubscribeNegotiation lets a component watcher react to every
// negotiation-state transition in order.
func (p *Peer) SubscribeNegotiation() (<-chan NegotiationState, func()) {
	return p.negotiation.Subscribe()
}

// AddSender registers a sender. Only legal while Stable; callers outside
// Stable should go through ScheduleChange instead.
func (p *Peer) AddSender(s *Sender) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.senders[s.TrackID] = s
}

// AddReceiver registers a receiver.
func (p *Peer) AddReceiver(r *Receiver) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.receivers[r.TrackID] = r
}

// Sender looks up a sender by track id.
func (p *Peer) Sender(trackID string) (*Sender, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.senders[trackID]
	return s, ok
}

// Senders returns a snapshot of all senders.
func (p *Peer) Senders() []*Sender {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Sender, 0, len(p.senders))
	for _, s := range p.senders {
		out = append(out, s)
	}
	return out
}

// Receivers returns a snapshot of all receivers.
func (p *Peer) Receivers() []*Receiver {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Receiver, 0, len(p.receivers))
	for _, r := range p.receivers {
		out = append(out, r)
	}
	return out
}

// KnownToRemote reports whether the first PeerCreated event has been
// dispatched for this peer.
func (p *Peer) KnownToRemote() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.knownToRemote
}

// MarkKnownToRemote is called once the PeerCreated event has been sent.
func (p *Peer) MarkKnownToRemote() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.knownToRemote = true
}

// RemoteSdpReady reports whether this peer has a remote description
// applied yet, i.e. whether ICE candidates addressed to it can be
// delivered immediately rather than buffered.
func (p *Peer) RemoteSdpReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remoteApplied
}

func (p *Peer) markRemoteSdpReady() {
	p.mu.Lock()
	p.remoteApplied = true
	p.mu.Unlock()
}

// StartNegotiation moves the peer from Stable into WaitLocalSdp as
// Offerer or (given a remote SDP) as Answerer. If the peer is not
// currently Stable it returns an error and leaves the peer unchanged.
func (p *Peer) StartNegotiation(role Role, remoteSdp string, iceRestart bool) error {
	if _, ok := p.negotiation.Get().(StateStable); !ok {
		return fmt.Errorf("peer %s: cannot start negotiation outside Stable", p.ID)
	}
	p.roleMu.Lock()
	p.role = role
	p.roleMu.Unlock()

	if role == RoleAnswerer {
		p.negotiation.Set(StateWaitRemoteSdp{RemoteSdp: remoteSdp})
		return p.applyRemoteAndAdvance(remoteSdp, iceRestart)
	}
	p.negotiation.Set(StateWaitLocalSdp{IceRestart: iceRestart})
	return nil
}

// LocalSdpProduced transitions WaitLocalSdp -> WaitLocalSdpApprove once
// the local description text has been generated, and arms the rollback
// timer.
func (p *Peer) LocalSdpProduced(sdpText string) error {
	cur, ok := p.negotiation.Get().(StateWaitLocalSdp)
	if !ok {
		return fmt.Errorf("peer %s: LocalSdpProduced called outside WaitLocalSdp", p.ID)
	}
	p.negotiation.Set(StateWaitLocalSdpApprove{SdpText: sdpText, IceRestart: cur.IceRestart})
	p.armRollback()
	return nil
}

// ServerAcked is called once the server has accepted the produced SDP
// (i.e. delivered it onward as an offer or answer). Offerer moves to
// WaitRemoteSdp; Answerer completes back to Stable, draining the queue.
func (p *Peer) ServerAcked() error {
	_, ok := p.negotiation.Get().(StateWaitLocalSdpApprove)
	if !ok {
		return fmt.Errorf("peer %s: ServerAcked called outside WaitLocalSdpApprove", p.ID)
	}
	p.cancelRollback()

	p.roleMu.Lock()
	role := p.role
	p.roleMu.Unlock()

	if role == RoleOfferer {
		p.negotiation.Set(StateWaitRemoteSdp{})
		return nil
	}
	return p.completeToStable()
}

// RemoteSdpApplied is called once the remote SDP has been set on the
// underlying connection, for the Offerer side waiting in WaitRemoteSdp.
func (p *Peer) RemoteSdpApplied() error {
	if _, ok := p.negotiation.Get().(StateWaitRemoteSdp); !ok {
		return fmt.Errorf("peer %s: RemoteSdpApplied called outside WaitRemoteSdp", p.ID)
	}
	p.markRemoteSdpReady()
	return p.completeToStable()
}

func (p *Peer) applyRemoteAndAdvance(remoteSdp string, iceRestart bool) error {
	// Answerer path: remote description is set first, then we move into
	// WaitLocalSdp to produce our answer.
	p.markRemoteSdpReady()
	p.negotiation.Set(StateWaitLocalSdp{IceRestart: iceRestart})
	return nil
}

// completeToStable transitions to Stable, leaving any queued scheduled
// changes in place for the caller to retrieve via DrainSchedule and
// re-apply (which may kick off another negotiation cycle).
func (p *Peer) completeToStable() error {
	p.roleMu.Lock()
	p.role = RoleNone
	p.roleMu.Unlock()
	p.negotiation.Set(StateStable{})
	return nil
}

// Rollback aborts the current negotiation cycle. If isRestart is true the
// peer re-enters WaitLocalSdp immediately (an ICE-restart rollback should
// not drain the scheduled-changes queue, since the restart itself is not
// a content change); otherwise it returns to Stable and the queue drains.
func (p *Peer) Rollback(isRestart bool) {
	p.cancelRollback()
	p.roleMu.Lock()
	p.role = RoleNone
	p.roleMu.Unlock()
	if isRestart {
		p.negotiation.Set(StateWaitLocalSdp{IceRestart: true})
		return
	}
	p.negotiation.Set(StateStable{})
}

func (p *Peer) armRollback() {
	p.mu.Lock()
	timeout := p.rollbackTimeout
	if p.rollbackTimer != nil {
		p.rollbackTimer.Stop()
	}
	p.rollbackTimer = time.AfterFunc(timeout, func() { p.Rollback(false) })
	p.mu.Unlock()
}

func (p *Peer) cancelRollback() {
	p.mu.Lock()
	if p.rollbackTimer != nil {
		p.rollbackTimer.Stop()
		p.rollbackTimer = nil
	}
	p.mu.Unlock()
}

// BufferOrDeliverCandidate buffers an ICE candidate if the remote
// description has not yet been applied (WaitRemoteSdp before completion,
// or any pre-answerer-set state), delivering it immediately otherwise.
// deliver is called with candidates in arrival order.
func (p *Peer) BufferOrDeliverCandidate(c IceCandidate, remoteReady bool, deliver func(IceCandidate)) {
	if remoteReady {
		deliver(c)
		return
	}
	p.iceCandidates.Push(c)
}

// FlushBufferedCandidates delivers every buffered candidate, in arrival
// order, once the remote description has just been applied.
func (p *Peer) FlushBufferedCandidates(deliver func(IceCandidate)) {
	for _, c := range p.iceCandidates.Drain() {
		deliver(c)
	}
}

// ScheduleChange enqueues a mutation for later application if the peer is
// not Stable, or applies it (via apply) immediately if it is.
func (p *Peer) ScheduleChange(cs ChangeSet, apply func(ChangeSet)) {
	if _, ok := p.negotiation.Get().(StateStable); ok {
		apply(cs)
		return
	}
	p.scheduleMu.Lock()
	p.schedule = append(p.schedule, cs)
	p.scheduleMu.Unlock()
}

// PendingChanges reports whether the scheduled-changes queue is
// non-empty.
func (p *Peer) PendingChanges() bool {
	p.scheduleMu.Lock()
	defer p.scheduleMu.Unlock()
	return len(p.schedule) > 0
}

// drainSchedule pops and returns the queued changesets once Stable is
// reached; callers (the room coordinator, via a registered drain
// callback) are responsible for applying them and re-triggering
// negotiation if the queue was non-empty.
func (p *Peer) drainSchedule() []ChangeSet {
	p.scheduleMu.Lock()
	defer p.scheduleMu.Unlock()
	out := p.schedule
	p.schedule = nil
	return out
}

// DrainSchedule is the exported form of drainSchedule for callers outside
// the negotiation transitions above (the room coordinator's Stable-entry
// hook).
func (p *Peer) DrainSchedule() []ChangeSet { return p.drainSchedule() }
