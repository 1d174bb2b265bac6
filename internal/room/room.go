/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package room implements the per-room coordinator: it owns members and
// peers, dispatches client commands to the peer state machines, applies
// Control-API mutations, and fires join/leave/start/stop callbacks. Every
// mutation runs on a single goroutine per Room (the mailbox), so Peer and
// Member state is never touched concurrently from two callers.
package room

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/signalcore/internal/peer"
	"github.com/friendsincode/signalcore/internal/peermetrics"
	"github.com/friendsincode/signalcore/internal/trafficwatcher"
	"github.com/friendsincode/signalcore/internal/turnauth"
)

// Lifecycle is the coarse-grained Room state.
type Lifecycle int

const (
	Started Lifecycle = iota
	Stopping
	Stopped
)

// Room coordinates one signaling session graph.
type Room struct {
	ID     string
	logger zerolog.Logger

	turn     *turnauth.Service
	watcher  *trafficwatcher.Watcher
	metrics  *peermetrics.Service
	callback CallbackSink
	audit    AuditSink

	mailbox chan func()
	done    chan struct{}

	mu               sync.RWMutex
	state            Lifecycle
	members          map[string]*Member
	connections      map[string]Connection
	peers            map[string]*peer.Peer
	negotiationUnsub map[string]func()
	nextPeerID       int
	nextTrackID      int
}

// New constructs a Room and starts its mailbox goroutine. Callers
// normally go through a Registry rather than calling New directly.
func New(id string, turn *turnauth.Service, watcher *trafficwatcher.Watcher, callback CallbackSink, audit AuditSink, logger zerolog.Logger) *Room {
	r := &Room{
		ID:               id,
		logger:           logger.With().Str("component", "room").Str("room_id", id).Logger(),
		turn:             turn,
		watcher:          watcher,
		callback:         callback,
		audit:            audit,
		mailbox:          make(chan func(), 64),
		done:             make(chan struct{}),
		members:          make(map[string]*Member),
		connections:      make(map[string]Connection),
		peers:            make(map[string]*peer.Peer),
		negotiationUnsub: make(map[string]func()),
	}
	r.metrics = peermetrics.New(id, watcher, 3*time.Second)
	watcher.RegisterRoom(id, r)
	go r.run()
	return r
}

func (r *Room) run() {
	for {
		select {
		case fn := <-r.mailbox:
			fn()
		case <-r.done:
			return
		}
	}
}

// do posts fn to the mailbox and blocks until it has run, returning
// whatever error fn produced. This is how every exported Room method
// gets its effect serialized through the single owning goroutine.
func (r *Room) do(fn func() error) error {
	resultCh := make(chan error, 1)
	select {
	case r.mailbox <- func() { resultCh <- fn() }:
	case <-r.done:
		return newError(PeerError, "room %s is closed", r.ID)
	}
	return <-resultCh
}

// Close stops the mailbox goroutine without running close_gracefully's
// member-notification sequence (used for abrupt teardown/tests). Prefer
// CloseGracefully for normal shutdown.
func (r *Room) Close() {
	select {
	case <-r.done:
	default:
		close(r.done)
	}
	r.watcher.UnregisterRoom(r.ID)
}

// State returns the current lifecycle state.
func (r *Room) State() Lifecycle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// EnsureMember creates a member if it does not already exist, returning
// MemberAlreadyExists if it does and failIfExists is set.
func (r *Room) EnsureMember(id, credential string, failIfExists bool) error {
	return r.do(func() error {
		if _, ok := r.members[id]; ok {
			if failIfExists {
				return newError(MemberAlreadyExists, "member %s already exists in room %s", id, r.ID)
			}
			return nil
		}
		r.members[id] = newMember(id, credential)
		r.audit.Record(r.ID, id, "member.created", "member", id, nil)
		return nil
	})
}

// CreatePublishEndpoint adds a publish endpoint to member memberID.
func (r *Room) CreatePublishEndpoint(memberID string, ep *PublishEndpoint) error {
	return r.do(func() error {
		m, ok := r.members[memberID]
		if !ok {
			return newError(MemberError, "unknown member %s", memberID)
		}
		if _, exists := m.Publishes[ep.ID]; exists {
			return newError(EndpointAlreadyExists, "publish endpoint %s already exists on member %s", ep.ID, memberID)
		}
		m.Publishes[ep.ID] = ep
		r.audit.Record(r.ID, memberID, "endpoint.created", "publish_endpoint", ep.ID, nil)
		return nil
	})
}

// CreatePlayEndpoint adds a play endpoint to member memberID, validating
// that its src reference resolves to an existing publish endpoint.
func (r *Room) CreatePlayEndpoint(memberID string, ep *PlayEndpoint, srcOwnerID, srcEndpointID string) error {
	return r.do(func() error {
		m, ok := r.members[memberID]
		if !ok {
			return newError(MemberError, "unknown member %s", memberID)
		}
		if _, exists := m.Plays[ep.ID]; exists {
			return newError(EndpointAlreadyExists, "play endpoint %s already exists on member %s", ep.ID, memberID)
		}
		owner, ok := r.members[srcOwnerID]
		if !ok {
			return newError(BadRoomSpec, "play endpoint %s references unknown member %s", ep.ID, srcOwnerID)
		}
		src, ok := owner.Publishes[srcEndpointID]
		if !ok {
			return newError(BadRoomSpec, "play endpoint %s references unknown publish endpoint %s", ep.ID, srcEndpointID)
		}
		src.Sinks[memberID+"/"+ep.ID] = struct{}{}
		m.Plays[ep.ID] = ep
		r.audit.Record(r.ID, memberID, "endpoint.created", "play_endpoint", ep.ID, nil)
		return nil
	})
}

// DeleteEndpoint removes either a publish or play endpoint by id from
// memberID; it is idempotent.
func (r *Room) DeleteEndpoint(memberID, endpointID string) error {
	return r.do(func() error {
		m, ok := r.members[memberID]
		if !ok {
			return nil
		}
		delete(m.Publishes, endpointID)
		delete(m.Plays, endpointID)
		r.audit.Record(r.ID, memberID, "endpoint.deleted", "endpoint", endpointID, nil)
		return nil
	})
}

// MemberIDs returns a snapshot of the member ids currently in the room.
func (r *Room) MemberIDs() []string {
	var out []string
	_ = r.do(func() error {
		for id := range r.members {
			out = append(out, id)
		}
		return nil
	})
	return out
}

// HasMember reports whether a member exists.
func (r *Room) HasMember(id string) bool {
	found := false
	_ = r.do(func() error {
		_, found = r.members[id]
		return nil
	})
	return found
}

// EndpointIDs returns the publish and play endpoint ids currently
// present on member id.
func (r *Room) EndpointIDs(memberID string) (publishes, plays []string) {
	_ = r.do(func() error {
		m, ok := r.members[memberID]
		if !ok {
			return nil
		}
		for id := range m.Publishes {
			publishes = append(publishes, id)
		}
		for id := range m.Plays {
			plays = append(plays, id)
		}
		return nil
	})
	return publishes, plays
}

// DeleteMember removes a member and every peer belonging to it or its
// partners, atomically from the caller's perspective.
func (r *Room) DeleteMember(id string) error {
	return r.do(func() error {
		if _, ok := r.members[id]; !ok {
			return nil // idempotent
		}
		r.removeMemberPeersLocked(id)
		delete(r.members, id)
		delete(r.connections, id)
		r.audit.Record(r.ID, id, "member.deleted", "member", id, nil)
		return nil
	})
}

// RpcConnectionEstablished authorizes and binds conn to member memberID,
// creating any Peer pairs needed against already-connected partners that
// share an endpoint relationship.
func (r *Room) RpcConnectionEstablished(memberID, credential string, conn Connection) error {
	return r.do(func() error {
		m, ok := r.members[memberID]
		if !ok {
			return newError(MemberError, "unknown member %s", memberID)
		}
		if m.Credential != credential {
			return newError(MemberError, "credential mismatch for member %s", memberID)
		}
		r.connections[memberID] = conn
		r.fireOnJoin(memberID)
		_ = conn.Send(Event{Kind: EventRoomJoined, MemberID: memberID})

		for otherID, other := range r.members {
			if otherID == memberID {
				continue
			}
			if _, connected := r.connections[otherID]; !connected {
				continue
			}
			if !r.endpointsLinked(m, other) {
				continue
			}
			if err := r.createPeerPairLocked(memberID, otherID); err != nil {
				r.logger.Warn().Err(err).Str("member", memberID).Str("other", otherID).Msg("failed to create peer pair")
			}
		}
		return nil
	})
}

// RpcConnectionClosed tears down every peer the member owned or shared,
// and fires on_leave.
func (r *Room) RpcConnectionClosed(memberID string, reason CloseReason) error {
	return r.do(func() error {
		if _, ok := r.connections[memberID]; !ok {
			return newError(ConnectionNotExists, "member %s has no active connection", memberID)
		}
		delete(r.connections, memberID)
		r.removeMemberPeersLocked(memberID)
		r.fireOnLeave(memberID, reason)
		return nil
	})
}

func (r *Room) endpointsLinked(a, b *Member) bool {
	for _, play := range a.Plays {
		if srcOwnerIsMember(play.SrcFID, b.ID) {
			return true
		}
	}
	for _, play := range b.Plays {
		if srcOwnerIsMember(play.SrcFID, a.ID) {
			return true
		}
	}
	return false
}

func srcOwnerIsMember(fid, memberID string) bool {
	// fid is local://room/member/publish-id; a cheap substring check is
	// sufficient here since well-formed FIDs are produced exclusively by
	// internal/controlapi's parser.
	want := "/" + memberID + "/"
	return len(fid) > len(want) && indexOf(fid, want) >= 0
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func (r *Room) createPeerPairLocked(memberA, memberB string) error {
	idA := r.allocPeerID()
	idB := r.allocPeerID()

	peerA := peer.New(idA, memberA, idB, memberB, false)
	peerB := peer.New(idB, memberB, idA, memberA, false)

	r.peers[idA] = peerA
	r.peers[idB] = peerB
	r.watchNegotiation(peerA)
	r.watchNegotiation(peerB)

	mA, mB := r.members[memberA], r.members[memberB]
	r.metrics.RegisterPeer(idA, idB, r.buildPeerSpec(mA, mB), peerA.IsForceRelayed)
	r.metrics.RegisterPeer(idB, idA, r.buildPeerSpec(mB, mA), peerB.IsForceRelayed)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	userA, errA := r.turn.Create(ctx, r.ID, idA, turnauth.ReturnStatic)
	userB, errB := r.turn.Create(ctx, r.ID, idB, turnauth.ReturnStatic)
	if errA == nil {
		peerA.IceUser = userA
	}
	if errB == nil {
		peerB.IceUser = userB
	}

	if conn, ok := r.connections[memberA]; ok {
		_ = conn.Send(Event{Kind: EventPeerCreated, PeerID: idA, NegotiationRole: peer.RoleOfferer, IceServers: []turnauth.IceUser{userA}})
		peerA.MarkKnownToRemote()
	}
	if conn, ok := r.connections[memberB]; ok {
		_ = conn.Send(Event{Kind: EventPeerCreated, PeerID: idB, NegotiationRole: peer.RoleAnswerer, IceServers: []turnauth.IceUser{userB}})
		peerB.MarkKnownToRemote()
	}

	// The offerer drives the handshake: its client is told its role via
	// PeerCreated above, and the server-side state machine now actually
	// moves out of Stable so the offer it sends back isn't rejected.
	if peerA.KnownToRemote() {
		if err := peerA.StartNegotiation(peer.RoleOfferer, "", false); err != nil {
			r.logger.Warn().Err(err).Str("peer_id", idA).Msg("failed to start negotiation for offerer")
		}
	}
	return nil
}

// buildPeerSpec derives the RTP stats the peermetrics service should
// expect to see flowing on owner's side of the pair, from the publish
// and play endpoints that link owner and partner. Each linked publish
// endpoint contributes one expected audio and one expected video sender;
// each linked play endpoint contributes one expected audio and one
// expected video receiver.
func (r *Room) buildPeerSpec(owner, partner *Member) peermetrics.PeerSpec {
	var spec peermetrics.PeerSpec
	if owner == nil || partner == nil {
		return spec
	}
	want := partner.ID + "/"
	for _, pub := range owner.Publishes {
		for sinkKey := range pub.Sinks {
			if len(sinkKey) > len(want) && sinkKey[:len(want)] == want {
				spec.ExpectedSenders = append(spec.ExpectedSenders, peermetrics.Audio, peermetrics.Video)
				break
			}
		}
	}
	for _, play := range owner.Plays {
		if srcOwnerIsMember(play.SrcFID, partner.ID) {
			spec.ExpectedReceivers = append(spec.ExpectedReceivers, peermetrics.Audio, peermetrics.Video)
		}
	}
	return spec
}

// watchNegotiation subscribes to p's negotiation-state transitions and
// dispatches the Stable-entry hook back through the mailbox whenever one
// lands, regardless of whether it got there via an explicit command
// (ServerAcked, RemoteSdpApplied) or the local-SDP-approval rollback
// timeout firing on its own goroutine in internal/peer.
func (r *Room) watchNegotiation(p *peer.Peer) {
	ch, cancel := p.SubscribeNegotiation()
	r.negotiationUnsub[p.ID] = cancel
	go func() {
		for state := range ch {
			if _, ok := state.(peer.StateStable); !ok {
				continue
			}
			_ = r.do(func() error {
				r.onPeerStable(p)
				return nil
			})
		}
	}()
}

func (r *Room) unwatchNegotiation(peerID string) {
	if cancel, ok := r.negotiationUnsub[peerID]; ok {
		cancel()
		delete(r.negotiationUnsub, peerID)
	}
}

// onPeerStable runs once p re-enters Stable. It drains any track changes
// that were queued while negotiating and, if there were any, re-triggers
// a negotiation cycle for p as Offerer so they actually get negotiated
// instead of sitting in the queue forever.
func (r *Room) onPeerStable(p *peer.Peer) {
	changes := p.DrainSchedule()
	if len(changes) == 0 {
		return
	}
	var patches []peer.TrackPatch
	for _, cs := range changes {
		patches = append(patches, cs.PatchTracks...)
	}
	if conn, ok := r.connections[p.PartnerMemberID]; ok {
		_ = conn.Send(Event{Kind: EventTracksApplied, PeerID: p.PartnerPeerID, TrackPatches: patches})
	}
	if err := p.StartNegotiation(peer.RoleOfferer, "", false); err != nil {
		r.logger.Warn().Err(err).Str("peer_id", p.ID).Msg("failed to restart negotiation after draining schedule")
		return
	}
	if conn, ok := r.connections[p.MemberID]; ok {
		_ = conn.Send(Event{Kind: EventTracksApplied, PeerID: p.ID, TrackPatches: patches, NegotiationRole: peer.RoleOfferer})
	}
}

// flushCandidates delivers every ICE candidate buffered for p now that
// its remote description has just been applied.
func (r *Room) flushCandidates(p *peer.Peer) {
	p.FlushBufferedCandidates(func(c peer.IceCandidate) {
		if conn, ok := r.connections[p.MemberID]; ok {
			_ = conn.Send(Event{Kind: EventIceCandidateDiscovered, PeerID: p.ID, Candidate: c})
		}
	})
}

func (r *Room) allocPeerID() string {
	r.nextPeerID++
	return fmt.Sprintf("%s-peer-%d", r.ID, r.nextPeerID)
}

func (r *Room) removeMemberPeersLocked(memberID string) {
	var removed []*peer.Peer
	for _, p := range r.peers {
		if p.MemberID == memberID || p.PartnerMemberID == memberID {
			removed = append(removed, p)
		}
	}
	if len(removed) == 0 {
		return
	}

	ids := make([]string, len(removed))
	for i, p := range removed {
		ids[i] = p.ID
		delete(r.peers, p.ID)
		r.metrics.RemovePeer(p.ID)
		r.unwatchNegotiation(p.ID)
	}
	r.watcher.UnregisterPeers(r.ID, ids)

	byMember := make(map[string][]string)
	for _, p := range removed {
		if p.MemberID != memberID {
			byMember[p.MemberID] = append(byMember[p.MemberID], p.ID)
		}
		if p.PartnerMemberID != memberID {
			byMember[p.PartnerMemberID] = append(byMember[p.PartnerMemberID], p.ID)
		}
	}
	for owner, peerIDs := range byMember {
		if conn, ok := r.connections[owner]; ok {
			_ = conn.Send(Event{Kind: EventPeersRemoved, PeerIDs: peerIDs})
		}
	}
}

// HandleCommand dispatches a client RPC command. Commands referencing an
// unknown or foreign peer are silently discarded with a logged warning,
// per the protocol command-validation rule.
func (r *Room) HandleCommand(memberID string, cmd Command) error {
	return r.do(func() error {
		p, ok := r.peers[cmd.PeerID]
		if !ok || (p.MemberID != memberID) {
			r.logger.Warn().Str("member", memberID).Str("peer_id", cmd.PeerID).Msg("command referenced unknown or foreign peer, dropping")
			return nil
		}
		switch cmd.Kind {
		case CommandMakeSdpOffer:
			return r.handleSdpOffer(p, cmd.SdpOffer)
		case CommandMakeSdpAnswer:
			return r.handleSdpAnswer(p, cmd.SdpAnswer)
		case CommandSetIceCandidate:
			partner, ok := r.peers[p.PartnerPeerID]
			if !ok {
				return nil
			}
			partner.BufferOrDeliverCandidate(cmd.Candidate, partner.RemoteSdpReady(), func(c peer.IceCandidate) {
				if conn, ok := r.connections[partner.MemberID]; ok {
					_ = conn.Send(Event{Kind: EventIceCandidateDiscovered, PeerID: partner.ID, Candidate: c})
				}
			})
			return nil
		case CommandUpdateTracks:
			p.ScheduleChange(peer.ChangeSet{PatchTracks: cmd.TrackPatches}, func(cs peer.ChangeSet) {
				if conn, ok := r.connections[p.PartnerMemberID]; ok {
					_ = conn.Send(Event{Kind: EventTracksApplied, PeerID: p.PartnerPeerID, TrackPatches: cs.PatchTracks})
				}
			})
			return nil
		case CommandAddPeerConnectionMetrics:
			r.metrics.AddStats(p.ID, cmd.Stats, time.Now())
			return nil
		}
		return nil
	})
}

// handleSdpOffer applies the offerer's produced SDP, acknowledges it back
// to the offerer, and relays it to the answerer to drive that peer's
// state machine into WaitLocalSdp so it can produce an answer.
func (r *Room) handleSdpOffer(p *peer.Peer, sdpOffer string) error {
	if err := p.LocalSdpProduced(sdpOffer); err != nil {
		return err
	}
	if err := p.ServerAcked(); err != nil {
		return err
	}
	if conn, ok := r.connections[p.MemberID]; ok {
		_ = conn.Send(Event{Kind: EventLocalDescriptionApplied, PeerID: p.ID, SdpOffer: sdpOffer})
	}

	partner, ok := r.peers[p.PartnerPeerID]
	if !ok {
		return nil
	}
	if err := partner.StartNegotiation(peer.RoleAnswerer, sdpOffer, false); err != nil {
		return err
	}
	if conn, ok := r.connections[partner.MemberID]; ok {
		_ = conn.Send(Event{Kind: EventLocalDescriptionApplied, PeerID: partner.ID, SdpOffer: sdpOffer})
	}
	r.flushCandidates(partner)
	return nil
}

// handleSdpAnswer applies the answerer's produced SDP, completes the
// answerer back to Stable, and relays the answer to the offerer so it
// can apply the remote description and complete its own cycle.
func (r *Room) handleSdpAnswer(p *peer.Peer, sdpAnswer string) error {
	if err := p.LocalSdpProduced(sdpAnswer); err != nil {
		return err
	}
	if err := p.ServerAcked(); err != nil {
		return err
	}

	partner, ok := r.peers[p.PartnerPeerID]
	if !ok {
		return nil
	}
	if conn, ok := r.connections[partner.MemberID]; ok {
		_ = conn.Send(Event{Kind: EventSdpAnswerMade, PeerID: partner.ID, SdpAnswer: sdpAnswer})
	}
	if err := partner.RemoteSdpApplied(); err != nil {
		return err
	}
	r.flushCandidates(partner)
	return nil
}

// TrafficVerdict implements trafficwatcher.RoomSink: it is invoked
// directly by the traffic watcher (off the Room's own goroutine), so it
// re-enters through the mailbox like any other mutation.
func (r *Room) TrafficVerdict(v trafficwatcher.Verdict) {
	_ = r.do(func() error {
		p, ok := r.peers[v.PeerID]
		if !ok {
			return nil
		}
		switch v.Kind {
		case trafficwatcher.PeerStarted:
			r.fireOnStart(p)
		case trafficwatcher.PeerStopped, trafficwatcher.PeerFailed:
			r.fireOnStop(p, v.Kind == trafficwatcher.PeerFailed)
		}
		return nil
	})
}

func (r *Room) fireOnJoin(memberID string) {
	if r.callback != nil {
		r.callback.OnJoin(r.ID+"/"+memberID, time.Now())
	}
	r.audit.Record(r.ID, memberID, "member.joined", "member", memberID, nil)
}

func (r *Room) fireOnLeave(memberID string, reason CloseReason) {
	if r.callback != nil {
		r.callback.OnLeave(r.ID+"/"+memberID, time.Now(), reason)
	}
	r.audit.Record(r.ID, memberID, "member.left", "member", memberID, map[string]any{"reason": reason.String()})
}

func (r *Room) fireOnStart(p *peer.Peer) {
	if r.callback != nil {
		r.callback.OnStart(r.ID+"/"+p.MemberID, "both", "both", time.Now())
	}
	r.audit.Record(r.ID, p.MemberID, "peer.started", "peer", p.ID, nil)
}

func (r *Room) fireOnStop(p *peer.Peer, failed bool) {
	reason := "ended"
	if failed {
		reason = "fatal"
	}
	if r.callback != nil {
		r.callback.OnStop(r.ID+"/"+p.MemberID, "both", "both", reason, time.Now())
	}
	r.audit.Record(r.ID, p.MemberID, "peer.stopped", "peer", p.ID, map[string]any{"reason": reason})
}

// CloseGracefully disconnects every member with ServerShutdown and moves
// the room to Stopped. It is invoked both on process shutdown and as the
// reaction to any non-degradable Room error.
func (r *Room) CloseGracefully() {
	_ = r.do(func() error {
		r.state = Stopping
		for memberID := range r.connections {
			if conn, ok := r.connections[memberID]; ok {
				_ = conn.Send(Event{Kind: EventRoomLeft, CloseReason: ReasonServerShutdown.String()})
			}
			r.fireOnLeave(memberID, ReasonServerShutdown)
		}
		for peerID := range r.peers {
			r.unwatchNegotiation(peerID)
		}
		r.connections = make(map[string]Connection)
		r.peers = make(map[string]*peer.Peer)
		r.state = Stopped
		return nil
	})
	r.Close()
}
