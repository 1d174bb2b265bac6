/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package trafficwatcher correlates flow and stop signals from multiple
// independent sources (peer RTP stats, the partner peer's stats, and
// Coturn relay activity for force-relayed peers) into a single verdict
// per peer: started, stopped, or fatally failed because not every
// required source agreed within the start window.
package trafficwatcher

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// FlowSource identifies where evidence that a peer is carrying media came
// from.
type FlowSource int

const (
	PeerTraffic FlowSource = iota
	PartnerPeerTraffic
	Coturn
)

// StopSource identifies why a peer stopped carrying media.
type StopSource int

const (
	StopPeerRemoved StopSource = iota
	StopPartnerPeerRemoved
	StopPeerTraffic
	StopCoturn
	StopTimeout
)

// Verdict is emitted to the owning room.
type Verdict struct {
	RoomID string
	PeerID string
	Kind   VerdictKind
	At     time.Time
	// StartedAt is set on Stopped/Failed verdicts, carrying the time the
	// peer was first observed flowing (zero if it never started).
	StartedAt time.Time
}

type VerdictKind int

const (
	PeerStarted VerdictKind = iota
	PeerStopped
	PeerFailed
)

// RoomSink receives verdicts for peers registered under one room.
type RoomSink interface {
	TrafficVerdict(Verdict)
}

const (
	startCheckWindow = 15 * time.Second
	sweepInterval    = 10 * time.Second
)

type peerState struct {
	roomID          string
	required        map[FlowSource]struct{}
	seen            map[FlowSource]struct{}
	started         bool
	startedAt       time.Time
	lastUpdate      time.Time
	startCheckTimer *time.Timer
}

// Watcher is the process-global actor. One instance serves every room;
// rooms register and unregister peers as they are created and destroyed.
type Watcher struct {
	mu          sync.Mutex
	rooms       map[string]RoomSink
	peers       map[string]*peerState // keyed by roomID+"/"+peerID
	logger      zerolog.Logger
	cancel      context.CancelFunc
	startWindow time.Duration
}

// New constructs a Watcher and starts its 10-second timeout sweep.
func New(ctx context.Context, logger zerolog.Logger) *Watcher {
	ctx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		rooms:       make(map[string]RoomSink),
		peers:       make(map[string]*peerState),
		logger:      logger.With().Str("component", "trafficwatcher").Logger(),
		cancel:      cancel,
		startWindow: startCheckWindow,
	}
	go w.sweepLoop(ctx)
	return w
}

// startCheckOverride shortens the start-agreement window, for tests that
// don't want to wait the real 15 seconds.
func (w *Watcher) startCheckOverride(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.startWindow = d
}

// Close stops the sweep loop.
func (w *Watcher) Close() { w.cancel() }

// RegisterRoom is idempotent: re-registering a room just updates its sink.
func (w *Watcher) RegisterRoom(roomID string, sink RoomSink) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rooms[roomID] = sink
}

// UnregisterRoom drops the room and every peer registered under it.
func (w *Watcher) UnregisterRoom(roomID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.rooms, roomID)
	for key, st := range w.peers {
		if st.roomID == roomID {
			w.stopTimerLocked(st)
			delete(w.peers, key)
		}
	}
}

// RegisterPeer initialises tracking for peerID with the given required
// flow sources (Coturn only required when the peer is force-relayed).
func (w *Watcher) RegisterPeer(roomID, peerID string, requireCoturn bool) {
	required := map[FlowSource]struct{}{PeerTraffic: {}, PartnerPeerTraffic: {}}
	if requireCoturn {
		required[Coturn] = struct{}{}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.peers[peerKey(roomID, peerID)] = &peerState{
		roomID:     roomID,
		required:   required,
		seen:       make(map[FlowSource]struct{}),
		lastUpdate: time.Now(),
	}
}

// UnregisterPeers removes peers without emitting a stop verdict — used
// when the room itself is tearing them down and the caller doesn't need
// a notification about its own action.
func (w *Watcher) UnregisterPeers(roomID string, peerIDs []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, id := range peerIDs {
		key := peerKey(roomID, id)
		if st, ok := w.peers[key]; ok {
			w.stopTimerLocked(st)
			delete(w.peers, key)
		}
	}
}

// TrafficFlows records evidence of flow from source at time at.
func (w *Watcher) TrafficFlows(roomID, peerID string, at time.Time, source FlowSource) {
	w.mu.Lock()
	key := peerKey(roomID, peerID)
	st, ok := w.peers[key]
	if !ok {
		w.mu.Unlock()
		return
	}
	st.lastUpdate = at
	firstFlow := !st.started
	st.seen[source] = struct{}{}
	if firstFlow {
		st.started = true
		st.startedAt = at
		st.startCheckTimer = time.AfterFunc(w.startWindow, func() { w.checkStartWindow(roomID, peerID) })
	}
	sink := w.rooms[roomID]
	w.mu.Unlock()

	if firstFlow && sink != nil {
		sink.TrafficVerdict(Verdict{RoomID: roomID, PeerID: peerID, Kind: PeerStarted, At: at})
	}
}

func (w *Watcher) checkStartWindow(roomID, peerID string) {
	w.mu.Lock()
	key := peerKey(roomID, peerID)
	st, ok := w.peers[key]
	if !ok || !st.started {
		w.mu.Unlock()
		return
	}
	missing := false
	for src := range st.required {
		if _, seen := st.seen[src]; !seen {
			missing = true
			break
		}
	}
	if !missing {
		w.mu.Unlock()
		return
	}
	startedAt := st.startedAt
	delete(w.peers, key)
	sink := w.rooms[roomID]
	w.mu.Unlock()

	if sink != nil {
		sink.TrafficVerdict(Verdict{RoomID: roomID, PeerID: peerID, Kind: PeerFailed, At: time.Now(), StartedAt: startedAt})
	}
}

// TrafficStopped records that a peer stopped carrying media, for any
// reason including the synthesized Timeout source.
func (w *Watcher) TrafficStopped(roomID, peerID string, at time.Time, source StopSource) {
	w.mu.Lock()
	key := peerKey(roomID, peerID)
	st, ok := w.peers[key]
	if !ok {
		w.mu.Unlock()
		return
	}
	w.stopTimerLocked(st)
	startedAt := st.startedAt
	delete(w.peers, key)
	sink := w.rooms[roomID]
	w.mu.Unlock()

	if sink != nil {
		sink.TrafficVerdict(Verdict{RoomID: roomID, PeerID: peerID, Kind: PeerStopped, At: at, StartedAt: startedAt})
	}
	_ = source
}

func (w *Watcher) stopTimerLocked(st *peerState) {
	if st.startCheckTimer != nil {
		st.startCheckTimer.Stop()
	}
}

func (w *Watcher) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweepOnce()
		}
	}
}

func (w *Watcher) sweepOnce() {
	now := time.Now()
	type stale struct {
		roomID, peerID string
		startedAt      time.Time
	}
	var expired []stale

	w.mu.Lock()
	for key, st := range w.peers {
		if st.started && now.Sub(st.lastUpdate) > sweepInterval {
			_, peerID := splitPeerKey(key)
			expired = append(expired, stale{roomID: st.roomID, peerID: peerID, startedAt: st.startedAt})
			w.stopTimerLocked(st)
			delete(w.peers, key)
		}
	}
	w.mu.Unlock()

	for _, e := range expired {
		w.mu.Lock()
		sink := w.rooms[e.roomID]
		w.mu.Unlock()
		if sink != nil {
			sink.TrafficVerdict(Verdict{RoomID: e.roomID, PeerID: e.peerID, Kind: PeerStopped, At: now, StartedAt: e.startedAt})
		}
	}
}

func peerKey(roomID, peerID string) string { return roomID + "/" + peerID }

func splitPeerKey(key string) (roomID, peerID string) {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '/' {
			return key[:i], key[i+1:]
		}
	}
	return "", key
}
