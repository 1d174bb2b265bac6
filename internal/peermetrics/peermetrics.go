/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package peermetrics turns RTP statistics batches into the flow/stop
// verdicts the traffic watcher needs, by comparing which senders and
// receivers are currently active against what the peer's spec declares
// it should have.
package peermetrics

import (
	"sync"
	"time"

	"github.com/friendsincode/signalcore/internal/trafficwatcher"
)

// MediaKind distinguishes audio from video tracks.
type MediaKind int

const (
	Audio MediaKind = iota
	Video
)

// TrackStat is one inbound or outbound RTP statistics sample.
type TrackStat struct {
	TrackID    string
	Kind       MediaKind
	IsOutbound bool // true = Sender (this peer sending), false = Receiver
	PacketsNow uint64
	UpdatedAt  time.Time
}

// PeerSpec is what the peer declares it should be carrying, used to
// validate the active stat set against.
type PeerSpec struct {
	ExpectedSenders   []MediaKind
	ExpectedReceivers []MediaKind
}

type trackState struct {
	lastPackets uint64
	lastUpdate  time.Time
	kind        MediaKind
	outbound    bool
}

// Service is the per-room metrics evaluator. It holds no global state; a
// new one is created per room by the room coordinator.
type Service struct {
	mu             sync.Mutex
	validity       time.Duration
	tracks         map[string]map[string]*trackState // peerID -> trackID -> state
	specs          map[string]PeerSpec
	partner        map[string]string // peerID -> partner peerID
	forceRelay     map[string]bool
	watcher        *trafficwatcher.Watcher
	roomID         string
	connectedPeers map[string]bool
	events         chan MetricsEvent
}

// MetricsEvent is emitted for callers (e.g. the room) that want to know
// about fatal mismatches rather than just the watcher verdicts.
type MetricsEvent struct {
	PeerID string
	Fatal  bool
	At     time.Time
}

// New constructs a metrics service for one room, feeding flow/stop
// verdicts into watcher.
func New(roomID string, watcher *trafficwatcher.Watcher, validity time.Duration) *Service {
	if validity == 0 {
		validity = 3 * time.Second
	}
	return &Service{
		validity:       validity,
		tracks:         make(map[string]map[string]*trackState),
		specs:          make(map[string]PeerSpec),
		partner:        make(map[string]string),
		forceRelay:     make(map[string]bool),
		watcher:        watcher,
		roomID:         roomID,
		connectedPeers: make(map[string]bool),
		events:         make(chan MetricsEvent, 16),
	}
}

// Events exposes fatal-mismatch notifications for the room coordinator.
func (s *Service) Events() <-chan MetricsEvent { return s.events }

// RegisterPeer records the expected send/receive spec for a peer and its
// negotiated partner, so batches can be validated against it.
func (s *Service) RegisterPeer(peerID, partnerPeerID string, spec PeerSpec, forceRelay bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.specs[peerID] = spec
	s.partner[peerID] = partnerPeerID
	s.forceRelay[peerID] = forceRelay
	if _, ok := s.tracks[peerID]; !ok {
		s.tracks[peerID] = make(map[string]*trackState)
	}
	s.watcher.RegisterPeer(s.roomID, peerID, forceRelay)
}

// RemovePeer drops all tracking for a peer.
func (s *Service) RemovePeer(peerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tracks, peerID)
	delete(s.specs, peerID)
	delete(s.partner, peerID)
	delete(s.forceRelay, peerID)
	delete(s.connectedPeers, peerID)
}

// AddStats applies one batch of RTP stat samples for peerID and
// re-evaluates its flow state.
func (s *Service) AddStats(peerID string, stats []TrackStat, now time.Time) {
	s.mu.Lock()
	tracks, ok := s.tracks[peerID]
	if !ok {
		s.mu.Unlock()
		return
	}
	for _, st := range stats {
		ts, exists := tracks[st.TrackID]
		if !exists {
			ts = &trackState{kind: st.Kind, outbound: st.IsOutbound}
			tracks[st.TrackID] = ts
		}
		if st.PacketsNow != ts.lastPackets {
			ts.lastUpdate = now
		}
		ts.lastPackets = st.PacketsNow
	}

	var activeSend, activeRecv []MediaKind
	for _, ts := range tracks {
		if now.Sub(ts.lastUpdate) > s.validity {
			continue
		}
		if ts.outbound {
			activeSend = append(activeSend, ts.kind)
		} else {
			activeRecv = append(activeRecv, ts.kind)
		}
	}

	spec := s.specs[peerID]
	partnerID := s.partner[peerID]
	wasConnected := s.connectedPeers[peerID]
	s.mu.Unlock()

	matches := sameMultiset(activeSend, spec.ExpectedSenders) && sameMultiset(activeRecv, spec.ExpectedReceivers)
	noneActive := len(activeSend) == 0 && len(activeRecv) == 0

	switch {
	case matches:
		s.mu.Lock()
		s.connectedPeers[peerID] = true
		s.mu.Unlock()
		s.watcher.TrafficFlows(s.roomID, peerID, now, trafficwatcher.PeerTraffic)
		if partnerID != "" {
			s.watcher.TrafficFlows(s.roomID, partnerID, now, trafficwatcher.PartnerPeerTraffic)
		}
	case noneActive:
		if wasConnected {
			s.watcher.TrafficStopped(s.roomID, peerID, now, trafficwatcher.StopPeerTraffic)
		}
	default:
		select {
		case s.events <- MetricsEvent{PeerID: peerID, Fatal: true, At: now}:
		default:
		}
	}
}

func sameMultiset(a, b []MediaKind) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[MediaKind]int)
	for _, k := range a {
		counts[k]++
	}
	for _, k := range b {
		counts[k]--
	}
	for _, c := range counts {
		if c != 0 {
			return false
		}
	}
	return true
}
