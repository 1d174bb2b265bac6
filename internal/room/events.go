/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package room

import (
	"time"

	"github.com/friendsincode/signalcore/internal/peer"
	"github.com/friendsincode/signalcore/internal/peermetrics"
	"github.com/friendsincode/signalcore/internal/turnauth"
)

// EventKind identifies which server-to-client Event variant is populated.
type EventKind int

const (
	EventPeerCreated EventKind = iota
	EventSdpAnswerMade
	EventLocalDescriptionApplied
	EventIceCandidateDiscovered
	EventPeersRemoved
	EventTracksApplied
	EventConnectionQualityUpdated
	EventRoomJoined
	EventRoomLeft
	EventStateSynchronized
)

// Event is the full set of server-to-client RPC payloads; only the
// fields relevant to Kind are populated.
type Event struct {
	Kind            EventKind
	PeerID          string
	NegotiationRole peer.Role
	SdpOffer        string
	SdpAnswer       string
	IceServers      []turnauth.IceUser
	ForceRelay      bool
	Candidate       peer.IceCandidate
	PeerIDs         []string
	TrackPatches    []peer.TrackPatch
	PartnerMemberID string
	QualityScore    float64
	MemberID        string
	CloseReason     string
}

// CommandKind identifies which client-to-server Command variant is
// populated.
type CommandKind int

const (
	CommandMakeSdpOffer CommandKind = iota
	CommandMakeSdpAnswer
	CommandSetIceCandidate
	CommandAddPeerConnectionMetrics
	CommandUpdateTracks
)

// Command is the full set of client-to-server RPC payloads.
type Command struct {
	Kind         CommandKind
	PeerID       string
	SdpOffer     string
	SdpAnswer    string
	Candidate    peer.IceCandidate
	TrackPatches []peer.TrackPatch
	Stats        []peermetrics.TrackStat
}

// Connection is the outbound half of a client's RPC connection, as seen
// by the Room. The participant service (internal/rpcconn) implements
// this; the Room ignores Send errors, so a failed send neither closes
// the connection nor becomes a Room error.
type Connection interface {
	Send(Event) error
}

// CloseReason classifies why a member's connection ended.
type CloseReason int

const (
	ReasonDisconnected CloseReason = iota
	ReasonKicked
	ReasonLostConnection
	ReasonServerShutdown
)

func (r CloseReason) String() string {
	switch r {
	case ReasonDisconnected:
		return "Disconnected"
	case ReasonKicked:
		return "Kicked"
	case ReasonLostConnection:
		return "LostConnection"
	case ReasonServerShutdown:
		return "ServerShutdown"
	default:
		return "Unknown"
	}
}

// CallbackSink delivers the on_join/on_leave/on_start/on_stop lifecycle
// callbacks; implemented by internal/callback.
type CallbackSink interface {
	OnJoin(fid string, at time.Time)
	OnLeave(fid string, at time.Time, reason CloseReason)
	OnStart(fid, mediaDirection, mediaType string, at time.Time)
	OnStop(fid, mediaDirection, mediaType, reason string, at time.Time)
}

// AuditSink records a Control-API mutation or lifecycle transition;
// implemented by internal/audit.
type AuditSink interface {
	Record(roomID, memberID, action, resourceType, resourceID string, details map[string]any)
}
