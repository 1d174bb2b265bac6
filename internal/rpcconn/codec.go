/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package rpcconn

import (
	"encoding/json"

	"github.com/friendsincode/signalcore/internal/peer"
	"github.com/friendsincode/signalcore/internal/peermetrics"
	"github.com/friendsincode/signalcore/internal/room"
)

type iceCandidateWire struct {
	Candidate     string  `json:"candidate"`
	SdpMLineIndex *uint16 `json:"sdp_m_line_index,omitempty"`
	SdpMid        *string `json:"sdp_mid,omitempty"`
}

type trackPatchWire struct {
	TrackID           string `json:"track_id"`
	EnabledIndividual *bool  `json:"enabled_individual,omitempty"`
	EnabledGeneral    *bool  `json:"enabled_general,omitempty"`
	Muted             *bool  `json:"muted,omitempty"`
}

type rtcStatWire struct {
	StatID     string `json:"stat_id"`
	Kind       string `json:"kind"`
	IsOutbound bool   `json:"is_outbound"`
	Packets    uint64 `json:"packets"`
}

type peerMetricsWire struct {
	RtcStats []rtcStatWire `json:"RtcStats,omitempty"`
}

type iceServerWire struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// wireEvent is the JSON-on-the-wire shape of a server-to-client Event.
type wireEvent struct {
	Event           string            `json:"event"`
	PeerID          string            `json:"peer_id,omitempty"`
	NegotiationRole string            `json:"negotiation_role,omitempty"`
	SdpOffer        string            `json:"sdp_offer,omitempty"`
	SdpAnswer       string            `json:"sdp_answer,omitempty"`
	IceServers      []iceServerWire   `json:"ice_servers,omitempty"`
	ForceRelay      bool              `json:"force_relay,omitempty"`
	Candidate       *iceCandidateWire `json:"candidate,omitempty"`
	PeerIDs         []string          `json:"peer_ids,omitempty"`
	TrackPatches    []trackPatchWire  `json:"track_patches,omitempty"`
	PartnerMemberID string            `json:"partner_member_id,omitempty"`
	QualityScore    float64           `json:"quality_score,omitempty"`
	MemberID        string            `json:"member_id,omitempty"`
	CloseReason     string            `json:"close_reason,omitempty"`
}

func encodeEvent(e room.Event) wireEvent {
	w := wireEvent{
		PeerID:          e.PeerID,
		SdpOffer:        e.SdpOffer,
		SdpAnswer:       e.SdpAnswer,
		ForceRelay:      e.ForceRelay,
		PeerIDs:         e.PeerIDs,
		PartnerMemberID: e.PartnerMemberID,
		QualityScore:    e.QualityScore,
		MemberID:        e.MemberID,
		CloseReason:     e.CloseReason,
	}
	switch e.Kind {
	case room.EventPeerCreated:
		w.Event = "PeerCreated"
		w.NegotiationRole = roleName(e.NegotiationRole)
	case room.EventSdpAnswerMade:
		w.Event = "SdpAnswerMade"
	case room.EventLocalDescriptionApplied:
		w.Event = "LocalDescriptionApplied"
	case room.EventIceCandidateDiscovered:
		w.Event = "IceCandidateDiscovered"
		w.Candidate = &iceCandidateWire{Candidate: e.Candidate.Candidate, SdpMLineIndex: e.Candidate.SdpMLineIndex, SdpMid: e.Candidate.SdpMid}
	case room.EventPeersRemoved:
		w.Event = "PeersRemoved"
	case room.EventTracksApplied:
		w.Event = "TracksApplied"
		w.NegotiationRole = roleName(e.NegotiationRole)
		for _, p := range e.TrackPatches {
			w.TrackPatches = append(w.TrackPatches, trackPatchWire{TrackID: p.TrackID, EnabledIndividual: p.EnabledIndividual, EnabledGeneral: p.EnabledGeneral, Muted: p.Muted})
		}
	case room.EventConnectionQualityUpdated:
		w.Event = "ConnectionQualityUpdated"
	case room.EventRoomJoined:
		w.Event = "RoomJoined"
	case room.EventRoomLeft:
		w.Event = "RoomLeft"
	case room.EventStateSynchronized:
		w.Event = "StateSynchronized"
	}
	for _, srv := range e.IceServers {
		w.IceServers = append(w.IceServers, iceServerWire{URLs: srv.URLs, Username: srv.Username, Credential: srv.Credential})
	}
	return w
}

func roleName(r peer.Role) string {
	switch r {
	case peer.RoleOfferer:
		return "Offerer"
	case peer.RoleAnswerer:
		return "Answerer"
	default:
		return ""
	}
}

func decodeCommand(name string, payload json.RawMessage) (room.Command, bool) {
	switch name {
	case "MakeSdpOffer":
		var p struct {
			PeerID   string `json:"peer_id"`
			SdpOffer string `json:"sdp_offer"`
		}
		if json.Unmarshal(payload, &p) != nil {
			return room.Command{}, false
		}
		return room.Command{Kind: room.CommandMakeSdpOffer, PeerID: p.PeerID, SdpOffer: p.SdpOffer}, true
	case "MakeSdpAnswer":
		var p struct {
			PeerID    string `json:"peer_id"`
			SdpAnswer string `json:"sdp_answer"`
		}
		if json.Unmarshal(payload, &p) != nil {
			return room.Command{}, false
		}
		return room.Command{Kind: room.CommandMakeSdpAnswer, PeerID: p.PeerID, SdpAnswer: p.SdpAnswer}, true
	case "SetIceCandidate":
		var p struct {
			PeerID    string           `json:"peer_id"`
			Candidate iceCandidateWire `json:"candidate"`
		}
		if json.Unmarshal(payload, &p) != nil {
			return room.Command{}, false
		}
		return room.Command{Kind: room.CommandSetIceCandidate, PeerID: p.PeerID, Candidate: peer.IceCandidate{
			Candidate:     p.Candidate.Candidate,
			SdpMLineIndex: p.Candidate.SdpMLineIndex,
			SdpMid:        p.Candidate.SdpMid,
		}}, true
	case "UpdateTracks":
		var p struct {
			PeerID       string           `json:"peer_id"`
			TrackPatches []trackPatchWire `json:"track_patches"`
		}
		if json.Unmarshal(payload, &p) != nil {
			return room.Command{}, false
		}
		cmd := room.Command{Kind: room.CommandUpdateTracks, PeerID: p.PeerID}
		for _, tp := range p.TrackPatches {
			cmd.TrackPatches = append(cmd.TrackPatches, peer.TrackPatch{
				TrackID:           tp.TrackID,
				EnabledIndividual: tp.EnabledIndividual,
				EnabledGeneral:    tp.EnabledGeneral,
				Muted:             tp.Muted,
			})
		}
		return cmd, true
	case "AddPeerConnectionMetrics":
		var p struct {
			PeerID  string          `json:"peer_id"`
			Metrics peerMetricsWire `json:"metrics"`
		}
		if json.Unmarshal(payload, &p) != nil {
			return room.Command{}, false
		}
		cmd := room.Command{Kind: room.CommandAddPeerConnectionMetrics, PeerID: p.PeerID}
		for _, st := range p.Metrics.RtcStats {
			kind := peermetrics.Audio
			if st.Kind == "Video" {
				kind = peermetrics.Video
			}
			cmd.Stats = append(cmd.Stats, peermetrics.TrackStat{
				TrackID:    st.StatID,
				Kind:       kind,
				IsOutbound: st.IsOutbound,
				PacketsNow: st.Packets,
			})
		}
		// IceConnectionState/PeerConnectionState metrics variants carry no
		// data peermetrics.Service consumes; only RtcStats batches feed the
		// active-vs-spec comparison.
		return cmd, true
	default:
		return room.Command{}, false
	}
}
