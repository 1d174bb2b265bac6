/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package controlapi

import (
	"github.com/friendsincode/signalcore/internal/room"
)

// P2PMode mirrors room.P2PMode for YAML/JSON spec documents.
type P2PMode string

const (
	P2PNever      P2PMode = "Never"
	P2PIfPossible P2PMode = "IfPossible"
	P2PAlways     P2PMode = "Always"
)

func (m P2PMode) toRoom() room.P2PMode {
	switch m {
	case P2PAlways:
		return room.P2PAlways
	case P2PIfPossible:
		return room.P2PIfPossible
	default:
		return room.P2PNever
	}
}

// PublishEndpointSpec describes a source endpoint a member exposes.
type PublishEndpointSpec struct {
	ID         string  `yaml:"id" json:"id"`
	P2P        P2PMode `yaml:"p2p,omitempty" json:"p2p,omitempty"`
	ForceRelay bool    `yaml:"force_relay,omitempty" json:"force_relay,omitempty"`
}

// PlayEndpointSpec describes a sink endpoint subscribing to a publish
// endpoint elsewhere in the room, addressed by a local:// FID.
type PlayEndpointSpec struct {
	ID         string `yaml:"id" json:"id"`
	Src        string `yaml:"src" json:"src"`
	ForceRelay bool   `yaml:"force_relay,omitempty" json:"force_relay,omitempty"`
}

// MemberSpec describes one participant and its endpoints.
type MemberSpec struct {
	ID               string                `yaml:"id" json:"id"`
	Credential       string                `yaml:"credential" json:"credential"`
	OnJoinURL        string                `yaml:"on_join,omitempty" json:"on_join,omitempty"`
	OnLeaveURL       string                `yaml:"on_leave,omitempty" json:"on_leave,omitempty"`
	Publish          []PublishEndpointSpec `yaml:"publish,omitempty" json:"publish,omitempty"`
	Play             []PlayEndpointSpec    `yaml:"play,omitempty" json:"play,omitempty"`
}

// RoomSpec is the root document Apply reconciles a live Room against.
type RoomSpec struct {
	ID      string       `yaml:"id" json:"id"`
	Members []MemberSpec `yaml:"members,omitempty" json:"members,omitempty"`
}

// Apply reconciles the live room against spec: members, publish
// endpoints and play endpoints present in spec but missing from the
// room are created; anything in the room but absent from spec is
// removed. Members and endpoints already matching spec are left
// untouched, so Apply is idempotent and safe to call repeatedly with
// the same document.
func Apply(rm *room.Room, spec RoomSpec) error {
	wanted := make(map[string]MemberSpec, len(spec.Members))
	for _, m := range spec.Members {
		wanted[m.ID] = m
	}

	for _, existingID := range rm.MemberIDs() {
		if _, ok := wanted[existingID]; !ok {
			if err := rm.DeleteMember(existingID); err != nil {
				return err
			}
		}
	}

	for _, m := range spec.Members {
		if !rm.HasMember(m.ID) {
			if err := rm.EnsureMember(m.ID, m.Credential, false); err != nil {
				return err
			}
		}
		if err := applyEndpoints(rm, m); err != nil {
			return err
		}
	}
	return nil
}

func applyEndpoints(rm *room.Room, m MemberSpec) error {
	wantPublish := make(map[string]PublishEndpointSpec, len(m.Publish))
	for _, p := range m.Publish {
		wantPublish[p.ID] = p
	}
	wantPlay := make(map[string]PlayEndpointSpec, len(m.Play))
	for _, p := range m.Play {
		wantPlay[p.ID] = p
	}

	existingPublish, existingPlay := rm.EndpointIDs(m.ID)
	for _, id := range existingPublish {
		if _, ok := wantPublish[id]; !ok {
			if err := rm.DeleteEndpoint(m.ID, id); err != nil {
				return err
			}
		}
	}
	for _, id := range existingPlay {
		if _, ok := wantPlay[id]; !ok {
			if err := rm.DeleteEndpoint(m.ID, id); err != nil {
				return err
			}
		}
	}

	existingPublishSet := toSet(existingPublish)
	for _, p := range m.Publish {
		if existingPublishSet[p.ID] {
			continue
		}
		err := rm.CreatePublishEndpoint(m.ID, &room.PublishEndpoint{
			ID:         p.ID,
			P2PMode:    p.P2P.toRoom(),
			ForceRelay: p.ForceRelay,
			Sinks:      make(map[string]struct{}),
		})
		if err != nil {
			return err
		}
	}

	existingPlaySet := toSet(existingPlay)
	for _, p := range m.Play {
		if existingPlaySet[p.ID] {
			continue
		}
		srcFID, err := ParseLocalURI(p.Src)
		if err != nil {
			return err
		}
		err = rm.CreatePlayEndpoint(m.ID, &room.PlayEndpoint{
			ID:         p.ID,
			SrcFID:     p.Src,
			ForceRelay: p.ForceRelay,
		}, srcFID.MemberID, srcFID.EndpointID)
		if err != nil {
			return err
		}
	}
	return nil
}

func toSet(ids []string) map[string]bool {
	s := make(map[string]bool, len(ids))
	for _, id := range ids {
		s[id] = true
	}
	return s
}
