/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package room

import "time"

// Member is one signaling participant in a Room.
type Member struct {
	ID               string
	Credential       string
	OnJoinURL        string
	OnLeaveURL       string
	IdleTimeout      time.Duration
	ReconnectTimeout time.Duration
	PingInterval     time.Duration

	Publishes map[string]*PublishEndpoint
	Plays     map[string]*PlayEndpoint
}

// PublishEndpoint is a source endpoint a Member exposes for others to
// subscribe to.
type PublishEndpoint struct {
	ID         string
	P2PMode    P2PMode
	ForceRelay bool
	// Sinks holds the FIDs of PlayEndpoints subscribed to this source, a
	// non-owning by-id reference rather than a pointer, resolved through
	// the owning Room's member/endpoint registries on demand.
	Sinks map[string]struct{}
}

// PlayEndpoint is a sink endpoint that consumes a PublishEndpoint owned by
// another Member.
type PlayEndpoint struct {
	ID         string
	SrcFID     string // local://room/member/publish-id
	ForceRelay bool
}

// P2PMode controls whether a PublishEndpoint prefers direct peer
// connections.
type P2PMode int

const (
	P2PNever P2PMode = iota
	P2PIfPossible
	P2PAlways
)

func newMember(id, credential string) *Member {
	return &Member{
		ID:               id,
		Credential:       credential,
		IdleTimeout:      10 * time.Second,
		ReconnectTimeout: 10 * time.Second,
		PingInterval:     3 * time.Second,
		Publishes:        make(map[string]*PublishEndpoint),
		Plays:            make(map[string]*PlayEndpoint),
	}
}
