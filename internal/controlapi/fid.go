/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package controlapi implements the Room/Member/Endpoint management
// surface: FID parsing, the spec model types, and Apply diff semantics
// against a room registry.
package controlapi

import (
	"errors"
	"strings"
)

// FID errors.
var (
	ErrEmpty        = errors.New("controlapi: empty fid")
	ErrNotLocal     = errors.New("controlapi: src reference missing local:// scheme")
	ErrTooManyPaths = errors.New("controlapi: fid has more than three path segments")
	ErrMissingPaths = errors.New("controlapi: fid path segment is empty")
)

// FID is a parsed fully-qualified identifier: room, room/member, or
// room/member/endpoint.
type FID struct {
	RoomID     string
	MemberID   string
	EndpointID string
}

// String reproduces the canonical textual form, such that Parse(s.String())
// == s for any FID produced by Parse.
func (f FID) String() string {
	switch {
	case f.EndpointID != "":
		return f.RoomID + "/" + f.MemberID + "/" + f.EndpointID
	case f.MemberID != "":
		return f.RoomID + "/" + f.MemberID
	default:
		return f.RoomID
	}
}

// Parse parses a bare (schema-less) FID of 1-3 slash-separated segments.
func Parse(s string) (FID, error) {
	if s == "" {
		return FID{}, ErrEmpty
	}
	parts := strings.Split(s, "/")
	if len(parts) > 3 {
		return FID{}, ErrTooManyPaths
	}
	for _, p := range parts {
		if p == "" {
			return FID{}, ErrMissingPaths
		}
	}
	f := FID{RoomID: parts[0]}
	if len(parts) > 1 {
		f.MemberID = parts[1]
	}
	if len(parts) > 2 {
		f.EndpointID = parts[2]
	}
	return f, nil
}

// ParseLocalURI parses a PlayEndpoint.src reference, which must carry the
// local:// scheme prefix and a full room/member/endpoint FID.
func ParseLocalURI(s string) (FID, error) {
	const scheme = "local://"
	if !strings.HasPrefix(s, scheme) {
		return FID{}, ErrNotLocal
	}
	f, err := Parse(strings.TrimPrefix(s, scheme))
	if err != nil {
		return FID{}, err
	}
	if f.EndpointID == "" {
		return FID{}, ErrMissingPaths
	}
	return f, nil
}
