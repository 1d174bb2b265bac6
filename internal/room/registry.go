/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package room

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/friendsincode/signalcore/internal/trafficwatcher"
	"github.com/friendsincode/signalcore/internal/turnauth"
)

// Registry owns every live Room in the process and lazily creates them
// on first reference, following the same get-or-create-under-lock
// pattern as a broadcaster pool: a fast read-locked lookup, and a
// double-checked create under the write lock so two concurrent callers
// never end up with two Rooms for the same id.
type Registry struct {
	mu      sync.RWMutex
	rooms   map[string]*Room
	turn    *turnauth.Service
	watcher *trafficwatcher.Watcher
	cb      CallbackSink
	audit   AuditSink
	logger  zerolog.Logger
}

// NewRegistry constructs an empty room registry.
func NewRegistry(turn *turnauth.Service, watcher *trafficwatcher.Watcher, cb CallbackSink, audit AuditSink, logger zerolog.Logger) *Registry {
	return &Registry{
		rooms:   make(map[string]*Room),
		turn:    turn,
		watcher: watcher,
		cb:      cb,
		audit:   audit,
		logger:  logger,
	}
}

// Get returns the room with id, if it exists.
func (reg *Registry) Get(id string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	r, ok := reg.rooms[id]
	return r, ok
}

// GetOrCreate returns the existing room for id, or creates and registers
// a new one.
func (reg *Registry) GetOrCreate(id string) *Room {
	reg.mu.RLock()
	if r, ok := reg.rooms[id]; ok {
		reg.mu.RUnlock()
		return r
	}
	reg.mu.RUnlock()

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if r, ok := reg.rooms[id]; ok {
		return r
	}
	r := New(id, reg.turn, reg.watcher, reg.cb, reg.audit, reg.logger)
	reg.rooms[id] = r
	return r
}

// Delete closes and removes a room.
func (reg *Registry) Delete(id string) {
	reg.mu.Lock()
	r, ok := reg.rooms[id]
	if ok {
		delete(reg.rooms, id)
	}
	reg.mu.Unlock()
	if ok {
		r.CloseGracefully()
	}
}

// List returns the ids of every live room.
func (reg *Registry) List() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]string, 0, len(reg.rooms))
	for id := range reg.rooms {
		out = append(out, id)
	}
	return out
}

// CloseAll gracefully closes every room, used during process shutdown.
func (reg *Registry) CloseAll() {
	reg.mu.Lock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		rooms = append(rooms, r)
	}
	reg.rooms = make(map[string]*Room)
	reg.mu.Unlock()

	for _, r := range rooms {
		r.CloseGracefully()
	}
}
