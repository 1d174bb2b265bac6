/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package reactive

import "sync"

// ProgressableVec is an ordered, append-only progressable sequence. It
// backs the ICE-candidate buffer on a Peer (§4.H): candidates arriving
// before the remote description is applied are pushed here, and flushed
// to subscribers in push order once negotiation allows it.
type ProgressableVec[T any] struct {
	mu       sync.Mutex
	items    []T
	subs     map[int]chan *Guarded[T]
	nextSub  int
	inflight *inflight
}

// NewProgressableVec constructs an empty progressable vector.
func NewProgressableVec[T any]() *ProgressableVec[T] {
	return &ProgressableVec[T]{subs: make(map[int]chan *Guarded[T]), inflight: newInflight()}
}

// Push appends value, notifying subscribers in arrival order.
func (v *ProgressableVec[T]) Push(value T) {
	v.mu.Lock()
	v.items = append(v.items, value)
	var chans []chan *Guarded[T]
	for _, ch := range v.subs {
		chans = append(chans, ch)
	}
	v.mu.Unlock()

	for _, ch := range chans {
		v.dispatch(ch, value)
	}
}

// Drain removes and returns every item currently buffered, in push
// order, without notifying subscribers (used to flush the ICE-candidate
// buffer directly rather than through the subscriber path).
func (v *ProgressableVec[T]) Drain() []T {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := v.items
	v.items = nil
	return out
}

// Len returns the number of buffered items.
func (v *ProgressableVec[T]) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.items)
}

// Subscribe registers a subscriber for future pushes only.
func (v *ProgressableVec[T]) Subscribe() (<-chan *Guarded[T], func()) {
	v.mu.Lock()
	id := v.nextSub
	v.nextSub++
	ch := make(chan *Guarded[T], 16)
	v.subs[id] = ch
	v.mu.Unlock()

	cancel := func() {
		v.mu.Lock()
		if existing, ok := v.subs[id]; ok {
			delete(v.subs, id)
			close(existing)
		}
		v.mu.Unlock()
	}
	return ch, cancel
}

func (v *ProgressableVec[T]) dispatch(ch chan *Guarded[T], value T) {
	v.inflight.incr()
	g := &Guarded[T]{Value: value}
	g.done = v.inflight.decr
	select {
	case ch <- g:
	default:
		g.Done()
	}
}

// WhenAllProcessed resolves once every pushed value has had Done called.
func (v *ProgressableVec[T]) WhenAllProcessed() <-chan struct{} {
	return v.inflight.whenAllProcessed()
}
