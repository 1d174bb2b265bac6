/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	EventRoomCreated     EventType = "room.created"
	EventRoomClosed      EventType = "room.closed"
	EventMemberCreated   EventType = "member.created"
	EventMemberDeleted   EventType = "member.deleted"
	EventMemberJoined    EventType = "member.joined"
	EventMemberLeft      EventType = "member.left"
	EventEndpointCreated EventType = "endpoint.created"
	EventEndpointDeleted EventType = "endpoint.deleted"
	EventPeerCreated     EventType = "peer.created"
	EventPeerStarted     EventType = "peer.started"
	EventPeerStopped     EventType = "peer.stopped"
	EventPeerFailed      EventType = "peer.failed"

	EventCallbackOnJoin  EventType = "callback.on_join"
	EventCallbackOnLeave EventType = "callback.on_leave"
	EventCallbackOnStart EventType = "callback.on_start"
	EventCallbackOnStop  EventType = "callback.on_stop"
)

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// PubSub is satisfied by both the in-process Bus and the NATS-backed bus
// in internal/eventbus, letting callers depend on whichever transport is
// configured without knowing which one it is.
type PubSub interface {
	Subscribe(eventType EventType) Subscriber
	Publish(eventType EventType, payload Payload)
	Unsubscribe(eventType EventType, sub Subscriber)
}

// Bus implements a simple in-process pubsub.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 8)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subs[eventType]...)
	b.mu.RUnlock()
	for _, sub := range subs {
		select {
		case sub <- payload:
		default:
		}
	}
}

// Unsubscribe removes the subscriber.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	b.subs[eventType] = subs
	close(sub)
}
