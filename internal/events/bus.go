/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package events fans engine events out to in-process consumers such as
// the websocket stream, the now-playing snapshot and the play history.
package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	EventNewTrackPlaying  EventType = "track.new"
	EventNowPlaying       EventType = "transport.playing"
	EventNowPaused        EventType = "transport.paused"
	EventProgress         EventType = "transport.progress"
	EventJumpedTo         EventType = "transport.jumped"
	EventTransportFailed  EventType = "transport.failed"
	EventNewSettings      EventType = "settings"
	EventDirError         EventType = "library.dir_error"
	EventLibraryChanged   EventType = "library.changed"
	EventTrackFinished    EventType = "track.finished"
	EventLoadFailed       EventType = "loader.failed"
	EventActorUnavailable EventType = "actor.unavailable"
	EventQueueChanged     EventType = "queue.changed"

	// EventAll subscribes to every event type.
	EventAll EventType = "*"
)

// Payload generic event payload. The "type" key is set by Publish.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// Bus implements a simple in-process pubsub. Slow subscribers miss events
// rather than block the publisher.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
	size int
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber), size: 32}
}

// Subscribe registers a subscriber for event type, or every type with EventAll.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, b.size)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers of eventType and of EventAll.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	if payload == nil {
		payload = Payload{}
	}
	payload["type"] = string(eventType)

	// Sends never block, so the read lock is held across them. Unsubscribe
	// closes channels under the write lock and cannot race a send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, subs := range [][]Subscriber{b.subs[eventType], b.subs[EventAll]} {
		for _, sub := range subs {
			select {
			case sub <- payload:
			default:
			}
		}
	}
}

// Unsubscribe removes the subscriber and closes it.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			b.subs[eventType] = append(subs[:i:i], subs[i+1:]...)
			close(sub)
			return
		}
	}
}
