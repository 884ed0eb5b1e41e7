// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

// EventType identifies a Matrix timeline or state event type.
//
// EventType is a named string, not a struct wrapper: event types are
// opaque identifiers that need no validation. The type exists so that a
// state key cannot be passed where an event type is expected.
type EventType string

// String returns the event type string.
func (t EventType) String() string { return string(t) }

// Standard Matrix event types read or written by the migrator.
const (
	EventTypeMessage        EventType = "m.room.message"
	EventTypeEncrypted      EventType = "m.room.encrypted"
	EventTypeRoomName       EventType = "m.room.name"
	EventTypeRoomTopic      EventType = "m.room.topic"
	EventTypeRoomCreate     EventType = "m.room.create"
	EventTypeCanonicalAlias EventType = "m.room.canonical_alias"
	EventTypeRoomMember     EventType = "m.room.member"
)
