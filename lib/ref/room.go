// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"strings"
)

// RoomID is a validated Matrix room ID: "!abc123:example.org" for room
// versions up to 11, or a bare "!<hash>" from room version 12 on.
//
// Room IDs are opaque and server-assigned. They identify a room on one
// homeserver only: the same conversation on the source and destination
// servers has two unrelated room IDs, which is why the migrator
// correlates rooms by display name instead.
type RoomID struct {
	id string
}

// ParseRoomID validates and wraps a raw Matrix room ID string. The
// ':server' suffix is optional; when present both halves must be
// non-empty.
func ParseRoomID(raw string) (RoomID, error) {
	if strings.IndexByte(raw, ':') < 0 {
		if raw == "" {
			return RoomID{}, fmt.Errorf("empty room ID")
		}
		if raw[0] != '!' {
			return RoomID{}, fmt.Errorf("room ID must start with '!': %q", raw)
		}
		if len(raw) == 1 {
			return RoomID{}, fmt.Errorf("room ID has empty local part: %q", raw)
		}
		return RoomID{id: raw}, nil
	}
	if _, _, err := splitIdentifier(raw, '!', "room ID"); err != nil {
		return RoomID{}, err
	}
	return RoomID{id: raw}, nil
}

// MustParseRoomID is like ParseRoomID but panics on error. Use in tests
// and static initialization where the input is known-valid.
func MustParseRoomID(raw string) RoomID {
	roomID, err := ParseRoomID(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseRoomID(%q): %v", raw, err))
	}
	return roomID
}

// String returns the full room ID string.
func (r RoomID) String() string { return r.id }

// IsZero reports whether the RoomID is the zero value.
func (r RoomID) IsZero() bool { return r.id == "" }

// MarshalText implements encoding.TextMarshaler. Room IDs appear both as
// JSON values and as map keys (the /sync "rooms.join" object), so both
// directions go through the text form.
func (r RoomID) MarshalText() ([]byte, error) {
	return []byte(r.id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty input
// produces the zero value.
func (r *RoomID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*r = RoomID{}
		return nil
	}
	parsed, err := ParseRoomID(string(data))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
