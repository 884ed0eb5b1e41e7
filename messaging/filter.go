// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"encoding/json"

	"github.com/bureau-foundation/matrix-migrate/lib/ref"
)

// SyncFilter narrows what a /sync returns.
type SyncFilter struct {
	// Rooms restricts the response to these rooms. Empty means every
	// joined room.
	Rooms []ref.RoomID

	// TimelineLimit caps the number of timeline events per room. Zero
	// leaves the server default in place.
	TimelineLimit int
}

// Inline returns the filter as inline JSON suitable for
// SyncOptions.Filter. Presence and account data are always excluded:
// nothing in this module reads them.
func (f SyncFilter) Inline() string {
	roomFilter := map[string]any{}

	if len(f.Rooms) > 0 {
		rooms := make([]string, len(f.Rooms))
		for i, roomID := range f.Rooms {
			rooms[i] = roomID.String()
		}
		roomFilter["rooms"] = rooms
	}
	if f.TimelineLimit > 0 {
		roomFilter["timeline"] = map[string]any{"limit": f.TimelineLimit}
	}

	top := map[string]any{
		"room":         roomFilter,
		"presence":     map[string]any{"types": []string{}},
		"account_data": map[string]any{"types": []string{}},
	}

	data, _ := json.Marshal(top)
	return string(data)
}
