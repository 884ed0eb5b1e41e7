// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/bureau-foundation/matrix-migrate/lib/ref"
	"github.com/bureau-foundation/matrix-migrate/messaging"
)

const (
	// discoveryTimeout is the /sync long-poll timeout, in milliseconds,
	// for room discovery and anchor syncs.
	discoveryTimeout = 30000

	// defaultRoomVersion applies when a room has no readable
	// m.room.create event.
	defaultRoomVersion = "1"

	// emptyRoomName is the display name of a room with no name, alias
	// or other members.
	emptyRoomName = "Empty Room"

	// maxHeroes bounds how many member names make up a computed display
	// name.
	maxHeroes = 5
)

// RoomRecord describes a joined room.
type RoomRecord struct {
	ID      ref.RoomID
	Name    string
	Topic   string
	Version string
}

// Catalog is an immutable snapshot of an account's joined rooms, in the
// order the server lists them. Obtain a newer one with Handle.Refresh.
type Catalog struct {
	rooms []RoomRecord
	byID  map[ref.RoomID]int
}

// NewCatalog builds a snapshot from rooms. The slice is copied.
func NewCatalog(rooms []RoomRecord) *Catalog {
	catalog := &Catalog{
		rooms: append([]RoomRecord(nil), rooms...),
		byID:  make(map[ref.RoomID]int, len(rooms)),
	}
	for i, room := range catalog.rooms {
		if _, seen := catalog.byID[room.ID]; !seen {
			catalog.byID[room.ID] = i
		}
	}
	return catalog
}

// Rooms returns the rooms in server order. The slice is a copy.
func (c *Catalog) Rooms() []RoomRecord {
	return append([]RoomRecord(nil), c.rooms...)
}

// Len returns the number of rooms.
func (c *Catalog) Len() int {
	return len(c.rooms)
}

// FindByName returns the first room whose display name is name.
func (c *Catalog) FindByName(name string) (RoomRecord, bool) {
	for _, room := range c.rooms {
		if room.Name == name {
			return room, true
		}
	}
	return RoomRecord{}, false
}

// FindByID returns the room with the given ID.
func (c *Catalog) FindByID(id ref.RoomID) (RoomRecord, bool) {
	index, ok := c.byID[id]
	if !ok {
		return RoomRecord{}, false
	}
	return c.rooms[index], true
}

// Handle is a logged-in account together with its current catalog.
// A Handle is used by one flow at a time.
type Handle struct {
	role    string
	session messaging.Session
	catalog *Catalog
	logger  *slog.Logger
	metrics *Metrics
}

// Role returns the handle's side of the migration.
func (h *Handle) Role() string { return h.role }

// Session returns the underlying Matrix session.
func (h *Handle) Session() messaging.Session { return h.session }

// Catalog returns the most recent snapshot.
func (h *Handle) Catalog() *Catalog { return h.catalog }

// Refresh fetches a new snapshot, makes it the handle's current one and
// returns it. On error the previous snapshot stays current. Errors wrap
// ErrSync.
func (h *Handle) Refresh(ctx context.Context) (*Catalog, error) {
	joined, err := h.session.JoinedRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: listing joined rooms: %w", ErrSync, err)
	}

	response, err := h.session.Sync(ctx, messaging.SyncOptions{
		Timeout:    discoveryTimeout,
		SetTimeout: true,
		FullState:  true,
		Filter:     messaging.SyncFilter{TimelineLimit: 1}.Inline(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSync, err)
	}

	ownUser := h.session.UserID()
	rooms := make([]RoomRecord, 0, len(joined))
	for _, roomID := range joined {
		var state []messaging.Event
		if synced, ok := response.Rooms.Join[roomID]; ok && len(synced.State.Events)+len(synced.Timeline.Events) > 0 {
			state = append(state, synced.State.Events...)
			for _, event := range synced.Timeline.Events {
				if event.StateKey != nil {
					state = append(state, event)
				}
			}
		} else {
			state, err = h.session.GetRoomState(ctx, roomID)
			if err != nil {
				h.logger.Warn("cannot read room state, leaving room out of the catalog",
					"room_id", roomID,
					"error", err,
				)
				continue
			}
		}
		rooms = append(rooms, roomFromState(roomID, state, ownUser))
	}

	catalog := NewCatalog(rooms)
	h.catalog = catalog
	h.logger.Debug("catalog refreshed", "rooms", catalog.Len())
	return catalog, nil
}

// roomFromState derives a RoomRecord from state events. Later events
// for the same type and state key override earlier ones.
func roomFromState(roomID ref.RoomID, events []messaging.Event, ownUser ref.UserID) RoomRecord {
	var (
		name, alias, topic string
		version            = defaultRoomVersion
		members            = make(map[string]string)
	)

	for _, event := range events {
		if event.StateKey == nil {
			continue
		}
		switch event.Type {
		case ref.EventTypeRoomName:
			var content struct {
				Name string `json:"name"`
			}
			if json.Unmarshal(event.Content, &content) == nil {
				name = content.Name
			}
		case ref.EventTypeCanonicalAlias:
			var content struct {
				Alias string `json:"alias"`
			}
			if json.Unmarshal(event.Content, &content) == nil {
				alias = content.Alias
			}
		case ref.EventTypeRoomTopic:
			var content struct {
				Topic string `json:"topic"`
			}
			if json.Unmarshal(event.Content, &content) == nil {
				topic = content.Topic
			}
		case ref.EventTypeRoomCreate:
			var content struct {
				RoomVersion string `json:"room_version"`
			}
			if json.Unmarshal(event.Content, &content) == nil && content.RoomVersion != "" {
				version = content.RoomVersion
			}
		case ref.EventTypeRoomMember:
			userID := *event.StateKey
			var content struct {
				Membership  string `json:"membership"`
				DisplayName string `json:"displayname"`
			}
			if json.Unmarshal(event.Content, &content) != nil || content.Membership != "join" {
				delete(members, userID)
				continue
			}
			members[userID] = content.DisplayName
		}
	}

	return RoomRecord{
		ID:      roomID,
		Name:    displayName(name, alias, members, ownUser),
		Topic:   topic,
		Version: version,
	}
}

// displayName picks the room's name: the explicit name, then the
// canonical alias, then the other joined members, then emptyRoomName.
func displayName(name, alias string, members map[string]string, ownUser ref.UserID) string {
	if name != "" {
		return name
	}
	if alias != "" {
		return alias
	}

	var others []string
	for userID, display := range members {
		if userID == ownUser.String() {
			continue
		}
		if display == "" {
			display = userID
		}
		others = append(others, display)
	}
	if len(others) == 0 {
		return emptyRoomName
	}

	sort.Strings(others)
	if len(others) <= maxHeroes {
		return strings.Join(others, ", ")
	}
	return fmt.Sprintf("%s and %d others", strings.Join(others[:maxHeroes], ", "), len(others)-maxHeroes)
}
