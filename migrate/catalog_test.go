// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package migrate

import (
	"context"
	"testing"

	"github.com/bureau-foundation/matrix-migrate/lib/ref"
	"github.com/bureau-foundation/matrix-migrate/messaging"
)

func TestCatalogLookup(t *testing.T) {
	first := RoomRecord{ID: ref.MustParseRoomID("!a:example.org"), Name: "dup"}
	second := RoomRecord{ID: ref.MustParseRoomID("!b:example.org"), Name: "dup"}
	other := RoomRecord{ID: ref.MustParseRoomID("!c:example.org"), Name: "other"}
	catalog := NewCatalog([]RoomRecord{first, second, other})

	if room, ok := catalog.FindByName("dup"); !ok || room.ID != first.ID {
		t.Errorf("FindByName(dup) = %+v, %v; first match should win", room, ok)
	}
	if room, ok := catalog.FindByID(second.ID); !ok || room != second {
		t.Errorf("FindByID = %+v, %v", room, ok)
	}
	if _, ok := catalog.FindByName("missing"); ok {
		t.Error("FindByName(missing) found something")
	}
	if _, ok := catalog.FindByID(ref.MustParseRoomID("!z:example.org")); ok {
		t.Error("FindByID(unknown) found something")
	}
}

func TestCatalogIsImmutable(t *testing.T) {
	rooms := []RoomRecord{{ID: ref.MustParseRoomID("!a:example.org"), Name: "a"}}
	catalog := NewCatalog(rooms)

	rooms[0].Name = "mutated"
	returned := catalog.Rooms()
	returned[0].Name = "mutated too"

	if room, _ := catalog.FindByID(ref.MustParseRoomID("!a:example.org")); room.Name != "a" {
		t.Errorf("catalog changed through a shared slice: %q", room.Name)
	}
}

func TestRefreshReturnsNewSnapshot(t *testing.T) {
	server := newFakeServer("new.example", nil)
	handle := loginHandle(t, server, "destination", NewMetrics())
	before := handle.Catalog()

	server.addRoom("later")
	after, err := handle.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if before.Len() != 0 {
		t.Errorf("old snapshot changed: %d rooms", before.Len())
	}
	if after.Len() != 1 || handle.Catalog() != after {
		t.Errorf("new snapshot not current: %d rooms", after.Len())
	}
}

func TestRefreshFallsBackToRoomState(t *testing.T) {
	calls := new([]string)
	server := newFakeServer("old.example", calls)
	room := server.addRoom("general")
	server.omitFromSync = true

	handle := loginHandle(t, server, "source", NewMetrics())
	record, ok := handle.Catalog().FindByID(room.id)
	if !ok || record.Name != "general" || record.Version != "10" {
		t.Errorf("record = %+v, %v", record, ok)
	}
	if !containsString(*calls, "old.example state "+room.id.String()) {
		t.Errorf("state endpoint not used: %v", *calls)
	}
}

func TestRoomFromState(t *testing.T) {
	self := ref.MustParseUserID("@me:example.org")
	roomID := ref.MustParseRoomID("!r:example.org")
	member := func(userID, display, membership string) messaging.Event {
		return stateEvent(ref.EventTypeRoomMember, userID, map[string]any{"membership": membership, "displayname": display})
	}

	tests := []struct {
		name        string
		events      []messaging.Event
		wantName    string
		wantTopic   string
		wantVersion string
	}{
		{
			name: "explicit name",
			events: []messaging.Event{
				stateEvent(ref.EventTypeRoomName, "", map[string]any{"name": "General"}),
				stateEvent(ref.EventTypeCanonicalAlias, "", map[string]any{"alias": "#general:example.org"}),
				stateEvent(ref.EventTypeRoomTopic, "", map[string]any{"topic": "chatter"}),
				stateEvent(ref.EventTypeRoomCreate, "", map[string]any{"room_version": "9"}),
			},
			wantName:    "General",
			wantTopic:   "chatter",
			wantVersion: "9",
		},
		{
			name: "canonical alias",
			events: []messaging.Event{
				stateEvent(ref.EventTypeCanonicalAlias, "", map[string]any{"alias": "#ops:example.org"}),
			},
			wantName:    "#ops:example.org",
			wantVersion: "1",
		},
		{
			name: "members sorted, self excluded, leavers ignored",
			events: []messaging.Event{
				member("@me:example.org", "Me", "join"),
				member("@zed:example.org", "Zed", "join"),
				member("@amy:example.org", "Amy", "join"),
				member("@gone:example.org", "Gone", "leave"),
				member("@nodisplay:example.org", "", "join"),
			},
			wantName:    "@nodisplay:example.org, Amy, Zed",
			wantVersion: "1",
		},
		{
			name: "more than five members",
			events: []messaging.Event{
				member("@a:x", "A", "join"), member("@b:x", "B", "join"), member("@c:x", "C", "join"),
				member("@d:x", "D", "join"), member("@e:x", "E", "join"), member("@f:x", "F", "join"),
				member("@g:x", "G", "join"),
			},
			wantName:    "A, B, C, D, E and 2 others",
			wantVersion: "1",
		},
		{
			name: "member who left after joining",
			events: []messaging.Event{
				member("@amy:example.org", "Amy", "join"),
				member("@amy:example.org", "Amy", "leave"),
			},
			wantName:    "Empty Room",
			wantVersion: "1",
		},
		{
			name:        "nothing at all",
			wantName:    "Empty Room",
			wantVersion: "1",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			record := roomFromState(roomID, test.events, self)
			if record.Name != test.wantName {
				t.Errorf("Name = %q, want %q", record.Name, test.wantName)
			}
			if record.Topic != test.wantTopic {
				t.Errorf("Topic = %q, want %q", record.Topic, test.wantTopic)
			}
			if record.Version != test.wantVersion {
				t.Errorf("Version = %q, want %q", record.Version, test.wantVersion)
			}
		})
	}
}
