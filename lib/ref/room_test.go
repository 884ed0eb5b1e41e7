// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseRoomID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{name: "valid simple", input: "!abc123:example.org"},
		{name: "valid with port in server", input: "!opaque:localhost:8008"},
		{name: "empty string", input: "", wantErr: "empty room ID"},
		{name: "missing bang prefix", input: "abc123:example.org", wantErr: "must start with '!'"},
		{name: "alias sigil", input: "#room:example.org", wantErr: "must start with '!'"},
		{name: "version 12 hash only", input: "!AbCdEf0123456789hashonly"},
		{name: "bare sigil", input: "!", wantErr: "empty local part"},
		{name: "empty local part", input: "!:example.org", wantErr: "empty local part"},
		{name: "empty server name", input: "!abc123:", wantErr: "empty server name"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			roomID, err := ParseRoomID(test.input)
			if test.wantErr != "" {
				if err == nil {
					t.Fatalf("ParseRoomID(%q) succeeded, want error containing %q", test.input, test.wantErr)
				}
				if !strings.Contains(err.Error(), test.wantErr) {
					t.Fatalf("ParseRoomID(%q) error = %q, want error containing %q", test.input, err, test.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRoomID(%q) unexpected error: %v", test.input, err)
			}
			if roomID.String() != test.input {
				t.Errorf("String() = %q, want %q", roomID.String(), test.input)
			}
		})
	}
}

func TestRoomIDAsMapKey(t *testing.T) {
	var decoded map[RoomID]int
	if err := json.Unmarshal([]byte(`{"!a:example.org": 1, "!b:example.org": 2}`), &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded[MustParseRoomID("!b:example.org")] != 2 {
		t.Errorf("lookup by parsed key failed: %v", decoded)
	}

	if err := json.Unmarshal([]byte(`{"not-a-room": 1}`), &decoded); err == nil {
		t.Error("expected error decoding invalid room ID key")
	}
}

func TestRoomIDZeroValue(t *testing.T) {
	var roomID RoomID
	if !roomID.IsZero() {
		t.Error("zero RoomID should report IsZero")
	}
	if err := roomID.UnmarshalText(nil); err != nil {
		t.Fatalf("UnmarshalText(nil): %v", err)
	}
	if !roomID.IsZero() {
		t.Error("empty input should produce the zero value")
	}
}
