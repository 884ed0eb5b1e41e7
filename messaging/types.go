// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"encoding/json"

	"github.com/bureau-foundation/matrix-migrate/lib/ref"
	"github.com/bureau-foundation/matrix-migrate/lib/secret"
)

// LoginRequest holds parameters for password login. Password is stored
// in an mmap-backed buffer (locked against swap, excluded from core
// dumps). The caller retains ownership of the buffer: Login reads from it
// but does not close it.
type LoginRequest struct {
	User              string
	Password          *secret.Buffer
	DeviceID          string
	DeviceDisplayName string
}

// passwordLoginBody is the wire form of an m.login.password request.
type passwordLoginBody struct {
	Type                     string         `json:"type"`
	Identifier               userIdentifier `json:"identifier"`
	Password                 string         `json:"password"`
	DeviceID                 string         `json:"device_id,omitempty"`
	InitialDeviceDisplayName string         `json:"initial_device_display_name,omitempty"`
}

type userIdentifier struct {
	Type string `json:"type"`
	User string `json:"user"`
}

// AuthResponse is returned by Login.
type AuthResponse struct {
	UserID      ref.UserID `json:"user_id"`
	AccessToken string     `json:"access_token"`
	DeviceID    string     `json:"device_id"`
}

// WhoAmIResponse is returned by WhoAmI.
type WhoAmIResponse struct {
	UserID   ref.UserID `json:"user_id"`
	DeviceID string     `json:"device_id,omitempty"`
}

// CreateRoomRequest holds parameters for creating a Matrix room.
type CreateRoomRequest struct {
	Name        string `json:"name,omitempty"`
	Topic       string `json:"topic,omitempty"`
	RoomVersion string `json:"room_version,omitempty"` // e.g. "10"; empty uses server default
	Visibility  string `json:"visibility,omitempty"`   // "public" or "private"
	Preset      string `json:"preset,omitempty"`       // "private_chat", "public_chat", "trusted_private_chat"
}

// CreateRoomResponse is returned by CreateRoom.
type CreateRoomResponse struct {
	RoomID ref.RoomID `json:"room_id"`
}

// Message types carried in m.room.message content.
const (
	MsgTypeText   = "m.text"
	MsgTypeNotice = "m.notice"
	MsgTypeEmote  = "m.emote"
	MsgTypeImage  = "m.image"
	MsgTypeFile   = "m.file"
	MsgTypeAudio  = "m.audio"
	MsgTypeVideo  = "m.video"
)

// MessageContent is the content body of an m.room.message event. It
// covers the text and media shapes; fields a given msgtype does not use
// are left zero and omitted on the wire.
type MessageContent struct {
	MsgType       string `json:"msgtype"`
	Body          string `json:"body"`
	Format        string `json:"format,omitempty"`
	FormattedBody string `json:"formatted_body,omitempty"`

	// FileName is the original file name of a media upload. When absent
	// Body doubles as the file name.
	FileName string `json:"filename,omitempty"`

	// URL is set for unencrypted media.
	URL ref.ContentURI `json:"url,omitzero"`

	// File is set instead of URL for end-to-end encrypted media.
	File *EncryptedFile `json:"file,omitempty"`

	Info *MediaInfo `json:"info,omitempty"`
}

// MediaInfo describes an attached media blob. Size is always emitted,
// including zero for a blob that could not be fetched.
type MediaInfo struct {
	MimeType string `json:"mimetype,omitempty"`
	Size     int64  `json:"size"`
	Width    int    `json:"w,omitempty"`
	Height   int    `json:"h,omitempty"`
	Duration int64  `json:"duration,omitempty"`
}

// EncryptedFile is the descriptor of an encrypted attachment. The key
// material is kept as raw JSON: it is relayed untouched, only URL is
// rewritten when the ciphertext moves to another server.
type EncryptedFile struct {
	URL    ref.ContentURI    `json:"url"`
	Key    json.RawMessage   `json:"key,omitempty"`
	IV     string            `json:"iv,omitempty"`
	Hashes map[string]string `json:"hashes,omitempty"`
	V      string            `json:"v,omitempty"`
}

// Event represents a Matrix event from the server. Content is kept raw
// so callers decode only the event types they care about.
type Event struct {
	EventID        ref.EventID     `json:"event_id"`
	Type           ref.EventType   `json:"type"`
	Sender         ref.UserID      `json:"sender"`
	OriginServerTS int64           `json:"origin_server_ts"`
	Content        json.RawMessage `json:"content"`
	RoomID         ref.RoomID      `json:"room_id,omitzero"`
	StateKey       *string         `json:"state_key,omitempty"`
	Unsigned       *EventUnsigned  `json:"unsigned,omitempty"`
}

// IsRedacted reports whether the server has stripped this event.
func (e *Event) IsRedacted() bool {
	return e.Unsigned != nil && len(e.Unsigned.RedactedBecause) > 0 &&
		string(e.Unsigned.RedactedBecause) != "null"
}

// EventUnsigned holds optional unsigned data attached to events.
type EventUnsigned struct {
	Age             int64           `json:"age,omitempty"`
	TransactionID   string          `json:"transaction_id,omitempty"`
	RedactedBecause json.RawMessage `json:"redacted_because,omitempty"`
}

// Pagination directions for RoomMessages.
const (
	DirectionBackward = "b"
	DirectionForward  = "f"
)

// RoomMessagesOptions controls pagination for room message fetching.
type RoomMessagesOptions struct {
	From      string // pagination token; empty means "from now"
	Direction string // DirectionBackward or DirectionForward
	Limit     int    // max events to return; 0 uses server default
}

// RoomMessagesResponse is returned by RoomMessages. End is empty when
// the server has no further events in the requested direction.
type RoomMessagesResponse struct {
	Start string  `json:"start"`
	End   string  `json:"end,omitempty"`
	Chunk []Event `json:"chunk"`
}

// SyncOptions controls the behavior of the /sync endpoint.
type SyncOptions struct {
	Since      string // next_batch token from previous sync; empty for initial sync
	Timeout    int    // long-poll timeout in milliseconds; 0 for immediate return
	SetTimeout bool   // if true, send the timeout parameter (needed to distinguish "not set" from "0")
	Filter     string // filter ID or inline JSON filter
	FullState  bool   // return the complete room state, not just changes since Since
}

// SyncResponse is the top-level response from /sync.
type SyncResponse struct {
	NextBatch string       `json:"next_batch"`
	Rooms     RoomsSection `json:"rooms"`
}

// RoomsSection contains per-room sync data grouped by membership state.
// Map keys are room IDs; encoding/json uses ref.RoomID's TextUnmarshaler
// for automatic validation at deserialization.
type RoomsSection struct {
	Join   map[ref.RoomID]JoinedRoom  `json:"join,omitempty"`
	Invite map[ref.RoomID]InvitedRoom `json:"invite,omitempty"`
	Leave  map[ref.RoomID]LeftRoom    `json:"leave,omitempty"`
}

// JoinedRoom contains sync data for a room the user has joined.
type JoinedRoom struct {
	Timeline TimelineSection `json:"timeline"`
	State    StateSection    `json:"state"`
}

// InvitedRoom contains sync data for a room the user was invited to.
type InvitedRoom struct {
	InviteState StateSection `json:"invite_state"`
}

// LeftRoom contains sync data for a room the user has left.
type LeftRoom struct {
	Timeline TimelineSection `json:"timeline"`
	State    StateSection    `json:"state"`
}

// TimelineSection contains timeline events from a sync response.
type TimelineSection struct {
	Events    []Event `json:"events"`
	PrevBatch string  `json:"prev_batch"`
	Limited   bool    `json:"limited"`
}

// StateSection contains state events from a sync response.
type StateSection struct {
	Events []Event `json:"events"`
}

// SendEventResponse is returned by SendMessage.
type SendEventResponse struct {
	EventID ref.EventID `json:"event_id"`
}

// JoinedRoomsResponse is returned by JoinedRooms.
type JoinedRoomsResponse struct {
	JoinedRooms []ref.RoomID `json:"joined_rooms"`
}

// UploadRequest describes a media blob to upload.
type UploadRequest struct {
	Data        []byte
	ContentType string // empty sends application/octet-stream
	FileName    string // optional; passed as the filename query parameter
}

// UploadResponse is returned by UploadMedia.
type UploadResponse struct {
	ContentURI ref.ContentURI `json:"content_uri"`
}

// Media is a downloaded media blob with the metadata the server
// returned for it.
type Media struct {
	Data []byte
	// ContentType is the Content-Type header, empty if the server sent
	// none.
	ContentType string
	// FileName comes from the Content-Disposition header, empty if the
	// server sent none.
	FileName string
}
