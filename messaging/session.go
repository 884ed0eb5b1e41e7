// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"

	"github.com/bureau-foundation/matrix-migrate/lib/ref"
)

// Session is the set of Matrix operations a migration performs against
// one homeserver. *DirectSession is the production implementation;
// tests substitute in-memory fakes.
type Session interface {
	// UserID returns the fully-qualified Matrix user ID
	// (e.g., "@alice:example.org").
	UserID() ref.UserID

	// DeviceID returns the device the session is logged in as.
	DeviceID() string

	// HomeserverURL returns the base URL of the server.
	HomeserverURL() string

	// Close releases any resources held by the session. Idempotent.
	Close() error

	// Logout invalidates the access token on the server.
	Logout(ctx context.Context) error

	// Sync performs a sync with the homeserver.
	Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error)

	// JoinedRooms returns the list of room IDs the user has joined.
	JoinedRooms(ctx context.Context) ([]ref.RoomID, error)

	// GetRoomState fetches all current state events from a room.
	GetRoomState(ctx context.Context, roomID ref.RoomID) ([]Event, error)

	// CreateRoom creates a new Matrix room.
	CreateRoom(ctx context.Context, request CreateRoomRequest) (*CreateRoomResponse, error)

	// RoomMessages fetches one page of messages from a room.
	RoomMessages(ctx context.Context, roomID ref.RoomID, options RoomMessagesOptions) (*RoomMessagesResponse, error)

	// DownloadMedia fetches a media blob by content URI.
	DownloadMedia(ctx context.Context, uri ref.ContentURI) (*Media, error)

	// UploadMedia uploads a media blob and returns its content URI.
	UploadMedia(ctx context.Context, request UploadRequest) (*UploadResponse, error)

	// SendMessage sends an m.room.message event. Returns the event ID.
	SendMessage(ctx context.Context, roomID ref.RoomID, content MessageContent) (ref.EventID, error)
}

// Compile-time check: *DirectSession implements Session.
var _ Session = (*DirectSession)(nil)
