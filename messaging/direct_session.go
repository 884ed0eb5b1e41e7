// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/matrix-migrate/lib/netutil"
	"github.com/bureau-foundation/matrix-migrate/lib/ref"
	"github.com/bureau-foundation/matrix-migrate/lib/secret"
)

// Download path prefixes. The authenticated client endpoint (Matrix
// v1.11) is tried first; servers that predate it get the legacy media
// endpoint.
const (
	authenticatedMediaPrefix = "/_matrix/client/v1/media/download/"
	legacyMediaPrefix        = "/_matrix/media/v3/download/"
)

// DirectSession is an authenticated Matrix session.
// It wraps a Client with an access token for making authenticated API calls.
//
// The access token is stored in a secret.Buffer (mmap-backed, locked against
// swap, excluded from core dumps). The caller must call Close when the DirectSession
// is no longer needed.
type DirectSession struct {
	client      *Client
	accessToken *secret.Buffer
	userID      ref.UserID
	deviceID    string

	// transactionCounter generates unique transaction IDs for idempotent sends.
	transactionCounter atomic.Int64

	// legacyMedia is set once the server has rejected the authenticated
	// download endpoint, so later downloads skip straight to the legacy one.
	legacyMedia atomic.Bool
}

// UserID returns the fully-qualified Matrix user ID (e.g., "@alice:example.org").
func (s *DirectSession) UserID() ref.UserID {
	return s.userID
}

// DeviceID returns the device ID for this session.
func (s *DirectSession) DeviceID() string {
	return s.deviceID
}

// HomeserverURL returns the base URL of the server this session talks to.
func (s *DirectSession) HomeserverURL() string {
	return s.client.baseURL
}

// Close releases the access token memory (zeros, unlocks, unmaps).
// Idempotent; safe to call multiple times. Close does not invalidate
// the token on the server; use Logout for that.
func (s *DirectSession) Close() error {
	if s.accessToken != nil {
		return s.accessToken.Close()
	}
	return nil
}

// WhoAmI validates the access token and returns the identity it belongs to.
func (s *DirectSession) WhoAmI(ctx context.Context) (*WhoAmIResponse, error) {
	body, err := s.client.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/account/whoami", s.accessToken, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: whoami failed: %w", err)
	}

	var response WhoAmIResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse whoami response: %w", err)
	}
	return &response, nil
}

// Logout invalidates this session's access token on the server. The
// local token memory is still held until Close.
func (s *DirectSession) Logout(ctx context.Context) error {
	_, err := s.client.doRequest(ctx, http.MethodPost, "/_matrix/client/v3/logout", s.accessToken, map[string]any{})
	if err != nil {
		return fmt.Errorf("messaging: logout failed: %w", err)
	}
	s.client.logger.Debug("logged out of matrix",
		"homeserver", s.client.baseURL,
		"user_id", s.userID,
		"device_id", s.deviceID,
	)
	return nil
}

// CreateRoom creates a new Matrix room.
func (s *DirectSession) CreateRoom(ctx context.Context, request CreateRoomRequest) (*CreateRoomResponse, error) {
	body, err := s.client.doRequest(ctx, http.MethodPost, "/_matrix/client/v3/createRoom", s.accessToken, request)
	if err != nil {
		return nil, fmt.Errorf("messaging: create room failed: %w", err)
	}

	var response CreateRoomResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse createRoom response: %w", err)
	}

	s.client.logger.Info("created matrix room",
		"room_id", response.RoomID,
		"name", request.Name,
		"room_version", request.RoomVersion,
	)
	return &response, nil
}

// SendMessage sends an m.room.message event to a room.
// Uses Matrix's idempotent PUT with a transaction ID.
// Returns the event ID of the sent message.
func (s *DirectSession) SendMessage(ctx context.Context, roomID ref.RoomID, content MessageContent) (ref.EventID, error) {
	transactionID := s.nextTransactionID()
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/send/%s/%s",
		url.PathEscape(roomID.String()),
		url.PathEscape(ref.EventTypeMessage.String()),
		url.PathEscape(transactionID),
	)

	body, err := s.client.doRequest(ctx, http.MethodPut, path, s.accessToken, content)
	if err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: send message to %q failed: %w", roomID, err)
	}

	var response SendEventResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: failed to parse send response: %w", err)
	}
	return response.EventID, nil
}

// GetRoomState fetches all current state events from a room.
// Returns the full event objects including type, state_key, sender, etc.
func (s *DirectSession) GetRoomState(ctx context.Context, roomID ref.RoomID) ([]Event, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/state", url.PathEscape(roomID.String()))

	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: get room state for %q failed: %w", roomID, err)
	}

	var events []Event
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse room state response: %w", err)
	}
	return events, nil
}

// RoomMessages fetches one page of messages from a room.
func (s *DirectSession) RoomMessages(ctx context.Context, roomID ref.RoomID, options RoomMessagesOptions) (*RoomMessagesResponse, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/messages", url.PathEscape(roomID.String()))

	query := url.Values{}
	if options.From != "" {
		query.Set("from", options.From)
	}
	direction := options.Direction
	if direction == "" {
		direction = DirectionBackward
	}
	query.Set("dir", direction)
	if options.Limit > 0 {
		query.Set("limit", strconv.Itoa(options.Limit))
	}

	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil, query)
	if err != nil {
		return nil, fmt.Errorf("messaging: room messages for %q failed: %w", roomID, err)
	}

	var response RoomMessagesResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse messages response: %w", err)
	}
	return &response, nil
}

// Sync performs a sync with the homeserver.
// For initial sync, leave options.Since empty.
// For long-polling, set options.Timeout to the desired wait in milliseconds.
func (s *DirectSession) Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error) {
	query := url.Values{}
	if options.Since != "" {
		query.Set("since", options.Since)
	}
	if options.SetTimeout {
		query.Set("timeout", strconv.Itoa(options.Timeout))
	}
	if options.Filter != "" {
		query.Set("filter", options.Filter)
	}
	if options.FullState {
		query.Set("full_state", "true")
	}

	path := "/_matrix/client/v3/sync"
	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil, query)
	if err != nil {
		return nil, fmt.Errorf("messaging: sync failed: %w", err)
	}

	var response SyncResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse sync response: %w", err)
	}
	return &response, nil
}

// JoinedRooms returns the list of room IDs the user has joined, in the
// order the server lists them.
func (s *DirectSession) JoinedRooms(ctx context.Context) ([]ref.RoomID, error) {
	body, err := s.client.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/joined_rooms", s.accessToken, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: joined rooms failed: %w", err)
	}

	var response JoinedRoomsResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse joined rooms response: %w", err)
	}
	return response.JoinedRooms, nil
}

// UploadMedia uploads a blob to the homeserver's media repository and
// returns its content URI.
func (s *DirectSession) UploadMedia(ctx context.Context, request UploadRequest) (*UploadResponse, error) {
	contentType := request.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	var query url.Values
	if request.FileName != "" {
		query = url.Values{"filename": {request.FileName}}
	}

	responseBody, err := s.client.doRequestRaw(ctx, http.MethodPost,
		"/_matrix/media/v3/upload", query, s.accessToken, contentType, request.Data)
	if err != nil {
		return nil, fmt.Errorf("messaging: media upload failed: %w", err)
	}

	var response UploadResponse
	if err := json.Unmarshal(responseBody, &response); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse upload response: %w", err)
	}
	if response.ContentURI.IsZero() {
		return nil, fmt.Errorf("messaging: upload response carried no content_uri")
	}
	return &response, nil
}

// DownloadMedia fetches the blob behind uri. The authenticated media
// endpoint is tried first; if the server does not recognise it the
// legacy endpoint is used, and remembered for the rest of the session.
func (s *DirectSession) DownloadMedia(ctx context.Context, uri ref.ContentURI) (*Media, error) {
	if uri.IsZero() {
		return nil, fmt.Errorf("messaging: download requires a content URI")
	}

	if !s.legacyMedia.Load() {
		media, err := s.download(ctx, mediaPath(authenticatedMediaPrefix, uri))
		if err == nil {
			return media, nil
		}
		if !authenticatedMediaUnsupported(err) {
			return nil, fmt.Errorf("messaging: download %s failed: %w", uri, err)
		}
		s.client.logger.Debug("authenticated media endpoint unsupported, using legacy download",
			"homeserver", s.client.baseURL,
			"error", err,
		)
		s.legacyMedia.Store(true)
	}

	media, err := s.download(ctx, mediaPath(legacyMediaPrefix, uri))
	if err != nil {
		return nil, fmt.Errorf("messaging: download %s failed: %w", uri, err)
	}
	return media, nil
}

func (s *DirectSession) download(ctx context.Context, path string) (*Media, error) {
	response, err := s.client.send(ctx, http.MethodGet, path, nil, s.accessToken, "", nil)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, decodeError(response.StatusCode, []byte(netutil.ErrorBody(response.Body)))
	}

	data, err := netutil.ReadMedia(response.Body, s.client.maxMediaSize)
	if err != nil {
		return nil, err
	}

	media := &Media{
		Data:        data,
		ContentType: response.Header.Get("Content-Type"),
	}
	if disposition := response.Header.Get("Content-Disposition"); disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			media.FileName = params["filename"]
		}
	}
	return media, nil
}

// authenticatedMediaUnsupported reports whether err means the server
// lacks the authenticated download endpoint rather than the media.
// Proxies in front of old servers answer unknown paths with a bare 404
// (decoded as M_UNKNOWN); a genuine missing blob is M_NOT_FOUND.
func authenticatedMediaUnsupported(err error) bool {
	if IsMatrixError(err, ErrCodeUnrecognized) {
		return true
	}
	switch statusOf(err) {
	case http.StatusMethodNotAllowed:
		return true
	case http.StatusNotFound:
		return IsMatrixError(err, ErrCodeUnknown)
	}
	return false
}

// nextTransactionID generates a unique transaction ID for idempotent event sending.
// Format: "migrate-<timestamp_ms>-<counter>" to ensure uniqueness across restarts.
func (s *DirectSession) nextTransactionID() string {
	counter := s.transactionCounter.Add(1)
	return fmt.Sprintf("migrate-%d-%d", time.Now().UnixMilli(), counter)
}
