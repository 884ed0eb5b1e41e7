// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"testing"

	"github.com/bureau-foundation/matrix-migrate/lib/ref"
	"github.com/bureau-foundation/matrix-migrate/lib/secret"
	"github.com/bureau-foundation/matrix-migrate/messaging"
)

// fakeRoom is a room on a fakeServer. timeline is chronological.
type fakeRoom struct {
	id       ref.RoomID
	state    []messaging.Event
	timeline []messaging.Event
}

func (r *fakeRoom) name() string {
	for _, event := range r.state {
		if event.Type == ref.EventTypeRoomName {
			var content struct {
				Name string `json:"name"`
			}
			json.Unmarshal(event.Content, &content)
			return content.Name
		}
	}
	return ""
}

// sentMessages decodes every m.room.message in the room's timeline.
func (r *fakeRoom) sentMessages(t *testing.T) []messaging.MessageContent {
	t.Helper()
	var messages []messaging.MessageContent
	for _, event := range r.timeline {
		var content messaging.MessageContent
		if err := json.Unmarshal(event.Content, &content); err != nil {
			t.Fatalf("decoding sent content: %v", err)
		}
		messages = append(messages, content)
	}
	return messages
}

// fakeServer is an in-memory homeserver. Pagination tokens are
// "t<k>", the boundary just before timeline index k.
type fakeServer struct {
	name   string
	userID ref.UserID
	rooms  []*fakeRoom
	media  map[string]*messaging.Media

	// pageCap bounds every /messages page regardless of the requested
	// limit, so tests see several pages.
	pageCap int

	uploads []messaging.UploadRequest
	created []messaging.CreateRoomRequest
	hidden  []*fakeRoom
	calls   *[]string
	counter int

	failSync        error
	failJoinedRooms error
	failCreate      error
	failUpload      error
	failDownload    error
	failLogout      error
	// failPage, if set, may fail any /messages request.
	failPage func(direction, from string) error
	// failSendAfter fails every send after that many successes; zero
	// means never.
	failSendAfter int
	// unlistedCreated keeps created rooms out of joined_rooms.
	unlistedCreated bool
	// omitFromSync leaves rooms out of /sync, forcing the state fallback.
	omitFromSync bool
	sends        int
}

func newFakeServer(name string, calls *[]string) *fakeServer {
	if calls == nil {
		calls = new([]string)
	}
	return &fakeServer{
		name:   name,
		userID: ref.MustParseUserID("@migrator:" + name),
		media:  make(map[string]*messaging.Media),
		calls:  calls,
	}
}

func (s *fakeServer) url() string { return "https://" + s.name }

func (s *fakeServer) record(call string) {
	*s.calls = append(*s.calls, s.name+" "+call)
}

func (s *fakeServer) nextID() int {
	s.counter++
	return s.counter
}

// addRoom adds a joined room named name holding events in order.
func (s *fakeServer) addRoom(name string, events ...messaging.Event) *fakeRoom {
	room := &fakeRoom{
		id: ref.MustParseRoomID(fmt.Sprintf("!room%d:%s", s.nextID(), s.name)),
		state: []messaging.Event{
			stateEvent(ref.EventTypeRoomCreate, "", map[string]any{"room_version": "10"}),
			stateEvent(ref.EventTypeRoomMember, s.userID.String(), map[string]any{"membership": "join"}),
		},
		timeline: events,
	}
	if name != "" {
		room.state = append(room.state, stateEvent(ref.EventTypeRoomName, "", map[string]any{"name": name}))
	}
	s.rooms = append(s.rooms, room)
	return room
}

func (s *fakeServer) room(id ref.RoomID) *fakeRoom {
	for _, room := range s.rooms {
		if room.id == id {
			return room
		}
	}
	return nil
}

func (s *fakeServer) roomsNamed(name string) []*fakeRoom {
	var rooms []*fakeRoom
	for _, room := range s.rooms {
		if room.name() == name {
			rooms = append(rooms, room)
		}
	}
	return rooms
}

func (s *fakeServer) addMedia(uri string, data []byte, contentType, fileName string) {
	s.media[uri] = &messaging.Media{Data: data, ContentType: contentType, FileName: fileName}
}

func (s *fakeServer) session(deviceID string) *fakeSession {
	return &fakeSession{server: s, deviceID: deviceID}
}

// fakeSession implements messaging.Session against a fakeServer.
type fakeSession struct {
	server   *fakeServer
	deviceID string
	closed   bool
}

var _ messaging.Session = (*fakeSession)(nil)

func (f *fakeSession) UserID() ref.UserID    { return f.server.userID }
func (f *fakeSession) DeviceID() string      { return f.deviceID }
func (f *fakeSession) HomeserverURL() string { return f.server.url() }

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

func (f *fakeSession) Logout(ctx context.Context) error {
	f.server.record("logout")
	return f.server.failLogout
}

func (f *fakeSession) Sync(ctx context.Context, options messaging.SyncOptions) (*messaging.SyncResponse, error) {
	f.server.record("sync")
	if f.server.failSync != nil {
		return nil, f.server.failSync
	}

	var filter struct {
		Room struct {
			Rooms    []string `json:"rooms"`
			Timeline struct {
				Limit int `json:"limit"`
			} `json:"timeline"`
		} `json:"room"`
	}
	if options.Filter != "" {
		if err := json.Unmarshal([]byte(options.Filter), &filter); err != nil {
			return nil, fmt.Errorf("fake sync: bad filter: %w", err)
		}
	}
	limit := filter.Room.Timeline.Limit
	if limit <= 0 {
		limit = 10
	}

	response := &messaging.SyncResponse{
		NextBatch: "s1",
		Rooms:     messaging.RoomsSection{Join: make(map[ref.RoomID]messaging.JoinedRoom)},
	}
	if f.server.omitFromSync {
		return response, nil
	}
	for _, room := range f.server.rooms {
		if len(filter.Room.Rooms) > 0 && !containsString(filter.Room.Rooms, room.id.String()) {
			continue
		}
		start := max(len(room.timeline)-limit, 0)
		response.Rooms.Join[room.id] = messaging.JoinedRoom{
			Timeline: messaging.TimelineSection{
				Events:    append([]messaging.Event(nil), room.timeline[start:]...),
				PrevBatch: token(start),
				Limited:   start > 0,
			},
			State: messaging.StateSection{Events: append([]messaging.Event(nil), room.state...)},
		}
	}
	return response, nil
}

func (f *fakeSession) JoinedRooms(ctx context.Context) ([]ref.RoomID, error) {
	f.server.record("joined_rooms")
	if f.server.failJoinedRooms != nil {
		return nil, f.server.failJoinedRooms
	}
	var ids []ref.RoomID
	for _, room := range f.server.rooms {
		ids = append(ids, room.id)
	}
	return ids, nil
}

func (f *fakeSession) GetRoomState(ctx context.Context, roomID ref.RoomID) ([]messaging.Event, error) {
	f.server.record("state " + roomID.String())
	room := f.server.room(roomID)
	if room == nil {
		return nil, &messaging.MatrixError{Code: messaging.ErrCodeNotFound, StatusCode: 404}
	}
	return append([]messaging.Event(nil), room.state...), nil
}

func (f *fakeSession) CreateRoom(ctx context.Context, request messaging.CreateRoomRequest) (*messaging.CreateRoomResponse, error) {
	f.server.record("createRoom " + request.Name)
	if f.server.failCreate != nil {
		return nil, f.server.failCreate
	}
	f.server.created = append(f.server.created, request)

	room := &fakeRoom{
		id: ref.MustParseRoomID(fmt.Sprintf("!created%d:%s", f.server.nextID(), f.server.name)),
		state: []messaging.Event{
			stateEvent(ref.EventTypeRoomCreate, "", map[string]any{"room_version": request.RoomVersion}),
			stateEvent(ref.EventTypeRoomName, "", map[string]any{"name": request.Name}),
			stateEvent(ref.EventTypeRoomMember, f.server.userID.String(), map[string]any{"membership": "join"}),
		},
	}
	if request.Topic != "" {
		room.state = append(room.state, stateEvent(ref.EventTypeRoomTopic, "", map[string]any{"topic": request.Topic}))
	}
	if f.server.unlistedCreated {
		// Kept reachable for sends but hidden from listings.
		f.server.hidden = append(f.server.hidden, room)
	} else {
		f.server.rooms = append(f.server.rooms, room)
	}
	return &messaging.CreateRoomResponse{RoomID: room.id}, nil
}

func (f *fakeSession) RoomMessages(ctx context.Context, roomID ref.RoomID, options messaging.RoomMessagesOptions) (*messaging.RoomMessagesResponse, error) {
	f.server.record("messages " + options.Direction + " " + options.From)
	if f.server.failPage != nil {
		if err := f.server.failPage(options.Direction, options.From); err != nil {
			return nil, err
		}
	}
	room := f.server.room(roomID)
	if room == nil {
		return nil, &messaging.MatrixError{Code: messaging.ErrCodeForbidden, StatusCode: 403}
	}

	position := len(room.timeline)
	if options.From != "" {
		parsed, err := strconv.Atoi(strings.TrimPrefix(options.From, "t"))
		if err != nil {
			return nil, fmt.Errorf("fake messages: bad token %q", options.From)
		}
		position = parsed
	}
	limit := options.Limit
	if f.server.pageCap > 0 && f.server.pageCap < limit {
		limit = f.server.pageCap
	}

	response := &messaging.RoomMessagesResponse{Start: token(position)}
	switch options.Direction {
	case messaging.DirectionBackward:
		low := max(position-limit, 0)
		for i := position - 1; i >= low; i-- {
			response.Chunk = append(response.Chunk, room.timeline[i])
		}
		if len(response.Chunk) > 0 {
			response.End = token(low)
		}
	case messaging.DirectionForward:
		high := min(position+limit, len(room.timeline))
		response.Chunk = append(response.Chunk, room.timeline[position:high]...)
		response.End = token(high)
	}
	return response, nil
}

func (f *fakeSession) DownloadMedia(ctx context.Context, uri ref.ContentURI) (*messaging.Media, error) {
	f.server.record("download " + uri.String())
	if f.server.failDownload != nil {
		return nil, f.server.failDownload
	}
	media, ok := f.server.media[uri.String()]
	if !ok {
		return nil, &messaging.MatrixError{Code: messaging.ErrCodeNotFound, StatusCode: 404}
	}
	copied := *media
	copied.Data = append([]byte(nil), media.Data...)
	return &copied, nil
}

func (f *fakeSession) UploadMedia(ctx context.Context, request messaging.UploadRequest) (*messaging.UploadResponse, error) {
	f.server.record("upload " + request.FileName)
	if f.server.failUpload != nil {
		return nil, f.server.failUpload
	}
	f.server.uploads = append(f.server.uploads, request)
	uri := fmt.Sprintf("mxc://%s/upload%d", f.server.name, f.server.nextID())
	f.server.addMedia(uri, append([]byte(nil), request.Data...), request.ContentType, request.FileName)
	return &messaging.UploadResponse{ContentURI: ref.MustParseContentURI(uri)}, nil
}

func (f *fakeSession) SendMessage(ctx context.Context, roomID ref.RoomID, content messaging.MessageContent) (ref.EventID, error) {
	f.server.record("send " + roomID.String())
	if f.server.failSendAfter > 0 && f.server.sends >= f.server.failSendAfter {
		return ref.EventID{}, &messaging.MatrixError{Code: messaging.ErrCodeForbidden, StatusCode: 403}
	}
	room := f.server.room(roomID)
	if room == nil {
		for _, hidden := range f.server.hidden {
			if hidden.id == roomID {
				room = hidden
			}
		}
	}
	if room == nil {
		return ref.EventID{}, &messaging.MatrixError{Code: messaging.ErrCodeForbidden, StatusCode: 403}
	}
	f.server.sends++

	data, err := json.Marshal(content)
	if err != nil {
		return ref.EventID{}, err
	}
	eventID := ref.MustParseEventID(fmt.Sprintf("$sent%d", f.server.nextID()))
	room.timeline = append(room.timeline, messaging.Event{
		EventID: eventID,
		Type:    ref.EventTypeMessage,
		Sender:  f.server.userID,
		Content: data,
	})
	return eventID, nil
}

// fakeAuthenticator logs into fakeServers by URL.
type fakeAuthenticator struct {
	servers map[string]*fakeServer
	// logins records "password <device>" or "token" per login.
	logins []string
	// rejectPassword fails every password login.
	rejectPassword bool
}

func newFakeAuthenticator(servers ...*fakeServer) *fakeAuthenticator {
	authenticator := &fakeAuthenticator{servers: make(map[string]*fakeServer)}
	for _, server := range servers {
		authenticator.servers[server.url()] = server
	}
	return authenticator
}

func (a *fakeAuthenticator) LoginPassword(ctx context.Context, server, user string, password *secret.Buffer, deviceID string) (messaging.Session, error) {
	a.logins = append(a.logins, "password "+deviceID)
	if a.rejectPassword {
		return nil, &messaging.MatrixError{Code: messaging.ErrCodeForbidden, Message: "Invalid password", StatusCode: 403}
	}
	fake, ok := a.servers[server]
	if !ok {
		return nil, fmt.Errorf("no fake server at %s", server)
	}
	return fake.session(deviceID), nil
}

func (a *fakeAuthenticator) LoginToken(ctx context.Context, server string, token *secret.Buffer) (messaging.Session, error) {
	a.logins = append(a.logins, "token")
	fake, ok := a.servers[server]
	if !ok {
		return nil, fmt.Errorf("no fake server at %s", server)
	}
	return fake.session("TOKENDEVICE"), nil
}

// Event builders.

func token(position int) string { return "t" + strconv.Itoa(position) }

var eventCounter int

func nextEventID() ref.EventID {
	eventCounter++
	return ref.MustParseEventID(fmt.Sprintf("$ev%d", eventCounter))
}

func rawJSON(value any) json.RawMessage {
	data, err := json.Marshal(value)
	if err != nil {
		panic(err)
	}
	return data
}

func messageEvent(content map[string]any) messaging.Event {
	return messaging.Event{
		EventID: nextEventID(),
		Type:    ref.EventTypeMessage,
		Sender:  ref.MustParseUserID("@alice:old.example"),
		Content: rawJSON(content),
	}
}

func textEvent(body string) messaging.Event {
	return messageEvent(map[string]any{"msgtype": "m.text", "body": body})
}

func mediaEvent(msgType, uri, fileName, mimeType string, size int) messaging.Event {
	return messageEvent(map[string]any{
		"msgtype": msgType,
		"body":    fileName,
		"url":     uri,
		"info":    map[string]any{"mimetype": mimeType, "size": size},
	})
}

func redactedEvent() messaging.Event {
	return messaging.Event{
		EventID:  nextEventID(),
		Type:     ref.EventTypeMessage,
		Sender:   ref.MustParseUserID("@alice:old.example"),
		Content:  json.RawMessage(`{}`),
		Unsigned: &messaging.EventUnsigned{RedactedBecause: json.RawMessage(`{"type":"m.room.redaction"}`)},
	}
}

func reactionEvent() messaging.Event {
	return messaging.Event{
		EventID: nextEventID(),
		Type:    ref.EventType("m.reaction"),
		Sender:  ref.MustParseUserID("@alice:old.example"),
		Content: rawJSON(map[string]any{"m.relates_to": map[string]any{"rel_type": "m.annotation", "key": "+1"}}),
	}
}

func stateEvent(eventType ref.EventType, stateKey string, content map[string]any) messaging.Event {
	return messaging.Event{
		EventID:  nextEventID(),
		Type:     eventType,
		Sender:   ref.MustParseUserID("@alice:old.example"),
		StateKey: &stateKey,
		Content:  rawJSON(content),
	}
}

func containsString(values []string, want string) bool {
	for _, value := range values {
		if value == want {
			return true
		}
	}
	return false
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testBuffer(t *testing.T, value string) *secret.Buffer {
	t.Helper()
	buffer, err := secret.FromString(value)
	if err != nil {
		t.Fatalf("creating test buffer: %v", err)
	}
	t.Cleanup(func() { buffer.Close() })
	return buffer
}

// loginHandle logs into server with a password and returns the handle.
func loginHandle(t *testing.T, server *fakeServer, role string, metrics *Metrics) *Handle {
	t.Helper()
	manager := NewSessionManager(newFakeAuthenticator(server), NewDeviceIDsWithRun("test"), testLogger(), metrics)
	handle, err := manager.Login(context.Background(), Session{
		Role:     role,
		Server:   server.url(),
		User:     "migrator",
		Password: testBuffer(t, "secret"),
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	return handle
}
