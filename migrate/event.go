// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package migrate

import (
	"bytes"
	"encoding/json"

	"github.com/bureau-foundation/matrix-migrate/lib/ref"
	"github.com/bureau-foundation/matrix-migrate/messaging"
)

// Kind tags the payload variant of an EventRecord.
type Kind int

const (
	// KindOther covers every event the migrator does not replay. Such
	// events are dropped during classification and never appear in a
	// timeline.
	KindOther Kind = iota
	KindText
	KindMedia
	KindEncryptedMedia
	KindRedacted
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindMedia:
		return "media"
	case KindEncryptedMedia:
		return "encrypted-media"
	case KindRedacted:
		return "redacted"
	default:
		return "other"
	}
}

// Payload is the sealed set of event bodies a timeline can hold:
// TextPayload, MediaPayload, EncryptedMediaPayload and RedactedPayload.
type Payload interface {
	Kind() Kind
	payload()
}

// TextPayload is an m.text, m.notice or m.emote message.
type TextPayload struct {
	MsgType       string
	Body          string
	Format        string
	FormattedBody string
}

// MediaReference points at an attachment on the source server along
// with what the event claims about it.
type MediaReference struct {
	URI      ref.ContentURI
	MimeType string
	FileName string
	Size     int64

	// Encrypted marks ciphertext: it is uploaded as an opaque octet
	// stream and never sniffed.
	Encrypted bool
}

// MediaPayload is an unencrypted m.image, m.file, m.audio or m.video
// message.
type MediaPayload struct {
	MsgType string
	Media   MediaReference
	// Info is the source's info block, kept for the dimensions and
	// duration that relaying does not recompute.
	Info messaging.MediaInfo
}

// EncryptedMediaPayload is a media message whose attachment is an
// encrypted file. The descriptor is relayed verbatim except for its URL.
type EncryptedMediaPayload struct {
	MsgType string
	Media   MediaReference
	File    messaging.EncryptedFile
	Info    messaging.MediaInfo
}

// RedactedPayload is an event whose content the server has removed.
type RedactedPayload struct{}

func (TextPayload) Kind() Kind           { return KindText }
func (MediaPayload) Kind() Kind          { return KindMedia }
func (EncryptedMediaPayload) Kind() Kind { return KindEncryptedMedia }
func (RedactedPayload) Kind() Kind       { return KindRedacted }

func (TextPayload) payload()           {}
func (MediaPayload) payload()          {}
func (EncryptedMediaPayload) payload() {}
func (RedactedPayload) payload()       {}

// EventRecord is one retained event of a merged timeline.
type EventRecord struct {
	ID        ref.EventID
	Sender    ref.UserID
	Timestamp int64
	// Position is the index in the merged timeline, assigned after the
	// backward and forward runs are joined.
	Position int
	Payload  Payload
}

// Kind returns the payload's kind.
func (e EventRecord) Kind() Kind {
	return e.Payload.Kind()
}

// Classify turns a raw event into an EventRecord. It reports false for
// events of kind other, which callers drop.
func Classify(event messaging.Event) (EventRecord, bool) {
	record := EventRecord{
		ID:        event.EventID,
		Sender:    event.Sender,
		Timestamp: event.OriginServerTS,
	}

	if event.IsRedacted() {
		record.Payload = RedactedPayload{}
		return record, true
	}
	if event.Type != ref.EventTypeMessage {
		return EventRecord{}, false
	}
	if emptyContent(event.Content) {
		record.Payload = RedactedPayload{}
		return record, true
	}

	var content messaging.MessageContent
	if err := json.Unmarshal(event.Content, &content); err != nil {
		return EventRecord{}, false
	}

	switch content.MsgType {
	case messaging.MsgTypeText, messaging.MsgTypeNotice, messaging.MsgTypeEmote:
		record.Payload = TextPayload{
			MsgType:       content.MsgType,
			Body:          content.Body,
			Format:        content.Format,
			FormattedBody: content.FormattedBody,
		}
		return record, true

	case messaging.MsgTypeImage, messaging.MsgTypeFile, messaging.MsgTypeAudio, messaging.MsgTypeVideo:
		var info messaging.MediaInfo
		if content.Info != nil {
			info = *content.Info
		}
		reference := MediaReference{
			MimeType: info.MimeType,
			FileName: content.FileName,
			Size:     info.Size,
		}
		if reference.FileName == "" {
			reference.FileName = content.Body
		}

		if content.File != nil && !content.File.URL.IsZero() {
			reference.URI = content.File.URL
			reference.Encrypted = true
			record.Payload = EncryptedMediaPayload{
				MsgType: content.MsgType,
				Media:   reference,
				File:    *content.File,
				Info:    info,
			}
			return record, true
		}
		if !content.URL.IsZero() {
			reference.URI = content.URL
			record.Payload = MediaPayload{
				MsgType: content.MsgType,
				Media:   reference,
				Info:    info,
			}
			return record, true
		}
	}
	return EventRecord{}, false
}

// emptyContent reports whether raw is absent, null, or {}. Redaction
// strips an m.room.message down to empty content.
func emptyContent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return true
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return false
	}
	return len(fields) == 0
}
