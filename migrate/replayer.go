// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package migrate

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/bureau-foundation/matrix-migrate/messaging"
)

// ReplayStats summarises one room's replay.
type ReplayStats struct {
	Posted          int
	SkippedRedacted int
	SkippedLedger   int
	MediaBytes      int64
}

// Replayer posts a timeline into a destination room.
type Replayer struct {
	relay   *MediaRelay
	ledger  *Ledger
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics *Metrics
}

// NewReplayer creates a Replayer. ledger and limiter may be nil; a nil
// limiter posts as fast as the destination answers.
func NewReplayer(relay *MediaRelay, ledger *Ledger, limiter *rate.Limiter, logger *slog.Logger, metrics *Metrics) *Replayer {
	return &Replayer{
		relay:   relay,
		ledger:  ledger,
		limiter: limiter,
		logger:  logger,
		metrics: metrics,
	}
}

// Replay posts timeline into room on destination in order, each send
// completing before the next starts. Redacted events are not posted.
// Attachments are fetched from source. The first failed send ends the
// replay with an error wrapping ErrMessageSend.
func (r *Replayer) Replay(ctx context.Context, source, destination *Handle, sourceRoom, room RoomRecord, timeline []EventRecord) (ReplayStats, error) {
	var stats ReplayStats
	logger := r.logger.With("room", room.Name, "room_id", room.ID)

	for _, event := range timeline {
		if _, redacted := event.Payload.(RedactedPayload); redacted {
			stats.SkippedRedacted++
			r.metrics.EventsSkipped.WithLabelValues(skipRedacted).Inc()
			continue
		}

		if r.ledger != nil {
			recorded, posted, err := r.ledger.PostedContent(ctx, sourceRoom.ID, event.ID, room.ID)
			if err != nil {
				return stats, err
			}
			if posted {
				stats.SkippedLedger++
				r.metrics.EventsSkipped.WithLabelValues(skipLedger).Inc()
				logger.Debug("already posted",
					"source_event", event.ID,
					"recorded_msgtype", recorded.MsgType,
					"recorded_body", recorded.Body,
				)
				continue
			}
		}

		content, size, err := r.content(ctx, source, destination, event)
		if err != nil {
			return stats, err
		}

		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return stats, fmt.Errorf("%w: %s: %w", ErrMessageSend, event.ID, err)
			}
		}

		eventID, err := destination.session.SendMessage(ctx, room.ID, content)
		if err != nil {
			return stats, fmt.Errorf("%w: %s into %s (position %d): %w", ErrMessageSend, event.ID, room.ID, event.Position, err)
		}
		stats.Posted++
		stats.MediaBytes += size
		r.metrics.EventsPosted.WithLabelValues(event.Kind().String()).Inc()
		logger.Debug("posted",
			"source_event", event.ID,
			"event_id", eventID,
			"kind", event.Kind(),
		)

		if r.ledger != nil {
			err := r.ledger.RecordPosted(ctx, PostedEntry{
				SourceRoom:       sourceRoom.ID,
				SourceEvent:      event.ID,
				DestinationRoom:  room.ID,
				DestinationEvent: eventID,
				Kind:             event.Kind(),
				Content:          content,
			})
			if err != nil {
				return stats, err
			}
		}
	}
	return stats, nil
}

// content builds the destination message for event, relaying its
// attachment if it has one. size is the relayed byte count.
func (r *Replayer) content(ctx context.Context, source, destination *Handle, event EventRecord) (messaging.MessageContent, int64, error) {
	switch payload := event.Payload.(type) {
	case TextPayload:
		return messaging.MessageContent{
			MsgType:       payload.MsgType,
			Body:          payload.Body,
			Format:        payload.Format,
			FormattedBody: payload.FormattedBody,
		}, 0, nil

	case MediaPayload:
		uploaded, err := r.relay.Relay(ctx, source, destination, payload.Media)
		if err != nil {
			return messaging.MessageContent{}, 0, err
		}
		return messaging.MessageContent{
			MsgType:  payload.MsgType,
			Body:     mediaBody(uploaded),
			FileName: uploaded.FileName,
			URL:      uploaded.URI,
			Info:     mediaInfo(payload.Info, uploaded),
		}, uploaded.Size, nil

	case EncryptedMediaPayload:
		uploaded, err := r.relay.Relay(ctx, source, destination, payload.Media)
		if err != nil {
			return messaging.MessageContent{}, 0, err
		}
		file := payload.File
		file.URL = uploaded.URI
		return messaging.MessageContent{
			MsgType:  payload.MsgType,
			Body:     mediaBody(uploaded),
			FileName: uploaded.FileName,
			File:     &file,
			Info:     mediaInfo(payload.Info, uploaded),
		}, uploaded.Size, nil

	case RedactedPayload:
		return messaging.MessageContent{}, 0, fmt.Errorf("redacted event %s has no content to post", event.ID)

	default:
		panic(fmt.Sprintf("migrate: unhandled payload %T", payload))
	}
}

// untitledAttachment is posted as the body of a media message when
// neither the download nor the source event named the file. Clients
// require a non-empty body.
const untitledAttachment = "attachment"

func mediaBody(uploaded UploadedReference) string {
	if uploaded.FileName == "" {
		return untitledAttachment
	}
	return uploaded.FileName
}

// mediaInfo keeps the source's dimensions and duration and takes size
// and type from what was actually uploaded.
func mediaInfo(source messaging.MediaInfo, uploaded UploadedReference) *messaging.MediaInfo {
	info := source
	info.Size = uploaded.Size
	info.MimeType = uploaded.MimeType
	return &info
}
