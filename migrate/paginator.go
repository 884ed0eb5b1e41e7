// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/bureau-foundation/matrix-migrate/lib/ref"
	"github.com/bureau-foundation/matrix-migrate/messaging"
)

// pageSize is the number of events requested per /messages page.
const pageSize = 1000

// Cursor is a pagination position in one room for one direction. It
// is only meaningful within the sync epoch that produced its anchor.
type Cursor struct {
	Token     string
	Direction string
}

// Paginator fetches the complete retained history of a room.
type Paginator struct {
	logger  *slog.Logger
	metrics *Metrics
	strict  bool
}

// NewPaginator creates a Paginator. With strict set, a failed page is
// returned as an error instead of ending pagination.
func NewPaginator(logger *slog.Logger, metrics *Metrics, strict bool) *Paginator {
	return &Paginator{logger: logger, metrics: metrics, strict: strict}
}

// FetchTimeline returns room's retained events oldest first. History
// is read backward from a fresh sync anchor, reversed, then followed by
// everything read forward from the same anchor. Events of kind other
// are dropped; Position is the index in the returned slice.
func (p *Paginator) FetchTimeline(ctx context.Context, handle *Handle, room RoomRecord) ([]EventRecord, error) {
	logger := p.logger.With("room_id", room.ID, "room", room.Name)

	anchor, err := p.anchor(ctx, handle.session, room.ID)
	if err != nil {
		p.metrics.SyncFailures.Inc()
		if p.strict {
			return nil, err
		}
		logger.Warn("cannot obtain pagination anchor, skipping room history", "error", err)
		return nil, nil
	}

	backward, err := p.run(ctx, handle.session, room.ID, Cursor{Token: anchor, Direction: messaging.DirectionBackward}, logger)
	if err != nil {
		return nil, err
	}
	slices.Reverse(backward)

	var forward []messaging.Event
	// Without an anchor the backward run started at the newest event,
	// so there is nothing after it to read.
	if anchor != "" {
		forward, err = p.run(ctx, handle.session, room.ID, Cursor{Token: anchor, Direction: messaging.DirectionForward}, logger)
		if err != nil {
			return nil, err
		}
	}

	timeline := make([]EventRecord, 0, len(backward)+len(forward))
	for _, event := range slices.Concat(backward, forward) {
		record, ok := Classify(event)
		if !ok {
			continue
		}
		record.Position = len(timeline)
		timeline = append(timeline, record)
		p.metrics.EventsFetched.WithLabelValues(record.Kind().String()).Inc()
	}

	logger.Debug("timeline fetched",
		"backward", len(backward),
		"forward", len(forward),
		"retained", len(timeline),
	)
	return timeline, nil
}

// anchor syncs the single room with a one-event timeline and returns
// its prev_batch token. An empty token means the server gave none.
func (p *Paginator) anchor(ctx context.Context, session messaging.Session, roomID ref.RoomID) (string, error) {
	response, err := session.Sync(ctx, messaging.SyncOptions{
		Timeout:    discoveryTimeout,
		SetTimeout: true,
		FullState:  true,
		Filter: messaging.SyncFilter{
			Rooms:         []ref.RoomID{roomID},
			TimelineLimit: 1,
		}.Inline(),
	})
	if err != nil {
		return "", fmt.Errorf("%w: anchor for %s: %w", ErrSync, roomID, err)
	}
	return response.Rooms.Join[roomID].Timeline.PrevBatch, nil
}

// run pages from cursor until a page is empty, the server stops
// returning an end token, or the end token stops moving. Events are
// returned in the order the server sent them.
func (p *Paginator) run(ctx context.Context, session messaging.Session, roomID ref.RoomID, cursor Cursor, logger *slog.Logger) ([]messaging.Event, error) {
	var events []messaging.Event
	for {
		page, err := session.RoomMessages(ctx, roomID, messaging.RoomMessagesOptions{
			From:      cursor.Token,
			Direction: cursor.Direction,
			Limit:     pageSize,
		})
		if err != nil {
			fetchErr := fmt.Errorf("%w: %s dir=%s from %q: %w", ErrMessageFetch, roomID, cursor.Direction, cursor.Token, err)
			p.metrics.PageFailures.Inc()
			if p.strict {
				return nil, fetchErr
			}
			logger.Warn("history page failed, history may be truncated",
				"direction", cursor.Direction,
				"fetched", len(events),
				"error", fetchErr,
			)
			return events, nil
		}

		if len(page.Chunk) == 0 {
			return events, nil
		}
		events = append(events, page.Chunk...)

		if page.End == "" || page.End == cursor.Token {
			return events, nil
		}
		cursor.Token = page.End
	}
}
