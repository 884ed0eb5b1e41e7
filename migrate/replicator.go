// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package migrate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/matrix-migrate/messaging"
)

// Replicator maps source rooms to destination rooms by display name,
// creating a destination room the first time a name is seen.
type Replicator struct {
	logger  *slog.Logger
	metrics *Metrics
	// created holds rooms made during this run, by name. It covers a
	// destination server that is slow to list a new room.
	created map[string]RoomRecord
}

// NewReplicator creates a Replicator with an empty run history.
func NewReplicator(logger *slog.Logger, metrics *Metrics) *Replicator {
	return &Replicator{
		logger:  logger,
		metrics: metrics,
		created: make(map[string]RoomRecord),
	}
}

// EnsureRoom returns the destination room named like source, creating
// a public room with source's topic and version when none exists.
// After a creation the destination catalog is refreshed. Errors wrap
// ErrRoomCreation.
func (r *Replicator) EnsureRoom(ctx context.Context, source RoomRecord, destination *Handle) (RoomRecord, error) {
	if room, ok := r.created[source.Name]; ok {
		return room, nil
	}
	if room, ok := destination.Catalog().FindByName(source.Name); ok {
		r.logger.Debug("reusing destination room",
			"room", source.Name,
			"room_id", room.ID,
		)
		return room, nil
	}

	response, err := destination.session.CreateRoom(ctx, messaging.CreateRoomRequest{
		Name:        source.Name,
		Topic:       source.Topic,
		RoomVersion: source.Version,
		Visibility:  "public",
		Preset:      "public_chat",
	})
	if err != nil {
		return RoomRecord{}, fmt.Errorf("%w: %q: %w", ErrRoomCreation, source.Name, err)
	}
	r.metrics.RoomsCreated.Inc()

	room := RoomRecord{
		ID:      response.RoomID,
		Name:    source.Name,
		Topic:   source.Topic,
		Version: source.Version,
	}
	catalog, err := destination.Refresh(ctx)
	switch {
	case err != nil:
		r.logger.Warn("cannot refresh destination rooms after creation", "room_id", room.ID, "error", err)
	default:
		if listed, ok := catalog.FindByID(response.RoomID); ok {
			room = listed
		} else {
			r.logger.Warn("created room not yet listed by destination", "room_id", room.ID)
		}
	}

	r.created[source.Name] = room
	r.logger.Info("created destination room",
		"room", room.Name,
		"room_id", room.ID,
		"source_room_id", source.ID,
	)
	return room, nil
}
