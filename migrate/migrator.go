// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// logoutTimeout bounds each logout at the end of a run, which also
// happens after the run's context is cancelled.
const logoutTimeout = 10 * time.Second

// Config holds everything a Migrator needs.
type Config struct {
	Source      Session
	Destination Session

	// Authenticator opens sessions. Required.
	Authenticator Authenticator

	// DeviceIDs names password logins. If nil, a generator with a
	// random run tag is used.
	DeviceIDs *DeviceIDs

	// Strict turns failed history pages and failed media downloads
	// into errors.
	Strict bool

	// Ledger, if set, skips events and media already migrated.
	Ledger *Ledger

	// SendRate caps messages posted per second. Zero is unlimited.
	SendRate float64

	// Metrics receives counters. If nil, a private set is created.
	Metrics *Metrics

	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Summary reports what a run did.
type Summary struct {
	RoomsSeen     int
	RoomsMigrated int
	RoomsSkipped  int
	EventsFetched int
	EventsPosted  int
	EventsSkipped int
	MediaBytes    int64
	Duration      time.Duration
}

// Migrator runs the migration pipeline.
type Migrator struct {
	config     Config
	logger     *slog.Logger
	metrics    *Metrics
	sessions   *SessionManager
	paginator  *Paginator
	replicator *Replicator
	replayer   *Replayer
}

// New validates config and assembles the pipeline.
func New(config Config) (*Migrator, error) {
	if config.Authenticator == nil {
		return nil, fmt.Errorf("migrate: Authenticator is required")
	}
	if config.Source.Server == "" || config.Destination.Server == "" {
		return nil, fmt.Errorf("migrate: source and destination servers are required")
	}
	if config.SendRate < 0 {
		return nil, fmt.Errorf("migrate: SendRate must not be negative")
	}
	if config.Source.Role == "" {
		config.Source.Role = "source"
	}
	if config.Destination.Role == "" {
		config.Destination.Role = "destination"
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}
	deviceIDs := config.DeviceIDs
	if deviceIDs == nil {
		deviceIDs = NewDeviceIDs()
	}

	var limiter *rate.Limiter
	if config.SendRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.SendRate), 1)
	}

	relay := NewMediaRelay(logger, metrics, config.Ledger, config.Strict)
	return &Migrator{
		config:     config,
		logger:     logger,
		metrics:    metrics,
		sessions:   NewSessionManager(config.Authenticator, deviceIDs, logger, metrics),
		paginator:  NewPaginator(logger, metrics, config.Strict),
		replicator: NewReplicator(logger, metrics),
		replayer:   NewReplayer(relay, config.Ledger, limiter, logger, metrics),
	}, nil
}

// Metrics returns the counters the run updates.
func (m *Migrator) Metrics() *Metrics {
	return m.metrics
}

// Run logs into both servers and migrates every source room in catalog
// order. Both sessions are logged out before Run returns, the
// destination first. The returned Summary covers the work done up to
// any error.
func (m *Migrator) Run(ctx context.Context) (summary Summary, err error) {
	start := time.Now()
	defer func() { summary.Duration = time.Since(start) }()

	source, err := m.sessions.Login(ctx, m.config.Source)
	if err != nil {
		return summary, err
	}
	destination, err := m.sessions.Login(ctx, m.config.Destination)
	if err != nil {
		m.logout(ctx, source)
		return summary, err
	}
	defer func() {
		m.logout(ctx, destination)
		m.logout(ctx, source)
	}()

	for _, room := range source.Catalog().Rooms() {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.RoomsSeen++
		m.metrics.RoomsSeen.Inc()

		if err := m.migrateRoom(ctx, source, destination, room, &summary); err != nil {
			return summary, err
		}
	}

	m.logger.Info("migration complete",
		"rooms_seen", summary.RoomsSeen,
		"rooms_migrated", summary.RoomsMigrated,
		"rooms_skipped", summary.RoomsSkipped,
		"events_posted", summary.EventsPosted,
		"events_skipped", summary.EventsSkipped,
		"media_bytes", summary.MediaBytes,
	)
	return summary, nil
}

func (m *Migrator) migrateRoom(ctx context.Context, source, destination *Handle, room RoomRecord, summary *Summary) error {
	logger := m.logger.With("room", room.Name, "source_room_id", room.ID)

	timeline, err := m.paginator.FetchTimeline(ctx, source, room)
	if err != nil {
		return err
	}
	summary.EventsFetched += len(timeline)
	if len(timeline) == 0 {
		summary.RoomsSkipped++
		m.metrics.RoomsSkipped.Inc()
		logger.Info("nothing to migrate")
		return nil
	}

	target, err := m.replicator.EnsureRoom(ctx, room, destination)
	if err != nil {
		return err
	}

	stats, err := m.replayer.Replay(ctx, source, destination, room, target, timeline)
	summary.EventsPosted += stats.Posted
	summary.EventsSkipped += stats.SkippedRedacted + stats.SkippedLedger
	summary.MediaBytes += stats.MediaBytes
	if err != nil {
		return err
	}
	summary.RoomsMigrated++

	logger.Info("room migrated",
		"destination_room_id", target.ID,
		"events", len(timeline),
		"posted", stats.Posted,
		"skipped_redacted", stats.SkippedRedacted,
		"skipped_ledger", stats.SkippedLedger,
	)
	return nil
}

// logout runs even when ctx is already cancelled.
func (m *Migrator) logout(ctx context.Context, handle *Handle) {
	logoutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logoutTimeout)
	defer cancel()
	m.sessions.Logout(logoutCtx, handle)
}
