// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package migrate

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts what a run did. Counters live on a private registry
// so several migrators (tests) never collide, and can be written once
// at exit in node_exporter textfile format.
type Metrics struct {
	registry *prometheus.Registry

	RoomsSeen    prometheus.Counter
	RoomsCreated prometheus.Counter
	RoomsSkipped prometheus.Counter

	EventsFetched *prometheus.CounterVec // by kind
	EventsPosted  *prometheus.CounterVec // by kind
	EventsSkipped *prometheus.CounterVec // by reason

	MediaBytes            prometheus.Counter
	MediaReused           prometheus.Counter
	MediaDownloadFailures prometheus.Counter
	PageFailures          prometheus.Counter
	SyncFailures          prometheus.Counter
}

// Reasons an event is fetched but not posted.
const (
	skipRedacted = "redacted"
	skipLedger   = "ledger"
)

// NewMetrics creates the counters and registers them.
func NewMetrics() *Metrics {
	metrics := &Metrics{
		registry: prometheus.NewRegistry(),
		RoomsSeen: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "matrix_migrate",
			Name:      "rooms_seen_total",
			Help:      "Source rooms visited.",
		}),
		RoomsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "matrix_migrate",
			Name:      "rooms_created_total",
			Help:      "Destination rooms created.",
		}),
		RoomsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "matrix_migrate",
			Name:      "rooms_skipped_total",
			Help:      "Source rooms with no history to migrate.",
		}),
		EventsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matrix_migrate",
			Name:      "events_fetched_total",
			Help:      "Retained source events, by kind.",
		}, []string{"kind"}),
		EventsPosted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matrix_migrate",
			Name:      "events_posted_total",
			Help:      "Messages posted to the destination, by kind.",
		}, []string{"kind"}),
		EventsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matrix_migrate",
			Name:      "events_skipped_total",
			Help:      "Retained events not posted, by reason.",
		}, []string{"reason"}),
		MediaBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "matrix_migrate",
			Name:      "media_bytes_total",
			Help:      "Attachment bytes uploaded to the destination.",
		}),
		MediaReused: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "matrix_migrate",
			Name:      "media_reused_total",
			Help:      "Attachments taken from the ledger instead of re-uploaded.",
		}),
		MediaDownloadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "matrix_migrate",
			Name:      "media_download_failures_total",
			Help:      "Attachments forwarded empty because the download failed.",
		}),
		PageFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "matrix_migrate",
			Name:      "page_failures_total",
			Help:      "History pages that failed and ended pagination early.",
		}),
		SyncFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "matrix_migrate",
			Name:      "sync_failures_total",
			Help:      "Syncs or room listings that failed.",
		}),
	}

	metrics.registry.MustRegister(
		metrics.RoomsSeen,
		metrics.RoomsCreated,
		metrics.RoomsSkipped,
		metrics.EventsFetched,
		metrics.EventsPosted,
		metrics.EventsSkipped,
		metrics.MediaBytes,
		metrics.MediaReused,
		metrics.MediaDownloadFailures,
		metrics.PageFailures,
		metrics.SyncFailures,
	)
	return metrics
}

// Registry exposes the registry for callers that serve or gather it.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes every counter to path in the text exposition
// format. The file is written to a temporary name and renamed, so a
// collector never reads a partial file.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
