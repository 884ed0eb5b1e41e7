// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/matrix-migrate/lib/codec"
	"github.com/bureau-foundation/matrix-migrate/lib/ref"
	"github.com/bureau-foundation/matrix-migrate/lib/sqlitepool"
	"github.com/bureau-foundation/matrix-migrate/messaging"
)

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS posted (
	source_room  TEXT NOT NULL,
	source_event TEXT NOT NULL,
	dest_room    TEXT NOT NULL,
	dest_event   TEXT NOT NULL,
	kind         TEXT NOT NULL,
	content      BLOB NOT NULL,
	posted_at    INTEGER NOT NULL,
	PRIMARY KEY (source_room, source_event, dest_room)
);

CREATE TABLE IF NOT EXISTS media (
	source_uri  TEXT NOT NULL,
	dest_server TEXT NOT NULL,
	digest      TEXT NOT NULL,
	dest_uri    TEXT NOT NULL,
	size        INTEGER NOT NULL,
	mimetype    TEXT NOT NULL,
	filename    TEXT NOT NULL,
	PRIMARY KEY (source_uri, dest_server)
);
`

// Ledger remembers posted events and relayed media across runs so a
// repeated migration into the same destination room posts nothing
// twice. Every error wraps ErrLedger.
type Ledger struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
	now    func() time.Time
}

// PostedEntry is one posted message.
type PostedEntry struct {
	SourceRoom       ref.RoomID
	SourceEvent      ref.EventID
	DestinationRoom  ref.RoomID
	DestinationEvent ref.EventID
	Kind             Kind
	Content          messaging.MessageContent
}

// OpenLedger opens or creates the ledger database at path.
func OpenLedger(path string, logger *slog.Logger) (*Ledger, error) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   path,
		Schema: ledgerSchema,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLedger, err)
	}
	return &Ledger{pool: pool, logger: logger, now: time.Now}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	if err := l.pool.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrLedger, err)
	}
	return nil
}

// RecordPosted stores entry. Recording the same source event into the
// same destination room again replaces the earlier row.
func (l *Ledger) RecordPosted(ctx context.Context, entry PostedEntry) error {
	content, err := codec.Marshal(entry.Content)
	if err != nil {
		return fmt.Errorf("%w: encoding content of %s: %w", ErrLedger, entry.SourceEvent, err)
	}

	conn, err := l.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLedger, err)
	}
	defer l.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT OR REPLACE INTO posted
			(source_room, source_event, dest_room, dest_event, kind, content, posted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				entry.SourceRoom.String(),
				entry.SourceEvent.String(),
				entry.DestinationRoom.String(),
				entry.DestinationEvent.String(),
				entry.Kind.String(),
				content,
				l.now().UnixMilli(),
			},
		})
	if err != nil {
		return fmt.Errorf("%w: recording %s: %w", ErrLedger, entry.SourceEvent, err)
	}
	return nil
}

// PostedContent reports whether sourceEvent was already posted into
// destinationRoom and returns the content snapshot recorded for it.
func (l *Ledger) PostedContent(ctx context.Context, sourceRoom ref.RoomID, sourceEvent ref.EventID, destinationRoom ref.RoomID) (messaging.MessageContent, bool, error) {
	conn, err := l.pool.Take(ctx)
	if err != nil {
		return messaging.MessageContent{}, false, fmt.Errorf("%w: %w", ErrLedger, err)
	}
	defer l.pool.Put(conn)

	var (
		raw   []byte
		found bool
	)
	err = sqlitex.Execute(conn,
		`SELECT content FROM posted WHERE source_room = ? AND source_event = ? AND dest_room = ?`,
		&sqlitex.ExecOptions{
			Args: []any{sourceRoom.String(), sourceEvent.String(), destinationRoom.String()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				raw = make([]byte, stmt.ColumnLen(0))
				stmt.ColumnBytes(0, raw)
				found = true
				return nil
			},
		})
	if err != nil {
		return messaging.MessageContent{}, false, fmt.Errorf("%w: reading %s: %w", ErrLedger, sourceEvent, err)
	}
	if !found {
		return messaging.MessageContent{}, false, nil
	}

	var content messaging.MessageContent
	if err := codec.Unmarshal(raw, &content); err != nil {
		return messaging.MessageContent{}, false, fmt.Errorf("%w: decoding content of %s: %w", ErrLedger, sourceEvent, err)
	}
	return content, true, nil
}

// LookupMedia returns the destination copy of sourceURI on
// destinationServer, if one was recorded.
func (l *Ledger) LookupMedia(ctx context.Context, sourceURI ref.ContentURI, destinationServer string) (UploadedReference, bool, error) {
	conn, err := l.pool.Take(ctx)
	if err != nil {
		return UploadedReference{}, false, fmt.Errorf("%w: %w", ErrLedger, err)
	}
	defer l.pool.Put(conn)

	var (
		result UploadedReference
		found  bool
	)
	err = sqlitex.Execute(conn,
		`SELECT dest_uri, digest, size, mimetype, filename FROM media WHERE source_uri = ? AND dest_server = ?`,
		&sqlitex.ExecOptions{
			Args: []any{sourceURI.String(), destinationServer},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				uri, err := ref.ParseContentURI(stmt.ColumnText(0))
				if err != nil {
					return err
				}
				result = UploadedReference{
					URI:      uri,
					Digest:   stmt.ColumnText(1),
					Size:     stmt.ColumnInt64(2),
					MimeType: stmt.ColumnText(3),
					FileName: stmt.ColumnText(4),
				}
				found = true
				return nil
			},
		})
	if err != nil {
		return UploadedReference{}, false, fmt.Errorf("%w: looking up media %s: %w", ErrLedger, sourceURI, err)
	}
	return result, found, nil
}

// RecordMedia stores the destination copy of sourceURI.
func (l *Ledger) RecordMedia(ctx context.Context, sourceURI ref.ContentURI, destinationServer string, uploaded UploadedReference) error {
	conn, err := l.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLedger, err)
	}
	defer l.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT OR REPLACE INTO media
			(source_uri, dest_server, digest, dest_uri, size, mimetype, filename)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				sourceURI.String(),
				destinationServer,
				uploaded.Digest,
				uploaded.URI.String(),
				uploaded.Size,
				uploaded.MimeType,
				uploaded.FileName,
			},
		})
	if err != nil {
		return fmt.Errorf("%w: recording media %s: %w", ErrLedger, sourceURI, err)
	}
	return nil
}
