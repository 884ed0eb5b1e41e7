// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package migrate

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"mime"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/matrix-migrate/lib/ref"
	"github.com/bureau-foundation/matrix-migrate/messaging"
)

const octetStream = "application/octet-stream"

// UploadedReference is an attachment re-hosted on the destination.
type UploadedReference struct {
	URI      ref.ContentURI
	MimeType string
	FileName string
	// Size is the uploaded byte count, equal to the downloaded one.
	Size int64
	// Digest is the hex BLAKE3 digest of the payload.
	Digest string
}

// MediaRelay moves attachments from the source to the destination.
type MediaRelay struct {
	logger  *slog.Logger
	metrics *Metrics
	ledger  *Ledger
	strict  bool
}

// NewMediaRelay creates a MediaRelay. ledger may be nil. With strict
// set, a failed download is returned instead of forwarding an empty
// payload.
func NewMediaRelay(logger *slog.Logger, metrics *Metrics, ledger *Ledger, strict bool) *MediaRelay {
	return &MediaRelay{logger: logger, metrics: metrics, ledger: ledger, strict: strict}
}

// Relay downloads reference from source and uploads it to destination.
// Download failures forward an empty payload unless strict; upload
// failures wrap ErrMediaUpload.
func (r *MediaRelay) Relay(ctx context.Context, source, destination *Handle, reference MediaReference) (UploadedReference, error) {
	logger := r.logger.With("uri", reference.URI)
	destinationServer := destination.session.HomeserverURL()

	if r.ledger != nil {
		cached, found, err := r.ledger.LookupMedia(ctx, reference.URI, destinationServer)
		if err != nil {
			return UploadedReference{}, err
		}
		if found {
			r.metrics.MediaReused.Inc()
			logger.Debug("reusing relayed media", "destination_uri", cached.URI)
			return cached, nil
		}
	}

	downloaded := true
	media, err := source.session.DownloadMedia(ctx, reference.URI)
	if err != nil {
		downloadErr := fmt.Errorf("%w: %s: %w", ErrMediaDownload, reference.URI, err)
		r.metrics.MediaDownloadFailures.Inc()
		if r.strict {
			return UploadedReference{}, downloadErr
		}
		logger.Warn("media download failed, forwarding an empty attachment", "error", downloadErr)
		media = &messaging.Media{Data: []byte{}}
		downloaded = false
	}

	mimeType := resolveMimeType(reference, media)
	fileName := media.FileName
	if fileName == "" {
		fileName = reference.FileName
	}
	uploadType := mimeType
	if reference.Encrypted {
		uploadType = octetStream
	}

	digest := blake3.Sum256(media.Data)
	uploaded, err := destination.session.UploadMedia(ctx, messaging.UploadRequest{
		Data:        media.Data,
		ContentType: uploadType,
		FileName:    fileName,
	})
	if err != nil {
		return UploadedReference{}, fmt.Errorf("%w: %s (%s): %w", ErrMediaUpload, reference.URI, fileName, err)
	}

	result := UploadedReference{
		URI:      uploaded.ContentURI,
		MimeType: mimeType,
		FileName: fileName,
		Size:     int64(len(media.Data)),
		Digest:   hex.EncodeToString(digest[:]),
	}
	r.metrics.MediaBytes.Add(float64(result.Size))
	logger.Debug("media relayed",
		"destination_uri", result.URI,
		"size", humanize.IBytes(uint64(result.Size)),
		"mimetype", result.MimeType,
		"blake3", result.Digest,
	)

	if r.ledger != nil && downloaded {
		if err := r.ledger.RecordMedia(ctx, reference.URI, destinationServer, result); err != nil {
			return UploadedReference{}, err
		}
	}
	return result, nil
}

// resolveMimeType prefers the download's Content-Type, then the type
// the event declared, then a sniff of the payload.
func resolveMimeType(reference MediaReference, media *messaging.Media) string {
	if media.ContentType != "" {
		if parsed, _, err := mime.ParseMediaType(media.ContentType); err == nil && parsed != octetStream {
			return parsed
		}
	}
	if reference.MimeType != "" {
		return reference.MimeType
	}
	if reference.Encrypted || len(media.Data) == 0 {
		return octetStream
	}
	return mimetype.Detect(media.Data).String()
}
