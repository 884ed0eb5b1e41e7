// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil bounds how much of an HTTP response body the migrator
// will hold in memory.
//
// Two ceilings exist. JSON API responses (sync, messages, createRoom)
// are read with [ReadResponse] up to [MaxResponseSize]. Media payloads
// are held fully in memory between download and re-upload, so they get
// their own, larger ceiling via [ReadMedia], and exceeding it is an
// error rather than a silent truncation: a truncated attachment would
// be re-uploaded with the wrong length.
package netutil

import (
	"errors"
	"fmt"
	"io"
)

// MaxResponseSize bounds JSON API response bodies: 256 MB. A full-state
// sync for an account in thousands of rooms stays far below this.
const MaxResponseSize int64 = 256 << 20

// MaxMediaSize bounds a single media download: 1 GB. Homeservers
// commonly cap uploads at 50-100 MB, so this only trips on a
// misbehaving server.
const MaxMediaSize int64 = 1 << 30

// ErrMediaTooLarge is returned by ReadMedia when the body exceeds the
// limit.
var ErrMediaTooLarge = errors.New("netutil: media body exceeds size limit")

// ReadResponse reads a JSON API response body up to MaxResponseSize
// bytes. Use instead of io.ReadAll when reading HTTP response bodies.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// ReadMedia reads a media body of at most limit bytes. A limit of zero
// or less uses MaxMediaSize. Unlike ReadResponse, a body that does not
// fit returns ErrMediaTooLarge.
func ReadMedia(body io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = MaxMediaSize
	}
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("netutil: reading media body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w (%d bytes)", ErrMediaTooLarge, limit)
	}
	return data, nil
}

// ErrorBody reads an HTTP error response body for use in a diagnostic.
// Read errors are ignored: a partial body is still useful.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, 64<<10))
	return string(data)
}
