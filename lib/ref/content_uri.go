// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"strings"
)

const contentURIScheme = "mxc://"

// ContentURI is a validated Matrix content URI
// ("mxc://<server-name>/<media-id>") naming a blob in a homeserver's
// media repository. Message events carry these instead of raw bytes.
type ContentURI struct {
	server  string
	mediaID string
}

// ParseContentURI validates and splits an mxc:// URI.
func ParseContentURI(raw string) (ContentURI, error) {
	if raw == "" {
		return ContentURI{}, fmt.Errorf("empty content URI")
	}
	if !strings.HasPrefix(raw, contentURIScheme) {
		return ContentURI{}, fmt.Errorf("content URI must start with %q: %q", contentURIScheme, raw)
	}
	rest := raw[len(contentURIScheme):]
	slash := strings.IndexByte(rest, '/')
	if slash <= 0 {
		return ContentURI{}, fmt.Errorf("content URI missing server name: %q", raw)
	}
	mediaID := rest[slash+1:]
	if mediaID == "" || strings.Contains(mediaID, "/") {
		return ContentURI{}, fmt.Errorf("content URI has invalid media ID: %q", raw)
	}
	return ContentURI{server: rest[:slash], mediaID: mediaID}, nil
}

// MustParseContentURI is like ParseContentURI but panics on error.
func MustParseContentURI(raw string) ContentURI {
	uri, err := ParseContentURI(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseContentURI(%q): %v", raw, err))
	}
	return uri
}

// Server returns the origin server name of the media.
func (c ContentURI) Server() string { return c.server }

// MediaID returns the server-local media identifier.
func (c ContentURI) MediaID() string { return c.mediaID }

// String returns the mxc:// form, or "" for the zero value.
func (c ContentURI) String() string {
	if c.IsZero() {
		return ""
	}
	return contentURIScheme + c.server + "/" + c.mediaID
}

// IsZero reports whether the ContentURI is the zero value.
func (c ContentURI) IsZero() bool { return c.server == "" }

// MarshalText implements encoding.TextMarshaler.
func (c ContentURI) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty input
// produces the zero value.
func (c *ContentURI) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*c = ContentURI{}
		return nil
	}
	parsed, err := ParseContentURI(string(data))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
