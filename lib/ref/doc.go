// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides strongly typed, immutable references to the Matrix
// identifiers the migrator moves between homeservers: room IDs, event IDs,
// user IDs and mxc:// content URIs.
//
// Identifiers are server-assigned. Code never fabricates them; they are
// parsed into these types at the wire boundary (JSON decoding goes through
// encoding.TextUnmarshaler) so that a malformed identifier from a
// misbehaving homeserver fails at decode time rather than deep inside the
// replay pipeline.
//
// Every type is a value type whose zero value means "unset"; use IsZero.
package ref
