// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging wraps the subset of the Matrix client-server API that
// a homeserver-to-homeserver history migration needs.
//
// [Client] is an unauthenticated client bound to one homeserver URL and
// HTTP transport. It authenticates in one of two ways, returning a
// [DirectSession]: [Client.Login] performs m.login.password with a
// caller-chosen device ID, and [Client.SessionFromToken] adopts an
// existing access token, validating it with /whoami.
//
// [DirectSession] carries the access token in a secret.Buffer and offers
// the operations the migrator drives: full-state /sync with inline
// filters, the joined-rooms list and room state for discovery, room
// creation, paginated /messages in either direction, media download and
// upload, message sending with per-session transaction IDs, and logout.
// The [Session] interface names these operations so that callers can
// substitute an in-memory homeserver in tests.
//
// All API errors are returned as [*MatrixError] with the standard Matrix
// error code (M_FORBIDDEN, M_NOT_FOUND, etc.) and HTTP status code.
// [IsMatrixError] tests for a specific error code. Request URLs are built
// by string concatenation rather than url.URL to avoid double-encoding of
// path segments that contain URL-encoded characters.
//
// Media downloads go to the authenticated /_matrix/client/v1/media
// endpoints first and fall back to the legacy unauthenticated
// /_matrix/media/v3 endpoints on homeservers that predate them.
package messaging
