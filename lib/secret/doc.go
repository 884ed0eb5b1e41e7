// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds homeserver credentials (passwords and access
// tokens) in memory that is allocated outside the Go heap, excluded from
// core dumps, and zeroed on Close.
//
// A migration run holds at most four secrets (a password or token for
// each of two homeservers, plus the access tokens issued at login), and
// they live for the whole process. [Buffer] keeps them out of the
// garbage-collected heap so they cannot be copied around by the
// runtime, and [Buffer.String] makes the rare heap copy explicit at the
// JSON serialization boundary.
//
// Depends on golang.org/x/sys/unix.
package secret
