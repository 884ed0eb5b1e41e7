// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package migrate copies room history from one Matrix homeserver to
// another.
//
// The pipeline is strictly sequential. A [SessionManager] logs into both
// servers and loads each account's [Catalog], a point-in-time snapshot
// of its joined rooms. For every source room, in catalog order, the
// [Paginator] fetches the whole timeline around a fresh sync anchor and
// keeps only text, media, encrypted-media and redacted events. Rooms
// with nothing to migrate are skipped. The [Replicator] finds or creates
// the destination room with the same display name, and the [Replayer]
// posts the timeline into it one message at a time, re-hosting
// attachments through the [MediaRelay].
//
// [Migrator] wires these together and is the only place that decides
// whether a failure ends the run: components return errors wrapping the
// sentinels in errors.go and never exit the process.
//
// Room identity across servers is display-name equality and nothing
// else. Two source rooms with the same name land in one destination
// room.
//
// An optional [Ledger] records what has been posted so a second run
// against the same destination skips it; without one, re-runs append
// the history again.
package migrate
