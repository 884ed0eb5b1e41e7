// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package logging builds the command's slog logger: a console handler
// on stderr plus an optional rotating log file that records everything.
//
// The console handler writes text when stderr is a terminal and JSON
// otherwise. It shows warnings and errors by default and adds info
// records in verbose mode, so a quiet run prints nothing. The file
// handler always records at debug level, with timestamps, and is
// appended to across runs.
package logging
