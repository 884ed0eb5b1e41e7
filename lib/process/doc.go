// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the entrypoint helper for matrix-migrate:
// reporting an error returned from run() on stderr and exiting
// non-zero. It is the one place outside the logger that writes to
// stderr directly, because it runs when the logger may not exist yet.
package process
