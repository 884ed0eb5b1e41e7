// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version holds the build identity of matrix-migrate: the
// release version and commit stamped in with -ldflags, formatted for
// --version and the run log, and the User-Agent sent to homeservers.
package version
