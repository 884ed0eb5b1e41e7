// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
)

// Release builds stamp these with -ldflags, for example:
//
//	go build -ldflags "-X github.com/bureau-foundation/matrix-migrate/lib/version.Commit=$(git rev-parse --short HEAD)" ./cmd/matrix-migrate
//
// Development builds keep the defaults.
var (
	Version = "0.1.0-dev"
	Commit  = "unknown"
	// Dirty is "true" when the tree had uncommitted changes.
	Dirty     = "false"
	BuildTime = "unknown"
)

// Info is the --version line and the version logged at the start of
// every run: "0.1.0 (abc1234-dirty, 2026-01-01T00:00:00Z, go1.25.6)".
func Info() string {
	commit := Commit
	if Dirty == "true" {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (%s, %s, %s)", Version, commit, BuildTime, runtime.Version())
}

// UserAgent identifies the migrator to both homeservers, so their
// operators can tell its traffic from regular clients.
func UserAgent() string {
	return "matrix-migrate/" + Version
}
