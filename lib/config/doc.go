// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config resolves the migration's configuration.
//
// Values come from four layers, later ones winning:
//
//   - built-in defaults (the log file path, unlimited send rate)
//   - the credentials file, ~/.server_creds.toml unless --config names
//     another; TOML, YAML or JSON by extension, with [old] and [new]
//     tables of server, user, password and token
//   - MATRIX_MIGRATE_* environment variables (MATRIX_MIGRATE_OLD_TOKEN,
//     MATRIX_MIGRATE_LEDGER, ...)
//   - command-line flags registered by [AddFlags]
//
// Secrets can live in separate files (password_file, token_file) and
// are copied into locked memory by [Account.Credentials]. Path fields
// expand ${HOME}, ${VAR:-default} and a leading ~.
//
// [Config.Validate] reports every problem at once, named by file key.
package config
