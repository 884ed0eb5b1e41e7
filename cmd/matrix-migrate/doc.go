// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Matrix-migrate copies the message history of every room an account
// has joined on one homeserver into same-named rooms on another.
//
// Credentials come from ~/.server_creds.toml (or --config), with [old]
// and [new] tables naming server, user and password or token. Flags
// and MATRIX_MIGRATE_* environment variables override the file:
//
//	matrix-migrate -1 https://old.example -t alice -p secret \
//	               -2 https://new.example -u alice -w syt_token
//
// Rooms with nothing to migrate are skipped. Text, notices, emotes and
// media (re-uploaded to the new server) are posted in their original
// order; redacted events are not. Runs are logged at debug level to
// ~/log/matrix-migrate.log; the console stays quiet unless --verbose
// is given or something goes wrong.
//
// Without --ledger a second run posts everything again. With a ledger
// it posts only what earlier runs did not.
package main
