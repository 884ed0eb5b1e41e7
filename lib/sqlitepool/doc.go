// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides a small SQLite connection pool with
// standard pragmas, used by the migration ledger.
//
// It wraps zombiezen.com/go/sqlite's sqlitex.Pool. Callers [Pool.Take]
// a connection, perform work, and [Pool.Put] it back. Connections are
// NOT safe for concurrent use.
//
// # Pragmas
//
// Every connection in the pool is initialized with:
//
//   - journal_mode=WAL: readers never block the writer.
//   - synchronous=NORMAL: commits survive a process crash; an OS crash
//     may lose the last transactions. For the ledger that means at
//     worst a few messages are re-posted on the next run.
//   - busy_timeout=5000: wait up to 5 seconds for the write lock.
//   - cache_size=-8192: 8 MB page cache per connection.
//   - temp_store=MEMORY
//
// # Usage
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:   "/var/lib/matrix-migrate/ledger.db",
//	    Schema: schema,
//	    Logger: logger,
//	})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	conn, err := pool.Take(ctx)
//	if err != nil {
//	    return err
//	}
//	defer pool.Put(conn)
//
// Queries are plain SQL through sqlitex.Execute; transactions use
// sqlitex.ImmediateTransaction.
package sqlitepool
