// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides a SQLite connection pool with Seam's
// standard pragmas applied to every connection.
//
// The pool wraps zombiezen.com/go/sqlite/sqlitex and configures each
// connection for a mixed read/write workload: WAL journaling so
// readers never block on the writer, NORMAL synchronous (durable
// across application crashes, a power loss may drop the last
// transactions), a five second busy timeout, and enforced foreign
// keys.
//
// # Usage
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path: "/var/lib/seam/users.db",
//	    OnConnect: func(conn *sqlite.Conn) error {
//	        return sqlitex.ExecuteScript(conn, schema, nil)
//	    },
//	})
//
// Connections are borrowed with Take and must be returned with Put.
// A connection belongs to one goroutine at a time.
package sqlitepool
