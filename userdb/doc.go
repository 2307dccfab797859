// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

// Package userdb stores the local side of the reconciliation pair: the
// users whose lifecycle the reconciler mirrors into the remote
// identity provider.
//
// The database is a single SQLite file opened through
// [github.com/seam-foundation/seam/lib/sqlitepool]. Each row carries
// the provider's id in remote_id, empty until the first successful
// create sync reports it back via [DB.SetRemoteID]. The schema is
// versioned through SQLite's user_version pragma; [Open] migrates
// older databases forward and refuses databases written by a newer
// build.
//
// Lookup misses return [ErrNotFound] and uniqueness violations return
// [ErrConflict], both wrapped with the offending id.
package userdb
