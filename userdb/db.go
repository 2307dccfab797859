// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

package userdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/seam-foundation/seam/lib/clock"
	"github.com/seam-foundation/seam/lib/sqlitepool"
)

// schemaVersion is the user_version pragma this build writes and
// expects. Bump it together with a new migration step in migrate.
const schemaVersion = 1

const schemaV1 = `
CREATE TABLE IF NOT EXISTS users (
	id           TEXT PRIMARY KEY,
	email        TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL DEFAULT '',
	active       INTEGER NOT NULL DEFAULT 1,
	remote_id    TEXT NOT NULL DEFAULT '',
	created_at   INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL
);
`

// ErrNotFound reports that no user has the given id.
var ErrNotFound = errors.New("user not found")

// ErrConflict reports a uniqueness violation: the user id or email is
// already taken.
var ErrConflict = errors.New("user id or email already in use")

// User is a row in the local user database.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name,omitempty"`
	Active      bool      `json:"active"`
	RemoteID    string    `json:"remote_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Config holds the parameters for opening the user database.
type Config struct {
	// Path is the SQLite database file, created if absent. Required.
	Path string

	// PoolSize is the connection pool size. Zero or negative uses the
	// pool default.
	PoolSize int

	// Clock provides row timestamps. Defaults to clock.Real().
	Clock clock.Clock

	// Logger receives operational messages. Defaults to a discard
	// logger.
	Logger *slog.Logger
}

// DB is the local user database. Timestamps are stored as Unix
// milliseconds and returned in UTC.
//
// DB is safe for concurrent use.
type DB struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// Open opens the database, creating the file if needed, and migrates
// the schema to the current version. The caller must Close it.
func Open(cfg Config) (*DB, error) {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("userdb: %w", err)
	}

	db := &DB{pool: pool, clock: clk, logger: logger}
	if err := db.migrate(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("userdb: %w", err)
	}
	return db, nil
}

// Close closes the underlying connection pool, blocking until borrowed
// connections are returned.
func (db *DB) Close() error {
	return db.pool.Close()
}

// migrate brings the schema up to schemaVersion. Each step is guarded
// by the version check, so reopening an up-to-date database is a
// no-op.
func (db *DB) migrate(ctx context.Context) error {
	conn, err := db.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer db.pool.Put(conn)

	var version int64
	err = sqlitex.ExecuteTransient(conn, "PRAGMA user_version", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			version = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	if version > schemaVersion {
		return fmt.Errorf("database schema version %d is newer than this build supports (%d)", version, schemaVersion)
	}
	if version == schemaVersion {
		return nil
	}

	if version < 1 {
		if err := sqlitex.ExecuteScript(conn, schemaV1, nil); err != nil {
			return fmt.Errorf("applying schema v1: %w", err)
		}
	}

	if err := sqlitex.ExecuteTransient(conn, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion), nil); err != nil {
		return fmt.Errorf("recording schema version: %w", err)
	}

	db.logger.Info("user database migrated",
		"from_version", version,
		"to_version", schemaVersion,
	)
	return nil
}

// CreateUser inserts a new user, stamping created_at and updated_at.
// Returns the stored row.
func (db *DB) CreateUser(ctx context.Context, user User) (User, error) {
	if user.ID == "" {
		return User{}, fmt.Errorf("userdb: create user: id is required")
	}
	if user.Email == "" {
		return User{}, fmt.Errorf("userdb: create user %s: email is required", user.ID)
	}

	conn, err := db.pool.Take(ctx)
	if err != nil {
		return User{}, fmt.Errorf("userdb: create user %s: %w", user.ID, err)
	}
	defer db.pool.Put(conn)

	nowMillis := db.clock.Now().UnixMilli()
	err = sqlitex.Execute(conn, `INSERT INTO users
		(id, email, display_name, active, remote_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{
			user.ID,
			user.Email,
			user.DisplayName,
			boolToInt(user.Active),
			user.RemoteID,
			nowMillis,
			nowMillis,
		},
	})
	if err != nil {
		if sqlite.ErrCode(err).ToPrimary() == sqlite.ResultConstraint {
			return User{}, fmt.Errorf("userdb: create user %s: %w", user.ID, ErrConflict)
		}
		return User{}, fmt.Errorf("userdb: create user %s: %w", user.ID, err)
	}

	user.CreatedAt = time.UnixMilli(nowMillis).UTC()
	user.UpdatedAt = user.CreatedAt
	return user, nil
}

// GetUser returns the user with the given id.
func (db *DB) GetUser(ctx context.Context, id string) (User, error) {
	if id == "" {
		return User{}, fmt.Errorf("userdb: get user: id is required")
	}

	conn, err := db.pool.Take(ctx)
	if err != nil {
		return User{}, fmt.Errorf("userdb: get user %s: %w", id, err)
	}
	defer db.pool.Put(conn)

	user, err := getUser(conn, id)
	if err != nil {
		return User{}, fmt.Errorf("userdb: get user %s: %w", id, err)
	}
	return user, nil
}

// UpdateUser replaces the user's mutable attributes (email, display
// name, active flag) and bumps updated_at. RemoteID is not touched;
// use SetRemoteID. Returns the stored row.
func (db *DB) UpdateUser(ctx context.Context, user User) (updated User, err error) {
	if user.ID == "" {
		return User{}, fmt.Errorf("userdb: update user: id is required")
	}
	if user.Email == "" {
		return User{}, fmt.Errorf("userdb: update user %s: email is required", user.ID)
	}

	conn, err := db.pool.Take(ctx)
	if err != nil {
		return User{}, fmt.Errorf("userdb: update user %s: %w", user.ID, err)
	}
	defer db.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return User{}, fmt.Errorf("userdb: update user %s: begin transaction: %w", user.ID, err)
	}
	defer endTransaction(&err)

	nowMillis := db.clock.Now().UnixMilli()
	err = sqlitex.Execute(conn, `UPDATE users
		SET email = ?, display_name = ?, active = ?, updated_at = ?
		WHERE id = ?`, &sqlitex.ExecOptions{
		Args: []any{
			user.Email,
			user.DisplayName,
			boolToInt(user.Active),
			nowMillis,
			user.ID,
		},
	})
	if err != nil {
		if sqlite.ErrCode(err).ToPrimary() == sqlite.ResultConstraint {
			err = fmt.Errorf("userdb: update user %s: %w", user.ID, ErrConflict)
			return User{}, err
		}
		err = fmt.Errorf("userdb: update user %s: %w", user.ID, err)
		return User{}, err
	}
	if conn.Changes() == 0 {
		err = fmt.Errorf("userdb: update user %s: %w", user.ID, ErrNotFound)
		return User{}, err
	}

	updated, err = getUser(conn, user.ID)
	if err != nil {
		err = fmt.Errorf("userdb: update user %s: %w", user.ID, err)
		return User{}, err
	}
	return updated, nil
}

// DeleteUser removes the user's row. Missing users return ErrNotFound.
func (db *DB) DeleteUser(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("userdb: delete user: id is required")
	}

	conn, err := db.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("userdb: delete user %s: %w", id, err)
	}
	defer db.pool.Put(conn)

	err = sqlitex.Execute(conn, "DELETE FROM users WHERE id = ?", &sqlitex.ExecOptions{
		Args: []any{id},
	})
	if err != nil {
		return fmt.Errorf("userdb: delete user %s: %w", id, err)
	}
	if conn.Changes() == 0 {
		return fmt.Errorf("userdb: delete user %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListUsers returns users ordered by id. A limit of zero or less
// defaults to 100.
func (db *DB) ListUsers(ctx context.Context, limit, offset int) ([]User, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	conn, err := db.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("userdb: list users: %w", err)
	}
	defer db.pool.Put(conn)

	var users []User
	err = sqlitex.Execute(conn, `SELECT id, email, display_name, active, remote_id, created_at, updated_at
		FROM users ORDER BY id LIMIT ? OFFSET ?`, &sqlitex.ExecOptions{
		Args: []any{limit, offset},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			users = append(users, scanUser(stmt))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("userdb: list users: %w", err)
	}
	return users, nil
}

// SetRemoteID records the identity provider's id for a local user.
// The reconciler calls this after a create sync reports the id the
// provider assigned.
func (db *DB) SetRemoteID(ctx context.Context, id, remoteID string) error {
	if id == "" {
		return fmt.Errorf("userdb: set remote id: id is required")
	}

	conn, err := db.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("userdb: set remote id for %s: %w", id, err)
	}
	defer db.pool.Put(conn)

	nowMillis := db.clock.Now().UnixMilli()
	err = sqlitex.Execute(conn, "UPDATE users SET remote_id = ?, updated_at = ? WHERE id = ?", &sqlitex.ExecOptions{
		Args: []any{remoteID, nowMillis, id},
	})
	if err != nil {
		return fmt.Errorf("userdb: set remote id for %s: %w", id, err)
	}
	if conn.Changes() == 0 {
		return fmt.Errorf("userdb: set remote id for %s: %w", id, ErrNotFound)
	}
	return nil
}

// CountUsers returns the number of users in the database.
func (db *DB) CountUsers(ctx context.Context) (int64, error) {
	conn, err := db.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("userdb: count users: %w", err)
	}
	defer db.pool.Put(conn)

	var count int64
	err = sqlitex.Execute(conn, "SELECT COUNT(*) FROM users", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			count = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("userdb: count users: %w", err)
	}
	return count, nil
}

func getUser(conn *sqlite.Conn, id string) (User, error) {
	var user User
	found := false
	err := sqlitex.Execute(conn, `SELECT id, email, display_name, active, remote_id, created_at, updated_at
		FROM users WHERE id = ?`, &sqlitex.ExecOptions{
		Args: []any{id},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			user = scanUser(stmt)
			found = true
			return nil
		},
	})
	if err != nil {
		return User{}, err
	}
	if !found {
		return User{}, ErrNotFound
	}
	return user, nil
}

func scanUser(stmt *sqlite.Stmt) User {
	// Columns: id(0), email(1), display_name(2), active(3),
	// remote_id(4), created_at(5), updated_at(6)
	return User{
		ID:          stmt.ColumnText(0),
		Email:       stmt.ColumnText(1),
		DisplayName: stmt.ColumnText(2),
		Active:      stmt.ColumnInt64(3) != 0,
		RemoteID:    stmt.ColumnText(4),
		CreatedAt:   time.UnixMilli(stmt.ColumnInt64(5)).UTC(),
		UpdatedAt:   time.UnixMilli(stmt.ColumnInt64(6)).UTC(),
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
