// Package cache persists the last-fetched catalog locally so the launcher
// can start without the catalog service being reachable.
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/felixband/bandit/bandit-lib/catalog"
)

// DB wraps a SQLite database holding the local catalog cache.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens or creates the cache database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	db := &DB{conn: conn, path: path}
	if err := db.migrate(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying database connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// migrate runs database migrations up to the current schema version.
func (db *DB) migrate() error {
	if _, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)
	`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var version int
	err := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	if version < 1 {
		if err := db.migrateV1(); err != nil {
			return err
		}
	}

	return nil
}

// migrateV1 creates the initial schema.
func (db *DB) migrateV1() error {
	schema := `
		CREATE TABLE IF NOT EXISTS catalog_entries (
			platform TEXT NOT NULL,
			game_id TEXT NOT NULL,
			display_name TEXT NOT NULL,
			size_bytes INTEGER NOT NULL,
			multiplayer TEXT NOT NULL,
			PRIMARY KEY(platform, game_id)
		);

		CREATE TABLE IF NOT EXISTS executable_paths (
			platform TEXT NOT NULL,
			game_id TEXT NOT NULL,
			rel_path TEXT NOT NULL,
			PRIMARY KEY(platform, game_id)
		);

		CREATE TABLE IF NOT EXISTS prereqs (
			id INTEGER PRIMARY KEY,
			platform TEXT NOT NULL,
			game_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			path TEXT NOT NULL,
			command TEXT NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_prereqs_game ON prereqs(platform, game_id);

		CREATE TABLE IF NOT EXISTS syncs (
			platform TEXT PRIMARY KEY,
			synced_at DATETIME NOT NULL
		);

		INSERT INTO schema_version (version) VALUES (1);
	`

	if _, err := db.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute v1 migration: %w", err)
	}

	return nil
}

// Refresh replaces the cached catalog for one platform with freshly fetched
// data, in a single transaction.
func (db *DB) Refresh(ctx context.Context, platform catalog.Platform, entries []catalog.Entry, execPaths map[string]string, prereqs map[string][]catalog.Prereq) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("refresh cache: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"catalog_entries", "executable_paths", "prereqs"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE platform = ?", platform); err != nil {
			return fmt.Errorf("refresh cache: %w", err)
		}
	}

	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO catalog_entries (platform, game_id, display_name, size_bytes, multiplayer)
			VALUES (?, ?, ?, ?, ?)
		`, platform, e.GameID, e.DisplayName, int64(e.SizeBytes), string(e.Multiplayer)); err != nil {
			return fmt.Errorf("refresh cache: %w", err)
		}
	}

	for gameID, relPath := range execPaths {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO executable_paths (platform, game_id, rel_path) VALUES (?, ?, ?)
		`, platform, gameID, relPath); err != nil {
			return fmt.Errorf("refresh cache: %w", err)
		}
	}

	for gameID, list := range prereqs {
		for seq, p := range list {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO prereqs (platform, game_id, seq, path, command) VALUES (?, ?, ?, ?, ?)
			`, platform, gameID, seq, p.Path, p.Command); err != nil {
				return fmt.Errorf("refresh cache: %w", err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO syncs (platform, synced_at) VALUES (?, ?)
		ON CONFLICT(platform) DO UPDATE SET synced_at = excluded.synced_at
	`, platform, time.Now().UTC()); err != nil {
		return fmt.Errorf("refresh cache: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("refresh cache: %w", err)
	}
	return nil
}

// Entries returns the cached catalog for one platform, sorted by display
// name.
func (db *DB) Entries(ctx context.Context, platform catalog.Platform) ([]catalog.Entry, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT game_id, display_name, size_bytes, multiplayer
		FROM catalog_entries WHERE platform = ?
	`, platform)
	if err != nil {
		return nil, fmt.Errorf("read cached catalog: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []catalog.Entry
	for rows.Next() {
		var e catalog.Entry
		var size int64
		var multiplayer string
		if err := rows.Scan(&e.GameID, &e.DisplayName, &size, &multiplayer); err != nil {
			return nil, fmt.Errorf("read cached catalog: %w", err)
		}
		e.SizeBytes = uint64(size)
		e.Multiplayer = catalog.Multiplayer(multiplayer)
		e.Platform = platform
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read cached catalog: %w", err)
	}

	catalog.SortEntries(entries)
	return entries, nil
}

// ExecutablePath returns the cached relative executable path for a title.
func (db *DB) ExecutablePath(ctx context.Context, platform catalog.Platform, gameID string) (string, error) {
	var relPath string
	err := db.conn.QueryRowContext(ctx, `
		SELECT rel_path FROM executable_paths WHERE platform = ? AND game_id = ?
	`, platform, gameID).Scan(&relPath)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: %s", catalog.ErrNotFound, gameID)
	}
	if err != nil {
		return "", fmt.Errorf("read cached executable path: %w", err)
	}
	return relPath, nil
}

// Prereqs returns the cached prerequisite installers for a title, in order.
func (db *DB) Prereqs(ctx context.Context, platform catalog.Platform, gameID string) ([]catalog.Prereq, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT path, command FROM prereqs
		WHERE platform = ? AND game_id = ? ORDER BY seq
	`, platform, gameID)
	if err != nil {
		return nil, fmt.Errorf("read cached prerequisites: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var prereqs []catalog.Prereq
	for rows.Next() {
		var p catalog.Prereq
		if err := rows.Scan(&p.Path, &p.Command); err != nil {
			return nil, fmt.Errorf("read cached prerequisites: %w", err)
		}
		prereqs = append(prereqs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read cached prerequisites: %w", err)
	}
	return prereqs, nil
}

// LastSync returns when the platform's catalog was last refreshed, or the
// zero time if it never was.
func (db *DB) LastSync(ctx context.Context, platform catalog.Platform) (time.Time, error) {
	var syncedAt time.Time
	err := db.conn.QueryRowContext(ctx, `
		SELECT synced_at FROM syncs WHERE platform = ?
	`, platform).Scan(&syncedAt)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read sync time: %w", err)
	}
	return syncedAt, nil
}
