package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// Database is the SQLite backed Store
type Database struct {
	db    *sql.DB
	mutex sync.RWMutex
	log   *logrus.Logger
}

var _ Store = (*Database)(nil)

// NewDatabase creates a new SQLite database connection
func NewDatabase(dbPath string, log *logrus.Logger) (*Database, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// sqlite serializes writers anyway; one connection also keeps :memory: databases shared
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	database := &Database{
		db:  db,
		log: log,
	}

	if err := database.initTables(); err != nil {
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	log.WithField("path", dbPath).Debug("SQLite store ready")
	return database, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.db.Close()
}

// initTables creates the necessary tables if they don't exist
func (d *Database) initTables() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	query := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		key TEXT NOT NULL,
		value TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_entries_key ON entries(key, id DESC);
	CREATE TABLE IF NOT EXISTS members (
		key TEXT NOT NULL,
		member TEXT NOT NULL,
		added_at TEXT NOT NULL,
		PRIMARY KEY (key, member)
	);
	`

	_, err := d.db.Exec(query)
	return err
}

// Get decodes the value at key into dest
func (d *Database) Get(ctx context.Context, key string, dest any) (bool, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	var value string
	err := d.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s: %w", key, err)
	}

	if err := json.Unmarshal([]byte(value), dest); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// Set stores value at key, replacing any previous value
func (d *Database) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	query := `
	INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := d.db.ExecContext(ctx, query, key, string(data), now()); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Delete removes everything stored under the keys
func (d *Database) Delete(ctx context.Context, keys ...string) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete: %w", err)
	}
	defer tx.Rollback()

	for _, key := range keys {
		for _, table := range []string{"kv", "entries", "members"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE key = ?", key); err != nil {
				return fmt.Errorf("failed to delete %s from %s: %w", key, table, err)
			}
		}
	}

	return tx.Commit()
}

// Incr atomically increments the integer at key, starting from zero
func (d *Database) Incr(ctx context.Context, key string) (int64, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin incr: %w", err)
	}
	defer tx.Rollback()

	var current int64
	var value string
	err = tx.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return 0, fmt.Errorf("failed to read %s: %w", key, err)
	default:
		current, err = strconv.ParseInt(value, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("value at %s is not an integer: %w", key, err)
		}
	}

	next := current + 1
	query := `
	INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := tx.ExecContext(ctx, query, key, strconv.FormatInt(next, 10), now()); err != nil {
		return 0, fmt.Errorf("failed to incr %s: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit incr %s: %w", key, err)
	}
	return next, nil
}

// Push prepends value to the list at key and evicts everything past limit
func (d *Database) Push(ctx context.Context, key string, value any, limit int) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode entry for %s: %w", key, err)
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin push: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "INSERT INTO entries (key, value) VALUES (?, ?)", key, string(data)); err != nil {
		return fmt.Errorf("failed to push to %s: %w", key, err)
	}

	if limit > 0 {
		query := `
		DELETE FROM entries
		WHERE key = ? AND id NOT IN (
			SELECT id FROM entries WHERE key = ? ORDER BY id DESC LIMIT ?
		)
		`
		if _, err := tx.ExecContext(ctx, query, key, key, limit); err != nil {
			return fmt.Errorf("failed to trim %s: %w", key, err)
		}
	}

	return tx.Commit()
}

// List returns list entries newest first
func (d *Database) List(ctx context.Context, key string, limit int) ([]json.RawMessage, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}

	rows, err := d.db.QueryContext(ctx, "SELECT value FROM entries WHERE key = ? ORDER BY id DESC LIMIT ?", key, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", key, err)
	}
	defer rows.Close()

	entries := make([]json.RawMessage, 0)
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, json.RawMessage(value))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return entries, nil
}

// AddMember adds member to the set at key; adding twice is a no-op
func (d *Database) AddMember(ctx context.Context, key, member string) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	_, err := d.db.ExecContext(ctx, "INSERT OR IGNORE INTO members (key, member, added_at) VALUES (?, ?, ?)", key, member, now())
	if err != nil {
		return fmt.Errorf("failed to add member to %s: %w", key, err)
	}
	return nil
}

// IsMember reports whether member is in the set at key
func (d *Database) IsMember(ctx context.Context, key, member string) (bool, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	var count int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM members WHERE key = ? AND member = ?", key, member).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check member of %s: %w", key, err)
	}
	return count > 0, nil
}

// CountMembers returns the size of the set at key
func (d *Database) CountMembers(ctx context.Context, key string) (int, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	var count int
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM members WHERE key = ?", key).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count members of %s: %w", key, err)
	}
	return count, nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
