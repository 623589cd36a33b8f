// Package store provides the persistent key-value store used for
// service credentials and the local scrobble log, backed by SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested key has no stored value.
var ErrNotFound = errors.New("store: not found")

// Store is a SQLite-backed store for credentials and scrobble history.
type Store struct {
	db *sql.DB
}

// LogEntry is one recorded scrobble dispatch.
type LogEntry struct {
	ID             int64
	Artist         string
	Track          string
	Album          string
	Timestamp      time.Time
	ServicesOK     []string
	ServicesFailed []string
}

// Open opens (or creates) the store at the given path.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection keeps in-memory databases consistent and is
	// plenty for this workload.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA journal_mode = WAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS credentials (
			service TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
			PRIMARY KEY (service, key)
		);

		CREATE TABLE IF NOT EXISTS scrobble_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			artist TEXT NOT NULL,
			track TEXT NOT NULL,
			album TEXT,
			timestamp INTEGER NOT NULL,
			services_ok TEXT NOT NULL DEFAULT '',
			services_failed TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);

		CREATE INDEX IF NOT EXISTS idx_log_timestamp ON scrobble_log(timestamp);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Get returns the stored value for a service-scoped key.
// Returns ErrNotFound when the key has never been set.
func (s *Store) Get(ctx context.Context, service, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM credentials WHERE service = ? AND key = ?",
		service, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read credential: %w", err)
	}
	return value, nil
}

// Set stores a service-scoped key/value pair, replacing any existing value.
func (s *Store) Set(ctx context.Context, service, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (service, key, value, updated_at)
		VALUES (?, ?, ?, strftime('%s', 'now'))
		ON CONFLICT (service, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, service, key, value)
	if err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

// Delete removes all stored keys for a service. Used on sign-out.
func (s *Store) Delete(ctx context.Context, service string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM credentials WHERE service = ?", service)
	if err != nil {
		return fmt.Errorf("failed to delete credentials: %w", err)
	}
	return nil
}

// AppendLog records a scrobble dispatch and its per-service outcome.
func (s *Store) AppendLog(ctx context.Context, entry LogEntry) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO scrobble_log (artist, track, album, timestamp, services_ok, services_failed)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		entry.Artist,
		entry.Track,
		entry.Album,
		entry.Timestamp.Unix(),
		strings.Join(entry.ServicesOK, ","),
		strings.Join(entry.ServicesFailed, ","),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert log entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get insert id: %w", err)
	}
	return id, nil
}

// RecentLog returns the most recent scrobble log entries, newest first.
func (s *Store) RecentLog(ctx context.Context, limit int) ([]LogEntry, error) {
	query := `
		SELECT id, artist, track, album, timestamp, services_ok, services_failed
		FROM scrobble_log
		ORDER BY timestamp DESC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query scrobble log: %w", err)
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var e LogEntry
		var ts int64
		var ok, failed string

		if err := rows.Scan(&e.ID, &e.Artist, &e.Track, &e.Album, &ts, &ok, &failed); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}

		e.Timestamp = time.Unix(ts, 0)
		e.ServicesOK = splitList(ok)
		e.ServicesFailed = splitList(failed)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating log entries: %w", err)
	}
	return entries, nil
}

// LastScrobbled returns the most recent log entry with at least one
// succeeded service, or nil when nothing has been scrobbled yet.
func (s *Store) LastScrobbled(ctx context.Context) (*LogEntry, error) {
	entries, err := s.RecentLog(ctx, 0)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if len(entries[i].ServicesOK) > 0 {
			return &entries[i], nil
		}
	}
	return nil, nil
}

// Cleanup removes log entries older than maxAge to prevent unbounded
// growth. Returns the number of deleted rows.
func (s *Store) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).Unix()

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM scrobble_log WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup scrobble log: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
