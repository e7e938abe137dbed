// Package kv provides the durable key-value store backing the offline cache.
//
// Values are JSON-serialized strings in a single SQLite table, opened in
// embedded mode with WAL for concurrent access. The store has no knowledge
// of mutation or cache semantics; it is a plain crash-safe key/value surface
// that the cache and queue layers build on.
//
// Storage layout:
//   - Database file: ~/.grocer/grocer.db (configurable)
//   - Table: kv(key TEXT PRIMARY KEY, value TEXT)
//
// Failure policy: a value that fails to serialize on write leaves the
// previously stored value untouched; a value that fails to parse on read is
// treated as absent. Neither case panics or propagates a decoding error to
// callers.
package kv

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store wraps the SQLite connection holding all durable app state.
type Store struct {
	conn   *sql.DB
	path   string
	logger *log.Logger
}

// Open creates or opens the key-value database at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent reads.
// If it doesn't exist it is created along with the schema. Pass ":memory:"
// for an ephemeral store (used by tests).
//
// The caller MUST call Close() when done.
//
// Example:
//
//	store, err := kv.Open(filepath.Join(home, ".grocer", "grocer.db"), nil)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func Open(path string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[kv] ", log.LstdFlags)
	}

	connStr := path
	if path != ":memory:" {
		// Ensure parent directory exists
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		connStr = fmt.Sprintf("file:%s", path)
	}

	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{
		conn:   conn,
		path:   path,
		logger: logger,
	}

	// Enable WAL mode for concurrent reads
	if _, err := s.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := s.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// initSchema creates the kv table if it doesn't exist. Idempotent.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := s.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if s.path != ":memory:" {
		if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			s.logger.Printf("Warning: failed to checkpoint WAL: %v", err)
		}
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// Set JSON-serializes value and stores it under key, replacing any previous
// value. If serialization fails, the previously stored value is untouched
// and the error is logged and returned.
func (s *Store) Set(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Printf("Warning: failed to serialize value for %q: %v", key, err)
		return fmt.Errorf("failed to serialize value for %q: %w", key, err)
	}

	query := `
	INSERT INTO kv (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`
	if _, err := s.conn.Exec(query, key, string(data)); err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	return nil
}

// Get reads the value stored under key into dest (a pointer).
//
// Returns false if the key is absent. A stored value that fails to parse is
// treated as absent and reported as a miss, never as an error.
func (s *Store) Get(key string, dest any) (bool, error) {
	var raw string
	err := s.conn.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %q: %w", key, err)
	}

	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		// Corrupt entry: treat as absent rather than failing the caller.
		s.logger.Printf("Warning: failed to parse value for %q, treating as absent: %v", key, err)
		return false, nil
	}
	return true, nil
}

// Remove deletes the value stored under key.
// Returns nil if the key doesn't exist (idempotent).
func (s *Store) Remove(key string) error {
	if _, err := s.conn.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to remove %q: %w", key, err)
	}
	return nil
}

// Contains reports whether a value is stored under key.
func (s *Store) Contains(key string) (bool, error) {
	var one int
	err := s.conn.QueryRow(`SELECT 1 FROM kv WHERE key = ?`, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check %q: %w", key, err)
	}
	return true, nil
}
