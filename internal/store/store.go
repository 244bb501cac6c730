// Package store provides the engine's durable, transactional view of
// accounts, tokens, pairs, balances, streams and swaps: a relational
// projection of the state machine described by the kernel packages, backed
// by a single SQLite file with a single writer.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the engine's persistent state. It owns exactly one writer
// connection; SQLite does not support concurrent writers, and the engine's
// own concurrency model (one action at a time, see dispatch.Dispatcher)
// never needs more than one.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// Config holds store configuration.
type Config struct {
	DataDir string
}

// New opens (creating if necessary) the engine's SQLite database under
// cfg.DataDir and bootstraps its schema.
func New(cfg *Config) (*Store, error) {
	dataDir := expandPath(cfg.DataDir)

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "streamdex.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, dbPath: dbPath}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB, for components that need it directly.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Begin starts a new top-level transaction. The dispatcher wraps exactly one
// of these around each advance action; everything inside either commits
// together or rolls back together.
func (s *Store) Begin() (*Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Tx{tx: sqlTx}, nil
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
