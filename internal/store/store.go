package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"media-catalog/internal/logging"
	"media-catalog/internal/metrics"
)

// Default timeout for store operations
const defaultTimeout = 5 * time.Second

// Store manages all catalog persistence. A single Store serializes writes
// from the scan workers and the watchers; it is safe for concurrent use.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex

	// In-memory file path index, loaded once at open and kept current by
	// every insert/delete. Lets the pipeline skip a store round-trip for
	// files never seen before.
	idxMu sync.RWMutex
	index map[string]struct{}
}

// Open opens (creating if needed) the catalog database at dbPath and loads
// the file path index. The parent directory must exist and be writable.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	logging.Info("Catalog database: %s", dbPath)

	// WAL mode keeps scan workers and watcher writes from tripping over
	// each other; busy_timeout avoids "database is locked" errors.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{
		db:     db,
		dbPath: dbPath,
		index:  make(map[string]struct{}),
	}

	if err := s.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := s.loadFileIndex(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after index load failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to load file index: %w", err)
	}

	logging.Info("Store initialized at %s (%d known files)", dbPath, s.IndexSize())
	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS base_path (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL UNIQUE,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE TABLE IF NOT EXISTS directory (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		parent_id INTEGER REFERENCES directory(id) ON DELETE SET NULL,
		base_path_id INTEGER NOT NULL REFERENCES base_path(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_directory_base_path ON directory(base_path_id);

	CREATE TABLE IF NOT EXISTS file (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		directory_id INTEGER NOT NULL REFERENCES directory(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		path TEXT NOT NULL UNIQUE,
		mimetype TEXT NOT NULL,
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		size INTEGER NOT NULL DEFAULT 0,
		resolution REAL NOT NULL DEFAULT 0,
		created INTEGER NOT NULL DEFAULT 0,
		modified INTEGER NOT NULL DEFAULT 0,
		sha1_hash TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		copyright TEXT NOT NULL DEFAULT '',
		keywords TEXT NOT NULL DEFAULT '',
		exif TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_file_directory ON file(directory_id);

	CREATE TABLE IF NOT EXISTS preview (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_id INTEGER NOT NULL REFERENCES file(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		size INTEGER NOT NULL,
		mimetype TEXT NOT NULL,
		data BLOB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_preview_file ON preview(file_id);

	CREATE TABLE IF NOT EXISTS keyword (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		word TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS file_keyword (
		file_id INTEGER NOT NULL REFERENCES file(id) ON DELETE CASCADE,
		keyword_id INTEGER NOT NULL REFERENCES keyword(id) ON DELETE CASCADE,
		PRIMARY KEY (file_id, keyword_id)
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Store) loadFileIndex(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, "SELECT path FROM file")
	if err != nil {
		return err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logging.Warn("failed to close file index rows: %v", err)
		}
	}()

	s.idxMu.Lock()
	defer s.idxMu.Unlock()
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return err
		}
		s.index[path] = struct{}{}
	}
	return rows.Err()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// InIndex reports whether a file path has a catalog row, without touching
// the database.
func (s *Store) InIndex(path string) bool {
	s.idxMu.RLock()
	defer s.idxMu.RUnlock()
	_, ok := s.index[path]
	return ok
}

// ListFileIndex returns a snapshot of all cataloged file paths.
func (s *Store) ListFileIndex() []string {
	s.idxMu.RLock()
	defer s.idxMu.RUnlock()
	paths := make([]string, 0, len(s.index))
	for p := range s.index {
		paths = append(paths, p)
	}
	return paths
}

// IndexSize returns the number of cataloged file paths.
func (s *Store) IndexSize() int {
	s.idxMu.RLock()
	defer s.idxMu.RUnlock()
	return len(s.index)
}

func (s *Store) indexAdd(path string) {
	s.idxMu.Lock()
	s.index[path] = struct{}{}
	s.idxMu.Unlock()
}

func (s *Store) indexRemove(paths ...string) {
	s.idxMu.Lock()
	for _, p := range paths {
		delete(s.index, p)
	}
	s.idxMu.Unlock()
}

// recordQuery records store query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.StoreQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.StoreQueryDuration.WithLabelValues(operation).Observe(duration)
}
