package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// FindBasePath returns the base path record for an absolute path, or nil if
// none exists.
func (s *Store) FindBasePath(ctx context.Context, path string) (*BasePath, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("find_base_path", start, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	bp := &BasePath{}
	err = s.db.QueryRowContext(ctx, "SELECT id, path FROM base_path WHERE path = ?", path).
		Scan(&bp.ID, &bp.Path)
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return bp, nil
}

// InsertBasePath persists a new base path and returns its id.
func (s *Store) InsertBasePath(ctx context.Context, path string) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("insert_base_path", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var res sql.Result
	res, err = s.db.ExecContext(ctx, "INSERT INTO base_path (path) VALUES (?)", path)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// DeleteBasePath removes a base path and, through the schema cascade, all of
// its directories, files and previews. The file index is pruned to match.
func (s *Store) DeleteBasePath(ctx context.Context, path string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_base_path", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var orphaned []string
	orphaned, err = s.filePaths(ctx, `
		SELECT f.path FROM file f
		JOIN directory d ON d.id = f.directory_id
		JOIN base_path b ON b.id = d.base_path_id
		WHERE b.path = ?`, path)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, "DELETE FROM base_path WHERE path = ?", path)
	if err != nil {
		return err
	}

	s.indexRemove(orphaned...)
	return nil
}

// ListBasePaths returns all persisted base paths.
func (s *Store) ListBasePaths(ctx context.Context) ([]BasePath, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_base_paths", start, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var rows *sql.Rows
	rows, err = s.db.QueryContext(ctx, "SELECT id, path FROM base_path ORDER BY path")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []BasePath
	for rows.Next() {
		var bp BasePath
		if err = rows.Scan(&bp.ID, &bp.Path); err != nil {
			return nil, err
		}
		paths = append(paths, bp)
	}
	err = rows.Err()
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// filePaths runs a single-column path query and collects the results.
// Callers hold s.mu.
func (s *Store) filePaths(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}
