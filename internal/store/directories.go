package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// FindDirectory returns the directory record for an absolute path, or nil if
// none exists.
func (s *Store) FindDirectory(ctx context.Context, path string) (*Directory, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("find_directory", start, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	d := &Directory{}
	var parent sql.NullInt64
	err = s.db.QueryRowContext(ctx,
		"SELECT id, path, name, parent_id, base_path_id FROM directory WHERE path = ?", path).
		Scan(&d.ID, &d.Path, &d.Name, &parent, &d.BasePathID)
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if parent.Valid {
		d.ParentID = parent.Int64
	}
	return d, nil
}

// InsertDirectory persists a new directory record and returns its id.
// A zero ParentID is stored as NULL (base path root).
func (s *Store) InsertDirectory(ctx context.Context, d *Directory) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("insert_directory", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var parent interface{}
	if d.ParentID != 0 {
		parent = d.ParentID
	}

	var res sql.Result
	res, err = s.db.ExecContext(ctx,
		"INSERT INTO directory (path, name, parent_id, base_path_id) VALUES (?, ?, ?, ?)",
		d.Path, d.Name, parent, d.BasePathID)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// DeleteDirectory removes a directory record and, through the schema
// cascade, its files and previews. Child directory records keep their rows
// with a NULLed parent; reconciliation removes them explicitly when their
// backing directories are gone too.
func (s *Store) DeleteDirectory(ctx context.Context, id int64) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_directory", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var orphaned []string
	orphaned, err = s.filePaths(ctx, "SELECT path FROM file WHERE directory_id = ?", id)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, "DELETE FROM directory WHERE id = ?", id)
	if err != nil {
		return err
	}

	s.indexRemove(orphaned...)
	return nil
}

// ListDirectories returns all directory records for one base path, deepest
// paths last.
func (s *Store) ListDirectories(ctx context.Context, basePathID int64) ([]Directory, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_directories", start, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var rows *sql.Rows
	rows, err = s.db.QueryContext(ctx,
		"SELECT id, path, name, parent_id, base_path_id FROM directory WHERE base_path_id = ? ORDER BY path",
		basePathID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dirs []Directory
	for rows.Next() {
		var d Directory
		var parent sql.NullInt64
		if err = rows.Scan(&d.ID, &d.Path, &d.Name, &parent, &d.BasePathID); err != nil {
			return nil, err
		}
		if parent.Valid {
			d.ParentID = parent.Int64
		}
		dirs = append(dirs, d)
	}
	err = rows.Err()
	if err != nil {
		return nil, err
	}
	return dirs, nil
}
