package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// FindMediaFileByPath returns the catalog entry for an absolute path, or nil
// if the file has never been cataloged. Preview blobs are not loaded.
func (s *Store) FindMediaFileByPath(ctx context.Context, path string) (*MediaFile, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("find_file", start, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	f := &MediaFile{}
	var created, modified int64
	err = s.db.QueryRowContext(ctx, `
		SELECT id, directory_id, name, path, mimetype, width, height, size,
		       resolution, created, modified, sha1_hash, title, description,
		       copyright, keywords, exif
		FROM file WHERE path = ?`, path).
		Scan(&f.ID, &f.DirectoryID, &f.Name, &f.Path, &f.Mimetype, &f.Width,
			&f.Height, &f.Size, &f.Resolution, &created, &modified,
			&f.SHA1Hash, &f.Title, &f.Description, &f.Copyright,
			&f.Keywords, &f.Exif)
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	f.Created = time.Unix(created, 0)
	f.Modified = time.Unix(modified, 0)
	return f, nil
}

// InsertMediaFile persists a new catalog entry together with its previews
// and keyword links in one transaction, and returns the new id.
func (s *Store) InsertMediaFile(ctx context.Context, f *MediaFile) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("insert_file", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}

	var id int64
	id, err = s.insertFileTx(ctx, tx, f)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return 0, errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}

	f.ID = id
	s.indexAdd(f.Path)
	return id, nil
}

func (s *Store) insertFileTx(ctx context.Context, tx *sql.Tx, f *MediaFile) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO file (directory_id, name, path, mimetype, width, height,
		                  size, resolution, created, modified, sha1_hash,
		                  title, description, copyright, keywords, exif)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.DirectoryID, f.Name, f.Path, f.Mimetype, f.Width, f.Height,
		f.Size, f.Resolution, f.Created.Unix(), f.Modified.Unix(),
		f.SHA1Hash, f.Title, f.Description, f.Copyright, f.Keywords, f.Exif)
	if err != nil {
		return 0, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if err := insertPreviewsTx(ctx, tx, id, f.Previews); err != nil {
		return 0, err
	}
	if err := linkKeywordsTx(ctx, tx, id, f.Keywords); err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateMediaFile rewrites a catalog entry in place: all mutable fields are
// replaced, prior previews are deleted before the new ones are inserted, and
// keyword links are rebuilt. The entry keeps its id.
func (s *Store) UpdateMediaFile(ctx context.Context, f *MediaFile) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("update_file", start, err) }()

	if f.ID == 0 {
		return fmt.Errorf("cannot update unsaved file %s", f.Path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// A rename changes the path; keep the in-memory index consistent.
	var oldPath string
	err = s.db.QueryRowContext(ctx, "SELECT path FROM file WHERE id = ?", f.ID).Scan(&oldPath)
	if err != nil {
		return err
	}

	var tx *sql.Tx
	tx, err = s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	err = s.updateFileTx(ctx, tx, f)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return err
	}

	if err = tx.Commit(); err != nil {
		return err
	}

	if oldPath != f.Path {
		s.indexRemove(oldPath)
	}
	s.indexAdd(f.Path)
	return nil
}

func (s *Store) updateFileTx(ctx context.Context, tx *sql.Tx, f *MediaFile) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE file SET directory_id = ?, name = ?, path = ?, mimetype = ?,
		       width = ?, height = ?, size = ?, resolution = ?, created = ?,
		       modified = ?, sha1_hash = ?, title = ?, description = ?,
		       copyright = ?, keywords = ?, exif = ?
		WHERE id = ?`,
		f.DirectoryID, f.Name, f.Path, f.Mimetype, f.Width, f.Height,
		f.Size, f.Resolution, f.Created.Unix(), f.Modified.Unix(),
		f.SHA1Hash, f.Title, f.Description, f.Copyright, f.Keywords,
		f.Exif, f.ID)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM preview WHERE file_id = ?", f.ID); err != nil {
		return err
	}
	if err := insertPreviewsTx(ctx, tx, f.ID, f.Previews); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM file_keyword WHERE file_id = ?", f.ID); err != nil {
		return err
	}
	return linkKeywordsTx(ctx, tx, f.ID, f.Keywords)
}

// DeleteMediaFile removes the catalog entry for a path; its previews and
// keyword links go with it. Deleting an unknown path is not an error.
func (s *Store) DeleteMediaFile(ctx context.Context, path string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_file", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = s.db.ExecContext(ctx, "DELETE FROM file WHERE path = ?", path)
	if err != nil {
		return err
	}

	s.indexRemove(path)
	return nil
}

// ListPreviews returns the previews for a file, largest first.
func (s *Store) ListPreviews(ctx context.Context, fileID int64) ([]Preview, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_previews", start, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var rows *sql.Rows
	rows, err = s.db.QueryContext(ctx, `
		SELECT id, file_id, name, width, height, size, mimetype, data
		FROM preview WHERE file_id = ? ORDER BY width * height DESC`, fileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var previews []Preview
	for rows.Next() {
		var p Preview
		if err = rows.Scan(&p.ID, &p.FileID, &p.Name, &p.Width, &p.Height,
			&p.Size, &p.Mimetype, &p.Data); err != nil {
			return nil, err
		}
		previews = append(previews, p)
	}
	err = rows.Err()
	if err != nil {
		return nil, err
	}
	return previews, nil
}

// ListKeywords returns the distinct keywords linked to a file.
func (s *Store) ListKeywords(ctx context.Context, fileID int64) ([]string, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_keywords", start, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var words []string
	words, err = s.filePaths(ctx, `
		SELECT k.word FROM keyword k
		JOIN file_keyword fk ON fk.keyword_id = k.id
		WHERE fk.file_id = ? ORDER BY k.word`, fileID)
	return words, err
}

func insertPreviewsTx(ctx context.Context, tx *sql.Tx, fileID int64, previews []Preview) error {
	for i := range previews {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO preview (file_id, name, width, height, size, mimetype, data)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			fileID, previews[i].Name, previews[i].Width, previews[i].Height,
			previews[i].Size, previews[i].Mimetype, previews[i].Data)
		if err != nil {
			return err
		}
		if id, err := res.LastInsertId(); err == nil {
			previews[i].ID = id
		}
		previews[i].FileID = fileID
	}
	return nil
}

// linkKeywordsTx splits a comma-separated keyword string, lowercases and
// deduplicates the words, and links them to the file.
func linkKeywordsTx(ctx context.Context, tx *sql.Tx, fileID int64, keywords string) error {
	seen := make(map[string]struct{})
	for _, word := range strings.Split(keywords, ",") {
		word = strings.ToLower(strings.TrimSpace(word))
		if word == "" {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO keyword (word) VALUES (?) ON CONFLICT(word) DO NOTHING", word); err != nil {
			return err
		}

		var keywordID int64
		if err := tx.QueryRowContext(ctx,
			"SELECT id FROM keyword WHERE word = ?", word).Scan(&keywordID); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO file_keyword (file_id, keyword_id) VALUES (?, ?) ON CONFLICT DO NOTHING",
			fileID, keywordID); err != nil {
			return err
		}
	}
	return nil
}
