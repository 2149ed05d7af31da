// Package processor turns discovered files into catalog entries. One
// Process call handles one file end to end: change detection, decoding,
// content hashing, preview generation and persistence.
package processor

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"media-catalog/internal/codec"
	"media-catalog/internal/logging"
	"media-catalog/internal/mediatypes"
	"media-catalog/internal/preview"
	"media-catalog/internal/store"
)

// WorkItem is one file queued for processing: the file, its classification
// rule and the catalog directory it belongs to.
type WorkItem struct {
	Path        string
	Size        int64
	ModTime     time.Time
	Rule        *mediatypes.Rule
	DirectoryID int64
}

// Processor drives per-file catalog updates. Safe for concurrent use; the
// store serializes writes internally.
type Processor struct {
	store *store.Store
	gen   *preview.Generator
	dec   codec.Decoder
}

// New builds a Processor over the given collaborators.
func New(st *store.Store, gen *preview.Generator, dec codec.Decoder) *Processor {
	return &Processor{store: st, gen: gen, dec: dec}
}

// Process catalogs one file. A file already cataloged with an unchanged
// modification timestamp is skipped without touching the codec. On any
// detected change the hash, metadata and previews are all regenerated.
// Returns whether the codec was invoked (the file was new or changed).
func (p *Processor) Process(ctx context.Context, item WorkItem) (bool, error) {
	var existing *store.MediaFile

	// The in-memory index makes the never-seen case free.
	if p.store.InIndex(item.Path) {
		var err error
		existing, err = p.store.FindMediaFileByPath(ctx, item.Path)
		if err != nil {
			return false, fmt.Errorf("lookup %s: %w", item.Path, err)
		}
	}

	if existing != nil && existing.Modified.Unix() == item.ModTime.Unix() {
		logging.Debug("Unchanged, skipping %s", item.Path)
		return false, nil
	}

	f, err := p.extract(ctx, item)
	if err != nil {
		return true, err
	}

	if existing != nil {
		f.ID = existing.ID
		f.Created = existing.Created
		if err := p.store.UpdateMediaFile(ctx, f); err != nil {
			return true, fmt.Errorf("update %s: %w", item.Path, err)
		}
		logging.Debug("Updated %s (%dx%d, %d previews)", item.Path, f.Width, f.Height, len(f.Previews))
		return true, nil
	}

	if _, err := p.store.InsertMediaFile(ctx, f); err != nil {
		return true, fmt.Errorf("insert %s: %w", item.Path, err)
	}
	logging.Debug("Cataloged %s (%dx%d, %d previews)", item.Path, f.Width, f.Height, len(f.Previews))
	return true, nil
}

// extract decodes the file, hashes its content and renders previews,
// producing a fully populated record ready to persist.
func (p *Processor) extract(ctx context.Context, item WorkItem) (*store.MediaFile, error) {
	d, err := p.decode(ctx, item)
	if err != nil {
		return nil, err
	}

	hash, err := hashFile(item.Path)
	if err != nil {
		return nil, fmt.Errorf("hash %s: %w", item.Path, err)
	}

	previews, err := p.gen.Generate(d.Image, item.Rule.Mimetype)
	if err != nil {
		return nil, fmt.Errorf("previews for %s: %w", item.Path, err)
	}

	return &store.MediaFile{
		DirectoryID: item.DirectoryID,
		Name:        filepath.Base(item.Path),
		Path:        item.Path,
		Mimetype:    item.Rule.Mimetype,
		Width:       d.Width,
		Height:      d.Height,
		Size:        item.Size,
		Resolution:  d.Resolution,
		Created:     item.ModTime,
		Modified:    item.ModTime,
		SHA1Hash:    hash,
		Title:       d.Title,
		Description: d.Description,
		Copyright:   d.Copyright,
		Keywords:    d.Keywords,
		Exif:        d.Exif,
		Previews:    previews,
	}, nil
}

func (p *Processor) decode(ctx context.Context, item WorkItem) (*codec.Decoded, error) {
	switch item.Rule.Kind {
	case mediatypes.KindRaster:
		return p.dec.DecodeRaster(ctx, item.Path)
	case mediatypes.KindVector:
		return p.dec.DecodeVector(ctx, item.Path)
	case mediatypes.KindDocument:
		return p.dec.DecodeFirstPage(ctx, item.Path)
	}
	return nil, fmt.Errorf("no decoder for media kind %q", item.Rule.Kind)
}

// Rename moves a cataloged file to a new path, keeping its catalog id.
// The file is fully reprocessed at its new location. An unknown old path is
// logged and ignored; a rename can outrun the initial catalog insert.
func (p *Processor) Rename(ctx context.Context, oldPath, newPath string, rule *mediatypes.Rule) error {
	existing, err := p.store.FindMediaFileByPath(ctx, oldPath)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", oldPath, err)
	}
	if existing == nil {
		logging.Info("Rename of uncataloged file %s, ignoring", oldPath)
		return nil
	}

	info, err := os.Stat(newPath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", newPath, err)
	}

	item := WorkItem{
		Path:        newPath,
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		Rule:        rule,
		DirectoryID: existing.DirectoryID,
	}
	// A rename across directories lands in the new parent's record when one
	// exists; otherwise the file stays under its old directory until the
	// next full pass reconciles it.
	if dir, err := p.store.FindDirectory(ctx, filepath.Dir(newPath)); err == nil && dir != nil {
		item.DirectoryID = dir.ID
	}

	f, err := p.extract(ctx, item)
	if err != nil {
		return err
	}
	f.ID = existing.ID
	f.Created = existing.Created

	if err := p.store.UpdateMediaFile(ctx, f); err != nil {
		return fmt.Errorf("update %s: %w", newPath, err)
	}
	logging.Info("Renamed %s -> %s", oldPath, newPath)
	return nil
}

func hashFile(path string) (string, error) {
	fh, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer fh.Close()

	h := sha1.New()
	if _, err := io.Copy(h, fh); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
