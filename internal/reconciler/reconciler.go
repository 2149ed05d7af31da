// Package reconciler synchronizes catalog records against filesystem truth:
// base path lifecycle, the directory tree, and pruning of records whose
// backing paths are gone.
package reconciler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"media-catalog/internal/crawler"
	"media-catalog/internal/logging"
	"media-catalog/internal/processor"
	"media-catalog/internal/store"
)

// Reconciler compares crawl results with the store for one configuration.
type Reconciler struct {
	store      *store.Store
	configured []string
}

// New builds a Reconciler for the configured base paths.
func New(st *store.Store, configured []string) *Reconciler {
	return &Reconciler{store: st, configured: configured}
}

// SyncBasePaths brings the persisted base path set in line with
// configuration: newly configured paths are inserted, paths no longer
// configured are deleted with everything under them. Returns the active
// base path records.
func (r *Reconciler) SyncBasePaths(ctx context.Context) ([]store.BasePath, error) {
	persisted, err := r.store.ListBasePaths(ctx)
	if err != nil {
		return nil, fmt.Errorf("list base paths: %w", err)
	}

	wanted := make(map[string]bool, len(r.configured))
	for _, p := range r.configured {
		wanted[p] = true
	}

	for _, bp := range persisted {
		if !wanted[bp.Path] {
			logging.Info("Base path %s no longer configured, removing from catalog", bp.Path)
			if err := r.store.DeleteBasePath(ctx, bp.Path); err != nil {
				return nil, fmt.Errorf("delete base path %s: %w", bp.Path, err)
			}
		}
	}

	var active []store.BasePath
	for _, p := range r.configured {
		bp, err := r.store.FindBasePath(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("find base path %s: %w", p, err)
		}
		if bp == nil {
			id, err := r.store.InsertBasePath(ctx, p)
			if err != nil {
				return nil, fmt.Errorf("insert base path %s: %w", p, err)
			}
			bp = &store.BasePath{ID: id, Path: p}
			logging.Info("New base path %s", p)
		}
		active = append(active, *bp)
	}
	return active, nil
}

// Reconcile aligns directory records for one base path with a crawl result
// and returns the work items for its files. Missing directories are created
// top-down so every record's parent already exists; stale records are
// pruned afterwards.
func (r *Reconciler) Reconcile(ctx context.Context, bp store.BasePath, crawled *crawler.Result) ([]processor.WorkItem, error) {
	persisted, err := r.store.ListDirectories(ctx, bp.ID)
	if err != nil {
		return nil, fmt.Errorf("list directories for %s: %w", bp.Path, err)
	}

	byPath := make(map[string]store.Directory, len(persisted))
	for _, d := range persisted {
		byPath[d.Path] = d
	}

	for _, dirPath := range crawled.Directories {
		if _, ok := byPath[dirPath]; ok {
			continue
		}
		d := store.Directory{
			Path:       dirPath,
			Name:       filepath.Base(dirPath),
			BasePathID: bp.ID,
		}
		// Crawl order guarantees the filesystem parent was visited first;
		// a missing parent record means this is the base path root.
		if parent, ok := byPath[filepath.Dir(dirPath)]; ok {
			d.ParentID = parent.ID
		}
		id, err := r.store.InsertDirectory(ctx, &d)
		if err != nil {
			return nil, fmt.Errorf("insert directory %s: %w", dirPath, err)
		}
		d.ID = id
		byPath[dirPath] = d
		logging.Debug("New directory %s", dirPath)
	}

	if err := r.pruneDirectories(ctx, persisted); err != nil {
		return nil, err
	}
	if err := r.pruneFiles(ctx, bp, crawled); err != nil {
		return nil, err
	}

	items := make([]processor.WorkItem, 0, len(crawled.Files))
	for _, f := range crawled.Files {
		dir, ok := byPath[filepath.Dir(f.Path)]
		if !ok {
			logging.Warn("No directory record for %s, skipping", f.Path)
			continue
		}
		items = append(items, processor.WorkItem{
			Path:        f.Path,
			Size:        f.Size,
			ModTime:     f.ModTime,
			Rule:        f.Rule,
			DirectoryID: dir.ID,
		})
	}
	return items, nil
}

// pruneDirectories deletes records whose backing directory is gone from
// disk or no longer falls under any configured base path. Deepest paths go
// first so parents are still intact while their children are removed.
func (r *Reconciler) pruneDirectories(ctx context.Context, persisted []store.Directory) error {
	for i := len(persisted) - 1; i >= 0; i-- {
		d := persisted[i]

		if r.underConfigured(d.Path) {
			if info, err := os.Stat(d.Path); err == nil && info.IsDir() {
				continue
			}
		}

		logging.Info("Directory %s gone, removing from catalog", d.Path)
		if err := r.store.DeleteDirectory(ctx, d.ID); err != nil {
			return fmt.Errorf("delete directory %s: %w", d.Path, err)
		}
	}
	return nil
}

// pruneFiles deletes catalog entries under one base path whose backing file
// was not seen by the crawl and is confirmed gone from disk. The stat check
// keeps files inside unreadable directories cataloged rather than dropped.
func (r *Reconciler) pruneFiles(ctx context.Context, bp store.BasePath, crawled *crawler.Result) error {
	seen := make(map[string]bool, len(crawled.Files))
	for _, f := range crawled.Files {
		seen[f.Path] = true
	}

	prefix := bp.Path + string(filepath.Separator)
	for _, path := range r.store.ListFileIndex() {
		if !strings.HasPrefix(path, prefix) || seen[path] {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			continue
		}
		logging.Info("File %s gone, removing from catalog", path)
		if err := r.store.DeleteMediaFile(ctx, path); err != nil {
			return fmt.Errorf("delete file %s: %w", path, err)
		}
	}
	return nil
}

func (r *Reconciler) underConfigured(path string) bool {
	for _, bp := range r.configured {
		if path == bp || strings.HasPrefix(path, bp+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
