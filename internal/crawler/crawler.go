// Package crawler walks base paths and classifies what it finds. It touches
// no state beyond the filesystem; reconciliation and processing happen
// elsewhere.
package crawler

import (
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"media-catalog/internal/logging"
	"media-catalog/internal/mediatypes"
)

// File is one discovered media file with its classification.
type File struct {
	Path    string
	Size    int64
	ModTime time.Time
	Rule    *mediatypes.Rule
}

// Result is the outcome of crawling one base path. Directories are in
// top-down order: every directory appears after its parent.
type Result struct {
	BasePath    string
	Files       []File
	Directories []string
}

// Crawl walks basePath depth-first, classifying files by extension against
// the rule set. Unmatched files are skipped silently; unreadable entries
// are logged and skipped without aborting the walk. Hidden files and
// directories are ignored.
func Crawl(basePath string, rules *mediatypes.Rules) (*Result, error) {
	result := &Result{BasePath: basePath}

	err := filepath.WalkDir(basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logging.Warn("Crawl error at %s: %v", path, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		name := d.Name()
		if path != basePath && strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			result.Directories = append(result.Directories, path)
			return nil
		}

		rule := rules.Match(filepath.Ext(name))
		if rule == nil {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			logging.Warn("Cannot stat %s: %v", path, err)
			return nil
		}

		result.Files = append(result.Files, File{
			Path:    path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Rule:    rule,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.Info("Crawled %s: %d files, %d directories", basePath, len(result.Files), len(result.Directories))
	return result, nil
}
