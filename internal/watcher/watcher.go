// Package watcher keeps the catalog current between full passes by reacting
// to filesystem events under each base path. Every base path gets its own
// watcher and its own single-consumer event loop, so events for one path
// are handled in delivery order.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"media-catalog/internal/logging"
	"media-catalog/internal/mediatypes"
	"media-catalog/internal/metrics"
	"media-catalog/internal/processor"
	"media-catalog/internal/store"
)

// debounceDelay coalesces write bursts for one file into a single
// reprocessing once the writer goes quiet.
const debounceDelay = 500 * time.Millisecond

// renameWindow is how long a rename waits for its matching create before it
// is treated as a deletion. The OS reports a rename as two events and only
// the pairing preserves the catalog id.
const renameWindow = 2 * time.Second

type taskKind int

const (
	taskProcess taskKind = iota
	taskRenameExpired
)

type task struct {
	kind taskKind
	path string
}

// Watcher watches one base path. All event handling runs on its own loop
// goroutine; timers re-enter through the task channel rather than touching
// state directly.
type Watcher struct {
	basePath store.BasePath
	rules    *mediatypes.Rules
	store    *store.Store
	proc     *processor.Processor

	fw    *fsnotify.Watcher
	tasks chan task
	done  chan struct{}
	wg    sync.WaitGroup

	debounceMu sync.Mutex
	debounce   map[string]*time.Timer

	// pending is the old path of an unpaired rename, empty when none.
	pending   string
	pendingAt time.Time
}

// New builds a Watcher for one base path.
func New(bp store.BasePath, rules *mediatypes.Rules, st *store.Store, proc *processor.Processor) *Watcher {
	return &Watcher{
		basePath: bp,
		rules:    rules,
		store:    st,
		proc:     proc,
		tasks:    make(chan task, 64),
		done:     make(chan struct{}),
		debounce: make(map[string]*time.Timer),
	}
}

// Start registers watches over the whole tree and launches the event loop.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fw = fw

	if err := w.watchTree(w.basePath.Path); err != nil {
		fw.Close()
		return err
	}

	w.wg.Add(1)
	go w.run(ctx)

	logging.Info("Watching %s", w.basePath.Path)
	return nil
}

// Stop ends the event loop and releases the OS watches. Pending debounce
// timers are dropped; the next full pass covers anything they would have
// processed.
func (w *Watcher) Stop() {
	close(w.done)
	w.fw.Close()
	w.wg.Wait()

	w.debounceMu.Lock()
	for _, t := range w.debounce {
		t.Stop()
	}
	w.debounceMu.Unlock()
}

// watchTree adds OS watches for a directory and everything under it.
// fsnotify watches are not recursive.
func (w *Watcher) watchTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logging.Warn("Cannot watch %s: %v", path, err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return fs.SkipDir
		}
		if err := w.fw.Add(path); err != nil {
			logging.Warn("Cannot watch %s: %v", path, err)
		}
		return nil
	})
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, ev)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			metrics.WatcherErrors.Inc()
			logging.Error("Watcher error on %s: %v", w.basePath.Path, err)
		case t := <-w.tasks:
			w.handleTask(ctx, t)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	switch {
	case ev.Has(fsnotify.Create):
		metrics.WatcherEventsTotal.WithLabelValues("create").Inc()
		w.handleCreate(ctx, ev.Name)
	case ev.Has(fsnotify.Write):
		metrics.WatcherEventsTotal.WithLabelValues("write").Inc()
		w.scheduleProcess(ev.Name)
	case ev.Has(fsnotify.Remove):
		metrics.WatcherEventsTotal.WithLabelValues("remove").Inc()
		w.handleRemove(ctx, ev.Name)
	case ev.Has(fsnotify.Rename):
		metrics.WatcherEventsTotal.WithLabelValues("rename").Inc()
		w.handleRename(ev.Name)
	}
}

func (w *Watcher) handleCreate(ctx context.Context, path string) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		// New directories get watched immediately; their records and any
		// contents are reconciled on the next full pass.
		logging.Info("New directory %s, watching", path)
		if err := w.watchTree(path); err != nil {
			logging.Warn("Cannot watch %s: %v", path, err)
		}
		return
	}

	if w.pending != "" && time.Since(w.pendingAt) < renameWindow {
		oldPath := w.pending
		w.pending = ""
		if rule := w.rules.Match(filepath.Ext(path)); rule != nil {
			if err := w.proc.Rename(ctx, oldPath, path, rule); err != nil {
				logging.Error("Failed to rename %s -> %s: %v", oldPath, path, err)
			}
			return
		}
		// Renamed to an unrecognized extension: the old entry is stale.
		w.deleteIfCataloged(ctx, oldPath)
		return
	}

	w.scheduleProcess(path)
}

func (w *Watcher) handleRemove(ctx context.Context, path string) {
	w.cancelDebounce(path)
	w.deleteIfCataloged(ctx, path)
}

func (w *Watcher) handleRename(path string) {
	w.cancelDebounce(path)
	if !w.store.InIndex(path) {
		logging.Debug("Rename of uncataloged path %s", path)
		return
	}

	w.pending = path
	w.pendingAt = time.Now()
	time.AfterFunc(renameWindow, func() {
		select {
		case w.tasks <- task{kind: taskRenameExpired, path: path}:
		case <-w.done:
		}
	})
}

func (w *Watcher) handleTask(ctx context.Context, t task) {
	switch t.kind {
	case taskProcess:
		w.processPath(ctx, t.path)
	case taskRenameExpired:
		// No create paired with the rename: the file left the base path.
		if w.pending == t.path {
			w.pending = ""
			w.deleteIfCataloged(ctx, t.path)
		}
	}
}

// scheduleProcess (re)starts the debounce timer for one path. The timer
// hands the path back to the event loop, never processes directly.
func (w *Watcher) scheduleProcess(path string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if t, ok := w.debounce[path]; ok {
		t.Reset(debounceDelay)
		return
	}
	w.debounce[path] = time.AfterFunc(debounceDelay, func() {
		w.debounceMu.Lock()
		delete(w.debounce, path)
		w.debounceMu.Unlock()

		select {
		case w.tasks <- task{kind: taskProcess, path: path}:
		case <-w.done:
		}
	})
}

func (w *Watcher) cancelDebounce(path string) {
	w.debounceMu.Lock()
	if t, ok := w.debounce[path]; ok {
		t.Stop()
		delete(w.debounce, path)
	}
	w.debounceMu.Unlock()
}

// processPath classifies and processes one settled file, creating any
// missing directory records on its way.
func (w *Watcher) processPath(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	rule := w.rules.Match(filepath.Ext(path))
	if rule == nil {
		return
	}

	dir, err := w.ensureDirectory(ctx, filepath.Dir(path))
	if err != nil {
		logging.Error("No directory record for %s: %v", path, err)
		return
	}

	item := processor.WorkItem{
		Path:        path,
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		Rule:        rule,
		DirectoryID: dir.ID,
	}
	if _, err := w.proc.Process(ctx, item); err != nil {
		logging.Error("Failed to process %s: %v", path, err)
	}
}

// ensureDirectory returns the record for dirPath, creating the whole chain
// up from the base path root when records are missing.
func (w *Watcher) ensureDirectory(ctx context.Context, dirPath string) (*store.Directory, error) {
	d, err := w.store.FindDirectory(ctx, dirPath)
	if err != nil {
		return nil, err
	}
	if d != nil {
		return d, nil
	}

	var parentID int64
	if dirPath != w.basePath.Path {
		parent, err := w.ensureDirectory(ctx, filepath.Dir(dirPath))
		if err != nil {
			return nil, err
		}
		parentID = parent.ID
	}

	nd := store.Directory{
		Path:       dirPath,
		Name:       filepath.Base(dirPath),
		ParentID:   parentID,
		BasePathID: w.basePath.ID,
	}
	id, err := w.store.InsertDirectory(ctx, &nd)
	if err != nil {
		return nil, err
	}
	nd.ID = id
	logging.Debug("New directory %s", dirPath)
	return &nd, nil
}

func (w *Watcher) deleteIfCataloged(ctx context.Context, path string) {
	if !w.store.InIndex(path) {
		return
	}
	if err := w.store.DeleteMediaFile(ctx, path); err != nil {
		logging.Error("Failed to remove %s from catalog: %v", path, err)
		return
	}
	logging.Info("Removed %s from catalog", path)
}
