package watcher

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"media-catalog/internal/codec"
	"media-catalog/internal/mediatypes"
	"media-catalog/internal/preview"
	"media-catalog/internal/processor"
	"media-catalog/internal/store"
)

type fakeDecoder struct {
	calls int32
}

func (d *fakeDecoder) decode() (*codec.Decoded, error) {
	atomic.AddInt32(&d.calls, 1)
	return &codec.Decoded{
		Image: image.NewRGBA(image.Rect(0, 0, 320, 240)),
		Width: 320, Height: 240,
	}, nil
}

func (d *fakeDecoder) DecodeRaster(ctx context.Context, path string) (*codec.Decoded, error) {
	return d.decode()
}

func (d *fakeDecoder) DecodeVector(ctx context.Context, path string) (*codec.Decoded, error) {
	return d.decode()
}

func (d *fakeDecoder) DecodeFirstPage(ctx context.Context, path string) (*codec.Decoded, error) {
	return d.decode()
}

type fixture struct {
	root  string
	store *store.Store
	dec   *fakeDecoder
}

func startWatcher(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(ctx, filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	root := t.TempDir()
	bpID, err := s.InsertBasePath(ctx, root)
	if err != nil {
		t.Fatalf("InsertBasePath failed: %v", err)
	}

	dec := &fakeDecoder{}
	gen := preview.NewGenerator([]preview.Template{{Name: "small", Width: 200, Height: 200}}, 80)
	proc := processor.New(s, gen, dec)
	rules := mediatypes.NewRules(mediatypes.Defaults())

	w := New(store.BasePath{ID: bpID, Path: root}, rules, s, proc)
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(w.Stop)

	return &fixture{root: root, store: s, dec: dec}
}

// waitFor polls a condition; fsnotify delivery plus the debounce delay make
// exact timing unknowable.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestWatcherCatalogsNewFile(t *testing.T) {
	f := startWatcher(t)
	path := filepath.Join(f.root, "new.jpg")

	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	waitFor(t, "new file to be cataloged", func() bool {
		return f.store.InIndex(path)
	})

	got, err := f.store.FindMediaFileByPath(context.Background(), path)
	if err != nil || got == nil {
		t.Fatalf("cataloged file not found: %v, %v", got, err)
	}
	if got.Width != 320 {
		t.Errorf("Width = %d, want 320", got.Width)
	}
}

func TestWatcherIgnoresUnknownExtensions(t *testing.T) {
	f := startWatcher(t)
	path := filepath.Join(f.root, "notes.txt")

	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	// Give the event time to flow through; nothing should be cataloged.
	time.Sleep(1500 * time.Millisecond)
	if f.store.InIndex(path) {
		t.Error("unclassified file was cataloged")
	}
	if atomic.LoadInt32(&f.dec.calls) != 0 {
		t.Error("codec invoked for unclassified file")
	}
}

func TestWatcherRemovesDeletedFile(t *testing.T) {
	f := startWatcher(t)
	path := filepath.Join(f.root, "pic.jpg")

	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	waitFor(t, "file to be cataloged", func() bool { return f.store.InIndex(path) })

	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	waitFor(t, "file to leave the catalog", func() bool { return !f.store.InIndex(path) })
}

func TestWatcherRenameKeepsIdentity(t *testing.T) {
	f := startWatcher(t)
	ctx := context.Background()
	oldPath := filepath.Join(f.root, "old.jpg")
	newPath := filepath.Join(f.root, "new.jpg")

	if err := os.WriteFile(oldPath, []byte("data"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	waitFor(t, "file to be cataloged", func() bool { return f.store.InIndex(oldPath) })
	before, _ := f.store.FindMediaFileByPath(ctx, oldPath)

	if err := os.Rename(oldPath, newPath); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}

	waitFor(t, "rename to land in the catalog", func() bool {
		return f.store.InIndex(newPath) && !f.store.InIndex(oldPath)
	})

	after, err := f.store.FindMediaFileByPath(ctx, newPath)
	if err != nil || after == nil {
		t.Fatalf("renamed file not found: %v, %v", after, err)
	}
	if after.ID != before.ID {
		t.Errorf("rename changed catalog id %d -> %d", before.ID, after.ID)
	}
}

func TestWatcherNewSubdirectory(t *testing.T) {
	f := startWatcher(t)
	sub := filepath.Join(f.root, "album")

	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	// The new directory's watch must be registered before the file event.
	time.Sleep(500 * time.Millisecond)

	path := filepath.Join(sub, "pic.jpg")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	waitFor(t, "file in new directory to be cataloged", func() bool {
		return f.store.InIndex(path)
	})

	dir, err := f.store.FindDirectory(context.Background(), sub)
	if err != nil || dir == nil {
		t.Fatalf("no directory record for %s: %v", sub, err)
	}
	root, err := f.store.FindDirectory(context.Background(), f.root)
	if err != nil || root == nil {
		t.Fatalf("no directory record for root: %v", err)
	}
	if dir.ParentID != root.ID {
		t.Errorf("subdirectory ParentID = %d, want %d", dir.ParentID, root.ID)
	}
}

func TestWatcherReprocessesOnWrite(t *testing.T) {
	f := startWatcher(t)
	path := filepath.Join(f.root, "pic.jpg")

	if err := os.WriteFile(path, []byte("one"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	waitFor(t, "file to be cataloged", func() bool { return f.store.InIndex(path) })
	waitFor(t, "first decode", func() bool { return atomic.LoadInt32(&f.dec.calls) >= 1 })

	// Rewrite with a different timestamp so change detection fires.
	if err := os.WriteFile(path, []byte("two"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	future := time.Now().Add(5 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}

	waitFor(t, "file to be reprocessed", func() bool {
		return atomic.LoadInt32(&f.dec.calls) >= 2
	})
}
