package reconciler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"media-catalog/internal/crawler"
	"media-catalog/internal/mediatypes"
	"media-catalog/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func buildTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "a", "b"), 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "a", "b", "pic.jpg"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return root
}

func fullReconcile(t *testing.T, s *store.Store, root string) (*Reconciler, store.BasePath, int) {
	t.Helper()
	ctx := context.Background()

	rec := New(s, []string{root})
	basePaths, err := rec.SyncBasePaths(ctx)
	if err != nil {
		t.Fatalf("SyncBasePaths failed: %v", err)
	}
	if len(basePaths) != 1 {
		t.Fatalf("got %d base paths, want 1", len(basePaths))
	}

	crawled, err := crawler.Crawl(root, mediatypes.NewRules(mediatypes.Defaults()))
	if err != nil {
		t.Fatalf("Crawl failed: %v", err)
	}
	items, err := rec.Reconcile(ctx, basePaths[0], crawled)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	return rec, basePaths[0], len(items)
}

func TestReconcileParentLinkage(t *testing.T) {
	s := openTestStore(t)
	root := buildTree(t)
	ctx := context.Background()

	_, bp, items := fullReconcile(t, s, root)
	if items != 1 {
		t.Errorf("got %d work items, want 1", items)
	}

	rootDir, err := s.FindDirectory(ctx, root)
	if err != nil || rootDir == nil {
		t.Fatalf("no record for base path root: %v", err)
	}
	if rootDir.ParentID != 0 {
		t.Errorf("root ParentID = %d, want 0", rootDir.ParentID)
	}
	if rootDir.BasePathID != bp.ID {
		t.Errorf("root BasePathID = %d, want %d", rootDir.BasePathID, bp.ID)
	}

	a, err := s.FindDirectory(ctx, filepath.Join(root, "a"))
	if err != nil || a == nil {
		t.Fatalf("no record for a: %v", err)
	}
	if a.ParentID != rootDir.ID {
		t.Errorf("a.ParentID = %d, want %d", a.ParentID, rootDir.ID)
	}

	b, err := s.FindDirectory(ctx, filepath.Join(root, "a", "b"))
	if err != nil || b == nil {
		t.Fatalf("no record for a/b: %v", err)
	}
	if b.ParentID != a.ID {
		t.Errorf("a/b.ParentID = %d, want %d", b.ParentID, a.ID)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	s := openTestStore(t)
	root := buildTree(t)
	ctx := context.Background()

	fullReconcile(t, s, root)
	bp, _ := s.FindBasePath(ctx, root)
	before, err := s.ListDirectories(ctx, bp.ID)
	if err != nil {
		t.Fatalf("ListDirectories failed: %v", err)
	}

	fullReconcile(t, s, root)
	after, err := s.ListDirectories(ctx, bp.ID)
	if err != nil {
		t.Fatalf("ListDirectories failed: %v", err)
	}

	if len(before) != len(after) {
		t.Fatalf("second pass changed directory count: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if before[i].ID != after[i].ID {
			t.Errorf("directory %s changed id %d -> %d", before[i].Path, before[i].ID, after[i].ID)
		}
	}
}

func TestReconcilePrunesDeletedDirectories(t *testing.T) {
	s := openTestStore(t)
	root := buildTree(t)
	ctx := context.Background()

	fullReconcile(t, s, root)

	// Catalog a file under a/b so the prune has something to cascade.
	b, _ := s.FindDirectory(ctx, filepath.Join(root, "a", "b"))
	picPath := filepath.Join(root, "a", "b", "pic.jpg")
	if _, err := s.InsertMediaFile(ctx, &store.MediaFile{
		DirectoryID: b.ID, Name: "pic.jpg", Path: picPath, Mimetype: "image/jpeg",
		Created: time.Now(), Modified: time.Now(),
	}); err != nil {
		t.Fatalf("InsertMediaFile failed: %v", err)
	}

	if err := os.RemoveAll(filepath.Join(root, "a")); err != nil {
		t.Fatalf("RemoveAll failed: %v", err)
	}

	fullReconcile(t, s, root)

	for _, gone := range []string{filepath.Join(root, "a"), filepath.Join(root, "a", "b")} {
		d, err := s.FindDirectory(ctx, gone)
		if err != nil {
			t.Fatalf("FindDirectory failed: %v", err)
		}
		if d != nil {
			t.Errorf("directory record %s survived prune", gone)
		}
	}
	if s.InIndex(picPath) {
		t.Error("file of pruned directory still in index")
	}
}

func TestReconcilePrunesVanishedFiles(t *testing.T) {
	s := openTestStore(t)
	root := buildTree(t)
	ctx := context.Background()

	fullReconcile(t, s, root)

	rootDir, _ := s.FindDirectory(ctx, root)
	ghost := filepath.Join(root, "ghost.jpg")
	if _, err := s.InsertMediaFile(ctx, &store.MediaFile{
		DirectoryID: rootDir.ID, Name: "ghost.jpg", Path: ghost, Mimetype: "image/jpeg",
		Created: time.Now(), Modified: time.Now(),
	}); err != nil {
		t.Fatalf("InsertMediaFile failed: %v", err)
	}

	fullReconcile(t, s, root)

	if s.InIndex(ghost) {
		t.Error("catalog entry for vanished file survived the pass")
	}
}

func TestSyncBasePathsRemovesUnconfigured(t *testing.T) {
	s := openTestStore(t)
	oldRoot := buildTree(t)
	newRoot := t.TempDir()
	ctx := context.Background()

	fullReconcile(t, s, oldRoot)

	rec := New(s, []string{newRoot})
	basePaths, err := rec.SyncBasePaths(ctx)
	if err != nil {
		t.Fatalf("SyncBasePaths failed: %v", err)
	}
	if len(basePaths) != 1 || basePaths[0].Path != newRoot {
		t.Fatalf("active base paths = %+v, want only %s", basePaths, newRoot)
	}

	old, err := s.FindBasePath(ctx, oldRoot)
	if err != nil {
		t.Fatalf("FindBasePath failed: %v", err)
	}
	if old != nil {
		t.Error("unconfigured base path survived sync")
	}
}
