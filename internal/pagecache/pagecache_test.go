package pagecache

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"comicvault/internal/fileutil"
	"comicvault/internal/logging"
	"comicvault/internal/testsupport"
)

func newTestManager(t *testing.T, maxMiB int) *Manager {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithPageCache(maxMiB))
	manager := NewManager(cfg, logging.NewNop())
	if manager == nil {
		t.Fatalf("expected manager")
	}
	manager.statfs = func(string) (uint64, uint64, error) {
		return 100, 50, nil
	}
	return manager
}

func TestNewManagerDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if NewManager(cfg, logging.NewNop()) != nil {
		t.Fatalf("expected nil manager when cache disabled")
	}
	var nilManager *Manager
	stored, err := nilManager.Put(context.Background(), "abc", "page.jpg", []byte("x"))
	if err != nil || stored {
		t.Fatalf("nil manager Put: stored=%v err=%v", stored, err)
	}
	if err := nilManager.Prune(context.Background(), nil); err != nil {
		t.Fatalf("nil manager Prune: %v", err)
	}
}

func TestPutStoresByHash(t *testing.T) {
	manager := newTestManager(t, 1)
	data := []byte("page bytes")
	hash := fileutil.HashBytes(data)

	stored, err := manager.Put(context.Background(), hash, "001.JPG", data)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if !stored {
		t.Fatalf("expected first put to store")
	}
	path := manager.Path(hash, "001.JPG")
	if !strings.HasSuffix(path, hash+".jpg") {
		t.Fatalf("unexpected cache path %s", path)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read cached page: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("cached content mismatch: %q", got)
	}

	stored, err = manager.Put(context.Background(), hash, "other-name.jpg", data)
	if err != nil {
		t.Fatalf("second put: %v", err)
	}
	if stored {
		t.Fatalf("expected second put of identical page to be a no-op")
	}
	if !manager.Has(hash, "x.jpg") {
		t.Fatalf("expected Has to report the cached page")
	}
}

func TestPutRejectsHashMismatch(t *testing.T) {
	manager := newTestManager(t, 1)
	hash := fileutil.HashBytes([]byte("one"))
	if _, err := manager.Put(context.Background(), hash, "p.png", []byte("two")); err == nil {
		t.Fatalf("expected hash mismatch error")
	}
	if manager.Has(hash, "p.png") {
		t.Fatalf("mismatched page must not be cached")
	}
}

func TestPruneBySizeKeepsActivePages(t *testing.T) {
	manager := newTestManager(t, 1)
	ctx := context.Background()

	old := make([]byte, 700*1024)
	old[0] = 1
	fresh := make([]byte, 700*1024)
	fresh[0] = 2
	oldHash := fileutil.HashBytes(old)
	freshHash := fileutil.HashBytes(fresh)

	if _, err := manager.Put(ctx, oldHash, "a.jpg", old); err != nil {
		t.Fatalf("put old: %v", err)
	}
	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(manager.Path(oldHash, "a.jpg"), past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if _, err := manager.Put(ctx, freshHash, "b.jpg", fresh); err != nil {
		t.Fatalf("put fresh: %v", err)
	}

	if err := manager.Prune(ctx, map[string]struct{}{freshHash: {}}); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if manager.Has(oldHash, "a.jpg") {
		t.Fatalf("expected oldest page to be pruned")
	}
	if !manager.Has(freshHash, "b.jpg") {
		t.Fatalf("expected active page to remain")
	}

	stats, err := manager.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Entries != 1 || stats.TotalBytes != int64(len(fresh)) {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestPruneFailsWhenOnlyActivePagesRemain(t *testing.T) {
	manager := newTestManager(t, 1)
	manager.statfs = func(string) (uint64, uint64, error) {
		return 100, 5, nil
	}
	data := []byte("only page")
	hash := fileutil.HashBytes(data)
	if _, err := manager.Put(context.Background(), hash, "a.png", data); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := manager.Prune(context.Background(), map[string]struct{}{hash: {}}); err == nil {
		t.Fatalf("expected prune error when free space cannot be recovered")
	}
	if !manager.Has(hash, "a.png") {
		t.Fatalf("active page must survive failed prune")
	}
}
