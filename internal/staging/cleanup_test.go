package staging

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"comicvault/internal/logging"
)

func writeLock(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write lock: %v", err)
	}
	if age > 0 {
		stamp := time.Now().Add(-age)
		if err := os.Chtimes(path, stamp, stamp); err != nil {
			t.Fatalf("set lock time: %v", err)
		}
	}
	return path
}

func TestCleanStaleLocksInvalidPaths(t *testing.T) {
	for _, dir := range []string{"", "   ", "/nonexistent/path/12345"} {
		result := CleanStaleLocks(context.Background(), dir, time.Hour, logging.NewNop())
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Errorf("expected empty result for path %q", dir)
		}
	}
}

func TestCleanStaleLocksRemovesOnlyOldUnheld(t *testing.T) {
	dir := t.TempDir()
	old := writeLock(t, dir, "aaaa.lock", 2*time.Hour)
	recent := writeLock(t, dir, "bbbb.lock", 0)
	held := writeLock(t, dir, "cccc.lock", 2*time.Hour)
	other := writeLock(t, dir, "notes.txt", 2*time.Hour)

	owner := flock.New(held)
	ok, err := owner.TryLock()
	if err != nil || !ok {
		t.Fatalf("hold lock: %v", err)
	}
	defer owner.Unlock()

	result := CleanStaleLocks(context.Background(), dir, time.Hour, logging.NewNop())
	if len(result.Removed) != 1 || result.Removed[0] != old {
		t.Fatalf("expected only %s removed, got %v", old, result.Removed)
	}
	if len(result.Held) != 1 || result.Held[0] != held {
		t.Fatalf("expected %s reported held, got %v", held, result.Held)
	}
	for _, keep := range []string{recent, held, other} {
		if _, err := os.Stat(keep); err != nil {
			t.Fatalf("%s should remain: %v", keep, err)
		}
	}
}

func TestListLocksReportsHolders(t *testing.T) {
	dir := t.TempDir()
	free := writeLock(t, dir, "free.lock", 0)
	busy := writeLock(t, dir, "busy.lock", 0)
	owner := flock.New(busy)
	if ok, err := owner.TryLock(); err != nil || !ok {
		t.Fatalf("hold lock: %v", err)
	}
	defer owner.Unlock()

	locks, err := ListLocks(dir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(locks) != 2 {
		t.Fatalf("expected 2 locks, got %d", len(locks))
	}
	for _, l := range locks {
		switch l.Path {
		case free:
			if l.Held {
				t.Fatal("free lock reported held")
			}
		case busy:
			if !l.Held {
				t.Fatal("busy lock reported free")
			}
		default:
			t.Fatalf("unexpected lock %s", l.Path)
		}
	}
	if locks, err := ListLocks(filepath.Join(dir, "missing")); err != nil || locks != nil {
		t.Fatalf("missing dir: %v %v", locks, err)
	}
}
