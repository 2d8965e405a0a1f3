package preflight

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"

	"comicvault/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func stubStatfs(t *testing.T, avail uint64, err error) {
	t.Helper()
	orig := statfs
	statfs = func(_ string, st *unix.Statfs_t) error {
		if err != nil {
			return err
		}
		st.Bsize = 4096
		st.Bavail = avail / 4096
		return nil
	}
	t.Cleanup(func() { statfs = orig })
}

func TestCheckFreeSpace(t *testing.T) {
	stubStatfs(t, 2<<30, nil)
	if r := CheckFreeSpace("space", "/staging", MinFreeBytes); !r.Passed {
		t.Fatalf("expected pass with 2 GiB free, got %s", r.Detail)
	}

	stubStatfs(t, 64<<20, nil)
	if r := CheckFreeSpace("space", "/staging", MinFreeBytes); r.Passed {
		t.Fatal("expected failure with 64 MiB free")
	}

	stubStatfs(t, 0, errors.New("boom"))
	if r := CheckFreeSpace("space", "/staging", MinFreeBytes); r.Passed || r.Detail == "" {
		t.Fatalf("expected statfs error to fail, got %+v", r)
	}
}

func TestCheckSystemDepsSevenZipOptional(t *testing.T) {
	cfg := config.Default()
	cfg.Archive.SevenZipBinary = "clearly-not-present-7z"
	results := CheckSystemDeps(&cfg)
	if len(results) != 1 {
		t.Fatalf("expected one dependency result, got %d", len(results))
	}
	if results[0].Passed || !results[0].Optional {
		t.Fatalf("expected optional failure, got %+v", results[0])
	}
	if len(Failed(results)) != 0 {
		t.Fatal("optional failures must not block")
	}
}

func TestCheckNtfy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/denied/json" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if r.URL.Query().Get("poll") != "1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if r := CheckNtfy(context.Background(), srv.URL+"/comics"); !r.Passed {
		t.Fatalf("expected pass, got: %s", r.Detail)
	}
	if r := CheckNtfy(context.Background(), srv.URL+"/denied"); r.Passed || r.Detail != "auth failed" {
		t.Fatalf("expected auth failure, got %+v", r)
	}
	if r := CheckNtfy(context.Background(), ""); r.Passed {
		t.Fatal("expected failure for missing topic")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_MinimalConfig(t *testing.T) {
	stubStatfs(t, 2<<30, nil)
	cfg := config.Default()
	cfg.Paths.StagingDir = t.TempDir()
	cfg.Paths.LibraryDir = t.TempDir()
	cfg.PageCache.Enabled = false
	cfg.Progress.NtfyTopic = ""

	results := RunAll(context.Background(), &cfg)
	// library, staging, free space, 7z
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}
}

func TestRunAll_IncludesPageCacheWhenEnabled(t *testing.T) {
	stubStatfs(t, 2<<30, nil)
	cfg := config.Default()
	cfg.Paths.StagingDir = t.TempDir()
	cfg.Paths.LibraryDir = t.TempDir()
	cfg.Paths.PageCacheDir = filepath.Join(t.TempDir(), "missing")
	cfg.PageCache.Enabled = true
	cfg.Progress.NtfyTopic = ""

	failed := Failed(RunAll(context.Background(), &cfg))
	if len(failed) != 1 || failed[0].Name != "Page cache directory" {
		t.Fatalf("expected page cache failure only, got %+v", failed)
	}
}
