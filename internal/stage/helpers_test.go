package stage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"comicvault/internal/comic"
	"comicvault/internal/services"
)

func TestStatSource_Present(t *testing.T) {
	path := filepath.Join(t.TempDir(), "issue.cbz")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	rec := comic.New(path)
	rec.Missing = true
	info, err := StatSource("load", rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info == nil || info.Size() != 4 {
		t.Fatalf("unexpected info: %+v", info)
	}
	if rec.Missing {
		t.Fatal("expected missing flag cleared")
	}
}

func TestStatSource_Missing(t *testing.T) {
	rec := comic.New(filepath.Join(t.TempDir(), "gone.cbz"))
	info, err := StatSource("load", rec)
	if err != nil {
		t.Fatalf("missing file should not be an error: %v", err)
	}
	if info != nil {
		t.Fatal("expected nil info for missing file")
	}
	if !rec.Missing {
		t.Fatal("expected missing flag set")
	}
}

func TestStatSource_Directory(t *testing.T) {
	rec := comic.New(t.TempDir())
	_, err := StatSource("load", rec)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestStatSource_EmptyPath(t *testing.T) {
	_, err := StatSource("load", &comic.Record{})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
