package archive_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"comicvault/internal/archive"
	"comicvault/internal/fileutil"
)

type fixtureEntry struct {
	name string
	data []byte
}

func writeZip(t *testing.T, path string, entries ...fixtureEntry) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		if err != nil {
			t.Fatalf("zip create %s: %v", e.name, err)
		}
		if _, err := w.Write(e.data); err != nil {
			t.Fatalf("zip write %s: %v", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
}

func collect(t *testing.T, a archive.Adaptor, h *archive.ReadHandle) []archive.EntryDescriptor {
	t.Helper()
	var out []archive.EntryDescriptor
	for desc, err := range a.Entries(context.Background(), h) {
		if err != nil {
			t.Fatalf("enumerate: %v", err)
		}
		out = append(out, desc)
	}
	return out
}

func TestZipEntriesNaturalOrderAndKinds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "issue.cbz")
	writeZip(t, path,
		fixtureEntry{"b.jpg", []byte("b")},
		fixtureEntry{"a.png", []byte("a")},
		fixtureEntry{"ComicInfo.xml", []byte("<ComicInfo/>")},
		fixtureEntry{"__MACOSX/._a.png", []byte("x")},
	)
	a := archive.NewZip()
	err := archive.WithReadHandle(context.Background(), a, path, func(h *archive.ReadHandle) error {
		got := collect(t, a, h)
		if len(got) != 4 {
			t.Fatalf("expected 4 entries, got %d", len(got))
		}
		wantNames := []string{"b.jpg", "a.png", "ComicInfo.xml", "__MACOSX/._a.png"}
		wantKinds := []archive.EntryKind{archive.KindPage, archive.KindPage, archive.KindMetadata, archive.KindIgnored}
		for i, desc := range got {
			if desc.Index != i || desc.Name != wantNames[i] || desc.Kind != wantKinds[i] {
				t.Fatalf("entry %d: got %+v", i, desc)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithReadHandle: %v", err)
	}
}

func TestZipEntriesIsOneShot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "one.cbz")
	writeZip(t, path, fixtureEntry{"p1.jpg", []byte("1")})
	a := archive.NewZip()
	h, err := a.OpenForRead(context.Background(), path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer a.CloseRead(h)
	collect(t, a, h)
	for _, err := range a.Entries(context.Background(), h) {
		if !errors.Is(err, archive.ErrAlreadyEnumerated) {
			t.Fatalf("expected ErrAlreadyEnumerated, got %v", err)
		}
	}
}

func TestZipReadEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "read.cbz")
	writeZip(t, path, fixtureEntry{"p1.jpg", []byte("page-one")})
	a := archive.NewZip()
	h, err := a.OpenForRead(context.Background(), path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, err := a.ReadEntry(context.Background(), h, "p1.jpg")
	if err != nil || string(data) != "page-one" {
		t.Fatalf("ReadEntry = %q, %v", data, err)
	}
	if _, err := a.ReadEntry(context.Background(), h, "missing.jpg"); !errors.Is(err, archive.ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
	var typed *archive.Error
	if _, err := a.ReadEntry(context.Background(), h, "missing.jpg"); !errors.As(err, &typed) || typed.Entry != "missing.jpg" {
		t.Fatalf("expected typed error naming the entry, got %v", err)
	}
	if err := a.CloseRead(h); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := a.ReadEntry(context.Background(), h, "p1.jpg"); !errors.Is(err, archive.ErrHandleClosed) {
		t.Fatalf("expected ErrHandleClosed after close, got %v", err)
	}
}

func TestZipOpenRejectsCorruptContainer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.cbz")
	if err := os.WriteFile(path, []byte("PK\x03\x04 definitely not a zip"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := archive.NewZip().OpenForRead(context.Background(), path); !errors.Is(err, archive.ErrUnreadable) {
		t.Fatalf("expected ErrUnreadable, got %v", err)
	}
	if _, err := archive.NewZip().OpenForRead(context.Background(), filepath.Join(t.TempDir(), "absent.cbz")); !errors.Is(err, archive.ErrUnreadable) {
		t.Fatalf("expected ErrUnreadable for missing file, got %v", err)
	}
}

func TestZipOpenHonoursCancelledContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctx.cbz")
	writeZip(t, path, fixtureEntry{"p1.jpg", []byte("1")})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := archive.NewZip().OpenForRead(ctx, path); !errors.Is(err, archive.ErrUnreadable) {
		t.Fatalf("expected open to fail on cancelled context, got %v", err)
	}
}

func TestZipWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.cbz")
	a := archive.NewZip()
	w, err := a.OpenForWrite(context.Background(), path)
	if err != nil {
		t.Fatalf("OpenForWrite: %v", err)
	}
	if err := a.WriteEntry(w, "p1.jpg", []byte("one")); err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}
	if err := a.WriteEntry(w, "p1.jpg", []byte("again")); !errors.Is(err, archive.ErrWriteFailed) {
		t.Fatalf("expected duplicate name rejection, got %v", err)
	}
	if err := a.WriteEntry(w, "../escape.jpg", []byte("x")); !errors.Is(err, archive.ErrWriteFailed) {
		t.Fatalf("expected unsafe name rejection, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("target must not exist before Finish, stat err=%v", err)
	}
	if err := a.Finish(context.Background(), w); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if err := a.Finish(context.Background(), w); !errors.Is(err, archive.ErrHandleClosed) {
		t.Fatalf("expected second Finish to fail, got %v", err)
	}

	h, err := a.OpenForRead(context.Background(), path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer a.CloseRead(h)
	data, err := a.ReadEntry(context.Background(), h, "p1.jpg")
	if err != nil || string(data) != "one" {
		t.Fatalf("ReadEntry = %q, %v", data, err)
	}
}

func TestZipAbortLeavesOriginalUntouched(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keep.cbz")
	writeZip(t, path, fixtureEntry{"p1.jpg", []byte("original")})
	_, before, err := fileutil.HashFile(path)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	a := archive.NewZip()
	w, err := a.OpenForWrite(context.Background(), path)
	if err != nil {
		t.Fatalf("OpenForWrite: %v", err)
	}
	if err := a.WriteEntry(w, "p1.jpg", []byte("replacement")); err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}
	// Injected failure: the write is abandoned before Finish.
	if err := a.Abort(w); err != nil {
		t.Fatalf("Abort: %v", err)
	}

	_, after, err := fileutil.HashFile(path)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if before != after {
		t.Fatalf("original changed after abort: %s != %s", before, after)
	}
	leftovers, _ := filepath.Glob(filepath.Join(dir, ".keep.cbz.*"))
	if len(leftovers) != 0 {
		t.Fatalf("temp files left behind: %v", leftovers)
	}
}

func TestZipFinishWithCancelledContextKeepsOriginal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keep.cbz")
	writeZip(t, path, fixtureEntry{"p1.jpg", []byte("original")})
	_, before, _ := fileutil.HashFile(path)

	a := archive.NewZip()
	w, err := a.OpenForWrite(context.Background(), path)
	if err != nil {
		t.Fatalf("OpenForWrite: %v", err)
	}
	_ = a.WriteEntry(w, "p1.jpg", []byte("replacement"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Finish(ctx, w); !errors.Is(err, archive.ErrWriteFailed) {
		t.Fatalf("expected ErrWriteFailed, got %v", err)
	}
	_, after, _ := fileutil.HashFile(path)
	if before != after {
		t.Fatalf("original changed after failed finish")
	}
}

func TestZipWriteStopsWhenCallerCancels(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keep.cbz")
	writeZip(t, path, fixtureEntry{"p1.jpg", []byte("original")})
	_, before, _ := fileutil.HashFile(path)

	a := archive.NewZip(archive.WithIOTimeout(time.Minute))
	ctx, cancel := context.WithCancel(context.Background())
	w, err := a.OpenForWrite(ctx, path)
	if err != nil {
		t.Fatalf("OpenForWrite: %v", err)
	}
	cancel()
	// Larger than the zip writer's buffer so the bytes reach the file.
	big := bytes.Repeat([]byte{0xff}, 64<<10)
	if err := a.WriteEntry(w, "p1.jpg", big); !errors.Is(err, archive.ErrWriteFailed) {
		t.Fatalf("expected ErrWriteFailed after cancel, got %v", err)
	}
	if err := a.Abort(w); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	_, after, _ := fileutil.HashFile(path)
	if before != after {
		t.Fatal("original changed after cancelled write")
	}
	leftovers, _ := filepath.Glob(filepath.Join(dir, ".keep.cbz.*"))
	if len(leftovers) != 0 {
		t.Fatalf("temp files left behind: %v", leftovers)
	}
}

func TestForeignHandleRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.cbz")
	writeZip(t, path, fixtureEntry{"p1.jpg", []byte("1")})
	h, err := archive.NewZip().OpenForRead(context.Background(), path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer archive.NewZip().CloseRead(h)
	if _, err := archive.NewSevenZip(nil).ReadEntry(context.Background(), h, "p1.jpg"); !errors.Is(err, archive.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported for foreign handle, got %v", err)
	}
}
