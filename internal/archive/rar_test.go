package archive_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"comicvault/internal/archive"
	"comicvault/internal/config"
	"comicvault/internal/logging"
	"comicvault/internal/testsupport"
)

// bigRarEntries returns n stored entries, each far larger than a decoder
// read buffer, with distinct contents.
func bigRarEntries(n, size int) []testsupport.Entry {
	entries := make([]testsupport.Entry, 0, n)
	for i := 1; i <= n; i++ {
		entries = append(entries, testsupport.Entry{
			Name: fmt.Sprintf("%03d.jpg", i),
			Data: bytes.Repeat([]byte{byte(i)}, size),
		})
	}
	return entries
}

func TestRarIsReadOnly(t *testing.T) {
	a := archive.NewRar()
	if a.Writable() {
		t.Fatal("rar adaptor must be read-only")
	}
	path := filepath.Join(t.TempDir(), "out.cbr")
	if _, err := a.OpenForWrite(context.Background(), path); !errors.Is(err, archive.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("OpenForWrite must not create %s", path)
	}
}

func TestRarOpenRejectsNonRar(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "actually-zip.cbr")
	writeZip(t, zipPath, fixtureEntry{"p1.jpg", []byte("1")})

	text := filepath.Join(dir, "notes.cbr")
	if err := os.WriteFile(text, []byte("plain text, no signature"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	for _, path := range []string{zipPath, text, filepath.Join(dir, "absent.cbr")} {
		if _, err := archive.NewRar().OpenForRead(context.Background(), path); !errors.Is(err, archive.ErrUnreadable) {
			t.Fatalf("%s: expected ErrUnreadable, got %v", filepath.Base(path), err)
		}
	}
}

func TestRarReadWhileEnumerating(t *testing.T) {
	entries := bigRarEntries(5, 300_000)
	path := testsupport.WriteCBR(t, filepath.Join(t.TempDir(), "big.cbr"), entries...)

	a := archive.NewRar()
	ctx := context.Background()
	var got []string
	err := archive.WithReadHandle(ctx, a, path, func(h *archive.ReadHandle) error {
		for desc, err := range a.Entries(ctx, h) {
			if err != nil {
				return err
			}
			data, err := a.ReadEntry(ctx, h, desc.Name)
			if err != nil {
				return err
			}
			want := entries[desc.Index]
			if desc.Name != want.Name || desc.Size != int64(len(want.Data)) || desc.Kind != archive.KindPage {
				t.Fatalf("descriptor %d = %+v", desc.Index, desc)
			}
			if !bytes.Equal(data, want.Data) {
				t.Fatalf("%s: read %d bytes that differ from the stored entry", desc.Name, len(data))
			}
			got = append(got, desc.Name)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read while enumerating: %v", err)
	}
	if len(got) != len(entries) {
		t.Fatalf("expected %d entries, got %v", len(entries), got)
	}
}

func TestRarReadEntryMissing(t *testing.T) {
	path := testsupport.WriteCBR(t, filepath.Join(t.TempDir(), "small.cbr"), bigRarEntries(2, 100)...)
	a := archive.NewRar()
	h, err := a.OpenForRead(context.Background(), path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer a.CloseRead(h)
	if _, err := a.ReadEntry(context.Background(), h, "nope.jpg"); !errors.Is(err, archive.ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestRarEntriesStopsOnCancel(t *testing.T) {
	path := testsupport.WriteCBR(t, filepath.Join(t.TempDir(), "cancel.cbr"), bigRarEntries(5, 300_000)...)
	a := archive.NewRar()
	h, err := a.OpenForRead(context.Background(), path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer a.CloseRead(h)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	seen := 0
	var failure error
	for _, err := range a.Entries(ctx, h) {
		if err != nil {
			failure = err
			break
		}
		seen++
		cancel()
	}
	if !errors.Is(failure, archive.ErrUnreadable) {
		t.Fatalf("expected enumeration to fail after cancel, got %v", failure)
	}
	if seen != 1 {
		t.Fatalf("expected one entry before cancellation took effect, got %d", seen)
	}
}

func TestConvertRarToZip(t *testing.T) {
	dir := t.TempDir()
	entries := bigRarEntries(3, 300_000)
	src := testsupport.WriteCBR(t, filepath.Join(dir, "issue.cbr"), entries...)

	cfg := config.Default()
	reg, err := archive.NewDefaultRegistry(&cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	result, err := archive.Convert(context.Background(), reg, src, archive.FormatCBZ, "")
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if result.Source != archive.FormatCBR || result.Entries != len(entries) {
		t.Fatalf("unexpected result %+v", result)
	}

	zipAdaptor := archive.NewZip()
	h, err := zipAdaptor.OpenForRead(context.Background(), result.Path)
	if err != nil {
		t.Fatalf("open converted: %v", err)
	}
	defer zipAdaptor.CloseRead(h)
	for _, want := range entries {
		data, err := zipAdaptor.ReadEntry(context.Background(), h, want.Name)
		if err != nil {
			t.Fatalf("read %s: %v", want.Name, err)
		}
		if !bytes.Equal(data, want.Data) {
			t.Fatalf("%s differs after conversion", want.Name)
		}
	}
}
