package entry_test

import (
	"context"
	"errors"
	"testing"

	"comicvault/internal/comic"
	"comicvault/internal/entry"
	"comicvault/internal/logging"
	"comicvault/internal/testsupport"
)

func TestDispatchRoutesByMaskThenContent(t *testing.T) {
	d := entry.NewDispatcher(logging.NewNop())
	rec := comic.New("/x.cbz")
	ctx := context.Background()

	tests := []struct {
		name string
		data []byte
		want entry.Result
	}{
		{"ComicInfo.xml", testsupport.ComicInfo("Saga", "1", "One"), entry.ResultLoaded},
		{"pages/001.jpg", testsupport.JPEG(t, 8, 12, 20), entry.ResultLoaded},
		// Content decides, not the extension.
		{"002.txt", testsupport.PNG(t, 8, 12, 40), entry.ResultLoaded},
		{"fake.jpg", []byte("not an image"), entry.ResultIgnored},
		{"Thumbs.db", []byte{0xd0, 0xcf, 0x11, 0xe0}, entry.ResultIgnored},
	}
	for _, tt := range tests {
		got, err := d.Dispatch(ctx, rec, tt.name, tt.data)
		if err != nil {
			t.Fatalf("Dispatch(%s): %v", tt.name, err)
		}
		if got != tt.want {
			t.Fatalf("Dispatch(%s) = %s, want %s", tt.name, got, tt.want)
		}
	}
	if len(rec.Pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(rec.Pages))
	}
	if rec.Pages[0].Width != 8 || rec.Pages[0].Height != 12 || rec.Pages[0].Hash == "" {
		t.Fatalf("unexpected page %+v", rec.Pages[0])
	}
	if rec.Metadata.Series != "Saga" {
		t.Fatalf("metadata not loaded: %+v", rec.Metadata)
	}
}

func TestDispatchMaskIsCaseSensitiveOnBasename(t *testing.T) {
	d := entry.NewDispatcher(logging.NewNop())
	rec := comic.New("/x.cbz")
	xml := testsupport.ComicInfo("Saga", "1", "One")

	if got, _ := d.Dispatch(context.Background(), rec, "comicinfo.xml", xml); got != entry.ResultIgnored {
		t.Fatalf("lower-case sidecar should be ignored, got %s", got)
	}
	if got, _ := d.Dispatch(context.Background(), rec, "nested/dir/ComicInfo.xml", xml); got != entry.ResultLoaded {
		t.Fatalf("nested sidecar should match on basename, got %s", got)
	}
}

func TestRepeatedDispatchDoesNotDuplicatePages(t *testing.T) {
	d := entry.NewDispatcher(logging.NewNop())
	rec := comic.New("/x.cbz")
	data := testsupport.JPEG(t, 4, 4, 99)
	for i := 0; i < 5; i++ {
		got, err := d.Dispatch(context.Background(), rec, "p.jpg", data)
		if err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
		if i > 0 && got != entry.ResultDuplicate {
			t.Fatalf("dispatch %d = %s, want duplicate", i, got)
		}
	}
	if len(rec.Pages) != 1 {
		t.Fatalf("expected one page, got %d", len(rec.Pages))
	}
}

func TestDispatchReportsDecodeFailure(t *testing.T) {
	d := entry.NewDispatcher(logging.NewNop())
	rec := comic.New("/x.cbz")
	good := testsupport.JPEG(t, 4, 4, 1)
	// A JPEG signature followed by garbage sniffs as JPEG but will not decode.
	broken := append([]byte{0xff, 0xd8, 0xff, 0xe0}, make([]byte, 32)...)

	got, err := d.Dispatch(context.Background(), rec, "broken.jpg", broken)
	var loaderErr *entry.LoaderError
	if got != entry.ResultFailed || !errors.As(err, &loaderErr) || loaderErr.Kind != entry.KindDecode {
		t.Fatalf("expected decode failure, got %s, %v", got, err)
	}
	if _, err := d.Dispatch(context.Background(), rec, "good.jpg", good); err != nil {
		t.Fatalf("dispatch after failure: %v", err)
	}
	if len(rec.Pages) != 1 || rec.Pages[0].Index != 0 {
		t.Fatalf("failed entry must not consume an index: %+v", rec.Pages)
	}
}

func TestCustomMask(t *testing.T) {
	var seen string
	loader := entry.LoaderFunc(func(_ context.Context, _ *comic.Record, name string, _ []byte) error {
		seen = name
		return nil
	})
	d := entry.NewDispatcher(logging.NewNop(), entry.WithMask("series.json", loader))
	if got, _ := d.Dispatch(context.Background(), comic.New("/x.cbz"), "meta/series.json", []byte("{}")); got != entry.ResultLoaded {
		t.Fatalf("custom mask not used, got %s", got)
	}
	if seen != "meta/series.json" {
		t.Fatalf("loader received %q", seen)
	}
}

func TestSniffImage(t *testing.T) {
	if mime, ok := entry.SniffImage(testsupport.PNG(t, 2, 2, 0)); !ok || mime != "image/png" {
		t.Fatalf("SniffImage(png) = %s, %v", mime, ok)
	}
	if _, ok := entry.SniffImage(nil); ok {
		t.Fatal("empty data is not an image")
	}
}
