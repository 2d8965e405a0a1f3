package progress_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"comicvault/internal/comic"
	"comicvault/internal/config"
	"comicvault/internal/logging"
	"comicvault/internal/progress"
)

type captured struct {
	title string
	tags  string
	prio  string
	body  string
}

func newServer(t *testing.T) (*httptest.Server, func() []captured) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []captured
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		seen = append(seen, captured{
			title: r.Header.Get("Title"),
			tags:  r.Header.Get("Tags"),
			prio:  r.Header.Get("Priority"),
			body:  string(body),
		})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		return append([]captured(nil), seen...)
	}
}

func ntfyConfig(endpoint string) *config.Config {
	cfg := config.Default()
	cfg.Progress.NtfyTopic = endpoint
	cfg.Progress.MinIntervalSeconds = 3600
	return &cfg
}

func TestNewWithoutTopicLogsOnly(t *testing.T) {
	cfg := config.Default()
	cfg.Progress.NtfyTopic = ""
	n := progress.New(&cfg, logging.NewNop())
	if _, ok := n.(*progress.LogPublisher); !ok {
		t.Fatalf("expected log publisher, got %T", n)
	}
	if err := n.Publish(context.Background(), progress.Snapshot{JobID: "j"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func TestNtfyThrottlesActiveSnapshots(t *testing.T) {
	srv, seen := newServer(t)
	n := progress.NewNtfy(ntfyConfig(srv.URL))
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if err := n.Publish(ctx, progress.Snapshot{Active: true, Stage: "load-contents", Processed: i, Total: 3}); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	if err := n.Publish(ctx, progress.Snapshot{Active: false, Advanced: 2, Failed: 1}); err != nil {
		t.Fatalf("publish final: %v", err)
	}

	got := seen()
	if len(got) != 2 {
		t.Fatalf("expected one progress push and one final push, got %d: %+v", len(got), got)
	}
	if got[0].body != "load-contents: 1/3 processed" {
		t.Fatalf("unexpected progress body %q", got[0].body)
	}
	if got[1].title != "comicvault - Import Complete (with errors)" {
		t.Fatalf("unexpected final title %q", got[1].title)
	}
	if got[1].body != "2 imported, 0 deferred, 1 failed" {
		t.Fatalf("unexpected final body %q", got[1].body)
	}
}

func TestNtfyImportAndFailureNotices(t *testing.T) {
	srv, seen := newServer(t)
	n := progress.NewNtfy(ntfyConfig(srv.URL))
	rec := comic.New("/library/saga-001.cbz")
	rec.Metadata.Series = "Saga"
	rec.Metadata.Number = "1"
	rec.Pages = make([]comic.Page, 4)

	if err := n.NotifyImported(context.Background(), rec); err != nil {
		t.Fatalf("notify imported: %v", err)
	}
	if err := n.NotifyFailure(context.Background(), rec, "load-contents", errors.New("archive unreadable")); err != nil {
		t.Fatalf("notify failure: %v", err)
	}
	got := seen()
	if len(got) != 2 {
		t.Fatalf("expected two pushes, got %d", len(got))
	}
	if !strings.Contains(got[0].body, "Saga #1 (4 pages)") {
		t.Fatalf("unexpected import body %q", got[0].body)
	}
	if got[1].prio != "high" || !strings.Contains(got[1].body, "load-contents failed for Saga #1: archive unreadable") {
		t.Fatalf("unexpected failure push %+v", got[1])
	}
}

func TestNtfyImportsDisabled(t *testing.T) {
	srv, seen := newServer(t)
	cfg := ntfyConfig(srv.URL)
	cfg.Progress.Imports = false
	n := progress.NewNtfy(cfg)
	if err := n.NotifyImported(context.Background(), comic.New("/x.cbz")); err != nil {
		t.Fatalf("notify imported: %v", err)
	}
	if len(seen()) != 0 {
		t.Fatal("expected no push when import notices are disabled")
	}
}

func TestNtfyErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic forbidden", http.StatusForbidden)
	}))
	defer srv.Close()
	n := progress.NewNtfy(ntfyConfig(srv.URL))
	err := n.Publish(context.Background(), progress.Snapshot{})
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}

func TestFanoutAndRecorder(t *testing.T) {
	first := &progress.Recorder{}
	second := &progress.Recorder{}
	n := progress.Fanout(first, nil, second)
	rec := comic.New("/a.cbz")
	rec.ID = 5

	if err := n.Publish(context.Background(), progress.Snapshot{JobID: "j1", Active: true}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := n.NotifyImported(context.Background(), rec); err != nil {
		t.Fatalf("imported: %v", err)
	}
	for _, r := range []*progress.Recorder{first, second} {
		last, ok := r.Last()
		if !ok || last.JobID != "j1" {
			t.Fatalf("recorder missed snapshot: %+v", last)
		}
		if ids := r.Imported(); len(ids) != 1 || ids[0] != 5 {
			t.Fatalf("recorder missed import: %v", ids)
		}
	}
}

func TestTitle(t *testing.T) {
	rec := comic.New("/lib/Some Book.cbz")
	if got := progress.Title(rec); got != "Some Book.cbz" {
		t.Fatalf("fallback title %q", got)
	}
	rec.Metadata.Title = "One Shot"
	if got := progress.Title(rec); got != "One Shot" {
		t.Fatalf("title %q", got)
	}
	rec.Metadata.Series = "Saga"
	rec.Metadata.Number = "12"
	if got := progress.Title(rec); got != "Saga #12" {
		t.Fatalf("series title %q", got)
	}
}
