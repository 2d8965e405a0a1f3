package main

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"comicvault/internal/comic"
	"comicvault/internal/preflight"
	"comicvault/internal/stage"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Library directory", statusError, "does not exist", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Library directory:", "[ERROR] does not exist")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("ntfy", statusOK, "Reachable", true)
	if !strings.HasPrefix(got, ansiGreen) {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected reset suffix, got %q", got)
	}
}

func TestPreflightLines(t *testing.T) {
	lines := preflightLines([]preflight.Result{
		{Name: "Staging directory", Passed: true, Detail: "ok"},
		{Name: "7-Zip", Optional: true, Detail: "binary \"7z\" not found"},
		{Name: "Library directory", Detail: "does not exist"},
	}, false)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	for i, want := range []string{"[OK] ok", "[WARN] binary", "[ERROR] does not exist"} {
		if !strings.Contains(lines[i], want) {
			t.Fatalf("line %d: expected %q in %q", i, want, lines[i])
		}
	}
}

func TestHealthLines(t *testing.T) {
	lines := healthLines([]stage.Health{
		stage.Healthy("load-contents"),
		stage.Unhealthy("insert-record", "library unavailable"),
	}, false)
	if !strings.Contains(lines[0], "[OK] Ready") || !strings.Contains(lines[1], "[ERROR] library unavailable") {
		t.Fatalf("unexpected health lines %q", lines)
	}
}

func TestStateCell(t *testing.T) {
	if got := stateCell(comic.StateProcessed, false, false); got != "processed" {
		t.Fatalf("plain state cell = %q", got)
	}
	if got := stateCell(comic.StateCreated, true, false); got != "created (missing)" {
		t.Fatalf("missing state cell = %q", got)
	}
	if got := stateCell(comic.StateDeleted, false, true); !strings.Contains(got, "\x1b[") {
		t.Fatalf("expected ANSI color, got %q", got)
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}
