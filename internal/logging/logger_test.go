package logging_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"comicvault/internal/config"
	"comicvault/internal/logging"
	"comicvault/internal/services"
)

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello from config")

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "comicvault.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "hello from config") {
		t.Fatalf("expected message in log file, got %q", content)
	}
}

func newFileLogger(t *testing.T, format, level string) (func(), string) {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "test.log")
	logger, err := logging.New(logging.Options{
		Format:           format,
		Level:            level,
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := services.WithStage(services.WithComicID(context.Background(), 7), "load_contents")
	emit := func() {
		component := logging.NewComponentLogger(logger, "ingest")
		logging.WithContext(ctx, component).Info("page loaded", logging.String("entry", "001 cover.jpg"))
	}
	return emit, logPath
}

func TestConsoleLoggerPrefixesComponentAndStage(t *testing.T) {
	emit, logPath := newFileLogger(t, "console", "info")
	emit()

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	if !strings.Contains(line, "INFO ingest[load_contents]: page loaded") {
		t.Fatalf("expected component/stage prefix, got %q", line)
	}
	if !strings.Contains(line, `entry="001 cover.jpg"`) {
		t.Fatalf("expected quoted value, got %q", line)
	}
	if !strings.Contains(line, "comic_id=7") {
		t.Fatalf("expected comic id field, got %q", line)
	}
	if strings.Contains(line, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", line)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	emit, logPath := newFileLogger(t, "console", "debug")
	emit()

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestJSONLoggerUsesCanonicalKeys(t *testing.T) {
	emit, logPath := newFileLogger(t, "json", "info")
	emit()

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(content))), &entry); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	for _, key := range []string{"ts", "level", "msg", logging.FieldComponent, logging.FieldComicID, logging.FieldStage} {
		if _, ok := entry[key]; !ok {
			t.Fatalf("expected key %q in %v", key, entry)
		}
	}
	if entry["level"] != "info" {
		t.Fatalf("expected lowercase level, got %v", entry["level"])
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestContextFields(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithComicID(ctx, 123)
	ctx = services.WithStage(ctx, "mark_blocked_pages")
	ctx = services.WithRequestID(ctx, "job-xyz")

	fields := logging.ContextFields(ctx)
	want := map[string]string{
		logging.FieldComicID:       "123",
		logging.FieldStage:         "mark_blocked_pages",
		logging.FieldCorrelationID: "job-xyz",
	}
	if len(fields) != len(want) {
		t.Fatalf("expected %d fields, got %d", len(want), len(fields))
	}
	for _, f := range fields {
		if want[f.Key] != f.Value.String() {
			t.Fatalf("field %s = %q, want %q", f.Key, f.Value.String(), want[f.Key])
		}
	}
}

func TestProblemFieldsOnWarnAndError(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "problems.log")
	logger, err := logging.New(logging.Options{
		Format:           "json",
		Level:            "info",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.Warn(logger, "entry skipped",
		logging.Problem{Event: "entry_load_failed"},
		logging.String("entry", "003.jpg"),
	)
	logging.Fail(logger, "stage failed",
		logging.Problem{Event: "stage_failure", Impact: "record left in place"},
	)
	logging.Warn(nil, "ignored", logging.Problem{Event: "nil_logger"})

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), content)
	}
	var warn, fail map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &warn); err != nil {
		t.Fatalf("decode warn: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &fail); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if warn["level"] != "warn" || warn[logging.FieldEventType] != "entry_load_failed" || warn["entry"] != "003.jpg" {
		t.Fatalf("unexpected warn line %v", warn)
	}
	if warn[logging.FieldImpact] == nil || warn[logging.FieldImpact] == "" {
		t.Fatalf("warn line must state an impact: %v", warn)
	}
	if _, ok := warn[logging.FieldErrorHint]; ok {
		t.Fatalf("warn line should not invent a hint: %v", warn)
	}
	if fail["level"] != "error" || fail[logging.FieldEventType] != "stage_failure" || fail[logging.FieldImpact] != "record left in place" {
		t.Fatalf("unexpected error line %v", fail)
	}
	if fail[logging.FieldErrorHint] == nil || fail[logging.FieldErrorHint] == "" {
		t.Fatalf("error line must carry a hint: %v", fail)
	}
}
