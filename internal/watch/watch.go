package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"comicvault/internal/batch"
	"comicvault/internal/config"
	"comicvault/internal/logging"
)

// Importer runs an import job over candidate paths.
type Importer interface {
	Import(ctx context.Context, paths []string) (batch.Result, error)
}

// Watcher watches a directory tree and imports new archives.
type Watcher struct {
	root     string
	cfg      *config.Config
	importer Importer
	logger   *slog.Logger
	debounce time.Duration
	fsw      *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	queued  []string
	kick    chan struct{}
}

// New prepares a watcher for root and every directory below it.
func New(cfg *config.Config, root string, importer Importer, logger *slog.Logger) (*Watcher, error) {
	if importer == nil {
		return nil, fmt.Errorf("watch: importer is required")
	}
	abs, err := config.ExpandPath(root)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch: %s is not a directory", abs)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	debounce := 2 * time.Second
	if cfg != nil && cfg.Watch.DebounceMillis > 0 {
		debounce = time.Duration(cfg.Watch.DebounceMillis) * time.Millisecond
	}
	w := &Watcher{
		root:     abs,
		cfg:      cfg,
		importer: importer,
		logger:   logging.NewComponentLogger(logger, "watch"),
		debounce: debounce,
		fsw:      fsw,
		pending:  make(map[string]struct{}),
		kick:     make(chan struct{}, 1),
	}
	if err := w.addTree(abs, false); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Root returns the watched directory.
func (w *Watcher) Root() string { return w.root }

// Run processes events until ctx is cancelled. Imports run one at a time;
// paths that settle during an import are picked up by the next one.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.importLoop(ctx)
	}()
	defer wg.Wait()
	defer w.stopTimer()

	w.logger.Info("watching for new archives",
		logging.String(logging.FieldEventType, "watch_start"),
		logging.String("root", w.root),
		logging.Duration("debounce", w.debounce),
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logging.Warn(w.logger, "watcher error",
				logging.Problem{Event: "watch_error", Impact: "some file events may have been dropped", Hint: "run comicvault import on the directory to catch up"},
				logging.Error(err),
			)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if hidden(event.Name) {
		return
	}
	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if event.Has(fsnotify.Create) {
			if err := w.addTree(event.Name, true); err != nil {
				logging.Warn(w.logger, "failed to watch new directory",
					logging.Problem{Event: "watch_add_failed", Impact: "files in this directory are not watched", Hint: "check directory permissions and the inotify watch limit"},
					logging.String("dir", event.Name),
					logging.Error(err),
				)
			}
		}
		return
	}
	if !info.Mode().IsRegular() || !w.accepts(event.Name) {
		return
	}
	w.schedule(event.Name)
}

// addTree watches dir and its subdirectories. When scan is set, archives
// already present are scheduled, since they may have landed before the
// watch was added.
func (w *Watcher) addTree(dir string, scan bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != dir && hidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if err := w.fsw.Add(path); err != nil {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}
			return nil
		}
		if scan && d.Type().IsRegular() && w.accepts(path) {
			w.schedule(path)
		}
		return nil
	})
}

func (w *Watcher) accepts(path string) bool {
	if w.cfg == nil {
		return true
	}
	return w.cfg.AcceptsExtension(path)
}

// schedule debounces a path. Every new event restarts the quiet period.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[path] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	for path := range w.pending {
		w.queued = append(w.queued, path)
	}
	clear(w.pending)
	w.timer = nil
	w.mu.Unlock()

	select {
	case w.kick <- struct{}{}:
	default:
	}
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *Watcher) take() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	paths := w.queued
	w.queued = nil
	sort.Strings(paths)
	return paths
}

func (w *Watcher) importLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.kick:
		}
		paths := w.take()
		if len(paths) == 0 {
			continue
		}
		w.logger.Info("importing settled files",
			logging.String(logging.FieldEventType, "watch_import"),
			logging.Int("paths", len(paths)),
		)
		result, err := w.importer.Import(ctx, paths)
		if err != nil {
			logging.Fail(w.logger, "watch import failed",
				logging.Problem{Event: "watch_import_failed", Hint: "files stay on disk and are retried by comicvault run"},
				logging.Error(err),
			)
			continue
		}
		w.logger.Info("watch import finished",
			logging.String(logging.FieldEventType, "watch_import_complete"),
			logging.String("job_id", result.JobID),
			logging.Int("advanced", result.Count(batch.OutcomeAdvanced)),
			logging.Int("fatal", result.Count(batch.OutcomeFatal)),
		)
	}
}

func hidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
