package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"comicvault/internal/comic"
	"comicvault/internal/config"
	"comicvault/internal/logging"
)

// Snapshot reports where a job stands. While the job is active the
// Advanced, Rejected and Failed counters count transitions; the final
// snapshot counts records.
type Snapshot struct {
	JobID     string    `json:"job_id"`
	Active    bool      `json:"active"`
	Stage     string    `json:"stage,omitempty"`
	Processed int       `json:"processed"`
	Total     int       `json:"total"`
	Advanced  int       `json:"advanced"`
	Rejected  int       `json:"rejected"`
	Failed    int       `json:"failed"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Publisher receives snapshots.
type Publisher interface {
	Publish(ctx context.Context, snap Snapshot) error
}

// Notifier is a Publisher that also announces per-record events.
type Notifier interface {
	Publisher
	NotifyImported(ctx context.Context, rec *comic.Record) error
	NotifyFailure(ctx context.Context, rec *comic.Record, stageName string, err error) error
}

// New builds the configured notifier: always a log publisher, plus ntfy when
// a topic is set.
func New(cfg *config.Config, logger *slog.Logger) Notifier {
	log := NewLogPublisher(logger)
	if cfg == nil || strings.TrimSpace(cfg.Progress.NtfyTopic) == "" {
		return log
	}
	return Fanout(log, NewNtfy(cfg))
}

// LogPublisher writes snapshots as structured log lines.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher returns a publisher logging through logger.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logging.NewComponentLogger(logger, "progress")}
}

func (p *LogPublisher) Publish(ctx context.Context, snap Snapshot) error {
	msg := "job progress"
	if !snap.Active {
		msg = "job finished"
	}
	p.logger.InfoContext(ctx, msg,
		logging.String(logging.FieldEventType, "job_progress"),
		logging.String(logging.FieldCorrelationID, snap.JobID),
		logging.String(logging.FieldStage, snap.Stage),
		logging.Int("processed", snap.Processed),
		logging.Int("total", snap.Total),
		logging.Int("advanced", snap.Advanced),
		logging.Int("rejected", snap.Rejected),
		logging.Int("failed", snap.Failed),
	)
	return nil
}

func (p *LogPublisher) NotifyImported(ctx context.Context, rec *comic.Record) error {
	p.logger.InfoContext(ctx, "comic imported",
		logging.String(logging.FieldEventType, "comic_imported"),
		logging.Int64(logging.FieldComicID, rec.ID),
		logging.String("title", Title(rec)),
		logging.Int("pages", len(rec.Pages)),
	)
	return nil
}

func (p *LogPublisher) NotifyFailure(context.Context, *comic.Record, string, error) error {
	// The stage runner already logs failures.
	return nil
}

type fanout []Notifier

// Fanout forwards to every notifier and joins their errors.
func Fanout(notifiers ...Notifier) Notifier {
	out := make(fanout, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

func (f fanout) Publish(ctx context.Context, snap Snapshot) error {
	var errs []error
	for _, n := range f {
		if err := n.Publish(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) NotifyImported(ctx context.Context, rec *comic.Record) error {
	var errs []error
	for _, n := range f {
		if err := n.NotifyImported(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) NotifyFailure(ctx context.Context, rec *comic.Record, stageName string, err error) error {
	var errs []error
	for _, n := range f {
		if nerr := n.NotifyFailure(ctx, rec, stageName, err); nerr != nil {
			errs = append(errs, nerr)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps everything it receives in memory.
type Recorder struct {
	mu        sync.Mutex
	snapshots []Snapshot
	imported  []int64
	failures  []string
}

func (r *Recorder) Publish(_ context.Context, snap Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, snap)
	return nil
}

func (r *Recorder) NotifyImported(_ context.Context, rec *comic.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.imported = append(r.imported, rec.ID)
	return nil
}

func (r *Recorder) NotifyFailure(_ context.Context, rec *comic.Record, stageName string, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, fmt.Sprintf("%s: %s: %v", stageName, rec.SourcePath, err))
	return nil
}

// Snapshots returns a copy of recorded snapshots.
func (r *Recorder) Snapshots() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.snapshots...)
}

// Last returns the most recent snapshot.
func (r *Recorder) Last() (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snapshots) == 0 {
		return Snapshot{}, false
	}
	return r.snapshots[len(r.snapshots)-1], true
}

// Imported returns ids announced as imported.
func (r *Recorder) Imported() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.imported...)
}

// Failures returns recorded stage failures.
func (r *Recorder) Failures() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.failures...)
}

// Title renders a short human label for rec.
func Title(rec *comic.Record) string {
	if rec == nil {
		return ""
	}
	md := rec.Metadata
	label := strings.TrimSpace(md.Series)
	if label == "" {
		label = strings.TrimSpace(md.Title)
	}
	if label == "" {
		parts := strings.Split(strings.ReplaceAll(rec.SourcePath, "\\", "/"), "/")
		label = parts[len(parts)-1]
	}
	if n := strings.TrimSpace(md.Number); n != "" && strings.TrimSpace(md.Series) != "" {
		label = fmt.Sprintf("%s #%s", label, n)
	}
	return label
}
