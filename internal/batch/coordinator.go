package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"comicvault/internal/comic"
	"comicvault/internal/lifecycle"
	"comicvault/internal/logging"
	"comicvault/internal/progress"
	"comicvault/internal/services"
	"comicvault/internal/stage"
	"comicvault/internal/stageexec"
)

// Step binds a stage handler to the lifecycle event committed after it.
type Step struct {
	From    comic.State
	Event   lifecycle.Event
	Handler stage.Handler
}

// Name is the handler's stage name.
func (s Step) Name() string {
	if s.Handler == nil {
		return string(s.Event)
	}
	return s.Handler.Name()
}

// Claimer grants exclusive ownership of a source path.
type Claimer interface {
	Acquire(path string) (release func(), err error)
}

// Job is one batch run.
type Job struct {
	ID        string
	Records   []*comic.Record
	ChunkSize int
	Workers   int
}

// ItemResult is the final outcome for one record.
type ItemResult struct {
	ComicID    int64
	SourcePath string
	Stage      string
	State      comic.State
	Outcome    Outcome
	Err        error
}

// Result summarizes a job.
type Result struct {
	JobID    string
	Items    []ItemResult
	Stopped  bool
	Duration time.Duration
}

// Count returns the number of items with outcome.
func (r Result) Count(outcome Outcome) int {
	n := 0
	for _, item := range r.Items {
		if item.Outcome == outcome {
			n++
		}
	}
	return n
}

// Item returns the result for record id.
func (r Result) Item(id int64) (ItemResult, bool) {
	for _, item := range r.Items {
		if item.ComicID == id {
			return item, true
		}
	}
	return ItemResult{}, false
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClaims serializes workers on source paths.
func WithClaims(c Claimer) Option {
	return func(co *Coordinator) { co.claims = c }
}

// WithPublisher sets where progress snapshots go.
func WithPublisher(p progress.Publisher) Option {
	return func(co *Coordinator) {
		if p != nil {
			co.publisher = p
		}
	}
}

// WithFailureRecorder persists stage failures on records.
func WithFailureRecorder(r stageexec.FailureRecorder) Option {
	return func(co *Coordinator) { co.recorder = r }
}

// WithFailureNotifier announces stage failures.
func WithFailureNotifier(n stageexec.FailureNotifier) Option {
	return func(co *Coordinator) { co.notifier = n }
}

// Coordinator runs jobs. A stopped coordinator stays stopped.
type Coordinator struct {
	machine   *lifecycle.Machine
	steps     []Step
	claims    Claimer
	publisher progress.Publisher
	recorder  stageexec.FailureRecorder
	notifier  stageexec.FailureNotifier
	logger    *slog.Logger
	stopped   atomic.Bool
}

// New builds a coordinator running steps in the given order.
func New(machine *lifecycle.Machine, steps []Step, logger *slog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		machine:   machine,
		steps:     append([]Step(nil), steps...),
		publisher: progress.NewLogPublisher(logger),
		logger:    logging.NewComponentLogger(logger, "batch"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Stop asks the running job to end after the current chunk.
func (c *Coordinator) Stop() {
	c.stopped.Store(true)
}

// Stopped reports whether Stop was called.
func (c *Coordinator) Stopped() bool {
	return c.stopped.Load()
}

type tracked struct {
	rec    *comic.Record
	result ItemResult
	seen   bool
	done   bool
}

// Run drives job.Records through every step. Cancelling ctx behaves like
// Stop: the current chunk finishes and no further chunk starts.
func (c *Coordinator) Run(ctx context.Context, job Job) (Result, error) {
	if c.machine == nil {
		return Result{}, fmt.Errorf("batch: lifecycle machine is required")
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.ChunkSize <= 0 {
		job.ChunkSize = 50
	}
	if job.Workers <= 0 {
		job.Workers = 1
	}
	ctx = services.WithRequestID(ctx, job.ID)
	logger := logging.WithContext(ctx, c.logger)
	started := time.Now()

	items := make([]*tracked, 0, len(job.Records))
	for _, rec := range job.Records {
		if rec == nil {
			continue
		}
		items = append(items, &tracked{rec: rec, result: ItemResult{
			ComicID:    rec.ID,
			SourcePath: rec.SourcePath,
			State:      rec.State,
		}})
	}

	logger.Info("batch job started",
		logging.String(logging.FieldEventType, "job_start"),
		logging.Int("records", len(items)),
		logging.Int("chunk_size", job.ChunkSize),
		logging.Int("workers", job.Workers),
	)

	stopped := false
	counts := &progressCounts{}
steps:
	for _, step := range c.steps {
		eligible := c.eligible(items, step, counts)
		if len(eligible) == 0 {
			continue
		}
		processed := 0
		for start := 0; start < len(eligible); start += job.ChunkSize {
			if c.stopped.Load() || ctx.Err() != nil {
				stopped = true
				break steps
			}
			end := min(start+job.ChunkSize, len(eligible))
			c.runChunk(ctx, job, step, eligible[start:end], counts)
			processed += end - start
			c.publish(ctx, logger, progress.Snapshot{
				JobID:     job.ID,
				Active:    true,
				Stage:     step.Name(),
				Processed: processed,
				Total:     len(eligible),
				Advanced:  counts.advanced,
				Rejected:  counts.rejected,
				Failed:    counts.failed,
				UpdatedAt: time.Now().UTC(),
			})
		}
	}

	result := Result{JobID: job.ID, Stopped: stopped, Duration: time.Since(started)}
	for _, item := range items {
		if item.seen {
			item.result.State = item.rec.State
			result.Items = append(result.Items, item.result)
		}
	}
	advanced := result.Count(OutcomeAdvanced)
	rejected := result.Count(OutcomeGuardRejected)
	failed := result.Count(OutcomeFatal)
	c.publish(ctx, logger, progress.Snapshot{
		JobID:     job.ID,
		Active:    false,
		Processed: len(result.Items),
		Total:     len(items),
		Advanced:  advanced,
		Rejected:  rejected,
		Failed:    failed,
		UpdatedAt: time.Now().UTC(),
	})
	logger.Info("batch job finished",
		logging.String(logging.FieldEventType, "job_complete"),
		logging.Int("advanced", advanced),
		logging.Int("guard_rejected", rejected),
		logging.Int("fatal", failed),
		logging.Bool("stopped", stopped),
		logging.Duration("elapsed", result.Duration),
	)
	return result, nil
}

type progressCounts struct {
	advanced int
	rejected int
	failed   int
}

// eligible picks records whose state matches the step start. Records
// already known to be missing are failed here without running the stage.
func (c *Coordinator) eligible(items []*tracked, step Step, counts *progressCounts) []*tracked {
	out := make([]*tracked, 0, len(items))
	for _, item := range items {
		if item.done || item.rec.State != step.From {
			continue
		}
		if item.rec.Missing {
			c.settle(item, step, fmt.Errorf("%w: %s", ErrSourceMissing, item.rec.SourcePath), counts)
			continue
		}
		out = append(out, item)
	}
	return out
}

func (c *Coordinator) runChunk(ctx context.Context, job Job, step Step, chunk []*tracked, counts *progressCounts) {
	// In-flight records finish even if the job is stopped or cancelled.
	runCtx := context.WithoutCancel(ctx)
	errs := make([]error, len(chunk))

	sem := make(chan struct{}, job.Workers)
	var wg sync.WaitGroup
	for i, item := range chunk {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			errs[i] = c.runItem(runCtx, step, item.rec)
		}()
	}
	wg.Wait()

	for i, item := range chunk {
		err := errs[i]
		if err == nil {
			_, err = c.machine.Fire(runCtx, item.rec, step.Event, step.Name())
		}
		c.settle(item, step, err, counts)
	}
}

func (c *Coordinator) runItem(ctx context.Context, step Step, rec *comic.Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage %s panicked: %v", step.Name(), r)
		}
	}()
	if c.claims != nil {
		release, err := c.claims.Acquire(rec.SourcePath)
		if err != nil {
			return err
		}
		defer release()
	}
	return stageexec.Run(ctx, stageexec.Options{
		Logger:   c.logger,
		Recorder: c.recorder,
		Notifier: c.notifier,
		Handler:  step.Handler,
		Record:   rec,
	})
}

func (c *Coordinator) settle(item *tracked, step Step, err error, counts *progressCounts) {
	outcome := Classify(err)
	item.seen = true
	item.result.Stage = step.Name()
	item.result.Outcome = outcome
	item.result.Err = err
	switch outcome {
	case OutcomeAdvanced:
		counts.advanced++
	case OutcomeGuardRejected:
		counts.rejected++
		item.done = true
	default:
		counts.failed++
		item.done = true
	}
}

func (c *Coordinator) publish(ctx context.Context, logger *slog.Logger, snap progress.Snapshot) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(ctx, snap); err != nil {
		logging.Warn(logger, "progress publish failed",
			logging.Problem{Event: "progress_publish_failed", Impact: "job continues without this update"},
			logging.Error(err),
		)
	}
}
