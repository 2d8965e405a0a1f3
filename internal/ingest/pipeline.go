package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"comicvault/internal/archive"
	"comicvault/internal/batch"
	"comicvault/internal/comic"
	"comicvault/internal/config"
	"comicvault/internal/entry"
	"comicvault/internal/library"
	"comicvault/internal/lifecycle"
	"comicvault/internal/logging"
	"comicvault/internal/pagecache"
	"comicvault/internal/progress"
	"comicvault/internal/services"
	"comicvault/internal/stage"
	"comicvault/internal/staging"
)

// staleLockAge is how old an unheld claim lock must be before startup
// removes it.
const staleLockAge = 24 * time.Hour

// Steps returns the ingestion steps in lifecycle order.
func Steps(cfg *config.Config, store *library.Store, registry *archive.Registry, dispatcher *entry.Dispatcher, cache *pagecache.Manager, logger *slog.Logger) []batch.Step {
	load := NewLoadContents(store, registry, dispatcher, cache, logger)
	return []batch.Step{
		{From: comic.StateCreated, Event: lifecycle.EventFileContentsLoaded, Handler: load},
		{From: comic.StateFileContentsLoaded, Event: lifecycle.EventBlockedPagesMarked, Handler: NewMarkBlockedPages(cfg, store, registry, load, logger)},
		{From: comic.StateBlockedPagesMarked, Event: lifecycle.EventReadyForProcessing, Handler: NewReadyForProcessing(store, logger)},
		{From: comic.StateReadyForProcessing, Event: lifecycle.EventRecordInserted, Handler: NewInsertRecord(store, logger)},
	}
}

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	notifier progress.Notifier
	registry *archive.Registry
}

// WithNotifier replaces the notifier built from config.
func WithNotifier(n progress.Notifier) Option {
	return func(o *engineOptions) { o.notifier = n }
}

// WithRegistry replaces the registry built from config.
func WithRegistry(r *archive.Registry) Option {
	return func(o *engineOptions) { o.registry = r }
}

// Engine wires the store, adaptors, lifecycle machine and coordinator that
// every ingestion entry point shares.
type Engine struct {
	cfg         *config.Config
	store       *library.Store
	registry    *archive.Registry
	machine     *lifecycle.Machine
	coordinator *batch.Coordinator
	notifier    progress.Notifier
	steps       []batch.Step
	logger      *slog.Logger
}

// NewEngine builds an engine. Registry errors abort construction.
func NewEngine(ctx context.Context, cfg *config.Config, store *library.Store, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if cfg == nil || store == nil {
		return nil, fmt.Errorf("ingest: config and store are required")
	}
	var o engineOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	registry := o.registry
	if registry == nil {
		var err error
		registry, err = archive.NewDefaultRegistry(cfg, logger)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "", "build archive registry", "Invalid [archive.bindings]", err)
		}
	}
	notifier := o.notifier
	if notifier == nil {
		notifier = progress.New(cfg, logger)
	}
	if err := store.SeedBlockedHashes(ctx, cfg.Ingest.BlockedHashes); err != nil {
		return nil, fmt.Errorf("seed blocked hashes: %w", err)
	}
	claims, err := NewClaims(cfg.LockDir())
	if err != nil {
		return nil, err
	}
	staging.CleanStaleLocks(ctx, cfg.LockDir(), staleLockAge, logger)

	dispatcher := entry.NewDispatcher(logger)
	cache := pagecache.NewManager(cfg, logger)
	machine := lifecycle.NewMachine(store, logger,
		lifecycle.WithDescriptorRemover(store),
		lifecycle.WithImportNotifier(notifier),
	)
	steps := Steps(cfg, store, registry, dispatcher, cache, logger)
	coordinator := batch.New(machine, steps, logger,
		batch.WithClaims(claims),
		batch.WithPublisher(notifier),
		batch.WithFailureRecorder(store),
		batch.WithFailureNotifier(notifier),
	)
	return &Engine{
		cfg:         cfg,
		store:       store,
		registry:    registry,
		machine:     machine,
		coordinator: coordinator,
		notifier:    notifier,
		steps:       steps,
		logger:      logging.NewComponentLogger(logger, "ingest"),
	}, nil
}

// Registry exposes the archive registry.
func (e *Engine) Registry() *archive.Registry { return e.registry }

// Stop ends the running job after its current chunk.
func (e *Engine) Stop() { e.coordinator.Stop() }

// Health reports every stage handler's readiness.
func (e *Engine) Health(ctx context.Context) []stage.Health {
	out := make([]stage.Health, 0, len(e.steps))
	for _, step := range e.steps {
		out = append(out, step.Handler.HealthCheck(ctx))
	}
	return out
}

// Import enqueues paths and runs a job over them.
func (e *Engine) Import(ctx context.Context, paths []string) (batch.Result, error) {
	jobID := uuid.NewString()
	enq, err := Enqueue(ctx, e.cfg, e.store, paths, jobID, e.logger)
	if err != nil {
		return batch.Result{JobID: jobID}, err
	}
	return e.run(ctx, jobID, enq.Records)
}

// Resume runs a job over every non-terminal record in the library.
func (e *Engine) Resume(ctx context.Context) (batch.Result, error) {
	records, err := e.store.List(ctx, library.Filter{States: []comic.State{
		comic.StateCreated,
		comic.StateFileContentsLoaded,
		comic.StateBlockedPagesMarked,
		comic.StateReadyForProcessing,
	}})
	if err != nil {
		return batch.Result{}, err
	}
	return e.run(ctx, uuid.NewString(), records)
}

func (e *Engine) run(ctx context.Context, jobID string, records []*comic.Record) (batch.Result, error) {
	return e.coordinator.Run(ctx, batch.Job{
		ID:        jobID,
		Records:   records,
		ChunkSize: e.cfg.Ingest.ChunkSize,
		Workers:   e.cfg.Ingest.Workers,
	})
}

// Reprocess sends a record back to created and restores its import
// descriptor so the next run ingests it from scratch.
func (e *Engine) Reprocess(ctx context.Context, id int64) (*comic.Record, error) {
	rec, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := e.machine.Fire(ctx, rec, lifecycle.EventReprocess, "reprocess"); err != nil {
		return nil, err
	}
	if err := e.store.RestoreDescriptor(ctx, rec.ID, rec.SourcePath, ""); err != nil {
		return rec, fmt.Errorf("restore import descriptor: %w", err)
	}
	return rec, nil
}

// Delete marks a record deleted.
func (e *Engine) Delete(ctx context.Context, id int64) (*comic.Record, error) {
	rec, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := e.machine.Fire(ctx, rec, lifecycle.EventMarkedForDeletion, "delete"); err != nil {
		return nil, err
	}
	return rec, nil
}

// Refresh re-checks the source file of a record. A file that is back on
// disk clears the missing flag in any state. Records past the load stage
// also get their details re-measured and committed without a state change.
func (e *Engine) Refresh(ctx context.Context, id int64) (*comic.Record, error) {
	rec, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	info, err := stage.StatSource("refresh", rec)
	if err != nil {
		return nil, err
	}
	if info == nil {
		if err := markMissing(ctx, e.store, rec); err != nil {
			return nil, err
		}
		rec.Missing = true
	} else if rec.Missing {
		if err := e.store.SetMissing(ctx, rec.ID, false); err != nil {
			return nil, services.Wrap(services.ErrTransient, "refresh", "clear missing", "Could not clear missing flag", err)
		}
		rec.Missing = false
	}
	if !slices.Contains(lifecycle.Allowed(rec.State), lifecycle.EventDetailsUpdated) {
		// Nothing loaded yet; the next run starts from the archive itself.
		return rec, nil
	}
	if info != nil {
		if err := refreshDetails(rec); err != nil {
			return nil, err
		}
	}
	if _, err := e.machine.Fire(ctx, rec, lifecycle.EventDetailsUpdated, "refresh"); err != nil {
		return rec, err
	}
	if rec.State == comic.StateProcessed && rec.Cataloged {
		if err := e.store.UpsertCatalog(ctx, rec); err != nil {
			return rec, fmt.Errorf("update catalog: %w", err)
		}
	}
	return rec, nil
}

func (e *Engine) load(ctx context.Context, id int64) (*comic.Record, error) {
	rec, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, services.Wrap(services.ErrNotFound, "", "load record", fmt.Sprintf("No comic with id %d", id), nil)
	}
	return rec, nil
}
