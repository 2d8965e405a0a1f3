package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"comicvault/internal/comic"
	"comicvault/internal/logging"
	"comicvault/internal/services"
)

// Committer durably records a transition. Implementations must apply the
// change only if the stored state still equals from.
type Committer interface {
	CommitTransition(ctx context.Context, rec *comic.Record, from comic.State, event string) error
}

// DescriptorRemover deletes the import descriptor staged for a record.
// Removing an absent descriptor is not an error.
type DescriptorRemover interface {
	RemoveDescriptor(ctx context.Context, comicID int64) error
}

// ImportNotifier is told when a record reaches the library.
type ImportNotifier interface {
	NotifyImported(ctx context.Context, rec *comic.Record) error
}

// Action runs before commit. A failure aborts the transition.
type Action func(ctx context.Context, rec *comic.Record) error

// Hook runs after a successful commit. Failures are logged only.
type Hook func(ctx context.Context, rec *comic.Record) error

// Option configures a Machine.
type Option func(*Machine)

// WithAction adds a pre-commit action for event. Actions run in the order
// they were added.
func WithAction(event Event, action Action) Option {
	return func(m *Machine) {
		if action != nil {
			m.actions[event] = append(m.actions[event], action)
		}
	}
}

// WithHook adds a post-commit hook for event.
func WithHook(event Event, hook Hook) Option {
	return func(m *Machine) {
		if hook != nil {
			m.hooks[event] = append(m.hooks[event], hook)
		}
	}
}

// WithDescriptorRemover removes import descriptors once a record is ready
// for processing or marked for deletion.
func WithDescriptorRemover(r DescriptorRemover) Option {
	return func(m *Machine) {
		if r == nil {
			return
		}
		remove := func(ctx context.Context, rec *comic.Record) error {
			if rec.ID <= 0 {
				return nil
			}
			return r.RemoveDescriptor(ctx, rec.ID)
		}
		m.actions[EventReadyForProcessing] = append(m.actions[EventReadyForProcessing], remove)
		m.actions[EventMarkedForDeletion] = append(m.actions[EventMarkedForDeletion], remove)
	}
}

// WithImportNotifier announces records reaching processed.
func WithImportNotifier(n ImportNotifier) Option {
	return func(m *Machine) {
		if n != nil {
			m.hooks[EventRecordInserted] = append(m.hooks[EventRecordInserted], n.NotifyImported)
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// Machine fires lifecycle events against records. It is safe for concurrent
// use across different records.
type Machine struct {
	committer Committer
	logger    *slog.Logger
	actions   map[Event][]Action
	hooks     map[Event][]Hook
	now       func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewMachine constructs a Machine. Reprocess always clears derived data and
// deletion always withdraws the record from the catalog.
func NewMachine(committer Committer, logger *slog.Logger, opts ...Option) *Machine {
	m := &Machine{
		committer: committer,
		logger:    logging.NewComponentLogger(logger, "lifecycle"),
		actions: map[Event][]Action{
			EventReprocess: {func(_ context.Context, rec *comic.Record) error {
				rec.ClearDerived()
				return nil
			}},
			EventMarkedForDeletion: {func(_ context.Context, rec *comic.Record) error {
				rec.Cataloged = false
				return nil
			}},
		},
		hooks:    make(map[Event][]Hook),
		now:      func() time.Time { return time.Now().UTC() },
		inflight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Fire runs the transition for event. On a guard failure or invalid
// transition the record is untouched. If the action or the commit fails the
// record is restored to its state before Fire.
func (m *Machine) Fire(ctx context.Context, rec *comic.Record, event Event, stage string) (comic.State, error) {
	if rec == nil {
		return "", fmt.Errorf("fire %s: nil record", event)
	}
	key := recordKey(rec)
	if !m.acquire(key) {
		return rec.State, fmt.Errorf("%w: %s on %s", ErrConcurrentTransition, event, key)
	}
	defer m.release(key)

	ctx = services.WithComicID(ctx, rec.ID)
	if stage != "" {
		ctx = services.WithStage(ctx, stage)
	}
	logger := logging.WithContext(ctx, m.logger)

	from := rec.State
	now := m.now()
	to, err := Transition(from, event, Context{Record: rec, Stage: stage, Now: now})
	if err != nil {
		m.logRejection(logger, rec, event, err)
		return from, err
	}

	snapshot := rec.Clone()
	restore := func() { *rec = *snapshot }

	for _, action := range m.actions[event] {
		if err := action(ctx, rec); err != nil {
			restore()
			return from, services.Wrap(services.ErrTransient, stage, string(event), "transition action failed", err)
		}
	}

	rec.State = to
	rec.UpdatedAt = now
	if m.committer != nil {
		if err := m.committer.CommitTransition(ctx, rec, from, string(event)); err != nil {
			restore()
			return from, fmt.Errorf("commit %s: %w", event, err)
		}
	}

	logger.Info("transition committed",
		logging.String(logging.FieldEventType, "lifecycle_transition"),
		logging.String("event", string(event)),
		logging.String("from", string(from)),
		logging.String("to", string(to)),
		logging.String(logging.FieldSourcePath, rec.SourcePath),
	)

	for _, hook := range m.hooks[event] {
		if err := hook(ctx, rec); err != nil {
			logging.Warn(logger, "post-transition hook failed",
				logging.Problem{Event: "lifecycle_hook_failed", Impact: "transition already committed"},
				logging.String("event", string(event)),
				logging.Error(err),
			)
		}
	}
	return to, nil
}

func (m *Machine) logRejection(logger *slog.Logger, rec *comic.Record, event Event, err error) {
	gf, ok := IsGuardFailure(err)
	if !ok {
		logger.Debug("transition rejected",
			logging.String(logging.FieldEventType, "lifecycle_invalid"),
			logging.String("event", string(event)),
			logging.String("from", string(rec.State)),
		)
		return
	}
	if gf.Guard == GuardMissingFile {
		logging.Warn(logger, "source file missing; transition blocked",
			logging.Problem{Event: "lifecycle_missing_file", Impact: "record stays in its current state", Hint: "restore the file and run comicvault refresh"},
			logging.String("event", string(event)),
			logging.String(logging.FieldSourcePath, rec.SourcePath),
		)
		return
	}
	logger.Info("transition deferred",
		logging.String(logging.FieldEventType, "lifecycle_guard_rejected"),
		logging.String("event", string(event)),
		logging.String("guard", gf.Guard),
		logging.String("reason", gf.Reason),
	)
}

func (m *Machine) acquire(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inflight[key]; busy {
		return false
	}
	m.inflight[key] = struct{}{}
	return true
}

func (m *Machine) release(key string) {
	m.mu.Lock()
	delete(m.inflight, key)
	m.mu.Unlock()
}

func recordKey(rec *comic.Record) string {
	if rec.ID > 0 {
		return fmt.Sprintf("comic#%d", rec.ID)
	}
	return "path:" + rec.SourcePath
}
