package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"comicvault/internal/comic"
	"comicvault/internal/lifecycle"
	"comicvault/internal/logging"
	"comicvault/internal/progress"
	"comicvault/internal/stage"
)

// scriptedLoad behaves according to markers in the source path.
type scriptedLoad struct {
	running atomic.Int32
	peak    atomic.Int32
}

func (h *scriptedLoad) Name() string { return "load-contents" }

func (h *scriptedLoad) Prepare(context.Context, *comic.Record) error { return nil }

func (h *scriptedLoad) Execute(ctx context.Context, rec *comic.Record) error {
	n := h.running.Add(1)
	defer h.running.Add(-1)
	for {
		peak := h.peak.Load()
		if n <= peak || h.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	switch {
	case strings.Contains(rec.SourcePath, "unreadable"):
		return errors.New("archive unreadable")
	case strings.Contains(rec.SourcePath, "missing"):
		rec.Missing = true
		return nil
	case strings.Contains(rec.SourcePath, "defer"):
		return nil
	case strings.Contains(rec.SourcePath, "panic"):
		panic("boom")
	}
	rec.ContentsLoaded = true
	return nil
}

func (h *scriptedLoad) HealthCheck(context.Context) stage.Health {
	return stage.Healthy("load-contents")
}

func records(paths ...string) []*comic.Record {
	out := make([]*comic.Record, len(paths))
	for i, p := range paths {
		rec := comic.New(p)
		rec.ID = int64(i + 1)
		out[i] = rec
	}
	return out
}

func newCoordinator(handler stage.Handler, opts ...Option) *Coordinator {
	machine := lifecycle.NewMachine(nil, logging.NewNop())
	steps := []Step{{From: comic.StateCreated, Event: lifecycle.EventFileContentsLoaded, Handler: handler}}
	return New(machine, steps, logging.NewNop(), opts...)
}

func TestRunIsolatesFailuresWithinChunk(t *testing.T) {
	rec := &progress.Recorder{}
	handler := &scriptedLoad{}
	c := newCoordinator(handler, WithPublisher(rec))
	recs := records("/a.cbz", "/unreadable.cbz", "/defer.cbz", "/missing.cbz", "/panic.cbz", "/b.cbz")

	result, err := c.Run(context.Background(), Job{ID: "job-1", Records: recs, ChunkSize: 6, Workers: 3})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := map[int64]Outcome{
		1: OutcomeAdvanced,
		2: OutcomeFatal,
		3: OutcomeGuardRejected,
		4: OutcomeFatal,
		5: OutcomeFatal,
		6: OutcomeAdvanced,
	}
	for id, outcome := range want {
		item, ok := result.Item(id)
		if !ok {
			t.Fatalf("missing result for %d", id)
		}
		if item.Outcome != outcome {
			t.Fatalf("record %d: outcome %s, want %s (err %v)", id, item.Outcome, outcome, item.Err)
		}
	}
	if recs[0].State != comic.StateFileContentsLoaded || recs[5].State != comic.StateFileContentsLoaded {
		t.Fatal("healthy records should advance")
	}
	if recs[2].State != comic.StateCreated || recs[3].State != comic.StateCreated {
		t.Fatal("rejected records must keep their state")
	}
	if recs[1].LastError == "" {
		t.Fatal("expected stage failure recorded on the record")
	}
	if peak := handler.peak.Load(); peak > 3 {
		t.Fatalf("worker pool exceeded bound: %d", peak)
	}
	if result.JobID != "job-1" || result.Stopped {
		t.Fatalf("unexpected result header %+v", result)
	}
}

func TestRunPublishesPerChunkAndFinal(t *testing.T) {
	rec := &progress.Recorder{}
	c := newCoordinator(&scriptedLoad{}, WithPublisher(rec))
	paths := make([]string, 5)
	for i := range paths {
		paths[i] = fmt.Sprintf("/issue-%d.cbz", i)
	}

	result, err := c.Run(context.Background(), Job{Records: records(paths...), ChunkSize: 2, Workers: 2})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.JobID == "" {
		t.Fatal("expected generated job id")
	}
	snaps := rec.Snapshots()
	if len(snaps) != 4 {
		t.Fatalf("expected 3 chunk snapshots and 1 final, got %d", len(snaps))
	}
	for i, want := range []int{2, 4, 5} {
		s := snaps[i]
		if !s.Active || s.Processed != want || s.Total != 5 || s.Stage != "load-contents" || s.JobID != result.JobID {
			t.Fatalf("snapshot %d unexpected: %+v", i, s)
		}
	}
	final := snaps[3]
	if final.Active || final.Advanced != 5 || final.Total != 5 {
		t.Fatalf("unexpected final snapshot %+v", final)
	}
}

type stopAfterFirst struct {
	c *Coordinator
	progress.Recorder
}

func (s *stopAfterFirst) Publish(ctx context.Context, snap progress.Snapshot) error {
	s.c.Stop()
	return s.Recorder.Publish(ctx, snap)
}

func TestStopHonouredBetweenChunks(t *testing.T) {
	pub := &stopAfterFirst{}
	c := newCoordinator(&scriptedLoad{}, WithPublisher(pub))
	pub.c = c
	recs := records("/1.cbz", "/2.cbz", "/3.cbz")

	result, err := c.Run(context.Background(), Job{Records: recs, ChunkSize: 1, Workers: 1})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !result.Stopped {
		t.Fatal("expected stopped result")
	}
	if len(result.Items) != 1 || recs[0].State != comic.StateFileContentsLoaded {
		t.Fatalf("expected exactly the first chunk to run, got %+v", result.Items)
	}
	if recs[1].State != comic.StateCreated {
		t.Fatal("later chunks must not run after Stop")
	}
}

func TestCancelledContextFinishesNothingNew(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := newCoordinator(&scriptedLoad{})
	result, err := c.Run(ctx, Job{Records: records("/1.cbz"), ChunkSize: 1, Workers: 1})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !result.Stopped || len(result.Items) != 0 {
		t.Fatalf("expected stopped job with no items, got %+v", result)
	}
}

type busyClaims struct{ busy string }

func (b busyClaims) Acquire(path string) (func(), error) {
	if path == b.busy {
		return nil, fmt.Errorf("%w: %s", ErrClaimed, path)
	}
	return func() {}, nil
}

func TestClaimedPathsAreDeferred(t *testing.T) {
	c := newCoordinator(&scriptedLoad{}, WithClaims(busyClaims{busy: "/held.cbz"}))
	recs := records("/held.cbz", "/free.cbz")
	result, err := c.Run(context.Background(), Job{Records: recs, ChunkSize: 10, Workers: 2})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if item, _ := result.Item(1); item.Outcome != OutcomeGuardRejected {
		t.Fatalf("held path outcome %s", item.Outcome)
	}
	if item, _ := result.Item(2); item.Outcome != OutcomeAdvanced {
		t.Fatalf("free path outcome %s", item.Outcome)
	}
}

func TestKnownMissingRecordsAreNotRun(t *testing.T) {
	handler := &scriptedLoad{}
	c := newCoordinator(handler)
	recs := records("/gone.cbz")
	recs[0].Missing = true
	result, err := c.Run(context.Background(), Job{Records: recs, ChunkSize: 1, Workers: 1})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	item, _ := result.Item(1)
	if item.Outcome != OutcomeFatal || !errors.Is(item.Err, ErrSourceMissing) {
		t.Fatalf("unexpected item %+v", item)
	}
	if handler.peak.Load() != 0 {
		t.Fatal("stage must not run for a known-missing record")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Outcome
	}{
		{"nil", nil, OutcomeAdvanced},
		{"retryable guard", &lifecycle.GuardFailure{Guard: lifecycle.GuardContentsLoaded, Retryable: true}, OutcomeGuardRejected},
		{"missing file guard", &lifecycle.GuardFailure{Guard: lifecycle.GuardMissingFile}, OutcomeFatal},
		{"concurrent", fmt.Errorf("wrap: %w", lifecycle.ErrConcurrentTransition), OutcomeGuardRejected},
		{"claimed", ErrClaimed, OutcomeGuardRejected},
		{"invalid", lifecycle.ErrInvalidTransition, OutcomeFatal},
		{"other", errors.New("disk on fire"), OutcomeFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Fatalf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}
