package lifecycle_test

import (
	"errors"
	"testing"

	"comicvault/internal/comic"
	"comicvault/internal/lifecycle"
)

func readyRecord() *comic.Record {
	rec := comic.New("/library/a.cbz")
	rec.ID = 1
	rec.File = comic.FileDetails{Size: 10, Hash: "abc"}
	rec.ContentsLoaded = true
	rec.BlockedPagesMarked = true
	rec.Cataloged = true
	return rec
}

func TestHappyPathIsStrictlyOrdered(t *testing.T) {
	rec := readyRecord()
	state := comic.StateCreated
	steps := []struct {
		event lifecycle.Event
		want  comic.State
	}{
		{lifecycle.EventFileContentsLoaded, comic.StateFileContentsLoaded},
		{lifecycle.EventBlockedPagesMarked, comic.StateBlockedPagesMarked},
		{lifecycle.EventReadyForProcessing, comic.StateReadyForProcessing},
		{lifecycle.EventRecordInserted, comic.StateProcessed},
	}
	for _, step := range steps {
		next, err := lifecycle.Transition(state, step.event, lifecycle.Context{Record: rec})
		if err != nil {
			t.Fatalf("%s from %s: %v", step.event, state, err)
		}
		if next != step.want || next.Rank() != state.Rank()+1 {
			t.Fatalf("%s from %s = %s, want %s", step.event, state, next, step.want)
		}
		state = next
	}
}

func TestSkippingAndReentryAreInvalid(t *testing.T) {
	rec := readyRecord()
	tests := []struct {
		from  comic.State
		event lifecycle.Event
	}{
		{comic.StateCreated, lifecycle.EventBlockedPagesMarked},
		{comic.StateCreated, lifecycle.EventRecordInserted},
		{comic.StateFileContentsLoaded, lifecycle.EventFileContentsLoaded},
		{comic.StateProcessed, lifecycle.EventReadyForProcessing},
		{comic.StateCreated, lifecycle.EventDetailsUpdated},
		{comic.StateDeleted, lifecycle.EventMarkedForDeletion},
		{comic.StateDeleted, lifecycle.EventReprocess},
	}
	for _, tt := range tests {
		next, err := lifecycle.Transition(tt.from, tt.event, lifecycle.Context{Record: rec})
		if !errors.Is(err, lifecycle.ErrInvalidTransition) {
			t.Fatalf("%s from %s: expected ErrInvalidTransition, got %v", tt.event, tt.from, err)
		}
		if next != tt.from {
			t.Fatalf("state changed on invalid transition: %s", next)
		}
	}
}

func TestGuardFailures(t *testing.T) {
	tests := []struct {
		name      string
		from      comic.State
		event     lifecycle.Event
		mutate    func(*comic.Record)
		guard     string
		retryable bool
	}{
		{"missing file blocks load", comic.StateCreated, lifecycle.EventFileContentsLoaded,
			func(r *comic.Record) { r.Missing = true }, lifecycle.GuardMissingFile, false},
		{"contents not loaded", comic.StateCreated, lifecycle.EventFileContentsLoaded,
			func(r *comic.Record) { r.ContentsLoaded = false }, lifecycle.GuardContentsLoaded, true},
		{"blocked pages not marked", comic.StateFileContentsLoaded, lifecycle.EventBlockedPagesMarked,
			func(r *comic.Record) { r.BlockedPagesMarked = false }, lifecycle.GuardBlockedPagesMarked, true},
		{"file details missing", comic.StateBlockedPagesMarked, lifecycle.EventReadyForProcessing,
			func(r *comic.Record) { r.File = comic.FileDetails{} }, lifecycle.GuardContentsProcessed, true},
		{"missing file blocks ready", comic.StateBlockedPagesMarked, lifecycle.EventReadyForProcessing,
			func(r *comic.Record) { r.Missing = true }, lifecycle.GuardMissingFile, false},
		{"not cataloged", comic.StateReadyForProcessing, lifecycle.EventRecordInserted,
			func(r *comic.Record) { r.Cataloged = false }, lifecycle.GuardRecordPersisted, true},
		{"missing file blocks details", comic.StateProcessed, lifecycle.EventDetailsUpdated,
			func(r *comic.Record) { r.Missing = true }, lifecycle.GuardMissingFile, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := readyRecord()
			tt.mutate(rec)
			next, err := lifecycle.Transition(tt.from, tt.event, lifecycle.Context{Record: rec})
			gf, ok := lifecycle.IsGuardFailure(err)
			if !ok {
				t.Fatalf("expected guard failure, got %v", err)
			}
			if gf.Guard != tt.guard || gf.Retryable != tt.retryable {
				t.Fatalf("unexpected guard failure %+v", gf)
			}
			if next != tt.from {
				t.Fatalf("state changed on guard failure: %s", next)
			}
		})
	}
}

func TestDeleteAndReprocessFromAnyLiveState(t *testing.T) {
	for _, from := range comic.AllStates() {
		if from == comic.StateDeleted {
			continue
		}
		if next, err := lifecycle.Transition(from, lifecycle.EventMarkedForDeletion, lifecycle.Context{}); err != nil || next != comic.StateDeleted {
			t.Fatalf("delete from %s = %s, %v", from, next, err)
		}
		if next, err := lifecycle.Transition(from, lifecycle.EventReprocess, lifecycle.Context{}); err != nil || next != comic.StateCreated {
			t.Fatalf("reprocess from %s = %s, %v", from, next, err)
		}
	}
}

func TestDetailsUpdatedKeepsState(t *testing.T) {
	rec := readyRecord()
	next, err := lifecycle.Transition(comic.StateBlockedPagesMarked, lifecycle.EventDetailsUpdated, lifecycle.Context{Record: rec})
	if err != nil || next != comic.StateBlockedPagesMarked {
		t.Fatalf("detailsUpdated = %s, %v", next, err)
	}
}

func TestEventFor(t *testing.T) {
	if e, ok := lifecycle.EventFor(comic.StateBlockedPagesMarked); !ok || e != lifecycle.EventReadyForProcessing {
		t.Fatalf("EventFor = %s, %v", e, ok)
	}
	if _, ok := lifecycle.EventFor(comic.StateProcessed); ok {
		t.Fatal("processed has no next step")
	}
}
