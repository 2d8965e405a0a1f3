package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"comicvault/internal/comic"
)

// Event triggers a lifecycle transition.
type Event string

const (
	EventFileContentsLoaded Event = "fileContentsLoaded"
	EventBlockedPagesMarked Event = "blockedPagesMarked"
	EventReadyForProcessing Event = "readyForProcessing"
	EventDetailsUpdated     Event = "detailsUpdated"
	EventRecordInserted     Event = "recordInserted"
	EventMarkedForDeletion  Event = "markedForDeletion"
	EventReprocess          Event = "reprocess"
)

// Events lists every event.
func Events() []Event {
	return []Event{
		EventFileContentsLoaded,
		EventBlockedPagesMarked,
		EventReadyForProcessing,
		EventDetailsUpdated,
		EventRecordInserted,
		EventMarkedForDeletion,
		EventReprocess,
	}
}

// ParseEvent accepts an event name.
func ParseEvent(value string) (Event, bool) {
	for _, e := range Events() {
		if string(e) == value {
			return e, true
		}
	}
	return "", false
}

// Context is the input guards evaluate. It carries no ambient state.
type Context struct {
	Record *comic.Record
	Stage  string
	Now    time.Time
}

// ErrInvalidTransition reports an event that is not allowed from the current
// state, including re-entry into a stage that already completed.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// ErrConcurrentTransition reports a second Fire on a record whose transition
// is still in flight.
var ErrConcurrentTransition = errors.New("concurrent lifecycle transition")

func invalid(from comic.State, event Event) error {
	return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, event, from)
}

// GuardFailure reports a precondition that did not hold. The record is
// unchanged. Retryable failures are expected to pass on a later run.
type GuardFailure struct {
	Guard     string
	Event     Event
	From      comic.State
	Reason    string
	Retryable bool
}

func (g *GuardFailure) Error() string {
	return fmt.Sprintf("guard %s rejected %s from %s: %s", g.Guard, g.Event, g.From, g.Reason)
}
