package lifecycle

import (
	"errors"

	"comicvault/internal/comic"
)

type rule struct {
	from   []comic.State
	event  Event
	to     comic.State
	same   bool
	guards []Guard
}

var nonDeleted = []comic.State{
	comic.StateCreated,
	comic.StateFileContentsLoaded,
	comic.StateBlockedPagesMarked,
	comic.StateReadyForProcessing,
	comic.StateProcessed,
}

var rules = []rule{
	{
		from:   []comic.State{comic.StateCreated},
		event:  EventFileContentsLoaded,
		to:     comic.StateFileContentsLoaded,
		guards: []Guard{missingFileGuard, contentsLoadedGuard},
	},
	{
		from:   []comic.State{comic.StateFileContentsLoaded},
		event:  EventBlockedPagesMarked,
		to:     comic.StateBlockedPagesMarked,
		guards: []Guard{missingFileGuard, blockedPagesMarkedGuard},
	},
	{
		from:   []comic.State{comic.StateBlockedPagesMarked},
		event:  EventReadyForProcessing,
		to:     comic.StateReadyForProcessing,
		guards: []Guard{missingFileGuard, contentsProcessedGuard},
	},
	{
		from:   []comic.State{comic.StateReadyForProcessing},
		event:  EventRecordInserted,
		to:     comic.StateProcessed,
		guards: []Guard{recordPersistedGuard},
	},
	{
		from: []comic.State{
			comic.StateFileContentsLoaded,
			comic.StateBlockedPagesMarked,
			comic.StateReadyForProcessing,
			comic.StateProcessed,
		},
		event:  EventDetailsUpdated,
		same:   true,
		guards: []Guard{missingFileGuard},
	},
	{from: nonDeleted, event: EventMarkedForDeletion, to: comic.StateDeleted},
	{from: nonDeleted, event: EventReprocess, to: comic.StateCreated},
}

type ruleKey struct {
	from  comic.State
	event Event
}

var table = func() map[ruleKey]rule {
	m := make(map[ruleKey]rule)
	for _, r := range rules {
		for _, from := range r.from {
			m[ruleKey{from: from, event: r.event}] = r
		}
	}
	return m
}()

// Transition returns the state reached by firing event from from. It fails
// with ErrInvalidTransition when the pair is not in the table and with a
// *GuardFailure when a precondition does not hold. It has no side effects.
func Transition(from comic.State, event Event, c Context) (comic.State, error) {
	r, ok := table[ruleKey{from: from, event: event}]
	if !ok {
		return from, invalid(from, event)
	}
	if c.Record == nil {
		c.Record = &comic.Record{State: from}
	}
	for _, g := range r.guards {
		if reason := g.Check(c); reason != "" {
			return from, &GuardFailure{
				Guard:     g.Name,
				Event:     event,
				From:      from,
				Reason:    reason,
				Retryable: g.Retryable,
			}
		}
	}
	if r.same {
		return from, nil
	}
	return r.to, nil
}

// Allowed lists the events accepted from state, ignoring guards.
func Allowed(from comic.State) []Event {
	var out []Event
	for _, e := range Events() {
		if _, ok := table[ruleKey{from: from, event: e}]; ok {
			out = append(out, e)
		}
	}
	return out
}

// EventFor returns the event that completes the happy-path step starting at
// from.
func EventFor(from comic.State) (Event, bool) {
	switch from {
	case comic.StateCreated:
		return EventFileContentsLoaded, true
	case comic.StateFileContentsLoaded:
		return EventBlockedPagesMarked, true
	case comic.StateBlockedPagesMarked:
		return EventReadyForProcessing, true
	case comic.StateReadyForProcessing:
		return EventRecordInserted, true
	default:
		return "", false
	}
}

// IsGuardFailure reports whether err is a guard rejection and returns it.
func IsGuardFailure(err error) (*GuardFailure, bool) {
	var gf *GuardFailure
	if errors.As(err, &gf) {
		return gf, true
	}
	return nil, false
}
