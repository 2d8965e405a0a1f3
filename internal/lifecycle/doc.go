// Package lifecycle governs how a comic record advances through ingestion.
//
// Transition is a pure function over (state, event, context) that applies the
// transition table and its guards. Machine layers the side effects on top:
// it runs the event's action against a snapshot-protected record, commits the
// new state through a Committer, and rejects concurrent transitions on the
// same record.
package lifecycle
