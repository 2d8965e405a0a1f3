// Package library persists comic records in SQLite.
//
// The Store owns the comics, pages, import descriptors, blocked page hashes,
// catalog rows, and the transition history. All lifecycle state changes go
// through CommitTransition, which applies a record only when its stored
// state still matches the state the transition started from, so two writers
// can never both advance the same record.
//
// Schema changes bump the version in schema.go; users delete the database to
// adopt the new schema.
package library
