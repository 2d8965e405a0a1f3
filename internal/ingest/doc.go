// Package ingest holds the stage handlers that move a comic record through
// the import lifecycle, the pipeline that orders them, and the source-path
// claims that keep two workers (or two processes) from ingesting the same
// archive at once.
//
// Handlers never fire lifecycle events themselves. Each one mutates the
// record so that the guards of its event can pass; the batch coordinator
// commits the event afterwards.
package ingest
