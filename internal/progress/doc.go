// Package progress defines the channel batch jobs report through. A job
// publishes a Snapshot after every chunk and a final inactive snapshot when
// it ends. Publishers include a structured-log sink, an ntfy push sink with
// rate limiting, a fan-out combinator, and an in-memory recorder.
//
// The ntfy publisher also announces imported records and stage failures so
// the lifecycle machine and stage runner can share one notification path.
package progress
