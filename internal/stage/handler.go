package stage

import (
	"context"

	"comicvault/internal/comic"
)

// Handler describes the contract the batch coordinator needs from each
// ingestion stage. Prepare validates preconditions; Execute does the work and
// mutates the record so the following lifecycle event's guards can pass.
// Handlers are shared by concurrent workers and must not keep per-item state;
// loggers are derived from the context instead.
type Handler interface {
	Name() string
	Prepare(context.Context, *comic.Record) error
	Execute(context.Context, *comic.Record) error
	HealthCheck(context.Context) Health
}
