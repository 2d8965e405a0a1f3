package ingest

import (
	"context"
	"log/slog"

	"comicvault/internal/comic"
	"comicvault/internal/library"
	"comicvault/internal/logging"
	"comicvault/internal/services"
	"comicvault/internal/stage"
)

// InsertRecord publishes the record into the library catalog.
type InsertRecord struct {
	store  *library.Store
	logger *slog.Logger
}

// NewInsertRecord builds the catalog insert stage.
func NewInsertRecord(store *library.Store, logger *slog.Logger) *InsertRecord {
	return &InsertRecord{store: store, logger: logging.NewComponentLogger(logger, StageInsertRecord)}
}

func (h *InsertRecord) Name() string { return StageInsertRecord }

func (h *InsertRecord) Prepare(_ context.Context, rec *comic.Record) error {
	if h.store == nil {
		return services.Wrap(services.ErrConfiguration, StageInsertRecord, "prepare", "Library store not configured", nil)
	}
	if rec.ID <= 0 {
		return services.Wrap(services.ErrValidation, StageInsertRecord, "prepare", "Record has no library id", nil)
	}
	return nil
}

func (h *InsertRecord) Execute(ctx context.Context, rec *comic.Record) error {
	if err := h.store.UpsertCatalog(ctx, rec); err != nil {
		return services.Wrap(services.ErrTransient, StageInsertRecord, "upsert catalog", "Could not write catalog entry", err)
	}
	rec.Cataloged = true
	logging.WithContext(ctx, h.logger).Debug("catalog entry written",
		logging.String("series", rec.Metadata.Series),
		logging.String("number", rec.Metadata.Number),
	)
	return nil
}

func (h *InsertRecord) HealthCheck(ctx context.Context) stage.Health {
	if h.store == nil {
		return stage.Unhealthy(StageInsertRecord, "library store not configured")
	}
	if err := h.store.Ping(ctx); err != nil {
		return stage.Unhealthy(StageInsertRecord, err.Error())
	}
	return stage.Healthy(StageInsertRecord)
}
