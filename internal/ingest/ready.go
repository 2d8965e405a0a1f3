package ingest

import (
	"context"
	"log/slog"

	"comicvault/internal/comic"
	"comicvault/internal/fileutil"
	"comicvault/internal/library"
	"comicvault/internal/logging"
	"comicvault/internal/services"
	"comicvault/internal/stage"
)

// ReadyForProcessing confirms the source is still present and its file
// details describe the bytes on disk.
type ReadyForProcessing struct {
	store  *library.Store
	logger *slog.Logger
}

// NewReadyForProcessing builds the readiness stage.
func NewReadyForProcessing(store *library.Store, logger *slog.Logger) *ReadyForProcessing {
	return &ReadyForProcessing{store: store, logger: logging.NewComponentLogger(logger, StageReadyForProcessing)}
}

func (h *ReadyForProcessing) Name() string { return StageReadyForProcessing }

func (h *ReadyForProcessing) Prepare(context.Context, *comic.Record) error { return nil }

func (h *ReadyForProcessing) Execute(ctx context.Context, rec *comic.Record) error {
	info, err := stage.StatSource(StageReadyForProcessing, rec)
	if err != nil {
		return err
	}
	if info == nil {
		return markMissing(ctx, h.store, rec)
	}
	if rec.File.Populated() && info.Size() == rec.File.Size {
		return nil
	}
	size, hash, err := fileutil.HashFile(rec.SourcePath)
	if err != nil {
		return services.Wrap(services.ErrTransient, StageReadyForProcessing, "hash", "Could not hash source file", err)
	}
	rec.File = comic.FileDetails{Size: size, Hash: hash}
	logging.WithContext(ctx, h.logger).Info("file details refreshed",
		logging.String(logging.FieldEventType, "file_details_refreshed"),
		logging.Int64("size_bytes", size),
	)
	return nil
}

func (h *ReadyForProcessing) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(StageReadyForProcessing)
}

func refreshDetails(rec *comic.Record) error {
	size, hash, err := fileutil.HashFile(rec.SourcePath)
	if err != nil {
		return services.Wrap(services.ErrTransient, "refresh", "hash", "Could not hash source file", err)
	}
	rec.File = comic.FileDetails{Size: size, Hash: hash}
	return nil
}
