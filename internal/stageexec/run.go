package stageexec

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"comicvault/internal/comic"
	"comicvault/internal/logging"
	"comicvault/internal/services"
	"comicvault/internal/stage"
)

// FailureRecorder persists the last stage error on a record.
type FailureRecorder interface {
	SetLastError(ctx context.Context, id int64, message string) error
}

// FailureNotifier is told about stage failures. Optional.
type FailureNotifier interface {
	NotifyFailure(ctx context.Context, rec *comic.Record, stageName string, err error) error
}

// Options controls a single stage execution.
type Options struct {
	Logger   *slog.Logger
	Recorder FailureRecorder
	Notifier FailureNotifier
	Handler  stage.Handler
	Record   *comic.Record
}

// Run executes Prepare then Execute for one record. It does not fire the
// lifecycle event; the caller commits once the whole chunk has run.
func Run(ctx context.Context, opts Options) error {
	if opts.Handler == nil {
		return fmt.Errorf("stage handler unavailable")
	}
	if opts.Record == nil {
		return fmt.Errorf("record is required")
	}
	stageName := opts.Handler.Name()
	rec := opts.Record

	stageCtx := services.WithComicID(logging.WithStage(ctx, stageName), rec.ID)
	stageLogger := logging.WithContext(stageCtx, opts.Logger)

	started := time.Now()
	stageLogger.Info(
		"stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("state", string(rec.State)),
		logging.String(logging.FieldSourcePath, strings.TrimSpace(rec.SourcePath)),
	)

	if err := opts.Handler.Prepare(stageCtx, rec); err != nil {
		return handleFailure(stageCtx, stageLogger, opts, stageName, err)
	}
	if err := opts.Handler.Execute(stageCtx, rec); err != nil {
		return handleFailure(stageCtx, stageLogger, opts, stageName, err)
	}

	if rec.LastError != "" {
		rec.LastError = ""
		if opts.Recorder != nil && rec.ID > 0 {
			if err := opts.Recorder.SetLastError(stageCtx, rec.ID, ""); err != nil {
				logging.Warn(stageLogger, "failed to clear previous stage error",
					logging.Problem{Event: "stage_error_clear_failed", Impact: "status output may show a stale error"},
					logging.Error(err),
				)
			}
		}
	}

	stageLogger.Info(
		"stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Int("pages", len(rec.Pages)),
		logging.Bool("missing", rec.Missing),
		logging.Duration("elapsed", time.Since(started)),
	)
	return nil
}

func handleFailure(ctx context.Context, logger *slog.Logger, opts Options, stageName string, stageErr error) error {
	rec := opts.Record
	details := services.Details(stageErr)
	message := strings.TrimSpace(details.Message)
	if message == "" {
		message = "stage failed"
	}
	rec.LastError = message

	logging.Fail(logger, "stage failed",
		logging.Problem{Event: "stage_failure", Hint: "see comicvault show for the record and fix the source file"},
		logging.String("error_kind", details.Kind),
		logging.String("error_message", message),
		logging.String(logging.FieldSourcePath, rec.SourcePath),
		logging.Error(stageErr),
	)
	if opts.Recorder != nil && rec.ID > 0 {
		if err := opts.Recorder.SetLastError(ctx, rec.ID, message); err != nil {
			logger.Error("failed to persist stage failure", logging.Error(err))
		}
	}
	if opts.Notifier != nil {
		if err := opts.Notifier.NotifyFailure(ctx, rec, stageName, stageErr); err != nil {
			logger.Debug("stage error notification failed", logging.Error(err))
		}
	}
	return stageErr
}
