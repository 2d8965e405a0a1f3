package ingest

import (
	"context"
	"errors"
	"log/slog"

	"comicvault/internal/archive"
	"comicvault/internal/comic"
	"comicvault/internal/detect"
	"comicvault/internal/entry"
	"comicvault/internal/fileutil"
	"comicvault/internal/library"
	"comicvault/internal/logging"
	"comicvault/internal/pagecache"
	"comicvault/internal/services"
	"comicvault/internal/stage"
)

// Stage names as they appear in logs and progress snapshots.
const (
	StageLoadContents       = "load-contents"
	StageMarkBlockedPages   = "mark-blocked-pages"
	StageReadyForProcessing = "ready-for-processing"
	StageInsertRecord       = "insert-record"
)

// LoadContents detects the container, enumerates every entry, and routes
// each one through the dispatcher so pages and metadata land on the record.
type LoadContents struct {
	store      *library.Store
	registry   *archive.Registry
	dispatcher *entry.Dispatcher
	cache      *pagecache.Manager
	logger     *slog.Logger
}

// NewLoadContents builds the load stage. cache may be nil.
func NewLoadContents(store *library.Store, registry *archive.Registry, dispatcher *entry.Dispatcher, cache *pagecache.Manager, logger *slog.Logger) *LoadContents {
	return &LoadContents{
		store:      store,
		registry:   registry,
		dispatcher: dispatcher,
		cache:      cache,
		logger:     logging.NewComponentLogger(logger, StageLoadContents),
	}
}

func (h *LoadContents) Name() string { return StageLoadContents }

func (h *LoadContents) Prepare(_ context.Context, rec *comic.Record) error {
	if h.registry == nil || h.dispatcher == nil {
		return services.Wrap(services.ErrConfiguration, StageLoadContents, "prepare", "Archive registry or dispatcher not configured", nil)
	}
	if rec.State != comic.StateCreated {
		return services.Wrap(services.ErrValidation, StageLoadContents, "prepare", "Record is not awaiting content load", nil)
	}
	return nil
}

func (h *LoadContents) Execute(ctx context.Context, rec *comic.Record) error {
	logger := logging.WithContext(ctx, h.logger)

	info, err := stage.StatSource(StageLoadContents, rec)
	if err != nil {
		return err
	}
	if info == nil {
		return markMissing(ctx, h.store, rec)
	}
	return h.read(ctx, logger, rec)
}

// read derives format, pages, metadata and file details from the archive
// currently on disk, replacing whatever the record held.
func (h *LoadContents) read(ctx context.Context, logger *slog.Logger, rec *comic.Record) error {
	subtype, err := detect.DetectFile(rec.SourcePath)
	if err != nil {
		return services.Wrap(services.ErrTransient, StageLoadContents, "detect", "Could not read archive header", err)
	}
	adaptor, ok := h.registry.Resolve(subtype)
	if !ok {
		return services.Wrap(services.ErrValidation, StageLoadContents, "resolve adaptor",
			"Unknown container format "+subtype.String(), nil)
	}

	size, hash, err := fileutil.HashFile(rec.SourcePath)
	if err != nil {
		return services.Wrap(services.ErrTransient, StageLoadContents, "hash", "Could not hash source file", err)
	}

	rec.Pages = nil
	rec.PageData = nil
	rec.Metadata = comic.Metadata{}

	var loaded, ignored, failed int
	err = archive.WithReadHandle(ctx, adaptor, rec.SourcePath, func(rh *archive.ReadHandle) error {
		for desc, err := range adaptor.Entries(ctx, rh) {
			if err != nil {
				return err
			}
			data, err := adaptor.ReadEntry(ctx, rh, desc.Name)
			if err != nil {
				return err
			}
			result, err := h.dispatcher.Dispatch(ctx, rec, desc.Name, data)
			switch {
			case err == nil && result == entry.ResultIgnored:
				ignored++
			case err == nil:
				loaded++
			default:
				var loaderErr *entry.LoaderError
				if !errors.As(err, &loaderErr) {
					return err
				}
				failed++
				logging.Warn(logger, "entry skipped",
					logging.Problem{Event: "entry_load_failed", Impact: "entry excluded from record"},
					logging.String("entry", desc.Name),
					logging.String("kind", string(loaderErr.Kind)),
					logging.Error(err),
				)
			}
		}
		return nil
	})
	if err != nil {
		rec.Pages = nil
		rec.ReleasePageData()
		marker := services.ErrValidation
		if errors.Is(err, context.DeadlineExceeded) {
			marker = services.ErrTimeout
		}
		return services.Wrap(marker, StageLoadContents, "read entries", "Archive could not be read", err)
	}
	if len(rec.Pages) == 0 {
		return services.Wrap(services.ErrValidation, StageLoadContents, "read entries", "Archive contains no page images", nil)
	}

	entry.ApplyPageHints(rec)
	h.feedCache(ctx, logger, rec)
	rec.ReleasePageData()

	rec.Format = string(adaptor.Format())
	rec.Subtype = subtype.String()
	rec.File = comic.FileDetails{Size: size, Hash: hash}
	rec.ContentsLoaded = true

	logger.Info("archive contents loaded",
		logging.String(logging.FieldEventType, "contents_loaded"),
		logging.String("format", rec.Format),
		logging.String("subtype", rec.Subtype),
		logging.Int("pages", len(rec.Pages)),
		logging.Int("entries_loaded", loaded),
		logging.Int("entries_ignored", ignored),
		logging.Int("entries_failed", failed),
		logging.Bool("has_metadata", !rec.Metadata.Empty()),
	)
	return nil
}

func (h *LoadContents) feedCache(ctx context.Context, logger *slog.Logger, rec *comic.Record) {
	if h.cache == nil || len(rec.PageData) == 0 {
		return
	}
	keep := make(map[string]struct{}, len(rec.Pages))
	stored := 0
	for _, page := range rec.Pages {
		data, ok := rec.PageData[page.Filename]
		if !ok {
			continue
		}
		added, err := h.cache.Put(ctx, page.Hash, page.Filename, data)
		if err != nil {
			logging.Warn(logger, "page cache write failed",
				logging.Problem{Event: "pagecache_write_failed", Impact: "page not cached; ingestion continues"},
				logging.String("entry", page.Filename),
				logging.Error(err),
			)
			continue
		}
		keep[page.Hash] = struct{}{}
		if added {
			stored++
		}
	}
	if err := h.cache.Prune(ctx, keep); err != nil {
		logging.Warn(logger, "page cache prune failed",
			logging.Problem{Event: "pagecache_prune_failed", Hint: "raise page_cache.max_mib or free disk space"},
			logging.Error(err),
		)
	}
	logger.Debug("pages cached", logging.Int("stored", stored), logging.Int("pages", len(rec.Pages)))
}

func (h *LoadContents) HealthCheck(context.Context) stage.Health {
	if h.registry == nil {
		return stage.Unhealthy(StageLoadContents, "archive registry not configured")
	}
	if h.dispatcher == nil {
		return stage.Unhealthy(StageLoadContents, "entry dispatcher not configured")
	}
	return stage.Healthy(StageLoadContents)
}

// markMissing persists the missing flag. The commit pass then rejects the
// event through the missing-file guard.
func markMissing(ctx context.Context, store *library.Store, rec *comic.Record) error {
	if store == nil || rec.ID <= 0 {
		return nil
	}
	if err := store.SetMissing(ctx, rec.ID, true); err != nil {
		return services.Wrap(services.ErrTransient, "", "set missing", "Could not record missing source file", err)
	}
	return nil
}
