package ingest

import (
	"context"
	"log/slog"

	"comicvault/internal/archive"
	"comicvault/internal/comic"
	"comicvault/internal/config"
	"comicvault/internal/fileutil"
	"comicvault/internal/library"
	"comicvault/internal/logging"
	"comicvault/internal/services"
	"comicvault/internal/stage"
)

// MarkBlockedPages flags pages whose hash is on the blocked list or whose
// sidecar type is Deleted. When configured it also rewrites the archive to
// drop those pages and renumber the rest.
//
// The rewrite lands on disk before the stage commits. If the archive no
// longer matches the stored file hash when the stage runs, the pages are
// re-read through contents first so a rewrite that was never committed is
// reconciled rather than trusted.
type MarkBlockedPages struct {
	cfg      *config.Config
	store    *library.Store
	registry *archive.Registry
	contents *LoadContents
	logger   *slog.Logger
}

// NewMarkBlockedPages builds the blocked page stage. contents re-reads an
// archive that changed since it was loaded.
func NewMarkBlockedPages(cfg *config.Config, store *library.Store, registry *archive.Registry, contents *LoadContents, logger *slog.Logger) *MarkBlockedPages {
	return &MarkBlockedPages{
		cfg:      cfg,
		store:    store,
		registry: registry,
		contents: contents,
		logger:   logging.NewComponentLogger(logger, StageMarkBlockedPages),
	}
}

func (h *MarkBlockedPages) Name() string { return StageMarkBlockedPages }

func (h *MarkBlockedPages) Prepare(_ context.Context, rec *comic.Record) error {
	if h.store == nil {
		return services.Wrap(services.ErrConfiguration, StageMarkBlockedPages, "prepare", "Library store not configured", nil)
	}
	if !rec.ContentsLoaded {
		return services.Wrap(services.ErrValidation, StageMarkBlockedPages, "prepare", "Archive contents not loaded", nil)
	}
	return nil
}

func (h *MarkBlockedPages) Execute(ctx context.Context, rec *comic.Record) error {
	logger := logging.WithContext(ctx, h.logger)

	info, err := stage.StatSource(StageMarkBlockedPages, rec)
	if err != nil {
		return err
	}
	if info == nil {
		return markMissing(ctx, h.store, rec)
	}
	if err := h.reconcile(ctx, logger, rec); err != nil {
		return err
	}

	blocked, err := h.store.BlockedHashSet(ctx)
	if err != nil {
		return services.Wrap(services.ErrTransient, StageMarkBlockedPages, "load blocked hashes", "Could not read blocked page list", err)
	}
	blockedNames := make(map[string]struct{})
	for i := range rec.Pages {
		page := &rec.Pages[i]
		_, listed := blocked[page.Hash]
		page.Blocked = listed || page.Type == comic.PageTypeDeleted
		if page.Blocked {
			blockedNames[page.Filename] = struct{}{}
		}
	}

	remove := h.cfg != nil && h.cfg.Ingest.RemoveBlockedPages && len(blockedNames) > 0
	rename := h.cfg != nil && h.cfg.Ingest.RenamePages
	if remove || rename {
		if err := h.rewrite(ctx, logger, rec, blockedNames, remove, rename); err != nil {
			return err
		}
	}

	rec.BlockedPagesMarked = true
	logger.Info("blocked pages marked",
		logging.String(logging.FieldEventType, "blocked_pages_marked"),
		logging.Int("pages", len(rec.Pages)),
		logging.Int("blocked", rec.BlockedCount()),
		logging.Int("removed", len(blockedNames)-rec.BlockedCount()),
	)
	return nil
}

func (h *MarkBlockedPages) reconcile(ctx context.Context, logger *slog.Logger, rec *comic.Record) error {
	if h.contents == nil {
		return nil
	}
	size, hash, err := fileutil.HashFile(rec.SourcePath)
	if err != nil {
		return services.Wrap(services.ErrTransient, StageMarkBlockedPages, "hash", "Could not hash source file", err)
	}
	if size == rec.File.Size && hash == rec.File.Hash {
		return nil
	}
	logging.Warn(logger, "archive changed since contents were loaded",
		logging.Problem{Event: "archive_reconciled", Impact: "page list re-read from the archive on disk"},
		logging.String("stored_hash", rec.File.Hash),
		logging.String("disk_hash", hash),
	)
	return h.contents.read(ctx, logger, rec)
}

func (h *MarkBlockedPages) rewrite(ctx context.Context, logger *slog.Logger, rec *comic.Record, blockedNames map[string]struct{}, remove, rename bool) error {
	format, _ := archive.ParseFormat(rec.Format)
	adaptor, ok := h.registry.ResolveByFormat(format)
	if !ok {
		return services.Wrap(services.ErrValidation, StageMarkBlockedPages, "resolve adaptor", "No adaptor for format "+rec.Format, nil)
	}
	if !adaptor.Writable() {
		logging.Warn(logger, "archive format is read-only; pages left in place",
			logging.Problem{Event: "blocked_rewrite_skipped", Impact: "blocked pages stay flagged but are not removed", Hint: "convert the archive to cbz to enable page removal"},
			logging.String("format", rec.Format),
		)
		return nil
	}

	opts := archive.RewriteOptions{RenamePages: rename}
	if remove {
		opts.Skip = func(desc archive.EntryDescriptor) bool {
			_, skip := blockedNames[desc.Name]
			return skip
		}
	}
	result, err := archive.Rewrite(ctx, adaptor, rec.SourcePath, adaptor, rec.SourcePath, opts)
	if err != nil {
		return services.Wrap(services.ErrTransient, StageMarkBlockedPages, "rewrite archive", "Archive rewrite failed; original left intact", err)
	}

	pages := make([]comic.Page, 0, len(rec.Pages))
	for _, page := range rec.Pages {
		if remove && page.Blocked {
			continue
		}
		if renamed, ok := result.Renamed[page.Filename]; ok {
			page.Filename = renamed
		}
		page.Index = len(pages)
		pages = append(pages, page)
	}
	rec.Pages = pages

	size, hash, err := fileutil.HashFile(rec.SourcePath)
	if err != nil {
		return services.Wrap(services.ErrTransient, StageMarkBlockedPages, "hash", "Could not hash rewritten archive", err)
	}
	rec.File = comic.FileDetails{Size: size, Hash: hash}

	logger.Info("archive rewritten",
		logging.String(logging.FieldEventType, "archive_rewritten"),
		logging.Int("entries_written", result.Written),
		logging.Int("entries_skipped", result.Skipped),
		logging.Int("entries_renamed", len(result.Renamed)),
	)
	return nil
}

func (h *MarkBlockedPages) HealthCheck(context.Context) stage.Health {
	if h.store == nil {
		return stage.Unhealthy(StageMarkBlockedPages, "library store not configured")
	}
	return stage.Healthy(StageMarkBlockedPages)
}
