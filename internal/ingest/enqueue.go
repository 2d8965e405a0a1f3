package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"comicvault/internal/comic"
	"comicvault/internal/config"
	"comicvault/internal/library"
	"comicvault/internal/logging"
)

// EnqueueResult lists the records an import should drive.
type EnqueueResult struct {
	// Records holds newly added and already known non-terminal records, in
	// the order their paths were discovered.
	Records []*comic.Record
	Added   int
	Known   int
	Skipped int
}

// Enqueue registers candidate paths with the library. Directories are walked
// and filtered by the configured extensions; explicitly named files are
// always offered since detection is content based.
func Enqueue(ctx context.Context, cfg *config.Config, store *library.Store, paths []string, jobID string, logger *slog.Logger) (EnqueueResult, error) {
	var result EnqueueResult
	logger = logging.NewComponentLogger(logger, "enqueue")

	candidates, err := Candidates(cfg, paths)
	if err != nil {
		return result, err
	}
	for _, path := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		rec, created, err := store.Add(ctx, path, jobID)
		if err != nil {
			return result, fmt.Errorf("enqueue %s: %w", path, err)
		}
		if created {
			result.Added++
			logger.Debug("source enqueued",
				logging.Int64(logging.FieldComicID, rec.ID),
				logging.String(logging.FieldSourcePath, path),
			)
		} else {
			result.Known++
			// Candidates only yields paths that exist.
			if rec.Missing {
				if err := store.SetMissing(ctx, rec.ID, false); err != nil {
					return result, fmt.Errorf("enqueue %s: %w", path, err)
				}
				rec.Missing = false
			}
		}
		if rec.State.Terminal() {
			result.Skipped++
			continue
		}
		result.Records = append(result.Records, rec)
	}
	logger.Info("sources enqueued",
		logging.String(logging.FieldEventType, "enqueue_complete"),
		logging.Int("added", result.Added),
		logging.Int("known", result.Known),
		logging.Int("skipped", result.Skipped),
	)
	return result, nil
}

// Candidates expands paths into absolute file paths, de-duplicated.
func Candidates(cfg *config.Config, paths []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	add := func(path string) {
		if _, dup := seen[path]; dup {
			return
		}
		seen[path] = struct{}{}
		out = append(out, path)
	}

	for _, raw := range paths {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		path, err := config.ExpandPath(raw)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("inspect %s: %w", path, err)
		}
		if !info.IsDir() {
			add(path)
			continue
		}
		var found []string
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrPermission) {
					return nil
				}
				return err
			}
			name := d.Name()
			if strings.HasPrefix(name, ".") && p != path {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() && cfg.AcceptsExtension(p) {
				found = append(found, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", path, err)
		}
		sort.Strings(found)
		for _, p := range found {
			add(p)
		}
	}
	return out, nil
}
