package preflight

import (
	"context"

	"comicvault/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Library directory", cfg.Paths.LibraryDir),
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
		CheckFreeSpace("Staging free space", cfg.Paths.StagingDir, MinFreeBytes),
	}

	if cfg.PageCache.Enabled {
		results = append(results, CheckDirectoryAccess("Page cache directory", cfg.Paths.PageCacheDir))
	}

	results = append(results, CheckSystemDeps(cfg)...)

	if cfg.Progress.NtfyTopic != "" {
		results = append(results, CheckNtfy(ctx, cfg.Progress.NtfyTopic))
	}
	return results
}

// Failed returns the non-optional results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			out = append(out, r)
		}
	}
	return out
}
