package staging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"comicvault/internal/logging"
)

// CleanResult contains the outcome of a lock directory sweep.
type CleanResult struct {
	Removed []string
	// Held lists lock files another owner still holds.
	Held   []string
	Errors []CleanupError
}

// CleanupError pairs a path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStaleLocks removes claim lock files older than maxAge that nobody
// holds. A file is only removed while this call holds its lock.
func CleanStaleLocks(ctx context.Context, lockDir string, maxAge time.Duration, logger *slog.Logger) CleanResult {
	result := CleanResult{}

	lockDir = strings.TrimSpace(lockDir)
	if lockDir == "" {
		return result
	}

	entries, err := os.ReadDir(lockDir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: lockDir, Error: err})
		}
		return result
	}

	cutoff := time.Now().Add(-maxAge)

	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lock" {
			continue
		}

		lockPath := filepath.Join(lockDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: lockPath, Error: err})
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		lock := flock.New(lockPath)
		ok, err := lock.TryLock()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: lockPath, Error: err})
			continue
		}
		if !ok {
			result.Held = append(result.Held, lockPath)
			continue
		}
		removeErr := os.Remove(lockPath)
		_ = lock.Unlock()

		if removeErr != nil {
			result.Errors = append(result.Errors, CleanupError{Path: lockPath, Error: removeErr})
			if logger != nil {
				logging.Warn(logger, "failed to remove stale claim lock",
					logging.Problem{Event: "staging_cleanup_failed", Hint: "check staging_dir permissions"},
					logging.String("path", lockPath),
					logging.Error(removeErr),
				)
			}
			continue
		}
		result.Removed = append(result.Removed, lockPath)
		if logger != nil {
			logger.Debug("removed stale claim lock",
				logging.String("path", lockPath),
				logging.Duration("age", time.Since(info.ModTime())),
				logging.String(logging.FieldEventType, "staging_cleanup"),
			)
		}
	}

	if logger != nil && len(result.Removed) > 0 {
		logger.Info("claim locks cleaned",
			logging.String(logging.FieldEventType, "staging_cleanup"),
			logging.Int("removed", len(result.Removed)),
			logging.Int("held", len(result.Held)),
		)
	}
	return result
}

// LockInfo describes one claim lock file.
type LockInfo struct {
	Path    string
	ModTime time.Time
	Held    bool
}

// ListLocks reports the claim lock files in lockDir and whether each is
// currently held.
func ListLocks(lockDir string) ([]LockInfo, error) {
	lockDir = strings.TrimSpace(lockDir)
	if lockDir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(lockDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var locks []LockInfo
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lock" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		lockPath := filepath.Join(lockDir, entry.Name())
		lock := flock.New(lockPath)
		ok, err := lock.TryLock()
		held := err == nil && !ok
		if ok {
			_ = lock.Unlock()
		}
		locks = append(locks, LockInfo{Path: lockPath, ModTime: info.ModTime(), Held: held})
	}
	return locks, nil
}
