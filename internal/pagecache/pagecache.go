package pagecache

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
	"time"

	"golang.org/x/sys/unix"

	"comicvault/internal/config"
	"comicvault/internal/fileutil"
	"comicvault/internal/logging"
)

const (
	// freeSpaceFloor is the minimum free-space ratio we allow before pruning (0.20 => 80% full).
	freeSpaceFloor = 0.20
)

// statfsFunc allows tests to stub filesystem stats.
type statfsFunc func(path string) (total uint64, free uint64, err error)

// Manager stores page bytes by hash and prunes old pages.
type Manager struct {
	root     string
	maxBytes int64
	logger   *slog.Logger
	statfs   statfsFunc
}

// Stats describes current cache usage.
type Stats struct {
	Entries      int     `json:"entries"`
	TotalBytes   int64   `json:"total_bytes"`
	MaxBytes     int64   `json:"max_bytes"`
	FreeBytes    uint64  `json:"free_bytes"`
	TotalFSBytes uint64  `json:"total_fs_bytes"`
	FreeRatio    float64 `json:"free_ratio"`
}

// NewManager builds a cache manager when enabled; returns nil when caching is disabled or misconfigured.
func NewManager(cfg *config.Config, logger *slog.Logger) *Manager {
	if cfg == nil || !cfg.PageCache.Enabled {
		return nil
	}
	root := strings.TrimSpace(cfg.Paths.PageCacheDir)
	if root == "" || cfg.PageCache.MaxMiB <= 0 {
		return nil
	}
	manager := &Manager{
		root:     root,
		maxBytes: int64(cfg.PageCache.MaxMiB) * 1024 * 1024,
		statfs:   realStatfs,
	}
	manager.SetLogger(logger)
	return manager
}

// SetLogger refreshes the manager's logging destination.
func (m *Manager) SetLogger(logger *slog.Logger) {
	if m == nil {
		return
	}
	m.logger = logging.NewComponentLogger(logger, "pagecache")
}

// Root returns the cache directory.
func (m *Manager) Root() string {
	if m == nil {
		return ""
	}
	return m.root
}

// Path returns where a page with the given hash and filename is stored.
func (m *Manager) Path(hash, filename string) string {
	if m == nil {
		return ""
	}
	return m.pathFor(strings.ToLower(strings.TrimSpace(hash)), filename)
}

// Has reports whether the page is already cached.
func (m *Manager) Has(hash, filename string) bool {
	if m == nil {
		return false
	}
	_, err := os.Stat(m.Path(hash, filename))
	return err == nil
}

// Put stores data under hash. The extension of filename is kept so the cached
// file opens with ordinary viewers. Existing pages are only touched.
func (m *Manager) Put(ctx context.Context, hash, filename string, data []byte) (bool, error) {
	if m == nil {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	hash = strings.ToLower(strings.TrimSpace(hash))
	if len(hash) < 8 {
		return false, fmt.Errorf("pagecache: invalid hash %q", hash)
	}
	if got := fileutil.HashBytes(data); got != hash {
		return false, fmt.Errorf("pagecache: hash mismatch for %s: got %s", filename, got)
	}
	target := m.pathFor(hash, filename)
	if _, err := os.Stat(target); err == nil {
		now := time.Now()
		_ = os.Chtimes(target, now, now)
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return false, fmt.Errorf("pagecache: create shard: %w", err)
	}
	tmp, err := fileutil.CreateTempSibling(target)
	if err != nil {
		return false, fmt.Errorf("pagecache: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		fileutil.DiscardTemp(tmp)
		return false, fmt.Errorf("pagecache: write %s: %w", target, err)
	}
	if err := fileutil.CommitTemp(tmp, target); err != nil {
		return false, fmt.Errorf("pagecache: %w", err)
	}
	return true, nil
}

// Prune removes entries based on size and free-space thresholds. Hashes in
// keep are skipped; if limits cannot be met without them an error is returned.
func (m *Manager) Prune(ctx context.Context, keep map[string]struct{}) error {
	if m == nil {
		return nil
	}
	entries, totalSize, err := m.scan(ctx)
	if err != nil {
		return err
	}
	removed := 0
	for {
		freeOK, err := m.freeSpaceOK()
		if err != nil {
			return err
		}
		if totalSize <= m.maxBytes && freeOK {
			break
		}
		victim := -1
		for i, entry := range entries {
			if _, protected := keep[entry.hash]; !protected {
				victim = i
				break
			}
		}
		if victim < 0 {
			return fmt.Errorf("pagecache: cache over limits and only active pages remain (%d bytes)", totalSize)
		}
		oldest := entries[victim]
		if err := os.Remove(oldest.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("pagecache: remove %q: %w", oldest.path, err)
		}
		totalSize -= oldest.sizeBytes
		entries = append(entries[:victim], entries[victim+1:]...)
		removed++
	}
	if removed > 0 {
		m.logger.InfoContext(ctx, "pruned page cache",
			logging.Int("pages_removed", removed),
			logging.Int64("cache_bytes", totalSize),
		)
	}
	return nil
}

// Stats returns current cache usage and filesystem free-space info.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	if m == nil {
		return s, nil
	}
	entries, totalSize, err := m.scan(ctx)
	if err != nil {
		return s, err
	}
	totalFS, freeFS, err := m.statfs(m.root)
	if err != nil {
		return s, fmt.Errorf("pagecache: statfs: %w", err)
	}
	ratio := 1.0
	if totalFS > 0 {
		ratio = float64(freeFS) / float64(totalFS)
	}
	return Stats{
		Entries:      len(entries),
		TotalBytes:   totalSize,
		MaxBytes:     m.maxBytes,
		FreeBytes:    freeFS,
		TotalFSBytes: totalFS,
		FreeRatio:    ratio,
	}, nil
}

type cacheEntry struct {
	path      string
	hash      string
	sizeBytes int64
	modTime   time.Time
}

func (m *Manager) scan(ctx context.Context) ([]cacheEntry, int64, error) {
	entries := make([]cacheEntry, 0)
	var total int64
	err := filepath.WalkDir(m.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) && path == m.root {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || strings.HasSuffix(d.Name(), ".tmp") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			logging.Warn(logging.WithContext(ctx, m.logger), "pagecache: skip entry",
				logging.Problem{Event: "pagecache_entry_skipped", Impact: "entry excluded from stats and pruning", Hint: "inspect cache directory permissions or remove the entry"},
				logging.String(logging.FieldSourcePath, path),
				logging.Error(err),
			)
			return nil
		}
		name := d.Name()
		hash := strings.TrimSuffix(name, filepath.Ext(name))
		total += info.Size()
		entries = append(entries, cacheEntry{path: path, hash: hash, sizeBytes: info.Size(), modTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("pagecache: scan root: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].modTime.Equal(entries[j].modTime) {
			return entries[i].path < entries[j].path
		}
		return entries[i].modTime.Before(entries[j].modTime)
	})
	return entries, total, nil
}

func (m *Manager) freeSpaceOK() (bool, error) {
	total, free, err := m.statfs(m.root)
	if err != nil {
		return false, fmt.Errorf("pagecache: statfs: %w", err)
	}
	if total == 0 {
		return true, nil
	}
	return float64(free)/float64(total) >= freeSpaceFloor, nil
}

func (m *Manager) pathFor(hash, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	shard := hash
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return filepath.Join(m.root, shard, hash+ext)
}

func realStatfs(path string) (uint64, uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bavail * uint64(stat.Bsize)
	return total, free, nil
}
