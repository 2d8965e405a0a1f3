package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	LibraryDir   string `toml:"library_dir"`
	StagingDir   string `toml:"staging_dir"`
	LogDir       string `toml:"log_dir"`
	PageCacheDir string `toml:"page_cache_dir"`
}

// Ingest controls batch sizing and page filtering.
type Ingest struct {
	ChunkSize          int      `toml:"chunk_size"`
	Workers            int      `toml:"workers"`
	RemoveBlockedPages bool     `toml:"remove_blocked_pages"`
	RenamePages        bool     `toml:"rename_pages"`
	BlockedHashes      []string `toml:"blocked_hashes"`
	Extensions         []string `toml:"extensions"`
}

// Archive configures the container adaptors.
type Archive struct {
	IOTimeoutSeconds int               `toml:"io_timeout_seconds"`
	SevenZipBinary   string            `toml:"sevenzip_binary"`
	Bindings         map[string]string `toml:"bindings"`
}

// PageCache contains configuration for the extracted page cache.
type PageCache struct {
	Enabled bool `toml:"enabled"`
	MaxMiB  int  `toml:"max_mib"`
}

// Progress contains configuration for job progress publishing.
type Progress struct {
	NtfyTopic          string `toml:"ntfy_topic"`
	RequestTimeout     int    `toml:"request_timeout"`
	MinIntervalSeconds int    `toml:"min_interval_seconds"`
	Imports            bool   `toml:"imports"`
}

// Watch configures the directory watcher.
type Watch struct {
	DebounceMillis int `toml:"debounce_ms"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for comicvault.
//
// Configuration sections by subsystem:
//   - Paths: library database, staging, logs, page cache
//   - Ingest: chunk size, worker count, blocked page handling
//   - Archive: adaptor bindings, 7z binary, I/O timeouts
//   - PageCache: extracted page cache limits
//   - Progress: ntfy publishing of job progress
//   - Watch: directory watcher debounce
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Ingest    Ingest    `toml:"ingest"`
	Archive   Archive   `toml:"archive"`
	PageCache PageCache `toml:"page_cache"`
	Progress  Progress  `toml:"progress"`
	Watch     Watch     `toml:"watch"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("comicvault.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for ingestion.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.LibraryDir, c.Paths.StagingDir, c.Paths.LogDir, c.LockDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.PageCache.Enabled && strings.TrimSpace(c.Paths.PageCacheDir) != "" {
		if err := os.MkdirAll(c.Paths.PageCacheDir, 0o755); err != nil {
			return fmt.Errorf("create page cache directory %q: %w", c.Paths.PageCacheDir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite library database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.LibraryDir, "comicvault.db")
}

// LockDir holds per-source ownership lock files.
func (c *Config) LockDir() string {
	return filepath.Join(c.Paths.StagingDir, "locks")
}

// IOTimeout returns the per-operation archive I/O deadline.
func (c *Config) IOTimeout() time.Duration {
	return time.Duration(c.Archive.IOTimeoutSeconds) * time.Second
}

// AcceptsExtension reports whether the directory scanner should pick up path.
// Detection is content based; this only filters which files are offered.
func (c *Config) AcceptsExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, candidate := range c.Ingest.Extensions {
		if candidate == ext {
			return true
		}
	}
	return false
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultPageCacheDir() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "comicvault", "pages")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "~/.cache/comicvault/pages"
	}
	return filepath.Join(home, ".cache", "comicvault", "pages")
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
