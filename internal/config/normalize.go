package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeIngest()
	c.normalizeArchive()
	c.normalizeProgress()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.LibraryDir, err = expandPath(c.Paths.LibraryDir); err != nil {
		return fmt.Errorf("paths.library_dir: %w", err)
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.PageCacheDir) == "" {
		c.Paths.PageCacheDir = defaultPageCacheDir()
	}
	if c.Paths.PageCacheDir, err = expandPath(c.Paths.PageCacheDir); err != nil {
		return fmt.Errorf("paths.page_cache_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeIngest() {
	hashes := make([]string, 0, len(c.Ingest.BlockedHashes))
	seen := make(map[string]struct{}, len(c.Ingest.BlockedHashes))
	for _, hash := range c.Ingest.BlockedHashes {
		hash = strings.ToLower(strings.TrimSpace(hash))
		if hash == "" {
			continue
		}
		if _, ok := seen[hash]; ok {
			continue
		}
		seen[hash] = struct{}{}
		hashes = append(hashes, hash)
	}
	c.Ingest.BlockedHashes = hashes

	exts := make([]string, 0, len(c.Ingest.Extensions))
	for _, ext := range c.Ingest.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}
	c.Ingest.Extensions = exts
}

func (c *Config) normalizeArchive() {
	c.Archive.SevenZipBinary = strings.TrimSpace(c.Archive.SevenZipBinary)
	if c.Archive.SevenZipBinary == "" {
		c.Archive.SevenZipBinary = defaultSevenZipBinary
	}
	if len(c.Archive.Bindings) == 0 {
		c.Archive.Bindings = DefaultBindings()
		return
	}
	normalized := make(map[string]string, len(c.Archive.Bindings))
	for subtype, adaptor := range c.Archive.Bindings {
		normalized[strings.ToLower(strings.TrimSpace(subtype))] = strings.ToLower(strings.TrimSpace(adaptor))
	}
	c.Archive.Bindings = normalized
}

func (c *Config) normalizeProgress() {
	if value, ok := os.LookupEnv("COMICVAULT_NTFY_TOPIC"); ok && strings.TrimSpace(value) != "" {
		c.Progress.NtfyTopic = value
	}
	c.Progress.NtfyTopic = strings.TrimSpace(c.Progress.NtfyTopic)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
