package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"sort"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateIngest(); err != nil {
		return err
	}
	if err := c.validateArchive(); err != nil {
		return err
	}
	if err := c.validatePageCache(); err != nil {
		return err
	}
	if err := c.validateProgress(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateIngest() error {
	if err := ensurePositiveMap(map[string]int{
		"ingest.chunk_size": c.Ingest.ChunkSize,
		"ingest.workers":    c.Ingest.Workers,
	}); err != nil {
		return err
	}
	for _, hash := range c.Ingest.BlockedHashes {
		if len(hash) != 64 {
			return fmt.Errorf("ingest.blocked_hashes: %q is not a sha256 hex digest", hash)
		}
		if _, err := hex.DecodeString(hash); err != nil {
			return fmt.Errorf("ingest.blocked_hashes: %q is not a sha256 hex digest", hash)
		}
	}
	return nil
}

func (c *Config) validateArchive() error {
	if c.Archive.IOTimeoutSeconds <= 0 {
		return errors.New("archive.io_timeout_seconds must be positive")
	}
	known := []string{AdaptorCBZ, AdaptorCBR, AdaptorCB7}
	subtypes := make([]string, 0, len(c.Archive.Bindings))
	for subtype := range c.Archive.Bindings {
		subtypes = append(subtypes, subtype)
	}
	sort.Strings(subtypes)
	for _, subtype := range subtypes {
		adaptor := c.Archive.Bindings[subtype]
		if subtype == "" {
			return errors.New("archive.bindings: subtype must not be empty")
		}
		if !slices.Contains(known, adaptor) {
			return fmt.Errorf("archive.bindings.%s: unsupported adaptor %q (expected one of %v)", subtype, adaptor, known)
		}
	}
	return nil
}

func (c *Config) validatePageCache() error {
	if c.PageCache.Enabled && c.PageCache.MaxMiB <= 0 {
		return errors.New("page_cache.max_mib must be positive when page_cache.enabled is true")
	}
	return nil
}

func (c *Config) validateProgress() error {
	return ensurePositiveMap(map[string]int{
		"progress.request_timeout":      c.Progress.RequestTimeout,
		"progress.min_interval_seconds": c.Progress.MinIntervalSeconds,
	})
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
