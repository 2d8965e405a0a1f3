// Package config loads, normalizes, and validates comicvault configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// COMICVAULT_NTFY_TOPIC. The Config type centralizes every knob the ingestion
// pipeline and CLI need, allowing library, staging and cache directories plus
// archive adaptor bindings to be discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
