// Package logging assembles structured slog loggers and formatting helpers used
// across comicvault.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so stage code can automatically
// tag log lines with comic IDs, stages, and job correlation IDs. The package
// also provides a no-op logger for tests and wiring code that cannot fail.
package logging
