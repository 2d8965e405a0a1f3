// Package services defines shared utilities consumed by the ingestion stages
// and external tool wrappers.
//
// Key responsibilities:
//   - Context helpers that stamp comic IDs, stage names, and job correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so callers can classify
//     failures (retry later vs give up) without string matching.
//
// Use these helpers when wiring new stage logic so error handling and
// observability stay uniform across the pipeline.
package services
