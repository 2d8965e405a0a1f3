// Package pagecache keeps a content-addressed copy of page images extracted
// during ingestion so later tooling can read pages without reopening the
// source archive. Entries are keyed by the SHA-256 of the page bytes, which
// makes a page shared by several issues (scanner credits, ads) stored once.
//
// # Size Management
//
// The cache enforces two constraints: a configurable size budget
// (page_cache.max_mib) and a 20% free-space floor on the underlying volume.
// When either limit is exceeded the manager prunes the least recently written
// pages first. Pages stored for the record currently being loaded are never
// pruned in the same pass.
package pagecache
