// Package comic holds the in-memory model of a comic archive moving through
// ingestion: the record, its ordered pages, and the bibliographic metadata
// read from the ComicInfo sidecar.
package comic
