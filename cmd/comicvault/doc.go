// Package main hosts the comicvault CLI entrypoint and command graph.
//
// The Cobra-based command tree opens the library database, builds the
// ingest engine, and drives imports, watch mode, and library maintenance.
// Configuration resolution and logger setup live in commandContext so
// subcommands only deal with flags and output.
//
// New behaviour belongs in the internal packages first; commands here stay
// thin wrappers that format results.
package main
