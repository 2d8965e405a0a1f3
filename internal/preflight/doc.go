// Package preflight provides readiness checks for the filesystem paths and
// external tools comicvault depends on.
//
// These checks run in two contexts:
//   - "comicvault run" and "comicvault watch" call RunAll before starting a
//     job and refuse to start when a required check fails.
//   - "comicvault doctor" prints every result, including optional ones.
//
// Each check is gated by its config toggle. Disabled features are skipped.
package preflight
