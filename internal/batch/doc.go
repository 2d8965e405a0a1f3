// Package batch applies the ingestion lifecycle to large collections.
//
// A Job runs its steps in lifecycle order. For each step the eligible
// records are split into fixed-size chunks; every chunk runs the stage
// handler on a bounded worker pool and then fires the step's event for the
// records that succeeded, one at a time. A failing record never aborts its
// chunk. Progress is published after every chunk, and Stop is honoured
// between chunks while in-flight records finish.
package batch
