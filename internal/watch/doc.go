// Package watch turns filesystem activity under a directory into import
// jobs. Events are collected per path and flushed after a quiet period, so
// a file still being copied is imported once, after the copy settles.
package watch
