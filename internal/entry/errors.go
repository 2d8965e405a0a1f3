package entry

import "fmt"

// LoaderErrorKind tags loader failures.
type LoaderErrorKind string

const (
	KindDecode LoaderErrorKind = "decode"
	KindParse  LoaderErrorKind = "parse"
)

// LoaderError reports an entry a loader could not interpret. Callers skip
// the entry (decode) or continue without metadata (parse).
type LoaderError struct {
	Kind  LoaderErrorKind
	Entry string
	Err   error
}

func (e *LoaderError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Entry, e.Err)
}

func (e *LoaderError) Unwrap() error { return e.Err }
