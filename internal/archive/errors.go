package archive

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Match with errors.Is.
var (
	ErrUnreadable        = errors.New("archive unreadable")
	ErrEntryNotFound     = errors.New("entry not found")
	ErrWriteFailed       = errors.New("archive write failed")
	ErrUnsupported       = errors.New("operation unsupported")
	ErrAlreadyEnumerated = errors.New("entries already enumerated")
	ErrHandleClosed      = errors.New("handle closed")
)

// Error is the typed failure returned by adaptors.
type Error struct {
	Kind   error
	Format Format
	Op     string
	Path   string
	Entry  string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(strings.ToLower(string(e.Format)))
	if e.Op != "" {
		b.WriteByte(' ')
		b.WriteString(e.Op)
	}
	if e.Path != "" {
		b.WriteByte(' ')
		b.WriteString(e.Path)
	}
	if e.Entry != "" {
		fmt.Fprintf(&b, " [%s]", e.Entry)
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, format Format, op, path, entry string, err error) *Error {
	return &Error{Kind: kind, Format: format, Op: op, Path: path, Entry: entry, Err: err}
}

// RegistryError describes one invalid binding rejected by Build.
type RegistryError struct {
	Subtype string
	Adaptor string
	Reason  string
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("archive registry: subtype %q adaptor %q: %s", e.Subtype, e.Adaptor, e.Reason)
}
