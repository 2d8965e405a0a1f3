// Package detect identifies archive container formats from file content.
//
// The file name and extension are never consulted: a RAR archive renamed to
// .cbz is reported as RAR. Detection reads at most SniffLimit bytes and hands
// back a reader that still yields the stream from its first byte, so callers
// can sniff and then parse the same io.Reader.
package detect

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gabriel-vasile/mimetype"
)

// SniffLimit is the number of leading bytes inspected.
const SniffLimit = 3072

// Subtype is the normalized container subtype used to resolve an adaptor.
type Subtype string

const (
	SubtypeZip      Subtype = "zip"
	SubtypeRar      Subtype = "x-rar-compressed"
	SubtypeSevenZip Subtype = "x-7z-compressed"
	SubtypeUnknown  Subtype = "unknown"
)

// String returns the subtype tag.
func (s Subtype) String() string {
	return string(s)
}

// Known reports whether s names a recognised container.
func (s Subtype) Known() bool {
	return s != "" && s != SubtypeUnknown
}

// Error reports an I/O failure while sniffing. Unrecognised content is not an
// error; it yields SubtypeUnknown.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("detect: %v", e.Err)
	}
	return fmt.Sprintf("detect %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

var containers = []struct {
	mime    string
	subtype Subtype
}{
	{"application/zip", SubtypeZip},
	{"application/x-rar-compressed", SubtypeRar},
	{"application/x-7z-compressed", SubtypeSevenZip},
}

// Detect sniffs r and returns the container subtype together with a reader
// positioned at the start of the original stream.
func Detect(r io.Reader) (Subtype, io.Reader, error) {
	if r == nil {
		return SubtypeUnknown, nil, &Error{Err: errors.New("nil reader")}
	}
	buffered := bufio.NewReaderSize(r, SniffLimit)
	head, err := buffered.Peek(SniffLimit)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return SubtypeUnknown, buffered, &Error{Err: err}
	}
	return DetectBytes(head), buffered, nil
}

// DetectBytes classifies an in-memory prefix.
func DetectBytes(head []byte) Subtype {
	if len(head) > SniffLimit {
		head = head[:SniffLimit]
	}
	if len(head) == 0 {
		return SubtypeUnknown
	}
	return FromMIME(mimetype.Detect(head))
}

// FromMIME normalizes a detected MIME type. Formats derived from ZIP (EPUB,
// JAR, office documents) resolve to their container by walking the parent
// chain.
func FromMIME(m *mimetype.MIME) Subtype {
	for ; m != nil; m = m.Parent() {
		for _, c := range containers {
			if m.Is(c.mime) {
				return c.subtype
			}
		}
	}
	return SubtypeUnknown
}

// DetectFile opens path and sniffs its content.
func DetectFile(path string) (Subtype, error) {
	f, err := os.Open(path)
	if err != nil {
		return SubtypeUnknown, &Error{Path: path, Err: err}
	}
	defer f.Close()

	subtype, _, err := Detect(f)
	if err != nil {
		var derr *Error
		if errors.As(err, &derr) {
			derr.Path = path
		}
		return SubtypeUnknown, err
	}
	return subtype, nil
}
