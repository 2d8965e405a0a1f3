package archive

import (
	"context"
	"iter"
	"path"
	"strings"
)

// Format tags the container family an adaptor serves.
type Format string

const (
	FormatCBZ     Format = "CBZ"
	FormatCBR     Format = "CBR"
	FormatCB7     Format = "CB7"
	FormatUnknown Format = "unknown"
)

// ParseFormat accepts tags case-insensitively ("cbz", "CB7").
func ParseFormat(value string) (Format, bool) {
	switch Format(strings.ToUpper(strings.TrimSpace(value))) {
	case FormatCBZ:
		return FormatCBZ, true
	case FormatCBR:
		return FormatCBR, true
	case FormatCB7:
		return FormatCB7, true
	default:
		return FormatUnknown, false
	}
}

// Extension returns the conventional file extension for the format.
func (f Format) Extension() string {
	switch f {
	case FormatCBZ:
		return ".cbz"
	case FormatCBR:
		return ".cbr"
	case FormatCB7:
		return ".cb7"
	default:
		return ""
	}
}

// EntryKind is a name-based hint about what an entry holds. The dispatcher
// still sniffs content before loading.
type EntryKind string

const (
	KindPage     EntryKind = "page"
	KindMetadata EntryKind = "metadata"
	KindIgnored  EntryKind = "ignored"
)

// MetadataEntryName is the sidecar carrying bibliographic data.
const MetadataEntryName = "ComicInfo.xml"

var pageExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}, ".bmp": {}, ".tif": {}, ".tiff": {},
}

// ClassifyName returns the kind hint for an entry name.
func ClassifyName(name string) EntryKind {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == MetadataEntryName {
		return KindMetadata
	}
	if strings.HasPrefix(base, ".") || strings.HasPrefix(name, "__MACOSX/") {
		return KindIgnored
	}
	if _, ok := pageExtensions[strings.ToLower(path.Ext(base))]; ok {
		return KindPage
	}
	return KindIgnored
}

// EntryDescriptor describes one non-directory entry in natural archive order.
type EntryDescriptor struct {
	Index int
	Name  string
	Size  int64
	Kind  EntryKind
}

// ReadHandle is an open archive being read. It must not be shared across
// goroutines or passed to a different adaptor.
type ReadHandle struct {
	format     Format
	path       string
	file       *guardedFile
	native     any
	enumerated bool
	closed     bool
}

// Format returns the container family of the handle.
func (h *ReadHandle) Format() Format { return h.format }

// Path returns the archive path the handle was opened from.
func (h *ReadHandle) Path() string { return h.path }

// WriteHandle is an archive under construction. Nothing is visible at the
// target path until Finish succeeds.
type WriteHandle struct {
	format Format
	path   string
	names  map[string]struct{}
	order  []string
	native any
	done   bool
}

// Format returns the container family being written.
func (h *WriteHandle) Format() Format { return h.format }

// Path returns the target path that Finish will replace.
func (h *WriteHandle) Path() string { return h.path }

// Entries returns the names written so far, in order.
func (h *WriteHandle) Entries() []string { return append([]string(nil), h.order...) }

// Adaptor is the capability set every container family implements.
type Adaptor interface {
	Format() Format
	// Writable reports whether OpenForWrite can succeed for this family.
	Writable() bool
	OpenForRead(ctx context.Context, path string) (*ReadHandle, error)
	// Entries lazily yields descriptors in archive order. It may be consumed
	// once per handle.
	Entries(ctx context.Context, h *ReadHandle) iter.Seq2[EntryDescriptor, error]
	ReadEntry(ctx context.Context, h *ReadHandle, name string) ([]byte, error)
	CloseRead(h *ReadHandle) error
	OpenForWrite(ctx context.Context, path string) (*WriteHandle, error)
	WriteEntry(h *WriteHandle, name string, data []byte) error
	// Finish atomically replaces the target. It is the only durability point.
	Finish(ctx context.Context, h *WriteHandle) error
	Abort(h *WriteHandle) error
}
