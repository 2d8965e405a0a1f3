package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path"
	"strings"
	"time"

	"comicvault/internal/fileutil"
)

// ZipAdaptor reads and writes CBZ (ZIP) containers.
type ZipAdaptor struct {
	opts options
}

// NewZip constructs the CBZ adaptor.
func NewZip(opts ...Option) *ZipAdaptor {
	return &ZipAdaptor{opts: buildOptions(opts)}
}

type zipState struct {
	reader *zip.Reader
	byName map[string]*zip.File
}

// zipSink streams into a temp sibling. ctx is the caller's context from
// OpenForWrite; each write is further bounded by the I/O timeout.
type zipSink struct {
	ctx    context.Context
	tmp    *os.File
	out    *guardedWriter
	writer *zip.Writer
}

func (a *ZipAdaptor) Format() Format { return FormatCBZ }

func (a *ZipAdaptor) Writable() bool { return true }

func (a *ZipAdaptor) OpenForRead(ctx context.Context, archivePath string) (*ReadHandle, error) {
	file, err := openGuarded(archivePath)
	if err != nil {
		return nil, newError(ErrUnreadable, FormatCBZ, "open", archivePath, "", err)
	}
	release := file.bind(ctx, a.opts.ioTimeout)
	defer release()

	reader, err := zip.NewReader(file, file.size)
	if err != nil {
		_ = file.Close()
		return nil, newError(ErrUnreadable, FormatCBZ, "open", archivePath, "", err)
	}
	state := &zipState{reader: reader, byName: make(map[string]*zip.File, len(reader.File))}
	for _, f := range reader.File {
		if _, seen := state.byName[f.Name]; !seen {
			state.byName[f.Name] = f
		}
	}
	return &ReadHandle{format: FormatCBZ, path: archivePath, file: file, native: state}, nil
}

func (a *ZipAdaptor) Entries(ctx context.Context, h *ReadHandle) iter.Seq2[EntryDescriptor, error] {
	return func(yield func(EntryDescriptor, error) bool) {
		if err := checkRead(h, FormatCBZ, "enumerate"); err != nil {
			yield(EntryDescriptor{}, err)
			return
		}
		if h.enumerated {
			yield(EntryDescriptor{}, newError(ErrAlreadyEnumerated, FormatCBZ, "enumerate", h.path, "", nil))
			return
		}
		h.enumerated = true
		state := h.native.(*zipState)
		index := 0
		for _, f := range state.reader.File {
			if err := ctx.Err(); err != nil {
				yield(EntryDescriptor{}, newError(ErrUnreadable, FormatCBZ, "enumerate", h.path, "", err))
				return
			}
			if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
				continue
			}
			desc := EntryDescriptor{
				Index: index,
				Name:  f.Name,
				Size:  int64(f.UncompressedSize64),
				Kind:  ClassifyName(f.Name),
			}
			index++
			if !yield(desc, nil) {
				return
			}
		}
	}
}

func (a *ZipAdaptor) ReadEntry(ctx context.Context, h *ReadHandle, name string) ([]byte, error) {
	if err := checkRead(h, FormatCBZ, "read"); err != nil {
		return nil, err
	}
	state := h.native.(*zipState)
	f, ok := state.byName[name]
	if !ok || f.FileInfo().IsDir() {
		return nil, newError(ErrEntryNotFound, FormatCBZ, "read", h.path, name, nil)
	}
	if f.UncompressedSize64 > maxEntryBytes {
		return nil, newError(ErrUnreadable, FormatCBZ, "read", h.path, name, fmt.Errorf("entry exceeds %d bytes", maxEntryBytes))
	}

	release := h.file.bind(ctx, a.opts.ioTimeout)
	defer release()

	rc, err := f.Open()
	if err != nil {
		return nil, newError(ErrUnreadable, FormatCBZ, "read", h.path, name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxEntryBytes+1))
	if err != nil {
		return nil, newError(ErrUnreadable, FormatCBZ, "read", h.path, name, err)
	}
	return data, nil
}

func (a *ZipAdaptor) CloseRead(h *ReadHandle) error {
	if h == nil || h.closed {
		return nil
	}
	h.closed = true
	h.native = nil
	if err := h.file.Close(); err != nil {
		return newError(ErrUnreadable, FormatCBZ, "close", h.path, "", err)
	}
	return nil
}

func (a *ZipAdaptor) OpenForWrite(ctx context.Context, archivePath string) (*WriteHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, newError(ErrWriteFailed, FormatCBZ, "open", archivePath, "", err)
	}
	tmp, err := fileutil.CreateTempSibling(archivePath)
	if err != nil {
		return nil, newError(ErrWriteFailed, FormatCBZ, "open", archivePath, "", err)
	}
	out := newGuardedWriter(tmp)
	sink := &zipSink{ctx: ctx, tmp: tmp, out: out, writer: zip.NewWriter(out)}
	return &WriteHandle{format: FormatCBZ, path: archivePath, native: sink}, nil
}

func (a *ZipAdaptor) WriteEntry(h *WriteHandle, name string, data []byte) error {
	if err := checkWrite(h, FormatCBZ, "write"); err != nil {
		return err
	}
	if err := h.claimName(name); err != nil {
		return newError(ErrWriteFailed, FormatCBZ, "write", h.path, name, err)
	}
	sink := h.native.(*zipSink)
	release := sink.out.bind(sink.ctx, a.opts.ioTimeout)
	defer release()

	entryName := h.order[len(h.order)-1]
	header := &zip.FileHeader{
		Name:     entryName,
		Method:   zipMethodFor(entryName),
		Modified: time.Now().UTC(),
	}
	w, err := sink.writer.CreateHeader(header)
	if err != nil {
		return newError(ErrWriteFailed, FormatCBZ, "write", h.path, name, err)
	}
	if _, err := w.Write(data); err != nil {
		return newError(ErrWriteFailed, FormatCBZ, "write", h.path, name, err)
	}
	return nil
}

func (a *ZipAdaptor) Finish(ctx context.Context, h *WriteHandle) error {
	if err := checkWrite(h, FormatCBZ, "finish"); err != nil {
		return err
	}
	h.done = true
	sink := h.native.(*zipSink)
	if err := ctx.Err(); err != nil {
		fileutil.DiscardTemp(sink.tmp)
		return newError(ErrWriteFailed, FormatCBZ, "finish", h.path, "", err)
	}
	release := sink.out.bind(ctx, a.opts.ioTimeout)
	defer release()
	if err := sink.writer.Close(); err != nil {
		fileutil.DiscardTemp(sink.tmp)
		return newError(ErrWriteFailed, FormatCBZ, "finish", h.path, "", err)
	}
	if err := fileutil.CommitTemp(sink.tmp, h.path); err != nil {
		return newError(ErrWriteFailed, FormatCBZ, "finish", h.path, "", err)
	}
	return nil
}

func (a *ZipAdaptor) Abort(h *WriteHandle) error {
	if h == nil || h.done {
		return nil
	}
	if h.format != FormatCBZ {
		return newError(ErrUnsupported, FormatCBZ, "abort", h.path, "", errors.New("foreign handle"))
	}
	h.done = true
	fileutil.DiscardTemp(h.native.(*zipSink).tmp)
	return nil
}

// Already-compressed images gain nothing from deflate.
func zipMethodFor(name string) uint16 {
	switch strings.ToLower(path.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return zip.Store
	default:
		return zip.Deflate
	}
}
