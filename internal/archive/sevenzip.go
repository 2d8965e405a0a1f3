package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"

	"github.com/bodgit/sevenzip"

	"comicvault/internal/services/p7zip"
)

// SevenZipAdaptor reads CB7 containers in process and writes them through
// the external 7z tool.
type SevenZipAdaptor struct {
	opts   options
	client *p7zip.Client
}

// NewSevenZip constructs the CB7 adaptor. A nil client makes it read-only.
func NewSevenZip(client *p7zip.Client, opts ...Option) *SevenZipAdaptor {
	return &SevenZipAdaptor{opts: buildOptions(opts), client: client}
}

type sevenZipState struct {
	reader *sevenzip.Reader
	byName map[string]*sevenzip.File
}

type sevenZipSink struct {
	stageDir string
}

func (a *SevenZipAdaptor) Format() Format { return FormatCB7 }

func (a *SevenZipAdaptor) Writable() bool { return a.client != nil }

func (a *SevenZipAdaptor) OpenForRead(ctx context.Context, archivePath string) (*ReadHandle, error) {
	file, err := openGuarded(archivePath)
	if err != nil {
		return nil, newError(ErrUnreadable, FormatCB7, "open", archivePath, "", err)
	}
	release := file.bind(ctx, a.opts.ioTimeout)
	defer release()

	reader, err := sevenzip.NewReader(file, file.size)
	if err != nil {
		_ = file.Close()
		return nil, newError(ErrUnreadable, FormatCB7, "open", archivePath, "", err)
	}
	state := &sevenZipState{reader: reader, byName: make(map[string]*sevenzip.File, len(reader.File))}
	for _, f := range reader.File {
		if _, seen := state.byName[f.Name]; !seen {
			state.byName[f.Name] = f
		}
	}
	return &ReadHandle{format: FormatCB7, path: archivePath, file: file, native: state}, nil
}

func (a *SevenZipAdaptor) Entries(ctx context.Context, h *ReadHandle) iter.Seq2[EntryDescriptor, error] {
	return func(yield func(EntryDescriptor, error) bool) {
		if err := checkRead(h, FormatCB7, "enumerate"); err != nil {
			yield(EntryDescriptor{}, err)
			return
		}
		if h.enumerated {
			yield(EntryDescriptor{}, newError(ErrAlreadyEnumerated, FormatCB7, "enumerate", h.path, "", nil))
			return
		}
		h.enumerated = true
		state := h.native.(*sevenZipState)
		index := 0
		for _, f := range state.reader.File {
			if err := ctx.Err(); err != nil {
				yield(EntryDescriptor{}, newError(ErrUnreadable, FormatCB7, "enumerate", h.path, "", err))
				return
			}
			if f.FileInfo().IsDir() {
				continue
			}
			desc := EntryDescriptor{
				Index: index,
				Name:  f.Name,
				Size:  int64(f.UncompressedSize),
				Kind:  ClassifyName(f.Name),
			}
			index++
			if !yield(desc, nil) {
				return
			}
		}
	}
}

func (a *SevenZipAdaptor) ReadEntry(ctx context.Context, h *ReadHandle, name string) ([]byte, error) {
	if err := checkRead(h, FormatCB7, "read"); err != nil {
		return nil, err
	}
	state := h.native.(*sevenZipState)
	f, ok := state.byName[name]
	if !ok || f.FileInfo().IsDir() {
		return nil, newError(ErrEntryNotFound, FormatCB7, "read", h.path, name, nil)
	}
	if f.UncompressedSize > maxEntryBytes {
		return nil, newError(ErrUnreadable, FormatCB7, "read", h.path, name, fmt.Errorf("entry exceeds %d bytes", maxEntryBytes))
	}

	release := h.file.bind(ctx, a.opts.ioTimeout)
	defer release()

	rc, err := f.Open()
	if err != nil {
		return nil, newError(ErrUnreadable, FormatCB7, "read", h.path, name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxEntryBytes+1))
	if err != nil {
		return nil, newError(ErrUnreadable, FormatCB7, "read", h.path, name, err)
	}
	return data, nil
}

func (a *SevenZipAdaptor) CloseRead(h *ReadHandle) error {
	if h == nil || h.closed {
		return nil
	}
	h.closed = true
	h.native = nil
	if err := h.file.Close(); err != nil {
		return newError(ErrUnreadable, FormatCB7, "close", h.path, "", err)
	}
	return nil
}

func (a *SevenZipAdaptor) OpenForWrite(ctx context.Context, archivePath string) (*WriteHandle, error) {
	if a.client == nil {
		return nil, newError(ErrUnsupported, FormatCB7, "open for write", archivePath, "", errors.New("7z binary not configured"))
	}
	if err := ctx.Err(); err != nil {
		return nil, newError(ErrWriteFailed, FormatCB7, "open", archivePath, "", err)
	}
	stageDir, err := os.MkdirTemp(filepath.Dir(archivePath), "."+filepath.Base(archivePath)+".*.stage")
	if err != nil {
		return nil, newError(ErrWriteFailed, FormatCB7, "open", archivePath, "", err)
	}
	return &WriteHandle{format: FormatCB7, path: archivePath, native: &sevenZipSink{stageDir: stageDir}}, nil
}

func (a *SevenZipAdaptor) WriteEntry(h *WriteHandle, name string, data []byte) error {
	if err := checkWrite(h, FormatCB7, "write"); err != nil {
		return err
	}
	if err := h.claimName(name); err != nil {
		return newError(ErrWriteFailed, FormatCB7, "write", h.path, name, err)
	}
	sink := h.native.(*sevenZipSink)
	target := filepath.Join(sink.stageDir, filepath.FromSlash(h.order[len(h.order)-1]))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return newError(ErrWriteFailed, FormatCB7, "write", h.path, name, err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return newError(ErrWriteFailed, FormatCB7, "write", h.path, name, err)
	}
	return nil
}

func (a *SevenZipAdaptor) Finish(ctx context.Context, h *WriteHandle) error {
	if err := checkWrite(h, FormatCB7, "finish"); err != nil {
		return err
	}
	h.done = true
	sink := h.native.(*sevenZipSink)
	defer os.RemoveAll(sink.stageDir)

	if len(h.order) == 0 {
		return newError(ErrWriteFailed, FormatCB7, "finish", h.path, "", errors.New("7z archives need at least one entry"))
	}
	// 7z refuses to update a file that is not already an archive, so build
	// under a fresh name inside the stage directory's parent.
	tmpArchive, err := filepath.Abs(sink.stageDir + ".7z")
	if err != nil {
		return newError(ErrWriteFailed, FormatCB7, "finish", h.path, "", err)
	}
	if err := a.client.Create(ctx, tmpArchive, sink.stageDir, h.order); err != nil {
		_ = os.Remove(tmpArchive)
		return newError(ErrWriteFailed, FormatCB7, "finish", h.path, "", err)
	}
	if info, err := os.Stat(h.path); err == nil {
		_ = os.Chmod(tmpArchive, info.Mode().Perm())
	}
	if err := os.Rename(tmpArchive, h.path); err != nil {
		_ = os.Remove(tmpArchive)
		return newError(ErrWriteFailed, FormatCB7, "finish", h.path, "", err)
	}
	return nil
}

func (a *SevenZipAdaptor) Abort(h *WriteHandle) error {
	if h == nil || h.done {
		return nil
	}
	if h.format != FormatCB7 {
		return newError(ErrUnsupported, FormatCB7, "abort", h.path, "", errors.New("foreign handle"))
	}
	h.done = true
	sink := h.native.(*sevenZipSink)
	if err := os.RemoveAll(sink.stageDir); err != nil {
		return newError(ErrWriteFailed, FormatCB7, "abort", h.path, "", err)
	}
	return nil
}
