package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/nwaples/rardecode/v2"
)

// RarAdaptor reads CBR (RAR 4 and 5) containers. RAR is a proprietary
// write format, so the adaptor is read-only.
type RarAdaptor struct {
	opts options
}

// NewRar constructs the CBR adaptor.
func NewRar(opts ...Option) *RarAdaptor {
	return &RarAdaptor{opts: buildOptions(opts)}
}

func (a *RarAdaptor) Format() Format { return FormatCBR }

func (a *RarAdaptor) Writable() bool { return false }

func (a *RarAdaptor) OpenForRead(ctx context.Context, archivePath string) (*ReadHandle, error) {
	file, err := openGuarded(archivePath)
	if err != nil {
		return nil, newError(ErrUnreadable, FormatCBR, "open", archivePath, "", err)
	}
	opCtx, cancel := scope(ctx, a.opts.ioTimeout)
	defer cancel()

	// Parse the first header so corrupt archives fail at open.
	reader, err := rardecode.NewReader(file.view(opCtx))
	if err == nil {
		_, err = reader.Next()
		if errors.Is(err, io.EOF) {
			err = nil
		}
	}
	if err != nil {
		_ = file.Close()
		return nil, newError(ErrUnreadable, FormatCBR, "open", archivePath, "", err)
	}
	return &ReadHandle{format: FormatCBR, path: archivePath, file: file}, nil
}

// scan starts a fresh stream from the first volume header. RAR archives are
// sequential (and often solid), so random access means re-reading. Each scan
// owns its offset, which lets ReadEntry run while Entries is mid-stream.
func (a *RarAdaptor) scan(sig cancelSignal, h *ReadHandle) (*rardecode.Reader, error) {
	return rardecode.NewReader(h.file.view(sig))
}

func (a *RarAdaptor) Entries(ctx context.Context, h *ReadHandle) iter.Seq2[EntryDescriptor, error] {
	return func(yield func(EntryDescriptor, error) bool) {
		if err := checkRead(h, FormatCBR, "enumerate"); err != nil {
			yield(EntryDescriptor{}, err)
			return
		}
		if h.enumerated {
			yield(EntryDescriptor{}, newError(ErrAlreadyEnumerated, FormatCBR, "enumerate", h.path, "", nil))
			return
		}
		h.enumerated = true

		deadline := newStepDeadline(ctx, a.opts.ioTimeout)
		defer deadline.stop()

		reader, err := a.scan(deadline, h)
		if err != nil {
			yield(EntryDescriptor{}, newError(ErrUnreadable, FormatCBR, "enumerate", h.path, "", err))
			return
		}
		index := 0
		for {
			deadline.step()
			header, err := reader.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(EntryDescriptor{}, newError(ErrUnreadable, FormatCBR, "enumerate", h.path, "", err))
				return
			}
			if header.IsDir {
				continue
			}
			desc := EntryDescriptor{
				Index: index,
				Name:  header.Name,
				Size:  header.UnPackedSize,
				Kind:  ClassifyName(header.Name),
			}
			index++
			if !yield(desc, nil) {
				return
			}
		}
	}
}

func (a *RarAdaptor) ReadEntry(ctx context.Context, h *ReadHandle, name string) ([]byte, error) {
	if err := checkRead(h, FormatCBR, "read"); err != nil {
		return nil, err
	}
	readCtx, cancel := scope(ctx, a.opts.ioTimeout)
	defer cancel()

	reader, err := a.scan(readCtx, h)
	if err != nil {
		return nil, newError(ErrUnreadable, FormatCBR, "read", h.path, name, err)
	}
	for {
		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil, newError(ErrEntryNotFound, FormatCBR, "read", h.path, name, nil)
		}
		if err != nil {
			return nil, newError(ErrUnreadable, FormatCBR, "read", h.path, name, err)
		}
		if header.IsDir || header.Name != name {
			continue
		}
		if header.UnPackedSize > maxEntryBytes {
			return nil, newError(ErrUnreadable, FormatCBR, "read", h.path, name, fmt.Errorf("entry exceeds %d bytes", maxEntryBytes))
		}
		data, err := io.ReadAll(io.LimitReader(reader, maxEntryBytes+1))
		if err != nil {
			return nil, newError(ErrUnreadable, FormatCBR, "read", h.path, name, err)
		}
		return data, nil
	}
}

func (a *RarAdaptor) CloseRead(h *ReadHandle) error {
	if h == nil || h.closed {
		return nil
	}
	h.closed = true
	if err := h.file.Close(); err != nil {
		return newError(ErrUnreadable, FormatCBR, "close", h.path, "", err)
	}
	return nil
}

func (a *RarAdaptor) OpenForWrite(_ context.Context, archivePath string) (*WriteHandle, error) {
	return nil, newError(ErrUnsupported, FormatCBR, "open for write", archivePath, "", errors.New("rar archives are read-only; convert to cbz or cb7"))
}

func (a *RarAdaptor) WriteEntry(h *WriteHandle, name string, _ []byte) error {
	return newError(ErrUnsupported, FormatCBR, "write", "", name, nil)
}

func (a *RarAdaptor) Finish(context.Context, *WriteHandle) error {
	return newError(ErrUnsupported, FormatCBR, "finish", "", "", nil)
}

func (a *RarAdaptor) Abort(*WriteHandle) error {
	return nil
}
