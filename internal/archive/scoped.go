package archive

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// WithReadHandle opens path, passes the handle to fn, and always closes it.
// A close failure is reported only when fn succeeded.
func WithReadHandle(ctx context.Context, a Adaptor, archivePath string, fn func(*ReadHandle) error) (err error) {
	if a == nil {
		return newError(ErrUnsupported, FormatUnknown, "open", archivePath, "", errors.New("no adaptor"))
	}
	h, err := a.OpenForRead(ctx, archivePath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.CloseRead(h); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(h)
}

// RewriteOptions filters and renames entries while copying.
type RewriteOptions struct {
	// Skip reports entries to drop from the output.
	Skip func(EntryDescriptor) bool
	// RenamePages renumbers page entries in output order.
	RenamePages bool
}

// RewriteResult summarizes a completed rewrite.
type RewriteResult struct {
	Written int
	Skipped int
	// Renamed maps original entry names to their new names.
	Renamed map[string]string
}

// Rewrite copies entries from srcPath (read by src) into dstPath (written by
// dst). Nothing at dstPath changes unless every entry copies and Finish
// succeeds. srcPath and dstPath may be the same file.
func Rewrite(ctx context.Context, src Adaptor, srcPath string, dst Adaptor, dstPath string, opts RewriteOptions) (RewriteResult, error) {
	result := RewriteResult{Renamed: map[string]string{}}
	if dst == nil || !dst.Writable() {
		format := FormatUnknown
		if dst != nil {
			format = dst.Format()
		}
		return result, newError(ErrUnsupported, format, "rewrite", dstPath, "", errors.New("destination format is read-only"))
	}

	w, err := dst.OpenForWrite(ctx, dstPath)
	if err != nil {
		return result, err
	}
	finished := false
	defer func() {
		if !finished {
			_ = dst.Abort(w)
		}
	}()

	pageNumber := 0
	err = WithReadHandle(ctx, src, srcPath, func(h *ReadHandle) error {
		for desc, err := range src.Entries(ctx, h) {
			if err != nil {
				return err
			}
			if opts.Skip != nil && opts.Skip(desc) {
				result.Skipped++
				continue
			}
			data, err := src.ReadEntry(ctx, h, desc.Name)
			if err != nil {
				return err
			}
			name := desc.Name
			if opts.RenamePages && desc.Kind == KindPage {
				pageNumber++
				name = PageName(pageNumber, desc.Name)
				if name != desc.Name {
					result.Renamed[desc.Name] = name
				}
			}
			if err := dst.WriteEntry(w, name, data); err != nil {
				return err
			}
			result.Written++
		}
		return nil
	})
	if err != nil {
		return result, err
	}
	finished = true
	if err := dst.Finish(ctx, w); err != nil {
		return result, err
	}
	return result, nil
}

// PageName returns the canonical name for the nth page (1-based), keeping
// the original extension in lower case.
func PageName(n int, original string) string {
	ext := strings.ToLower(path.Ext(original))
	return fmt.Sprintf("page-%03d%s", n, ext)
}
