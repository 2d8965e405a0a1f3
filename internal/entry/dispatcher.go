package entry

import (
	"context"
	"log/slog"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"comicvault/internal/comic"
	"comicvault/internal/logging"
)

// Result is the outcome of dispatching one entry.
type Result string

const (
	ResultLoaded    Result = "loaded"
	ResultDuplicate Result = "duplicate"
	ResultIgnored   Result = "ignored"
	ResultFailed    Result = "failed"
)

// Loader consumes entry bytes and mutates the record.
type Loader interface {
	Load(ctx context.Context, rec *comic.Record, name string, data []byte) error
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, rec *comic.Record, name string, data []byte) error

func (f LoaderFunc) Load(ctx context.Context, rec *comic.Record, name string, data []byte) error {
	return f(ctx, rec, name, data)
}

// Dispatcher routes entries to loaders.
type Dispatcher struct {
	masks  map[string]Loader
	images Loader
	logger *slog.Logger
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithMask binds an exact, case-sensitive basename to a loader.
func WithMask(basename string, loader Loader) Option {
	return func(d *Dispatcher) {
		if basename != "" && loader != nil {
			d.masks[basename] = loader
		}
	}
}

// WithImageLoader replaces the loader used for sniffed raster images.
func WithImageLoader(loader Loader) Option {
	return func(d *Dispatcher) {
		if loader != nil {
			d.images = loader
		}
	}
}

// NewDispatcher returns a dispatcher with the ComicInfo mask and the
// default image loader.
func NewDispatcher(logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		masks:  map[string]Loader{ComicInfoName: NewComicInfoLoader()},
		images: NewImageLoader(),
		logger: logging.NewComponentLogger(logger, "entry"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Dispatch routes one entry. Re-dispatching an entry already recorded as a
// page is a no-op. Loader failures are returned with ResultFailed; the
// caller decides whether to continue.
func (d *Dispatcher) Dispatch(ctx context.Context, rec *comic.Record, entryName string, data []byte) (Result, error) {
	if rec.HasPage(entryName) {
		return ResultDuplicate, nil
	}
	if loader, ok := d.masks[basename(entryName)]; ok {
		if err := loader.Load(ctx, rec, entryName, data); err != nil {
			return ResultFailed, err
		}
		return ResultLoaded, nil
	}
	if mime, ok := SniffImage(data); ok {
		if err := d.images.Load(ctx, rec, entryName, data); err != nil {
			return ResultFailed, err
		}
		d.logger.Debug("page loaded",
			logging.String("entry", entryName),
			logging.String("mime", mime),
		)
		return ResultLoaded, nil
	}
	d.logger.Debug("entry ignored", logging.String("entry", entryName))
	return ResultIgnored, nil
}

var rasterTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"image/bmp",
	"image/tiff",
}

// SniffImage reports whether data is a supported raster image and returns
// its MIME type.
func SniffImage(data []byte) (string, bool) {
	if len(data) == 0 {
		return "", false
	}
	m := mimetype.Detect(data)
	for ; m != nil; m = m.Parent() {
		for _, t := range rasterTypes {
			if m.Is(t) {
				return t, true
			}
		}
	}
	return "", false
}

func basename(name string) string {
	return path.Base(strings.ReplaceAll(name, "\\", "/"))
}
