package entry

import (
	"bytes"
	"context"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"comicvault/internal/comic"
	"comicvault/internal/fileutil"
)

// ImageLoader records page dimensions and hashes. Only the image header is
// decoded.
type ImageLoader struct {
	// KeepBytes holds raw bytes on the record for downstream consumers.
	KeepBytes bool
}

// NewImageLoader returns a loader that keeps page bytes transiently.
func NewImageLoader() *ImageLoader {
	return &ImageLoader{KeepBytes: true}
}

func (l *ImageLoader) Load(ctx context.Context, rec *comic.Record, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return &LoaderError{Kind: KindDecode, Entry: name, Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return &LoaderError{Kind: KindDecode, Entry: name, Err: errors.New("image has no pixels")}
	}
	page := comic.Page{
		Filename: name,
		Hash:     fileutil.HashBytes(data),
		Size:     int64(len(data)),
		Width:    cfg.Width,
		Height:   cfg.Height,
	}
	var keep []byte
	if l.KeepBytes {
		keep = data
	}
	_, err = rec.AddPage(page, keep)
	return err
}

// ApplyPageHints copies sidecar page types onto pages by index. Metadata
// may be read before or after the pages, so this runs once loading ends.
func ApplyPageHints(rec *comic.Record) {
	for i := range rec.Pages {
		if hint := rec.Metadata.HintFor(rec.Pages[i].Index); hint != "" {
			rec.Pages[i].Type = hint
		}
	}
}
