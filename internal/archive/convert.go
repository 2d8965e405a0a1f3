package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"comicvault/internal/detect"
)

// ConvertResult reports the outcome of Convert.
type ConvertResult struct {
	Source      Format
	Destination Format
	Path        string
	Entries     int
}

// Convert re-packs srcPath into dstFormat. The source adaptor is chosen from
// the file's content. When dstPath is empty the output sits beside the
// source with the destination extension. Converting a file onto itself in
// the same format is rejected.
func Convert(ctx context.Context, reg *Registry, srcPath string, dstFormat Format, dstPath string) (ConvertResult, error) {
	result := ConvertResult{Destination: dstFormat}
	subtype, err := detect.DetectFile(srcPath)
	if err != nil {
		return result, err
	}
	src, ok := reg.Resolve(subtype)
	if !ok {
		return result, newError(ErrUnsupported, FormatUnknown, "convert", srcPath, "", fmt.Errorf("no adaptor for subtype %q", subtype))
	}
	result.Source = src.Format()
	dst, ok := reg.ResolveByFormat(dstFormat)
	if !ok {
		return result, newError(ErrUnsupported, dstFormat, "convert", srcPath, "", errors.New("destination format not registered"))
	}

	if strings.TrimSpace(dstPath) == "" {
		dstPath = strings.TrimSuffix(srcPath, filepath.Ext(srcPath)) + dstFormat.Extension()
	}
	result.Path = dstPath
	if sameFile(srcPath, dstPath) && src.Format() == dstFormat {
		return result, newError(ErrUnsupported, dstFormat, "convert", srcPath, "", errors.New("source already in destination format"))
	}

	rewritten, err := Rewrite(ctx, src, srcPath, dst, dstPath, RewriteOptions{})
	if err != nil {
		return result, err
	}
	result.Entries = rewritten.Written
	return result, nil
}

func sameFile(a, b string) bool {
	ai, errA := os.Stat(a)
	bi, errB := os.Stat(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return os.SameFile(ai, bi)
}
