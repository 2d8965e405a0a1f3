package stage

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"comicvault/internal/comic"
	"comicvault/internal/services"
)

// StatSource refreshes rec.Missing from the filesystem. It returns the file
// info when the source exists and nil when it is gone. Other stat failures
// and non-regular files are returned as errors.
func StatSource(stageName string, rec *comic.Record) (os.FileInfo, error) {
	path := strings.TrimSpace(rec.SourcePath)
	if path == "" {
		return nil, services.Wrap(services.ErrValidation, stageName, "stat source",
			"Record has no source path", nil)
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			rec.Missing = true
			return nil, nil
		}
		return nil, services.Wrap(services.ErrTransient, stageName, "stat source",
			"Source file could not be inspected", err)
	}
	if !info.Mode().IsRegular() {
		return nil, services.Wrap(services.ErrValidation, stageName, "stat source",
			"Source path is not a regular file", nil)
	}
	rec.Missing = false
	return info, nil
}
