package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile writes content to path with mode, creating parent directories.
func WriteFile(t testing.TB, path string, mode os.FileMode, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
