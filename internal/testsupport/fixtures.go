package testsupport

import (
	"archive/zip"
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// Entry is one file placed in a fixture archive.
type Entry struct {
	Name string
	Data []byte
}

// JPEG encodes a solid w×h JPEG. Different shades yield different hashes.
func JPEG(t testing.TB, w, h int, shade uint8) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, solid(w, h, shade), &jpeg.Options{Quality: 80}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

// PNG encodes a solid w×h PNG.
func PNG(t testing.TB, w, h int, shade uint8) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, solid(w, h, shade)); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func solid(w, h int, shade uint8) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	fill := color.RGBA{R: shade, G: shade / 2, B: 255 - shade, A: 255}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, fill)
		}
	}
	return img
}

// ComicInfo renders a minimal sidecar document.
func ComicInfo(series, number, title string) []byte {
	return []byte(fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<ComicInfo>
  <Series>%s</Series>
  <Number>%s</Number>
  <Title>%s</Title>
  <Writer>Brian K. Vaughan</Writer>
  <Pages>
    <Page Image="0" Type="FrontCover"/>
  </Pages>
</ComicInfo>
`, series, number, title))
}

// WriteCBZ writes a ZIP container at path regardless of its extension.
func WriteCBZ(t testing.TB, path string, entries ...Entry) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.Name)
		if err != nil {
			t.Fatalf("zip entry %s: %v", e.Name, err)
		}
		if _, err := w.Write(e.Data); err != nil {
			t.Fatalf("zip write %s: %v", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// StandardIssue writes a four-page comic with a ComicInfo sidecar.
func StandardIssue(t testing.TB, path string) string {
	t.Helper()
	return WriteCBZ(t, path,
		Entry{Name: "001.jpg", Data: JPEG(t, 16, 24, 10)},
		Entry{Name: "002.jpg", Data: JPEG(t, 16, 24, 70)},
		Entry{Name: "ComicInfo.xml", Data: ComicInfo("Saga", "1", "Chapter One")},
		Entry{Name: "003.jpg", Data: JPEG(t, 16, 24, 130)},
		Entry{Name: "004.jpg", Data: JPEG(t, 16, 24, 190)},
	)
}
