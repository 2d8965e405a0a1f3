package testsupport

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

// RAR 4.x block types and flags used by the stored-method writer.
const (
	rarBlockMain    = 0x73
	rarBlockFile    = 0x74
	rarBlockEnd     = 0x7b
	rarLongBlock    = 0x8000
	rarEndFlags     = 0x4000
	rarMethodStore  = 0x30
	rarUnpackVer    = 20
	rarAttrArchive  = 0x20
	rarFileHeadBase = 32
)

var rarMarker = []byte{0x52, 0x61, 0x72, 0x21, 0x1a, 0x07, 0x00}

// WriteCBR writes a RAR 4 container with every entry stored uncompressed.
// It produces real archives that RAR readers accept, without a rar binary.
func WriteCBR(t testing.TB, path string, entries ...Entry) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	var buf bytes.Buffer
	buf.Write(rarMarker)
	writeRarBlock(&buf, rarBlockMain, 0, make([]byte, 6))
	for _, e := range entries {
		name := []byte(e.Name)
		body := make([]byte, 0, rarFileHeadBase-7+len(name))
		body = binary.LittleEndian.AppendUint32(body, uint32(len(e.Data)))
		body = binary.LittleEndian.AppendUint32(body, uint32(len(e.Data)))
		body = append(body, 0) // host os: MS-DOS
		body = binary.LittleEndian.AppendUint32(body, crc32.ChecksumIEEE(e.Data))
		body = binary.LittleEndian.AppendUint32(body, 0) // dos time
		body = append(body, rarUnpackVer, rarMethodStore)
		body = binary.LittleEndian.AppendUint16(body, uint16(len(name)))
		body = binary.LittleEndian.AppendUint32(body, rarAttrArchive)
		body = append(body, name...)
		writeRarBlock(&buf, rarBlockFile, rarLongBlock, body)
		buf.Write(e.Data)
	}
	writeRarBlock(&buf, rarBlockEnd, rarEndFlags, nil)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// writeRarBlock emits crc(2) type(1) flags(2) size(2) followed by body. The
// header crc is the low half of CRC-32 over everything after the crc field.
func writeRarBlock(buf *bytes.Buffer, typ byte, flags uint16, body []byte) {
	head := []byte{typ}
	head = binary.LittleEndian.AppendUint16(head, flags)
	head = binary.LittleEndian.AppendUint16(head, uint16(7+len(body)))
	head = append(head, body...)
	var crc [2]byte
	binary.LittleEndian.PutUint16(crc[:], uint16(crc32.ChecksumIEEE(head)))
	buf.Write(crc[:])
	buf.Write(head)
}

// NoisePNG encodes a w×h PNG of pseudo-random pixels. Noise does not
// compress, so the result is roughly 4·w·h bytes.
func NoisePNG(t testing.TB, w, h int, seed int64) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(rng.Intn(256)), G: uint8(rng.Intn(256)), B: uint8(rng.Intn(256)), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// StandardIssueCBR writes the four-page issue as a genuine RAR archive with
// pages large enough to span several decoder buffers.
func StandardIssueCBR(t testing.TB, path string) string {
	t.Helper()
	return WriteCBR(t, path,
		Entry{Name: "001.png", Data: NoisePNG(t, 300, 300, 1)},
		Entry{Name: "002.png", Data: NoisePNG(t, 300, 300, 2)},
		Entry{Name: "ComicInfo.xml", Data: ComicInfo("Saga", "1", "Chapter One")},
		Entry{Name: "003.png", Data: NoisePNG(t, 300, 300, 3)},
		Entry{Name: "004.png", Data: NoisePNG(t, 300, 300, 4)},
	)
}
