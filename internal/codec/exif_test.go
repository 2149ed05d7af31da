package codec

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// buildExifJPEG assembles a minimal JPEG whose APP1 segment carries an IFD0
// with description, resolution, artist and copyright entries.
func buildExifJPEG(t *testing.T) []byte {
	t.Helper()

	desc := []byte("Test image\x00")
	copyr := []byte("ACME\x00")

	var tiff bytes.Buffer
	le := binary.LittleEndian

	tiff.WriteString("II")
	binary.Write(&tiff, le, uint16(42))
	binary.Write(&tiff, le, uint32(8)) // IFD0 offset

	// 4 entries, data area starts after count + entries + next-IFD pointer.
	dataStart := uint32(8 + 2 + 4*12 + 4)
	descOff := dataStart
	copyrOff := descOff + uint32(len(desc))
	xresOff := copyrOff + uint32(len(copyr))

	binary.Write(&tiff, le, uint16(4))

	writeEntry := func(tag, typ uint16, count, value uint32) {
		binary.Write(&tiff, le, tag)
		binary.Write(&tiff, le, typ)
		binary.Write(&tiff, le, count)
		binary.Write(&tiff, le, value)
	}
	writeEntry(tagImageDescription, typeASCII, uint32(len(desc)), descOff)
	writeEntry(tagXResolution, typeRational, 1, xresOff)
	// "Bob\x00" fits inline in the value bytes.
	writeEntry(tagArtist, typeASCII, 4, le.Uint32([]byte("Bob\x00")))
	writeEntry(tagCopyright, typeASCII, uint32(len(copyr)), copyrOff)

	binary.Write(&tiff, le, uint32(0)) // no next IFD
	tiff.Write(desc)
	tiff.Write(copyr)
	binary.Write(&tiff, le, uint32(300)) // XResolution 300/1
	binary.Write(&tiff, le, uint32(1))

	payload := append([]byte("Exif\x00\x00"), tiff.Bytes()...)

	var jpeg bytes.Buffer
	jpeg.Write([]byte{0xFF, 0xD8, 0xFF, 0xE1})
	binary.Write(&jpeg, binary.BigEndian, uint16(len(payload)+2))
	jpeg.Write(payload)
	jpeg.Write([]byte{0xFF, 0xD9})
	return jpeg.Bytes()
}

func TestReadExif(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.jpg")
	if err := os.WriteFile(path, buildExifJPEG(t), 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	fields, err := readExif(path)
	if err != nil {
		t.Fatalf("readExif failed: %v", err)
	}
	if fields.Description != "Test image" {
		t.Errorf("Description = %q, want %q", fields.Description, "Test image")
	}
	if fields.Artist != "Bob" {
		t.Errorf("Artist = %q, want %q", fields.Artist, "Bob")
	}
	if fields.Copyright != "ACME" {
		t.Errorf("Copyright = %q, want %q", fields.Copyright, "ACME")
	}
	if fields.XResolution != 300 {
		t.Errorf("XResolution = %g, want 300", fields.XResolution)
	}

	summary := fields.Summary()
	for _, want := range []string{"Test image", "Bob", "ACME", "300"} {
		if !bytes.Contains([]byte(summary), []byte(want)) {
			t.Errorf("Summary %q missing %q", summary, want)
		}
	}
}

func TestReadExifNoSegment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.jpg")
	// SOI followed directly by SOS: a JPEG without any APP1 block.
	if err := os.WriteFile(path, []byte{0xFF, 0xD8, 0xFF, 0xDA, 0x00, 0x02}, 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	if _, err := readExif(path); err == nil {
		t.Error("expected error for JPEG without EXIF")
	}
}

func TestReadExifNotJPEG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not.jpg")
	if err := os.WriteFile(path, []byte("plain text"), 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
	if _, err := readExif(path); err == nil {
		t.Error("expected error for non-JPEG file")
	}
}

func TestParseIFD0BigEndian(t *testing.T) {
	var tiff bytes.Buffer
	be := binary.BigEndian

	tiff.WriteString("MM")
	binary.Write(&tiff, be, uint16(42))
	binary.Write(&tiff, be, uint32(8))
	binary.Write(&tiff, be, uint16(1))
	binary.Write(&tiff, be, uint16(tagArtist))
	binary.Write(&tiff, be, uint16(typeASCII))
	binary.Write(&tiff, be, uint32(4))
	tiff.Write([]byte("Bob\x00"))
	binary.Write(&tiff, be, uint32(0))

	fields, err := parseIFD0(tiff.Bytes())
	if err != nil {
		t.Fatalf("parseIFD0 failed: %v", err)
	}
	if fields.Artist != "Bob" {
		t.Errorf("Artist = %q, want %q", fields.Artist, "Bob")
	}
}

func TestParseIFD0Truncated(t *testing.T) {
	if _, err := parseIFD0([]byte("II")); err == nil {
		t.Error("expected error for truncated TIFF header")
	}
	if _, err := parseIFD0([]byte("XX\x00\x2a\x00\x00\x00\x08")); err == nil {
		t.Error("expected error for unknown byte order")
	}
}
