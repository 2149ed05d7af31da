package codec

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"
)

// exifFields are the IFD0 entries the catalog cares about. Thumbnail IFDs,
// GPS and maker notes are ignored.
type exifFields struct {
	Description string
	Copyright   string
	Artist      string
	XResolution float64
}

// Summary renders the fields as a single display string for the exif column.
func (f *exifFields) Summary() string {
	var parts []string
	if f.Description != "" {
		parts = append(parts, "Description: "+f.Description)
	}
	if f.Artist != "" {
		parts = append(parts, "Artist: "+f.Artist)
	}
	if f.Copyright != "" {
		parts = append(parts, "Copyright: "+f.Copyright)
	}
	if f.XResolution > 0 {
		parts = append(parts, fmt.Sprintf("XResolution: %g dpi", f.XResolution))
	}
	return strings.Join(parts, "; ")
}

const (
	tagImageDescription = 0x010E
	tagXResolution      = 0x011A
	tagArtist           = 0x013B
	tagCopyright        = 0x8298

	typeASCII    = 2
	typeRational = 5
)

// exifScanLimit bounds how much of a file is read looking for the APP1
// segment. EXIF blocks sit at the front of a JPEG.
const exifScanLimit = 128 * 1024

// readExif extracts the IFD0 text and resolution fields from a JPEG file.
// Returns nil with an error when the file is not a JPEG or carries no EXIF
// segment; both are routine.
func readExif(path string) (*exifFields, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	buf := make([]byte, exifScanLimit)
	n, err := io.ReadFull(fh, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	if n < 4 {
		return nil, fmt.Errorf("file too short for EXIF")
	}
	buf = buf[:n]

	if buf[0] != 0xFF || buf[1] != 0xD8 {
		return nil, fmt.Errorf("not a JPEG")
	}

	tiff, err := findAPP1(buf[2:])
	if err != nil {
		return nil, err
	}
	return parseIFD0(tiff)
}

// findAPP1 walks JPEG segments until the EXIF APP1 block and returns its
// embedded TIFF stream.
func findAPP1(buf []byte) ([]byte, error) {
	for len(buf) >= 4 {
		if buf[0] != 0xFF {
			return nil, fmt.Errorf("malformed JPEG segment")
		}
		marker := buf[1]
		// Start of scan; no EXIF past this point.
		if marker == 0xDA {
			break
		}
		length := int(binary.BigEndian.Uint16(buf[2:4]))
		if length < 2 || len(buf) < 2+length {
			return nil, fmt.Errorf("truncated JPEG segment")
		}
		if marker == 0xE1 {
			payload := buf[4 : 2+length]
			if len(payload) > 6 && string(payload[:6]) == "Exif\x00\x00" {
				return payload[6:], nil
			}
		}
		buf = buf[2+length:]
	}
	return nil, fmt.Errorf("no EXIF segment")
}

func parseIFD0(tiff []byte) (*exifFields, error) {
	if len(tiff) < 8 {
		return nil, fmt.Errorf("truncated TIFF header")
	}

	var order binary.ByteOrder
	switch string(tiff[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("unknown TIFF byte order %q", tiff[:2])
	}
	if order.Uint16(tiff[2:4]) != 42 {
		return nil, fmt.Errorf("bad TIFF magic")
	}

	ifd := int(order.Uint32(tiff[4:8]))
	if ifd < 0 || ifd+2 > len(tiff) {
		return nil, fmt.Errorf("IFD0 offset out of range")
	}

	count := int(order.Uint16(tiff[ifd : ifd+2]))
	fields := &exifFields{}
	for i := 0; i < count; i++ {
		entry := ifd + 2 + i*12
		if entry+12 > len(tiff) {
			break
		}
		tag := order.Uint16(tiff[entry : entry+2])
		typ := order.Uint16(tiff[entry+2 : entry+4])
		n := int(order.Uint32(tiff[entry+4 : entry+8]))

		switch tag {
		case tagImageDescription, tagArtist, tagCopyright:
			if typ != typeASCII {
				continue
			}
			value := asciiValue(tiff, order, entry, n)
			switch tag {
			case tagImageDescription:
				fields.Description = value
			case tagArtist:
				fields.Artist = value
			case tagCopyright:
				fields.Copyright = value
			}
		case tagXResolution:
			if typ != typeRational || n < 1 {
				continue
			}
			off := int(order.Uint32(tiff[entry+8 : entry+12]))
			if off < 0 || off+8 > len(tiff) {
				continue
			}
			num := order.Uint32(tiff[off : off+4])
			den := order.Uint32(tiff[off+4 : off+8])
			if den != 0 {
				fields.XResolution = float64(num) / float64(den)
			}
		}
	}
	return fields, nil
}

// asciiValue reads an ASCII entry, inline when it fits in the four value
// bytes, otherwise at its offset.
func asciiValue(tiff []byte, order binary.ByteOrder, entry, n int) string {
	if n <= 0 {
		return ""
	}
	var raw []byte
	if n <= 4 {
		raw = tiff[entry+8 : entry+8+n]
	} else {
		off := int(order.Uint32(tiff[entry+8 : entry+12]))
		if off < 0 || off+n > len(tiff) {
			return ""
		}
		raw = tiff[off : off+n]
	}
	return strings.TrimRight(string(raw), "\x00 ")
}
