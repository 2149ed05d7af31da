package codec

import (
	"bytes"
	"strconv"
	"strings"
)

// docInfo is the metadata recoverable from a paged document without a full
// renderer: the declared title and the first page geometry in points.
type docInfo struct {
	Title      string
	Width      int
	Height     int
	Resolution float64
}

// documentDPI is the nominal resolution of PostScript point geometry.
const documentDPI = 72

// parseDocument scans a PDF or EPS byte stream for its title and page size.
// Anything it cannot find is left zero; rasterization fills the gaps.
func parseDocument(data []byte) docInfo {
	if bytes.HasPrefix(data, []byte("%PDF-")) {
		return parsePDF(data)
	}
	return parseEPS(data)
}

func parsePDF(data []byte) docInfo {
	info := docInfo{Resolution: documentDPI}

	if box, ok := pdfArray(data, "/MediaBox"); ok && len(box) == 4 {
		w := box[2] - box[0]
		h := box[3] - box[1]
		if w > 0 && h > 0 {
			info.Width = int(w + 0.5)
			info.Height = int(h + 0.5)
		}
	}

	info.Title = pdfTitle(data)
	return info
}

// pdfArray finds the first occurrence of key followed by a numeric array.
func pdfArray(data []byte, key string) ([]float64, bool) {
	idx := bytes.Index(data, []byte(key))
	if idx < 0 {
		return nil, false
	}
	rest := data[idx+len(key):]

	open := bytes.IndexByte(rest, '[')
	if open < 0 || open > 16 {
		return nil, false
	}
	end := bytes.IndexByte(rest[open:], ']')
	if end < 0 {
		return nil, false
	}

	var nums []float64
	for _, field := range strings.Fields(string(rest[open+1 : open+end])) {
		f, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, false
		}
		nums = append(nums, f)
	}
	return nums, true
}

// pdfTitle extracts the /Title literal string from the document information
// dictionary. Hex-encoded and UTF-16 titles are skipped rather than garbled.
func pdfTitle(data []byte) string {
	search := data
	for {
		idx := bytes.Index(search, []byte("/Title"))
		if idx < 0 {
			return ""
		}
		rest := search[idx+len("/Title"):]

		// Skip whitespace between key and value.
		i := 0
		for i < len(rest) && (rest[i] == ' ' || rest[i] == '\r' || rest[i] == '\n' || rest[i] == '\t') {
			i++
		}
		if i >= len(rest) || rest[i] != '(' {
			search = rest
			continue
		}

		title, ok := pdfLiteralString(rest[i:])
		if !ok {
			search = rest
			continue
		}
		// UTF-16 literals start with a byte order mark.
		if strings.HasPrefix(title, "\xfe\xff") {
			search = rest
			continue
		}
		return title
	}
}

// pdfLiteralString decodes a parenthesized literal, honoring backslash
// escapes and balanced nested parentheses.
func pdfLiteralString(data []byte) (string, bool) {
	if len(data) == 0 || data[0] != '(' {
		return "", false
	}

	var sb strings.Builder
	depth := 1
	for i := 1; i < len(data); i++ {
		c := data[i]
		switch c {
		case '\\':
			if i+1 >= len(data) {
				return "", false
			}
			i++
			switch data[i] {
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			default:
				sb.WriteByte(data[i])
			}
		case '(':
			depth++
			sb.WriteByte(c)
		case ')':
			depth--
			if depth == 0 {
				return sb.String(), true
			}
			sb.WriteByte(c)
		default:
			sb.WriteByte(c)
		}
	}
	return "", false
}

func parseEPS(data []byte) docInfo {
	info := docInfo{Resolution: documentDPI}

	for _, line := range strings.Split(string(data[:min(len(data), 64*1024)]), "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case strings.HasPrefix(line, "%%BoundingBox:") && info.Width == 0:
			fields := strings.Fields(strings.TrimPrefix(line, "%%BoundingBox:"))
			if len(fields) != 4 {
				continue
			}
			coords := make([]float64, 0, 4)
			ok := true
			for _, f := range fields {
				v, err := strconv.ParseFloat(f, 64)
				if err != nil {
					ok = false
					break
				}
				coords = append(coords, v)
			}
			if ok && coords[2] > coords[0] && coords[3] > coords[1] {
				info.Width = int(coords[2] - coords[0] + 0.5)
				info.Height = int(coords[3] - coords[1] + 0.5)
			}
		case strings.HasPrefix(line, "%%Title:") && info.Title == "":
			title := strings.TrimSpace(strings.TrimPrefix(line, "%%Title:"))
			info.Title = strings.Trim(title, "()")
		}
	}
	return info
}
