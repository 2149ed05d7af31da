package codec

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// svgInfo carries the declared geometry and the RDF Work metadata of an SVG
// document. Editors like Inkscape write title, creator, rights and subject
// keywords into an rdf:RDF block under <metadata>.
type svgInfo struct {
	Width    int
	Height   int
	Title    string
	Creator  string
	Rights   string
	Keywords string
}

// parseSVG extracts geometry and metadata without rendering. Namespaces vary
// wildly between authoring tools, so elements are matched by local name.
func parseSVG(data []byte) (*svgInfo, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	// SVG files in the wild reference DTDs and entities freely.
	dec.Strict = false

	info := &svgInfo{}
	var stack []string
	var keywords []string
	sawRoot := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			if !sawRoot {
				if name != "svg" {
					return nil, fmt.Errorf("root element is %q, not svg", name)
				}
				sawRoot = true
				info.Width, info.Height = svgDimensions(t.Attr)
			}
			stack = append(stack, name)

		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}

		case xml.CharData:
			text := strings.TrimSpace(string(t))
			if text == "" {
				continue
			}
			switch {
			case pathEndsWith(stack, "Work", "title"):
				info.Title = text
			case pathEndsWith(stack, "creator", "Agent", "title"):
				info.Creator = text
			case pathEndsWith(stack, "rights", "Agent", "title"):
				info.Rights = text
			case pathEndsWith(stack, "subject", "Bag", "li"):
				keywords = append(keywords, text)
			}
		}
	}

	if !sawRoot {
		return nil, fmt.Errorf("no svg root element")
	}
	info.Keywords = strings.Join(keywords, ", ")
	return info, nil
}

func pathEndsWith(stack []string, suffix ...string) bool {
	if len(stack) < len(suffix) {
		return false
	}
	off := len(stack) - len(suffix)
	for i, s := range suffix {
		if stack[off+i] != s {
			return false
		}
	}
	return true
}

// svgDimensions resolves the document size from width/height attributes,
// falling back to the viewBox when they are absent or not in pixels.
func svgDimensions(attrs []xml.Attr) (int, int) {
	var width, height int
	var viewBox string
	for _, a := range attrs {
		switch a.Name.Local {
		case "width":
			width = parseSVGLength(a.Value)
		case "height":
			height = parseSVGLength(a.Value)
		case "viewBox":
			viewBox = a.Value
		}
	}

	if (width == 0 || height == 0) && viewBox != "" {
		parts := strings.Fields(strings.ReplaceAll(viewBox, ",", " "))
		if len(parts) == 4 {
			w, errW := strconv.ParseFloat(parts[2], 64)
			h, errH := strconv.ParseFloat(parts[3], 64)
			if errW == nil && errH == nil {
				width = int(w + 0.5)
				height = int(h + 0.5)
			}
		}
	}
	return width, height
}

// parseSVGLength converts a CSS length to pixels at 96 DPI. Percentages and
// unknown units yield zero.
func parseSVGLength(v string) int {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}

	unit := ""
	num := v
	for i, r := range v {
		if (r < '0' || r > '9') && r != '.' && r != '-' && r != '+' {
			num, unit = v[:i], strings.ToLower(strings.TrimSpace(v[i:]))
			break
		}
	}

	f, err := strconv.ParseFloat(num, 64)
	if err != nil || f <= 0 {
		return 0
	}

	switch unit {
	case "", "px":
	case "pt":
		f *= 96.0 / 72.0
	case "pc":
		f *= 16
	case "in":
		f *= 96
	case "mm":
		f *= 96.0 / 25.4
	case "cm":
		f *= 96.0 / 2.54
	default:
		return 0
	}
	return int(f + 0.5)
}
