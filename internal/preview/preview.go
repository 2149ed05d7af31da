// Package preview derives sized renditions of media images. Every cataloged
// file gets one preview per template it is large enough to fill, or a single
// native-size "default" rendition when it is smaller than all templates.
package preview

import (
	"bytes"
	"fmt"
	"image"
	"sort"

	"github.com/disintegration/imaging"

	"media-catalog/internal/metrics"
	"media-catalog/internal/store"
)

// DefaultName is the template name used for the native-size rendition of
// sources smaller than every configured template.
const DefaultName = "default"

// Template is one target bounding box for preview generation.
type Template struct {
	Name   string
	Width  int
	Height int
}

// Generator renders previews for decoded images. It is stateless apart from
// its configuration and safe for concurrent use.
type Generator struct {
	templates []Template
	quality   int
}

// NewGenerator builds a Generator for the given templates and JPEG quality.
// Templates are ordered largest area first regardless of input order.
func NewGenerator(templates []Template, quality int) *Generator {
	ts := make([]Template, len(templates))
	copy(ts, templates)
	sort.SliceStable(ts, func(i, j int) bool {
		return ts[i].Width*ts[i].Height > ts[j].Width*ts[j].Height
	})
	return &Generator{templates: ts, quality: quality}
}

// Constrain scales a source box to fit within a bounding box, preserving
// aspect ratio. The smaller of the two axis ratios wins and results are
// rounded to the nearest pixel.
func Constrain(x, y, maxX, maxY int) (int, int) {
	if x <= 0 || y <= 0 {
		return 0, 0
	}
	scale := float64(maxX) / float64(x)
	if s := float64(maxY) / float64(y); s < scale {
		scale = s
	}
	w := int(float64(x)*scale + 0.5)
	h := int(float64(y)*scale + 0.5)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// Generate renders every applicable preview for img. sourceMimetype selects
// the output encoding: lossless formats and rasterized vector sources stay
// PNG, everything else is encoded as JPEG at the configured quality.
// A template is skipped when the source is smaller than it on both axes;
// if that skips every template, one native-size default rendition is
// produced instead.
func (g *Generator) Generate(img image.Image, sourceMimetype string) ([]store.Preview, error) {
	bounds := img.Bounds()
	x, y := bounds.Dx(), bounds.Dy()
	if x <= 0 || y <= 0 {
		return nil, fmt.Errorf("source image has no pixels")
	}

	var previews []store.Preview
	for _, t := range g.templates {
		if x < t.Width && y < t.Height {
			continue
		}
		w, h := Constrain(x, y, t.Width, t.Height)
		p, err := g.render(imaging.Resize(img, w, h, imaging.Lanczos), t.Name, sourceMimetype)
		if err != nil {
			return nil, fmt.Errorf("preview %s: %w", t.Name, err)
		}
		previews = append(previews, p)
	}

	if len(previews) == 0 {
		p, err := g.render(img, DefaultName, sourceMimetype)
		if err != nil {
			return nil, fmt.Errorf("preview %s: %w", DefaultName, err)
		}
		previews = append(previews, p)
	}

	for _, p := range previews {
		metrics.PreviewsGenerated.Inc()
		metrics.PreviewBytes.Add(float64(p.Size))
	}
	return previews, nil
}

func (g *Generator) render(img image.Image, name, sourceMimetype string) (store.Preview, error) {
	var buf bytes.Buffer
	var mimetype string
	var err error

	if losslessOutput(sourceMimetype) {
		mimetype = "image/png"
		err = imaging.Encode(&buf, img, imaging.PNG)
	} else {
		mimetype = "image/jpeg"
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(g.quality))
	}
	if err != nil {
		return store.Preview{}, err
	}

	bounds := img.Bounds()
	return store.Preview{
		Name:     name,
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
		Size:     int64(buf.Len()),
		Mimetype: mimetype,
		Data:     buf.Bytes(),
	}, nil
}

// losslessOutput reports whether previews of a source format should keep a
// lossless encoding. GIF and PNG sources often carry sharp-edged graphics
// or transparency; vector and PostScript sources rasterize to line art.
func losslessOutput(sourceMimetype string) bool {
	switch sourceMimetype {
	case "image/gif", "image/png", "image/x-eps", "image/svg+xml":
		return true
	}
	return false
}
