// Package codec decodes media files into pixels and metadata for the
// catalog. Raster formats are decoded in-process; vector and paged document
// formats are rasterized through libvips, falling back to ImageMagick when
// libvips cannot handle the file.
package codec

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // register webp decoding

	"media-catalog/internal/logging"
	"media-catalog/internal/metrics"
)

// Decoded is the result of decoding one media file: its pixels (for preview
// generation), intrinsic dimensions, resolution in DPI when known, and any
// embedded descriptive metadata.
type Decoded struct {
	Image      image.Image
	Width      int
	Height     int
	Resolution float64

	Title       string
	Description string
	Copyright   string
	Keywords    string
	Exif        string
}

// Decoder decodes media files by processing kind. The concrete Codec covers
// the configured formats; tests substitute their own.
type Decoder interface {
	DecodeRaster(ctx context.Context, path string) (*Decoded, error)
	DecodeVector(ctx context.Context, path string) (*Decoded, error)
	DecodeFirstPage(ctx context.Context, path string) (*Decoded, error)
}

// Codec is the production Decoder. Safe for concurrent use.
type Codec struct{}

// New returns a Codec. InitVips should have been called first so vector and
// document rasterization can use libvips.
func New() *Codec {
	return &Codec{}
}

// DecodeRaster decodes a pixel-based image. JPEG sources additionally get
// their EXIF description, copyright, artist and resolution extracted.
func (c *Codec) DecodeRaster(ctx context.Context, path string) (*Decoded, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		metrics.CodecDecodesTotal.WithLabelValues("raster", "error").Inc()
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}

	bounds := img.Bounds()
	d := &Decoded{
		Image:  img,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}

	if fields, err := readExif(path); err != nil {
		logging.Debug("No EXIF data for %s: %v", filepath.Base(path), err)
	} else if fields != nil {
		d.Description = fields.Description
		d.Copyright = fields.Copyright
		d.Resolution = fields.XResolution
		d.Exif = fields.Summary()
	}

	metrics.CodecDecodesTotal.WithLabelValues("raster", "success").Inc()
	return d, nil
}

// DecodeVector decodes an SVG document: declared dimensions and RDF metadata
// come from the XML itself, pixels from rasterization.
func (c *Codec) DecodeVector(ctx context.Context, path string) (*Decoded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		metrics.CodecDecodesTotal.WithLabelValues("vector", "error").Inc()
		return nil, err
	}

	info, err := parseSVG(data)
	if err != nil {
		metrics.CodecDecodesTotal.WithLabelValues("vector", "error").Inc()
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}

	img, err := c.rasterize(ctx, path)
	if err != nil {
		metrics.CodecDecodesTotal.WithLabelValues("vector", "error").Inc()
		return nil, fmt.Errorf("rasterize %s: %w", filepath.Base(path), err)
	}

	d := &Decoded{
		Image:       img,
		Width:       info.Width,
		Height:      info.Height,
		Title:       info.Title,
		Description: info.Creator,
		Copyright:   info.Rights,
		Keywords:    info.Keywords,
	}
	if d.Width == 0 || d.Height == 0 {
		b := img.Bounds()
		d.Width, d.Height = b.Dx(), b.Dy()
	}

	metrics.CodecDecodesTotal.WithLabelValues("vector", "success").Inc()
	return d, nil
}

// DecodeFirstPage decodes the first page of a paged document (PDF or EPS).
// The document title and page geometry come from a lightweight scan of the
// file; pixels from rasterizing page one.
func (c *Codec) DecodeFirstPage(ctx context.Context, path string) (*Decoded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		metrics.CodecDecodesTotal.WithLabelValues("document", "error").Inc()
		return nil, err
	}

	info := parseDocument(data)

	img, err := c.rasterize(ctx, path)
	if err != nil {
		metrics.CodecDecodesTotal.WithLabelValues("document", "error").Inc()
		return nil, fmt.Errorf("rasterize %s: %w", filepath.Base(path), err)
	}

	d := &Decoded{
		Image:      img,
		Width:      info.Width,
		Height:     info.Height,
		Resolution: info.Resolution,
		Title:      info.Title,
	}
	if d.Width == 0 || d.Height == 0 {
		b := img.Bounds()
		d.Width, d.Height = b.Dx(), b.Dy()
	}

	metrics.CodecDecodesTotal.WithLabelValues("document", "success").Inc()
	return d, nil
}

// rasterize renders a non-raster file to pixels, preferring libvips and
// falling back to ImageMagick.
func (c *Codec) rasterize(ctx context.Context, path string) (image.Image, error) {
	if IsVipsAvailable() {
		img, err := rasterizeWithVips(path)
		if err == nil {
			return img, nil
		}
		logging.Debug("libvips could not rasterize %s, trying convert: %v", filepath.Base(path), err)
	}
	return rasterizeWithConvert(ctx, path)
}
