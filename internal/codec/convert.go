package codec

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os/exec"
	"strings"
	"time"

	"github.com/disintegration/imaging"
)

const convertTimeout = 2 * time.Minute

// rasterDensity is the DPI used when ImageMagick rasterizes vector and
// document sources.
const rasterDensity = "150"

// rasterizeWithConvert renders the first page of a file to PNG on stdout via
// ImageMagick. Used when libvips is unavailable or rejects the file.
func rasterizeWithConvert(ctx context.Context, path string) (image.Image, error) {
	convert, err := exec.LookPath("convert")
	if err != nil {
		return nil, fmt.Errorf("imagemagick convert not found: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, convertTimeout)
	defer cancel()

	// [0] limits multi-page documents to their first page.
	cmd := exec.CommandContext(ctx, convert,
		"-density", rasterDensity,
		path+"[0]",
		"png:-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("convert failed: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("convert failed: %w", err)
	}

	img, err := imaging.Decode(bytes.NewReader(stdout.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("failed to decode convert output: %w", err)
	}
	return img, nil
}
