// Package render turns calibrated science arrays into figures. It stretches
// pixel data onto an inverted gray ramp, composites survey cutouts into a
// labeled panel grid and draws the zero point fit diagnostics. All output is
// PNG, drawn directly with x/image primitives.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
)

// DefaultPercent is the percentile interval the asinh stretch normalizes
// over when the caller does not pick one.
const DefaultPercent = 99.5

// Red is the border color marking the locally produced panels in a
// composite.
var Red = color.RGBA{R: 0xd0, A: 0xff}

// WritePNG encodes the image into a file at path.
func WritePNG(path string, img image.Image) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating figure file : %w", err)
	}

	if err := png.Encode(out, img); err != nil {
		out.Close()
		return fmt.Errorf("encoding figure : %w", err)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("closing figure file : %w", err)
	}

	return nil
}
