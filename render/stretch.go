package render

import (
	"errors"
	"image"
	"image/color"
	"math"

	"github.com/montanaflynn/stats"
	"github.com/tfkr-ae/azimuth/fits"
)

// asinhSoftening sets where the stretch turns from linear to logarithmic,
// as a fraction of the normalized interval.
const asinhSoftening = 0.1

// ErrNoPixels is returned when a stretch is built over an empty sample.
var ErrNoPixels = errors.New("no finite pixels to stretch")

// AsinhStretch maps raw pixel values onto [0, 1] with an inverse hyperbolic
// sine curve. The mapped interval is clipped symmetrically, a percent of
// 99.5 keeps the central 99.5% of the sample and saturates the tails.
type AsinhStretch struct {
	Lo float64 // Value mapped to 0
	Hi float64 // Value mapped to 1
}

// NewAsinhStretch derives the clip interval from the sample. NaN values must
// be filtered out by the caller.
func NewAsinhStretch(sample []float64, percent float64) (*AsinhStretch, error) {
	if len(sample) == 0 {
		return nil, ErrNoPixels
	}

	// Nearest rank stays defined for any sample size, the interpolating
	// percentile needs the tail to cover at least one sample.
	tail := (100 - percent) / 2

	lo, err := stats.PercentileNearestRank(sample, tail)
	if err != nil {
		return nil, ErrNoPixels
	}

	hi, err := stats.PercentileNearestRank(sample, 100-tail)
	if err != nil {
		return nil, ErrNoPixels
	}

	return &AsinhStretch{Lo: lo, Hi: hi}, nil
}

// Value maps a raw pixel value onto [0, 1]. A degenerate interval maps
// everything to 0.
func (s *AsinhStretch) Value(v float64) float64 {
	if math.IsNaN(v) || s.Hi <= s.Lo {
		return 0
	}

	x := (v - s.Lo) / (s.Hi - s.Lo)
	if x < 0 {
		x = 0
	}
	if x > 1 {
		x = 1
	}

	return math.Asinh(x/asinhSoftening) / math.Asinh(1/asinhSoftening)
}

// Gray maps a raw pixel value onto the inverted gray ramp, faint pixels
// render white and bright pixels black.
func (s *AsinhStretch) Gray(v float64) uint8 {
	return uint8(255 - math.Round(255*s.Value(v)))
}

// Grayscale renders a science array into an inverted gray raster at the
// given percentile interval. Rows keep their array order, NaN pixels render
// white.
func Grayscale(img *fits.Image, percent float64) *image.Gray {
	w, h := img.Width(), img.Height()
	out := image.NewGray(image.Rect(0, 0, w, h))

	sample := make([]float64, 0, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if v := float64(img.At(x, y)); !math.IsNaN(v) {
				sample = append(sample, v)
			}
		}
	}

	stretch, err := NewAsinhStretch(sample, percent)
	if err != nil {
		// Nothing to show, a flat pale tile keeps the layout intact.
		for i := range out.Pix {
			out.Pix[i] = 0xf2
		}
		return out
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.SetGray(x, y, color.Gray{Y: stretch.Gray(float64(img.At(x, y)))})
		}
	}

	return out
}
