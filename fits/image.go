package fits

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Image holds decoded pixel data for an image HDU. Pixels are stored as
// float32 with BZERO and BSCALE applied, in row major order with axis 1
// varying fastest, matching the file layout.
type Image struct {
	Bitpix int     // Pixel format of the source data
	Naxisn []int   // Axis lengths, NAXIS1 first
	Bzero  float64 // Offset applied when decoding
	Bscale float64 // Scale applied when decoding
	Data   []float32
}

// decodeImage converts the raw data section into float32 pixels.
func decodeImage(h *Header, raw []byte) (*Image, error) {
	bitpix, err := h.Int("BITPIX")
	if err != nil {
		return nil, fmt.Errorf("reading BITPIX : %w", err)
	}

	naxis, err := h.Int("NAXIS")
	if err != nil {
		return nil, fmt.Errorf("reading NAXIS : %w", err)
	}

	img := &Image{
		Bitpix: bitpix,
		Bzero:  h.FloatOr("BZERO", 0),
		Bscale: h.FloatOr("BSCALE", 1),
	}

	pixels := 1
	for i := 1; i <= naxis; i++ {
		n, err := h.Int(fmt.Sprintf("NAXIS%d", i))
		if err != nil {
			return nil, fmt.Errorf("reading NAXIS%d : %w", i, err)
		}
		img.Naxisn = append(img.Naxisn, n)
		pixels *= n
	}

	img.Data = make([]float32, pixels)
	bz, bs := float32(img.Bzero), float32(img.Bscale)

	switch bitpix {
	case 8:
		for i := 0; i < pixels; i++ {
			img.Data[i] = bz + bs*float32(raw[i])
		}
	case 16:
		for i := 0; i < pixels; i++ {
			v := int16(binary.BigEndian.Uint16(raw[i*2:]))
			img.Data[i] = bz + bs*float32(v)
		}
	case 32:
		for i := 0; i < pixels; i++ {
			v := int32(binary.BigEndian.Uint32(raw[i*4:]))
			img.Data[i] = bz + bs*float32(v)
		}
	case 64:
		for i := 0; i < pixels; i++ {
			v := int64(binary.BigEndian.Uint64(raw[i*8:]))
			img.Data[i] = bz + bs*float32(v)
		}
	case -32:
		for i := 0; i < pixels; i++ {
			v := math.Float32frombits(binary.BigEndian.Uint32(raw[i*4:]))
			img.Data[i] = bz + bs*v
		}
	case -64:
		for i := 0; i < pixels; i++ {
			v := math.Float64frombits(binary.BigEndian.Uint64(raw[i*8:]))
			img.Data[i] = bz + bs*float32(v)
		}
	default:
		return nil, fmt.Errorf("unsupported BITPIX %d", bitpix)
	}

	return img, nil
}

// Width returns the length of the first axis.
func (img *Image) Width() int {
	if len(img.Naxisn) < 1 {
		return 0
	}
	return img.Naxisn[0]
}

// Height returns the length of the second axis.
func (img *Image) Height() int {
	if len(img.Naxisn) < 2 {
		return 0
	}
	return img.Naxisn[1]
}

// At returns the pixel at zero based position x, y of the first plane.
func (img *Image) At(x, y int) float32 {
	return img.Data[y*img.Width()+x]
}

// Plane returns the k-th two dimensional plane of a cube as a new Image
// sharing the underlying data. Single band cutout services return one band
// cubes, callers read plane 0.
func (img *Image) Plane(k int) (*Image, error) {
	if len(img.Naxisn) < 3 {
		if k == 0 {
			return img, nil
		}
		return nil, fmt.Errorf("image has no plane %d", k)
	}

	if k < 0 || k >= img.Naxisn[2] {
		return nil, fmt.Errorf("image has no plane %d", k)
	}

	size := img.Naxisn[0] * img.Naxisn[1]
	return &Image{
		Bitpix: img.Bitpix,
		Naxisn: img.Naxisn[:2],
		Bzero:  img.Bzero,
		Bscale: img.Bscale,
		Data:   img.Data[k*size : (k+1)*size],
	}, nil
}

// Cutout extracts a size by size window centered on the given pixel from the
// first plane, trimmed to the image bounds.
func (img *Image) Cutout(cx, cy, size int) (*Image, error) {
	w, h := img.Width(), img.Height()

	x0 := cx - size/2
	y0 := cy - size/2
	x1 := x0 + size
	y1 := y0 + size

	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}
	if x1 > w {
		x1 = w
	}
	if y1 > h {
		y1 = h
	}

	if x0 >= x1 || y0 >= y1 {
		return nil, fmt.Errorf("cutout at %d,%d lies outside the %dx%d image", cx, cy, w, h)
	}

	out := &Image{
		Bitpix: img.Bitpix,
		Naxisn: []int{x1 - x0, y1 - y0},
		Bzero:  img.Bzero,
		Bscale: img.Bscale,
		Data:   make([]float32, (x1-x0)*(y1-y0)),
	}

	for y := y0; y < y1; y++ {
		copy(out.Data[(y-y0)*out.Width():], img.Data[y*w+x0:y*w+x1])
	}

	return out, nil
}

// AllZero reports whether every pixel is zero. Cutout services return blank
// planes for fields outside their footprint.
func (img *Image) AllZero() bool {
	for _, v := range img.Data {
		if v != 0 {
			return false
		}
	}
	return true
}

// Scale divides every pixel by the given value in place. Used to convert
// accumulated counts into counts per second before writing a normalized copy.
func (img *Image) Scale(divisor float32) {
	for i := range img.Data {
		img.Data[i] /= divisor
	}
}

// MinMax returns the smallest and largest finite pixel values.
func (img *Image) MinMax() (min float32, max float32) {
	min = float32(math.Inf(1))
	max = float32(math.Inf(-1))

	for _, v := range img.Data {
		if math.IsNaN(float64(v)) {
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	return min, max
}
