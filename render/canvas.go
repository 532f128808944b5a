package render

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"strconv"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	black     = color.RGBA{A: 0xff}
	white     = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	gray      = color.RGBA{R: 0xb0, G: 0xb0, B: 0xb0, A: 0xff}
	paleGray  = color.RGBA{R: 0xf2, G: 0xf2, B: 0xf2, A: 0xff}
	blue      = color.RGBA{R: 0x28, G: 0x46, B: 0xc8, A: 0xff}
	steelBlue = color.RGBA{R: 0x46, G: 0x82, B: 0xb4, A: 0xff}
)

// canvas wraps an RGBA raster with the drawing helpers the figure renderers
// are built on.
type canvas struct {
	*image.RGBA
}

// newCanvas returns a white canvas of the given size.
func newCanvas(w, h int) *canvas {
	c := &canvas{image.NewRGBA(image.Rect(0, 0, w, h))}
	draw.Draw(c.RGBA, c.Bounds(), image.NewUniform(white), image.Point{}, draw.Src)

	return c
}

// fill paints a rectangle.
func (c *canvas) fill(r image.Rectangle, col color.Color) {
	draw.Draw(c.RGBA, r.Intersect(c.Bounds()), image.NewUniform(col), image.Point{}, draw.Src)
}

// frame strokes a rectangle outline just inside its bounds.
func (c *canvas) frame(r image.Rectangle, col color.Color, thickness int) {
	c.fill(image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+thickness), col)
	c.fill(image.Rect(r.Min.X, r.Max.Y-thickness, r.Max.X, r.Max.Y), col)
	c.fill(image.Rect(r.Min.X, r.Min.Y, r.Min.X+thickness, r.Max.Y), col)
	c.fill(image.Rect(r.Max.X-thickness, r.Min.Y, r.Max.X, r.Max.Y), col)
}

// line draws a one pixel segment between two points.
func (c *canvas) line(x0, y0, x1, y1 int, col color.Color) {
	c.strokeLine(x0, y0, x1, y1, col, false)
}

// dashedLine draws a segment with a regular gap pattern.
func (c *canvas) dashedLine(x0, y0, x1, y1 int, col color.Color) {
	c.strokeLine(x0, y0, x1, y1, col, true)
}

func (c *canvas) strokeLine(x0, y0, x1, y1 int, col color.Color, dashed bool) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}

	err := dx + dy
	step := 0
	for {
		if !dashed || step%10 < 6 {
			c.Set(x0, y0, col)
		}
		step++

		if x0 == x1 && y0 == y1 {
			return
		}

		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

// marker paints a filled disc.
func (c *canvas) marker(cx, cy, r int, col color.Color) {
	for y := -r; y <= r; y++ {
		for x := -r; x <= r; x++ {
			if x*x+y*y <= r*r {
				c.Set(cx+x, cy+y, col)
			}
		}
	}
}

// text draws a string with its baseline at y.
func (c *canvas) text(x, y int, s string, col color.Color) {
	d := &font.Drawer{
		Dst:  c.RGBA,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// centeredText draws a string centered horizontally on cx.
func (c *canvas) centeredText(cx, y int, s string, col color.Color) {
	c.text(cx-textWidth(s)/2, y, s, col)
}

func textWidth(s string) int {
	return font.MeasureString(basicfont.Face7x13, s).Ceil()
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// plotArea maps a data window onto a pixel rectangle with y growing upward,
// and draws the surrounding frame, ticks and labels.
type plotArea struct {
	rect   image.Rectangle
	x0, x1 float64
	y0, y1 float64
}

// px converts a data x value to a raster column.
func (a *plotArea) px(x float64) int {
	if a.x1 == a.x0 {
		return a.rect.Min.X
	}

	return a.rect.Min.X + int(math.Round(float64(a.rect.Dx()-1)*(x-a.x0)/(a.x1-a.x0)))
}

// py converts a data y value to a raster row.
func (a *plotArea) py(y float64) int {
	if a.y1 == a.y0 {
		return a.rect.Max.Y - 1
	}

	return a.rect.Max.Y - 1 - int(math.Round(float64(a.rect.Dy()-1)*(y-a.y0)/(a.y1-a.y0)))
}

// draw paints the frame and tick labels around the area.
func (a *plotArea) draw(c *canvas) {
	c.frame(a.rect, black, 1)

	for _, tick := range niceTicks(a.x0, a.x1, 6) {
		x := a.px(tick)
		c.line(x, a.rect.Max.Y-1, x, a.rect.Max.Y-5, black)
		c.centeredText(x, a.rect.Max.Y+14, formatTick(tick), black)
	}

	for _, tick := range niceTicks(a.y0, a.y1, 5) {
		y := a.py(tick)
		c.line(a.rect.Min.X, y, a.rect.Min.X+4, y, black)
		label := formatTick(tick)
		c.text(a.rect.Min.X-6-textWidth(label), y+4, label, black)
	}
}

// pad widens a data window by a fraction on both ends, guarding against a
// zero span.
func pad(lo, hi, fraction float64) (float64, float64) {
	if hi < lo {
		lo, hi = hi, lo
	}

	span := hi - lo
	if span == 0 {
		span = 1
	}

	return lo - fraction*span, hi + fraction*span
}

// niceTicks returns round valued tick positions covering the interval.
func niceTicks(lo, hi float64, target int) []float64 {
	if hi <= lo || target < 2 {
		return nil
	}

	raw := (hi - lo) / float64(target)
	mag := math.Pow(10, math.Floor(math.Log10(raw)))

	step := 10 * mag
	for _, m := range []float64{1, 2, 5, 10} {
		if raw <= m*mag {
			step = m * mag
			break
		}
	}

	var ticks []float64
	for tick := math.Ceil(lo/step) * step; tick <= hi+step/1e6; tick += step {
		ticks = append(ticks, tick)
	}

	return ticks
}

// formatTick renders a tick value compactly, collapsing negative zero.
func formatTick(v float64) string {
	if math.Abs(v) < 1e-12 {
		v = 0
	}

	return strconv.FormatFloat(v, 'g', 4, 64)
}
