package render

import (
	"image"
	"image/color"

	"github.com/tfkr-ae/azimuth/fits"
	xdraw "golang.org/x/image/draw"
)

// TileSize is the edge length of one composite panel in pixels. Science
// arrays are resampled onto it with nearest neighbor interpolation so
// individual pixels stay visible.
const TileSize = 200

const (
	tilePad  = 10
	captionH = 18
	titleH   = 30
)

// Panel is one cell of a composite figure. A nil Image marks a product that
// could not be fetched and renders as a flat pale tile. A non nil Border is
// painted as a frame inside the tile.
type Panel struct {
	Label  string
	Image  image.Image
	Border color.Color
}

// GrayPanel stretches a science array onto the inverted gray ramp at the
// default percentile interval. A nil array yields a missing panel.
func GrayPanel(label string, img *fits.Image) Panel {
	if img == nil {
		return Panel{Label: label}
	}

	return Panel{Label: label, Image: Grayscale(img, DefaultPercent)}
}

// FlipVertical mirrors an image top to bottom. The survey previews render
// north up while science arrays store the south edge first, flipping the
// preview keeps every composite panel in the same orientation.
func FlipVertical(src image.Image) *image.RGBA {
	b := src.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			out.Set(x, b.Dy()-1-y, src.At(b.Min.X+x, b.Min.Y+y))
		}
	}

	return out
}

// Composite lays the panels out on a grid of the given width with the title
// centered on top. Panels fill rows left to right.
func Composite(title string, cols int, panels []Panel) *image.RGBA {
	if cols < 1 {
		cols = 1
	}
	rows := (len(panels) + cols - 1) / cols

	width := cols*TileSize + (cols+1)*tilePad
	height := titleH + rows*(TileSize+captionH+tilePad)

	c := newCanvas(width, height)
	c.centeredText(width/2, titleH-10, title, black)

	for i, panel := range panels {
		x0 := tilePad + (i%cols)*(TileSize+tilePad)
		y0 := titleH + (i/cols)*(TileSize+captionH+tilePad)

		c.centeredText(x0+TileSize/2, y0+captionH-5, panel.Label, black)

		tile := image.Rect(x0, y0+captionH, x0+TileSize, y0+captionH+TileSize)
		if panel.Image == nil {
			c.fill(tile, paleGray)
			c.centeredText(x0+TileSize/2, y0+captionH+TileSize/2, "no data", gray)
		} else {
			xdraw.NearestNeighbor.Scale(c.RGBA, tile, panel.Image, panel.Image.Bounds(), xdraw.Src, nil)
		}

		if panel.Border != nil {
			c.frame(tile, panel.Border, 2)
		}
	}

	return c.RGBA
}
