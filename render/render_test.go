package render

import (
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/tfkr-ae/azimuth/domain"
	"github.com/tfkr-ae/azimuth/fits"
)

// grid builds a science array from row major pixel values.
func grid(w, h int, data []float32) *fits.Image {
	return &fits.Image{Bitpix: -32, Naxisn: []int{w, h}, Bscale: 1, Data: data}
}

// countColor counts pixels matching exactly.
func countColor(img *image.RGBA, want color.RGBA) int {
	n := 0
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.RGBAAt(x, y) == want {
				n++
			}
		}
	}

	return n
}

func containsColor(img *image.RGBA, want color.RGBA) bool {
	return countColor(img, want) > 0
}

func TestAsinhStretch(t *testing.T) {
	t.Run("Maps the interval endpoints", func(t *testing.T) {
		sample := make([]float64, 100)
		for i := range sample {
			sample[i] = float64(i)
		}

		stretch, err := NewAsinhStretch(sample, 90)
		if err != nil {
			t.Fatalf("building stretch: %v", err)
		}

		// Nearest rank with a 5% tail on 100 samples.
		if stretch.Lo != 4 || stretch.Hi != 94 {
			t.Fatalf("wanted interval [4, 94] got [%g, %g]", stretch.Lo, stretch.Hi)
		}

		if got := stretch.Value(stretch.Lo); got != 0 {
			t.Errorf("low endpoint maps to %g", got)
		}
		if got := stretch.Value(stretch.Hi); math.Abs(got-1) > 1e-12 {
			t.Errorf("high endpoint maps to %g", got)
		}
		if got := stretch.Value(stretch.Lo - 100); got != 0 {
			t.Errorf("value below the interval maps to %g", got)
		}
		if got := stretch.Value(stretch.Hi + 100); math.Abs(got-1) > 1e-12 {
			t.Errorf("value above the interval maps to %g", got)
		}
	})

	t.Run("Brightens faster in the faint end", func(t *testing.T) {
		stretch := &AsinhStretch{Lo: 0, Hi: 1}

		faint := stretch.Value(0.1)
		mid := stretch.Value(0.5)
		if faint <= 0.1 {
			t.Errorf("faint end not lifted, 0.1 maps to %g", faint)
		}
		if mid <= faint {
			t.Error("stretch is not monotonic")
		}
	})

	t.Run("Degenerate interval maps flat", func(t *testing.T) {
		stretch := &AsinhStretch{Lo: 5, Hi: 5}
		if got := stretch.Value(5); got != 0 {
			t.Fatalf("wanted 0 got %g", got)
		}
	})

	t.Run("Empty sample fails", func(t *testing.T) {
		if _, err := NewAsinhStretch(nil, 99.5); err == nil {
			t.Fatal("expected an error for an empty sample")
		}
	})

	t.Run("NaN renders white", func(t *testing.T) {
		stretch := &AsinhStretch{Lo: 0, Hi: 1}
		if got := stretch.Gray(math.NaN()); got != 255 {
			t.Fatalf("wanted 255 got %d", got)
		}
	})
}

func TestGrayscale(t *testing.T) {
	img := grid(3, 1, []float32{0, 50, 100})

	out := Grayscale(img, 100)

	if out.Bounds().Dx() != 3 || out.Bounds().Dy() != 1 {
		t.Fatalf("wanted a 3x1 raster got %v", out.Bounds())
	}

	faint := out.GrayAt(0, 0).Y
	bright := out.GrayAt(2, 0).Y
	if faint != 255 {
		t.Errorf("faintest pixel renders %d, wanted white", faint)
	}
	if bright != 0 {
		t.Errorf("brightest pixel renders %d, wanted black", bright)
	}
	if mid := out.GrayAt(1, 0).Y; mid <= bright || mid >= faint {
		t.Errorf("middle pixel renders %d, outside the ramp", mid)
	}
}

func TestComposite(t *testing.T) {
	bright := grid(2, 2, []float32{0, 10, 20, 30})

	panels := []Panel{
		GrayPanel("W1", bright),
		{Label: "R", Image: Grayscale(bright, DefaultPercent), Border: Red},
		GrayPanel("NUV", nil),
		GrayPanel("W2", bright),
	}

	out := Composite("VFID0001-R", 4, panels)

	wantW := 4*TileSize + 5*tilePad
	wantH := titleH + TileSize + captionH + tilePad
	if out.Bounds().Dx() != wantW || out.Bounds().Dy() != wantH {
		t.Fatalf("wanted %dx%d got %v", wantW, wantH, out.Bounds())
	}

	// Border of the second tile is painted red.
	x0 := tilePad + (TileSize + tilePad)
	if got := out.RGBAAt(x0, titleH+captionH); got != Red {
		t.Errorf("wanted a red border pixel got %v", got)
	}

	// The missing third panel renders as a flat pale tile.
	x0 = tilePad + 2*(TileSize+tilePad)
	if got := out.RGBAAt(x0+2, titleH+captionH+2); got != paleGray {
		t.Errorf("wanted a pale missing tile got %v", got)
	}
}

func TestFlipVertical(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 1, 2))
	top := color.RGBA{R: 0x10, A: 0xff}
	bot := color.RGBA{B: 0x20, A: 0xff}
	src.SetRGBA(0, 0, top)
	src.SetRGBA(0, 1, bot)

	out := FlipVertical(src)

	if out.RGBAAt(0, 0) != bot || out.RGBAAt(0, 1) != top {
		t.Fatalf("rows not mirrored: got %v, %v", out.RGBAAt(0, 0), out.RGBAAt(0, 1))
	}
}

// matchedStar builds a fit entry at a reference magnitude with the given
// residual around a 2.5 mag offset.
func matchedStar(ref, residual float64, kept bool) *domain.MatchedStar {
	return &domain.MatchedStar{
		X:       100 + 10*ref,
		Y:       200 + 5*ref,
		RefMag:  ref,
		RefErr:  0.01,
		InstMag: ref + 2.5 + residual,
		InstErr: 0.02,

		Residual: residual,
		Kept:     kept,
	}
}

func TestFitFigure(t *testing.T) {
	matched := []*domain.MatchedStar{
		matchedStar(14.5, 0.01, true),
		matchedStar(15.0, -0.02, true),
		matchedStar(15.5, 0.00, true),
		matchedStar(16.0, 0.35, false),
	}

	out := FitFigure("ngc5846_R.fits", matched, 2.5)

	if out.Bounds().Dx() != 640 || out.Bounds().Dy() != 640 {
		t.Fatalf("wanted a 640x640 figure got %v", out.Bounds())
	}

	if !containsColor(out, blue) {
		t.Error("no kept star markers drawn")
	}
	if !containsColor(out, gray) {
		t.Error("no clipped star markers drawn")
	}
	if !containsColor(out, Red) {
		t.Error("no zero line drawn")
	}
}

func TestHistogramFigure(t *testing.T) {
	t.Run("Bins residuals inside the window", func(t *testing.T) {
		residuals := []float64{-0.05, -0.01, 0.0, 0.01, 0.02, 0.05}

		out := HistogramFigure("ngc5846_R.fits", residuals)

		if out.Bounds().Dx() != 640 || out.Bounds().Dy() != 480 {
			t.Fatalf("wanted a 640x480 figure got %v", out.Bounds())
		}
		if !containsColor(out, steelBlue) {
			t.Error("no bars drawn")
		}
	})

	t.Run("Drops residuals outside the window", func(t *testing.T) {
		out := HistogramFigure("ngc5846_R.fits", []float64{0.5, -3})

		if containsColor(out, steelBlue) {
			t.Error("out of window residuals drew bars")
		}
	})
}

func TestPositionFigure(t *testing.T) {
	matched := []*domain.MatchedStar{
		matchedStar(14.5, 0.04, true),
		matchedStar(15.0, -0.04, true),
		matchedStar(16.0, 0.3, false),
	}

	t.Run("Colors follow the residual sign", func(t *testing.T) {
		out := PositionFigure("ngc5846_R.fits", matched, false)

		if out.Bounds().Dx() != 600 || out.Bounds().Dy() != 400 {
			t.Fatalf("wanted a 600x400 figure got %v", out.Bounds())
		}
		if !containsColor(out, residualColor(0.04)) {
			t.Error("positive residual color missing")
		}
		if !containsColor(out, residualColor(-0.04)) {
			t.Error("negative residual color missing")
		}
	})

	t.Run("Kept only leaves clipped stars out", func(t *testing.T) {
		all := PositionFigure("ngc5846_R.fits", matched, false)
		kept := PositionFigure("ngc5846_R.fits", matched, true)

		// The clipped star saturates the hot end of the ramp. The colorbar
		// carries that color in both figures, its marker only in the first.
		hot := residualColor(positionRange)
		if countColor(all, hot) <= countColor(kept, hot) {
			t.Error("clipped star marker still drawn in the kept only map")
		}
	})
}

func TestResidualColor(t *testing.T) {
	if got := residualColor(0); got.R != got.B {
		t.Errorf("zero residual is tinted: %v", got)
	}

	hot := residualColor(positionRange)
	if hot.R <= hot.B {
		t.Errorf("positive clamp not red: %v", hot)
	}

	cold := residualColor(-positionRange)
	if cold.B <= cold.R {
		t.Errorf("negative clamp not blue: %v", cold)
	}

	if residualColor(10) != hot {
		t.Error("values above the range do not clamp")
	}
	if residualColor(-10) != cold {
		t.Error("values below the range do not clamp")
	}
}

func TestNiceTicks(t *testing.T) {
	ticks := niceTicks(0, 10, 6)
	if len(ticks) == 0 || ticks[0] != 0 {
		t.Fatalf("unexpected ticks %v", ticks)
	}
	for i := 1; i < len(ticks); i++ {
		if ticks[i]-ticks[i-1] != 2 {
			t.Fatalf("wanted a step of 2 got %v", ticks)
		}
	}

	if got := niceTicks(5, 5, 6); got != nil {
		t.Fatalf("degenerate interval yields ticks %v", got)
	}
}

func TestWritePNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "figure.png")

	img := Composite("VFID0001", 2, []Panel{GrayPanel("a", grid(2, 2, []float32{1, 2, 3, 4}))})
	if err := WritePNG(path, img); err != nil {
		t.Fatalf("writing figure: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("reading figure back: %v", err)
	}
	defer file.Close()

	decoded, err := png.Decode(file)
	if err != nil {
		t.Fatalf("decoding figure: %v", err)
	}
	if decoded.Bounds() != img.Bounds() {
		t.Fatalf("wanted bounds %v got %v", img.Bounds(), decoded.Bounds())
	}
}
