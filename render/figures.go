package render

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/montanaflynn/stats"
	"github.com/tfkr-ae/azimuth/domain"
)

// positionRange clamps the color scale of the position residual maps, in
// magnitudes around zero.
const positionRange = 0.05

// histRange bounds the residual histogram, residuals outside it are dropped
// from the counts.
const histRange = 0.1

// histBins is the number of histogram bins across the range.
const histBins = 20

// FitFigure draws the calibration fit, the matched stars against the
// catalog magnitudes with the fitted line on top and the residuals below.
// Stars clipped from the fit render gray.
func FitFigure(title string, matched []*domain.MatchedStar, intercept float64) *image.RGBA {
	c := newCanvas(640, 640)
	c.centeredText(320, 22, title, black)

	top := &plotArea{rect: image.Rect(70, 45, 615, 330)}
	bottom := &plotArea{rect: image.Rect(70, 400, 615, 585)}

	// The fitted line spans the calibration interval whatever the data does.
	xlo, xhi := 14.0, 17.0
	ylo, yhi := xlo+intercept, xhi+intercept
	rlo, rhi := 0.0, 0.0
	for _, star := range matched {
		xlo = math.Min(xlo, star.RefMag)
		xhi = math.Max(xhi, star.RefMag)
		ylo = math.Min(ylo, star.InstMag-star.InstErr)
		yhi = math.Max(yhi, star.InstMag+star.InstErr)
		rlo = math.Min(rlo, star.Residual)
		rhi = math.Max(rhi, star.Residual)
	}

	top.x0, top.x1 = pad(xlo, xhi, 0.05)
	top.y0, top.y1 = pad(ylo, yhi, 0.05)
	bottom.x0, bottom.x1 = top.x0, top.x1
	bottom.y0, bottom.y1 = pad(rlo, rhi, 0.1)

	top.draw(c)
	bottom.draw(c)

	c.text(top.rect.Min.X, top.rect.Min.Y-6, "instrumental R", black)
	c.centeredText((top.rect.Min.X+top.rect.Max.X)/2, top.rect.Max.Y+30, "Pan-STARRS r", black)
	c.text(bottom.rect.Min.X, bottom.rect.Min.Y-6, "residual (inst - fit)", black)
	c.centeredText((bottom.rect.Min.X+bottom.rect.Max.X)/2, bottom.rect.Max.Y+30, "Pan-STARRS r", black)

	for _, star := range matched {
		col, rcol := blue, black
		if !star.Kept {
			col, rcol = gray, gray
		}

		x := top.px(star.RefMag)
		c.line(x, top.py(star.InstMag-star.InstErr), x, top.py(star.InstMag+star.InstErr), col)
		c.marker(x, top.py(star.InstMag), 3, col)

		c.marker(bottom.px(star.RefMag), bottom.py(star.Residual), 2, rcol)
	}

	c.dashedLine(top.px(14), top.py(14+intercept), top.px(17), top.py(17+intercept), black)
	c.text(top.rect.Min.X+10, top.rect.Min.Y+18, fmt.Sprintf("fit: y = x %+.2f", intercept), black)

	zero := bottom.py(0)
	c.line(bottom.rect.Min.X, zero, bottom.rect.Max.X-1, zero, Red)

	var kept []float64
	for _, star := range matched {
		if star.Kept {
			kept = append(kept, star.Residual)
		}
	}
	if std, err := stats.StandardDeviation(kept); err == nil {
		c.text(bottom.rect.Min.X+10, bottom.rect.Min.Y+18, fmt.Sprintf("std = %.4f", std), black)
	}

	return c.RGBA
}

// HistogramFigure draws the distribution of the fit residuals over a fixed
// window, annotated with its mean and scatter.
func HistogramFigure(title string, residuals []float64) *image.RGBA {
	c := newCanvas(640, 480)
	c.centeredText(320, 22, title, black)

	counts := make([]int, histBins)
	peak := 1
	for _, r := range residuals {
		idx := int(math.Floor((r + histRange) / (2 * histRange / histBins)))
		if idx == histBins && r <= histRange {
			idx--
		}
		if idx < 0 || idx >= histBins {
			continue
		}

		counts[idx]++
		if counts[idx] > peak {
			peak = counts[idx]
		}
	}

	area := &plotArea{rect: image.Rect(70, 45, 615, 420)}
	area.x0, area.x1 = -histRange, histRange
	area.y0, area.y1 = 0, float64(peak)*1.1
	area.draw(c)

	for i, count := range counts {
		if count == 0 {
			continue
		}

		lo := -histRange + float64(i)*2*histRange/histBins
		hi := lo + 2*histRange/histBins
		bar := image.Rect(area.px(lo), area.py(float64(count)), area.px(hi), area.rect.Max.Y-1)
		c.fill(bar, steelBlue)
		c.frame(bar, black, 1)
	}

	mean, errMean := stats.Mean(residuals)
	std, errStd := stats.StandardDeviation(residuals)
	if errMean == nil && errStd == nil {
		c.text(area.rect.Min.X+10, area.rect.Min.Y+18, fmt.Sprintf("%.3f +/- %.3f", mean, std), black)
	}

	c.centeredText((area.rect.Min.X+area.rect.Max.X)/2, area.rect.Max.Y+30, "fit residual (mag)", black)

	return c.RGBA
}

// PositionFigure maps the fit residuals across the detector, every star at
// its pixel position colored by its residual. With keptOnly set, clipped
// stars are left out.
func PositionFigure(title string, matched []*domain.MatchedStar, keptOnly bool) *image.RGBA {
	c := newCanvas(600, 400)
	c.centeredText(260, 22, title, black)

	stars := matched
	if keptOnly {
		stars = nil
		for _, star := range matched {
			if star.Kept {
				stars = append(stars, star)
			}
		}
	}

	area := &plotArea{rect: image.Rect(60, 45, 480, 340)}
	area.x0, area.x1, area.y0, area.y1 = 0, 1, 0, 1
	if len(stars) > 0 {
		xlo, xhi := stars[0].X, stars[0].X
		ylo, yhi := stars[0].Y, stars[0].Y
		for _, star := range stars {
			xlo = math.Min(xlo, star.X)
			xhi = math.Max(xhi, star.X)
			ylo = math.Min(ylo, star.Y)
			yhi = math.Max(yhi, star.Y)
		}
		area.x0, area.x1 = pad(xlo, xhi, 0.05)
		area.y0, area.y1 = pad(ylo, yhi, 0.05)
	}
	area.draw(c)

	for _, star := range stars {
		c.marker(area.px(star.X), area.py(star.Y), 3, residualColor(star.Residual))
	}

	c.centeredText((area.rect.Min.X+area.rect.Max.X)/2, area.rect.Max.Y+30, "X (pix)", black)
	c.text(area.rect.Min.X, area.rect.Min.Y-6, "Y (pix)", black)

	drawColorbar(c, image.Rect(510, 45, 535, 340))

	return c.RGBA
}

// drawColorbar paints the residual color ramp with its extreme and zero
// labels.
func drawColorbar(c *canvas, r image.Rectangle) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		t := 1 - float64(y-r.Min.Y)/float64(r.Dy()-1)
		col := residualColor(positionRange * (2*t - 1))
		c.fill(image.Rect(r.Min.X, y, r.Max.X, y+1), col)
	}
	c.frame(r, black, 1)

	c.text(r.Max.X+6, r.Min.Y+5, fmt.Sprintf("%+.2f", positionRange), black)
	c.text(r.Max.X+6, (r.Min.Y+r.Max.Y)/2+5, "0.00", black)
	c.text(r.Max.X+6, r.Max.Y, fmt.Sprintf("%+.2f", -positionRange), black)
}

// residualColor maps a residual onto a blue to red diverging ramp, clamped
// at the position range. Zero lands on near white.
func residualColor(v float64) color.RGBA {
	t := (v + positionRange) / (2 * positionRange)
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}

	cold := color.RGBA{R: 0x28, G: 0x46, B: 0xc8, A: 0xff}
	hot := color.RGBA{R: 0xc8, G: 0x28, B: 0x28, A: 0xff}
	mid := color.RGBA{R: 0xf4, G: 0xf4, B: 0xf4, A: 0xff}

	if t < 0.5 {
		return lerpColor(cold, mid, 2*t)
	}

	return lerpColor(mid, hot, 2*t-1)
}

func lerpColor(a, b color.RGBA, t float64) color.RGBA {
	lerp := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + t*(float64(y)-float64(x))))
	}

	return color.RGBA{R: lerp(a.R, b.R), G: lerp(a.G, b.G), B: lerp(a.B, b.B), A: 0xff}
}
