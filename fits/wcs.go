package fits

import (
	"errors"
	"fmt"
	"math"
)

// ErrNoWCS is returned when a header carries no usable world coordinate keywords.
var ErrNoWCS = errors.New("header has no WCS keywords")

const degToRad = math.Pi / 180

// WCS is a tangent plane world coordinate solution read from an image header.
// Pixel coordinates follow the FITS convention where the center of the first
// pixel is (1, 1).
type WCS struct {
	Crval1 float64       // Reference right ascension in degrees
	Crval2 float64       // Reference declination in degrees
	Crpix1 float64       // Reference pixel along axis 1
	Crpix2 float64       // Reference pixel along axis 2
	CD     [2][2]float64 // Linear transformation matrix in degrees per pixel
}

// NewWCS builds a WCS from the header. The CD matrix is preferred, with a
// CDELT fallback for headers written by older tooling.
func NewWCS(h *Header) (*WCS, error) {
	crval1, err1 := h.Float("CRVAL1")
	crval2, err2 := h.Float("CRVAL2")
	if err1 != nil || err2 != nil {
		return nil, ErrNoWCS
	}

	w := &WCS{
		Crval1: crval1,
		Crval2: crval2,
		Crpix1: h.FloatOr("CRPIX1", 1),
		Crpix2: h.FloatOr("CRPIX2", 1),
	}

	if h.Has("CD1_1") {
		w.CD[0][0] = h.FloatOr("CD1_1", 0)
		w.CD[0][1] = h.FloatOr("CD1_2", 0)
		w.CD[1][0] = h.FloatOr("CD2_1", 0)
		w.CD[1][1] = h.FloatOr("CD2_2", 0)
	} else if h.Has("CDELT1") {
		w.CD[0][0] = h.FloatOr("CDELT1", 0)
		w.CD[1][1] = h.FloatOr("CDELT2", 0)
	} else {
		return nil, ErrNoWCS
	}

	if w.CD[0][0] == 0 && w.CD[0][1] == 0 {
		return nil, fmt.Errorf("%w : degenerate CD matrix", ErrNoWCS)
	}

	return w, nil
}

// PixScale returns the plate scale in degrees per pixel along axis 1.
func (w *WCS) PixScale() float64 {
	return math.Abs(w.CD[0][0])
}

// PixToWorld converts pixel coordinates to right ascension and declination in
// degrees using the inverse gnomonic projection.
func (w *WCS) PixToWorld(x, y float64) (ra, dec float64) {
	// intermediate world coordinates in radians
	xi := (w.CD[0][0]*(x-w.Crpix1) + w.CD[0][1]*(y-w.Crpix2)) * degToRad
	eta := (w.CD[1][0]*(x-w.Crpix1) + w.CD[1][1]*(y-w.Crpix2)) * degToRad

	ra0 := w.Crval1 * degToRad
	dec0 := w.Crval2 * degToRad

	den := math.Cos(dec0) - eta*math.Sin(dec0)
	ra = ra0 + math.Atan2(xi, den)
	dec = math.Asin((math.Sin(dec0) + eta*math.Cos(dec0)) / math.Sqrt(1+xi*xi+eta*eta))

	ra /= degToRad
	dec /= degToRad

	if ra < 0 {
		ra += 360
	}
	if ra >= 360 {
		ra -= 360
	}

	return ra, dec
}

// WorldToPix converts right ascension and declination in degrees to pixel
// coordinates using the forward gnomonic projection.
func (w *WCS) WorldToPix(ra, dec float64) (x, y float64, err error) {
	ra0 := w.Crval1 * degToRad
	dec0 := w.Crval2 * degToRad
	a := ra * degToRad
	d := dec * degToRad

	den := math.Sin(d)*math.Sin(dec0) + math.Cos(d)*math.Cos(dec0)*math.Cos(a-ra0)
	if den <= 0 {
		return 0, 0, fmt.Errorf("position %.5f %.5f is behind the tangent plane", ra, dec)
	}

	xi := math.Cos(d) * math.Sin(a-ra0) / den / degToRad
	eta := (math.Sin(d)*math.Cos(dec0) - math.Cos(d)*math.Sin(dec0)*math.Cos(a-ra0)) / den / degToRad

	det := w.CD[0][0]*w.CD[1][1] - w.CD[0][1]*w.CD[1][0]
	if det == 0 {
		return 0, 0, fmt.Errorf("%w : singular CD matrix", ErrNoWCS)
	}

	x = w.Crpix1 + (w.CD[1][1]*xi-w.CD[0][1]*eta)/det
	y = w.Crpix2 + (w.CD[0][0]*eta-w.CD[1][0]*xi)/det

	return x, y, nil
}

// Center returns the sky position of the image center for the given axis lengths.
func (w *WCS) Center(naxis1, naxis2 int) (ra, dec float64) {
	return w.PixToWorld(float64(naxis1)/2, float64(naxis2)/2)
}
