// Package photometry implements the zero-point solution: pairing extracted
// sources with catalog stars, transforming catalog magnitudes to the image
// filter, and the iterative clipped fit of the offset between them.
package photometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
	"github.com/tfkr-ae/azimuth/domain"
)

// ErrTooFewStars is returned when fewer than two stars survive matching or clipping.
var ErrTooFewStars = errors.New("not enough stars to fit a zero point")

// ErrNoConvergence is returned when the fit is still moving after MaxIterations.
var ErrNoConvergence = errors.New("zero point fit did not converge")

// MaxIterations caps the clipping loop.
const MaxIterations = 50

// convergence threshold on the change of the fitted offset between iterations, in mag
const tolerance = 1e-3

// madScale converts a median absolute deviation to a sigma equivalent.
const madScale = 1.48

// FitResult is the converged output of FitZeroPoint.
type FitResult struct {
	Intercept  float64 // Fitted offset, instrumental minus catalog
	Err        float64 // One sigma uncertainty on the offset
	Iterations int     // Iterations until the offset stopped moving
	FitCount   int     // Stars surviving the final clip
	RMS        float64 // Standard deviation of the surviving residuals
}

// FitZeroPoint fits InstMag = RefMag + intercept over the matched stars with
// weights from the catalog magnitude uncertainties, clipping outliers against
// nsigma times the scaled median absolute deviation of the residuals each
// iteration. The stars' Residual and Kept fields are filled in place.
func FitZeroPoint(matched []*domain.MatchedStar, nsigma float64) (*FitResult, error) {
	if len(matched) < 2 {
		return nil, fmt.Errorf("%w : %d matched", ErrTooFewStars, len(matched))
	}

	kept := make([]bool, len(matched))
	for i := range kept {
		kept[i] = true
	}

	var intercept float64
	result := &FitResult{}

	for iter := 1; ; iter++ {
		if iter > MaxIterations {
			return nil, fmt.Errorf("%w after %d iterations", ErrNoConvergence, MaxIterations)
		}

		next, errFit, n := weightedOffset(matched, kept)
		if n < 2 {
			return nil, fmt.Errorf("%w : %d left after clipping", ErrTooFewStars, n)
		}

		residuals := make([]float64, 0, n)
		for i, star := range matched {
			star.Residual = star.InstMag - (star.RefMag + next)
			if kept[i] {
				residuals = append(residuals, star.Residual)
			}
		}

		med, err := stats.Median(residuals)
		if err != nil {
			return nil, fmt.Errorf("computing residual median : %w", err)
		}

		mad, err := stats.MedianAbsoluteDeviation(residuals)
		if err != nil {
			return nil, fmt.Errorf("computing residual MAD : %w", err)
		}

		// re-test every star, a clipped star can re-enter if the solution moved.
		// A zero MAD means the surviving residuals are degenerate, clipping
		// against it would discard everything.
		if mad > 0 {
			cut := nsigma * madScale * mad
			for i, star := range matched {
				kept[i] = math.Abs(star.Residual-med) < cut
			}
		}

		delta := math.Abs(next - intercept)
		intercept = next
		result.Intercept = next
		result.Err = errFit
		result.Iterations = iter

		if delta <= tolerance {
			break
		}
	}

	surviving := make([]float64, 0, len(matched))
	for i, star := range matched {
		star.Kept = kept[i]
		if kept[i] {
			surviving = append(surviving, star.Residual)
		}
	}

	if len(surviving) < 2 {
		return nil, fmt.Errorf("%w : %d left after clipping", ErrTooFewStars, len(surviving))
	}

	rms, err := stats.StandardDeviation(surviving)
	if err != nil {
		return nil, fmt.Errorf("computing residual scatter : %w", err)
	}

	result.FitCount = len(surviving)
	result.RMS = rms

	return result, nil
}

// weightedOffset solves the single parameter least squares problem
// InstMag - RefMag = intercept with weights 1 over the squared catalog
// uncertainty. The returned uncertainty follows the reduced chi square
// convention, scaling the formal variance by chi square per degree of freedom.
func weightedOffset(matched []*domain.MatchedStar, kept []bool) (offset float64, errFit float64, n int) {
	var sumW, sumWD float64

	for i, star := range matched {
		if !kept[i] {
			continue
		}

		w := 1.0
		if star.RefErr > 0 {
			w = 1 / (star.RefErr * star.RefErr)
		}

		sumW += w
		sumWD += w * (star.InstMag - star.RefMag)
		n++
	}

	if n < 2 || sumW == 0 {
		return 0, 0, n
	}

	offset = sumWD / sumW

	var chi2 float64
	for i, star := range matched {
		if !kept[i] {
			continue
		}

		w := 1.0
		if star.RefErr > 0 {
			w = 1 / (star.RefErr * star.RefErr)
		}

		d := star.InstMag - star.RefMag - offset
		chi2 += w * d * d
	}

	errFit = math.Sqrt(chi2 / (float64(n-1) * sumW))

	return offset, errFit, n
}
