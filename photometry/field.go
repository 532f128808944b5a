package photometry

import (
	"fmt"

	"github.com/montanaflynn/stats"
	"github.com/tfkr-ae/azimuth/domain"
)

// FieldFrom derives the catalog query footprint from the extracted sources:
// the center is the midpoint of the detection extent and the width spans the
// larger of the RA and Dec ranges, so the query box covers the whole frame.
func FieldFrom(dets []*domain.Detection) (domain.Field, error) {
	if len(dets) == 0 {
		return domain.Field{}, fmt.Errorf("%w : no detections", ErrTooFewStars)
	}

	ras := make([]float64, len(dets))
	decs := make([]float64, len(dets))
	for i, det := range dets {
		ras[i] = det.RA
		decs[i] = det.Dec
	}

	minRA, err := stats.Min(ras)
	if err != nil {
		return domain.Field{}, fmt.Errorf("computing RA extent : %w", err)
	}
	maxRA, _ := stats.Max(ras)
	minDec, _ := stats.Min(decs)
	maxDec, _ := stats.Max(decs)

	width := maxRA - minRA
	if maxDec-minDec > width {
		width = maxDec - minDec
	}

	return domain.Field{
		RA:    (minRA + maxRA) / 2,
		Dec:   (minDec + maxDec) / 2,
		Width: width,
	}, nil
}
