package photometry

import (
	"math"

	"github.com/tfkr-ae/azimuth/domain"
)

// MatchRadius is the default pairing radius in arcsec.
const MatchRadius = 5.0

// Pair joins a detection with its nearest catalog star. Quality gates and the
// magnitude transformation operate on pairs before the fit sees them.
type Pair struct {
	Ref *domain.ReferenceStar
	Det *domain.Detection
	Sep float64 // Separation in arcsec
}

// separation returns the angular distance between two positions in degrees,
// using the flat sky approximation with the cos(dec) foreshortening of RA.
// Fields are a fraction of a degree across, the approximation error is far
// below the match radius.
func separation(ra1, dec1, ra2, dec2 float64) float64 {
	dra := (ra1 - ra2) * math.Cos(dec1*math.Pi/180)
	ddec := dec1 - dec2
	return math.Sqrt(dra*dra + ddec*ddec)
}

// Match pairs each detection with its nearest catalog star, keeping pairs
// closer than radius arcsec.
func Match(dets []*domain.Detection, refs []*domain.ReferenceStar, radius float64) []*Pair {
	limit := radius / 3600
	pairs := make([]*Pair, 0, len(dets))

	for _, det := range dets {
		best := -1
		bestSep := limit

		for j, ref := range refs {
			if math.Abs(ref.Dec-det.Dec) > limit {
				continue
			}

			sep := separation(det.RA, det.Dec, ref.RA, ref.Dec)
			if sep < bestSep {
				best = j
				bestSep = sep
			}
		}

		if best == -1 {
			continue
		}

		pairs = append(pairs, &Pair{Ref: refs[best], Det: det, Sep: bestSep * 3600})
	}

	return pairs
}

// Stars converts surviving pairs into the matched star records the fit and the
// archive consume, applying the magnitude transformation and selecting the
// instrumental magnitude.
func Stars(pairs []*Pair, transform Transform, source domain.MagSource, aperture int) []*domain.MatchedStar {
	matched := make([]*domain.MatchedStar, 0, len(pairs))

	for _, pair := range pairs {
		refMag, refErr, color := transform.Apply(pair.Ref)
		instMag, instErr := pair.Det.Mag(source, aperture)

		matched = append(matched, &domain.MatchedStar{
			RA:      pair.Ref.RA,
			Dec:     pair.Ref.Dec,
			X:       pair.Det.X,
			Y:       pair.Det.Y,
			Sep:     pair.Sep,
			RefMag:  refMag,
			RefErr:  refErr,
			InstMag: instMag,
			InstErr: instErr,
			Color:   color,
		})
	}

	return matched
}
