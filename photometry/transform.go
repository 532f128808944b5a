package photometry

import "github.com/tfkr-ae/azimuth/domain"

// Transform converts Pan-STARRS catalog magnitudes to the filter the image was
// taken in. The coefficients come from the Lupton style linear colour terms
// relating PS1 gri to the Johnson-Cousins system.
type Transform struct {
	Name  string
	apply func(ref *domain.ReferenceStar) (mag, magErr, color float64)
}

// Apply returns the catalog magnitude in the image filter, its uncertainty and
// the colour the term was computed from.
func (t Transform) Apply(ref *domain.ReferenceStar) (mag, magErr, color float64) {
	return t.apply(ref)
}

// TransformFor selects the transformation for the image filter. A Sloan style
// r filter needs no colour term of its own. Johnson-Cousins R is derived from
// PS1 r with a g-r term by default, or an r-i term when useRI is set, which
// behaves better for very red stars.
func TransformFor(filter string, useRI bool) Transform {
	switch {
	case filter == "r":
		return Transform{
			Name: "r",
			apply: func(ref *domain.ReferenceStar) (float64, float64, float64) {
				return ref.R, ref.RErr, ref.G - ref.R
			},
		}
	case useRI:
		return Transform{
			Name: "R from r-i",
			apply: func(ref *domain.ReferenceStar) (float64, float64, float64) {
				color := ref.R - ref.I
				return ref.R - 0.166*color - 0.275, ref.RErr, color
			},
		}
	default:
		return Transform{
			Name: "R from g-r",
			apply: func(ref *domain.ReferenceStar) (float64, float64, float64) {
				color := ref.G - ref.R
				return ref.R - 0.142*color - 0.142, ref.RErr, color
			},
		}
	}
}
