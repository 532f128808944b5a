package domain

// Detection represents one source extracted from the image being calibrated.
// Magnitudes are instrumental, measured against a zero point of 0.
type Detection struct {
	RA          float64   // Right ascension in degrees (J2000)
	Dec         float64   // Declination in degrees (J2000)
	X           float64   // Pixel x position on the image
	Y           float64   // Pixel y position on the image
	MagAper     []float64 // Fixed-aperture magnitudes, one per configured aperture
	MagAperErr  []float64 // Uncertainties on the aperture magnitudes
	MagBest     float64   // Best-of magnitude
	MagBestErr  float64   // Uncertainty on the best-of magnitude
	MagPetro    float64   // Petrosian magnitude
	MagPetroErr float64   // Uncertainty on the Petrosian magnitude
	FWHM        float64   // Fitted FWHM in pixels
	Flags       int       // Extraction flags
	ClassStar   float64   // Star/galaxy classifier output, 1 is stellar
}

// Mag returns the instrumental magnitude and its uncertainty selected by the
// given source. For MagAper the aperture index is clamped to the measured set.
func (d *Detection) Mag(source MagSource, aperture int) (mag float64, err float64) {
	switch source {
	case MagBest:
		return d.MagBest, d.MagBestErr
	case MagPetro:
		return d.MagPetro, d.MagPetroErr
	default:
		if len(d.MagAper) == 0 {
			return 0, 0
		}

		if aperture < 0 {
			aperture = 0
		}

		if aperture >= len(d.MagAper) {
			aperture = len(d.MagAper) - 1
		}

		return d.MagAper[aperture], d.MagAperErr[aperture]
	}
}

// ReferenceStar represents one Pan-STARRS DR1 catalog entry returned by VizieR.
type ReferenceStar struct {
	ObjID  int64   // Unique Pan-STARRS object identifier
	RA     float64 // Right ascension in degrees (J2000)
	Dec    float64 // Declination in degrees (J2000)
	RAErr  float64 // Positional uncertainty in RA, arcsec
	DecErr float64 // Positional uncertainty in Dec, arcsec
	Qual   int     // Quality flag, below 64 is clean
	G      float64 // Mean g magnitude
	GErr   float64 // Uncertainty on g
	R      float64 // Mean r magnitude
	RErr   float64 // Uncertainty on r
	I      float64 // Mean i magnitude
	IErr   float64 // Uncertainty on i
	Z      float64 // Mean z magnitude
	ZErr   float64 // Uncertainty on z
	Y      float64 // Mean y magnitude
	YErr   float64 // Uncertainty on y
}

// MatchedStar pairs a catalog star with its detection and carries the values
// entering the zero-point fit. Residual and Kept are filled once a fit converges.
type MatchedStar struct {
	RA       float64 // Catalog right ascension in degrees
	Dec      float64 // Catalog declination in degrees
	X        float64 // Detection pixel x position
	Y        float64 // Detection pixel y position
	Sep      float64 // Match separation in arcsec
	RefMag   float64 // Catalog magnitude transformed to the image filter
	RefErr   float64 // Uncertainty on the catalog magnitude
	InstMag  float64 // Instrumental magnitude from the extraction
	InstErr  float64 // Uncertainty on the instrumental magnitude
	Color    float64 // Catalog colour used by the transformation
	Residual float64 // InstMag - (RefMag + intercept) after the final iteration
	Kept     bool    // Survived the final clip
}

// Field describes the sky footprint of an image, derived from its detections.
// Width spans the larger of the RA and Dec extents so the catalog query box
// covers the whole frame.
type Field struct {
	RA    float64 // Field center right ascension in degrees
	Dec   float64 // Field center declination in degrees
	Width float64 // Query box width in degrees
}
