package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MagSource selects which source-extraction magnitude feeds the zero-point fit.
type MagSource int

const (
	MagAper  MagSource = iota // Fixed-aperture magnitude (MAG_APER)
	MagBest                   // Best-of magnitude (MAG_BEST)
	MagPetro                  // Petrosian magnitude (MAG_PETRO)
)

// String returns the source-extraction column name for the magnitude source.
func (m MagSource) String() string {
	switch m {
	case MagBest:
		return "MAG_BEST"
	case MagPetro:
		return "MAG_PETRO"
	default:
		return "MAG_APER"
	}
}

// ParseMagSource resolves a command line magnitude source name. An empty name
// falls back to the aperture magnitude.
func ParseMagSource(name string) (MagSource, error) {
	switch strings.ToLower(name) {
	case "", "aper":
		return MagAper, nil
	case "best":
		return MagBest, nil
	case "petro":
		return MagPetro, nil
	}
	return MagAper, fmt.Errorf("magnitude source should be either: aper, best, petro")
}

// RunStatus tracks a calibration run through its lifecycle.
type RunStatus string

const (
	RunPending  RunStatus = "pending"  // Created but not started
	RunActive   RunStatus = "active"   // Extraction, query or fit in progress
	RunComplete RunStatus = "complete" // Zero point written to the image header
	RunFailed   RunStatus = "failed"   // Aborted, reason recorded in metadata
)

// CalibrationRepository is the interface that holds all the zero-point run related repository methods in Azimuth
type CalibrationRepository interface {
	// InsertRun will insert the Run in the DB
	InsertRun(run *Run) error

	// UpdateRunStatus transitions the run to the given status.
	// Moving to RunComplete or RunFailed also stamps the finished time.
	UpdateRunStatus(id uuid.UUID, status RunStatus) error

	// GetRun will return the run row for the given ID
	// It will return an error if the run ID doesn't exist
	GetRun(id uuid.UUID) (*Run, error)

	// GetRunSummaries will return every run joined with its zero point, without the per-star data
	GetRunSummaries() ([]*RunSummary, error)

	// GetRunMetadata returns the metadata map for a specific run ID.
	GetRunMetadata(id uuid.UUID) (metadata map[string]any, err error)

	// UpdateRunMetadata updates the metadata for one or more runs.
	UpdateRunMetadata(metadata map[string]any, ids ...uuid.UUID) error

	// InsertZeroPoint will insert the fitted zero point for its run
	InsertZeroPoint(zp *ZeroPoint) error

	// GetZeroPoint will return the zero point fitted by the given run
	// It will return an error if the run has no zero point yet
	GetZeroPoint(runID uuid.UUID) (*ZeroPoint, error)

	// InsertStars will insert the matched star set used by a fit in one transaction
	InsertStars(runID uuid.UUID, stars []*MatchedStar) error

	// GetStars will return the matched stars recorded for a run, in insertion order
	GetStars(runID uuid.UUID) ([]*MatchedStar, error)
}

// Run represents one zero-point calibration of a single image.
type Run struct {
	ID         uuid.UUID      // Unique identifier for the run
	Image      string         // Path of the image being calibrated
	Instrument string         // Instrument code (h, i, m)
	Filter     string         // Filter the image was taken in (R, r, ha, ...)
	UseRI      bool           // Use the r-i colour transformation instead of g-r
	MagSource  MagSource      // Which extraction magnitude feeds the fit
	Aperture   int            // Aperture index when MagSource is MagAper
	NSigma     float64        // Clipping threshold in MAD units
	Seeing     float64        // Seeing FWHM in arcsec, zero means measure it
	Normalize  bool           // Write a counts-per-second copy of the image
	Metadata   map[string]any // Additional metadata and extension data
	Status     RunStatus      // Current lifecycle status
	CreatedAt  time.Time      // Timestamp when the run was created
	FinishedAt time.Time      // Timestamp when the run completed or failed
}

// RunSummary provides a summary of a run joined with its zero point,
// excluding the per-star data
type RunSummary struct {
	ID         uuid.UUID
	Image      string
	Instrument string
	Filter     string
	Status     RunStatus
	ZP         float64
	ZPErr      float64
	FitCount   int
	CreatedAt  time.Time
	FinishedAt time.Time
}

// ZeroPoint represents the converged result of the iterative weighted fit.
// Intercept is the fitted offset in instrumental space, ZP the value written
// to the image header with the sign flipped and any filter offset applied.
type ZeroPoint struct {
	RunID      uuid.UUID // Run that produced this fit
	Intercept  float64   // Fitted offset, instrumental minus catalog
	ZP         float64   // Header zero point (PHOTZP)
	ZPErr      float64   // One sigma uncertainty on the fit
	Lambda     float64   // Effective wavelength in micron, zero when not set
	FluxZPJy   float64   // Flux corresponding to magnitude zero, in Jy
	StarCount  int       // Matched stars entering the first iteration
	FitCount   int       // Stars surviving the final clip
	Iterations int       // Iterations until convergence
	RMS        float64   // Standard deviation of the surviving residuals
	CreatedAt  time.Time // Timestamp when the fit converged
}
