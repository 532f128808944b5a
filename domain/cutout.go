package domain

import (
	"time"

	"github.com/google/uuid"
)

// Survey service identifiers, used for fetch provenance, cutout records
// and endpoint mirror overrides.
const (
	SurveyLegacy = "legacy" // Legacy Survey viewer cutouts
	SurveyUnwise = "unwise" // unWISE coadd cutouts
	SurveyGalex  = "galex"  // GALEX intensity maps via MAST
	SurveyVizieR = "vizier" // VizieR catalog queries
)

// CutoutRepository is the interface that holds all the cutout cache related repository methods in Azimuth
type CutoutRepository interface {
	// InsertCutout will insert the Cutout in the DB
	InsertCutout(cutout *Cutout) error

	// GetCutout will return the cached cutout matching galaxy, survey, band and size
	// It will return an error if no matching cutout exists
	GetCutout(galaxy string, survey string, band string, size int) (*Cutout, error)

	// GetCutoutsByGalaxy will return every cached cutout for the given galaxy
	GetCutoutsByGalaxy(galaxy string) ([]*Cutout, error)

	// GetCutouts will return every cached cutout in the archive, newest first
	GetCutouts() ([]*Cutout, error)

	// PurgeGalaxy removes the cutout rows for a galaxy, it does not touch the cache files
	PurgeGalaxy(galaxy string) error
}

// Cutout represents one cached survey cutout on disk.
type Cutout struct {
	ID        uuid.UUID  // Unique identifier for the cutout
	Galaxy    string     // Galaxy identifier the cutout is centered on
	Survey    string     // Survey service the cutout came from
	Band      string     // Band within the survey (jpeg, g, r, z, w1..w4, nuv)
	SizePix   int        // Cutout side length in pixels
	PixScale  float64    // Pixel scale in arcsec per pixel
	Path      string     // Location of the cached file
	Bytes     int64      // Size of the cached file
	Checksum  string     // SHA-256 of the cached file, hex encoded
	FetchID   *uuid.UUID // Fetch that produced the file, nil when reused from cache
	CreatedAt time.Time  // Timestamp when the file was cached
}
