package sextractor

import (
	"fmt"

	"github.com/tfkr-ae/azimuth/domain"
	"github.com/tfkr-ae/azimuth/fits"
)

// objectsHDU is the index of the LDAC_OBJECTS table in the catalog file. LDAC
// catalogs carry the frame header in the unit before it.
const objectsHDU = 2

// readCatalog parses an LDAC catalog into detections.
func readCatalog(path string) ([]*domain.Detection, error) {
	file, err := fits.Open(path)
	if err != nil {
		return nil, err
	}

	if len(file.HDUs) <= objectsHDU {
		return nil, fmt.Errorf("catalog %s has %d HDUs, not LDAC", path, len(file.HDUs))
	}

	// An extraction with no sources writes the LDAC skeleton with a zero
	// row objects table, which decodes to no table at all.
	table := file.HDUs[objectsHDU].Table
	if table == nil || table.Rows == 0 {
		return nil, fmt.Errorf("catalog %s : %w", path, ErrEmptyCatalog)
	}

	ra, err := table.Floats("ALPHA_J2000")
	if err != nil {
		return nil, fmt.Errorf("reading catalog : %w", err)
	}

	dec, err := table.Floats("DELTA_J2000")
	if err != nil {
		return nil, fmt.Errorf("reading catalog : %w", err)
	}

	x, err := table.Floats("X_IMAGE")
	if err != nil {
		return nil, fmt.Errorf("reading catalog : %w", err)
	}

	y, err := table.Floats("Y_IMAGE")
	if err != nil {
		return nil, fmt.Errorf("reading catalog : %w", err)
	}

	magAper, err := table.Vectors("MAG_APER")
	if err != nil {
		return nil, fmt.Errorf("reading catalog : %w", err)
	}

	magAperErr, err := table.Vectors("MAGERR_APER")
	if err != nil {
		return nil, fmt.Errorf("reading catalog : %w", err)
	}

	magBest, err := table.Floats("MAG_BEST")
	if err != nil {
		return nil, fmt.Errorf("reading catalog : %w", err)
	}

	magBestErr, err := table.Floats("MAGERR_BEST")
	if err != nil {
		return nil, fmt.Errorf("reading catalog : %w", err)
	}

	magPetro, err := table.Floats("MAG_PETRO")
	if err != nil {
		return nil, fmt.Errorf("reading catalog : %w", err)
	}

	magPetroErr, err := table.Floats("MAGERR_PETRO")
	if err != nil {
		return nil, fmt.Errorf("reading catalog : %w", err)
	}

	fwhm, err := table.Floats("FWHM_IMAGE")
	if err != nil {
		return nil, fmt.Errorf("reading catalog : %w", err)
	}

	flags, err := table.Ints("FLAGS")
	if err != nil {
		return nil, fmt.Errorf("reading catalog : %w", err)
	}

	classStar, err := table.Floats("CLASS_STAR")
	if err != nil {
		return nil, fmt.Errorf("reading catalog : %w", err)
	}

	detections := make([]*domain.Detection, table.Rows)
	for i := 0; i < table.Rows; i++ {
		detections[i] = &domain.Detection{
			RA:          ra[i],
			Dec:         dec[i],
			X:           x[i],
			Y:           y[i],
			MagAper:     magAper[i],
			MagAperErr:  magAperErr[i],
			MagBest:     magBest[i],
			MagBestErr:  magBestErr[i],
			MagPetro:    magPetro[i],
			MagPetroErr: magPetroErr[i],
			FWHM:        fwhm[i],
			Flags:       flags[i],
			ClassStar:   classStar[i],
		}
	}

	return detections, nil
}
