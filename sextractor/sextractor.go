// Package sextractor drives the Source Extractor binary over a FITS image and
// ingests the LDAC catalog it writes. Extraction runs twice by default, the
// first pass measures the seeing from the median source FWHM and the second
// pass feeds it back so the star galaxy classifier has a correct PSF width.
// The configuration files the binary needs are embedded and materialized into
// the working directory before each run.
package sextractor

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/montanaflynn/stats"
	"github.com/tfkr-ae/azimuth/domain"
	"github.com/tfkr-ae/azimuth/fits"
)

//go:embed assets
var assets embed.FS

// ErrNoBinary is returned when no Source Extractor executable can be found.
var ErrNoBinary = errors.New("source extractor binary not found")

// ErrEmptyCatalog is returned when an extraction pass yields no sources.
var ErrEmptyCatalog = errors.New("source extractor returned an empty catalog")

// DefaultPixScale is the HDI plate scale in arcsec per pixel.
const DefaultPixScale = 0.43

// FullWell is the saturation budget in ADU. The level passed to the binary is
// this value divided by the exposure time, images are calibrated in ADU per
// second.
const FullWell = 4e6

// configName is the embedded configuration handed to the binary with -c.
const configName = "default.sex"

// names the executable is probed under, in order of preference
var binaryNames = []string{"sex", "source-extractor", "sextractor"}

// Extractor runs Source Extractor and parses its catalogs.
type Extractor struct {
	Binary   string  // Path to the Source Extractor executable
	PixScale float64 // Arcsec per pixel, converts measured FWHM to arcsec
	FullWell float64 // Saturation budget in ADU before exposure time scaling
}

// Options control a single extraction run.
type Options struct {
	Seeing  float64 // Known seeing FWHM in arcsec, skips the measuring pass when above zero
	WorkDir string  // Directory for config files and the catalog, the image directory when empty
}

// Find locates the Source Extractor executable on the PATH, probing the names
// the common packagings install it under.
func Find() (string, error) {
	for _, name := range binaryNames {
		if found, err := exec.LookPath(name); err == nil {
			return found, nil
		}
	}

	return "", ErrNoBinary
}

// New returns an Extractor bound to the given executable. An empty binary path
// triggers a PATH lookup.
func New(binary string) (*Extractor, error) {
	if binary == "" {
		found, err := Find()
		if err != nil {
			return nil, err
		}
		binary = found
	}

	return &Extractor{
		Binary:   binary,
		PixScale: DefaultPixScale,
		FullWell: FullWell,
	}, nil
}

// Run extracts sources from the FITS image at the given path. Without a known
// seeing it runs two passes, measuring the seeing from the first catalog. It
// returns the detections of the final pass and the seeing that was used, in
// arcsec.
func (ex *Extractor) Run(ctx context.Context, image string, opts Options) ([]*domain.Detection, float64, error) {
	image, err := filepath.Abs(image)
	if err != nil {
		return nil, 0, fmt.Errorf("resolving image path : %w", err)
	}

	workDir := opts.WorkDir
	if workDir == "" {
		workDir = filepath.Dir(image)
	}

	if err := materialize(workDir); err != nil {
		return nil, 0, err
	}

	header, err := fits.OpenHeader(image)
	if err != nil {
		return nil, 0, err
	}

	exptime, err := header.Float("EXPTIME")
	if err != nil {
		return nil, 0, fmt.Errorf("reading EXPTIME : %w", err)
	}

	satur := ex.FullWell / exptime
	catalog := filepath.Join(workDir, catalogName(image))

	seeing := opts.Seeing
	if seeing == 0 {
		if err := ex.extract(ctx, workDir, ex.args(image, catalog, satur, 0)); err != nil {
			return nil, 0, err
		}

		first, err := readCatalog(catalog)
		if err != nil {
			return nil, 0, err
		}

		seeing, err = ex.measureSeeing(first)
		if err != nil {
			return nil, 0, err
		}
	}

	if err := ex.extract(ctx, workDir, ex.args(image, catalog, satur, seeing)); err != nil {
		return nil, 0, err
	}

	detections, err := readCatalog(catalog)
	if err != nil {
		return nil, 0, err
	}

	return detections, seeing, nil
}

// args assembles the command line for one pass. A zero seeing leaves the
// configured default in place rather than forcing a degenerate PSF width.
func (ex *Extractor) args(image, catalog string, satur, seeing float64) []string {
	args := []string{
		image,
		"-c", configName,
		"-CATALOG_NAME", catalog,
		"-MAG_ZEROPOINT", "0",
		"-SATUR_LEVEL", strconv.FormatFloat(satur, 'f', -1, 64),
	}

	if seeing > 0 {
		args = append(args, "-SEEING_FWHM", strconv.FormatFloat(seeing, 'f', -1, 64))
	}

	return args
}

// extract runs one pass of the binary in the working directory.
func (ex *Extractor) extract(ctx context.Context, workDir string, args []string) error {
	cmd := exec.CommandContext(ctx, ex.Binary, args...)
	cmd.Dir = workDir

	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("running source extractor : %w : %s", err, strings.TrimSpace(string(out)))
	}

	return nil
}

// measureSeeing returns the median FWHM of the catalog scaled to arcsec.
// Some frames measure to zero, the caller falls back to the configured
// default in that case.
func (ex *Extractor) measureSeeing(detections []*domain.Detection) (float64, error) {
	fwhms := make([]float64, len(detections))
	for i, det := range detections {
		fwhms[i] = det.FWHM
	}

	median, err := stats.Median(fwhms)
	if err != nil {
		return 0, fmt.Errorf("computing median FWHM : %w", err)
	}

	return median * ex.PixScale, nil
}

// materialize writes the embedded configuration files into the working
// directory, overwriting stale copies from earlier runs.
func materialize(workDir string) error {
	entries, err := assets.ReadDir("assets")
	if err != nil {
		return fmt.Errorf("listing embedded config : %w", err)
	}

	for _, entry := range entries {
		data, err := assets.ReadFile(path.Join("assets", entry.Name()))
		if err != nil {
			return fmt.Errorf("reading embedded %s : %w", entry.Name(), err)
		}

		if err := os.WriteFile(filepath.Join(workDir, entry.Name()), data, 0o644); err != nil {
			return fmt.Errorf("writing %s : %w", entry.Name(), err)
		}
	}

	return nil
}

// catalogName derives the catalog file name from the image name, the .fits
// suffix becomes .cat.
func catalogName(image string) string {
	base := filepath.Base(image)
	return strings.TrimSuffix(base, ".fits") + ".cat"
}

// CatalogPath returns where Run leaves the catalog for an image when no
// working directory was set, the .fits suffix traded for .cat beside the
// image.
func CatalogPath(image string) string {
	return filepath.Join(filepath.Dir(image), catalogName(image))
}

// ReadCatalog parses an existing LDAC catalog, letting a refit reuse the
// detections of an earlier extraction without running the binary again.
func ReadCatalog(path string) ([]*domain.Detection, error) {
	return readCatalog(path)
}
