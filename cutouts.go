package azimuth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image/jpeg"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/tfkr-ae/azimuth/domain"
	"github.com/tfkr-ae/azimuth/fits"
	"github.com/tfkr-ae/azimuth/render"
	"github.com/tfkr-ae/azimuth/survey"
	"golang.org/x/sync/errgroup"
)

// Filter suffixes recognized on an R-band image path, checked in order so a
// name carrying several candidates keeps a deterministic root.
var rootSuffixes = []string{"_R.fits", "-R.fits", "_r.fits"}

// Bands drawn from the Legacy viewer next to the color preview.
var legacyBands = []string{"g", "r", "z"}

// UnwiseBands requests all four WISE channels.
const UnwiseBands = "1234"

// CutoutRequest carries the parameters of one composite assembly.
type CutoutRequest struct {
	Image    string // Path of the R-band image the set is anchored on
	CacheDir string // Cutout cache directory, empty uses cutouts under the config dir
}

// CutoutResult reports what a composite assembly produced.
type CutoutResult struct {
	Galaxy    string           // Galaxy identifier from the image header
	Pointing  string           // Pointing token of the rootname
	Field     float64          // Field side in arcsec
	Composite string           // Path of the survey grid
	Strip     string           // Path of the local products strip
	Cutouts   []*domain.Cutout // Cache records persisted for this set
	Warnings  []string         // Soft failures, one line each
}

// Rootname strips the filter suffix from an R-band image path.
func Rootname(imagePath string) (string, error) {
	for _, suffix := range rootSuffixes {
		if strings.HasSuffix(imagePath, suffix) {
			return strings.TrimSuffix(imagePath, suffix), nil
		}
	}
	return "", fmt.Errorf("%s does not carry a recognized filter suffix", imagePath)
}

// Pointing returns the pointing token of a rootname, the second dash separated
// element of its base name.
func Pointing(root string) string {
	parts := strings.Split(filepath.Base(root), "-")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// cutoutField is the sky footprint shared by every fetch of one set.
type cutoutField struct {
	Galaxy   string
	RA       float64
	Dec      float64
	PixScale float64 // arcsec per pixel
	Size     float64 // field side in arcsec
}

// fieldFromImage reads the galaxy identifier and the footprint out of the
// image header. The field side follows the image width at its plate scale.
func fieldFromImage(imagePath string) (*cutoutField, error) {
	header, err := fits.OpenHeader(imagePath)
	if err != nil {
		return nil, err
	}

	galaxy, err := header.Str("ID")
	if err != nil {
		return nil, fmt.Errorf("image carries no galaxy ID : %w", err)
	}

	naxis1, err := header.Int("NAXIS1")
	if err != nil {
		return nil, fmt.Errorf("reading NAXIS1 : %w", err)
	}
	naxis2, err := header.Int("NAXIS2")
	if err != nil {
		return nil, fmt.Errorf("reading NAXIS2 : %w", err)
	}

	wcs, err := fits.NewWCS(header)
	if err != nil {
		return nil, err
	}

	field := &cutoutField{
		Galaxy:   galaxy,
		PixScale: wcs.PixScale() * 3600,
	}
	field.RA, field.Dec = wcs.Center(naxis1, naxis2)
	field.Size = float64(naxis1) * field.PixScale

	return field, nil
}

// cutoutSet is what the survey fetches brought back, empty strings mark
// products that could not be fetched.
type cutoutSet struct {
	LegacyJPEG string
	Legacy     map[string]string // band letter to path
	Unwise     []string          // intensity map paths
	Multiframe bool
	GalexNUV   string
}

// ComposeCutouts assembles the survey composite for an R-band image. It
// derives the footprint from the image header, downloads the Legacy, unWISE
// and GALEX cutouts concurrently, persists the cache records, and writes the
// survey grid plus the local products strip next to the image. Products that
// cannot be fetched render as empty panels and come back as warnings.
func (pipeline *Pipeline) ComposeCutouts(ctx context.Context, request CutoutRequest) (*CutoutResult, error) {
	if pipeline.Repo == nil {
		return nil, fmt.Errorf("pipeline does not have a repo defined")
	}

	root, err := Rootname(request.Image)
	if err != nil {
		return nil, err
	}

	haImage := root + "-Ha.fits"
	csImage := root + "-CS.fits"
	for _, companion := range []string{haImage, csImage} {
		if _, err := os.Stat(companion); err != nil {
			return nil, fmt.Errorf("%w : %s", ErrMissingCompanion, companion)
		}
	}

	field, err := fieldFromImage(request.Image)
	if err != nil {
		return nil, err
	}

	result := &CutoutResult{
		Galaxy:   field.Galaxy,
		Pointing: Pointing(root),
		Field:    field.Size,
	}

	var mu sync.Mutex
	warn := func(format string, args ...any) {
		message := fmt.Sprintf(format, args...)
		mu.Lock()
		result.Warnings = append(result.Warnings, message)
		mu.Unlock()
		pipeline.WriteLog("WARN", message)
	}

	cacheDir := request.CacheDir
	if cacheDir == "" {
		cacheDir = "cutouts"
		if pipeline.Config != nil && pipeline.Config.ConfigDir != "" {
			cacheDir = filepath.Join(pipeline.Config.ConfigDir, "cutouts")
		}
	}

	pipeline.emit(uuid.Nil, "field", "%s spans %.0f arcsec at %.5f %+.5f", field.Galaxy, field.Size, field.RA, field.Dec)

	set := pipeline.fetchSurveys(ctx, cacheDir, request.Image, field, warn)
	if set.Multiframe {
		warn("unwise cutouts for %s span more than one coadd tile", field.Galaxy)
	}

	if err := pipeline.recordCutouts(result, set, field); err != nil {
		return nil, err
	}

	title := filepath.Base(root)

	locals := []render.Panel{
		pipeline.sciencePanel("Ha+cont", haImage, warn),
		pipeline.sciencePanel("R", request.Image, warn),
		pipeline.sciencePanel("CS", csImage, warn),
	}

	strip := root + "-cutouts.png"
	if err := render.WritePNG(strip, render.Composite(title, len(locals), locals)); err != nil {
		return nil, fmt.Errorf("writing local strip : %w", err)
	}
	result.Strip = strip

	panels := pipeline.surveyPanels(set, warn)
	for _, local := range locals {
		local.Border = render.Red
		panels = append(panels, local)
	}
	panels = append(panels, pipeline.sciencePanel("GALEX NUV", set.GalexNUV, warn))

	composite := root + "-all-cutouts.png"
	if err := render.WritePNG(composite, render.Composite(title, 4, panels)); err != nil {
		return nil, fmt.Errorf("writing composite : %w", err)
	}
	result.Composite = composite

	pipeline.emit(uuid.Nil, "composite", "%s assembled from %d cached products", composite, len(result.Cutouts))

	return result, nil
}

// cutoutContext labels every request of one fetch with its survey and a fresh
// metadata map.
func cutoutContext(ctx context.Context, surveyId, galaxy, imagePath string) context.Context {
	ctx = WithSurvey(ctx, surveyId)
	return WithMetadata(ctx, Metadata{"galaxy": galaxy, "image": imagePath})
}

// fetchSurveys downloads the survey products of one set concurrently. Fetch
// failures degrade to missing products rather than aborting the set, blank
// Legacy answers and absent GALEX coverage are ordinary conditions.
func (pipeline *Pipeline) fetchSurveys(ctx context.Context, cacheDir, imagePath string, field *cutoutField, warn func(string, ...any)) *cutoutSet {
	client := pipeline.Surveys(cacheDir)
	set := &cutoutSet{Legacy: make(map[string]string, len(legacyBands))}

	legacySize := int(math.Round(field.Size / survey.LegacyPixScale))
	unwiseSize := int(math.Round(field.Size / survey.UnwisePixScale))

	group, groupCtx := errgroup.WithContext(ctx)
	base := WithGalaxy(groupCtx, field.Galaxy)

	group.Go(func() error {
		legacyCtx := cutoutContext(base, domain.SurveyLegacy, field.Galaxy, imagePath)
		if path, err := client.FetchLegacyJPEG(legacyCtx, field.Galaxy, field.RA, field.Dec, legacySize); err != nil {
			warn("legacy preview : %s", err)
		} else {
			set.LegacyJPEG = path
		}

		for _, band := range legacyBands {
			bandCtx := cutoutContext(base, domain.SurveyLegacy, field.Galaxy, imagePath)
			path, err := client.FetchLegacyBand(bandCtx, field.Galaxy, field.RA, field.Dec, legacySize, band)
			if err != nil {
				warn("legacy %s : %s", band, err)
				continue
			}
			set.Legacy[band] = path
		}
		return nil
	})

	group.Go(func() error {
		unwiseCtx := cutoutContext(base, domain.SurveyUnwise, field.Galaxy, imagePath)
		images, multiframe, err := client.FetchUnwise(unwiseCtx, field.Galaxy, field.RA, field.Dec, unwiseSize, UnwiseBands)
		if err != nil {
			warn("unwise : %s", err)
			return nil
		}
		set.Unwise = images
		set.Multiframe = multiframe
		return nil
	})

	group.Go(func() error {
		galexCtx := cutoutContext(base, domain.SurveyGalex, field.Galaxy, imagePath)
		path, err := client.FetchGalexNUV(galexCtx, field.Galaxy, field.RA, field.Dec, field.Size)
		if err != nil {
			warn("galex : %s", err)
			return nil
		}
		set.GalexNUV = path
		return nil
	})

	if err := group.Wait(); err != nil {
		warn("survey fetches : %s", err)
	}

	return set
}

// recordCutouts persists one cache record per fetched product, checksummed so
// the report can spot files that changed under the cache.
func (pipeline *Pipeline) recordCutouts(result *CutoutResult, set *cutoutSet, field *cutoutField) error {
	legacySize := int(math.Round(field.Size / survey.LegacyPixScale))
	unwiseSize := int(math.Round(field.Size / survey.UnwisePixScale))

	if set.LegacyJPEG != "" {
		if err := pipeline.insertCutout(result, field.Galaxy, domain.SurveyLegacy, "jpeg", legacySize, survey.LegacyPixScale, set.LegacyJPEG); err != nil {
			return err
		}
	}
	for _, band := range legacyBands {
		path := set.Legacy[band]
		if path == "" {
			continue
		}
		if err := pipeline.insertCutout(result, field.Galaxy, domain.SurveyLegacy, band, legacySize, survey.LegacyPixScale, path); err != nil {
			return err
		}
	}
	for _, path := range set.Unwise {
		band := survey.UnwiseBand(path)
		if band == "" {
			continue
		}
		if err := pipeline.insertCutout(result, field.Galaxy, domain.SurveyUnwise, band, unwiseSize, survey.UnwisePixScale, path); err != nil {
			return err
		}
	}
	if set.GalexNUV != "" {
		sizePix, pixScale := galexGeometry(set.GalexNUV, field.Size)
		if err := pipeline.insertCutout(result, field.Galaxy, domain.SurveyGalex, "nuv", sizePix, pixScale, set.GalexNUV); err != nil {
			return err
		}
	}
	return nil
}

// galexGeometry reads the cut frame dimensions back, the MAST products carry
// their own plate scale.
func galexGeometry(path string, fieldArcsec float64) (int, float64) {
	img, err := loadScience(path)
	if err != nil || img.Width() == 0 {
		return 0, 0
	}
	return img.Width(), fieldArcsec / float64(img.Width())
}

// insertCutout checksums a cached file and records it in the archive.
// TODO: surface the recording transport's fetch id through the survey client
// so the row can carry its producing fetch instead of a null fetch_id.
func (pipeline *Pipeline) insertCutout(result *CutoutResult, galaxy, surveyId, band string, sizePix int, pixScale float64, path string) error {
	checksum, size, err := fileChecksum(path)
	if err != nil {
		return fmt.Errorf("checksumming %s : %w", path, err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generating new uuid : %w", err)
	}

	cutout := &domain.Cutout{
		ID:        id,
		Galaxy:    galaxy,
		Survey:    surveyId,
		Band:      band,
		SizePix:   sizePix,
		PixScale:  pixScale,
		Path:      path,
		Bytes:     size,
		Checksum:  checksum,
		CreatedAt: time.Now(),
	}
	if err := pipeline.Repo.InsertCutout(cutout); err != nil {
		return err
	}

	pipeline.emit(uuid.Nil, "cache", "%s %s %s", surveyId, band, humanize.Bytes(uint64(size)))

	result.Cutouts = append(result.Cutouts, cutout)
	return nil
}

// fileChecksum returns the SHA-256 of a file and its size.
func fileChecksum(path string) (string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer file.Close()

	hash := sha256.New()
	size, err := io.Copy(hash, file)
	if err != nil {
		return "", 0, err
	}

	return hex.EncodeToString(hash.Sum(nil)), size, nil
}

// surveyPanels lays out the first two composite rows, the Legacy products and
// the four WISE channels.
func (pipeline *Pipeline) surveyPanels(set *cutoutSet, warn func(string, ...any)) []render.Panel {
	panels := make([]render.Panel, 0, 12)

	panels = append(panels, pipeline.previewPanel("Legacy grz", set.LegacyJPEG, warn))
	for _, band := range legacyBands {
		panels = append(panels, pipeline.sciencePanel("Legacy "+band, set.Legacy[band], warn))
	}

	unwise := make(map[string]string, len(set.Unwise))
	for _, path := range set.Unwise {
		unwise[survey.UnwiseBand(path)] = path
	}
	for _, band := range []string{"w1", "w2", "w3", "w4"} {
		panels = append(panels, pipeline.sciencePanel(strings.ToUpper(band), unwise[band], warn))
	}

	return panels
}

// previewPanel decodes a cached JPEG preview, flipped so it shares the
// orientation of the science arrays.
func (pipeline *Pipeline) previewPanel(label, path string, warn func(string, ...any)) render.Panel {
	if path == "" {
		return render.Panel{Label: label}
	}

	file, err := os.Open(path)
	if err != nil {
		warn("reading %s : %s", path, err)
		return render.Panel{Label: label}
	}
	defer file.Close()

	img, err := jpeg.Decode(file)
	if err != nil {
		warn("decoding %s : %s", path, err)
		return render.Panel{Label: label}
	}

	return render.Panel{Label: label, Image: render.FlipVertical(img)}
}

// sciencePanel stretches a cached FITS product onto the gray ramp. An empty
// path stands for a product that could not be fetched.
func (pipeline *Pipeline) sciencePanel(label, path string, warn func(string, ...any)) render.Panel {
	if path == "" {
		return render.Panel{Label: label}
	}

	img, err := loadScience(path)
	if err != nil {
		warn("reading %s : %s", path, err)
		return render.Panel{Label: label}
	}

	return render.GrayPanel(label, img)
}

// loadScience reads the image to render from a FITS file. Cube shaped cutouts
// carry the band in the first plane.
func loadScience(path string) (*fits.Image, error) {
	file, err := fits.Open(path)
	if err != nil {
		return nil, err
	}

	var img *fits.Image
	for _, hdu := range file.HDUs {
		if hdu.Image != nil {
			img = hdu.Image
			break
		}
	}
	if img == nil {
		return nil, fits.ErrNoImage
	}

	if len(img.Naxisn) > 2 {
		return img.Plane(0)
	}
	return img, nil
}
