package azimuth

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tfkr-ae/azimuth/core"
	"github.com/tfkr-ae/azimuth/domain"
	"github.com/tfkr-ae/azimuth/fits"
	"github.com/tfkr-ae/azimuth/photometry"
	"github.com/tfkr-ae/azimuth/render"
	"github.com/tfkr-ae/azimuth/sextractor"
	"github.com/tfkr-ae/azimuth/vizier"
)

// Header values written by a converged calibration.
const (
	// VegaToABOffsetR converts a Johnson R zero point from Vega to AB.
	VegaToABOffsetR = 0.21

	// LambdaR is the Johnson R effective wavelength in micron.
	LambdaR = 0.6442

	// FluxZeroJy is the flux corresponding to magnitude zero in the AB
	// system, in Jansky.
	FluxZeroJy = 3631.0
)

// ZeroPointRequest carries the parameters of one calibration run.
type ZeroPointRequest struct {
	Image      string           // Path of the image to calibrate
	Instrument string           // Instrument code (h, i, m)
	Filter     string           // Filter the image was taken in, empty uses the configured default
	UseRI      bool             // Use the r-i colour term instead of g-r for Johnson R
	Normalize  bool             // Image is in raw counts, write a counts-per-second copy first
	MagSource  domain.MagSource // Which extraction magnitude feeds the fit
	Aperture   int              // Aperture vector index when MagSource is MagAper
	NSigma     float64          // Clipping threshold in MAD units, zero uses the configured default
	Seeing     float64          // Known seeing FWHM in arcsec, zero measures it
	Refit      bool             // Reuse the extraction catalog and the archived reference stars, redo only the fit
}

// instrument resolves an instrument code against the configuration, falling
// back to the compiled-in profiles when no configuration is loaded.
func (pipeline *Pipeline) instrument(code string) (InstrumentConfig, error) {
	if pipeline.Config != nil {
		return pipeline.Config.Instrument(code)
	}
	return (&Config{}).Instrument(code)
}

// defaults fills unset request fields from the configuration.
func (pipeline *Pipeline) defaults(request *ZeroPointRequest) {
	if request.Filter == "" {
		request.Filter = "R"
		if pipeline.Config != nil && pipeline.Config.Filter != "" {
			request.Filter = pipeline.Config.Filter
		}
	}
	if request.NSigma == 0 {
		request.NSigma = 2.0
		if pipeline.Config != nil && pipeline.Config.NSigma > 0 {
			request.NSigma = pipeline.Config.NSigma
		}
	}
}

// CalibrateZeroPoint runs one zero-point calibration: extraction, catalog
// query, cross-match, filtering, the iterative fit, the header update on the
// working image, and the diagnostic figures. The run, its converged zero point
// and the matched star table are persisted to the archive.
func (pipeline *Pipeline) CalibrateZeroPoint(ctx context.Context, request ZeroPointRequest) (*domain.ZeroPoint, error) {
	if pipeline.Repo == nil {
		return nil, fmt.Errorf("pipeline does not have a repo defined")
	}

	pipeline.defaults(&request)

	inst, err := pipeline.instrument(request.Instrument)
	if err != nil {
		return nil, err
	}

	runId, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generating new uuid : %w", err)
	}

	run := &domain.Run{
		ID:         runId,
		Image:      request.Image,
		Instrument: request.Instrument,
		Filter:     request.Filter,
		UseRI:      request.UseRI,
		MagSource:  request.MagSource,
		Aperture:   request.Aperture,
		NSigma:     request.NSigma,
		Seeing:     request.Seeing,
		Normalize:  request.Normalize,
		Metadata:   make(map[string]any),
		Status:     domain.RunPending,
		CreatedAt:  time.Now(),
	}
	if err := pipeline.Repo.InsertRun(run); err != nil {
		return nil, fmt.Errorf("inserting run : %w", err)
	}

	zp, err := pipeline.calibrate(ctx, run, request, inst)
	if err != nil {
		pipeline.WriteLog("ERROR", fmt.Sprintf("run failed : %s", err.Error()), core.LogWithRunID(run.ID))
		run.Metadata["failure"] = err.Error()
		if metaErr := pipeline.Repo.UpdateRunMetadata(run.Metadata, run.ID); metaErr != nil {
			pipeline.WriteLog("ERROR", metaErr.Error(), core.LogWithRunID(run.ID))
		}
		if statusErr := pipeline.Repo.UpdateRunStatus(run.ID, domain.RunFailed); statusErr != nil {
			pipeline.WriteLog("ERROR", statusErr.Error(), core.LogWithRunID(run.ID))
		}
		return nil, err
	}

	if err := pipeline.Repo.UpdateRunStatus(run.ID, domain.RunComplete); err != nil {
		return zp, fmt.Errorf("completing run : %w", err)
	}
	return zp, nil
}

// calibrate is the body of a run, split out so the caller owns the status
// transitions and the failure bookkeeping.
func (pipeline *Pipeline) calibrate(ctx context.Context, run *domain.Run, request ZeroPointRequest, inst InstrumentConfig) (*domain.ZeroPoint, error) {
	if err := pipeline.Repo.UpdateRunStatus(run.ID, domain.RunActive); err != nil {
		return nil, fmt.Errorf("starting run : %w", err)
	}
	pipeline.WriteLog("INFO", fmt.Sprintf("calibrating %s on %s", run.Image, inst.Name), core.LogWithRunID(run.ID))

	image := run.Image
	if request.Normalize {
		normalized := NormalizedPath(image)
		if !request.Refit {
			if _, err := NormalizeImage(image); err != nil {
				return nil, fmt.Errorf("normalizing image : %w", err)
			}
			pipeline.emit(run.ID, "normalize", "wrote counts-per-second copy %s", normalized)
		}
		image = normalized
	}

	var detections []*domain.Detection
	var seeing float64
	var err error
	if request.Refit {
		catalog := sextractor.CatalogPath(image)
		detections, err = sextractor.ReadCatalog(catalog)
		if err != nil {
			return nil, fmt.Errorf("reusing catalog %s : %w", catalog, err)
		}
		seeing = request.Seeing
		pipeline.emit(run.ID, "extract", "reusing catalog %s with %d detections", catalog, len(detections))
	} else {
		if pipeline.Extractor == nil {
			return nil, ErrNoExtractor
		}
		extractor := *pipeline.Extractor
		extractor.PixScale = inst.PixScale
		detections, seeing, err = extractor.Run(ctx, image, sextractor.Options{Seeing: request.Seeing})
		if err != nil {
			return nil, fmt.Errorf("extracting sources : %w", err)
		}
		pipeline.emit(run.ID, "extract", "%d sources extracted, seeing %.2f arcsec", len(detections), seeing)
	}
	if len(detections) == 0 {
		return nil, ErrNoDetections
	}

	field, err := photometry.FieldFrom(detections)
	if err != nil {
		return nil, fmt.Errorf("deriving field : %w", err)
	}

	var refs []*domain.ReferenceStar
	if request.Refit {
		refs, err = pipeline.archivedReferenceStars(run.Image)
		if err != nil {
			return nil, err
		}
		pipeline.emit(run.ID, "query", "reusing %d archived catalog stars", len(refs))
	} else {
		queryCtx := WithSurvey(ctx, domain.SurveyVizieR)
		queryCtx = WithRunID(queryCtx, run.ID)
		queryCtx = WithMetadata(queryCtx, Metadata{"image": run.Image, "run": run.ID.String()})
		refs, err = pipeline.Vizier().QueryPS1(queryCtx, field)
		if err != nil {
			return nil, fmt.Errorf("querying reference catalog : %w", err)
		}
		pipeline.emit(run.ID, "query", "%d catalog stars over a %.3f deg field", len(refs), field.Width)
	}

	pairs := photometry.Match(detections, refs, photometry.MatchRadius)
	if len(pairs) == 0 {
		return nil, ErrNoMatches
	}
	pipeline.emit(run.ID, "match", "%d stars matched within %.0f arcsec", len(pairs), photometry.MatchRadius)

	kept, err := pipeline.ApplyFilters(run.ID, pairs, BuiltinFilters(inst))
	if err != nil {
		return nil, err
	}

	transform := photometry.TransformFor(run.Filter, run.UseRI)
	matched := photometry.Stars(kept, transform, run.MagSource, run.Aperture)

	matched = pipeline.FilterWithExtensions(run.ID, matched)
	if len(matched) < 2 {
		return nil, fmt.Errorf("%w : %d after filtering", photometry.ErrTooFewStars, len(matched))
	}
	pipeline.emit(run.ID, "filter", "%d stars enter the fit with the %s transformation", len(matched), transform.Name)

	fit, err := photometry.FitZeroPoint(matched, run.NSigma)
	if err != nil {
		return nil, fmt.Errorf("fitting zero point : %w", err)
	}

	zp := &domain.ZeroPoint{
		RunID:      run.ID,
		Intercept:  fit.Intercept,
		ZP:         -fit.Intercept,
		ZPErr:      fit.Err,
		FluxZPJy:   FluxZeroJy,
		StarCount:  len(matched),
		FitCount:   fit.FitCount,
		Iterations: fit.Iterations,
		RMS:        fit.RMS,
		CreatedAt:  time.Now(),
	}
	if run.Filter == "R" {
		zp.ZP += VegaToABOffsetR
		zp.Lambda = LambdaR
	}
	pipeline.emit(run.ID, "fit", "zero point %.3f +/- %.3f, %d of %d stars kept after %d iterations",
		zp.ZP, zp.ZPErr, zp.FitCount, zp.StarCount, zp.Iterations)

	if err := pipeline.writeCalibratedHeader(image, zp); err != nil {
		return nil, err
	}
	pipeline.emit(run.ID, "header", "PHOTZP %.3f written to %s", zp.ZP, image)

	figures, err := writeFigures(image, matched, fit)
	if err != nil {
		pipeline.WriteLog("WARN", fmt.Sprintf("writing figures : %s", err.Error()), core.LogWithRunID(run.ID))
	} else {
		pipeline.emit(run.ID, "figures", "%d diagnostic figures written", len(figures))
		run.Metadata["figures"] = figures
	}

	if err := pipeline.Repo.InsertZeroPoint(zp); err != nil {
		return nil, fmt.Errorf("inserting zero point : %w", err)
	}
	if err := pipeline.Repo.InsertStars(run.ID, matched); err != nil {
		return nil, fmt.Errorf("inserting matched stars : %w", err)
	}

	run.Metadata["seeing"] = seeing
	run.Metadata["image_calibrated"] = image
	if err := pipeline.Repo.UpdateRunMetadata(run.Metadata, run.ID); err != nil {
		return nil, fmt.Errorf("updating run metadata : %w", err)
	}

	pipeline.notifyRunComplete(zp, image)
	pipeline.WriteLog("INFO", fmt.Sprintf("calibration converged at %.3f +/- %.3f", zp.ZP, zp.ZPErr), core.LogWithRunID(run.ID))
	return zp, nil
}

// writeCalibratedHeader stamps the calibration keywords into the working image
// and lets extensions add theirs before the file goes back to disk.
func (pipeline *Pipeline) writeCalibratedHeader(imagePath string, zp *domain.ZeroPoint) error {
	file, err := fits.Open(imagePath)
	if err != nil {
		return fmt.Errorf("opening image for header update : %w", err)
	}

	header := file.Primary().Header
	header.SetFloat("PHOTZP", zp.ZP, 3, "magnitude zero point")
	header.SetStr("PHOTSYS", "AB", "photometric system")
	header.SetFloat("FLUXZPJY", zp.FluxZPJy, 1, "flux for magnitude zero, Jy")
	if zp.Lambda > 0 {
		header.SetFloat("LAMB(um)", zp.Lambda, 4, "effective wavelength")
	}

	for _, ext := range pipeline.Extensions {
		if err := ext.CallHeaderHandler(header); err != nil {
			pipeline.WriteLog("ERROR", fmt.Sprintf("Running on_header : %s", err.Error()), core.LogWithExtensionID(ext.Data.ID))
		}
	}

	if err := file.WriteFile(imagePath); err != nil {
		return fmt.Errorf("writing calibrated image : %w", err)
	}
	return nil
}

// notifyRunComplete invokes the on_run_complete hook of every loaded extension
// with a summary of the finished fit.
func (pipeline *Pipeline) notifyRunComplete(zp *domain.ZeroPoint, imagePath string) {
	result := map[string]any{
		"zp":         zp.ZP,
		"zp_err":     zp.ZPErr,
		"rms":        zp.RMS,
		"fit_count":  zp.FitCount,
		"star_count": zp.StarCount,
		"iterations": zp.Iterations,
		"image":      imagePath,
	}
	for _, ext := range pipeline.Extensions {
		if err := ext.CallRunComplete(result); err != nil {
			pipeline.WriteLog("ERROR", fmt.Sprintf("Running on_run_complete : %s", err.Error()), core.LogWithExtensionID(ext.Data.ID))
		}
	}
}

// writeFigures renders the fit diagnostics beside the image: the fit panel, the
// residual histogram, and the residual maps over the frame for all and for the
// surviving samples.
func writeFigures(imagePath string, matched []*domain.MatchedStar, fit *photometry.FitResult) ([]string, error) {
	root := strings.TrimSuffix(imagePath, ".fits")
	title := filepath.Base(root)

	residuals := make([]float64, 0, fit.FitCount)
	for _, star := range matched {
		if star.Kept {
			residuals = append(residuals, star.Residual)
		}
	}

	written := make([]string, 0, 4)

	fitPath := root + "-zp-fit.png"
	if err := render.WritePNG(fitPath, render.FitFigure(title, matched, fit.Intercept)); err != nil {
		return written, err
	}
	written = append(written, fitPath)

	histPath := root + "-zp-hist.png"
	if err := render.WritePNG(histPath, render.HistogramFigure(title, residuals)); err != nil {
		return written, err
	}
	written = append(written, histPath)

	allPath := root + "-zp-xy.png"
	if err := render.WritePNG(allPath, render.PositionFigure(title, matched, false)); err != nil {
		return written, err
	}
	written = append(written, allPath)

	keptPath := root + "-zp-xy-fit.png"
	if err := render.WritePNG(keptPath, render.PositionFigure(title, matched, true)); err != nil {
		return written, err
	}
	written = append(written, keptPath)

	return written, nil
}

// NormalizedPath is where NormalizeImage leaves the counts-per-second copy, the
// file name prefixed with n in the same directory.
func NormalizedPath(imagePath string) string {
	dir, base := filepath.Split(imagePath)
	return filepath.Join(dir, "n"+base)
}

// NormalizeImage divides the image by its exposure time and writes the
// counts-per-second copy alongside the original. The EXPTIME card is kept as
// recorded so the extraction still scales its saturation budget correctly.
func NormalizeImage(imagePath string) (string, error) {
	file, err := fits.Open(imagePath)
	if err != nil {
		return "", err
	}

	primary := file.Primary()
	if primary.Image == nil {
		return "", fits.ErrNoImage
	}

	exptime, err := primary.Header.Float("EXPTIME")
	if err != nil {
		return "", fmt.Errorf("reading EXPTIME : %w", err)
	}
	if exptime <= 0 {
		return "", fmt.Errorf("EXPTIME %g leaves nothing to normalize", exptime)
	}

	primary.Image.Scale(float32(exptime))
	primary.SetImage(primary.Image)

	normalized := NormalizedPath(imagePath)
	if err := file.WriteFile(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// archivedReferenceStars replays the latest archived catalog response for the
// image through the VOTable parser, sparing a refit the round trip to VizieR.
func (pipeline *Pipeline) archivedReferenceStars(imagePath string) ([]*domain.ReferenceStar, error) {
	fetches, err := pipeline.Repo.SearchByMetadata("$.image", imagePath)
	if err != nil {
		return nil, fmt.Errorf("searching archived fetches : %w", err)
	}

	var latest *domain.FetchSummary
	for _, fetch := range fetches {
		if fetch.Survey != domain.SurveyVizieR || fetch.StatusCode != http.StatusOK {
			continue
		}
		if latest == nil || fetch.RequestedAt.After(latest.RequestedAt) {
			latest = fetch
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("no archived catalog response for %s, run once without the refit flag", imagePath)
	}

	row, err := pipeline.Repo.GetFetchRow(latest.ID)
	if err != nil {
		return nil, fmt.Errorf("reading archived fetch : %w", err)
	}

	body := responseBody(row.Response.Raw)
	if len(body) == 0 {
		return nil, fmt.Errorf("archived fetch %s has no body", latest.ID)
	}
	return vizier.Parse(body)
}

// responseBody strips the head from an archived response dump.
func responseBody(raw domain.RawField) []byte {
	if i := bytes.Index(raw, []byte("\r\n\r\n")); i >= 0 {
		return raw[i+4:]
	}
	return nil
}
