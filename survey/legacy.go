package survey

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/gabriel-vasile/mimetype"
	"github.com/tfkr-ae/azimuth/domain"
	"github.com/tfkr-ae/azimuth/fits"
)

// layer returns the configured Legacy Surveys imaging layer.
func (c *Client) layer() string {
	if c.Layer != "" {
		return c.Layer
	}

	return LegacyLayer
}

// legacyQuery assembles the shared viewer parameters.
func (c *Client) legacyQuery(ra, dec float64, sizePix int) url.Values {
	params := url.Values{}
	params.Set("ra", fmt.Sprintf("%.5f", ra))
	params.Set("dec", fmt.Sprintf("%.5f", dec))
	params.Set("layer", c.layer())
	params.Set("size", fmt.Sprintf("%d", sizePix))
	params.Set("pixscale", fmt.Sprintf("%g", LegacyPixScale))

	return params
}

// FetchLegacyJPEG downloads the color preview of the field into the cache and
// returns its path.
func (c *Client) FetchLegacyJPEG(ctx context.Context, galaxy string, ra, dec float64, sizePix int) (string, error) {
	name := fmt.Sprintf("%s-legacy-%d.jpg", galaxy, sizePix)
	path, err := c.cachePath(name)
	if err != nil {
		return "", err
	}

	if cached(path) {
		return path, nil
	}

	endpoint := c.baseURL(domain.SurveyLegacy, LegacyBaseURL) + "/viewer/jpeg-cutout?" + c.legacyQuery(ra, dec, sizePix).Encode()

	body, _, err := c.fetch(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("downloading legacy preview : %w", err)
	}

	// The viewer reports some failures as HTML pages with a 200 status.
	kind := mimetype.Detect(body)
	if !kind.Is("image/jpeg") {
		return "", fmt.Errorf("legacy preview is not a jpeg : got %s", kind.String())
	}

	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("caching legacy preview : %w", err)
	}

	return path, nil
}

// FetchLegacyBand downloads a single band FITS cutout into the cache and
// returns its path. Positions outside the survey footprint come back as blank
// images and yield ErrBlankCutout.
func (c *Client) FetchLegacyBand(ctx context.Context, galaxy string, ra, dec float64, sizePix int, band string) (string, error) {
	name := fmt.Sprintf("%s-legacy-%d-%s.fits", galaxy, sizePix, band)

	params := c.legacyQuery(ra, dec, sizePix)
	params.Set("bands", band)
	endpoint := c.baseURL(domain.SurveyLegacy, LegacyBaseURL) + "/viewer/cutout.fits?" + params.Encode()

	path, err := c.download(ctx, domain.SurveyLegacy, endpoint, name)
	if err != nil {
		return "", err
	}

	file, err := fits.Open(path)
	if err != nil {
		return "", err
	}

	img := file.Primary().Image
	if img == nil {
		return "", fmt.Errorf("legacy cutout %s : %w", name, fits.ErrNoImage)
	}

	plane, err := img.Plane(0)
	if err != nil {
		return "", fmt.Errorf("legacy cutout %s : %w", name, err)
	}

	if plane.AllZero() {
		return "", fmt.Errorf("legacy cutout %s : %w", name, ErrBlankCutout)
	}

	return path, nil
}
