package survey

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/tfkr-ae/azimuth/domain"
	"github.com/tfkr-ae/azimuth/fits"
)

// galexSearchRadius is the cone search radius in degrees, 0.1 arcmin. The
// target position sits inside the frame, a tight cone keeps the observation
// list short.
const galexSearchRadius = 0.1 / 60

// mastRequest is the envelope the MAST discovery service expects, posted
// urlencoded as the request form field.
type mastRequest struct {
	Service string         `json:"service"`
	Params  map[string]any `json:"params"`
	Format  string         `json:"format"`
}

// mastObservation is the subset of a Caom cone search row the fetcher reads.
type mastObservation struct {
	Collection string  `json:"obs_collection"`
	ObsID      float64 `json:"obsid"`
}

// mastProduct is the subset of a Caom product row the fetcher reads.
type mastProduct struct {
	Type     string `json:"productType"`
	Filename string `json:"productFilename"`
	URI      string `json:"dataURI"`
}

// mastInvoke posts one service request and decodes the data rows into out.
// MAST answers long queries with an EXECUTING status, those are polled with a
// backoff until the result materializes.
func (c *Client) mastInvoke(ctx context.Context, service string, params map[string]any, out any) error {
	payload, err := json.Marshal(mastRequest{Service: service, Params: params, Format: "json"})
	if err != nil {
		return fmt.Errorf("encoding mast request : %w", err)
	}

	form := url.Values{}
	form.Set("request", string(payload))
	endpoint := c.baseURL(domain.SurveyGalex, MASTBaseURL) + "/api/v0/invoke"

	backoff := retry.WithMaxRetries(5, retry.NewFibonacci(2*time.Second))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		body, _, err := c.fetch(ctx, http.MethodPost, endpoint, form)
		if err != nil {
			return err
		}

		var reply struct {
			Status string          `json:"status"`
			Msg    string          `json:"msg"`
			Data   json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(body, &reply); err != nil {
			return fmt.Errorf("decoding mast reply : %w", err)
		}

		switch reply.Status {
		case "COMPLETE":
		case "EXECUTING":
			return retry.RetryableError(fmt.Errorf("mast query still executing"))
		default:
			return fmt.Errorf("mast answered status %s : %s", reply.Status, reply.Msg)
		}

		if err := json.Unmarshal(reply.Data, out); err != nil {
			return fmt.Errorf("decoding mast rows : %w", err)
		}

		return nil
	})
}

// galexObservations cone searches the archive and returns the GALEX
// observation ids covering the position.
func (c *Client) galexObservations(ctx context.Context, ra, dec float64) ([]string, error) {
	var rows []mastObservation
	err := c.mastInvoke(ctx, "Mast.Caom.Cone", map[string]any{
		"ra":     ra,
		"dec":    dec,
		"radius": galexSearchRadius,
	}, &rows)
	if err != nil {
		return nil, fmt.Errorf("searching mast observations : %w", err)
	}

	var ids []string
	for _, row := range rows {
		if row.Collection == "GALEX" {
			ids = append(ids, fmt.Sprintf("%.0f", row.ObsID))
		}
	}

	return ids, nil
}

// galexNUVProduct returns the science product holding the first NUV intensity
// map of the given observations.
func (c *Client) galexNUVProduct(ctx context.Context, ids []string) (*mastProduct, error) {
	var rows []mastProduct
	err := c.mastInvoke(ctx, "Mast.Caom.Products", map[string]any{
		"obsid": strings.Join(ids, ","),
	}, &rows)
	if err != nil {
		return nil, fmt.Errorf("listing mast products : %w", err)
	}

	for i, row := range rows {
		if row.Type == "SCIENCE" && strings.Contains(row.Filename, "nd-int") {
			return &rows[i], nil
		}
	}

	return nil, fmt.Errorf("no NUV intensity map offered : %w", ErrNoCoverage)
}

// FetchGalexNUV downloads the GALEX NUV frame covering the position, cuts the
// requested field out of it and caches the cutout. The frames are full
// pointings, only the trimmed cutout is kept.
func (c *Client) FetchGalexNUV(ctx context.Context, galaxy string, ra, dec float64, sizeArcsec float64) (string, error) {
	name := fmt.Sprintf("%s-galex-nuv.fits", galaxy)
	path, err := c.cachePath(name)
	if err != nil {
		return "", err
	}

	if cached(path) {
		return path, nil
	}

	ids, err := c.galexObservations(ctx, ra, dec)
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", fmt.Errorf("no GALEX observations at %.5f %+.5f : %w", ra, dec, ErrNoCoverage)
	}

	product, err := c.galexNUVProduct(ctx, ids)
	if err != nil {
		return "", err
	}

	endpoint := c.baseURL(domain.SurveyGalex, MASTBaseURL) + "/api/v0.1/Download/file?uri=" + url.QueryEscape(product.URI)
	body, _, err := c.fetch(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("downloading %s : %w", product.Filename, err)
	}

	// The archive stores the frames gzipped and serves them as they are.
	if strings.HasSuffix(product.Filename, ".gz") {
		if body, err = decode(body, "gzip"); err != nil {
			return "", fmt.Errorf("inflating %s : %w", product.Filename, err)
		}
	}

	file, err := fits.Read(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("reading %s : %w", product.Filename, err)
	}

	frame, wcs, err := galexFrame(file)
	if err != nil {
		return "", fmt.Errorf("reading %s : %w", product.Filename, err)
	}

	x, y, err := wcs.WorldToPix(ra, dec)
	if err != nil {
		return "", fmt.Errorf("locating cutout center : %w", err)
	}

	// Pixel coordinates are 1 based in the sky solution, array indices are not.
	sizePix := int(math.Round(sizeArcsec / 3600 / wcs.PixScale()))
	cut, err := frame.Cutout(int(math.Round(x))-1, int(math.Round(y))-1, sizePix)
	if err != nil {
		return "", fmt.Errorf("cutting NUV frame : %w", err)
	}

	out := fits.NewImageFile(cut)
	out.Primary().Header.SetStr("OBJECT", galaxy, "galaxy identifier")
	out.Primary().Header.SetStr("SURVEY", domain.SurveyGalex, "source archive")

	if err := out.WriteFile(path); err != nil {
		return "", err
	}

	return path, nil
}

// galexFrame finds the intensity image and its sky solution in the downloaded
// frame. GALEX serves the map either in the primary unit or the first
// extension.
func galexFrame(file *fits.File) (*fits.Image, *fits.WCS, error) {
	for _, hdu := range file.HDUs {
		if hdu.Image == nil {
			continue
		}

		wcs, err := fits.NewWCS(hdu.Header)
		if err != nil {
			continue
		}

		return hdu.Image, wcs, nil
	}

	return nil, nil, fmt.Errorf("frame carries no image with a sky solution")
}
