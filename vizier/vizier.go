// Package vizier queries reference star catalogs through the VizieR TAP-lite
// votable service. Only the Pan-STARRS DR1 mean photometry catalog is wired
// up, which is what the zero-point solution calibrates against.
package vizier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/tfkr-ae/azimuth/domain"
)

// DefaultBaseURL is the primary VizieR service in Strasbourg. Mirrors can be
// configured per archive through the mirror repository.
const DefaultBaseURL = "https://vizier.u-strasbg.fr"

// PS1Catalog is the VizieR identifier of the Pan-STARRS DR1 catalog.
const PS1Catalog = "II/349/ps1"

// MaxRows caps a catalog query.
const MaxRows = 10000

// BrightLimit drops faint catalog entries at query time, keeping the response
// small. Fainter stars carry too little weight in the fit to matter.
const BrightLimit = 20.0

// ErrEmptyCatalog is returned when the service answers with no table rows.
var ErrEmptyCatalog = errors.New("catalog query returned no stars")

// columns is the column set requested from the catalog, in response order.
var columns = []string{
	"objID", "RAJ2000", "DEJ2000", "e_RAJ2000", "e_DEJ2000", "Qual",
	"gmag", "e_gmag", "rmag", "e_rmag", "imag", "e_imag",
	"zmag", "e_zmag", "ymag", "e_ymag",
}

// Client queries VizieR over an injected HTTP client, so catalog calls carry
// the same provenance recording as every other survey fetch.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient returns a Client using the given HTTP client, falling back to a
// plain client with a generous timeout when nil is passed.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	return &Client{
		BaseURL:    DefaultBaseURL,
		HTTPClient: httpClient,
	}
}

// queryURL assembles the votable request for a box query around the field center.
func (client *Client) queryURL(field domain.Field) string {
	params := url.Values{}
	params.Set("-source", PS1Catalog)
	params.Set("-c", fmt.Sprintf("%.6f %+.6f", field.RA, field.Dec))
	params.Set("-c.bd", fmt.Sprintf("%.4f", field.Width))
	params.Set("-out.max", fmt.Sprintf("%d", MaxRows))
	params.Set("gmag", fmt.Sprintf("<%g", BrightLimit))
	for _, column := range columns {
		params.Add("-out", column)
	}

	return client.BaseURL + "/viz-bin/votable?" + params.Encode()
}

// QueryPS1 fetches the Pan-STARRS stars covering the field. Transient service
// failures are retried with a fibonacci backoff before giving up.
func (client *Client) QueryPS1(ctx context.Context, field domain.Field) ([]*domain.ReferenceStar, error) {
	endpoint := client.queryURL(field)

	var body []byte

	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(2*time.Second))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("building catalog request : %w", err)
		}

		resp, err := client.HTTPClient.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("querying vizier : %w", err))
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			io.Copy(io.Discard, resp.Body)
			return retry.RetryableError(fmt.Errorf("vizier answered %s", resp.Status))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("vizier answered %s", resp.Status)
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("reading votable : %w", err))
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	stars, err := parseVOTable(body)
	if err != nil {
		return nil, fmt.Errorf("parsing votable : %w", err)
	}

	if len(stars) == 0 {
		return nil, ErrEmptyCatalog
	}

	return stars, nil
}
