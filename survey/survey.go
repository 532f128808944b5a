// Package survey fetches image cutouts from the public sky survey archives.
// Legacy Surveys serves optical grz imaging, unWISE the WISE infrared coadds
// and MAST the GALEX ultraviolet frames. Downloads land in a file cache keyed
// by galaxy and survey, a file already in the cache is never fetched again.
package survey

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/sethvargo/go-retry"
	"github.com/tfkr-ae/azimuth/domain"
)

// Public endpoints of the cutout services. Every survey can be redirected to
// a mirror through the Mirrors map.
const (
	LegacyBaseURL = "https://www.legacysurvey.org"
	UnwiseBaseURL = "https://unwise.me"
	MASTBaseURL   = "https://mast.stsci.edu"
)

// Pixel scales of the cutout services in arcsec per pixel.
const (
	LegacyPixScale = 1.0
	UnwisePixScale = 2.75
)

// LegacyLayer is the Legacy Surveys imaging layer cutouts are drawn from.
const LegacyLayer = "dr8"

// ErrBlankCutout is returned when a service answers with an all zero image,
// which is how the Legacy viewer reports positions outside its footprint.
var ErrBlankCutout = errors.New("cutout contains no data")

// ErrNoCoverage is returned when no archive observation covers the position.
var ErrNoCoverage = errors.New("position not covered by the survey")

// Client fetches cutouts from the survey archives into a local cache
// directory. The zero value of Mirrors and Layer falls back to the public
// endpoints and the default imaging layer.
type Client struct {
	HTTPClient *http.Client
	CacheDir   string            // Downloaded cutouts land here
	Mirrors    map[string]string // Survey name to base URL override
	Layer      string            // Legacy Surveys layer
}

// NewClient returns a Client caching into the given directory. A nil HTTP
// client falls back to a plain client with a timeout sized for full frame
// archive downloads.
func NewClient(httpClient *http.Client, cacheDir string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}

	return &Client{
		HTTPClient: httpClient,
		CacheDir:   cacheDir,
		Layer:      LegacyLayer,
	}
}

// baseURL resolves the endpoint for a survey, honoring configured mirrors.
func (c *Client) baseURL(survey, fallback string) string {
	if base, ok := c.Mirrors[survey]; ok && base != "" {
		return strings.TrimRight(base, "/")
	}

	return fallback
}

// cachePath returns the cache location for a file, creating the cache
// directory on first use.
func (c *Client) cachePath(name string) (string, error) {
	if err := os.MkdirAll(c.CacheDir, 0o755); err != nil {
		return "", fmt.Errorf("creating cache dir : %w", err)
	}

	return filepath.Join(c.CacheDir, name), nil
}

// cached reports whether the file already exists in the cache.
func cached(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// fetch performs one archive request with a fibonacci backoff on transient
// failures. A nil form issues a GET, otherwise the form is posted urlencoded.
// The decoded body and its content type are returned.
func (c *Client) fetch(ctx context.Context, method, endpoint string, form url.Values) ([]byte, string, error) {
	var body []byte
	var contentType string

	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(2*time.Second))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var payload io.Reader
		if form != nil {
			payload = strings.NewReader(form.Encode())
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, payload)
		if err != nil {
			return fmt.Errorf("building archive request : %w", err)
		}
		if form != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("fetching from archive : %w", err))
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			io.Copy(io.Discard, resp.Body)
			return retry.RetryableError(fmt.Errorf("archive answered %s", resp.Status))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("archive answered %s", resp.Status)
		}

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("reading archive response : %w", err))
		}

		body, err = decode(raw, resp.Header.Get("Content-Encoding"))
		if err != nil {
			return err
		}
		contentType = resp.Header.Get("Content-Type")

		return nil
	})
	if err != nil {
		return nil, "", err
	}

	return body, contentType, nil
}

// decode reverses the transfer compression of a response body. Bodies that
// are compressed files in their own right, like the unWISE tarballs, carry no
// Content-Encoding and pass through untouched.
func decode(raw []byte, encoding string) ([]byte, error) {
	switch encoding {
	case "":
		return raw, nil
	case "gzip":
		reader, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("creating gzip reader: %w", err)
		}
		defer reader.Close()

		decoded, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("reading gzip content: %w", err)
		}

		return decoded, nil
	case "br":
		decoded, err := io.ReadAll(brotli.NewReader(bytes.NewReader(raw)))
		if err != nil {
			return nil, fmt.Errorf("reading brotli content : %w", err)
		}

		return decoded, nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %s", encoding)
	}
}

// download fetches the endpoint into the cache under the given name, skipping
// the request when the file is already present. The cache path is returned
// either way.
func (c *Client) download(ctx context.Context, survey, endpoint, name string) (string, error) {
	path, err := c.cachePath(name)
	if err != nil {
		return "", err
	}

	if cached(path) {
		return path, nil
	}

	body, _, err := c.fetch(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("downloading %s cutout : %w", survey, err)
	}

	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("caching %s cutout : %w", survey, err)
	}

	return path, nil
}

// Used to key mirrors and fetch attribution, re-exported so callers do not
// need the domain package for plain fetches.
const (
	Legacy = domain.SurveyLegacy
	Unwise = domain.SurveyUnwise
	Galex  = domain.SurveyGalex
)
