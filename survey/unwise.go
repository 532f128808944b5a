package survey

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/tfkr-ae/azimuth/domain"
)

// UnwiseVersion is the coadd release the cutout service draws from.
const UnwiseVersion = "allwise"

// unwiseFilesPerBand is how many files one band contributes per tile, the
// intensity map plus its inverse variance, coverage and deviation companions.
const unwiseFilesPerBand = 4

// FetchUnwise downloads the WISE band cutouts for the position. Bands is a
// digit string, "1234" requests all four. The service answers with a tarball
// covering every requested band, members are unpacked into the cache under
// the galaxy identifier. It returns the intensity map paths and whether the
// position straddles more than one coadd tile.
func (c *Client) FetchUnwise(ctx context.Context, galaxy string, ra, dec float64, sizePix int, bands string) ([]string, bool, error) {
	if _, err := c.cachePath(""); err != nil {
		return nil, false, err
	}

	if images, err := c.cachedUnwise(galaxy); err != nil {
		return nil, false, err
	} else if len(images) >= len(bands) {
		return images, len(images) > len(bands), nil
	}

	params := url.Values{}
	params.Set("version", UnwiseVersion)
	params.Set("ra", fmt.Sprintf("%.5f", ra))
	params.Set("dec", fmt.Sprintf("%.5f", dec))
	params.Set("size", fmt.Sprintf("%d", sizePix))
	params.Set("bands", bands)
	endpoint := c.baseURL(domain.SurveyUnwise, UnwiseBaseURL) + "/cutout_fits?" + params.Encode()

	body, _, err := c.fetch(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, fmt.Errorf("downloading unwise cutouts : %w", err)
	}

	members, images, err := c.unpackUnwise(galaxy, body)
	if err != nil {
		return nil, false, err
	}

	if len(images) == 0 {
		return nil, false, fmt.Errorf("unwise answered without intensity maps : %w", ErrNoCoverage)
	}

	multiframe := members > unwiseFilesPerBand*len(bands)

	return images, multiframe, nil
}

// cachedUnwise returns the intensity maps already unpacked for the galaxy.
func (c *Client) cachedUnwise(galaxy string) ([]string, error) {
	pattern := filepath.Join(c.CacheDir, galaxy+"-unwise-*-img-m.fits")
	images, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("scanning unwise cache : %w", err)
	}

	return images, nil
}

// unpackUnwise extracts the cutout tarball into the cache, prefixing member
// names with the galaxy identifier and inflating gzipped members. It returns
// the total member count and the intensity map paths.
func (c *Client) unpackUnwise(galaxy string, body []byte) (int, []string, error) {
	gz, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("opening unwise tarball : %w", err)
	}
	defer gz.Close()

	archive := tar.NewReader(gz)
	members := 0
	var images []string

	for {
		header, err := archive.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, nil, fmt.Errorf("reading unwise tarball : %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		content, err := io.ReadAll(archive)
		if err != nil {
			return 0, nil, fmt.Errorf("reading unwise member %s : %w", header.Name, err)
		}

		name := filepath.Base(header.Name)
		if strings.HasSuffix(name, ".gz") {
			content, err = decode(content, "gzip")
			if err != nil {
				return 0, nil, fmt.Errorf("inflating unwise member %s : %w", name, err)
			}
			name = strings.TrimSuffix(name, ".gz")
		}

		path := filepath.Join(c.CacheDir, galaxy+"-"+name)
		if err := os.WriteFile(path, content, 0o644); err != nil {
			return 0, nil, fmt.Errorf("caching unwise member %s : %w", name, err)
		}

		members++
		if strings.Contains(name, "img") {
			images = append(images, path)
		}
	}

	return members, images, nil
}

// UnwiseBand extracts the wN band tag from an unpacked intensity map path,
// or an empty string when the path carries none.
func UnwiseBand(path string) string {
	for _, band := range []string{"w1", "w2", "w3", "w4"} {
		if strings.Contains(filepath.Base(path), "-"+band+"-") {
			return band
		}
	}

	return ""
}
