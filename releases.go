package azimuth

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// GitHubAsset represents an asset attached to a GitHub release.
type GitHubAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
	ContentType        string `json:"content_type"`
}

// GitHubRelease represents a GitHub release.
type GitHubRelease struct {
	TagName     string        `json:"tag_name"`
	Name        string        `json:"name"`
	PublishedAt time.Time     `json:"published_at"`
	URL         string        `json:"html_url"`
	Assets      []GitHubAsset `json:"assets"` // Assets attached to the release
}

// ExtensionConfig describes an extension release, read from its config.yaml
// asset.
type ExtensionConfig struct {
	Name        string `yaml:"name"`
	Author      string `yaml:"author"`
	SourceURL   string `yaml:"source_url"`
	Description string `yaml:"description"`
}

// getAsset finds a release asset by file name.
func getAsset(assets []GitHubAsset, name string) (GitHubAsset, error) {
	for _, asset := range assets {
		if name == asset.Name {
			return asset, nil
		}
	}
	return GitHubAsset{}, fmt.Errorf("finding asset with name %s", name)
}

// Get fetches a URL and returns the body as a string.
func Get(url string) (string, error) {
	res, err := http.Get(url)
	if err != nil {
		return "", fmt.Errorf("getting %s : %w", url, err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("reading resp body : %w", err)
	}
	return string(body), nil
}

// ExtractAuthorRepo extracts the author/repo format from a GitHub URL.
func ExtractAuthorRepo(githubURL string) (string, error) {
	parsedURL, err := url.Parse(githubURL)
	if err != nil {
		return "", err
	}

	if parsedURL.Host != "github.com" {
		return "", fmt.Errorf("not a valid GitHub URL")
	}

	parts := strings.Split(strings.Trim(parsedURL.Path, "/"), "/")
	if len(parts) < 2 {
		return "", fmt.Errorf("URL path is not in the expected format")
	}

	return fmt.Sprintf("%s/%s", parts[0], parts[1]), nil
}

// GetConfig fetches and decodes the config.yaml asset of a release.
func GetConfig(url string) (cfg ExtensionConfig, err error) {
	res, err := http.Get(url)
	if err != nil {
		return cfg, fmt.Errorf("getting %s : %w", url, err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return cfg, fmt.Errorf("reading resp body : %w", err)
	}
	if err := yaml.Unmarshal(body, &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshalling yaml : %w", err)
	}
	return cfg, nil
}

// GetLatestRelease resolves the newest release of an extension repository and
// the config.yaml describing it.
func GetLatestRelease(repo string) (release GitHubRelease, config ExtensionConfig, err error) {
	authorRepo, err := ExtractAuthorRepo(repo)
	if err != nil {
		return release, config, fmt.Errorf("parsing author/repo from url %s : %w", repo, err)
	}

	url := fmt.Sprintf("https://api.github.com/repos/%s/releases", authorRepo)
	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return release, config, fmt.Errorf("creating request : %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := client.Do(req)
	if err != nil {
		return release, config, fmt.Errorf("getting release for %s : %w", repo, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return release, config, fmt.Errorf("github api failed with status %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return release, config, fmt.Errorf("reading body : %w", err)
	}

	var releases []GitHubRelease
	if err := json.Unmarshal(body, &releases); err != nil {
		return release, config, fmt.Errorf("unmarshalling release: %w", err)
	}
	if len(releases) == 0 {
		return release, config, fmt.Errorf("no releases published for %s", repo)
	}

	release = releases[0]
	configAsset, err := getAsset(release.Assets, "config.yaml")
	if err != nil {
		return release, config, fmt.Errorf("no config found for release : %w", err)
	}
	config, err = GetConfig(configAsset.BrowserDownloadURL)
	if err != nil {
		return release, config, fmt.Errorf("error fetching config from url %s : %w", configAsset.BrowserDownloadURL, err)
	}
	return release, config, nil
}
