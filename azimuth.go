// Package azimuth provides a photometric zero-point calibration pipeline with
// multi-survey cutout retrieval, Lua extension support, and SQLite archive storage.
// It is designed to be decoupled from frontend implementations and provides
// methods to load handlers for building reduction tools, observing-night batch
// jobs, and archive inspection applications.
//
// The core functionality includes:
//   - Zero-point calibration of reduced images against the Pan-STARRS DR1 catalog
//   - Multi-survey cutout retrieval (Legacy Surveys, unWISE, GALEX) with disk caching
//   - Lua-based extension system for star filtering and run inspection
//   - SQLite archive storage for runs, fits, matched stars, fetches and cutouts
//   - Scope-based selection system for batch processing
//   - SAOImage DS9 integration for inspecting calibrated images
//   - Campaign system for organizing an observing night's runs
package azimuth

import (
	"fmt"
	"log"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tfkr-ae/azimuth/domain"
	"github.com/tfkr-ae/azimuth/extensions"
	"github.com/tfkr-ae/azimuth/scope"
	"github.com/tfkr-ae/azimuth/sextractor"
	"github.com/tfkr-ae/azimuth/survey"
	"github.com/tfkr-ae/azimuth/trace"
	"github.com/tfkr-ae/azimuth/vizier"
)

// Repository defines the methods consumed by the pipeline to interact with the
// SQLite archive. It composes the repository interfaces of the domain package,
// one per concern, so a single connection serves run storage, fetch provenance,
// cutout caching, extension management, logging and configuration.
type Repository interface {
	domain.CalibrationRepository
	domain.FetchRepository
	domain.CutoutRepository
	domain.CampaignRepository
	domain.MirrorRepository
	domain.LogRepository
	domain.ExtensionRepository
	domain.ConfigRepository
	domain.StatsRepository
	Close() error
}

// ArchiveItem is an interface for items that can be written to the archive through
// the ArchiveChannel. This interface is implemented by domain.FetchRequest,
// domain.FetchResponse, domain.CampaignRun, and domain.Log.
type ArchiveItem interface {
	// GetType returns a string identifier for the type of archive item.
	GetType() string
}

// Event is one progress notification emitted while a pipeline operation runs.
// Frontends subscribe through WithEventHandler and render the stages as they
// arrive.
type Event struct {
	RunID   uuid.UUID // Run the event belongs to, zero for operations outside a run
	Stage   string    // Stage identifier (extract, query, match, fit, header, figures, fetch, compose)
	Message string    // Human-readable progress line
}

// Pipeline is the main struct that orchestrates all calibration functionality
// including zero-point runs, cutout retrieval, extension management, and archive
// operations. It serves as the central coordinator for the Azimuth pipeline.
type Pipeline struct {
	ConfigDir      string                               // The configuration directory (defaults to the azimuth folder under the user configuration directory)
	Config         *Config                              // The azimuth pipeline configuration (separate from any frontend config)
	Repo           Repository                           // Archive Repository Interface
	ArchiveChannel chan ArchiveItem                     // Archive Write Channel
	OnEvent        func(event Event) error              // Function to be ran on each progress event - used by the CLI to print stage lines
	OnFetch        func(res domain.FetchResponse) error // Function to be ran on each recorded fetch - used by frontends to watch archive traffic
	OnLog          func(log domain.Log) error           // Function to be ran on each log entry
	Client         *http.Client                         // HTTP Client shared by the catalog and cutout fetchers (recording transport)
	Extensions     []*extensions.Runtime                // Slice of loaded extensions
	Scope          *scope.Scope                         // Batch selection configuration through the scope rules
	Mirrors        map[string]string                    // Map of survey base URL overrides
	Extractor      *sextractor.Extractor                // Source Extractor wrapper, bound lazily on the first run
}

// New creates a new Pipeline instance with default configuration and applies any
// provided options. It initializes the archive write channel, the extensions
// slice, the recording HTTP client, the scope, and the mirror overrides.
//
// Parameters:
//   - options: Variadic list of option functions to configure the pipeline
//
// Returns:
//   - *Pipeline: Configured pipeline instance
//   - error: Configuration error if any option fails
func New(options ...func(*Pipeline) error) (*Pipeline, error) {
	pipeline := &Pipeline{
		ArchiveChannel: make(chan ArchiveItem, 10),
		Extensions:     make([]*extensions.Runtime, 0),
		Scope:          scope.NewScope(true),
		Mirrors:        make(map[string]string),
	}
	pipeline.Client = &http.Client{
		Transport: newRecordingTransport(pipeline),
		Timeout:   120 * time.Second,
	}
	err := pipeline.WithOptions(options...)
	if err != nil {
		return nil, err
	}
	return pipeline, nil
}

// Surveys returns a cutout client that caches under the configuration directory
// and honors the synced mirror overrides.
func (pipeline *Pipeline) Surveys(cacheDir string) *survey.Client {
	client := survey.NewClient(pipeline.Client, cacheDir)
	client.Mirrors = pipeline.Mirrors
	return client
}

// Vizier returns a catalog client running over the recording transport and
// honoring a configured VizieR mirror.
func (pipeline *Pipeline) Vizier() *vizier.Client {
	client := vizier.NewClient(pipeline.Client)
	if base, ok := pipeline.Mirrors[domain.SurveyVizieR]; ok && base != "" {
		client.BaseURL = strings.TrimRight(base, "/")
	}
	return client
}

// SyncMirrors loads the survey endpoint overrides from the archive into the
// pipeline. Fetch clients built afterwards pick the overrides up.
func (pipeline *Pipeline) SyncMirrors() error {
	mirrors, err := pipeline.Repo.GetMirrors()
	if err != nil {
		pipeline.WriteLog("INFO", err.Error())
	}
	overrides := make(map[string]string)
	for _, mirror := range mirrors {
		overrides[mirror.Survey] = mirror.Override
	}
	pipeline.Mirrors = overrides
	return nil
}

// GetExtension returns the loaded extension runtime with the given name.
func (pipeline *Pipeline) GetExtension(name string) (*extensions.Runtime, bool) {
	for _, ext := range pipeline.Extensions {
		if ext.Data.Name == name {
			return ext, true
		}
	}
	return nil, false
}

// LoadExtensions builds a runtime for every enabled extension in the archive and
// prepares its Lua state. Extensions already loaded keep their state.
func (pipeline *Pipeline) LoadExtensions(options ...func(*extensions.Runtime) error) error {
	if pipeline.Repo == nil {
		return fmt.Errorf("pipeline does not have a repo defined")
	}
	exts, err := pipeline.Repo.GetExtensions()
	if err != nil {
		return fmt.Errorf("getting extensions : %w", err)
	}
	for _, ext := range exts {
		if !ext.Enabled {
			continue
		}
		if _, ok := pipeline.GetExtension(ext.Name); ok {
			continue
		}
		runtime := &extensions.Runtime{Data: ext}
		if err := runtime.PrepareState(pipeline, options); err != nil {
			return fmt.Errorf("preparing extension %s : %w", ext.Name, err)
		}
		pipeline.Extensions = append(pipeline.Extensions, runtime)
	}
	return nil
}

// InstallExtension downloads the latest release of an extension from its GitHub
// repository and stores it in the archive. The extension is enabled but not
// loaded, LoadExtensions picks it up on the next start.
func (pipeline *Pipeline) InstallExtension(url string) error {
	if pipeline.Repo == nil {
		return fmt.Errorf("pipeline does not have a repo defined")
	}
	release, config, err := GetLatestRelease(url)
	if err != nil {
		return fmt.Errorf("getting latest release %s : %w", url, err)
	}
	luaAsset, err := getAsset(release.Assets, "extension.lua")
	if err != nil {
		return fmt.Errorf("getting lua asset : %w", err)
	}
	luaCode, err := Get(luaAsset.BrowserDownloadURL)
	if err != nil {
		return fmt.Errorf("getting extension.lua : %w", err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generating new uuid : %w", err)
	}
	extension := &domain.Extension{
		ID:          id,
		Name:        config.Name,
		SourceURL:   config.SourceURL,
		Author:      config.Author,
		LuaContent:  luaCode,
		Enabled:     true,
		Description: config.Description,
		UpdatedAt:   release.PublishedAt,
	}
	if err := pipeline.Repo.InsertExtension(extension); err != nil {
		return fmt.Errorf("creating extension : %w", err)
	}
	return nil
}

// GetConfigDir hands the configuration directory to extension runtimes.
func (pipeline *Pipeline) GetConfigDir() (string, error) {
	if pipeline.ConfigDir == "" {
		return "", fmt.Errorf("pipeline does not have a config dir defined")
	}
	return pipeline.ConfigDir, nil
}

// GetScope hands the selection scope to extension runtimes.
func (pipeline *Pipeline) GetScope() (*scope.Scope, error) {
	if pipeline.Scope == nil {
		return nil, fmt.Errorf("pipeline does not have a scope defined")
	}
	return pipeline.Scope, nil
}

// GetExtensionRepo hands the extension repository to extension runtimes.
func (pipeline *Pipeline) GetExtensionRepo() (domain.ExtensionRepository, error) {
	if pipeline.Repo == nil {
		return nil, fmt.Errorf("pipeline does not have a repo defined")
	}
	return pipeline.Repo, nil
}

// GetCalibrationRepo hands the calibration repository to extension runtimes.
func (pipeline *Pipeline) GetCalibrationRepo() (domain.CalibrationRepository, error) {
	if pipeline.Repo == nil {
		return nil, fmt.Errorf("pipeline does not have a repo defined")
	}
	return pipeline.Repo, nil
}

// Metadata represents a flexible key-value store for additional data associated
// with fetches and runs, carried through request contexts into the archive.
type Metadata map[string]any

// copyMetadata clones a metadata map for an archive row.
func copyMetadata(metadata Metadata) map[string]any {
	copied := make(map[string]any, len(metadata)+1)
	for key, value := range metadata {
		copied[key] = value
	}
	return copied
}

// NewFetchRequest builds the archive row for an outgoing archive request. The
// survey identifier, metadata, and request time are taken from the request
// context, the wire bytes from a trace dump.
func NewFetchRequest(req *http.Request, fetchId uuid.UUID) (*domain.FetchRequest, error) {
	if metadata, ok := MetadataFromContext(req.Context()); ok {
		requestTime, ok := RequestTimeFromContext(req.Context())
		if !ok {
			return nil, fmt.Errorf("timestamp not found for this context")
		}

		surveyName, ok := SurveyFromContext(req.Context())
		if !ok {
			surveyName = "unknown"
		}

		host := req.URL.Host
		if host == "" {
			host = req.Host
		}

		path := req.URL.Path
		if req.URL.RawQuery != "" {
			path = fmt.Sprintf("%s?%s", path, req.URL.RawQuery)
		}
		// The context map may be shared across concurrent fetches, the row
		// gets its own copy so the archive writer never races the next fetch.
		fetchRequest := &domain.FetchRequest{
			ID:          fetchId,
			Survey:      surveyName,
			Scheme:      req.URL.Scheme,
			Method:      req.Method,
			Host:        host,
			Path:        path,
			Metadata:    copyMetadata(metadata),
			RequestedAt: requestTime,
		}
		dump, err := trace.Request(req)
		if err != nil {
			return nil, fmt.Errorf("dumping request %s : %w", fetchId, err)
		}
		fetchRequest.Raw = domain.RawField(dump.Raw)
		if dump.Pretty != "" {
			fetchRequest.Metadata["prettified-request"] = dump.Pretty
		}
		return fetchRequest, nil
	}
	return nil, fmt.Errorf("metadata not set")
}

// parseContentType tries to parse the content type header and returns an error if parsing fails
func parseContentType(header string) (string, error) {
	if header == "" {
		return "", fmt.Errorf("empty content type header")
	}

	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return "", fmt.Errorf("parsing content type '%s': %w", header, err)
	}

	return strings.ToLower(mediaType), nil
}

// binaryContent reports whether a payload stays out of the archive raw field.
// Cutout bodies land in the file cache, only the response head is archived.
func binaryContent(contentType string) bool {
	switch contentType {
	case "application/fits", "application/octet-stream", "application/gzip",
		"application/x-gzip", "application/x-tar":
		return true
	}
	return strings.HasPrefix(contentType, "image/")
}

// NewFetchResponse builds the archive row for a received archive response. The
// fetch ID, metadata, and response time are taken from the request context. For
// binary payloads only the response head is captured, the body is left on the
// wire for the caller to stream into the cutout cache.
func NewFetchResponse(res *http.Response) (*domain.FetchResponse, error) {
	fetchId, ok := FetchIDFromContext(res.Request.Context())
	if !ok {
		return nil, fmt.Errorf("fetch id not found in context")
	}

	responseTime, ok := ResponseTimeFromContext(res.Request.Context())
	if !ok {
		return nil, fmt.Errorf("timestamp not found for this context")
	}

	// Handle redirects specifically
	var contentType string
	if res.StatusCode >= 300 && res.StatusCode < 400 {
		contentType = "text/plain" // Redirects are just text
	} else {
		// Default for non-redirects
		contentType = "application/octet-stream"
		if ct := res.Header.Get("Content-Type"); ct != "" {
			if parsedType, err := parseContentType(ct); err == nil {
				contentType = parsedType
			} else {
				log.Printf("warning: %v, using default", err)
			}
		}
	}

	metadata, ok := MetadataFromContext(res.Request.Context())
	if !ok {
		metadata = make(Metadata)
	}

	fetchResponse := &domain.FetchResponse{
		ID:          fetchId,
		Status:      res.Status,
		StatusCode:  res.StatusCode,
		ContentType: contentType,
		Length:      res.Header.Get("Content-Length"),
		Metadata:    copyMetadata(metadata),
		RespondedAt: responseTime,
	}

	if binaryContent(contentType) {
		head, err := trace.ResponseHead(res)
		if err != nil {
			return nil, fmt.Errorf("dumping response %s : %w", fetchId, err)
		}
		fetchResponse.Raw = domain.RawField(head)
		return fetchResponse, nil
	}

	dump, err := trace.Response(res)
	if err != nil {
		return nil, fmt.Errorf("dumping response %s : %w", fetchId, err)
	}
	fetchResponse.Raw = domain.RawField(dump.Raw)
	if dump.Pretty != "" {
		fetchResponse.Metadata["prettified-response"] = dump.Pretty
	}
	return fetchResponse, nil
}

// WriteToArchive drains the archive channel into the repository. It is started
// as a goroutine by the frontends and runs until the channel is closed.
func (pipeline *Pipeline) WriteToArchive() {
	for archiveItem := range pipeline.ArchiveChannel {
		switch castItem := archiveItem.(type) {
		case *domain.FetchRequest:
			err := pipeline.Repo.InsertRequest(castItem)
			if err != nil {
				log.Println(err)
			}
		case *domain.FetchResponse:
			err := pipeline.Repo.InsertResponse(castItem)
			if err != nil {
				log.Println(err)
			}
			if pipeline.OnFetch != nil {
				if err := pipeline.OnFetch(*castItem); err != nil {
					log.Println(err)
				}
			}
		case domain.CampaignRun:
			err := pipeline.Repo.LinkRunToCampaign(castItem.RunID, castItem.CampaignID)
			if err != nil {
				log.Println(err)
			}
		case domain.Log:
			err := pipeline.Repo.InsertLog(&castItem)
			if err != nil {
				log.Print(err)
			}
			if pipeline.OnLog != nil {
				if err := pipeline.OnLog(castItem); err != nil {
					log.Print(err)
				}
			}
		default:
			log.Print(castItem)
		}
	}
}

// WriteLog validates the level, stamps the entry, applies the options, and
// queues it on the archive channel.
func (pipeline *Pipeline) WriteLog(level string, message string, options ...func(log *domain.Log) error) error {
	switch level {
	case "DEBUG":
	case "INFO":
	case "WARN":
	case "ERROR":
	case "FATAL":
	default:
		return fmt.Errorf("level should be either: debug, info, warn, error, fatal")
	}
	uuid, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generating new uuid : %w", err)
	}
	entry := domain.Log{
		ID:        uuid,
		Level:     level,
		Message:   message,
		Timestamp: time.Now(),
	}
	for _, option := range options {
		err := option(&entry)
		if err != nil {
			return fmt.Errorf("applying log option : %w", err)
		}
	}
	pipeline.ArchiveChannel <- entry
	return nil
}

// emit delivers a progress event to the frontend handler if one is set.
func (pipeline *Pipeline) emit(runId uuid.UUID, stage string, format string, args ...any) {
	if pipeline.OnEvent == nil {
		return
	}
	event := Event{RunID: runId, Stage: stage, Message: fmt.Sprintf(format, args...)}
	if err := pipeline.OnEvent(event); err != nil {
		log.Println(err)
	}
}

// Close releases the archive repository.
func (pipeline *Pipeline) Close() error {
	if pipeline.Repo != nil {
		return pipeline.Repo.Close()
	}
	return nil
}
