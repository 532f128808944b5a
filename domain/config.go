package domain

// ConfigRepository defines the interface for managing archive-level configuration settings.
// It provides methods to interact with persistent configuration data, such as viewer paths and survey selections.
type ConfigRepository interface {
	// UpdateViewerPath saves the resolved display tool executable path to a persistent configuration file.
	// The path is probed once on first use and reused afterwards,
	// ensuring images are always opened by the same viewer installation.
	UpdateViewerPath(path string) error

	// GetSurveys retrieves the list of currently enabled surveys from the archive's settings.
	// These selections are used by the composite figure to control which panels are rendered.
	// Note: This functionality may be relocated to a more report-specific configuration in the future.
	GetSurveys() ([]string, error)

	// SetSurveys updates the list of enabled surveys in the archive's settings.
	// This allows users to customize which panels appear in composite figures.
	// Note: This functionality may be relocated to a more report-specific configuration in the future.
	SetSurveys(surveys []string) error
}
