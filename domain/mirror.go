package domain

// MirrorRepository defines the interface for managing Mirrors, which are per-survey endpoint overrides.
// Survey is one of the survey service identifiers and override is a base URL.
type MirrorRepository interface {
	// GetMirrors retrieves all configured mirrors from the repository.
	GetMirrors() ([]*Mirror, error)

	// CreateOrUpdateMirror creates a new mirror or updates an existing one.
	// If a mirror for the given survey already exists, its override value will be updated.
	CreateOrUpdateMirror(survey string, override string) error

	// DeleteMirror removes the mirror associated with the specified survey.
	// It returns an error if no mirror is configured for that survey.
	DeleteMirror(survey string) error
}

// Mirror represents a survey endpoint override.
// It maps a survey service identifier (Survey) to an alternate base URL (Override).
// When a client builds a request for that survey, the Override base URL is used
// in place of the built-in endpoint. VizieR in particular runs several mirrors
// and a closer one can cut catalog query latency considerably.
type Mirror struct {
	Survey   string // The survey service identifier to match when building requests.
	Override string // The alternate base URL the request will be issued against.
}
