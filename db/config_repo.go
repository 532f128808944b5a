package db

import (
	"encoding/json"
	"fmt"

	"github.com/tfkr-ae/azimuth/domain"
)

var _ domain.ConfigRepository = (*Repository)(nil)

// UpdateViewerPath implements the domain.ConfigRepository interface.
// It updates the FITS viewer executable path in the 'app' table of the database.
func (repo *Repository) UpdateViewerPath(path string) error {
	query := `UPDATE app SET viewer_path = ?`
	_, err := repo.dbConn.Exec(query, path)

	if err != nil {
		return fmt.Errorf("updating viewer path %s: %w", path, err)
	}

	return nil
}

// GetSurveys implements the domain.ConfigRepository interface.
// It retrieves the enabled cutout surveys from the 'app' table,
// which are stored as a JSON string, and unmarshals them into a slice of strings.
func (repo *Repository) GetSurveys() ([]string, error) {
	var surveysString string
	query := `SELECT surveys FROM app LIMIT 1`
	err := repo.dbConn.Get(&surveysString, query)

	if err != nil {
		return nil, fmt.Errorf("getting surveys: %w", err)
	}

	var surveys []string
	err = json.Unmarshal([]byte(surveysString), &surveys)

	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal surveys JSON: %w", err)
	}

	return surveys, nil
}

// SetSurveys implements the domain.ConfigRepository interface.
// It marshals the provided slice of survey names into a JSON string
// and updates the 'surveys' column in the 'app' table.
func (repo *Repository) SetSurveys(surveys []string) error {
	marshalledSurveys, err := json.Marshal(surveys)
	if err != nil {
		return fmt.Errorf("failed to marshal surveys: %w", err)
	}

	query := `UPDATE app SET surveys = ?`
	_, err = repo.dbConn.Exec(query, marshalledSurveys)

	if err != nil {
		return fmt.Errorf("failed to update surveys: %w", err)
	}

	return nil
}
