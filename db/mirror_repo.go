package db

import (
	"errors"
	"fmt"

	"github.com/tfkr-ae/azimuth/domain"
)

var _ domain.MirrorRepository = (*Repository)(nil)

var (
	// ErrNoMirrorForSurvey is returned when a mirror is not found for a given survey.
	ErrNoMirrorForSurvey = errors.New("survey has no mirror configured")
)

// dbMirror represents a mirror as stored in the database.
type dbMirror struct {
	Survey   string `db:"survey"`   // The survey service identifier to match when building requests.
	Override string `db:"override"` // The alternate base URL.
}

// toDomainMirror converts a dbMirror to a domain.Mirror.
func toDomainMirror(dbMirror *dbMirror) *domain.Mirror {
	return &domain.Mirror{
		Survey:   dbMirror.Survey,
		Override: dbMirror.Override,
	}
}

// GetMirrors retrieves all configured mirrors from the database.
func (repo *Repository) GetMirrors() ([]*domain.Mirror, error) {
	var dbMirrors []*dbMirror
	query := `SELECT survey, override FROM mirror`

	err := repo.dbConn.Select(&dbMirrors, query)
	if err != nil {
		return nil, fmt.Errorf("retrieving mirrors: %w", err)
	}

	domainMirrors := make([]*domain.Mirror, len(dbMirrors))
	for i, dbMirror := range dbMirrors {
		domainMirrors[i] = toDomainMirror(dbMirror)
	}

	return domainMirrors, nil
}

// CreateOrUpdateMirror creates a new mirror or updates an existing one.
func (repo *Repository) CreateOrUpdateMirror(survey string, override string) error {
	query := `INSERT INTO mirror(survey, override)
		      VALUES (?, ?)
		      ON CONFLICT(survey) DO UPDATE SET override=excluded.override`

	_, err := repo.dbConn.Exec(query, survey, override)
	if err != nil {
		return fmt.Errorf("creating or updating mirror for %s: %w", survey, err)
	}

	return nil
}

// DeleteMirror removes the mirror associated with the specified survey.
func (repo *Repository) DeleteMirror(survey string) error {
	query := `DELETE FROM mirror WHERE survey = ?`

	result, err := repo.dbConn.Exec(query, survey)
	if err != nil {
		return fmt.Errorf("deleting mirror for %s: %w", survey, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking deletion rows affected for %s: %w", survey, err)
	}

	if rowsAffected == 0 {
		return ErrNoMirrorForSurvey
	}

	return nil
}
