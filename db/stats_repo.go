package db

import (
	"fmt"

	"github.com/tfkr-ae/azimuth/domain"
)

var _ domain.StatsRepository = (*Repository)(nil)

// CountRuns returns the total number of calibration runs stored in the repository.
func (repo *Repository) CountRuns() (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM run`

	err := repo.dbConn.Get(&count, query)
	if err != nil {
		return 0, fmt.Errorf("getting run count: %w", err)
	}

	return count, nil
}

// CountCompleted returns the number of runs that finished with a fitted zero point.
func (repo *Repository) CountCompleted() (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM run WHERE status = 'complete' AND zp IS NOT NULL`

	err := repo.dbConn.Get(&count, query)
	if err != nil {
		return 0, fmt.Errorf("getting completed count: %w", err)
	}

	return count, nil
}

// CountCampaigns returns the total number of created campaigns.
func (repo *Repository) CountCampaigns() (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM campaign`

	err := repo.dbConn.Get(&count, query)
	if err != nil {
		return 0, fmt.Errorf("getting campaign count: %w", err)
	}

	return count, nil
}

// CountCutouts returns the total number of cached survey cutouts.
func (repo *Repository) CountCutouts() (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM cutout`

	err := repo.dbConn.Get(&count, query)
	if err != nil {
		return 0, fmt.Errorf("getting cutout count: %w", err)
	}

	return count, nil
}

// dbSurveyBytes holds one row of the per-survey cache size aggregation.
type dbSurveyBytes struct {
	Survey string `db:"survey"`
	Bytes  int64  `db:"bytes"`
}

// BytesBySurvey returns the total cached cutout bytes grouped by survey.
func (repo *Repository) BytesBySurvey() (map[string]int64, error) {
	var rows []dbSurveyBytes
	query := `SELECT survey, SUM(bytes) AS bytes FROM cutout GROUP BY survey`

	err := repo.dbConn.Select(&rows, query)
	if err != nil {
		return nil, fmt.Errorf("getting bytes by survey: %w", err)
	}

	sizes := make(map[string]int64, len(rows))
	for _, row := range rows {
		sizes[row.Survey] = row.Bytes
	}

	return sizes, nil
}
