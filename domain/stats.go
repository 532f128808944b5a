package domain

// StatsRepository defines the interface for retrieving various statistics about the archive's data.
// It provides methods for counting different types of entities within the repository.
type StatsRepository interface {
	// CountRuns returns the total number of calibration runs stored in the archive.
	CountRuns() (int, error)
	// CountCompleted returns the number of runs that produced a zero point.
	CountCompleted() (int, error)
	// CountCampaigns returns the total number of created campaigns.
	CountCampaigns() (int, error)
	// CountCutouts returns the total number of cached cutouts.
	CountCutouts() (int, error)
	// BytesBySurvey returns the total cached cutout bytes grouped by survey.
	BytesBySurvey() (map[string]int64, error)
}
