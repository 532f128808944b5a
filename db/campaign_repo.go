package db

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/tfkr-ae/azimuth/domain"
)

var _ domain.CampaignRepository = (*Repository)(nil)

// dbCampaign represents a campaign as stored in the database.
type dbCampaign struct {
	ID          uuid.UUID `db:"id"`          // Unique identifier for the campaign.
	Name        string    `db:"name"`        // Name of the campaign.
	Description string    `db:"description"` // Description of the campaign.
}

// toDomainCampaign converts a dbCampaign to a domain.Campaign.
func toDomainCampaign(dbCampaign *dbCampaign) *domain.Campaign {
	return &domain.Campaign{
		ID:          dbCampaign.ID,
		Name:        dbCampaign.Name,
		Description: dbCampaign.Description,
	}
}

// GetCampaigns retrieves all campaigns from the database.
func (repo *Repository) GetCampaigns() ([]*domain.Campaign, error) {
	var dbCampaigns []*dbCampaign
	query := `SELECT * FROM campaign`

	err := repo.dbConn.Select(&dbCampaigns, query)
	if err != nil {
		return nil, fmt.Errorf("getting campaigns: %w", err)
	}

	domainCampaigns := make([]*domain.Campaign, len(dbCampaigns))
	for i, dbC := range dbCampaigns {
		domainCampaigns[i] = toDomainCampaign(dbC)
	}
	return domainCampaigns, nil
}

// CreateCampaign creates a new campaign in the database.
func (repo *Repository) CreateCampaign(name string, description string) (uuid.UUID, error) {
	campaignUUID, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generating uuid: %w", err)
	}

	query := `INSERT INTO campaign(id, name, description) VALUES (?,?,?)`

	_, err = repo.dbConn.Exec(query, campaignUUID, name, description)
	if err != nil {
		return uuid.Nil, fmt.Errorf("creating new campaign %s: %w", name, err)
	}

	return campaignUUID, nil
}

// UpdateCampaign updates an existing campaign in the database.
func (repo *Repository) UpdateCampaign(campaignID uuid.UUID, name, description string) error {
	query := `UPDATE campaign SET name = COALESCE(NULLIF(?, ''), name), description = COALESCE(NULLIF(?, ''), description) WHERE id = ?`

	result, err := repo.dbConn.Exec(query, name, description, campaignID)
	if err != nil {
		return fmt.Errorf("updating campaign: %w", err)
	}

	rowsAffected, err := result.RowsAffected()

	if err != nil {
		return fmt.Errorf("fetching rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("no campaign found with ID %s", campaignID)
	}

	return nil
}

// DeleteCampaign removes a campaign from the database.
func (repo *Repository) DeleteCampaign(campaignID uuid.UUID) error {
	query := `DELETE FROM campaign WHERE id = ?`

	result, err := repo.dbConn.Exec(query, campaignID)
	if err != nil {
		return fmt.Errorf("deleting campaign %s: %w", campaignID, err)
	}

	rowsAffected, err := result.RowsAffected()

	if err != nil {
		return fmt.Errorf("fetching rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("no campaign with id %s", campaignID)
	}

	return nil
}

// GetCampaignRuns retrieves all runs associated with a specific campaign.
func (repo *Repository) GetCampaignRuns(id uuid.UUID) ([]*domain.Run, error) {
	var dbRuns []*dbRun
	query := `SELECT r.id, r.image, r.instrument, r.filter, r.use_ri, r.mag_source, r.aperture,
		      r.nsigma, r.seeing, r.normalize, r.status, r.created_at, r.finished_at, r.metadata
		      FROM run r
		      JOIN campaign_run cr ON r.id = cr.run_id
		      WHERE cr.campaign_id = ?`

	err := repo.dbConn.Select(&dbRuns, query, id)
	if err != nil {
		return nil, fmt.Errorf("getting campaign runs: %w", err)
	}

	domainRuns := make([]*domain.Run, len(dbRuns))
	for i, dbR := range dbRuns {
		domainRuns[i] = toDomainRun(dbR)
	}

	return domainRuns, nil
}

// LinkRunToCampaign creates an association between a run and a campaign.
func (repo *Repository) LinkRunToCampaign(runID uuid.UUID, campaignID uuid.UUID) error {
	query := `INSERT INTO campaign_run (run_id, campaign_id) VALUES (?, ?)`

	_, err := repo.dbConn.Exec(query, runID, campaignID)
	if err != nil {
		return fmt.Errorf("linking run with campaign: %w", err)
	}

	return nil
}
