package domain

import "github.com/google/uuid"

// CampaignRepository defines the interface for managing Campaigns, which are collections of calibration runs.
// It provides methods for creating, retrieving, updating, and deleting campaigns,
// as well as managing the runs associated with them.
type CampaignRepository interface {
	// GetCampaigns retrieves all campaigns configured in the archive.
	// It returns a slice of Campaign pointers.
	GetCampaigns() ([]*Campaign, error)

	// CreateCampaign creates a new campaign with the given name and description.
	// It returns the UUID of the newly created campaign.
	CreateCampaign(name string, description string) (uuid.UUID, error)

	// UpdateCampaign updates the name and description of an existing campaign identified by its UUID.
	// It returns an error if the campaign does not exist.
	UpdateCampaign(campaignID uuid.UUID, name, description string) error

	// DeleteCampaign removes a campaign identified by its UUID.
	// It returns an error if the campaign does not exist.
	DeleteCampaign(campaignID uuid.UUID) error

	// GetCampaignRuns retrieves all runs linked to a specific campaign, identified by its UUID.
	// It returns a slice of Run pointers. If the campaign has no runs, it returns an empty slice.
	GetCampaignRuns(id uuid.UUID) ([]*Run, error)

	// LinkRunToCampaign associates a run with a campaign using their respective UUIDs.
	// This allows for organizing an observing night's images into collections.
	// It returns an error if either the run or the campaign does not exist.
	LinkRunToCampaign(runID uuid.UUID, campaignID uuid.UUID) error
}

// Campaign represents a collection of calibration runs, allowing users to group and organize them.
type Campaign struct {
	ID          uuid.UUID // Unique identifier for the campaign.
	Name        string    // The name of the campaign.
	Description string    // A brief description of the campaign's purpose.
}

// CampaignRun represents the association between a Campaign and a Run.
type CampaignRun struct {
	CampaignID uuid.UUID // The ID of the campaign.
	RunID      uuid.UUID // The ID of the run linked to the campaign.
}

// GetType identifies campaign links on the archive write channel.
func (cr CampaignRun) GetType() string {
	return "Campaign Run"
}
