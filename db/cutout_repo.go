package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tfkr-ae/azimuth/domain"
)

var _ domain.CutoutRepository = (*Repository)(nil)

// dbCutout represents a cached survey cutout as stored in the database.
type dbCutout struct {
	ID        uuid.UUID      `db:"id"`
	Galaxy    string         `db:"galaxy"`
	Survey    string         `db:"survey"`
	Band      string         `db:"band"`
	SizePix   int            `db:"size_pix"`
	PixScale  float64        `db:"pix_scale"`
	Path      string         `db:"path"`
	Bytes     int64          `db:"bytes"`
	Checksum  string         `db:"checksum"`
	FetchID   sql.NullString `db:"fetch_id"`
	CreatedAt time.Time      `db:"created_at"`
}

// fromDomainCutout converts a domain.Cutout to a dbCutout.
func fromDomainCutout(cutout *domain.Cutout) *dbCutout {
	dbCutout := &dbCutout{
		ID:        cutout.ID,
		Galaxy:    cutout.Galaxy,
		Survey:    cutout.Survey,
		Band:      cutout.Band,
		SizePix:   cutout.SizePix,
		PixScale:  cutout.PixScale,
		Path:      cutout.Path,
		Bytes:     cutout.Bytes,
		Checksum:  cutout.Checksum,
		CreatedAt: cutout.CreatedAt,
	}

	if cutout.FetchID != nil {
		dbCutout.FetchID = sql.NullString{String: cutout.FetchID.String(), Valid: true}
	}

	return dbCutout
}

// toDomainCutout converts a dbCutout to a domain.Cutout.
func toDomainCutout(dbCutout *dbCutout) *domain.Cutout {
	cutout := &domain.Cutout{
		ID:        dbCutout.ID,
		Galaxy:    dbCutout.Galaxy,
		Survey:    dbCutout.Survey,
		Band:      dbCutout.Band,
		SizePix:   dbCutout.SizePix,
		PixScale:  dbCutout.PixScale,
		Path:      dbCutout.Path,
		Bytes:     dbCutout.Bytes,
		Checksum:  dbCutout.Checksum,
		CreatedAt: dbCutout.CreatedAt,
	}

	if dbCutout.FetchID.Valid {
		if id, err := uuid.Parse(dbCutout.FetchID.String); err == nil {
			cutout.FetchID = &id
		}
	}

	return cutout
}

// InsertCutout saves a cutout cache entry to the database.
// An existing entry for the same galaxy, survey, band and size is refreshed.
func (repo *Repository) InsertCutout(cutout *domain.Cutout) error {
	dbCutout := fromDomainCutout(cutout)
	query := `INSERT INTO cutout(id, galaxy, survey, band, size_pix, pix_scale, path, bytes, checksum, fetch_id, created_at)
		      VALUES (:id, :galaxy, :survey, :band, :size_pix, :pix_scale, :path, :bytes, :checksum, :fetch_id, :created_at)
		      ON CONFLICT(galaxy, survey, band, size_pix) DO UPDATE SET
				pix_scale = excluded.pix_scale,
				path = excluded.path,
				bytes = excluded.bytes,
				checksum = excluded.checksum,
				fetch_id = excluded.fetch_id,
				created_at = excluded.created_at`

	_, err := repo.dbConn.NamedExec(query, dbCutout)
	if err != nil {
		return fmt.Errorf("inserting cutout %s/%s/%s: %w", cutout.Galaxy, cutout.Survey, cutout.Band, err)
	}

	return nil
}

// GetCutout retrieves the cached cutout matching galaxy, survey, band and size.
// It returns an error if no matching cutout exists.
func (repo *Repository) GetCutout(galaxy string, survey string, band string, size int) (*domain.Cutout, error) {
	var dbRow dbCutout
	query := `SELECT * FROM cutout WHERE galaxy = ? AND survey = ? AND band = ? AND size_pix = ?`

	err := repo.dbConn.Get(&dbRow, query, galaxy, survey, band, size)
	if err != nil {
		return nil, fmt.Errorf("getting cutout %s/%s/%s/%d : %w", galaxy, survey, band, size, err)
	}

	return toDomainCutout(&dbRow), nil
}

// GetCutoutsByGalaxy retrieves every cached cutout for the given galaxy.
func (repo *Repository) GetCutoutsByGalaxy(galaxy string) ([]*domain.Cutout, error) {
	var dbCutouts []*dbCutout
	query := `SELECT * FROM cutout WHERE galaxy = ? ORDER BY id ASC`

	err := repo.dbConn.Select(&dbCutouts, query, galaxy)
	if err != nil {
		return nil, fmt.Errorf("getting cutouts for %s : %w", galaxy, err)
	}

	cutouts := make([]*domain.Cutout, len(dbCutouts))
	for i, dbCutout := range dbCutouts {
		cutouts[i] = toDomainCutout(dbCutout)
	}

	return cutouts, nil
}

// GetCutouts retrieves every cached cutout in the archive, newest first.
func (repo *Repository) GetCutouts() ([]*domain.Cutout, error) {
	var dbCutouts []*dbCutout
	query := `SELECT * FROM cutout ORDER BY created_at DESC, id DESC`

	err := repo.dbConn.Select(&dbCutouts, query)
	if err != nil {
		return nil, fmt.Errorf("getting cutouts : %w", err)
	}

	cutouts := make([]*domain.Cutout, len(dbCutouts))
	for i, dbCutout := range dbCutouts {
		cutouts[i] = toDomainCutout(dbCutout)
	}

	return cutouts, nil
}

// PurgeGalaxy removes the cutout rows for a galaxy.
// It does not touch the cached files on disk.
func (repo *Repository) PurgeGalaxy(galaxy string) error {
	query := `DELETE FROM cutout WHERE galaxy = ?`

	_, err := repo.dbConn.Exec(query, galaxy)
	if err != nil {
		return fmt.Errorf("purging cutouts for %s : %w", galaxy, err)
	}

	return nil
}
