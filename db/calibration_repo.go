package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tfkr-ae/azimuth/domain"
)

var _ domain.CalibrationRepository = (*Repository)(nil)

// dbRun represents a calibration run as stored in the database.
// The run row also carries the zero-point columns, which stay NULL until a
// fit converges, so the struct uses sql.Null* types for that half.
type dbRun struct {
	// Run
	ID         uuid.UUID    `db:"id"`
	Image      string       `db:"image"`
	Instrument string       `db:"instrument"`
	Filter     string       `db:"filter"`
	UseRI      bool         `db:"use_ri"`
	MagSource  int          `db:"mag_source"`
	Aperture   int          `db:"aperture"`
	NSigma     float64      `db:"nsigma"`
	Seeing     float64      `db:"seeing"`
	Normalize  bool         `db:"normalize"`
	Status     string       `db:"status"`
	CreatedAt  time.Time    `db:"created_at"`
	FinishedAt sql.NullTime `db:"finished_at"`

	// Zero point
	Intercept  sql.NullFloat64 `db:"intercept"`
	ZP         sql.NullFloat64 `db:"zp"`
	ZPErr      sql.NullFloat64 `db:"zp_err"`
	Lambda     sql.NullFloat64 `db:"lambda"`
	FluxZPJy   sql.NullFloat64 `db:"flux_zp_jy"`
	StarCount  sql.NullInt64   `db:"star_count"`
	FitCount   sql.NullInt64   `db:"fit_count"`
	Iterations sql.NullInt64   `db:"iterations"`
	RMS        sql.NullFloat64 `db:"rms"`
	FittedAt   sql.NullTime    `db:"fitted_at"`

	// Common
	Metadata Metadata `db:"metadata"`
}

// dbRunSummary represents a summarized run joined with its zero point
// for database queries where the per-star data is not needed.
type dbRunSummary struct {
	ID         uuid.UUID       `db:"id"`
	Image      string          `db:"image"`
	Instrument string          `db:"instrument"`
	Filter     string          `db:"filter"`
	Status     string          `db:"status"`
	ZP         sql.NullFloat64 `db:"zp"`
	ZPErr      sql.NullFloat64 `db:"zp_err"`
	FitCount   sql.NullInt64   `db:"fit_count"`
	CreatedAt  time.Time       `db:"created_at"`
	FinishedAt sql.NullTime    `db:"finished_at"`
}

// dbMatchedStar represents one matched star of a run as stored in the database.
type dbMatchedStar struct {
	RunID    uuid.UUID `db:"run_id"`
	Seq      int       `db:"seq"`
	RA       float64   `db:"ra"`
	Dec      float64   `db:"dec"`
	X        float64   `db:"x"`
	Y        float64   `db:"y"`
	Sep      float64   `db:"sep"`
	RefMag   float64   `db:"ref_mag"`
	RefErr   float64   `db:"ref_err"`
	InstMag  float64   `db:"inst_mag"`
	InstErr  float64   `db:"inst_err"`
	Color    float64   `db:"color"`
	Residual float64   `db:"residual"`
	Kept     bool      `db:"kept"`
}

// fromDomainRun converts a domain.Run into a dbRun for database insertion.
func fromDomainRun(run *domain.Run) *dbRun {
	return &dbRun{
		ID:         run.ID,
		Image:      run.Image,
		Instrument: run.Instrument,
		Filter:     run.Filter,
		UseRI:      run.UseRI,
		MagSource:  int(run.MagSource),
		Aperture:   run.Aperture,
		NSigma:     run.NSigma,
		Seeing:     run.Seeing,
		Normalize:  run.Normalize,
		Status:     string(run.Status),
		CreatedAt:  run.CreatedAt,
		FinishedAt: sql.NullTime{
			Time:  run.FinishedAt,
			Valid: !run.FinishedAt.IsZero(),
		},
		Metadata: Metadata(run.Metadata),
	}
}

// toDomainRun converts a dbRun into a domain.Run.
func toDomainRun(dbRow *dbRun) *domain.Run {
	run := &domain.Run{
		ID:         dbRow.ID,
		Image:      dbRow.Image,
		Instrument: dbRow.Instrument,
		Filter:     dbRow.Filter,
		UseRI:      dbRow.UseRI,
		MagSource:  domain.MagSource(dbRow.MagSource),
		Aperture:   dbRow.Aperture,
		NSigma:     dbRow.NSigma,
		Seeing:     dbRow.Seeing,
		Normalize:  dbRow.Normalize,
		Status:     domain.RunStatus(dbRow.Status),
		CreatedAt:  dbRow.CreatedAt,
		Metadata:   map[string]any(dbRow.Metadata),
	}

	if dbRow.FinishedAt.Valid {
		run.FinishedAt = dbRow.FinishedAt.Time
	}

	return run
}

// toDomainRunSummary converts a dbRunSummary into a domain.RunSummary.
// It safely extracts values from sql.Null* types.
func toDomainRunSummary(dbSummary *dbRunSummary) *domain.RunSummary {
	summary := &domain.RunSummary{
		ID:         dbSummary.ID,
		Image:      dbSummary.Image,
		Instrument: dbSummary.Instrument,
		Filter:     dbSummary.Filter,
		Status:     domain.RunStatus(dbSummary.Status),
		CreatedAt:  dbSummary.CreatedAt,
	}

	if dbSummary.ZP.Valid {
		summary.ZP = dbSummary.ZP.Float64
	}

	if dbSummary.ZPErr.Valid {
		summary.ZPErr = dbSummary.ZPErr.Float64
	}

	if dbSummary.FitCount.Valid {
		summary.FitCount = int(dbSummary.FitCount.Int64)
	}

	if dbSummary.FinishedAt.Valid {
		summary.FinishedAt = dbSummary.FinishedAt.Time
	}

	return summary
}

// fromDomainZeroPoint converts a domain.ZeroPoint into a dbRun carrying only
// the zero-point columns, for the update of its run row.
func fromDomainZeroPoint(zp *domain.ZeroPoint) *dbRun {
	return &dbRun{
		ID:        zp.RunID,
		Intercept: sql.NullFloat64{Float64: zp.Intercept, Valid: true},
		ZP:        sql.NullFloat64{Float64: zp.ZP, Valid: true},
		ZPErr:     sql.NullFloat64{Float64: zp.ZPErr, Valid: true},
		Lambda: sql.NullFloat64{
			Float64: zp.Lambda,
			Valid:   zp.Lambda != 0,
		},
		FluxZPJy: sql.NullFloat64{
			Float64: zp.FluxZPJy,
			Valid:   zp.FluxZPJy != 0,
		},
		StarCount:  sql.NullInt64{Int64: int64(zp.StarCount), Valid: true},
		FitCount:   sql.NullInt64{Int64: int64(zp.FitCount), Valid: true},
		Iterations: sql.NullInt64{Int64: int64(zp.Iterations), Valid: true},
		RMS:        sql.NullFloat64{Float64: zp.RMS, Valid: true},
		FittedAt: sql.NullTime{
			Time:  zp.CreatedAt,
			Valid: !zp.CreatedAt.IsZero(),
		},
	}
}

// toDomainZeroPoint converts a dbRun into a domain.ZeroPoint.
// It safely extracts values from sql.Null* types.
func toDomainZeroPoint(dbRow *dbRun) *domain.ZeroPoint {
	zp := &domain.ZeroPoint{
		RunID: dbRow.ID,
	}

	if dbRow.Intercept.Valid {
		zp.Intercept = dbRow.Intercept.Float64
	}

	if dbRow.ZP.Valid {
		zp.ZP = dbRow.ZP.Float64
	}

	if dbRow.ZPErr.Valid {
		zp.ZPErr = dbRow.ZPErr.Float64
	}

	if dbRow.Lambda.Valid {
		zp.Lambda = dbRow.Lambda.Float64
	}

	if dbRow.FluxZPJy.Valid {
		zp.FluxZPJy = dbRow.FluxZPJy.Float64
	}

	if dbRow.StarCount.Valid {
		zp.StarCount = int(dbRow.StarCount.Int64)
	}

	if dbRow.FitCount.Valid {
		zp.FitCount = int(dbRow.FitCount.Int64)
	}

	if dbRow.Iterations.Valid {
		zp.Iterations = int(dbRow.Iterations.Int64)
	}

	if dbRow.RMS.Valid {
		zp.RMS = dbRow.RMS.Float64
	}

	if dbRow.FittedAt.Valid {
		zp.CreatedAt = dbRow.FittedAt.Time
	}

	return zp
}

// fromDomainMatchedStar converts a domain.MatchedStar into a dbMatchedStar
// for database insertion, keyed by its run and position in the matched set.
func fromDomainMatchedStar(runID uuid.UUID, seq int, star *domain.MatchedStar) *dbMatchedStar {
	return &dbMatchedStar{
		RunID:    runID,
		Seq:      seq,
		RA:       star.RA,
		Dec:      star.Dec,
		X:        star.X,
		Y:        star.Y,
		Sep:      star.Sep,
		RefMag:   star.RefMag,
		RefErr:   star.RefErr,
		InstMag:  star.InstMag,
		InstErr:  star.InstErr,
		Color:    star.Color,
		Residual: star.Residual,
		Kept:     star.Kept,
	}
}

// toDomainMatchedStar converts a dbMatchedStar into a domain.MatchedStar.
func toDomainMatchedStar(dbStar *dbMatchedStar) *domain.MatchedStar {
	return &domain.MatchedStar{
		RA:       dbStar.RA,
		Dec:      dbStar.Dec,
		X:        dbStar.X,
		Y:        dbStar.Y,
		Sep:      dbStar.Sep,
		RefMag:   dbStar.RefMag,
		RefErr:   dbStar.RefErr,
		InstMag:  dbStar.InstMag,
		InstErr:  dbStar.InstErr,
		Color:    dbStar.Color,
		Residual: dbStar.Residual,
		Kept:     dbStar.Kept,
	}
}

// InsertRun inserts a new domain.Run into the database.
func (repo *Repository) InsertRun(run *domain.Run) error {
	dbRun := fromDomainRun(run)
	query := `INSERT INTO run(id, image, instrument, filter, use_ri, mag_source, aperture, nsigma, seeing, normalize, status, created_at, metadata)
			  VALUES(:id, :image, :instrument, :filter, :use_ri, :mag_source, :aperture, :nsigma, :seeing, :normalize, :status, :created_at, :metadata)`
	_, err := repo.dbConn.NamedExec(query, dbRun)
	if err != nil {
		return fmt.Errorf("inserting run %s : %w", run.ID, err)
	}
	return nil
}

// UpdateRunStatus transitions a run to the given status.
// Moving to RunComplete or RunFailed also stamps the finished time.
func (repo *Repository) UpdateRunStatus(id uuid.UUID, status domain.RunStatus) error {
	query := `UPDATE run SET status = ? WHERE id = ?`
	args := []any{string(status), id}

	if status == domain.RunComplete || status == domain.RunFailed {
		query = `UPDATE run SET status = ?, finished_at = ? WHERE id = ?`
		args = []any{string(status), time.Now().UTC(), id}
	}

	result, err := repo.dbConn.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("updating status for run %s : %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected for run %s : %w", id, err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("no run found with id %s to update", id)
	}
	return nil
}

// GetRun retrieves the run entry for a given run ID.
// It returns a domain.Run or an error if the ID is not found.
func (repo *Repository) GetRun(id uuid.UUID) (*domain.Run, error) {
	var dbRow dbRun
	query := `SELECT * FROM run WHERE id = ?`

	err := repo.dbConn.Get(&dbRow, query, id)
	if err != nil {
		return nil, fmt.Errorf("getting run with id %s : %w", id, err)
	}

	return toDomainRun(&dbRow), nil
}

// GetRunSummaries retrieves a list of summarized run entries joined with
// their zero points. It excludes the per-star data and metadata for efficiency.
func (repo *Repository) GetRunSummaries() ([]*domain.RunSummary, error) {
	var dbSummaries []*dbRunSummary
	query := `SELECT id, image, instrument, filter, status, zp, zp_err, fit_count, created_at, finished_at
			  FROM run
			  ORDER BY id ASC`

	err := repo.dbConn.Select(&dbSummaries, query)
	if err != nil {
		return nil, fmt.Errorf("getting run summaries : %w", err)
	}

	summaries := make([]*domain.RunSummary, len(dbSummaries))
	for i, row := range dbSummaries {
		summaries[i] = toDomainRunSummary(row)
	}
	return summaries, nil
}

// GetRunMetadata retrieves the metadata map for a specific run ID.
func (repo *Repository) GetRunMetadata(id uuid.UUID) (map[string]any, error) {
	var dbMeta Metadata
	query := `SELECT metadata FROM run WHERE id = ?`

	err := repo.dbConn.Get(&dbMeta, query, id)
	if err != nil {
		return dbMeta, fmt.Errorf("selecting metadata for run %v : %w", id, err)
	}

	return map[string]any(dbMeta), nil
}

// UpdateRunMetadata updates the metadata for one or more runs identified by their IDs.
func (repo *Repository) UpdateRunMetadata(metadata map[string]any, ids ...uuid.UUID) error {
	dbMeta := Metadata(metadata)
	query := `UPDATE run SET metadata = ? WHERE id = ?`

	for _, id := range ids {
		_, err := repo.dbConn.Exec(query, dbMeta, id)
		if err != nil {
			return fmt.Errorf("updating metadata %v for %v : %w", dbMeta, id, err)
		}
	}
	return nil
}

// InsertZeroPoint updates an existing run entry with its fit result.
// It expects a domain.ZeroPoint and uses its RunID to locate and update the corresponding row.
func (repo *Repository) InsertZeroPoint(zp *domain.ZeroPoint) error {
	dbZP := fromDomainZeroPoint(zp)
	query := `UPDATE run SET
				intercept = :intercept,
				zp = :zp,
				zp_err = :zp_err,
				lambda = :lambda,
				flux_zp_jy = :flux_zp_jy,
				star_count = :star_count,
				fit_count = :fit_count,
				iterations = :iterations,
				rms = :rms,
				fitted_at = :fitted_at
			  WHERE id = :id`
	result, err := repo.dbConn.NamedExec(query, dbZP)
	if err != nil {
		return fmt.Errorf("inserting zero point for run %s : %w", zp.RunID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected for zero point %s : %w", zp.RunID, err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("no run found with id %s to update", zp.RunID)
	}
	return nil
}

// GetZeroPoint retrieves the fit result for a given run ID.
// It returns an error if the run does not exist or has no zero point yet.
func (repo *Repository) GetZeroPoint(runID uuid.UUID) (*domain.ZeroPoint, error) {
	var dbRow dbRun
	query := `SELECT id, intercept, zp, zp_err, lambda, flux_zp_jy, star_count, fit_count, iterations, rms, fitted_at
			  FROM run
			  WHERE id = ? AND zp IS NOT NULL`

	err := repo.dbConn.Get(&dbRow, query, runID)
	if err != nil {
		return nil, fmt.Errorf("getting zero point for run %s : %w", runID, err)
	}

	return toDomainZeroPoint(&dbRow), nil
}

// InsertStars inserts the matched star set of a run in one transaction,
// preserving the order of the slice.
func (repo *Repository) InsertStars(runID uuid.UUID, stars []*domain.MatchedStar) error {
	tx, err := repo.dbConn.Beginx()
	if err != nil {
		return fmt.Errorf("beginning star insert for run %s : %w", runID, err)
	}

	query := `INSERT INTO star(run_id, seq, ra, dec, x, y, sep, ref_mag, ref_err, inst_mag, inst_err, color, residual, kept)
			  VALUES(:run_id, :seq, :ra, :dec, :x, :y, :sep, :ref_mag, :ref_err, :inst_mag, :inst_err, :color, :residual, :kept)`

	for i, star := range stars {
		if _, err := tx.NamedExec(query, fromDomainMatchedStar(runID, i, star)); err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting star %d for run %s : %w", i, runID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing stars for run %s : %w", runID, err)
	}
	return nil
}

// GetStars retrieves the matched stars recorded for a run, in insertion order.
func (repo *Repository) GetStars(runID uuid.UUID) ([]*domain.MatchedStar, error) {
	var dbStars []*dbMatchedStar
	query := `SELECT run_id, seq, ra, dec, x, y, sep, ref_mag, ref_err, inst_mag, inst_err, color, residual, kept
			  FROM star
			  WHERE run_id = ?
			  ORDER BY seq ASC`

	err := repo.dbConn.Select(&dbStars, query, runID)
	if err != nil {
		return nil, fmt.Errorf("getting stars for run %s : %w", runID, err)
	}

	stars := make([]*domain.MatchedStar, len(dbStars))
	for i, dbStar := range dbStars {
		stars[i] = toDomainMatchedStar(dbStar)
	}
	return stars, nil
}
