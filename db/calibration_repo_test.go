package db

import (
	"database/sql"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tfkr-ae/azimuth/domain"
)

func TestCalibrationRepo_InsertRun(t *testing.T) {
	t.Run("should insert run", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		wantID, err := uuid.NewV7()
		if err != nil {
			t.Fatalf("creating uuid: %v", err)
		}

		wantTime := time.Now().UTC().Truncate(time.Millisecond)
		wantMeta := map[string]any{"galaxy": "NGC4321"}

		run := &domain.Run{
			ID:         wantID,
			Image:      "pointing034-R.fits",
			Instrument: "h",
			Filter:     "R",
			UseRI:      true,
			MagSource:  domain.MagBest,
			NSigma:     2.5,
			Seeing:     1.8,
			Normalize:  true,
			Metadata:   wantMeta,
			Status:     domain.RunPending,
			CreatedAt:  wantTime,
		}

		err = repo.InsertRun(run)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		var got dbRun
		err = repo.dbConn.Get(&got, "SELECT * FROM run WHERE id = ?", wantID)
		if err != nil {
			t.Fatalf("getting inserted run: %v", err)
		}

		if got.ID != wantID {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", wantID, got.ID)
		}
		if got.Image != "pointing034-R.fits" {
			t.Fatalf("\nwanted:\npointing034-R.fits\ngot:\n%s", got.Image)
		}
		if got.MagSource != int(domain.MagBest) {
			t.Fatalf("\nwanted:\n%d\ngot:\n%d", domain.MagBest, got.MagSource)
		}
		if !got.UseRI {
			t.Fatalf("\nwanted:\ntrue\ngot:\n%v", got.UseRI)
		}
		if got.ZP.Valid {
			t.Fatalf("\nwanted:\nNULL zero point\ngot:\n%v", got.ZP.Float64)
		}
		if !reflect.DeepEqual(got.Metadata, Metadata(wantMeta)) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", wantMeta, got.Metadata)
		}
		if !got.CreatedAt.Equal(wantTime) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", wantTime, got.CreatedAt)
		}
	})

	t.Run("should violate unique constraint if an existing ID is used", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		runID := testRun(t, repo, nil)
		run := &domain.Run{
			ID:        runID,
			Image:     "pointing034-R.fits",
			Status:    domain.RunPending,
			Metadata:  make(map[string]any),
			CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		}

		err := repo.InsertRun(run)

		if err == nil {
			t.Fatalf("\nwanted:\nerror\ngot:\nnil")
		}

		if !strings.Contains(err.Error(), "UNIQUE constraint failed") {
			t.Fatalf("\nwanted:\nerror containing 'UNIQUE constraint failed'\ngot:\n%v", err)
		}
	})
}

func TestCalibrationRepo_UpdateRunStatus(t *testing.T) {
	t.Run("should update the status without touching finished_at", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		runID := testRun(t, repo, nil)

		err := repo.UpdateRunStatus(runID, domain.RunActive)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		var got dbRun
		err = repo.dbConn.Get(&got, "SELECT * FROM run WHERE id = ?", runID)
		if err != nil {
			t.Fatalf("getting updated run: %v", err)
		}

		if got.Status != string(domain.RunActive) {
			t.Fatalf("\nwanted:\n%s\ngot:\n%s", domain.RunActive, got.Status)
		}
		if got.FinishedAt.Valid {
			t.Fatalf("\nwanted:\nNULL finished_at\ngot:\n%v", got.FinishedAt.Time)
		}
	})

	t.Run("should stamp finished_at when the run completes", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		runID := testRun(t, repo, nil)

		err := repo.UpdateRunStatus(runID, domain.RunComplete)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		var got dbRun
		err = repo.dbConn.Get(&got, "SELECT * FROM run WHERE id = ?", runID)
		if err != nil {
			t.Fatalf("getting updated run: %v", err)
		}

		if got.Status != string(domain.RunComplete) {
			t.Fatalf("\nwanted:\n%s\ngot:\n%s", domain.RunComplete, got.Status)
		}
		if !got.FinishedAt.Valid {
			t.Fatalf("\nwanted:\nfinished_at to be set\ngot:\nNULL")
		}
	})

	t.Run("should stamp finished_at when the run fails", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		runID := testRun(t, repo, nil)

		err := repo.UpdateRunStatus(runID, domain.RunFailed)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		var got dbRun
		err = repo.dbConn.Get(&got, "SELECT * FROM run WHERE id = ?", runID)
		if err != nil {
			t.Fatalf("getting updated run: %v", err)
		}

		if !got.FinishedAt.Valid {
			t.Fatalf("\nwanted:\nfinished_at to be set\ngot:\nNULL")
		}
	})

	t.Run("should return an error if run ID doesn't exist", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		nonExistentID := uuid.MustParse("01989c3b-f0e7-73d9-a764-06d21e367809")

		err := repo.UpdateRunStatus(nonExistentID, domain.RunActive)
		if err == nil {
			t.Fatalf("\nwanted:\nerror\ngot:\nnil")
		}

		if !strings.Contains(err.Error(), "no run found") {
			t.Fatalf("\nwanted:\nerror containing 'no run found'\ngot:\n%v", err)
		}
	})
}

func TestCalibrationRepo_GetRun(t *testing.T) {
	t.Run("should get an existing run", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		wantID, err := uuid.NewV7()
		if err != nil {
			t.Fatalf("creating uuid: %v", err)
		}

		want := &domain.Run{
			ID:         wantID,
			Image:      "pointing034-R.fits",
			Instrument: "h",
			Filter:     "R",
			MagSource:  domain.MagAper,
			Aperture:   2,
			NSigma:     3,
			Metadata:   map[string]any{"galaxy": "NGC4321"},
			Status:     domain.RunPending,
			CreatedAt:  time.Now().UTC().Truncate(time.Millisecond),
		}

		err = repo.InsertRun(want)
		if err != nil {
			t.Fatalf("inserting run: %v", err)
		}

		got, err := repo.GetRun(want.ID)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if !reflect.DeepEqual(want, got) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", want, got)
		}
	})

	t.Run("should return an error for a non-existent ID", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		nonExistentID := uuid.MustParse("01989c3e-1b17-7243-b035-e6a9f4645904")

		_, err := repo.GetRun(nonExistentID)
		if err == nil {
			t.Fatalf("\nwanted:\nerror\ngot:\nnil")
		}

		if !errors.Is(err, sql.ErrNoRows) && !strings.Contains(err.Error(), "no rows") {
			t.Fatalf("\nwanted:\nsql.ErrNoRows\ngot:\n%v", err)
		}
	})
}

func TestCalibrationRepo_GetRunSummaries(t *testing.T) {
	t.Run("should return an empty slice if database is empty", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		summaries, err := repo.GetRunSummaries()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if len(summaries) != 0 {
			t.Fatalf("\nwanted:\n0\ngot:\n%d", len(summaries))
		}
	})

	t.Run("should return summaries for all runs, ordered ASC by ID", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		runID1 := testRun(t, repo, nil)
		time.Sleep(2 * time.Millisecond)

		runID2 := testRun(t, repo, nil)

		want := insertTestZeroPointAndGet(t, repo, runID2)

		summaries, err := repo.GetRunSummaries()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if len(summaries) != 2 {
			t.Fatalf("\nwanted:\n2\ngot:\n%d", len(summaries))
		}

		if summaries[0].ID != runID1 {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", runID1, summaries[0].ID)
		}

		if summaries[1].ID != runID2 {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", runID2, summaries[1].ID)
		}

		if summaries[0].ZP != 0 {
			t.Fatalf("\nwanted:\n0\ngot:\n%v", summaries[0].ZP)
		}

		if summaries[1].ZP != want.ZP {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", want.ZP, summaries[1].ZP)
		}

		if summaries[1].FitCount != want.FitCount {
			t.Fatalf("\nwanted:\n%d\ngot:\n%d", want.FitCount, summaries[1].FitCount)
		}
	})
}

func TestCalibrationRepo_GetRunMetadata(t *testing.T) {
	t.Run("should get metadata for an existing run", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		wantMeta := map[string]any{"galaxy": "NGC4321", "airmass": float64(1.12)}
		runID := testRun(t, repo, wantMeta)

		got, err := repo.GetRunMetadata(runID)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if !reflect.DeepEqual(wantMeta, got) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", wantMeta, got)
		}
	})

	t.Run("should return an error for a non-existent ID", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		nonExistentID := uuid.MustParse("01989c41-7090-785d-83b6-1216a6ca7052")

		_, err := repo.GetRunMetadata(nonExistentID)
		if err == nil {
			t.Fatalf("\nwanted:\nerror\ngot:\nnil")
		}

		if !errors.Is(err, sql.ErrNoRows) && !strings.Contains(err.Error(), "no rows") {
			t.Fatalf("\nwanted:\nsql.ErrNoRows\ngot:\n%v", err)
		}
	})
}

func TestCalibrationRepo_UpdateRunMetadata(t *testing.T) {
	t.Run("should update metadata for multiple runs", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		runID1 := testRun(t, repo, map[string]any{"id": "1"})
		runID2 := testRun(t, repo, map[string]any{"id": "2"})
		wantMeta := map[string]any{"batch": "night-2025-03-18"}

		err := repo.UpdateRunMetadata(wantMeta, runID1, runID2)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		got1, err := repo.GetRunMetadata(runID1)
		if err != nil {
			t.Fatalf("getting metadata for run1: %v", err)
		}

		got2, err := repo.GetRunMetadata(runID2)
		if err != nil {
			t.Fatalf("getting metadata for run2: %v", err)
		}

		if !reflect.DeepEqual(wantMeta, got1) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", wantMeta, got1)
		}

		if !reflect.DeepEqual(wantMeta, got2) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", wantMeta, got2)
		}
	})
}

func TestCalibrationRepo_InsertZeroPoint(t *testing.T) {
	t.Run("should update the run row with the fit result", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		runID := testRun(t, repo, nil)
		want := insertTestZeroPointAndGet(t, repo, runID)

		var got dbRun
		err := repo.dbConn.Get(&got, "SELECT * FROM run WHERE id = ?", runID)
		if err != nil {
			t.Fatalf("getting updated run: %v", err)
		}

		if got.ZP.Float64 != want.ZP {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", want.ZP, got.ZP.Float64)
		}
		if got.Intercept.Float64 != want.Intercept {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", want.Intercept, got.Intercept.Float64)
		}
		if got.FitCount.Int64 != int64(want.FitCount) {
			t.Fatalf("\nwanted:\n%d\ngot:\n%d", want.FitCount, got.FitCount.Int64)
		}
		if !got.FittedAt.Time.Equal(want.CreatedAt) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", want.CreatedAt, got.FittedAt.Time)
		}
	})

	t.Run("should return an error if run ID doesn't exist", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		nonExistentID := uuid.MustParse("01989c44-374f-7f6d-8e18-639a061b5c40")
		zp := &domain.ZeroPoint{RunID: nonExistentID, ZP: 26.64, ZPErr: 0.012}

		err := repo.InsertZeroPoint(zp)
		if err == nil {
			t.Fatalf("\nwanted:\nerror\ngot:\nnil")
		}

		if !strings.Contains(err.Error(), "no run found") {
			t.Fatalf("\nwanted:\nerror containing 'no run found'\ngot:\n%v", err)
		}
	})
}

func TestCalibrationRepo_GetZeroPoint(t *testing.T) {
	t.Run("should get the fitted zero point", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		runID := testRun(t, repo, nil)
		want := insertTestZeroPointAndGet(t, repo, runID)

		got, err := repo.GetZeroPoint(runID)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if !reflect.DeepEqual(want, got) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", want, got)
		}
	})

	t.Run("should return an error before a fit exists", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		runID := testRun(t, repo, nil)

		_, err := repo.GetZeroPoint(runID)
		if err == nil {
			t.Fatalf("\nwanted:\nerror\ngot:\nnil")
		}

		if !errors.Is(err, sql.ErrNoRows) && !strings.Contains(err.Error(), "no rows") {
			t.Fatalf("\nwanted:\nsql.ErrNoRows\ngot:\n%v", err)
		}
	})
}

func TestCalibrationRepo_Stars(t *testing.T) {
	t.Run("should insert and return the matched stars in order", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		runID := testRun(t, repo, nil)

		want := []*domain.MatchedStar{
			{RA: 187.70593, Dec: 12.39112, X: 512.4, Y: 498.2, Sep: 0.4, RefMag: 14.21, RefErr: 0.01, InstMag: -12.42, InstErr: 0.02, Color: 0.52, Residual: 0.011, Kept: true},
			{RA: 187.71204, Dec: 12.40081, X: 781.9, Y: 1033.6, Sep: 0.7, RefMag: 15.87, RefErr: 0.02, InstMag: -10.74, InstErr: 0.03, Color: 0.61, Residual: -0.142, Kept: false},
			{RA: 187.69871, Dec: 12.38027, X: 204.1, Y: 119.8, Sep: 0.2, RefMag: 13.05, RefErr: 0.01, InstMag: -13.59, InstErr: 0.01, Color: 0.47, Residual: 0.003, Kept: true},
		}

		err := repo.InsertStars(runID, want)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		got, err := repo.GetStars(runID)
		if err != nil {
			t.Fatalf("getting stars: %v", err)
		}

		if !reflect.DeepEqual(want, got) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", want, got)
		}
	})

	t.Run("should return an empty slice for a run with no stars", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		runID := testRun(t, repo, nil)

		got, err := repo.GetStars(runID)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if len(got) != 0 {
			t.Fatalf("\nwanted:\n0\ngot:\n%d", len(got))
		}
	})

	t.Run("should violate foreign key constraint for a non-existent run", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		nonExistentID := uuid.MustParse("01989c47-7090-785d-83b6-1216a6ca7052")
		stars := []*domain.MatchedStar{{RA: 187.70593, Dec: 12.39112, RefMag: 14.21, InstMag: -12.42, Kept: true}}

		err := repo.InsertStars(nonExistentID, stars)
		if err == nil {
			t.Fatalf("\nwanted:\nerror\ngot:\nnil")
		}

		if !strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			t.Fatalf("\nwanted:\nerror containing 'FOREIGN KEY constraint failed'\ngot:\n%v", err)
		}
	})
}
