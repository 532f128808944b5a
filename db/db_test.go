package db

import (
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tfkr-ae/azimuth/domain"
)

func setupTestDB(t *testing.T) (*Repository, func()) {
	t.Helper()

	tempFile, err := os.CreateTemp(t.TempDir(), "test_*.db")
	if err != nil {
		t.Fatalf("os.CreateTemp() failed: %v", err)
	}
	tempFile.Close()

	dbConn, err := New(tempFile.Name())
	if err != nil {
		t.Fatalf("db.New() failed: %v", err)
	}

	repo := NewArchiveRepo(dbConn)

	teardown := func() {
		repo.Close()
		os.Remove(tempFile.Name())
	}

	return repo, teardown
}

func testFetch(t *testing.T, repo *Repository, metadata map[string]any) uuid.UUID {
	t.Helper()
	id, err := uuid.NewV7()
	if err != nil {
		t.Fatalf("creating uuid: %v", err)
	}

	if metadata == nil {
		metadata = make(map[string]any)
	}

	req := &domain.FetchRequest{
		ID:          id,
		Survey:      domain.SurveyVizieR,
		Scheme:      "https",
		Method:      "GET",
		Host:        "vizier.cds.unistra.fr",
		Path:        "/viz-bin/votable?-source=II/349/ps1&-c=187.70593+12.39112",
		Raw:         []byte("GET /viz-bin/votable HTTP/1.1\r\nHost: vizier.cds.unistra.fr\r\n\r\n"),
		Metadata:    metadata,
		RequestedAt: time.Now(),
	}

	err = repo.InsertRequest(req)
	if err != nil {
		t.Fatalf("inserting request: %v", err)
	}
	return id
}

func insertTestResponseAndGet(t *testing.T, repo *Repository, reqID uuid.UUID, metadata map[string]any) *domain.FetchResponse {
	t.Helper()

	if metadata == nil {
		metadata = make(map[string]any)
	}

	rawResp := []byte("HTTP/1.1 200 OK\r\nContent-Type: text/xml\r\nContent-Length: 10\r\n\r\n<VOTABLE/>")

	resp := &domain.FetchResponse{
		ID:          reqID,
		Status:      "200 OK",
		StatusCode:  200,
		ContentType: "text/xml",
		Length:      "10",
		Raw:         rawResp,
		Metadata:    metadata,
		RespondedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	err := repo.InsertResponse(resp)
	if err != nil {
		t.Fatalf("inserting response: %v", err)
	}
	return resp
}

func testRun(t *testing.T, repo *Repository, metadata map[string]any) uuid.UUID {
	t.Helper()
	id, err := uuid.NewV7()
	if err != nil {
		t.Fatalf("creating uuid: %v", err)
	}

	if metadata == nil {
		metadata = make(map[string]any)
	}

	run := &domain.Run{
		ID:         id,
		Image:      "pointing034-R.fits",
		Instrument: "h",
		Filter:     "R",
		MagSource:  domain.MagAper,
		Aperture:   2,
		NSigma:     3,
		Metadata:   metadata,
		Status:     domain.RunPending,
		CreatedAt:  time.Now().UTC().Truncate(time.Millisecond),
	}

	err = repo.InsertRun(run)
	if err != nil {
		t.Fatalf("inserting run: %v", err)
	}
	return id
}

func insertTestZeroPointAndGet(t *testing.T, repo *Repository, runID uuid.UUID) *domain.ZeroPoint {
	t.Helper()

	zp := &domain.ZeroPoint{
		RunID:      runID,
		Intercept:  -26.43,
		ZP:         26.64,
		ZPErr:      0.012,
		Lambda:     0.6442,
		FluxZPJy:   3631,
		StarCount:  212,
		FitCount:   187,
		Iterations: 4,
		RMS:        0.031,
		CreatedAt:  time.Now().UTC().Truncate(time.Millisecond),
	}

	err := repo.InsertZeroPoint(zp)
	if err != nil {
		t.Fatalf("inserting zero point: %v", err)
	}
	return zp
}
