package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tfkr-ae/azimuth/domain"
)

var _ domain.FetchRepository = (*Repository)(nil)

// dbFetch represents a combined request and response entry as stored in the database.
// It differs from the domain.FetchRequest and domain.FetchResponse by using sql.Null* types
// for fields that might be absent (e.g., response details if a request hasn't received a response yet)
// and combines both request and response data into a single struct for database operations.
type dbFetch struct {
	// Request
	ID          uuid.UUID `db:"id"`
	Survey      string    `db:"survey"`
	Scheme      string    `db:"scheme"`
	Method      string    `db:"method"`
	Host        string    `db:"host"`
	Path        string    `db:"path"`
	RequestRaw  []byte    `db:"request_raw"`
	RequestedAt time.Time `db:"requested_at"`

	// Response
	// TODO: The DB sets default values for these columns so they will not be "null". Need to revisit and either remove that DB restriction / keep these as normal fields
	Status      sql.NullString `db:"status"`
	StatusCode  sql.NullInt64  `db:"status_code"`
	ResponseRaw []byte         `db:"response_raw"`
	ContentType sql.NullString `db:"content_type"`
	Length      sql.NullString `db:"length"`
	RespondedAt sql.NullTime   `db:"responded_at"`

	// Common
	Metadata Metadata       `db:"metadata"`
	Note     sql.NullString `db:"note"`
}

// dbFetchSummary represents a summarized version of a request and response entry
// for database queries where raw request/response bodies are not needed.
// It uses sql.Null* types for potentially absent response fields, similar to dbFetch.
type dbFetchSummary struct {
	// Request
	ID          uuid.UUID `db:"id"`
	Survey      string    `db:"survey"`
	Scheme      string    `db:"scheme"`
	Method      string    `db:"method"`
	Host        string    `db:"host"`
	Path        string    `db:"path"`
	RequestedAt time.Time `db:"requested_at"`

	// Response
	Status      sql.NullString `db:"status"`
	StatusCode  sql.NullInt64  `db:"status_code"`
	ContentType sql.NullString `db:"content_type"`
	Length      sql.NullString `db:"length"`
	RespondedAt sql.NullTime   `db:"responded_at"`

	// Common
	Metadata Metadata `db:"metadata"`
}

// fromDomainFetchRequest converts a domain.FetchRequest into a dbFetch for database insertion.
func fromDomainFetchRequest(freq *domain.FetchRequest) *dbFetch {
	return &dbFetch{
		ID:          freq.ID,
		Survey:      freq.Survey,
		Scheme:      freq.Scheme,
		Method:      freq.Method,
		Host:        freq.Host,
		Path:        freq.Path,
		RequestRaw:  freq.Raw,
		RequestedAt: freq.RequestedAt,
		Metadata:    Metadata(freq.Metadata),
	}
}

// toDomainFetchRequest converts a dbFetch into a domain.FetchRequest.
func toDomainFetchRequest(dbFetchRow *dbFetch) *domain.FetchRequest {
	return &domain.FetchRequest{
		ID:          dbFetchRow.ID,
		Survey:      dbFetchRow.Survey,
		Scheme:      dbFetchRow.Scheme,
		Method:      dbFetchRow.Method,
		Host:        dbFetchRow.Host,
		Path:        dbFetchRow.Path,
		Raw:         dbFetchRow.RequestRaw,
		RequestedAt: dbFetchRow.RequestedAt,
		Metadata:    map[string]any(dbFetchRow.Metadata),
	}
}

// fromDomainFetchResponse converts a domain.FetchResponse into a dbFetch for database update.
// It correctly handles nullable fields by converting them to sql.Null* types.
func fromDomainFetchResponse(fresp *domain.FetchResponse) *dbFetch {
	return &dbFetch{
		ID: fresp.ID,
		Status: sql.NullString{
			String: fresp.Status,
			Valid:  fresp.Status != "",
		},
		StatusCode: sql.NullInt64{
			Int64: int64(fresp.StatusCode),
			Valid: fresp.StatusCode > 0,
		},
		ResponseRaw: fresp.Raw,
		ContentType: sql.NullString{
			String: fresp.ContentType,
			Valid:  fresp.ContentType != "",
		},
		Length: sql.NullString{
			String: fresp.Length,
			Valid:  fresp.Length != "",
		},
		RespondedAt: sql.NullTime{
			Time:  fresp.RespondedAt,
			Valid: !fresp.RespondedAt.IsZero(),
		},
		Metadata: Metadata(fresp.Metadata),
	}
}

// toDomainFetchResponse converts a dbFetch into a domain.FetchResponse.
// It safely extracts values from sql.Null* types.
func toDomainFetchResponse(dbFetchRow *dbFetch) *domain.FetchResponse {
	resp := &domain.FetchResponse{
		ID:       dbFetchRow.ID,
		Raw:      dbFetchRow.ResponseRaw,
		Metadata: map[string]any(dbFetchRow.Metadata),
	}

	if dbFetchRow.Status.Valid {
		resp.Status = dbFetchRow.Status.String
	}

	if dbFetchRow.StatusCode.Valid {
		resp.StatusCode = int(dbFetchRow.StatusCode.Int64)
	}

	if dbFetchRow.ContentType.Valid {
		resp.ContentType = dbFetchRow.ContentType.String
	}

	if dbFetchRow.Length.Valid {
		resp.Length = dbFetchRow.Length.String
	}

	if dbFetchRow.RespondedAt.Valid {
		resp.RespondedAt = dbFetchRow.RespondedAt.Time
	}
	return resp
}

// toDomainFetchRow converts a dbFetch into a domain.FetchRow,
// combining both request and response details, and handling the note field.
func toDomainFetchRow(dbFetchRow *dbFetch) *domain.FetchRow {
	req := toDomainFetchRequest(dbFetchRow)
	resp := toDomainFetchResponse(dbFetchRow)

	row := &domain.FetchRow{
		Request:  *req,
		Response: *resp,
		Metadata: map[string]any(dbFetchRow.Metadata),
	}

	if dbFetchRow.Note.Valid {
		row.Note = dbFetchRow.Note.String
	}

	return row
}

// toDomainFetchSummary converts a dbFetchSummary into a domain.FetchSummary,
// extracting relevant fields for a high-level overview.
func toDomainFetchSummary(dbSummary *dbFetchSummary) *domain.FetchSummary {
	fetchSummary := &domain.FetchSummary{
		ID:          dbSummary.ID,
		Survey:      dbSummary.Survey,
		Scheme:      dbSummary.Scheme,
		Method:      dbSummary.Method,
		Host:        dbSummary.Host,
		Path:        dbSummary.Path,
		RequestedAt: dbSummary.RequestedAt,
		Metadata:    map[string]any(dbSummary.Metadata),
	}

	if dbSummary.Status.Valid {
		fetchSummary.Status = dbSummary.Status.String
	}

	if dbSummary.StatusCode.Valid {
		fetchSummary.StatusCode = int(dbSummary.StatusCode.Int64)
	}

	if dbSummary.ContentType.Valid {
		fetchSummary.ContentType = dbSummary.ContentType.String
	}

	if dbSummary.Length.Valid {
		fetchSummary.Length = dbSummary.Length.String
	}

	if dbSummary.RespondedAt.Valid {
		fetchSummary.RespondedAt = dbSummary.RespondedAt.Time
	}

	return fetchSummary
}

// InsertRequest inserts a new domain.FetchRequest into the database.
func (repo *Repository) InsertRequest(req *domain.FetchRequest) error {
	dbRequest := fromDomainFetchRequest(req)
	query := `INSERT INTO fetch(id, survey, scheme, method, host, path, request_raw, requested_at, metadata)
			  VALUES(:id, :survey, :scheme, :method, :host, :path, :request_raw, :requested_at, :metadata)`
	_, err := repo.dbConn.NamedExec(query, dbRequest)
	if err != nil {
		return fmt.Errorf("inserting request %s : %w", req.ID, err)
	}
	return nil
}

// InsertResponse updates an existing fetch entry with response details.
// It expects a domain.FetchResponse and uses its ID to locate and update the corresponding row.
func (repo *Repository) InsertResponse(resp *domain.FetchResponse) error {
	dbResponse := fromDomainFetchResponse(resp)
	query := `UPDATE fetch SET
				status = :status,
				status_code = :status_code,
				response_raw = :response_raw,
				content_type = :content_type,
				length = :length,
				responded_at = :responded_at,
				metadata = :metadata
			  WHERE id = :id`
	result, err := repo.dbConn.NamedExec(query, dbResponse)
	if err != nil {
		return fmt.Errorf("inserting response %s : %w", resp.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected for response %s : %w", resp.ID, err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("no fetch found with id %s to update", resp.ID)
	}
	return nil
}

// GetResponse retrieves the response details for a given request ID.
// It returns a domain.FetchResponse or an error if the ID is not found.
func (repo *Repository) GetResponse(id uuid.UUID) (*domain.FetchResponse, error) {
	var dbRow dbFetch
	query := `SELECT id, status, status_code, response_raw, content_type, length, responded_at, metadata
		      FROM fetch
			  WHERE id = ?`

	err := repo.dbConn.Get(&dbRow, query, id)
	if err != nil {
		return nil, fmt.Errorf("getting response with id %s : %w", id, err)
	}

	return toDomainFetchResponse(&dbRow), nil
}

// GetFetchRow retrieves a complete request-response pair, including any associated note,
// for a given request ID. It returns a domain.FetchRow.
func (repo *Repository) GetFetchRow(id uuid.UUID) (*domain.FetchRow, error) {
	var dbRow dbFetch
	query := `SELECT
			  f.id, f.survey, f.scheme, f.method, f.host, f.path, f.request_raw, f.requested_at,
			  f.status, f.status_code, f.response_raw, f.content_type, f.length, f.responded_at,
			  f.metadata, n.note
			  FROM fetch f
			  LEFT JOIN notes n ON f.id = n.fetch_id
			  WHERE f.id = ?`

	err := repo.dbConn.Get(&dbRow, query, id)
	if err != nil {
		return nil, fmt.Errorf("getting fetch row with id %s : %w", id, err)
	}

	return toDomainFetchRow(&dbRow), nil
}

// GetFetchSummary retrieves a list of summarized fetch entries.
// It excludes raw request/response bodies and prettified metadata for efficiency.
func (repo *Repository) GetFetchSummary() ([]*domain.FetchSummary, error) {
	var dbSummary []*dbFetchSummary
	query := `SELECT
			  id, survey, scheme, method, host, path, requested_at,
			  status, status_code, content_type, length, responded_at,
			  json_remove(metadata, '$.prettified-request', '$.prettified-response') AS metadata
			  FROM fetch
			  ORDER BY id ASC`

	err := repo.dbConn.Select(&dbSummary, query)
	if err != nil {
		return nil, fmt.Errorf("getting fetch summary : %w", err)
	}

	fetchSummary := make([]*domain.FetchSummary, len(dbSummary))
	for i, row := range dbSummary {
		fetchSummary[i] = toDomainFetchSummary(row)
	}
	return fetchSummary, nil
}

// GetMetadata retrieves the metadata map for a specific request ID.
func (repo *Repository) GetMetadata(id uuid.UUID) (map[string]any, error) {
	var dbMeta Metadata
	query := `SELECT metadata FROM fetch WHERE id = ?`

	err := repo.dbConn.Get(&dbMeta, query, id)
	if err != nil {
		return dbMeta, fmt.Errorf("selecting metadata for fetch %v : %w", id, err)
	}

	return map[string]any(dbMeta), nil
}

// UpdateMetadata updates the metadata for one or more fetches identified by their IDs.
func (repo *Repository) UpdateMetadata(metadata map[string]any, ids ...uuid.UUID) error {
	dbMeta := Metadata(metadata)
	query := `UPDATE fetch SET metadata = ? WHERE id = ?`

	for _, id := range ids {
		_, err := repo.dbConn.Exec(query, dbMeta, id)
		if err != nil {
			return fmt.Errorf("updating metadata %v for %v : %w", dbMeta, id, err)
		}
	}
	return nil
}

// GetNote retrieves the user-created note associated with a specific request ID.
func (repo *Repository) GetNote(requestID uuid.UUID) (string, error) {
	var note string
	query := `SELECT note FROM notes WHERE fetch_id = ?`

	err := repo.dbConn.Get(&note, query, requestID)

	if err != nil {
		return "", fmt.Errorf("getting note for fetch %s: %w", requestID, err)
	}

	return note, nil
}

// UpdateNote creates or updates a user-created note for a specific request ID.
// If a note already exists for the fetch, it will be updated; otherwise, a new note will be inserted.
func (repo *Repository) UpdateNote(requestID uuid.UUID, note string) error {
	query := `INSERT INTO notes (fetch_id, note, created_at)
              VALUES (?, ?, CURRENT_TIMESTAMP)
              ON CONFLICT(fetch_id)
			  DO UPDATE SET
				note = excluded.note,
				created_at = CURRENT_TIMESTAMP;`

	_, err := repo.dbConn.Exec(query, requestID, note)

	if err != nil {
		return fmt.Errorf("updating note for fetch %s: %w", requestID, err)
	}

	return nil
}

// SearchByMetadata retrieves fetch summaries where the value at the given JSON
// path inside the metadata column matches the provided value.
func (repo *Repository) SearchByMetadata(path string, value any) ([]*domain.FetchSummary, error) {
	var dbSummary []*dbFetchSummary
	query := `SELECT
			  id, survey, scheme, method, host, path, requested_at,
			  status, status_code, content_type, length, responded_at,
			  json_remove(metadata, '$.prettified-request', '$.prettified-response') AS metadata
			  FROM fetch
			  WHERE json_extract(metadata, ?) = ?
			  ORDER BY id ASC`

	err := repo.dbConn.Select(&dbSummary, query, path, value)
	if err != nil {
		return nil, fmt.Errorf("searching fetches by %s : %w", path, err)
	}

	fetchSummary := make([]*domain.FetchSummary, len(dbSummary))
	for i, row := range dbSummary {
		fetchSummary[i] = toDomainFetchSummary(row)
	}
	return fetchSummary, nil
}
