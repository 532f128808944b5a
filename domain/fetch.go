package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RawField type is used for the request and response raw fields
//
// By default []byte MarshallJSON will encode the []byte value to base64
// MarshalJson is implemented for RawField to directly marshall the "string" bytes
type RawField []byte

// MarshalJSON implements the json.Marshaler interface. It marshals the raw bytes
// as a JSON string, bypassing the default base64 encoding for []byte.
func (r RawField) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}

	return json.Marshal(string(r))
}

// FetchRepository is the interface that holds all the survey fetch related repository methods in Azimuth
type FetchRepository interface {
	// InsertRequest will insert the FetchRequest in the DB
	InsertRequest(req *FetchRequest) error

	// InsertResponse will update the row with the response data
	// It will use res.ID to find the row ID, it will return an error if the request ID was not found
	InsertResponse(res *FetchResponse) error

	// GetResponse will return the response data from a row from the request ID
	// It will return an error if the request ID doesn't exist
	// If the request does not have response data it will return the default fields from the DB:
	/*
		ID:         reqID,
		Status:     "N/A",
		StatusCode: -1,
		Length:     "0",
		Metadata:   make(map[string]any),
		Raw:        nil,
	*/
	GetResponse(id uuid.UUID) (*FetchResponse, error)

	// GetFetchRow will return the entire request - response data for a row given from the ID
	// If the row doesn't exist it will return an error
	// If there is a note on that request ID it will fetch the note contents as well.
	// When there is no response data for the row, it will return the same empty FetchResponse as GetResponse
	GetFetchRow(id uuid.UUID) (*FetchRow, error)

	// GetFetchSummary will return the fetch data without the raw fields
	GetFetchSummary() ([]*FetchSummary, error)

	// GetMetadata returns the metadata map for a specific request ID.
	GetMetadata(id uuid.UUID) (metadata map[string]any, err error)

	// UpdateMetadata updates the metadata for one or more fetches.
	UpdateMetadata(metadata map[string]any, ids ...uuid.UUID) error

	// GetNote retrieves the user-created note for a specific request ID.
	// It returns an error if no note is found.
	GetNote(requestID uuid.UUID) (string, error)

	// UpdateNote creates or updates the user-created note for a specific request ID.
	UpdateNote(requestID uuid.UUID, note string) error

	// SearchByMetadata retrieves fetches where the value at the specified JSON path matches the provided value.
	SearchByMetadata(path string, value any) ([]*FetchSummary, error)
}

// FetchRequest represents the data captured from an HTTP request issued to a survey service.
type FetchRequest struct {
	ID          uuid.UUID      // Unique identifier for the request
	Survey      string         // Survey service the request was issued to (legacy, unwise, galex, vizier)
	Scheme      string         // URL scheme (http or https)
	Method      string         // HTTP method (GET, POST, etc.)
	Host        string         // Request host
	Path        string         // Request path including query parameters
	Raw         RawField       // Complete raw HTTP request
	Metadata    map[string]any // Additional metadata and extension data
	RequestedAt time.Time      // Timestamp when request was made
}

// FetchResponse represents the data captured from a survey service HTTP response.
// For binary payloads (FITS, JPEG, tarballs) Raw holds the response head and the
// body is written to the cutout cache, with the cache path recorded in Metadata.
type FetchResponse struct {
	ID          uuid.UUID      // Unique identifier matching the associated request
	Status      string         // HTTP status text (e.g., "200 OK")
	StatusCode  int            // HTTP status code (e.g., 200, 404)
	ContentType string         // Response content type
	Length      string         // Content length
	Raw         RawField       // Raw HTTP response head
	Metadata    map[string]any // Additional metadata and extension data
	RespondedAt time.Time      // Timestamp when response was received
}

// GetType identifies fetch requests on the archive write channel.
func (request FetchRequest) GetType() string {
	return "request"
}

// GetType identifies fetch responses on the archive write channel.
func (response FetchResponse) GetType() string {
	return "response"
}

// FetchRow represents a complete request-response pair with associated metadata,
// typically used when retrieving data from the database.
type FetchRow struct {
	Request  FetchRequest   // The HTTP request
	Response FetchResponse  // The corresponding HTTP response
	Metadata map[string]any // Combined metadata from request and response
	Note     string         // Note contents
}

// FetchSummary provides a summary of a request-response pair,
// excluding the raw fields
type FetchSummary struct {
	ID          uuid.UUID
	Survey      string
	Scheme      string
	Method      string
	Host        string
	Path        string
	Status      string
	StatusCode  int
	ContentType string
	Length      string
	Metadata    map[string]any
	RequestedAt time.Time
	RespondedAt time.Time
}
