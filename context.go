package azimuth

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const (
	// FetchIDKey is the context key for the fetch ID (uuid.UUID). The same ID is shared between the request and response
	FetchIDKey contextKey = "FetchID"
	// SurveyKey is the context key for the survey identifier (string) the request is issued against
	SurveyKey contextKey = "Survey"
	// RunIDKey is the context key for the calibration run ID (uuid.UUID). This is set if the fetch originated from a run
	RunIDKey contextKey = "RunID"
	// GalaxyKey is the context key for the galaxy identifier (string) a cutout fetch is centered on
	GalaxyKey contextKey = "Galaxy"
	// MetadataKey is the context key for the request & response metadata (Metadata)
	MetadataKey contextKey = "Metadata"
	// SkipKey is the context key for the flag (bool) to indicate that the fetch should not be recorded
	SkipKey contextKey = "Skip"
	// RequestTimeKey is the context key for the request timestamp (time.Time)
	RequestTimeKey contextKey = "RequestTime"
	// ResponseTimeKey is the context key for the response timestamp (time.Time)
	ResponseTimeKey contextKey = "ResponseTime"
)

// ContextWithFetchID returns a new request with a fetch ID in the context
func ContextWithFetchID(req *http.Request, fetchId uuid.UUID) *http.Request {
	ctx := context.WithValue(req.Context(), FetchIDKey, fetchId)
	return req.WithContext(ctx)
}

// FetchIDFromContext returns the fetch ID from the context if it exists
func FetchIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(FetchIDKey).(uuid.UUID)
	return id, ok
}

// WithSurvey returns a context carrying the survey identifier. The recording
// transport attributes every request issued under the context to this survey.
func WithSurvey(ctx context.Context, survey string) context.Context {
	return context.WithValue(ctx, SurveyKey, survey)
}

// SurveyFromContext returns the survey identifier from the context if it exists
func SurveyFromContext(ctx context.Context) (string, bool) {
	survey, ok := ctx.Value(SurveyKey).(string)
	return survey, ok
}

// WithRunID returns a context carrying the calibration run ID, linking every
// fetch issued under it to the run.
func WithRunID(ctx context.Context, runId uuid.UUID) context.Context {
	return context.WithValue(ctx, RunIDKey, runId)
}

// RunIDFromContext returns the calibration run ID from the context if it exists
func RunIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(RunIDKey).(uuid.UUID)
	return id, ok
}

// WithGalaxy returns a context carrying the galaxy identifier a cutout fetch
// is centered on.
func WithGalaxy(ctx context.Context, galaxy string) context.Context {
	return context.WithValue(ctx, GalaxyKey, galaxy)
}

// GalaxyFromContext returns the galaxy identifier from the context if it exists
func GalaxyFromContext(ctx context.Context) (string, bool) {
	galaxy, ok := ctx.Value(GalaxyKey).(string)
	return galaxy, ok
}

// WithMetadata returns a context carrying metadata recorded onto every fetch
// issued under it.
func WithMetadata(ctx context.Context, metadata Metadata) context.Context {
	return context.WithValue(ctx, MetadataKey, metadata)
}

// MetadataFromContext returns the metadata from the context if it exists
func MetadataFromContext(ctx context.Context) (Metadata, bool) {
	metadata, ok := ctx.Value(MetadataKey).(Metadata)
	return metadata, ok
}

// ContextWithSkipFlag returns a new request with the skipped flag in the context
func ContextWithSkipFlag(req *http.Request, skip bool) *http.Request {
	ctx := context.WithValue(req.Context(), SkipKey, skip)
	return req.WithContext(ctx)
}

// SkipFlagFromContext returns the value of the skipped flag from the context if it exists
func SkipFlagFromContext(ctx context.Context) (bool, bool) {
	skip, ok := ctx.Value(SkipKey).(bool)
	return skip, ok
}

// ContextWithRequestTime returns a new request with the request time in the context
func ContextWithRequestTime(req *http.Request, requestTime time.Time) *http.Request {
	ctx := context.WithValue(req.Context(), RequestTimeKey, requestTime)
	return req.WithContext(ctx)
}

// RequestTimeFromContext returns the request time from the context if it exists
func RequestTimeFromContext(ctx context.Context) (time.Time, bool) {
	timestamp, ok := ctx.Value(RequestTimeKey).(time.Time)
	return timestamp, ok
}

// ContextWithResponseTime returns a new request with the response time in the context
func ContextWithResponseTime(req *http.Request, responseTime time.Time) *http.Request {
	ctx := context.WithValue(req.Context(), ResponseTimeKey, responseTime)
	return req.WithContext(ctx)
}

// ResponseTimeFromContext returns the response time from the context if it exists
func ResponseTimeFromContext(ctx context.Context) (time.Time, bool) {
	timestamp, ok := ctx.Value(ResponseTimeKey).(time.Time)
	return timestamp, ok
}
