// Package db provides the database layer for the Azimuth archive.
// It encapsulates all interactions with the underlying SQL database, managing
// data persistence for the various pipeline domains such as calibration runs,
// zero points, matched stars, survey fetches (HTTP requests/responses), the
// cutout cache, campaigns, mirrors, logs, extensions, and configuration.
//
// This package is responsible for:
// - Establishing and managing database connections (`db.go`).
// - Defining database-specific data structures that map to SQL table schemas.
// - Implementing repository interfaces (e.g., `CalibrationRepository`, `FetchRepository`)
//   to perform CRUD operations.
// - Handling data conversion between domain-specific structs (from the `domain` package)
//   and database-friendly structs, including the use of `sql.Null*` types for nullable fields.
// - Managing database migrations (`migrations/`).
// - Providing common database utility types (`types.go`).
package db
