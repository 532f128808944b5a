// Package domain defines the core business logic and data structures of the Azimuth pipeline.
// It contains the primary domain models, such as Run, ZeroPoint, MatchedStar, and Cutout,
// as well as the repository interfaces that define the contracts for data persistence.
//
// This package serves as the central point for application-wide types and business rules,
// ensuring a clean separation between the pipeline's core logic and its implementation details,
// such as the archive database, figure rendering, or the remote survey services. By defining
// interfaces for repositories, the domain package remains independent of the storage technology.
package domain
