// Package core provides fundamental utilities for the Azimuth pipeline.
// This file contains option functions for customizing log entries.
package core

import (
	"github.com/google/uuid"
	"github.com/tfkr-ae/azimuth/domain"
)

// LogWithContext is an option to add a context map to a log entry.
func LogWithContext(context map[string]any) func(log *domain.Log) error {
	return func(log *domain.Log) error {
		log.Context = context
		return nil
	}
}

// LogWithRunID is an option to associate a log entry with a calibration run ID.
func LogWithRunID(id uuid.UUID) func(log *domain.Log) error {
	return func(log *domain.Log) error {
		log.RunID = &id
		return nil
	}
}

// LogWithExtensionID is an option to associate a log entry with an extension ID.
func LogWithExtensionID(id uuid.UUID) func(log *domain.Log) error {
	return func(log *domain.Log) error {
		log.ExtensionID = &id
		return nil
	}
}
