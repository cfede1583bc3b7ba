package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrInvalidFeedURL is returned when a repository feed URL is malformed.
	ErrInvalidFeedURL = errors.New("invalid feed URL")

	// ErrInvalidSyncSchedule is returned when a repository sync schedule
	// string cannot be parsed as a cron expression.
	ErrInvalidSyncSchedule = errors.New("invalid sync schedule")
)
