package services

import "errors"

// Errors shared by the services and mapped to HTTP in the handlers.
var (
	ErrValidationFailed       = errors.New("validation failed")
	ErrTournamentNotFound     = errors.New("tournament not found")
	ErrTournamentNameRequired = errors.New("tournament name is required")
	ErrTournamentNameConflict = errors.New("tournament name already exists")

	ErrArchiveDisabled = errors.New("snapshot archive is not configured")
	ErrArchiveNotFound = errors.New("tournament has no archived snapshot")

	ErrInvalidCredentials   = errors.New("invalid operator password")
	ErrAuthenticationFailed = errors.New("authentication failed")
)
