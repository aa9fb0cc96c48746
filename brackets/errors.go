package brackets

import "errors"

var (
	// Roster and lifecycle
	ErrInvalidPhase      = errors.New("operation not allowed in the current tournament phase")
	ErrPilotNotFound     = errors.New("pilot not found")
	ErrPilotNameRequired = errors.New("pilot name is required")
	ErrPilotNameConflict = errors.New("pilot name is already in use")
	ErrPilotWithdrawn    = errors.New("pilot has already withdrawn")
	ErrNotEnoughPilots   = errors.New("not enough active pilots to start the tournament")
	ErrTooManyPilots     = errors.New("too many pilots for one tournament")
	ErrSameHeat          = errors.New("pilots already share a heat")

	// Heats and results
	ErrHeatNotFound         = errors.New("heat not found")
	ErrHeatAlreadyCompleted = errors.New("heat is already completed")
	ErrHeatNotCompleted     = errors.New("heat is not completed")
	ErrHeatNotPending       = errors.New("heat is not pending")
	ErrHeatLocked           = errors.New("heat results already fed a later heat")
	ErrInvalidRankings      = errors.New("invalid heat rankings")
	ErrPoolTooSmall         = errors.New("pool too small to form a heat")

	// Structural integrity; these point at an upstream bracket bug.
	ErrDuplicateFinalist     = errors.New("grand finale finalists are not distinct")
	ErrFinalistsIncomplete   = errors.New("finale results do not provide enough finalists")
	ErrGrandFinaleExists     = errors.New("grand finale already exists")
	ErrFinalesNotCompleted   = errors.New("winner and loser finales are not both completed")
	ErrTournamentNotComplete = errors.New("tournament is not completed")

	// Snapshot import
	ErrSnapshotVersion   = errors.New("unsupported snapshot version")
	ErrMalformedSnapshot = errors.New("malformed snapshot")
)
