package models

import "time"

// TournamentPhase mirrors the bracket engine's progression.
type TournamentPhase string

const (
	PhaseSetup          TournamentPhase = "setup"
	PhaseHeatAssignment TournamentPhase = "heat-assignment"
	PhaseRunning        TournamentPhase = "running"
	PhaseFinale         TournamentPhase = "finale"
	PhaseCompleted      TournamentPhase = "completed"
)

func (p TournamentPhase) Valid() bool {
	switch p {
	case PhaseSetup, PhaseHeatAssignment, PhaseRunning, PhaseFinale, PhaseCompleted:
		return true
	}
	return false
}

// Tournament is the persisted record. Snapshot holds the engine export as raw
// JSON; it is not sent to API clients.
type Tournament struct {
	ID       int             `json:"id" db:"id"`
	Name     string          `json:"name" db:"name"`
	Phase    TournamentPhase `json:"phase" db:"phase"`
	Snapshot []byte          `json:"-" db:"snapshot"`
	// ArchiveKey is the object-storage key of the last archived snapshot.
	ArchiveKey *string   `json:"archive_key,omitempty" db:"archive_key"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`

	// Populated by the service, not mapped.
	State *BracketState `json:"state,omitempty" db:"-"`
}

// BracketState is the read-only view of an engine handed to presentation
// collaborators. Heats is the single source of truth for bracket display.
type BracketState struct {
	Phase                     TournamentPhase              `json:"phase"`
	Pilots                    []Pilot                      `json:"pilots"`
	Heats                     []*Heat                      `json:"heats"`
	Pools                     Pools                        `json:"pools"`
	Counters                  RoundCounters                `json:"counters"`
	PilotBracketStates        map[string]PilotBracketState `json:"pilot_bracket_states"`
	GrandFinaleRematchPending bool                         `json:"grand_finale_rematch_pending"`
}
