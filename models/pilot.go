package models

import "time"

type PilotStatus string

const (
	PilotStatusActive    PilotStatus = "active"
	PilotStatusWithdrawn PilotStatus = "withdrawn"
)

// Pilot is a roster entry. Pilots are never deleted once the tournament has
// started; withdrawal only flips Status.
type Pilot struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Status    PilotStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
}

func (p Pilot) IsActive() bool {
	return p.Status == PilotStatusActive
}
