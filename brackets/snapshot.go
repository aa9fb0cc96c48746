package brackets

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/racing-tournament/models"
)

// SnapshotVersion is bumped whenever the exported layout changes.
const SnapshotVersion = 1

// Snapshot is the full, self-contained export of an engine.
type Snapshot struct {
	Version    int                    `json:"version"`
	ExportedAt time.Time              `json:"exported_at"`
	Phase      models.TournamentPhase `json:"phase"`
	Pilots     []models.Pilot         `json:"pilots"`
	Heats      []*models.Heat         `json:"heats"`
	Pools      models.Pools           `json:"pools"`
	Counters   models.RoundCounters   `json:"counters"`
}

func (e *Engine) Export() Snapshot {
	return Snapshot{
		Version:    SnapshotVersion,
		ExportedAt: e.now(),
		Phase:      e.phase,
		Pilots:     e.Pilots(),
		Heats:      e.Heats(),
		Pools:      e.Pools(),
		Counters:   e.counters,
	}
}

func (s Snapshot) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// DecodeSnapshot parses an exported snapshot. Unknown fields, including those
// inside heats, and trailing data are rejected.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	if dec.More() {
		return Snapshot{}, fmt.Errorf("%w: trailing data after snapshot", ErrMalformedSnapshot)
	}
	return s, nil
}

// Import replaces the whole engine state with s. The snapshot is validated
// first; on any error the live state is left untouched.
func (e *Engine) Import(s Snapshot) error {
	if err := validateSnapshot(s); err != nil {
		e.logger.Warn("snapshot rejected", slog.Any("error", err))
		return err
	}

	heats := make([]*models.Heat, len(s.Heats))
	for i, h := range s.Heats {
		heats[i] = h.Clone()
	}
	e.phase = s.Phase
	e.pilots = append([]models.Pilot(nil), s.Pilots...)
	e.heats = heats
	e.pools = s.Pools.Clone()
	e.counters = s.Counters
	e.logger.Info("snapshot imported",
		slog.String("phase", string(s.Phase)),
		slog.Int("pilots", len(s.Pilots)),
		slog.Int("heats", len(s.Heats)))
	return nil
}

func validateSnapshot(s Snapshot) error {
	if s.Version != SnapshotVersion {
		return fmt.Errorf("%w: got %d, want %d", ErrSnapshotVersion, s.Version, SnapshotVersion)
	}
	if !s.Phase.Valid() {
		return malformed("unknown phase %q", s.Phase)
	}
	if s.Counters.CurrentWBRound < 0 || s.Counters.CurrentLBRound < 0 {
		return malformed("negative round counters")
	}

	pilots := make(map[string]bool, len(s.Pilots))
	for _, p := range s.Pilots {
		if p.ID == "" {
			return malformed("pilot without id")
		}
		if pilots[p.ID] {
			return malformed("duplicate pilot %s", p.ID)
		}
		if p.Status != models.PilotStatusActive && p.Status != models.PilotStatusWithdrawn {
			return malformed("pilot %s has unknown status %q", p.ID, p.Status)
		}
		pilots[p.ID] = true
	}

	heatIDs := make(map[string]bool, len(s.Heats))
	heatNumbers := make(map[int]bool, len(s.Heats))
	openSeat := make(map[string]string)
	finales := make(map[models.BracketType]int)
	var gf *models.Heat
	var rematches []*models.Heat
	for _, h := range s.Heats {
		if err := validateHeat(h, pilots); err != nil {
			return err
		}
		if heatIDs[h.ID] {
			return malformed("duplicate heat id %s", h.ID)
		}
		if heatNumbers[h.HeatNumber] {
			return malformed("duplicate heat number %d", h.HeatNumber)
		}
		heatIDs[h.ID] = true
		heatNumbers[h.HeatNumber] = true

		switch h.Stage.(type) {
		case models.GrandFinale:
			if gf != nil {
				return malformed("grand finale heats %s and %s", gf.ID, h.ID)
			}
			gf = h
		case models.WinnerFinale, models.LoserFinale:
			finales[h.Stage.Bracket()]++
			if finales[h.Stage.Bracket()] > 1 {
				return malformed("more than one %s finale", h.Stage.Bracket())
			}
		case models.Rematch:
			rematches = append(rematches, h)
		}

		if !h.IsOpen() {
			continue
		}
		for _, id := range h.PilotIDs {
			if other, ok := openSeat[id]; ok {
				return malformed("pilot %s is in open heats %s and %s", id, other, h.ID)
			}
			openSeat[id] = h.ID
		}
	}
	if err := validateRematches(gf, rematches); err != nil {
		return err
	}

	inPool := make(map[string]bool)
	for _, pool := range [][]string{s.Pools.WinnerPilots, s.Pools.LoserPool, s.Pools.EliminatedPilots, s.Pools.GrandFinalePool} {
		for _, id := range pool {
			if !pilots[id] {
				return malformed("pool references unknown pilot %s", id)
			}
			if inPool[id] {
				return malformed("pilot %s is in more than one pool", id)
			}
			if heatID, ok := openSeat[id]; ok {
				return malformed("pilot %s waits in a pool while seated in open heat %s", id, heatID)
			}
			inPool[id] = true
		}
	}
	return nil
}

// validateRematches checks that rematches follow a completed Grand Finale,
// decide each place at most once and pit the two Grand Finale pilots holding
// the contested place and the place two lower.
func validateRematches(gf *models.Heat, rematches []*models.Heat) error {
	if len(rematches) == 0 {
		return nil
	}
	if gf == nil || !gf.IsCompleted() {
		return malformed("rematch without a completed grand finale")
	}
	decided := make(map[int]bool, 2)
	for _, rm := range rematches {
		place := rm.Stage.(models.Rematch).ForPlace
		if decided[place] {
			return malformed("more than one rematch for place %d", place)
		}
		decided[place] = true
		want := []string{gf.Results.PilotAt(place), gf.Results.PilotAt(place + 2)}
		for _, id := range rm.PilotIDs {
			if id != want[0] && id != want[1] {
				return malformed("rematch %s seats pilot %s, not a grand finale contender for place %d", rm.ID, id, place)
			}
		}
	}
	return nil
}

func validateHeat(h *models.Heat, pilots map[string]bool) error {
	if h == nil {
		return malformed("null heat")
	}
	if h.ID == "" || h.HeatNumber < 1 {
		return malformed("heat without id or number")
	}
	if err := models.ValidateStage(h.Stage); err != nil {
		return fmt.Errorf("%w: heat %s: %v", ErrMalformedSnapshot, h.ID, err)
	}

	size := len(h.PilotIDs)
	switch h.Stage.(type) {
	case models.GrandFinale:
		if size != 4 {
			return malformed("grand finale %s has %d pilots", h.ID, size)
		}
	case models.Rematch:
		if size != 2 {
			return malformed("rematch %s has %d pilots", h.ID, size)
		}
	default:
		if size < minHeatSize || size > maxHeatSize {
			return malformed("heat %s has %d pilots", h.ID, size)
		}
	}
	seen := make(map[string]bool, size)
	for _, id := range h.PilotIDs {
		if !pilots[id] {
			return malformed("heat %s references unknown pilot %s", h.ID, id)
		}
		if seen[id] {
			return malformed("heat %s lists pilot %s twice", h.ID, id)
		}
		seen[id] = true
	}

	switch h.Status {
	case models.HeatStatusCompleted:
		if h.Results == nil {
			return malformed("completed heat %s has no results", h.ID)
		}
		if err := validateRankings(h, h.Results.Rankings); err != nil {
			return fmt.Errorf("%w: heat %s: %v", ErrMalformedSnapshot, h.ID, err)
		}
	case models.HeatStatusPending, models.HeatStatusActive:
		if h.Results != nil {
			return malformed("open heat %s carries results", h.ID)
		}
	default:
		return malformed("heat %s has unknown status %q", h.ID, h.Status)
	}
	return nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedSnapshot, fmt.Sprintf(format, args...))
}
