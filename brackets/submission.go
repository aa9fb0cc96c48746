package brackets

import (
	"fmt"
	"log/slog"

	"github.com/Dosada05/racing-tournament/models"
)

// SubmitOutcome describes everything a result submission changed.
type SubmitOutcome struct {
	Heat           *models.Heat           `json:"heat"`
	GeneratedHeats []*models.Heat         `json:"generated_heats"`
	GrandFinale    *models.Heat           `json:"grand_finale,omitempty"`
	Rematches      []*models.Heat         `json:"rematches,omitempty"`
	Phase          models.TournamentPhase `json:"phase"`
}

// SubmitHeatResults completes a heat, moves its pilots into their next pools
// and then generates every round that became possible.
//
// Invalid rankings are rejected before anything changes. If the results are
// valid but the Grand Finale cannot be composed (ErrDuplicateFinalist,
// ErrFinalistsIncomplete), the heat stays completed, no Grand Finale is
// created and the error is returned together with the outcome.
func (e *Engine) SubmitHeatResults(heatID string, rankings []models.Ranking) (*SubmitOutcome, error) {
	if e.phase != models.PhaseRunning && e.phase != models.PhaseFinale {
		return nil, fmt.Errorf("submit results: %w (phase %s)", ErrInvalidPhase, e.phase)
	}
	h := e.findHeat(heatID)
	if h == nil {
		return nil, fmt.Errorf("%w: %s", ErrHeatNotFound, heatID)
	}
	if h.IsCompleted() {
		return nil, fmt.Errorf("%w: %s", ErrHeatAlreadyCompleted, heatID)
	}
	if err := validateRankings(h, rankings); err != nil {
		return nil, err
	}

	h.Status = models.HeatStatusCompleted
	h.Results = &models.Results{
		Rankings:    append([]models.Ranking(nil), rankings...),
		CompletedAt: e.now(),
	}
	e.fanOut(h)
	e.logger.Info("heat completed",
		slog.String("heat_id", h.ID),
		slog.Int("heat_number", h.HeatNumber),
		slog.String("bracket", string(h.Stage.Bracket())),
		slog.Int("round", h.Stage.Round()))

	out := &SubmitOutcome{Heat: h.Clone()}
	out.GeneratedHeats = e.advance()

	var err error
	switch h.Stage.(type) {
	case models.GrandFinale:
		out.Rematches = e.scheduleRematches()
		if len(out.Rematches) == 0 {
			e.complete()
		}
	case models.Rematch:
		if !e.GrandFinaleRematchPending() {
			e.complete()
		}
	default:
		if e.grandFinale() == nil && e.finalesCompleted() {
			out.GrandFinale, err = e.GenerateGrandFinale()
		}
	}
	out.Phase = e.phase
	return out, err
}

func validateRankings(h *models.Heat, rankings []models.Ranking) error {
	size := len(h.PilotIDs)
	if len(rankings) != size {
		return fmt.Errorf("%w: heat %d has %d pilots, got %d rankings", ErrInvalidRankings, h.HeatNumber, size, len(rankings))
	}
	seenPilot := make(map[string]bool, size)
	seenRank := make(map[int]bool, size)
	for _, r := range rankings {
		if !h.Contains(r.PilotID) {
			return fmt.Errorf("%w: pilot %s is not in heat %d", ErrInvalidRankings, r.PilotID, h.HeatNumber)
		}
		if seenPilot[r.PilotID] {
			return fmt.Errorf("%w: pilot %s ranked twice", ErrInvalidRankings, r.PilotID)
		}
		if r.Rank < 1 || r.Rank > size {
			return fmt.Errorf("%w: rank %d outside 1..%d", ErrInvalidRankings, r.Rank, size)
		}
		if seenRank[r.Rank] {
			return fmt.Errorf("%w: rank %d given twice", ErrInvalidRankings, r.Rank)
		}
		seenPilot[r.PilotID] = true
		seenRank[r.Rank] = true
	}
	return nil
}

// fanOut moves the pilots of a freshly completed heat into their pools.
func (e *Engine) fanOut(h *models.Heat) {
	res := h.Results
	top := res.PilotsWithin(1, 2)
	rest := res.PilotsWithin(3, maxHeatSize)

	switch h.Stage.(type) {
	case models.Qualification, models.WinnerRound:
		e.moveToPool(&e.pools.WinnerPilots, top...)
		e.moveToPool(&e.pools.LoserPool, rest...)
	case models.WinnerFinale, models.LoserFinale:
		e.moveToPool(&e.pools.GrandFinalePool, top...)
		e.moveToPool(&e.pools.EliminatedPilots, rest...)
	case models.LoserRound:
		e.moveToPool(&e.pools.LoserPool, top...)
		e.moveToPool(&e.pools.EliminatedPilots, rest...)
	}
}

// advance keeps generating the next WB and LB rounds until neither can be
// produced from the current state.
func (e *Engine) advance() []*models.Heat {
	var created []*models.Heat
	for {
		wb := e.GenerateWBRound(e.counters.CurrentWBRound + 1)
		lb := e.GenerateLBRound(e.counters.CurrentLBRound + 1)
		created = append(created, wb...)
		created = append(created, lb...)
		if len(wb) == 0 && len(lb) == 0 {
			return created
		}
	}
}

func (e *Engine) complete() {
	e.phase = models.PhaseCompleted
	e.logger.Info("tournament completed", slog.Int("heats", len(e.heats)))
}

// ReopenHeat puts a completed heat back to active so its results can be
// corrected. The pool moves made by its results are undone. A heat whose
// pilots already raced in a later heat cannot be reopened.
func (e *Engine) ReopenHeat(heatID string) error {
	if e.phase == models.PhaseSetup || e.phase == models.PhaseHeatAssignment {
		return fmt.Errorf("reopen heat: %w (phase %s)", ErrInvalidPhase, e.phase)
	}
	h := e.findHeat(heatID)
	if h == nil {
		return fmt.Errorf("%w: %s", ErrHeatNotFound, heatID)
	}
	if !h.IsCompleted() {
		return fmt.Errorf("%w: %s", ErrHeatNotCompleted, heatID)
	}
	for _, later := range e.heats {
		if later.HeatNumber <= h.HeatNumber {
			continue
		}
		for _, id := range h.PilotIDs {
			if later.Contains(id) {
				return fmt.Errorf("%w: pilot %s already raced in heat %d", ErrHeatLocked, id, later.HeatNumber)
			}
		}
	}

	e.leavePools(h.PilotIDs...)
	h.Status = models.HeatStatusActive
	h.Results = nil
	switch h.Stage.(type) {
	case models.GrandFinale, models.Rematch:
		e.phase = models.PhaseFinale
	}
	e.logger.Warn("heat reopened", slog.String("heat_id", h.ID), slog.Int("heat_number", h.HeatNumber))
	return nil
}
