package brackets

import (
	"fmt"
	"sort"

	"github.com/Dosada05/racing-tournament/models"
)

const (
	PhaseLabelGrandFinale = "grand_finale"
	PhaseLabelWBFinale    = "wb_finale"
	PhaseLabelLBFinale    = "lb_finale"
	PhaseLabelNotStarted  = "not_started"
)

func lbRoundLabel(round int) string {
	return fmt.Sprintf("lb_round_%d", round)
}

type eliminationGroup struct {
	label  string
	pilots []string
}

// Standings computes the final placements. The top four come from the
// rematch-adjusted Grand Finale; everyone else shares a range with the pilots
// eliminated in the same phase, most advanced phase first, starting at 5.
func (e *Engine) Standings() ([]models.Placement, error) {
	if e.phase != models.PhaseCompleted {
		return nil, fmt.Errorf("standings: %w (phase %s)", ErrTournamentNotComplete, e.phase)
	}

	placements := make([]models.Placement, 0, len(e.pilots))
	placed := make(map[string]bool, len(e.pilots))
	add := func(pilotID, label string, from, to int) {
		p, _ := e.Pilot(pilotID)
		placements = append(placements, models.Placement{
			PilotID:   pilotID,
			PilotName: p.Name,
			PlaceFrom: from,
			PlaceTo:   to,
			Phase:     label,
			Status:    p.Status,
		})
		placed[pilotID] = true
	}

	for i, id := range e.FinalRanking() {
		if id != "" {
			add(id, PhaseLabelGrandFinale, i+1, i+1)
		}
	}

	next := 5
	for _, g := range e.eliminationGroups() {
		var ids []string
		for _, id := range g.pilots {
			if !placed[id] {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			continue
		}
		for _, id := range ids {
			add(id, g.label, next, next+len(ids)-1)
		}
		next += len(ids)
	}

	for _, p := range e.pilots {
		if !placed[p.ID] {
			add(p.ID, PhaseLabelNotStarted, 0, 0)
		}
	}

	sort.SliceStable(placements, func(i, j int) bool {
		a, b := placements[i], placements[j]
		if (a.PlaceFrom == 0) != (b.PlaceFrom == 0) {
			return b.PlaceFrom == 0
		}
		if a.PlaceFrom != b.PlaceFrom {
			return a.PlaceFrom < b.PlaceFrom
		}
		return a.PilotName < b.PilotName
	})
	return placements, nil
}

// eliminationGroups lists eliminated pilots by the phase that knocked them
// out, ordered WB Finale, LB Finale, then LB rounds from last to first.
func (e *Engine) eliminationGroups() []eliminationGroup {
	var groups []eliminationGroup
	if f := e.wbFinale(); f != nil && f.IsCompleted() {
		groups = append(groups, eliminationGroup{PhaseLabelWBFinale, f.Results.PilotsWithin(3, maxHeatSize)})
	}
	if f := e.lbFinale(); f != nil && f.IsCompleted() {
		groups = append(groups, eliminationGroup{PhaseLabelLBFinale, f.Results.PilotsWithin(3, maxHeatSize)})
	}
	for round := e.counters.CurrentLBRound; round >= 1; round-- {
		heats := e.regularRoundHeats(models.BracketLoser, round)
		if len(heats) == 0 {
			continue
		}
		groups = append(groups, eliminationGroup{lbRoundLabel(round), finishers(heats, 3, maxHeatSize)})
	}
	return groups
}
