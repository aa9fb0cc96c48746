package brackets

import (
	"fmt"
	"log/slog"

	"github.com/Dosada05/racing-tournament/models"
)

func (e *Engine) finalesCompleted() bool {
	wb, lb := e.wbFinale(), e.lbFinale()
	return wb != nil && lb != nil && wb.IsCompleted() && lb.IsCompleted()
}

// GenerateGrandFinale composes the championship heat from the top two of the
// WB Finale followed by the top two of the LB Finale. It runs automatically
// when the second finale completes and is exposed for an operator retry.
//
// The four finalists must be distinct. A duplicate means the brackets are
// inconsistent; the heat is then refused, state is left exactly as it was and
// ErrDuplicateFinalist is returned for inspection.
func (e *Engine) GenerateGrandFinale() (*models.Heat, error) {
	if e.phase != models.PhaseRunning {
		return nil, fmt.Errorf("generate grand finale: %w (phase %s)", ErrInvalidPhase, e.phase)
	}
	if e.grandFinale() != nil {
		return nil, ErrGrandFinaleExists
	}
	if !e.finalesCompleted() {
		return nil, ErrFinalesNotCompleted
	}

	wb, lb := e.wbFinale(), e.lbFinale()
	wbTop := wb.Results.PilotsWithin(1, 2)
	lbTop := lb.Results.PilotsWithin(1, 2)
	if len(wbTop) != 2 || len(lbTop) != 2 {
		e.logger.Error("grand finale refused: missing finalists",
			slog.Int("wb_finalists", len(wbTop)), slog.Int("lb_finalists", len(lbTop)))
		return nil, fmt.Errorf("%w: wb finale gave %d, lb finale gave %d", ErrFinalistsIncomplete, len(wbTop), len(lbTop))
	}

	pilotIDs := []string{wbTop[0], wbTop[1], lbTop[0], lbTop[1]}
	seen := make(map[string]bool, len(pilotIDs))
	for _, id := range pilotIDs {
		if seen[id] {
			e.logger.Error("grand finale refused: duplicate finalist",
				slog.String("pilot_id", id),
				slog.Any("wb_finalists", wbTop),
				slog.Any("lb_finalists", lbTop))
			return nil, fmt.Errorf("%w: pilot %s", ErrDuplicateFinalist, id)
		}
		seen[id] = true
	}

	gf := e.addHeat(pilotIDs, models.GrandFinale{})
	e.claimFromPool(&e.pools.GrandFinalePool, "grand_finale", pilotIDs)
	e.phase = models.PhaseFinale
	e.logger.Info("grand finale generated", slog.String("heat_id", gf.ID), slog.Any("pilots", pilotIDs))
	return gf.Clone(), nil
}

// scheduleRematches applies the rematch rule to a completed Grand Finale.
// For the place pairs (1,3) and (2,4): when the higher place went to an
// LB-origin pilot and the lower one to a WB-origin pilot, both now carry one
// loss and a 1v1 rematch decides the higher place.
func (e *Engine) scheduleRematches() []*models.Heat {
	gf := e.grandFinale()
	if gf == nil || !gf.IsCompleted() {
		return nil
	}
	var created []*models.Heat
	for _, place := range []int{1, 2} {
		higher := gf.Results.PilotAt(place)
		lower := gf.Results.PilotAt(place + 2)
		if higher == "" || lower == "" {
			continue
		}
		if e.origin(higher) == models.OriginLoser && e.origin(lower) == models.OriginWinner {
			h := e.addHeat([]string{higher, lower}, models.Rematch{ForPlace: place})
			created = append(created, h)
			e.logger.Info("rematch scheduled",
				slog.Int("for_place", place),
				slog.String("lb_pilot", higher),
				slog.String("wb_pilot", lower))
		}
	}
	return cloneHeats(created)
}

// GrandFinaleRematchPending is true while any scheduled rematch is not yet
// completed.
func (e *Engine) GrandFinaleRematchPending() bool {
	for _, h := range e.rematches() {
		if !h.IsCompleted() {
			return true
		}
	}
	return false
}

// FinalRanking returns the pilots of places 1..4 after applying completed
// rematches: a rematch winner takes the contested place, the loser the place
// two lower. It returns nil until the Grand Finale is completed.
func (e *Engine) FinalRanking() []string {
	gf := e.grandFinale()
	if gf == nil || !gf.IsCompleted() {
		return nil
	}
	ranking := make([]string, 4)
	for place := 1; place <= 4; place++ {
		ranking[place-1] = gf.Results.PilotAt(place)
	}
	for _, rm := range e.rematches() {
		if !rm.IsCompleted() {
			continue
		}
		place := rm.Stage.(models.Rematch).ForPlace
		ranking[place-1] = rm.Results.PilotAt(1)
		ranking[place+1] = rm.Results.PilotAt(2)
	}
	return ranking
}
