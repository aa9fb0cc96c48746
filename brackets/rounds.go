package brackets

import (
	"log/slog"

	"github.com/Dosada05/racing-tournament/models"
)

// IsRoundComplete reports whether every heat tagged (bracket, round) is
// completed. It is false while no such heat exists. Qualification and grand
// finale heats use round 0.
func (e *Engine) IsRoundComplete(bracket models.BracketType, round int) bool {
	found := false
	for _, h := range e.heats {
		if h.Stage.Bracket() != bracket || h.Stage.Round() != round {
			continue
		}
		if bracket == models.BracketGrandFinale {
			if _, ok := h.Stage.(models.GrandFinale); !ok {
				continue
			}
		}
		found = true
		if !h.IsCompleted() {
			return false
		}
	}
	return found
}

func (e *Engine) roundHeats(bracket models.BracketType, round int) []*models.Heat {
	return e.heatsWhere(func(h *models.Heat) bool {
		return h.Stage.Bracket() == bracket && h.Stage.Round() == round
	})
}

func (e *Engine) regularRoundHeats(bracket models.BracketType, round int) []*models.Heat {
	return e.heatsWhere(func(h *models.Heat) bool {
		return h.Stage.Bracket() == bracket && h.Stage.Round() == round && !h.Stage.IsFinale()
	})
}

func (e *Engine) qualificationHeats() []*models.Heat {
	return e.roundHeats(models.BracketQualification, 0)
}

func (e *Engine) wbFinale() *models.Heat {
	for _, h := range e.heats {
		if _, ok := h.Stage.(models.WinnerFinale); ok {
			return h
		}
	}
	return nil
}

func (e *Engine) lbFinale() *models.Heat {
	for _, h := range e.heats {
		if _, ok := h.Stage.(models.LoserFinale); ok {
			return h
		}
	}
	return nil
}

func (e *Engine) grandFinale() *models.Heat {
	for _, h := range e.heats {
		if _, ok := h.Stage.(models.GrandFinale); ok {
			return h
		}
	}
	return nil
}

func (e *Engine) rematches() []*models.Heat {
	return e.heatsWhere(func(h *models.Heat) bool {
		_, ok := h.Stage.(models.Rematch)
		return ok
	})
}

// finishers collects the pilots ranked from..to in each heat, heat by heat.
func finishers(heats []*models.Heat, from, to int) []string {
	var out []string
	for _, h := range heats {
		out = append(out, h.Results.PilotsWithin(from, to)...)
	}
	return out
}

// Pool bookkeeping

func (e *Engine) poolRefs() []*[]string {
	return []*[]string{
		&e.pools.WinnerPilots,
		&e.pools.LoserPool,
		&e.pools.EliminatedPilots,
		&e.pools.GrandFinalePool,
	}
}

// moveToPool places ids in dst after removing them from every pool.
func (e *Engine) moveToPool(dst *[]string, ids ...string) {
	e.leavePools(ids...)
	*dst = append(*dst, ids...)
}

// leavePools removes ids from every pool. Pilots leave their pool when they
// are grouped into a heat.
func (e *Engine) leavePools(ids ...string) {
	if len(ids) == 0 {
		return
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	for _, ref := range e.poolRefs() {
		kept := (*ref)[:0]
		for _, id := range *ref {
			if _, ok := drop[id]; !ok {
				kept = append(kept, id)
			}
		}
		*ref = kept
	}
}

// claimFromPool takes grouped pilots out of their waiting pool and logs any
// pilot the pool did not hold, which would mean pools and heat history drifted.
func (e *Engine) claimFromPool(pool *[]string, poolName string, ids []string) {
	held := make(map[string]struct{}, len(*pool))
	for _, id := range *pool {
		held[id] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := held[id]; !ok {
			e.logger.Warn("grouped pilot was not waiting in pool",
				slog.String("pilot_id", id), slog.String("pool", poolName))
		}
	}
	e.leavePools(ids...)
}
