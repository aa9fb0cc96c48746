package brackets

import (
	"log/slog"

	"github.com/Dosada05/racing-tournament/models"
)

// GenerateWBRound creates every heat of winner-bracket round `round`. When the
// previous stage is not complete, the round already exists or the WB Finale
// has been played, it returns nil and leaves state untouched; callers simply
// try again after the next result.
func (e *Engine) GenerateWBRound(round int) []*models.Heat {
	if round < 1 || e.phase != models.PhaseRunning {
		return nil
	}
	if e.wbFinale() != nil || len(e.roundHeats(models.BracketWinner, round)) > 0 {
		return nil
	}

	pool, ok := e.wbPool(round)
	if !ok || len(pool) == 0 {
		return nil
	}

	var created []*models.Heat
	if len(pool) <= e.wbFinaleMaxPilots {
		created = append(created, e.addHeat(pool, models.WinnerFinale{RoundNumber: round}))
	} else {
		groups, err := e.distributor.Distribute(pool)
		if err != nil {
			e.logger.Error("distribute winner bracket round", slog.Int("round", round), slog.Any("error", err))
			return nil
		}
		for _, g := range groups {
			created = append(created, e.addHeat(g, models.WinnerRound{RoundNumber: round}))
		}
	}

	e.claimFromPool(&e.pools.WinnerPilots, "winner", pool)
	e.counters.CurrentWBRound = round
	e.logger.Info("winner bracket round generated",
		slog.Int("round", round),
		slog.Int("pilots", len(pool)),
		slog.Int("heats", len(created)),
		slog.Bool("finale", created[0].Stage.IsFinale()))
	return cloneHeats(created)
}

// wbPool returns the pilots advancing into WB round `round` once the feeding
// stage is complete. Pilots keep their source-heat lineage: winners of
// consecutive source heats end up next to each other.
func (e *Engine) wbPool(round int) ([]string, bool) {
	if round == 1 {
		if !e.IsRoundComplete(models.BracketQualification, 0) {
			return nil, false
		}
		return finishers(e.qualificationHeats(), 1, 2), true
	}
	prev := e.roundHeats(models.BracketWinner, round-1)
	if len(prev) == 0 || !e.IsRoundComplete(models.BracketWinner, round-1) {
		return nil, false
	}
	for _, h := range prev {
		if h.Stage.IsFinale() {
			return nil, false
		}
	}
	return finishers(prev, 1, 2), true
}

// CalculateWBRounds reports how many regular winner-bracket rounds are played
// before the WB Finale when qualiWinnerCount pilots enter the bracket.
func CalculateWBRounds(qualiWinnerCount int) int {
	return calculateWBRounds(qualiWinnerCount, DefaultWBFinaleMaxPilots, NewFourFirstDistributor())
}

func calculateWBRounds(pool, finaleMax int, d HeatDistributor) int {
	rounds := 0
	for pool > finaleMax {
		groups, err := d.Distribute(make([]string, pool))
		if err != nil {
			break
		}
		next := 0
		for _, g := range groups {
			next += min(len(g), 2)
		}
		if next >= pool {
			break
		}
		pool = next
		rounds++
	}
	return rounds
}

// wbFeedsLoserBracketAfter reports whether a regular WB round later than
// `round` exists or will exist, i.e. whether more WB losers can still drop
// into the loser bracket.
func (e *Engine) wbFeedsLoserBracketAfter(round int) bool {
	if f := e.wbFinale(); f != nil {
		return round+1 < f.Stage.Round()
	}
	if next := e.regularRoundHeats(models.BracketWinner, round+1); len(next) > 0 {
		return true
	}
	heats := e.regularRoundHeats(models.BracketWinner, round)
	if len(heats) == 0 || !e.IsRoundComplete(models.BracketWinner, round) {
		return true
	}
	return len(finishers(heats, 1, 2)) > e.wbFinaleMaxPilots
}
