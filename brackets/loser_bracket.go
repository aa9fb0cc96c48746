package brackets

import (
	"log/slog"

	"github.com/Dosada05/racing-tournament/models"
)

// GenerateLBRound creates every heat of loser-bracket round `round`.
//
// Round 1 draws on the qualification losers plus the losers of WB round 1;
// later rounds on the survivors of LB round-1 plus the losers of WB round
// `round`. The pool is reshuffled every round, so LB heats keep no lineage.
// Once no further WB round can feed the bracket and at most four pilots are
// left, the round is the LB Finale.
//
// Unmet preconditions return nil. If the loser bracket itself is ready but the
// matching WB round is not settled yet, LBRoundWaitingForWB is raised.
func (e *Engine) GenerateLBRound(round int) []*models.Heat {
	if round < 1 || e.phase != models.PhaseRunning {
		return nil
	}
	if e.lbFinale() != nil || len(e.roundHeats(models.BracketLoser, round)) > 0 {
		return nil
	}
	if !e.lbSideReady(round) {
		return nil
	}
	if !e.wbSettled(round) {
		if !e.counters.LBRoundWaitingForWB {
			e.logger.Debug("loser bracket round waiting for winner bracket", slog.Int("round", round))
		}
		e.counters.LBRoundWaitingForWB = true
		return nil
	}

	pool := e.lbPool(round)
	e.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	terminal := !e.wbFeedsLoserBracketAfter(round)

	var created []*models.Heat
	switch {
	case len(pool) == 0:
		return nil
	case terminal && len(pool) <= maxHeatSize:
		if len(pool) < minHeatSize {
			e.logger.Error("loser bracket finale needs at least two pilots",
				slog.Int("round", round), slog.Int("pilots", len(pool)))
			return nil
		}
		created = append(created, e.addHeat(pool, models.LoserFinale{RoundNumber: round}))
	default:
		groups, err := e.distributor.Distribute(pool)
		if err != nil {
			e.logger.Error("distribute loser bracket round", slog.Int("round", round), slog.Any("error", err))
			return nil
		}
		for _, g := range groups {
			created = append(created, e.addHeat(g, models.LoserRound{RoundNumber: round}))
		}
	}

	e.claimFromPool(&e.pools.LoserPool, "loser", pool)
	e.counters.CurrentLBRound = round
	e.counters.LBRoundWaitingForWB = false
	e.logger.Info("loser bracket round generated",
		slog.Int("round", round),
		slog.Int("pilots", len(pool)),
		slog.Int("heats", len(created)),
		slog.Bool("finale", created[0].Stage.IsFinale()))
	return cloneHeats(created)
}

func (e *Engine) lbSideReady(round int) bool {
	if round == 1 {
		return e.IsRoundComplete(models.BracketQualification, 0)
	}
	prev := e.regularRoundHeats(models.BracketLoser, round-1)
	return len(prev) > 0 && e.IsRoundComplete(models.BracketLoser, round-1)
}

// wbSettled reports whether WB round `round` has delivered all the losers it
// will ever send to the loser bracket. A WB Finale sends none.
func (e *Engine) wbSettled(round int) bool {
	if f := e.wbFinale(); f != nil && f.Stage.Round() <= round {
		return true
	}
	heats := e.regularRoundHeats(models.BracketWinner, round)
	return len(heats) > 0 && e.IsRoundComplete(models.BracketWinner, round)
}

// lbPool is the unshuffled pool for LB round `round`.
func (e *Engine) lbPool(round int) []string {
	var pool []string
	if round == 1 {
		pool = append(pool, finishers(e.qualificationHeats(), 3, maxHeatSize)...)
	} else {
		pool = append(pool, finishers(e.regularRoundHeats(models.BracketLoser, round-1), 1, 2)...)
	}
	pool = append(pool, finishers(e.regularRoundHeats(models.BracketWinner, round), 3, maxHeatSize)...)
	return pool
}
