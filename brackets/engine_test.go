package brackets

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/Dosada05/racing-tournament/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(seed int64) *Engine {
	n := 0
	return New(Options{
		Rand:  rand.New(rand.NewSource(seed)),
		Now:   func() time.Time { return fixedNow },
		NewID: func() string { n++; return fmt.Sprintf("id-%03d", n) },
	})
}

func addPilots(t *testing.T, e *Engine, count int) []models.Pilot {
	t.Helper()
	pilots := make([]models.Pilot, 0, count)
	for i := 1; i <= count; i++ {
		p, err := e.AddPilot(fmt.Sprintf("Pilot %02d", i))
		require.NoError(t, err)
		pilots = append(pilots, p)
	}
	return pilots
}

func runningEngine(t *testing.T, pilots int, seed int64) *Engine {
	t.Helper()
	e := newTestEngine(seed)
	addPilots(t, e, pilots)
	_, err := e.ConfirmTournamentStart()
	require.NoError(t, err)
	require.NoError(t, e.ConfirmHeatAssignment())
	return e
}

// inOrder ranks a heat's pilots in the order they are listed.
func inOrder(h *models.Heat) []models.Ranking {
	return rankAs(h.PilotIDs...)
}

func rankAs(ids ...string) []models.Ranking {
	r := make([]models.Ranking, len(ids))
	for i, id := range ids {
		r[i] = models.Ranking{PilotID: id, Rank: i + 1}
	}
	return r
}

func openHeats(e *Engine) []*models.Heat {
	var out []*models.Heat
	for _, h := range e.Heats() {
		if h.IsOpen() {
			out = append(out, h)
		}
	}
	return out
}

func heatsByStage(e *Engine, match func(models.Stage) bool) []*models.Heat {
	var out []*models.Heat
	for _, h := range e.Heats() {
		if match(h.Stage) {
			out = append(out, h)
		}
	}
	return out
}

func isStage[T models.Stage](s models.Stage) bool {
	_, ok := s.(T)
	return ok
}

func submit(t *testing.T, e *Engine, h *models.Heat, rankings []models.Ranking) *SubmitOutcome {
	t.Helper()
	out, err := e.SubmitHeatResults(h.ID, rankings)
	require.NoError(t, err)
	return out
}

// playUntil completes open heats (lowest heat number first) with rank until
// stop reports true or nothing is left to fly.
func playUntil(t *testing.T, e *Engine, rank func(*models.Heat) []models.Ranking, stop func(*Engine) bool) {
	t.Helper()
	for i := 0; i < 500; i++ {
		if stop != nil && stop(e) {
			return
		}
		open := openHeats(e)
		if len(open) == 0 {
			return
		}
		submit(t, e, open[0], rank(open[0]))
	}
	t.Fatal("tournament did not settle")
}

func playOut(t *testing.T, e *Engine) {
	t.Helper()
	playUntil(t, e, inOrder, nil)
}

func TestAddPilotValidation(t *testing.T) {
	e := newTestEngine(1)

	_, err := e.AddPilot("   ")
	assert.ErrorIs(t, err, ErrPilotNameRequired)

	p, err := e.AddPilot("Nova")
	require.NoError(t, err)
	assert.Equal(t, models.PilotStatusActive, p.Status)
	assert.Equal(t, fixedNow, p.CreatedAt)

	_, err = e.AddPilot("nova")
	assert.ErrorIs(t, err, ErrPilotNameConflict)

	require.NoError(t, e.RemovePilot(p.ID))
	assert.Empty(t, e.Pilots())
	assert.ErrorIs(t, e.RemovePilot(p.ID), ErrPilotNotFound)
}

func TestAddPilotRespectsMaximum(t *testing.T) {
	e := New(Options{MaxPilots: 2})
	_, err := e.AddPilot("A")
	require.NoError(t, err)
	_, err = e.AddPilot("B")
	require.NoError(t, err)
	_, err = e.AddPilot("C")
	assert.ErrorIs(t, err, ErrTooManyPilots)
}

func TestConfirmTournamentStart(t *testing.T) {
	t.Run("needs minimum pilots", func(t *testing.T) {
		e := newTestEngine(1)
		addPilots(t, e, 6)
		_, err := e.ConfirmTournamentStart()
		assert.ErrorIs(t, err, ErrNotEnoughPilots)
		assert.Equal(t, models.PhaseSetup, e.Phase())
	})

	t.Run("withdrawn pilots do not count", func(t *testing.T) {
		e := newTestEngine(1)
		pilots := addPilots(t, e, 7)
		require.NoError(t, e.WithdrawPilot(pilots[0].ID))
		_, err := e.ConfirmTournamentStart()
		assert.ErrorIs(t, err, ErrNotEnoughPilots)
	})

	t.Run("assigns every active pilot once", func(t *testing.T) {
		e := newTestEngine(7)
		pilots := addPilots(t, e, 15)
		heats, err := e.ConfirmTournamentStart()
		require.NoError(t, err)
		assert.Equal(t, models.PhaseHeatAssignment, e.Phase())

		seen := map[string]int{}
		threes := 0
		for _, h := range heats {
			assert.IsType(t, models.Qualification{}, h.Stage)
			assert.Equal(t, models.HeatStatusPending, h.Status)
			if len(h.PilotIDs) == 3 {
				threes++
			}
			for _, id := range h.PilotIDs {
				seen[id]++
			}
		}
		assert.Len(t, heats, 4)
		assert.Equal(t, 1, threes)
		assert.Len(t, seen, len(pilots))
		for _, n := range seen {
			assert.Equal(t, 1, n)
		}
	})

	t.Run("same seed gives same assignment", func(t *testing.T) {
		a, b := newTestEngine(42), newTestEngine(42)
		addPilots(t, a, 12)
		addPilots(t, b, 12)
		ha, err := a.ConfirmTournamentStart()
		require.NoError(t, err)
		hb, err := b.ConfirmTournamentStart()
		require.NoError(t, err)
		for i := range ha {
			assert.Equal(t, ha[i].PilotIDs, hb[i].PilotIDs)
		}
	})
}

func TestHeatAssignmentEditing(t *testing.T) {
	e := newTestEngine(3)
	addPilots(t, e, 8)
	heats, err := e.ConfirmTournamentStart()
	require.NoError(t, err)

	a, b := heats[0].PilotIDs[0], heats[1].PilotIDs[3]
	require.NoError(t, e.SwapPilots(a, b))
	got := e.Heats()
	assert.Equal(t, b, got[0].PilotIDs[0])
	assert.Equal(t, a, got[1].PilotIDs[3])

	assert.ErrorIs(t, e.SwapPilots(a, "nobody"), ErrPilotNotFound)

	beforeSwap := e.Heats()
	assert.ErrorIs(t, e.SwapPilots(b, heats[0].PilotIDs[1]), ErrSameHeat)
	assert.ErrorIs(t, e.SwapPilots(a, a), ErrSameHeat)
	assert.Equal(t, beforeSwap, e.Heats())

	require.NoError(t, e.CancelHeatAssignment())
	assert.Equal(t, models.PhaseSetup, e.Phase())
	assert.Empty(t, e.Heats())

	_, err = e.ConfirmTournamentStart()
	require.NoError(t, err)
	require.NoError(t, e.ConfirmHeatAssignment())
	assert.Equal(t, models.PhaseRunning, e.Phase())
	assert.ErrorIs(t, e.SwapPilots(a, b), ErrInvalidPhase)
}

func TestStartHeat(t *testing.T) {
	e := runningEngine(t, 8, 1)
	h := e.Heats()[0]

	require.NoError(t, e.StartHeat(h.ID))
	got, ok := e.Heat(h.ID)
	require.True(t, ok)
	assert.Equal(t, models.HeatStatusActive, got.Status)

	assert.ErrorIs(t, e.StartHeat(h.ID), ErrHeatNotPending)
	assert.ErrorIs(t, e.StartHeat("missing"), ErrHeatNotFound)
}

func TestResetTournamentKeepsRoster(t *testing.T) {
	e := runningEngine(t, 8, 1)
	playOut(t, e)
	require.Equal(t, models.PhaseCompleted, e.Phase())

	e.ResetTournament()
	assert.Equal(t, models.PhaseSetup, e.Phase())
	assert.Empty(t, e.Heats())
	assert.Equal(t, models.Pools{}, e.pools)
	assert.Equal(t, models.RoundCounters{}, e.Counters())
	assert.Len(t, e.Pilots(), 8)

	e.ResetAll()
	assert.Empty(t, e.Pilots())
}

func TestPilotBracketStatesAreDerived(t *testing.T) {
	e := runningEngine(t, 8, 5)
	playUntil(t, e, inOrder, func(e *Engine) bool { return e.grandFinale() != nil })

	states := e.PilotBracketStates()
	gf := e.grandFinale()
	for i, id := range gf.PilotIDs {
		st := states[id]
		assert.Equal(t, models.BracketGrandFinale, st.Bracket)
		if i < 2 {
			assert.Equal(t, models.OriginWinner, st.Origin)
		} else {
			assert.Equal(t, models.OriginLoser, st.Origin)
		}
	}
}
