package brackets

import (
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/Dosada05/racing-tournament/models"
	"github.com/google/uuid"
)

const (
	DefaultMinPilots         = 7
	DefaultMaxPilots         = 60
	DefaultWBFinaleMaxPilots = 4
)

type Options struct {
	// Rand drives every shuffle. Seed it for reproducible heat composition.
	Rand *rand.Rand
	// Distributor defaults to FourFirstDistributor.
	Distributor HeatDistributor
	Logger      *slog.Logger
	Now         func() time.Time
	NewID       func() string

	MinPilots int
	MaxPilots int
	// WBFinaleMaxPilots is the winner-bracket pool size at or below which the
	// next WB round is played as the WB Finale.
	WBFinaleMaxPilots int
}

// Engine owns the whole mutable state of one tournament. Every command runs to
// completion before returning and performs no I/O. Engine is not safe for
// concurrent use; callers serialize access.
type Engine struct {
	rng         *rand.Rand
	distributor HeatDistributor
	logger      *slog.Logger
	now         func() time.Time
	newID       func() string

	minPilots         int
	maxPilots         int
	wbFinaleMaxPilots int

	phase    models.TournamentPhase
	pilots   []models.Pilot
	heats    []*models.Heat
	pools    models.Pools
	counters models.RoundCounters
}

func New(opts Options) *Engine {
	e := &Engine{
		rng:               opts.Rand,
		distributor:       opts.Distributor,
		logger:            opts.Logger,
		now:               opts.Now,
		newID:             opts.NewID,
		minPilots:         opts.MinPilots,
		maxPilots:         opts.MaxPilots,
		wbFinaleMaxPilots: opts.WBFinaleMaxPilots,
		phase:             models.PhaseSetup,
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if e.distributor == nil {
		e.distributor = NewFourFirstDistributor()
	}
	if e.logger == nil {
		e.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newID == nil {
		e.newID = func() string { return uuid.NewString() }
	}
	if e.minPilots <= 0 {
		e.minPilots = DefaultMinPilots
	}
	if e.maxPilots <= 0 {
		e.maxPilots = DefaultMaxPilots
	}
	if e.wbFinaleMaxPilots <= 0 {
		e.wbFinaleMaxPilots = DefaultWBFinaleMaxPilots
	}
	return e
}

// Queries

func (e *Engine) Phase() models.TournamentPhase {
	return e.phase
}

func (e *Engine) Pilots() []models.Pilot {
	return append([]models.Pilot(nil), e.pilots...)
}

func (e *Engine) Pilot(id string) (models.Pilot, bool) {
	for _, p := range e.pilots {
		if p.ID == id {
			return p, true
		}
	}
	return models.Pilot{}, false
}

// Heats returns copies of all heats in creation order.
func (e *Engine) Heats() []*models.Heat {
	out := make([]*models.Heat, len(e.heats))
	for i, h := range e.heats {
		out[i] = h.Clone()
	}
	return out
}

func (e *Engine) Heat(id string) (*models.Heat, bool) {
	h := e.findHeat(id)
	if h == nil {
		return nil, false
	}
	return h.Clone(), true
}

func (e *Engine) Pools() models.Pools {
	return e.pools.Clone()
}

func (e *Engine) Counters() models.RoundCounters {
	return e.counters
}

// State bundles every query into one consistent view.
func (e *Engine) State() *models.BracketState {
	return &models.BracketState{
		Phase:                     e.phase,
		Pilots:                    e.Pilots(),
		Heats:                     e.Heats(),
		Pools:                     e.Pools(),
		Counters:                  e.counters,
		PilotBracketStates:        e.PilotBracketStates(),
		GrandFinaleRematchPending: e.GrandFinaleRematchPending(),
	}
}

// PilotBracketStates derives each pilot's bracket position from heat history.
// Origin is lb as soon as the pilot has raced in any loser-bracket heat.
func (e *Engine) PilotBracketStates() map[string]models.PilotBracketState {
	states := make(map[string]models.PilotBracketState)
	for _, h := range e.heats {
		for _, id := range h.PilotIDs {
			st := states[id]
			st.Bracket = h.Stage.Bracket()
			if h.Stage.Round() > 0 {
				st.RoundReached = h.Stage.Round()
			}
			if st.Origin == "" {
				st.Origin = models.OriginWinner
			}
			if h.Stage.Bracket() == models.BracketLoser {
				st.Origin = models.OriginLoser
			}
			states[id] = st
		}
	}
	return states
}

func (e *Engine) origin(pilotID string) models.BracketOrigin {
	for _, h := range e.heats {
		if h.Stage.Bracket() == models.BracketLoser && h.Contains(pilotID) {
			return models.OriginLoser
		}
	}
	return models.OriginWinner
}

// Roster commands

func (e *Engine) AddPilot(name string) (models.Pilot, error) {
	if e.phase != models.PhaseSetup {
		return models.Pilot{}, fmt.Errorf("add pilot: %w (phase %s)", ErrInvalidPhase, e.phase)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Pilot{}, ErrPilotNameRequired
	}
	for _, p := range e.pilots {
		if strings.EqualFold(p.Name, name) {
			return models.Pilot{}, fmt.Errorf("%w: %q", ErrPilotNameConflict, name)
		}
	}
	if len(e.pilots) >= e.maxPilots {
		return models.Pilot{}, fmt.Errorf("%w (max %d)", ErrTooManyPilots, e.maxPilots)
	}

	p := models.Pilot{
		ID:        e.newID(),
		Name:      name,
		Status:    models.PilotStatusActive,
		CreatedAt: e.now(),
	}
	e.pilots = append(e.pilots, p)
	e.logger.Debug("pilot added", slog.String("pilot_id", p.ID), slog.String("name", p.Name))
	return p, nil
}

// RemovePilot deletes a pilot from the roster. Only possible before the
// tournament starts.
func (e *Engine) RemovePilot(id string) error {
	if e.phase != models.PhaseSetup {
		return fmt.Errorf("remove pilot: %w (phase %s)", ErrInvalidPhase, e.phase)
	}
	for i, p := range e.pilots {
		if p.ID == id {
			e.pilots = append(e.pilots[:i], e.pilots[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrPilotNotFound, id)
}

// WithdrawPilot marks a pilot as withdrawn. Bracket logic is unaffected; the
// status only shows in standings.
func (e *Engine) WithdrawPilot(id string) error {
	for i := range e.pilots {
		if e.pilots[i].ID != id {
			continue
		}
		if e.pilots[i].Status == models.PilotStatusWithdrawn {
			return ErrPilotWithdrawn
		}
		e.pilots[i].Status = models.PilotStatusWithdrawn
		e.logger.Info("pilot withdrawn", slog.String("pilot_id", id), slog.String("phase", string(e.phase)))
		return nil
	}
	return fmt.Errorf("%w: %s", ErrPilotNotFound, id)
}

// Lifecycle commands

// ConfirmTournamentStart shuffles the active roster into qualification heats
// and moves to heat assignment.
func (e *Engine) ConfirmTournamentStart() ([]*models.Heat, error) {
	if e.phase != models.PhaseSetup {
		return nil, fmt.Errorf("start tournament: %w (phase %s)", ErrInvalidPhase, e.phase)
	}
	ids := make([]string, 0, len(e.pilots))
	for _, p := range e.pilots {
		if p.IsActive() {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) < e.minPilots {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrNotEnoughPilots, len(ids), e.minPilots)
	}
	if len(ids) > e.maxPilots {
		return nil, fmt.Errorf("%w: have %d, max %d", ErrTooManyPilots, len(ids), e.maxPilots)
	}

	e.rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	groups, err := e.distributor.Distribute(ids)
	if err != nil {
		return nil, fmt.Errorf("distribute qualification heats: %w", err)
	}

	created := make([]*models.Heat, 0, len(groups))
	for _, g := range groups {
		created = append(created, e.addHeat(g, models.Qualification{}))
	}
	e.phase = models.PhaseHeatAssignment
	e.logger.Info("qualification heats assigned", slog.Int("pilots", len(ids)), slog.Int("heats", len(created)))
	return cloneHeats(created), nil
}

// SwapPilots exchanges two pilots sitting in different qualification heats.
func (e *Engine) SwapPilots(pilotA, pilotB string) error {
	if e.phase != models.PhaseHeatAssignment {
		return fmt.Errorf("swap pilots: %w (phase %s)", ErrInvalidPhase, e.phase)
	}
	heatA, idxA := e.qualiSeat(pilotA)
	heatB, idxB := e.qualiSeat(pilotB)
	if heatA == nil {
		return fmt.Errorf("%w: %s", ErrPilotNotFound, pilotA)
	}
	if heatB == nil {
		return fmt.Errorf("%w: %s", ErrPilotNotFound, pilotB)
	}
	if heatA == heatB {
		return fmt.Errorf("swap pilots: %w (heat %d)", ErrSameHeat, heatA.HeatNumber)
	}
	heatA.PilotIDs[idxA], heatB.PilotIDs[idxB] = pilotB, pilotA
	return nil
}

func (e *Engine) qualiSeat(pilotID string) (*models.Heat, int) {
	for _, h := range e.heats {
		if _, ok := h.Stage.(models.Qualification); !ok {
			continue
		}
		for i, id := range h.PilotIDs {
			if id == pilotID {
				return h, i
			}
		}
	}
	return nil, -1
}

// CancelHeatAssignment drops the qualification heats and returns to setup.
func (e *Engine) CancelHeatAssignment() error {
	if e.phase != models.PhaseHeatAssignment {
		return fmt.Errorf("cancel heat assignment: %w (phase %s)", ErrInvalidPhase, e.phase)
	}
	e.heats = nil
	e.phase = models.PhaseSetup
	return nil
}

func (e *Engine) ConfirmHeatAssignment() error {
	if e.phase != models.PhaseHeatAssignment {
		return fmt.Errorf("confirm heat assignment: %w (phase %s)", ErrInvalidPhase, e.phase)
	}
	e.phase = models.PhaseRunning
	e.logger.Info("tournament running", slog.Int("qualification_heats", len(e.heats)))
	return nil
}

// StartHeat marks a pending heat as the one currently being flown.
func (e *Engine) StartHeat(id string) error {
	if e.phase != models.PhaseRunning && e.phase != models.PhaseFinale {
		return fmt.Errorf("start heat: %w (phase %s)", ErrInvalidPhase, e.phase)
	}
	h := e.findHeat(id)
	if h == nil {
		return fmt.Errorf("%w: %s", ErrHeatNotFound, id)
	}
	if h.Status != models.HeatStatusPending {
		return fmt.Errorf("%w: %s is %s", ErrHeatNotPending, id, h.Status)
	}
	h.Status = models.HeatStatusActive
	return nil
}

// ResetTournament clears heats, pools and counters but keeps the roster.
func (e *Engine) ResetTournament() {
	e.heats = nil
	e.pools = models.Pools{}
	e.counters = models.RoundCounters{}
	e.phase = models.PhaseSetup
	e.logger.Info("tournament reset", slog.Int("pilots", len(e.pilots)))
}

// ResetAll also clears the roster.
func (e *Engine) ResetAll() {
	e.ResetTournament()
	e.pilots = nil
}

// Internal helpers

func (e *Engine) findHeat(id string) *models.Heat {
	for _, h := range e.heats {
		if h.ID == id {
			return h
		}
	}
	return nil
}

func (e *Engine) addHeat(pilotIDs []string, stage models.Stage) *models.Heat {
	h := &models.Heat{
		ID:         e.newID(),
		HeatNumber: len(e.heats) + 1,
		PilotIDs:   append([]string(nil), pilotIDs...),
		Status:     models.HeatStatusPending,
		Stage:      stage,
	}
	e.heats = append(e.heats, h)
	return h
}

// heatsWhere returns live heats matching pred in creation order.
func (e *Engine) heatsWhere(pred func(*models.Heat) bool) []*models.Heat {
	var out []*models.Heat
	for _, h := range e.heats {
		if pred(h) {
			out = append(out, h)
		}
	}
	return out
}

func cloneHeats(hs []*models.Heat) []*models.Heat {
	out := make([]*models.Heat, len(hs))
	for i, h := range hs {
		out[i] = h.Clone()
	}
	return out
}
