package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/Dosada05/racing-tournament/brackets"
	"github.com/Dosada05/racing-tournament/models"
	"github.com/Dosada05/racing-tournament/repositories"
	"github.com/Dosada05/racing-tournament/storage"
	"golang.org/x/sync/errgroup"
)

const preloadConcurrency = 4

// Publisher pushes live updates to the viewers of a tournament.
type Publisher interface {
	Publish(tournamentID int, eventType string, payload interface{})
}

// EngineFactory builds a fresh engine for a tournament. Each engine needs its
// own random source because engines of different tournaments run concurrently.
type EngineFactory func(tournamentID int) *brackets.Engine

type TournamentService interface {
	CreateTournament(ctx context.Context, name string) (*models.Tournament, error)
	ListTournaments(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error)
	GetTournament(ctx context.Context, id int) (*models.Tournament, error)
	DeleteTournament(ctx context.Context, id int) error

	AddPilot(ctx context.Context, id int, name string) (*models.Pilot, error)
	RemovePilot(ctx context.Context, id int, pilotID string) error
	WithdrawPilot(ctx context.Context, id int, pilotID string) error

	StartTournament(ctx context.Context, id int) ([]*models.Heat, error)
	SwapPilots(ctx context.Context, id int, pilotA, pilotB string) error
	CancelHeatAssignment(ctx context.Context, id int) error
	ConfirmHeatAssignment(ctx context.Context, id int) error
	ResetTournament(ctx context.Context, id int, keepPilots bool) error

	StartHeat(ctx context.Context, id int, heatID string) error
	SubmitHeatResults(ctx context.Context, id int, heatID string, rankings []models.Ranking) (*brackets.SubmitOutcome, error)
	ReopenHeat(ctx context.Context, id int, heatID string) error
	GenerateGrandFinale(ctx context.Context, id int) (*models.Heat, error)
	RoundComplete(ctx context.Context, id int, bracket models.BracketType, round int) (bool, error)

	Standings(ctx context.Context, id int) ([]models.Placement, error)
	ExportSnapshot(ctx context.Context, id int) ([]byte, error)
	ImportSnapshot(ctx context.Context, id int, data []byte) error
	ArchiveSnapshot(ctx context.Context, id int) (*ArchiveResult, error)
	RestoreFromArchive(ctx context.Context, id int) error

	Preload(ctx context.Context) error
}

type ArchiveResult struct {
	SnapshotKey  string `json:"snapshot_key"`
	SnapshotURL  string `json:"snapshot_url,omitempty"`
	StandingsKey string `json:"standings_key,omitempty"`
	StandingsURL string `json:"standings_url,omitempty"`
}

// tournamentEntry serializes every command against one tournament's engine.
type tournamentEntry struct {
	mu     sync.Mutex
	engine *brackets.Engine
}

type tournamentService struct {
	repo      repositories.TournamentRepository
	archive   storage.SnapshotArchive
	publisher Publisher
	newEngine EngineFactory
	logger    *slog.Logger

	mu      sync.Mutex
	entries map[int]*tournamentEntry
}

// NewTournamentService wires the engines to persistence and live updates.
// archive may be nil, in which case archive operations fail with
// ErrArchiveDisabled.
func NewTournamentService(
	repo repositories.TournamentRepository,
	archive storage.SnapshotArchive,
	publisher Publisher,
	newEngine EngineFactory,
	logger *slog.Logger,
) TournamentService {
	return &tournamentService{
		repo:      repo,
		archive:   archive,
		publisher: publisher,
		newEngine: newEngine,
		logger:    logger,
		entries:   make(map[int]*tournamentEntry),
	}
}

func (s *tournamentService) CreateTournament(ctx context.Context, name string) (*models.Tournament, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrTournamentNameRequired
	}

	t := &models.Tournament{Name: name, Phase: models.PhaseSetup}
	if err := s.repo.Create(ctx, t); err != nil {
		if errors.Is(err, repositories.ErrTournamentNameConflict) {
			return nil, ErrTournamentNameConflict
		}
		return nil, fmt.Errorf("failed to create tournament: %w", err)
	}

	engine := s.newEngine(t.ID)
	entry := s.entryFor(t.ID)
	entry.mu.Lock()
	entry.engine = engine
	t.State = engine.State()
	entry.mu.Unlock()

	s.logger.Info("tournament created", slog.Int("tournament_id", t.ID), slog.String("name", t.Name))
	return t, nil
}

func (s *tournamentService) ListTournaments(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error) {
	for _, p := range filter.Phases {
		if !p.Valid() {
			return nil, fmt.Errorf("%w: unknown phase %q", ErrValidationFailed, p)
		}
	}
	tournaments, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list tournaments: %w", err)
	}
	return tournaments, nil
}

func (s *tournamentService) GetTournament(ctx context.Context, id int) (*models.Tournament, error) {
	t, err := s.getRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	err = s.read(ctx, id, func(e *brackets.Engine) error {
		t.Phase = e.Phase()
		t.State = e.State()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *tournamentService) DeleteTournament(ctx context.Context, id int) error {
	t, err := s.getRecord(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return ErrTournamentNotFound
		}
		return fmt.Errorf("failed to delete tournament %d: %w", id, err)
	}

	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()

	if s.archive != nil && t.ArchiveKey != nil {
		for _, key := range []string{*t.ArchiveKey, storage.StandingsKey(id)} {
			if err := s.archive.Delete(ctx, key); err != nil {
				s.logger.Warn("failed to delete archived object",
					slog.Int("tournament_id", id), slog.String("key", key), slog.Any("error", err))
			}
		}
	}
	s.logger.Info("tournament deleted", slog.Int("tournament_id", id))
	return nil
}

// Roster

func (s *tournamentService) AddPilot(ctx context.Context, id int, name string) (*models.Pilot, error) {
	var pilot models.Pilot
	err := s.mutate(ctx, id, func(e *brackets.Engine) error {
		var err error
		pilot, err = e.AddPilot(name)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &pilot, nil
}

func (s *tournamentService) RemovePilot(ctx context.Context, id int, pilotID string) error {
	return s.mutate(ctx, id, func(e *brackets.Engine) error {
		return e.RemovePilot(pilotID)
	})
}

func (s *tournamentService) WithdrawPilot(ctx context.Context, id int, pilotID string) error {
	return s.mutate(ctx, id, func(e *brackets.Engine) error {
		return e.WithdrawPilot(pilotID)
	})
}

// Lifecycle

func (s *tournamentService) StartTournament(ctx context.Context, id int) ([]*models.Heat, error) {
	var heats []*models.Heat
	err := s.mutate(ctx, id, func(e *brackets.Engine) error {
		var err error
		heats, err = e.ConfirmTournamentStart()
		return err
	})
	return heats, err
}

func (s *tournamentService) SwapPilots(ctx context.Context, id int, pilotA, pilotB string) error {
	return s.mutate(ctx, id, func(e *brackets.Engine) error {
		return e.SwapPilots(pilotA, pilotB)
	})
}

func (s *tournamentService) CancelHeatAssignment(ctx context.Context, id int) error {
	return s.mutate(ctx, id, func(e *brackets.Engine) error {
		return e.CancelHeatAssignment()
	})
}

func (s *tournamentService) ConfirmHeatAssignment(ctx context.Context, id int) error {
	return s.mutate(ctx, id, func(e *brackets.Engine) error {
		return e.ConfirmHeatAssignment()
	})
}

func (s *tournamentService) ResetTournament(ctx context.Context, id int, keepPilots bool) error {
	return s.mutate(ctx, id, func(e *brackets.Engine) error {
		if keepPilots {
			e.ResetTournament()
		} else {
			e.ResetAll()
		}
		return nil
	})
}

// Heats

func (s *tournamentService) StartHeat(ctx context.Context, id int, heatID string) error {
	return s.mutate(ctx, id, func(e *brackets.Engine) error {
		return e.StartHeat(heatID)
	})
}

// SubmitHeatResults records a heat and runs the cascade. When the Grand
// Finale is refused the results are still persisted and the outcome is
// returned together with the error.
func (s *tournamentService) SubmitHeatResults(ctx context.Context, id int, heatID string, rankings []models.Ranking) (*brackets.SubmitOutcome, error) {
	var out *brackets.SubmitOutcome
	err := s.mutate(ctx, id, func(e *brackets.Engine) error {
		var err error
		out, err = e.SubmitHeatResults(heatID, rankings)
		return err
	})
	if out == nil || !stateChanged(err) {
		return nil, err
	}
	s.publish(id, brackets.EventHeatCompleted, out)
	if out.Phase == models.PhaseCompleted {
		s.publish(id, brackets.EventTournamentDone, out.Heat)
	}
	return out, err
}

func (s *tournamentService) ReopenHeat(ctx context.Context, id int, heatID string) error {
	return s.mutate(ctx, id, func(e *brackets.Engine) error {
		return e.ReopenHeat(heatID)
	})
}

func (s *tournamentService) GenerateGrandFinale(ctx context.Context, id int) (*models.Heat, error) {
	var gf *models.Heat
	err := s.mutate(ctx, id, func(e *brackets.Engine) error {
		var err error
		gf, err = e.GenerateGrandFinale()
		return err
	})
	return gf, err
}

func (s *tournamentService) RoundComplete(ctx context.Context, id int, bracket models.BracketType, round int) (bool, error) {
	if !bracket.Valid() || round < 0 {
		return false, fmt.Errorf("%w: unknown round %s/%d", ErrValidationFailed, bracket, round)
	}
	var complete bool
	err := s.read(ctx, id, func(e *brackets.Engine) error {
		complete = e.IsRoundComplete(bracket, round)
		return nil
	})
	return complete, err
}

// Results and snapshots

func (s *tournamentService) Standings(ctx context.Context, id int) ([]models.Placement, error) {
	var standings []models.Placement
	err := s.read(ctx, id, func(e *brackets.Engine) error {
		var err error
		standings, err = e.Standings()
		return err
	})
	return standings, err
}

func (s *tournamentService) ExportSnapshot(ctx context.Context, id int) ([]byte, error) {
	var data []byte
	err := s.read(ctx, id, func(e *brackets.Engine) error {
		var err error
		data, err = e.Export().Encode()
		return err
	})
	return data, err
}

func (s *tournamentService) ImportSnapshot(ctx context.Context, id int, data []byte) error {
	snapshot, err := brackets.DecodeSnapshot(data)
	if err != nil {
		return err
	}
	return s.mutate(ctx, id, func(e *brackets.Engine) error {
		return e.Import(snapshot)
	})
}

// ArchiveSnapshot uploads the current export and, once the tournament is
// completed, its standings. Both uploads run concurrently.
func (s *tournamentService) ArchiveSnapshot(ctx context.Context, id int) (*ArchiveResult, error) {
	if s.archive == nil {
		return nil, ErrArchiveDisabled
	}

	var snapshot, standings []byte
	err := s.read(ctx, id, func(e *brackets.Engine) error {
		var err error
		if snapshot, err = e.Export().Encode(); err != nil {
			return err
		}
		if e.Phase() != models.PhaseCompleted {
			return nil
		}
		placements, err := e.Standings()
		if err != nil {
			return err
		}
		standings, err = json.Marshal(placements)
		return err
	})
	if err != nil {
		return nil, err
	}

	result := &ArchiveResult{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		up, err := s.archive.Put(gctx, storage.SnapshotKey(id), "application/json", bytes.NewReader(snapshot))
		if err != nil {
			return err
		}
		result.SnapshotKey, result.SnapshotURL = up.Key, up.Location
		return nil
	})
	if standings != nil {
		g.Go(func() error {
			up, err := s.archive.Put(gctx, storage.StandingsKey(id), "application/json", bytes.NewReader(standings))
			if err != nil {
				return err
			}
			result.StandingsKey, result.StandingsURL = up.Key, up.Location
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to archive tournament %d: %w", id, err)
	}

	if err := s.repo.UpdateArchiveKey(ctx, id, &result.SnapshotKey); err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to record archive key: %w", err)
	}
	s.logger.Info("tournament archived",
		slog.Int("tournament_id", id),
		slog.String("snapshot_key", result.SnapshotKey),
		slog.Bool("with_standings", result.StandingsKey != ""))
	return result, nil
}

func (s *tournamentService) RestoreFromArchive(ctx context.Context, id int) error {
	if s.archive == nil {
		return ErrArchiveDisabled
	}
	t, err := s.getRecord(ctx, id)
	if err != nil {
		return err
	}
	if t.ArchiveKey == nil {
		return ErrArchiveNotFound
	}
	data, err := s.archive.Get(ctx, *t.ArchiveKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return ErrArchiveNotFound
		}
		return fmt.Errorf("failed to fetch archived snapshot: %w", err)
	}
	return s.ImportSnapshot(ctx, id, data)
}

// Preload restores the engines of every unfinished tournament at startup.
func (s *tournamentService) Preload(ctx context.Context) error {
	tournaments, err := s.repo.List(ctx, repositories.ListTournamentsFilter{
		Phases: []models.TournamentPhase{models.PhaseSetup, models.PhaseHeatAssignment, models.PhaseRunning, models.PhaseFinale},
	})
	if err != nil {
		return fmt.Errorf("failed to list tournaments for preload: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(preloadConcurrency)
	for _, t := range tournaments {
		id := t.ID
		g.Go(func() error {
			return s.read(gctx, id, func(*brackets.Engine) error { return nil })
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	s.logger.Info("tournaments preloaded", slog.Int("count", len(tournaments)))
	return nil
}

// Engine access

func (s *tournamentService) entryFor(id int) *tournamentEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		entry = &tournamentEntry{}
		s.entries[id] = entry
	}
	return entry
}

func (s *tournamentService) getRecord(ctx context.Context, id int) (*models.Tournament, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to get tournament %d: %w", id, err)
	}
	return t, nil
}

// load rebuilds an engine from the stored snapshot. Caller holds entry.mu.
func (s *tournamentService) load(ctx context.Context, id int, entry *tournamentEntry) error {
	if entry.engine != nil {
		return nil
	}
	t, err := s.getRecord(ctx, id)
	if err != nil {
		return err
	}
	engine := s.newEngine(id)
	if len(t.Snapshot) > 0 {
		snapshot, err := brackets.DecodeSnapshot(t.Snapshot)
		if err != nil {
			return fmt.Errorf("stored snapshot of tournament %d: %w", id, err)
		}
		if err := engine.Import(snapshot); err != nil {
			return fmt.Errorf("stored snapshot of tournament %d: %w", id, err)
		}
	}
	entry.engine = engine
	s.logger.Debug("engine loaded", slog.Int("tournament_id", id), slog.String("phase", string(engine.Phase())))
	return nil
}

func (s *tournamentService) read(ctx context.Context, id int, fn func(*brackets.Engine) error) error {
	entry := s.entryFor(id)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if err := s.load(ctx, id, entry); err != nil {
		return err
	}
	return fn(entry.engine)
}

// mutate runs a command, persists the new snapshot and broadcasts the state.
// If persisting fails the engine is rolled back so memory never runs ahead of
// the database.
func (s *tournamentService) mutate(ctx context.Context, id int, fn func(*brackets.Engine) error) error {
	entry := s.entryFor(id)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if err := s.load(ctx, id, entry); err != nil {
		return err
	}
	e := entry.engine

	before := e.Export()
	cmdErr := fn(e)
	if !stateChanged(cmdErr) {
		return cmdErr
	}

	data, err := e.Export().Encode()
	if err == nil {
		err = s.repo.SaveSnapshot(ctx, nil, id, e.Phase(), data)
	}
	if err != nil {
		if rbErr := e.Import(before); rbErr != nil {
			s.logger.Error("failed to roll back engine", slog.Int("tournament_id", id), slog.Any("error", rbErr))
			entry.engine = nil
		}
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return ErrTournamentNotFound
		}
		return fmt.Errorf("failed to persist tournament %d: %w", id, err)
	}

	s.publish(id, brackets.EventBracketUpdated, e.State())
	return cmdErr
}

// stateChanged reports whether a command left new state behind. A refused
// Grand Finale still keeps the submitted heat results.
func stateChanged(err error) bool {
	return err == nil ||
		errors.Is(err, brackets.ErrDuplicateFinalist) ||
		errors.Is(err, brackets.ErrFinalistsIncomplete)
}

func (s *tournamentService) publish(id int, eventType string, payload interface{}) {
	if s.publisher != nil {
		s.publisher.Publish(id, eventType, payload)
	}
}
