package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type HeatStatus string

const (
	HeatStatusPending   HeatStatus = "pending"
	HeatStatusActive    HeatStatus = "active"
	HeatStatusCompleted HeatStatus = "completed"
)

// ErrInvalidStage is returned when a flat heat record carries a contradictory
// combination of bracket type, round, finale flag and rematch place.
var ErrInvalidStage = errors.New("invalid heat stage")

type Ranking struct {
	PilotID string `json:"pilot_id"`
	Rank    int    `json:"rank"`
}

type Results struct {
	Rankings    []Ranking `json:"rankings"`
	CompletedAt time.Time `json:"completed_at"`
}

// PilotAt returns the pilot holding rank, or "" if no such rank exists.
func (r *Results) PilotAt(rank int) string {
	if r == nil {
		return ""
	}
	for _, rk := range r.Rankings {
		if rk.Rank == rank {
			return rk.PilotID
		}
	}
	return ""
}

// RankOf returns the rank of pilotID, or 0 if the pilot is not ranked.
func (r *Results) RankOf(pilotID string) int {
	if r == nil {
		return 0
	}
	for _, rk := range r.Rankings {
		if rk.PilotID == pilotID {
			return rk.Rank
		}
	}
	return 0
}

// PilotsWithin returns the pilots ranked from..to inclusive, ordered by rank.
func (r *Results) PilotsWithin(from, to int) []string {
	if r == nil || to < from {
		return nil
	}
	out := make([]string, 0, to-from+1)
	for rank := from; rank <= to; rank++ {
		if id := r.PilotAt(rank); id != "" {
			out = append(out, id)
		}
	}
	return out
}

type Heat struct {
	ID         string
	HeatNumber int
	PilotIDs   []string
	Status     HeatStatus
	Stage      Stage
	Results    *Results
}

func (h *Heat) IsCompleted() bool {
	return h.Status == HeatStatusCompleted
}

func (h *Heat) IsOpen() bool {
	return h.Status == HeatStatusPending || h.Status == HeatStatusActive
}

func (h *Heat) Contains(pilotID string) bool {
	for _, id := range h.PilotIDs {
		if id == pilotID {
			return true
		}
	}
	return false
}

func (h *Heat) Clone() *Heat {
	c := *h
	c.PilotIDs = append([]string(nil), h.PilotIDs...)
	if h.Results != nil {
		res := *h.Results
		res.Rankings = append([]Ranking(nil), h.Results.Rankings...)
		c.Results = &res
	}
	return &c
}

// heatRecord is the flat wire form shared by exports and API responses.
type heatRecord struct {
	ID              string      `json:"id"`
	HeatNumber      int         `json:"heat_number"`
	PilotIDs        []string    `json:"pilot_ids"`
	Status          HeatStatus  `json:"status"`
	BracketType     BracketType `json:"bracket_type"`
	RoundNumber     *int        `json:"round_number,omitempty"`
	IsFinale        bool        `json:"is_finale,omitempty"`
	RematchForPlace *int        `json:"rematch_for_place,omitempty"`
	Results         *Results    `json:"results,omitempty"`
}

func (h Heat) MarshalJSON() ([]byte, error) {
	if h.Stage == nil {
		return nil, fmt.Errorf("heat %s: %w: missing stage", h.ID, ErrInvalidStage)
	}
	rec := heatRecord{
		ID:          h.ID,
		HeatNumber:  h.HeatNumber,
		PilotIDs:    h.PilotIDs,
		Status:      h.Status,
		BracketType: h.Stage.Bracket(),
		IsFinale:    h.Stage.IsFinale(),
		Results:     h.Results,
	}
	switch s := h.Stage.(type) {
	case WinnerRound, WinnerFinale, LoserRound, LoserFinale:
		round := s.Round()
		rec.RoundNumber = &round
	case Rematch:
		place := s.ForPlace
		rec.RematchForPlace = &place
	}
	return json.Marshal(rec)
}

// UnmarshalJSON rejects unknown fields and contradictory stage data.
func (h *Heat) UnmarshalJSON(data []byte) error {
	var rec heatRecord
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rec); err != nil {
		return err
	}
	stage, err := stageFromRecord(rec)
	if err != nil {
		return fmt.Errorf("heat %s: %w", rec.ID, err)
	}
	*h = Heat{
		ID:         rec.ID,
		HeatNumber: rec.HeatNumber,
		PilotIDs:   rec.PilotIDs,
		Status:     rec.Status,
		Stage:      stage,
		Results:    rec.Results,
	}
	return nil
}

func stageFromRecord(rec heatRecord) (Stage, error) {
	switch rec.BracketType {
	case BracketQualification:
		if rec.RoundNumber != nil || rec.IsFinale || rec.RematchForPlace != nil {
			return nil, fmt.Errorf("%w: qualification heats carry no round, finale or rematch data", ErrInvalidStage)
		}
		return Qualification{}, nil
	case BracketWinner, BracketLoser:
		if rec.RematchForPlace != nil {
			return nil, fmt.Errorf("%w: rematch place on a %s heat", ErrInvalidStage, rec.BracketType)
		}
		if rec.RoundNumber == nil || *rec.RoundNumber < 1 {
			return nil, fmt.Errorf("%w: %s heat needs a round number >= 1", ErrInvalidStage, rec.BracketType)
		}
		round := *rec.RoundNumber
		switch {
		case rec.BracketType == BracketWinner && rec.IsFinale:
			return WinnerFinale{RoundNumber: round}, nil
		case rec.BracketType == BracketWinner:
			return WinnerRound{RoundNumber: round}, nil
		case rec.IsFinale:
			return LoserFinale{RoundNumber: round}, nil
		default:
			return LoserRound{RoundNumber: round}, nil
		}
	case BracketGrandFinale:
		if rec.RoundNumber != nil {
			return nil, fmt.Errorf("%w: grand finale heats carry no round", ErrInvalidStage)
		}
		if rec.RematchForPlace != nil {
			if rec.IsFinale || (*rec.RematchForPlace != 1 && *rec.RematchForPlace != 2) {
				return nil, fmt.Errorf("%w: rematch must be for place 1 or 2", ErrInvalidStage)
			}
			return Rematch{ForPlace: *rec.RematchForPlace}, nil
		}
		if !rec.IsFinale {
			return nil, fmt.Errorf("%w: grand finale heat must be flagged as finale", ErrInvalidStage)
		}
		return GrandFinale{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown bracket type %q", ErrInvalidStage, rec.BracketType)
	}
}
