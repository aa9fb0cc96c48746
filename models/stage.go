package models

import "fmt"

type BracketType string

const (
	BracketQualification BracketType = "qualification"
	BracketWinner        BracketType = "winner"
	BracketLoser         BracketType = "loser"
	BracketGrandFinale   BracketType = "grand_finale"
)

func (b BracketType) Valid() bool {
	switch b {
	case BracketQualification, BracketWinner, BracketLoser, BracketGrandFinale:
		return true
	}
	return false
}

// Stage is the closed set of heat kinds. Each variant carries only the fields
// that make sense for it.
type Stage interface {
	Bracket() BracketType
	// Round is the bracket round the heat belongs to; 0 for qualification,
	// grand finale and rematch heats.
	Round() int
	IsFinale() bool
	stage()
}

type Qualification struct{}

type WinnerRound struct {
	RoundNumber int
}

type WinnerFinale struct {
	RoundNumber int
}

type LoserRound struct {
	RoundNumber int
}

type LoserFinale struct {
	RoundNumber int
}

type GrandFinale struct{}

// Rematch is a 1v1 decider for ForPlace against the pilot two places lower.
type Rematch struct {
	ForPlace int
}

func (Qualification) Bracket() BracketType { return BracketQualification }
func (Qualification) Round() int           { return 0 }
func (Qualification) IsFinale() bool       { return false }
func (Qualification) stage()               {}

func (s WinnerRound) Bracket() BracketType { return BracketWinner }
func (s WinnerRound) Round() int           { return s.RoundNumber }
func (WinnerRound) IsFinale() bool         { return false }
func (WinnerRound) stage()                 {}

func (s WinnerFinale) Bracket() BracketType { return BracketWinner }
func (s WinnerFinale) Round() int           { return s.RoundNumber }
func (WinnerFinale) IsFinale() bool         { return true }
func (WinnerFinale) stage()                 {}

func (s LoserRound) Bracket() BracketType { return BracketLoser }
func (s LoserRound) Round() int           { return s.RoundNumber }
func (LoserRound) IsFinale() bool         { return false }
func (LoserRound) stage()                 {}

func (s LoserFinale) Bracket() BracketType { return BracketLoser }
func (s LoserFinale) Round() int           { return s.RoundNumber }
func (LoserFinale) IsFinale() bool         { return true }
func (LoserFinale) stage()                 {}

func (GrandFinale) Bracket() BracketType { return BracketGrandFinale }
func (GrandFinale) Round() int           { return 0 }
func (GrandFinale) IsFinale() bool       { return true }
func (GrandFinale) stage()               {}

func (Rematch) Bracket() BracketType { return BracketGrandFinale }
func (Rematch) Round() int           { return 0 }
func (Rematch) IsFinale() bool       { return false }
func (Rematch) stage()               {}

// ValidateStage checks the data a stage variant carries: bracket rounds start
// at 1 and a rematch decides place 1 or 2.
func ValidateStage(s Stage) error {
	switch s := s.(type) {
	case nil:
		return fmt.Errorf("%w: missing stage", ErrInvalidStage)
	case Qualification, GrandFinale:
		return nil
	case WinnerRound, WinnerFinale, LoserRound, LoserFinale:
		if s.Round() < 1 {
			return fmt.Errorf("%w: %s heat needs a round number >= 1", ErrInvalidStage, s.Bracket())
		}
		return nil
	case Rematch:
		if s.ForPlace != 1 && s.ForPlace != 2 {
			return fmt.Errorf("%w: rematch must be for place 1 or 2", ErrInvalidStage)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown stage %T", ErrInvalidStage, s)
	}
}
