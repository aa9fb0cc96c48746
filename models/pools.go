package models

// Pools hold pilots awaiting their next grouping step. A pilot id is in at
// most one pool at a time.
type Pools struct {
	WinnerPilots     []string `json:"winner_pilots"`
	LoserPool        []string `json:"loser_pool"`
	EliminatedPilots []string `json:"eliminated_pilots"`
	GrandFinalePool  []string `json:"grand_finale_pool"`
}

func (p Pools) Clone() Pools {
	return Pools{
		WinnerPilots:     append([]string{}, p.WinnerPilots...),
		LoserPool:        append([]string{}, p.LoserPool...),
		EliminatedPilots: append([]string{}, p.EliminatedPilots...),
		GrandFinalePool:  append([]string{}, p.GrandFinalePool...),
	}
}

type RoundCounters struct {
	CurrentWBRound      int  `json:"current_wb_round"`
	CurrentLBRound      int  `json:"current_lb_round"`
	LBRoundWaitingForWB bool `json:"lb_round_waiting_for_wb"`
}

type BracketOrigin string

const (
	OriginWinner BracketOrigin = "wb"
	OriginLoser  BracketOrigin = "lb"
)

// PilotBracketState summarizes a pilot's heat history. It is always derived,
// never stored.
type PilotBracketState struct {
	Bracket      BracketType   `json:"bracket"`
	Origin       BracketOrigin `json:"bracket_origin"`
	RoundReached int           `json:"round_reached"`
}
