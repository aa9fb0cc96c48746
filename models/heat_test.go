package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeatStageRoundTrip(t *testing.T) {
	stages := []Stage{
		Qualification{},
		WinnerRound{RoundNumber: 2},
		WinnerFinale{RoundNumber: 3},
		LoserRound{RoundNumber: 1},
		LoserFinale{RoundNumber: 4},
		GrandFinale{},
		Rematch{ForPlace: 2},
	}
	for _, stage := range stages {
		h := Heat{ID: "h1", HeatNumber: 7, PilotIDs: []string{"a", "b"}, Status: HeatStatusPending, Stage: stage}
		data, err := json.Marshal(h)
		require.NoError(t, err)

		var got Heat
		require.NoError(t, json.Unmarshal(data, &got), string(data))
		assert.Equal(t, stage, got.Stage)
		assert.Equal(t, h.PilotIDs, got.PilotIDs)
	}
}

func TestHeatWithoutStageDoesNotMarshal(t *testing.T) {
	_, err := json.Marshal(Heat{ID: "h1"})
	assert.ErrorIs(t, err, ErrInvalidStage)
}

func TestHeatRejectsContradictoryStage(t *testing.T) {
	tests := map[string]string{
		"quali with round":     `{"id":"h","bracket_type":"qualification","round_number":1}`,
		"winner without round": `{"id":"h","bracket_type":"winner"}`,
		"loser round zero":     `{"id":"h","bracket_type":"loser","round_number":0}`,
		"winner rematch":       `{"id":"h","bracket_type":"winner","round_number":1,"rematch_for_place":1}`,
		"gf with round":        `{"id":"h","bracket_type":"grand_finale","round_number":1,"is_finale":true}`,
		"gf not finale":        `{"id":"h","bracket_type":"grand_finale"}`,
		"rematch for third":    `{"id":"h","bracket_type":"grand_finale","rematch_for_place":3}`,
		"unknown bracket":      `{"id":"h","bracket_type":"consolation"}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			var h Heat
			assert.ErrorIs(t, json.Unmarshal([]byte(raw), &h), ErrInvalidStage)
		})
	}
}

func TestResultsLookups(t *testing.T) {
	r := &Results{Rankings: []Ranking{
		{PilotID: "c", Rank: 3},
		{PilotID: "a", Rank: 1},
		{PilotID: "b", Rank: 2},
	}}
	assert.Equal(t, "a", r.PilotAt(1))
	assert.Equal(t, "", r.PilotAt(4))
	assert.Equal(t, 3, r.RankOf("c"))
	assert.Equal(t, 0, r.RankOf("z"))
	assert.ElementsMatch(t, []string{"b", "c"}, r.PilotsWithin(2, 4))
	assert.Equal(t, []string{"b"}, r.PilotsWithin(2, 2))
	assert.Empty(t, r.PilotsWithin(3, 1))
	assert.Empty(t, r.PilotsWithin(5, 0))
}

func TestHeatRejectsUnknownFields(t *testing.T) {
	tests := map[string]string{
		"heat field":   `{"id":"h","bracket_type":"qualification","surprise":42}`,
		"result field": `{"id":"h","bracket_type":"qualification","status":"completed","results":{"rankings":[],"lap_time":3}}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			var h Heat
			assert.Error(t, json.Unmarshal([]byte(raw), &h))
		})
	}
}

func TestValidateStage(t *testing.T) {
	valid := []Stage{
		Qualification{},
		WinnerRound{RoundNumber: 1},
		LoserFinale{RoundNumber: 3},
		GrandFinale{},
		Rematch{ForPlace: 1},
		Rematch{ForPlace: 2},
	}
	for _, stage := range valid {
		assert.NoError(t, ValidateStage(stage), "%#v", stage)
	}

	invalid := []Stage{
		nil,
		WinnerRound{},
		WinnerFinale{RoundNumber: -1},
		LoserRound{},
		Rematch{ForPlace: 3},
		Rematch{},
		&Qualification{},
	}
	for _, stage := range invalid {
		assert.ErrorIs(t, ValidateStage(stage), ErrInvalidStage, "%#v", stage)
	}
}

func TestPoolsCloneIsIndependent(t *testing.T) {
	p := Pools{WinnerPilots: []string{"a"}}
	c := p.Clone()
	c.WinnerPilots[0] = "z"
	assert.Equal(t, "a", p.WinnerPilots[0])
	assert.NotNil(t, c.LoserPool)
	assert.Empty(t, c.LoserPool)
}
