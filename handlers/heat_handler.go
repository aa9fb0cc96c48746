package handlers

import (
	"errors"
	"net/http"

	"github.com/Dosada05/racing-tournament/models"
	"github.com/Dosada05/racing-tournament/services"
	"github.com/go-chi/chi/v5"
)

type HeatHandler struct {
	tournamentService services.TournamentService
}

func NewHeatHandler(ts services.TournamentService) *HeatHandler {
	return &HeatHandler{tournamentService: ts}
}

type submitResultsInput struct {
	Rankings []models.Ranking `json:"rankings"`
}

func heatParams(r *http.Request) (int, string, error) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		return 0, "", err
	}
	heatID := chi.URLParam(r, "heatID")
	if heatID == "" {
		return 0, "", errors.New("missing heatID in URL path")
	}
	return id, heatID, nil
}

func (h *HeatHandler) StartHandler(w http.ResponseWriter, r *http.Request) {
	id, heatID, err := heatParams(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if err := h.tournamentService.StartHeat(r.Context(), id, heatID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SubmitResultsHandler handles POST /tournaments/{tournamentID}/heats/{heatID}/results.
// If the results were stored but the Grand Finale was refused, the outcome is
// still returned with status 200 and the refusal in "warning".
func (h *HeatHandler) SubmitResultsHandler(w http.ResponseWriter, r *http.Request) {
	id, heatID, err := heatParams(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input submitResultsInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	outcome, err := h.tournamentService.SubmitHeatResults(r.Context(), id, heatID, input.Rankings)
	if err != nil && outcome == nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	resp := jsonResponse{"outcome": outcome}
	if err != nil {
		resp["warning"] = err.Error()
	}
	if err := writeJSON(w, http.StatusOK, resp, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *HeatHandler) ReopenHandler(w http.ResponseWriter, r *http.Request) {
	id, heatID, err := heatParams(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if err := h.tournamentService.ReopenHeat(r.Context(), id, heatID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
