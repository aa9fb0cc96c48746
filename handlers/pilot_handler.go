package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/Dosada05/racing-tournament/services"
	"github.com/go-chi/chi/v5"
)

type PilotHandler struct {
	tournamentService services.TournamentService
}

func NewPilotHandler(ts services.TournamentService) *PilotHandler {
	return &PilotHandler{tournamentService: ts}
}

type addPilotInput struct {
	Name string `json:"name"`
}

// AddHandler handles POST /tournaments/{tournamentID}/pilots.
func (h *PilotHandler) AddHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input addPilotInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	pilot, err := h.tournamentService.AddPilot(r.Context(), id, input.Name)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"pilot": pilot}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *PilotHandler) RemoveHandler(w http.ResponseWriter, r *http.Request) {
	h.pilotCommand(w, r, h.tournamentService.RemovePilot)
}

// WithdrawHandler marks a pilot as withdrawn. The pilot keeps their heat
// history and standing.
func (h *PilotHandler) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	h.pilotCommand(w, r, h.tournamentService.WithdrawPilot)
}

func (h *PilotHandler) pilotCommand(w http.ResponseWriter, r *http.Request, fn func(context.Context, int, string) error) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	pilotID := chi.URLParam(r, "pilotID")
	if pilotID == "" {
		badRequestResponse(w, r, errors.New("missing pilotID in URL path"))
		return
	}

	if err := fn(r.Context(), id, pilotID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
