package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Dosada05/racing-tournament/brackets"
	"github.com/Dosada05/racing-tournament/models"
	"github.com/Dosada05/racing-tournament/repositories"
	"github.com/Dosada05/racing-tournament/services"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubService implements only what a test sets; any other call panics on the
// nil embedded interface.
type stubService struct {
	services.TournamentService

	create  func(name string) (*models.Tournament, error)
	list    func(filter repositories.ListTournamentsFilter) ([]models.Tournament, error)
	get     func(id int) (*models.Tournament, error)
	submit  func(id int, heatID string, rankings []models.Ranking) (*brackets.SubmitOutcome, error)
	reset   func(id int, keepPilots bool) error
	round   func(id int, bracket models.BracketType, round int) (bool, error)
	export  func(id int) ([]byte, error)
	imports func(id int, data []byte) error
}

func (s *stubService) CreateTournament(_ context.Context, name string) (*models.Tournament, error) {
	return s.create(name)
}

func (s *stubService) ListTournaments(_ context.Context, f repositories.ListTournamentsFilter) ([]models.Tournament, error) {
	return s.list(f)
}

func (s *stubService) GetTournament(_ context.Context, id int) (*models.Tournament, error) {
	return s.get(id)
}

func (s *stubService) SubmitHeatResults(_ context.Context, id int, heatID string, r []models.Ranking) (*brackets.SubmitOutcome, error) {
	return s.submit(id, heatID, r)
}

func (s *stubService) ResetTournament(_ context.Context, id int, keepPilots bool) error {
	return s.reset(id, keepPilots)
}

func (s *stubService) RoundComplete(_ context.Context, id int, b models.BracketType, round int) (bool, error) {
	return s.round(id, b, round)
}

func (s *stubService) ExportSnapshot(_ context.Context, id int) ([]byte, error) {
	return s.export(id)
}

func (s *stubService) ImportSnapshot(_ context.Context, id int, data []byte) error {
	return s.imports(id, data)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRouter(svc services.TournamentService, hub *brackets.Hub) chi.Router {
	th := NewTournamentHandler(svc)
	hh := NewHeatHandler(svc)
	sh := NewSnapshotHandler(svc)
	r := chi.NewRouter()
	r.Get("/tournaments", th.ListHandler)
	r.Post("/tournaments", th.CreateHandler)
	r.Get("/tournaments/{tournamentID}", th.GetByIDHandler)
	r.Post("/tournaments/{tournamentID}/reset", th.ResetHandler)
	r.Get("/tournaments/{tournamentID}/rounds/{bracket}/{round}", th.RoundStatusHandler)
	r.Post("/tournaments/{tournamentID}/heats/{heatID}/results", hh.SubmitResultsHandler)
	r.Get("/tournaments/{tournamentID}/export", sh.ExportHandler)
	r.Post("/tournaments/{tournamentID}/import", sh.ImportHandler)
	if hub != nil {
		r.Get("/ws/tournaments/{tournamentID}", NewWebSocketHandler(hub, svc, discardLogger()).ServeWs)
	}
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, reader))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestMapServiceErrorToHTTP(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{services.ErrTournamentNotFound, http.StatusNotFound},
		{fmt.Errorf("remove: %w", brackets.ErrPilotNotFound), http.StatusNotFound},
		{brackets.ErrHeatNotFound, http.StatusNotFound},
		{services.ErrArchiveNotFound, http.StatusNotFound},
		{services.ErrTournamentNameConflict, http.StatusConflict},
		{brackets.ErrInvalidPhase, http.StatusConflict},
		{brackets.ErrHeatLocked, http.StatusConflict},
		{fmt.Errorf("swap pilots: %w", brackets.ErrSameHeat), http.StatusConflict},
		{brackets.ErrTournamentNotComplete, http.StatusConflict},
		{brackets.ErrDuplicateFinalist, http.StatusConflict},
		{fmt.Errorf("heat h1: %w", brackets.ErrInvalidRankings), http.StatusUnprocessableEntity},
		{brackets.ErrNotEnoughPilots, http.StatusUnprocessableEntity},
		{brackets.ErrMalformedSnapshot, http.StatusUnprocessableEntity},
		{services.ErrValidationFailed, http.StatusUnprocessableEntity},
		{services.ErrInvalidCredentials, http.StatusUnauthorized},
		{services.ErrArchiveDisabled, http.StatusServiceUnavailable},
		{errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			mapServiceErrorToHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, decode(t, rec), "error")
		})
	}
}

func TestReadJSONErrors(t *testing.T) {
	tests := map[string]string{
		"empty":         "",
		"syntax":        `{"name":`,
		"wrong type":    `{"name":5}`,
		"unknown field": `{"name":"x","colour":"red"}`,
		"two values":    `{"name":"x"}{"name":"y"}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
			var dst createTournamentInput
			assert.Error(t, readJSON(httptest.NewRecorder(), req, &dst))
		})
	}
}

func TestCreateTournamentHandler(t *testing.T) {
	svc := &stubService{create: func(name string) (*models.Tournament, error) {
		if name == "Taken" {
			return nil, services.ErrTournamentNameConflict
		}
		return &models.Tournament{ID: 3, Name: name, Phase: models.PhaseSetup}, nil
	}}
	router := newRouter(svc, nil)

	rec := do(t, router, http.MethodPost, "/tournaments", `{"name":"Spring Cup"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	tour := decode(t, rec)["tournament"].(map[string]interface{})
	assert.Equal(t, "Spring Cup", tour["name"])
	assert.Equal(t, "setup", tour["phase"])

	rec = do(t, router, http.MethodPost, "/tournaments", `{"name":"Taken"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, router, http.MethodPost, "/tournaments", `{"title":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListTournamentsHandler(t *testing.T) {
	var got repositories.ListTournamentsFilter
	svc := &stubService{list: func(f repositories.ListTournamentsFilter) ([]models.Tournament, error) {
		got = f
		return nil, nil
	}}
	router := newRouter(svc, nil)

	rec := do(t, router, http.MethodGet, "/tournaments?phase=running,finale&phase=setup&limit=5&offset=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []models.TournamentPhase{"running", "finale", "setup"}, got.Phases)
	assert.Equal(t, 5, got.Limit)
	assert.Equal(t, 10, got.Offset)
	assert.Equal(t, []interface{}{}, decode(t, rec)["tournaments"])

	rec = do(t, router, http.MethodGet, "/tournaments", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultListLimit, got.Limit)

	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/tournaments?limit=0", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/tournaments?offset=-1", "").Code)
}

func TestGetTournamentHandlerBadID(t *testing.T) {
	svc := &stubService{get: func(id int) (*models.Tournament, error) {
		return nil, services.ErrTournamentNotFound
	}}
	router := newRouter(svc, nil)
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/tournaments/abc", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/tournaments/0", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/tournaments/9", "").Code)
}

func TestResetHandlerKeepsPilotsByDefault(t *testing.T) {
	var keep []bool
	svc := &stubService{reset: func(id int, keepPilots bool) error {
		keep = append(keep, keepPilots)
		return nil
	}}
	router := newRouter(svc, nil)

	assert.Equal(t, http.StatusNoContent, do(t, router, http.MethodPost, "/tournaments/1/reset", "").Code)
	assert.Equal(t, http.StatusNoContent, do(t, router, http.MethodPost, "/tournaments/1/reset?keep_pilots=false", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodPost, "/tournaments/1/reset?keep_pilots=maybe", "").Code)
	assert.Equal(t, []bool{true, false}, keep)
}

func TestRoundStatusHandler(t *testing.T) {
	svc := &stubService{round: func(id int, b models.BracketType, round int) (bool, error) {
		if !b.Valid() {
			return false, services.ErrValidationFailed
		}
		return b == models.BracketWinner && round == 2, nil
	}}
	router := newRouter(svc, nil)

	rec := do(t, router, http.MethodGet, "/tournaments/1/rounds/winner/2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["complete"])

	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/tournaments/1/rounds/winner/x", "").Code)
	assert.Equal(t, http.StatusUnprocessableEntity, do(t, router, http.MethodGet, "/tournaments/1/rounds/side/1", "").Code)
}

func TestSubmitResultsHandler(t *testing.T) {
	outcome := &brackets.SubmitOutcome{Phase: models.PhaseFinale}
	var got []models.Ranking
	svc := &stubService{submit: func(id int, heatID string, rankings []models.Ranking) (*brackets.SubmitOutcome, error) {
		got = rankings
		switch heatID {
		case "bad":
			return nil, fmt.Errorf("%w: rank 1 appears twice", brackets.ErrInvalidRankings)
		case "dup":
			return outcome, brackets.ErrDuplicateFinalist
		}
		return outcome, nil
	}}
	router := newRouter(svc, nil)
	body := `{"rankings":[{"pilot_id":"a","rank":1},{"pilot_id":"b","rank":2}]}`

	rec := do(t, router, http.MethodPost, "/tournaments/1/heats/h1/results", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []models.Ranking{{PilotID: "a", Rank: 1}, {PilotID: "b", Rank: 2}}, got)
	resp := decode(t, rec)
	assert.NotContains(t, resp, "warning")
	assert.Equal(t, "finale", resp["outcome"].(map[string]interface{})["phase"])

	rec = do(t, router, http.MethodPost, "/tournaments/1/heats/dup/results", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode(t, rec)["warning"], "not distinct")

	rec = do(t, router, http.MethodPost, "/tournaments/1/heats/bad/results", body)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestExportImportHandlers(t *testing.T) {
	var imported []byte
	svc := &stubService{
		export: func(id int) ([]byte, error) { return []byte(`{"version":1}`), nil },
		imports: func(id int, data []byte) error {
			if string(data) == "junk" {
				return brackets.ErrMalformedSnapshot
			}
			imported = data
			return nil
		},
		get: func(id int) (*models.Tournament, error) {
			return &models.Tournament{ID: id, Name: "Imported", Phase: models.PhaseRunning}, nil
		},
	}
	router := newRouter(svc, nil)

	rec := do(t, router, http.MethodGet, "/tournaments/4/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"version":1}`, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "tournament-4.json")

	rec = do(t, router, http.MethodPost, "/tournaments/4/import", `{"version":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"version":1}`, string(imported))

	assert.Equal(t, http.StatusUnprocessableEntity, do(t, router, http.MethodPost, "/tournaments/4/import", "junk").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodPost, "/tournaments/4/import", "").Code)
}

func TestWebSocketSendsStateAndUpdates(t *testing.T) {
	hub := brackets.NewHub(discardLogger())
	go hub.Run()

	svc := &stubService{get: func(id int) (*models.Tournament, error) {
		if id != 7 {
			return nil, services.ErrTournamentNotFound
		}
		return &models.Tournament{ID: 7, State: &models.BracketState{Phase: models.PhaseRunning}}, nil
	}}
	server := httptest.NewServer(newRouter(svc, hub))
	defer server.Close()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/tournaments/7"

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws/tournaments/8", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var msg brackets.WebSocketMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, brackets.EventBracketUpdated, msg.Type)
	assert.Equal(t, "running", msg.Payload.(map[string]interface{})["phase"])

	require.Eventually(t, func() bool {
		return hub.RoomSize(brackets.RoomForTournament(7)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.Publish(7, brackets.EventHeatCompleted, map[string]string{"heat": "h9"})
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, brackets.EventHeatCompleted, msg.Type)
	assert.Equal(t, brackets.RoomForTournament(7), msg.RoomID)
}
