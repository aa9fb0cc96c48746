package routes

import (
	"net/http"
	"time"

	"github.com/Dosada05/racing-tournament/handlers"
	"github.com/Dosada05/racing-tournament/middleware"
	"github.com/Dosada05/racing-tournament/services"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"
)

type Handlers struct {
	Auth       *handlers.AuthHandler
	Tournament *handlers.TournamentHandler
	Pilot      *handlers.PilotHandler
	Heat       *handlers.HeatHandler
	Snapshot   *handlers.SnapshotHandler
	WebSocket  *handlers.WebSocketHandler
}

// SetupRoutes mounts the API on router. Reads are public; every mutation
// needs an operator token verified by tokens.
func SetupRoutes(router chi.Router, h Handlers, tokens middleware.TokenParser, allowedOrigins []string) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/openapi.json", handlers.OpenAPIHandler)
	router.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/openapi.json")))
	router.Get("/ws/tournaments/{tournamentID}", h.WebSocket.ServeWs)

	router.With(chiMiddleware.Timeout(10*time.Second)).Post("/auth/login", h.Auth.Login)

	operator := []func(http.Handler) http.Handler{
		middleware.Authenticate(tokens),
		middleware.Authorize(services.OperatorRole),
	}

	router.Route("/tournaments", func(r chi.Router) {
		r.Get("/", h.Tournament.ListHandler)
		r.With(operator...).Post("/", h.Tournament.CreateHandler)

		r.Route("/{tournamentID}", func(r chi.Router) {
			r.Get("/", h.Tournament.GetByIDHandler)
			r.Get("/rounds/{bracket}/{round}", h.Tournament.RoundStatusHandler)
			r.Get("/standings", h.Tournament.StandingsHandler)
			r.Get("/export", h.Snapshot.ExportHandler)

			r.Group(func(r chi.Router) {
				r.Use(operator...)

				r.Delete("/", h.Tournament.DeleteHandler)

				r.Post("/pilots", h.Pilot.AddHandler)
				r.Delete("/pilots/{pilotID}", h.Pilot.RemoveHandler)
				r.Post("/pilots/{pilotID}/withdraw", h.Pilot.WithdrawHandler)

				r.Post("/start", h.Tournament.StartHandler)
				r.Post("/assignment/swap", h.Tournament.SwapPilotsHandler)
				r.Post("/assignment/cancel", h.Tournament.CancelAssignmentHandler)
				r.Post("/assignment/confirm", h.Tournament.ConfirmAssignmentHandler)
				r.Post("/reset", h.Tournament.ResetHandler)

				r.Post("/heats/{heatID}/start", h.Heat.StartHandler)
				r.Post("/heats/{heatID}/results", h.Heat.SubmitResultsHandler)
				r.Post("/heats/{heatID}/reopen", h.Heat.ReopenHandler)
				r.Post("/grand-finale", h.Tournament.GrandFinaleHandler)

				r.Post("/import", h.Snapshot.ImportHandler)
				r.Post("/archive", h.Snapshot.ArchiveHandler)
				r.Post("/archive/restore", h.Snapshot.RestoreHandler)
			})
		})
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"the requested resource could not be found"}` + "\n"))
	})
}
