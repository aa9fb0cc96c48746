package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dosada05/racing-tournament/brackets"
	"github.com/Dosada05/racing-tournament/config"
	"github.com/Dosada05/racing-tournament/db"
	"github.com/Dosada05/racing-tournament/handlers"
	"github.com/Dosada05/racing-tournament/repositories"
	api "github.com/Dosada05/racing-tournament/routes"
	"github.com/Dosada05/racing-tournament/services"
	"github.com/Dosada05/racing-tournament/storage"
	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded",
		slog.Int("port", cfg.ServerPort),
		slog.Int("min_pilots", cfg.MinPilots),
		slog.Int("max_pilots", cfg.MaxPilots),
		slog.Bool("archive_enabled", cfg.ArchiveEnabled()))

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}()
	if err := db.EnsureSchema(context.Background(), dbConn); err != nil {
		logger.Error("failed to prepare database schema", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("database connection established")

	var archive storage.SnapshotArchive
	if cfg.ArchiveEnabled() {
		archive, err = storage.NewCloudflareR2Archive(context.Background(), storage.CloudflareR2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			logger.Error("failed to initialize Cloudflare R2 archive", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("Cloudflare R2 archive initialized", slog.String("bucket", cfg.R2BucketName))
	}

	wsHub := brackets.NewHub(logger)
	go wsHub.Run()
	logger.Info("WebSocket hub started")

	seed := time.Now().UnixNano()
	if cfg.RandomSeed != nil {
		seed = *cfg.RandomSeed
	}
	newEngine := func(tournamentID int) *brackets.Engine {
		return brackets.New(brackets.Options{
			Rand:      rand.New(rand.NewSource(seed + int64(tournamentID))),
			Logger:    logger.With(slog.Int("tournament_id", tournamentID)),
			MinPilots: cfg.MinPilots,
			MaxPilots: cfg.MaxPilots,
		})
	}

	tournamentRepo := repositories.NewPostgresTournamentRepository(dbConn)
	tournamentService := services.NewTournamentService(tournamentRepo, archive, wsHub, newEngine, logger)
	authService := services.NewAuthService(cfg.OperatorPasswordHash, []byte(cfg.JWTSecretKey), cfg.TokenTTL)

	preloadCtx, cancelPreload := context.WithTimeout(context.Background(), 30*time.Second)
	err = tournamentService.Preload(preloadCtx)
	cancelPreload()
	if err != nil {
		logger.Error("failed to preload tournaments", slog.Any("error", err))
		os.Exit(1)
	}

	router := chi.NewRouter()
	api.SetupRoutes(router, api.Handlers{
		Auth:       handlers.NewAuthHandler(authService),
		Tournament: handlers.NewTournamentHandler(tournamentService),
		Pilot:      handlers.NewPilotHandler(tournamentService),
		Heat:       handlers.NewHeatHandler(tournamentService),
		Snapshot:   handlers.NewSnapshotHandler(tournamentService),
		WebSocket:  handlers.NewWebSocketHandler(wsHub, tournamentService, logger),
	}, authService, cfg.CORSAllowedOrigins)
	logger.Info("routes configured")

	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		// Websocket viewers hold their connection open; writes are bounded by
		// the hub's own deadlines.
		IdleTimeout: 120 * time.Second,
		ErrorLog:    slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		}
		logger.Info("server shutdown complete")
	}
	logger.Info("application exited")
}
