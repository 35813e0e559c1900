package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/cors"

	"github.com/mvilar/thermolog/internal/config"
	"github.com/mvilar/thermolog/internal/db"
	"github.com/mvilar/thermolog/internal/ingestion"
	"github.com/mvilar/thermolog/internal/jobs"
	"github.com/mvilar/thermolog/internal/logger"
	"github.com/mvilar/thermolog/internal/middleware"
	"github.com/mvilar/thermolog/internal/repository"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(".")
	if err != nil {
		logger.Setup("info", "json")
		l := logger.Get("main")
		l.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Setup(cfg.Log.Level, cfg.Log.Format)
	log := logger.Get("main")

	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer conn.Close()

	if err := db.RunMigrations(ctx, conn.Pool, "./migrations"); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	suitcaseRepo := repository.NewSuitcaseRepository(conn.Pool)
	sensorRepo := repository.NewSensorRepository(conn)
	readingRepo := repository.NewReadingRepository(conn.Pool)

	jobStore := jobs.NewMemoryStore(logger.Get("jobs"))
	progressCache := jobs.NewMemoryProgressCache()

	resolver := ingestion.NewResolver(sensorRepo, logger.Get("ingestion"))
	engine := ingestion.NewEngine(readingRepo, progressCache, cfg.Import.ProgressTTL, logger.Get("ingestion"))

	var bridge *ingestion.FallbackBridge
	if cfg.Fallback.Script != "" {
		bridge = ingestion.NewFallbackBridge(
			readingRepo,
			progressCache,
			cfg.Import.ProgressTTL,
			cfg.Fallback.Runtime,
			cfg.Fallback.Script,
			cfg.Fallback.Timeout,
			logger.Get("ingestion"),
		)
	} else {
		log.Warn().Msg("No legacy parser configured, binary .xls imports will fail")
	}

	service := ingestion.NewService(
		suitcaseRepo,
		resolver,
		engine,
		bridge,
		jobStore,
		progressCache,
		cfg.Import.TempDir,
		cfg.Import.MaxFileBytes,
		logger.Get("ingestion"),
	)

	// Periodic sweep of terminal jobs past their retention age.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Jobs.SweepSchedule, func() {
		service.CleanupOldJobs(cfg.Jobs.MaxAge)
	}); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.Jobs.SweepSchedule).Msg("Invalid sweep schedule")
	}
	scheduler.Start()
	defer scheduler.Stop()

	mux := http.NewServeMux()
	ingestion.NewHTTPHandler(service).Register(mux)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      middleware.Logging(logger.Get("http"))(corsHandler.Handler(mux)),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("Starting import server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
