package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ndewijer/strategy-index-backend/internal/api"
	"github.com/ndewijer/strategy-index-backend/internal/app"
	"github.com/ndewijer/strategy-index-backend/internal/config"
	"github.com/ndewijer/strategy-index-backend/internal/logging"
	"github.com/ndewijer/strategy-index-backend/internal/scheduler"
	"github.com/ndewijer/strategy-index-backend/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := logging.New(logging.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	logging.SetGlobalLogger(logger)

	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize services")
	}
	defer a.Close()

	// Background hydration
	sched := scheduler.New(logger)
	if cfg.Hydrate.Schedule != "" {
		job := scheduler.NewHydrationJob(a.Hydration, service.HydrateOptions{Delay: cfg.Hydrate.Delay}, logger)
		if err := sched.AddJob(cfg.Hydrate.Schedule, job); err != nil {
			logger.Fatal().Err(err).Msg("failed to register hydration job")
		}
		sched.Start()
		defer sched.Stop()
	}

	router := api.NewRouter(a.System, a.Performance, a.Catalog, cfg, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.WriteTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	logger.Info().Msg("server exited")
}
