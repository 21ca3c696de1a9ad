package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	h "github.com/gorilla/handlers"
	"github.com/rs/zerolog"

	"github.com/dagpulse/dagpulse/internal/airflow"
	"github.com/dagpulse/dagpulse/internal/analysis"
	"github.com/dagpulse/dagpulse/internal/cache"
	"github.com/dagpulse/dagpulse/internal/config"
	"github.com/dagpulse/dagpulse/internal/handlers"
	"github.com/dagpulse/dagpulse/internal/health"
	"github.com/dagpulse/dagpulse/internal/middleware"
	"github.com/dagpulse/dagpulse/internal/report"
	"github.com/dagpulse/dagpulse/internal/routes"
	"github.com/dagpulse/dagpulse/internal/scheduler"
	"github.com/dagpulse/dagpulse/internal/slack"
)

const version = "1.0.0"

type application struct {
	config    *config.Config
	store     cache.Store
	gateway   *airflow.Client
	health    *health.Service
	analysis  *analysis.Service
	reports   *report.Service
	notifier  *slack.Notifier
	scheduler *scheduler.Scheduler
	logger    zerolog.Logger
}

func main() {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.SetFlags(0)
	log.SetOutput(logger)

	// Load configuration.
	cfg := config.Load()

	// Cache backend: durable Badger store when a path is configured,
	// otherwise the in-process map.
	var store cache.Store
	if cfg.Cache.BadgerPath != "" {
		badgerStore, err := cache.NewBadgerStore(cfg.Cache.BadgerPath, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to open cache store")
		}
		defer badgerStore.Close()
		store = badgerStore
	} else {
		store = cache.NewMemoryStore()
	}

	// Upstream gateway; an ambiguous auth strategy is fatal here.
	gateway, err := airflow.NewClient(cfg.Airflow, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to configure Airflow gateway")
	}

	healthService := health.NewService(gateway, store, cfg.Cache.TTL, logger)

	var provider analysis.Provider
	if p := analysis.NewOpenAIProvider(cfg.Analysis); p != nil {
		provider = p
	} else {
		logger.Warn().Msg("Failure analysis provider disabled or not configured")
	}
	analysisService := analysis.NewService(gateway, provider, store, cfg.Analysis.TTL, logger)

	notifier := slack.New(cfg.Slack.WebhookURL, logger)
	if !notifier.Configured() {
		logger.Warn().Msg("Slack webhook not configured, reports will fail to send")
	}
	reportService := report.NewService(healthService, analysisService, notifier, cfg.DashboardURL, logger)

	sched, err := scheduler.New(reportService, analysisService, cfg.Scheduler.RefreshInterval, cfg.Scheduler.ReportSlots, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid report schedule")
	}

	app := &application{
		config:    cfg,
		store:     store,
		gateway:   gateway,
		health:    healthService,
		analysis:  analysisService,
		reports:   reportService,
		notifier:  notifier,
		scheduler: sched,
		logger:    logger,
	}

	// Start the background loops.
	app.scheduler.Start(context.Background())

	// Initialize the HTTP router and middleware.
	router := app.initRouter(logger)
	loggedRouter := middleware.LoggingMiddleware(app.logger)(router)
	corsHandler := h.CORS(
		h.AllowedOrigins(cfg.CORSOrigins),
		h.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)(loggedRouter)

	// Start the HTTP server and handle graceful shutdown.
	app.startServer(corsHandler, logger)

	logger.Info().Msg("Application terminated.")
}

// initRouter sets up all HTTP handlers and returns the router.
func (app *application) initRouter(logger zerolog.Logger) http.Handler {
	healthHandler := handlers.NewHealthHandler(app.gateway, app.store, version, logger)
	domainHandler := handlers.NewDomainHandler(app.health, logger)
	cacheHandler := handlers.NewCacheHandler(app.store, logger)
	analysisHandler := handlers.NewAnalysisHandler(app.analysis, logger)
	reportHandler := handlers.NewReportHandler(app.reports, app.scheduler, app.notifier, logger)

	return routes.NewRouter(healthHandler, domainHandler, cacheHandler, analysisHandler, reportHandler)
}

// startServer launches the HTTP server and handles graceful shutdown.
func (app *application) startServer(handler http.Handler, logger zerolog.Logger) {
	server := &http.Server{
		Addr:    ":" + app.config.ServerPort,
		Handler: handler,
	}

	// Channel to listen for server errors
	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Wait for an interrupt signal or a server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Msgf("Received signal: %s. Shutting down...", sig)
	case err := <-serverErrCh:
		logger.Error().Err(err).Msg("Server error occurred")
	}

	// Gracefully shut down the HTTP server.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server shutdown complete.")
	}

	// Stop the background loops.
	logger.Info().Msg("Stopping scheduler...")
	app.scheduler.Stop()
	logger.Info().Msg("Scheduler stopped.")
}
