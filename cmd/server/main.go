package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"estatedesk/server/config"
	"estatedesk/server/internal/ai"
	"estatedesk/server/internal/api"
	"estatedesk/server/internal/comparables"
	"estatedesk/server/internal/database"
	"estatedesk/server/internal/dvf"
	"estatedesk/server/internal/geocoding"
	"estatedesk/server/internal/metrics"
	"estatedesk/server/internal/processor"
	"estatedesk/server/internal/valuation"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	} else {
		logger.WithError(err).Warnf("Unknown log level %q, keeping info", cfg.Log.Level)
	}

	logger.Infof("Using database at: %s", cfg.Database.Path)

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.Path, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	// Run database migrations
	logger.Info("Running database migrations...")
	if err := db.RunMigrations(); err != nil {
		logger.WithError(err).Fatal("Failed to run database migrations")
	}

	if purged, err := db.PurgeExpired(context.Background(), time.Now()); err != nil {
		logger.WithError(err).Warn("Failed to purge expired comparables cache entries")
	} else if purged > 0 {
		logger.Infof("Purged %d expired comparables cache entries", purged)
	}

	m := metrics.New()

	geocoder := geocoding.NewGeocoder(logger, geocoding.Config{
		BaseURL: cfg.Geocoder.BaseURL,
		Timeout: cfg.Geocoder.Timeout,
	})

	source := dvf.NewClient(logger, dvf.Config{
		BaseURL:  cfg.DVF.BaseURL,
		Token:    cfg.DVF.Token,
		Timeout:  cfg.DVF.Timeout,
		PageSize: cfg.DVF.PageSize,
		MaxPages: cfg.DVF.MaxPages,
	}, m)

	comparablesConfig := comparables.Config{
		RadiiMeters:        cfg.Comparables.RadiiMeters,
		TargetCount:        cfg.Comparables.TargetCount,
		LookbackYears:      cfg.Comparables.LookbackYears,
		MinPricePerSqm:     cfg.Comparables.MinPricePerSqm,
		LandMinPricePerSqm: cfg.Comparables.LandMinPricePerSqm,
		CacheTTL:           time.Duration(cfg.Comparables.CacheTTLDays) * 24 * time.Hour,
	}
	persister := processor.NewBatchPersister(db.GetDB(), cfg, logger)
	searcher := comparables.NewSearcher(logger, comparablesConfig, source, persister, m)
	comparablesService := comparables.NewService(logger, comparablesConfig, db, db, geocoder, searcher, m)

	provider := ai.NewOpenAIProvider(logger, ai.OpenAIConfig{
		APIKey:  cfg.OpenAI.APIKey,
		Model:   cfg.OpenAI.Model,
		Timeout: cfg.OpenAI.Timeout,
	})
	if !provider.Enabled() {
		logger.Warn("OPENAI_API_KEY is not set, valuations will use the statistical fallback")
	}
	valuationService := valuation.NewService(logger, db, comparablesService, provider, m)

	// Initialize router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	handler := api.NewHandler(logger, comparablesService, valuationService, db)
	api.SetupRoutes(router, handler, cfg.HTTP.AllowedOrigins, m.Handler())

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Starting server on port %s", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
}
