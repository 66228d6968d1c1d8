package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/tapstamp/shop-review-backend/internal/analytics"
	"github.com/tapstamp/shop-review-backend/internal/config"
	"github.com/tapstamp/shop-review-backend/internal/database"
	"github.com/tapstamp/shop-review-backend/internal/details"
	"github.com/tapstamp/shop-review-backend/internal/dynamo"
	"github.com/tapstamp/shop-review-backend/internal/geocode"
	"github.com/tapstamp/shop-review-backend/internal/live"
	"github.com/tapstamp/shop-review-backend/internal/logging"
	"github.com/tapstamp/shop-review-backend/internal/monitoring"
	"github.com/tapstamp/shop-review-backend/internal/review"
	"github.com/tapstamp/shop-review-backend/internal/server"
	"github.com/tapstamp/shop-review-backend/internal/storage"
)

func main() {
	// Load configuration first
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logging
	logging.Setup(&cfg.Logging, cfg.Server.Env)

	log.Info().
		Str("env", cfg.Server.Env).
		Str("name", cfg.Server.Name).
		Msg("Starting shop review API server")

	ctx := context.Background()

	// Document store
	ddbClient, err := dynamo.NewClient(ctx, &cfg.AWS)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create DynamoDB client")
	}
	store := dynamo.New(ddbClient)

	// Object storage
	s3Client, presignClient, err := storage.NewClient(ctx, &cfg.AWS)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create S3 client")
	}
	locator := storage.New(s3Client, presignClient, cfg.AWS.Region, cfg.Buckets.Public)

	// Geocode cache
	var rdb *redis.Client
	if opts, err := redis.ParseURL(cfg.Redis.URL); err == nil {
		rdb = redis.NewClient(opts)
	} else {
		log.Warn().Err(err).Msg("Invalid REDIS_URL, geocode cache disabled")
	}
	geocoder := geocode.New(&cfg.Geocoder, rdb)

	// Secondary store is optional; publish degrades gracefully without it
	var liveStore review.LiveStore
	var db *database.DB
	if cfg.Database.URL != "" {
		db, err = database.New(cfg.Database.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to secondary store")
		}
		defer db.Close()
		liveStore = live.New(db.Pool)
	} else {
		log.Warn().Msg("DATABASE_URL not set, secondary store disabled")
	}

	reviewSvc := review.NewService(store, &cfg.Tables, geocoder, locator, liveStore)
	detailSvc := details.NewService(store, &cfg.Tables, locator)

	var pool *pgxpool.Pool
	if db != nil {
		pool = db.Pool
	}
	analyticsSvc := analytics.NewService(pool, store, &cfg.Tables)

	// Initialize Prometheus metrics
	monitoring.Init()
	log.Info().Msg("Prometheus metrics initialized")

	// Start metrics server if enabled
	if cfg.Monitoring.PrometheusEnabled {
		go startMetricsServer(cfg.Monitoring.PrometheusPort)
	}

	// Create and start server
	srv := server.NewAPIServer(cfg, reviewSvc, detailSvc, analyticsSvc)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Int("port", cfg.Server.Port).
			Msg("API server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().
		Str("signal", sig.String()).
		Msg("Shutdown signal received, gracefully shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited gracefully")
}

func startMetricsServer(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.Handler())

	metricsServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log.Info().
		Int("port", port).
		Msg("Prometheus metrics server listening")

	if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Metrics server error")
	}
}
