package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Hetprajapati12/Assignment-solution/internal/config"
	"github.com/Hetprajapati12/Assignment-solution/internal/handlers"
	"github.com/Hetprajapati12/Assignment-solution/internal/queue"
	"github.com/Hetprajapati12/Assignment-solution/internal/repository"
	"github.com/Hetprajapati12/Assignment-solution/internal/services"
	"github.com/Hetprajapati12/Assignment-solution/pkg/database"
	"github.com/Hetprajapati12/Assignment-solution/pkg/logging"
	"github.com/Hetprajapati12/Assignment-solution/pkg/metrics"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logLevel := logging.InfoLevel
	if cfg.Logging.Level == "debug" {
		logLevel = logging.DebugLevel
	}

	logger := logging.NewStructuredLogger("temperature-api", "1.0.0", logLevel)

	ctx := context.Background()
	logger.Info(ctx, "[STARTUP] Starting temperature ingestion API server", logging.Fields{
		"version":     "1.0.0",
		"server_host": cfg.Server.Host,
		"server_port": cfg.Server.Port,
		"db_host":     cfg.Database.Host,
		"db_name":     cfg.Database.Database,
		"upload_dir":  cfg.Upload.Dir,
	})

	// Initialize metrics collector
	metricsCollector := metrics.NewCollector("temperature_api")

	// Initialize database
	dbConfig := &database.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}

	db, err := database.NewPostgresDB(dbConfig, logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	if err := os.MkdirAll(cfg.Upload.Dir, 0o755); err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to create upload directory", logging.Fields{
			"upload_dir": cfg.Upload.Dir,
		}, err)
	}

	// Initialize repository
	repo := repository.NewTemperatureRepository(db, logger, metricsCollector)

	// Initialize the task queue with its three lanes
	taskQueue := queue.New(logger, metricsCollector, queue.Options{
		RetryBackoffBase: cfg.Queue.RetryBackoffBase,
		RetryBackoffMax:  cfg.Queue.RetryBackoffMax,
	})
	taskQueue.AddLane(queue.LaneFileProcessing, cfg.Queue.FileWorkers, cfg.Queue.FileRatePerMin)
	taskQueue.AddLane(queue.LaneChunkProcessing, cfg.Queue.ChunkWorkers, cfg.Queue.ChunkRatePerMin)
	taskQueue.AddLane(queue.LaneCacheUpdates, cfg.Queue.CacheWorkers, cfg.Queue.CacheRatePerMin)

	// Initialize services
	processor := services.NewChunkProcessor(repo, logger, metricsCollector, cfg.Ingestion.ChunkSize, cfg.Ingestion.BatchSize)
	ingestionService := services.NewIngestionService(repo, taskQueue, processor, logger, metricsCollector, cfg.Ingestion.ChunkSize, cfg.Ingestion.FanOut)
	cacheService := services.NewCacheService(repo, taskQueue, logger, metricsCollector)
	cityService := services.NewCityService(repo, logger, metricsCollector)

	if err := ingestionService.RegisterTasks(taskQueue); err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to register ingestion tasks", logging.Fields{}, err)
	}
	if err := cacheService.RegisterTasks(taskQueue); err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to register cache tasks", logging.Fields{}, err)
	}

	taskQueue.Start()

	// Periodic cache sweep: reconciles refreshes that were missed at
	// enqueue time.
	sweepCtx, stopSweep := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(cfg.Cache.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				if _, err := taskQueue.Enqueue(sweepCtx, services.TaskRefreshAllCaches, nil,
					queue.WithPriority(services.RefreshPrioritySweep)); err != nil {
					logger.Warn(sweepCtx, "[CACHE_SWEEP_ENQUEUE_WARN] Failed to enqueue cache sweep", logging.Fields{
						"error": err.Error(),
					})
				}
			}
		}
	}()

	// Initialize handlers
	temperatureHandler := handlers.NewTemperatureHandler(
		cityService,
		ingestionService,
		cacheService,
		logger,
		metricsCollector,
		cfg.Upload.Dir,
		cfg.Upload.MaxSizeBytes,
	)

	// Setup router
	router := mux.NewRouter()

	// Register routes
	temperatureHandler.RegisterRoutes(router)

	// API documentation
	router.HandleFunc("/api/docs/openapi.json", handlers.OpenAPISpec).Methods("GET")
	router.HandleFunc("/api/docs", handlers.SwaggerUI).Methods("GET")

	// Prometheus metrics endpoint
	router.Handle("/metrics", promhttp.Handler())

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address": server.Addr,
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "[SERVER_ERROR] Server failed", logging.Fields{}, err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "[SHUTDOWN] Shutting down server...", logging.Fields{})

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "[SHUTDOWN_ERROR] Server forced to shutdown", logging.Fields{}, err)
	}

	// Stop intake before draining workers.
	stopSweep()
	taskQueue.Stop()

	logger.Info(ctx, "[SHUTDOWN_COMPLETE] Server stopped", logging.Fields{})
}
