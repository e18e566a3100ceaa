package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Hetprajapati12/Assignment-solution/internal/config"
	"github.com/Hetprajapati12/Assignment-solution/internal/models"
	"github.com/Hetprajapati12/Assignment-solution/internal/queue"
	"github.com/Hetprajapati12/Assignment-solution/internal/repository"
	"github.com/Hetprajapati12/Assignment-solution/internal/services"
	"github.com/Hetprajapati12/Assignment-solution/pkg/database"
	"github.com/Hetprajapati12/Assignment-solution/pkg/logging"
	"github.com/Hetprajapati12/Assignment-solution/pkg/metrics"
)

func main() {
	// Parse command-line flags
	filePath := flag.String("file", "", "Path to the temperature CSV file to ingest")
	refreshCaches := flag.Bool("refresh-caches", false, "Refresh all city statistics caches after ingestion")
	flag.Parse()

	if *filePath == "" {
		fmt.Fprintln(os.Stderr, "missing required -file flag")
		flag.Usage()
		os.Exit(2)
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logLevel := logging.InfoLevel
	if cfg.Logging.Level == "debug" {
		logLevel = logging.DebugLevel
	}

	logger := logging.NewStructuredLogger("temperature-ingester", "1.0.0", logLevel)

	ctx := context.Background()
	logger.Info(ctx, "[INGESTER_START] Starting temperature file ingestion", logging.Fields{
		"version": "1.0.0",
		"file":    *filePath,
	})

	// Initialize metrics collector
	metricsCollector := metrics.NewCollector("temperature_ingester")

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
		logger.Fatal(ctx, "[INGESTER_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	// Initialize repository
	repo := repository.NewTemperatureRepository(db, logger, metricsCollector)

	// The ingester runs the same pipeline in-process: its own queue,
	// chunk processor and services.
	taskQueue := queue.New(logger, metricsCollector, queue.Options{
		RetryBackoffBase: cfg.Queue.RetryBackoffBase,
		RetryBackoffMax:  cfg.Queue.RetryBackoffMax,
	})
	taskQueue.AddLane(queue.LaneFileProcessing, cfg.Queue.FileWorkers, cfg.Queue.FileRatePerMin)
	taskQueue.AddLane(queue.LaneChunkProcessing, cfg.Queue.ChunkWorkers, cfg.Queue.ChunkRatePerMin)
	taskQueue.AddLane(queue.LaneCacheUpdates, cfg.Queue.CacheWorkers, cfg.Queue.CacheRatePerMin)

	processor := services.NewChunkProcessor(repo, logger, metricsCollector, cfg.Ingestion.ChunkSize, cfg.Ingestion.BatchSize)
	ingestionService := services.NewIngestionService(repo, taskQueue, processor, logger, metricsCollector, cfg.Ingestion.ChunkSize, cfg.Ingestion.FanOut)
	cacheService := services.NewCacheService(repo, taskQueue, logger, metricsCollector)

	if err := ingestionService.RegisterTasks(taskQueue); err != nil {
		logger.Fatal(ctx, "[INGESTER_ERROR] Failed to register ingestion tasks", logging.Fields{}, err)
	}
	if err := cacheService.RegisterTasks(taskQueue); err != nil {
		logger.Fatal(ctx, "[INGESTER_ERROR] Failed to register cache tasks", logging.Fields{}, err)
	}

	taskQueue.Start()
	defer taskQueue.Stop()

	// Submit the file
	absPath, err := filepath.Abs(*filePath)
	if err != nil {
		logger.Fatal(ctx, "[INGESTER_ERROR] Failed to resolve file path", logging.Fields{
			"file": *filePath,
		}, err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		logger.Fatal(ctx, "[INGESTER_ERROR] Failed to stat file", logging.Fields{
			"file": absPath,
		}, err)
	}

	job, err := ingestionService.SubmitJob(ctx, filepath.Base(absPath), absPath, info.Size())
	if err != nil {
		logger.Fatal(ctx, "[INGESTER_ERROR] Failed to submit ingestion job", logging.Fields{
			"file": absPath,
		}, err)
	}

	fmt.Printf("Submitted job %s, waiting for completion...\n", job.ID)

	// Wait for the job to reach a terminal state
	for !job.Status.IsTerminal() {
		time.Sleep(500 * time.Millisecond)
		job, err = ingestionService.GetJob(ctx, job.ID)
		if err != nil {
			logger.Fatal(ctx, "[INGESTER_ERROR] Failed to poll job status", logging.Fields{
				"job_id": job.ID.String(),
			}, err)
		}
	}

	// Print results
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("INGESTION COMPLETE")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Job ID:         %s\n", job.ID)
	fmt.Printf("Status:         %s\n", job.Status)
	fmt.Printf("Total Rows:     %d\n", job.TotalRows)
	fmt.Printf("Processed Rows: %d\n", job.ProcessedRows)
	fmt.Printf("Error Count:    %d\n", job.ErrorCount)
	fmt.Printf("Retries:        %d\n", job.RetryCount)
	if job.CompletedAt != nil {
		duration := job.CompletedAt.Sub(job.CreatedAt)
		fmt.Printf("Duration:       %v\n", duration)
		if duration > 0 && job.ProcessedRows > 0 {
			fmt.Printf("Rows/Second:    %.2f\n", float64(job.ProcessedRows)/duration.Seconds())
		}
	}

	if len(job.ErrorLog) > 0 {
		fmt.Printf("\nErrors (%d recorded, newest kept):\n", len(job.ErrorLog))
		for i, entry := range job.ErrorLog {
			if i >= 10 {
				fmt.Printf("  ... and %d more errors\n", len(job.ErrorLog)-10)
				break
			}
			if entry.Row > 0 {
				fmt.Printf("  - row %d: %s\n", entry.Row, entry.Message)
			} else {
				fmt.Printf("  - %s\n", entry.Message)
			}
		}
	}

	// Refresh statistics caches if requested
	if *refreshCaches {
		fmt.Println("\n" + strings.Repeat("=", 80))
		fmt.Println("REFRESHING STATISTICS CACHES")
		fmt.Println(strings.Repeat("=", 80))

		updated, failed, err := cacheService.RefreshAll(ctx)
		if err != nil {
			logger.Error(ctx, "[INGESTER_CACHE_ERROR] Cache refresh failed", logging.Fields{}, err)
			fmt.Printf("Cache refresh failed: %v\n", err)
		} else {
			fmt.Printf("Caches refreshed: %d updated, %d failed\n", updated, failed)
		}
	}

	logger.Info(ctx, "[INGESTER_COMPLETE] Ingestion finished", logging.Fields{
		"job_id":         job.ID.String(),
		"status":         string(job.Status),
		"total_rows":     job.TotalRows,
		"processed_rows": job.ProcessedRows,
		"error_count":    job.ErrorCount,
	})

	if job.Status == models.JobStatusFailed {
		os.Exit(1)
	}
}
