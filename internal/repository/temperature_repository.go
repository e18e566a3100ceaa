package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Hetprajapati12/Assignment-solution/internal/models"
	"github.com/Hetprajapati12/Assignment-solution/pkg/database"
	"github.com/Hetprajapati12/Assignment-solution/pkg/logging"
	"github.com/Hetprajapati12/Assignment-solution/pkg/metrics"
)

// TemperatureRepository defines the interface for temperature data operations
type TemperatureRepository interface {
	// City operations
	GetOrCreateCity(ctx context.Context, cityID string) (*models.City, error)
	GetCity(ctx context.Context, cityID string) (*models.City, error)
	ListCities(ctx context.Context, limit, offset int) ([]*models.City, int, error)
	ListCityIDs(ctx context.Context) ([]string, error)

	// Reading operations
	InsertReadingBatch(ctx context.Context, jobID uuid.UUID, chunkIndex, batchIndex int, readings []*models.TemperatureReading) (bool, error)
	GetReadings(ctx context.Context, filter ReadingFilter) ([]*models.TemperatureReading, int, error)

	// Statistics operations
	AggregateCity(ctx context.Context, cityID string) (*models.CityStats, error)
	GetCityCache(ctx context.Context, cityID string) (*models.CityStats, error)
	UpsertCityCache(ctx context.Context, stats *models.CityStats) error
	MarkCachesStale(ctx context.Context, cityIDs []string) error

	// Job operations
	CreateJob(ctx context.Context, job *models.IngestionJob) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.IngestionJob, error)
	ListJobs(ctx context.Context, limit, offset int) ([]*models.IngestionJob, int, error)
	MarkJobProcessing(ctx context.Context, id uuid.UUID, taskID string) (bool, error)
	SetJobTaskID(ctx context.Context, id uuid.UUID, taskID string) error
	SetJobTotalRows(ctx context.Context, id uuid.UUID, totalRows int64) error
	RecordChunkErrors(ctx context.Context, jobID uuid.UUID, chunkIndex int, jobErrors []models.JobError) (bool, error)
	IncrementJobRetry(ctx context.Context, id uuid.UUID) error
	CompleteJob(ctx context.Context, id uuid.UUID) (*models.IngestionJob, error)
	FailJob(ctx context.Context, id uuid.UUID, message string) error

	// Utility operations
	HealthCheck(ctx context.Context) error
}

// ReadingFilter contains filtering options for querying readings
type ReadingFilter struct {
	CityID    *string
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

type temperatureRepository struct {
	db      *database.PostgresDB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewTemperatureRepository creates a new temperature repository
func NewTemperatureRepository(db *database.PostgresDB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) TemperatureRepository {
	return &temperatureRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// GetOrCreateCity inserts the city if it does not exist yet and returns the
// stored row. Concurrent callers for the same city are safe: the insert is
// a no-op on conflict.
func (r *temperatureRepository) GetOrCreateCity(ctx context.Context, cityID string) (*models.City, error) {
	query := `
		INSERT INTO cities (city_id, name, created_at, updated_at)
		VALUES ($1, '', NOW(), NOW())
		ON CONFLICT (city_id) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, "insert_city", query, cityID); err != nil {
		return nil, fmt.Errorf("failed to create city: %w", err)
	}

	return r.GetCity(ctx, cityID)
}

// GetCity retrieves a city by its external identifier
func (r *temperatureRepository) GetCity(ctx context.Context, cityID string) (*models.City, error) {
	query := `
		SELECT city_id, name, created_at, updated_at
		FROM cities
		WHERE city_id = $1`

	var city models.City
	err := r.db.GetContext(ctx, "select_city", &city, query, cityID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &NotFoundError{Resource: "city", ID: cityID}
		}
		return nil, fmt.Errorf("failed to get city: %w", err)
	}

	return &city, nil
}

// ListCities retrieves cities with pagination, plus the unpaginated total
func (r *temperatureRepository) ListCities(ctx context.Context, limit, offset int) ([]*models.City, int, error) {
	var total int
	if err := r.db.GetContext(ctx, "count_cities", &total, `SELECT COUNT(*) FROM cities`); err != nil {
		return nil, 0, fmt.Errorf("failed to count cities: %w", err)
	}

	query := `
		SELECT city_id, name, created_at, updated_at
		FROM cities
		ORDER BY city_id
		LIMIT $1 OFFSET $2`

	cities := []*models.City{}
	if err := r.db.SelectContext(ctx, "select_cities", &cities, query, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to list cities: %w", err)
	}

	return cities, total, nil
}

// ListCityIDs returns every known city identifier, ordered for stable sweeps
func (r *temperatureRepository) ListCityIDs(ctx context.Context) ([]string, error) {
	cityIDs := []string{}
	query := `SELECT city_id FROM cities ORDER BY city_id`
	if err := r.db.SelectContext(ctx, "select_city_ids", &cityIDs, query); err != nil {
		return nil, fmt.Errorf("failed to list city ids: %w", err)
	}
	return cityIDs, nil
}

// InsertReadingBatch durably stores one validated batch of a chunk. The
// (job_id, chunk_index, batch_index) ledger row is claimed in the same
// transaction as the readings, the progress counter, and the stale marks,
// so a redelivered chunk task skips batches that are already on disk and
// processed_rows is never double counted. Returns false when an earlier
// delivery already applied this batch.
func (r *temperatureRepository) InsertReadingBatch(ctx context.Context, jobID uuid.UUID, chunkIndex, batchIndex int, readings []*models.TemperatureReading) (bool, error) {
	if len(readings) == 0 {
		return false, nil
	}

	applied := false
	err := r.db.WithTx(ctx, "insert_reading_batch", func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO job_chunks (job_id, chunk_index, batch_index, row_count, created_at)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (job_id, chunk_index, batch_index) DO NOTHING`,
			jobID, chunkIndex, batchIndex, len(readings))
		if err != nil {
			return fmt.Errorf("failed to claim batch ledger entry: %w", err)
		}
		claimed, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check ledger claim: %w", err)
		}
		if claimed == 0 {
			return nil
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO temperature_readings (city_id, value, timestamp, created_at)
			VALUES ($1, $2, $3, NOW())`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		seen := make(map[string]bool)
		cityIDs := []string{}
		for _, reading := range readings {
			if _, err := stmt.ExecContext(ctx, reading.CityID, reading.Value, reading.Timestamp); err != nil {
				return fmt.Errorf("failed to insert reading for city %s: %w", reading.CityID, err)
			}
			if !seen[reading.CityID] {
				seen[reading.CityID] = true
				cityIDs = append(cityIDs, reading.CityID)
			}
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE ingestion_jobs
			SET processed_rows = processed_rows + $1, updated_at = NOW()
			WHERE id = $2`,
			len(readings), jobID); err != nil {
			return fmt.Errorf("failed to advance job progress: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE city_stats_cache
			SET is_stale = TRUE
			WHERE city_id = ANY($1)`,
			pq.Array(cityIDs)); err != nil {
			return fmt.Errorf("failed to mark caches stale: %w", err)
		}

		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if !applied {
		r.logger.Info(ctx, "[REPO_BATCH_REPLAY] Batch already applied by earlier delivery, skipping", logging.Fields{
			"job_id":      jobID.String(),
			"chunk_index": chunkIndex,
			"batch_index": batchIndex,
		})
		return false, nil
	}

	r.metrics.IngestionRecordsTotal.Add(float64(len(readings)))
	r.metrics.IngestionBatchSize.Observe(float64(len(readings)))

	r.logger.Debug(ctx, "[REPO_BATCH_INSERT] Reading batch committed", logging.Fields{
		"job_id":      jobID.String(),
		"chunk_index": chunkIndex,
		"batch_index": batchIndex,
		"rows":        len(readings),
	})

	return true, nil
}

// GetReadings retrieves readings with filtering and pagination
func (r *temperatureRepository) GetReadings(ctx context.Context, filter ReadingFilter) ([]*models.TemperatureReading, int, error) {
	query := `
		SELECT id, city_id, value, timestamp, created_at
		FROM temperature_readings
		WHERE 1=1`

	args := []interface{}{}
	argNum := 1

	if filter.CityID != nil {
		query += fmt.Sprintf(" AND city_id = $%d", argNum)
		args = append(args, *filter.CityID)
		argNum++
	}

	if filter.StartDate != nil {
		query += fmt.Sprintf(" AND timestamp >= $%d", argNum)
		args = append(args, *filter.StartDate)
		argNum++
	}

	if filter.EndDate != nil {
		query += fmt.Sprintf(" AND timestamp <= $%d", argNum)
		args = append(args, *filter.EndDate)
		argNum++
	}

	countQuery := "SELECT COUNT(*) FROM (" + query + ") AS count_query"
	var total int
	if err := r.db.GetContext(ctx, "count_readings", &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count readings: %w", err)
	}

	query += " ORDER BY timestamp DESC"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, filter.Limit, filter.Offset)

	readings := []*models.TemperatureReading{}
	if err := r.db.SelectContext(ctx, "select_readings", &readings, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to get readings: %w", err)
	}

	return readings, total, nil
}

// AggregateCity computes statistics over the stored readings of one city.
// A city with no readings yields NULL aggregates and a zero count.
func (r *temperatureRepository) AggregateCity(ctx context.Context, cityID string) (*models.CityStats, error) {
	timer := time.Now()
	defer func() {
		r.metrics.StatsCalculationDuration.Observe(time.Since(timer).Seconds())
	}()

	query := `
		SELECT
			ROUND(AVG(value), 2) as mean_value,
			MAX(value) as max_value,
			MIN(value) as min_value,
			COUNT(*) as reading_count
		FROM temperature_readings
		WHERE city_id = $1`

	var result struct {
		MeanValue    *models.Temperature `db:"mean_value"`
		MaxValue     *models.Temperature `db:"max_value"`
		MinValue     *models.Temperature `db:"min_value"`
		ReadingCount int64               `db:"reading_count"`
	}

	if err := r.db.GetContext(ctx, "aggregate_city", &result, query, cityID); err != nil {
		return nil, fmt.Errorf("failed to aggregate city %s: %w", cityID, err)
	}

	return &models.CityStats{
		CityID:       cityID,
		MeanValue:    result.MeanValue,
		MaxValue:     result.MaxValue,
		MinValue:     result.MinValue,
		ReadingCount: result.ReadingCount,
		IsStale:      false,
		LastUpdated:  time.Now().UTC(),
	}, nil
}

// GetCityCache retrieves the cached statistics row for a city
func (r *temperatureRepository) GetCityCache(ctx context.Context, cityID string) (*models.CityStats, error) {
	query := `
		SELECT city_id, mean_value, max_value, min_value, reading_count, is_stale, last_updated
		FROM city_stats_cache
		WHERE city_id = $1`

	var stats models.CityStats
	err := r.db.GetContext(ctx, "select_city_cache", &stats, query, cityID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &NotFoundError{Resource: "city_stats_cache", ID: cityID}
		}
		return nil, fmt.Errorf("failed to get cached statistics: %w", err)
	}

	return &stats, nil
}

// UpsertCityCache writes freshly computed statistics and clears the stale flag
func (r *temperatureRepository) UpsertCityCache(ctx context.Context, stats *models.CityStats) error {
	query := `
		INSERT INTO city_stats_cache (city_id, mean_value, max_value, min_value, reading_count, is_stale, last_updated)
		VALUES ($1, $2, $3, $4, $5, FALSE, NOW())
		ON CONFLICT (city_id) DO UPDATE SET
			mean_value = EXCLUDED.mean_value,
			max_value = EXCLUDED.max_value,
			min_value = EXCLUDED.min_value,
			reading_count = EXCLUDED.reading_count,
			is_stale = FALSE,
			last_updated = NOW()`

	_, err := r.db.ExecContext(ctx, "upsert_city_cache", query,
		stats.CityID, stats.MeanValue, stats.MaxValue, stats.MinValue, stats.ReadingCount)
	if err != nil {
		return fmt.Errorf("failed to upsert statistics cache: %w", err)
	}

	return nil
}

// MarkCachesStale flags existing cache rows so readers know a refresh is due.
// Cities without a cache row are skipped; their first read computes fresh.
func (r *temperatureRepository) MarkCachesStale(ctx context.Context, cityIDs []string) error {
	if len(cityIDs) == 0 {
		return nil
	}

	query := `
		UPDATE city_stats_cache
		SET is_stale = TRUE
		WHERE city_id = ANY($1)`

	if _, err := r.db.ExecContext(ctx, "mark_caches_stale", query, pq.Array(cityIDs)); err != nil {
		return fmt.Errorf("failed to mark caches stale: %w", err)
	}

	return nil
}

// CreateJob persists a new ingestion job record
func (r *temperatureRepository) CreateJob(ctx context.Context, job *models.IngestionJob) error {
	query := `
		INSERT INTO ingestion_jobs (id, filename, file_path, file_size, status,
			total_rows, processed_rows, error_count, error_log, queue_task_id,
			retry_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())`

	_, err := r.db.ExecContext(ctx, "insert_job", query,
		job.ID, job.Filename, job.FilePath, job.FileSize, job.Status,
		job.TotalRows, job.ProcessedRows, job.ErrorCount, job.ErrorLog,
		job.QueueTaskID, job.RetryCount)
	if err != nil {
		return fmt.Errorf("failed to create ingestion job: %w", err)
	}

	r.metrics.RecordJobStatus(string(job.Status))

	r.logger.Debug(ctx, "[REPO_JOB_CREATE] Ingestion job created", logging.Fields{
		"job_id":   job.ID.String(),
		"filename": job.Filename,
	})

	return nil
}

// GetJob retrieves an ingestion job by ID
func (r *temperatureRepository) GetJob(ctx context.Context, id uuid.UUID) (*models.IngestionJob, error) {
	query := `
		SELECT id, filename, file_path, file_size, status, total_rows,
			processed_rows, error_count, error_log, queue_task_id, retry_count,
			created_at, updated_at, completed_at
		FROM ingestion_jobs
		WHERE id = $1`

	var job models.IngestionJob
	err := r.db.GetContext(ctx, "select_job", &job, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &NotFoundError{Resource: "ingestion_job", ID: id.String()}
		}
		return nil, fmt.Errorf("failed to get ingestion job: %w", err)
	}

	return &job, nil
}

// ListJobs retrieves ingestion jobs newest first, plus the unpaginated total
func (r *temperatureRepository) ListJobs(ctx context.Context, limit, offset int) ([]*models.IngestionJob, int, error) {
	var total int
	if err := r.db.GetContext(ctx, "count_jobs", &total, `SELECT COUNT(*) FROM ingestion_jobs`); err != nil {
		return nil, 0, fmt.Errorf("failed to count ingestion jobs: %w", err)
	}

	query := `
		SELECT id, filename, file_path, file_size, status, total_rows,
			processed_rows, error_count, error_log, queue_task_id, retry_count,
			created_at, updated_at, completed_at
		FROM ingestion_jobs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	jobs := []*models.IngestionJob{}
	if err := r.db.SelectContext(ctx, "select_jobs", &jobs, query, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to list ingestion jobs: %w", err)
	}

	return jobs, total, nil
}

// MarkJobProcessing transitions a job to processing and records the queue
// task currently driving it. The guard keeps terminal jobs terminal when a
// stale task is redelivered; false means no transition happened.
func (r *temperatureRepository) MarkJobProcessing(ctx context.Context, id uuid.UUID, taskID string) (bool, error) {
	query := `
		UPDATE ingestion_jobs
		SET status = $1, queue_task_id = $2, updated_at = NOW()
		WHERE id = $3 AND status IN ($4, $5)`

	res, err := r.db.ExecContext(ctx, "mark_job_processing", query,
		models.JobStatusProcessing, taskID, id,
		models.JobStatusPending, models.JobStatusProcessing)
	if err != nil {
		return false, fmt.Errorf("failed to mark job processing: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check job transition: %w", err)
	}
	if rows == 0 {
		return false, nil
	}

	r.metrics.RecordJobStatus(string(models.JobStatusProcessing))
	return true, nil
}

// SetJobTaskID records the queue task driving this job at submission time
func (r *temperatureRepository) SetJobTaskID(ctx context.Context, id uuid.UUID, taskID string) error {
	query := `
		UPDATE ingestion_jobs
		SET queue_task_id = $1, updated_at = NOW()
		WHERE id = $2`

	if _, err := r.db.ExecContext(ctx, "set_job_task_id", query, taskID, id); err != nil {
		return fmt.Errorf("failed to set job task id: %w", err)
	}

	return nil
}

// SetJobTotalRows records the counted data rows of the source file
func (r *temperatureRepository) SetJobTotalRows(ctx context.Context, id uuid.UUID, totalRows int64) error {
	query := `
		UPDATE ingestion_jobs
		SET total_rows = $1, updated_at = NOW()
		WHERE id = $2`

	if _, err := r.db.ExecContext(ctx, "set_job_total_rows", query, totalRows, id); err != nil {
		return fmt.Errorf("failed to set job total rows: %w", err)
	}

	return nil
}

// RecordChunkErrors appends a chunk's row errors to the job log, evicting
// the oldest entries past the cap while error_count keeps the true total.
// The ledger entry with batch_index -1 makes redelivered chunk tasks skip
// errors that were already recorded. Returns false on such a replay.
func (r *temperatureRepository) RecordChunkErrors(ctx context.Context, jobID uuid.UUID, chunkIndex int, jobErrors []models.JobError) (bool, error) {
	if len(jobErrors) == 0 {
		return false, nil
	}

	applied := false
	err := r.db.WithTx(ctx, "record_chunk_errors", func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO job_chunks (job_id, chunk_index, batch_index, row_count, created_at)
			VALUES ($1, $2, -1, $3, NOW())
			ON CONFLICT (job_id, chunk_index, batch_index) DO NOTHING`,
			jobID, chunkIndex, len(jobErrors))
		if err != nil {
			return fmt.Errorf("failed to claim error ledger entry: %w", err)
		}
		claimed, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check ledger claim: %w", err)
		}
		if claimed == 0 {
			return nil
		}

		var errorLog models.ErrorLog
		err = tx.GetContext(ctx, &errorLog, `
			SELECT error_log FROM ingestion_jobs WHERE id = $1 FOR UPDATE`, jobID)
		if err != nil {
			if err == sql.ErrNoRows {
				return &NotFoundError{Resource: "ingestion_job", ID: jobID.String()}
			}
			return fmt.Errorf("failed to lock job error log: %w", err)
		}

		errorLog = errorLog.Append(jobErrors...)

		if _, err := tx.ExecContext(ctx, `
			UPDATE ingestion_jobs
			SET error_log = $1, error_count = error_count + $2, updated_at = NOW()
			WHERE id = $3`,
			errorLog, len(jobErrors), jobID); err != nil {
			return fmt.Errorf("failed to append job errors: %w", err)
		}

		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if !applied {
		r.logger.Info(ctx, "[REPO_ERRORS_REPLAY] Chunk errors already recorded, skipping", logging.Fields{
			"job_id":      jobID.String(),
			"chunk_index": chunkIndex,
		})
		return false, nil
	}

	r.logger.Debug(ctx, "[REPO_ERRORS_RECORD] Chunk errors recorded", logging.Fields{
		"job_id":      jobID.String(),
		"chunk_index": chunkIndex,
		"errors":      len(jobErrors),
	})

	return true, nil
}

// IncrementJobRetry bumps the retry counter when a file task is redelivered
func (r *temperatureRepository) IncrementJobRetry(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE ingestion_jobs
		SET retry_count = retry_count + 1, updated_at = NOW()
		WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, "increment_job_retry", query, id); err != nil {
		return fmt.Errorf("failed to increment job retry count: %w", err)
	}

	return nil
}

// CompleteJob moves a processing job to its terminal success state:
// completed when every row made it, partial when some rows were rejected.
// A job that is already terminal is returned unchanged, so a redelivered
// file task cannot flip the outcome.
func (r *temperatureRepository) CompleteJob(ctx context.Context, id uuid.UUID) (*models.IngestionJob, error) {
	query := `
		UPDATE ingestion_jobs
		SET status = CASE WHEN error_count = 0 THEN 'completed' ELSE 'partial' END,
			completed_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
		RETURNING id, filename, file_path, file_size, status, total_rows,
			processed_rows, error_count, error_log, queue_task_id, retry_count,
			created_at, updated_at, completed_at`

	var job models.IngestionJob
	err := r.db.GetContext(ctx, "complete_job", &job, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return r.GetJob(ctx, id)
		}
		return nil, fmt.Errorf("failed to complete ingestion job: %w", err)
	}

	r.metrics.RecordJobStatus(string(job.Status))

	r.logger.Info(ctx, "[REPO_JOB_COMPLETE] Ingestion job reached terminal state", logging.Fields{
		"job_id":         job.ID.String(),
		"status":         string(job.Status),
		"processed_rows": job.ProcessedRows,
		"error_count":    job.ErrorCount,
	})

	return &job, nil
}

// FailJob marks a job failed after its retries are exhausted, appending the
// cause to the error log. Terminal jobs are left untouched.
func (r *temperatureRepository) FailJob(ctx context.Context, id uuid.UUID, message string) error {
	applied := false
	err := r.db.WithTx(ctx, "fail_job", func(tx *sqlx.Tx) error {
		var current struct {
			Status   models.JobStatus `db:"status"`
			ErrorLog models.ErrorLog  `db:"error_log"`
		}
		err := tx.GetContext(ctx, &current, `
			SELECT status, error_log FROM ingestion_jobs WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			if err == sql.ErrNoRows {
				return &NotFoundError{Resource: "ingestion_job", ID: id.String()}
			}
			return fmt.Errorf("failed to lock job: %w", err)
		}
		if current.Status.IsTerminal() {
			return nil
		}

		errorLog := current.ErrorLog.Append(models.NewJobError(0, message))

		if _, err := tx.ExecContext(ctx, `
			UPDATE ingestion_jobs
			SET status = $1, error_log = $2, completed_at = NOW(), updated_at = NOW()
			WHERE id = $3`,
			models.JobStatusFailed, errorLog, id); err != nil {
			return fmt.Errorf("failed to mark job failed: %w", err)
		}

		applied = true
		return nil
	})
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	r.metrics.RecordJobStatus(string(models.JobStatusFailed))

	r.logger.Error(ctx, "[REPO_JOB_FAILED] Ingestion job marked failed", logging.Fields{
		"job_id":  id.String(),
		"message": message,
	}, nil)

	return nil
}

// HealthCheck verifies database connectivity
func (r *temperatureRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// NotFoundError indicates a requested resource was not found
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Resource, e.ID)
}

// IsTransient returns false as not found errors are permanent
func (e *NotFoundError) IsTransient() bool {
	return false
}
