package services

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Hetprajapati12/Assignment-solution/internal/models"
	"github.com/Hetprajapati12/Assignment-solution/internal/parser"
	"github.com/Hetprajapati12/Assignment-solution/internal/queue"
	"github.com/Hetprajapati12/Assignment-solution/internal/repository"
	"github.com/Hetprajapati12/Assignment-solution/pkg/logging"
	"github.com/Hetprajapati12/Assignment-solution/pkg/metrics"
)

// IngestionService owns the ingestion job lifecycle: it accepts uploads,
// drives the file task that streams a CSV into chunk tasks, and settles
// each job in exactly one terminal state.
type IngestionService struct {
	repo      repository.TemperatureRepository
	queue     *queue.Queue
	processor *ChunkProcessor
	logger    *logging.StructuredLogger
	metrics   *metrics.Collector
	chunkSize int
	fanOut    int
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(repo repository.TemperatureRepository, q *queue.Queue, processor *ChunkProcessor, logger *logging.StructuredLogger, metricsCollector *metrics.Collector, chunkSize, fanOut int) *IngestionService {
	if fanOut < 1 {
		fanOut = 1
	}
	return &IngestionService{
		repo:      repo,
		queue:     q,
		processor: processor,
		logger:    logger,
		metrics:   metricsCollector,
		chunkSize: chunkSize,
		fanOut:    fanOut,
	}
}

// RegisterTasks binds the ingestion task kinds to their lanes
func (s *IngestionService) RegisterTasks(q *queue.Queue) error {
	if err := q.Register(TaskProcessFile, queue.LaneFileProcessing, fileTaskRetries, s.HandleProcessFile); err != nil {
		return err
	}
	return q.Register(TaskProcessChunk, queue.LaneChunkProcessing, chunkTaskRetries, s.HandleProcessChunk)
}

// SubmitJob records a new pending job for an uploaded file and enqueues
// the file task that will process it.
func (s *IngestionService) SubmitJob(ctx context.Context, filename, filePath string, fileSize int64) (*models.IngestionJob, error) {
	job := &models.IngestionJob{
		ID:       uuid.New(),
		Filename: filename,
		FilePath: filePath,
		FileSize: fileSize,
		Status:   models.JobStatusPending,
		ErrorLog: models.ErrorLog{},
	}

	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	handle, err := s.queue.Enqueue(ctx, TaskProcessFile, processFilePayload{JobID: job.ID.String()})
	if err != nil {
		// The job row exists but nothing will ever drive it.
		if failErr := s.repo.FailJob(ctx, job.ID, fmt.Sprintf("failed to enqueue processing task: %v", err)); failErr != nil {
			s.logger.Error(ctx, "[JOB_FAIL_ERROR] Could not mark job failed", logging.Fields{
				"job_id": job.ID.String(),
			}, failErr)
		}
		return nil, fmt.Errorf("failed to enqueue file task: %w", err)
	}

	job.QueueTaskID = handle.ID()
	if err := s.repo.SetJobTaskID(ctx, job.ID, handle.ID()); err != nil {
		// Non-fatal: the handler records the task id again when it starts.
		s.logger.Warn(ctx, "[JOB_TASK_ID_WARN] Could not record queue task id", logging.Fields{
			"job_id":  job.ID.String(),
			"task_id": handle.ID(),
		})
	}

	s.logger.Info(ctx, "[JOB_SUBMITTED] Ingestion job submitted", logging.Fields{
		"job_id":    job.ID.String(),
		"task_id":   handle.ID(),
		"filename":  filename,
		"file_size": fileSize,
	})

	return job, nil
}

// GetJob returns one job by id
func (s *IngestionService) GetJob(ctx context.Context, id uuid.UUID) (*models.IngestionJob, error) {
	return s.repo.GetJob(ctx, id)
}

// ListJobs returns jobs newest first, plus the unpaginated total
func (s *IngestionService) ListJobs(ctx context.Context, limit, offset int) ([]*models.IngestionJob, int, error) {
	return s.repo.ListJobs(ctx, limit, offset)
}

// HandleProcessFile is the file task handler. It re-runs from the top on
// every delivery; the chunk ledger keeps redelivered work idempotent.
func (s *IngestionService) HandleProcessFile(ctx context.Context, task *queue.Task) error {
	var payload processFilePayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return queue.Permanent(fmt.Errorf("invalid file task payload: %w", err))
	}
	jobID, err := uuid.Parse(payload.JobID)
	if err != nil {
		return queue.Permanent(fmt.Errorf("invalid job id %q: %w", payload.JobID, err))
	}

	ctx = logging.WithJobID(ctx, jobID.String())
	startTime := time.Now()

	s.logger.Info(ctx, "[FILE_TASK_START] Starting file processing", logging.Fields{
		"job_id":  jobID.String(),
		"attempt": task.Attempt,
		"stage":   "INITIALIZATION",
	})

	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		var nf *repository.NotFoundError
		if errors.As(err, &nf) {
			// Nothing to fail either; stop without retries.
			s.logger.Error(ctx, "[JOB_NOT_FOUND] Ingestion job does not exist", logging.Fields{
				"job_id": jobID.String(),
			}, err)
			return queue.Permanent(err)
		}
		return s.jobAttemptFailed(ctx, task, jobID, err)
	}

	if job.Status.IsTerminal() {
		s.logger.Info(ctx, "[JOB_ALREADY_TERMINAL] Skipping redelivered file task", logging.Fields{
			"job_id": jobID.String(),
			"status": string(job.Status),
		})
		return nil
	}

	if task.Attempt > 1 {
		if err := s.repo.IncrementJobRetry(ctx, jobID); err != nil {
			s.logger.Warn(ctx, "[JOB_RETRY_WARN] Could not record retry", logging.Fields{
				"job_id": jobID.String(),
			})
		}
	}

	transitioned, err := s.repo.MarkJobProcessing(ctx, jobID, task.ID)
	if err != nil {
		return s.jobAttemptFailed(ctx, task, jobID, err)
	}
	if !transitioned {
		return nil
	}

	if err := s.processFile(ctx, job, task); err != nil {
		return s.jobAttemptFailed(ctx, task, jobID, err)
	}

	s.metrics.IngestionDuration.Observe(time.Since(startTime).Seconds())
	return nil
}

// processFile counts the rows, streams the file into chunk tasks with
// bounded fan-out, waits for every chunk, then settles the job.
func (s *IngestionService) processFile(ctx context.Context, job *models.IngestionJob, task *queue.Task) error {
	totalRows, hasHeader, err := s.countRows(job.FilePath)
	if err != nil {
		return err
	}

	if err := s.repo.SetJobTotalRows(ctx, job.ID, totalRows); err != nil {
		return err
	}

	s.logger.Info(ctx, "[FILE_TASK_COUNTED] Source file counted", logging.Fields{
		"job_id":     job.ID.String(),
		"total_rows": totalRows,
		"has_header": hasHeader,
		"stage":      "ROW_COUNT",
	})

	affectedCities, chunkCount, err := s.dispatchChunks(ctx, job, hasHeader)
	if err != nil {
		return err
	}

	if err := s.repo.MarkCachesStale(ctx, affectedCities); err != nil {
		return err
	}

	for _, cityID := range affectedCities {
		if _, err := s.queue.Enqueue(ctx, TaskUpdateCityCache, cityCachePayload{CityID: cityID}); err != nil {
			// Non-fatal: the periodic sweep reconciles missed refreshes.
			s.logger.Warn(ctx, "[CACHE_ENQUEUE_WARN] Could not enqueue cache refresh", logging.Fields{
				"job_id":  job.ID.String(),
				"city_id": cityID,
			})
		}
	}

	completed, err := s.repo.CompleteJob(ctx, job.ID)
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "[FILE_TASK_COMPLETE] File processing completed", logging.Fields{
		"job_id":          completed.ID.String(),
		"status":          string(completed.Status),
		"total_rows":      completed.TotalRows,
		"processed_rows":  completed.ProcessedRows,
		"error_count":     completed.ErrorCount,
		"chunks":          chunkCount,
		"affected_cities": len(affectedCities),
		"attempt":         task.Attempt,
		"stage":           "COMPLETE",
	})

	return nil
}

// countRows reads the file once to count its data rows, detecting an
// optional header on the first record. An empty file counts zero rows.
func (s *IngestionService) countRows(filePath string) (int64, bool, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return 0, false, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	reader := newCSVReader(file)

	first, err := reader.Read()
	if err == io.EOF {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read file: %w", err)
	}

	hasHeader := parser.IsHeaderRow(first)
	var total int64
	if !hasHeader {
		total = 1
	}

	for {
		if _, err := reader.Read(); err != nil {
			if err == io.EOF {
				break
			}
			return 0, false, fmt.Errorf("failed to read file: %w", err)
		}
		total++
	}

	return total, hasHeader, nil
}

// dispatchChunks streams the file into ChunkSize chunks, enqueues each as
// a chunk task, and joins on every handle. The errgroup limit bounds how
// many chunks are in flight, which also throttles how fast the file is
// read. Returns the distinct city ids seen in column one.
func (s *IngestionService) dispatchChunks(ctx context.Context, job *models.IngestionJob, hasHeader bool) ([]string, int, error) {
	file, err := os.Open(job.FilePath)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	reader := newCSVReader(file)

	if hasHeader {
		if _, err := reader.Read(); err != nil && err != io.EOF {
			return nil, 0, fmt.Errorf("failed to skip header: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fanOut)

	dispatch := func(index int, rows [][]string) {
		g.Go(func() error {
			handle, err := s.queue.Enqueue(gctx, TaskProcessChunk, processChunkPayload{
				JobID:      job.ID.String(),
				ChunkIndex: index,
				Rows:       rows,
			})
			if err != nil {
				return fmt.Errorf("failed to enqueue chunk %d: %w", index, err)
			}
			if err := handle.Wait(gctx); err != nil {
				return fmt.Errorf("chunk %d failed: %w", index, err)
			}
			return nil
		})
	}

	seen := make(map[string]bool)
	affectedCities := []string{}
	chunkIndex := 0
	chunk := make([][]string, 0, s.chunkSize)

	for gctx.Err() == nil {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("failed to read file: %w", err)
		}

		if len(record) > 0 {
			cityID := strings.TrimSpace(record[0])
			if cityID != "" && !seen[cityID] {
				seen[cityID] = true
				affectedCities = append(affectedCities, cityID)
			}
		}

		chunk = append(chunk, record)
		if len(chunk) >= s.chunkSize {
			dispatch(chunkIndex, chunk)
			chunkIndex++
			chunk = make([][]string, 0, s.chunkSize)
		}
	}

	if len(chunk) > 0 && gctx.Err() == nil {
		dispatch(chunkIndex, chunk)
		chunkIndex++
	}

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	return affectedCities, chunkIndex, nil
}

// HandleProcessChunk is the chunk task handler
func (s *IngestionService) HandleProcessChunk(ctx context.Context, task *queue.Task) error {
	var payload processChunkPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return queue.Permanent(fmt.Errorf("invalid chunk task payload: %w", err))
	}
	jobID, err := uuid.Parse(payload.JobID)
	if err != nil {
		return queue.Permanent(fmt.Errorf("invalid job id %q: %w", payload.JobID, err))
	}

	ctx = logging.WithJobID(ctx, jobID.String())

	result, err := s.processor.Process(ctx, jobID, payload.ChunkIndex, payload.Rows)
	if err != nil {
		s.logger.Error(ctx, "[CHUNK_TASK_FAILED] Chunk processing attempt failed", logging.Fields{
			"job_id":      jobID.String(),
			"chunk_index": payload.ChunkIndex,
			"attempt":     task.Attempt,
		}, err)
		return err
	}

	s.logger.Debug(ctx, "[CHUNK_TASK_COMPLETE] Chunk task finished", logging.Fields{
		"job_id":      jobID.String(),
		"chunk_index": payload.ChunkIndex,
		"processed":   result.ProcessedCount,
		"errors":      result.ErrorCount,
		"attempt":     task.Attempt,
	})

	return nil
}

// jobAttemptFailed logs a failed attempt and, when no retry will follow,
// settles the job as failed before handing the error back to the queue.
func (s *IngestionService) jobAttemptFailed(ctx context.Context, task *queue.Task, jobID uuid.UUID, err error) error {
	s.logger.Error(ctx, "[FILE_TASK_FAILED] File processing attempt failed", logging.Fields{
		"job_id":  jobID.String(),
		"attempt": task.Attempt,
	}, err)

	if task.Attempt > task.MaxRetries || queue.IsPermanent(err) {
		if failErr := s.repo.FailJob(ctx, jobID, err.Error()); failErr != nil {
			s.logger.Error(ctx, "[JOB_FAIL_ERROR] Could not mark job failed", logging.Fields{
				"job_id": jobID.String(),
			}, failErr)
		}
	}

	return err
}

// newCSVReader builds the reader used for both passes over a source file.
// Lenient quoting and variable record lengths: shape problems are handled
// per row, not by aborting the file.
func newCSVReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	return reader
}
