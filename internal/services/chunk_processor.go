package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Hetprajapati12/Assignment-solution/internal/models"
	"github.com/Hetprajapati12/Assignment-solution/internal/parser"
	"github.com/Hetprajapati12/Assignment-solution/internal/repository"
	"github.com/Hetprajapati12/Assignment-solution/pkg/logging"
	"github.com/Hetprajapati12/Assignment-solution/pkg/metrics"
)

// ChunkProcessor validates one chunk of raw CSV rows and stores the valid
// readings in durable sub-batches.
type ChunkProcessor struct {
	repo      repository.TemperatureRepository
	logger    *logging.StructuredLogger
	metrics   *metrics.Collector
	chunkSize int
	batchSize int
}

// NewChunkProcessor creates a new chunk processor
func NewChunkProcessor(repo repository.TemperatureRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector, chunkSize, batchSize int) *ChunkProcessor {
	return &ChunkProcessor{
		repo:      repo,
		logger:    logger,
		metrics:   metricsCollector,
		chunkSize: chunkSize,
		batchSize: batchSize,
	}
}

// ChunkResult contains per-chunk processing statistics
type ChunkResult struct {
	ProcessedCount int
	ErrorCount     int
	CityIDs        []string
}

// Process validates every row of a chunk and writes the valid readings in
// sub-batches, each one a single transaction gated by the chunk ledger.
// Invalid rows are buffered and appended to the job's error log in one
// final ledger-gated transaction. Store errors propagate to the caller so
// the queue can retry the whole chunk; the ledger makes that retry safe.
func (p *ChunkProcessor) Process(ctx context.Context, jobID uuid.UUID, chunkIndex int, rows [][]string) (*ChunkResult, error) {
	result := &ChunkResult{}
	batch := make([]*models.TemperatureReading, 0, p.batchSize)
	jobErrors := []models.JobError{}
	knownCities := make(map[string]bool)
	batchIndex := 0

	for rowIdx, row := range rows {
		parsed, err := parser.ParseRow(row)
		if err != nil {
			result.ErrorCount++
			// 1-based data row number across the whole file
			rowNumber := int64(chunkIndex*p.chunkSize + rowIdx + 1)
			jobErrors = append(jobErrors, models.NewJobError(rowNumber, err.Error()))
			p.metrics.RecordIngestionError(parseErrorType(err))

			p.logger.Warn(ctx, "[CHUNK_ROW_ERROR] Row failed validation", logging.Fields{
				"job_id":      jobID.String(),
				"chunk_index": chunkIndex,
				"row_number":  rowNumber,
				"error":       err.Error(),
			})
			continue
		}

		if !knownCities[parsed.CityID] {
			if _, err := p.repo.GetOrCreateCity(ctx, parsed.CityID); err != nil {
				return nil, fmt.Errorf("failed to ensure city %s: %w", parsed.CityID, err)
			}
			knownCities[parsed.CityID] = true
			result.CityIDs = append(result.CityIDs, parsed.CityID)
		}

		batch = append(batch, &models.TemperatureReading{
			CityID:    parsed.CityID,
			Value:     parsed.Value,
			Timestamp: parsed.Timestamp,
		})
		result.ProcessedCount++

		if len(batch) >= p.batchSize {
			if _, err := p.repo.InsertReadingBatch(ctx, jobID, chunkIndex, batchIndex, batch); err != nil {
				return nil, fmt.Errorf("failed to insert batch: %w", err)
			}
			batchIndex++
			batch = batch[:0]
		}
	}

	if len(batch) > 0 {
		if _, err := p.repo.InsertReadingBatch(ctx, jobID, chunkIndex, batchIndex, batch); err != nil {
			return nil, fmt.Errorf("failed to insert final batch: %w", err)
		}
	}

	if len(jobErrors) > 0 {
		if _, err := p.repo.RecordChunkErrors(ctx, jobID, chunkIndex, jobErrors); err != nil {
			return nil, fmt.Errorf("failed to record chunk errors: %w", err)
		}
	}

	p.logger.Debug(ctx, "[CHUNK_COMPLETE] Chunk processed", logging.Fields{
		"job_id":      jobID.String(),
		"chunk_index": chunkIndex,
		"processed":   result.ProcessedCount,
		"errors":      result.ErrorCount,
	})

	return result, nil
}

// parseErrorType maps a row error to its metrics label
func parseErrorType(err error) string {
	var pe *parser.ParseError
	if errors.As(err, &pe) {
		return string(pe.Kind)
	}
	return "parse_error"
}
