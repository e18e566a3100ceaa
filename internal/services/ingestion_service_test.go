package services

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Hetprajapati12/Assignment-solution/internal/models"
	"github.com/Hetprajapati12/Assignment-solution/internal/queue"
	"github.com/Hetprajapati12/Assignment-solution/internal/testutil"
	"github.com/Hetprajapati12/Assignment-solution/pkg/logging"
	"github.com/Hetprajapati12/Assignment-solution/pkg/metrics"
)

var testMetrics = metrics.NewCollector("services_test")

func quietLogger() *logging.StructuredLogger {
	logger := logging.NewStructuredLogger("services-test", "0.0.0", logging.FatalLevel)
	logger.SetOutput(io.Discard)
	return logger
}

type testEnv struct {
	repo      *testutil.FakeRepository
	queue     *queue.Queue
	ingestion *IngestionService
	cache     *CacheService
}

func newTestEnv(t *testing.T, chunkSize, batchSize, fanOut int) *testEnv {
	t.Helper()

	logger := quietLogger()
	repo := testutil.NewFakeRepository()

	q := queue.New(logger, testMetrics, queue.Options{
		RetryBackoffBase: time.Millisecond,
		RetryBackoffMax:  10 * time.Millisecond,
	})
	q.AddLane(queue.LaneFileProcessing, 2, 0)
	q.AddLane(queue.LaneChunkProcessing, 4, 0)
	q.AddLane(queue.LaneCacheUpdates, 2, 0)

	processor := NewChunkProcessor(repo, logger, testMetrics, chunkSize, batchSize)
	ingestion := NewIngestionService(repo, q, processor, logger, testMetrics, chunkSize, fanOut)
	cache := NewCacheService(repo, q, logger, testMetrics)

	if err := ingestion.RegisterTasks(q); err != nil {
		t.Fatalf("RegisterTasks() error = %v", err)
	}
	if err := cache.RegisterTasks(q); err != nil {
		t.Fatalf("RegisterTasks() error = %v", err)
	}

	q.Start()
	t.Cleanup(q.Stop)

	return &testEnv{repo: repo, queue: q, ingestion: ingestion, cache: cache}
}

func writeTempCSV(t *testing.T, lines ...string) (string, int64) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "upload.csv")
	content := strings.Join(lines, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path, int64(len(content))
}

func waitForJob(t *testing.T, repo *testutil.FakeRepository, id uuid.UUID) *models.IngestionJob {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := repo.GetJob(context.Background(), id)
		if err != nil {
			t.Fatalf("GetJob() error = %v", err)
		}
		if job.Status.IsTerminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal state", id)
	return nil
}

func waitForFreshCache(t *testing.T, repo *testutil.FakeRepository, cityID string) models.CityStats {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cache, ok := repo.CacheSnapshot(cityID); ok && !cache.IsStale {
			return cache
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("cache for %s never became fresh", cityID)
	return models.CityStats{}
}

func TestIngestionService_CompletesFile(t *testing.T) {
	env := newTestEnv(t, 100, 50, 2)
	path, size := writeTempCSV(t,
		"city_id,temperature,timestamp",
		"CITY_001,25.5,2024-01-15T10:30:00Z",
		"CITY_001,26.0,1705315800",
		"CITY_002,10.0,2024-01-15 10:30:00",
		"CITY_002,-5.5,15/01/2024 10:30:00",
	)

	job, err := env.ingestion.SubmitJob(context.Background(), "upload.csv", path, size)
	if err != nil {
		t.Fatalf("SubmitJob() error = %v", err)
	}
	if job.QueueTaskID == "" {
		t.Error("SubmitJob() did not record a queue task id")
	}

	final := waitForJob(t, env.repo, job.ID)
	if final.Status != models.JobStatusCompleted {
		t.Fatalf("job status = %s, want %s", final.Status, models.JobStatusCompleted)
	}
	if final.TotalRows != 4 {
		t.Errorf("TotalRows = %d, want 4", final.TotalRows)
	}
	if final.ProcessedRows != 4 {
		t.Errorf("ProcessedRows = %d, want 4", final.ProcessedRows)
	}
	if final.ErrorCount != 0 {
		t.Errorf("ErrorCount = %d, want 0", final.ErrorCount)
	}
	if final.CompletedAt == nil {
		t.Error("CompletedAt not set on terminal job")
	}
	if got := final.ProgressPercentage(); got != 100 {
		t.Errorf("ProgressPercentage() = %v, want 100", got)
	}

	cache1 := waitForFreshCache(t, env.repo, "CITY_001")
	if got := cache1.MeanValue.String(); got != "25.75" {
		t.Errorf("CITY_001 mean = %s, want 25.75", got)
	}
	if got := cache1.MaxValue.String(); got != "26.00" {
		t.Errorf("CITY_001 max = %s, want 26.00", got)
	}
	if got := cache1.MinValue.String(); got != "25.50" {
		t.Errorf("CITY_001 min = %s, want 25.50", got)
	}
	if cache1.ReadingCount != 2 {
		t.Errorf("CITY_001 reading count = %d, want 2", cache1.ReadingCount)
	}

	cache2 := waitForFreshCache(t, env.repo, "CITY_002")
	if got := cache2.MeanValue.String(); got != "2.25" {
		t.Errorf("CITY_002 mean = %s, want 2.25", got)
	}
	if got := cache2.MinValue.String(); got != "-5.50" {
		t.Errorf("CITY_002 min = %s, want -5.50", got)
	}
}

func TestIngestionService_PartialFile(t *testing.T) {
	env := newTestEnv(t, 100, 50, 2)
	path, size := writeTempCSV(t,
		"city_id,temperature,timestamp",
		"CITY_001,20.0,2024-01-15T10:30:00Z",
		"CITY_001,not_a_number,2024-01-15T10:30:00Z",
		"CITY_001,150,2024-01-15T10:30:00Z",
		"CITY_001,21.5,garbage",
		"CITY_001,21.0,2024-01-15T11:30:00Z",
		"CITY_001,22.0",
	)

	job, err := env.ingestion.SubmitJob(context.Background(), "upload.csv", path, size)
	if err != nil {
		t.Fatalf("SubmitJob() error = %v", err)
	}

	final := waitForJob(t, env.repo, job.ID)
	if final.Status != models.JobStatusPartial {
		t.Fatalf("job status = %s, want %s", final.Status, models.JobStatusPartial)
	}
	if final.TotalRows != 6 {
		t.Errorf("TotalRows = %d, want 6", final.TotalRows)
	}
	if final.ProcessedRows != 2 {
		t.Errorf("ProcessedRows = %d, want 2", final.ProcessedRows)
	}
	if final.ErrorCount != 4 {
		t.Errorf("ErrorCount = %d, want 4", final.ErrorCount)
	}

	wantErrors := []struct {
		row     int64
		message string
	}{
		{2, "Invalid temperature value: not_a_number"},
		{3, "Temperature 150 out of valid range (-100 to 100)"},
		{4, "Unable to parse timestamp: garbage"},
		{6, "Row has 2 columns, expected 3"},
	}
	if len(final.ErrorLog) != len(wantErrors) {
		t.Fatalf("error log has %d entries, want %d", len(final.ErrorLog), len(wantErrors))
	}
	for i, want := range wantErrors {
		entry := final.ErrorLog[i]
		if entry.Row != want.row {
			t.Errorf("error %d row = %d, want %d", i, entry.Row, want.row)
		}
		if entry.Message != want.message {
			t.Errorf("error %d message = %q, want %q", i, entry.Message, want.message)
		}
	}
}

func TestIngestionService_FileVariants(t *testing.T) {
	tests := []struct {
		name          string
		lines         []string
		wantStatus    models.JobStatus
		wantTotal     int64
		wantProcessed int64
	}{
		{
			name:          "empty file",
			lines:         nil,
			wantStatus:    models.JobStatusCompleted,
			wantTotal:     0,
			wantProcessed: 0,
		},
		{
			name:          "header only",
			lines:         []string{"city_id,temperature,timestamp"},
			wantStatus:    models.JobStatusCompleted,
			wantTotal:     0,
			wantProcessed: 0,
		},
		{
			name: "no header",
			lines: []string{
				"TEMPLE_CITY,12.5,2024-01-15T10:30:00Z",
				"CITY_009,-3,1705315800",
			},
			wantStatus:    models.JobStatusCompleted,
			wantTotal:     2,
			wantProcessed: 2,
		},
		{
			name: "extra columns ignored",
			lines: []string{
				"city_id,temperature,timestamp,notes",
				"CITY_001,25.5,2024-01-15T10:30:00Z,manual reading",
			},
			wantStatus:    models.JobStatusCompleted,
			wantTotal:     1,
			wantProcessed: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, 100, 50, 2)
			path, size := writeTempCSV(t, tt.lines...)

			job, err := env.ingestion.SubmitJob(context.Background(), "upload.csv", path, size)
			if err != nil {
				t.Fatalf("SubmitJob() error = %v", err)
			}

			final := waitForJob(t, env.repo, job.ID)
			if final.Status != tt.wantStatus {
				t.Errorf("job status = %s, want %s", final.Status, tt.wantStatus)
			}
			if final.TotalRows != tt.wantTotal {
				t.Errorf("TotalRows = %d, want %d", final.TotalRows, tt.wantTotal)
			}
			if final.ProcessedRows != tt.wantProcessed {
				t.Errorf("ProcessedRows = %d, want %d", final.ProcessedRows, tt.wantProcessed)
			}
		})
	}
}

func TestIngestionService_BatchRetryDoesNotDoubleCount(t *testing.T) {
	env := newTestEnv(t, 4, 2, 1)
	env.repo.FailBatchOnce["0/1"] = 1

	path, size := writeTempCSV(t,
		"city_id,temperature,timestamp",
		"CITY_001,20.0,2024-01-15T10:00:00Z",
		"CITY_001,21.0,2024-01-15T11:00:00Z",
		"CITY_001,22.0,2024-01-15T12:00:00Z",
		"CITY_001,23.0,2024-01-15T13:00:00Z",
	)

	job, err := env.ingestion.SubmitJob(context.Background(), "upload.csv", path, size)
	if err != nil {
		t.Fatalf("SubmitJob() error = %v", err)
	}

	final := waitForJob(t, env.repo, job.ID)
	if final.Status != models.JobStatusCompleted {
		t.Fatalf("job status = %s, want %s", final.Status, models.JobStatusCompleted)
	}
	// The first batch committed before the failure; the chunk redelivery
	// must skip it and only apply the second batch.
	if final.ProcessedRows != 4 {
		t.Errorf("ProcessedRows = %d, want 4", final.ProcessedRows)
	}
	if got := env.repo.ReadingCount(); got != 4 {
		t.Errorf("stored readings = %d, want 4", got)
	}
	// The chunk retried internally; the file task itself never failed.
	if final.RetryCount != 0 {
		t.Errorf("RetryCount = %d, want 0", final.RetryCount)
	}
}

func TestIngestionService_ExhaustedRetriesFailJob(t *testing.T) {
	env := newTestEnv(t, 10, 5, 1)
	env.repo.FailInsertBatches = 1 << 30

	path, size := writeTempCSV(t,
		"CITY_001,20.0,2024-01-15T10:00:00Z",
		"CITY_001,21.0,2024-01-15T11:00:00Z",
	)

	job, err := env.ingestion.SubmitJob(context.Background(), "upload.csv", path, size)
	if err != nil {
		t.Fatalf("SubmitJob() error = %v", err)
	}

	final := waitForJob(t, env.repo, job.ID)
	if final.Status != models.JobStatusFailed {
		t.Fatalf("job status = %s, want %s", final.Status, models.JobStatusFailed)
	}
	if final.RetryCount != 3 {
		t.Errorf("RetryCount = %d, want 3", final.RetryCount)
	}
	if final.ProcessedRows != 0 {
		t.Errorf("ProcessedRows = %d, want 0", final.ProcessedRows)
	}
	if final.CompletedAt == nil {
		t.Error("CompletedAt not set on failed job")
	}
	// The failure cause lands in the log without touching the row error
	// counter.
	if final.ErrorCount != 0 {
		t.Errorf("ErrorCount = %d, want 0", final.ErrorCount)
	}
	if len(final.ErrorLog) != 1 {
		t.Fatalf("error log has %d entries, want 1", len(final.ErrorLog))
	}
	msg := final.ErrorLog[0].Message
	if !strings.Contains(msg, "chunk 0 failed") || !strings.Contains(msg, "store unavailable") {
		t.Errorf("failure message = %q, want chunk failure with cause", msg)
	}
}

func TestIngestionService_MissingFileFailsJob(t *testing.T) {
	env := newTestEnv(t, 10, 5, 1)

	path := filepath.Join(t.TempDir(), "ghost.csv")
	job, err := env.ingestion.SubmitJob(context.Background(), "ghost.csv", path, 10)
	if err != nil {
		t.Fatalf("SubmitJob() error = %v", err)
	}

	final := waitForJob(t, env.repo, job.ID)
	if final.Status != models.JobStatusFailed {
		t.Fatalf("job status = %s, want %s", final.Status, models.JobStatusFailed)
	}
	if final.RetryCount != 3 {
		t.Errorf("RetryCount = %d, want 3", final.RetryCount)
	}
	if len(final.ErrorLog) != 1 {
		t.Fatalf("error log has %d entries, want 1", len(final.ErrorLog))
	}
	if !strings.Contains(final.ErrorLog[0].Message, "failed to open file") {
		t.Errorf("failure message = %q, want open failure", final.ErrorLog[0].Message)
	}
}

func TestIngestionService_RedeliveredTerminalJobIsNoop(t *testing.T) {
	env := newTestEnv(t, 10, 5, 1)
	ctx := context.Background()

	job := &models.IngestionJob{
		ID:       uuid.New(),
		Filename: "done.csv",
		FilePath: "/nonexistent/done.csv",
		Status:   models.JobStatusPending,
		ErrorLog: models.ErrorLog{},
	}
	if err := env.repo.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	if _, err := env.repo.MarkJobProcessing(ctx, job.ID, "original-task"); err != nil {
		t.Fatalf("MarkJobProcessing() error = %v", err)
	}
	completed, err := env.repo.CompleteJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("CompleteJob() error = %v", err)
	}
	if completed.Status != models.JobStatusCompleted {
		t.Fatalf("setup status = %s, want %s", completed.Status, models.JobStatusCompleted)
	}

	payload, err := json.Marshal(processFilePayload{JobID: job.ID.String()})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	task := &queue.Task{
		ID:         "redelivered-task",
		Kind:       TaskProcessFile,
		Payload:    payload,
		Attempt:    2,
		MaxRetries: 3,
	}

	if err := env.ingestion.HandleProcessFile(ctx, task); err != nil {
		t.Fatalf("HandleProcessFile() error = %v, want nil for terminal job", err)
	}

	after, err := env.repo.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if after.Status != models.JobStatusCompleted {
		t.Errorf("job status = %s, want unchanged %s", after.Status, models.JobStatusCompleted)
	}
	if after.RetryCount != 0 {
		t.Errorf("RetryCount = %d, want 0 for skipped redelivery", after.RetryCount)
	}
	if after.QueueTaskID != "original-task" {
		t.Errorf("QueueTaskID = %q, want original-task", after.QueueTaskID)
	}
}
