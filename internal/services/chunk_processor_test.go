package services

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/Hetprajapati12/Assignment-solution/internal/models"
	"github.com/Hetprajapati12/Assignment-solution/internal/testutil"
)

func newProcessorFixture(t *testing.T, chunkSize, batchSize int) (*ChunkProcessor, *testutil.FakeRepository, uuid.UUID) {
	t.Helper()

	repo := testutil.NewFakeRepository()
	processor := NewChunkProcessor(repo, quietLogger(), testMetrics, chunkSize, batchSize)

	jobID := uuid.New()
	job := &models.IngestionJob{
		ID:       jobID,
		Filename: "chunk.csv",
		FilePath: "/tmp/chunk.csv",
		Status:   models.JobStatusProcessing,
		ErrorLog: models.ErrorLog{},
	}
	if err := repo.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	return processor, repo, jobID
}

func validRow(cityID, value string) []string {
	return []string{cityID, value, "2024-01-15T10:30:00Z"}
}

func TestChunkProcessor_RowNumbering(t *testing.T) {
	processor, repo, jobID := newProcessorFixture(t, 3, 10)

	rows := [][]string{
		validRow("CITY_001", "20.0"),
		{"CITY_001", "oops", "2024-01-15T10:30:00Z"},
		validRow("CITY_001", "21.0"),
	}

	result, err := processor.Process(context.Background(), jobID, 2, rows)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.ProcessedCount != 2 {
		t.Errorf("ProcessedCount = %d, want 2", result.ProcessedCount)
	}
	if result.ErrorCount != 1 {
		t.Errorf("ErrorCount = %d, want 1", result.ErrorCount)
	}

	job, err := repo.GetJob(context.Background(), jobID)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if len(job.ErrorLog) != 1 {
		t.Fatalf("error log has %d entries, want 1", len(job.ErrorLog))
	}
	// Chunk 2 of size 3, local index 1: data row 8 of the file.
	if job.ErrorLog[0].Row != 8 {
		t.Errorf("error row = %d, want 8", job.ErrorLog[0].Row)
	}
	if job.ErrorLog[0].Message != "Invalid temperature value: oops" {
		t.Errorf("error message = %q", job.ErrorLog[0].Message)
	}
}

func TestChunkProcessor_BatchBoundaries(t *testing.T) {
	processor, repo, jobID := newProcessorFixture(t, 100, 2)

	rows := [][]string{
		validRow("CITY_001", "20.0"),
		validRow("CITY_001", "21.0"),
		validRow("CITY_001", "22.0"),
		validRow("CITY_001", "23.0"),
		validRow("CITY_001", "24.0"),
	}

	result, err := processor.Process(context.Background(), jobID, 0, rows)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.ProcessedCount != 5 {
		t.Errorf("ProcessedCount = %d, want 5", result.ProcessedCount)
	}
	if got := repo.ReadingCount(); got != 5 {
		t.Errorf("stored readings = %d, want 5", got)
	}

	// Two full sub-batches plus the trailing one.
	if claims := repo.LedgerSize(); claims != 3 {
		t.Errorf("ledger claims = %d, want 3", claims)
	}

	job, err := repo.GetJob(context.Background(), jobID)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if job.ProcessedRows != 5 {
		t.Errorf("ProcessedRows = %d, want 5", job.ProcessedRows)
	}
}

func TestChunkProcessor_ReplayIsIdempotent(t *testing.T) {
	processor, repo, jobID := newProcessorFixture(t, 100, 2)

	rows := [][]string{
		validRow("CITY_001", "20.0"),
		validRow("CITY_001", "21.0"),
		validRow("CITY_001", "22.0"),
		{"CITY_001", "bad", "2024-01-15T10:30:00Z"},
	}

	if _, err := processor.Process(context.Background(), jobID, 0, rows); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	result, err := processor.Process(context.Background(), jobID, 0, rows)
	if err != nil {
		t.Fatalf("Process() replay error = %v", err)
	}

	// The replay still reports what it saw; the store ignored its writes.
	if result.ProcessedCount != 3 || result.ErrorCount != 1 {
		t.Errorf("replay result = %d/%d, want 3/1", result.ProcessedCount, result.ErrorCount)
	}
	if got := repo.ReadingCount(); got != 3 {
		t.Errorf("stored readings = %d, want 3 after replay", got)
	}

	job, err := repo.GetJob(context.Background(), jobID)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if job.ProcessedRows != 3 {
		t.Errorf("ProcessedRows = %d, want 3 after replay", job.ProcessedRows)
	}
	if job.ErrorCount != 1 {
		t.Errorf("ErrorCount = %d, want 1 after replay", job.ErrorCount)
	}
	if len(job.ErrorLog) != 1 {
		t.Errorf("error log has %d entries, want 1 after replay", len(job.ErrorLog))
	}
}

func TestChunkProcessor_ErrorLogCapKeepsLatest(t *testing.T) {
	processor, repo, jobID := newProcessorFixture(t, 200, 50)

	rows := make([][]string, 0, 120)
	for i := 0; i < 120; i++ {
		rows = append(rows, []string{"CITY_001", "not_a_number", "2024-01-15T10:30:00Z"})
	}

	result, err := processor.Process(context.Background(), jobID, 0, rows)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.ErrorCount != 120 {
		t.Errorf("ErrorCount = %d, want 120", result.ErrorCount)
	}

	job, err := repo.GetJob(context.Background(), jobID)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if job.ErrorCount != 120 {
		t.Errorf("job ErrorCount = %d, want 120", job.ErrorCount)
	}
	if len(job.ErrorLog) != 100 {
		t.Fatalf("error log has %d entries, want 100", len(job.ErrorLog))
	}
	if job.ErrorLog[0].Row != 21 {
		t.Errorf("first retained error row = %d, want 21", job.ErrorLog[0].Row)
	}
	if job.ErrorLog[99].Row != 120 {
		t.Errorf("last retained error row = %d, want 120", job.ErrorLog[99].Row)
	}
}

func TestChunkProcessor_ReportsDistinctCities(t *testing.T) {
	processor, _, jobID := newProcessorFixture(t, 100, 50)

	rows := [][]string{
		validRow("CITY_A", "20.0"),
		validRow("CITY_B", "21.0"),
		validRow("CITY_A", "22.0"),
		validRow("CITY_B", "23.0"),
	}

	result, err := processor.Process(context.Background(), jobID, 0, rows)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	want := []string{"CITY_A", "CITY_B"}
	if fmt.Sprint(result.CityIDs) != fmt.Sprint(want) {
		t.Errorf("CityIDs = %v, want %v", result.CityIDs, want)
	}
}

func TestChunkProcessor_StoreErrorPropagates(t *testing.T) {
	processor, repo, jobID := newProcessorFixture(t, 100, 2)
	repo.FailInsertBatches = 1

	rows := [][]string{
		validRow("CITY_001", "20.0"),
		validRow("CITY_001", "21.0"),
	}

	_, err := processor.Process(context.Background(), jobID, 0, rows)
	if err == nil {
		t.Fatal("Process() = nil, want store error")
	}
	if !strings.Contains(err.Error(), "store unavailable") {
		t.Errorf("Process() error = %v, want wrapped store failure", err)
	}
	if got := repo.ReadingCount(); got != 0 {
		t.Errorf("stored readings = %d, want 0 after failed batch", got)
	}
}
