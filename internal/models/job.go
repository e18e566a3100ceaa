package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of an ingestion job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusPartial    JobStatus = "partial"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether the status can never change again.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusPartial, JobStatusFailed:
		return true
	}
	return false
}

// MaxErrorLogEntries caps how many row errors a job retains.
// ErrorCount keeps the true total even after eviction.
const MaxErrorLogEntries = 100

// JobError is one retained entry in a job's error log. Row is the 1-based
// data row number in the source file; zero means the error is not tied to
// a specific row.
type JobError struct {
	Timestamp string `json:"timestamp"`
	Row       int64  `json:"row,omitempty"`
	Message   string `json:"message"`
}

// NewJobError builds an entry stamped with the current UTC time.
func NewJobError(row int64, message string) JobError {
	return JobError{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Row:       row,
		Message:   message,
	}
}

// ErrorLog is the ordered error list persisted as JSONB, oldest first.
type ErrorLog []JobError

// Append adds entries and evicts the oldest so at most
// MaxErrorLogEntries remain.
func (l ErrorLog) Append(errs ...JobError) ErrorLog {
	merged := append(l, errs...)
	if over := len(merged) - MaxErrorLogEntries; over > 0 {
		merged = merged[over:]
	}
	return merged
}

// Value implements driver.Valuer. An empty log is stored as the empty
// JSON array, never NULL.
func (l ErrorLog) Value() (driver.Value, error) {
	if len(l) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner for the JSONB column.
func (l *ErrorLog) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("cannot scan %T into ErrorLog", src)
	}
}

// IngestionJob tracks one uploaded file through the pipeline.
// ProcessedRows and ErrorCount only ever move forward, and only inside
// the transaction that makes the corresponding work durable.
type IngestionJob struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	Filename      string     `json:"filename" db:"filename"`
	FilePath      string     `json:"file_path" db:"file_path"`
	FileSize      int64      `json:"file_size" db:"file_size"`
	Status        JobStatus  `json:"status" db:"status"`
	TotalRows     int64      `json:"total_rows" db:"total_rows"`
	ProcessedRows int64      `json:"processed_rows" db:"processed_rows"`
	ErrorCount    int64      `json:"error_count" db:"error_count"`
	ErrorLog      ErrorLog   `json:"error_log" db:"error_log"`
	QueueTaskID   string     `json:"queue_task_id,omitempty" db:"queue_task_id"`
	RetryCount    int        `json:"retry_count" db:"retry_count"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// ProgressPercentage returns processed rows as a percentage of the total,
// rounded to two decimals.
func (j *IngestionJob) ProgressPercentage() float64 {
	if j.TotalRows <= 0 {
		if j.Status == JobStatusCompleted {
			return 100
		}
		return 0
	}
	pct := float64(j.ProcessedRows) / float64(j.TotalRows) * 100
	return math.Round(pct*100) / 100
}
