package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  LogLevel
	}{
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"warn", WarnLevel},
		{"warning", WarnLevel},
		{"Error", ErrorLevel},
		{"fatal", FatalLevel},
		{" info ", InfoLevel},
		{"nonsense", InfoLevel},
		{"", InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestStructuredLogger_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger("test-service", "0.0.0", DebugLevel)
	logger.SetOutput(&buf)

	ctx := WithJobID(WithRequestID(context.Background(), "req-1"), "job-1")
	logger.Info(ctx, "[TEST] hello", Fields{"rows": 3})

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}

	if entry["request_id"] != "req-1" {
		t.Errorf("request_id = %v, want %v", entry["request_id"], "req-1")
	}
	if entry["job_id"] != "job-1" {
		t.Errorf("job_id = %v, want %v", entry["job_id"], "job-1")
	}
	if entry["message"] != "[TEST] hello" {
		t.Errorf("message = %v, want %v", entry["message"], "[TEST] hello")
	}
}

func TestStructuredLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger("test-service", "0.0.0", WarnLevel)
	logger.SetOutput(&buf)

	logger.Debug(context.Background(), "dropped", nil)
	logger.Info(context.Background(), "dropped too", nil)

	if buf.Len() != 0 {
		t.Errorf("below-level messages were written: %s", buf.String())
	}

	logger.Warn(context.Background(), "kept", nil)
	if buf.Len() == 0 {
		t.Error("warn message was filtered out")
	}
}

func TestContextLogger_MergeFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger("test-service", "0.0.0", DebugLevel)
	logger.SetOutput(&buf)

	child := logger.WithFields(Fields{"job_id": "job-9", "stage": "chunk"})
	child.Info(context.Background(), "[CHUNK_DONE] finished", Fields{"stage": "flush", "rows": 10})

	var entry struct {
		Fields map[string]interface{} `json:"fields"`
	}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}

	if entry.Fields["job_id"] != "job-9" {
		t.Errorf("fields.job_id = %v, want %v", entry.Fields["job_id"], "job-9")
	}
	if entry.Fields["stage"] != "flush" {
		t.Errorf("fields.stage = %v, want %v (call fields override)", entry.Fields["stage"], "flush")
	}
}
