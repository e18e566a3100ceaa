package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %v, want %v", cfg.Server.Port, 8080)
	}
	if cfg.Ingestion.ChunkSize != 1000 {
		t.Errorf("Ingestion.ChunkSize = %v, want %v", cfg.Ingestion.ChunkSize, 1000)
	}
	if cfg.Queue.FileRatePerMin != 10 {
		t.Errorf("Queue.FileRatePerMin = %v, want %v", cfg.Queue.FileRatePerMin, 10)
	}
	if cfg.Queue.ChunkRatePerMin != 100 {
		t.Errorf("Queue.ChunkRatePerMin = %v, want %v", cfg.Queue.ChunkRatePerMin, 100)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults = %v, want nil", err)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_NAME", "other_db")
	t.Setenv("INGEST_FAN_OUT", "1")
	t.Setenv("CACHE_REFRESH_INTERVAL", "30s")
	t.Setenv("QUEUE_RETRY_BACKOFF_BASE", "50ms")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %v, want %v", cfg.Server.Port, 9090)
	}
	if cfg.Database.Database != "other_db" {
		t.Errorf("Database.Database = %v, want %v", cfg.Database.Database, "other_db")
	}
	if cfg.Ingestion.FanOut != 1 {
		t.Errorf("Ingestion.FanOut = %v, want %v", cfg.Ingestion.FanOut, 1)
	}
	if cfg.Cache.RefreshInterval != 30*time.Second {
		t.Errorf("Cache.RefreshInterval = %v, want %v", cfg.Cache.RefreshInterval, 30*time.Second)
	}
	if cfg.Queue.RetryBackoffBase != 50*time.Millisecond {
		t.Errorf("Queue.RetryBackoffBase = %v, want %v", cfg.Queue.RetryBackoffBase, 50*time.Millisecond)
	}
}

func TestLoadConfig_MalformedEnvFallsBack(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-number")
	t.Setenv("SERVER_READ_TIMEOUT", "soon")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %v, want default %v", cfg.Server.Port, 8080)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want default %v", cfg.Server.ReadTimeout, 15*time.Second)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg, _ := LoadConfig()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{name: "zero port", mutate: func(c *Config) { c.Server.Port = 0 }, wantSub: "server port"},
		{name: "empty db host", mutate: func(c *Config) { c.Database.Host = "" }, wantSub: "database host"},
		{name: "zero chunk size", mutate: func(c *Config) { c.Ingestion.ChunkSize = 0 }, wantSub: "chunk size"},
		{name: "zero batch size", mutate: func(c *Config) { c.Ingestion.BatchSize = 0 }, wantSub: "batch size"},
		{name: "zero fan out", mutate: func(c *Config) { c.Ingestion.FanOut = 0 }, wantSub: "fan out"},
		{name: "zero workers", mutate: func(c *Config) { c.Queue.ChunkWorkers = 0 }, wantSub: "worker"},
		{
			name:    "backoff max below base",
			mutate:  func(c *Config) { c.Queue.RetryBackoffBase = time.Minute; c.Queue.RetryBackoffMax = time.Second },
			wantSub: "backoff max",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("Validate() = %q, want substring %q", err.Error(), tt.wantSub)
			}
		})
	}
}
