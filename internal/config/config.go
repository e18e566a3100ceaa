// Package config loads service configuration from environment
// variables with sensible defaults for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string
}

// IngestionConfig controls how files are split and written.
// ChunkSize is rows per chunk task, BatchSize is rows per insert
// transaction, FanOut is how many chunks of one job run concurrently.
type IngestionConfig struct {
	ChunkSize int
	BatchSize int
	FanOut    int
}

// QueueConfig controls the in-process task queue lanes. A rate of 0
// means unlimited.
type QueueConfig struct {
	FileWorkers      int
	ChunkWorkers     int
	CacheWorkers     int
	FileRatePerMin   int
	ChunkRatePerMin  int
	CacheRatePerMin  int
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration
}

// CacheConfig controls the statistics cache sweep.
type CacheConfig struct {
	RefreshInterval time.Duration
}

// UploadConfig controls where uploaded files land and how large they
// may be.
type UploadConfig struct {
	Dir          string
	MaxSizeBytes int64
}

// Config is the complete service configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Logging   LoggingConfig
	Ingestion IngestionConfig
	Queue     QueueConfig
	Cache     CacheConfig
	Upload    UploadConfig
}

// LoadConfig reads configuration from the environment
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Database:        getEnv("DB_NAME", "temperature_db"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Ingestion: IngestionConfig{
			ChunkSize: getEnvInt("INGEST_CHUNK_SIZE", 1000),
			BatchSize: getEnvInt("INGEST_BATCH_SIZE", 500),
			FanOut:    getEnvInt("INGEST_FAN_OUT", 4),
		},
		Queue: QueueConfig{
			FileWorkers:      getEnvInt("QUEUE_FILE_WORKERS", 2),
			ChunkWorkers:     getEnvInt("QUEUE_CHUNK_WORKERS", 8),
			CacheWorkers:     getEnvInt("QUEUE_CACHE_WORKERS", 4),
			FileRatePerMin:   getEnvInt("QUEUE_FILE_RATE_PER_MIN", 10),
			ChunkRatePerMin:  getEnvInt("QUEUE_CHUNK_RATE_PER_MIN", 100),
			CacheRatePerMin:  getEnvInt("QUEUE_CACHE_RATE_PER_MIN", 0),
			RetryBackoffBase: getEnvDuration("QUEUE_RETRY_BACKOFF_BASE", time.Second),
			RetryBackoffMax:  getEnvDuration("QUEUE_RETRY_BACKOFF_MAX", 5*time.Minute),
		},
		Cache: CacheConfig{
			RefreshInterval: getEnvDuration("CACHE_REFRESH_INTERVAL", 10*time.Minute),
		},
		Upload: UploadConfig{
			Dir:          getEnv("UPLOAD_DIR", "./uploads"),
			MaxSizeBytes: getEnvInt64("UPLOAD_MAX_SIZE", 100<<20),
		},
	}

	return cfg, nil
}

// Validate checks the configuration for values that cannot work
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Database.MaxOpenConns < 1 {
		return fmt.Errorf("db_max_open_conns must be at least 1, got %d", c.Database.MaxOpenConns)
	}
	if c.Ingestion.ChunkSize < 1 {
		return fmt.Errorf("chunk size must be at least 1, got %d", c.Ingestion.ChunkSize)
	}
	if c.Ingestion.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1, got %d", c.Ingestion.BatchSize)
	}
	if c.Ingestion.FanOut < 1 {
		return fmt.Errorf("fan out must be at least 1, got %d", c.Ingestion.FanOut)
	}
	if c.Queue.FileWorkers < 1 || c.Queue.ChunkWorkers < 1 || c.Queue.CacheWorkers < 1 {
		return fmt.Errorf("queue worker counts must be at least 1")
	}
	if c.Queue.RetryBackoffBase <= 0 {
		return fmt.Errorf("retry backoff base must be positive, got %v", c.Queue.RetryBackoffBase)
	}
	if c.Queue.RetryBackoffMax < c.Queue.RetryBackoffBase {
		return fmt.Errorf("retry backoff max %v is below base %v", c.Queue.RetryBackoffMax, c.Queue.RetryBackoffBase)
	}
	if c.Cache.RefreshInterval <= 0 {
		return fmt.Errorf("cache refresh interval must be positive, got %v", c.Cache.RefreshInterval)
	}
	if c.Upload.MaxSizeBytes < 1 {
		return fmt.Errorf("upload max size must be positive, got %d", c.Upload.MaxSizeBytes)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
