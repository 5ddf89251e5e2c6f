package common

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Database       DatabaseConfig
	Server         ServerConfig
	OCR            OCRConfig
	Orchestration  OrchestrationConfig
	Redis          RedisConfig
	Queue          QueueConfig
	ThresholdsFile string
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string // "postgres" or "sqlite"
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr        string
	GRPCAddr        string
	ShutdownTimeout time.Duration
}

// OCRConfig holds per-method credentials. A method without credentials is disabled.
type OCRConfig struct {
	DocumentAI   DocumentAIConfig
	Vision       VisionConfig
	Managed      ManagedOCRConfig
	LocalEnabled bool
	Pdftotext    string
	ArtifactDir  string
}

type DocumentAIConfig struct {
	ProjectID       string
	Location        string
	ProcessorID     string
	CredentialsFile string
}

type VisionConfig struct {
	ProjectID string
	Region    string
	Model     string
}

type ManagedOCRConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// OrchestrationConfig bounds a single extraction run.
type OrchestrationConfig struct {
	MaxDocumentBytes int64
	Deadline         time.Duration
	MethodTimeout    time.Duration
	MaxAttempts      int
	BaseBackoff      time.Duration
	MaxBackoff       time.Duration
}

// RedisConfig enables the per-document lock when URL is set.
type RedisConfig struct {
	URL     string
	LockTTL time.Duration
}

type QueueConfig struct {
	Workers int
	Size    int
	Timeout time.Duration
}

// LoadConfig loads configuration from environment variables, reading .env first if present.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Database: DatabaseConfig{
			Driver:           getEnv("DB_DRIVER", "postgres"),
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 2),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
			GRPCAddr:        getEnv("GRPC_ADDR", ":9090"),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		OCR: OCRConfig{
			DocumentAI: DocumentAIConfig{
				ProjectID:       getEnv("DOCUMENTAI_PROJECT_ID", ""),
				Location:        getEnv("DOCUMENTAI_LOCATION", "us"),
				ProcessorID:     getEnv("DOCUMENTAI_PROCESSOR_ID", ""),
				CredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
			},
			Vision: VisionConfig{
				ProjectID: getEnv("VERTEX_PROJECT_ID", ""),
				Region:    getEnv("VERTEX_REGION", "us-central1"),
				Model:     getEnv("VERTEX_MODEL", "gemini-1.5-pro"),
			},
			Managed: ManagedOCRConfig{
				BaseURL: getEnv("MANAGED_OCR_BASE_URL", "https://api.mistral.ai"),
				APIKey:  getEnv("MANAGED_OCR_API_KEY", ""),
				Model:   getEnv("MANAGED_OCR_MODEL", "mistral-ocr-latest"),
				Timeout: getEnvAsDuration("MANAGED_OCR_TIMEOUT", 60*time.Second),
			},
			LocalEnabled: getEnvAsBool("LOCAL_EXTRACTION_ENABLED", true),
			Pdftotext:    getEnv("PDFTOTEXT_PATH", ""),
			ArtifactDir:  getEnv("ARTIFACT_DIR", "./tmp"),
		},
		Orchestration: OrchestrationConfig{
			MaxDocumentBytes: getEnvAsInt64("MAX_DOCUMENT_BYTES", 10<<20),
			Deadline:         getEnvAsDuration("EXTRACTION_DEADLINE", 2*time.Minute),
			MethodTimeout:    getEnvAsDuration("METHOD_TIMEOUT", 90*time.Second),
			MaxAttempts:      getEnvAsInt("METHOD_MAX_ATTEMPTS", 3),
			BaseBackoff:      getEnvAsDuration("METHOD_BASE_BACKOFF", 500*time.Millisecond),
			MaxBackoff:       getEnvAsDuration("METHOD_MAX_BACKOFF", 8*time.Second),
		},
		Redis: RedisConfig{
			URL:     getEnv("REDIS_URL", ""),
			LockTTL: getEnvAsDuration("DOCUMENT_LOCK_TTL", 5*time.Minute),
		},
		Queue: QueueConfig{
			Workers: getEnvAsInt("QUEUE_WORKERS", 4),
			Size:    getEnvAsInt("QUEUE_SIZE", 256),
			Timeout: getEnvAsDuration("QUEUE_PROCESS_TIMEOUT", 3*time.Minute),
		},
		ThresholdsFile: getEnv("THRESHOLDS_FILE", ""),
	}
}

// LoadYAML overlays the YAML document at path onto dst. A blank path is a no-op;
// a missing file is an error since it was explicitly configured.
func LoadYAML(path string, dst any) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewAppError("CONFIG_ERROR", fmt.Sprintf("thresholds file %q not found", path), ErrInvalidInput)
		}
		return NewAppError("CONFIG_ERROR", "read thresholds file", err)
	}
	if err := yaml.Unmarshal(b, dst); err != nil {
		return NewAppError("CONFIG_ERROR", "parse thresholds file", err)
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("DB_DRIVER %q is not supported", c.Database.Driver), ErrInvalidInput)
	}
	if c.Orchestration.MaxDocumentBytes <= 0 {
		return NewAppError("CONFIG_ERROR", "MAX_DOCUMENT_BYTES must be positive", ErrInvalidInput)
	}
	if c.Orchestration.Deadline <= 0 {
		return NewAppError("CONFIG_ERROR", "EXTRACTION_DEADLINE must be positive", ErrInvalidInput)
	}
	if c.Orchestration.MaxAttempts < 1 {
		return NewAppError("CONFIG_ERROR", "METHOD_MAX_ATTEMPTS must be at least 1", ErrInvalidInput)
	}
	return nil
}
