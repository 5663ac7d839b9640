package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"hazard-reporter/pkg/validation"

	"github.com/joho/godotenv"
)

// Storage backends for uploaded artifacts
const (
	StorageBackendHTTP  = "http"
	StorageBackendAzure = "azure"
)

// Artifact encodings
const (
	ArtifactFormatJPEG = "jpeg"
	ArtifactFormatWebP = "webp"
)

type Config struct {
	Host               string
	Port               string
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
	LogLevel           string

	InferenceURL     string
	InferenceTimeout time.Duration

	StorageBackend      string
	AzureAccountName    string
	AzureAccountKey     string
	AzureContainer      string
	AzureServiceURL     string
	CompensationTimeout time.Duration

	DatabasePath string

	ScratchDir       string
	SavedGracePeriod time.Duration
	SubmissionTTL    time.Duration
	ArtifactFormat   string
	ArtifactQuality  int

	GeocoderURL       string
	GeocoderUserAgent string
	GeocoderTimeout   time.Duration
}

func (c *Config) ServerAddress() string {
	// Trim any whitespace from host and port
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// Load reads an optional .env file from the working directory and then the environment
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	return LoadFromEnv()
}

func LoadFromEnv() (*Config, error) {
	// Set defaults
	cfg := &Config{
		Host:               getEnvOrDefault("HOST", "0.0.0.0"),
		Port:               getEnvOrDefault("PORT", "8080"),
		RequestTimeout:     parseDurationOrDefault("REQUEST_TIMEOUT", 60*time.Second),
		MaxRequestBodySize: parseIntOrDefault("MAX_REQUEST_BODY_SIZE", 20*1024*1024), // 20MB, image + original
		LogLevel:           getEnvOrDefault("LOG_LEVEL", "info"),

		InferenceURL:     getEnvOrDefault("INFERENCE_URL", "http://localhost:8000"),
		InferenceTimeout: parseDurationOrDefault("INFERENCE_TIMEOUT", 30*time.Second),

		StorageBackend:      strings.ToLower(getEnvOrDefault("STORAGE_BACKEND", StorageBackendHTTP)),
		AzureAccountName:    os.Getenv("AZURE_STORAGE_ACCOUNT"),
		AzureAccountKey:     os.Getenv("AZURE_STORAGE_KEY"),
		AzureContainer:      getEnvOrDefault("AZURE_STORAGE_CONTAINER", "reports"),
		AzureServiceURL:     os.Getenv("AZURE_STORAGE_SERVICE_URL"),
		CompensationTimeout: parseDurationOrDefault("COMPENSATION_TIMEOUT", 15*time.Second),

		DatabasePath: getEnvOrDefault("DATABASE_PATH", "reports.db"),

		ScratchDir:       getEnvOrDefault("SCRATCH_DIR", os.TempDir()),
		SavedGracePeriod: parseDurationOrDefault("SAVED_GRACE_PERIOD", 5*time.Second),
		SubmissionTTL:    parseDurationOrDefault("SUBMISSION_TTL", 30*time.Minute),
		ArtifactFormat:   strings.ToLower(getEnvOrDefault("ARTIFACT_FORMAT", ArtifactFormatJPEG)),
		ArtifactQuality:  int(parseIntOrDefault("ARTIFACT_QUALITY", 90)),

		GeocoderURL:       getEnvOrDefault("GEOCODER_URL", "https://nominatim.openstreetmap.org"),
		GeocoderUserAgent: getEnvOrDefault("GEOCODER_USER_AGENT", "hazard-reporter/1.0"),
		GeocoderTimeout:   parseDurationOrDefault("GEOCODER_TIMEOUT", 10*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and cross-field requirements
func (c *Config) Validate() error {
	// Validate port is numeric and in range
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize)
	}
	if c.RequestTimeout <= 0 || c.InferenceTimeout <= 0 || c.GeocoderTimeout <= 0 || c.CompensationTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got request=%s, inference=%s, geocoder=%s, compensation=%s)",
			c.RequestTimeout, c.InferenceTimeout, c.GeocoderTimeout, c.CompensationTimeout)
	}
	if c.SubmissionTTL <= 0 {
		return fmt.Errorf("SUBMISSION_TTL must be > 0 (got %s)", c.SubmissionTTL)
	}
	if c.SavedGracePeriod < 0 {
		return fmt.Errorf("SAVED_GRACE_PERIOD must be >= 0 (got %s)", c.SavedGracePeriod)
	}

	urls := validation.NewURLValidator()
	if err := urls.Validate(c.InferenceURL); err != nil {
		return fmt.Errorf("invalid INFERENCE_URL: %w", err)
	}
	if c.GeocoderURL != "" {
		if err := urls.Validate(c.GeocoderURL); err != nil {
			return fmt.Errorf("invalid GEOCODER_URL: %w", err)
		}
	}

	switch c.StorageBackend {
	case StorageBackendHTTP:
	case StorageBackendAzure:
		if c.AzureAccountName == "" || c.AzureAccountKey == "" {
			return fmt.Errorf("AZURE_STORAGE_ACCOUNT and AZURE_STORAGE_KEY are required for the azure backend")
		}
		if c.AzureContainer == "" {
			return fmt.Errorf("AZURE_STORAGE_CONTAINER must not be empty")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND: %q", c.StorageBackend)
	}

	switch c.ArtifactFormat {
	case ArtifactFormatJPEG, ArtifactFormatWebP:
	default:
		return fmt.Errorf("unsupported ARTIFACT_FORMAT: %q", c.ArtifactFormat)
	}
	if c.ArtifactQuality < 1 || c.ArtifactQuality > 100 {
		return fmt.Errorf("ARTIFACT_QUALITY must be within 1..100 (got %d)", c.ArtifactQuality)
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("DATABASE_PATH must not be empty")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration >= 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}
