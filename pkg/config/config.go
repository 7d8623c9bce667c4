// Package config loads server and worker configuration from the
// environment, with an optional YAML tuning profile for pool and
// worker knobs.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds everything the server and worker binaries need at
// startup. All environment variables are required; Load fails fast
// when any is missing.
type Config struct {
	DatabaseURL         string
	RedisURL            string
	DBName              string
	JWTSecret           string
	JWTExp              time.Duration
	GCSBucketName       string
	GCSCredentialsJSON  string
	GoogleStorageAPIKey string
	ServerAddr          string
	LogConfig           string

	// Optional overrides.
	BlobBackend  string // gcs (default), s3, fs
	S3Bucket     string
	S3Region     string
	S3Endpoint   string
	BlobDir      string
	OTELEndpoint string

	Tuning Tuning
}

// Load reads the environment. Missing required variables are reported
// together so operators fix them in one pass.
func Load() (*Config, error) {
	var missing []string
	need := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := &Config{
		DatabaseURL:         need("DATABASE_URL"),
		RedisURL:            need("REDIS_URL"),
		DBName:              need("DB_NAME"),
		JWTSecret:           need("JWT_SECRET"),
		GCSBucketName:       need("GCS_BUCKET_NAME"),
		GCSCredentialsJSON:  need("GOOGLE_APPLICATION_CREDENTIALS_JSON"),
		GoogleStorageAPIKey: need("GOOGLE_STORAGE_API_KEY"),
		ServerAddr:          need("SERVER_ADDR"),
		LogConfig:           need("LOG_CONFIG"),

		BlobBackend:  os.Getenv("BLOB_BACKEND"),
		S3Bucket:     os.Getenv("S3_BUCKET"),
		S3Region:     os.Getenv("S3_REGION"),
		S3Endpoint:   os.Getenv("S3_ENDPOINT"),
		BlobDir:      os.Getenv("BLOB_DIR"),
		OTELEndpoint: os.Getenv("OTEL_ENDPOINT"),
	}

	expStr := need("JWT_EXP")
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment: %s", strings.Join(missing, ", "))
	}

	expSecs, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("JWT_EXP must be an integer number of seconds: %w", err)
	}
	cfg.JWTExp = time.Duration(expSecs) * time.Second

	cfg.Tuning = DefaultTuning()
	if path := os.Getenv("SYNCX_TUNING"); path != "" {
		tuning, err := LoadTuning(path)
		if err != nil {
			return nil, err
		}
		cfg.Tuning = tuning
	}

	return cfg, nil
}

// LogLevel maps LOG_CONFIG to a slog level, defaulting to info.
func (c *Config) LogLevel() slog.Level {
	switch strings.ToLower(c.LogConfig) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
