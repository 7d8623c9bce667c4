package blob

import (
	"context"
	"fmt"
)

// Backend selects the object-store implementation.
type Backend string

const (
	BackendGCS Backend = "gcs"
	BackendS3  Backend = "s3"
	BackendFS  Backend = "fs"
)

// FactoryConfig carries the union of backend settings; only the
// fields of the selected backend are consulted.
type FactoryConfig struct {
	Backend Backend

	// GCS
	GCSBucket          string
	GCSCredentialsJSON []byte

	// S3
	S3Bucket   string
	S3Region   string
	S3Endpoint string

	// Filesystem
	BaseDir string
}

// NewStore builds the configured backend. GCS is the production
// default; fs serves development and tests.
func NewStore(ctx context.Context, cfg FactoryConfig) (Store, error) {
	switch cfg.Backend {
	case BackendGCS, "":
		if cfg.GCSBucket == "" {
			return nil, fmt.Errorf("gcs backend requires a bucket name")
		}
		return NewGCSStore(ctx, GCSConfig{
			Bucket:          cfg.GCSBucket,
			CredentialsJSON: cfg.GCSCredentialsJSON,
		})
	case BackendS3:
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 backend requires a bucket name")
		}
		return NewS3Store(ctx, S3Config{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
		})
	case BackendFS:
		if cfg.BaseDir == "" {
			return nil, fmt.Errorf("fs backend requires a base directory")
		}
		return NewFileStore(cfg.BaseDir)
	default:
		return nil, fmt.Errorf("unsupported blob backend: %s", cfg.Backend)
	}
}
