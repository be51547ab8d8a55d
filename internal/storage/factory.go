package storage

import (
	"context"
	"fmt"

	"fortunemagnet/internal/config"
)

// New builds the Storage selected by cfg.Driver.
func New(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	switch cfg.Driver {
	case "", "minio":
		return NewMinIO(ctx, cfg.MinIO, cfg.PhotoBucket, cfg.EnsureBucket)
	case "s3":
		return NewS3(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}
