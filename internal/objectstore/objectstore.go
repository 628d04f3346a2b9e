// Package objectstore reads and writes trail documents in a bucket/key object
// store. S3, MinIO and a local filesystem backend are provided.
package objectstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/dpup/rabbitmiles/server/internal/config"
)

// ErrNotFound is returned when the requested object does not exist.
var ErrNotFound = errors.New("object not found")

// Store is a minimal bucket/key object store.
type Store interface {
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
	PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error
}

// New creates the backend selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "s3":
		return NewS3Store(ctx, cfg)
	case "minio":
		return NewMinioStore(cfg)
	case "fs":
		return NewFSStore(cfg.Root), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}
