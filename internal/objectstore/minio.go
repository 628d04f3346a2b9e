package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dpup/rabbitmiles/server/internal/config"
)

// MinioStore stores objects in a self-hosted MinIO deployment
type MinioStore struct {
	client *minio.Client
}

// NewMinioStore creates a MinIO store with static credentials
func NewMinioStore(cfg config.StorageConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &MinioStore{client: client}, nil
}

// GetObject downloads an object into memory
func (s *MinioStore) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.wrapErr(err, "get", bucket, key)
	}
	defer obj.Close()

	// Errors for missing objects surface on the first read
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.wrapErr(err, "read", bucket, key)
	}
	return data, nil
}

// PutObject uploads data, replacing any existing object
func (s *MinioStore) PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("failed to put minio %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *MinioStore) wrapErr(err error, op, bucket, key string) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%w: minio %s/%s", ErrNotFound, bucket, key)
	}
	return fmt.Errorf("failed to %s minio %s/%s: %w", op, bucket, key, err)
}
