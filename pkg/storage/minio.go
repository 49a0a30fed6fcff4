package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// MinIOConfig holds connection settings for a MinIO server.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinIO stores files in a MinIO bucket.
type MinIO struct {
	client *minio.Client
	bucket string
	logger zerolog.Logger
	now    func() time.Time
}

// NewMinIO connects to MinIO and creates the bucket when missing.
func NewMinIO(ctx context.Context, cfg MinIOConfig, logger zerolog.Logger) (*MinIO, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &MinIO{
		client: client,
		bucket: cfg.Bucket,
		logger: logger.With().Str("component", "minio_storage").Logger(),
		now:    time.Now,
	}, nil
}

// Save uploads data and returns the object key.
func (m *MinIO) Save(ctx context.Context, data []byte, filename, folder string) (string, error) {
	key := ObjectKey(folder, filename, m.now())

	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: mimetype.Detect(data).String(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload object: %w", err)
	}

	m.logger.Debug().Str("key", key).Int("size", len(data)).Msg("object stored")
	return key, nil
}

// Get downloads the object at key.
func (m *MinIO) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to download object: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return data, nil
}

// Delete removes the object and reports whether it existed.
func (m *MinIO) Delete(ctx context.Context, key string) (bool, error) {
	if _, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat object: %w", err)
	}

	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return false, fmt.Errorf("failed to delete object: %w", err)
	}
	return true, nil
}
