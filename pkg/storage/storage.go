package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrNotFound indicates the requested object does not exist.
var ErrNotFound = errors.New("stored object not found")

// Supported drivers.
const (
	DriverLocal      = "local"
	DriverS3         = "s3"
	DriverMinIO      = "minio"
	DriverCloudinary = "cloudinary"
)

// Storage persists uploaded submission files.
type Storage interface {
	Save(ctx context.Context, data []byte, filename, folder string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) (bool, error)
}

// Config selects and configures a storage driver.
type Config struct {
	Driver    string
	LocalRoot string

	S3Region string
	S3Bucket string

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool

	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
	CloudinaryFolder    string
}

// New builds the storage driver named in cfg.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (Storage, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverLocal:
		return NewLocal(cfg.LocalRoot)
	case DriverS3:
		return NewS3(ctx, cfg.S3Region, cfg.S3Bucket, logger)
	case DriverMinIO:
		return NewMinIO(ctx, MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		}, logger)
	case DriverCloudinary:
		return NewCloudinary(CloudinaryConfig{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryFolder,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

// ObjectKey builds "<folder>/<yyyymmdd_hhmmss>_<8 hex><ext>" for filename.
func ObjectKey(folder, filename string, now time.Time) string {
	ext := strings.ToLower(filepath.Ext(filename))
	name := fmt.Sprintf("%s_%s%s", now.UTC().Format("20060102_150405"), uuid.NewString()[:8], ext)

	folder = strings.Trim(path.Clean("/"+filepath.ToSlash(folder)), "/")
	if folder == "" {
		return name
	}
	return folder + "/" + name
}

// cleanKey rejects keys that would escape the storage root.
func cleanKey(key string) (string, error) {
	cleaned := strings.TrimPrefix(path.Clean("/"+filepath.ToSlash(key)), "/")
	if cleaned == "" || cleaned != strings.TrimPrefix(filepath.ToSlash(key), "/") {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return cleaned, nil
}
