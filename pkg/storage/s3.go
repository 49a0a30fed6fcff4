package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
)

// S3 stores files in an AWS S3 bucket.
type S3 struct {
	client *s3.Client
	bucket string
	logger zerolog.Logger
	now    func() time.Time
}

// NewS3 builds an S3 store using the default AWS credential chain.
func NewS3(ctx context.Context, region, bucket string, logger zerolog.Logger) (*S3, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket must be provided")
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	return &S3{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		logger: logger.With().Str("component", "s3_storage").Logger(),
		now:    time.Now,
	}, nil
}

// Save uploads data and returns the object key.
func (s *S3) Save(ctx context.Context, data []byte, filename, folder string) (string, error) {
	key := ObjectKey(folder, filename, s.now())

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(mimetype.Detect(data).String()),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload object: %w", err)
	}

	s.logger.Debug().Str("key", key).Int("size", len(data)).Msg("object stored")
	return key, nil
}

// Get downloads the object at key.
func (s *S3) Get(ctx context.Context, key string) ([]byte, error) {
	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to download object: %w", err)
	}
	defer output.Body.Close()

	return io.ReadAll(output.Body)
}

// Delete removes the object and reports whether it existed.
func (s *S3) Delete(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return false, fmt.Errorf("failed to delete object: %w", err)
	}
	return true, nil
}

func isS3NotFound(err error) bool {
	var responseError *awshttp.ResponseError
	return errors.As(err, &responseError) && responseError.HTTPStatusCode() == http.StatusNotFound
}
