package sink

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/renhwa-labs/chatprep/internal/config"
)

const defaultS3Endpoint = "s3.amazonaws.com"

// S3 uploads run artifacts to an object-storage bucket under
// <run_id>/data/<artifact>, attaching the run metadata to each object.
type S3 struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

func NewS3(cfg config.Output, logger *slog.Logger) (*S3, error) {
	endpoint := cfg.S3Endpoint
	if endpoint == "" {
		endpoint = defaultS3Endpoint
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: true,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}

	return &S3{client: client, bucket: cfg.S3Bucket, logger: logger}, nil
}

func (s *S3) Name() string { return "s3" }

func (s *S3) Export(ctx context.Context, run *Run) error {
	artifacts := []struct {
		name        string
		contentType string
		render      func(*Run) ([]byte, error)
	}{
		{"raw.json", "application/json", renderRaw},
		{"processed.json", "application/json", renderProcessed},
		{"train.jsonl", "application/jsonl", renderTrain},
	}

	for _, a := range artifacts {
		data, err := a.render(run)
		if err != nil {
			return fmt.Errorf("s3 sink: render %s: %w", a.name, err)
		}
		key := fmt.Sprintf("%s/data/%s", run.ID, a.name)

		_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
			ContentType:  a.contentType,
			UserMetadata: run.Metadata,
		})
		if err != nil {
			return fmt.Errorf("s3 sink: put s3://%s/%s: %w", s.bucket, key, err)
		}
		s.logger.Info("artifact uploaded", "sink", "s3", "bucket", s.bucket, "key", key, "bytes", len(data))
	}
	return nil
}
