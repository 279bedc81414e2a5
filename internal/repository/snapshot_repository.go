package repository

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// SnapshotRepository stores evidence frames for face-related violations.
type SnapshotRepository interface {
	Put(ctx context.Context, key string, jpeg []byte) error
}

type MinIOSnapshotRepository struct {
	client *minio.Client
	bucket string
	region string
	logger zerolog.Logger

	ensureMu      sync.Mutex
	bucketEnsured bool
}

func NewMinIOSnapshotRepository(endpoint, accessKey, secretKey, bucket, region string, useSSL bool, connectTimeout time.Duration, logger zerolog.Logger) (*MinIOSnapshotRepository, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	repo := &MinIOSnapshotRepository{
		client: client,
		bucket: bucket,
		region: region,
		logger: logger,
	}

	if connectTimeout <= 0 {
		connectTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	// Snapshots are optional evidence; a missing bucket at startup is retried on demand.
	if err := repo.ensureBucket(ctx); err != nil {
		logger.Error().Err(err).
			Str("endpoint", endpoint).
			Str("bucket", bucket).
			Msg("MinIO not ready during startup; snapshots will retry on demand")
	}

	return repo, nil
}

func (r *MinIOSnapshotRepository) ensureBucket(ctx context.Context) error {
	r.ensureMu.Lock()
	defer r.ensureMu.Unlock()
	if r.bucketEnsured {
		return nil
	}

	backoff := 500 * time.Millisecond
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("minio not ready: %w", err)
		}

		exists, err := r.client.BucketExists(ctx, r.bucket)
		if err != nil {
			time.Sleep(backoff)
			continue
		}

		if !exists {
			if err := r.client.MakeBucket(ctx, r.bucket, minio.MakeBucketOptions{Region: r.region}); err != nil {
				time.Sleep(backoff)
				continue
			}
			r.logger.Info().Str("bucket", r.bucket).Msg("Created snapshot bucket")
		}

		r.bucketEnsured = true
		return nil
	}
}

func (r *MinIOSnapshotRepository) Put(ctx context.Context, key string, jpeg []byte) error {
	if err := r.ensureBucket(ctx); err != nil {
		return err
	}

	info, err := r.client.PutObject(ctx, r.bucket, key, bytes.NewReader(jpeg), int64(len(jpeg)), minio.PutObjectOptions{
		ContentType: "image/jpeg",
	})
	if err != nil {
		return fmt.Errorf("failed to upload snapshot: %w", err)
	}

	r.logger.Debug().
		Str("bucket", r.bucket).
		Str("key", key).
		Str("etag", info.ETag).
		Int("size", len(jpeg)).
		Msg("Snapshot uploaded")

	return nil
}

func SnapshotKey(candidateID, interviewID, eventID string) string {
	return fmt.Sprintf("snapshots/%s/%s/%s.jpg", candidateID, interviewID, eventID)
}
