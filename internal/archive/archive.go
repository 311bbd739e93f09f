package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	"eventhub/internal/domain"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinIO stores each fetched batch as one JSON object before reconciliation.
type MinIO struct {
	client *minio.Client
	bucket string
}

// New connects and makes sure the bucket exists.
func New(ctx context.Context, cfg Config, log zerolog.Logger) (*MinIO, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		log.Warn().Err(err).Str("bucket", cfg.Bucket).Msg("bucket check failed, continuing")
	} else if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
		log.Info().Str("bucket", cfg.Bucket).Msg("archive bucket created")
	}
	return &MinIO{client: client, bucket: cfg.Bucket}, nil
}

// Batch is the archived object body.
type Batch struct {
	Source    string                   `json:"source"`
	FetchedAt time.Time                `json:"fetched_at"`
	Events    []domain.NormalizedEvent `json:"events"`
}

// ObjectKey returns raw/<source>/<timestamp>.json.
func ObjectKey(source string, at time.Time) string {
	slug := strings.ToLower(strings.Join(strings.Fields(source), "-"))
	return fmt.Sprintf("raw/%s/%s.json", slug, at.UTC().Format("20060102T150405.000Z"))
}

func Encode(source string, at time.Time, events []domain.NormalizedEvent) ([]byte, error) {
	if events == nil {
		events = []domain.NormalizedEvent{}
	}
	return json.Marshal(Batch{Source: source, FetchedAt: at.UTC(), Events: events})
}

func (m *MinIO) Put(ctx context.Context, source string, at time.Time, events []domain.NormalizedEvent) (string, error) {
	data, err := Encode(source, at, events)
	if err != nil {
		return "", err
	}
	key := ObjectKey(source, at)
	_, err = m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return key, nil
}
