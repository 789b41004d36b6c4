// Package filestore archives uploaded source files to S3-compatible
// object storage so a committed import can always be traced back to the
// exact file it came from. Archiving is best-effort: when storage is not
// configured the archiver is disabled and every call is a no-op.
package filestore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/alphaops/contactsync/internal/config"
)

// Archiver stores uploaded files in an object-storage bucket.
// A nil client means archiving is disabled.
type Archiver struct {
	client *minio.Client
	bucket string
}

// Disabled returns an archiver whose operations all no-op.
func Disabled() *Archiver {
	return &Archiver{}
}

// New connects to the configured object store and ensures the bucket
// exists. When the config is incomplete, it returns a disabled archiver
// instead of an error, matching a deployment without storage.
func New(cfg config.FileStoreConfig) (*Archiver, error) {
	if !cfg.Enabled() {
		slog.Warn("file store not configured, uploaded files will not be archived")
		return Disabled(), nil
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init object store client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	slog.Info("file store initialized", "endpoint", cfg.Endpoint, "bucket", cfg.Bucket)
	return &Archiver{client: client, bucket: cfg.Bucket}, nil
}

// Enabled reports whether files are actually being archived.
func (a *Archiver) Enabled() bool {
	return a.client != nil
}

// Archive uploads one source file under a timestamped key and returns
// the object key, or "" when archiving is disabled.
func (a *Archiver) Archive(ctx context.Context, filename string, r io.Reader, size int64) (string, error) {
	if a.client == nil {
		return "", nil
	}

	key := fmt.Sprintf("uploads/%s-%s", time.Now().UTC().Format("20060102T150405"), filename)
	_, err := a.client.PutObject(ctx, a.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: "text/csv",
	})
	if err != nil {
		return "", fmt.Errorf("archive upload: %w", err)
	}
	return key, nil
}

// PresignGet generates a temporary download URL for an archived file.
func (a *Archiver) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if a.client == nil {
		return "", fmt.Errorf("file store is disabled")
	}
	url, err := a.client.PresignedGetObject(ctx, a.bucket, key, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return url.String(), nil
}
