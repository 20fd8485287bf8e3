package s3storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dharsanguruparan/docvault/internal/config"
	"github.com/dharsanguruparan/docvault/internal/queue"
)

// ErrObjectNotFound is returned when the requested key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// Storage wraps MinIO/S3 interactions for uploaded documents.
type Storage struct {
	client *minio.Client
	bucket string
	region string
}

// New creates a MinIO client from the S3 section of the config.
func New(cfg config.S3Config) (*Storage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Storage{client: client, bucket: cfg.Bucket, region: cfg.Region}, nil
}

// Bucket returns the bucket name.
func (s *Storage) Bucket() string {
	return s.bucket
}

// EnsureBucket makes sure the upload bucket exists before use.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// ObjectKey builds the key an upload is stored under: "<uuid>/<name>". The
// name is made safe for the file queue.
func ObjectKey(filename string) string {
	return uuid.NewString() + "/" + queue.SafeFileName(path.Base(filename))
}

// Upload stores an uploaded document under objectKey.
func (s *Storage) Upload(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	_, err := s.client.PutObject(ctx, s.bucket, objectKey, reader, size, opts)
	if err != nil {
		return fmt.Errorf("upload object: %w", err)
	}
	return nil
}

// DownloadToFile streams objectKey into a local file at dest.
func (s *Storage) DownloadToFile(ctx context.Context, objectKey, dest string) error {
	if err := s.client.FGetObject(ctx, s.bucket, objectKey, dest, minio.GetObjectOptions{}); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s", ErrObjectNotFound, objectKey)
		}
		return fmt.Errorf("get object %s: %w", objectKey, err)
	}
	return nil
}

// Open returns a reader for objectKey. The caller closes it.
func (s *Storage) Open(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", objectKey, err)
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, objectKey)
		}
		return nil, fmt.Errorf("stat object %s: %w", objectKey, err)
	}
	return obj, nil
}

// Delete removes objectKey.
func (s *Storage) Delete(ctx context.Context, objectKey string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, objectKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", objectKey, err)
	}
	return nil
}

// PresignURL returns a signed GET URL for the stored document.
func (s *Storage) PresignURL(ctx context.Context, objectKey string, ttl time.Duration, filename string) (string, error) {
	params := url.Values{}
	if filename != "" {
		params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectKey, ttl, params)
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return u.String(), nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == 404 {
		return true
	}
	return errors.Is(err, os.ErrNotExist)
}
