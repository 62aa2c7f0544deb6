package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/LancemDev/LostLink/internal/model"
)

// MinioStore wraps MinIO/S3 interactions for item photos.
type MinioStore struct {
	client *minio.Client
	bucket string
	region string
}

// MinioOptions carries the connection settings for NewMinioStore.
type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
	Bucket    string
}

// NewMinioStore creates a MinIO-backed Store.
func NewMinioStore(opts MinioOptions) (*MinioStore, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &MinioStore{client: client, bucket: opts.Bucket, region: opts.Region}, nil
}

// EnsureBucket makes sure the photo bucket exists before use.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
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

// Upload puts the photo into the bucket and returns a URL reference.
func (s *MinioStore) Upload(ctx context.Context, key string, data []byte, contentType string) (model.ImageRef, error) {
	opts := minio.PutObjectOptions{ContentType: contentType}
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return model.ImageRef{}, fmt.Errorf("upload photo: %w", err)
	}
	u := s.client.EndpointURL()
	return model.ImageRef{URL: fmt.Sprintf("%s/%s/%s", u.String(), s.bucket, key), Key: key}, nil
}

// PresignGet returns a signed GET URL for a stored photo.
func (s *MinioStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign photo: %w", err)
	}
	return u.String(), nil
}
