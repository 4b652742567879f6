// Package storage archives permit source documents in an S3-compatible
// object store so reviewers can always pull up the scan a permit was
// extracted from.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/facilityhub/permit-tracker/internal/common"
)

// Archive stores and retrieves permit documents by object key.
type Archive interface {
	Save(ctx context.Context, facilityID uuid.UUID, filename string, r io.Reader, size int64, contentType string) (string, error)
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}

type minioArchive struct {
	client *minio.Client
	bucket string
}

// NewMinioArchive creates an S3-backed archive, ensuring the bucket
// exists. It is safe for concurrent use.
func NewMinioArchive(cfg common.StorageConfig) (Archive, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("%w: storage endpoint is required", common.ErrConfiguration)
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("%w: storage credentials are required", common.ErrConfiguration)
	}

	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &minioArchive{client: cli, bucket: cfg.Bucket}, nil
}

// Save uploads a document under permits/{facility}/{timestamp}-{name}
// and returns the object key.
func (a *minioArchive) Save(ctx context.Context, facilityID uuid.UUID, filename string, r io.Reader, size int64, contentType string) (string, error) {
	key := objectKey(facilityID, filename)
	_, err := a.client.PutObject(ctx, a.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("archive document: %w", err)
	}
	return key, nil
}

func (a *minioArchive) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := a.client.PresignedGetObject(ctx, a.bucket, key, expiry, url.Values{})
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func objectKey(facilityID uuid.UUID, filename string) string {
	base := strings.ReplaceAll(path.Base(filename), " ", "_")
	return fmt.Sprintf("permits/%s/%d-%s", facilityID, time.Now().UTC().Unix(), base)
}
