package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Kapo179/docuseal3/config"
	"github.com/Kapo179/docuseal3/model"
)

const (
	kvObjectPrefix    = "kv/"
	auditObjectPrefix = "audit-trails/"
)

// MinioService stores persisted state as JSON objects and archives signing
// audit trails.
type MinioService struct {
	client *minio.Client
	bucket string
	config *config.MinioConfig
}

func NewMinioService(cfg *config.MinioConfig) (*MinioService, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseSSL,
		Region:       "us-east-1",
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioService{
		client: client,
		bucket: cfg.Bucket,
		config: cfg,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (s *MinioService) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// Get implements KV. Object expiry is left to bucket lifecycle rules, so ttl
// is not enforced here.
func (s *MinioService) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, kvObjectPrefix+key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.mapError(err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.mapError(err)
	}
	return data, nil
}

func (s *MinioService) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	return s.UploadFile(ctx, kvObjectPrefix+key, bytes.NewReader(value), int64(len(value)), "application/json")
}

func (s *MinioService) Delete(ctx context.Context, key string) error {
	return s.DeleteFile(ctx, kvObjectPrefix+key)
}

// UploadFile uploads a file to MINIO
func (s *MinioService) UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload file: %w", err)
	}

	return nil
}

// ArchiveAuditTrail stores a downloaded audit log and returns a presigned
// link to it.
func (s *MinioService) ArchiveAuditTrail(ctx context.Context, documentID string, pdf []byte) (string, error) {
	objectName := AuditTrailObjectName(documentID)
	if err := s.UploadFile(ctx, objectName, bytes.NewReader(pdf), int64(len(pdf)), "application/pdf"); err != nil {
		return "", err
	}
	return s.GetPresignedURL(ctx, objectName)
}

// GetPresignedURL generates a presigned URL for the object with expiration
func (s *MinioService) GetPresignedURL(ctx context.Context, objectName string) (string, error) {
	expiry := time.Duration(s.config.ExpireDays) * 24 * time.Hour
	url, err := s.client.PresignedGetObject(ctx, s.bucket, objectName, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return url.String(), nil
}

// DeleteFile deletes a file from MINIO
func (s *MinioService) DeleteFile(ctx context.Context, objectName string) error {
	err := s.client.RemoveObject(ctx, s.bucket, objectName, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}

func (s *MinioService) mapError(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchObject":
		return model.ErrNotFound
	}
	return fmt.Errorf("minio: %w", err)
}

// AuditTrailObjectName is the archive location of a document's audit log.
func AuditTrailObjectName(documentID string) string {
	return auditObjectPrefix + documentID + ".pdf"
}
