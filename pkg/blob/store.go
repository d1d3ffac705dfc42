// Package blob implements the Blob Store component: opaque content-addressed
// file storage over MinIO, adapted from a pkg/storage/minio.go client with
// the same client init and presigned-URL pattern, generalized from two
// fixed chunk/merge path conventions into a single flat key surface.
package blob

import (
	"context"
	"io"
	"strings"
	"time"

	"doccatalog-go/internal/apperr"
	"doccatalog-go/internal/config"
	"doccatalog-go/pkg/log"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Store is the Blob Store component's public surface.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	PresignedGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type minioStore struct {
	client *minio.Client
	bucket string
}

// NewStore initializes a MinIO-backed Store and ensures the bucket exists.
func NewStore(cfg config.MinIOConfig) (Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to initialize blob store client", err)
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to check blob bucket", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "failed to create blob bucket", err)
		}
		log.Infof("[Blob] bucket '%s' created", cfg.BucketName)
	}

	return &minioStore{client: client, bucket: cfg.BucketName}, nil
}

// NewKey generates an opaque, content-addressed-looking key for a newly
// uploaded document. Callers must never interpret the result as a
// filesystem path; traversal sequences in caller-supplied filenames are
// stripped before being folded into the key for readability only.
func NewKey(originalFilename string) string {
	safe := sanitizeForKey(originalFilename)
	return "documents/" + uuid.NewString() + "/" + safe
}

func sanitizeForKey(name string) string {
	name = strings.ReplaceAll(name, "..", "")
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "\x00", "")
	if name == "" {
		return "file"
	}
	return name
}

// ContainsTraversal reports whether key looks like a path-traversal attempt;
// keys containing traversal sequences are rejected.
func ContainsTraversal(key string) bool {
	return strings.Contains(key, "..") || strings.Contains(key, "\x00")
}

func (s *minioStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if ContainsTraversal(key) {
		return apperr.New(apperr.KindValidation, "blob key contains a traversal sequence")
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return apperr.Wrap(apperr.KindStorage, "failed to write blob", err)
	}
	return nil
}

func (s *minioStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if ContainsTraversal(key) {
		return nil, apperr.New(apperr.KindValidation, "blob key contains a traversal sequence")
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindBlobMissing, "failed to open blob", err)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, apperr.Wrap(apperr.KindBlobMissing, "blob does not exist", err)
	}
	return obj, nil
}

func (s *minioStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (s *minioStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return apperr.Wrap(apperr.KindStorage, "failed to delete blob", err)
	}
	return nil
}

func (s *minioStore) PresignedGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, ttl, nil)
	if err != nil {
		return "", apperr.Wrap(apperr.KindStorage, "failed to generate presigned url", err)
	}
	return u.String(), nil
}
