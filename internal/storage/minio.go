package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"

	"hiring-data-sync/internal/errors"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOStore keeps objects in a MinIO or other S3-compatible bucket.
// It is safe for concurrent use.
type MinIOStore struct {
	client   *miniogo.Client
	endpoint string
	bucket   string
	prefix   string
}

// NewMinIOStore creates a MinIOStore
func NewMinIOStore(config *MinIOConfig) (*MinIOStore, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.NewConfigurationError("invalid MinIO storage configuration", err)
	}

	client, err := miniogo.New(config.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
		Region: config.Region,
	})
	if err != nil {
		return nil, errors.NewRecoverableError(errors.ErrorTypeConnection, "failed to create minio client", err)
	}

	return &MinIOStore{
		client:   client,
		endpoint: config.Endpoint,
		bucket:   config.Bucket,
		prefix:   config.Prefix,
	}, nil
}

// Create stages the object locally and uploads it with PutObject on Commit
func (s *MinIOStore) Create(ctx context.Context, key string) (Upload, error) {
	name := joinPrefix(s.prefix, key)
	return newStagedUpload(func(ctx context.Context, f *os.File, size int64) error {
		_, err := s.client.PutObject(ctx, s.bucket, name, f, size, miniogo.PutObjectOptions{
			ContentType: "application/octet-stream",
		})
		if err != nil {
			return mapMinIOError(err, fmt.Sprintf("failed to upload %s", name))
		}
		return nil
	})
}

// Open streams the object
func (s *MinIOStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	name := joinPrefix(s.prefix, key)
	obj, err := s.client.GetObject(ctx, s.bucket, name, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, mapMinIOError(err, fmt.Sprintf("failed to get %s", name))
	}
	// GetObject is lazy; Stat surfaces a missing key before the caller starts reading
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, mapMinIOError(err, fmt.Sprintf("failed to stat %s", name))
	}
	return obj, nil
}

// List returns every object under prefix, recursively
func (s *MinIOStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo

	opts := miniogo.ListObjectsOptions{Prefix: joinPrefix(s.prefix, prefix), Recursive: true}
	for obj := range s.client.ListObjects(ctx, s.bucket, opts) {
		if obj.Err != nil {
			return nil, mapMinIOError(obj.Err, "failed to list objects")
		}
		objects = append(objects, ObjectInfo{
			Key:     trimPrefix(s.prefix, obj.Key),
			Size:    obj.Size,
			ModTime: obj.LastModified,
		})
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// Delete removes the object
func (s *MinIOStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, joinPrefix(s.prefix, key), miniogo.RemoveObjectOptions{}); err != nil {
		return mapMinIOError(err, fmt.Sprintf("failed to delete %s", key))
	}
	return nil
}

// Location returns the minio:// URL of key
func (s *MinIOStore) Location(key string) string {
	return fmt.Sprintf("minio://%s/%s/%s", s.endpoint, s.bucket, joinPrefix(s.prefix, key))
}

// Close is a no-op; the SDK client holds no persistent connections
func (s *MinIOStore) Close() error {
	return nil
}

// mapMinIOError translates S3-protocol failures into the error taxonomy.
// Throttling and timeouts are recoverable so source fetches can retry them.
func mapMinIOError(err error, msg string) *errors.AppError {
	resp := miniogo.ToErrorResponse(err)
	switch {
	case resp.StatusCode == http.StatusNotFound,
		resp.Code == "NoSuchBucket", resp.Code == "NoSuchKey":
		return errors.NewStorageReadError(msg, err).WithContext("code", resp.Code)
	case resp.StatusCode == http.StatusForbidden, resp.StatusCode == http.StatusUnauthorized,
		resp.Code == "AccessDenied", resp.Code == "InvalidAccessKeyId", resp.Code == "SignatureDoesNotMatch":
		return errors.NewAppError(errors.ErrorTypePermission, msg, err).WithContext("code", resp.Code)
	case resp.Code == "RequestTimeout", resp.Code == "SlowDown",
		resp.StatusCode == http.StatusServiceUnavailable:
		return errors.NewRecoverableError(errors.ErrorTypeTimeout, msg, err).WithContext("code", resp.Code)
	}
	return errors.WrapError(err, msg)
}
