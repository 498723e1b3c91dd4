package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"hiring-data-sync/internal/errors"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSStore keeps objects in a Google Cloud Storage bucket
type GCSStore struct {
	client *gcs.Client
	bucket string
	prefix string
}

// NewGCSStore creates a GCSStore using a credentials file or the default credentials
func NewGCSStore(ctx context.Context, config *GCSConfig) (*GCSStore, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.NewConfigurationError("invalid GCS storage configuration", err)
	}

	var opts []option.ClientOption
	if config.CredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsPath))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.NewStorageError("failed to create GCS client", err)
	}

	return &GCSStore{client: client, bucket: config.Bucket, prefix: config.Prefix}, nil
}

// Create stages the object locally and streams it to a GCS writer on Commit.
// GCS only makes the object visible once the writer is closed.
func (s *GCSStore) Create(ctx context.Context, key string) (Upload, error) {
	name := joinPrefix(s.prefix, key)
	return newStagedUpload(func(ctx context.Context, f *os.File, size int64) error {
		w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
		w.ContentType = "application/octet-stream"

		if _, err := io.Copy(w, f); err != nil {
			w.Close()
			return errors.NewStorageError(fmt.Sprintf("failed to write %s to GCS", name), err)
		}
		if err := w.Close(); err != nil {
			return errors.NewStorageError(fmt.Sprintf("failed to finalize %s in GCS", name), err)
		}
		return nil
	})
}

// Open streams the object
func (s *GCSStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	name := joinPrefix(s.prefix, key)
	r, err := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
	if err != nil {
		return nil, errors.NewStorageReadError(fmt.Sprintf("failed to read %s from GCS", name), err)
	}
	return r, nil
}

// List iterates the bucket under prefix
func (s *GCSStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo

	it := s.client.Bucket(s.bucket).Objects(ctx, &gcs.Query{Prefix: joinPrefix(s.prefix, prefix)})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.NewStorageReadError("failed to list objects in GCS", err)
		}
		objects = append(objects, ObjectInfo{
			Key:     trimPrefix(s.prefix, attrs.Name),
			Size:    attrs.Size,
			ModTime: attrs.Updated,
		})
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// Delete removes the object
func (s *GCSStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Bucket(s.bucket).Object(joinPrefix(s.prefix, key)).Delete(ctx); err != nil {
		return errors.NewStorageError(fmt.Sprintf("failed to delete %s from GCS", key), err)
	}
	return nil
}

// Location returns the gs:// URL of key
func (s *GCSStore) Location(key string) string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, joinPrefix(s.prefix, key))
}

// Close releases the GCS client
func (s *GCSStore) Close() error {
	return s.client.Close()
}
