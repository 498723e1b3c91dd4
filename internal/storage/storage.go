// Package storage abstracts the object stores that hold snapshots and
// migration source files.
//
// Providers stage writes so a half-written object is never visible under
// its final key: the local provider writes a temporary file and renames it,
// remote providers stage to a local temporary file and upload it on Commit.
package storage

import (
	"context"
	"io"
	"strings"
	"time"
)

// ProviderType names a storage backend
type ProviderType string

const (
	ProviderLocal ProviderType = "local"
	ProviderS3    ProviderType = "s3"
	ProviderGCS   ProviderType = "gcs"
	ProviderAzure ProviderType = "azure"
	ProviderMinIO ProviderType = "minio"
)

// ObjectInfo describes a stored object
type ObjectInfo struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// Upload is a pending object. Nothing is visible under the key until Commit succeeds.
type Upload interface {
	io.Writer
	Commit(ctx context.Context) error
	Abort() error
}

// Store is implemented by every storage provider
type Store interface {
	// Create stages a new object under key
	Create(ctx context.Context, key string) (Upload, error)
	// Open streams the object stored under key
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// List returns the objects whose key starts with prefix
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	// Location renders key as a provider URL for display
	Location(key string) string
	Close() error
}

// CleanKey normalizes a key to forward slashes without a leading slash
func CleanKey(key string) string {
	key = strings.ReplaceAll(key, "\\", "/")
	return strings.TrimLeft(key, "/")
}

// joinPrefix prepends a provider-level prefix to key
func joinPrefix(prefix, key string) string {
	key = CleanKey(key)
	if prefix == "" {
		return key
	}
	return strings.TrimSuffix(prefix, "/") + "/" + key
}

// trimPrefix strips a provider-level prefix from a full object key
func trimPrefix(prefix, full string) string {
	if prefix == "" {
		return full
	}
	return strings.TrimPrefix(full, strings.TrimSuffix(prefix, "/")+"/")
}
