package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"sort"

	"hiring-data-sync/internal/errors"

	"github.com/Azure/azure-storage-blob-go/azblob"
)

// AzureStore keeps objects as block blobs in an Azure container
type AzureStore struct {
	container azblob.ContainerURL
	account   string
	name      string
	prefix    string
}

// NewAzureStore creates an AzureStore authenticated with a shared key
func NewAzureStore(config *AzureConfig) (*AzureStore, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.NewConfigurationError("invalid Azure storage configuration", err)
	}

	credential, err := azblob.NewSharedKeyCredential(config.AccountName, config.AccountKey)
	if err != nil {
		return nil, errors.NewStorageError("failed to create Azure credentials", err)
	}

	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})

	serviceURL, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net", config.AccountName))
	if err != nil {
		return nil, errors.NewStorageError("failed to parse Azure service URL", err)
	}

	return &AzureStore{
		container: azblob.NewServiceURL(*serviceURL, pipeline).NewContainerURL(config.ContainerName),
		account:   config.AccountName,
		name:      config.ContainerName,
		prefix:    config.Prefix,
	}, nil
}

// Create stages the object locally and uploads it as a block blob on Commit.
// The blob becomes visible when its block list is committed.
func (s *AzureStore) Create(ctx context.Context, key string) (Upload, error) {
	blob := s.container.NewBlockBlobURL(joinPrefix(s.prefix, key))
	return newStagedUpload(func(ctx context.Context, f *os.File, size int64) error {
		_, err := azblob.UploadFileToBlockBlob(ctx, f, blob, azblob.UploadToBlockBlobOptions{
			BlockSize:   4 * 1024 * 1024,
			Parallelism: 16,
			BlobHTTPHeaders: azblob.BlobHTTPHeaders{
				ContentType: "application/octet-stream",
			},
		})
		if err != nil {
			return errors.NewStorageError(fmt.Sprintf("failed to upload %s to Azure", key), err)
		}
		return nil
	})
}

// Open streams the blob with retrying reads
func (s *AzureStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	blob := s.container.NewBlockBlobURL(joinPrefix(s.prefix, key))
	resp, err := blob.Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		return nil, errors.NewStorageReadError(fmt.Sprintf("failed to download %s from Azure", key), err)
	}
	return resp.Body(azblob.RetryReaderOptions{MaxRetryRequests: 20}), nil
}

// List walks the flat blob listing under prefix
func (s *AzureStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo

	for marker := (azblob.Marker{}); marker.NotDone(); {
		resp, err := s.container.ListBlobsFlatSegment(ctx, marker, azblob.ListBlobsSegmentOptions{
			Prefix: joinPrefix(s.prefix, prefix),
		})
		if err != nil {
			return nil, errors.NewStorageReadError("failed to list blobs in Azure", err)
		}

		for _, item := range resp.Segment.BlobItems {
			info := ObjectInfo{
				Key:     trimPrefix(s.prefix, item.Name),
				ModTime: item.Properties.LastModified,
			}
			if item.Properties.ContentLength != nil {
				info.Size = *item.Properties.ContentLength
			}
			objects = append(objects, info)
		}

		marker = resp.NextMarker
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// Delete removes the blob
func (s *AzureStore) Delete(ctx context.Context, key string) error {
	blob := s.container.NewBlockBlobURL(joinPrefix(s.prefix, key))
	if _, err := blob.Delete(ctx, azblob.DeleteSnapshotsOptionInclude, azblob.BlobAccessConditions{}); err != nil {
		return errors.NewStorageError(fmt.Sprintf("failed to delete %s from Azure", key), err)
	}
	return nil
}

// Location returns the azure:// URL of key
func (s *AzureStore) Location(key string) string {
	return fmt.Sprintf("azure://%s/%s/%s", s.account, s.name, joinPrefix(s.prefix, key))
}

// Close is a no-op for Azure
func (s *AzureStore) Close() error {
	return nil
}
