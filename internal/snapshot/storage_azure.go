package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/Azure/azure-storage-blob-go/azblob"
)

// AzureStorageProvider implements StorageProvider for Azure Blob Storage
type AzureStorageProvider struct {
	containerURL  azblob.ContainerURL
	containerName string
	prefix        string
}

// NewAzureStorageProvider creates a new AzureStorageProvider instance
func NewAzureStorageProvider(config *AzureConfig) (*AzureStorageProvider, error) {
	if config == nil {
		return nil, NewConfigurationError("Azure storage configuration is required", nil)
	}

	if err := config.Validate(); err != nil {
		return nil, NewConfigurationError("invalid Azure storage configuration", err)
	}

	credential, err := azblob.NewSharedKeyCredential(config.AccountName, config.AccountKey)
	if err != nil {
		return nil, NewConfigurationError("failed to create Azure credentials", err)
	}

	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})

	serviceURL, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net", config.AccountName))
	if err != nil {
		return nil, NewConfigurationError("failed to parse Azure service URL", err)
	}

	prefix := config.Prefix
	if prefix == "" {
		prefix = DefaultObjectPrefix
	}

	return &AzureStorageProvider{
		containerURL:  azblob.NewServiceURL(*serviceURL, pipeline).NewContainerURL(config.ContainerName),
		containerName: config.ContainerName,
		prefix:        normalizePrefix(prefix),
	}, nil
}

// Put uploads a snapshot blob
func (azp *AzureStorageProvider) Put(ctx context.Context, name string, data []byte) error {
	blobURL, err := azp.blobURL(name)
	if err != nil {
		return err
	}

	_, err = azblob.UploadBufferToBlockBlob(ctx, data, blobURL, azblob.UploadToBlockBlobOptions{
		BlockSize:   4 * 1024 * 1024,
		Parallelism: 16,
		BlobHTTPHeaders: azblob.BlobHTTPHeaders{
			ContentType: contentTypeFor(name),
		},
	})
	if err != nil {
		return NewStoreIOError(fmt.Sprintf("failed to upload snapshot %s to Azure", name), err)
	}

	return nil
}

// Get downloads a snapshot blob
func (azp *AzureStorageProvider) Get(ctx context.Context, name string) ([]byte, error) {
	blobURL, err := azp.blobURL(name)
	if err != nil {
		return nil, err
	}

	response, err := blobURL.Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		if isAzureNotFound(err) {
			return nil, NewNotFoundError(fmt.Sprintf("snapshot %s not found", name), err)
		}
		return nil, NewStoreIOError(fmt.Sprintf("failed to download snapshot %s from Azure", name), err)
	}

	body := response.Body(azblob.RetryReaderOptions{MaxRetryRequests: 20})
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, NewStoreIOError("failed to read snapshot data", err)
	}

	return data, nil
}

// Delete removes a snapshot blob
func (azp *AzureStorageProvider) Delete(ctx context.Context, name string) error {
	blobURL, err := azp.blobURL(name)
	if err != nil {
		return err
	}

	if _, err := blobURL.Delete(ctx, azblob.DeleteSnapshotsOptionInclude, azblob.BlobAccessConditions{}); err != nil {
		if isAzureNotFound(err) {
			return NewNotFoundError(fmt.Sprintf("snapshot %s not found", name), err)
		}
		return NewStoreIOError(fmt.Sprintf("failed to delete snapshot %s from Azure", name), err)
	}

	return nil
}

// List returns the blobs directly under the prefix
func (azp *AzureStorageProvider) List(ctx context.Context) ([]ObjectInfo, error) {
	var objects []ObjectInfo

	for marker := (azblob.Marker{}); marker.NotDone(); {
		response, err := azp.containerURL.ListBlobsFlatSegment(ctx, marker, azblob.ListBlobsSegmentOptions{
			Prefix: azp.prefix,
		})
		if err != nil {
			return nil, NewStoreIOError("failed to list snapshots in Azure", err)
		}

		for _, blob := range response.Segment.BlobItems {
			name := strings.TrimPrefix(blob.Name, azp.prefix)
			if name == "" || strings.Contains(name, "/") {
				continue
			}
			info := ObjectInfo{
				Name:       name,
				ModifiedAt: blob.Properties.LastModified.UTC(),
			}
			if blob.Properties.ContentLength != nil {
				info.SizeBytes = *blob.Properties.ContentLength
			}
			objects = append(objects, info)
		}

		marker = response.NextMarker
	}

	return objects, nil
}

// Describe returns a short human readable location
func (azp *AzureStorageProvider) Describe() string {
	return fmt.Sprintf("azure://%s/%s", azp.containerName, azp.prefix)
}

// HealthCheck verifies that the container is reachable and listable
func (azp *AzureStorageProvider) HealthCheck(ctx context.Context) error {
	if _, err := azp.containerURL.GetProperties(ctx, azblob.LeaseAccessConditions{}); err != nil {
		return NewStoreIOError("Azure storage provider health check failed: container not accessible", err)
	}

	_, err := azp.containerURL.ListBlobsFlatSegment(ctx, azblob.Marker{}, azblob.ListBlobsSegmentOptions{
		Prefix:     azp.prefix,
		MaxResults: 1,
	})
	if err != nil {
		return NewStoreIOError("Azure storage provider health check failed: cannot list blobs", err)
	}

	return nil
}

func (azp *AzureStorageProvider) blobURL(name string) (azblob.BlockBlobURL, error) {
	if err := ValidateName(name); err != nil {
		return azblob.BlockBlobURL{}, err
	}
	return azp.containerURL.NewBlockBlobURL(azp.prefix + name), nil
}

func isAzureNotFound(err error) bool {
	var storageErr azblob.StorageError
	if errors.As(err, &storageErr) {
		return storageErr.ServiceCode() == azblob.ServiceCodeBlobNotFound
	}
	return false
}
