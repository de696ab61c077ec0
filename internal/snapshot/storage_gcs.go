package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSStorageProvider implements StorageProvider for Google Cloud Storage
type GCSStorageProvider struct {
	client     *storage.Client
	bucketName string
	prefix     string
}

// NewGCSStorageProvider creates a new GCSStorageProvider instance
func NewGCSStorageProvider(ctx context.Context, config *GCSConfig) (*GCSStorageProvider, error) {
	if config == nil {
		return nil, NewConfigurationError("GCS storage configuration is required", nil)
	}

	if err := config.Validate(); err != nil {
		return nil, NewConfigurationError("invalid GCS storage configuration", err)
	}

	var opts []option.ClientOption
	if config.CredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsPath))
	}

	// Without a credentials file the default chain is used (environment or metadata server)
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, NewStoreIOError("failed to create GCS client", err)
	}

	prefix := config.Prefix
	if prefix == "" {
		prefix = DefaultObjectPrefix
	}

	return &GCSStorageProvider{
		client:     client,
		bucketName: config.Bucket,
		prefix:     normalizePrefix(prefix),
	}, nil
}

// Put uploads a snapshot object
func (gcsp *GCSStorageProvider) Put(ctx context.Context, name string, data []byte) error {
	object, err := gcsp.object(name)
	if err != nil {
		return err
	}

	writer := object.NewWriter(ctx)
	writer.ContentType = contentTypeFor(name)

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return NewStoreIOError(fmt.Sprintf("failed to upload snapshot %s to GCS", name), err)
	}
	if err := writer.Close(); err != nil {
		return NewStoreIOError(fmt.Sprintf("failed to finalize snapshot %s in GCS", name), err)
	}

	return nil
}

// Get downloads a snapshot object
func (gcsp *GCSStorageProvider) Get(ctx context.Context, name string) ([]byte, error) {
	object, err := gcsp.object(name)
	if err != nil {
		return nil, err
	}

	reader, err := object.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, NewNotFoundError(fmt.Sprintf("snapshot %s not found", name), err)
		}
		return nil, NewStoreIOError(fmt.Sprintf("failed to download snapshot %s from GCS", name), err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, NewStoreIOError("failed to read snapshot data", err)
	}

	return data, nil
}

// Delete removes a snapshot object
func (gcsp *GCSStorageProvider) Delete(ctx context.Context, name string) error {
	object, err := gcsp.object(name)
	if err != nil {
		return err
	}

	if err := object.Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return NewNotFoundError(fmt.Sprintf("snapshot %s not found", name), err)
		}
		return NewStoreIOError(fmt.Sprintf("failed to delete snapshot %s from GCS", name), err)
	}

	return nil
}

// List returns the objects directly under the prefix
func (gcsp *GCSStorageProvider) List(ctx context.Context) ([]ObjectInfo, error) {
	var objects []ObjectInfo

	query := &storage.Query{
		Prefix:    gcsp.prefix,
		Delimiter: "/",
	}

	it := gcsp.client.Bucket(gcsp.bucketName).Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, NewStoreIOError("failed to list snapshots in GCS", err)
		}

		// Synthetic prefix entries have no object name
		name := strings.TrimPrefix(attrs.Name, gcsp.prefix)
		if attrs.Name == "" || name == "" || strings.Contains(name, "/") {
			continue
		}
		objects = append(objects, ObjectInfo{
			Name:       name,
			SizeBytes:  attrs.Size,
			ModifiedAt: attrs.Updated.UTC(),
		})
	}

	return objects, nil
}

// Describe returns a short human readable location
func (gcsp *GCSStorageProvider) Describe() string {
	return fmt.Sprintf("gs://%s/%s", gcsp.bucketName, gcsp.prefix)
}

// HealthCheck verifies that the bucket is reachable and listable
func (gcsp *GCSStorageProvider) HealthCheck(ctx context.Context) error {
	bucket := gcsp.client.Bucket(gcsp.bucketName)

	if _, err := bucket.Attrs(ctx); err != nil {
		return NewStoreIOError("GCS storage provider health check failed: bucket not accessible", err)
	}

	it := bucket.Objects(ctx, &storage.Query{Prefix: gcsp.prefix})
	if _, err := it.Next(); err != nil && err != iterator.Done {
		return NewStoreIOError("GCS storage provider health check failed: cannot list objects", err)
	}

	return nil
}

// Close releases the underlying client
func (gcsp *GCSStorageProvider) Close() error {
	return gcsp.client.Close()
}

func (gcsp *GCSStorageProvider) object(name string) (*storage.ObjectHandle, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	return gcsp.client.Bucket(gcsp.bucketName).Object(gcsp.prefix + name), nil
}
