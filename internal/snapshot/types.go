package snapshot

import (
	"os"
	"time"
)

// StorageConfig defines storage provider configuration
type StorageConfig struct {
	Provider StorageProviderType `yaml:"provider" mapstructure:"provider"`
	Local    *LocalConfig        `yaml:"local,omitempty" mapstructure:"local"`
	S3       *S3Config           `yaml:"s3,omitempty" mapstructure:"s3"`
	Azure    *AzureConfig        `yaml:"azure,omitempty" mapstructure:"azure"`
	GCS      *GCSConfig          `yaml:"gcs,omitempty" mapstructure:"gcs"`
}

// LocalConfig for local file system storage
type LocalConfig struct {
	BasePath    string      `yaml:"base_path" mapstructure:"base_path"`
	Permissions os.FileMode `yaml:"permissions" mapstructure:"permissions"`
}

// S3Config for Amazon S3 storage
type S3Config struct {
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Region    string `yaml:"region" mapstructure:"region"`
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	// Endpoint points the client at an S3 compatible service such as MinIO.
	Endpoint string `yaml:"endpoint,omitempty" mapstructure:"endpoint"`
}

// AzureConfig for Azure Blob Storage
type AzureConfig struct {
	AccountName   string `yaml:"account_name" mapstructure:"account_name"`
	AccountKey    string `yaml:"account_key" mapstructure:"account_key"`
	ContainerName string `yaml:"container_name" mapstructure:"container_name"`
	Prefix        string `yaml:"prefix" mapstructure:"prefix"`
}

// GCSConfig for Google Cloud Storage
type GCSConfig struct {
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	Prefix          string `yaml:"prefix" mapstructure:"prefix"`
	CredentialsPath string `yaml:"credentials_path" mapstructure:"credentials_path"`
	ProjectID       string `yaml:"project_id" mapstructure:"project_id"`
}

// StorageProviderType names a snapshot store backend
type StorageProviderType string

const (
	StorageProviderLocal StorageProviderType = "local"
	StorageProviderS3    StorageProviderType = "s3"
	StorageProviderAzure StorageProviderType = "azure"
	StorageProviderGCS   StorageProviderType = "gcs"
)

// DefaultObjectPrefix is the key prefix cloud providers store snapshots under.
const DefaultObjectPrefix = "snapshots/"

// SnapshotInfo describes one stored snapshot file
type SnapshotInfo struct {
	Name        string          `json:"name" yaml:"name"`
	Scope       Scope           `json:"tipo,omitempty" yaml:"tipo,omitempty"`
	CreatedAt   *time.Time      `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	SizeBytes   int64           `json:"size_bytes" yaml:"size_bytes"`
	ModifiedAt  time.Time       `json:"modified_at" yaml:"modified_at"`
	Compression CompressionType `json:"compression" yaml:"compression"`
}

// SaveResult is returned after a snapshot has been written
type SaveResult struct {
	Name    string            `json:"name" yaml:"name"`
	Summary map[string]int    `json:"summary" yaml:"summary"`
	Stats   *CompressionStats `json:"compression,omitempty" yaml:"compression,omitempty"`
}
