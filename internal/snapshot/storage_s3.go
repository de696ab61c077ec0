package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// S3StorageProvider implements StorageProvider for Amazon S3 storage
type S3StorageProvider struct {
	client s3iface.S3API
	bucket string
	prefix string
}

// NewS3StorageProvider creates a new S3StorageProvider instance
func NewS3StorageProvider(config *S3Config) (*S3StorageProvider, error) {
	if config == nil {
		return nil, NewConfigurationError("S3 storage configuration is required", nil)
	}

	if err := config.Validate(); err != nil {
		return nil, NewConfigurationError("invalid S3 storage configuration", err)
	}

	awsConfig := &aws.Config{
		Region: aws.String(config.Region),
	}
	if config.AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(config.AccessKey, config.SecretKey, "")
	}
	if config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, NewStoreIOError("failed to create AWS session", err)
	}

	return newS3StorageProvider(s3.New(sess), config.Bucket, config.Prefix), nil
}

func newS3StorageProvider(client s3iface.S3API, bucket, prefix string) *S3StorageProvider {
	if prefix == "" {
		prefix = DefaultObjectPrefix
	}
	return &S3StorageProvider{
		client: client,
		bucket: bucket,
		prefix: normalizePrefix(prefix),
	}
}

// Put uploads a snapshot object
func (s3p *S3StorageProvider) Put(ctx context.Context, name string, data []byte) error {
	key, err := s3p.objectKey(name)
	if err != nil {
		return err
	}

	_, err = s3p.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s3p.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentTypeFor(name)),
	})
	if err != nil {
		return NewStoreIOError(fmt.Sprintf("failed to upload snapshot %s to S3", name), err)
	}

	return nil
}

// Get downloads a snapshot object
func (s3p *S3StorageProvider) Get(ctx context.Context, name string) ([]byte, error) {
	key, err := s3p.objectKey(name)
	if err != nil {
		return nil, err
	}

	result, err := s3p.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s3p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, NewNotFoundError(fmt.Sprintf("snapshot %s not found", name), err)
		}
		return nil, NewStoreIOError(fmt.Sprintf("failed to download snapshot %s from S3", name), err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, NewStoreIOError("failed to read snapshot data", err)
	}

	return data, nil
}

// Delete removes a snapshot object. S3 deletes are idempotent, so existence is checked first.
func (s3p *S3StorageProvider) Delete(ctx context.Context, name string) error {
	key, err := s3p.objectKey(name)
	if err != nil {
		return err
	}

	_, err = s3p.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s3p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return NewNotFoundError(fmt.Sprintf("snapshot %s not found", name), err)
		}
		return NewStoreIOError(fmt.Sprintf("failed to stat snapshot %s in S3", name), err)
	}

	_, err = s3p.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s3p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return NewStoreIOError(fmt.Sprintf("failed to delete snapshot %s from S3", name), err)
	}

	return nil
}

// List returns the objects directly under the prefix
func (s3p *S3StorageProvider) List(ctx context.Context) ([]ObjectInfo, error) {
	var objects []ObjectInfo

	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(s3p.bucket),
		Prefix:    aws.String(s3p.prefix),
		Delimiter: aws.String("/"),
	}

	err := s3p.client.ListObjectsV2PagesWithContext(ctx, input,
		func(page *s3.ListObjectsV2Output, lastPage bool) bool {
			for _, obj := range page.Contents {
				name := strings.TrimPrefix(aws.StringValue(obj.Key), s3p.prefix)
				if name == "" || strings.Contains(name, "/") {
					continue
				}
				objects = append(objects, ObjectInfo{
					Name:       name,
					SizeBytes:  aws.Int64Value(obj.Size),
					ModifiedAt: aws.TimeValue(obj.LastModified).UTC(),
				})
			}
			return true
		})
	if err != nil {
		return nil, NewStoreIOError("failed to list snapshots in S3", err)
	}

	return objects, nil
}

// Describe returns a short human readable location
func (s3p *S3StorageProvider) Describe() string {
	return fmt.Sprintf("s3://%s/%s", s3p.bucket, s3p.prefix)
}

// HealthCheck verifies that the bucket is reachable and listable
func (s3p *S3StorageProvider) HealthCheck(ctx context.Context) error {
	_, err := s3p.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s3p.bucket),
	})
	if err != nil {
		return NewStoreIOError("S3 storage provider health check failed: bucket not accessible", err)
	}

	_, err = s3p.client.ListObjectsV2WithContext(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s3p.bucket),
		Prefix:  aws.String(s3p.prefix),
		MaxKeys: aws.Int64(1),
	})
	if err != nil {
		return NewStoreIOError("S3 storage provider health check failed: cannot list objects", err)
	}

	return nil
}

func (s3p *S3StorageProvider) objectKey(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return s3p.prefix + name, nil
}

func isS3NotFound(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	switch aerr.Code() {
	case s3.ErrCodeNoSuchKey, "NotFound":
		return true
	}
	return false
}

// normalizePrefix guarantees a non-root prefix ends with a slash.
func normalizePrefix(prefix string) string {
	prefix = strings.TrimLeft(prefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}

func contentTypeFor(name string) string {
	if strings.HasSuffix(name, DocumentExtension) {
		return "application/json"
	}
	return "application/octet-stream"
}
