package objectstore

import (
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/zzenonn/zgate/internal/domain"
	zerrors "github.com/zzenonn/zgate/internal/errors"
)

// RepositoryType represents the type of object storage
type RepositoryType string

const (
	S3Type  RepositoryType = "s3"
	GCSType RepositoryType = "gcs"
)

// defaultS3Region is used for records that carry an endpoint but no region,
// which is how R2-style stores are usually registered.
const defaultS3Region = "auto"

// BucketConfig holds configuration for a storage bucket
type BucketConfig struct {
	Name string
	Type RepositoryType
}

// ObjectRepositoryFactory creates object repository instances
type ObjectRepositoryFactory struct {
	awsConfig aws.Config
	gcsClient *storage.Client
}

// NewObjectRepositoryFactory creates a new factory
func NewObjectRepositoryFactory(awsConfig aws.Config, gcsClient *storage.Client) *ObjectRepositoryFactory {
	return &ObjectRepositoryFactory{
		awsConfig: awsConfig,
		gcsClient: gcsClient,
	}
}

// CreateRepository creates the gateway bucket repository from its configuration
func (f *ObjectRepositoryFactory) CreateRepository(config BucketConfig) (BucketRepository, error) {
	switch config.Type {
	case S3Type:
		client := s3.NewFromConfig(f.awsConfig)
		repo := NewS3ObjectRepository(client, config.Name)
		return &repo, nil
	case GCSType:
		if f.gcsClient == nil {
			return nil, fmt.Errorf("GCS client not configured")
		}
		repo := NewGCSObjectRepository(f.gcsClient, config.Name)
		return &repo, nil
	default:
		return nil, fmt.Errorf("unsupported repository type: %s", config.Type)
	}
}

// ForS3Location builds a repository for an S3 location using the credentials
// stored with the object instead of the ambient AWS credentials.
func (f *ObjectRepositoryFactory) ForS3Location(loc domain.S3Location) (*S3ObjectRepository, error) {
	if loc.Bucket == "" || loc.Key == "" {
		return nil, fmt.Errorf("s3 location requires bucket and key: %w", zerrors.ErrMissingRequiredFields)
	}

	region := loc.Region
	if region == "" {
		region = defaultS3Region
	}

	client := s3.NewFromConfig(f.awsConfig, func(o *s3.Options) {
		o.Region = region
		o.UsePathStyle = loc.PathStyle
		if loc.AccessKeyID != "" {
			o.Credentials = aws.NewCredentialsCache(
				credentials.NewStaticCredentialsProvider(loc.AccessKeyID, loc.SecretAccessKey, ""),
			)
		}
		if loc.Endpoint != "" {
			o.BaseEndpoint = aws.String(loc.Endpoint)
		}
	})

	repo := NewS3ObjectRepository(client, loc.Bucket)
	return &repo, nil
}

// ParseBucketConfig parses bucket configuration from string
// Formats: "s3://bucket-name", "gs://bucket-name", "s3:bucket-name", or "bucket-name" (defaults to GCS)
func ParseBucketConfig(bucketStr string) (BucketConfig, error) {
	bucketStr = strings.TrimSpace(bucketStr)
	if bucketStr == "" {
		return BucketConfig{}, fmt.Errorf("bucket name cannot be empty")
	}

	if scheme, name, ok := strings.Cut(bucketStr, "://"); ok {
		name = strings.TrimSpace(name)
		if name == "" {
			return BucketConfig{}, fmt.Errorf("bucket name cannot be empty")
		}

		switch strings.ToLower(strings.TrimSpace(scheme)) {
		case "s3":
			return BucketConfig{Name: name, Type: S3Type}, nil
		case "gs":
			return BucketConfig{Name: name, Type: GCSType}, nil
		default:
			return BucketConfig{}, fmt.Errorf("unsupported scheme: %s", scheme)
		}
	}

	kind, name, ok := strings.Cut(bucketStr, ":")
	if !ok {
		return BucketConfig{Name: bucketStr, Type: GCSType}, nil
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return BucketConfig{}, fmt.Errorf("bucket name cannot be empty")
	}

	return BucketConfig{
		Name: name,
		Type: RepositoryType(strings.ToLower(strings.TrimSpace(kind))),
	}, nil
}
