package objectstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zgate/internal/metrics"
)

// GCSObjectRepository implements BucketRepository for Google Cloud Storage
type GCSObjectRepository struct {
	client     *storage.Client
	bucketName string
}

// NewGCSObjectRepository creates a new GCS object repository
func NewGCSObjectRepository(client *storage.Client, bucketName string) GCSObjectRepository {
	return GCSObjectRepository{
		client:     client,
		bucketName: bucketName,
	}
}

// Stat fetches the object attributes from GCS
func (r *GCSObjectRepository) Stat(ctx context.Context, key string) (ObjectAttrs, error) {
	start := time.Now()
	attrs, err := r.client.Bucket(r.bucketName).Object(key).Attrs(ctx)
	metrics.RecordBackendOperation("gcs", "attrs", time.Since(start), err == nil)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return ObjectAttrs{}, ErrObjectNotExist
		}
		return ObjectAttrs{}, fmt.Errorf("failed to stat gs://%s/%s: %w", r.bucketName, key, err)
	}

	return ObjectAttrs{
		Size:        attrs.Size,
		ContentType: attrs.ContentType,
		ETag:        attrs.Etag,
		Updated:     attrs.Updated,
	}, nil
}

// ReadRange opens a ranged reader on a GCS object
func (r *GCSObjectRepository) ReadRange(ctx context.Context, key string, offset, length int64) (*ObjectReader, error) {
	log.Debugf("Reading from GCS: gs://%s/%s offset=%d length=%d", r.bucketName, key, offset, length)

	start := time.Now()
	reader, err := r.client.Bucket(r.bucketName).Object(key).NewRangeReader(ctx, offset, length)
	metrics.RecordBackendOperation("gcs", "range_read", time.Since(start), err == nil)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrObjectNotExist
		}
		return nil, fmt.Errorf("failed to download from GCS: %w", err)
	}

	return &ObjectReader{
		Body: reader,
		Attrs: ObjectAttrs{
			Size:        reader.Attrs.Size,
			ContentType: reader.Attrs.ContentType,
			Updated:     reader.Attrs.LastModified,
		},
		Offset: reader.Attrs.StartOffset,
		Length: reader.Remain(),
	}, nil
}

// GetBucketName returns the bucket name
func (r *GCSObjectRepository) GetBucketName() string {
	return r.bucketName
}

// GetStorageType returns the storage type
func (r *GCSObjectRepository) GetStorageType() string {
	return "gcs"
}
