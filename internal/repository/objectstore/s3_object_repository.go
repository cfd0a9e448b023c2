package objectstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	zerrors "github.com/zzenonn/zgate/internal/errors"
	"github.com/zzenonn/zgate/internal/metrics"
)

// S3API is the part of the S3 client the repository uses.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3ObjectRepository manages S3 interactions for objects.
type S3ObjectRepository struct {
	client     S3API
	bucketName string
}

// NewS3ObjectRepository initializes a new S3ObjectRepository.
func NewS3ObjectRepository(client S3API, bucketName string) S3ObjectRepository {
	return S3ObjectRepository{
		client:     client,
		bucketName: bucketName,
	}
}

// GetBucketName returns the bucket name.
func (r *S3ObjectRepository) GetBucketName() string {
	return r.bucketName
}

// GetStorageType returns the object store type.
func (r *S3ObjectRepository) GetStorageType() string {
	return "s3"
}

// GetObject issues a GetObject with the client's Range header forwarded as is.
func (r *S3ObjectRepository) GetObject(ctx context.Context, key, rawRange string) (*s3.GetObjectOutput, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(r.bucketName),
		Key:    aws.String(key),
	}
	if rawRange != "" {
		input.Range = aws.String(rawRange)
	}

	start := time.Now()
	out, err := r.client.GetObject(ctx, input)
	metrics.RecordBackendOperation("s3", "get_object", time.Since(start), err == nil)
	if err != nil {
		return nil, translateS3Error(err)
	}
	return out, nil
}

// HeadObject fetches object metadata without the body.
func (r *S3ObjectRepository) HeadObject(ctx context.Context, key string) (*s3.HeadObjectOutput, error) {
	start := time.Now()
	out, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.bucketName),
		Key:    aws.String(key),
	})
	metrics.RecordBackendOperation("s3", "head_object", time.Since(start), err == nil)
	if err != nil {
		return nil, translateS3Error(err)
	}
	return out, nil
}

// Stat implements BucketRepository.
func (r *S3ObjectRepository) Stat(ctx context.Context, key string) (ObjectAttrs, error) {
	out, err := r.HeadObject(ctx, key)
	if err != nil {
		return ObjectAttrs{}, err
	}
	return ObjectAttrs{
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
		ETag:        aws.ToString(out.ETag),
		Updated:     aws.ToTime(out.LastModified),
	}, nil
}

// ReadRange implements BucketRepository with an S3 byte range.
func (r *S3ObjectRepository) ReadRange(ctx context.Context, key string, offset, length int64) (*ObjectReader, error) {
	var rng string
	switch {
	case length > 0:
		rng = fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)
	case offset > 0:
		rng = fmt.Sprintf("bytes=%d-", offset)
	}

	out, err := r.GetObject(ctx, key, rng)
	if err != nil {
		return nil, err
	}

	n := aws.ToInt64(out.ContentLength)
	total := n
	if out.ContentRange != nil {
		if t, ok := ContentRangeTotal(*out.ContentRange); ok {
			total = t
		}
	}

	return &ObjectReader{
		Body: out.Body,
		Attrs: ObjectAttrs{
			Size:        total,
			ContentType: aws.ToString(out.ContentType),
			ETag:        aws.ToString(out.ETag),
			Updated:     aws.ToTime(out.LastModified),
		},
		Offset: offset,
		Length: n,
	}, nil
}

// ContentRangeTotal extracts the complete length from "bytes a-b/total".
func ContentRangeTotal(contentRange string) (int64, bool) {
	i := strings.LastIndexByte(contentRange, '/')
	if i < 0 {
		return 0, false
	}
	total, err := strconv.ParseInt(strings.TrimSpace(contentRange[i+1:]), 10, 64)
	if err != nil {
		return 0, false
	}
	return total, true
}

func translateS3Error(err error) error {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return ErrObjectNotExist
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidRange" {
		return zerrors.ErrRangeNotSatisfiable
	}
	return err
}
