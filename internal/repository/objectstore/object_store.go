// Package objectstore provides the storage backend clients the gateway reads
// files from: the gateway's own bucket (GCS or S3), per-object S3 endpoints
// and the Telegram-style message store holding chunked files.
package objectstore

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotExist is returned when a bucket has no object under the key.
var ErrObjectNotExist = errors.New("object does not exist")

// ObjectAttrs describes a stored object.
type ObjectAttrs struct {
	Size        int64
	ContentType string
	ETag        string
	Updated     time.Time
}

// ObjectReader is an open ranged read. Offset and Length describe the bytes
// Body will produce; Attrs.Size is the size of the whole object.
type ObjectReader struct {
	Body   io.ReadCloser
	Attrs  ObjectAttrs
	Offset int64
	Length int64
}

// BucketRepository defines the interface for reading from the gateway's bucket.
type BucketRepository interface {
	// Stat returns the object attributes without reading the body.
	Stat(ctx context.Context, key string) (ObjectAttrs, error)
	// ReadRange reads length bytes from offset; a negative length reads to the end.
	ReadRange(ctx context.Context, key string, offset, length int64) (*ObjectReader, error)
	GetBucketName() string
	GetStorageType() string
}
