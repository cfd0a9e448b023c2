package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/zzenonn/zgate/internal/domain"
	zerrors "github.com/zzenonn/zgate/internal/errors"
	"github.com/zzenonn/zgate/internal/protocol"
)

// S3Object is the per-location client the S3 adapter reads through.
type S3Object interface {
	GetObject(ctx context.Context, key, rawRange string) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, key string) (*s3.HeadObjectOutput, error)
}

// S3Opener builds a client for the endpoint and credentials of one location.
type S3Opener func(loc domain.S3Location) (S3Object, error)

// S3Adapter serves files from S3-compatible stores registered per object.
// The Range header is forwarded untouched and the backend decides the status.
type S3Adapter struct {
	open S3Opener
}

func NewS3Adapter(open S3Opener) *S3Adapter {
	return &S3Adapter{open: open}
}

func (a *S3Adapter) FetchRange(ctx context.Context, req Request) (*Response, error) {
	loc, ok := req.Record.Location.(domain.S3Location)
	if !ok {
		return nil, fmt.Errorf("%w: expected s3 location", zerrors.ErrInvalidChannel)
	}

	client, err := a.open(loc)
	if err != nil {
		return nil, zerrors.BackendError("S3", err)
	}

	h := req.header()

	if req.IsHead() {
		out, err := client.HeadObject(ctx, loc.Key)
		if err != nil {
			return nil, s3Error(err)
		}
		if out.ContentLength != nil {
			protocol.SetContentLength(h, *out.ContentLength)
		}
		if h.Get("Content-Type") == "" && out.ContentType != nil {
			h.Set("Content-Type", *out.ContentType)
		}
		return &Response{Status: http.StatusOK, Header: protocol.HeadHeaders(h, "")}, nil
	}

	out, err := client.GetObject(ctx, loc.Key, req.Range)
	if err != nil {
		return nil, s3Error(err)
	}

	if out.ContentLength != nil {
		protocol.SetContentLength(h, *out.ContentLength)
	}
	if h.Get("Content-Type") == "" && out.ContentType != nil {
		h.Set("Content-Type", *out.ContentType)
	}

	status := http.StatusOK
	if out.ContentRange != nil {
		h.Set("Content-Range", aws.ToString(out.ContentRange))
		status = http.StatusPartialContent
	}
	return &Response{Status: status, Header: h, Body: out.Body}, nil
}

func s3Error(err error) error {
	if errors.Is(err, zerrors.ErrRangeNotSatisfiable) {
		return err
	}
	return zerrors.BackendError("S3", err)
}
