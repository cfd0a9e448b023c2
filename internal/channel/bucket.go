package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/zzenonn/zgate/internal/domain"
	zerrors "github.com/zzenonn/zgate/internal/errors"
	"github.com/zzenonn/zgate/internal/protocol"
	"github.com/zzenonn/zgate/internal/repository/objectstore"
)

// BucketAdapter serves files from the gateway's own bucket.
type BucketAdapter struct {
	repo objectstore.BucketRepository
}

// NewBucketAdapter creates the adapter. repo may be nil when no bucket is
// configured, in which case every request fails with ErrChannelUnavailable.
func NewBucketAdapter(repo objectstore.BucketRepository) *BucketAdapter {
	return &BucketAdapter{repo: repo}
}

func (a *BucketAdapter) FetchRange(ctx context.Context, req Request) (*Response, error) {
	if a.repo == nil {
		return nil, fmt.Errorf("%w: bucket store", zerrors.ErrChannelUnavailable)
	}
	loc, ok := req.Record.Location.(domain.BucketLocation)
	if !ok {
		return nil, fmt.Errorf("%w: expected bucket location", zerrors.ErrInvalidChannel)
	}

	attrs, err := a.repo.Stat(ctx, loc.Key)
	if err != nil {
		return nil, bucketError(err)
	}

	h := req.header()
	if h.Get("Content-Type") == "" && attrs.ContentType != "" {
		h.Set("Content-Type", attrs.ContentType)
	}

	if req.IsHead() {
		protocol.SetContentLength(h, attrs.Size)
		return &Response{Status: http.StatusOK, Header: protocol.HeadHeaders(h, "")}, nil
	}

	rng, err := protocol.ParseRange(req.Range, attrs.Size)
	if err != nil {
		return nil, err
	}

	if rng == nil {
		r, err := a.repo.ReadRange(ctx, loc.Key, 0, -1)
		if err != nil {
			return nil, bucketError(err)
		}
		protocol.SetContentLength(h, r.Length)
		return &Response{Status: http.StatusOK, Header: h, Body: r.Body}, nil
	}

	r, err := a.repo.ReadRange(ctx, loc.Key, rng.Start, rng.Length())
	if err != nil {
		return nil, bucketError(err)
	}
	protocol.SetRangeHeaders(h, *rng, attrs.Size)
	return &Response{Status: http.StatusPartialContent, Header: h, Body: r.Body}, nil
}

func bucketError(err error) error {
	switch {
	case errors.Is(err, objectstore.ErrObjectNotExist):
		return zerrors.ErrBucketObjectMissing
	case errors.Is(err, zerrors.ErrRangeNotSatisfiable):
		return err
	default:
		return zerrors.BackendError("bucket", err)
	}
}
