// Package channel implements one adapter per storage backend. Every adapter
// answers the same request shape so that ranges, HEAD and conditional GETs
// behave identically whichever backend holds the bytes.
package channel

import (
	"context"
	"io"
	"net/http"

	"github.com/zzenonn/zgate/internal/domain"
)

// Request is a retrieval request for one resolved record.
type Request struct {
	Record      *domain.ObjectRecord
	Method      string
	Range       string
	IfNoneMatch string
	// Header holds the common response headers already built for the record.
	Header http.Header
}

// IsHead reports whether the request must not produce a body.
func (r Request) IsHead() bool {
	return r.Method == http.MethodHead
}

func (r Request) header() http.Header {
	if r.Header == nil {
		return make(http.Header)
	}
	return r.Header.Clone()
}

// Response is what an adapter produces. Body is nil when there is nothing to
// send; the caller closes it otherwise. Location is set for redirects.
type Response struct {
	Status   int
	Header   http.Header
	Body     io.ReadCloser
	Location string
}

// Adapter fetches a record from one backend.
type Adapter interface {
	FetchRange(ctx context.Context, req Request) (*Response, error)
}

// AdapterFunc lets a plain function serve as an Adapter.
type AdapterFunc func(ctx context.Context, req Request) (*Response, error)

func (f AdapterFunc) FetchRange(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}
