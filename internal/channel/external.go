package channel

import (
	"context"
	"fmt"
	"net/http"

	"github.com/zzenonn/zgate/internal/domain"
	zerrors "github.com/zzenonn/zgate/internal/errors"
)

// ExternalAdapter redirects to files hosted elsewhere. Nothing is fetched.
type ExternalAdapter struct{}

func (ExternalAdapter) FetchRange(_ context.Context, req Request) (*Response, error) {
	loc, ok := req.Record.Location.(domain.ExternalLocation)
	if !ok {
		return nil, fmt.Errorf("%w: expected external location", zerrors.ErrInvalidChannel)
	}
	if loc.URL == "" {
		return nil, fmt.Errorf("%w: external link is empty", zerrors.ErrBackend)
	}

	h := make(http.Header)
	h.Set("Location", loc.URL)
	return &Response{Status: http.StatusFound, Header: h, Location: loc.URL}, nil
}
