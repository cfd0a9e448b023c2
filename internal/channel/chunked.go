package channel

import (
	"context"
	"fmt"
	"net/http"

	"github.com/zzenonn/zgate/internal/chunk"
	"github.com/zzenonn/zgate/internal/domain"
	zerrors "github.com/zzenonn/zgate/internal/errors"
	"github.com/zzenonn/zgate/internal/protocol"
	"github.com/zzenonn/zgate/internal/retry"
)

// SourceProvider returns the chunk source for a bot token. An empty token
// selects the configured default.
type SourceProvider func(token string) (chunk.Source, error)

// ChunkedAdapter serves files stored in the message store. Files split into
// chunks are reconstructed; single-message files go to the message proxy.
type ChunkedAdapter struct {
	sources SourceProvider
	policy  retry.Policy
	window  int
	single  Adapter
}

// NewChunkedAdapter creates the adapter. single serves records that were
// uploaded as one message.
func NewChunkedAdapter(sources SourceProvider, policy retry.Policy, window int, single Adapter) *ChunkedAdapter {
	return &ChunkedAdapter{
		sources: sources,
		policy:  policy,
		window:  window,
		single:  single,
	}
}

func (a *ChunkedAdapter) FetchRange(ctx context.Context, req Request) (*Response, error) {
	loc, ok := req.Record.Location.(domain.ChunkedLocation)
	if !ok {
		return nil, fmt.Errorf("%w: expected chunked location", zerrors.ErrInvalidChannel)
	}
	if !loc.IsChunked {
		if a.single == nil {
			return nil, fmt.Errorf("%w: message proxy", zerrors.ErrChannelUnavailable)
		}
		return a.single.FetchRange(ctx, req)
	}

	total, err := chunk.Validate(loc.Chunks, loc.TotalChunks)
	if err != nil {
		return nil, err
	}

	h := req.header()
	etag := protocol.ETag(req.Record.TimeStamp, total)
	if protocol.NotModified(req.IfNoneMatch, etag) {
		return &Response{
			Status: http.StatusNotModified,
			Header: protocol.NotModifiedHeaders(etag, h.Get("Cache-Control")),
		}, nil
	}

	rng, err := protocol.ParseRange(req.Range, total)
	if err != nil {
		return nil, err
	}

	h.Set("ETag", etag)
	if req.IsHead() {
		protocol.SetContentLength(h, total)
		return &Response{Status: http.StatusOK, Header: protocol.HeadHeaders(h, etag)}, nil
	}

	source, err := a.sources(loc.BotToken)
	if err != nil {
		return nil, err
	}
	reconstructor := chunk.NewReconstructor(source, a.policy, a.window)

	if rng == nil {
		protocol.SetContentLength(h, total)
		body := reconstructor.Open(ctx, loc.Chunks, domain.FullRange(total))
		return &Response{Status: http.StatusOK, Header: h, Body: body}, nil
	}

	protocol.SetRangeHeaders(h, *rng, total)
	body := reconstructor.Open(ctx, loc.Chunks, *rng)
	return &Response{Status: http.StatusPartialContent, Header: h, Body: body}, nil
}
