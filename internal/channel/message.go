package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zgate/internal/domain"
	zerrors "github.com/zzenonn/zgate/internal/errors"
	"github.com/zzenonn/zgate/internal/protocol"
	"github.com/zzenonn/zgate/internal/repository/objectstore"
	"github.com/zzenonn/zgate/internal/retry"
)

// MessageFile is a message store client bound to one bot.
type MessageFile interface {
	ResolvePath(ctx context.Context, fileID string) (string, error)
	Open(ctx context.Context, method, path, rangeHeader string) (*http.Response, error)
}

// BotProvider returns the message store client for a bot token.
type BotProvider func(token string) (MessageFile, error)

// MessageProxy is the policy for proxying single-message files.
var MessageProxy = retry.Policy{MaxAttempts: 3}

// MessageAdapter proxies a file stored as a single message, forwarding the
// client's Range header to the store.
type MessageAdapter struct {
	bots   BotProvider
	policy retry.Policy
}

func NewMessageAdapter(bots BotProvider, policy retry.Policy) *MessageAdapter {
	return &MessageAdapter{bots: bots, policy: policy}
}

func (a *MessageAdapter) FetchRange(ctx context.Context, req Request) (*Response, error) {
	loc, ok := req.Record.Location.(domain.ChunkedLocation)
	if !ok {
		return nil, fmt.Errorf("%w: expected message location", zerrors.ErrInvalidChannel)
	}
	if loc.FileID == "" {
		return nil, fmt.Errorf("%w: record has no file id", zerrors.ErrBackend)
	}

	bot, err := a.bots(loc.BotToken)
	if err != nil {
		return nil, err
	}

	method := http.MethodGet
	if req.IsHead() {
		method = http.MethodHead
	}

	var upstream *http.Response
	err = a.policy.Do(ctx, func(int) error {
		path, err := bot.ResolvePath(ctx, loc.FileID)
		if err != nil {
			return upstreamError(err)
		}
		resp, err := bot.Open(ctx, method, path, req.Range)
		if err != nil {
			return upstreamError(err)
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			resp.Body.Close()
			return fmt.Errorf("upstream status %d", resp.StatusCode)
		}
		upstream = resp
		return nil
	}, func(attempt int, err error, _ time.Duration) {
		log.WithFields(log.Fields{
			"file_id": loc.FileID,
			"attempt": attempt,
		}).WithError(err).Warn("message fetch attempt failed")
	})
	if err != nil {
		if errors.Is(err, zerrors.ErrRecordNotFound) {
			return nil, err
		}
		return nil, zerrors.BackendError("Telegram", err)
	}

	if upstream.StatusCode == http.StatusRequestedRangeNotSatisfiable {
		upstream.Body.Close()
		return nil, zerrors.ErrRangeNotSatisfiable
	}

	h := req.header()
	for _, key := range []string{"Content-Length", "Content-Range"} {
		if v := upstream.Header.Get(key); v != "" {
			h.Set(key, v)
		}
	}
	if h.Get("Content-Type") == "" {
		if v := upstream.Header.Get("Content-Type"); v != "" {
			h.Set("Content-Type", v)
		}
	}

	if req.IsHead() {
		upstream.Body.Close()
		return &Response{Status: http.StatusOK, Header: protocol.HeadHeaders(h, "")}, nil
	}
	if upstream.StatusCode != http.StatusOK && upstream.StatusCode != http.StatusPartialContent {
		upstream.Body.Close()
		return nil, zerrors.BackendError("Telegram", fmt.Errorf("upstream status %d", upstream.StatusCode))
	}
	return &Response{Status: upstream.StatusCode, Header: h, Body: upstream.Body}, nil
}

func upstreamError(err error) error {
	if errors.Is(err, objectstore.ErrUpstreamNotFound) {
		return retry.Permanent(zerrors.ErrRecordNotFound)
	}
	return err
}
