package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zgate/internal/access"
	"github.com/zzenonn/zgate/internal/channel"
	"github.com/zzenonn/zgate/internal/domain"
	zerrors "github.com/zzenonn/zgate/internal/errors"
	"github.com/zzenonn/zgate/internal/metrics"
	"github.com/zzenonn/zgate/internal/policy"
	"github.com/zzenonn/zgate/internal/protocol"
	"github.com/zzenonn/zgate/internal/transform"
)

type MetadataRepository interface {
	GetRecord(ctx context.Context, key string) (*domain.RawRecord, error)
}

// Adapters holds one adapter per channel. A nil adapter makes its channel
// unavailable.
type Adapters struct {
	Bucket   channel.Adapter
	S3       channel.Adapter
	Chunked  channel.Adapter
	External channel.Adapter
}

// RetrievalRequest is a decoded client request.
type RetrievalRequest struct {
	Key         string
	Method      string
	Referer     string
	Range       string
	IfNoneMatch string
	Transform   transform.Options
	// Origin overrides the configured gateway origin for this request.
	Origin *url.URL
}

// RetrievalResult is the outcome of a retrieval. Response is nil unless the
// gate allowed the request.
type RetrievalResult struct {
	Decision access.Decision
	Record   *domain.ObjectRecord
	Response *channel.Response
}

type RetrievalService struct {
	metadataRepo MetadataRepository
	policies     policy.Source
	adapters     Adapters
	origin       *url.URL
	transformer  transform.Transformer
}

// NewRetrievalService creates a new RetrievalService instance. transformer may be nil.
func NewRetrievalService(metadataRepo MetadataRepository, policies policy.Source, adapters Adapters, origin *url.URL, transformer transform.Transformer) *RetrievalService {
	return &RetrievalService{
		metadataRepo: metadataRepo,
		policies:     policies,
		adapters:     adapters,
		origin:       origin,
		transformer:  transformer,
	}
}

// Retrieve runs a request through the referer gate, the metadata lookup, the
// label gate and finally the adapter for the record's channel.
func (s *RetrievalService) Retrieve(ctx context.Context, req RetrievalRequest) (*RetrievalResult, error) {
	if req.Key == "" {
		return nil, zerrors.ErrInvalidKey
	}

	origin := req.Origin
	if origin == nil {
		origin = s.origin
	}

	p, err := s.policies.Policy(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load access policy: %w", err)
	}

	if d := access.CheckReferer(req.Referer, origin, p); d != access.Allow {
		log.WithFields(log.Fields{"key": req.Key, "referer": req.Referer}).Info("Referer rejected")
		metrics.RecordDecision(d.String())
		return &RetrievalResult{Decision: d}, nil
	}

	raw, err := s.metadataRepo.GetRecord(ctx, req.Key)
	if err != nil {
		return nil, err
	}
	if raw == nil || raw.Metadata == nil {
		return nil, zerrors.ErrRecordNotFound
	}

	record, err := raw.Metadata.ToObjectRecord(req.Key, raw.Value)
	if err != nil {
		return nil, err
	}

	d := access.CheckLabels(req.Referer, origin, record, p)
	metrics.RecordDecision(d.String())
	if d != access.Allow {
		log.WithFields(log.Fields{"key": req.Key, "label": record.Label, "decision": d}).Info("Request blocked by label")
		return &RetrievalResult{Decision: d, Record: record}, nil
	}

	adapter, err := s.adapterFor(record.Location)
	if err != nil {
		return nil, err
	}

	resp, err := adapter.FetchRange(ctx, channel.Request{
		Record:      record,
		Method:      req.Method,
		Range:       req.Range,
		IfNoneMatch: req.IfNoneMatch,
		Header:      protocol.CommonHeaders(record.DisplayName(), record.FileType, req.Referer, origin),
	})
	if err != nil {
		return nil, err
	}

	if s.shouldTransform(req, resp) {
		if resp, err = s.applyTransform(ctx, req, resp); err != nil {
			return nil, err
		}
	}

	return &RetrievalResult{Decision: access.Allow, Record: record, Response: resp}, nil
}

func (s *RetrievalService) adapterFor(loc domain.Location) (channel.Adapter, error) {
	var adapter channel.Adapter
	switch loc.(type) {
	case domain.BucketLocation:
		adapter = s.adapters.Bucket
	case domain.S3Location:
		adapter = s.adapters.S3
	case domain.ChunkedLocation:
		adapter = s.adapters.Chunked
	case domain.ExternalLocation:
		adapter = s.adapters.External
	default:
		return nil, zerrors.ErrInvalidChannel
	}
	if adapter == nil {
		return nil, fmt.Errorf("%w: %s", zerrors.ErrChannelUnavailable, loc.Channel())
	}
	return adapter, nil
}

func (s *RetrievalService) shouldTransform(req RetrievalRequest, resp *channel.Response) bool {
	return s.transformer != nil &&
		!req.Transform.IsZero() &&
		req.Method == http.MethodGet &&
		req.Range == "" &&
		resp.Status == http.StatusOK &&
		resp.Body != nil &&
		transform.Compressible(resp.Header.Get("Content-Type"))
}

// applyTransform re-encodes the body. A transformer failure serves the
// original bytes.
func (s *RetrievalService) applyTransform(ctx context.Context, req RetrievalRequest, resp *channel.Response) (*channel.Response, error) {
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read body for transform: %w", err)
	}

	result, err := s.transformer.Transform(ctx, data, resp.Header.Get("Content-Type"), req.Transform)
	if err != nil || result == nil {
		log.WithError(err).WithField("key", req.Key).Warn("Image transform failed, serving original")
		resp.Body = io.NopCloser(bytes.NewReader(data))
		return resp, nil
	}

	if result.ContentType != "" {
		resp.Header.Set("Content-Type", result.ContentType)
	}
	resp.Header.Del("ETag")
	protocol.SetContentLength(resp.Header, int64(len(result.Data)))
	resp.Body = io.NopCloser(bytes.NewReader(result.Data))
	return resp, nil
}
