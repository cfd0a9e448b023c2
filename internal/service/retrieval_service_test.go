package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zzenonn/zgate/internal/access"
	"github.com/zzenonn/zgate/internal/channel"
	"github.com/zzenonn/zgate/internal/domain"
	zerrors "github.com/zzenonn/zgate/internal/errors"
	"github.com/zzenonn/zgate/internal/policy"
	"github.com/zzenonn/zgate/internal/protocol"
	"github.com/zzenonn/zgate/internal/transform"
)

var testOrigin = &url.URL{Scheme: "https", Host: "img.example.com"}

// mockMetadataRepository is a mock implementation of the metadata store for testing.
type mockMetadataRepository struct {
	getRecordFunc func(ctx context.Context, key string) (*domain.RawRecord, error)
	calls         int
}

func (m *mockMetadataRepository) GetRecord(ctx context.Context, key string) (*domain.RawRecord, error) {
	m.calls++
	if m.getRecordFunc != nil {
		return m.getRecordFunc(ctx, key)
	}
	return nil, zerrors.ErrRecordNotFound
}

func recordRepo(metadata domain.StoredMetadata, value string) *mockMetadataRepository {
	return &mockMetadataRepository{
		getRecordFunc: func(ctx context.Context, key string) (*domain.RawRecord, error) {
			return &domain.RawRecord{Value: []byte(value), Metadata: &metadata}, nil
		},
	}
}

// recordingAdapter remembers the last request and answers with body.
type recordingAdapter struct {
	calls   int
	last    channel.Request
	status  int
	body    string
	headers map[string]string
}

func (a *recordingAdapter) FetchRange(ctx context.Context, req channel.Request) (*channel.Response, error) {
	a.calls++
	a.last = req
	h := req.Header.Clone()
	for k, v := range a.headers {
		h.Set(k, v)
	}
	status := a.status
	if status == 0 {
		status = http.StatusOK
	}
	return &channel.Response{Status: status, Header: h, Body: io.NopCloser(strings.NewReader(a.body))}, nil
}

type mockTransformer struct {
	transformFunc func(ctx context.Context, src []byte, contentType string, opts transform.Options) (*transform.Result, error)
	calls         int
}

func (m *mockTransformer) Transform(ctx context.Context, src []byte, contentType string, opts transform.Options) (*transform.Result, error) {
	m.calls++
	return m.transformFunc(ctx, src, contentType, opts)
}

func allAdapters() (Adapters, map[domain.Channel]*recordingAdapter) {
	byChannel := map[domain.Channel]*recordingAdapter{
		domain.ChannelBucketStore: {body: string(domain.ChannelBucketStore)},
		domain.ChannelS3:          {body: string(domain.ChannelS3)},
		domain.ChannelChunked:     {body: string(domain.ChannelChunked)},
		domain.ChannelExternal:    {body: string(domain.ChannelExternal)},
	}
	return Adapters{
		Bucket:   byChannel[domain.ChannelBucketStore],
		S3:       byChannel[domain.ChannelS3],
		Chunked:  byChannel[domain.ChannelChunked],
		External: byChannel[domain.ChannelExternal],
	}, byChannel
}

func readAll(t *testing.T, resp *channel.Response) string {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

// TestRetrievalService_Dispatch tests that each stored channel reaches its adapter.
func TestRetrievalService_Dispatch(t *testing.T) {
	tests := []struct {
		name    string
		channel string
		want    domain.Channel
	}{
		{name: "bucket", channel: "BucketStore", want: domain.ChannelBucketStore},
		{name: "legacy bucket", channel: "CloudflareR2", want: domain.ChannelBucketStore},
		{name: "s3", channel: "S3", want: domain.ChannelS3},
		{name: "chunked", channel: "Chunked", want: domain.ChannelChunked},
		{name: "legacy chunked", channel: "TelegramNew", want: domain.ChannelChunked},
		{name: "external", channel: "External", want: domain.ChannelExternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapters, byChannel := allAdapters()
			repo := recordRepo(domain.StoredMetadata{Channel: tt.channel, FileName: "cat.png", FileType: "image/png"}, "")
			svc := NewRetrievalService(repo, policy.NewStaticSource("", false), adapters, testOrigin, nil)

			result, err := svc.Retrieve(context.Background(), RetrievalRequest{Key: "img/cat.png", Method: http.MethodGet, Range: "bytes=0-1"})
			require.NoError(t, err)

			assert.Equal(t, access.Allow, result.Decision)
			assert.Equal(t, tt.want, result.Record.Channel())
			for ch, adapter := range byChannel {
				if ch == tt.want {
					assert.Equal(t, 1, adapter.calls)
				} else {
					assert.Zero(t, adapter.calls, ch)
				}
			}

			req := byChannel[tt.want].last
			assert.Equal(t, "bytes=0-1", req.Range)
			assert.Equal(t, `inline; filename="cat.png"; filename*=UTF-8''cat.png`, req.Header.Get("Content-Disposition"))
			assert.Equal(t, "image/png", req.Header.Get("Content-Type"))
			assert.Equal(t, protocol.CacheControlPublic, req.Header.Get("Cache-Control"))
			assert.Equal(t, string(tt.want), readAll(t, result.Response))
		})
	}
}

// TestRetrievalService_Gate tests the access decisions and that blocked requests never reach an adapter.
func TestRetrievalService_Gate(t *testing.T) {
	tests := []struct {
		name       string
		domains    string
		whiteList  bool
		referer    string
		listType   string
		label      string
		want       access.Decision
		wantLookup bool
	}{
		{name: "foreign referer blocked before lookup", domains: "good.com", referer: "https://evil.example.com/page", want: access.BlockImage},
		{name: "subdomain allowed", domains: "good.com", referer: "https://sub.good.com/page", want: access.Allow, wantLookup: true},
		{name: "no allow-list allows anything", referer: "https://evil.example.com/page", want: access.Allow, wantLookup: true},
		{name: "block label", listType: "Block", want: access.BlockImage, wantLookup: true},
		{name: "adult label", label: "adult", want: access.BlockImage, wantLookup: true},
		{name: "white label in allow-list mode", listType: "White", whiteList: true, want: access.Allow, wantLookup: true},
		{name: "unlabelled in allow-list mode", whiteList: true, want: access.AllowListNotice, wantLookup: true},
		{name: "same origin bypasses labels", listType: "Block", referer: "https://img.example.com/gallery", want: access.Allow, wantLookup: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapters, byChannel := allAdapters()
			repo := recordRepo(domain.StoredMetadata{Channel: "BucketStore", ListType: tt.listType, Label: tt.label}, "")
			svc := NewRetrievalService(repo, policy.NewStaticSource(tt.domains, tt.whiteList), adapters, testOrigin, nil)

			result, err := svc.Retrieve(context.Background(), RetrievalRequest{Key: "k", Method: http.MethodGet, Referer: tt.referer})
			require.NoError(t, err)

			assert.Equal(t, tt.want, result.Decision)
			assert.Equal(t, tt.wantLookup, repo.calls == 1)
			if tt.want == access.Allow {
				require.NotNil(t, result.Response)
				result.Response.Body.Close()
				assert.Equal(t, 1, byChannel[domain.ChannelBucketStore].calls)
			} else {
				assert.Nil(t, result.Response)
				assert.Zero(t, byChannel[domain.ChannelBucketStore].calls)
			}
		})
	}
}

func TestRetrievalService_SameOriginIsPrivate(t *testing.T) {
	adapters, byChannel := allAdapters()
	repo := recordRepo(domain.StoredMetadata{Channel: "S3"}, "")
	svc := NewRetrievalService(repo, policy.NewStaticSource("", false), adapters, testOrigin, nil)

	result, err := svc.Retrieve(context.Background(), RetrievalRequest{Key: "k", Method: http.MethodGet, Referer: "https://img.example.com/x"})
	require.NoError(t, err)
	result.Response.Body.Close()

	assert.Equal(t, protocol.CacheControlPrivate, byChannel[domain.ChannelS3].last.Header.Get("Cache-Control"))
	assert.Equal(t, `inline; filename="k"; filename*=UTF-8''k`, byChannel[domain.ChannelS3].last.Header.Get("Content-Disposition"))
}

func TestRetrievalService_Errors(t *testing.T) {
	adapters, _ := allAdapters()

	t.Run("empty key", func(t *testing.T) {
		svc := NewRetrievalService(&mockMetadataRepository{}, policy.NewStaticSource("", false), adapters, testOrigin, nil)
		_, err := svc.Retrieve(context.Background(), RetrievalRequest{Method: http.MethodGet})
		assert.ErrorIs(t, err, zerrors.ErrInvalidKey)
	})

	t.Run("record not found", func(t *testing.T) {
		svc := NewRetrievalService(&mockMetadataRepository{}, policy.NewStaticSource("", false), adapters, testOrigin, nil)
		_, err := svc.Retrieve(context.Background(), RetrievalRequest{Key: "missing", Method: http.MethodGet})
		assert.ErrorIs(t, err, zerrors.ErrRecordNotFound)
	})

	t.Run("unknown channel", func(t *testing.T) {
		repo := recordRepo(domain.StoredMetadata{Channel: "Carrier Pigeon"}, "")
		svc := NewRetrievalService(repo, policy.NewStaticSource("", false), adapters, testOrigin, nil)
		_, err := svc.Retrieve(context.Background(), RetrievalRequest{Key: "k", Method: http.MethodGet})
		assert.ErrorIs(t, err, zerrors.ErrInvalidChannel)
	})

	t.Run("channel without adapter", func(t *testing.T) {
		repo := recordRepo(domain.StoredMetadata{Channel: "S3"}, "")
		svc := NewRetrievalService(repo, policy.NewStaticSource("", false), Adapters{}, testOrigin, nil)
		_, err := svc.Retrieve(context.Background(), RetrievalRequest{Key: "k", Method: http.MethodGet})
		assert.ErrorIs(t, err, zerrors.ErrChannelUnavailable)
	})

	t.Run("adapter error passes through", func(t *testing.T) {
		repo := recordRepo(domain.StoredMetadata{Channel: "S3"}, "")
		failing := channel.AdapterFunc(func(context.Context, channel.Request) (*channel.Response, error) {
			return nil, zerrors.ErrRangeNotSatisfiable
		})
		svc := NewRetrievalService(repo, policy.NewStaticSource("", false), Adapters{S3: failing}, testOrigin, nil)
		_, err := svc.Retrieve(context.Background(), RetrievalRequest{Key: "k", Method: http.MethodGet, Range: "bytes=9-"})
		assert.ErrorIs(t, err, zerrors.ErrRangeNotSatisfiable)
	})

	t.Run("corrupt chunk list", func(t *testing.T) {
		repo := recordRepo(domain.StoredMetadata{Channel: "Chunked", IsChunked: true}, "{")
		svc := NewRetrievalService(repo, policy.NewStaticSource("", false), adapters, testOrigin, nil)
		_, err := svc.Retrieve(context.Background(), RetrievalRequest{Key: "k", Method: http.MethodGet})
		assert.ErrorIs(t, err, zerrors.ErrInvalidChunks)
	})
}

// TestRetrievalService_Transform tests when the image hook runs and its fallback.
func TestRetrievalService_Transform(t *testing.T) {
	opts := transform.Options{Width: 100}
	shrink := func(ctx context.Context, src []byte, contentType string, opts transform.Options) (*transform.Result, error) {
		return &transform.Result{Data: bytes.ToUpper(src), ContentType: "image/webp"}, nil
	}

	tests := []struct {
		name        string
		fileType    string
		method      string
		rng         string
		opts        transform.Options
		transformFn func(ctx context.Context, src []byte, contentType string, opts transform.Options) (*transform.Result, error)
		wantBody    string
		wantType    string
		wantCalls   int
	}{
		{name: "applied", fileType: "image/png", method: http.MethodGet, opts: opts, transformFn: shrink, wantBody: "BUCKETSTORE", wantType: "image/webp", wantCalls: 1},
		{name: "no options", fileType: "image/png", method: http.MethodGet, transformFn: shrink, wantBody: "BucketStore", wantType: "image/png"},
		{name: "ranged request", fileType: "image/png", method: http.MethodGet, rng: "bytes=0-", opts: opts, transformFn: shrink, wantBody: "BucketStore", wantType: "image/png"},
		{name: "gif passes through", fileType: "image/gif", method: http.MethodGet, opts: opts, transformFn: shrink, wantBody: "BucketStore", wantType: "image/gif"},
		{
			name: "failure serves original", fileType: "image/png", method: http.MethodGet, opts: opts,
			transformFn: func(context.Context, []byte, string, transform.Options) (*transform.Result, error) {
				return nil, errors.New("decoder crashed")
			},
			wantBody: "BucketStore", wantType: "image/png", wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapters, _ := allAdapters()
			repo := recordRepo(domain.StoredMetadata{Channel: "BucketStore", FileType: tt.fileType}, "")
			transformer := &mockTransformer{transformFunc: tt.transformFn}
			svc := NewRetrievalService(repo, policy.NewStaticSource("", false), adapters, testOrigin, transformer)

			result, err := svc.Retrieve(context.Background(), RetrievalRequest{
				Key:       "k",
				Method:    tt.method,
				Range:     tt.rng,
				Transform: tt.opts,
			})
			require.NoError(t, err)

			assert.Equal(t, tt.wantBody, readAll(t, result.Response))
			assert.Equal(t, tt.wantType, result.Response.Header.Get("Content-Type"))
			assert.Equal(t, tt.wantCalls, transformer.calls)
		})
	}
}
