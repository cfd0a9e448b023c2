package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zzenonn/zgate/internal/access"
	"github.com/zzenonn/zgate/internal/channel"
	"github.com/zzenonn/zgate/internal/chunk"
	"github.com/zzenonn/zgate/internal/domain"
	zerrors "github.com/zzenonn/zgate/internal/errors"
	"github.com/zzenonn/zgate/internal/policy"
	"github.com/zzenonn/zgate/internal/retry"
	"github.com/zzenonn/zgate/internal/service"
)

var testOrigin = &url.URL{Scheme: "https", Host: "img.example.com"}

type retrieverFunc func(ctx context.Context, req service.RetrievalRequest) (*service.RetrievalResult, error)

func (f retrieverFunc) Retrieve(ctx context.Context, req service.RetrievalRequest) (*service.RetrievalResult, error) {
	return f(ctx, req)
}

type memoryStore struct {
	records map[string]domain.RawRecord
}

func (m *memoryStore) GetRecord(ctx context.Context, key string) (*domain.RawRecord, error) {
	rec, ok := m.records[key]
	if !ok {
		return nil, zerrors.ErrRecordNotFound
	}
	return &rec, nil
}

type memorySource struct {
	mu      sync.Mutex
	chunks  map[string][]byte
	fetches int
}

func (m *memorySource) ResolvePath(ctx context.Context, remoteID string) (string, error) {
	return remoteID, nil
}

func (m *memorySource) FetchPath(ctx context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
	data, ok := m.chunks[path]
	if !ok {
		return nil, fmt.Errorf("no chunk %s", path)
	}
	return data, nil
}

func (m *memorySource) fetchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches
}

type fixture struct {
	server *httptest.Server
	source *memorySource
	data   []byte
}

// newFixture wires the real service and adapters over in-memory stores.
// "docs/movie.bin" is a 300 byte file split into three chunks, "docs/broken.bin"
// declares three chunks but stores two.
func newFixture(t *testing.T, allowedDomains string, fallback *Fallback) *fixture {
	t.Helper()

	source := &memorySource{chunks: map[string][]byte{}}
	var data []byte
	var chunks []string
	for i := 0; i < 3; i++ {
		part := []byte(strings.Repeat(string(rune('a'+i)), 100))
		id := fmt.Sprintf("c%d", i)
		source.chunks[id] = part
		data = append(data, part...)
		chunks = append(chunks, fmt.Sprintf(`{"index":%d,"fileId":%q,"size":100}`, i, id))
	}

	store := &memoryStore{records: map[string]domain.RawRecord{
		"docs/movie.bin": {
			Value:    []byte("[" + strings.Join(chunks, ",") + "]"),
			Metadata: &domain.StoredMetadata{Channel: "Chunked", FileName: "movie.bin", TimeStamp: 42, IsChunked: true, TotalChunks: 3},
		},
		"docs/broken.bin": {
			Value:    []byte("[" + strings.Join(chunks[:2], ",") + "]"),
			Metadata: &domain.StoredMetadata{Channel: "Chunked", IsChunked: true, TotalChunks: 3},
		},
		"docs/away.png": {
			Metadata: &domain.StoredMetadata{Channel: "External", ExternalLink: "https://cdn.example.com/away.png"},
		},
		"docs/blocked.png": {
			Metadata: &domain.StoredMetadata{Channel: "External", ExternalLink: "https://cdn.example.com/b.png", ListType: "Block"},
		},
	}}

	adapters := service.Adapters{
		Chunked: channel.NewChunkedAdapter(
			func(string) (chunk.Source, error) { return source, nil },
			retry.Policy{MaxAttempts: 3},
			1,
			nil,
		),
		External: channel.ExternalAdapter{},
	}
	svc := service.NewRetrievalService(store, policy.NewStaticSource(allowedDomains, false), adapters, testOrigin, nil)

	srv := httptest.NewServer(New(svc, fallback, testOrigin).Handler())
	t.Cleanup(srv.Close)
	return &fixture{server: srv, source: source, data: data}
}

func (f *fixture) do(t *testing.T, method, path string, header map[string]string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestGateway_RangeAcrossChunks(t *testing.T) {
	f := newFixture(t, "", nil)

	resp, body := f.do(t, http.MethodGet, "/file/docs,movie.bin", map[string]string{"Range": "bytes=50-249"})

	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "bytes 50-249/300", resp.Header.Get("Content-Range"))
	assert.Equal(t, "200", resp.Header.Get("Content-Length"))
	assert.Equal(t, `"42-300"`, resp.Header.Get("ETag"))
	assert.Equal(t, "bytes", resp.Header.Get("Accept-Ranges"))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, f.data[50:250], body)
}

func TestGateway_EncodedKey(t *testing.T) {
	f := newFixture(t, "", nil)

	resp, body := f.do(t, http.MethodGet, "/file/docs%2Cmovie.bin", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `inline; filename="movie.bin"; filename*=UTF-8''movie.bin`, resp.Header.Get("Content-Disposition"))
	assert.Equal(t, f.data, body)
}

func TestGateway_MissingChunks(t *testing.T) {
	f := newFixture(t, "", nil)

	resp, body := f.do(t, http.MethodGet, "/file/docs,broken.bin", nil)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "missing chunks, expected 3, got 2", strings.TrimSpace(string(body)))
	assert.Zero(t, f.source.fetchCount())
}

func TestGateway_HeadNeverFetches(t *testing.T) {
	f := newFixture(t, "", nil)

	resp, body := f.do(t, http.MethodHead, "/file/docs,movie.bin", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "300", resp.Header.Get("Content-Length"))
	assert.Empty(t, body)
	assert.Zero(t, f.source.fetchCount())
}

func TestGateway_NotModified(t *testing.T) {
	f := newFixture(t, "", nil)

	resp, body := f.do(t, http.MethodGet, "/file/docs,movie.bin", map[string]string{"If-None-Match": `"42-300"`})

	assert.Equal(t, http.StatusNotModified, resp.StatusCode)
	assert.Equal(t, `"42-300"`, resp.Header.Get("ETag"))
	assert.Empty(t, resp.Header.Get("Content-Disposition"))
	assert.Empty(t, body)
	assert.Zero(t, f.source.fetchCount())
}

func TestGateway_RangeNotSatisfiable(t *testing.T) {
	f := newFixture(t, "", nil)

	resp, body := f.do(t, http.MethodGet, "/file/docs,movie.bin", map[string]string{"Range": "bytes=300-"})

	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Content-Range"))
	assert.Empty(t, body)
}

func TestGateway_External(t *testing.T) {
	f := newFixture(t, "", nil)

	resp, _ := f.do(t, http.MethodGet, "/file/docs,away.png", nil)

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "https://cdn.example.com/away.png", resp.Header.Get("Location"))
}

func TestGateway_EmptyKey(t *testing.T) {
	f := newFixture(t, "", nil)

	resp, _ := f.do(t, http.MethodGet, "/file/", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGateway_FallbacksWithoutAssets(t *testing.T) {
	f := newFixture(t, "good.com", nil)

	resp, _ := f.do(t, http.MethodGet, "/file/docs,missing.png", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/file/docs,movie.bin", map[string]string{"Referer": "https://evil.example.com/"})
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/blockimg", resp.Header.Get("Location"))

	resp, _ = f.do(t, http.MethodGet, "/file/docs,movie.bin", map[string]string{"Referer": "https://sub.good.com/page"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGateway_FallbackImages(t *testing.T) {
	assets := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/static/404.png":
			fmt.Fprint(w, "png-404")
		case "/static/BlockImg.png":
			fmt.Fprint(w, "png-block")
		default:
			http.NotFound(w, r)
		}
	}))
	defer assets.Close()

	f := newFixture(t, "", NewFallback(assets.URL, assets.Client()))

	resp, body := f.do(t, http.MethodGet, "/file/docs,missing.png", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, "png-404", string(body))

	resp, body = f.do(t, http.MethodGet, "/file/docs,blocked.png", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "png-block", string(body))
}

func TestGateway_AllowListNoticeRedirect(t *testing.T) {
	svc := retrieverFunc(func(context.Context, service.RetrievalRequest) (*service.RetrievalResult, error) {
		return &service.RetrievalResult{Decision: access.AllowListNotice}, nil
	})
	srv := httptest.NewServer(New(svc, NewFallback("", nil), testOrigin).Handler())
	defer srv.Close()

	f := &fixture{server: srv}
	resp, _ := f.do(t, http.MethodGet, "/file/x", nil)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/whiteliston", resp.Header.Get("Location"))
}

func TestGateway_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{name: "backend failure", err: zerrors.BackendError("S3", errors.New("secret detail")), wantStatus: 500, wantBody: "Failed to fetch from S3"},
		{name: "invalid channel", err: fmt.Errorf("%w: %q", zerrors.ErrInvalidChannel, "Pigeon"), wantStatus: 500, wantBody: "invalid channel"},
		{name: "bucket object missing", err: zerrors.ErrBucketObjectMissing, wantStatus: 500, wantBody: "failed to fetch file"},
		{name: "unknown", err: errors.New("boom"), wantStatus: 500, wantBody: "Internal Server Error"},
		{name: "not found", err: zerrors.ErrRecordNotFound, wantStatus: 404},
		{name: "bad key", err: zerrors.ErrInvalidKey, wantStatus: 400, wantBody: "decode image id failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := retrieverFunc(func(context.Context, service.RetrievalRequest) (*service.RetrievalResult, error) {
				return nil, tt.err
			})
			srv := httptest.NewServer(New(svc, nil, testOrigin).Handler())
			defer srv.Close()

			f := &fixture{server: srv}
			resp, body := f.do(t, http.MethodGet, "/file/x", nil)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, strings.TrimSpace(string(body)))
			}
			assert.NotContains(t, string(body), "secret detail")
		})
	}
}

func TestGateway_RequestShape(t *testing.T) {
	var got service.RetrievalRequest
	svc := retrieverFunc(func(ctx context.Context, req service.RetrievalRequest) (*service.RetrievalResult, error) {
		got = req
		return nil, zerrors.ErrRecordNotFound
	})
	srv := httptest.NewServer(New(svc, nil, nil).Handler())
	defer srv.Close()

	f := &fixture{server: srv}
	f.do(t, http.MethodGet, "/file/a,b%20c.png?width=200&format=webp", map[string]string{
		"Range":         "bytes=0-9",
		"Referer":       "https://good.com/",
		"If-None-Match": `"1-2"`,
	})

	assert.Equal(t, "a/b c.png", got.Key)
	assert.Equal(t, "bytes=0-9", got.Range)
	assert.Equal(t, "https://good.com/", got.Referer)
	assert.Equal(t, `"1-2"`, got.IfNoneMatch)
	assert.Equal(t, 200, got.Transform.Width)
	assert.Equal(t, "webp", got.Transform.Format)
	require.NotNil(t, got.Origin)
	assert.Equal(t, srv.Listener.Addr().String(), got.Origin.Host)
}

func TestGateway_Health(t *testing.T) {
	srv := httptest.NewServer(New(nil, nil, testOrigin).Handler())
	defer srv.Close()
	f := &fixture{server: srv}

	resp, _ := f.do(t, http.MethodGet, "/livez", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := f.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestDecodeKey(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "a,b,c.png", want: "a/b/c.png"},
		{in: "a%2Cb.png", want: "a/b.png"},
		{in: "%E4%B8%AD.png", want: "中.png"},
		{in: "%zz", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := DecodeKey(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, zerrors.ErrInvalidKey, tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
