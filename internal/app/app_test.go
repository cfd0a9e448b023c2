package app

import (
	"context"
	"net/http"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zzenonn/zgate/internal/access"
	"github.com/zzenonn/zgate/internal/config"
	zerrors "github.com/zzenonn/zgate/internal/errors"
	"github.com/zzenonn/zgate/internal/service"
)

func TestBuild_RedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.HSet("file:ext/cat.png", "metadata", `{"Channel":"External","ExternalLink":"https://cdn.example.com/cat.png"}`)
	mr.HSet("file:img/dog.png", "metadata", `{"Channel":"BucketStore"}`)

	cfg := &config.Config{
		GatewayOrigin:   "https://img.example.com",
		MetadataBackend: "redis",
		Redis:           config.RedisConfig{Addr: mr.Addr()},
		Access:          config.AccessConfig{AllowedDomains: "good.com"},
	}
	cfg.Chunk.MaxAttempts = 3

	a, err := Build(cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "https://img.example.com", a.Origin.String())

	result, err := a.Retrieval.Retrieve(context.Background(), service.RetrievalRequest{Key: "ext/cat.png", Method: http.MethodGet})
	require.NoError(t, err)
	assert.Equal(t, access.Allow, result.Decision)
	assert.Equal(t, http.StatusFound, result.Response.Status)
	assert.Equal(t, "https://cdn.example.com/cat.png", result.Response.Location)

	result, err = a.Retrieval.Retrieve(context.Background(), service.RetrievalRequest{
		Key:     "ext/cat.png",
		Method:  http.MethodGet,
		Referer: "https://evil.example.com/",
	})
	require.NoError(t, err)
	assert.Equal(t, access.BlockImage, result.Decision)

	_, err = a.Retrieval.Retrieve(context.Background(), service.RetrievalRequest{Key: "img/dog.png", Method: http.MethodGet})
	assert.ErrorIs(t, err, zerrors.ErrChannelUnavailable)

	_, err = a.Retrieval.Retrieve(context.Background(), service.RetrievalRequest{Key: "nope", Method: http.MethodGet})
	assert.ErrorIs(t, err, zerrors.ErrRecordNotFound)
}

func TestBuild_RejectsBadOrigin(t *testing.T) {
	_, err := Build(&config.Config{GatewayOrigin: "not-an-origin", MetadataBackend: "redis"})
	assert.Error(t, err)
}
