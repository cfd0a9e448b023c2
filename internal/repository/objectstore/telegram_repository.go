package objectstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	zerrors "github.com/zzenonn/zgate/internal/errors"
	"github.com/zzenonn/zgate/internal/metrics"
)

// DefaultTelegramAPIBase is the public Bot API endpoint.
const DefaultTelegramAPIBase = "https://api.telegram.org"

// ErrUpstreamNotFound is returned when the message store answers 404.
var ErrUpstreamNotFound = errors.New("upstream file not found")

// TelegramRepository talks to a Telegram-style Bot API that stores files as
// message attachments. A file is addressed by an opaque file id which is
// resolved to a download path first.
type TelegramRepository struct {
	httpClient   *http.Client
	apiBase      string
	defaultToken string
}

// NewTelegramRepository creates a repository. An empty apiBase uses the public API.
func NewTelegramRepository(httpClient *http.Client, apiBase, defaultToken string) *TelegramRepository {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if apiBase == "" {
		apiBase = DefaultTelegramAPIBase
	}
	return &TelegramRepository{
		httpClient:   httpClient,
		apiBase:      strings.TrimRight(apiBase, "/"),
		defaultToken: defaultToken,
	}
}

// Bot returns a client bound to token, or to the configured token when the
// record carries none.
func (r *TelegramRepository) Bot(token string) (*TelegramBot, error) {
	if token == "" {
		token = r.defaultToken
	}
	if token == "" {
		return nil, fmt.Errorf("%w: no bot token", zerrors.ErrChannelUnavailable)
	}
	return &TelegramBot{repo: r, token: token}, nil
}

// TelegramBot is a TelegramRepository bound to one bot token.
type TelegramBot struct {
	repo  *TelegramRepository
	token string
}

type getFileResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      struct {
		FileID   string `json:"file_id"`
		FilePath string `json:"file_path"`
		FileSize int64  `json:"file_size"`
	} `json:"result"`
}

// ResolvePath resolves a file id to its download path.
func (b *TelegramBot) ResolvePath(ctx context.Context, fileID string) (string, error) {
	endpoint := fmt.Sprintf("%s/bot%s/getFile?file_id=%s", b.repo.apiBase, b.token, url.QueryEscape(fileID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	start := time.Now()
	resp, err := b.repo.httpClient.Do(req)
	metrics.RecordBackendOperation("telegram", "get_file", time.Since(start), err == nil)
	if err != nil {
		return "", fmt.Errorf("getFile request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrUpstreamNotFound
	}

	var body getFileResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode getFile response: %w", err)
	}
	if !body.OK || body.Result.FilePath == "" {
		return "", fmt.Errorf("getFile failed for %s: status %d %s", fileID, resp.StatusCode, body.Description)
	}

	log.Debugf("Resolved file %s to %s", fileID, body.Result.FilePath)
	return body.Result.FilePath, nil
}

// FileURL returns the download URL of a resolved path.
func (b *TelegramBot) FileURL(path string) string {
	return fmt.Sprintf("%s/file/bot%s/%s", b.repo.apiBase, b.token, path)
}

// FetchPath downloads the whole file at path.
func (b *TelegramBot) FetchPath(ctx context.Context, path string) ([]byte, error) {
	resp, err := b.Open(ctx, http.MethodGet, path, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Open issues method against the file at path, forwarding rangeHeader when set.
// The caller owns the response body.
func (b *TelegramBot) Open(ctx context.Context, method, path, rangeHeader string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, b.FileURL(path), nil)
	if err != nil {
		return nil, err
	}
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	start := time.Now()
	resp, err := b.repo.httpClient.Do(req)
	metrics.RecordBackendOperation("telegram", "download", time.Since(start), err == nil)
	if err != nil {
		return nil, fmt.Errorf("download request failed: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, ErrUpstreamNotFound
	}
	return resp, nil
}
