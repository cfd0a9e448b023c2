package gateway

import (
	"io"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
)

// FallbackKind selects the placeholder served instead of a file.
type FallbackKind int

const (
	FallbackNotFound FallbackKind = iota
	FallbackBlocked
	FallbackAllowListNotice
)

type fallbackAsset struct {
	path     string
	status   int
	redirect string
}

var fallbackAssets = map[FallbackKind]fallbackAsset{
	FallbackNotFound:        {path: "/static/404.png", status: http.StatusNotFound},
	FallbackBlocked:         {path: "/static/BlockImg.png", status: http.StatusForbidden, redirect: "/blockimg"},
	FallbackAllowListNotice: {path: "/static/WhiteListOn.png", status: http.StatusForbidden, redirect: "/whiteliston"},
}

// Fallback serves the placeholder images of the site. When an image cannot be
// fetched a 404 text or a redirect to the matching page is sent instead.
type Fallback struct {
	baseURL string
	client  *http.Client
}

// NewFallback creates a Fallback reading assets from baseURL. An empty baseURL
// disables the images.
func NewFallback(baseURL string, client *http.Client) *Fallback {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fallback{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (f *Fallback) Serve(w http.ResponseWriter, r *http.Request, kind FallbackKind) {
	asset := fallbackAssets[kind]

	if f != nil && f.baseURL != "" && f.serveAsset(w, r, asset) {
		return
	}

	if asset.redirect == "" {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	target := asset.redirect
	if f != nil && f.baseURL != "" {
		target = f.baseURL + asset.redirect
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (f *Fallback) serveAsset(w http.ResponseWriter, r *http.Request, asset fallbackAsset) bool {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, f.baseURL+asset.path, nil)
	if err != nil {
		return false
	}
	resp, err := f.client.Do(req)
	if err != nil {
		log.WithError(err).Warnf("Failed to fetch fallback %s", asset.path)
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Warnf("Fallback %s answered %d", asset.path, resp.StatusCode)
		return false
	}

	w.Header().Set("Content-Type", "image/png")
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		w.Header().Set("Content-Length", cl)
	}
	w.WriteHeader(asset.status)
	if r.Method != http.MethodHead {
		if _, err := io.Copy(w, resp.Body); err != nil {
			log.WithError(err).Debug("Fallback copy interrupted")
		}
	}
	return true
}
