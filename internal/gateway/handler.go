package gateway

import (
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zgate/internal/access"
	"github.com/zzenonn/zgate/internal/metrics"
	"github.com/zzenonn/zgate/internal/service"
	"github.com/zzenonn/zgate/internal/transform"
)

type fileHandler struct {
	retriever Retriever
	fallback  *Fallback
	origin    *url.URL
}

func (h *fileHandler) serveFile(w http.ResponseWriter, r *http.Request) {
	ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
	start := time.Now()
	channelName := "none"
	defer func() {
		metrics.RecordRequest(r.Method, channelName, ww.Status(), time.Since(start))
	}()

	key, err := keyFromPath(r.URL.EscapedPath())
	if err != nil {
		h.writeError(ww, r, err)
		return
	}

	result, err := h.retriever.Retrieve(r.Context(), service.RetrievalRequest{
		Key:         key,
		Method:      r.Method,
		Referer:     r.Header.Get("Referer"),
		Range:       r.Header.Get("Range"),
		IfNoneMatch: r.Header.Get("If-None-Match"),
		Transform:   transform.ParseOptions(r.URL.Query()),
		Origin:      h.requestOrigin(r),
	})
	if err != nil {
		log.WithError(err).WithField("key", key).Warn("Retrieval failed")
		h.writeError(ww, r, err)
		return
	}
	if result.Record != nil {
		channelName = string(result.Record.Channel())
	}

	switch result.Decision {
	case access.BlockImage:
		h.fallback.Serve(ww, r, FallbackBlocked)
		return
	case access.AllowListNotice:
		h.fallback.Serve(ww, r, FallbackAllowListNotice)
		return
	}

	resp := result.Response
	if resp.Body != nil {
		defer resp.Body.Close()
	}

	for k, v := range resp.Header {
		ww.Header()[k] = v
	}
	if resp.Location != "" {
		ww.Header().Set("Location", resp.Location)
	}
	ww.WriteHeader(resp.Status)

	if resp.Body == nil || r.Method == http.MethodHead {
		return
	}
	n, err := io.Copy(ww, resp.Body)
	metrics.RecordBytes(channelName, n)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{"key": key, "written": n}).Warn("Response stream terminated")
	}
}

func (h *fileHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	switch status {
	case http.StatusNotFound:
		h.fallback.Serve(w, r, FallbackNotFound)
	case http.StatusRequestedRangeNotSatisfiable:
		w.WriteHeader(status)
	default:
		http.Error(w, msg, status)
	}
}

func (h *fileHandler) requestOrigin(r *http.Request) *url.URL {
	if h.origin != nil {
		return h.origin
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return &url.URL{Scheme: scheme, Host: r.Host}
}
