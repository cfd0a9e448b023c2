// Package gateway is the HTTP entry point: it decodes the file key, runs the
// retrieval and turns the result or error into a response.
package gateway

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zgate/internal/metrics"
	"github.com/zzenonn/zgate/internal/service"
)

// FileRoutePrefix is where files are served from.
const FileRoutePrefix = "/file/"

// Retriever runs a retrieval request.
type Retriever interface {
	Retrieve(ctx context.Context, req service.RetrievalRequest) (*service.RetrievalResult, error)
}

type Server struct {
	h http.Handler
}

// New builds the router. origin is the gateway's public origin; when nil it is
// derived from each request.
func New(retriever Retriever, fallback *Fallback, origin *url.URL) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", metrics.Handler())

	h := &fileHandler{
		retriever: retriever,
		fallback:  fallback,
		origin:    origin,
	}
	r.Get(FileRoutePrefix+"*", h.serveFile)
	r.Head(FileRoutePrefix+"*", h.serveFile)

	return &Server{h: r}
}

func (s *Server) Handler() http.Handler {
	return s.h
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			log.WithFields(log.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   ww.Status(),
				"bytes":    ww.BytesWritten(),
				"duration": time.Since(start),
				"remote":   r.RemoteAddr,
			}).Info("request")
		}()
		next.ServeHTTP(ww, r)
	})
}
