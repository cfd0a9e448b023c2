// Package protocol builds the HTTP headers and status decisions shared by
// every channel: disposition, cache policy, CORS, ranges and conditional GETs.
package protocol

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	CacheControlPrivate = "private, max-age=86400"
	CacheControlPublic  = "public, max-age=604800"

	defaultContentType = "application/octet-stream"
)

// EncodeFileName percent-encodes a file name the way browsers expect in a
// Content-Disposition parameter.
func EncodeFileName(name string) string {
	return strings.ReplaceAll(url.QueryEscape(name), "+", "%20")
}

// ContentDisposition returns an inline disposition carrying both filename
// parameters.
func ContentDisposition(fileName string) string {
	encoded := EncodeFileName(fileName)
	return fmt.Sprintf(`inline; filename="%s"; filename*=UTF-8''%s`, encoded, encoded)
}

// IsSameOrigin reports whether referer was sent from a page on origin.
func IsSameOrigin(referer string, origin *url.URL) bool {
	if referer == "" || origin == nil {
		return false
	}
	u, err := url.Parse(referer)
	if err != nil || u.Host == "" {
		return false
	}
	return strings.EqualFold(u.Scheme, origin.Scheme) && strings.EqualFold(u.Host, origin.Host)
}

// CacheControl picks a private policy for the gateway's own pages and a CDN
// cacheable one for everyone else.
func CacheControl(referer string, origin *url.URL) string {
	if IsSameOrigin(referer, origin) {
		return CacheControlPrivate
	}
	return CacheControlPublic
}

// CommonHeaders builds the headers sent on every file response.
func CommonHeaders(fileName, fileType, referer string, origin *url.URL) http.Header {
	h := make(http.Header)
	h.Set("Content-Disposition", ContentDisposition(fileName))
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Accept-Ranges", "bytes")
	if fileType != "" {
		h.Set("Content-Type", fileType)
	}
	h.Set("Cache-Control", CacheControl(referer, origin))
	return h
}

// SetContentLength sets Content-Length from a byte count.
func SetContentLength(h http.Header, n int64) {
	h.Set("Content-Length", strconv.FormatInt(n, 10))
}

// HeadHeaders copies the headers a HEAD response carries, filling defaults
// for anything missing.
func HeadHeaders(h http.Header, etag string) http.Header {
	out := make(http.Header)
	copyOr(out, h, "Content-Length", "0")
	copyOr(out, h, "Content-Type", defaultContentType)
	copyOr(out, h, "Content-Disposition", "inline")
	copyOr(out, h, "Access-Control-Allow-Origin", "*")
	copyOr(out, h, "Accept-Ranges", "bytes")
	copyOr(out, h, "Cache-Control", CacheControlPublic)
	if etag != "" {
		out.Set("ETag", etag)
	}
	return out
}

func copyOr(dst, src http.Header, key, fallback string) {
	if v := src.Get(key); v != "" {
		dst.Set(key, v)
		return
	}
	dst.Set(key, fallback)
}
