package protocol

import (
	"fmt"
	"net/http"
	"strings"
)

// ETag is the validator for reconstructed files: upload time plus size.
func ETag(timestamp, totalSize int64) string {
	return fmt.Sprintf(`"%d-%d"`, timestamp, totalSize)
}

// NotModified reports whether an If-None-Match value matches etag exactly.
func NotModified(ifNoneMatch, etag string) bool {
	return ifNoneMatch != "" && strings.TrimSpace(ifNoneMatch) == etag
}

// NotModifiedHeaders are the only headers a 304 carries.
func NotModifiedHeaders(etag, cacheControl string) http.Header {
	h := make(http.Header)
	h.Set("ETag", etag)
	h.Set("Cache-Control", cacheControl)
	h.Set("Accept-Ranges", "bytes")
	return h
}
