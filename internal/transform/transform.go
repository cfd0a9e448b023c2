// Package transform is the hook through which image responses can be resized
// or re-encoded on the way out. The transcoder itself lives elsewhere.
package transform

import (
	"context"
	"net/url"
	"strconv"
	"strings"
)

// Options are the image parameters taken from the query string.
type Options struct {
	Width   int
	Height  int
	DPR     float64
	Quality int
	Format  string
}

// IsZero reports whether no transform was requested.
func (o Options) IsZero() bool {
	return o == Options{}
}

// ParseOptions reads width, height, dpr, q and format from query. Values that
// do not parse as positive numbers are ignored.
func ParseOptions(query url.Values) Options {
	return Options{
		Width:   positiveInt(query.Get("width")),
		Height:  positiveInt(query.Get("height")),
		DPR:     positiveFloat(query.Get("dpr")),
		Quality: positiveInt(query.Get("q")),
		Format:  strings.ToLower(strings.TrimSpace(query.Get("format"))),
	}
}

// Compressible reports whether contentType is an image the transformer can
// re-encode. Vector and animated formats are passed through.
func Compressible(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if !strings.HasPrefix(ct, "image/") {
		return false
	}
	switch ct {
	case "image/svg+xml", "image/gif":
		return false
	}
	return true
}

// Result is a transformed image.
type Result struct {
	Data        []byte
	ContentType string
}

// Transformer re-encodes an image.
type Transformer interface {
	Transform(ctx context.Context, src []byte, contentType string, opts Options) (*Result, error)
}

func positiveInt(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return 0
	}
	return n
}

func positiveFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f <= 0 {
		return 0
	}
	return f
}
