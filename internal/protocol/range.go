package protocol

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"github.com/zzenonn/zgate/internal/domain"
	zerrors "github.com/zzenonn/zgate/internal/errors"
)

var rangeRegex = regexp.MustCompile(`^\s*bytes=(\d+)-(\d*)`)

// ParseRange resolves a Range header against an object of totalSize bytes.
// It returns nil when there is no usable byte range, in which case the whole
// object is served, and ErrRangeNotSatisfiable when the range falls outside it.
func ParseRange(header string, totalSize int64) (*domain.RangeRequest, error) {
	if header == "" {
		return nil, nil
	}
	m := rangeRegex.FindStringSubmatch(header)
	if m == nil {
		return nil, nil
	}

	start, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return nil, zerrors.ErrRangeNotSatisfiable
	}
	end := totalSize - 1
	if m[2] != "" {
		end, err = strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			return nil, zerrors.ErrRangeNotSatisfiable
		}
	}

	if start >= totalSize || end >= totalSize || start > end {
		return nil, zerrors.ErrRangeNotSatisfiable
	}
	return &domain.RangeRequest{Start: start, End: end}, nil
}

// ContentRange formats a Content-Range value.
func ContentRange(r domain.RangeRequest, totalSize int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, totalSize)
}

// SetRangeHeaders sets Content-Length and Content-Range for a 206.
func SetRangeHeaders(h http.Header, r domain.RangeRequest, totalSize int64) {
	SetContentLength(h, r.Length())
	h.Set("Content-Range", ContentRange(r, totalSize))
}
