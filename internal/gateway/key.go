package gateway

import (
	"net/url"
	"strings"

	zerrors "github.com/zzenonn/zgate/internal/errors"
)

// DecodeKey turns the escaped path segment after the route prefix into a
// metadata key. Clients join key components with "," before encoding, so the
// commas become slashes again after percent-decoding.
func DecodeKey(escaped string) (string, error) {
	decoded, err := url.PathUnescape(escaped)
	if err != nil {
		return "", zerrors.ErrInvalidKey
	}
	key := strings.ReplaceAll(decoded, ",", "/")
	if key == "" {
		return "", zerrors.ErrInvalidKey
	}
	return key, nil
}

func keyFromPath(escapedPath string) (string, error) {
	rest, ok := strings.CutPrefix(escapedPath, FileRoutePrefix)
	if !ok {
		return "", zerrors.ErrInvalidKey
	}
	return DecodeKey(rest)
}
