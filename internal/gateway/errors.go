package gateway

import (
	"errors"
	"net/http"

	zerrors "github.com/zzenonn/zgate/internal/errors"
)

// statusFor maps a retrieval error to a status code and a short plain-text
// message safe to show to clients.
func statusFor(err error) (int, string) {
	var countErr *zerrors.ChunkCountError
	var backendErr *zerrors.BackendFailure

	switch {
	case errors.Is(err, zerrors.ErrInvalidKey):
		return http.StatusBadRequest, zerrors.ErrInvalidKey.Error()
	case errors.Is(err, zerrors.ErrRangeNotSatisfiable):
		return http.StatusRequestedRangeNotSatisfiable, ""
	case errors.Is(err, zerrors.ErrRecordNotFound):
		return http.StatusNotFound, zerrors.ErrRecordNotFound.Error()
	case errors.As(err, &countErr):
		return http.StatusInternalServerError, countErr.Error()
	case errors.Is(err, zerrors.ErrChunkIntegrity):
		return http.StatusInternalServerError, zerrors.ErrChunkIntegrity.Error()
	case errors.Is(err, zerrors.ErrNoChunks):
		return http.StatusInternalServerError, zerrors.ErrNoChunks.Error()
	case errors.Is(err, zerrors.ErrInvalidChunks):
		return http.StatusInternalServerError, zerrors.ErrInvalidChunks.Error()
	case errors.Is(err, zerrors.ErrInvalidChannel):
		return http.StatusInternalServerError, zerrors.ErrInvalidChannel.Error()
	case errors.Is(err, zerrors.ErrBucketObjectMissing):
		return http.StatusInternalServerError, zerrors.ErrBucketObjectMissing.Error()
	case errors.Is(err, zerrors.ErrChannelUnavailable):
		return http.StatusInternalServerError, zerrors.ErrChannelUnavailable.Error()
	case errors.As(err, &backendErr):
		return http.StatusInternalServerError, backendErr.PublicMessage()
	case errors.Is(err, zerrors.ErrBackend):
		return http.StatusInternalServerError, zerrors.ErrBackend.Error()
	default:
		return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
	}
}
