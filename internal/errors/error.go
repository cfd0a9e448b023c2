package errors

import (
	"errors"
	"fmt"
)

var (
	ErrMissingRequiredFields = errors.New("missing required fields")

	ErrInvalidKey          = errors.New("decode image id failed")
	ErrRecordNotFound      = errors.New("image not found")
	ErrRangeNotSatisfiable = errors.New("range not satisfiable")

	ErrInvalidChannel      = errors.New("invalid channel")
	ErrInvalidChunks       = errors.New("invalid chunks data")
	ErrNoChunks            = errors.New("no chunks found for this file")
	ErrChunkIntegrity      = errors.New("chunk list integrity violation")
	ErrChunkFetch          = errors.New("failed to fetch chunk")
	ErrChannelUnavailable  = errors.New("channel is not configured")
	ErrBucketObjectMissing = errors.New("failed to fetch file")
	ErrBackend             = errors.New("backend request failed")
)

// ChunkCountError reports a chunk list whose length differs from the declared count.
type ChunkCountError struct {
	Expected int
	Actual   int
}

func (e *ChunkCountError) Error() string {
	return fmt.Sprintf("missing chunks, expected %d, got %d", e.Expected, e.Actual)
}

func (e *ChunkCountError) Unwrap() error {
	return ErrChunkIntegrity
}

// BackendFailure is a backend error that is not the client's fault. It matches
// ErrBackend as well as the underlying error.
type BackendFailure struct {
	Backend string
	Err     error
}

func (e *BackendFailure) Error() string {
	return fmt.Sprintf("failed to fetch from %s: %v", e.Backend, e.Err)
}

func (e *BackendFailure) Unwrap() []error {
	return []error{ErrBackend, e.Err}
}

// PublicMessage is the response body sent to clients, without backend details.
func (e *BackendFailure) PublicMessage() string {
	return "Failed to fetch from " + e.Backend
}

// BackendError wraps a backend failure so that callers can match ErrBackend.
func BackendError(backend string, err error) error {
	return &BackendFailure{Backend: backend, Err: err}
}

func ConfigNotSetError(config string) error {
	return fmt.Errorf("the %s configuration value must be set", config)
}
