package service

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the embedding pipeline and search path.
var (
	// ErrEmptyContent means a record rendered to nothing embeddable.
	// Callers skip the record; the queue drops the task without retrying.
	ErrEmptyContent = errors.New("record has no embeddable content")

	// ErrInvalidVector means an embedding failed dimensionality or
	// finiteness validation and must not be persisted.
	ErrInvalidVector = errors.New("embedding vector failed validation")

	// ErrNoAPIKey means an external call was attempted without a credential.
	ErrNoAPIKey = errors.New("no API key configured")

	// ErrSearchUnavailable means the search query itself could not be
	// embedded. The request fails; callers surface "search temporarily
	// unavailable" rather than an empty result set.
	ErrSearchUnavailable = errors.New("search temporarily unavailable")
)

// EmbeddingServiceError wraps an upstream embedding service failure.
// It is always surfaced to the caller: the queue retries it, the live
// search path converts it into ErrSearchUnavailable.
type EmbeddingServiceError struct {
	Err error
}

// Error implements the error interface.
func (e *EmbeddingServiceError) Error() string {
	return fmt.Sprintf("embedding service: %v", e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *EmbeddingServiceError) Unwrap() error {
	return e.Err
}
