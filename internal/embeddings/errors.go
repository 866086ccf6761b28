// Package embeddings turns text into vectors through an external backend.
package embeddings

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyVector reports a response that carried a zero-length vector.
	ErrEmptyVector = errors.New("empty embedding vector")
	// ErrUnrecognizedShape reports a response body matching no known layout.
	ErrUnrecognizedShape = errors.New("unrecognized embedding response shape")
	// ErrCountMismatch reports a response with a different number of vectors than inputs.
	ErrCountMismatch = errors.New("embedding count does not match input count")
)

// EmbeddingError is returned when the backend is unreachable or answers with
// something that is not a usable vector.
type EmbeddingError struct {
	Reason string
	Err    error
}

func (e *EmbeddingError) Error() string {
	if e.Err == nil {
		return "embedding: " + e.Reason
	}
	return fmt.Sprintf("embedding: %s: %v", e.Reason, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }
