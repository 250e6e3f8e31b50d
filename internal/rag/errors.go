package rag

import (
	"errors"
	"fmt"
)

// ErrNotInitialized is returned when Query or IndexDocuments runs before
// Initialize.
var ErrNotInitialized = errors.New("rag: chatbot not initialized")

// ErrDimensionMismatch is returned when an embedding's length does not match
// the collection's dimensionality. Switching embedding models requires a
// fresh collection; this is never silently handled.
var ErrDimensionMismatch = errors.New("rag: embedding dimension mismatch")

// ProviderError wraps a failure from an external collaborator (embedding,
// vector index, or generation). Transient failures are retried at most once
// by the pipeline; the rest surface immediately.
type ProviderError struct {
	Op        string
	Err       error
	Transient bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("rag: %s failed: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
