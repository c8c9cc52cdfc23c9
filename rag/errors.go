package rag

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyQuestion is returned when a query has no question text.
var ErrEmptyQuestion = errors.New("question is empty")

// ConfigError reports invalid parameters. It is never retried.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

// NewConfigError creates a ConfigError.
func NewConfigError(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ModelFailure records why one model of a fallback chain failed.
type ModelFailure struct {
	Model string
	Err   error
}

// EmbeddingUnavailableError is returned when every model in the chain failed.
type EmbeddingUnavailableError struct {
	Failures []ModelFailure
}

func (e *EmbeddingUnavailableError) Error() string {
	if len(e.Failures) == 0 {
		return "embedding unavailable: no models configured"
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Model, f.Err))
	}
	return "embedding unavailable: " + strings.Join(parts, "; ")
}

// Unwrap returns the last model's error.
func (e *EmbeddingUnavailableError) Unwrap() error {
	if len(e.Failures) == 0 {
		return nil
	}
	return e.Failures[len(e.Failures)-1].Err
}

// IndexWriteError reports vector records that could not be persisted after retries.
type IndexWriteError struct {
	Namespace string
	Unwritten []string
	Err       error
}

func (e *IndexWriteError) Error() string {
	return fmt.Sprintf("index write to %q failed for %d records: %v", e.Namespace, len(e.Unwritten), e.Err)
}

func (e *IndexWriteError) Unwrap() error {
	return e.Err
}

// RetrievalDegradedError describes a query answered with only one retrieval
// path. It is reported alongside a result, not instead of one.
type RetrievalDegradedError struct {
	VectorErr error
	GraphErr  error
}

func (e *RetrievalDegradedError) Error() string {
	switch {
	case e.VectorErr != nil && e.GraphErr != nil:
		return fmt.Sprintf("retrieval failed: vector: %v; graph: %v", e.VectorErr, e.GraphErr)
	case e.VectorErr != nil:
		return fmt.Sprintf("vector retrieval failed: %v", e.VectorErr)
	case e.GraphErr != nil:
		return fmt.Sprintf("graph retrieval failed: %v", e.GraphErr)
	}
	return "retrieval degraded"
}

// Unwrap returns the path errors that are set.
func (e *RetrievalDegradedError) Unwrap() []error {
	var errs []error
	if e.VectorErr != nil {
		errs = append(errs, e.VectorErr)
	}
	if e.GraphErr != nil {
		errs = append(errs, e.GraphErr)
	}
	return errs
}

// Warnings returns one message per failed path.
func (e *RetrievalDegradedError) Warnings() []string {
	var w []string
	if e.VectorErr != nil {
		w = append(w, "vector retrieval failed: "+e.VectorErr.Error())
	}
	if e.GraphErr != nil {
		w = append(w, "graph retrieval failed: "+e.GraphErr.Error())
	}
	return w
}

// GenerationError is returned when the chat-completion backend fails or
// returns a malformed response. Status is the upstream HTTP status if known.
type GenerationError struct {
	Status  int
	Message string
	Err     error
}

func (e *GenerationError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("generation failed (status %d): %s", e.Status, e.Message)
	}
	return "generation failed: " + e.Message
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}
