package main

import (
	"errors"
	"fmt"
)

// Sentinel errors for paper ingestion. Callers branch with errors.Is.
var (
	// ErrNoExtractableText means the source file was unreadable or
	// yielded only whitespace.
	ErrNoExtractableText = errors.New("no extractable text found in paper")

	// ErrUnsupportedFormat means the file extension is not handled,
	// or a PDF was given to a feature that needs editable LaTeX source.
	ErrUnsupportedFormat = errors.New("unsupported paper format")
)

// ModelCallError reports a model call that kept failing after the full
// retry budget: network failure, a non-success status, or a response
// with no usable content. It wraps the last cause.
type ModelCallError struct {
	Provider string
	Model    string
	Attempts int
	Err      error
}

func (e *ModelCallError) Error() string {
	return fmt.Sprintf("model call failed after %d attempt(s) (provider=%s model=%s): %v",
		e.Attempts, e.Provider, e.Model, e.Err)
}

func (e *ModelCallError) Unwrap() error { return e.Err }
