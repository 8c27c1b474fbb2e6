package llm

import (
	"fmt"
	"time"
)

// EmbeddingProviderError reports that the embedding service failed or returned unusable vectors.
type EmbeddingProviderError struct {
	Provider string
	Err      error
}

func (e *EmbeddingProviderError) Error() string {
	return fmt.Sprintf("embedding provider %s failed: %v", e.Provider, e.Err)
}

func (e *EmbeddingProviderError) Unwrap() error {
	return e.Err
}

// GenerationProviderError reports that the text generation service failed.
type GenerationProviderError struct {
	Provider string
	Err      error
}

func (e *GenerationProviderError) Error() string {
	return fmt.Sprintf("generation provider %s failed: %v", e.Provider, e.Err)
}

func (e *GenerationProviderError) Unwrap() error {
	return e.Err
}

// GenerationTimeoutError reports a generation call that did not finish within Timeout.
type GenerationTimeoutError struct {
	Timeout time.Duration
	Err     error
}

func (e *GenerationTimeoutError) Error() string {
	return fmt.Sprintf("generation timed out after %s", e.Timeout)
}

func (e *GenerationTimeoutError) Unwrap() error {
	return e.Err
}
