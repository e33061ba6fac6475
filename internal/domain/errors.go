package domain

import (
	"errors"
	"fmt"
)

// Provider errors.
var (
	// ErrTransientProvider is a transport hiccup or quota failure of an
	// external service. The unit of work is skipped, or retried by the
	// crawl controller.
	ErrTransientProvider = errors.New("transient provider error")

	// ErrRateLimited is a rate-limit signal from a remote service.
	ErrRateLimited = fmt.Errorf("rate limited: %w", ErrTransientProvider)

	// ErrRetriesExhausted means a configured rate-limit retry cap was hit.
	ErrRetriesExhausted = errors.New("rate-limit retries exhausted")
)

// Input errors.
var (
	// ErrMalformedInput is bad HTML, a bad JSON record or a bad payload.
	ErrMalformedInput = errors.New("malformed input")

	// ErrInvalidImage is an image payload that is not decodable base64 or
	// not a recognized image format.
	ErrInvalidImage = fmt.Errorf("invalid image: %w", ErrMalformedInput)
)

// Contract errors are fatal to the current request or unit and are never
// replaced with placeholder data.
var (
	ErrProviderContract = errors.New("provider contract violation")

	ErrDimensionMismatch = fmt.Errorf("embedding dimension mismatch: %w", ErrProviderContract)

	ErrNoEmbedding = fmt.Errorf("no embedding returned: %w", ErrProviderContract)

	ErrNoCompletion = fmt.Errorf("no completion returned: %w", ErrProviderContract)
)
