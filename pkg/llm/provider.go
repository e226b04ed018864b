package llm

import (
	"context"
	"time"
)

// Provider defines the interface for interacting with LLM backends.
// Implementations handle protocol-specific details such as request formatting,
// authentication, and response parsing. Transport failures are reported as
// errors matching ErrUnavailable or ErrTimeout.
type Provider interface {
	// Name identifies the backend kind, e.g. "local" or "remote".
	Name() string

	// Complete sends a chat completion request and returns the full response.
	Complete(ctx context.Context, messages []Message) (*Response, error)

	// Health reports whether the backend is reachable.
	Health(ctx context.Context) error

	// Close releases idle connections held by the provider.
	Close() error
}

// Config holds common configuration for LLM providers.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
}
