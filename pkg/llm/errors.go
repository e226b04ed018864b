package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	// ErrUnavailable reports that the backend could not be reached or refused
	// to serve the request.
	ErrUnavailable = errors.New("llm backend unavailable")

	// ErrTimeout reports that the backend did not answer in time.
	ErrTimeout = errors.New("llm backend timeout")
)

// APIError is a non-2xx answer from a backend.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// Is makes server-side failures and rate limiting match ErrUnavailable.
func (e *APIError) Is(target error) bool {
	return target == ErrUnavailable &&
		(e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests)
}

// TransportError classifies a failed round trip. Deadline and network
// timeouts become ErrTimeout, everything else ErrUnavailable. Caller
// cancellation is returned unchanged.
func TransportError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%s: %w: %w", op, ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
