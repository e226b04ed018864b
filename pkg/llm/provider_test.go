package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
)

// MockProvider is a test double that satisfies the Provider interface.
type MockProvider struct {
	CompleteFunc func(ctx context.Context, messages []Message) (*Response, error)
	HealthErr    error
	Closed       bool
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) Complete(ctx context.Context, messages []Message) (*Response, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, messages)
	}
	return &Response{Content: "mock response"}, nil
}

func (m *MockProvider) Health(ctx context.Context) error { return m.HealthErr }

func (m *MockProvider) Close() error {
	m.Closed = true
	return nil
}

func TestProviderInterface(t *testing.T) {
	var provider Provider = &MockProvider{}
	ctx := context.Background()
	messages := []Message{{Role: RoleUser, Content: "test"}}

	resp, err := provider.Complete(ctx, messages)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content == "" {
		t.Error("expected non-empty response")
	}
	if err := provider.Health(ctx); err != nil {
		t.Errorf("expected healthy mock, got %v", err)
	}
	if err := provider.Close(); err != nil {
		t.Fatal(err)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestTransportError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"deadline", context.DeadlineExceeded, ErrTimeout},
		{"net timeout", fmt.Errorf("dial: %w", timeoutErr{}), ErrTimeout},
		{"refused", errors.New("connection refused"), ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TransportError("complete", tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("expected original error to be preserved, got %v", got)
			}
		})
	}

	if got := TransportError("complete", context.Canceled); got != context.Canceled {
		t.Errorf("expected cancellation unchanged, got %v", got)
	}
	if TransportError("complete", nil) != nil {
		t.Error("expected nil for nil error")
	}
}

func TestAPIErrorIs(t *testing.T) {
	if !errors.Is(&APIError{StatusCode: http.StatusBadGateway}, ErrUnavailable) {
		t.Error("expected 502 to match ErrUnavailable")
	}
	if !errors.Is(fmt.Errorf("wrap: %w", &APIError{StatusCode: http.StatusTooManyRequests}), ErrUnavailable) {
		t.Error("expected 429 to match ErrUnavailable")
	}
	if errors.Is(&APIError{StatusCode: http.StatusBadRequest}, ErrUnavailable) {
		t.Error("expected 400 not to match ErrUnavailable")
	}
	if errors.Is(&APIError{StatusCode: http.StatusBadGateway}, ErrTimeout) {
		t.Error("expected 502 not to match ErrTimeout")
	}
}
