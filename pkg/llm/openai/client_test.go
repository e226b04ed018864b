package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/user/insightflow/pkg/llm"
)

func TestOpenAIClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Error("missing or invalid auth header")
		}

		resp := map[string]any{
			"model": "qwen2.5-7b",
			"choices": []map[string]any{
				{
					"message": map[string]any{
						"role":    "assistant",
						"content": "test response",
					},
				},
			},
			"usage": map[string]any{
				"prompt_tokens":     10,
				"completion_tokens": 5,
				"total_tokens":      15,
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := New(&llm.Config{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Model:   "local",
	})

	resp, err := client.Complete(context.Background(), []llm.Message{
		{Role: llm.RoleUser, Content: "hello"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "test response" {
		t.Errorf("expected 'test response', got %s", resp.Content)
	}
	if resp.Model != "qwen2.5-7b" {
		t.Errorf("expected model 'qwen2.5-7b', got %s", resp.Model)
	}
	if resp.Usage.InputTokens != 10 {
		t.Errorf("expected 10 input tokens, got %d", resp.Usage.InputTokens)
	}
	if resp.Usage.OutputTokens != 5 {
		t.Errorf("expected 5 output tokens, got %d", resp.Usage.OutputTokens)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("expected 15 total tokens, got %d", resp.Usage.TotalTokens)
	}
}

func TestOpenAIClientRequestFormat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("expected path '/v1/chat/completions', got %q", r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected Content-Type 'application/json', got %q", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("Authorization") != "" {
			t.Errorf("expected no auth header without api key, got %q", r.Header.Get("Authorization"))
		}

		body, _ := io.ReadAll(r.Body)
		var reqBody map[string]any
		json.Unmarshal(body, &reqBody)

		if reqBody["model"] != "local" {
			t.Errorf("expected model 'local', got %v", reqBody["model"])
		}
		if reqBody["stream"] != false {
			t.Errorf("expected stream=false, got %v", reqBody["stream"])
		}
		if reqBody["max_tokens"] != float64(1000) {
			t.Errorf("expected max_tokens 1000, got %v", reqBody["max_tokens"])
		}

		messages, ok := reqBody["messages"].([]any)
		if !ok || len(messages) != 2 {
			t.Errorf("expected 2 messages, got %v", reqBody["messages"])
		}

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "ok"}},
			},
		})
	}))
	defer server.Close()

	client := New(&llm.Config{
		BaseURL:     server.URL + "/",
		Model:       "local",
		MaxTokens:   1000,
		Temperature: 0.7,
	})

	_, err := client.Complete(context.Background(), []llm.Message{
		{Role: llm.RoleSystem, Content: "you analyse events"},
		{Role: llm.RoleUser, Content: "test"},
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestOpenAIClientAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"message":"loading model"}}`))
	}))
	defer server.Close()

	client := New(&llm.Config{BaseURL: server.URL})

	_, err := client.Complete(context.Background(), []llm.Message{
		{Role: llm.RoleUser, Content: "hello"},
	})
	if err == nil {
		t.Fatal("expected error for 503 response")
	}
	var apiErr *llm.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected APIError with status 503, got %v", err)
	}
	if !errors.Is(err, llm.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestOpenAIClientUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := New(&llm.Config{BaseURL: url})
	_, err := client.Complete(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}})
	if !errors.Is(err, llm.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestOpenAIClientTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := New(&llm.Config{BaseURL: server.URL, Timeout: 50 * time.Millisecond})
	_, err := client.Complete(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}})
	if !errors.Is(err, llm.ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

func TestOpenAIClientHealth(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("expected path '/health', got %q", r.URL.Path)
		}
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := New(&llm.Config{BaseURL: server.URL})
	defer client.Close()

	if err := client.Health(context.Background()); err != nil {
		t.Fatalf("expected healthy, got %v", err)
	}
	healthy.Store(false)
	if err := client.Health(context.Background()); err == nil {
		t.Fatal("expected error for unhealthy server")
	}
}

func TestOpenAIClientProviderInterface(t *testing.T) {
	// Verify Client satisfies the llm.Provider interface at compile time.
	var _ llm.Provider = (*Client)(nil)
	if New(&llm.Config{}).baseURL != DefaultBaseURL {
		t.Error("expected default base url")
	}
}
