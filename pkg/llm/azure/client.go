// Package azure is the hosted backend: Azure OpenAI deployments, or the
// public OpenAI API when no Azure endpoint is configured.
package azure

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/user/insightflow/pkg/llm"
)

const (
	DefaultAPIVersion = "2024-02-01"
	DefaultTimeout    = 60 * time.Second
	DefaultModel      = "gpt-4o-mini"
)

// Config selects and authenticates the hosted deployment. Endpoint selects
// Azure; otherwise BaseURL (default api.openai.com) is used.
type Config struct {
	Endpoint    string
	BaseURL     string
	APIKey      string
	Deployment  string
	APIVersion  string
	Model       string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
}

// Client implements llm.Provider on top of go-openai.
type Client struct {
	cfg        Config
	model      string
	httpClient *http.Client
	api        *openai.Client
}

func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("remote backend: api key is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := &http.Client{Timeout: timeout}

	var oc openai.ClientConfig
	model := cfg.Model
	if cfg.Endpoint != "" {
		if cfg.Deployment == "" {
			return nil, errors.New("remote backend: deployment is required with an azure endpoint")
		}
		oc = openai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
		oc.APIVersion = cfg.APIVersion
		if oc.APIVersion == "" {
			oc.APIVersion = DefaultAPIVersion
		}
		deployment := cfg.Deployment
		oc.AzureModelMapperFunc = func(string) string { return deployment }
		if model == "" {
			model = deployment
		}
	} else {
		oc = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			oc.BaseURL = cfg.BaseURL
		}
		if model == "" {
			model = DefaultModel
		}
	}
	oc.HTTPClient = httpClient

	return &Client{
		cfg:        cfg,
		model:      model,
		httpClient: httpClient,
		api:        openai.NewClientWithConfig(oc),
	}, nil
}

func (c *Client) Name() string { return "remote" }

// Complete sends a chat completion request and returns the full response.
func (c *Client) Complete(ctx context.Context, messages []llm.Message) (*llm.Response, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, classify("chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	return &llm.Response{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
		Usage: llm.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}, nil
}

// Health lists models, which every deployment answers cheaply.
func (c *Client) Health(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return classify("list models", err)
	}
	return nil
}

func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// classify maps go-openai errors onto the llm error taxonomy.
func classify(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w", op, &llm.APIError{StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message})
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return fmt.Errorf("%s: %w", op, &llm.APIError{StatusCode: reqErr.HTTPStatusCode, Body: reqErr.Error()})
	}
	return llm.TransportError(op, err)
}
