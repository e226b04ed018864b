package backend

import (
	"fmt"
	"time"

	ctxengine "github.com/user/insightflow/internal/context"
	"github.com/user/insightflow/pkg/llm"
	"github.com/user/insightflow/pkg/llm/azure"
	"github.com/user/insightflow/pkg/llm/openai"
)

// Kind selects the backend implementation.
type Kind string

const (
	KindRemote Kind = "remote"
	KindLocal  Kind = "local"
)

// ParseKind validates a configured backend kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindRemote, KindLocal:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown backend kind %q (want %q or %q)", s, KindRemote, KindLocal)
	}
}

// RemoteOptions configures the hosted backend.
type RemoteOptions struct {
	Endpoint      string
	BaseURL       string
	APIKey        string
	Deployment    string
	APIVersion    string
	Model         string
	MaxTokens     int
	Temperature   float32
	Timeout       time.Duration
	ContextWindow int
}

// LocalOptions configures the self-hosted backend.
type LocalOptions struct {
	BaseURL       string
	Model         string
	MaxTokens     int
	Temperature   float32
	Timeout       time.Duration
	ContextWindow int
}

// Options is a tagged union: only the section named by Kind is read.
type Options struct {
	Kind          Kind
	MaxConcurrent int64
	Remote        RemoteOptions
	Local         LocalOptions
}

const (
	defaultRemoteContext = 16000
	defaultLocalContext  = 4096
	defaultMaxTokens     = 1000
)

// New resolves opts into a Backend once at construction.
func New(opts Options) (*Backend, error) {
	var (
		provider llm.Provider
		prompts  *ctxengine.Engine
	)
	switch opts.Kind {
	case KindRemote:
		r := opts.Remote
		c, err := azure.New(azure.Config{
			Endpoint:    r.Endpoint,
			BaseURL:     r.BaseURL,
			APIKey:      r.APIKey,
			Deployment:  r.Deployment,
			APIVersion:  r.APIVersion,
			Model:       r.Model,
			MaxTokens:   r.MaxTokens,
			Temperature: r.Temperature,
			Timeout:     r.Timeout,
		})
		if err != nil {
			return nil, err
		}
		provider = c
		prompts = ctxengine.New(tokenizerModel(r.Model), orDefault(r.ContextWindow, defaultRemoteContext),
			orDefault(r.MaxTokens, defaultMaxTokens), ctxengine.RemoteLimits)

	case KindLocal:
		l := opts.Local
		provider = openai.New(&llm.Config{
			BaseURL:     l.BaseURL,
			Model:       l.Model,
			MaxTokens:   l.MaxTokens,
			Temperature: l.Temperature,
			Timeout:     l.Timeout,
		})
		prompts = ctxengine.New(tokenizerModel(l.Model), orDefault(l.ContextWindow, defaultLocalContext),
			orDefault(l.MaxTokens, defaultMaxTokens), ctxengine.LocalLimits)

	default:
		_, err := ParseKind(string(opts.Kind))
		return nil, err
	}

	return NewBackend(provider, prompts, opts.MaxConcurrent), nil
}

// tokenizerModel picks the tokenizer for budget estimates. Self-hosted
// models have no tiktoken encoding and are counted with cl100k.
func tokenizerModel(model string) string {
	if model == "" || model == "local" {
		return "gpt-4"
	}
	return model
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
