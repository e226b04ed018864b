// Package backend turns prepared window data into insights using an LLM
// provider, and owns prompt construction and response parsing.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/user/insightflow/internal/analysis"
	ctxengine "github.com/user/insightflow/internal/context"
	"github.com/user/insightflow/internal/types"
	"github.com/user/insightflow/pkg/llm"
)

// NoObservations is returned by SummarizeObservations for empty input.
const NoObservations = "no observations to summarise"

// Observer receives the outcome of every provider call.
type Observer interface {
	ObserveBackendCall(provider, op string, d time.Duration, err error)
}

// Backend implements insight generation and observation summaries on top of
// an llm.Provider. Concurrent provider calls are bounded by a semaphore.
type Backend struct {
	provider llm.Provider
	prompts  *ctxengine.Engine
	sem      *semaphore.Weighted
	observer Observer
}

// NewBackend wraps provider. maxConcurrent <= 0 means 1.
func NewBackend(provider llm.Provider, prompts *ctxengine.Engine, maxConcurrent int64) *Backend {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Backend{
		provider: provider,
		prompts:  prompts,
		sem:      semaphore.NewWeighted(maxConcurrent),
	}
}

// SetObserver installs a call observer, typically the metrics collector.
func (b *Backend) SetObserver(o Observer) {
	b.observer = o
}

// Name reports the provider kind.
func (b *Backend) Name() string {
	return b.provider.Name()
}

// GenerateInsight asks the provider for an insight over the prepared window.
// A malformed answer still yields an insight; only transport and API
// failures return an error.
func (b *Backend) GenerateInsight(ctx context.Context, in *analysis.PreparedInsightInput, patterns []string, topic, customPrompt string) (*types.Insight, error) {
	messages, err := b.prompts.BuildInsightPrompt(in, patterns, topic, customPrompt)
	if err != nil {
		return nil, err
	}

	raw, err := b.complete(ctx, "generate_insight", messages)
	if err != nil {
		return nil, err
	}

	parsed := ParseInsightResponse(raw)
	if !parsed.Structured {
		slog.Warn("backend returned unstructured insight", "provider", b.provider.Name(), "window", in.Window)
	}

	start, end := in.Start, in.End
	insight := types.NewInsight(in.Window)
	insight.WindowStart = &start
	insight.WindowEnd = &end
	insight.Summary = parsed.Summary
	insight.Patterns = parsed.Patterns
	insight.Recommendations = parsed.Recommendations
	insight.Confidence = parsed.Confidence
	insight.SourceEventsCount = in.Statistics.TotalEvents
	insight.Metadata = map[string]any{
		"raw_response": truncateRaw(raw),
		"provider":     b.provider.Name(),
	}
	return insight, nil
}

// SummarizeObservations condenses free-text observations into a summary.
func (b *Backend) SummarizeObservations(ctx context.Context, observations []string, topic string) (string, error) {
	if len(observations) == 0 {
		return NoObservations, nil
	}
	messages, err := b.prompts.BuildSummaryPrompt(observations, topic)
	if err != nil {
		return "", err
	}
	return b.complete(ctx, "summarize", messages)
}

// Health checks the provider.
func (b *Backend) Health(ctx context.Context) error {
	return b.provider.Health(ctx)
}

// Close releases provider resources.
func (b *Backend) Close() error {
	return b.provider.Close()
}

func (b *Backend) complete(ctx context.Context, op string, messages []llm.Message) (string, error) {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer b.sem.Release(1)

	started := time.Now()
	resp, err := b.provider.Complete(ctx, messages)
	if b.observer != nil {
		b.observer.ObserveBackendCall(b.provider.Name(), op, time.Since(started), err)
	}
	if err != nil {
		return "", fmt.Errorf("%s via %s backend: %w", op, b.provider.Name(), err)
	}
	slog.Debug("backend call complete",
		"provider", b.provider.Name(),
		"op", op,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"duration", time.Since(started),
	)
	return resp.Content, nil
}
