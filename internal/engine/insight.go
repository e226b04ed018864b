package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/user/insightflow/internal/analysis"
	"github.com/user/insightflow/internal/types"
)

const (
	// NoEventsSummary is the summary of an insight over an empty window.
	NoEventsSummary = "no events in window"
	// NoSessionEventsSummary is returned when a session has no events.
	NoSessionEventsSummary = "no events recorded for this session"

	sessionLookback = 30 * 24 * time.Hour
	sessionLimit    = 500
	insightLimit    = types.DefaultEventLimit
)

type insightRequest struct {
	sources      []string
	topic        string
	sessionID    types.SessionID
	customPrompt string
	save         bool
}

// InsightOption customises a GetInsight call.
type InsightOption func(*insightRequest)

// WithSources restricts the analysed events to the given sources.
func WithSources(sources ...string) InsightOption {
	return func(r *insightRequest) { r.sources = append(r.sources, sources...) }
}

// WithTopic sets the focus topic passed to the model.
func WithTopic(topic string) InsightOption {
	return func(r *insightRequest) { r.topic = topic }
}

// ForSession restricts the analysed events to one session.
func ForSession(id types.SessionID) InsightOption {
	return func(r *insightRequest) { r.sessionID = id }
}

// WithCustomPrompt appends extra instructions to the insight prompt.
func WithCustomPrompt(p string) InsightOption {
	return func(r *insightRequest) { r.customPrompt = p }
}

// WithoutSave skips persisting the generated insight.
func WithoutSave() InsightOption {
	return func(r *insightRequest) { r.save = false }
}

// GetEvents returns events inside the named window, newest first.
func (c *Client) GetEvents(ctx context.Context, window string, q types.EventFilter) ([]*types.Event, error) {
	if err := c.ensureStarted(); err != nil {
		return nil, err
	}
	start, end, err := c.agg.GetWindowBounds(window, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	q.Start, q.End = start, end
	return c.store.GetEvents(ctx, q)
}

// GetStatistics returns hourly grouped counts for the named window.
func (c *Client) GetStatistics(ctx context.Context, window string) (*types.Aggregate, error) {
	if err := c.ensureStarted(); err != nil {
		return nil, err
	}
	start, end, err := c.agg.GetWindowBounds(window, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return c.store.AggregateEvents(ctx, start, end, types.GroupByHour)
}

// GetInsight analyses the events of a window and asks the backend for an
// insight. An empty window yields a canned insight without a backend call.
// The insight is saved unless WithoutSave is given, then every callback
// whose threshold it meets is invoked.
func (c *Client) GetInsight(ctx context.Context, window string, opts ...InsightOption) (*types.Insight, error) {
	if err := c.ensureStarted(); err != nil {
		return nil, err
	}
	req := insightRequest{save: true}
	for _, opt := range opts {
		opt(&req)
	}

	start, end, err := c.agg.GetWindowBounds(window, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	events, err := c.store.GetEvents(ctx, types.EventFilter{
		Start:     start,
		End:       end,
		Sources:   req.sources,
		SessionID: req.sessionID,
		Limit:     insightLimit,
	})
	if err != nil {
		c.metrics.InsightFailed(window)
		return nil, err
	}

	if len(events) == 0 {
		insight := types.NewInsight(window)
		insight.WindowStart, insight.WindowEnd = &start, &end
		insight.Summary = NoEventsSummary
		insight.Confidence = 1.0
		c.metrics.InsightEmpty(window)
		c.deliver(ctx, insight)
		return insight, nil
	}

	input, err := c.agg.PrepareForLLM(events, window)
	if err != nil {
		c.metrics.InsightFailed(window)
		return nil, err
	}
	patterns := c.det.DetectAll(events)
	for _, p := range patterns {
		c.metrics.PatternDetected(string(p.Type))
	}
	slog.Debug("generating insight", "window", window, "events", len(events),
		"patterns", len(patterns), "summary", analysis.SummarizePatterns(patterns))

	insight, err := c.gen.GenerateInsight(ctx, input, analysis.Descriptions(patterns), req.topic, req.customPrompt)
	if err != nil {
		c.metrics.InsightFailed(window)
		return nil, fmt.Errorf("generate %s insight: %w", window, err)
	}
	insight.SourceEventsCount = len(events)
	insight.SourceEventIDs = provenance(events)
	if insight.Metadata == nil {
		insight.Metadata = map[string]any{}
	}
	if req.topic != "" {
		insight.Metadata["topic"] = req.topic
	}
	if req.sessionID != "" {
		insight.Metadata["session_id"] = string(req.sessionID)
	}

	if req.save {
		if _, err := c.store.StoreInsight(ctx, insight); err != nil {
			c.metrics.InsightFailed(window)
			return nil, err
		}
	}
	c.metrics.InsightGenerated(window, insight.Confidence)
	c.deliver(ctx, insight)
	return insight, nil
}

func (c *Client) deliver(ctx context.Context, insight *types.Insight) {
	res := c.callbacks.Deliver(ctx, insight)
	c.metrics.CallbacksRun(res.Delivered, res.Skipped, res.Failed)
}

func provenance(events []*types.Event) []types.EventID {
	n := min(len(events), types.MaxSourceEventIDs)
	ids := make([]types.EventID, n)
	for i := range n {
		ids[i] = events[i].ID
	}
	return ids
}

// GetInsightsHistory returns stored insights, newest first.
func (c *Client) GetInsightsHistory(ctx context.Context, filter types.InsightFilter) ([]*types.Insight, error) {
	if err := c.ensureStarted(); err != nil {
		return nil, err
	}
	if filter.Window != "" {
		if _, _, err := c.agg.GetWindowBounds(filter.Window, time.Now()); err != nil {
			return nil, err
		}
	}
	return c.store.GetInsights(ctx, filter)
}

// SummarizeSession asks the backend for a narrative summary of a session's
// event contents. A session without content yields NoSessionEventsSummary;
// an unknown session id fails with state.ErrNotFound.
func (c *Client) SummarizeSession(ctx context.Context, id types.SessionID, topic string) (string, error) {
	if err := c.ensureStarted(); err != nil {
		return "", err
	}
	if _, err := c.store.GetSession(ctx, id); err != nil {
		return "", err
	}
	events, err := c.store.GetEvents(ctx, types.EventFilter{
		Start:     time.Now().UTC().Add(-sessionLookback),
		SessionID: id,
		Limit:     sessionLimit,
	})
	if err != nil {
		return "", err
	}
	if len(events) == 0 {
		return NoSessionEventsSummary, nil
	}

	// Oldest first reads as a narrative.
	observations := make([]string, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Content != "" {
			observations = append(observations, events[i].Content)
		}
	}
	return c.gen.SummarizeObservations(ctx, observations, topic)
}
