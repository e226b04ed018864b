// Package engine is the embeddable insight client: it owns the store, the
// analysis pipeline, the LLM backend and the background insight scheduler.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/user/insightflow/internal/analysis"
	"github.com/user/insightflow/internal/backend"
	"github.com/user/insightflow/internal/delivery"
	"github.com/user/insightflow/internal/metrics"
	"github.com/user/insightflow/internal/scheduler"
	"github.com/user/insightflow/internal/types"
)

// ErrNotStarted is returned by every operation invoked while the client is
// stopped.
var ErrNotStarted = errors.New("insight engine not started")

// AutoInsightWindow is the window used by the periodic auto-insight job.
const AutoInsightWindow = "1h"

// Generator is the narrow LLM capability the client depends on.
type Generator interface {
	Name() string
	GenerateInsight(ctx context.Context, in *analysis.PreparedInsightInput, patterns []string, topic, customPrompt string) (*types.Insight, error)
	SummarizeObservations(ctx context.Context, observations []string, topic string) (string, error)
	Health(ctx context.Context) error
	Close() error
}

// ScheduledInsight generates an insight for Window on a cron schedule.
type ScheduledInsight struct {
	Name     string
	Schedule string
	Window   string
	Topic    string
}

// Options configures a Client. The zero value disables background work.
type Options struct {
	// AutoInsightInterval, when positive, generates and saves a 1h insight
	// on that period while the client is started.
	AutoInsightInterval time.Duration
	CustomWindows       map[string]time.Duration
	Scheduled           []ScheduledInsight
	Detector            []analysis.DetectorOption
	Metrics             *metrics.Metrics
}

// Client is the insight orchestrator. Its lifecycle is stopped -> started ->
// stopped; all other operations fail with ErrNotStarted while stopped.
type Client struct {
	store     types.Store
	gen       Generator
	agg       *analysis.Aggregator
	det       *analysis.Detector
	callbacks *delivery.Registry
	sched     *scheduler.Scheduler
	metrics   *metrics.Metrics

	// lifecycle serialises Start and Stop so a second Stop cannot close
	// resources while the first is still waiting for jobs.
	lifecycle sync.Mutex
	mu        sync.RWMutex
	started   bool
}

// New wires a client. Custom windows and schedules are validated here so a
// bad configuration fails before Start.
func New(store types.Store, gen Generator, opts Options) (*Client, error) {
	c := &Client{
		store:     store,
		gen:       gen,
		agg:       analysis.NewAggregator(),
		det:       analysis.NewDetector(opts.Detector...),
		callbacks: delivery.NewRegistry(),
		sched:     scheduler.New(),
		metrics:   opts.Metrics,
	}

	if o, ok := gen.(interface{ SetObserver(backend.Observer) }); ok && opts.Metrics != nil {
		o.SetObserver(opts.Metrics)
	}

	for name, d := range opts.CustomWindows {
		if err := c.agg.AddCustomWindow(name, d); err != nil {
			return nil, err
		}
	}

	if opts.AutoInsightInterval > 0 {
		if err := c.sched.Add(scheduler.Job{
			Name:     "auto-insight",
			Schedule: scheduler.Every(opts.AutoInsightInterval),
			Run:      c.insightJob("auto-insight", AutoInsightWindow, ""),
		}); err != nil {
			return nil, err
		}
	}
	for _, s := range opts.Scheduled {
		if _, _, err := c.agg.GetWindowBounds(s.Window, time.Now()); err != nil {
			return nil, fmt.Errorf("scheduled insight %q: %w", s.Name, err)
		}
		if err := c.sched.Add(scheduler.Job{
			Name:     s.Name,
			Schedule: s.Schedule,
			Run:      c.insightJob(s.Name, s.Window, s.Topic),
		}); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// insightJob returns a scheduler job that generates and saves an insight.
// Failures are logged and the next tick runs normally.
func (c *Client) insightJob(name, window, topic string) func(ctx context.Context) {
	return func(ctx context.Context) {
		insight, err := c.GetInsight(ctx, window, WithTopic(topic))
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("scheduled insight failed", "job", name, "window", window, "error", err)
			}
			return
		}
		slog.Info("scheduled insight generated", "job", name, "window", window,
			"insight_id", string(insight.ID), "confidence", insight.Confidence)
	}
}

// Start initialises the store and starts background jobs. Calling Start on a
// started client is a no-op.
func (c *Client) Start(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.started = true
	if c.sched.Len() > 0 {
		c.sched.Start(context.WithoutCancel(ctx))
	}
	slog.Info("insight engine started", "backend", c.gen.Name(), "jobs", c.sched.Len())
	return nil
}

// Stop cancels background jobs and waits for them, then closes the backend
// and the store. Calling Stop on a stopped client is a no-op.
func (c *Client) Stop() error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	if !c.Started() {
		return nil
	}

	// Jobs call back into the client, so wait for them without holding mu.
	c.sched.Stop()

	c.mu.Lock()
	c.started = false
	c.mu.Unlock()

	var errs []error
	if err := c.gen.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close backend: %w", err))
	}
	if err := c.store.Close(); err != nil {
		errs = append(errs, err)
	}
	slog.Info("insight engine stopped")
	return errors.Join(errs...)
}

// Started reports whether the client is started.
func (c *Client) Started() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.started
}

func (c *Client) ensureStarted() error {
	if !c.Started() {
		return ErrNotStarted
	}
	return nil
}

// OnInsight registers a callback invoked after every insight whose
// confidence is at least minConfidence. Callbacks run sequentially in
// registration order; their failures are logged and never returned.
func (c *Client) OnInsight(name string, minConfidence float64, h delivery.Handler) {
	c.callbacks.Register(name, minConfidence, h)
}

// Windows returns the registered window names.
func (c *Client) Windows() []string {
	return c.agg.Windows()
}

// Health checks the LLM backend.
func (c *Client) Health(ctx context.Context) error {
	if err := c.ensureStarted(); err != nil {
		return err
	}
	return c.gen.Health(ctx)
}

// BackendName reports the configured backend kind.
func (c *Client) BackendName() string {
	return c.gen.Name()
}
