package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/insightflow/internal/analysis"
	"github.com/user/insightflow/internal/metrics"
	"github.com/user/insightflow/internal/state"
	"github.com/user/insightflow/internal/types"
	"github.com/user/insightflow/pkg/llm"
)

type fakeGenerator struct {
	mu         sync.Mutex
	calls      atomic.Int32
	closed     atomic.Bool
	confidence float64
	err        error
	lastInput  *analysis.PreparedInsightInput
	lastTopic  string
	observed   []string
}

func (f *fakeGenerator) Name() string { return "fake" }

func (f *fakeGenerator) GenerateInsight(_ context.Context, in *analysis.PreparedInsightInput, patterns []string, topic, _ string) (*types.Insight, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.lastInput, f.lastTopic = in, topic
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	ins := types.NewInsight(in.Window)
	ins.Summary = "activity is steady"
	ins.Patterns = patterns
	ins.Confidence = f.confidence
	return ins, nil
}

func (f *fakeGenerator) SummarizeObservations(_ context.Context, obs []string, _ string) (string, error) {
	f.mu.Lock()
	f.observed = obs
	f.mu.Unlock()
	return "session summary", nil
}

func (f *fakeGenerator) Health(context.Context) error { return f.err }

func (f *fakeGenerator) Close() error {
	f.closed.Store(true)
	return nil
}

func newTestClient(t *testing.T, gen *fakeGenerator, opts Options) *Client {
	t.Helper()
	store := state.NewStore(filepath.Join(t.TempDir(), "insightflow.db"))
	c, err := New(store, gen, opts)
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { _ = c.Stop() })
	return c
}

func TestOperationsRequireStart(t *testing.T) {
	store := state.NewStore(filepath.Join(t.TempDir(), "insightflow.db"))
	c, err := New(store, &fakeGenerator{}, Options{})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.LogObservation(ctx, "cam", "hello")
	assert.ErrorIs(t, err, ErrNotStarted)
	_, err = c.GetInsight(ctx, "1h")
	assert.ErrorIs(t, err, ErrNotStarted)
	_, err = c.GetStatistics(ctx, "1h")
	assert.ErrorIs(t, err, ErrNotStarted)
	_, err = c.StartSession(ctx, "cam", "")
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestLifecycleIsIdempotent(t *testing.T) {
	gen := &fakeGenerator{}
	store := state.NewStore(filepath.Join(t.TempDir(), "insightflow.db"))
	c, err := New(store, gen, Options{})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.Start(ctx))
	assert.True(t, c.Started())

	require.NoError(t, c.Stop())
	require.NoError(t, c.Stop())
	assert.False(t, c.Started())
	assert.True(t, gen.closed.Load())

	_, err = c.LogChat(ctx, "user", "hi")
	assert.ErrorIs(t, err, ErrNotStarted)

	require.NoError(t, c.Start(ctx))
	_, err = c.LogChat(ctx, "user", "hi")
	assert.NoError(t, err)
	require.NoError(t, c.Stop())
}

func TestLogEventValidation(t *testing.T) {
	c := newTestClient(t, &fakeGenerator{}, Options{})
	ctx := context.Background()

	_, err := c.LogEvent(ctx, &types.Event{Type: "bogus", Source: "x"})
	assert.ErrorIs(t, err, ErrInvalidEvent)
	_, err = c.LogEvent(ctx, nil)
	assert.ErrorIs(t, err, ErrInvalidEvent)

	anon, err := c.LogEvent(ctx, &types.Event{Type: types.EventCustom, Source: ""})
	require.NoError(t, err)
	got, err := c.GetEvents(ctx, "1h", types.EventFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, anon, got[0].ID)
	assert.Empty(t, got[0].Source)

	id, err := c.LogEvent(ctx, &types.Event{Type: types.EventCustom, Source: "x"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestLogHelpersSetTypeAndFields(t *testing.T) {
	c := newTestClient(t, &fakeGenerator{}, Options{})
	ctx := context.Background()

	sid, err := c.StartSession(ctx, "kitchen-cam", "cooking")
	require.NoError(t, err)

	_, err = c.LogObservation(ctx, "kitchen-cam", "person at stove",
		WithSession(sid), WithTags("kitchen"), WithData(map[string]any{"objects": 2.0}))
	require.NoError(t, err)
	_, err = c.LogSensor(ctx, "thermo", 22.5)
	require.NoError(t, err)
	_, err = c.LogChat(ctx, "user", "what's cooking?")
	require.NoError(t, err)

	events, err := c.GetEvents(ctx, "1h", types.EventFilter{Types: []types.EventType{types.EventCameraAnalysis}})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "person at stove", events[0].Content)
	assert.Equal(t, sid, events[0].SessionID)
	assert.Equal(t, []string{"kitchen"}, events[0].Tags)
	assert.Equal(t, 2.0, events[0].Data["objects"])

	sensors, err := c.GetEvents(ctx, "1h", types.EventFilter{Sources: []string{"thermo"}})
	require.NoError(t, err)
	require.Len(t, sensors, 1)
	require.NotNil(t, sensors[0].NumericValue)
	assert.Equal(t, 22.5, *sensors[0].NumericValue)

	sess, err := c.GetSession(ctx, sid)
	require.NoError(t, err)
	assert.EqualValues(t, 1, sess.EventCount)
}

func TestLogEventsReturnsIDsInOrder(t *testing.T) {
	c := newTestClient(t, &fakeGenerator{}, Options{})
	ctx := context.Background()

	batch := []*types.Event{
		types.NewEvent(types.EventActivityLog, "a"),
		types.NewEvent(types.EventActivityLog, "b"),
		types.NewEvent(types.EventActivityLog, "c"),
	}
	ids, err := c.LogEvents(ctx, batch)
	require.NoError(t, err)
	require.Len(t, ids, 3)
	for i, e := range batch {
		assert.Equal(t, e.ID, ids[i])
	}
}

func TestGetInsightEmptyWindow(t *testing.T) {
	gen := &fakeGenerator{confidence: 0.9}
	c := newTestClient(t, gen, Options{})
	ctx := context.Background()

	var got *types.Insight
	c.OnInsight("capture", 0.5, func(_ context.Context, in *types.Insight) error {
		got = in
		return nil
	})

	insight, err := c.GetInsight(ctx, "1h")
	require.NoError(t, err)
	assert.Equal(t, NoEventsSummary, insight.Summary)
	assert.Equal(t, 1.0, insight.Confidence)
	assert.Zero(t, insight.SourceEventsCount)
	assert.Zero(t, gen.calls.Load())
	assert.Same(t, insight, got)

	history, err := c.GetInsightsHistory(ctx, types.InsightFilter{})
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestGetInsightGeneratesSavesAndDelivers(t *testing.T) {
	gen := &fakeGenerator{confidence: 0.7}
	c := newTestClient(t, gen, Options{})
	ctx := context.Background()

	for range 3 {
		_, err := c.LogObservation(ctx, "cam", "motion")
		require.NoError(t, err)
	}
	_, err := c.LogObservation(ctx, "door", "opened")
	require.NoError(t, err)

	var delivered, skipped atomic.Int32
	c.OnInsight("low", 0.5, func(context.Context, *types.Insight) error {
		delivered.Add(1)
		return nil
	})
	c.OnInsight("high", 0.9, func(context.Context, *types.Insight) error {
		skipped.Add(1)
		return nil
	})

	insight, err := c.GetInsight(ctx, "1h", WithSources("cam"), WithTopic("security"))
	require.NoError(t, err)
	assert.Equal(t, 3, insight.SourceEventsCount)
	assert.Len(t, insight.SourceEventIDs, 3)
	assert.Equal(t, "security", insight.Metadata["topic"])
	assert.Equal(t, "security", gen.lastTopic)
	assert.Equal(t, 3, gen.lastInput.Statistics.TotalEvents)
	assert.EqualValues(t, 1, delivered.Load())
	assert.Zero(t, skipped.Load())

	history, err := c.GetInsightsHistory(ctx, types.InsightFilter{Window: "1h"})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, insight.ID, history[0].ID)
}

func TestGetInsightWithoutSave(t *testing.T) {
	c := newTestClient(t, &fakeGenerator{confidence: 0.6}, Options{})
	ctx := context.Background()

	_, err := c.LogChat(ctx, "user", "hello")
	require.NoError(t, err)
	_, err = c.GetInsight(ctx, "1h", WithoutSave())
	require.NoError(t, err)

	history, err := c.GetInsightsHistory(ctx, types.InsightFilter{})
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestGetInsightBackendFailure(t *testing.T) {
	gen := &fakeGenerator{err: llm.ErrUnavailable}
	c := newTestClient(t, gen, Options{})
	ctx := context.Background()

	_, err := c.LogChat(ctx, "user", "hello")
	require.NoError(t, err)

	var called atomic.Bool
	c.OnInsight("any", 0, func(context.Context, *types.Insight) error {
		called.Store(true)
		return nil
	})

	_, err = c.GetInsight(ctx, "1h")
	assert.ErrorIs(t, err, llm.ErrUnavailable)
	assert.False(t, called.Load())
}

func TestCallbackFailureDoesNotFailInsight(t *testing.T) {
	c := newTestClient(t, &fakeGenerator{confidence: 0.8}, Options{})
	ctx := context.Background()

	_, err := c.LogChat(ctx, "user", "hello")
	require.NoError(t, err)

	var second atomic.Bool
	c.OnInsight("broken", 0, func(context.Context, *types.Insight) error {
		return errors.New("webhook down")
	})
	c.OnInsight("panicky", 0, func(context.Context, *types.Insight) error {
		panic("boom")
	})
	c.OnInsight("ok", 0, func(context.Context, *types.Insight) error {
		second.Store(true)
		return nil
	})

	insight, err := c.GetInsight(ctx, "1h")
	require.NoError(t, err)
	assert.NotNil(t, insight)
	assert.True(t, second.Load())
}

func TestUnknownWindow(t *testing.T) {
	c := newTestClient(t, &fakeGenerator{}, Options{})
	ctx := context.Background()

	var uw *analysis.UnknownWindowError
	_, err := c.GetInsight(ctx, "2h")
	assert.ErrorAs(t, err, &uw)
	_, err = c.GetStatistics(ctx, "fortnight")
	assert.ErrorAs(t, err, &uw)
	_, err = c.GetEvents(ctx, "", types.EventFilter{})
	assert.ErrorAs(t, err, &uw)
}

func TestCustomWindows(t *testing.T) {
	c := newTestClient(t, &fakeGenerator{}, Options{
		CustomWindows: map[string]time.Duration{"15m": 15 * time.Minute},
	})
	assert.Contains(t, c.Windows(), "15m")

	_, err := c.GetStatistics(context.Background(), "15m")
	assert.NoError(t, err)
}

func TestGetStatistics(t *testing.T) {
	c := newTestClient(t, &fakeGenerator{}, Options{})
	ctx := context.Background()

	_, err := c.LogChat(ctx, "alice", "hi")
	require.NoError(t, err)
	_, err = c.LogChat(ctx, "bob", "hey")
	require.NoError(t, err)
	_, err = c.LogSensor(ctx, "thermo", 20)
	require.NoError(t, err)

	agg, err := c.GetStatistics(ctx, "24h")
	require.NoError(t, err)
	assert.EqualValues(t, 3, agg.Total)
	assert.EqualValues(t, 2, agg.ByType[string(types.EventChatMessage)])
	assert.EqualValues(t, 1, agg.BySource["thermo"])
}

func TestSummarizeSession(t *testing.T) {
	gen := &fakeGenerator{}
	c := newTestClient(t, gen, Options{})
	ctx := context.Background()

	sid, err := c.StartSession(ctx, "cam", "")
	require.NoError(t, err)

	summary, err := c.SummarizeSession(ctx, sid, "")
	require.NoError(t, err)
	assert.Equal(t, NoSessionEventsSummary, summary)

	base := time.Now().UTC().Add(-time.Minute)
	_, err = c.LogObservation(ctx, "cam", "first", WithSession(sid), WithTimestamp(base))
	require.NoError(t, err)
	_, err = c.LogSensor(ctx, "cam", 1, WithSession(sid), WithTimestamp(base.Add(time.Second)))
	require.NoError(t, err)
	_, err = c.LogObservation(ctx, "cam", "second", WithSession(sid), WithTimestamp(base.Add(2*time.Second)))
	require.NoError(t, err)

	summary, err = c.SummarizeSession(ctx, sid, "")
	require.NoError(t, err)
	assert.Equal(t, "session summary", summary)
	assert.Equal(t, []string{"first", "second"}, gen.observed)

	_, err = c.SummarizeSession(ctx, types.SessionID("missing"), "")
	assert.ErrorIs(t, err, state.ErrNotFound)
}

func TestAutoInsightJob(t *testing.T) {
	gen := &fakeGenerator{confidence: 0.5}
	m := metrics.New()
	c := newTestClient(t, gen, Options{AutoInsightInterval: time.Second, Metrics: m})

	_, err := c.LogChat(context.Background(), "user", "ping")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		history, err := c.GetInsightsHistory(context.Background(), types.InsightFilter{Window: AutoInsightWindow})
		return err == nil && len(history) > 0
	}, 5*time.Second, 100*time.Millisecond)

	n, err := testutil.GatherAndCount(m.Registry(), "insightflow_insights_total", "insightflow_events_ingested_total")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 2)
}

// slowGenerator blocks inside GenerateInsight until its context is
// cancelled, then lingers before returning.
type slowGenerator struct {
	*fakeGenerator
	entered      chan struct{}
	once         sync.Once
	closedMidJob atomic.Bool
}

func (g *slowGenerator) GenerateInsight(ctx context.Context, _ *analysis.PreparedInsightInput, _ []string, _, _ string) (*types.Insight, error) {
	g.once.Do(func() { close(g.entered) })
	<-ctx.Done()
	time.Sleep(100 * time.Millisecond)
	if g.closed.Load() {
		g.closedMidJob.Store(true)
	}
	return nil, ctx.Err()
}

func TestConcurrentStopWaitsForJobs(t *testing.T) {
	gen := &slowGenerator{fakeGenerator: &fakeGenerator{}, entered: make(chan struct{})}
	store := state.NewStore(filepath.Join(t.TempDir(), "insightflow.db"))
	c, err := New(store, gen, Options{AutoInsightInterval: time.Second})
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))

	_, err = c.LogChat(context.Background(), "user", "ping")
	require.NoError(t, err)

	select {
	case <-gen.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("auto-insight job never reached the backend")
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.Stop())
		}()
	}
	wg.Wait()

	assert.False(t, c.Started())
	assert.True(t, gen.closed.Load())
	assert.False(t, gen.closedMidJob.Load(), "backend closed while a job was still running")
}

func TestNewRejectsBadSchedule(t *testing.T) {
	store := state.NewStore(filepath.Join(t.TempDir(), "insightflow.db"))
	_, err := New(store, &fakeGenerator{}, Options{
		Scheduled: []ScheduledInsight{{Name: "bad", Schedule: "not a schedule", Window: "1h"}},
	})
	assert.Error(t, err)

	_, err = New(store, &fakeGenerator{}, Options{
		Scheduled: []ScheduledInsight{{Name: "bad-window", Schedule: "@hourly", Window: "2h"}},
	})
	assert.Error(t, err)
}
