package metrics

import (
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/insightflow/pkg/llm"
)

func TestCounters(t *testing.T) {
	m := New()

	m.EventStored("chat_message")
	m.EventStored("chat_message")
	m.EventFailed()
	m.InsightGenerated("1h", 0.8)
	m.InsightEmpty("1h")
	m.InsightFailed("24h")
	m.PatternDetected("trend_up")
	m.CallbacksRun(2, 1, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.eventsIngested.WithLabelValues("chat_message")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ingestErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.insightsTotal.WithLabelValues("1h", "generated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.insightsTotal.WithLabelValues("1h", "empty")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.insightsTotal.WithLabelValues("24h", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.patternsDetected.WithLabelValues("trend_up")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.callbacks.WithLabelValues("delivered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.callbacks.WithLabelValues("skipped")))
}

func TestBackendCallResults(t *testing.T) {
	m := New()

	m.ObserveBackendCall("local", "generate_insight", time.Second, nil)
	m.ObserveBackendCall("local", "generate_insight", time.Second, fmt.Errorf("x: %w", llm.ErrTimeout))
	m.ObserveBackendCall("local", "generate_insight", time.Second, fmt.Errorf("x: %w", llm.ErrUnavailable))
	m.ObserveBackendCall("local", "summarize", time.Second, errors.New("bad json"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.backendCalls.WithLabelValues("local", "generate_insight", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.backendCalls.WithLabelValues("local", "generate_insight", "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.backendCalls.WithLabelValues("local", "generate_insight", "unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.backendCalls.WithLabelValues("local", "summarize", "error")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.EventStored("custom")
	m.EventFailed()
	m.InsightGenerated("1h", 1)
	m.InsightEmpty("1h")
	m.InsightFailed("1h")
	m.PatternDetected("x")
	m.ObserveBackendCall("p", "op", time.Second, nil)
	m.CallbacksRun(1, 1, 1)
	assert.Nil(t, m.Registry())
}

func TestHandler(t *testing.T) {
	m := New()
	m.EventStored("sensor_reading")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `insightflow_events_ingested_total{event_type="sensor_reading"} 1`))
}
