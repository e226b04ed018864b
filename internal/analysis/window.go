// Package analysis turns event lists into windowed statistics and
// statistically detected patterns. Everything here is pure and in-memory.
package analysis

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/user/insightflow/internal/types"
)

const (
	// HourKeyFormat is the layout of hour bucket keys in WindowStats.ByHour.
	HourKeyFormat = "2006-01-02 15:00"

	DefaultMaxSamples = 20
	maxSampleRunes    = 200
)

// DefaultWindows are the window names registered on every new Aggregator.
var DefaultWindows = map[string]time.Duration{
	"1h":  time.Hour,
	"3h":  3 * time.Hour,
	"5h":  5 * time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"15d": 15 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// UnknownWindowError is returned when a window name is not registered.
type UnknownWindowError struct {
	Window string
}

func (e *UnknownWindowError) Error() string {
	return fmt.Sprintf("unknown time window: %q", e.Window)
}

// WindowStats summarises the events of one window.
type WindowStats struct {
	Window           string         `json:"window"`
	StartTime        time.Time      `json:"start_time"`
	EndTime          time.Time      `json:"end_time"`
	EventCount       int            `json:"event_count"`
	EventsByType     map[string]int `json:"events_by_type"`
	EventsBySource   map[string]int `json:"events_by_source"`
	EventsByHour     map[string]int `json:"events_by_hour"`
	AvgEventsPerHour float64        `json:"avg_events_per_hour"`
	PeakHour         string         `json:"peak_hour,omitempty"`
	UniqueSources    int            `json:"unique_sources"`
	UniqueTypes      int            `json:"unique_types"`
}

// PreparedInsightInput is the typed payload handed to prompt construction.
type PreparedInsightInput struct {
	Window         string          `json:"window"`
	Start          time.Time       `json:"start"`
	End            time.Time       `json:"end"`
	Statistics     InputStatistics `json:"statistics"`
	ContentSamples []string        `json:"content_samples"`
}

type InputStatistics struct {
	TotalEvents int            `json:"total_events"`
	ByType      map[string]int `json:"by_type"`
	BySource    map[string]int `json:"by_source"`
	AvgPerHour  float64        `json:"avg_per_hour"`
	PeakHour    string         `json:"peak_hour,omitempty"`
}

// Aggregator holds the registry of named windows. It is safe for concurrent
// use; AddCustomWindow may be called while other goroutines aggregate.
type Aggregator struct {
	mu      sync.RWMutex
	windows map[string]time.Duration
	now     func() time.Time
}

// NewAggregator returns an aggregator with DefaultWindows registered.
func NewAggregator() *Aggregator {
	windows := make(map[string]time.Duration, len(DefaultWindows))
	for name, d := range DefaultWindows {
		windows[name] = d
	}
	return &Aggregator{
		windows: windows,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// AddCustomWindow registers or replaces a named window.
func (a *Aggregator) AddCustomWindow(name string, d time.Duration) error {
	if name == "" {
		return fmt.Errorf("window name is empty")
	}
	if d <= 0 {
		return fmt.Errorf("window %q: duration must be positive, got %s", name, d)
	}
	a.mu.Lock()
	a.windows[name] = d
	a.mu.Unlock()
	return nil
}

// Windows returns the registered window names sorted by duration.
func (a *Aggregator) Windows() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, 0, len(a.windows))
	for name := range a.windows {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		di, dj := a.windows[names[i]], a.windows[names[j]]
		if di != dj {
			return di < dj
		}
		return names[i] < names[j]
	})
	return names
}

// GetWindowBounds returns [end - duration, end]. A zero end means now.
func (a *Aggregator) GetWindowBounds(window string, end time.Time) (time.Time, time.Time, error) {
	a.mu.RLock()
	d, ok := a.windows[window]
	a.mu.RUnlock()
	if !ok {
		return time.Time{}, time.Time{}, &UnknownWindowError{Window: window}
	}
	if end.IsZero() {
		end = a.now()
	}
	end = end.UTC()
	return end.Add(-d), end, nil
}

// AggregateEvents computes WindowStats. For an empty list the bounds are the
// nominal window bounds ending now; otherwise they are the min and max event
// timestamps. Peak hour ties resolve to the earliest hour.
func (a *Aggregator) AggregateEvents(events []*types.Event, window string) (*WindowStats, error) {
	if len(events) == 0 {
		start, end, err := a.GetWindowBounds(window, time.Time{})
		if err != nil {
			return nil, err
		}
		return &WindowStats{
			Window:         window,
			StartTime:      start,
			EndTime:        end,
			EventsByType:   map[string]int{},
			EventsBySource: map[string]int{},
			EventsByHour:   map[string]int{},
		}, nil
	}

	stats := &WindowStats{
		Window:         window,
		StartTime:      events[0].Timestamp.UTC(),
		EndTime:        events[0].Timestamp.UTC(),
		EventCount:     len(events),
		EventsByType:   map[string]int{},
		EventsBySource: map[string]int{},
		EventsByHour:   map[string]int{},
	}
	for _, e := range events {
		ts := e.Timestamp.UTC()
		if ts.Before(stats.StartTime) {
			stats.StartTime = ts
		}
		if ts.After(stats.EndTime) {
			stats.EndTime = ts
		}
		stats.EventsByType[string(e.Type)]++
		stats.EventsBySource[e.Source]++
		stats.EventsByHour[ts.Format(HourKeyFormat)]++
	}

	stats.PeakHour = peakHour(stats.EventsByHour)
	hours := math.Max(1, stats.EndTime.Sub(stats.StartTime).Hours())
	stats.AvgEventsPerHour = math.Round(float64(len(events))/hours*100) / 100
	stats.UniqueSources = len(stats.EventsBySource)
	stats.UniqueTypes = len(stats.EventsByType)
	return stats, nil
}

// peakHour returns the key with the highest count. Keys sort chronologically
// so scanning them in order keeps the earliest hour on ties.
func peakHour(byHour map[string]int) string {
	keys := make([]string, 0, len(byHour))
	for k := range byHour {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	peak, best := "", 0
	for _, k := range keys {
		if byHour[k] > best {
			peak, best = k, byHour[k]
		}
	}
	return peak
}

// GetContentSummary returns up to maxItems "[HH:MM] content" lines taken from
// events with non-empty content, in input order. Content longer than 200
// characters is cut and suffixed with "...". maxItems <= 0 means
// DefaultMaxSamples.
func (a *Aggregator) GetContentSummary(events []*types.Event, maxItems int) []string {
	if maxItems <= 0 {
		maxItems = DefaultMaxSamples
	}
	out := []string{}
	for _, e := range events {
		if e.Content == "" {
			continue
		}
		out = append(out, fmt.Sprintf("[%s] %s", e.Timestamp.UTC().Format("15:04"), truncate(e.Content, maxSampleRunes)))
		if len(out) >= maxItems {
			break
		}
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// PrepareForLLM bundles stats and content samples for prompt construction.
func (a *Aggregator) PrepareForLLM(events []*types.Event, window string) (*PreparedInsightInput, error) {
	stats, err := a.AggregateEvents(events, window)
	if err != nil {
		return nil, err
	}
	return &PreparedInsightInput{
		Window: window,
		Start:  stats.StartTime,
		End:    stats.EndTime,
		Statistics: InputStatistics{
			TotalEvents: stats.EventCount,
			ByType:      stats.EventsByType,
			BySource:    stats.EventsBySource,
			AvgPerHour:  stats.AvgEventsPerHour,
			PeakHour:    stats.PeakHour,
		},
		ContentSamples: a.GetContentSummary(events, DefaultMaxSamples),
	}, nil
}
