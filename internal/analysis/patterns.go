package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/user/insightflow/internal/types"
)

type PatternType string

const (
	PatternTrendUp      PatternType = "trend_up"
	PatternTrendDown    PatternType = "trend_down"
	PatternStable       PatternType = "stable"
	PatternAnomalySpike PatternType = "anomaly_spike"
	PatternAnomalyDrop  PatternType = "anomaly_drop"
	PatternPeriodic     PatternType = "periodic"
	PatternCorrelation  PatternType = "correlation"
)

// Dimension names the distribution a correlation pattern was found in.
type Dimension string

const (
	DimensionSource    Dimension = "source"
	DimensionEventType Dimension = "event_type"
)

// Period is a closed time range.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// DetectedPattern is a transient analysis result. It is flattened into
// Insight.Patterns as text and never persisted directly.
type DetectedPattern struct {
	Type           PatternType    `json:"pattern_type"`
	Description    string         `json:"description"`
	Confidence     float64        `json:"confidence"`
	AffectedPeriod *Period        `json:"affected_period,omitempty"`
	Dimension      Dimension      `json:"dimension,omitempty"`
	RelatedSources []string       `json:"related_sources,omitempty"`
	RelatedTypes   []string       `json:"related_types,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
}

const (
	DefaultAnomalyThreshold = 2.0
	DefaultTrendMinPeriods  = 3
	DefaultMinEvents        = 5

	trendThreshold       = 0.3
	anomalyMinPeriods    = 3
	sourceDominanceRatio = 0.7
	typeDominanceRatio   = 0.8
)

// Detector runs the statistical sub-analyses over an hourly histogram of
// event counts.
type Detector struct {
	anomalyThreshold float64
	trendMinPeriods  int
	minEvents        int
}

type DetectorOption func(*Detector)

// WithAnomalyThreshold sets the z-score beyond which an hour is anomalous.
func WithAnomalyThreshold(z float64) DetectorOption {
	return func(d *Detector) {
		if z > 0 {
			d.anomalyThreshold = z
		}
	}
}

// WithTrendMinPeriods sets the number of distinct hours a trend needs.
func WithTrendMinPeriods(n int) DetectorOption {
	return func(d *Detector) {
		if n > 0 {
			d.trendMinPeriods = n
		}
	}
}

// WithMinEvents sets the event count below which DetectAll returns nothing.
func WithMinEvents(n int) DetectorOption {
	return func(d *Detector) {
		if n > 0 {
			d.minEvents = n
		}
	}
}

func NewDetector(opts ...DetectorOption) *Detector {
	d := &Detector{
		anomalyThreshold: DefaultAnomalyThreshold,
		trendMinPeriods:  DefaultTrendMinPeriods,
		minEvents:        DefaultMinEvents,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DetectAll returns trend, anomaly and activity patterns in that order.
// Fewer than the minimum number of events yields an empty list.
func (d *Detector) DetectAll(events []*types.Event) []DetectedPattern {
	patterns := []DetectedPattern{}
	if len(events) < d.minEvents {
		return patterns
	}
	patterns = append(patterns, d.DetectFrequencyTrends(events)...)
	patterns = append(patterns, d.DetectAnomalies(events)...)
	patterns = append(patterns, d.DetectActivityPatterns(events)...)
	return patterns
}

type hourCount struct {
	hour  time.Time
	count int
}

// hourlyCounts buckets events by floor-to-hour, ascending. Hours without
// events are absent.
func hourlyCounts(events []*types.Event) []hourCount {
	m := make(map[time.Time]int)
	for _, e := range events {
		m[e.Timestamp.UTC().Truncate(time.Hour)]++
	}
	out := make([]hourCount, 0, len(m))
	for h, c := range m {
		out = append(out, hourCount{hour: h, count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].hour.Before(out[j].hour) })
	return out
}

// DetectFrequencyTrends fits a line through the hourly counts and reports
// its slope relative to the mean count.
func (d *Detector) DetectFrequencyTrends(events []*types.Event) []DetectedPattern {
	hours := hourlyCounts(events)
	if len(hours) < d.trendMinPeriods {
		return nil
	}

	counts := make([]float64, len(hours))
	byHour := make(map[string]int, len(hours))
	for i, h := range hours {
		counts[i] = float64(h.count)
		byHour[h.hour.Format(HourKeyFormat)] = h.count
	}

	trend := NormalizedSlope(counts)
	var pt PatternType
	var direction string
	switch {
	case trend > trendThreshold:
		pt, direction = PatternTrendUp, "rising"
	case trend < -trendThreshold:
		pt, direction = PatternTrendDown, "falling"
	default:
		return nil
	}

	first, last := hours[0], hours[len(hours)-1]
	return []DetectedPattern{{
		Type:           pt,
		Description:    fmt.Sprintf("event frequency is %s, from %d to %d per hour", direction, first.count, last.count),
		Confidence:     math.Min(math.Abs(trend), 1),
		AffectedPeriod: &Period{Start: first.hour, End: last.hour},
		Data: map[string]any{
			"hourly_counts": byHour,
			"trend_value":   trend,
		},
	}}
}

// NormalizedSlope is the least-squares slope of values against their index,
// divided by the mean value. It is 0 for fewer than two values or a zero
// mean.
func NormalizedSlope(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	xMean := float64(n-1) / 2
	var yMean float64
	for _, v := range values {
		yMean += v
	}
	yMean /= float64(n)

	var num, den float64
	for i, v := range values {
		dx := float64(i) - xMean
		num += dx * (v - yMean)
		den += dx * dx
	}
	if den == 0 || yMean == 0 {
		return 0
	}
	return (num / den) / yMean
}

// DetectAnomalies flags hours whose count z-score, against the sample
// standard deviation of all hourly counts, exceeds the threshold.
func (d *Detector) DetectAnomalies(events []*types.Event) []DetectedPattern {
	hours := hourlyCounts(events)
	if len(hours) < anomalyMinPeriods {
		return nil
	}

	counts := make([]float64, len(hours))
	for i, h := range hours {
		counts[i] = float64(h.count)
	}
	mean, stdev := meanStdev(counts)
	if stdev == 0 {
		return nil
	}

	var patterns []DetectedPattern
	for _, h := range hours {
		z := (float64(h.count) - mean) / stdev
		var pt PatternType
		var kind string
		switch {
		case z > d.anomalyThreshold:
			pt, kind = PatternAnomalySpike, "spike"
		case z < -d.anomalyThreshold:
			pt, kind = PatternAnomalyDrop, "drop"
		default:
			continue
		}
		patterns = append(patterns, DetectedPattern{
			Type: pt,
			Description: fmt.Sprintf("unusual %s at %s: %d events (typically about %.1f)",
				kind, h.hour.Format(HourKeyFormat), h.count, mean),
			Confidence:     math.Min(math.Abs(z)/3, 1),
			AffectedPeriod: &Period{Start: h.hour, End: h.hour.Add(time.Hour)},
			Data: map[string]any{
				"count":   h.count,
				"mean":    mean,
				"z_score": z,
			},
		})
	}
	return patterns
}

// meanStdev returns the mean and the sample (n-1) standard deviation.
func meanStdev(values []float64) (float64, float64) {
	n := float64(len(values))
	if n == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / n
	if n < 2 {
		return mean, 0
	}
	var ss float64
	for _, v := range values {
		ss += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(ss / (n - 1))
}

// DetectActivityPatterns reports a dominant source (>70%) and a dominant
// event type (>80%). A dimension with a single distinct value is never
// reported.
func (d *Detector) DetectActivityPatterns(events []*types.Event) []DetectedPattern {
	var patterns []DetectedPattern

	sources := newTally()
	kinds := newTally()
	for _, e := range events {
		sources.add(e.Source)
		kinds.add(string(e.Type))
	}

	if name, ratio, ok := sources.dominant(sourceDominanceRatio); ok {
		patterns = append(patterns, DetectedPattern{
			Type:           PatternCorrelation,
			Description:    fmt.Sprintf("source %q dominates activity (%.0f%%)", name, ratio*100),
			Confidence:     ratio,
			Dimension:      DimensionSource,
			RelatedSources: []string{name},
			Data:           map[string]any{"source_distribution": sources.counts},
		})
	}
	if name, ratio, ok := kinds.dominant(typeDominanceRatio); ok {
		patterns = append(patterns, DetectedPattern{
			Type:         PatternCorrelation,
			Description:  fmt.Sprintf("event type %q dominates activity (%.0f%%)", name, ratio*100),
			Confidence:   ratio,
			Dimension:    DimensionEventType,
			RelatedTypes: []string{name},
			Data:         map[string]any{"type_distribution": kinds.counts},
		})
	}
	return patterns
}

// tally counts values and remembers first-seen order for tie breaking.
type tally struct {
	order  []string
	counts map[string]int
	total  int
}

func newTally() *tally {
	return &tally{counts: map[string]int{}}
}

func (t *tally) add(v string) {
	if _, ok := t.counts[v]; !ok {
		t.order = append(t.order, v)
	}
	t.counts[v]++
	t.total++
}

func (t *tally) dominant(threshold float64) (string, float64, bool) {
	if len(t.order) < 2 || t.total == 0 {
		return "", 0, false
	}
	best := t.order[0]
	for _, v := range t.order[1:] {
		if t.counts[v] > t.counts[best] {
			best = v
		}
	}
	ratio := float64(t.counts[best]) / float64(t.total)
	if ratio <= threshold {
		return "", 0, false
	}
	return best, ratio, true
}

// NoPatternsSummary is returned by SummarizePatterns for an empty list.
const NoPatternsSummary = "no significant patterns detected"

// SummarizePatterns renders one bullet per pattern with a confidence label.
func SummarizePatterns(patterns []DetectedPattern) string {
	if len(patterns) == 0 {
		return NoPatternsSummary
	}
	lines := make([]string, 0, len(patterns))
	for _, p := range patterns {
		lines = append(lines, fmt.Sprintf("- %s (confidence: %s)", p.Description, ConfidenceLabel(p.Confidence)))
	}
	return strings.Join(lines, "\n")
}

// ConfidenceLabel maps a confidence to high (>0.7), medium (>0.4) or low.
func ConfidenceLabel(c float64) string {
	switch {
	case c > 0.7:
		return "high"
	case c > 0.4:
		return "medium"
	default:
		return "low"
	}
}

// Descriptions flattens patterns to the text stored on an insight.
func Descriptions(patterns []DetectedPattern) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, p.Description)
	}
	return out
}
