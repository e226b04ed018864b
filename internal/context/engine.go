// internal/context/engine.go
package context

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"text/template"
	"time"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/insightflow/internal/analysis"
	"github.com/user/insightflow/pkg/llm"
)

// Limits bounds how much event content goes into a single prompt.
type Limits struct {
	MaxSamples      int
	MaxObservations int
}

var (
	LocalLimits  = Limits{MaxSamples: 5, MaxObservations: 15}
	RemoteLimits = Limits{MaxSamples: 20, MaxObservations: 50}
)

// Engine assembles token-budgeted prompts for the LLM.
type Engine struct {
	count     func(string) int
	maxTokens int
	reserve   int
	limits    Limits
}

// encoders caches tokenizers per model; a nil entry means none could load.
var encoders sync.Map

// New creates a context engine with the given token budget.
// model is used to select the appropriate tokenizer (e.g. "gpt-4").
// maxTokens is the model's context window size.
// reserve is the number of tokens to reserve for the model's response.
// When no tokenizer can be loaded, token counts are estimated from length.
func New(model string, maxTokens, reserve int, limits Limits) *Engine {
	e := &Engine{
		maxTokens: maxTokens,
		reserve:   reserve,
		limits:    limits,
		count:     estimateTokens,
	}
	if enc := tokenizer(model); enc != nil {
		e.count = func(s string) int { return len(enc.Encode(s, nil, nil)) }
	}
	return e
}

func tokenizer(model string) *tiktoken.Tiktoken {
	if v, ok := encoders.Load(model); ok {
		enc, _ := v.(*tiktoken.Tiktoken)
		return enc
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Fallback to cl100k_base for unknown models
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			slog.Warn("tokenizer unavailable, estimating token counts", "model", model, "error", err)
			enc = nil
		}
	}
	encoders.Store(model, enc)
	return enc
}

func estimateTokens(s string) int {
	return (utf8.RuneCountInString(s) + 3) / 4
}

// CountTokens returns the token count for a string.
func (e *Engine) CountTokens(text string) int {
	return e.count(text)
}

// Limits returns the sample and observation caps of this engine.
func (e *Engine) Limits() Limits {
	return e.limits
}

type insightPromptData struct {
	Window      string
	Start       string
	End         string
	TotalEvents int
	AvgPerHour  float64
	PeakHour    string
	ByType      string
	BySource    string
	Patterns    []string
	Samples     []string
	Custom      string
}

// BuildInsightPrompt renders the system and user messages for an insight
// request. Content samples are capped by Limits.MaxSamples and then by the
// token budget left after the rest of the prompt.
func (e *Engine) BuildInsightPrompt(in *analysis.PreparedInsightInput, patterns []string, topic, custom string) ([]llm.Message, error) {
	sys, err := render(insightSystemTmpl, struct{ Topic string }{topic})
	if err != nil {
		return nil, err
	}

	data := insightPromptData{
		Window:      in.Window,
		Start:       in.Start.Format(time.RFC3339),
		End:         in.End.Format(time.RFC3339),
		TotalEvents: in.Statistics.TotalEvents,
		AvgPerHour:  in.Statistics.AvgPerHour,
		PeakHour:    in.Statistics.PeakHour,
		ByType:      jsonMap(in.Statistics.ByType),
		BySource:    jsonMap(in.Statistics.BySource),
		Patterns:    patterns,
		Custom:      custom,
	}

	base, err := render(insightUserTmpl, data)
	if err != nil {
		return nil, err
	}
	budget := e.maxTokens - e.reserve - e.count(sys) - e.count(base)
	data.Samples = e.fit(capped(in.ContentSamples, e.limits.MaxSamples), budget, 1)

	user, err := render(insightUserTmpl, data)
	if err != nil {
		return nil, err
	}
	return []llm.Message{
		{Role: llm.RoleSystem, Content: sys},
		{Role: llm.RoleUser, Content: user},
	}, nil
}

// BuildSummaryPrompt renders the messages for summarising observations.
func (e *Engine) BuildSummaryPrompt(observations []string, topic string) ([]llm.Message, error) {
	sys, err := render(summarySystemTmpl, struct{ Topic string }{topic})
	if err != nil {
		return nil, err
	}
	header := fmt.Sprintf("Summarise the following %d observations:\n\n", len(observations))
	budget := e.maxTokens - e.reserve - e.count(sys) - e.count(header)
	kept := e.fit(capped(observations, e.limits.MaxObservations), budget, 2)

	var buf bytes.Buffer
	buf.WriteString(header)
	for i, o := range kept {
		if i > 0 {
			buf.WriteString("\n---\n")
		}
		buf.WriteString(o)
	}
	return []llm.Message{
		{Role: llm.RoleSystem, Content: sys},
		{Role: llm.RoleUser, Content: buf.String()},
	}, nil
}

// fit keeps the leading items whose tokens, plus sep tokens each, stay
// within budget.
func (e *Engine) fit(items []string, budget, sep int) []string {
	used := 0
	for i, it := range items {
		n := e.count(it) + sep
		if used+n > budget {
			return items[:i]
		}
		used += n
	}
	return items
}

func capped(items []string, n int) []string {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}

func jsonMap(m map[string]int) string {
	if len(m) == 0 {
		return ""
	}
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Sprint(m)
	}
	return string(b)
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}
