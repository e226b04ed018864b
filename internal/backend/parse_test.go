package backend

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseInsightResponse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want ParsedResponse
	}{
		{
			name: "plain json",
			raw:  `{"summary":"steady","patterns":["p1"],"recommendations":["r1","r2"],"confidence":0.9}`,
			want: ParsedResponse{Summary: "steady", Patterns: []string{"p1"}, Recommendations: []string{"r1", "r2"}, Confidence: 0.9, Structured: true},
		},
		{
			name: "fenced json with prose",
			raw:  "Here you go:\n```json\n{\"summary\": \"busy morning\", \"confidence\": 0.7}\n```\nHope it helps!",
			want: ParsedResponse{Summary: "busy morning", Patterns: []string{}, Recommendations: []string{}, Confidence: 0.7, Structured: true},
		},
		{
			name: "no braces",
			raw:  "Activity was calm all day.",
			want: ParsedResponse{Summary: "Activity was calm all day.", Patterns: []string{}, Recommendations: []string{}, Confidence: 0.5},
		},
		{
			name: "broken json",
			raw:  `{"summary": "cut off`+"\n}",
			want: ParsedResponse{Summary: `{"summary": "cut off` + "\n}", Patterns: []string{}, Recommendations: []string{}, Confidence: 0.5},
		},
		{
			name: "closing brace before opening",
			raw:  "} nothing {",
			want: ParsedResponse{Summary: "} nothing {", Patterns: []string{}, Recommendations: []string{}, Confidence: 0.5},
		},
		{
			name: "missing summary",
			raw:  `{"patterns":["a"]}`,
			want: ParsedResponse{Summary: MissingSummary, Patterns: []string{"a"}, Recommendations: []string{}, Confidence: 0.5, Structured: true},
		},
		{
			name: "confidence out of range",
			raw:  `{"summary":"x","confidence":7}`,
			want: ParsedResponse{Summary: "x", Patterns: []string{}, Recommendations: []string{}, Confidence: 1, Structured: true},
		},
		{
			name: "string confidence and mixed lists",
			raw:  `{"summary":"x","confidence":"0.25","patterns":["a",null,3,{"k":"v"}],"recommendations":"single"}`,
			want: ParsedResponse{Summary: "x", Patterns: []string{"a", "3", `{"k":"v"}`}, Recommendations: []string{"single"}, Confidence: 0.25, Structured: true},
		},
		{
			name: "negative confidence",
			raw:  `{"summary":"x","confidence":-2}`,
			want: ParsedResponse{Summary: "x", Patterns: []string{}, Recommendations: []string{}, Confidence: 0, Structured: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseInsightResponse(tt.raw))
		})
	}
}

func TestTruncateRaw(t *testing.T) {
	short := "short"
	assert.Equal(t, short, truncateRaw(short))

	long := strings.Repeat("a", 499) + "ééé"
	got := truncateRaw(long)
	assert.Equal(t, strings.Repeat("a", 499), got)
	assert.LessOrEqual(t, len(truncateRaw(strings.Repeat("b", 900))), 500)
}
