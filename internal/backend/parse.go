package backend

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/user/insightflow/internal/types"
)

const (
	// FallbackConfidence is used when the response carries no usable
	// confidence, including when it is not JSON at all.
	FallbackConfidence = 0.5

	// MissingSummary replaces an absent summary in an otherwise valid object.
	MissingSummary = "unable to generate insight"

	maxRawResponse = 500
)

// ParsedResponse holds the insight fields extracted from model output.
type ParsedResponse struct {
	Summary         string
	Patterns        []string
	Recommendations []string
	Confidence      float64
	// Structured is false when the text held no decodable JSON object.
	Structured bool
}

// ParseInsightResponse extracts a JSON object spanning the first '{' to the
// last '}' of raw. When there is no such object, or it does not decode, the
// whole text becomes the summary with confidence FallbackConfidence. It never
// fails.
func ParseInsightResponse(raw string) ParsedResponse {
	fallback := ParsedResponse{
		Summary:         raw,
		Patterns:        []string{},
		Recommendations: []string{},
		Confidence:      FallbackConfidence,
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return fallback
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(raw[start:end+1]), &obj); err != nil {
		return fallback
	}

	out := ParsedResponse{
		Summary:         MissingSummary,
		Patterns:        stringList(obj["patterns"]),
		Recommendations: stringList(obj["recommendations"]),
		Confidence:      FallbackConfidence,
		Structured:      true,
	}
	if s, ok := obj["summary"].(string); ok && strings.TrimSpace(s) != "" {
		out.Summary = s
	}
	if c, ok := number(obj["confidence"]); ok {
		out.Confidence = types.ClampConfidence(c)
	}
	return out
}

func stringList(v any) []string {
	out := []string{}
	switch list := v.(type) {
	case []any:
		for _, item := range list {
			switch it := item.(type) {
			case nil:
			case string:
				if it != "" {
					out = append(out, it)
				}
			default:
				b, err := json.Marshal(it)
				if err != nil {
					out = append(out, fmt.Sprint(it))
					continue
				}
				out = append(out, string(b))
			}
		}
	case string:
		if list != "" {
			out = append(out, list)
		}
	}
	return out
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func truncateRaw(s string) string {
	if len(s) <= maxRawResponse {
		return s
	}
	// Keep valid UTF-8 when cutting.
	cut := maxRawResponse
	for cut > 0 && !utf8Start(s[cut]) {
		cut--
	}
	return s[:cut]
}

func utf8Start(b byte) bool {
	return b&0xC0 != 0x80
}
