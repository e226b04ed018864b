package context

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/user/insightflow/internal/analysis"
)

func testInput(samples int) *analysis.PreparedInsightInput {
	start := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	in := &analysis.PreparedInsightInput{
		Window: "3h",
		Start:  start,
		End:    start.Add(2 * time.Hour),
		Statistics: analysis.InputStatistics{
			TotalEvents: 42,
			ByType:      map[string]int{"chat_message": 40, "sensor_reading": 2},
			BySource:    map[string]int{"app": 42},
			AvgPerHour:  21,
			PeakHour:    "2026-05-04 10:00",
		},
	}
	for i := 0; i < samples; i++ {
		in.ContentSamples = append(in.ContentSamples, fmt.Sprintf("[09:%02d] sample number %d", i, i))
	}
	return in
}

func TestNewEngine(t *testing.T) {
	e := New("gpt-4", 128000, 4096, RemoteLimits)
	if e == nil {
		t.Fatal("expected non-nil engine")
	}
	if e.CountTokens("hello world") <= 0 {
		t.Error("expected positive token count")
	}
	if e.Limits() != RemoteLimits {
		t.Errorf("expected remote limits, got %+v", e.Limits())
	}
}

func TestBuildInsightPrompt(t *testing.T) {
	e := New("gpt-4", 128000, 1000, RemoteLimits)

	messages, err := e.BuildInsightPrompt(testInput(3), []string{"event frequency is rising"}, "sleep quality", "compare with last week")
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].Role != "system" || messages[1].Role != "user" {
		t.Errorf("unexpected roles %q, %q", messages[0].Role, messages[1].Role)
	}
	if !strings.Contains(messages[0].Content, "Focus: sleep quality") {
		t.Errorf("expected topic in system prompt, got %q", messages[0].Content)
	}

	user := messages[1].Content
	for _, want := range []string{
		"## Time window\n3h",
		"Start: 2026-05-04T09:00:00Z",
		"- Total events: 42",
		"- Peak hour: 2026-05-04 10:00",
		`- By type: {"chat_message":40,"sensor_reading":2}`,
		"- event frequency is rising",
		"## Content samples (latest 3)",
		"[09:02] sample number 2",
		"## Additional instructions\ncompare with last week",
		`"confidence": 0.8`,
	} {
		if !strings.Contains(user, want) {
			t.Errorf("expected user prompt to contain %q\n%s", want, user)
		}
	}
}

func TestBuildInsightPromptNoPatterns(t *testing.T) {
	e := New("gpt-4", 128000, 1000, RemoteLimits)
	in := testInput(0)
	in.Statistics.PeakHour = ""

	messages, err := e.BuildInsightPrompt(in, nil, "", "")
	if err != nil {
		t.Fatal(err)
	}
	user := messages[1].Content
	if !strings.Contains(user, "No significant patterns") {
		t.Error("expected placeholder for empty patterns")
	}
	if !strings.Contains(user, "- Peak hour: none") {
		t.Error("expected 'none' peak hour")
	}
	if strings.Contains(user, "## Content samples") || strings.Contains(user, "## Additional instructions") {
		t.Error("expected optional sections to be omitted")
	}
	if strings.Contains(messages[0].Content, "Focus:") {
		t.Error("expected no focus line without topic")
	}
}

func TestBuildInsightPromptSampleLimits(t *testing.T) {
	local := New("gpt-4", 128000, 1000, LocalLimits)
	messages, err := local.BuildInsightPrompt(testInput(12), nil, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(messages[1].Content, "## Content samples (latest 5)") {
		t.Errorf("expected 5 samples for local limits\n%s", messages[1].Content)
	}
	if strings.Contains(messages[1].Content, "sample number 5") {
		t.Error("expected sample 5 to be dropped")
	}
}

func TestBuildInsightPromptTokenBudget(t *testing.T) {
	probe := New("gpt-4", 1<<20, 0, RemoteLimits)
	base, err := probe.BuildInsightPrompt(testInput(0), nil, "", "")
	if err != nil {
		t.Fatal(err)
	}
	fixed := probe.CountTokens(base[0].Content) + probe.CountTokens(base[1].Content)

	// Leave room for roughly two samples only.
	one := probe.CountTokens("[09:00] sample number 0") + 1
	tight := New("gpt-4", fixed+2*one+1, 0, RemoteLimits)

	messages, err := tight.BuildInsightPrompt(testInput(10), nil, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(messages[1].Content, "## Content samples (latest 2)") {
		t.Errorf("expected budget to keep 2 samples\n%s", messages[1].Content)
	}
}

func TestBuildSummaryPrompt(t *testing.T) {
	e := New("gpt-4", 128000, 1000, LocalLimits)
	var obs []string
	for i := 0; i < 20; i++ {
		obs = append(obs, fmt.Sprintf("observation %d", i))
	}

	messages, err := e.BuildSummaryPrompt(obs, "meals")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(messages[0].Content, "Focus: meals") {
		t.Error("expected topic in system prompt")
	}
	user := messages[1].Content
	if !strings.HasPrefix(user, "Summarise the following 20 observations:") {
		t.Errorf("unexpected header: %q", user)
	}
	if !strings.Contains(user, "observation 0\n---\nobservation 1") {
		t.Error("expected observations joined by separators")
	}
	if !strings.Contains(user, "observation 14") || strings.Contains(user, "observation 15") {
		t.Error("expected observations capped at 15")
	}
}

func TestEstimateTokens(t *testing.T) {
	if estimateTokens("") != 0 {
		t.Error("expected 0 for empty string")
	}
	if estimateTokens("abcd") != 1 || estimateTokens("abcde") != 2 {
		t.Error("unexpected estimate")
	}
}
