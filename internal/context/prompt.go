package context

import "text/template"

// InsightSystemPrompt is the system prompt template for insight requests.
// It uses Go text/template syntax with field .Topic.
const InsightSystemPrompt = `You are InsightFlow, an analyst for multi-source time-series observations.

Your job:
1. Analyse the event statistics and detected patterns of the given time window
2. Identify meaningful trends, anomalies and relationships
3. Write a concise, useful summary
4. Give concrete, actionable recommendations

Output rules:
- The summary is 2-4 sentences
- Patterns are specific
- Recommendations are actionable
- Reply with a single JSON object
{{- if .Topic}}

Focus: {{.Topic}}
{{- end}}`

// InsightUserPrompt lays out the prepared window data.
const InsightUserPrompt = `## Time window
{{.Window}}

## Time range
Start: {{.Start}}
End: {{.End}}

## Statistics
- Total events: {{.TotalEvents}}
- Average per hour: {{.AvgPerHour}}
- Peak hour: {{if .PeakHour}}{{.PeakHour}}{{else}}none{{end}}
{{- if .ByType}}
- By type: {{.ByType}}
{{- end}}
{{- if .BySource}}
- By source: {{.BySource}}
{{- end}}

## Detected patterns
{{- range .Patterns}}
- {{.}}
{{- else}}
No significant patterns
{{- end}}
{{- if .Samples}}

## Content samples (latest {{len .Samples}})
{{- range .Samples}}
{{.}}
{{- end}}
{{- end}}
{{- if .Custom}}

## Additional instructions
{{.Custom}}
{{- end}}

Produce the insight as JSON:
{
  "summary": "2-4 sentence insight",
  "patterns": ["specific pattern", "..."],
  "recommendations": ["actionable suggestion", "..."],
  "confidence": 0.8
}`

// SummarySystemPrompt is the system prompt for observation summaries.
const SummarySystemPrompt = `You summarise a series of observation records.
Give a concise but complete summary that highlights key points and recurring patterns.
{{- if .Topic}}
Focus: {{.Topic}}
{{- end}}`

var (
	insightSystemTmpl = template.Must(template.New("insight_system").Parse(InsightSystemPrompt))
	insightUserTmpl   = template.Must(template.New("insight_user").Parse(InsightUserPrompt))
	summarySystemTmpl = template.Must(template.New("summary_system").Parse(SummarySystemPrompt))
)
