package enrichment

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/vscarpenter/spend-monitor/pkg/model"
)

// costBreakdownLines renders the per-service costs sorted by cost
// descending so prompts are deterministic for a given analysis.
func costBreakdownLines(analysis *model.CostAnalysis) string {
	type entry struct {
		service string
		cost    float64
	}
	entries := make([]entry, 0, len(analysis.ServiceCosts))
	for service, cost := range analysis.ServiceCosts {
		entries = append(entries, entry{service, cost})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].cost != entries[j].cost {
			return entries[i].cost > entries[j].cost
		}
		return entries[i].service < entries[j].service
	})

	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "- %s: $%.2f\n", e.service, e.cost)
	}
	return b.String()
}

func buildAnalysisPrompt(analysis *model.CostAnalysis) string {
	var b strings.Builder
	b.WriteString("You are a cloud cost analyst. Analyze this spending snapshot and respond with JSON only,\n")
	b.WriteString(`shaped as {"summary": string, "key_insights": [string], "confidence": number}.` + "\n\n")
	fmt.Fprintf(&b, "Total spend: $%.2f %s for %s through %s.\n",
		analysis.TotalUSD, analysis.Currency,
		analysis.Period.Start.Format("2006-01-02"), analysis.Period.End.Format("2006-01-02"))
	if analysis.ProjectedMonthlyUSD > 0 {
		fmt.Fprintf(&b, "Projected monthly spend: $%.2f.\n", analysis.ProjectedMonthlyUSD)
	}
	b.WriteString("Per-service costs:\n")
	b.WriteString(costBreakdownLines(analysis))
	return b.String()
}

func buildAnomalyPrompt(current *model.CostAnalysis, historical []*model.CostAnalysis) string {
	var b strings.Builder
	b.WriteString("You are a cloud cost analyst. Compare current per-service spend against history and\n")
	b.WriteString(`respond with JSON only, shaped as {"anomalies": [{"service": string, "current_usd": number,` + "\n")
	b.WriteString(`"expected_usd": number, "deviation_pct": number, "severity": "low"|"medium"|"high",` + "\n")
	b.WriteString(`"confidence": number}]}.` + "\n\n")
	b.WriteString("Current costs:\n")
	b.WriteString(costBreakdownLines(current))
	for i, h := range historical {
		fmt.Fprintf(&b, "\nHistorical snapshot %d (%s):\n", i+1, h.Period.Start.Format("2006-01-02"))
		b.WriteString(costBreakdownLines(h))
	}
	return b.String()
}

func buildRecommendationPrompt(analysis *model.CostAnalysis) string {
	var b strings.Builder
	b.WriteString("You are a cloud cost analyst. Suggest optimizations for this spend and respond with JSON only,\n")
	b.WriteString(`shaped as {"recommendations": [{"category": "rightsizing"|"commitment"|"cleanup"|"scheduling"|"storage_class",` + "\n")
	b.WriteString(`"service": string, "priority": string, "complexity": string, "estimated_savings_usd": number,` + "\n")
	b.WriteString(`"rationale": string}]}.` + "\n\n")
	b.WriteString("Per-service costs:\n")
	b.WriteString(costBreakdownLines(analysis))
	return b.String()
}

// stripFences removes a surrounding markdown code fence, which completion
// backends add despite JSON-only instructions.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		if idx := strings.Index(text, "\n"); idx >= 0 {
			text = text[idx+1:]
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	return strings.TrimSpace(text)
}

type analysisResponse struct {
	Summary     string   `json:"summary"`
	KeyInsights []string `json:"key_insights"`
	Confidence  float64  `json:"confidence"`
}

func parseAnalysisResponse(text string) (*analysisResponse, error) {
	var resp analysisResponse
	if err := json.Unmarshal([]byte(stripFences(text)), &resp); err != nil {
		return nil, fmt.Errorf("parse analysis response: %w", err)
	}
	if resp.Summary == "" {
		return nil, fmt.Errorf("analysis response missing summary")
	}
	resp.Confidence = clamp01(resp.Confidence)
	return &resp, nil
}

type anomalyResponse struct {
	Anomalies []model.Anomaly `json:"anomalies"`
}

func parseAnomalyResponse(text string) (*anomalyResponse, error) {
	var resp anomalyResponse
	if err := json.Unmarshal([]byte(stripFences(text)), &resp); err != nil {
		return nil, fmt.Errorf("parse anomaly response: %w", err)
	}
	for i := range resp.Anomalies {
		resp.Anomalies[i].Confidence = clamp01(resp.Anomalies[i].Confidence)
		switch resp.Anomalies[i].Severity {
		case model.SeverityLow, model.SeverityMedium, model.SeverityHigh:
		default:
			return nil, fmt.Errorf("anomaly response has unknown severity %q", resp.Anomalies[i].Severity)
		}
	}
	return &resp, nil
}

type recommendationResponse struct {
	Recommendations []model.Recommendation `json:"recommendations"`
}

func parseRecommendationResponse(text string) (*recommendationResponse, error) {
	var resp recommendationResponse
	if err := json.Unmarshal([]byte(stripFences(text)), &resp); err != nil {
		return nil, fmt.Errorf("parse recommendation response: %w", err)
	}
	for _, rec := range resp.Recommendations {
		if !model.ValidCategory(rec.Category) {
			return nil, fmt.Errorf("recommendation has unknown category %q", rec.Category)
		}
	}
	return &resp, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
