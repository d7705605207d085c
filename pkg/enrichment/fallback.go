package enrichment

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/vscarpenter/spend-monitor/pkg/model"
)

// FallbackModel is the model identifier reported on deterministic results.
const FallbackModel = "fallback"

// fallbackConfidence is the fixed confidence used for non-AI results.
const fallbackConfidence = 0.3

// fallbackAnalysis builds a deterministic summary from arithmetic over the
// cost breakdown. It never fails.
func fallbackAnalysis(analysis *model.CostAnalysis) *model.AIAnalysisResult {
	top, topCost := topService(analysis)

	summary := fmt.Sprintf("Total spend is $%.2f %s for the period.",
		analysis.TotalUSD, analysis.Currency)
	insights := []string{}
	if top != "" {
		pct := 0.0
		if analysis.TotalUSD > 0 {
			pct = topCost / analysis.TotalUSD * 100
		}
		summary += fmt.Sprintf(" %s is the largest contributor at $%.2f (%.1f%%).", top, topCost, pct)
		insights = append(insights, fmt.Sprintf("%s accounts for %.1f%% of spend", top, pct))
	}
	if analysis.ProjectedMonthlyUSD > 0 {
		insights = append(insights,
			fmt.Sprintf("Projected monthly spend is $%.2f", analysis.ProjectedMonthlyUSD))
	}
	insights = append(insights,
		fmt.Sprintf("%d services incurred charges this period", len(analysis.ServiceCosts)))

	return &model.AIAnalysisResult{
		Summary:         summary,
		ConfidenceScore: fallbackConfidence,
		KeyInsights:     insights,
		ModelUsed:       FallbackModel,
		Timestamp:       time.Now().UTC(),
	}
}

// fallbackAnomalies flags services deviating more than two standard
// deviations (and at least 25%) from their historical mean.
func fallbackAnomalies(current *model.CostAnalysis, historical []*model.CostAnalysis) *model.AnomalyResult {
	result := &model.AnomalyResult{ModelUsed: FallbackModel}
	if len(historical) == 0 {
		return result
	}

	services := make([]string, 0, len(current.ServiceCosts))
	for service := range current.ServiceCosts {
		services = append(services, service)
	}
	sort.Strings(services)

	for _, service := range services {
		cost := current.ServiceCosts[service]
		var samples []float64
		for _, h := range historical {
			if v, ok := h.ServiceCosts[service]; ok {
				samples = append(samples, v)
			}
		}
		if len(samples) == 0 {
			continue
		}

		mean, stddev := meanStddev(samples)
		if mean <= 0 {
			continue
		}
		deviationPct := (cost - mean) / mean * 100
		bound := 2 * stddev
		if bound < mean*0.25 {
			bound = mean * 0.25
		}
		if math.Abs(cost-mean) <= bound {
			continue
		}

		severity := model.SeverityLow
		switch {
		case math.Abs(deviationPct) > 100:
			severity = model.SeverityHigh
		case math.Abs(deviationPct) > 50:
			severity = model.SeverityMedium
		}

		result.Anomalies = append(result.Anomalies, model.Anomaly{
			Service:      service,
			CurrentUSD:   cost,
			ExpectedUSD:  mean,
			DeviationPct: deviationPct,
			Severity:     severity,
			Confidence:   fallbackConfidence,
		})
	}
	return result
}

// fallbackRecommendations suggests generic optimizations for the largest
// contributors.
func fallbackRecommendations(analysis *model.CostAnalysis) []model.Recommendation {
	top, topCost := topService(analysis)
	if top == "" {
		return nil
	}
	return []model.Recommendation{
		{
			Category:   model.CategoryRightsizing,
			Service:    top,
			Priority:   "high",
			Complexity: "medium",
			Rationale: fmt.Sprintf(
				"%s is the largest line item at $%.2f; review instance sizes and utilization", top, topCost),
		},
		{
			Category:   model.CategoryCleanup,
			Service:    top,
			Priority:   "medium",
			Complexity: "low",
			Rationale:  "Audit for unattached volumes, idle resources, and stale snapshots",
		},
	}
}

func topService(analysis *model.CostAnalysis) (string, float64) {
	var top string
	var topCost float64
	for service, cost := range analysis.ServiceCosts {
		if cost > topCost || (cost == topCost && (top == "" || service < top)) {
			top, topCost = service, cost
		}
	}
	return top, topCost
}

func meanStddev(samples []float64) (mean, stddev float64) {
	for _, v := range samples {
		mean += v
	}
	mean /= float64(len(samples))
	if len(samples) < 2 {
		return mean, 0
	}
	var variance float64
	for _, v := range samples {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(samples) - 1)
	return mean, math.Sqrt(variance)
}
