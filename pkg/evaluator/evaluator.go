// Package evaluator turns a cost breakdown into an alert decision.
package evaluator

import (
	"fmt"
	"sort"

	"github.com/vscarpenter/spend-monitor/pkg/model"
)

// OtherBucket is the synthetic service name small contributors are folded
// into before ranking.
const OtherBucket = "Other"

// criticalOverPct is the percentage-over-threshold above which an alert
// escalates from warning to critical.
const criticalOverPct = 50.0

// ThresholdEvaluator decides whether a cost analysis breaches the
// configured spend threshold, and at what level.
type ThresholdEvaluator struct {
	// TopN bounds the ranked top-services list in the alert context.
	TopN int
	// MinServiceCost folds services cheaper than this into the Other
	// bucket before ranking.
	MinServiceCost float64
}

// New creates an evaluator with the default top-services count.
func New(minServiceCost float64) *ThresholdEvaluator {
	return &ThresholdEvaluator{TopN: 5, MinServiceCost: minServiceCost}
}

// Evaluate returns the alert context for analysis against thresholdUSD, or
// (nil, nil) when total spend does not strictly exceed the threshold.
func (e *ThresholdEvaluator) Evaluate(analysis *model.CostAnalysis, thresholdUSD float64) (*model.AlertContext, error) {
	if thresholdUSD <= 0 {
		return nil, model.NewValidationError(fmt.Sprintf("threshold must be positive, got %.2f", thresholdUSD))
	}
	if analysis == nil {
		return nil, model.NewValidationError("cost analysis is nil")
	}
	if err := analysis.Validate(); err != nil {
		return nil, err
	}

	// Spend exactly at the threshold is not an alert.
	if analysis.TotalUSD <= thresholdUSD {
		return nil, nil
	}

	exceed := analysis.TotalUSD - thresholdUSD
	overPct := exceed / thresholdUSD * 100

	level := model.LevelWarning
	if overPct > criticalOverPct {
		level = model.LevelCritical
	}

	return &model.AlertContext{
		ThresholdUSD:   thresholdUSD,
		ExceedAmount:   exceed,
		PercentageOver: overPct,
		TopServices:    e.rankServices(analysis),
		Level:          level,
	}, nil
}

// rankServices buckets sub-minimum services into Other, then sorts by cost
// descending with ties broken by name ascending so output is deterministic.
func (e *ThresholdEvaluator) rankServices(analysis *model.CostAnalysis) []model.ServiceCost {
	folded := make(map[string]float64, len(analysis.ServiceCosts))
	for service, cost := range analysis.ServiceCosts {
		if cost < e.MinServiceCost && service != OtherBucket {
			folded[OtherBucket] += cost
			continue
		}
		folded[service] += cost
	}

	ranked := make([]model.ServiceCost, 0, len(folded))
	for service, cost := range folded {
		pct := 0.0
		if analysis.TotalUSD > 0 {
			pct = cost / analysis.TotalUSD * 100
		}
		ranked = append(ranked, model.ServiceCost{Service: service, CostUSD: cost, Percentage: pct})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].CostUSD != ranked[j].CostUSD {
			return ranked[i].CostUSD > ranked[j].CostUSD
		}
		return ranked[i].Service < ranked[j].Service
	})

	topN := e.TopN
	if topN <= 0 {
		topN = 5
	}
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked
}
