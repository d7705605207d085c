// Package pipeline wires the spend-monitor components into the single
// ordered run a trigger invokes: fetch costs, evaluate the threshold,
// enrich, dispatch.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vscarpenter/spend-monitor/internal/costapi"
	"github.com/vscarpenter/spend-monitor/pkg/dispatch"
	"github.com/vscarpenter/spend-monitor/pkg/enrichment"
	"github.com/vscarpenter/spend-monitor/pkg/evaluator"
	"github.com/vscarpenter/spend-monitor/pkg/model"
)

// RunReport summarizes one pipeline invocation.
type RunReport struct {
	StartedAt    time.Time              `json:"started_at"`
	Duration     time.Duration          `json:"duration"`
	TotalUSD     float64                `json:"total_usd"`
	ThresholdUSD float64                `json:"threshold_usd"`
	Alerted      bool                   `json:"alerted"`
	Level        model.AlertLevel       `json:"level,omitempty"`
	AlertID      string                 `json:"alert_id,omitempty"`
	Enriched     bool                   `json:"enriched"`
	Success      bool                   `json:"success"`
	Results      []model.DeliveryResult `json:"results,omitempty"`
}

// Options tune a pipeline run.
type Options struct {
	// ThresholdUSD is the spend threshold alerts fire against.
	ThresholdUSD float64
	// EnrichmentEnabled turns the AI enrichment stage on.
	EnrichmentEnabled bool
	// TimeBudget bounds the whole run; zero means no extra bound beyond
	// the caller's context.
	TimeBudget time.Duration
}

// Pipeline holds the five components and invokes them in order. There is
// exactly one implementation of each, so plain composition suffices.
type Pipeline struct {
	costs      costapi.CostSource
	evaluator  *evaluator.ThresholdEvaluator
	gateway    *enrichment.Gateway
	dispatcher *dispatch.AlertDispatcher
	opts       Options
	logger     *slog.Logger
}

// New creates a pipeline. The gateway may be nil when enrichment is
// disabled outright.
func New(costs costapi.CostSource, eval *evaluator.ThresholdEvaluator, gateway *enrichment.Gateway, dispatcher *dispatch.AlertDispatcher, opts Options, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		costs:      costs,
		evaluator:  eval,
		gateway:    gateway,
		dispatcher: dispatcher,
		opts:       opts,
		logger:     logger.With("component", "pipeline"),
	}
}

// Run executes one end-to-end invocation. Enrichment failures degrade to
// fallbacks and never fail the run; only cost fetch, evaluation, and a
// fatally malformed payload do.
func (p *Pipeline) Run(ctx context.Context) (*RunReport, error) {
	if p.opts.TimeBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.TimeBudget)
		defer cancel()
	}

	report := &RunReport{StartedAt: time.Now().UTC(), ThresholdUSD: p.opts.ThresholdUSD}
	defer func() { report.Duration = time.Since(report.StartedAt) }()

	_, start, end := model.BillingPeriod(report.StartedAt)
	analysis, err := p.costs.GetCosts(ctx, model.Period{Start: start, End: end})
	if err != nil {
		return report, fmt.Errorf("fetch costs: %w", err)
	}
	report.TotalUSD = analysis.TotalUSD

	alertCtx, err := p.evaluator.Evaluate(analysis, p.opts.ThresholdUSD)
	if err != nil {
		return report, fmt.Errorf("evaluate threshold: %w", err)
	}
	if alertCtx == nil {
		report.Success = true
		p.logger.Info("spend under threshold, no alert",
			"total_usd", analysis.TotalUSD, "threshold_usd", p.opts.ThresholdUSD)
		return report, nil
	}
	report.Alerted = true
	report.Level = alertCtx.Level

	var enrich *dispatch.Enrichment
	if p.opts.EnrichmentEnabled && p.gateway != nil {
		enrich = p.enrich(ctx, analysis)
		report.Enriched = enrich != nil
	}

	outcome, err := p.dispatcher.Dispatch(ctx, analysis, alertCtx, enrich)
	if err != nil {
		return report, fmt.Errorf("dispatch alert: %w", err)
	}
	report.AlertID = outcome.AlertID
	report.Success = outcome.Success
	report.Results = outcome.Results
	return report, nil
}

// enrich runs the gateway stages, tolerating each failing independently.
func (p *Pipeline) enrich(ctx context.Context, analysis *model.CostAnalysis) *dispatch.Enrichment {
	enrich := &dispatch.Enrichment{}

	result, err := p.gateway.Analyze(ctx, analysis)
	if err != nil {
		p.logger.Warn("enrichment analysis failed, alert goes out without it", "error", err)
	} else {
		enrich.Analysis = result
	}

	recs, err := p.gateway.Recommend(ctx, analysis)
	if err != nil {
		p.logger.Warn("enrichment recommendations failed", "error", err)
	} else {
		enrich.Recommendations = recs
	}

	if enrich.Analysis == nil && len(enrich.Recommendations) == 0 {
		return nil
	}
	return enrich
}
