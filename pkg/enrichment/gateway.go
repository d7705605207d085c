// Package enrichment augments a cost analysis with AI-produced summaries,
// anomaly flags, and recommendations, behind a rate limiter and a cost
// circuit breaker. When enrichment is unavailable for any reason the
// gateway degrades to deterministic fallback results rather than failing.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vscarpenter/spend-monitor/pkg/model"
	"github.com/vscarpenter/spend-monitor/pkg/resilience"
)

// Config tunes the gateway.
type Config struct {
	// Model is the inference model identifier sent with every call.
	Model string
	// MaxTokens caps the completion length.
	MaxTokens int
	// FallbackOnError degrades backend and parse failures to the
	// deterministic fallback instead of surfacing them.
	FallbackOnError bool
}

// Gateway is the rate-limited, cost-capped front door to the inference
// backend.
type Gateway struct {
	backend InferenceBackend
	limiter *resilience.RateLimiter
	breaker *resilience.CostCircuitBreaker
	retry   resilience.RetryPolicy
	pricing *PricingConfig
	cfg     Config
	logger  *slog.Logger
}

// NewGateway creates an enrichment gateway.
func NewGateway(backend InferenceBackend, limiter *resilience.RateLimiter, breaker *resilience.CostCircuitBreaker, retry resilience.RetryPolicy, pricing *PricingConfig, cfg Config, logger *slog.Logger) *Gateway {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	return &Gateway{
		backend: backend,
		limiter: limiter,
		breaker: breaker,
		retry:   retry,
		pricing: pricing,
		cfg:     cfg,
		logger:  logger.With("component", "enrichment"),
	}
}

// Analyze returns a structured analysis of the cost breakdown, or the
// deterministic fallback when enrichment is gated off or fails.
func (g *Gateway) Analyze(ctx context.Context, analysis *model.CostAnalysis) (*model.AIAnalysisResult, error) {
	completion, callCost, err := g.invoke(ctx, buildAnalysisPrompt(analysis))
	if err != nil {
		if g.shouldFallBack(err) {
			return fallbackAnalysis(analysis), nil
		}
		return nil, err
	}

	parsed, err := parseAnalysisResponse(completion)
	if err != nil {
		if g.cfg.FallbackOnError {
			g.logger.Warn("unparseable analysis response, using fallback", "error", err)
			return fallbackAnalysis(analysis), nil
		}
		return nil, err
	}

	return &model.AIAnalysisResult{
		Summary:          parsed.Summary,
		ConfidenceScore:  parsed.Confidence,
		KeyInsights:      parsed.KeyInsights,
		ModelUsed:        g.cfg.Model,
		EstimatedCostUSD: callCost,
		Timestamp:        time.Now().UTC(),
	}, nil
}

// DetectAnomalies flags services whose current cost deviates from
// historical values, falling back to a statistical sweep when gated off.
func (g *Gateway) DetectAnomalies(ctx context.Context, current *model.CostAnalysis, historical []*model.CostAnalysis) (*model.AnomalyResult, error) {
	completion, _, err := g.invoke(ctx, buildAnomalyPrompt(current, historical))
	if err != nil {
		if g.shouldFallBack(err) {
			return fallbackAnomalies(current, historical), nil
		}
		return nil, err
	}

	parsed, err := parseAnomalyResponse(completion)
	if err != nil {
		if g.cfg.FallbackOnError {
			g.logger.Warn("unparseable anomaly response, using fallback", "error", err)
			return fallbackAnomalies(current, historical), nil
		}
		return nil, err
	}

	return &model.AnomalyResult{Anomalies: parsed.Anomalies, ModelUsed: g.cfg.Model}, nil
}

// Recommend produces optimization recommendations, falling back to
// deterministic suggestions when gated off.
func (g *Gateway) Recommend(ctx context.Context, analysis *model.CostAnalysis) ([]model.Recommendation, error) {
	completion, _, err := g.invoke(ctx, buildRecommendationPrompt(analysis))
	if err != nil {
		if g.shouldFallBack(err) {
			return fallbackRecommendations(analysis), nil
		}
		return nil, err
	}

	parsed, err := parseRecommendationResponse(completion)
	if err != nil {
		if g.cfg.FallbackOnError {
			g.logger.Warn("unparseable recommendation response, using fallback", "error", err)
			return fallbackRecommendations(analysis), nil
		}
		return nil, err
	}
	return parsed.Recommendations, nil
}

// invoke runs one gated inference call: breaker, then limiter, then the
// backend through the retry policy. On success it records the call's
// estimated cost against the breaker and returns the completion.
func (g *Gateway) invoke(ctx context.Context, prompt string) (completion string, callCost float64, err error) {
	if err := g.breaker.Allow(ctx); err != nil {
		return "", 0, err
	}
	if err := g.limiter.Acquire(ctx); err != nil {
		return "", 0, err
	}

	params := InvokeParams{Model: g.cfg.Model, MaxTokens: g.cfg.MaxTokens, Temperature: 0.2}
	_, err = g.retry.Do(ctx, func(ctx context.Context) error {
		var invokeErr error
		completion, invokeErr = g.backend.Invoke(ctx, prompt, params)
		return invokeErr
	}, resilience.ClassifyBackendErrors)
	if err != nil {
		return "", 0, fmt.Errorf("invoke inference backend: %w", err)
	}

	callCost, costErr := estimateCallCost(g.pricing, g.cfg.Model, prompt, completion)
	if costErr != nil {
		g.logger.Warn("could not estimate call cost", "error", costErr)
	} else if recErr := g.breaker.Record(ctx, callCost); recErr != nil {
		// The call already happened; losing the increment is an
		// operational signal, not a caller-visible failure.
		g.logger.Error("record enrichment spend failed", "error", recErr)
	}
	return completion, callCost, nil
}

// shouldFallBack decides whether an invoke error degrades to fallback:
// breaker-open and rate-limit exhaustion always do, backend errors only
// when FallbackOnError is set. Caller cancellation never falls back.
func (g *Gateway) shouldFallBack(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, model.ErrCostCapExceeded) {
		g.logger.Warn("enrichment disabled by cost cap, using fallback")
		return true
	}
	if errors.Is(err, model.ErrRateLimitExceeded) {
		g.logger.Warn("enrichment rate limited past deadline, using fallback")
		return true
	}
	if g.cfg.FallbackOnError {
		g.logger.Warn("enrichment backend failed, using fallback", "error", err)
		return true
	}
	return false
}
