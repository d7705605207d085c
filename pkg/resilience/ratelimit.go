package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/vscarpenter/spend-monitor/pkg/model"
)

// RateLimiter bounds calls to the enrichment backend to at most maxCalls
// per rolling window. Callers block cooperatively until a slot opens; a
// caller whose deadline elapses first receives ErrRateLimitExceeded.
type RateLimiter struct {
	limiter *rate.Limiter
	window  time.Duration
	max     int
}

// NewRateLimiter creates a limiter admitting maxCalls per window, spaced
// evenly so no rolling window ever sees more than maxCalls completed calls.
func NewRateLimiter(maxCalls int, window time.Duration) (*RateLimiter, error) {
	if maxCalls < 1 {
		return nil, fmt.Errorf("rate limiter max calls must be positive, got %d", maxCalls)
	}
	if window <= 0 {
		return nil, fmt.Errorf("rate limiter window must be positive, got %s", window)
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Every(window/time.Duration(maxCalls)), 1),
		window:  window,
		max:     maxCalls,
	}, nil
}

// Acquire blocks until a call slot is free or the context expires.
// Deadline expiry, including a deadline too close to ever reach the next
// slot, maps to model.ErrRateLimitExceeded rather than a bare context error.
func (r *RateLimiter) Acquire(ctx context.Context) error {
	err := r.limiter.Wait(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("rate limiter wait cancelled: %w", err)
	}
	return fmt.Errorf("%w: %v", model.ErrRateLimitExceeded, err)
}

// Allow reports whether a call slot is immediately available, consuming
// it if so.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Window returns the configured window size.
func (r *RateLimiter) Window() time.Duration { return r.window }

// MaxCalls returns the configured per-window call budget.
func (r *RateLimiter) MaxCalls() int { return r.max }
