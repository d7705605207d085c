// Package resilience provides the shared primitives the pipeline uses to
// survive flaky backends: bounded retry with exponential backoff, a
// rate limiter for the enrichment backend, and a cost circuit breaker
// that disables enrichment once a monthly spend cap is reached.
package resilience

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/vscarpenter/spend-monitor/pkg/model"
)

// Outcome tells the retry loop how to treat a failed attempt.
type Outcome int

const (
	// Retryable errors are retried until attempts are exhausted.
	Retryable Outcome = iota
	// Fatal errors propagate immediately without further attempts.
	Fatal
)

// ClassifyFunc maps an operation error to an Outcome.
type ClassifyFunc func(error) Outcome

// ClassifyBackendErrors is the default classifier: transient backend
// errors retry, everything else (validation, not-found, parse failures)
// is fatal.
func ClassifyBackendErrors(err error) Outcome {
	if model.IsTransient(err) {
		return Retryable
	}
	return Fatal
}

// RetryPolicy retries an operation with exponential backoff and jitter.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter is the fraction of the computed delay added as random slack.
	Jitter float64
}

// DefaultRetryPolicy matches the backoff behavior used across the pipeline.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Jitter:      0.2,
	}
}

// Do runs op, retrying per the policy when classify reports Retryable.
// It returns the number of attempts made together with the final error.
//
// A retry is never scheduled past the context deadline: when the remaining
// budget is smaller than the next backoff delay, Do fails fast with the
// last error instead of sleeping through the deadline. Cancellation during
// backoff returns promptly with the context error.
func (p RetryPolicy) Do(ctx context.Context, op func(context.Context) error, classify ClassifyFunc) (int, error) {
	if classify == nil {
		classify = ClassifyBackendErrors
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, fmt.Errorf("retry cancelled: %w", err)
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return attempt, nil
		}
		if classify(lastErr) == Fatal {
			return attempt, lastErr
		}
		if attempt == attempts {
			break
		}

		delay := p.backoff(attempt)
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < delay {
			return attempt, fmt.Errorf("giving up after %d attempts, next backoff exceeds deadline: %w", attempt, lastErr)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return attempt, fmt.Errorf("retry cancelled: %w", ctx.Err())
		}
	}

	return attempts, fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

// backoff computes the delay before the attempt-th retry: base * 2^(n-1)
// capped at MaxDelay, plus jitter.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			delay = p.MaxDelay
			break
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if p.Jitter > 0 {
		delay += time.Duration(rand.Float64() * p.Jitter * float64(delay))
	}
	return delay
}
