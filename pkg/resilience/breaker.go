package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vscarpenter/spend-monitor/pkg/model"
)

// CounterStore persists the breaker's cumulative spend per billing period.
// AddSpend must be atomic: concurrent increments must not lose updates.
type CounterStore interface {
	// AddSpend atomically adds usd to the period's counter and returns
	// the new total.
	AddSpend(ctx context.Context, period string, usd float64) (float64, error)

	// GetSpend returns the period's current total, zero if absent.
	GetSpend(ctx context.Context, period string) (float64, error)

	// ResetSpend zeroes the period's counter.
	ResetSpend(ctx context.Context, period string) error
}

// CostCircuitBreaker disables enrichment once the cumulative estimated
// spend for the current billing period reaches the configured cap. The
// counter lives in the store so concurrent invocations of a short-lived
// runtime share one budget.
type CostCircuitBreaker struct {
	store  CounterStore
	capUSD float64
	logger *slog.Logger
	now    func() time.Time
}

// NewCostCircuitBreaker creates a breaker with the given monthly cap.
func NewCostCircuitBreaker(store CounterStore, capUSD float64, logger *slog.Logger) *CostCircuitBreaker {
	return &CostCircuitBreaker{
		store:  store,
		capUSD: capUSD,
		logger: logger,
		now:    time.Now,
	}
}

// Allow returns nil while the current billing period's cumulative spend is
// below the cap, and model.ErrCostCapExceeded once it is not. A cap of
// zero or less disables the breaker entirely.
func (b *CostCircuitBreaker) Allow(ctx context.Context) error {
	if b.capUSD <= 0 {
		return nil
	}
	period, _, _ := model.BillingPeriod(b.now())
	total, err := b.store.GetSpend(ctx, period)
	if err != nil {
		return fmt.Errorf("read breaker counter: %w", err)
	}
	if total >= b.capUSD {
		b.logger.Warn("enrichment cost cap reached, breaker open",
			"period", period, "spent_usd", total, "cap_usd", b.capUSD)
		return fmt.Errorf("%w: $%.4f of $%.4f spent in %s",
			model.ErrCostCapExceeded, total, b.capUSD, period)
	}
	return nil
}

// Record adds usd of estimated spend to the current billing period.
func (b *CostCircuitBreaker) Record(ctx context.Context, usd float64) error {
	if usd <= 0 {
		return nil
	}
	period, _, _ := model.BillingPeriod(b.now())
	total, err := b.store.AddSpend(ctx, period, usd)
	if err != nil {
		return fmt.Errorf("record enrichment spend: %w", err)
	}
	b.logger.Debug("recorded enrichment spend",
		"period", period, "call_usd", usd, "total_usd", total)
	return nil
}

// Reset clears the counter for the given billing period. Called on period
// rollover, never implicitly.
func (b *CostCircuitBreaker) Reset(ctx context.Context, period string) error {
	return b.store.ResetSpend(ctx, period)
}

// MemoryCounterStore is an in-process CounterStore for short-lived runs
// and tests.
type MemoryCounterStore struct {
	mu     sync.Mutex
	totals map[string]float64
}

// NewMemoryCounterStore creates an empty in-memory counter store.
func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{totals: make(map[string]float64)}
}

func (m *MemoryCounterStore) AddSpend(_ context.Context, period string, usd float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totals[period] += usd
	return m.totals[period], nil
}

func (m *MemoryCounterStore) GetSpend(_ context.Context, period string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totals[period], nil
}

func (m *MemoryCounterStore) ResetSpend(_ context.Context, period string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.totals, period)
	return nil
}
