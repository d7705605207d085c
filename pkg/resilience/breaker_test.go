package resilience_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vscarpenter/spend-monitor/pkg/model"
	"github.com/vscarpenter/spend-monitor/pkg/resilience"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCostCircuitBreaker_OpensAtCap(t *testing.T) {
	store := resilience.NewMemoryCounterStore()
	breaker := resilience.NewCostCircuitBreaker(store, 1.0, testLogger())
	ctx := context.Background()

	require.NoError(t, breaker.Allow(ctx))
	require.NoError(t, breaker.Record(ctx, 0.6))
	require.NoError(t, breaker.Allow(ctx))
	require.NoError(t, breaker.Record(ctx, 0.5))

	err := breaker.Allow(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrCostCapExceeded)
}

func TestCostCircuitBreaker_ExactCapOpens(t *testing.T) {
	store := resilience.NewMemoryCounterStore()
	breaker := resilience.NewCostCircuitBreaker(store, 1.0, testLogger())
	ctx := context.Background()

	require.NoError(t, breaker.Record(ctx, 1.0))
	assert.ErrorIs(t, breaker.Allow(ctx), model.ErrCostCapExceeded)
}

func TestCostCircuitBreaker_ZeroCapDisables(t *testing.T) {
	store := resilience.NewMemoryCounterStore()
	breaker := resilience.NewCostCircuitBreaker(store, 0, testLogger())
	ctx := context.Background()

	require.NoError(t, breaker.Record(ctx, 1000))
	assert.NoError(t, breaker.Allow(ctx))
}

func TestCostCircuitBreaker_NonPositiveRecordIsNoop(t *testing.T) {
	store := resilience.NewMemoryCounterStore()
	breaker := resilience.NewCostCircuitBreaker(store, 1.0, testLogger())
	ctx := context.Background()

	require.NoError(t, breaker.Record(ctx, 0))
	require.NoError(t, breaker.Record(ctx, -0.5))

	period, _, _ := model.BillingPeriod(time.Now())
	total, err := store.GetSpend(ctx, period)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestCostCircuitBreaker_ResetReopens(t *testing.T) {
	store := resilience.NewMemoryCounterStore()
	breaker := resilience.NewCostCircuitBreaker(store, 1.0, testLogger())
	ctx := context.Background()

	require.NoError(t, breaker.Record(ctx, 2.0))
	require.Error(t, breaker.Allow(ctx))

	period, _, _ := model.BillingPeriod(time.Now())
	require.NoError(t, breaker.Reset(ctx, period))
	assert.NoError(t, breaker.Allow(ctx))
}

func TestMemoryCounterStore_ConcurrentAddSpend(t *testing.T) {
	store := resilience.NewMemoryCounterStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.AddSpend(ctx, "2025-06", 0.01)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	total, err := store.GetSpend(ctx, "2025-06")
	require.NoError(t, err)
	assert.InDelta(t, 1.00, total, 1e-9)
}

func TestMemoryCounterStore_PeriodsAreIndependent(t *testing.T) {
	store := resilience.NewMemoryCounterStore()
	ctx := context.Background()

	_, err := store.AddSpend(ctx, "2025-06", 1.5)
	require.NoError(t, err)

	total, err := store.GetSpend(ctx, "2025-07")
	require.NoError(t, err)
	assert.Zero(t, total)
}
