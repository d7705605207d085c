package resilience_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vscarpenter/spend-monitor/pkg/model"
	"github.com/vscarpenter/spend-monitor/pkg/resilience"
)

func TestNewRateLimiter_Validation(t *testing.T) {
	_, err := resilience.NewRateLimiter(0, time.Minute)
	assert.Error(t, err)

	_, err = resilience.NewRateLimiter(10, 0)
	assert.Error(t, err)

	rl, err := resilience.NewRateLimiter(10, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 10, rl.MaxCalls())
	assert.Equal(t, time.Minute, rl.Window())
}

func TestRateLimiter_AllowSpacesCalls(t *testing.T) {
	rl, err := resilience.NewRateLimiter(2, time.Hour)
	require.NoError(t, err)

	// One immediate slot, then the limiter paces at window/maxCalls.
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow())
}

func TestRateLimiter_AcquireImmediate(t *testing.T) {
	rl, err := resilience.NewRateLimiter(1000, time.Millisecond)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, rl.Acquire(context.Background()))
	}
}

func TestRateLimiter_AcquireDeadlineMapsToRateLimit(t *testing.T) {
	rl, err := resilience.NewRateLimiter(1, time.Hour)
	require.NoError(t, err)
	require.NoError(t, rl.Acquire(context.Background()))

	// The next slot is an hour away, far past this deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err = rl.Acquire(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrRateLimitExceeded)
}

func TestRateLimiter_AcquireCancelledIsNotRateLimit(t *testing.T) {
	rl, err := resilience.NewRateLimiter(1, time.Hour)
	require.NoError(t, err)
	require.NoError(t, rl.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = rl.Acquire(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, model.ErrRateLimitExceeded)
	assert.ErrorIs(t, err, context.Canceled)
}
