package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vscarpenter/spend-monitor/internal/pipeline"
	"github.com/vscarpenter/spend-monitor/pkg/broadcast"
	"github.com/vscarpenter/spend-monitor/pkg/dispatch"
	"github.com/vscarpenter/spend-monitor/pkg/evaluator"
	"github.com/vscarpenter/spend-monitor/pkg/model"
	"github.com/vscarpenter/spend-monitor/pkg/push"
	"github.com/vscarpenter/spend-monitor/pkg/registry"
	"github.com/vscarpenter/spend-monitor/pkg/resilience"
	"github.com/vscarpenter/spend-monitor/pkg/storage"
)

type fakeCosts struct {
	analysis *model.CostAnalysis
	err      error
}

func (f *fakeCosts) GetCosts(_ context.Context, period model.Period) (*model.CostAnalysis, error) {
	if f.err != nil {
		return nil, f.err
	}
	a := *f.analysis
	a.Period = period
	return &a, nil
}

type stubNotifier struct {
	mu    sync.Mutex
	sends int
}

func (s *stubNotifier) Name() string { return "stub" }

func (s *stubNotifier) Send(context.Context, broadcast.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends++
	return nil
}

type stubPublisher struct{}

func (stubPublisher) CreateOrReuseEndpoint(context.Context, string) (string, error) {
	return "", errors.New("not used")
}
func (stubPublisher) UpdateEndpoint(context.Context, string, string) error { return nil }
func (stubPublisher) DeleteEndpoint(context.Context, string) error { return nil }
func (stubPublisher) PublishToEndpoint(context.Context, string, []byte) error { return nil }
func (stubPublisher) GetEndpointAttributes(context.Context, string) (*push.EndpointAttributes, error) {
	return nil, errors.New("not used")
}
func (stubPublisher) Health(context.Context) (*push.PlatformHealth, error) {
	return nil, errors.New("not used")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func costAnalysis(total float64, costs map[string]float64) *model.CostAnalysis {
	return &model.CostAnalysis{TotalUSD: total, ServiceCosts: costs, Currency: "USD"}
}

func newTestPipeline(t *testing.T, costs *fakeCosts, notifier *stubNotifier, opts pipeline.Options) *pipeline.Pipeline {
	t.Helper()
	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	devices := registry.New(stubPublisher{}, store, testLogger())
	retry := resilience.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	dispatcher := dispatch.New([]broadcast.Notifier{notifier}, devices, stubPublisher{}, retry, dispatch.Options{}, testLogger())

	return pipeline.New(costs, evaluator.New(0), nil, dispatcher, opts, testLogger())
}

func TestRun_UnderThresholdNoAlert(t *testing.T) {
	costs := &fakeCosts{analysis: costAnalysis(3.25, map[string]float64{"EC2": 3.25})}
	notifier := &stubNotifier{}
	p := newTestPipeline(t, costs, notifier, pipeline.Options{ThresholdUSD: 10.0})

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Success)
	assert.False(t, report.Alerted)
	assert.Equal(t, 3.25, report.TotalUSD)
	assert.Empty(t, report.AlertID)
	assert.Zero(t, notifier.sends)
}

func TestRun_AlertDispatched(t *testing.T) {
	costs := &fakeCosts{analysis: costAnalysis(15.50, map[string]float64{"EC2": 10.00, "S3": 5.50})}
	notifier := &stubNotifier{}
	p := newTestPipeline(t, costs, notifier, pipeline.Options{ThresholdUSD: 10.0})

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Alerted)
	assert.Equal(t, model.LevelWarning, report.Level)
	assert.True(t, report.Success)
	assert.NotEmpty(t, report.AlertID)
	assert.False(t, report.Enriched)
	assert.Equal(t, 1, notifier.sends)
	require.Len(t, report.Results, 1)
	assert.True(t, report.Results[0].Success)
}

func TestRun_CriticalAlert(t *testing.T) {
	costs := &fakeCosts{analysis: costAnalysis(25.00, map[string]float64{"EC2": 25.00})}
	notifier := &stubNotifier{}
	p := newTestPipeline(t, costs, notifier, pipeline.Options{ThresholdUSD: 10.0})

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.LevelCritical, report.Level)
}

func TestRun_CostFetchFailure(t *testing.T) {
	costs := &fakeCosts{err: model.NewTransientError("costs", errors.New("unreachable"))}
	p := newTestPipeline(t, costs, &stubNotifier{}, pipeline.Options{ThresholdUSD: 10.0})

	report, err := p.Run(context.Background())
	require.Error(t, err)
	assert.False(t, report.Success)
	assert.Contains(t, err.Error(), "fetch costs")
}

func TestRun_InvalidThreshold(t *testing.T) {
	costs := &fakeCosts{analysis: costAnalysis(15.00, map[string]float64{"EC2": 15.00})}
	p := newTestPipeline(t, costs, &stubNotifier{}, pipeline.Options{ThresholdUSD: 0})

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
}

func TestRun_TimeBudgetExpires(t *testing.T) {
	slow := &fakeCosts{err: context.DeadlineExceeded}
	p := newTestPipeline(t, slow, &stubNotifier{}, pipeline.Options{
		ThresholdUSD: 10.0,
		TimeBudget:   time.Millisecond,
	})

	_, err := p.Run(context.Background())
	require.Error(t, err)
}

func TestRun_ReportTimings(t *testing.T) {
	costs := &fakeCosts{analysis: costAnalysis(1.00, map[string]float64{"S3": 1.00})}
	p := newTestPipeline(t, costs, &stubNotifier{}, pipeline.Options{ThresholdUSD: 10.0})

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, report.StartedAt.IsZero())
	assert.GreaterOrEqual(t, report.Duration, time.Duration(0))
	assert.Equal(t, 10.0, report.ThresholdUSD)
}
