package dispatch_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vscarpenter/spend-monitor/pkg/broadcast"
	"github.com/vscarpenter/spend-monitor/pkg/dispatch"
	"github.com/vscarpenter/spend-monitor/pkg/model"
	"github.com/vscarpenter/spend-monitor/pkg/push"
	"github.com/vscarpenter/spend-monitor/pkg/registry"
	"github.com/vscarpenter/spend-monitor/pkg/resilience"
	"github.com/vscarpenter/spend-monitor/pkg/storage"
)

// fakeNotifier counts sends and fails when told to.
type fakeNotifier struct {
	mu    sync.Mutex
	name  string
	fail  error
	sends int
}

func (f *fakeNotifier) Name() string { return f.name }

func (f *fakeNotifier) Send(_ context.Context, _ broadcast.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends++
	return f.fail
}

func (f *fakeNotifier) sent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sends
}

// fakePublisher implements push.Backend for the publish path only.
type fakePublisher struct {
	mu       sync.Mutex
	failRefs map[string]error
	publishes map[string]int
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{failRefs: make(map[string]error), publishes: make(map[string]int)}
}

func (f *fakePublisher) CreateOrReuseEndpoint(context.Context, string) (string, error) {
	return "", errors.New("not used")
}
func (f *fakePublisher) UpdateEndpoint(context.Context, string, string) error {
	return errors.New("not used")
}
func (f *fakePublisher) DeleteEndpoint(context.Context, string) error {
	return errors.New("not used")
}
func (f *fakePublisher) GetEndpointAttributes(context.Context, string) (*push.EndpointAttributes, error) {
	return nil, errors.New("not used")
}
func (f *fakePublisher) Health(context.Context) (*push.PlatformHealth, error) {
	return nil, errors.New("not used")
}

func (f *fakePublisher) PublishToEndpoint(_ context.Context, endpointRef string, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publishes[endpointRef]++
	return f.failRefs[endpointRef]
}

func (f *fakePublisher) published() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.publishes {
		total += n
	}
	return total
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAlert() (*model.CostAnalysis, *model.AlertContext) {
	analysis := &model.CostAnalysis{
		TotalUSD:     15.50,
		ServiceCosts: map[string]float64{"EC2": 10.00, "S3": 5.50},
		Period: model.Period{
			Start: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		},
		Currency: "USD",
	}
	alertCtx := &model.AlertContext{
		ThresholdUSD:   10.0,
		ExceedAmount:   5.50,
		PercentageOver: 55.0,
		Level:          model.LevelWarning,
		TopServices: []model.ServiceCost{
			{Service: "EC2", CostUSD: 10.00, Percentage: 64.5},
			{Service: "S3", CostUSD: 5.50, Percentage: 35.5},
		},
	}
	return analysis, alertCtx
}

func newTestDispatcher(t *testing.T, notifiers []broadcast.Notifier, backend push.Backend, deviceRefs []string, opts dispatch.Options) *dispatch.AlertDispatcher {
	t.Helper()
	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	for i, ref := range deviceRefs {
		token := strings.Repeat(fmt.Sprintf("%x", i%16), 64)[:64]
		require.NoError(t, store.PutRegistration(context.Background(), &model.DeviceRegistration{
			DeviceToken: token,
			EndpointRef: ref,
			Active:      true,
		}))
	}

	devices := registry.New(backend, store, testLogger())
	retry := resilience.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	return dispatch.New(notifiers, devices, backend, retry, opts, testLogger())
}

func TestDispatch_BroadcastAndAllDevices(t *testing.T) {
	notifier := &fakeNotifier{name: "slack"}
	publisher := newFakePublisher()
	d := newTestDispatcher(t, []broadcast.Notifier{notifier}, publisher, []string{"ep-1", "ep-2"}, dispatch.Options{})

	analysis, alertCtx := testAlert()
	outcome, err := d.Dispatch(context.Background(), analysis, alertCtx, nil)
	require.NoError(t, err)

	assert.True(t, outcome.Success)
	assert.NotEmpty(t, outcome.AlertID)
	assert.Len(t, outcome.Results, 3)
	assert.Equal(t, 1, notifier.sent())
	assert.Equal(t, 2, publisher.published())
}

func TestDispatch_DeviceFailuresDoNotSinkTheAlert(t *testing.T) {
	notifier := &fakeNotifier{name: "slack"}
	publisher := newFakePublisher()
	publisher.failRefs["ep-2"] = model.NewTransientError("push", errors.New("503"))
	publisher.failRefs["ep-3"] = model.NewTransientError("push", errors.New("timeout"))

	d := newTestDispatcher(t, []broadcast.Notifier{notifier}, publisher, []string{"ep-1", "ep-2", "ep-3"}, dispatch.Options{})

	analysis, alertCtx := testAlert()
	outcome, err := d.Dispatch(context.Background(), analysis, alertCtx, nil)
	require.NoError(t, err)

	// The broadcast went out, so the dispatch as a whole succeeded even
	// though two of three devices failed.
	assert.True(t, outcome.Success)
	require.Len(t, outcome.Results, 4)

	failures := 0
	for _, r := range outcome.Results {
		if r.Channel == model.ChannelDevice && !r.Success {
			failures++
			assert.Equal(t, 2, r.Attempts)
			assert.NotEmpty(t, r.Err)
		}
	}
	assert.Equal(t, 2, failures)
}

func TestDispatch_RequireAllDevices(t *testing.T) {
	notifier := &fakeNotifier{name: "slack"}
	publisher := newFakePublisher()
	publisher.failRefs["ep-2"] = model.NewTransientError("push", errors.New("503"))

	d := newTestDispatcher(t, []broadcast.Notifier{notifier}, publisher, []string{"ep-1", "ep-2"},
		dispatch.Options{RequireAllDevices: true})

	analysis, alertCtx := testAlert()
	outcome, err := d.Dispatch(context.Background(), analysis, alertCtx, nil)
	require.NoError(t, err)
	assert.False(t, outcome.Success)
}

func TestDispatch_BroadcastFailureFailsOverall(t *testing.T) {
	notifier := &fakeNotifier{name: "slack", fail: errors.New("webhook rejected")}
	publisher := newFakePublisher()
	d := newTestDispatcher(t, []broadcast.Notifier{notifier}, publisher, []string{"ep-1"}, dispatch.Options{})

	analysis, alertCtx := testAlert()
	outcome, err := d.Dispatch(context.Background(), analysis, alertCtx, nil)
	require.NoError(t, err)

	assert.False(t, outcome.Success)
	// Devices were still attempted; channels are independent.
	assert.Equal(t, 1, publisher.published())
}

func TestDispatch_TransientBroadcastIsRetried(t *testing.T) {
	notifier := &fakeNotifier{name: "webhook", fail: model.NewTransientError("webhook", errors.New("502"))}
	publisher := newFakePublisher()
	d := newTestDispatcher(t, []broadcast.Notifier{notifier}, publisher, nil, dispatch.Options{})

	analysis, alertCtx := testAlert()
	outcome, err := d.Dispatch(context.Background(), analysis, alertCtx, nil)
	require.NoError(t, err)

	assert.False(t, outcome.Success)
	assert.Equal(t, 2, notifier.sent())
}

func TestDispatch_OversizedPayloadSendsNothing(t *testing.T) {
	notifier := &fakeNotifier{name: "slack"}
	publisher := newFakePublisher()
	d := newTestDispatcher(t, []broadcast.Notifier{notifier}, publisher, []string{"ep-1"}, dispatch.Options{})

	analysis, alertCtx := testAlert()
	alertCtx.TopServices[0].Service = strings.Repeat("x", model.MaxPayloadBytes)

	outcome, err := d.Dispatch(context.Background(), analysis, alertCtx, nil)
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
	assert.Nil(t, outcome)
	assert.Zero(t, notifier.sent())
	assert.Zero(t, publisher.published())
}

func TestDispatch_MultipleNotifiers(t *testing.T) {
	slack := &fakeNotifier{name: "slack"}
	webhook := &fakeNotifier{name: "webhook", fail: errors.New("down")}
	publisher := newFakePublisher()
	d := newTestDispatcher(t, []broadcast.Notifier{slack, webhook}, publisher, nil, dispatch.Options{})

	analysis, alertCtx := testAlert()
	outcome, err := d.Dispatch(context.Background(), analysis, alertCtx, nil)
	require.NoError(t, err)

	// One broadcast channel succeeding is enough.
	assert.True(t, outcome.Success)
	assert.Len(t, outcome.Results, 2)
}

func TestDispatch_NoDevices(t *testing.T) {
	notifier := &fakeNotifier{name: "slack"}
	publisher := newFakePublisher()
	d := newTestDispatcher(t, []broadcast.Notifier{notifier}, publisher, nil, dispatch.Options{})

	analysis, alertCtx := testAlert()
	outcome, err := d.Dispatch(context.Background(), analysis, alertCtx, nil)
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Len(t, outcome.Results, 1)
}
