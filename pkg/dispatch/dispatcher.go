// Package dispatch composes the alert message and payload and fans them
// out over the broadcast channel and all active device bindings.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vscarpenter/spend-monitor/pkg/broadcast"
	"github.com/vscarpenter/spend-monitor/pkg/model"
	"github.com/vscarpenter/spend-monitor/pkg/push"
	"github.com/vscarpenter/spend-monitor/pkg/registry"
	"github.com/vscarpenter/spend-monitor/pkg/resilience"
)

// defaultMaxParallel bounds the device fan-out.
const defaultMaxParallel = 8

// Options tune dispatch behavior.
type Options struct {
	// MaxParallel bounds concurrent device sends. Zero means the default.
	MaxParallel int
	// RequireAllDevices makes overall success demand every device send
	// succeeding, not just the broadcast.
	RequireAllDevices bool
}

// Outcome is the aggregated result of one dispatch.
type Outcome struct {
	AlertID string                 `json:"alert_id"`
	Success bool                   `json:"success"`
	Results []model.DeliveryResult `json:"results"`
}

// AlertDispatcher sends a formatted alert to every configured channel.
// Channel failures are isolated: one device failing does not abort the
// broadcast or the other devices.
type AlertDispatcher struct {
	notifiers []broadcast.Notifier
	devices   *registry.DeviceRegistry
	backend   push.Backend
	retry     resilience.RetryPolicy
	opts      Options
	logger    *slog.Logger
}

// New creates an alert dispatcher.
func New(notifiers []broadcast.Notifier, devices *registry.DeviceRegistry, backend push.Backend, retry resilience.RetryPolicy, opts Options, logger *slog.Logger) *AlertDispatcher {
	return &AlertDispatcher{
		notifiers: notifiers,
		devices:   devices,
		backend:   backend,
		retry:     retry,
		opts:      opts,
		logger:    logger.With("component", "dispatch"),
	}
}

// Dispatch formats the alert and sends it: the broadcast goes out
// unconditionally over every notifier, and the push payload goes to every
// active device with bounded parallelism. Every send passes through the
// retry policy. The returned outcome lists one DeliveryResult per channel.
//
// An oversized push payload is a fatal formatting error: nothing is sent.
func (d *AlertDispatcher) Dispatch(ctx context.Context, analysis *model.CostAnalysis, alertCtx *model.AlertContext, enrich *Enrichment) (*Outcome, error) {
	alertID := uuid.New().String()

	payload := FormatPushPayload(analysis, alertCtx, alertID)
	payloadBytes, err := payload.Marshal()
	if err != nil {
		return nil, err
	}

	msg := broadcast.Message{
		Level:        alertCtx.Level,
		Subject:      payload.APS.Alert.Title,
		Body:         FormatMessage(analysis, alertCtx, enrich),
		TotalUSD:     analysis.TotalUSD,
		ThresholdUSD: alertCtx.ThresholdUSD,
		ExceedUSD:    alertCtx.ExceedAmount,
		AlertID:      alertID,
		Timestamp:    time.Now().UTC(),
	}

	targets, err := d.devices.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve device targets: %w", err)
	}

	var (
		mu      sync.Mutex
		results []model.DeliveryResult
		wg      sync.WaitGroup
	)
	record := func(r model.DeliveryResult) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	}

	// Broadcast runs concurrently with the device fan-out and is never
	// suppressed by device failures.
	for _, n := range d.notifiers {
		wg.Add(1)
		go func(n broadcast.Notifier) {
			defer wg.Done()
			record(d.sendBroadcast(ctx, n, msg))
		}(n)
	}

	maxParallel := d.opts.MaxParallel
	if maxParallel <= 0 {
		maxParallel = defaultMaxParallel
	}
	sem := make(chan struct{}, maxParallel)
	for _, target := range targets {
		wg.Add(1)
		go func(target model.DeviceRegistration) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			record(d.sendDevice(ctx, target, payloadBytes))
		}(target)
	}

	wg.Wait()

	outcome := &Outcome{
		AlertID: alertID,
		Success: model.OverallSuccess(results, d.opts.RequireAllDevices),
		Results: results,
	}
	d.logger.Info("dispatch finished",
		"alert_id", alertID,
		"level", alertCtx.Level,
		"channels", len(results),
		"devices", len(targets),
		"success", outcome.Success,
	)
	return outcome, nil
}

func (d *AlertDispatcher) sendBroadcast(ctx context.Context, n broadcast.Notifier, msg broadcast.Message) model.DeliveryResult {
	start := time.Now()
	attempts, err := d.retry.Do(ctx, func(ctx context.Context) error {
		return n.Send(ctx, msg)
	}, resilience.ClassifyBackendErrors)

	result := model.DeliveryResult{
		Channel:  model.ChannelBroadcast,
		Target:   n.Name(),
		Success:  err == nil,
		Attempts: attempts,
		Duration: time.Since(start),
	}
	if err != nil {
		result.Err = err.Error()
		d.logger.Error("broadcast send failed",
			"notifier", n.Name(), "attempts", attempts, "error", err)
	}
	return result
}

func (d *AlertDispatcher) sendDevice(ctx context.Context, target model.DeviceRegistration, payload []byte) model.DeliveryResult {
	start := time.Now()
	attempts, err := d.retry.Do(ctx, func(ctx context.Context) error {
		return d.backend.PublishToEndpoint(ctx, target.EndpointRef, payload)
	}, resilience.ClassifyBackendErrors)

	result := model.DeliveryResult{
		Channel:  model.ChannelDevice,
		Target:   target.EndpointRef,
		Success:  err == nil,
		Attempts: attempts,
		Duration: time.Since(start),
	}
	if err != nil {
		// No fallback substitution: the broadcast already covers the
		// general audience, so the failure is only recorded.
		result.Err = err.Error()
		d.logger.Error("device push failed",
			"endpoint", target.EndpointRef, "attempts", attempts, "error", err)
	}
	return result
}
