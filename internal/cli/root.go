package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/vscarpenter/spend-monitor/internal/config"
	"github.com/vscarpenter/spend-monitor/internal/costapi"
	"github.com/vscarpenter/spend-monitor/internal/pipeline"
	"github.com/vscarpenter/spend-monitor/pkg/broadcast"
	"github.com/vscarpenter/spend-monitor/pkg/dispatch"
	"github.com/vscarpenter/spend-monitor/pkg/enrichment"
	"github.com/vscarpenter/spend-monitor/pkg/evaluator"
	"github.com/vscarpenter/spend-monitor/pkg/push"
	"github.com/vscarpenter/spend-monitor/pkg/registry"
	"github.com/vscarpenter/spend-monitor/pkg/resilience"
	"github.com/vscarpenter/spend-monitor/pkg/storage"
)

// Version is set at build time via ldflags.
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "spendmon",
	Short: "spend-monitor - threshold alerts for cloud spending with push delivery",
	Long: `spend-monitor evaluates cloud spending against a threshold and notifies
subscribers over broadcast channels and per-device push, with AI-assisted
enrichment of the analysis behind a rate limiter and a monthly cost cap.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.spendmon/config.yaml)")
}

// loadConfig loads the configuration.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// newLogger creates a structured logger from config.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler)
}

// initStorage creates the storage backend from config.
func initStorage(cfg *config.Config) (storage.Storage, error) {
	return storage.NewSQLite(cfg.Storage.Path)
}

// initRegistry creates the device registry against the push backend.
func initRegistry(cfg *config.Config, store storage.Storage, logger *slog.Logger) *registry.DeviceRegistry {
	backend := push.NewHTTPBackend(cfg.Push.URL, cfg.Push.APIKey,
		config.ParseDuration(cfg.Push.Timeout, 0))
	return registry.New(backend, store, logger)
}

// initNotifiers creates broadcast notifiers from config.
func initNotifiers(cfg *config.Config) []broadcast.Notifier {
	var notifiers []broadcast.Notifier

	if cfg.Broadcast.Slack.Enabled && cfg.Broadcast.Slack.WebhookURL != "" {
		notifiers = append(notifiers, broadcast.NewSlackNotifier(
			cfg.Broadcast.Slack.WebhookURL,
			cfg.Broadcast.Slack.Channel,
		))
	}

	if cfg.Broadcast.Webhook.Enabled && cfg.Broadcast.Webhook.URL != "" {
		notifiers = append(notifiers, broadcast.NewWebhookNotifier(
			cfg.Broadcast.Webhook.URL,
			cfg.Broadcast.Webhook.Secret,
		))
	}

	return notifiers
}

// retryPolicy builds the shared retry policy from config.
func retryPolicy(cfg *config.Config) resilience.RetryPolicy {
	policy := resilience.DefaultRetryPolicy()
	if cfg.Retry.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.Retry.MaxAttempts
	}
	policy.BaseDelay = config.ParseDuration(cfg.Retry.BaseDelay, policy.BaseDelay)
	policy.MaxDelay = config.ParseDuration(cfg.Retry.MaxDelay, policy.MaxDelay)
	return policy
}

// initGateway creates the enrichment gateway, nil when disabled.
func initGateway(cfg *config.Config, store storage.Storage, logger *slog.Logger) (*enrichment.Gateway, error) {
	if !cfg.Enrichment.Enabled || cfg.Enrichment.URL == "" {
		return nil, nil
	}

	pricingPath := cfg.Enrichment.PricingPath
	if _, err := os.Stat(pricingPath); os.IsNotExist(err) {
		// Try relative to executable
		exePath, _ := os.Executable()
		if exePath != "" {
			altPath := filepath.Join(filepath.Dir(exePath), "pricing", "models.yaml")
			if _, altErr := os.Stat(altPath); altErr == nil {
				pricingPath = altPath
			}
		}
	}
	pricing, err := enrichment.LoadPricing(pricingPath)
	if err != nil {
		return nil, fmt.Errorf("load model pricing: %w", err)
	}

	limiter, err := resilience.NewRateLimiter(cfg.Enrichment.RateLimitPerMinute, time.Minute)
	if err != nil {
		return nil, fmt.Errorf("build rate limiter: %w", err)
	}
	breaker := resilience.NewCostCircuitBreaker(store, cfg.Enrichment.MonthlyCapUSD, logger)

	backend := enrichment.NewHTTPBackend(cfg.Enrichment.URL, cfg.Enrichment.APIKey, 0)
	return enrichment.NewGateway(backend, limiter, breaker, retryPolicy(cfg), pricing, enrichment.Config{
		Model:           cfg.Enrichment.Model,
		MaxTokens:       cfg.Enrichment.MaxTokens,
		FallbackOnError: cfg.Enrichment.FallbackOnError,
	}, logger), nil
}

// initPipeline wires the full pipeline. The returned storage must be
// closed by the caller.
func initPipeline(cfg *config.Config) (*pipeline.Pipeline, *registry.DeviceRegistry, storage.Storage, error) {
	logger := newLogger(cfg)

	store, err := initStorage(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	devices := initRegistry(cfg, store, logger)
	pushBackend := push.NewHTTPBackend(cfg.Push.URL, cfg.Push.APIKey,
		config.ParseDuration(cfg.Push.Timeout, 0))

	dispatcher := dispatch.New(initNotifiers(cfg), devices, pushBackend, retryPolicy(cfg), dispatch.Options{
		MaxParallel:       cfg.Alerting.MaxParallel,
		RequireAllDevices: cfg.Alerting.RequireAllDevices,
	}, logger)

	gateway, err := initGateway(cfg, store, logger)
	if err != nil {
		store.Close()
		return nil, nil, nil, err
	}

	costs := costapi.NewClient(cfg.Costs.URL, cfg.Costs.APIKey,
		config.ParseDuration(cfg.Costs.Timeout, 0))
	eval := evaluator.New(cfg.Alerting.MinServiceCostUSD)

	p := pipeline.New(costs, eval, gateway, dispatcher, pipeline.Options{
		ThresholdUSD:      cfg.Alerting.ThresholdUSD,
		EnrichmentEnabled: cfg.Enrichment.Enabled,
		TimeBudget:        cfg.Alerting.TimeBudgetDuration(),
	}, logger)

	return p, devices, store, nil
}
