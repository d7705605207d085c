package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all spend-monitor configuration.
type Config struct {
	Storage    StorageConfig    `mapstructure:"storage"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	Costs      CostsConfig      `mapstructure:"costs"`
	Push       PushConfig       `mapstructure:"push"`
	Broadcast  BroadcastConfig  `mapstructure:"broadcast"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Server     ServerConfig     `mapstructure:"server"`
}

// StorageConfig defines database settings.
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// AlertingConfig defines threshold evaluation and dispatch settings.
type AlertingConfig struct {
	ThresholdUSD      float64 `mapstructure:"threshold_usd"`
	MinServiceCostUSD float64 `mapstructure:"min_service_cost_usd"`
	MaxParallel       int     `mapstructure:"max_parallel"`
	RequireAllDevices bool    `mapstructure:"require_all_devices"`
	TimeBudget        string  `mapstructure:"time_budget"`
}

// TimeBudgetDuration parses the run time budget, zero when unset.
func (a AlertingConfig) TimeBudgetDuration() time.Duration {
	d, _ := time.ParseDuration(a.TimeBudget)
	return d
}

// CostsConfig defines the cost-and-usage backend.
type CostsConfig struct {
	URL     string `mapstructure:"url"`
	APIKey  string `mapstructure:"api_key"`
	Timeout string `mapstructure:"timeout"`
}

// PushConfig defines the push provider backend.
type PushConfig struct {
	URL     string `mapstructure:"url"`
	APIKey  string `mapstructure:"api_key"`
	Timeout string `mapstructure:"timeout"`
}

// BroadcastConfig defines broadcast channel integrations.
type BroadcastConfig struct {
	Slack   SlackConfig   `mapstructure:"slack"`
	Webhook WebhookConfig `mapstructure:"webhook"`
}

// SlackConfig defines Slack webhook settings.
type SlackConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
	Channel    string `mapstructure:"channel"`
}

// WebhookConfig defines generic webhook settings.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Secret  string `mapstructure:"secret"`
}

// EnrichmentConfig defines the AI enrichment gateway settings.
type EnrichmentConfig struct {
	Enabled            bool    `mapstructure:"enabled"`
	URL                string  `mapstructure:"url"`
	APIKey             string  `mapstructure:"api_key"`
	Model              string  `mapstructure:"model"`
	MaxTokens          int     `mapstructure:"max_tokens"`
	FallbackOnError    bool    `mapstructure:"fallback_on_error"`
	RateLimitPerMinute int     `mapstructure:"rate_limit_per_minute"`
	MonthlyCapUSD      float64 `mapstructure:"monthly_cap_usd"`
	PricingPath        string  `mapstructure:"pricing_path"`
}

// RetryConfig defines the shared retry policy.
type RetryConfig struct {
	MaxAttempts int    `mapstructure:"max_attempts"`
	BaseDelay   string `mapstructure:"base_delay"`
	MaxDelay    string `mapstructure:"max_delay"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig defines the HTTP trigger server.
type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

// Load reads configuration from file and environment variables.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("find home directory: %w", err)
		}

		v.AddConfigPath(filepath.Join(home, ".spendmon"))
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// Defaults
	home, _ := os.UserHomeDir()
	v.SetDefault("storage.path", filepath.Join(home, ".spendmon", "spendmon.db"))
	v.SetDefault("alerting.threshold_usd", 10.0)
	v.SetDefault("alerting.min_service_cost_usd", 1.0)
	v.SetDefault("alerting.max_parallel", 8)
	v.SetDefault("alerting.require_all_devices", false)
	v.SetDefault("alerting.time_budget", "2m")
	v.SetDefault("costs.timeout", "30s")
	v.SetDefault("push.timeout", "10s")
	v.SetDefault("broadcast.slack.channel", "#cloud-costs")
	v.SetDefault("enrichment.enabled", true)
	v.SetDefault("enrichment.model", "titan-text-express")
	v.SetDefault("enrichment.max_tokens", 1024)
	v.SetDefault("enrichment.fallback_on_error", true)
	v.SetDefault("enrichment.rate_limit_per_minute", 10)
	v.SetDefault("enrichment.monthly_cap_usd", 50.0)
	v.SetDefault("enrichment.pricing_path", "pricing/models.yaml")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", "500ms")
	v.SetDefault("retry.max_delay", "10s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("server.listen", ":8080")

	// Environment variables
	v.SetEnvPrefix("SPENDMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// ParseDuration parses s, returning fallback when s is empty or invalid.
func ParseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
