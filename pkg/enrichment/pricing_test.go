package enrichment_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vscarpenter/spend-monitor/pkg/enrichment"
)

func TestLoadPricingFromBytes(t *testing.T) {
	cfg, err := enrichment.LoadPricingFromBytes(testPricingYAML)
	require.NoError(t, err)
	require.Len(t, cfg.Models, 1)
	assert.Equal(t, "titan-text-express", cfg.Models[0].Model)
}

func TestLoadPricingFromBytes_Invalid(t *testing.T) {
	_, err := enrichment.LoadPricingFromBytes([]byte("models: [not"))
	assert.Error(t, err)
}

func TestLoadPricingFromBytes_NoModels(t *testing.T) {
	_, err := enrichment.LoadPricingFromBytes([]byte("updated: 2025-06-01\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no models")
}

func TestLoadPricing_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, testPricingYAML, 0o644))

	cfg, err := enrichment.LoadPricing(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Models, 1)
}

func TestLoadPricing_MissingFile(t *testing.T) {
	_, err := enrichment.LoadPricing(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestPricingConfig_Rates(t *testing.T) {
	cfg, err := enrichment.LoadPricingFromBytes(testPricingYAML)
	require.NoError(t, err)

	in, out, err := cfg.Rates("titan-text-express")
	require.NoError(t, err)
	assert.InDelta(t, 200.0/1e6, in, 1e-12)
	assert.InDelta(t, 600.0/1e6, out, 1e-12)

	_, _, err = cfg.Rates("unknown-model")
	assert.Error(t, err)
}

func TestCountTokens(t *testing.T) {
	assert.Greater(t, enrichment.CountTokens("The quick brown fox jumps over the lazy dog."), int64(0))
	assert.Zero(t, enrichment.CountTokens(""))
}
