package enrichment

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ModelPricing contains per-model inference pricing.
type ModelPricing struct {
	Model            string  `yaml:"model"`
	InputPerMillion  float64 `yaml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
}

// PricingConfig holds YAML-loaded pricing data for the inference backend.
type PricingConfig struct {
	Updated string         `yaml:"updated"`
	Models  []ModelPricing `yaml:"models"`
}

// Rates returns the per-token input and output rates for a model.
func (p *PricingConfig) Rates(modelName string) (inputPerToken, outputPerToken float64, err error) {
	for _, m := range p.Models {
		if m.Model == modelName {
			return m.InputPerMillion / 1e6, m.OutputPerMillion / 1e6, nil
		}
	}
	return 0, 0, fmt.Errorf("no pricing for model %q", modelName)
}

// LoadPricing reads a YAML pricing file.
func LoadPricing(path string) (*PricingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pricing file %s: %w", path, err)
	}
	cfg, err := LoadPricingFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse pricing file %s: %w", path, err)
	}
	return cfg, nil
}

// LoadPricingFromBytes parses YAML pricing data from raw bytes.
func LoadPricingFromBytes(data []byte) (*PricingConfig, error) {
	var cfg PricingConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse pricing data: %w", err)
	}
	if len(cfg.Models) == 0 {
		return nil, fmt.Errorf("pricing data defines no models")
	}
	return &cfg, nil
}
