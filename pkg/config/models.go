package config

import (
	"fmt"
	"os"

	"github.com/convertlens/convertlens-go/internal/domain/attribution"
	"gopkg.in/yaml.v3"
)

// LoadModelConfig reads the active attribution models from a YAML file.
// A missing file falls back to the default configuration (all five models,
// default parameters, 90-day window). The loaded configuration is
// validated before use and treated as immutable afterwards.
func LoadModelConfig(path string) (attribution.ModelConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return attribution.DefaultModelConfig(), nil
		}
		return attribution.ModelConfig{}, fmt.Errorf("failed to read model config %s: %w", path, err)
	}

	cfg := attribution.ModelConfig{WindowDays: attribution.DefaultWindowDays}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return attribution.ModelConfig{}, fmt.Errorf("failed to parse model config %s: %w", path, err)
	}

	// Fill in defaults for parameters the file leaves unset.
	for i := range cfg.Models {
		spec := &cfg.Models[i]
		defaults := attribution.DefaultParams(spec.Type)
		if spec.Type == attribution.ModelTimeDecay && spec.Params.HalfLifeDays == 0 {
			spec.Params.HalfLifeDays = defaults.HalfLifeDays
		}
		if spec.Type == attribution.ModelPositionBased && spec.Params.FirstPct == 0 && spec.Params.LastPct == 0 {
			spec.Params = defaults
		}
	}

	if err := cfg.Validate(); err != nil {
		return attribution.ModelConfig{}, fmt.Errorf("invalid model config %s: %w", path, err)
	}
	return cfg, nil
}
