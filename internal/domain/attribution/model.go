package attribution

import "errors"

// ModelType is the closed set of attribution model variants. Dispatch
// happens through Weights, never through runtime reflection.
type ModelType string

const (
	ModelFirstTouch    ModelType = "first-touch"
	ModelLastTouch     ModelType = "last-touch"
	ModelLinear        ModelType = "linear"
	ModelTimeDecay     ModelType = "time-decay"
	ModelPositionBased ModelType = "position-based"
)

// AllModelTypes returns every model variant in a stable order.
func AllModelTypes() []ModelType {
	return []ModelType{ModelFirstTouch, ModelLastTouch, ModelLinear, ModelTimeDecay, ModelPositionBased}
}

// Valid reports whether m names a known model variant.
func (m ModelType) Valid() bool {
	switch m {
	case ModelFirstTouch, ModelLastTouch, ModelLinear, ModelTimeDecay, ModelPositionBased:
		return true
	}
	return false
}

// Default model parameters and attribution window.
const (
	DefaultHalfLifeDays = 7.0
	DefaultFirstPct     = 0.40
	DefaultLastPct      = 0.40
	DefaultWindowDays   = 90
)

// ModelParams carries the tunables for the parameterized model variants.
// HalfLifeDays applies to time-decay; FirstPct/LastPct to position-based.
type ModelParams struct {
	HalfLifeDays float64 `yaml:"half_life_days" json:"halfLifeDays,omitempty"`
	FirstPct     float64 `yaml:"first_pct" json:"firstPct,omitempty"`
	LastPct      float64 `yaml:"last_pct" json:"lastPct,omitempty"`
}

// DefaultParams returns the default parameters for a model variant.
func DefaultParams(m ModelType) ModelParams {
	switch m {
	case ModelTimeDecay:
		return ModelParams{HalfLifeDays: DefaultHalfLifeDays}
	case ModelPositionBased:
		return ModelParams{FirstPct: DefaultFirstPct, LastPct: DefaultLastPct}
	}
	return ModelParams{}
}

// ValidateFor checks that the parameters are in domain for the given model.
func (p ModelParams) ValidateFor(m ModelType) error {
	v := &ValidationError{}
	if !m.Valid() {
		v.Add("modelType", "unknown model type")
		return v.OrNil()
	}
	switch m {
	case ModelTimeDecay:
		if p.HalfLifeDays <= 0 {
			v.Add("halfLifeDays", "must be positive")
		}
	case ModelPositionBased:
		if p.FirstPct < 0 || p.LastPct < 0 {
			v.Add("firstPct", "split percentages must be non-negative")
		}
		if p.FirstPct+p.LastPct > 1 {
			v.Add("lastPct", "split percentages must sum to at most 1")
		}
	}
	return v.OrNil()
}

// ModelSpec pairs a model variant with its parameters.
type ModelSpec struct {
	Type   ModelType   `yaml:"type" json:"type"`
	Params ModelParams `yaml:",inline" json:"params"`
}

// ModelConfig is the immutable set of active models and the attribution
// window for one processor invocation. It is passed in explicitly, never
// held as a mutable process-wide singleton.
type ModelConfig struct {
	WindowDays int         `yaml:"attribution_window_days"`
	Models     []ModelSpec `yaml:"models"`
}

// Validate checks the window and every active model's parameters.
func (c ModelConfig) Validate() error {
	v := &ValidationError{}
	if c.WindowDays <= 0 {
		v.Add("attributionWindowDays", "must be positive")
	}
	if len(c.Models) == 0 {
		v.Add("models", "at least one active model required")
	}
	seen := make(map[ModelType]bool, len(c.Models))
	for _, spec := range c.Models {
		if seen[spec.Type] {
			v.Add("models", "duplicate model type: "+string(spec.Type))
			continue
		}
		seen[spec.Type] = true
		if err := spec.Params.ValidateFor(spec.Type); err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				v.Fields = append(v.Fields, ve.Fields...)
			}
		}
	}
	return v.OrNil()
}

// DefaultModelConfig activates all five models with default parameters and
// the default 90-day attribution window.
func DefaultModelConfig() ModelConfig {
	cfg := ModelConfig{WindowDays: DefaultWindowDays}
	for _, m := range AllModelTypes() {
		cfg.Models = append(cfg.Models, ModelSpec{Type: m, Params: DefaultParams(m)})
	}
	return cfg
}
