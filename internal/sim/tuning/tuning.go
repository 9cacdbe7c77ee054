package tuning

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz      int     `yaml:"tick_rate_hz"`
	GrowthTimeScale float64 `yaml:"growth_time_scale"`
	SleepMaxSeconds float64 `yaml:"sleep_max_seconds"`

	NourishMultiplier float64 `yaml:"nourish_multiplier"`

	Weather    Weather    `yaml:"weather"`
	RateLimits RateLimits `yaml:"rate_limits"`

	Digest string `yaml:"-"`
}

// Weather holds the stochastic event parameters. The observed source variants
// disagree on the exact formulas, so they are fixed here rather than in code.
type Weather struct {
	StormHitFraction float64 `yaml:"storm_hit_fraction"`

	// FrostMode selects between a global growth throttle ("throttle") and
	// per-plot stage regression ("regress").
	FrostMode         string  `yaml:"frost_mode"`
	FrostRateModifier float64 `yaml:"frost_rate_modifier"`
	FrostHitFraction  float64 `yaml:"frost_hit_fraction"`

	DiseaseMinFraction float64 `yaml:"disease_min_fraction"`
	DiseaseMaxFraction float64 `yaml:"disease_max_fraction"`

	ProtectionCoversDisease bool `yaml:"protection_covers_disease"`
}

type RateLimits struct {
	ActWindowTicks int `yaml:"act_window_ticks"`
	ActMax         int `yaml:"act_max"`
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	sum := sha256.Sum256(raw)
	t.Digest = hex.EncodeToString(sum[:])
	return t, nil
}
