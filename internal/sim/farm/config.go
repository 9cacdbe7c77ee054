package farm

type FarmConfig struct {
	ID         string
	TickRateHz int
	Seed       int64

	// GrowthTimeScale is sim-seconds of growth per real second of ticking.
	GrowthTimeScale float64
	SleepMaxSeconds float64

	NourishMultiplier float64

	Weather    WeatherConfig
	RateLimits RateLimitConfig

	// TuningDigest is echoed in WELCOME so clients can detect tuning drift.
	TuningDigest string

	// SnapshotEveryTicks emits a periodic snapshot to the configured sink
	// when > 0.
	SnapshotEveryTicks int

	// Starter items granted to newly joined farmers.
	// If nil, defaults are applied; if non-nil but empty, farmers start bare.
	StarterItems map[string]int
}

// WeatherConfig fixes the stochastic event parameters. The source material
// disagrees on the exact formulas, so they are configuration, not code.
type WeatherConfig struct {
	StormHitFraction float64

	// FrostMode is "throttle" (global growth-rate modifier until FROST_END)
	// or "regress" (per-plot stage regression).
	FrostMode         string
	FrostRateModifier float64
	FrostHitFraction  float64

	DiseaseMinFraction float64
	DiseaseMaxFraction float64

	ProtectionCoversDisease bool
}

type RateLimitConfig struct {
	ActWindowTicks int
	ActMax         int
}

const (
	FrostModeThrottle = "throttle"
	FrostModeRegress  = "regress"
)

func (c *FarmConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "farm_1"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 5
	}
	if c.GrowthTimeScale <= 0 {
		c.GrowthTimeScale = 1.0
	}
	if c.SleepMaxSeconds <= 0 {
		c.SleepMaxSeconds = 86400
	}
	if c.NourishMultiplier <= 0 {
		c.NourishMultiplier = 1.5
	}
	if c.StarterItems == nil {
		c.StarterItems = map[string]int{
			"turnip_seed":      6,
			"carrot_seed":      4,
			"pumpkin_seed":     2,
			"nourish_tonic":    2,
			"healing_salve":    1,
			"protection_charm": 1,
		}
	}
	c.Weather.applyDefaults()
	c.RateLimits.applyDefaults()
}

func (w *WeatherConfig) applyDefaults() {
	if w.StormHitFraction <= 0 {
		w.StormHitFraction = 0.20
	}
	if w.FrostMode != FrostModeThrottle && w.FrostMode != FrostModeRegress {
		w.FrostMode = FrostModeThrottle
	}
	if w.FrostRateModifier <= 0 {
		w.FrostRateModifier = 0.5
	}
	if w.FrostHitFraction <= 0 {
		w.FrostHitFraction = 0.20
	}
	if w.DiseaseMinFraction <= 0 {
		w.DiseaseMinFraction = 0.20
	}
	if w.DiseaseMaxFraction <= w.DiseaseMinFraction {
		w.DiseaseMaxFraction = w.DiseaseMinFraction + 0.20
	}
}

func (rl *RateLimitConfig) applyDefaults() {
	if rl.ActWindowTicks <= 0 {
		rl.ActWindowTicks = 50
	}
	if rl.ActMax <= 0 {
		rl.ActMax = 25
	}
}
