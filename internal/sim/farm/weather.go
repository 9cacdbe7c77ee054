package farm

import "math"

// Weather signal kinds, delivered by external collaborators (admin surface,
// scheduler, tests). The farm never generates its own weather.
const (
	WeatherStorm    = "STORM"
	WeatherFrost    = "FROST"
	WeatherFrostEnd = "FROST_END"
	WeatherDisease  = "DISEASE"
)

func IsWeatherKind(kind string) bool {
	switch kind {
	case WeatherStorm, WeatherFrost, WeatherFrostEnd, WeatherDisease:
		return true
	}
	return false
}

type WeatherOutcome struct {
	Kind     string
	Absorbed bool
	Affected []Coord
}

// OnWeatherEvent applies one discrete weather event. The farm-wide shield is
// checked first: if armed, it absorbs the event whole (resetting itself and
// every per-plot protected mark) and nothing else happens. Whether the
// shield covers disease is configuration.
func (f *Farm) OnWeatherEvent(kind string) WeatherOutcome {
	prev := f.curActor
	f.curActor = "WEATHER"
	defer func() { f.curActor = prev }()

	out := WeatherOutcome{Kind: kind}

	if kind == WeatherFrostEnd {
		f.growthRate = 1.0
		f.weather = "CLEAR"
		return out
	}

	if f.protectionActive && (kind != WeatherDisease || f.cfg.Weather.ProtectionCoversDisease) {
		f.protectionActive = false
		for _, p := range f.plots {
			p.Protected = false
		}
		out.Absorbed = true
		return out
	}

	switch kind {
	case WeatherStorm:
		out.Affected = f.applyStorm()
	case WeatherFrost:
		out.Affected = f.applyFrost()
	case WeatherDisease:
		out.Affected = f.applyDisease()
	}
	return out
}

// eligibleCoords is the fresh per-event pool: planted or grown plots,
// row-major for deterministic selection.
func (f *Farm) eligibleCoords() []Coord {
	var out []Coord
	for _, c := range f.sortedPlotCoords() {
		if f.plots[c].hasCrop() {
			out = append(out, c)
		}
	}
	return out
}

// selectRandom picks n coords uniformly without replacement.
func (f *Farm) selectRandom(pool []Coord, n int) []Coord {
	if n >= len(pool) {
		picked := make([]Coord, len(pool))
		copy(picked, pool)
		return picked
	}
	shuffled := make([]Coord, len(pool))
	copy(shuffled, pool)
	f.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	picked := shuffled[:n]
	sortCoords(picked)
	return picked
}

func (f *Farm) applyStorm() []Coord {
	pool := f.eligibleCoords()
	if len(pool) == 0 {
		return nil
	}
	n := int(math.Ceil(f.cfg.Weather.StormHitFraction * float64(len(pool))))
	hit := f.selectRandom(pool, n)
	for _, c := range hit {
		p := f.plots[c]
		from := p.State
		p.resetTo(PlotTilled)
		f.auditPlot("STORM", c, from, PlotTilled, "crop destroyed")
	}
	return hit
}

func (f *Farm) applyFrost() []Coord {
	if f.cfg.Weather.FrostMode == FrostModeThrottle {
		f.growthRate = f.cfg.Weather.FrostRateModifier
		f.weather = "FROST"
		return nil
	}

	// Regression mode: established crops lose a stage and half their timer;
	// seedlings at stage <= 1 do not survive.
	pool := f.eligibleCoords()
	if len(pool) == 0 {
		return nil
	}
	n := int(math.Ceil(f.cfg.Weather.FrostHitFraction * float64(len(pool))))
	hit := f.selectRandom(pool, n)
	for _, c := range hit {
		p := f.plots[c]
		from := p.State
		if p.Stage > 1 {
			p.Stage--
			p.GrowthSeconds /= 2
			if p.State == PlotGrown {
				p.State = PlotPlanted
			}
			f.auditPlot("FROST", c, from, p.State, "stage regressed")
		} else {
			p.resetTo(PlotTilled)
			f.auditPlot("FROST", c, from, PlotTilled, "seedling killed")
		}
	}
	return hit
}

func (f *Farm) applyDisease() []Coord {
	pool := f.eligibleCoords()
	if len(pool) == 0 {
		return nil
	}
	w := f.cfg.Weather
	frac := w.DiseaseMinFraction + f.rng.Float64()*(w.DiseaseMaxFraction-w.DiseaseMinFraction)
	n := int(math.Round(frac * float64(len(pool))))
	if n < 1 {
		n = 1
	}
	hit := f.selectRandom(pool, n)
	for _, c := range hit {
		p := f.plots[c]
		p.Infected = true
		f.auditPlot("DISEASE", c, p.State, p.State, "infected")
	}
	return hit
}

// ArmProtection arms the single-use farm-wide shield and marks every current
// crop as protected.
func (f *Farm) ArmProtection() bool {
	if f.protectionActive {
		return false
	}
	f.protectionActive = true
	for _, p := range f.plots {
		if p.hasCrop() {
			p.Protected = true
		}
	}
	return true
}

func (f *Farm) ProtectionActive() bool { return f.protectionActive }

// GrowthRateModifier reports the current farm-wide growth throttle.
func (f *Farm) GrowthRateModifier() float64 { return f.growthRate }
