package farm

// FarmMetrics is a thread-safe read-only view of key farm runtime signals.
// It is updated from the farm loop goroutine and read from HTTP handlers/tests.
type FarmMetrics struct {
	Tick uint64 `json:"tick"`

	Farmers int `json:"farmers"`
	Clients int `json:"clients"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`

	Weather          string  `json:"weather"`
	GrowthRate       float64 `json:"growth_rate"`
	ProtectionActive bool    `json:"protection_active"`

	Plots PlotCounts `json:"plots"`
}

type QueueDepths struct {
	Inbox   int `json:"inbox"`
	Join    int `json:"join"`
	Leave   int `json:"leave"`
	Weather int `json:"weather"`
}

type PlotCounts struct {
	Locked   int `json:"locked"`
	Empty    int `json:"empty"`
	Tilled   int `json:"tilled"`
	Planted  int `json:"planted"`
	Grown    int `json:"grown"`
	Infected int `json:"infected"`
}

func (f *Farm) Metrics() FarmMetrics {
	if f == nil {
		return FarmMetrics{}
	}
	v := f.metrics.Load()
	if v == nil {
		return FarmMetrics{}
	}
	m, ok := v.(FarmMetrics)
	if !ok {
		return FarmMetrics{}
	}
	return m
}

// publishMetrics must only be called from the loop goroutine.
func (f *Farm) publishMetrics(nowTick uint64, stepMS float64) {
	var pc PlotCounts
	for _, p := range f.plots {
		switch p.State {
		case PlotLocked:
			pc.Locked++
		case PlotEmpty:
			pc.Empty++
		case PlotTilled:
			pc.Tilled++
		case PlotPlanted:
			pc.Planted++
		case PlotGrown:
			pc.Grown++
		}
		if p.Infected {
			pc.Infected++
		}
	}
	f.metrics.Store(FarmMetrics{
		Tick:    nowTick,
		Farmers: len(f.farmers),
		Clients: len(f.clients),
		QueueDepths: QueueDepths{
			Inbox:   len(f.inbox),
			Join:    len(f.join),
			Leave:   len(f.leave),
			Weather: len(f.weatherSignal),
		},
		StepMS:           stepMS,
		Weather:          f.weather,
		GrowthRate:       f.growthRate,
		ProtectionActive: f.protectionActive,
		Plots:            pc,
	})
}
