package farm

type PlotState uint8

const (
	PlotLocked PlotState = iota
	PlotEmpty
	PlotTilled
	PlotPlanted
	PlotGrown
)

func (s PlotState) String() string {
	switch s {
	case PlotLocked:
		return "LOCKED"
	case PlotEmpty:
		return "EMPTY"
	case PlotTilled:
		return "TILLED"
	case PlotPlanted:
		return "PLANTED"
	case PlotGrown:
		return "GROWN"
	}
	return "UNKNOWN"
}

// Plot is one farmable cell. Records are created once when the grid is seeded
// from the layout and are only mutated afterwards, never replaced.
type Plot struct {
	State PlotState

	// Crop is a crop catalog id, set iff State is PLANTED or GROWN.
	Crop string

	// GrowthSeconds accumulates sim-seconds of growth, meaningful while PLANTED.
	GrowthSeconds float64

	// Stage indexes the crop's stage sprite sequence. Non-decreasing within
	// one planting cycle except under frost regression.
	Stage int

	// Watered gates growth: a freshly planted plot accumulates nothing until
	// it is attended.
	Watered bool

	Nourished   bool
	NourishMult float64

	// Infected plots stop growing and cannot be harvested until healed or
	// tilled under.
	Infected bool

	// Protected snapshots the farm-wide shield at plant time.
	Protected bool
}

// resetTo clears every per-cycle field and lands the plot on state.
func (p *Plot) resetTo(state PlotState) {
	p.State = state
	p.Crop = ""
	p.GrowthSeconds = 0
	p.Stage = 0
	p.Watered = false
	p.Nourished = false
	p.NourishMult = 1.0
	p.Infected = false
	p.Protected = false
}

func (p *Plot) hasCrop() bool {
	return p.State == PlotPlanted || p.State == PlotGrown
}
