package farm

import (
	"math"

	"plotland.farm/internal/protocol"
)

// OpResult is the outcome of one plot operation. A failed operation mutates
// nothing; Code distinguishes invalid transitions from soft failures like a
// duplicate nourish.
type OpResult struct {
	OK      bool
	Code    string
	Message string
}

func opOK(msg string) OpResult { return OpResult{OK: true, Message: msg} }

func opFail(code, msg string) OpResult {
	return OpResult{OK: false, Code: code, Message: msg}
}

type HarvestYield struct {
	SeedItem string
	SeedQty  int
	CropItem string
	CropQty  int
}

func (f *Farm) CanTill(c Coord) bool {
	p := f.plotAt(c)
	if p == nil {
		return false
	}
	return p.State == PlotEmpty || p.Infected
}

// Till turns an empty plot into a tilled one. Tilling an infected plot is the
// cure-by-destruction path: the crop is lost and the infection cleared.
func (f *Farm) Till(c Coord) OpResult {
	p := f.plotAt(c)
	if p == nil {
		return opFail(protocol.ErrInvalidTarget, "no plot there")
	}
	switch {
	case p.Infected:
		from := p.State
		p.resetTo(PlotTilled)
		f.auditPlot("TILL", c, from, PlotTilled, "infected crop tilled under")
		return opOK("infected crop tilled under")
	case p.State == PlotEmpty:
		p.State = PlotTilled
		f.auditPlot("TILL", c, PlotEmpty, PlotTilled, "")
		return opOK("tilled")
	default:
		return opFail(protocol.ErrInvalidTransition, "plot is not empty")
	}
}

func (f *Farm) CanPlant(c Coord) bool {
	p := f.plotAt(c)
	return p != nil && p.State == PlotTilled
}

// Plant puts a crop in a tilled plot at stage 0. Growth does not start until
// the plot is attended. A planting made while the farm shield is armed
// inherits the protected mark.
func (f *Farm) Plant(c Coord, cropID string) OpResult {
	def, known := f.catalogs.Crops.Defs[cropID]
	if !known {
		return opFail(protocol.ErrInvalidTarget, "unknown crop")
	}
	p := f.plotAt(c)
	if p == nil {
		return opFail(protocol.ErrInvalidTarget, "no plot there")
	}
	if p.State != PlotTilled {
		return opFail(protocol.ErrInvalidTransition, "plot is not tilled")
	}
	p.State = PlotPlanted
	p.Crop = def.ID
	p.GrowthSeconds = 0
	p.Stage = 0
	p.Watered = false
	p.Nourished = false
	p.NourishMult = 1.0
	p.Infected = false
	p.Protected = f.protectionActive
	f.auditPlot("PLANT", c, PlotTilled, PlotPlanted, def.ID)
	return opOK("planted")
}

func (f *Farm) CanAttend(c Coord) bool {
	p := f.plotAt(c)
	return p != nil && p.State == PlotPlanted && !p.Watered
}

// Attend is the watering step that primes growth: timer restarts, the plot
// advances to stage 1 and begins accumulating.
func (f *Farm) Attend(c Coord) OpResult {
	p := f.plotAt(c)
	if p == nil {
		return opFail(protocol.ErrInvalidTarget, "no plot there")
	}
	if p.State != PlotPlanted {
		return opFail(protocol.ErrInvalidTransition, "nothing planted")
	}
	if p.Watered {
		return opFail(protocol.ErrInvalidTransition, "already attended")
	}
	p.GrowthSeconds = 0
	p.Stage = 1
	p.Watered = true
	f.auditPlot("ATTEND", c, PlotPlanted, PlotPlanted, "")
	return opOK("attended")
}

func (f *Farm) CanHarvest(c Coord) bool {
	p := f.plotAt(c)
	return p != nil && p.State == PlotGrown && !p.Infected
}

// Harvest draws seed and crop quantities independently from the crop's yield
// ranges, applies the nourish multiplier with round-to-nearest, and resets
// the plot to empty.
func (f *Farm) Harvest(c Coord) (HarvestYield, OpResult) {
	p := f.plotAt(c)
	if p == nil {
		return HarvestYield{}, opFail(protocol.ErrInvalidTarget, "no plot there")
	}
	if p.State != PlotGrown {
		return HarvestYield{}, opFail(protocol.ErrInvalidTransition, "not fully grown")
	}
	if p.Infected {
		return HarvestYield{}, opFail(protocol.ErrInvalidTransition, "crop is infected")
	}
	def := f.catalogs.Crops.Defs[p.Crop]

	y := HarvestYield{
		SeedItem: def.SeedItem,
		SeedQty:  f.rollYield(def.SeedYield.Min, def.SeedYield.Max),
		CropItem: def.CropItem,
		CropQty:  f.rollYield(def.CropYield.Min, def.CropYield.Max),
	}
	if p.Nourished {
		y.SeedQty = int(math.Round(float64(y.SeedQty) * p.NourishMult))
		y.CropQty = int(math.Round(float64(y.CropQty) * p.NourishMult))
	}

	p.resetTo(PlotEmpty)
	f.auditPlot("HARVEST", c, PlotGrown, PlotEmpty, def.ID)
	return y, opOK("harvested")
}

func (f *Farm) rollYield(min, max int) int {
	if max <= min {
		return min
	}
	return min + f.rng.IntN(max-min+1)
}

// ApplyNourish marks a planted or grown crop for a yield bonus. At most one
// nourish per planting cycle; a duplicate is a soft failure, not an invalid
// transition.
func (f *Farm) ApplyNourish(c Coord, mult float64) OpResult {
	p := f.plotAt(c)
	if p == nil {
		return opFail(protocol.ErrInvalidTarget, "no plot there")
	}
	if !p.hasCrop() {
		return opFail(protocol.ErrInvalidTransition, "nothing growing")
	}
	if p.Nourished {
		return opFail(protocol.ErrAlreadyNourished, "already nourished")
	}
	if mult <= 0 {
		return opFail(protocol.ErrBadRequest, "bad multiplier")
	}
	p.Nourished = true
	p.NourishMult = mult
	return opOK("nourished")
}

// HealAllInfected clears infection farm-wide and reports how many plots were
// cured. Growth resumes from the stage each plot was frozen at.
func (f *Farm) HealAllInfected() int {
	healed := 0
	for _, c := range f.sortedPlotCoords() {
		p := f.plots[c]
		if !p.Infected {
			continue
		}
		p.Infected = false
		healed++
		f.auditPlot("HEAL", c, p.State, p.State, "")
	}
	return healed
}

// UnlockRegion converts locked plots to empty. One-way and idempotent:
// already-unlocked cells and cells outside the grid are untouched.
func (f *Farm) UnlockRegion(coords []Coord) int {
	unlocked := 0
	for _, c := range coords {
		p := f.plotAt(c)
		if p == nil || p.State != PlotLocked {
			continue
		}
		p.State = PlotEmpty
		unlocked++
		f.auditPlot("UNLOCK", c, PlotLocked, PlotEmpty, "")
	}
	return unlocked
}

// UnlockNamedRegion unlocks a layout-defined region by id.
func (f *Farm) UnlockNamedRegion(id string) (int, bool) {
	coords, ok := f.regions[id]
	if !ok {
		return 0, false
	}
	return f.UnlockRegion(coords), true
}

// Region exposes a named region's coordinates (copy) for callers and tests.
func (f *Farm) Region(id string) ([]Coord, bool) {
	cs, ok := f.regions[id]
	if !ok {
		return nil, false
	}
	out := make([]Coord, len(cs))
	copy(out, cs)
	return out, true
}
