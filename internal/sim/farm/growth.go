package farm

// stageForProgress maps accumulated growth to a discrete stage. It is a pure
// function of total accumulated seconds, which makes bulk simulation and
// per-tick advancement equivalent.
func stageForProgress(seconds, total float64, stageCount int) int {
	if stageCount <= 1 {
		return 0
	}
	if total <= 0 {
		return stageCount - 1
	}
	pct := seconds / total
	if pct < 0 {
		pct = 0
	}
	if pct > 1 {
		pct = 1
	}
	return int(pct * float64(stageCount-1))
}

// advanceGrowth accumulates elapsed sim-seconds (scaled by the farm-wide
// growth rate modifier) on every eligible plot and promotes stages. Stages
// never regress here; regression is frost's business. Returns the coords
// whose stage or state changed, row-major.
func (f *Farm) advanceGrowth(elapsed float64) []Coord {
	if elapsed <= 0 {
		return nil
	}
	var changed []Coord
	for _, c := range f.sortedPlotCoords() {
		p := f.plots[c]
		if p.State != PlotPlanted || !p.Watered || p.Infected {
			continue
		}
		def, ok := f.catalogs.Crops.Defs[p.Crop]
		if !ok {
			continue
		}
		p.GrowthSeconds += elapsed * f.growthRate

		target := stageForProgress(p.GrowthSeconds, def.GrowthSeconds, def.StageCount())
		final := def.StageCount() - 1
		stepped := false
		if target > p.Stage {
			p.Stage = target
			stepped = true
		}
		// Attending a short crop can land the plot on the final stage while
		// still PLANTED; the GROWN transition fires once the timer gets there.
		if target == final && p.Stage == final {
			p.State = PlotGrown
			f.auditPlot("GROWN", c, PlotPlanted, PlotGrown, def.ID)
			stepped = true
		}
		if stepped {
			changed = append(changed, c)
		}
	}
	return changed
}

// SimulateElapsed applies one large time skip (sleep). Because stage
// computation depends only on the accumulated timer, one bulk call lands on
// the same stages as the same seconds ticked out in small steps.
func (f *Farm) SimulateElapsed(seconds float64) []Coord {
	prev := f.curActor
	f.curActor = "GROWTH"
	changed := f.advanceGrowth(seconds)
	f.curActor = prev
	return changed
}
