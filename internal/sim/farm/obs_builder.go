package farm

import "plotland.farm/internal/protocol"

func (f *Farm) buildObs(fr *Farmer, nowTick uint64) protocol.ObsMsg {
	plots := make([]protocol.PlotObs, 0, len(f.plots))
	for _, c := range f.sortedPlotCoords() {
		p := f.plots[c]
		po := protocol.PlotObs{
			Pos:   c.ToArray(),
			State: p.State.String(),
		}
		if p.hasCrop() {
			po.Crop = p.Crop
			po.Stage = p.Stage
			po.Watered = p.Watered
			po.Infected = p.Infected
			po.Nourished = p.Nourished
			po.Sprite = f.spriteFor(p)
		}
		plots = append(plots, po)
	}

	events := fr.TakeEvents()
	if events == nil {
		events = []protocol.Event{}
	}

	return protocol.ObsMsg{
		Type:            protocol.TypeObs,
		ProtocolVersion: protocol.Version,
		Tick:            nowTick,
		FarmerID:        fr.ID,
		Farm: protocol.FarmObs{
			Weather:          f.weather,
			GrowthRate:       f.growthRate,
			ProtectionActive: f.protectionActive,
		},
		Self:      protocol.SelfObs{Name: fr.Name},
		Plots:     plots,
		Inventory: fr.InventoryList(),
		Events:    events,
	}
}

// spriteFor picks the visual key a renderer should show: the sick variant
// while infected, otherwise the current stage sprite.
func (f *Farm) spriteFor(p *Plot) string {
	def, ok := f.catalogs.Crops.Defs[p.Crop]
	if !ok {
		return ""
	}
	if p.Infected {
		return def.SickSprite
	}
	if p.Stage < 0 || p.Stage >= def.StageCount() {
		return ""
	}
	return def.StageSprites[p.Stage]
}
