package farm

// Debug helpers for tests and tooling. They mutate through the same records
// as the public operations and must only be called from the loop goroutine
// (or before the loop starts).

func (f *Farm) DebugAddInventory(farmerID, item string, delta int) bool {
	fr := f.farmers[farmerID]
	if fr == nil {
		return false
	}
	fr.Inventory[item] += delta
	if fr.Inventory[item] <= 0 {
		delete(fr.Inventory, item)
	}
	return true
}

func (f *Farm) DebugInventory(farmerID, item string) int {
	fr := f.farmers[farmerID]
	if fr == nil {
		return 0
	}
	return fr.Inventory[item]
}

// DebugPlot returns a copy of the record; mutations to it do not stick.
func (f *Farm) DebugPlot(c Coord) (Plot, bool) {
	p := f.plotAt(c)
	if p == nil {
		return Plot{}, false
	}
	return *p, true
}

func (f *Farm) DebugSetPlot(c Coord, p Plot) bool {
	cur := f.plotAt(c)
	if cur == nil {
		return false
	}
	*cur = p
	return true
}

func (f *Farm) DebugClearFarmerEvents(farmerID string) bool {
	fr := f.farmers[farmerID]
	if fr == nil {
		return false
	}
	fr.Events = nil
	return true
}
