package farm

import (
	"sort"

	"plotland.farm/internal/protocol"
)

// Farmer is one connected session's actor on the farm. Harvest yields land in
// its inventory; the farm itself never stores items.
type Farmer struct {
	ID   string
	Name string

	Inventory map[string]int

	Events []protocol.Event

	// Rate limiting windows (per action type).
	rl map[string]*rateWindow
}

type rateWindow struct {
	StartTick uint64
	Count     int
	Window    uint64
	Max       int
}

func (fr *Farmer) initDefaults(starter map[string]int) {
	if fr.Inventory == nil {
		fr.Inventory = map[string]int{}
	}
	for item, n := range starter {
		fr.Inventory[item] += n
	}
	if fr.rl == nil {
		fr.rl = map[string]*rateWindow{}
	}
}

func (fr *Farmer) InventoryList() []protocol.ItemStack {
	out := make([]protocol.ItemStack, 0, len(fr.Inventory))
	for item, c := range fr.Inventory {
		if c <= 0 {
			continue
		}
		out = append(out, protocol.ItemStack{Item: item, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Item < out[j].Item })
	return out
}

func (fr *Farmer) AddEvent(e protocol.Event) {
	fr.Events = append(fr.Events, e)
}

func (fr *Farmer) TakeEvents() []protocol.Event {
	ev := fr.Events
	fr.Events = nil
	return ev
}

// ConsumeItem removes n of item if enough are held; reports success.
func (fr *Farmer) ConsumeItem(item string, n int) bool {
	if fr.Inventory[item] < n {
		return false
	}
	fr.Inventory[item] -= n
	if fr.Inventory[item] <= 0 {
		delete(fr.Inventory, item)
	}
	return true
}

func (fr *Farmer) RateLimitAllow(kind string, nowTick uint64, window uint64, max int) (ok bool, cooldownTicks uint64) {
	w, ok := fr.rl[kind]
	if !ok {
		w = &rateWindow{StartTick: nowTick, Window: window, Max: max}
		fr.rl[kind] = w
	}
	w.Window = window
	w.Max = max
	if w.Window == 0 || w.Max <= 0 {
		return true, 0
	}
	if nowTick-w.StartTick >= w.Window {
		w.StartTick = nowTick
		w.Count = 0
	}
	w.Count++
	if w.Count <= w.Max {
		return true, 0
	}
	// Remaining ticks until the window resets (next tick >= StartTick+Window).
	return false, (w.StartTick + w.Window) - nowTick
}
