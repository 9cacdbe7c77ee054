package farm

import (
	"testing"

	"plotland.farm/internal/protocol"
)

func pos(x, y int) *[2]int { return &[2]int{x, y} }

// lastResult returns the most recent ACTION_RESULT with the given ref.
func lastResult(t *testing.T, fr *Farmer, ref string) protocol.Event {
	t.Helper()
	for i := len(fr.Events) - 1; i >= 0; i-- {
		e := fr.Events[i]
		if e["type"] == "ACTION_RESULT" && e["ref"] == ref {
			return e
		}
	}
	t.Fatalf("no ACTION_RESULT for %q", ref)
	return nil
}

func hasEventType(fr *Farmer, typ string) bool {
	for _, e := range fr.Events {
		if e["type"] == typ {
			return true
		}
	}
	return false
}

func TestInstant_PlantConsumesSeed(t *testing.T) {
	f := newTestFarm(t, FarmConfig{Seed: 1})
	fr := joinTestFarmer(t, f, "ana")

	f.applyInstant(fr, protocol.InstantReq{ID: "I1", Type: InstantTypeTill, Pos: pos(0, 0)}, 0)
	if e := lastResult(t, fr, "I1"); e["ok"] != true {
		t.Fatalf("till result: %v", e)
	}

	before := fr.Inventory["turnip_seed"]
	f.applyInstant(fr, protocol.InstantReq{ID: "I2", Type: InstantTypePlant, Pos: pos(0, 0), CropID: "TURNIP"}, 0)
	if e := lastResult(t, fr, "I2"); e["ok"] != true {
		t.Fatalf("plant result: %v", e)
	}
	if fr.Inventory["turnip_seed"] != before-1 {
		t.Fatalf("seed count %d, want %d", fr.Inventory["turnip_seed"], before-1)
	}

	// A rejected plant must not burn the seed.
	f.applyInstant(fr, protocol.InstantReq{ID: "I3", Type: InstantTypePlant, Pos: pos(0, 0), CropID: "TURNIP"}, 0)
	if e := lastResult(t, fr, "I3"); e["ok"] != false || e["code"] != protocol.ErrInvalidTransition {
		t.Fatalf("replant result: %v", e)
	}
	if fr.Inventory["turnip_seed"] != before-1 {
		t.Fatalf("failed plant consumed a seed")
	}
}

func TestInstant_PlantWithoutSeeds(t *testing.T) {
	f := newTestFarm(t, FarmConfig{StarterItems: map[string]int{}, Seed: 1})
	fr := joinTestFarmer(t, f, "ana")

	f.applyInstant(fr, protocol.InstantReq{ID: "I1", Type: InstantTypePlant, Pos: pos(0, 4), CropID: "TURNIP"}, 0)
	if e := lastResult(t, fr, "I1"); e["code"] != protocol.ErrNoResource {
		t.Fatalf("plant without seeds: %v", e)
	}
}

func TestInstant_UnknownTypeRejected(t *testing.T) {
	f := newTestFarm(t, FarmConfig{Seed: 1})
	fr := joinTestFarmer(t, f, "ana")

	f.applyInstant(fr, protocol.InstantReq{ID: "I1", Type: "DANCE"}, 0)
	if e := lastResult(t, fr, "I1"); e["ok"] != false || e["code"] != protocol.ErrBadRequest {
		t.Fatalf("unknown instant: %v", e)
	}
}

func TestInstant_HarvestAddsYieldToInventory(t *testing.T) {
	f := newTestFarm(t, FarmConfig{Seed: 9})
	fr := joinTestFarmer(t, f, "ana")
	c := Coord{X: 0, Y: 0}
	f.DebugSetPlot(c, Plot{State: PlotGrown, Crop: "TURNIP", Stage: 4, GrowthSeconds: 600, Watered: true, NourishMult: 1.0})

	before := fr.Inventory["turnip"]
	f.applyInstant(fr, protocol.InstantReq{ID: "I1", Type: InstantTypeHarvest, Pos: pos(0, 0)}, 0)
	if e := lastResult(t, fr, "I1"); e["ok"] != true {
		t.Fatalf("harvest result: %v", e)
	}
	if fr.Inventory["turnip"] <= before {
		t.Fatalf("harvest added no crop items")
	}
	if !hasEventType(fr, "HARVEST") {
		t.Fatalf("missing HARVEST event")
	}
}

func TestInstant_NourishSpendsTonicOnlyOnSuccess(t *testing.T) {
	f := newTestFarm(t, FarmConfig{Seed: 1})
	fr := joinTestFarmer(t, f, "ana")
	c := Coord{X: 0, Y: 4}
	f.Plant(c, "TURNIP")

	f.applyInstant(fr, protocol.InstantReq{ID: "I1", Type: InstantTypeNourish, Pos: pos(0, 4)}, 0)
	if e := lastResult(t, fr, "I1"); e["ok"] != true {
		t.Fatalf("nourish result: %v", e)
	}
	if fr.Inventory[ItemNourishTonic] != 1 {
		t.Fatalf("tonic count = %d", fr.Inventory[ItemNourishTonic])
	}

	f.applyInstant(fr, protocol.InstantReq{ID: "I2", Type: InstantTypeNourish, Pos: pos(0, 4)}, 0)
	if e := lastResult(t, fr, "I2"); e["code"] != protocol.ErrAlreadyNourished {
		t.Fatalf("duplicate nourish: %v", e)
	}
	if fr.Inventory[ItemNourishTonic] != 1 {
		t.Fatalf("failed nourish burned the tonic")
	}
}

func TestInstant_HealRequiresSalveAndTargets(t *testing.T) {
	f := newTestFarm(t, FarmConfig{Seed: 1})
	fr := joinTestFarmer(t, f, "ana")

	// Nothing infected: the salve is kept.
	f.applyInstant(fr, protocol.InstantReq{ID: "I1", Type: InstantTypeHealInfected}, 0)
	if e := lastResult(t, fr, "I1"); e["code"] != protocol.ErrConflict {
		t.Fatalf("heal with nothing sick: %v", e)
	}
	if fr.Inventory[ItemHealingSalve] != 1 {
		t.Fatalf("salve burned on no-op heal")
	}

	f.DebugSetPlot(Coord{X: 0, Y: 0}, Plot{State: PlotPlanted, Crop: "TURNIP", Stage: 2, Watered: true, Infected: true, NourishMult: 1.0})
	f.DebugSetPlot(Coord{X: 1, Y: 0}, Plot{State: PlotPlanted, Crop: "TURNIP", Stage: 3, Watered: true, Infected: true, NourishMult: 1.0})

	f.applyInstant(fr, protocol.InstantReq{ID: "I2", Type: InstantTypeHealInfected}, 0)
	e := lastResult(t, fr, "I2")
	if e["ok"] != true || e["healed"] != 2 {
		t.Fatalf("heal result: %v", e)
	}
	if fr.Inventory[ItemHealingSalve] != 0 {
		t.Fatalf("salve not consumed")
	}
	if !hasEventType(fr, "PLOTS_HEALED") {
		t.Fatalf("missing PLOTS_HEALED broadcast")
	}

	// Out of salve now.
	f.DebugSetPlot(Coord{X: 2, Y: 0}, Plot{State: PlotPlanted, Crop: "TURNIP", Stage: 2, Watered: true, Infected: true, NourishMult: 1.0})
	f.applyInstant(fr, protocol.InstantReq{ID: "I3", Type: InstantTypeHealInfected}, 0)
	if e := lastResult(t, fr, "I3"); e["code"] != protocol.ErrNoResource {
		t.Fatalf("heal without salve: %v", e)
	}
}

func TestInstant_UnlockRegion(t *testing.T) {
	f := newTestFarm(t, FarmConfig{Seed: 1})
	fr := joinTestFarmer(t, f, "ana")

	f.applyInstant(fr, protocol.InstantReq{ID: "I1", Type: InstantTypeUnlock, Region: "NORTH_FIELD"}, 0)
	e := lastResult(t, fr, "I1")
	if e["ok"] != true || e["unlocked"] != 18 {
		t.Fatalf("unlock result: %v", e)
	}
	if !hasEventType(fr, "REGION_UNLOCKED") {
		t.Fatalf("missing REGION_UNLOCKED broadcast")
	}

	f.applyInstant(fr, protocol.InstantReq{ID: "I2", Type: InstantTypeUnlock, Region: "NORTH_FIELD"}, 0)
	if e := lastResult(t, fr, "I2"); e["ok"] != true || e["unlocked"] != 0 {
		t.Fatalf("repeat unlock: %v", e)
	}

	f.applyInstant(fr, protocol.InstantReq{ID: "I3", Type: InstantTypeUnlock, Region: "MOON_FIELD"}, 0)
	if e := lastResult(t, fr, "I3"); e["code"] != protocol.ErrInvalidTarget {
		t.Fatalf("unknown region: %v", e)
	}
}

func TestInstant_SleepAdvancesAndClamps(t *testing.T) {
	f := newTestFarm(t, FarmConfig{Seed: 1, SleepMaxSeconds: 700})
	fr := joinTestFarmer(t, f, "ana")
	c := Coord{X: 0, Y: 4}
	f.Plant(c, "TURNIP")
	f.Attend(c)

	f.applyInstant(fr, protocol.InstantReq{ID: "I1", Type: InstantTypeSleep, Seconds: 5000}, 0)
	e := lastResult(t, fr, "I1")
	if e["ok"] != true || e["seconds"] != 700.0 {
		t.Fatalf("sleep result: %v", e)
	}
	if p, _ := f.DebugPlot(c); p.State != PlotGrown {
		t.Fatalf("sleep did not grow the crop: %+v", p)
	}

	f.applyInstant(fr, protocol.InstantReq{ID: "I2", Type: InstantTypeSleep}, 0)
	if e := lastResult(t, fr, "I2"); e["code"] != protocol.ErrBadRequest {
		t.Fatalf("sleep without seconds: %v", e)
	}
}

func TestInstant_BuyProtection(t *testing.T) {
	f := newTestFarm(t, FarmConfig{Seed: 1})
	fr := joinTestFarmer(t, f, "ana")

	f.applyInstant(fr, protocol.InstantReq{ID: "I1", Type: InstantTypeBuyProtection}, 0)
	if e := lastResult(t, fr, "I1"); e["ok"] != true {
		t.Fatalf("buy result: %v", e)
	}
	if !f.ProtectionActive() || fr.Inventory[ItemProtectionCharm] != 0 {
		t.Fatalf("charm not consumed or shield not armed")
	}
	if !hasEventType(fr, "PROTECTION_ARMED") {
		t.Fatalf("missing PROTECTION_ARMED broadcast")
	}

	f.DebugAddInventory(fr.ID, ItemProtectionCharm, 1)
	f.applyInstant(fr, protocol.InstantReq{ID: "I2", Type: InstantTypeBuyProtection}, 0)
	if e := lastResult(t, fr, "I2"); e["code"] != protocol.ErrConflict {
		t.Fatalf("double buy: %v", e)
	}
	if fr.Inventory[ItemProtectionCharm] != 1 {
		t.Fatalf("rejected buy consumed the charm")
	}

	f.OnWeatherEvent(WeatherStorm) // consumes the shield
	f.applyInstant(fr, protocol.InstantReq{ID: "I3", Type: InstantTypeBuyProtection}, 0)
	if e := lastResult(t, fr, "I3"); e["ok"] != true {
		t.Fatalf("re-buy result: %v", e)
	}
}

func TestRateLimit_ActsPerWindow(t *testing.T) {
	f := newTestFarm(t, FarmConfig{
		Seed:       1,
		RateLimits: RateLimitConfig{ActWindowTicks: 10, ActMax: 2},
	})
	fr := joinTestFarmer(t, f, "ana")

	act := protocol.ActMsg{Instants: []protocol.InstantReq{
		{ID: "I1", Type: InstantTypeTill, Pos: pos(0, 0)},
		{ID: "I2", Type: InstantTypeTill, Pos: pos(1, 0)},
		{ID: "I3", Type: InstantTypeTill, Pos: pos(2, 0)},
	}}
	f.applyAct(fr, act, 0)

	if e := lastResult(t, fr, "I2"); e["ok"] != true {
		t.Fatalf("second act limited early: %v", e)
	}
	e := lastResult(t, fr, "I3")
	if e["code"] != protocol.ErrRateLimit {
		t.Fatalf("third act not limited: %v", e)
	}
	if _, ok := e["cooldown_ticks"]; !ok {
		t.Fatalf("rate limit without cooldown hint: %v", e)
	}
	if p, _ := f.DebugPlot(Coord{X: 2, Y: 0}); p.State != PlotEmpty {
		t.Fatalf("limited act still applied")
	}

	// A later window admits actions again.
	fr.Events = nil
	f.applyAct(fr, protocol.ActMsg{Instants: []protocol.InstantReq{
		{ID: "I4", Type: InstantTypeTill, Pos: pos(2, 0)},
	}}, 10)
	if e := lastResult(t, fr, "I4"); e["ok"] != true {
		t.Fatalf("act after window reset: %v", e)
	}
}
