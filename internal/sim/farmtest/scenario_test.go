package farmtest

import (
	"testing"

	"plotland.farm/internal/protocol"
	"plotland.farm/internal/sim/catalogs"
	"plotland.farm/internal/sim/farm"
)

func loadCats(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	return cats
}

func pos(x, y int) *[2]int { return &[2]int{x, y} }

func plotObsAt(t *testing.T, obs protocol.ObsMsg, x, y int) protocol.PlotObs {
	t.Helper()
	for _, p := range obs.Plots {
		if p.Pos == [2]int{x, y} {
			return p
		}
	}
	t.Fatalf("no plot at (%d,%d) in obs", x, y)
	return protocol.PlotObs{}
}

func invCount(obs protocol.ObsMsg, item string) int {
	for _, s := range obs.Inventory {
		if s.Item == item {
			return s.Count
		}
	}
	return 0
}

func TestScenario_SeasonOnTheFarm(t *testing.T) {
	h := NewHarness(t, farm.FarmConfig{Seed: 42}, loadCats(t), "ana")

	// Break ground and get a turnip in.
	obs := h.Step([]protocol.InstantReq{
		{ID: "I1", Type: "TILL", Pos: pos(0, 0)},
		{ID: "I2", Type: "PLANT", Pos: pos(0, 0), CropID: "TURNIP"},
		{ID: "I3", Type: "ATTEND", Pos: pos(0, 0)},
	})
	p := plotObsAt(t, obs, 0, 0)
	if p.State != "PLANTED" || !p.Watered || p.Stage != 1 {
		t.Fatalf("plot after planting: %+v", p)
	}
	if p.Sprite != "turnip_1" {
		t.Fatalf("sprite = %q", p.Sprite)
	}

	// Sleep through the growth cycle.
	obs = h.Step([]protocol.InstantReq{
		{ID: "I4", Type: "SLEEP", Seconds: 650},
	})
	p = plotObsAt(t, obs, 0, 0)
	if p.State != "GROWN" || p.Sprite != "turnip_4" {
		t.Fatalf("plot after sleep: %+v", p)
	}

	seedsBefore := invCount(obs, "turnip_seed")
	obs = h.Step([]protocol.InstantReq{
		{ID: "I5", Type: "HARVEST", Pos: pos(0, 0)},
	})
	if got := plotObsAt(t, obs, 0, 0); got.State != "EMPTY" {
		t.Fatalf("plot after harvest: %+v", got)
	}
	if invCount(obs, "turnip") < 1 {
		t.Fatalf("no turnips in inventory: %+v", obs.Inventory)
	}
	if invCount(obs, "turnip_seed") <= seedsBefore {
		t.Fatalf("harvest returned no seeds")
	}

	// Arm the shield and ride out a storm.
	obs = h.Step([]protocol.InstantReq{
		{ID: "I6", Type: "TILL", Pos: pos(1, 0)},
		{ID: "I7", Type: "PLANT", Pos: pos(1, 0), CropID: "CARROT"},
		{ID: "I8", Type: "BUY_PROTECTION"},
	})
	if !obs.Farm.ProtectionActive {
		t.Fatalf("shield not visible in obs")
	}
	obs = h.StepWeather(farm.WeatherStorm)
	if obs.Farm.ProtectionActive {
		t.Fatalf("shield survived the storm")
	}
	if got := plotObsAt(t, obs, 1, 0); got.State != "PLANTED" {
		t.Fatalf("carrot lost despite shield: %+v", got)
	}

	// Open the north field and farm it.
	obs = h.Step([]protocol.InstantReq{
		{ID: "I9", Type: "UNLOCK", Region: "NORTH_FIELD"},
	})
	if got := plotObsAt(t, obs, 0, -1); got.State != "EMPTY" {
		t.Fatalf("north field still locked: %+v", got)
	}
	obs = h.Step([]protocol.InstantReq{
		{ID: "I10", Type: "TILL", Pos: pos(0, -1)},
		{ID: "I11", Type: "PLANT", Pos: pos(0, -1), CropID: "PUMPKIN"},
	})
	if got := plotObsAt(t, obs, 0, -1); got.Crop != "PUMPKIN" {
		t.Fatalf("pumpkin not planted: %+v", got)
	}
}

func TestScenario_DiseaseAndHealing(t *testing.T) {
	h := NewHarness(t, farm.FarmConfig{Seed: 7}, loadCats(t), "ana")

	var instants []protocol.InstantReq
	coords := [][2]int{{0, 0}, {1, 0}, {2, 0}, {3, 0}, {4, 0}}
	for i, c := range coords {
		c := c
		instants = append(instants,
			protocol.InstantReq{ID: idf("T", i), Type: "TILL", Pos: &c},
			protocol.InstantReq{ID: idf("P", i), Type: "PLANT", Pos: &c, CropID: "TURNIP"},
			protocol.InstantReq{ID: idf("A", i), Type: "ATTEND", Pos: &c},
		)
	}
	h.Step(instants)

	obs := h.StepWeather(farm.WeatherDisease)
	sick := 0
	for _, c := range coords {
		if plotObsAt(t, obs, c[0], c[1]).Infected {
			sick++
		}
	}
	if sick < 1 || sick > 2 {
		t.Fatalf("disease on 5 crops infected %d", sick)
	}

	obs = h.Step([]protocol.InstantReq{
		{ID: "H1", Type: "HEAL_INFECTED"},
	})
	for _, c := range coords {
		if plotObsAt(t, obs, c[0], c[1]).Infected {
			t.Fatalf("plot (%d,%d) still infected after heal", c[0], c[1])
		}
	}
}

func TestScenario_TwoFarmersShareTheFarm(t *testing.T) {
	h := NewHarness(t, farm.FarmConfig{Seed: 3}, loadCats(t), "ana")
	ben := h.Join("ben")

	h.Step([]protocol.InstantReq{
		{ID: "I1", Type: "TILL", Pos: pos(0, 0)},
	})
	// Ben sees Ana's work on the shared grid.
	obs := h.StepFor(ben, nil)
	if got := plotObsAt(t, obs, 0, 0); got.State != "TILLED" {
		t.Fatalf("ben's view: %+v", got)
	}

	// Farm-wide events reach both sessions.
	h.StepFor(ben, []protocol.InstantReq{{ID: "I2", Type: "BUY_PROTECTION"}})
	if !h.LastObs().Farm.ProtectionActive {
		t.Fatalf("ana does not see ben's shield")
	}
}

func idf(prefix string, i int) string {
	return prefix + string(rune('0'+i))
}
