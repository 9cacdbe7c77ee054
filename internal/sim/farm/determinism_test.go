package farm

import (
	"testing"

	"plotland.farm/internal/protocol"
)

func TestDeterminism_SameStreamSameDigest(t *testing.T) {
	build := func() *Farm { return newTestFarm(t, FarmConfig{Seed: 42}) }
	f1 := build()
	f2 := build()

	join := func(f *Farm) string {
		resp := make(chan JoinResponse, 1)
		f.StepOnce([]JoinRequest{{Name: "bot", Resp: resp}}, nil, nil, nil)
		return (<-resp).Welcome.FarmerID
	}
	id1 := join(f1)
	id2 := join(f2)
	if id1 != id2 {
		t.Fatalf("farmer id mismatch: %s vs %s", id1, id2)
	}

	script := func(tick uint64, id string) ([]ActionEnvelope, []string) {
		var acts []ActionEnvelope
		var weather []string
		instants := func(reqs ...protocol.InstantReq) {
			acts = append(acts, ActionEnvelope{FarmerID: id, Act: protocol.ActMsg{Instants: reqs}})
		}
		switch tick {
		case 1:
			instants(
				protocol.InstantReq{ID: "T1", Type: InstantTypeTill, Pos: pos(0, 0)},
				protocol.InstantReq{ID: "T2", Type: InstantTypeTill, Pos: pos(1, 0)},
			)
		case 2:
			instants(
				protocol.InstantReq{ID: "P1", Type: InstantTypePlant, Pos: pos(0, 0), CropID: "TURNIP"},
				protocol.InstantReq{ID: "P2", Type: InstantTypePlant, Pos: pos(1, 0), CropID: "CARROT"},
			)
		case 3:
			instants(
				protocol.InstantReq{ID: "A1", Type: InstantTypeAttend, Pos: pos(0, 0)},
				protocol.InstantReq{ID: "A2", Type: InstantTypeAttend, Pos: pos(1, 0)},
			)
		case 10:
			weather = append(weather, WeatherDisease)
		case 20:
			instants(protocol.InstantReq{ID: "S1", Type: InstantTypeSleep, Seconds: 650})
		case 21:
			instants(protocol.InstantReq{ID: "H1", Type: InstantTypeHarvest, Pos: pos(0, 0)})
		case 30:
			weather = append(weather, WeatherStorm)
		}
		return acts, weather
	}

	for tick := uint64(1); tick <= 50; tick++ {
		a1, w1 := script(tick, id1)
		a2, w2 := script(tick, id2)
		_, d1 := f1.StepOnce(nil, nil, a1, w1)
		_, d2 := f2.StepOnce(nil, nil, a2, w2)
		if d1 != d2 {
			t.Fatalf("digest diverged at tick %d:\n%s\n%s", tick, d1, d2)
		}
	}
}

func TestDeterminism_DifferentSeedsDiverge(t *testing.T) {
	f1 := newTestFarm(t, FarmConfig{Seed: 1})
	f2 := newTestFarm(t, FarmConfig{Seed: 2})
	plantField(t, f1, 10)
	plantField(t, f2, 10)

	f1.OnWeatherEvent(WeatherDisease)
	f2.OnWeatherEvent(WeatherDisease)

	// The seed feeds the digest directly, so compare infected sets instead.
	same := true
	for _, c := range f1.sortedPlotCoords() {
		p1, _ := f1.DebugPlot(c)
		p2, _ := f2.DebugPlot(c)
		if p1.Infected != p2.Infected {
			same = false
			break
		}
	}
	if same {
		t.Log("different seeds picked the same infected set; allowed, but unexpected")
	}
}

func TestDigest_SensitiveToPlotState(t *testing.T) {
	f := newTestFarm(t, FarmConfig{Seed: 1})
	before := f.Digest()
	f.Till(Coord{X: 0, Y: 0})
	if f.Digest() == before {
		t.Fatalf("digest unchanged by a plot mutation")
	}
}
