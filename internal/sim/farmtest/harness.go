package farmtest

import (
	"encoding/json"
	"testing"

	"plotland.farm/internal/protocol"
	"plotland.farm/internal/sim/catalogs"
	"plotland.farm/internal/sim/farm"
)

// Harness is a small black-box test helper for driving a farm via exported
// APIs:
// - Join() issues JoinRequest via StepOnce()
// - Step()/StepFor() issues ACT via StepOnce()
// - StepWeather() injects weather signals via StepOnce()
// - Per-farmer Out channels carry OBS JSON
//
// It intentionally avoids touching farm internals so tests can live outside
// the farm package.
type Harness struct {
	T    *testing.T
	Cats *catalogs.Catalogs
	F    *farm.Farm

	DefaultFarmerID string

	sessions map[string]*session
}

type session struct {
	FarmerID string
	Out      chan []byte
	lastObs  protocol.ObsMsg
}

func NewHarness(t *testing.T, cfg farm.FarmConfig, cats *catalogs.Catalogs, farmerName string) *Harness {
	t.Helper()

	f, err := farm.New(cfg, cats)
	if err != nil {
		t.Fatalf("farm.New: %v", err)
	}

	h := &Harness{
		T:        t,
		Cats:     cats,
		F:        f,
		sessions: map[string]*session{},
	}
	h.DefaultFarmerID = h.Join(farmerName)
	return h
}

func (h *Harness) Join(farmerName string) string {
	h.T.Helper()

	out := make(chan []byte, 16)
	resp := make(chan farm.JoinResponse, 1)
	_, _ = h.F.StepOnce([]farm.JoinRequest{{
		Name: farmerName,
		Out:  out,
		Resp: resp,
	}}, nil, nil, nil)
	jr := <-resp
	if jr.Welcome.FarmerID == "" {
		h.T.Fatalf("join returned empty farmer id")
	}
	s := &session{FarmerID: jr.Welcome.FarmerID, Out: out}
	h.sessions[s.FarmerID] = s
	h.drainAllObs()
	return s.FarmerID
}

func (h *Harness) LastObs() protocol.ObsMsg {
	return h.LastObsFor(h.DefaultFarmerID)
}

func (h *Harness) LastObsFor(farmerID string) protocol.ObsMsg {
	h.T.Helper()
	s := h.sessions[farmerID]
	if s == nil {
		h.T.Fatalf("unknown farmer id: %q", farmerID)
	}
	return s.lastObs
}

func (h *Harness) Step(instants []protocol.InstantReq) protocol.ObsMsg {
	return h.StepFor(h.DefaultFarmerID, instants)
}

func (h *Harness) StepFor(farmerID string, instants []protocol.InstantReq) protocol.ObsMsg {
	h.T.Helper()
	act := protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		Tick:            h.F.CurrentTick(),
		FarmerID:        farmerID,
		Instants:        instants,
	}
	_, _ = h.F.StepOnce(nil, nil, []farm.ActionEnvelope{{
		FarmerID: farmerID,
		Act:      act,
	}}, nil)
	h.drainAllObs()
	return h.LastObsFor(farmerID)
}

func (h *Harness) StepWeather(kind string) protocol.ObsMsg {
	h.T.Helper()
	_, _ = h.F.StepOnce(nil, nil, nil, []string{kind})
	h.drainAllObs()
	return h.LastObs()
}

func (h *Harness) StepNoop() protocol.ObsMsg {
	h.T.Helper()
	_, _ = h.F.StepOnce(nil, nil, nil, nil)
	h.drainAllObs()
	return h.LastObs()
}

func (h *Harness) AddInventoryFor(farmerID, item string, delta int) {
	h.T.Helper()
	if ok := h.F.DebugAddInventory(farmerID, item, delta); !ok {
		h.T.Fatalf("DebugAddInventory returned false")
	}
}

func (h *Harness) AddInventory(item string, delta int) {
	h.AddInventoryFor(h.DefaultFarmerID, item, delta)
}

func (h *Harness) Plot(c farm.Coord) farm.Plot {
	h.T.Helper()
	p, ok := h.F.DebugPlot(c)
	if !ok {
		h.T.Fatalf("no plot at %v", c)
	}
	return p
}

func (h *Harness) drainAllObs() {
	h.T.Helper()
	for _, s := range h.sessions {
		h.drainOneObs(s)
	}
}

func (h *Harness) drainOneObs(s *session) {
	h.T.Helper()
	var last []byte
	for {
		select {
		case b := <-s.Out:
			last = b
			continue
		default:
		}
		break
	}
	if len(last) == 0 {
		return
	}
	var obs protocol.ObsMsg
	if err := json.Unmarshal(last, &obs); err != nil {
		h.T.Fatalf("unmarshal OBS: %v", err)
	}
	s.lastObs = obs
}
