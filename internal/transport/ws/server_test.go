package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"plotland.farm/internal/protocol"
	"plotland.farm/internal/sim/catalogs"
	"plotland.farm/internal/sim/farm"
)

func newTestServer(t *testing.T) (*httptest.Server, *farm.Farm, context.CancelFunc) {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	f, err := farm.New(farm.FarmConfig{ID: "farm_ws", Seed: 7, TickRateHz: 20}, cats)
	if err != nil {
		t.Fatalf("farm.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go f.Run(ctx)

	logger := log.New(os.Stdout, "[ws-test] ", 0)
	ts := httptest.NewServer(NewServer(f, logger).Handler())
	return ts, f, func() {
		ts.Close()
		cancel()
	}
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readMsg(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestHandshake_WelcomeAndCatalogs(t *testing.T) {
	ts, _, done := newTestServer(t)
	defer done()

	conn := dial(t, ts)
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		FarmerName:      "ana",
	}
	b, _ := json.Marshal(hello)
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("write hello: %v", err)
	}

	var welcome protocol.WelcomeMsg
	if err := json.Unmarshal(readMsg(t, conn), &welcome); err != nil {
		t.Fatalf("decode welcome: %v", err)
	}
	if welcome.Type != protocol.TypeWelcome {
		t.Fatalf("first message type %q", welcome.Type)
	}
	if welcome.FarmerID == "" {
		t.Fatalf("empty farmer id")
	}
	if welcome.FarmParams.FarmID != "farm_ws" {
		t.Fatalf("farm id %q", welcome.FarmParams.FarmID)
	}
	if welcome.Catalogs.CropPalette.Digest == "" || welcome.Catalogs.LayoutDigest == "" {
		t.Fatalf("missing catalog digests")
	}

	// CATALOG messages follow, then per-tick OBS.
	sawCatalog, sawObs := false, false
	for i := 0; i < 10 && !sawObs; i++ {
		base, err := protocol.DecodeBase(readMsg(t, conn))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		switch base.Type {
		case protocol.TypeCatalog:
			sawCatalog = true
		case protocol.TypeObs:
			sawObs = true
		}
	}
	if !sawCatalog || !sawObs {
		t.Fatalf("sawCatalog=%v sawObs=%v", sawCatalog, sawObs)
	}
}

func TestHandshake_RejectsVersionMismatch(t *testing.T) {
	ts, _, done := newTestServer(t)
	defer done()

	conn := dial(t, ts)
	defer conn.Close()

	b, _ := json.Marshal(protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: "0.0",
		FarmerName:      "ana",
	})
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("write hello: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected close after version mismatch")
	}
}

func TestActFlow_TillResultArrivesInObs(t *testing.T) {
	ts, _, done := newTestServer(t)
	defer done()

	conn := dial(t, ts)
	defer conn.Close()

	b, _ := json.Marshal(protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		FarmerName:      "ana",
	})
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("write hello: %v", err)
	}

	// Drain until the first OBS so the join has been applied.
	var obs protocol.ObsMsg
	for {
		msg := readMsg(t, conn)
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if base.Type != protocol.TypeObs {
			continue
		}
		if err := json.Unmarshal(msg, &obs); err != nil {
			t.Fatalf("decode obs: %v", err)
		}
		break
	}

	// Find an EMPTY plot and till it.
	var pos *[2]int
	for _, p := range obs.Plots {
		if p.State == "EMPTY" {
			pp := p.Pos
			pos = &pp
			break
		}
	}
	if pos == nil {
		t.Fatalf("no EMPTY plot in OBS")
	}

	act := protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		Instants: []protocol.InstantReq{
			{ID: "I_till_1", Type: "TILL", Pos: pos},
		},
	}
	ab, _ := json.Marshal(act)
	if err := conn.WriteMessage(websocket.TextMessage, ab); err != nil {
		t.Fatalf("write act: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		msg := readMsg(t, conn)
		base, err := protocol.DecodeBase(msg)
		if err != nil || base.Type != protocol.TypeObs {
			continue
		}
		var o protocol.ObsMsg
		if err := json.Unmarshal(msg, &o); err != nil {
			continue
		}
		for _, ev := range o.Events {
			if ev["type"] == "ACTION_RESULT" && ev["ref"] == "I_till_1" {
				if ok, _ := ev["ok"].(bool); !ok {
					t.Fatalf("till failed: %v", ev)
				}
				return
			}
		}
	}
	t.Fatalf("no ACTION_RESULT for I_till_1")
}
