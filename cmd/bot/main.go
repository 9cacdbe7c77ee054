package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"

	"plotland.farm/internal/protocol"
)

func main() {
	var (
		url  = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name = flag.String("name", "farmhand", "farmer name")
		crop = flag.String("crop", "TURNIP", "crop to plant")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		FarmerName:      *name,
		Capabilities: protocol.HelloCapabilities{
			MaxQueue: 8,
		},
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME farmer_id=%s tick_rate=%d seed=%d", w.FarmerID, w.FarmParams.TickRateHz, w.FarmParams.Seed)

		case protocol.TypeObs:
			var obs protocol.ObsMsg
			if err := json.Unmarshal(msg, &obs); err != nil {
				continue
			}
			handleObs(conn, logger, &obs, *crop)
		}
	}
}

// handleObs works the farm greedily: harvest what is GROWN, water dry
// plantings, keep planting while seeds last, and till the next empty plot.
// One instant per OBS keeps the bot well under the action rate limit.
func handleObs(conn *websocket.Conn, logger *log.Logger, obs *protocol.ObsMsg, crop string) {
	inst, ok := nextInstant(obs, crop)
	if !ok {
		return
	}
	act := protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		Tick:            obs.Tick,
		FarmerID:        obs.FarmerID,
		Instants:        []protocol.InstantReq{inst},
	}
	if err := conn.WriteJSON(act); err != nil {
		logger.Printf("send ACT: %v", err)
	}
}

func nextInstant(obs *protocol.ObsMsg, crop string) (protocol.InstantReq, bool) {
	seeds := 0
	salves := 0
	for _, st := range obs.Inventory {
		switch st.Item {
		case seedItemFor(crop):
			seeds = st.Count
		case "healing_salve":
			salves = st.Count
		}
	}

	infected := 0
	for _, p := range obs.Plots {
		if p.Infected {
			infected++
		}
	}
	if infected >= 3 && salves > 0 {
		return protocol.InstantReq{ID: ref("heal", obs.Tick), Type: "HEAL_INFECTED"}, true
	}

	for _, p := range obs.Plots {
		if p.State == "GROWN" && !p.Infected {
			pos := p.Pos
			return protocol.InstantReq{ID: ref("harvest", obs.Tick), Type: "HARVEST", Pos: &pos}, true
		}
	}
	for _, p := range obs.Plots {
		if p.State == "PLANTED" && !p.Watered && !p.Infected {
			pos := p.Pos
			return protocol.InstantReq{ID: ref("attend", obs.Tick), Type: "ATTEND", Pos: &pos}, true
		}
	}
	if seeds > 0 {
		for _, p := range obs.Plots {
			if p.State == "TILLED" {
				pos := p.Pos
				return protocol.InstantReq{ID: ref("plant", obs.Tick), Type: "PLANT", Pos: &pos, CropID: crop}, true
			}
		}
	}
	for _, p := range obs.Plots {
		if p.State == "EMPTY" {
			pos := p.Pos
			return protocol.InstantReq{ID: ref("till", obs.Tick), Type: "TILL", Pos: &pos}, true
		}
	}
	return protocol.InstantReq{}, false
}

func seedItemFor(crop string) string {
	switch crop {
	case "TURNIP":
		return "turnip_seed"
	case "CARROT":
		return "carrot_seed"
	case "PUMPKIN":
		return "pumpkin_seed"
	}
	return ""
}

func ref(kind string, tick uint64) string {
	return fmt.Sprintf("I_%s_%d", kind, tick)
}
