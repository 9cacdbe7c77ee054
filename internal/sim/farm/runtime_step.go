package farm

import (
	"encoding/json"
	"fmt"
	"time"

	"plotland.farm/internal/protocol"
)

// stepInternal runs one tick. Ordering matters and is fixed: leaves/joins,
// weather events, farmer actions, then growth. A weather event and a growth
// tick never interleave mid-mutation because everything here is one call on
// one goroutine.
func (f *Farm) stepInternal(joins []JoinRequest, leaves []string, actions []ActionEnvelope, weather []string) {
	stepStart := time.Now()
	nowTick := f.tick.Load()

	f.auditsThisTick = f.auditsThisTick[:0]

	recordedLeaves := make([]string, 0, len(leaves))
	for _, id := range leaves {
		if _, ok := f.farmers[id]; ok {
			f.handleLeave(id)
			recordedLeaves = append(recordedLeaves, id)
		}
	}
	recordedJoins := make([]RecordedJoin, 0, len(joins))
	for _, req := range joins {
		resp := f.joinFarmer(req.Name, req.Out)
		if req.Resp != nil {
			req.Resp <- resp
		}
		recordedJoins = append(recordedJoins, RecordedJoin{FarmerID: resp.Welcome.FarmerID, Name: req.Name})
	}

	// Weather is applied before actions so a farmer's view of the outcome is
	// never half a tick stale.
	recordedWeather := make([]string, 0, len(weather))
	for _, kind := range weather {
		if !IsWeatherKind(kind) {
			continue
		}
		recordedWeather = append(recordedWeather, kind)
		out := f.OnWeatherEvent(kind)
		f.broadcastWeather(nowTick, out)
	}

	// Apply actions in server receive order (the inbox order).
	recorded := make([]RecordedAction, 0, len(actions))
	for _, env := range actions {
		fr := f.farmers[env.FarmerID]
		if fr == nil {
			continue
		}
		env.Act.FarmerID = env.FarmerID // trust session identity
		recorded = append(recorded, RecordedAction{FarmerID: env.FarmerID, Act: env.Act})
		f.applyAct(fr, env.Act, nowTick)
	}

	// One tick of growth.
	secPerTick := f.cfg.GrowthTimeScale / float64(f.cfg.TickRateHz)
	prevActor := f.curActor
	f.curActor = "GROWTH"
	grown := f.advanceGrowth(secPerTick)
	f.curActor = prevActor
	if len(grown) > 0 {
		f.broadcastPlotsChanged(nowTick, grown)
	}

	// Build + send OBS for each farmer.
	for id, fr := range f.farmers {
		cl := f.clients[id]
		if cl == nil {
			// No client to deliver to. Drop this tick's events so a farmer
			// who stays away does not accumulate them without bound.
			fr.TakeEvents()
			continue
		}
		obs := f.buildObs(fr, nowTick)
		b, err := json.Marshal(obs)
		if err != nil {
			continue
		}
		sendLatest(cl.Out, b)
	}

	digest := f.stateDigest(nowTick)
	if f.tickLogger != nil {
		audits := make([]AuditEntry, len(f.auditsThisTick))
		copy(audits, f.auditsThisTick)
		_ = f.tickLogger.WriteTick(TickLogEntry{
			Tick:    nowTick,
			Joins:   recordedJoins,
			Leaves:  recordedLeaves,
			Actions: recorded,
			Weather: recordedWeather,
			Audits:  audits,
			Digest:  digest,
		})
	}

	f.maybeSnapshot(nowTick)
	f.publishMetrics(nowTick, float64(time.Since(stepStart).Microseconds())/1000.0)
	f.tick.Add(1)
}

// broadcastPlotsChanged names the plots that moved a growth stage this tick
// so clients can refresh sprites without diffing the whole grid.
func (f *Farm) broadcastPlotsChanged(nowTick uint64, coords []Coord) {
	plots := make([][2]int, 0, len(coords))
	for _, c := range coords {
		plots = append(plots, c.ToArray())
	}
	f.broadcast(protocol.Event{
		"t":     nowTick,
		"type":  "PLOTS_CHANGED",
		"plots": plots,
		"count": len(plots),
	})
}

func (f *Farm) broadcastWeather(nowTick uint64, out WeatherOutcome) {
	ev := protocol.Event{
		"t":    nowTick,
		"type": "WEATHER_" + out.Kind,
	}
	switch {
	case out.Absorbed:
		ev["absorbed"] = true
		ev["text"] = "the farm shield absorbed the " + weatherNoun(out.Kind)
	case out.Kind == WeatherFrostEnd:
		ev["text"] = "the frost has passed"
	case out.Kind == WeatherFrost && f.cfg.Weather.FrostMode == FrostModeThrottle:
		ev["text"] = fmt.Sprintf("frost slows growth to %.0f%%", f.growthRate*100)
	default:
		coords := make([][2]int, 0, len(out.Affected))
		for _, c := range out.Affected {
			coords = append(coords, c.ToArray())
		}
		ev["affected"] = coords
		ev["count"] = len(out.Affected)
		ev["text"] = weatherText(out.Kind, len(out.Affected))
	}
	f.broadcast(ev)
}

func weatherNoun(kind string) string {
	switch kind {
	case WeatherStorm:
		return "storm"
	case WeatherFrost:
		return "frost"
	case WeatherDisease:
		return "disease"
	}
	return "weather"
}

func weatherText(kind string, n int) string {
	switch kind {
	case WeatherStorm:
		return fmt.Sprintf("a storm destroyed %d crops", n)
	case WeatherFrost:
		return fmt.Sprintf("frost damaged %d crops", n)
	case WeatherDisease:
		return fmt.Sprintf("disease infected %d crops", n)
	}
	return ""
}
