package farm

import (
	"fmt"

	"plotland.farm/internal/protocol"
)

func instPos(inst protocol.InstantReq) (Coord, bool) {
	if inst.Pos == nil {
		return Coord{}, false
	}
	return Coord{X: inst.Pos[0], Y: inst.Pos[1]}, true
}

func handleInstantTill(f *Farm, fr *Farmer, inst protocol.InstantReq, nowTick uint64) {
	c, ok := instPos(inst)
	if !ok {
		fr.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrBadRequest, "missing pos"))
		return
	}
	fr.AddEvent(opResultEvent(nowTick, inst.ID, f.Till(c)))
}

func handleInstantPlant(f *Farm, fr *Farmer, inst protocol.InstantReq, nowTick uint64) {
	c, ok := instPos(inst)
	if !ok {
		fr.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrBadRequest, "missing pos"))
		return
	}
	if inst.CropID == "" {
		fr.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrBadRequest, "missing crop_id"))
		return
	}
	def, known := f.catalogs.Crops.Defs[inst.CropID]
	if !known {
		fr.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrInvalidTarget, "unknown crop"))
		return
	}
	if fr.Inventory[def.SeedItem] < 1 {
		fr.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrNoResource, "missing seeds"))
		return
	}
	res := f.Plant(c, inst.CropID)
	if res.OK {
		fr.ConsumeItem(def.SeedItem, 1)
	}
	fr.AddEvent(opResultEvent(nowTick, inst.ID, res))
}

func handleInstantAttend(f *Farm, fr *Farmer, inst protocol.InstantReq, nowTick uint64) {
	c, ok := instPos(inst)
	if !ok {
		fr.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrBadRequest, "missing pos"))
		return
	}
	fr.AddEvent(opResultEvent(nowTick, inst.ID, f.Attend(c)))
}

func handleInstantHarvest(f *Farm, fr *Farmer, inst protocol.InstantReq, nowTick uint64) {
	c, ok := instPos(inst)
	if !ok {
		fr.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrBadRequest, "missing pos"))
		return
	}
	y, res := f.Harvest(c)
	if !res.OK {
		fr.AddEvent(opResultEvent(nowTick, inst.ID, res))
		return
	}
	fr.Inventory[y.SeedItem] += y.SeedQty
	fr.Inventory[y.CropItem] += y.CropQty
	fr.AddEvent(opResultEvent(nowTick, inst.ID, res))
	fr.AddEvent(protocol.Event{
		"t":         nowTick,
		"type":      "HARVEST",
		"pos":       c.ToArray(),
		"seed_item": y.SeedItem,
		"seed_qty":  y.SeedQty,
		"crop_item": y.CropItem,
		"crop_qty":  y.CropQty,
	})
}

func handleInstantNourish(f *Farm, fr *Farmer, inst protocol.InstantReq, nowTick uint64) {
	c, ok := instPos(inst)
	if !ok {
		fr.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrBadRequest, "missing pos"))
		return
	}
	if fr.Inventory[ItemNourishTonic] < 1 {
		fr.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrNoResource, "missing tonic"))
		return
	}
	res := f.ApplyNourish(c, f.cfg.NourishMultiplier)
	if res.OK {
		// The tonic is only spent when it actually lands.
		fr.ConsumeItem(ItemNourishTonic, 1)
	}
	fr.AddEvent(opResultEvent(nowTick, inst.ID, res))
}

func handleInstantHealInfected(f *Farm, fr *Farmer, inst protocol.InstantReq, nowTick uint64) {
	if fr.Inventory[ItemHealingSalve] < 1 {
		fr.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrNoResource, "missing salve"))
		return
	}
	infected := 0
	for _, p := range f.plots {
		if p.Infected {
			infected++
		}
	}
	if infected == 0 {
		fr.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrConflict, "nothing to heal"))
		return
	}
	fr.ConsumeItem(ItemHealingSalve, 1)
	healed := f.HealAllInfected()
	ev := actionResult(nowTick, inst.ID, true, "", fmt.Sprintf("healed %d plots", healed))
	ev["healed"] = healed
	fr.AddEvent(ev)
	f.broadcast(protocol.Event{
		"t":      nowTick,
		"type":   "PLOTS_HEALED",
		"by":     fr.ID,
		"healed": healed,
		"text":   fmt.Sprintf("%s cured %d sick crops", fr.Name, healed),
	})
}

func handleInstantUnlock(f *Farm, fr *Farmer, inst protocol.InstantReq, nowTick uint64) {
	if inst.Region == "" {
		fr.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrBadRequest, "missing region"))
		return
	}
	unlocked, ok := f.UnlockNamedRegion(inst.Region)
	if !ok {
		fr.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrInvalidTarget, "unknown region"))
		return
	}
	msg := fmt.Sprintf("unlocked %d plots", unlocked)
	if unlocked == 0 {
		msg = "already unlocked"
	}
	ev := actionResult(nowTick, inst.ID, true, "", msg)
	ev["unlocked"] = unlocked
	fr.AddEvent(ev)
	if unlocked > 0 {
		f.broadcast(protocol.Event{
			"t":      nowTick,
			"type":   "REGION_UNLOCKED",
			"region": inst.Region,
			"plots":  unlocked,
			"text":   fmt.Sprintf("the %s is now farmable", inst.Region),
		})
	}
}

func handleInstantSleep(f *Farm, fr *Farmer, inst protocol.InstantReq, nowTick uint64) {
	if inst.Seconds <= 0 {
		fr.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrBadRequest, "missing seconds"))
		return
	}
	seconds := inst.Seconds
	if seconds > f.cfg.SleepMaxSeconds {
		seconds = f.cfg.SleepMaxSeconds
	}
	changed := f.SimulateElapsed(seconds)
	ev := actionResult(nowTick, inst.ID, true, "", fmt.Sprintf("slept %.0f seconds", seconds))
	ev["seconds"] = seconds
	ev["plots_advanced"] = len(changed)
	fr.AddEvent(ev)
}

func handleInstantBuyProtection(f *Farm, fr *Farmer, inst protocol.InstantReq, nowTick uint64) {
	if f.protectionActive {
		fr.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrConflict, "protection already active"))
		return
	}
	if !fr.ConsumeItem(ItemProtectionCharm, 1) {
		fr.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrNoResource, "missing charm"))
		return
	}
	f.ArmProtection()
	fr.AddEvent(actionResult(nowTick, inst.ID, true, "", "protection armed"))
	f.broadcast(protocol.Event{
		"t":    nowTick,
		"type": "PROTECTION_ARMED",
		"by":   fr.ID,
		"text": fmt.Sprintf("%s armed the farm shield", fr.Name),
	})
}
