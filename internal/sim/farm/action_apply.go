package farm

import "plotland.farm/internal/protocol"

// Instant types a farmer can issue.
const (
	InstantTypeTill          = "TILL"
	InstantTypePlant         = "PLANT"
	InstantTypeAttend        = "ATTEND"
	InstantTypeHarvest       = "HARVEST"
	InstantTypeNourish       = "NOURISH"
	InstantTypeHealInfected  = "HEAL_INFECTED"
	InstantTypeUnlock        = "UNLOCK"
	InstantTypeSleep         = "SLEEP"
	InstantTypeBuyProtection = "BUY_PROTECTION"
)

// Items the instant layer consumes. The core plot operations never touch
// inventories; the exchange happens here, at the economy boundary.
const (
	ItemNourishTonic    = "nourish_tonic"
	ItemHealingSalve    = "healing_salve"
	ItemProtectionCharm = "protection_charm"
)

func (f *Farm) applyAct(fr *Farmer, act protocol.ActMsg, nowTick uint64) {
	rl := f.cfg.RateLimits
	for _, inst := range act.Instants {
		if ok, cd := fr.RateLimitAllow("ACT", nowTick, uint64(rl.ActWindowTicks), rl.ActMax); !ok {
			ev := actionResult(nowTick, inst.ID, false, protocol.ErrRateLimit, "too many actions")
			ev["cooldown_ticks"] = cd
			fr.AddEvent(ev)
			continue
		}
		f.applyInstant(fr, inst, nowTick)
	}
}

func (f *Farm) applyInstant(fr *Farmer, inst protocol.InstantReq, nowTick uint64) {
	prev := f.curActor
	f.curActor = fr.ID
	defer func() { f.curActor = prev }()

	if h := instantDispatch[inst.Type]; h != nil {
		h(f, fr, inst, nowTick)
		return
	}
	fr.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrBadRequest, "unknown instant type"))
}

type instantHandler func(*Farm, *Farmer, protocol.InstantReq, uint64)

var instantDispatch = map[string]instantHandler{
	InstantTypeTill:          handleInstantTill,
	InstantTypePlant:         handleInstantPlant,
	InstantTypeAttend:        handleInstantAttend,
	InstantTypeHarvest:       handleInstantHarvest,
	InstantTypeNourish:       handleInstantNourish,
	InstantTypeHealInfected:  handleInstantHealInfected,
	InstantTypeUnlock:        handleInstantUnlock,
	InstantTypeSleep:         handleInstantSleep,
	InstantTypeBuyProtection: handleInstantBuyProtection,
}

func actionResult(tick uint64, ref string, ok bool, code string, message string) protocol.Event {
	if !protocol.IsKnownCode(code) {
		code = protocol.ErrInternal
		if message == "" {
			message = "unknown error code"
		}
	}
	e := protocol.Event{
		"t":    tick,
		"type": "ACTION_RESULT",
		"ref":  ref,
		"ok":   ok,
	}
	if code != "" {
		e["code"] = code
	}
	if message != "" {
		e["message"] = message
	}
	return e
}

func opResultEvent(tick uint64, ref string, res OpResult) protocol.Event {
	return actionResult(tick, ref, res.OK, res.Code, res.Message)
}
