package farm

import (
	"context"
	"errors"
	"fmt"

	"plotland.farm/internal/persistence/snapshot"
	"plotland.farm/internal/sim/encoding"
)

const snapshotVersion = 1

// SetSnapshotSink installs the channel snapshots are delivered on. Must be
// set before Run; the loop never blocks on a full sink.
func (f *Farm) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { f.snapshotSink = ch }

// ExportSnapshot captures the full simulation state at nowTick. Loop
// goroutine only.
func (f *Farm) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshotVersion,
			FarmID:  f.cfg.ID,
			Tick:    nowTick,
		},
		Seed:              f.cfg.Seed,
		TickRateHz:        f.cfg.TickRateHz,
		GrowthTimeScale:   f.cfg.GrowthTimeScale,
		SleepMaxSeconds:   f.cfg.SleepMaxSeconds,
		NourishMultiplier: f.cfg.NourishMultiplier,
		StarterItems:      f.cfg.StarterItems,
		Weather:           f.weather,
		GrowthRate:        f.growthRate,
		ProtectionActive:  f.protectionActive,
		NextFarmerNum:     f.nextFarmerNum.Load(),
	}
	if b, err := f.rngSrc.MarshalBinary(); err == nil {
		snap.RNG = b
	}

	coords := f.sortedPlotCoords()
	states := make([]uint16, len(coords))
	for i, c := range coords {
		p := f.plots[c]
		snap.Coords = append(snap.Coords, c.ToArray())
		states[i] = uint16(p.State)
		if p.hasCrop() {
			snap.Crops = append(snap.Crops, snapshot.CropPlotV1{
				Pos:           c.ToArray(),
				Crop:          p.Crop,
				GrowthSeconds: p.GrowthSeconds,
				Stage:         p.Stage,
				Watered:       p.Watered,
				Nourished:     p.Nourished,
				NourishMult:   p.NourishMult,
				Infected:      p.Infected,
				Protected:     p.Protected,
			})
		}
	}
	snap.States = encoding.EncodeRLE(states)

	for _, fr := range f.sortedFarmers() {
		fv := snapshot.FarmerV1{
			ID:        fr.ID,
			Name:      fr.Name,
			Inventory: map[string]int{},
		}
		for item, n := range fr.Inventory {
			if n > 0 {
				fv.Inventory[item] = n
			}
		}
		if len(fr.rl) > 0 {
			fv.RateWindows = map[string]snapshot.RateWindowV1{}
			for kind, w := range fr.rl {
				fv.RateWindows[kind] = snapshot.RateWindowV1{
					StartTick: w.StartTick,
					Count:     w.Count,
					Window:    w.Window,
					Max:       w.Max,
				}
			}
		}
		snap.Farmers = append(snap.Farmers, fv)
	}

	return snap
}

// RestoreSnapshot loads a previously exported snapshot. Must be called before
// Run, while nothing else touches the farm. Boot-time config (tick rate,
// growth scale) stays as configured; only dynamic state is restored.
func (f *Farm) RestoreSnapshot(snap snapshot.SnapshotV1) error {
	if snap.Header.Version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	states, err := encoding.DecodeRLE(snap.States)
	if err != nil {
		return fmt.Errorf("decode plot states: %w", err)
	}
	if len(states) != len(snap.Coords) {
		return fmt.Errorf("snapshot has %d coords but %d states", len(snap.Coords), len(states))
	}

	if len(snap.RNG) > 0 {
		if err := f.rngSrc.UnmarshalBinary(snap.RNG); err != nil {
			return fmt.Errorf("restore rng: %w", err)
		}
	}

	for i, pos := range snap.Coords {
		c := Coord{X: pos[0], Y: pos[1]}
		p := f.plots[c]
		if p == nil {
			p = &Plot{}
			f.plots[c] = p
		}
		p.resetTo(PlotState(states[i]))
	}
	for _, cv := range snap.Crops {
		p := f.plots[Coord{X: cv.Pos[0], Y: cv.Pos[1]}]
		if p == nil || !p.hasCrop() {
			return fmt.Errorf("snapshot crop entry at %v has no crop-bearing plot", cv.Pos)
		}
		p.Crop = cv.Crop
		p.GrowthSeconds = cv.GrowthSeconds
		p.Stage = cv.Stage
		p.Watered = cv.Watered
		p.Nourished = cv.Nourished
		p.NourishMult = cv.NourishMult
		p.Infected = cv.Infected
		p.Protected = cv.Protected
	}

	f.farmers = map[string]*Farmer{}
	for _, fv := range snap.Farmers {
		fr := &Farmer{
			ID:        fv.ID,
			Name:      fv.Name,
			Inventory: map[string]int{},
			rl:        map[string]*rateWindow{},
		}
		for item, n := range fv.Inventory {
			if n > 0 {
				fr.Inventory[item] = n
			}
		}
		for kind, w := range fv.RateWindows {
			fr.rl[kind] = &rateWindow{
				StartTick: w.StartTick,
				Count:     w.Count,
				Window:    w.Window,
				Max:       w.Max,
			}
		}
		f.farmers[fr.ID] = fr
	}

	f.weather = snap.Weather
	if f.weather == "" {
		f.weather = "CLEAR"
	}
	f.growthRate = snap.GrowthRate
	if f.growthRate <= 0 {
		f.growthRate = 1.0
	}
	f.protectionActive = snap.ProtectionActive
	f.nextFarmerNum.Store(snap.NextFarmerNum)
	f.tick.Store(snap.Header.Tick)
	return nil
}

// RequestSnapshot asks the farm loop goroutine to enqueue a snapshot.
// It is safe to call from other goroutines (e.g. HTTP handlers).
func (f *Farm) RequestSnapshot(ctx context.Context) (tick uint64, err error) {
	resp := make(chan snapshotResp, 1)
	select {
	case f.snapshotReq <- resp:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case r := <-resp:
		if r.Err != "" {
			return r.Tick, errors.New(r.Err)
		}
		return r.Tick, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

type snapshotResp struct {
	Tick uint64
	Err  string
}

// handleSnapshotRequest runs on the loop goroutine.
func (f *Farm) handleSnapshotRequest(resp chan snapshotResp) {
	nowTick := f.tick.Load()
	r := snapshotResp{Tick: nowTick}
	if f.snapshotSink == nil {
		r.Err = "no snapshot sink configured"
	} else {
		select {
		case f.snapshotSink <- f.ExportSnapshot(nowTick):
		default:
			r.Err = "snapshot sink full"
		}
	}
	select {
	case resp <- r:
	default:
	}
}

// maybeSnapshot emits a periodic snapshot when configured.
func (f *Farm) maybeSnapshot(nowTick uint64) {
	n := uint64(f.cfg.SnapshotEveryTicks)
	if n == 0 || f.snapshotSink == nil || nowTick == 0 || nowTick%n != 0 {
		return
	}
	select {
	case f.snapshotSink <- f.ExportSnapshot(nowTick):
	default:
	}
}
