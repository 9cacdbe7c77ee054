package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"plotland.farm/internal/persistence/snapshot"
	"plotland.farm/internal/sim/catalogs"
	"plotland.farm/internal/sim/farm"
)

func main() {
	var (
		snapPath  = flag.String("snapshot", "", "path to snap-*.zst (optional; replays from tick 0 without one)")
		eventsDir = flag.String("events", "", "events dir containing events-*.jsonl.zst")
		configDir = flag.String("configs", "./configs", "config directory")
		farmID    = flag.String("farm", "farm_1", "farm id (ignored when -snapshot is set)")
		seed      = flag.Int64("seed", 1337, "farm seed (ignored when -snapshot is set)")
		fromTick  = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick    = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	if *eventsDir == "" {
		fmt.Fprintln(os.Stderr, "missing -events")
		os.Exit(2)
	}

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}

	cfg := farm.FarmConfig{ID: *farmID, Seed: *seed}
	var snap snapshot.SnapshotV1
	haveSnap := *snapPath != ""
	if haveSnap {
		snap, err = snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		fmt.Printf("snapshot v%d farm=%s tick=%d seed=%d plots=%d crops=%d farmers=%d\n",
			snap.Header.Version, snap.Header.FarmID, snap.Header.Tick, snap.Seed,
			len(snap.Coords), len(snap.Crops), len(snap.Farmers))
		cfg = farm.FarmConfig{
			ID:                snap.Header.FarmID,
			TickRateHz:        snap.TickRateHz,
			Seed:              snap.Seed,
			GrowthTimeScale:   snap.GrowthTimeScale,
			SleepMaxSeconds:   snap.SleepMaxSeconds,
			NourishMultiplier: snap.NourishMultiplier,
			StarterItems:      snap.StarterItems,
		}
	}

	f, err := farm.New(cfg, cats)
	if err != nil {
		fmt.Fprintln(os.Stderr, "farm:", err)
		os.Exit(1)
	}
	if haveSnap {
		if err := f.RestoreSnapshot(snap); err != nil {
			fmt.Fprintln(os.Stderr, "restore snapshot:", err)
			os.Exit(1)
		}
	}

	startTick := f.CurrentTick()
	verifyFrom := *fromTick
	if verifyFrom == 0 {
		verifyFrom = startTick
	}

	files, err := listEventFiles(*eventsDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list events:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no events files found in", *eventsDir)
		os.Exit(1)
	}

	var checked uint64
	for _, path := range files {
		if err := replayFile(f, path, startTick, verifyFrom, *toTick, &checked); err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
		if *toTick != 0 && f.CurrentTick() > *toTick {
			break
		}
	}
	fmt.Printf("replay ok: checked=%d ticks (from tick=%d)\n", checked, startTick)
}

func listEventFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "events-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

func replayFile(f *farm.Farm, path string, startTick, verifyFrom, toTick uint64, checked *uint64) error {
	fh, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fh.Close()

	dec, err := zstd.NewReader(fh)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)

	for sc.Scan() {
		line := sc.Bytes()
		var entry farm.TickLogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		if entry.Tick < startTick {
			continue
		}
		if toTick != 0 && entry.Tick > toTick {
			return nil
		}
		if entry.Tick != f.CurrentTick() {
			return fmt.Errorf("tick mismatch: want=%d got=%d (file=%s)", f.CurrentTick(), entry.Tick, filepath.Base(path))
		}

		joins := make([]farm.JoinRequest, 0, len(entry.Joins))
		for _, j := range entry.Joins {
			joins = append(joins, farm.JoinRequest{Name: j.Name})
		}
		leaves := entry.Leaves

		acts := make([]farm.ActionEnvelope, 0, len(entry.Actions))
		for _, ra := range entry.Actions {
			acts = append(acts, farm.ActionEnvelope{FarmerID: ra.FarmerID, Act: ra.Act})
		}

		tick, gotDigest := f.StepOnce(joins, leaves, acts, entry.Weather)

		// Sanity check: StepOnce should have stepped the same tick.
		if tick != entry.Tick {
			return fmt.Errorf("internal tick mismatch: stepped=%d entry=%d (file=%s)", tick, entry.Tick, filepath.Base(path))
		}

		if tick >= verifyFrom {
			*checked++
			if gotDigest != entry.Digest {
				return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", tick, gotDigest, entry.Digest)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return nil
}
