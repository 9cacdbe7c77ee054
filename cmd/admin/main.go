package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"plotland.farm/internal/persistence/snapshot"
	"plotland.farm/internal/sim/encoding"
	"plotland.farm/internal/sim/farm"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "rollback":
			rollbackCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "weather":
			weatherCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	farmID := fs.String("farm", "", "farm id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "farms")
	if *farmID != "" {
		base = filepath.Join(base, *farmID)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

// rollbackCmd rewinds the plots inside a rect to their pre-window states,
// using the audit stream, and writes the result as a new snapshot.
func rollbackCmd(args []string) {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	farmID := fs.String("farm", "", "farm id")
	snapPath := fs.String("snapshot", "", "snapshot path to rollback from (optional; defaults to latest)")
	rect := fs.String("rect", "", "rect filter: x1,y1:x2,y2 (required)")
	sinceTick := fs.Uint64("since_tick", 0, "rollback changes since tick (inclusive)")
	toTick := fs.Uint64("to_tick", 0, "rollback changes up to tick (inclusive, optional; defaults to snapshot tick)")
	outPath := fs.String("out", "", "output snapshot path (optional)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*farmID) == "" {
		fmt.Fprintln(os.Stderr, "missing -farm")
		os.Exit(2)
	}
	if strings.TrimSpace(*rect) == "" {
		fmt.Fprintln(os.Stderr, "missing -rect")
		os.Exit(2)
	}

	farmDir := filepath.Join(*dataDir, "farms", *farmID)
	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" {
		snapshotToLoad = latestSnapshot(farmDir)
	}
	if snapshotToLoad == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot or run server until it writes one")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(snapshotToLoad)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	min, max, err := parseRect(*rect)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -rect:", err)
		os.Exit(2)
	}

	endTick := *toTick
	if endTick == 0 || endTick > snap.Header.Tick {
		endTick = snap.Header.Tick
	}

	recs, err := readAudit(farmDir, *sinceTick, endTick, min, max)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read audit:", err)
		os.Exit(1)
	}
	if len(recs) == 0 {
		fmt.Println("no matching audit entries; nothing to rollback")
		return
	}

	applied, skipped, err := applyRollback(&snap, recs)
	if err != nil {
		fmt.Fprintln(os.Stderr, "apply rollback:", err)
		os.Exit(1)
	}

	if strings.TrimSpace(*outPath) == "" {
		*outPath = filepath.Join(farmDir, "snapshots", fmt.Sprintf("snap-%012d.rollback.zst", snap.Header.Tick))
	}
	if err := snapshot.WriteSnapshot(*outPath, snap); err != nil {
		fmt.Fprintln(os.Stderr, "write snapshot:", err)
		os.Exit(1)
	}

	fmt.Printf("rollback ok: snapshot=%s tick=%d rect=%s since=%d to=%d entries=%d applied=%d skipped=%d out=%s\n",
		filepath.Base(snapshotToLoad), snap.Header.Tick, *rect, *sinceTick, endTick, len(recs), applied, skipped, *outPath)
}

type auditRec struct {
	Seq   uint64
	Entry farm.AuditEntry
}

func readAudit(farmDir string, sinceTick, toTick uint64, min, max [2]int) ([]auditRec, error) {
	dir := filepath.Join(farmDir, "audit")
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
		if strings.HasPrefix(name, "audit-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	out := make([]auditRec, 0, 1024)
	var seq uint64

	for _, name := range names {
		path := filepath.Join(dir, name)
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		dec, err := zstd.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		sc := bufio.NewScanner(dec)
		sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
		for sc.Scan() {
			var e farm.AuditEntry
			if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
				dec.Close()
				_ = f.Close()
				return nil, fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
			}
			seq++
			if e.Tick < sinceTick || e.Tick > toTick {
				continue
			}
			if !withinRect(e.Pos, min, max) {
				continue
			}
			out = append(out, auditRec{Seq: seq, Entry: e})
		}
		if err := sc.Err(); err != nil {
			dec.Close()
			_ = f.Close()
			return nil, err
		}
		dec.Close()
		_ = f.Close()
	}

	// Reverse chronological apply: highest tick first; for same tick use reverse read order.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Entry.Tick != out[j].Entry.Tick {
			return out[i].Entry.Tick > out[j].Entry.Tick
		}
		return out[i].Seq > out[j].Seq
	})
	return out, nil
}

// applyRollback rewinds plot states in the snapshot. Per-cycle crop fields
// cannot be reconstructed from state transitions alone, so any touched plot
// loses its crop entry; a rolled-back PLANTED plot restarts its cycle.
func applyRollback(snap *snapshot.SnapshotV1, recs []auditRec) (applied, skipped int, err error) {
	if snap == nil || len(recs) == 0 {
		return 0, 0, nil
	}
	states, err := encoding.DecodeRLE(snap.States)
	if err != nil {
		return 0, 0, fmt.Errorf("decode states: %w", err)
	}
	if len(states) != len(snap.Coords) {
		return 0, 0, fmt.Errorf("snapshot has %d coords but %d states", len(snap.Coords), len(states))
	}
	idxByPos := make(map[[2]int]int, len(snap.Coords))
	for i, pos := range snap.Coords {
		idxByPos[pos] = i
	}

	touched := map[[2]int]bool{}
	for _, r := range recs {
		i, ok := idxByPos[r.Entry.Pos]
		if !ok {
			skipped++
			continue
		}
		st, ok := stateID(r.Entry.From)
		if !ok {
			skipped++
			continue
		}
		states[i] = st
		touched[r.Entry.Pos] = true
		applied++
	}

	kept := snap.Crops[:0]
	for _, cv := range snap.Crops {
		if touched[cv.Pos] {
			continue
		}
		kept = append(kept, cv)
	}
	snap.Crops = kept
	snap.States = encoding.EncodeRLE(states)
	return applied, skipped, nil
}

func stateID(name string) (uint16, bool) {
	for _, s := range []farm.PlotState{farm.PlotLocked, farm.PlotEmpty, farm.PlotTilled, farm.PlotPlanted, farm.PlotGrown} {
		if s.String() == name {
			return uint16(s), true
		}
	}
	return 0, false
}

func withinRect(pos [2]int, min, max [2]int) bool {
	return pos[0] >= min[0] && pos[0] <= max[0] &&
		pos[1] >= min[1] && pos[1] <= max[1]
}

func parseRect(s string) (min, max [2]int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return min, max, fmt.Errorf("expected x1,y1:x2,y2")
	}
	a, err := parseVec2(parts[0])
	if err != nil {
		return min, max, err
	}
	b, err := parseVec2(parts[1])
	if err != nil {
		return min, max, err
	}
	for i := 0; i < 2; i++ {
		if a[i] <= b[i] {
			min[i], max[i] = a[i], b[i]
		} else {
			min[i], max[i] = b[i], a[i]
		}
	}
	return min, max, nil
}

func parseVec2(s string) ([2]int, error) {
	var v [2]int
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return v, fmt.Errorf("expected x,y")
	}
	for i := 0; i < 2; i++ {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return v, err
		}
		v[i] = n
	}
	return v, nil
}

func latestSnapshot(farmDir string) string {
	dir := filepath.Join(farmDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "snap-") && strings.HasSuffix(name, ".zst") && !strings.Contains(name, "rollback") {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return ""
	}
	// Filenames embed zero-padded ticks, so lexical order is tick order.
	sort.Strings(names)
	return filepath.Join(dir, names[len(names)-1])
}
