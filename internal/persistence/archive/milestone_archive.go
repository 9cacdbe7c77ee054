package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"plotland.farm/internal/persistence/snapshot"
)

type MilestoneMeta struct {
	Milestone int    `json:"milestone"`
	Tick      uint64 `json:"tick"`
	FarmID    string `json:"farm_id"`
	Seed      int64  `json:"seed"`
	Snapshot  string `json:"snapshot"`
	CreatedAt string `json:"created_at"`
	Plots     int    `json:"plots"`
	Farmers   int    `json:"farmers"`
}

// ArchiveMilestoneSnapshot copies a milestone snapshot into
// `farmDir/archives/milestone_<NNN>/`. Periodic snapshots land on tick
// multiples of the snapshot interval, so a milestone is any snapshot whose
// tick is a multiple of everyTicks. Returns archived=false for snapshots
// that are not on a milestone boundary (manual snapshots included).
func ArchiveMilestoneSnapshot(farmDir, snapshotPath string, snap snapshot.SnapshotV1, everyTicks int) (milestone int, archivedPath string, archived bool, err error) {
	if everyTicks <= 0 {
		return 0, "", false, nil
	}
	every := uint64(everyTicks)
	if snap.Header.Tick == 0 || snap.Header.Tick%every != 0 {
		return 0, "", false, nil
	}
	milestone = int(snap.Header.Tick / every)

	archiveDir := filepath.Join(farmDir, "archives", fmt.Sprintf("milestone_%03d", milestone))
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return 0, "", false, err
	}

	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return 0, "", false, err
	}

	meta := MilestoneMeta{
		Milestone: milestone,
		Tick:      snap.Header.Tick,
		FarmID:    snap.Header.FarmID,
		Seed:      snap.Seed,
		Snapshot:  filepath.Base(dst),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
		Plots:     len(snap.Coords),
		Farmers:   len(snap.Farmers),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644)
	}

	return milestone, dst, true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
