package indexdb

import (
	"path/filepath"
	"testing"

	"plotland.farm/internal/protocol"
	"plotland.farm/internal/sim/farm"
)

func TestSQLiteIndex_TickAndAuditRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}

	_ = idx.WriteTick(farm.TickLogEntry{
		Tick:   0,
		Joins:  []farm.RecordedJoin{{FarmerID: "F1", Name: "ana"}},
		Digest: "d0",
	})
	_ = idx.WriteTick(farm.TickLogEntry{
		Tick: 1,
		Actions: []farm.RecordedAction{{
			FarmerID: "F1",
			Act:      protocol.ActMsg{Instants: []protocol.InstantReq{{ID: "I1", Type: "TILL"}}},
		}},
		Weather: []string{"STORM"},
		Digest:  "d1",
	})
	_ = idx.WriteAudit(farm.AuditEntry{Tick: 1, Actor: "F1", Action: "TILL", Pos: [2]int{0, 0}, From: "EMPTY", To: "TILLED"})
	_ = idx.WriteAudit(farm.AuditEntry{Tick: 1, Actor: "F1", Action: "HARVEST", Pos: [2]int{1, 0}, From: "GROWN", To: "EMPTY", Reason: "TURNIP"})
	_ = idx.WriteAudit(farm.AuditEntry{Tick: 2, Actor: "F1", Action: "HARVEST", Pos: [2]int{1, 0}, From: "GROWN", To: "EMPTY", Reason: "TURNIP"})

	// Close drains the queue and commits.
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	idx, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx.Close()

	ticks, err := idx.RecentTicks(10)
	if err != nil {
		t.Fatalf("RecentTicks: %v", err)
	}
	if len(ticks) != 2 || ticks[0].Tick != 1 || ticks[0].Actions != 1 || ticks[1].Joins != 1 {
		t.Fatalf("ticks: %+v", ticks)
	}

	weather, err := idx.WeatherHistory(10)
	if err != nil {
		t.Fatalf("WeatherHistory: %v", err)
	}
	if len(weather) != 1 || weather[0].Kind != "STORM" || weather[0].Tick != 1 {
		t.Fatalf("weather: %+v", weather)
	}

	totals, err := idx.HarvestTotals()
	if err != nil {
		t.Fatalf("HarvestTotals: %v", err)
	}
	if totals["TURNIP"] != 2 {
		t.Fatalf("harvest totals: %+v", totals)
	}

	hist, err := idx.PlotHistory(1, 0, 10)
	if err != nil {
		t.Fatalf("PlotHistory: %v", err)
	}
	if len(hist) != 2 || hist[0].Tick != 2 || hist[0].Action != "HARVEST" {
		t.Fatalf("plot history: %+v", hist)
	}
}

func TestSQLiteIndex_NilAndClosedAreNoops(t *testing.T) {
	var idx *SQLiteIndex
	if err := idx.WriteTick(farm.TickLogEntry{}); err != nil {
		t.Fatalf("nil WriteTick: %v", err)
	}

	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	_ = idx.Close()
	if err := idx.WriteAudit(farm.AuditEntry{Tick: 1}); err != nil {
		t.Fatalf("closed WriteAudit: %v", err)
	}
}
