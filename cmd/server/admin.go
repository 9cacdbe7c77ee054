package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"plotland.farm/internal/persistence/indexdb"
	"plotland.farm/internal/sim/farm"
	"plotland.farm/internal/sim/multifarm"
)

// Local-only admin endpoints (do not affect simulation determinism).
// Every endpoint resolves its farm from the ?farm= query parameter,
// falling back to the manager's default farm.
func registerAdminHandlers(mux *http.ServeMux, mgr *multifarm.Manager, indexes map[string]runtimeIndex) {
	resolve := func(rw http.ResponseWriter, r *http.Request) (string, *farm.Farm, bool) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return "", nil, false
		}
		id := strings.TrimSpace(r.URL.Query().Get("farm"))
		if id == "" {
			id = mgr.DefaultID()
		}
		f, ok := mgr.Get(id)
		if !ok {
			http.Error(rw, "unknown farm", http.StatusNotFound)
			return "", nil, false
		}
		return id, f, true
	}

	mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
		id, f, ok := resolve(rw, r)
		if !ok {
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		resp := struct {
			FarmID  string           `json:"farm_id"`
			Tick    uint64           `json:"tick"`
			Metrics farm.FarmMetrics `json:"metrics"`
		}{
			FarmID:  id,
			Tick:    f.CurrentTick(),
			Metrics: f.Metrics(),
		}
		_ = json.NewEncoder(rw).Encode(resp)
	})

	mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_, f, ok := resolve(rw, r)
		if !ok {
			return
		}
		ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel2()
		tick, err := f.RequestSnapshot(ctx2)
		rw.Header().Set("Content-Type", "application/json")
		if err != nil {
			rw.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": tick, "error": err.Error()})
			return
		}
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": tick})
	})

	mux.HandleFunc("/admin/v1/weather", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_, f, ok := resolve(rw, r)
		if !ok {
			return
		}
		var body struct {
			Kind string `json:"kind"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(rw, "bad json", http.StatusBadRequest)
			return
		}
		kind := strings.ToUpper(strings.TrimSpace(body.Kind))
		if !farm.IsWeatherKind(kind) {
			http.Error(rw, "unknown weather kind", http.StatusBadRequest)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		select {
		case f.WeatherSignal() <- kind:
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "kind": kind})
		default:
			rw.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": "weather queue full"})
		}
	})

	// History endpoints are backed by the sqlite index when it is enabled.
	requireSQL := func(rw http.ResponseWriter, r *http.Request) *indexdb.SQLiteIndex {
		id, _, ok := resolve(rw, r)
		if !ok {
			return nil
		}
		sqlIdx, _ := indexes[id].(*indexdb.SQLiteIndex)
		if sqlIdx == nil {
			http.Error(rw, "sqlite index disabled", http.StatusServiceUnavailable)
			return nil
		}
		return sqlIdx
	}
	queryInt := func(r *http.Request, key string, def int) int {
		v := strings.TrimSpace(r.URL.Query().Get(key))
		if v == "" {
			return def
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return def
		}
		return n
	}

	mux.HandleFunc("/admin/v1/ticks", func(rw http.ResponseWriter, r *http.Request) {
		sqlIdx := requireSQL(rw, r)
		if sqlIdx == nil {
			return
		}
		rows, err := sqlIdx.RecentTicks(queryInt(r, "limit", 50))
		writeQueryResult(rw, rows, err)
	})
	mux.HandleFunc("/admin/v1/weather_history", func(rw http.ResponseWriter, r *http.Request) {
		sqlIdx := requireSQL(rw, r)
		if sqlIdx == nil {
			return
		}
		rows, err := sqlIdx.WeatherHistory(queryInt(r, "limit", 50))
		writeQueryResult(rw, rows, err)
	})
	mux.HandleFunc("/admin/v1/harvests", func(rw http.ResponseWriter, r *http.Request) {
		sqlIdx := requireSQL(rw, r)
		if sqlIdx == nil {
			return
		}
		totals, err := sqlIdx.HarvestTotals()
		writeQueryResult(rw, totals, err)
	})
	mux.HandleFunc("/admin/v1/plot_history", func(rw http.ResponseWriter, r *http.Request) {
		sqlIdx := requireSQL(rw, r)
		if sqlIdx == nil {
			return
		}
		x := queryInt(r, "x", 0)
		y := queryInt(r, "y", 0)
		rows, err := sqlIdx.PlotHistory(x, y, queryInt(r, "limit", 50))
		writeQueryResult(rw, rows, err)
	})

	mux.HandleFunc("/admin/v1/index_stats", func(rw http.ResponseWriter, r *http.Request) {
		id, _, ok := resolve(rw, r)
		if !ok {
			return
		}
		remIdx, _ := indexes[id].(*indexdb.RemoteIndex)
		if remIdx == nil {
			http.Error(rw, "remote index disabled", http.StatusServiceUnavailable)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(remIdx.Stats())
	})
}

func writeQueryResult(rw http.ResponseWriter, rows any, err error) {
	rw.Header().Set("Content-Type", "application/json")
	if err != nil {
		rw.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
		return
	}
	_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "rows": rows})
}
