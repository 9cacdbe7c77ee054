package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"plotland.farm/internal/persistence/archive"
	persistlog "plotland.farm/internal/persistence/log"
	"plotland.farm/internal/persistence/r2s3"
	"plotland.farm/internal/persistence/snapshot"
	"plotland.farm/internal/sim/catalogs"
	"plotland.farm/internal/sim/farm"
	"plotland.farm/internal/sim/multifarm"
	"plotland.farm/internal/sim/tuning"
	"plotland.farm/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		farmID     = flag.String("farm", "farm_1", "farm id (ignored when -farms is set)")
		farmsPath  = flag.String("farms", "", "path to farms.yaml for multi-farm hosting (optional)")
		seed       = flag.Int64("seed", 1337, "base farm seed")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable indexing (tick/audit + catalogs)")
		snapEvery  = flag.Int("snapshot_every_ticks", 3000, "periodic snapshot interval in ticks (0 disables)")
		resume     = flag.Bool("resume", true, "resume each farm from its newest snapshot if one exists")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}

	mfCfg := multifarm.Config{
		DefaultFarmID: *farmID,
		Farms:         []multifarm.FarmSpec{{ID: *farmID}},
	}
	if strings.TrimSpace(*farmsPath) != "" {
		mfCfg, err = multifarm.Load(*farmsPath)
		if err != nil {
			logger.Fatalf("load farms config: %v", err)
		}
	}

	base := farm.FarmConfig{
		TickRateHz:        tune.TickRateHz,
		Seed:              *seed,
		GrowthTimeScale:   tune.GrowthTimeScale,
		SleepMaxSeconds:   tune.SleepMaxSeconds,
		NourishMultiplier: tune.NourishMultiplier,
		Weather: farm.WeatherConfig{
			StormHitFraction:        tune.Weather.StormHitFraction,
			FrostMode:               tune.Weather.FrostMode,
			FrostRateModifier:       tune.Weather.FrostRateModifier,
			FrostHitFraction:        tune.Weather.FrostHitFraction,
			DiseaseMinFraction:      tune.Weather.DiseaseMinFraction,
			DiseaseMaxFraction:      tune.Weather.DiseaseMaxFraction,
			ProtectionCoversDisease: tune.Weather.ProtectionCoversDisease,
		},
		RateLimits: farm.RateLimitConfig{
			ActWindowTicks: tune.RateLimits.ActWindowTicks,
			ActMax:         tune.RateLimits.ActMax,
		},
		TuningDigest:       tune.Digest,
		SnapshotEveryTicks: *snapEvery,
	}

	mgr, err := multifarm.New(mfCfg, base, cats)
	if err != nil {
		logger.Fatalf("farms: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	mirror := openMirrorFromEnv(*dataDir, logger)
	archiveEvery := envInt("PL_ARCHIVE_EVERY_TICKS", 10*(*snapEvery))

	indexes := map[string]runtimeIndex{}
	for _, id := range mgr.IDs() {
		f, _ := mgr.Get(id)
		idx, err := setupFarm(ctx, f, id, *dataDir, *configDir, cats, tune, *disableDB, *resume, mirror, archiveEvery, logger)
		if err != nil {
			logger.Fatalf("farm %s: %v", id, err)
		}
		indexes[id] = idx
	}

	go func() {
		if err := mgr.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("farms stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(mgr))

	enableAdminHTTP := envBool("PL_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("PL_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		registerAdminHandlers(mux, mgr, indexes)
		if mirror != nil {
			mux.HandleFunc("/admin/v1/mirror_stats", func(rw http.ResponseWriter, r *http.Request) {
				if !isLoopbackRemote(r.RemoteAddr) {
					http.Error(rw, "forbidden", http.StatusForbidden)
					return
				}
				rw.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(rw).Encode(mirror.Stats())
			})
		}
	} else {
		logger.Printf("admin endpoints disabled (PL_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (PL_ENABLE_PPROF_HTTP=false)")
	}

	wsByFarm := map[string]http.HandlerFunc{}
	for _, id := range mgr.IDs() {
		f, _ := mgr.Get(id)
		wsByFarm[id] = ws.NewServer(f, logger).Handler()
	}
	mux.HandleFunc("/v1/ws", func(rw http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.URL.Query().Get("farm"))
		if id == "" {
			id = mgr.DefaultID()
		}
		h, ok := wsByFarm[id]
		if !ok {
			http.Error(rw, "unknown farm", http.StatusNotFound)
			return
		}
		h(rw, r)
	})

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s farms=%v", *addr, mgr.IDs())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	mirror.Close()
}

// setupFarm wires one farm's persistence: optional snapshot resume, tick and
// audit logs, the index backend, and the snapshot writer goroutine.
func setupFarm(ctx context.Context, f *farm.Farm, farmID, dataDir, configDir string, cats *catalogs.Catalogs, tune tuning.Tuning, disableDB, resume bool, mirror *r2s3.Mirror, archiveEvery int, logger *log.Logger) (runtimeIndex, error) {
	farmDir := filepath.Join(dataDir, "farms", farmID)
	if err := os.MkdirAll(farmDir, 0o755); err != nil {
		return nil, err
	}

	// Optional: read-model index backend (does not affect sim determinism).
	idx, err := openRuntimeIndex(farmDir, farmID, disableDB, logger)
	if err != nil {
		return nil, err
	}
	if idx != nil {
		if err := idx.UpsertCatalogs(configDir, cats, tune); err != nil {
			logger.Printf("farm %s: index backend: upsert catalogs: %v", farmID, err)
		}
	}

	snapDir := filepath.Join(farmDir, "snapshots")
	if resume {
		if path, ok := newestSnapshotPath(snapDir); ok {
			snap, err := snapshot.ReadSnapshot(path)
			if err != nil {
				return nil, fmt.Errorf("read snapshot %s: %w", path, err)
			}
			if err := f.RestoreSnapshot(snap); err != nil {
				return nil, fmt.Errorf("restore snapshot %s: %w", path, err)
			}
			logger.Printf("farm %s: resumed from %s at tick %d", farmID, path, snap.Header.Tick)
		}
	}

	snapCh := make(chan snapshot.SnapshotV1, 2)
	f.SetSnapshotSink(snapCh)
	go func() {
		// The channel is never closed: the farm loop keeps a nonblocking
		// send into it for as long as it runs. Exit follows ctx instead.
		for {
			var snap snapshot.SnapshotV1
			select {
			case <-ctx.Done():
				return
			case snap = <-snapCh:
			}
			path := filepath.Join(snapDir, fmt.Sprintf("snap-%012d.zst", snap.Header.Tick))
			if err := snapshot.WriteSnapshot(path, snap); err != nil {
				logger.Printf("farm %s: write snapshot: %v", farmID, err)
				continue
			}
			logger.Printf("farm %s: snapshot written tick=%d path=%s", farmID, snap.Header.Tick, path)
			mirror.Enqueue(path)

			milestone, archivedPath, archived, err := archive.ArchiveMilestoneSnapshot(farmDir, path, snap, archiveEvery)
			if err != nil {
				logger.Printf("farm %s: archive snapshot: %v", farmID, err)
				continue
			}
			if archived {
				logger.Printf("farm %s: milestone %d archived path=%s", farmID, milestone, archivedPath)
				mirror.Enqueue(archivedPath)
				mirror.Enqueue(filepath.Join(filepath.Dir(archivedPath), "meta.json"))
			}
		}
	}()

	tickLog := persistlog.NewTickLogger(farmDir)
	auditLog := persistlog.NewAuditLogger(farmDir)
	f.SetTickLogger(multiTickLogger{a: tickLog, b: idx})
	f.SetAuditLogger(multiAuditLogger{a: auditLog, b: idx})
	go func() {
		<-ctx.Done()
		_ = tickLog.Close()
		_ = auditLog.Close()
		if idx != nil {
			_ = idx.Close()
		}
	}()

	return idx, nil
}

func metricsHandler(mgr *multifarm.Manager) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		fmt.Fprintf(rw, "# HELP plotland_farm_tick Current farm tick.\n")
		fmt.Fprintf(rw, "# TYPE plotland_farm_tick gauge\n")
		fmt.Fprintf(rw, "# HELP plotland_farm_farmers Current number of farmers on the farm.\n")
		fmt.Fprintf(rw, "# TYPE plotland_farm_farmers gauge\n")
		fmt.Fprintf(rw, "# HELP plotland_farm_clients Current number of connected clients.\n")
		fmt.Fprintf(rw, "# TYPE plotland_farm_clients gauge\n")
		fmt.Fprintf(rw, "# HELP plotland_farm_plots Plot counts by state.\n")
		fmt.Fprintf(rw, "# TYPE plotland_farm_plots gauge\n")
		fmt.Fprintf(rw, "# HELP plotland_farm_growth_rate Current farm-wide growth rate modifier.\n")
		fmt.Fprintf(rw, "# TYPE plotland_farm_growth_rate gauge\n")
		fmt.Fprintf(rw, "# HELP plotland_farm_queue_depth Channel backlog depth.\n")
		fmt.Fprintf(rw, "# TYPE plotland_farm_queue_depth gauge\n")
		fmt.Fprintf(rw, "# HELP plotland_farm_step_ms Last tick step duration in milliseconds.\n")
		fmt.Fprintf(rw, "# TYPE plotland_farm_step_ms gauge\n")

		for _, id := range mgr.IDs() {
			f, ok := mgr.Get(id)
			if !ok {
				continue
			}
			m := f.Metrics()
			tick := f.CurrentTick()
			if m.Tick != 0 {
				tick = m.Tick
			}
			fmt.Fprintf(rw, "plotland_farm_tick{farm=%q} %d\n", id, tick)
			fmt.Fprintf(rw, "plotland_farm_farmers{farm=%q} %d\n", id, m.Farmers)
			fmt.Fprintf(rw, "plotland_farm_clients{farm=%q} %d\n", id, m.Clients)
			fmt.Fprintf(rw, "plotland_farm_plots{farm=%q,state=%q} %d\n", id, "locked", m.Plots.Locked)
			fmt.Fprintf(rw, "plotland_farm_plots{farm=%q,state=%q} %d\n", id, "empty", m.Plots.Empty)
			fmt.Fprintf(rw, "plotland_farm_plots{farm=%q,state=%q} %d\n", id, "tilled", m.Plots.Tilled)
			fmt.Fprintf(rw, "plotland_farm_plots{farm=%q,state=%q} %d\n", id, "planted", m.Plots.Planted)
			fmt.Fprintf(rw, "plotland_farm_plots{farm=%q,state=%q} %d\n", id, "grown", m.Plots.Grown)
			fmt.Fprintf(rw, "plotland_farm_plots{farm=%q,state=%q} %d\n", id, "infected", m.Plots.Infected)
			fmt.Fprintf(rw, "plotland_farm_growth_rate{farm=%q} %.3f\n", id, m.GrowthRate)
			fmt.Fprintf(rw, "plotland_farm_queue_depth{farm=%q,queue=%q} %d\n", id, "inbox", m.QueueDepths.Inbox)
			fmt.Fprintf(rw, "plotland_farm_queue_depth{farm=%q,queue=%q} %d\n", id, "join", m.QueueDepths.Join)
			fmt.Fprintf(rw, "plotland_farm_queue_depth{farm=%q,queue=%q} %d\n", id, "leave", m.QueueDepths.Leave)
			fmt.Fprintf(rw, "plotland_farm_queue_depth{farm=%q,queue=%q} %d\n", id, "weather", m.QueueDepths.Weather)
			fmt.Fprintf(rw, "plotland_farm_step_ms{farm=%q} %.3f\n", id, m.StepMS)
		}
	}
}

// newestSnapshotPath returns the lexically greatest snap-*.zst under dir;
// filenames embed zero-padded ticks so that is also the newest.
func newestSnapshotPath(dir string) (string, bool) {
	matches, err := filepath.Glob(filepath.Join(dir, "snap-*.zst"))
	if err != nil || len(matches) == 0 {
		return "", false
	}
	sort.Strings(matches)
	return matches[len(matches)-1], true
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

type multiTickLogger struct {
	a farm.TickLogger
	b farm.TickLogger
}

func (m multiTickLogger) WriteTick(entry farm.TickLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}

type multiAuditLogger struct {
	a farm.AuditLogger
	b farm.AuditLogger
}

func (m multiAuditLogger) WriteAudit(entry farm.AuditEntry) error {
	if m.a != nil {
		_ = m.a.WriteAudit(entry)
	}
	if m.b != nil {
		_ = m.b.WriteAudit(entry)
	}
	return nil
}
