package indexdb

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"plotland.farm/internal/sim/catalogs"
	"plotland.farm/internal/sim/farm"
	"plotland.farm/internal/sim/tuning"
)

// RemoteIndex ships the tick/audit stream to an HTTP ingest endpoint in
// batches. Like the sqlite index it is best-effort: the queue drops under
// pressure and a batch that keeps failing is eventually abandoned.
type RemoteConfig struct {
	Endpoint      string
	Token         string
	FarmID        string
	BatchSize     int
	FlushInterval time.Duration
	HTTPTimeout   time.Duration
	Logger        *log.Logger
}

type RemoteIndex struct {
	cfg        RemoteConfig
	httpClient *http.Client

	ch   chan remoteEvent
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTotal      atomic.Uint64
	flushFailTotal atomic.Uint64
	sentTotal      atomic.Uint64

	auditMu       sync.Mutex
	lastAuditTick uint64
	auditSeq      int
}

type remoteEvent struct {
	Kind    string `json:"kind"`
	FarmID  string `json:"farm_id"`
	Payload any    `json:"payload"`
}

type remoteAuditPayload struct {
	Seq int             `json:"seq"`
	Raw farm.AuditEntry `json:"raw"`
}

type remoteCatalogPayload struct {
	Name      string `json:"name"`
	Digest    string `json:"digest"`
	JSON      string `json:"json"`
	UpdatedAt string `json:"updated_at"`
}

type RemoteStats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	QueueDroppedTotal uint64 `json:"queue_dropped_total"`
	FlushFailTotal    uint64 `json:"flush_fail_total"`
	SentTotal         uint64 `json:"sent_total"`
}

func OpenRemote(cfg RemoteConfig) (*RemoteIndex, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.FarmID = strings.TrimSpace(cfg.FarmID)
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("empty remote index endpoint")
	}
	if cfg.FarmID == "" {
		return nil, fmt.Errorf("empty farm id")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 128
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}

	r := &RemoteIndex{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		ch: make(chan remoteEvent, 32768),
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.loop()
	}()

	return r, nil
}

func (r *RemoteIndex) Close() error {
	if r == nil {
		return nil
	}
	r.once.Do(func() {
		r.closed.Store(true)
		close(r.ch)
		r.wg.Wait()
	})
	return nil
}

func (r *RemoteIndex) Stats() RemoteStats {
	if r == nil {
		return RemoteStats{}
	}
	return RemoteStats{
		QueueDepth:        len(r.ch),
		QueueCapacity:     cap(r.ch),
		QueueDroppedTotal: r.dropTotal.Load(),
		FlushFailTotal:    r.flushFailTotal.Load(),
		SentTotal:         r.sentTotal.Load(),
	}
}

func (r *RemoteIndex) WriteTick(entry farm.TickLogEntry) error {
	if r == nil || r.closed.Load() {
		return nil
	}
	r.enqueue(remoteEvent{Kind: "tick", FarmID: r.cfg.FarmID, Payload: entry})
	return nil
}

func (r *RemoteIndex) WriteAudit(entry farm.AuditEntry) error {
	if r == nil || r.closed.Load() {
		return nil
	}
	seq := r.nextAuditSeq(entry.Tick)
	r.enqueue(remoteEvent{Kind: "audit", FarmID: r.cfg.FarmID, Payload: remoteAuditPayload{Seq: seq, Raw: entry}})
	return nil
}

// UpsertCatalogs ships the loaded config material (raw bytes + digests) so
// the remote store knows which catalogs this farm is running.
func (r *RemoteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if r == nil || r.closed.Load() || cats == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type row struct {
		name   string
		digest string
		data   []byte
	}
	var rows []row
	if configDir != "" {
		if b, err := os.ReadFile(filepath.Join(configDir, "crops.json")); err == nil {
			rows = append(rows, row{name: "crops", digest: cats.Crops.DefsDigest, data: b})
		}
		if b, err := os.ReadFile(filepath.Join(configDir, "layout.json")); err == nil {
			rows = append(rows, row{name: "layout", digest: cats.Layout.Digest, data: b})
		}
	}
	if b, err := json.Marshal(cats.Crops.Palette); err == nil && len(b) > 0 {
		rows = append(rows, row{name: "crop_palette", digest: cats.Crops.PaletteDigest, data: b})
	}
	if b, err := json.Marshal(tune); err == nil && len(b) > 0 {
		sum := sha256.Sum256(b)
		rows = append(rows, row{name: "tuning", digest: hex.EncodeToString(sum[:]), data: b})
	}

	for _, row := range rows {
		if row.name == "" || row.digest == "" || len(row.data) == 0 {
			continue
		}
		r.enqueue(remoteEvent{Kind: "catalog", FarmID: r.cfg.FarmID, Payload: remoteCatalogPayload{
			Name:      row.name,
			Digest:    row.digest,
			JSON:      string(row.data),
			UpdatedAt: now,
		}})
	}
	return nil
}

func (r *RemoteIndex) nextAuditSeq(tick uint64) int {
	r.auditMu.Lock()
	defer r.auditMu.Unlock()
	if tick != r.lastAuditTick {
		r.lastAuditTick = tick
		r.auditSeq = 0
	}
	r.auditSeq++
	return r.auditSeq
}

func (r *RemoteIndex) enqueue(ev remoteEvent) {
	if r == nil || r.closed.Load() {
		return
	}
	select {
	case r.ch <- ev:
	default:
		r.dropTotal.Add(1)
		r.printf("remote index queue full; drop kind=%s farm=%s", ev.Kind, ev.FarmID)
	}
}

func (r *RemoteIndex) loop() {
	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]remoteEvent, 0, r.cfg.BatchSize)
	// Failed batches are retried on the next flush, up to this many pending
	// events; past that the oldest are abandoned.
	maxRetained := r.cfg.BatchSize * 8

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := r.sendBatch(batch); err != nil {
			r.flushFailTotal.Add(1)
			r.printf("remote index flush failed batch=%d err=%v", len(batch), err)
			if len(batch) > maxRetained {
				over := len(batch) - maxRetained
				r.dropTotal.Add(uint64(over))
				batch = append(batch[:0], batch[over:]...)
			}
			return
		}
		r.sentTotal.Add(uint64(len(batch)))
		batch = batch[:0]
	}

	for {
		select {
		case ev, ok := <-r.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= r.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (r *RemoteIndex) sendBatch(events []remoteEvent) error {
	if len(events) == 0 {
		return nil
	}

	body := struct {
		Events []remoteEvent `json:"events"`
	}{Events: events}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		req, err := http.NewRequest(http.MethodPost, r.cfg.Endpoint, bytes.NewReader(buf))
		if err != nil {
			return err
		}
		req.Header.Set("content-type", "application/json")
		if r.cfg.Token != "" {
			req.Header.Set("x-farm-index-token", r.cfg.Token)
		}

		resp, err := r.httpClient.Do(req)
		if err == nil {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
			_ = resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			err = fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		}
		lastErr = err
		time.Sleep(time.Duration(100*(1<<attempt)) * time.Millisecond)
	}
	return lastErr
}

func (r *RemoteIndex) printf(format string, args ...any) {
	if r != nil && r.cfg.Logger != nil {
		r.cfg.Logger.Printf(format, args...)
	}
}
