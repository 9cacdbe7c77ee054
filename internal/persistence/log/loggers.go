package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"plotland.farm/internal/sim/farm"
)

// JSONLZstdWriter appends JSON lines to hour-rotated zstd files named
// `<prefix>-<YYYY-MM-DD-HH>.jsonl.zst` under baseDir. Each Write flushes
// through the encoder so a crash loses at most the entry being written.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu         sync.Mutex
	curSegment string
	file       *os.File
	enc        *zstd.Encoder
	buf        *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Write(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	segment := w.now().UTC().Format("2006-01-02-15")
	if segment != w.curSegment {
		if err := w.openSegmentLocked(segment); err != nil {
			return err
		}
	}

	if _, err := w.buf.Write(line); err != nil {
		return err
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return err
	}
	return w.buf.Flush()
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeSegmentLocked()
}

func (w *JSONLZstdWriter) openSegmentLocked(segment string) error {
	if err := w.closeSegmentLocked(); err != nil {
		return err
	}

	path := filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, segment))
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}

	w.file = f
	w.enc = enc
	w.buf = bufio.NewWriterSize(enc, 128*1024)
	w.curSegment = segment
	return nil
}

func (w *JSONLZstdWriter) closeSegmentLocked() error {
	var encErr error
	if w.buf != nil {
		_ = w.buf.Flush()
		w.buf = nil
	}
	if w.enc != nil {
		encErr = w.enc.Close()
		w.enc = nil
	}
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}
	return encErr
}

// TickLogger writes one entry per executed tick under farmDir/events/.
// These files are the replay input for cmd/replay.
type TickLogger struct{ w *JSONLZstdWriter }

func NewTickLogger(farmDir string) *TickLogger {
	return &TickLogger{w: NewJSONLZstdWriter(filepath.Join(farmDir, "events"), "events")}
}

func (l *TickLogger) WriteTick(v farm.TickLogEntry) error { return l.w.Write(v) }
func (l *TickLogger) Close() error                        { return l.w.Close() }

// AuditLogger writes one entry per plot mutation under farmDir/audit/.
// These files feed the rollback tooling in cmd/admin.
type AuditLogger struct{ w *JSONLZstdWriter }

func NewAuditLogger(farmDir string) *AuditLogger {
	return &AuditLogger{w: NewJSONLZstdWriter(filepath.Join(farmDir, "audit"), "audit")}
}

func (l *AuditLogger) WriteAudit(v farm.AuditEntry) error { return l.w.Write(v) }
func (l *AuditLogger) Close() error                       { return l.w.Close() }
