package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/plant"
)

// JSONLZstdWriter appends JSON lines to zstd files bucketed by simulated day.
// Each bucket covers rotateEvery days and is named after its first day, so
// file names sort in day order.
type JSONLZstdWriter struct {
	baseDir     string
	prefix      string
	rotateEvery int

	mu     sync.Mutex
	bucket int
	f      *os.File
	enc    *zstd.Encoder
	w      *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string, rotateEvery int) *JSONLZstdWriter {
	if rotateEvery <= 0 {
		rotateEvery = 1
	}
	return &JSONLZstdWriter{
		baseDir:     baseDir,
		prefix:      prefix,
		rotateEvery: rotateEvery,
		bucket:      -1,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(day int, v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	bucket := w.bucketFor(day)
	if bucket != w.bucket {
		if err := w.rotateLocked(bucket); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

// bucketFor returns the first day of the bucket holding day. Days start at 1.
func (w *JSONLZstdWriter) bucketFor(day int) int {
	if day < 1 {
		day = 1
	}
	return ((day-1)/w.rotateEvery)*w.rotateEvery + 1
}

func (w *JSONLZstdWriter) rotateLocked(bucket int) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	// Truncate: a re-run over the same bucket replaces what was there.
	f, err := os.OpenFile(w.pathFor(bucket), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.bucket = bucket
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.bucket = -1
	return err1
}

func (w *JSONLZstdWriter) pathFor(bucket int) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%06d.jsonl.zst", w.prefix, bucket))
}

// DayLogger writes one JSONL entry per simulated day (compressed).
type DayLogger struct{ w *JSONLZstdWriter }

func NewDayLogger(runDir string, rotateEvery int) *DayLogger {
	return &DayLogger{w: NewJSONLZstdWriter(filepath.Join(runDir, "days"), "days", rotateEvery)}
}

func (l *DayLogger) WriteDay(rec plant.DayRecord) error { return l.w.Write(rec.Day, rec) }
func (l *DayLogger) Close() error                       { return l.w.Close() }

// ReadDays streams every day record under dir in file-name order.
func ReadDays(dir string, fn func(plant.DayRecord) error) error {
	paths, err := filepath.Glob(filepath.Join(dir, "days-*.jsonl.zst"))
	if err != nil {
		return err
	}
	sort.Strings(paths)
	for _, p := range paths {
		if err := readFile(p, fn); err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
	}
	return nil
}

func readFile(path string, fn func(plant.DayRecord) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 128*1024)
	for {
		line, err := br.ReadBytes('\n')
		if len(strings.TrimSpace(string(line))) > 0 {
			var rec plant.DayRecord
			if uerr := json.Unmarshal(line, &rec); uerr != nil {
				return uerr
			}
			if ferr := fn(rec); ferr != nil {
				return ferr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
