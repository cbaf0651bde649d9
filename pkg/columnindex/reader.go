package columnindex

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/edsrzf/mmap-go"
	"github.com/golang/snappy"
	"github.com/sirupsen/logrus"

	"github.com/lazytail-go/lazytail/internal/metrics"
	"github.com/lazytail-go/lazytail/internal/tracing"
	"github.com/lazytail-go/lazytail/pkg/types"
)

// Reader exposes persisted per-line metadata for O(1) lookup and bitmap
// pre-filtering (spec §4.2). flags and checkpoints are copied into owned
// memory at open time so the reader is immune to the underlying column
// files being truncated by a concurrent writer — without this, an
// mmap-backed reader would fault when the file shrinks underneath it.
// offsets stays mmap'd for zero-copy random access, since it is never
// mutated in place (only appended, which a remap picks up).
type Reader struct {
	mu sync.RWMutex

	logPath string
	dir     string
	logger  *logrus.Logger
	tracer  *tracing.Provider

	entryCount  uint64
	logFileSize uint64
	columns     uint32

	offsetsFile *os.File
	offsetsMmap mmap.MMap

	flags       []uint32
	timestamps  []uint64
	checkpoints []Checkpoint
}

// Open reads meta and maps/copies the columns. Per spec §4.2's failure
// model, every failure path (missing index, rotated log, short columns)
// returns a nil Reader rather than an error — callers simply proceed
// without acceleration.
func Open(logPath string, logger *logrus.Logger, tracer *tracing.Provider) *Reader {
	r := &Reader{logPath: logPath, dir: indexDir(logPath), logger: logger, tracer: tracer}
	if !r.load() {
		metrics.IndexRefreshesTotal.WithLabelValues("open", "absent").Inc()
		return nil
	}
	metrics.IndexRefreshesTotal.WithLabelValues("open", "ok").Inc()
	metrics.IndexEntryCount.WithLabelValues(logPath).Set(float64(r.entryCount))
	return r
}

// load performs the actual open/validate; returns false on any problem.
func (r *Reader) load() bool {
	metaBytes, err := os.ReadFile(filepath.Join(r.dir, "meta"))
	if err != nil {
		return false
	}
	m, ok := decodeMeta(metaBytes)
	if !ok {
		return false
	}

	logInfo, err := os.Stat(r.logPath)
	if err != nil || uint64(logInfo.Size()) < m.LogFileSize {
		// Rotation: the log file is smaller than what the index claims to
		// cover.
		r.closeMmapLocked()
		return false
	}

	if m.Columns&ColumnOffsets != 0 {
		f, err := os.Open(filepath.Join(r.dir, "offsets"))
		if err != nil {
			return false
		}
		mapped, err := mmap.Map(f, mmap.RDONLY, 0)
		if err != nil {
			f.Close()
			return false
		}
		if uint64(len(mapped))/8 < m.EntryCount {
			mapped.Unmap()
			f.Close()
			return false
		}
		r.closeMmapLocked()
		r.offsetsFile = f
		r.offsetsMmap = mapped
	}

	if m.Columns&ColumnFlags != 0 {
		raw, err := readSnappy(filepath.Join(r.dir, "flags"))
		if err != nil {
			return false
		}
		flags := decodeU32Slice(raw)
		if uint64(len(flags)) < m.EntryCount {
			return false
		}
		r.flags = flags
	}

	if m.Columns&ColumnTime != 0 {
		raw, err := readSnappy(filepath.Join(r.dir, "time"))
		if err == nil {
			r.timestamps = decodeU64Slice(raw)
		}
	}

	if m.Columns&ColumnCheckpoints != 0 {
		raw, err := readSnappy(filepath.Join(r.dir, "checkpoints"))
		if err == nil {
			r.checkpoints = decodeCheckpoints(raw)
		}
	}

	r.entryCount = m.EntryCount
	r.logFileSize = m.LogFileSize
	r.columns = m.Columns
	return true
}

func readSnappy(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return snappy.Decode(nil, raw)
}

func (r *Reader) closeMmapLocked() {
	if r.offsetsMmap != nil {
		r.offsetsMmap.Unmap()
		r.offsetsMmap = nil
	}
	if r.offsetsFile != nil {
		r.offsetsFile.Close()
		r.offsetsFile = nil
	}
}

// Refresh re-reads meta; if entry_count grew, re-copies flags/checkpoints
// and re-maps offsets. Returns false if the index became unavailable
// (e.g. the log rotated out from under it).
func (r *Reader) Refresh(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	ok := false
	_ = r.tracer.Timed(ctx, "columnindex.refresh", func(context.Context) error {
		ok = r.load()
		return nil
	}, "log_path", r.logPath)

	if !ok {
		metrics.IndexRefreshesTotal.WithLabelValues("refresh", "absent").Inc()
		return false
	}
	metrics.IndexRefreshesTotal.WithLabelValues("refresh", "ok").Inc()
	metrics.IndexEntryCount.WithLabelValues(r.logPath).Set(float64(r.entryCount))
	return true
}

// EntryCount returns the number of lines currently indexed.
func (r *Reader) EntryCount() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entryCount
}

// LogFileSize returns the byte offset one past the last indexed line.
func (r *Reader) LogFileSize() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.logFileSize
}

// Offset returns the byte offset of line n. The caller must ensure
// n < EntryCount().
func (r *Reader) Offset(n int) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b := r.offsetsMmap[n*8 : n*8+8]
	return leUint64(b)
}

func leUint64(b []byte) uint64 {
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
		uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56
}

// Severity returns the severity of line n, or SeverityUnknown if the flags
// column is absent or n is out of range.
func (r *Reader) Severity(n int) types.Severity {
	return types.SeverityOf(r.Flags(n))
}

// Flags returns the raw flags word for line n.
func (r *Reader) Flags(n int) uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n < 0 || n >= len(r.flags) {
		return 0
	}
	return r.flags[n]
}

// Timestamp returns line n's epoch-microsecond timestamp, or 0 if the time
// column is absent or unknown for that line (spec §7's "missing column"
// policy: treat as 0, still usable).
func (r *Reader) Timestamp(n int) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n < 0 || n >= len(r.timestamps) {
		return 0
	}
	return r.timestamps[n]
}

// Checkpoints returns the periodic cumulative severity histograms.
func (r *Reader) Checkpoints() []Checkpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Checkpoint, len(r.checkpoints))
	copy(out, r.checkpoints)
	return out
}

// ScanFlags returns, in ascending order, up to limit line numbers where
// flags&mask == want. limit <= 0 means unlimited.
func (r *Reader) ScanFlags(mask, want uint32, limit int) []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []int
	for i, f := range r.flags {
		if f&mask == want {
			out = append(out, i)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out
}

// CandidateBitmap is the same predicate as ScanFlags, expressed as one bool
// per line for sequential consumption by the filter engine.
func (r *Reader) CandidateBitmap(mask, want uint32, limit int) []bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := len(r.flags)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]bool, n)
	for i := 0; i < n; i++ {
		out[i] = r.flags[i]&mask == want
	}
	return out
}

// Stats summarizes index health without requiring a fresh open.
type Stats struct {
	EntryCount        uint64
	LogFileSize       uint64
	HasOffsets        bool
	HasFlags          bool
	HasTime           bool
	HasCheckpoints    bool
	SeverityHistogram [types.SeverityCount]uint32
}

// Stats reports the current reader's summary (spec's supplemented
// IndexStats, §10).
func (r *Reader) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Stats{
		EntryCount:     r.entryCount,
		LogFileSize:    r.logFileSize,
		HasOffsets:     r.columns&ColumnOffsets != 0,
		HasFlags:       r.columns&ColumnFlags != 0,
		HasTime:        r.columns&ColumnTime != 0,
		HasCheckpoints: r.columns&ColumnCheckpoints != 0,
	}
	if len(r.checkpoints) > 0 {
		s.SeverityHistogram = r.checkpoints[len(r.checkpoints)-1].SeverityCounts
	}
	return s
}

// Close releases the mmap and any open file handles.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeMmapLocked()
	return nil
}
