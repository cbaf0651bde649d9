package columnindex

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/golang/snappy"
	"github.com/sirupsen/logrus"

	"github.com/lazytail-go/lazytail/pkg/errors"
	"github.com/lazytail-go/lazytail/pkg/types"
)

// Writer accumulates per-line metadata and flushes it to `<log>.idx/`
// atomically (write-temp-then-rename, grounded on the teacher's
// `pkg/positions/file_positions.go::SavePositions`). It is driven by
// BuildOrRefresh, not used directly by readers.
type Writer struct {
	dir    string
	logger *logrus.Logger

	offsets     []uint64
	flags       []uint32
	timestamps  []uint64
	checkpoints []Checkpoint

	logFileSize uint64
}

func indexDir(logPath string) string {
	return logPath + ".idx"
}

// NewWriter prepares a writer for the index directory sibling to logPath.
func NewWriter(logPath string, logger *logrus.Logger) *Writer {
	return &Writer{dir: indexDir(logPath), logger: logger}
}

// AppendLine records one line's offset, classification flags, and
// timestamp. Checkpoints are recorded every CheckpointInterval lines.
func (w *Writer) AppendLine(offset uint64, flags uint32, tsMicros uint64) {
	w.offsets = append(w.offsets, offset)
	w.flags = append(w.flags, flags)
	w.timestamps = append(w.timestamps, tsMicros)

	line := len(w.offsets)
	if line%CheckpointInterval == 0 {
		w.checkpoints = append(w.checkpoints, w.histogramAt(uint64(line)))
	}
}

func (w *Writer) histogramAt(atLine uint64) Checkpoint {
	var cp Checkpoint
	cp.AtLine = atLine
	start := 0
	if len(w.checkpoints) > 0 {
		start = int(w.checkpoints[len(w.checkpoints)-1].AtLine)
		cp.SeverityCounts = w.checkpoints[len(w.checkpoints)-1].SeverityCounts
	}
	for i := start; i < int(atLine) && i < len(w.flags); i++ {
		cp.SeverityCounts[types.SeverityOf(w.flags[i])]++
	}
	return cp
}

// Flush persists meta, offsets, flags, time, checkpoints atomically.
func (w *Writer) Flush(logFileSize uint64) error {
	w.logFileSize = logFileSize
	if err := os.MkdirAll(w.dir, 0o700); err != nil {
		return errors.IOError("flush", "creating "+w.dir, err)
	}

	columns := ColumnOffsets | ColumnFlags | ColumnCheckpoints
	hasTime := false
	for _, ts := range w.timestamps {
		if ts != 0 {
			hasTime = true
			break
		}
	}
	if hasTime {
		columns |= ColumnTime
	}

	m := meta{
		Version:     metaVersion,
		Columns:     columns,
		EntryCount:  uint64(len(w.offsets)),
		LogFileSize: logFileSize,
	}

	if err := writeAtomic(filepath.Join(w.dir, "offsets"), encodeU64Slice(w.offsets)); err != nil {
		return err
	}
	if err := writeAtomic(filepath.Join(w.dir, "flags"), snappy.Encode(nil, encodeU32Slice(w.flags))); err != nil {
		return err
	}
	if hasTime {
		if err := writeAtomic(filepath.Join(w.dir, "time"), snappy.Encode(nil, encodeU64Slice(w.timestamps))); err != nil {
			return err
		}
	}
	if err := writeAtomic(filepath.Join(w.dir, "checkpoints"), snappy.Encode(nil, encodeCheckpoints(w.checkpoints))); err != nil {
		return err
	}
	if err := writeAtomic(filepath.Join(w.dir, "meta"), encodeMeta(m)); err != nil {
		return err
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.IOError("write_atomic", "writing "+tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.IOError("write_atomic", "renaming "+tmp+" to "+path, err)
	}
	return nil
}

// BuildOrRefresh scans logPath from its first byte and writes a fresh
// index covering the whole file so far. Existing index state is not reused — callers needing true
// incremental indexing should keep a Writer across calls and call
// AppendLine/Flush themselves; this helper covers the common
// build-from-scratch or full-rebuild case (e.g. after a truncation).
func BuildOrRefresh(ctx context.Context, logPath string, logger *logrus.Logger) error {
	f, err := os.Open(logPath)
	if err != nil {
		return errors.IOError("build_or_refresh", "opening "+logPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return errors.IOError("build_or_refresh", "stat "+logPath, err)
	}

	w := NewWriter(logPath, logger)
	r := bufio.NewReaderSize(f, 1<<20)
	var offset uint64
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lineBytes, err := r.ReadBytes('\n')
		if len(lineBytes) > 0 {
			flags, ts := classifyLine(lineBytes)
			w.AppendLine(offset, flags, ts)
			offset += uint64(len(lineBytes))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.IOError("build_or_refresh", "reading "+logPath, err)
		}
	}

	return w.Flush(uint64(info.Size()))
}
