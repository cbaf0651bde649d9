// Package sparseindex maps line numbers to byte offsets by sampling every
// Nth line, with a forward-scan fallback for lines that fall between
// anchors. It backs the tail of files a columnar index has not yet covered,
// and the whole of files with no columnar index at all.
package sparseindex

import (
	"bytes"
	"context"
	"io"
	"os"
	"sort"

	"github.com/lazytail-go/lazytail/pkg/errors"
)

// DefaultStride matches spec §3's SparseIndex default.
const DefaultStride = 10000

// entry is one (line_number, byte_offset) anchor.
type entry struct {
	line   int
	offset int64
}

// Index is an in-memory array of stride-sampled anchors, sorted by line
// number, plus the total line count observed so far.
type Index struct {
	stride     int
	entries    []entry
	totalLines int
}

// New creates an empty Index with the given stride. A stride of 1 makes
// every line its own anchor (spec §4.1's "interval of 1 behaves like a full
// index").
func New(stride int) *Index {
	if stride < 1 {
		stride = DefaultStride
	}
	return &Index{stride: stride}
}

// Stride returns the sampling interval this index was built with.
func (idx *Index) Stride() int { return idx.stride }

// Append records an anchor. Only permitted when lineNumber is a multiple of
// the stride and strictly greater than the last stored line number.
func (idx *Index) Append(lineNumber int, byteOffset int64) error {
	if lineNumber%idx.stride != 0 {
		return errors.New(errors.CodeIO, "sparseindex", "append", "line number is not a multiple of the stride")
	}
	if len(idx.entries) > 0 && lineNumber <= idx.entries[len(idx.entries)-1].line {
		return errors.New(errors.CodeIO, "sparseindex", "append", "line number must strictly increase")
	}
	idx.entries = append(idx.entries, entry{line: lineNumber, offset: byteOffset})
	return nil
}

// Locate returns the byte offset of the largest anchor with anchor <=
// lineNumber (or (0,0) if none), and how many lines must be skipped forward
// from that anchor to reach lineNumber.
func (idx *Index) Locate(lineNumber int) (offset int64, skip int) {
	if len(idx.entries) == 0 {
		return 0, lineNumber
	}
	i := sort.Search(len(idx.entries), func(i int) bool {
		return idx.entries[i].line > lineNumber
	})
	if i == 0 {
		return 0, lineNumber
	}
	e := idx.entries[i-1]
	return e.offset, lineNumber - e.line
}

// Merge appends another index's anchors onto idx, assuming other's anchors
// all lie strictly beyond idx's last anchor (true of an index built by
// Build starting from idx's prior scan position). Used by FileReader.Reload
// to extend its sparse index with anchors discovered in newly appended
// bytes without rescanning the whole file.
func (idx *Index) Merge(other *Index) {
	idx.entries = append(idx.entries, other.entries...)
	if other.totalLines > idx.totalLines {
		idx.totalLines = other.totalLines
	}
}

// SetTotalLines records the current total line count.
func (idx *Index) SetTotalLines(n int) { idx.totalLines = n }

// TotalLines returns the current total line count.
func (idx *Index) TotalLines() int { return idx.totalLines }

const chunkSize = 4 << 20 // 4 MiB

// chunkResult is the outcome of scanning one chunk: number of newlines
// found, and the anchors discovered within it (offsets relative to the
// chunk's own start, corrected to absolute before merging).
type chunkResult struct {
	newlines int
	anchors  []entry
}

// Build scans r from startOffset (with startLine already-known lines
// preceding it) and returns a fully populated Index plus the number of
// lines found in this scan. For files above chunkSize, chunk boundaries are
// found by a forward scan and each chunk's newline count and local anchors
// are computed concurrently; results are merged back in chunk order so
// anchors stay strictly increasing regardless of completion order.
func Build(ctx context.Context, r io.ReaderAt, size int64, startOffset int64, startLine int, stride int) (*Index, int, error) {
	idx := New(stride)
	if size <= startOffset {
		idx.SetTotalLines(startLine)
		return idx, 0, nil
	}

	type chunk struct {
		offset int64
		length int64
	}
	var chunks []chunk
	for off := startOffset; off < size; off += chunkSize {
		length := chunkSize
		if off+int64(length) > size {
			length = int(size - off)
		}
		chunks = append(chunks, chunk{offset: off, length: int64(length)})
	}

	results := make([]chunkResult, len(chunks))
	errs := make([]error, len(chunks))

	sem := make(chan struct{}, maxWorkers())
	done := make(chan int, len(chunks))
	for i, c := range chunks {
		i, c := i, c
		sem <- struct{}{}
		go func() {
			defer func() { <-sem; done <- i }()
			if ctx.Err() != nil {
				errs[i] = ctx.Err()
				return
			}
			buf := make([]byte, c.length)
			if _, err := r.ReadAt(buf, c.offset); err != nil && err != io.EOF {
				errs[i] = err
				return
			}
			results[i] = scanChunk(buf)
		}()
	}
	for range chunks {
		<-done
	}
	for _, err := range errs {
		if err != nil {
			return nil, 0, errors.IOError("build", "scanning chunk", err)
		}
	}

	line := startLine
	for i, res := range results {
		base := chunks[i].offset
		for _, a := range res.anchors {
			absLine := line + a.line
			if absLine%stride == 0 {
				_ = idx.Append(absLine, base+a.offset)
			}
		}
		line += res.newlines
	}
	// A file whose last byte is not '\n' still counts its trailing partial
	// line (spec §4.1).
	if size > startOffset {
		var last [1]byte
		if _, err := r.ReadAt(last[:], size-1); err == nil && last[0] != '\n' {
			line++
		}
	}
	idx.SetTotalLines(line)
	return idx, line - startLine, nil
}

func maxWorkers() int {
	return 8
}

// scanChunk counts newlines in buf and records, relative to the chunk's
// start and to the chunk-local line counter, every line boundary — the
// merge step in Build filters these down to stride-aligned anchors using
// the running absolute line number.
func scanChunk(buf []byte) chunkResult {
	var res chunkResult
	pos := 0
	lineNo := 0
	for {
		idx := bytes.IndexByte(buf[pos:], '\n')
		if idx < 0 {
			break
		}
		res.newlines++
		lineNo++
		res.anchors = append(res.anchors, entry{line: lineNo, offset: int64(pos + idx + 1)})
		pos += idx + 1
	}
	return res
}

// ScanFile is a convenience wrapper around Build for a path already known
// to exist on disk.
func ScanFile(ctx context.Context, path string, stride int) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.IOError("scan_file", "opening "+path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.IOError("scan_file", "stat "+path, err)
	}
	idx, _, err := Build(ctx, f, info.Size(), 0, 0, stride)
	return idx, err
}
