package logreader

import (
	"bufio"
	"context"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/lazytail-go/lazytail/internal/tracing"
	"github.com/lazytail-go/lazytail/pkg/columnindex"
	"github.com/lazytail-go/lazytail/pkg/errors"
	"github.com/lazytail-go/lazytail/pkg/sparseindex"
)

// FileReader is a random-access reader over a file-backed log, grounded on
// the lifecycle shape of the teacher's `internal/monitors/file_monitor.go`
// tailer (a context-cancellable goroutine with graceful shutdown) — inverted
// here from a push-tailer into a pull/random-access reader: there is no
// background goroutine, only a mutex-guarded Reload the owner calls.
type FileReader struct {
	mu sync.Mutex

	path   string
	logger *logrus.Logger
	tracer *tracing.Provider
	stride int

	file         *os.File
	lastSize     int64
	totalLines   int
	sparse       *sparseindex.Index
	columnReader *columnindex.Reader
}

// Open opens path and builds an initial sparse index over its full
// contents. It also attempts to open a columnar index, which may be
// absent (nil is a normal outcome, per spec §4.2).
func Open(path string, logger *logrus.Logger, tracer *tracing.Provider, stride int) (*FileReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.IOError("open", "opening "+path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.IOError("open", "stat "+path, err)
	}

	sparse, n, err := sparseindex.Build(context.Background(), f, info.Size(), 0, 0, stride)
	if err != nil {
		f.Close()
		return nil, err
	}

	r := &FileReader{
		path:       path,
		logger:     logger,
		tracer:     tracer,
		stride:     stride,
		file:       f,
		lastSize:   info.Size(),
		totalLines: n,
		sparse:     sparse,
	}
	r.columnReader = columnindex.Open(path, logger, tracer)
	return r, nil
}

// TotalLines returns the current line count.
func (r *FileReader) TotalLines() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalLines
}

// GetLine returns the bytes of line n (0-based) as a string, and whether it
// was found. The bytes are returned as stored: invalid UTF-8 is not
// replaced.
func (r *FileReader) GetLine(n int) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n < 0 || n >= r.totalLines {
		return "", false
	}

	if r.columnReader != nil && uint64(n) < r.columnReader.EntryCount() {
		offset := r.columnReader.Offset(n)
		return r.readLineAt(int64(offset)), true
	}

	offset, skip := r.sparse.Locate(n)
	return r.readForward(offset, skip), true
}

func (r *FileReader) readLineAt(offset int64) string {
	rd := bufio.NewReader(&offsetReaderAt{file: r.file, pos: offset})
	line, _ := rd.ReadString('\n')
	return trimNewline(line)
}

func (r *FileReader) readForward(offset int64, skip int) string {
	rd := bufio.NewReader(&offsetReaderAt{file: r.file, pos: offset})
	var line string
	for i := 0; i <= skip; i++ {
		var err error
		line, err = rd.ReadString('\n')
		if err != nil && line == "" {
			break
		}
	}
	return trimNewline(line)
}

func trimNewline(s string) string {
	if len(s) > 0 && s[len(s)-1] == '\n' {
		s = s[:len(s)-1]
	}
	if len(s) > 0 && s[len(s)-1] == '\r' {
		s = s[:len(s)-1]
	}
	return s
}

// offsetReaderAt adapts *os.File to io.Reader starting at a fixed offset,
// advancing as it's read.
type offsetReaderAt struct {
	file *os.File
	pos  int64
}

func (o *offsetReaderAt) Read(p []byte) (int, error) {
	n, err := o.file.ReadAt(p, o.pos)
	o.pos += int64(n)
	return n, err
}

// Reload implements spec §4.3's rule: same size is a no-op; larger
// refreshes the columnar reader and scans only the new bytes into the
// sparse index; smaller invalidates columnar state and rebuilds the sparse
// index from scratch, signalling truncation to the caller.
func (r *FileReader) Reload() (ReloadResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, err := os.Stat(r.path)
	if err != nil {
		return ReloadResult{}, errors.IOError("reload", "stat "+r.path, err)
	}
	size := info.Size()

	switch {
	case size == r.lastSize:
		return ReloadResult{TotalLines: r.totalLines}, nil

	case size > r.lastSize:
		if r.columnReader != nil {
			r.columnReader.Refresh(context.Background())
		}
		newSparse, grew, err := sparseindex.Build(context.Background(), r.file, size, r.lastSize, r.totalLines, r.stride)
		if err != nil {
			return ReloadResult{}, err
		}
		r.mergeSparse(newSparse)
		r.totalLines += grew
		r.lastSize = size
		return ReloadResult{GrewBy: grew, TotalLines: r.totalLines}, nil

	default: // size < r.lastSize: truncation
		r.columnReader = nil
		f, err := os.Open(r.path)
		if err != nil {
			return ReloadResult{}, errors.TruncationError("reload", "reopening truncated file: "+err.Error())
		}
		r.file.Close()
		r.file = f
		sparse, n, err := sparseindex.Build(context.Background(), f, size, 0, 0, r.stride)
		if err != nil {
			return ReloadResult{}, err
		}
		r.sparse = sparse
		r.totalLines = n
		r.lastSize = size
		return ReloadResult{Truncated: true, TotalLines: n}, nil
	}
}

// Close releases the underlying file handle and any columnar index mmap.
func (r *FileReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.columnReader != nil {
		r.columnReader.Close()
	}
	return r.file.Close()
}

// mergeSparse appends newSparse's anchors (all strictly beyond the current
// index's last anchor by construction) onto r.sparse.
func (r *FileReader) mergeSparse(newSparse *sparseindex.Index) {
	r.sparse.Merge(newSparse)
}
