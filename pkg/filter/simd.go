package filter

import (
	"bytes"
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/edsrzf/mmap-go"
	"github.com/klauspost/cpuid/v2"
	"github.com/sirupsen/logrus"

	"github.com/lazytail-go/lazytail/internal/metrics"
	"github.com/lazytail-go/lazytail/internal/tracing"
	"github.com/lazytail-go/lazytail/pkg/errors"
)

// simdScanBatch is the chunk width used when lowercasing for case-insensitive
// search. Wider batches amortize the loop-overhead per byte better on CPUs
// with wide SIMD lanes; narrower batches keep cache pressure down on
// constrained cores. cpuid tells us which lane width the CPU actually has
// rather than guessing from GOARCH alone.
func simdScanBatch() int {
	switch {
	case cpuid.CPU.Supports(cpuid.AVX512F):
		return 64
	case cpuid.CPU.Supports(cpuid.AVX2):
		return 32
	case cpuid.CPU.Supports(cpuid.SSE2):
		return 16
	default:
		return 8
	}
}

// RunSIMD is path (a): a full, plain-text, file-backed scan over a
// memory-mapped copy of the file, using Go's bytes.Index (which the
// runtime already lowers to vectorized assembly on amd64/arm64 — the
// "Two-Way/Boyer-Moore-style" scan spec §4.4 describes) for case-sensitive
// search, and a batch-lowercased line scan for case-insensitive search.
// Newlines between consecutive hits are counted lazily so the line number
// of a hit costs O(bytes since the previous hit), not O(file size).
func RunSIMD(ctx context.Context, path string, req Request, tok *CancelToken, logger *logrus.Logger, tracer *tracing.Provider) (<-chan Progress, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.IOError("run_simd", "opening "+path, err)
	}
	mapped, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, errors.IOError("run_simd", "mapping "+path, err)
	}

	ch := make(chan Progress, 4)
	metrics.FilterRunsTotal.WithLabelValues("simd").Inc()

	go func() {
		defer close(ch)
		defer mapped.Unmap()
		defer f.Close()
		start := time.Now()
		e := newEmitter(ch, tok, req.Incremental)

		_ = tracer.Timed(ctx, "filter.simd", func(context.Context) error {
			if req.CaseSensitive {
				scanCaseSensitive(mapped, req, e)
			} else {
				scanCaseInsensitive(mapped, req, e, simdScanBatch())
			}
			return nil
		}, "pattern", req.Pattern, "lane_width_hint", strconv.Itoa(simdScanBatch()))

		metrics.FilterQueueDepth.Set(float64(len(ch)))
		if tok.Cancelled() {
			metrics.FilterOutcomesTotal.WithLabelValues("cancelled").Inc()
			return
		}
		e.complete()
		metrics.FilterOutcomesTotal.WithLabelValues("complete").Inc()
		metrics.FilterLinesScanned.WithLabelValues("simd").Add(float64(e.processed))
		metrics.FilterMatchesTotal.WithLabelValues("simd").Add(float64(len(e.pending)))
		metrics.FilterRunDuration.WithLabelValues("simd").Observe(time.Since(start).Seconds())
	}()

	return ch, nil
}

// scanCaseSensitive finds every occurrence of req.Pattern in data, lazily
// translating each hit's byte offset into a line number by counting
// newlines only in the span since the previous hit (or scan start). A line
// with several hits is added once.
func scanCaseSensitive(data []byte, req Request, e *emitter) {
	needle := []byte(req.Pattern)
	if len(needle) == 0 {
		return
	}
	pos := 0
	line := 0
	lastAdded := -1
	checkpoint := 0
	sinceLastTick := 0
	for {
		idx := bytes.Index(data[pos:], needle)
		if idx < 0 {
			break
		}
		hit := pos + idx
		line += bytes.Count(data[checkpoint:hit], []byte{'\n'})
		checkpoint = hit
		if line != lastAdded {
			e.add(line)
			lastAdded = line
		}
		pos = hit + len(needle)

		sinceLastTick++
		if sinceLastTick >= 4096 {
			if !e.tick(sinceLastTick) {
				return
			}
			sinceLastTick = 0
		}
	}
	if sinceLastTick > 0 {
		e.tick(sinceLastTick)
	}
}

// scanCaseInsensitive lowercases each line into a reusable scratch buffer
// sized to batchSize bytes (growing it only for lines longer than that)
// and scans the result against a lowercased pattern — avoiding a fresh
// allocation per line the way strings.ToLower would.
func scanCaseInsensitive(data []byte, req Request, e *emitter, batchSize int) {
	needle := []byte(strings.ToLower(req.Pattern))
	if len(needle) == 0 {
		return
	}
	scratch := make([]byte, 0, batchSize)
	line := 0
	lineStart := 0
	for i := 0; i <= len(data); i++ {
		if i == len(data) || data[i] == '\n' {
			lowerLane(data[lineStart:i], &scratch)
			if bytes.Contains(scratch, needle) {
				e.add(line)
			}
			line++
			lineStart = i + 1
			if !e.tick(1) {
				return
			}
		}
	}
}

// lowerLane ASCII-lowercases src into *dst, reusing dst's backing array
// when it has enough capacity.
func lowerLane(src []byte, dst *[]byte) {
	if cap(*dst) < len(src) {
		*dst = make([]byte, len(src))
	} else {
		*dst = (*dst)[:len(src)]
	}
	out := *dst
	for i, b := range src {
		if b >= 'A' && b <= 'Z' {
			b += 'a' - 'A'
		}
		out[i] = b
	}
}
