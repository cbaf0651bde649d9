package filter

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/lazytail-go/lazytail/internal/metrics"
	"github.com/lazytail-go/lazytail/internal/tracing"
	"github.com/lazytail-go/lazytail/pkg/logreader"
)

// RunLineByLine is path (b): decode and evaluate each line in [req.Start,
// req.End) against matcher, batching progress and honoring cancellation.
// Invalid UTF-8 in a line causes that line to be skipped, never aborts the
// run (spec §4.4).
func RunLineByLine(ctx context.Context, src logreader.Reader, req Request, tok *CancelToken, logger *logrus.Logger, tracer *tracing.Provider) (<-chan Progress, error) {
	matcher, err := ResolveMatcher(req)
	if err != nil {
		return nil, err
	}

	ch := make(chan Progress, 4)
	metrics.FilterRunsTotal.WithLabelValues("line").Inc()

	go func() {
		defer close(ch)
		start := time.Now()
		e := newEmitter(ch, tok, req.Incremental)

		_ = tracer.Timed(ctx, "filter.line", func(context.Context) error {
			runLineScan(src, req, matcher, e)
			return nil
		}, "pattern", req.Pattern)

		metrics.FilterQueueDepth.Set(float64(len(ch)))
		if tok.Cancelled() {
			metrics.FilterOutcomesTotal.WithLabelValues("cancelled").Inc()
			return
		}
		e.complete()
		metrics.FilterOutcomesTotal.WithLabelValues("complete").Inc()
		metrics.FilterLinesScanned.WithLabelValues("line").Add(float64(e.processed))
		metrics.FilterMatchesTotal.WithLabelValues("line").Add(float64(len(e.pending)))
		metrics.FilterRunDuration.WithLabelValues("line").Observe(time.Since(start).Seconds())
	}()

	return ch, nil
}

func runLineScan(src logreader.Reader, req Request, matcher Matcher, e *emitter) {
	end := req.End
	if end == 0 || end > src.TotalLines() {
		end = src.TotalLines()
	}
	for n := req.Start; n < end; n++ {
		line, ok := src.GetLine(n)
		if !ok {
			continue
		}
		if utf8.ValidString(line) && matcher.Match(line) {
			e.add(n)
		}
		if !e.tick(1) {
			return
		}
	}
}

// RunShared is path (d): identical batching/cancellation to (b), but reads
// under mu, released between batches so the reader stays responsive to
// other goroutines (spec §4.4's shared-reader path for stdin/pipe
// sources).
func RunShared(ctx context.Context, src logreader.Reader, mu *sync.Mutex, req Request, tok *CancelToken, logger *logrus.Logger, tracer *tracing.Provider) (<-chan Progress, error) {
	matcher, err := ResolveMatcher(req)
	if err != nil {
		return nil, err
	}

	ch := make(chan Progress, 4)
	metrics.FilterRunsTotal.WithLabelValues("shared").Inc()

	go func() {
		defer close(ch)
		start := time.Now()
		e := newEmitter(ch, tok, req.Incremental)

		_ = tracer.Timed(ctx, "filter.shared", func(context.Context) error {
			runSharedScan(src, mu, req, matcher, e)
			return nil
		}, "pattern", req.Pattern)

		metrics.FilterQueueDepth.Set(float64(len(ch)))
		if tok.Cancelled() {
			metrics.FilterOutcomesTotal.WithLabelValues("cancelled").Inc()
			return
		}
		e.complete()
		metrics.FilterOutcomesTotal.WithLabelValues("complete").Inc()
		metrics.FilterLinesScanned.WithLabelValues("shared").Add(float64(e.processed))
		metrics.FilterMatchesTotal.WithLabelValues("shared").Add(float64(len(e.pending)))
		metrics.FilterRunDuration.WithLabelValues("shared").Observe(time.Since(start).Seconds())
	}()

	return ch, nil
}

func runSharedScan(src logreader.Reader, mu *sync.Mutex, req Request, matcher Matcher, e *emitter) {
	const lockBatch = 1024
	n := req.Start
	for {
		mu.Lock()
		end := req.End
		total := src.TotalLines()
		if end == 0 || end > total {
			end = total
		}
		batchStart := n
		batchEnd := n + lockBatch
		if batchEnd > end {
			batchEnd = end
		}
		for ; n < batchEnd; n++ {
			line, ok := src.GetLine(n)
			if !ok {
				continue
			}
			if utf8.ValidString(line) && matcher.Match(line) {
				e.add(n)
			}
		}
		mu.Unlock()

		if !e.tick(batchEnd - batchStart) {
			return
		}
		if n >= end {
			return
		}
	}
}
