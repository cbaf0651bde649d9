package filter

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/lazytail-go/lazytail/internal/metrics"
	"github.com/lazytail-go/lazytail/internal/tracing"
	"github.com/lazytail-go/lazytail/pkg/columnindex"
	"github.com/lazytail-go/lazytail/pkg/errors"
	"github.com/lazytail-go/lazytail/pkg/logreader"
)

// RunIndexed is path (c): narrow candidates via the columnar flags column
// before evaluating the full predicate, per spec §4.4/§4.5's index_mask()
// hint. req.Hint must be set; callers without a hint should use
// RunLineByLine instead.
func RunIndexed(ctx context.Context, src logreader.Reader, idx *columnindex.Reader, req Request, tok *CancelToken, logger *logrus.Logger, tracer *tracing.Provider) (<-chan Progress, error) {
	if req.Hint == nil {
		return nil, errors.New(errors.CodeIO, "filter", "run_indexed", "index-accelerated path requires a hint")
	}
	matcher, err := ResolveMatcher(req)
	if err != nil {
		return nil, err
	}

	ch := make(chan Progress, 4)
	metrics.FilterRunsTotal.WithLabelValues("indexed").Inc()

	go func() {
		defer close(ch)
		start := time.Now()
		e := newEmitter(ch, tok, req.Incremental)

		_ = tracer.Timed(ctx, "filter.indexed", func(context.Context) error {
			runIndexedScan(src, idx, req, matcher, e)
			return nil
		}, "pattern", req.Pattern)

		metrics.FilterQueueDepth.Set(float64(len(ch)))
		if tok.Cancelled() {
			metrics.FilterOutcomesTotal.WithLabelValues("cancelled").Inc()
			return
		}
		e.complete()
		metrics.FilterOutcomesTotal.WithLabelValues("complete").Inc()
		metrics.FilterLinesScanned.WithLabelValues("indexed").Add(float64(e.processed))
		metrics.FilterMatchesTotal.WithLabelValues("indexed").Add(float64(len(e.pending)))
		metrics.FilterRunDuration.WithLabelValues("indexed").Observe(time.Since(start).Seconds())
	}()

	return ch, nil
}

func runIndexedScan(src logreader.Reader, idx *columnindex.Reader, req Request, matcher Matcher, e *emitter) {
	end := req.End
	if end == 0 || end > src.TotalLines() {
		end = src.TotalLines()
	}
	candidates := idx.CandidateBitmap(req.Hint.Mask, req.Hint.Want, end)

	for n := req.Start; n < end && n < len(candidates); n++ {
		if !candidates[n] {
			continue
		}
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
