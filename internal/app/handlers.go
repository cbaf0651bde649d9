package app

import (
	"time"

	"github.com/lazytail-go/lazytail/pkg/filter"
	"github.com/lazytail-go/lazytail/pkg/query"
	"github.com/lazytail-go/lazytail/pkg/types"
)

// SourceKind distinguishes a file-backed source (random-access, mmap-able)
// from a stream-backed one (stdin/pipe, shared-reader path only).
type SourceKind int

const (
	SourceKindFile SourceKind = iota
	SourceKindStream
)

// applyProgress dispatches one filter.Progress message to the matching
// spec §4.10 transition.
func (a *App) applyProgress(src *Source, p filter.Progress) {
	switch p.Kind {
	case filter.KindPartial:
		a.HandleFilterPartialResults(src, p.Matches, p.LinesProcessed)
	case filter.KindComplete:
		a.HandleFilterComplete(src, p.Matches, p.Incremental)
	case filter.KindError:
		src.Filter.State = FilterState{Phase: FilterInactive}
		if src.Filter.Mode == types.MatchRegex {
			src.Filter.RegexErr = p.Err
		} else {
			src.Filter.QueryErr = p.Err
		}
	}
}

// HandleFileModified implements spec §4.10's FileModified row.
func (a *App) HandleFileModified(src *Source, newTotal int, now time.Time) {
	src.TotalLines = newTotal
	src.Rate.Record(now, newTotal)

	if src.Mode == types.ModeNormal {
		src.LineIndices = sequence(newTotal)
	}
	if src.IndexReader != nil {
		src.IndexReader.Refresh(backgroundCtx())
	}
	if src.Mode == types.ModeFiltered && newTotal > src.Filter.LastFilteredLine {
		a.triggerIncrementalFilter(src, src.Filter.LastFilteredLine, newTotal)
	}
	if src.FollowMode && src.Mode == types.ModeNormal && !src.hasStartFilterInBatch {
		src.Viewport.JumpToEnd(src.LineIndices)
	}
}

// HandleFileTruncated implements spec §4.10's FileTruncated row.
func (a *App) HandleFileTruncated(src *Source, newTotal int) {
	a.cancelFilter(src)
	src.Filter = FilterSlot{}
	src.Mode = types.ModeNormal
	src.TotalLines = newTotal
	src.LineIndices = sequence(newTotal)
	if newTotal > 0 {
		src.Viewport.JumpToLine(newTotal - 1)
	} else {
		src.Viewport.JumpToLine(0)
	}
}

// HandleStartFilter implements spec §4.10's StartFilter row: it cancels
// the prior worker, picks an execution path, and spawns a new one.
func (a *App) HandleStartFilter(src *Source, req filter.Request) error {
	src.Filter.OriginLine = src.Viewport.AnchorLine()
	a.cancelFilter(src)

	src.Filter.NeedsClear = true
	src.Filter.IsIncremental = req.Incremental
	src.Filter.Pattern = req.Pattern
	src.Filter.Mode = req.Mode
	src.Filter.CaseSensitive = req.CaseSensitive
	src.Filter.RegexErr = nil
	src.Filter.QueryErr = nil
	src.Filter.Groups = nil

	ch, tok, err := a.spawnFilterWorker(src, req)
	if err != nil {
		if req.Mode == types.MatchRegex {
			src.Filter.RegexErr = err
		} else {
			src.Filter.QueryErr = err
		}
		src.Filter.NeedsClear = false
		return err
	}

	src.Filter.Recv = ch
	src.Filter.Cancel = tok
	src.Filter.State = FilterState{Phase: FilterProcessing}
	src.hasStartFilterInBatch = true
	return nil
}

// triggerIncrementalFilter implements the incremental re-filter spec §4.4's
// trigger(start, end) and §4.10's FileModified row describe: scan only the
// newly appended range and mark the run incremental so results append
// rather than replace.
func (a *App) triggerIncrementalFilter(src *Source, start, end int) {
	req := filter.Request{
		Pattern:       src.Filter.Pattern,
		Mode:          src.Filter.Mode,
		CaseSensitive: src.Filter.CaseSensitive,
		Start:         start,
		End:           end,
		Incremental:   true,
	}
	a.cancelFilter(src)
	ch, tok, err := a.spawnFilterWorker(src, req)
	if err != nil {
		src.Filter.QueryErr = err
		return
	}
	src.Filter.Recv = ch
	src.Filter.Cancel = tok
	src.Filter.IsIncremental = true
	src.Filter.State = FilterState{Phase: FilterProcessing}
}

// spawnFilterWorker implements spec §4.4's unified trigger: choose a path
// based on the source kind and request shape, spawn it, and return its
// channel and cancel token for the caller to store on src.Filter.
func (a *App) spawnFilterWorker(src *Source, req filter.Request) (<-chan filter.Progress, *filter.CancelToken, error) {
	tok := filter.NewCancelToken(backgroundCtx())
	ctx := backgroundCtx()

	if req.Mode == types.MatchQuery {
		q, err := query.Parse(req.Pattern)
		if err != nil {
			src.Filter.Query = nil
			return nil, nil, err
		}
		src.Filter.Query = q
		req.Matcher = query.NewMatcher(q)
		if hint, ok := q.IndexMask(); ok {
			req.Hint = hint
		}
	} else {
		src.Filter.Query = nil
	}

	switch {
	case req.Hint != nil && src.IndexReader != nil:
		ch, err := filter.RunIndexed(ctx, src.Reader, src.IndexReader, req, tok, a.logger, a.tracer)
		return ch, tok, err

	case src.Kind == SourceKindStream:
		ch, err := filter.RunShared(ctx, src.Reader, &src.sharedMu, req, tok, a.logger, a.tracer)
		return ch, tok, err

	case src.Kind == SourceKindFile && req.Mode == types.MatchPlain && !req.Incremental:
		ch, err := filter.RunSIMD(ctx, src.Path, req, tok, a.logger, a.tracer)
		return ch, tok, err

	default:
		ch, err := filter.RunLineByLine(ctx, src.Reader, req, tok, a.logger, a.tracer)
		return ch, tok, err
	}
}

// mergeSorted merges incoming (sorted ascending) into existing (sorted
// ascending, disjoint-or-overlapping at boundaries) and reports how many
// incoming elements landed strictly before existing's original first
// element — the "prepended" count spec §4.7's AdjustScrollForPrepend
// consumes, produced when a tail-first scan later reports earlier matches.
func mergeSorted(existing, incoming []int) (merged []int, prepended int) {
	if len(incoming) == 0 {
		return existing, 0
	}
	if len(existing) == 0 {
		merged = append(merged, incoming...)
		return merged, 0
	}
	firstExisting := existing[0]
	merged = make([]int, 0, len(existing)+len(incoming))
	i, j := 0, 0
	for i < len(existing) && j < len(incoming) {
		switch {
		case existing[i] == incoming[j]:
			merged = append(merged, existing[i])
			i++
			j++
		case existing[i] < incoming[j]:
			merged = append(merged, existing[i])
			i++
		default:
			if incoming[j] < firstExisting {
				prepended++
			}
			merged = append(merged, incoming[j])
			j++
		}
	}
	for ; i < len(existing); i++ {
		merged = append(merged, existing[i])
	}
	for ; j < len(incoming); j++ {
		if incoming[j] < firstExisting {
			prepended++
		}
		merged = append(merged, incoming[j])
	}
	return merged, prepended
}

// HandleFilterPartialResults implements spec §4.10's FilterPartialResults
// row.
func (a *App) HandleFilterPartialResults(src *Source, matches []int, linesProcessed int) {
	if src.Filter.NeedsClear {
		src.LineIndices = nil
		src.Mode = types.ModeFiltered
		src.Filter.NeedsClear = false
	} else if src.Mode == types.ModeNormal {
		src.LineIndices = nil
		src.Mode = types.ModeFiltered
	}

	merged, prepended := mergeSorted(src.LineIndices, matches)
	src.LineIndices = merged
	if prepended > 0 {
		src.Viewport.AdjustScrollForPrepend(prepended)
	}
	src.Filter.State = FilterState{Phase: FilterProcessing, LinesProcessed: linesProcessed}
}

// HandleFilterComplete implements spec §4.10's FilterComplete row.
func (a *App) HandleFilterComplete(src *Source, matches []int, incremental bool) {
	if incremental {
		merged, _ := mergeSorted(src.LineIndices, matches)
		src.LineIndices = merged
	} else if src.Filter.NeedsClear {
		src.LineIndices = append([]int(nil), matches...)
		src.Filter.NeedsClear = false
		src.Mode = types.ModeFiltered
	} else {
		merged, _ := mergeSorted(src.LineIndices, matches)
		src.LineIndices = merged
	}

	src.Filter.State = FilterState{Phase: FilterCompletePhase, Matches: len(src.LineIndices)}
	src.Filter.LastFilteredLine = src.TotalLines
	src.Filter.IsIncremental = false

	a.runAggregationIfQuery(src)

	if src.FollowMode && src.Mode != types.ModeAggregation {
		src.Viewport.JumpToEnd(src.LineIndices)
	}
}

// runAggregationIfQuery implements spec §4.5's trailing "count by" stage:
// when the active filter is a parsed query with an Aggregation clause, it
// reads each matched line back out, groups by the group-by field tuple,
// and switches the source into Aggregation mode so a renderer can show
// group counts instead of raw lines.
func (a *App) runAggregationIfQuery(src *Source) {
	q := src.Filter.Query
	if q == nil || q.Aggregation == nil {
		return
	}
	extractor := query.ExtractorFor(q.Parser)
	groups := query.Aggregate(q.Aggregation, extractor, src.LineIndices, src.Reader.GetLine)
	src.Filter.Groups = groups
	src.Mode = types.ModeAggregation
}

// HandleClearFilter implements spec §4.10's ClearFilter row.
func (a *App) HandleClearFilter(src *Source) {
	a.cancelFilter(src)
	origin := src.Filter.OriginLine
	src.Mode = types.ModeNormal
	src.LineIndices = sequence(src.TotalLines)
	src.Viewport.JumpToLine(origin)
	src.Filter = FilterSlot{}
}

// HandleFilterInputChar implements spec §4.10's FilterInputChar row: append
// a rune to the pending buffer, cancel any in-flight worker, and (re)start
// the debounce timer.
func (a *App) HandleFilterInputChar(src *Source, ch rune, now time.Time) {
	a.cancelFilter(src)
	if src.Filter.Pending == nil {
		src.Filter.Pending = &PendingInput{Mode: src.Filter.Mode, CaseSensitive: src.Filter.CaseSensitive}
	}
	src.Filter.Pending.Buffer += string(ch)
	src.Filter.Pending.Scheduled = true
	src.Filter.Pending.FireAt = now.Add(a.Debounce)
}

// HandleFilterBackspace implements spec §4.10's FilterInputChar/Backspace
// row's backspace half.
func (a *App) HandleFilterBackspace(src *Source, now time.Time) {
	a.cancelFilter(src)
	if src.Filter.Pending == nil || src.Filter.Pending.Buffer == "" {
		return
	}
	runes := []rune(src.Filter.Pending.Buffer)
	src.Filter.Pending.Buffer = string(runes[:len(runes)-1])
	src.Filter.Pending.Scheduled = true
	src.Filter.Pending.FireAt = now.Add(a.Debounce)
}

// fireDebounced triggers the pending filter once its scheduled timestamp
// has elapsed, per spec §4.10's debounce rule: fired on the first tick
// after the timestamp elapses.
func (a *App) fireDebounced(src *Source, now time.Time) {
	p := src.Filter.Pending
	if p == nil || !p.Scheduled || now.Before(p.FireAt) {
		return
	}
	p.Scheduled = false
	if p.Buffer == "" {
		a.HandleClearFilter(src)
		return
	}
	a.HandleStartFilter(src, filter.Request{
		Pattern:       p.Buffer,
		Mode:          p.Mode,
		CaseSensitive: p.CaseSensitive,
		End:           src.TotalLines,
	})
}

// CloseTab implements spec §4.10's CloseTab row. It reports quit=true when
// i was the last remaining tab.
func (a *App) CloseTab(i int) (quit bool) {
	if len(a.Sources) <= 1 {
		return true
	}
	src := a.Sources[i]
	a.cancelFilter(src)
	a.Sources = append(a.Sources[:i:i], a.Sources[i+1:]...)

	if src.SourceStatus == types.SourceStatusEnded && src.Reader != nil {
		src.Reader.Close()
	}
	return false
}
