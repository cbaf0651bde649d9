// Package filter evaluates a match predicate over a range of a log
// source's lines and streams progress to the caller, per spec.md §4.4.
// Four execution paths share one progress protocol and one cancellation
// mechanism; the orchestrator picks a path based on the source kind and
// query shape.
package filter

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/lazytail-go/lazytail/pkg/errors"
	"github.com/lazytail-go/lazytail/pkg/types"
)

// BatchSize is the approximate number of lines processed between
// PartialResults emissions (spec §4.4: "emit PartialResults every ~50 000
// lines").
const BatchSize = 50000

// Request describes one filter invocation.
type Request struct {
	Pattern       string
	Mode          types.MatchMode
	CaseSensitive bool

	// Start/End bound the scan to [Start, End) on the line-based paths,
	// which read a zero End as "to the current end of the source".
	// RunSIMD ignores both and scans the whole file.
	Start, End int

	// Incremental marks this run as scanning only newly appended lines
	// (spec §4.4's trigger(start, end)); the consumer appends rather than
	// replaces on Complete.
	Incremental bool

	// Hint, if non-nil, lets the index-accelerated path (c) narrow
	// candidates via the columnar flags column before evaluating Pattern.
	Hint *IndexHint

	// Matcher, if non-nil, is used instead of compiling one from Pattern
	// and Mode. pkg/query's Matcher adapter is passed this way for
	// Mode == types.MatchQuery, since CompileMatcher only knows Plain and
	// Regex (pkg/filter cannot import pkg/query: query already imports
	// filter for IndexHint).
	Matcher Matcher
}

// IndexHint is the conservative (mask, want) pair spec §4.5's index_mask()
// produces: a candidate passes the mask test only if it might still match
// the full predicate, never the reverse.
type IndexHint struct {
	Mask, Want uint32
}

// ProgressKind distinguishes the three message shapes in spec §4.4's
// protocol.
type ProgressKind int

const (
	KindPartial ProgressKind = iota
	KindComplete
	KindError
)

// Progress is one message in the SPSC channel a filter worker emits.
// At most one KindComplete or KindError is sent per run; KindPartial may
// arrive zero or more times before it.
type Progress struct {
	Kind           ProgressKind
	Matches        []int // sorted ascending, disjoint from prior batches in this run
	LinesProcessed int
	Incremental    bool
	Err            error
}

// CancelToken is a single-owner cancellation handle, grounded on the
// teacher's task_manager context.WithCancel-per-task shape: each filter
// run gets its own token, and starting a new one implicitly invalidates
// the old (the orchestrator simply stops reading from the old channel and
// calls Cancel on the old token).
type CancelToken struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewCancelToken creates a token derived from parent (typically
// context.Background(); the orchestrator's own lifecycle, not a request
// deadline).
func NewCancelToken(parent context.Context) *CancelToken {
	ctx, cancel := context.WithCancel(parent)
	return &CancelToken{ctx: ctx, cancel: cancel}
}

// Cancel requests the worker stop at its next batch boundary.
func (t *CancelToken) Cancel() { t.cancel() }

// Cancelled reports whether Cancel has been called.
func (t *CancelToken) Cancelled() bool {
	select {
	case <-t.ctx.Done():
		return true
	default:
		return false
	}
}

// Matcher is a compiled predicate over one line's text.
type Matcher interface {
	Match(line string) bool
}

type plainMatcher struct {
	needle        string
	caseSensitive bool
}

func (m *plainMatcher) Match(line string) bool {
	if m.caseSensitive {
		return strings.Contains(line, m.needle)
	}
	return strings.Contains(strings.ToLower(line), m.needle)
}

type regexMatcher struct {
	re *regexp.Regexp
}

func (m *regexMatcher) Match(line string) bool {
	return m.re.MatchString(line)
}

// ResolveMatcher returns req.Matcher if the caller supplied one, otherwise
// compiles one from req.Pattern/req.Mode.
func ResolveMatcher(req Request) (Matcher, error) {
	if req.Matcher != nil {
		return req.Matcher, nil
	}
	return CompileMatcher(req)
}

// CompileMatcher builds a Matcher for req's pattern and mode.
func CompileMatcher(req Request) (Matcher, error) {
	switch req.Mode {
	case types.MatchRegex:
		pattern := req.Pattern
		if !req.CaseSensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, errors.New(errors.CodeParse, "filter", "compile_matcher", "invalid regex: "+err.Error())
		}
		return &regexMatcher{re: re}, nil
	default:
		needle := req.Pattern
		if !req.CaseSensitive {
			needle = strings.ToLower(needle)
		}
		return &plainMatcher{needle: needle, caseSensitive: req.CaseSensitive}, nil
	}
}

// emitter batches match indices and sends PartialResults/Complete over ch,
// honoring cancellation at batch boundaries. It is shared by every
// execution path so the protocol stays identical across them.
type emitter struct {
	ch          chan Progress
	tok         *CancelToken
	incremental bool
	pending     []int
	processed   int
}

func newEmitter(ch chan Progress, tok *CancelToken, incremental bool) *emitter {
	return &emitter{ch: ch, tok: tok, incremental: incremental}
}

// add records a match at the given line; tick decides when the pending
// batch is flushed.
func (e *emitter) add(line int) {
	e.pending = append(e.pending, line)
}

// tick advances the processed-line counter and flushes a partial if due.
// Returns false if the run has been cancelled and the caller should stop —
// either because Cancelled() already reported it, or because the batch
// send below raced a Cancel() that landed just after that check.
func (e *emitter) tick(processedDelta int) bool {
	e.processed += processedDelta
	if e.tok.Cancelled() {
		return false
	}
	if len(e.pending) > 0 && e.processed%BatchSize < processedDelta {
		return e.flushPartial()
	}
	return true
}

// flushPartial sends the pending batch, or gives up if tok is cancelled
// while the send would otherwise block — a full channel with no reader
// left (the orchestrator dropped Recv on cancel) must not wedge this
// goroutine forever, since that would also leak the deferred Unmap/Close
// in the caller that never gets to run.
func (e *emitter) flushPartial() bool {
	sort.Ints(e.pending)
	p := Progress{Kind: KindPartial, Matches: e.pending, LinesProcessed: e.processed, Incremental: e.incremental}
	e.pending = nil
	select {
	case e.ch <- p:
		return true
	case <-e.tok.ctx.Done():
		return false
	}
}

func (e *emitter) complete() {
	sort.Ints(e.pending)
	p := Progress{Kind: KindComplete, Matches: e.pending, LinesProcessed: e.processed, Incremental: e.incremental}
	select {
	case e.ch <- p:
	case <-e.tok.ctx.Done():
	}
}

func (e *emitter) fail(err error) {
	p := Progress{Kind: KindError, Err: err, Incremental: e.incremental}
	select {
	case e.ch <- p:
	case <-e.tok.ctx.Done():
	}
}
