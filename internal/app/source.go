// Package app implements spec.md §4.10's tab/app state machine: the
// orchestrator that applies external events (file-modified notifications,
// filter progress, user input) to per-source state and exposes read-only
// snapshots to a renderer each tick.
//
// Directly grounded on the teacher's internal/app/app.go (lifecycle:
// New/Start/Stop/Run) and internal/app/handlers.go (one method per inbound
// event), the closest one-to-one shape in the corpus for "apply an external
// event to mutable per-source state, non-blocking, cooperative" — even
// though the teacher's own handlers dispatch HTTP requests for a log
// shipping pipeline rather than TUI state transitions.
package app

import (
	"sync"
	"time"

	"github.com/lazytail-go/lazytail/pkg/columnindex"
	"github.com/lazytail-go/lazytail/pkg/combined"
	"github.com/lazytail-go/lazytail/pkg/filter"
	"github.com/lazytail-go/lazytail/pkg/logreader"
	"github.com/lazytail-go/lazytail/pkg/query"
	"github.com/lazytail-go/lazytail/pkg/types"
	"github.com/lazytail-go/lazytail/pkg/viewport"
)

// FilterPhase is FilterState's three-valued union tag (spec §3).
type FilterPhase int

const (
	FilterInactive FilterPhase = iota
	FilterProcessing
	FilterCompletePhase
)

// FilterState is the per-source filter run status spec §3 names.
type FilterState struct {
	Phase          FilterPhase
	LinesProcessed int // valid when Phase == FilterProcessing
	Matches        int // valid when Phase == FilterCompletePhase
}

// PendingInput is the debounced filter-input-buffer state driving spec
// §4.10's FilterInputChar/Backspace -> StartFilter transition.
type PendingInput struct {
	Buffer        string
	Mode          types.MatchMode
	CaseSensitive bool
	Scheduled     bool
	FireAt        time.Time
}

// FilterSlot is LogSource.filter from spec §3: pattern, mode, execution
// state, receiver/cancel handles, and the two orchestration flags spec §9
// calls out as better modeled as enum tags in a port — kept as bools here
// since Go's zero-flag structs read cleanly at each call site that sets
// exactly one.
type FilterSlot struct {
	Pattern       string
	Mode          types.MatchMode
	CaseSensitive bool

	State FilterState

	Recv   <-chan filter.Progress
	Cancel *filter.CancelToken

	LastFilteredLine int
	OriginLine       int
	NeedsClear       bool
	IsIncremental    bool

	RegexErr error
	QueryErr error

	// Query is the parsed pipeline (spec §4.5) when Mode == types.MatchQuery,
	// kept around so HandleFilterComplete can run its trailing aggregation
	// stage, if any, over the matched lines.
	Query *query.Query
	// Groups holds the last aggregation result (spec §4.5's "count by"
	// stage) when Query.Aggregation is set; the source's Mode becomes
	// types.ModeAggregation while it is populated.
	Groups []query.Group

	Pending *PendingInput
}

// Source is one LogSource (spec §3): a tab's full state.
type Source struct {
	Name string
	Path string

	TotalLines  int
	LineIndices []int
	Mode        types.SourceMode
	FollowMode  bool

	Filter       FilterSlot
	SourceStatus types.SourceStatus

	Reader      logreader.Reader
	IndexReader *columnindex.Reader

	Viewport *viewport.Viewport
	Rate     *LineRateTracker

	// Kind picks which filter execution paths are available to this
	// source (spec §4.4): a stream source has no on-disk path to mmap and
	// must take the shared-reader path, sharing sharedMu with any other
	// reader of its logreader.StreamReader.
	Kind     SourceKind
	sharedMu sync.Mutex

	// hasStartFilterInBatch suppresses the FileModified handler's
	// follow-mode jump within the same tick a StartFilter was also
	// processed, per spec §4.10's FileModified row.
	hasStartFilterInBatch bool
}

// NewSource builds a file-backed Source in Normal mode over total lines
// already known to reader.
func NewSource(name, path string, reader logreader.Reader, indexReader *columnindex.Reader) *Source {
	total := reader.TotalLines()
	return &Source{
		Name:         name,
		Path:         path,
		TotalLines:   total,
		LineIndices:  sequence(total),
		Mode:         types.ModeNormal,
		Kind:         SourceKindFile,
		Reader:       reader,
		IndexReader:  indexReader,
		Viewport:     viewport.New(),
		Rate:         NewLineRateTracker(5 * time.Second),
		SourceStatus: types.SourceStatusNone,
	}
}

// NewStreamSource builds a stdin/pipe-backed Source (spec §4.3's stream
// variant): no on-disk path, no columnar index, shared-reader filtering
// only.
func NewStreamSource(name string, reader logreader.Reader) *Source {
	src := NewSource(name, "", reader, nil)
	src.Kind = SourceKindStream
	return src
}

// NewCombinedSource builds a Source backed by a pkg/combined.Reader merging
// subs by timestamp (spec §4.6). A merged view has no single on-disk path
// to mmap, so it takes the shared-reader filter path (d) like a stream
// source — combined.Reader already serializes itself internally, so the
// source's own sharedMu just adds an extra uncontended lock around each
// filter batch, matching spec §5's "filter workers only lock inner"
// discipline without combined.Reader needing to expose its mutex.
func NewCombinedSource(name string, subs []combined.Source) *Source {
	reader := combined.New(subs)
	src := NewSource(name, "", reader, nil)
	src.Kind = SourceKindStream
	return src
}

// sequence returns [0, n).
func sequence(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
