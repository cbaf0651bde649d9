package app

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lazytail-go/lazytail/internal/tracing"
	"github.com/lazytail-go/lazytail/pkg/filter"
	"github.com/lazytail-go/lazytail/pkg/history"
	"github.com/lazytail-go/lazytail/pkg/registry"
	"github.com/lazytail-go/lazytail/pkg/types"
	"github.com/lazytail-go/lazytail/pkg/watch"
)

// DefaultDebounce is the filter-input debounce interval spec §4.10 names
// without a literal figure; chosen to match a typical keystroke cadence.
const DefaultDebounce = 200 * time.Millisecond

// App is the orchestrator of spec §4.10: a cooperative, single-threaded
// state machine over a set of tabs (Sources), applying external events as
// transitions and never blocking on I/O itself — only its filter workers
// and stream appenders do.
type App struct {
	Sources  []*Source
	Registry *registry.Registry
	Debounce time.Duration

	// HistoryPath, if set, is where RecordFilterHistory persists committed
	// filter patterns (spec §6/§10). Left empty, history is kept in memory
	// only (useful for tests and for callers with no config directory).
	HistoryPath string
	History     []history.Entry

	logger *logrus.Logger
	tracer *tracing.Provider
}

// New builds an App. registry may be nil for a viewer with no captured
// sources in play (e.g. viewing a bare file path directly).
func New(logger *logrus.Logger, tracer *tracing.Provider, reg *registry.Registry) *App {
	return &App{
		Registry: reg,
		Debounce: DefaultDebounce,
		logger:   logger,
		tracer:   tracer,
	}
}

// LoadHistory reads the on-disk filter history at a.HistoryPath into
// a.History. A missing file is not an error (spec §6: callers treat
// absence as an empty history).
func (a *App) LoadHistory() error {
	if a.HistoryPath == "" {
		return nil
	}
	entries, err := history.Load(a.HistoryPath)
	if err != nil {
		return err
	}
	a.History = entries
	return nil
}

// RecordFilterHistory appends src's just-committed filter pattern to
// a.History (skipping an exact repeat of the last entry, per spec §6/§10)
// and persists it when a.HistoryPath is set. Callers call this for an
// explicit, user-committed filter — not for every keystroke of a
// debounced live search — since history stores patterns meant to be
// replayed verbatim (spec §9's design note).
func (a *App) RecordFilterHistory(src *Source) error {
	if src.Filter.Pattern == "" {
		return nil
	}
	entry := history.Entry{
		Pattern:       src.Filter.Pattern,
		Mode:          filterHistoryMode(src.Filter.Mode),
		CaseSensitive: src.Filter.CaseSensitive,
	}
	a.History = history.Append(a.History, entry, history.DefaultLimit)
	if a.HistoryPath == "" {
		return nil
	}
	return history.Save(a.HistoryPath, a.History)
}

// filterHistoryMode maps a query-mode filter onto history's Plain/Regex
// wire shape (spec §6's history file has no third "Query" variant): a
// query pipeline is stored as a plain pattern, since it is replayed
// verbatim as query text regardless of the tag.
func filterHistoryMode(m types.MatchMode) types.MatchMode {
	if m == types.MatchRegex {
		return types.MatchRegex
	}
	return types.MatchPlain
}

// AddSource registers a new tab.
func (a *App) AddSource(src *Source) {
	a.Sources = append(a.Sources, src)
}

// Tick drains any ready filter progress and fires any debounced filter
// requests whose timer has elapsed. Called once per UI frame; never
// blocks (spec §5: "the orchestrator never blocks").
func (a *App) Tick(now time.Time) {
	for _, src := range a.Sources {
		src.hasStartFilterInBatch = false
		a.drainFilter(src)
		a.fireDebounced(src, now)
	}
}

// drainFilter non-blockingly reads every progress message currently
// buffered on src's filter channel and applies the matching transition.
func (a *App) drainFilter(src *Source) {
	if src.Filter.Recv == nil {
		return
	}
	for {
		select {
		case p, ok := <-src.Filter.Recv:
			if !ok {
				src.Filter.Recv = nil
				return
			}
			a.applyProgress(src, p)
			if p.Kind == filter.KindComplete || p.Kind == filter.KindError {
				src.Filter.Recv = nil
				return
			}
		default:
			return
		}
	}
}

// HandleWatchEvent consumes one pkg/watch.Event, per spec §5's watcher
// participant: a Modified event is a latency hint to call Reload sooner,
// never a correctness dependency (spec §9's design note — the periodic
// safety-net Reload the caller runs regardless is what actually keeps
// progress going if every watch event is dropped). An Error event is
// logged and otherwise ignored; the source is unaffected.
func (a *App) HandleWatchEvent(src *Source, ev watch.Event, now time.Time) error {
	switch ev.Kind {
	case watch.EventError:
		if a.logger != nil {
			a.logger.WithError(ev.Err).WithField("path", ev.Path).Warn("watcher reported an error")
		}
		return nil
	case watch.EventModified:
		res, err := src.Reader.Reload()
		if err != nil {
			return err
		}
		if res.Truncated {
			a.HandleFileTruncated(src, res.TotalLines)
		} else {
			a.HandleFileModified(src, res.TotalLines, now)
		}
		return nil
	default:
		return nil
	}
}

func (a *App) cancelFilter(src *Source) {
	if src.Filter.Cancel != nil {
		src.Filter.Cancel.Cancel()
	}
	src.Filter.Recv = nil
	src.Filter.Cancel = nil
}

func backgroundCtx() context.Context { return context.Background() }
