package query

import (
	"github.com/lazytail-go/lazytail/pkg/filter"
	"github.com/lazytail-go/lazytail/pkg/types"
)

var levelFieldNames = map[string]bool{
	"level": true, "severity": true, "loglevel": true, "log_level": true,
}

var severityByWord = map[string]types.Severity{
	"trace": types.SeverityTrace, "debug": types.SeverityDebug, "info": types.SeverityInfo,
	"warn": types.SeverityWarn, "warning": types.SeverityWarn,
	"error": types.SeverityError, "err": types.SeverityError,
	"fatal": types.SeverityFatal, "panic": types.SeverityFatal, "critical": types.SeverityFatal,
}

// IndexMask implements spec §4.5's index_mask(): a conservative (mask,
// want) hint the index-accelerated filter path can use to narrow
// candidates via the columnar flags column. It never excludes a true
// match — the parser-format bit is set whenever the query names a parser,
// and a severity bit is added only for an exact `level == "<word>"`
// comparison on a recognized severity word.
func (q *Query) IndexMask() (*filter.IndexHint, bool) {
	var mask, want uint32
	matched := false

	switch q.Parser {
	case types.ParserJSON:
		mask |= types.FlagJSON
		want |= types.FlagJSON
		matched = true
	case types.ParserLogfmt:
		mask |= types.FlagLogfmt
		want |= types.FlagLogfmt
		matched = true
	}

	for _, cmp := range q.Filters {
		if cmp.Op != OpEq || len(cmp.Field) != 1 {
			continue
		}
		if !levelFieldNames[cmp.Field[0].Key] {
			continue
		}
		sev, ok := severityByWord[cmp.Value.AsString()]
		if !ok {
			continue
		}
		mask |= types.FlagSeverityMask
		want |= uint32(sev)
		matched = true
	}

	if !matched {
		return nil, false
	}
	return &filter.IndexHint{Mask: mask, Want: want}, true
}
