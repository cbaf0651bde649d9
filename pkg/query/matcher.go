package query

// Matcher adapts a parsed Query to pkg/filter.Matcher's Match(line string)
// bool shape (a structural match — pkg/filter cannot import pkg/query,
// since pkg/query already imports pkg/filter for IndexHint, so pkg/filter
// knows this type only through its Matcher interface). Used by the orchestrator for spec §4.5's query execution
// path: a StartFilter request with Mode == types.MatchQuery compiles one
// of these and hands it to filter.Request.Matcher instead of letting
// filter.CompileMatcher try to interpret the pipeline text as a plain
// substring or regex.
type Matcher struct {
	Query     *Query
	extractor Extractor
}

// NewMatcher builds a Matcher for q, selecting the field extractor that
// matches q's parser stage.
func NewMatcher(q *Query) *Matcher {
	return &Matcher{Query: q, extractor: ExtractorFor(q.Parser)}
}

// Match reports whether line satisfies every comparison in m.Query.
func (m *Matcher) Match(line string) bool {
	return Matches(m.Query, m.extractor, line)
}
