package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazytail-go/lazytail/pkg/types"
)

func TestParseSimpleJSONFilter(t *testing.T) {
	q, err := Parse(`json | level == "error" & status >= 400`)
	require.NoError(t, err)
	assert.Equal(t, types.ParserJSON, q.Parser)
	require.Len(t, q.Filters, 2)
	assert.Equal(t, "level", q.Filters[0].Field.String())
	assert.Equal(t, OpEq, q.Filters[0].Op)
	assert.Equal(t, "error", q.Filters[0].Value.Str)
	assert.Equal(t, "status", q.Filters[1].Field.String())
	assert.Equal(t, OpGte, q.Filters[1].Op)
	num, ok := q.Filters[1].Value.AsFloat()
	require.True(t, ok)
	assert.Equal(t, 400.0, num)
}

func TestParseAggregationWithTop(t *testing.T) {
	q, err := Parse(`json | level == "error" | count by (service) top 5`)
	require.NoError(t, err)
	require.NotNil(t, q.Aggregation)
	require.Len(t, q.Aggregation.GroupBy, 1)
	assert.Equal(t, "service", q.Aggregation.GroupBy[0].String())
	assert.Equal(t, 5, q.Aggregation.Top)
}

func TestParseAggregationMultiFieldNoTop(t *testing.T) {
	q, err := Parse(`logfmt | count by (service, region)`)
	require.NoError(t, err)
	require.NotNil(t, q.Aggregation)
	require.Len(t, q.Aggregation.GroupBy, 2)
	assert.Equal(t, "region", q.Aggregation.GroupBy[1].String())
	assert.Equal(t, 0, q.Aggregation.Top)
}

func TestParseDottedFieldWithArrayIndex(t *testing.T) {
	q, err := Parse(`json | user.roles.0.name == "admin"`)
	require.NoError(t, err)
	assert.Equal(t, "user.roles.0.name", q.Filters[0].Field.String())
}

func TestParseRejectsMissingParserStage(t *testing.T) {
	_, err := Parse(`level == "error"`)
	assert.Error(t, err)
}

func TestParseRejectsUnknownOperatorPosition(t *testing.T) {
	_, err := Parse(`json | level`)
	assert.Error(t, err)
}

func TestJSONExtractorMissingFieldIsNotPresent(t *testing.T) {
	e := ExtractorFor(types.ParserJSON)
	_, present := e.Get(`{"a":1}`, FieldPath{{Key: "b"}})
	assert.False(t, present)
}

func TestMatchesConjoinsAllFilters(t *testing.T) {
	q, err := Parse(`json | level == "error" & status >= 400`)
	require.NoError(t, err)
	e := ExtractorFor(q.Parser)

	assert.True(t, Matches(q, e, `{"level":"error","status":500}`))
	assert.False(t, Matches(q, e, `{"level":"error","status":200}`))
	assert.False(t, Matches(q, e, `{"level":"info","status":500}`))
}

func TestMatchesMissingFieldIsFalse(t *testing.T) {
	q, err := Parse(`json | level == "error"`)
	require.NoError(t, err)
	e := ExtractorFor(q.Parser)
	assert.False(t, Matches(q, e, `{"status":500}`))
}

func TestMatchesNotEqualOnPresentField(t *testing.T) {
	q, err := Parse(`json | level != "error"`)
	require.NoError(t, err)
	e := ExtractorFor(q.Parser)
	assert.True(t, Matches(q, e, `{"level":"info"}`))
	assert.False(t, Matches(q, e, `{"level":"error"}`))
}

func TestLogfmtExtractorReadsQuotedValue(t *testing.T) {
	e := ExtractorFor(types.ParserLogfmt)
	v, present := e.Get(`level=error msg="boom today" status=500`, FieldPath{{Key: "msg"}})
	require.True(t, present)
	assert.Equal(t, "boom today", v.AsString())
}

func TestAggregateSortsByCountDescendingThenKeyAscending(t *testing.T) {
	agg := &Aggregation{GroupBy: []FieldPath{{{Key: "service"}}}}
	lines := []string{
		`{"service":"a"}`,
		`{"service":"b"}`,
		`{"service":"b"}`,
		`{"service":"c"}`,
		`{"service":"c"}`,
	}
	getLine := func(n int) (string, bool) {
		if n < 0 || n >= len(lines) {
			return "", false
		}
		return lines[n], true
	}
	groups := Aggregate(agg, ExtractorFor(types.ParserJSON), []int{0, 1, 2, 3, 4}, getLine)
	require.Len(t, groups, 3)
	assert.Equal(t, []string{"b"}, groups[0].Key)
	assert.Equal(t, 2, groups[0].Count)
	assert.Equal(t, []string{"c"}, groups[1].Key)
	assert.Equal(t, 2, groups[1].Count)
	assert.Equal(t, []string{"a"}, groups[2].Key)
	assert.Equal(t, 1, groups[2].Count)
}

func TestAggregateTruncatesToTopN(t *testing.T) {
	agg := &Aggregation{GroupBy: []FieldPath{{{Key: "service"}}}, Top: 1}
	lines := []string{`{"service":"a"}`, `{"service":"b"}`, `{"service":"b"}`}
	getLine := func(n int) (string, bool) { return lines[n], true }
	groups := Aggregate(agg, ExtractorFor(types.ParserJSON), []int{0, 1, 2}, getLine)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"b"}, groups[0].Key)
}

func TestIndexMaskCombinesParserAndSeverityBits(t *testing.T) {
	q, err := Parse(`json | level == "error"`)
	require.NoError(t, err)
	hint, ok := q.IndexMask()
	require.True(t, ok)
	assert.Equal(t, types.FlagJSON|types.FlagSeverityMask, hint.Mask)
	assert.Equal(t, types.FlagJSON|uint32(types.SeverityError), hint.Want)
}

// TestScenarioE_QueryAggregationGroupsServiceCounts covers spec §8 scenario
// E: five JSON lines with service in {api, api, worker, api, worker},
// `json | count by (service)` groups api=3 before worker=2.
func TestScenarioE_QueryAggregationGroupsServiceCounts(t *testing.T) {
	q, err := Parse(`json | count by (service)`)
	require.NoError(t, err)
	lines := []string{
		`{"service":"api","level":"info"}`,
		`{"service":"api","level":"error"}`,
		`{"service":"worker","level":"info"}`,
		`{"service":"api","level":"warn"}`,
		`{"service":"worker","level":"error"}`,
	}
	getLine := func(n int) (string, bool) {
		if n < 0 || n >= len(lines) {
			return "", false
		}
		return lines[n], true
	}
	groups := Aggregate(q.Aggregation, ExtractorFor(q.Parser), []int{0, 1, 2, 3, 4}, getLine)
	require.Len(t, groups, 2)
	assert.Equal(t, []string{"api"}, groups[0].Key)
	assert.Equal(t, 3, groups[0].Count)
	assert.Equal(t, []string{"worker"}, groups[1].Key)
	assert.Equal(t, 2, groups[1].Count)
}

func TestIndexMaskParserBitOnlyWhenNoHintableFilter(t *testing.T) {
	q, err := Parse(`logfmt | status >= 400`)
	require.NoError(t, err)
	hint, ok := q.IndexMask()
	require.True(t, ok) // the logfmt parser bit alone is still a valid hint
	assert.Equal(t, types.FlagLogfmt, hint.Mask)
}
