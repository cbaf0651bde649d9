package query

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-logfmt/logfmt"
	"github.com/tidwall/gjson"

	"github.com/lazytail-go/lazytail/pkg/types"
)

// Extractor reads one field's value out of a raw line, per the query's
// parser stage.
type Extractor interface {
	Get(line string, path FieldPath) (Value, bool)
}

// ExtractorFor returns the Extractor matching p.
func ExtractorFor(p types.ParserKind) Extractor {
	if p == types.ParserLogfmt {
		return logfmtExtractor{}
	}
	return jsonExtractor{}
}

type jsonExtractor struct{}

// Get traverses path through a JSON object, descending into arrays when a
// path part is numeric (spec's "a.b.0.c") — gjson's dotted-path syntax
// treats a numeric segment as an array index natively.
func (jsonExtractor) Get(line string, path FieldPath) (Value, bool) {
	if !gjson.Valid(line) {
		return Value{}, false
	}
	result := gjson.Get(line, path.String())
	if !result.Exists() {
		return Value{}, false
	}
	return valueFromGJSON(result), true
}

func valueFromGJSON(r gjson.Result) Value {
	switch r.Type {
	case gjson.Number:
		return Value{Kind: ValueNumber, Num: r.Num, Str: r.String()}
	case gjson.True, gjson.False:
		return Value{Kind: ValueBool, Bool: r.Bool(), Str: r.String()}
	default:
		return Value{Kind: ValueString, Str: r.String()}
	}
}

type logfmtExtractor struct{}

// Get parses line as one logfmt record and returns the value for path[0]'s
// key; dotted paths are not meaningful for a flat key=value record, so only
// the first path segment is consulted.
func (logfmtExtractor) Get(line string, path FieldPath) (Value, bool) {
	if len(path) == 0 {
		return Value{}, false
	}
	want := path[0].Key
	d := logfmt.NewDecoder(bytes.NewReader([]byte(line)))
	for d.ScanRecord() {
		for d.ScanKeyval() {
			if string(d.Key()) == want {
				s := string(d.Value())
				if n, err := strconv.ParseFloat(s, 64); err == nil {
					return Value{Kind: ValueNumber, Num: n, Str: s}, true
				}
				if s == "true" || s == "false" {
					return Value{Kind: ValueBool, Bool: s == "true", Str: s}, true
				}
				return Value{Kind: ValueString, Str: s}, true
			}
		}
	}
	return Value{}, false
}

// Matches reports whether line satisfies every one of q.Filters (spec
// §4.5: all comparisons across every stage conjoin).
func Matches(q *Query, extractor Extractor, line string) bool {
	for _, cmp := range q.Filters {
		if !evalCmp(cmp, extractor, line) {
			return false
		}
	}
	return true
}

func evalCmp(cmp Cmp, extractor Extractor, line string) bool {
	fv, present := extractor.Get(line, cmp.Field)
	if !present {
		return false
	}
	switch cmp.Op {
	case OpEq:
		return fv.AsString() == cmp.Value.AsString()
	case OpNeq:
		return fv.AsString() != cmp.Value.AsString()
	case OpContains:
		return strings.Contains(fv.AsString(), cmp.Value.AsString())
	case OpRegex:
		matched, err := regexp.MatchString(cmp.Value.AsString(), fv.AsString())
		return err == nil && matched
	case OpGt, OpLt, OpGte, OpLte:
		a, ok1 := fv.AsFloat()
		b, ok2 := cmp.Value.AsFloat()
		if !ok1 || !ok2 {
			return false
		}
		switch cmp.Op {
		case OpGt:
			return a > b
		case OpLt:
			return a < b
		case OpGte:
			return a >= b
		default:
			return a <= b
		}
	default:
		return false
	}
}
