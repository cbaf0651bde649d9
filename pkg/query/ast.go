// Package query parses and evaluates the pipeline grammar of spec.md §4.5:
// `json | level == "error" & status >= 400 | count by (service) top 5`.
// A query starts with a parser stage (json/logfmt), ANDs together zero or
// more field comparisons, and may end in a count-by aggregation.
package query

import (
	"strconv"

	"github.com/lazytail-go/lazytail/pkg/types"
)

// FieldPart is one step of a dotted field path: either an object key or,
// when IsIndex is true, an array index (spec's "a.b.0.c").
type FieldPart struct {
	Key     string
	Index   int
	IsIndex bool
}

// FieldPath is a full dotted path, e.g. user.roles.0.name.
type FieldPath []FieldPart

func (p FieldPath) String() string {
	s := ""
	for i, part := range p {
		if i > 0 {
			s += "."
		}
		if part.IsIndex {
			s += strconv.Itoa(part.Index)
		} else {
			s += part.Key
		}
	}
	return s
}

// Op is a comparison operator.
type Op int

const (
	OpEq Op = iota
	OpNeq
	OpGt
	OpLt
	OpGte
	OpLte
	OpRegex
	OpContains
)

// ValueKind distinguishes a parsed comparison literal's shape.
type ValueKind int

const (
	ValueString ValueKind = iota
	ValueNumber
	ValueBool
)

// Value is a parsed literal from the right-hand side of a comparison.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
}

// AsString renders v for string-mode comparisons (==, !=, =~, contains).
func (v Value) AsString() string {
	switch v.Kind {
	case ValueNumber:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case ValueBool:
		return strconv.FormatBool(v.Bool)
	default:
		return v.Str
	}
}

// AsFloat renders v for ordered comparisons; ok is false if v isn't
// numeric and doesn't parse as one.
func (v Value) AsFloat() (float64, bool) {
	switch v.Kind {
	case ValueNumber:
		return v.Num, true
	default:
		f, err := strconv.ParseFloat(v.Str, 64)
		return f, err == nil
	}
}

// Cmp is one field comparison.
type Cmp struct {
	Field FieldPath
	Op    Op
	Value Value
}

// Aggregation is the trailing `count by (...) top N` stage, if present.
type Aggregation struct {
	GroupBy []FieldPath
	Top     int // 0 means unbounded
}

// Query is a fully parsed pipeline. Per spec §4.5's grammar note, every
// comparison across every "|"/"&"-separated stage conjoins (AND); the
// pipe syntax between stages is not a logical OR.
type Query struct {
	Parser      types.ParserKind
	Filters     []Cmp
	Aggregation *Aggregation
}
