package query

import (
	"strconv"
	"strings"

	"github.com/lazytail-go/lazytail/pkg/errors"
	"github.com/lazytail-go/lazytail/pkg/types"
)

// tokenStream buffers one token of lookahead over a lexer.
type tokenStream struct {
	lex  *lexer
	peek *token
}

func newTokenStream(src string) *tokenStream {
	return &tokenStream{lex: newLexer(src)}
}

func (ts *tokenStream) peekTok() (token, error) {
	if ts.peek == nil {
		tok, err := ts.lex.next()
		if err != nil {
			return token{}, err
		}
		ts.peek = &tok
	}
	return *ts.peek, nil
}

func (ts *tokenStream) advance() (token, error) {
	tok, err := ts.peekTok()
	if err != nil {
		return token{}, err
	}
	ts.peek = nil
	return tok, nil
}

// Parse parses src into a Query per spec §4.5's grammar.
func Parse(src string) (*Query, error) {
	ts := newTokenStream(strings.TrimSpace(src))

	first, err := ts.advance()
	if err != nil {
		return nil, err
	}
	if first.kind != tokIdent {
		return nil, errors.New(errors.CodeParse, "query", "parse", "query must start with a parser stage (json or logfmt)")
	}

	q := &Query{}
	switch first.text {
	case "json":
		q.Parser = types.ParserJSON
	case "logfmt":
		q.Parser = types.ParserLogfmt
	default:
		return nil, errors.New(errors.CodeParse, "query", "parse", "unknown parser stage '"+first.text+"' (want json or logfmt)")
	}

	for {
		tok, err := ts.peekTok()
		if err != nil {
			return nil, err
		}
		if tok.kind == tokEOF {
			break
		}
		if tok.kind != tokPipe {
			return nil, errors.New(errors.CodeParse, "query", "parse", "expected '|' between pipeline stages")
		}
		ts.advance()

		stageStart, err := ts.peekTok()
		if err != nil {
			return nil, err
		}
		if stageStart.kind == tokIdent && stageStart.text == "count" {
			agg, err := parseAggregation(ts)
			if err != nil {
				return nil, err
			}
			q.Aggregation = agg
			break
		}

		cmps, err := parseAndExpr(ts)
		if err != nil {
			return nil, err
		}
		q.Filters = append(q.Filters, cmps...)
	}

	tail, err := ts.peekTok()
	if err != nil {
		return nil, err
	}
	if tail.kind != tokEOF {
		return nil, errors.New(errors.CodeParse, "query", "parse", "unexpected trailing tokens after query")
	}
	return q, nil
}

// parseAndExpr parses one "&"-joined run of comparisons.
func parseAndExpr(ts *tokenStream) ([]Cmp, error) {
	var cmps []Cmp
	for {
		cmp, err := parseCmp(ts)
		if err != nil {
			return nil, err
		}
		cmps = append(cmps, cmp)

		tok, err := ts.peekTok()
		if err != nil {
			return nil, err
		}
		if tok.kind != tokAmp {
			return cmps, nil
		}
		ts.advance()
	}
}

func parseCmp(ts *tokenStream) (Cmp, error) {
	field, err := parseFieldPath(ts)
	if err != nil {
		return Cmp{}, err
	}

	opTok, err := ts.advance()
	if err != nil {
		return Cmp{}, err
	}
	op, err := opFromToken(opTok)
	if err != nil {
		return Cmp{}, err
	}

	valTok, err := ts.advance()
	if err != nil {
		return Cmp{}, err
	}
	val, err := valueFromToken(valTok)
	if err != nil {
		return Cmp{}, err
	}

	return Cmp{Field: field, Op: op, Value: val}, nil
}

func opFromToken(tok token) (Op, error) {
	if tok.kind == tokOp {
		switch tok.text {
		case "==":
			return OpEq, nil
		case "!=":
			return OpNeq, nil
		case ">":
			return OpGt, nil
		case "<":
			return OpLt, nil
		case ">=":
			return OpGte, nil
		case "<=":
			return OpLte, nil
		case "=~":
			return OpRegex, nil
		}
	}
	if tok.kind == tokIdent && tok.text == "contains" {
		return OpContains, nil
	}
	return 0, errors.New(errors.CodeParse, "query", "parse", "expected a comparison operator, got '"+tok.text+"'")
}

func valueFromToken(tok token) (Value, error) {
	switch tok.kind {
	case tokString:
		return Value{Kind: ValueString, Str: tok.text}, nil
	case tokNumber:
		n, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return Value{}, errors.New(errors.CodeParse, "query", "parse", "invalid number literal '"+tok.text+"'")
		}
		return Value{Kind: ValueNumber, Num: n}, nil
	case tokIdent:
		switch tok.text {
		case "true":
			return Value{Kind: ValueBool, Bool: true}, nil
		case "false":
			return Value{Kind: ValueBool, Bool: false}, nil
		}
		return Value{Kind: ValueString, Str: tok.text}, nil
	default:
		return Value{}, errors.New(errors.CodeParse, "query", "parse", "expected a comparison value")
	}
}

// parseFieldPath parses ident ("." ident | "." int)*.
func parseFieldPath(ts *tokenStream) (FieldPath, error) {
	first, err := ts.advance()
	if err != nil {
		return nil, err
	}
	if first.kind != tokIdent {
		return nil, errors.New(errors.CodeParse, "query", "parse", "expected a field name")
	}
	path := FieldPath{{Key: first.text}}

	for {
		tok, err := ts.peekTok()
		if err != nil {
			return nil, err
		}
		if tok.kind != tokDot {
			return path, nil
		}
		ts.advance()

		part, err := ts.advance()
		if err != nil {
			return nil, err
		}
		switch part.kind {
		case tokIdent:
			path = append(path, FieldPart{Key: part.text})
		case tokNumber:
			n, err := strconv.Atoi(part.text)
			if err != nil {
				return nil, errors.New(errors.CodeParse, "query", "parse", "invalid array index '"+part.text+"'")
			}
			path = append(path, FieldPart{Index: n, IsIndex: true})
		default:
			return nil, errors.New(errors.CodeParse, "query", "parse", "expected a field name or array index after '.'")
		}
	}
}

// parseAggregation parses `count by (field, ...) ("top" int)?`, with the
// leading "count" identifier already peeked (not yet consumed).
func parseAggregation(ts *tokenStream) (*Aggregation, error) {
	ts.advance() // "count"

	byTok, err := ts.advance()
	if err != nil {
		return nil, err
	}
	if byTok.kind != tokIdent || byTok.text != "by" {
		return nil, errors.New(errors.CodeParse, "query", "parse", "expected 'by' after 'count'")
	}

	lp, err := ts.advance()
	if err != nil {
		return nil, err
	}
	if lp.kind != tokLParen {
		return nil, errors.New(errors.CodeParse, "query", "parse", "expected '(' after 'count by'")
	}

	var fields []FieldPath
	for {
		f, err := parseFieldPath(ts)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)

		tok, err := ts.advance()
		if err != nil {
			return nil, err
		}
		if tok.kind == tokRParen {
			break
		}
		if tok.kind != tokComma {
			return nil, errors.New(errors.CodeParse, "query", "parse", "expected ',' or ')' in group-by field list")
		}
	}

	agg := &Aggregation{GroupBy: fields}

	tok, err := ts.peekTok()
	if err != nil {
		return nil, err
	}
	if tok.kind == tokIdent && tok.text == "top" {
		ts.advance()
		nTok, err := ts.advance()
		if err != nil {
			return nil, err
		}
		if nTok.kind != tokNumber {
			return nil, errors.New(errors.CodeParse, "query", "parse", "expected an integer after 'top'")
		}
		n, err := strconv.Atoi(strings.TrimSuffix(nTok.text, ".0"))
		if err != nil {
			return nil, errors.New(errors.CodeParse, "query", "parse", "invalid 'top' count '"+nTok.text+"'")
		}
		agg.Top = n
	}

	return agg, nil
}
