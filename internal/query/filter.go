// Package query compiles the catalog filter language used by node search:
//
//	label contains "cell" AND NOT is_instance == true
//	(degree >= 3 OR summary matches "^The") AND id != 7
//
// Comparisons are always field op literal. Field names and regular
// expressions are checked when the filter is compiled.
package query

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/gyaneshwarpardhi/kgexplorer/internal/graph"
)

// Record exposes the fields a filter can reference.
type Record interface {
	Field(name string) (any, bool)
}

type fieldType int

const (
	tString fieldType = iota
	tNumber
	tBool
)

var fields = map[string]fieldType{
	"label":       tString,
	"summary":     tString,
	"id":          tNumber,
	"degree":      tNumber,
	"is_instance": tBool,
}

type predicate func(Record) bool

// Filter is a compiled query. The zero Filter and a nil *Filter match everything.
type Filter struct {
	src  string
	pred predicate
}

// Compile parses src. An empty or blank source yields a match-all filter.
func Compile(src string) (*Filter, error) {
	if strings.TrimSpace(src) == "" {
		return &Filter{}, nil
	}
	toks, err := lex(src)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", src, err)
	}
	p := &parser{toks: toks}
	pred, err := p.or()
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", src, err)
	}
	if t := p.peek(); t.kind != kEOF {
		return nil, fmt.Errorf("query %q: position %d: unexpected %q", src, t.pos, t.text)
	}
	return &Filter{src: src, pred: pred}, nil
}

// MustCompile is Compile that panics on error, for static filters.
func MustCompile(src string) *Filter {
	f, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return f
}

// Match reports whether r satisfies the filter.
func (f *Filter) Match(r Record) bool {
	if f == nil || f.pred == nil {
		return true
	}
	return f.pred(r)
}

func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.src
}

// NodeRecord adapts a catalog node (and its relation count) to Record.
func NodeRecord(n graph.Node, degree int) Record {
	return nodeRecord{n: n, degree: degree}
}

type nodeRecord struct {
	n      graph.Node
	degree int
}

func (r nodeRecord) Field(name string) (any, bool) {
	switch name {
	case "label":
		return r.n.Label, true
	case "summary":
		return r.n.Summary, true
	case "id":
		return float64(r.n.ID), true
	case "degree":
		return float64(r.degree), true
	case "is_instance":
		return r.n.IsInstance, true
	}
	return nil, false
}

type parser struct {
	toks []lexeme
	i    int
}

func (p *parser) peek() lexeme { return p.toks[p.i] }

func (p *parser) advance() lexeme {
	t := p.toks[p.i]
	if t.kind != kEOF {
		p.i++
	}
	return t
}

func (p *parser) or() (predicate, error) {
	left, err := p.and()
	if err != nil {
		return nil, err
	}
	for p.peek().is("OR") {
		p.advance()
		right, err := p.and()
		if err != nil {
			return nil, err
		}
		l := left
		left = func(r Record) bool { return l(r) || right(r) }
	}
	return left, nil
}

func (p *parser) and() (predicate, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.peek().is("AND") {
		p.advance()
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		l := left
		left = func(r Record) bool { return l(r) && right(r) }
	}
	return left, nil
}

func (p *parser) unary() (predicate, error) {
	switch t := p.peek(); {
	case t.is("NOT"):
		p.advance()
		inner, err := p.unary()
		if err != nil {
			return nil, err
		}
		return func(r Record) bool { return !inner(r) }, nil
	case t.kind == kLParen:
		p.advance()
		inner, err := p.or()
		if err != nil {
			return nil, err
		}
		if c := p.advance(); c.kind != kRParen {
			return nil, fmt.Errorf("position %d: expected ')'", c.pos)
		}
		return inner, nil
	}
	return p.comparison()
}

func (p *parser) comparison() (predicate, error) {
	ft := p.advance()
	if ft.kind != kIdent {
		return nil, fmt.Errorf("position %d: expected field name", ft.pos)
	}
	name := strings.ToLower(ft.text)
	typ, ok := fields[name]
	if !ok {
		return nil, fmt.Errorf("position %d: unknown field %q", ft.pos, ft.text)
	}

	op := p.advance()
	switch {
	case op.kind == kCmp:
	case op.is("contains"), op.is("matches"):
		op.text = strings.ToLower(op.text)
	default:
		return nil, fmt.Errorf("position %d: expected operator after %s", op.pos, ft.text)
	}

	lit := p.advance()
	switch typ {
	case tString:
		return stringPredicate(name, op, lit)
	case tNumber:
		return numberPredicate(name, op, lit)
	default:
		return boolPredicate(name, op, lit)
	}
}

func stringPredicate(field string, op, lit lexeme) (predicate, error) {
	if lit.kind != kString {
		return nil, fmt.Errorf("position %d: %s compares against a quoted string", lit.pos, field)
	}
	get := func(r Record) string {
		v, _ := r.Field(field)
		s, _ := v.(string)
		return s
	}
	want := lit.text
	switch op.text {
	case "==":
		return func(r Record) bool { return strings.EqualFold(get(r), want) }, nil
	case "!=":
		return func(r Record) bool { return !strings.EqualFold(get(r), want) }, nil
	case "contains":
		needle := strings.ToLower(want)
		return func(r Record) bool { return strings.Contains(strings.ToLower(get(r)), needle) }, nil
	case "matches":
		re, err := regexp.Compile(want)
		if err != nil {
			return nil, fmt.Errorf("position %d: %w", lit.pos, err)
		}
		return func(r Record) bool { return re.MatchString(get(r)) }, nil
	}
	return nil, fmt.Errorf("position %d: operator %s does not apply to %s", op.pos, op.text, field)
}

func numberPredicate(field string, op, lit lexeme) (predicate, error) {
	if lit.kind != kNumber {
		return nil, fmt.Errorf("position %d: %s compares against a number", lit.pos, field)
	}
	want, err := strconv.ParseFloat(lit.text, 64)
	if err != nil {
		return nil, fmt.Errorf("position %d: bad number %q", lit.pos, lit.text)
	}
	var cmp func(a, b float64) bool
	switch op.text {
	case "==":
		cmp = func(a, b float64) bool { return math.Abs(a-b) < 1e-9 }
	case "!=":
		cmp = func(a, b float64) bool { return math.Abs(a-b) >= 1e-9 }
	case "<":
		cmp = func(a, b float64) bool { return a < b }
	case "<=":
		cmp = func(a, b float64) bool { return a <= b }
	case ">":
		cmp = func(a, b float64) bool { return a > b }
	case ">=":
		cmp = func(a, b float64) bool { return a >= b }
	default:
		return nil, fmt.Errorf("position %d: operator %s does not apply to %s", op.pos, op.text, field)
	}
	return func(r Record) bool {
		v, _ := r.Field(field)
		f, ok := v.(float64)
		return ok && cmp(f, want)
	}, nil
}

func boolPredicate(field string, op, lit lexeme) (predicate, error) {
	if !lit.is("true") && !lit.is("false") {
		return nil, fmt.Errorf("position %d: %s compares against true or false", lit.pos, field)
	}
	want := lit.is("true")
	if op.text != "==" && op.text != "!=" {
		return nil, fmt.Errorf("position %d: operator %s does not apply to %s", op.pos, op.text, field)
	}
	negate := op.text == "!="
	return func(r Record) bool {
		v, _ := r.Field(field)
		b, _ := v.(bool)
		return (b == want) != negate
	}, nil
}
