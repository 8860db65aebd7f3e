package schema

import (
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
)

// Expr is a parsed arithmetic formula over sibling field names. Supported:
// +, -, *, /, unary minus, parentheses, numeric literals and identifiers.
type Expr struct {
	src  string
	root exprNode
}

type exprNode interface {
	eval(vars map[string]float64) (float64, bool)
	collectVars(set map[string]struct{})
}

type numNode float64

func (n numNode) eval(map[string]float64) (float64, bool) { return float64(n), true }
func (n numNode) collectVars(map[string]struct{})         {}

type varNode string

func (v varNode) eval(vars map[string]float64) (float64, bool) {
	val, ok := vars[string(v)]
	return val, ok
}
func (v varNode) collectVars(set map[string]struct{}) { set[string(v)] = struct{}{} }

type negNode struct{ operand exprNode }

func (n negNode) eval(vars map[string]float64) (float64, bool) {
	v, ok := n.operand.eval(vars)
	return -v, ok
}
func (n negNode) collectVars(set map[string]struct{}) { n.operand.collectVars(set) }

type binNode struct {
	op          byte
	left, right exprNode
}

func (b binNode) eval(vars map[string]float64) (float64, bool) {
	l, ok := b.left.eval(vars)
	if !ok {
		return 0, false
	}
	r, ok := b.right.eval(vars)
	if !ok {
		return 0, false
	}
	switch b.op {
	case '+':
		return l + r, true
	case '-':
		return l - r, true
	case '*':
		return l * r, true
	default:
		if r == 0 {
			return 0, false
		}
		return l / r, true
	}
}
func (b binNode) collectVars(set map[string]struct{}) {
	b.left.collectVars(set)
	b.right.collectVars(set)
}

// ParseFormula parses an arithmetic expression into an Expr.
func ParseFormula(src string) (*Expr, error) {
	p := &formulaParser{src: src}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, eris.Errorf("formula: unexpected %q at position %d", p.src[p.pos:], p.pos)
	}
	return &Expr{src: src, root: root}, nil
}

// String returns the original formula source.
func (e *Expr) String() string { return e.src }

// Vars returns the distinct field names the formula references, sorted.
func (e *Expr) Vars() []string {
	set := make(map[string]struct{})
	e.root.collectVars(set)
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Eval evaluates the formula over the given operand values. The second
// return is false when any operand is missing or a division by zero occurs;
// the caller falls back to the field default.
func (e *Expr) Eval(vars map[string]float64) (float64, bool) {
	return e.root.eval(vars)
}

type formulaParser struct {
	src string
	pos int
}

func (p *formulaParser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *formulaParser) peek() byte {
	if p.pos < len(p.src) {
		return p.src[p.pos]
	}
	return 0
}

// parseExpr = term {(+|-) term}
func (p *formulaParser) parseExpr() (exprNode, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		op := p.peek()
		if op != '+' && op != '-' {
			return left, nil
		}
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = binNode{op: op, left: left, right: right}
	}
}

// parseTerm = unary {(*|/) unary}
func (p *formulaParser) parseTerm() (exprNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		op := p.peek()
		if op != '*' && op != '/' {
			return left, nil
		}
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binNode{op: op, left: left, right: right}
	}
}

func (p *formulaParser) parseUnary() (exprNode, error) {
	p.skipSpace()
	if p.peek() == '-' {
		p.pos++
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return negNode{operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *formulaParser) parsePrimary() (exprNode, error) {
	p.skipSpace()
	c := p.peek()

	switch {
	case c == '(':
		p.pos++
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.peek() != ')' {
			return nil, eris.Errorf("formula: missing ) at position %d", p.pos)
		}
		p.pos++
		return inner, nil

	case c >= '0' && c <= '9' || c == '.':
		start := p.pos
		for p.pos < len(p.src) && (isDigit(p.src[p.pos]) || p.src[p.pos] == '.') {
			p.pos++
		}
		f, err := strconv.ParseFloat(p.src[start:p.pos], 64)
		if err != nil {
			return nil, eris.Wrapf(err, "formula: bad number %q", p.src[start:p.pos])
		}
		return numNode(f), nil

	case isIdentStart(c):
		start := p.pos
		for p.pos < len(p.src) && isIdentPart(p.src[p.pos]) {
			p.pos++
		}
		return varNode(p.src[start:p.pos]), nil

	default:
		if p.pos >= len(p.src) {
			return nil, eris.New("formula: unexpected end of expression")
		}
		return nil, eris.Errorf("formula: unexpected %q at position %d", string(c), p.pos)
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }
