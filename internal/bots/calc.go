package bots

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"unicode"
)

const (
	maxExpressionLength = 256
	maxNesting          = 32
)

var (
	errSyntax         = errors.New("syntax error")
	errDivisionByZero = errors.New("division by zero")
	errOverflow       = errors.New("overflow")
	errTooComplex     = errors.New("expression too complex")
)

// number keeps integers exact until a division or a decimal literal turns
// the value into a float.
type number struct {
	i       int64
	f       float64
	isFloat bool
}

func (n number) float() float64 {
	if n.isFloat {
		return n.f
	}
	return float64(n.i)
}

func (n number) String() string {
	if !n.isFloat {
		return strconv.FormatInt(n.i, 10)
	}
	s := strconv.FormatFloat(n.f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eIN") {
		s += ".0"
	}
	return s
}

// Evaluate computes an arithmetic expression made of numbers, + - * /,
// unary signs and parentheses. Anything else is rejected.
func Evaluate(expr string) (string, error) {
	if len(expr) > maxExpressionLength {
		return "", errTooComplex
	}

	p := &parser{input: []rune(expr)}
	n, err := p.expression(0)
	if err != nil {
		return "", err
	}
	p.skipSpace()
	if p.pos != len(p.input) {
		return "", errSyntax
	}
	if n.isFloat && (math.IsInf(n.f, 0) || math.IsNaN(n.f)) {
		return "", errOverflow
	}
	return n.String(), nil
}

type parser struct {
	input []rune
	pos   int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) && unicode.IsSpace(p.input[p.pos]) {
		p.pos++
	}
}

func (p *parser) peek() rune {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *parser) expression(depth int) (number, error) {
	left, err := p.term(depth)
	if err != nil {
		return number{}, err
	}
	for {
		op := p.peek()
		if op != '+' && op != '-' {
			return left, nil
		}
		p.pos++
		right, err := p.term(depth)
		if err != nil {
			return number{}, err
		}
		if left, err = apply(op, left, right); err != nil {
			return number{}, err
		}
	}
}

func (p *parser) term(depth int) (number, error) {
	left, err := p.unary(depth)
	if err != nil {
		return number{}, err
	}
	for {
		op := p.peek()
		if op != '*' && op != '/' {
			return left, nil
		}
		p.pos++
		// ** and // are not part of the grammar
		if next := p.peek(); next == '*' || next == '/' {
			return number{}, errSyntax
		}
		right, err := p.unary(depth)
		if err != nil {
			return number{}, err
		}
		if left, err = apply(op, left, right); err != nil {
			return number{}, err
		}
	}
}

func (p *parser) unary(depth int) (number, error) {
	if depth > maxNesting {
		return number{}, errTooComplex
	}
	switch p.peek() {
	case '-':
		p.pos++
		n, err := p.unary(depth + 1)
		if err != nil {
			return number{}, err
		}
		return apply('-', number{}, n)
	case '+':
		p.pos++
		return p.unary(depth + 1)
	}
	return p.primary(depth)
}

func (p *parser) primary(depth int) (number, error) {
	switch c := p.peek(); {
	case c == '(':
		p.pos++
		n, err := p.expression(depth + 1)
		if err != nil {
			return number{}, err
		}
		if p.peek() != ')' {
			return number{}, errSyntax
		}
		p.pos++
		return n, nil
	case c == '.' || (c >= '0' && c <= '9'):
		return p.literal()
	default:
		return number{}, errSyntax
	}
}

func (p *parser) literal() (number, error) {
	start := p.pos
	dots := 0
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if c == '.' {
			dots++
		} else if c < '0' || c > '9' {
			break
		}
		p.pos++
	}

	text := string(p.input[start:p.pos])
	if dots > 1 || text == "." {
		return number{}, errSyntax
	}

	if dots == 0 {
		i, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return number{}, errOverflow
		}
		return number{i: i}, nil
	}

	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return number{}, errSyntax
	}
	return number{f: f, isFloat: true}, nil
}

func apply(op rune, a number, b number) (number, error) {
	if op == '/' {
		if b.float() == 0 {
			return number{}, errDivisionByZero
		}
		return number{f: a.float() / b.float(), isFloat: true}, nil
	}

	if a.isFloat || b.isFloat {
		x, y := a.float(), b.float()
		switch op {
		case '+':
			return number{f: x + y, isFloat: true}, nil
		case '-':
			return number{f: x - y, isFloat: true}, nil
		default:
			return number{f: x * y, isFloat: true}, nil
		}
	}

	x, y := a.i, b.i
	var r int64
	switch op {
	case '+':
		r = x + y
		if (r > x) != (y > 0) {
			return number{}, errOverflow
		}
	case '-':
		r = x - y
		if (r < x) != (y > 0) {
			return number{}, errOverflow
		}
	default:
		if x != 0 && y != 0 {
			r = x * y
			if r/y != x || (x == -1 && y == math.MinInt64) || (y == -1 && x == math.MinInt64) {
				return number{}, errOverflow
			}
		}
	}
	return number{i: r}, nil
}
