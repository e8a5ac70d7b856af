// Package expr evaluates the restricted boolean expression grammar used by
// condition steps. Workflow definitions are user authored, so the grammar is
// deliberately closed: number and string literals, true/false/null, the
// comparison operators, + - * /, ! && || and parentheses. Any other token is
// rejected at parse time; there is no identifier lookup and no way to reach
// host code from an expression.
package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Eval parses and evaluates input. The result must be a boolean; anything
// else is an error so that a condition step fails closed instead of guessing.
func Eval(input string) (bool, error) {
	p := &parser{lex: &lexer{input: input}}
	if err := p.next(); err != nil {
		return false, err
	}
	v, err := p.parseOr()
	if err != nil {
		return false, err
	}
	if p.tok.kind != tokEOF {
		return false, fmt.Errorf("unexpected %q at position %d", p.tok.text, p.tok.pos)
	}
	if v.kind != kindBool {
		return false, fmt.Errorf("expression did not evaluate to a boolean")
	}
	return v.b, nil
}

type valueKind int

const (
	kindNumber valueKind = iota
	kindString
	kindBool
	kindNull
)

type value struct {
	kind valueKind
	num  float64
	str  string
	b    bool
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokTrue
	tokFalse
	tokNull
	tokAnd
	tokOr
	tokNot
	tokEq
	tokNe
	tokLt
	tokLe
	tokGt
	tokGe
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

type lexer struct {
	input string
	pos   int
}

func (l *lexer) lex() (token, error) {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
	start := l.pos
	if l.pos >= len(l.input) {
		return token{kind: tokEOF, pos: start}, nil
	}

	c := l.input[l.pos]
	switch {
	case c >= '0' && c <= '9' || c == '.' && l.pos+1 < len(l.input) && isDigit(l.input[l.pos+1]):
		for l.pos < len(l.input) && (isDigit(l.input[l.pos]) || l.input[l.pos] == '.') {
			l.pos++
		}
		text := l.input[start:l.pos]
		n, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return token{}, fmt.Errorf("invalid number %q at position %d", text, start)
		}
		return token{kind: tokNumber, text: text, num: n, pos: start}, nil

	case c == '\'' || c == '"':
		quote := c
		l.pos++
		var sb strings.Builder
		for l.pos < len(l.input) && l.input[l.pos] != quote {
			if l.input[l.pos] == '\\' && l.pos+1 < len(l.input) {
				l.pos++
			}
			sb.WriteByte(l.input[l.pos])
			l.pos++
		}
		if l.pos >= len(l.input) {
			return token{}, fmt.Errorf("unterminated string at position %d", start)
		}
		l.pos++
		return token{kind: tokString, text: sb.String(), pos: start}, nil

	case isWordStart(c):
		for l.pos < len(l.input) && isWordChar(l.input[l.pos]) {
			l.pos++
		}
		word := l.input[start:l.pos]
		switch word {
		case "true":
			return token{kind: tokTrue, text: word, pos: start}, nil
		case "false":
			return token{kind: tokFalse, text: word, pos: start}, nil
		case "null":
			return token{kind: tokNull, text: word, pos: start}, nil
		}
		return token{}, fmt.Errorf("unknown identifier %q at position %d", word, start)
	}

	two := ""
	if l.pos+2 <= len(l.input) {
		two = l.input[l.pos : l.pos+2]
	}
	switch two {
	case "&&":
		l.pos += 2
		return token{kind: tokAnd, text: two, pos: start}, nil
	case "||":
		l.pos += 2
		return token{kind: tokOr, text: two, pos: start}, nil
	case "==":
		l.pos += 2
		return token{kind: tokEq, text: two, pos: start}, nil
	case "!=":
		l.pos += 2
		return token{kind: tokNe, text: two, pos: start}, nil
	case "<=":
		l.pos += 2
		return token{kind: tokLe, text: two, pos: start}, nil
	case ">=":
		l.pos += 2
		return token{kind: tokGe, text: two, pos: start}, nil
	}

	l.pos++
	switch c {
	case '<':
		return token{kind: tokLt, text: "<", pos: start}, nil
	case '>':
		return token{kind: tokGt, text: ">", pos: start}, nil
	case '!':
		return token{kind: tokNot, text: "!", pos: start}, nil
	case '+':
		return token{kind: tokPlus, text: "+", pos: start}, nil
	case '-':
		return token{kind: tokMinus, text: "-", pos: start}, nil
	case '*':
		return token{kind: tokStar, text: "*", pos: start}, nil
	case '/':
		return token{kind: tokSlash, text: "/", pos: start}, nil
	case '(':
		return token{kind: tokLParen, text: "(", pos: start}, nil
	case ')':
		return token{kind: tokRParen, text: ")", pos: start}, nil
	}
	return token{}, fmt.Errorf("illegal character %q at position %d", string(c), start)
}

func isDigit(c byte) bool     { return c >= '0' && c <= '9' }
func isWordStart(c byte) bool { return c == '_' || unicode.IsLetter(rune(c)) }
func isWordChar(c byte) bool  { return isWordStart(c) || isDigit(c) }

type parser struct {
	lex *lexer
	tok token
}

func (p *parser) next() error {
	t, err := p.lex.lex()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *parser) parseOr() (value, error) {
	left, err := p.parseAnd()
	if err != nil {
		return value{}, err
	}
	for p.tok.kind == tokOr {
		if err := p.next(); err != nil {
			return value{}, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return value{}, err
		}
		if left.kind != kindBool || right.kind != kindBool {
			return value{}, fmt.Errorf("|| requires boolean operands")
		}
		left = value{kind: kindBool, b: left.b || right.b}
	}
	return left, nil
}

func (p *parser) parseAnd() (value, error) {
	left, err := p.parseUnary()
	if err != nil {
		return value{}, err
	}
	for p.tok.kind == tokAnd {
		if err := p.next(); err != nil {
			return value{}, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return value{}, err
		}
		if left.kind != kindBool || right.kind != kindBool {
			return value{}, fmt.Errorf("&& requires boolean operands")
		}
		left = value{kind: kindBool, b: left.b && right.b}
	}
	return left, nil
}

func (p *parser) parseUnary() (value, error) {
	if p.tok.kind == tokNot {
		if err := p.next(); err != nil {
			return value{}, err
		}
		v, err := p.parseUnary()
		if err != nil {
			return value{}, err
		}
		if v.kind != kindBool {
			return value{}, fmt.Errorf("! requires a boolean operand")
		}
		return value{kind: kindBool, b: !v.b}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (value, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return value{}, err
	}
	op := p.tok.kind
	switch op {
	case tokEq, tokNe, tokLt, tokLe, tokGt, tokGe:
	default:
		return left, nil
	}
	if err := p.next(); err != nil {
		return value{}, err
	}
	right, err := p.parseAdditive()
	if err != nil {
		return value{}, err
	}
	return compare(op, left, right)
}

func compare(op tokenKind, left, right value) (value, error) {
	if op == tokEq || op == tokNe {
		eq := equal(left, right)
		if op == tokNe {
			eq = !eq
		}
		return value{kind: kindBool, b: eq}, nil
	}
	if left.kind != kindNumber || right.kind != kindNumber {
		return value{}, fmt.Errorf("ordering comparison requires numeric operands")
	}
	var b bool
	switch op {
	case tokLt:
		b = left.num < right.num
	case tokLe:
		b = left.num <= right.num
	case tokGt:
		b = left.num > right.num
	case tokGe:
		b = left.num >= right.num
	}
	return value{kind: kindBool, b: b}, nil
}

func equal(left, right value) bool {
	if left.kind != right.kind {
		return false
	}
	switch left.kind {
	case kindNumber:
		return left.num == right.num
	case kindString:
		return left.str == right.str
	case kindBool:
		return left.b == right.b
	case kindNull:
		return true
	}
	return false
}

func (p *parser) parseAdditive() (value, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return value{}, err
	}
	for p.tok.kind == tokPlus || p.tok.kind == tokMinus {
		op := p.tok.kind
		if err := p.next(); err != nil {
			return value{}, err
		}
		right, err := p.parseMultiplicative()
		if err != nil {
			return value{}, err
		}
		if left.kind != kindNumber || right.kind != kindNumber {
			return value{}, fmt.Errorf("arithmetic requires numeric operands")
		}
		if op == tokPlus {
			left = value{kind: kindNumber, num: left.num + right.num}
		} else {
			left = value{kind: kindNumber, num: left.num - right.num}
		}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (value, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return value{}, err
	}
	for p.tok.kind == tokStar || p.tok.kind == tokSlash {
		op := p.tok.kind
		if err := p.next(); err != nil {
			return value{}, err
		}
		right, err := p.parsePrimary()
		if err != nil {
			return value{}, err
		}
		if left.kind != kindNumber || right.kind != kindNumber {
			return value{}, fmt.Errorf("arithmetic requires numeric operands")
		}
		if op == tokStar {
			left = value{kind: kindNumber, num: left.num * right.num}
		} else {
			if right.num == 0 {
				return value{}, fmt.Errorf("division by zero")
			}
			left = value{kind: kindNumber, num: left.num / right.num}
		}
	}
	return left, nil
}

func (p *parser) parsePrimary() (value, error) {
	switch p.tok.kind {
	case tokNumber:
		v := value{kind: kindNumber, num: p.tok.num}
		return v, p.next()
	case tokString:
		v := value{kind: kindString, str: p.tok.text}
		return v, p.next()
	case tokTrue:
		return value{kind: kindBool, b: true}, p.next()
	case tokFalse:
		return value{kind: kindBool, b: false}, p.next()
	case tokNull:
		return value{kind: kindNull}, p.next()
	case tokMinus:
		if err := p.next(); err != nil {
			return value{}, err
		}
		v, err := p.parsePrimary()
		if err != nil {
			return value{}, err
		}
		if v.kind != kindNumber {
			return value{}, fmt.Errorf("unary minus requires a numeric operand")
		}
		return value{kind: kindNumber, num: -v.num}, nil
	case tokLParen:
		if err := p.next(); err != nil {
			return value{}, err
		}
		v, err := p.parseOr()
		if err != nil {
			return value{}, err
		}
		if p.tok.kind != tokRParen {
			return value{}, fmt.Errorf("missing closing parenthesis at position %d", p.tok.pos)
		}
		return v, p.next()
	case tokEOF:
		return value{}, fmt.Errorf("unexpected end of expression")
	}
	return value{}, fmt.Errorf("unexpected %q at position %d", p.tok.text, p.tok.pos)
}
