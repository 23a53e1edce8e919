package diagram

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Func is a compiled single-variable expression.
type Func func(x float64) float64

var funcs = map[string]func(float64) float64{
	"sin":  math.Sin,
	"cos":  math.Cos,
	"tan":  math.Tan,
	"exp":  math.Exp,
	"log":  math.Log,
	"ln":   math.Log,
	"sqrt": math.Sqrt,
	"abs":  math.Abs,
}

// Compile parses an expression in x. It understands + - * / ^ (or **),
// parentheses, implicit multiplication ("2x", "3(x+1)"), the constants
// pi and e, and the functions in funcs.
func Compile(src string) (Func, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	f, err := p.expr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, fmt.Errorf("unexpected %q at token %d", p.toks[p.pos].text, p.pos)
	}
	return f, nil
}

type tokKind int

const (
	tokNum tokKind = iota
	tokIdent
	tokOp
)

type token struct {
	kind tokKind
	text string
	num  float64
}

func tokenize(src string) ([]token, error) {
	var toks []token
	rs := []rune(src)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case unicode.IsDigit(r) || r == '.':
			j := i
			for j < len(rs) && (unicode.IsDigit(rs[j]) || rs[j] == '.') {
				j++
			}
			n, err := strconv.ParseFloat(string(rs[i:j]), 64)
			if err != nil {
				return nil, fmt.Errorf("bad number %q", string(rs[i:j]))
			}
			toks = append(toks, token{kind: tokNum, text: string(rs[i:j]), num: n})
			i = j
		case unicode.IsLetter(r):
			j := i
			for j < len(rs) && unicode.IsLetter(rs[j]) {
				j++
			}
			toks = append(toks, splitIdent(strings.ToLower(string(rs[i:j])))...)
			i = j
		case r == '*' && i+1 < len(rs) && rs[i+1] == '*':
			toks = append(toks, token{kind: tokOp, text: "^"})
			i += 2
		case strings.ContainsRune("+-*/^()", r):
			toks = append(toks, token{kind: tokOp, text: string(r)})
			i++
		default:
			return nil, fmt.Errorf("unexpected character %q", r)
		}
	}
	if len(toks) == 0 {
		return nil, fmt.Errorf("empty expression")
	}
	return toks, nil
}

// splitIdent breaks runs like "xsin" or "pix" into known names.
func splitIdent(s string) []token {
	var out []token
	for s != "" {
		matched := false
		for _, name := range []string{"sqrt", "sin", "cos", "tan", "exp", "log", "abs", "ln", "pi", "x", "e"} {
			if strings.HasPrefix(s, name) {
				out = append(out, token{kind: tokIdent, text: name})
				s = s[len(name):]
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, token{kind: tokIdent, text: s})
			break
		}
	}
	return out
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) isOp(op string) bool {
	t, ok := p.peek()
	return ok && t.kind == tokOp && t.text == op
}

func (p *parser) expr() (Func, error) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}
	for p.isOp("+") || p.isOp("-") {
		op := p.toks[p.pos].text
		p.pos++
		right, err := p.term()
		if err != nil {
			return nil, err
		}
		l := left
		if op == "+" {
			left = func(x float64) float64 { return l(x) + right(x) }
		} else {
			left = func(x float64) float64 { return l(x) - right(x) }
		}
	}
	return left, nil
}

func (p *parser) term() (Func, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch {
		case p.isOp("*") || p.isOp("/"):
			op = p.toks[p.pos].text
			p.pos++
		case p.startsOperand():
			op = "*"
		default:
			return left, nil
		}
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		l := left
		if op == "*" {
			left = func(x float64) float64 { return l(x) * right(x) }
		} else {
			left = func(x float64) float64 { return l(x) / right(x) }
		}
	}
}

// startsOperand reports whether the next token begins an implicitly
// multiplied factor.
func (p *parser) startsOperand() bool {
	t, ok := p.peek()
	if !ok {
		return false
	}
	return t.kind == tokNum || t.kind == tokIdent || (t.kind == tokOp && t.text == "(")
}

func (p *parser) unary() (Func, error) {
	if p.isOp("-") {
		p.pos++
		f, err := p.unary()
		if err != nil {
			return nil, err
		}
		return func(x float64) float64 { return -f(x) }, nil
	}
	if p.isOp("+") {
		p.pos++
		return p.unary()
	}
	return p.power()
}

func (p *parser) power() (Func, error) {
	base, err := p.primary()
	if err != nil {
		return nil, err
	}
	if !p.isOp("^") {
		return base, nil
	}
	p.pos++
	exp, err := p.unary()
	if err != nil {
		return nil, err
	}
	return func(x float64) float64 { return math.Pow(base(x), exp(x)) }, nil
}

func (p *parser) primary() (Func, error) {
	t, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("unexpected end of expression")
	}
	p.pos++
	switch t.kind {
	case tokNum:
		n := t.num
		return func(float64) float64 { return n }, nil
	case tokIdent:
		switch t.text {
		case "x":
			return func(x float64) float64 { return x }, nil
		case "pi":
			return func(float64) float64 { return math.Pi }, nil
		case "e":
			return func(float64) float64 { return math.E }, nil
		}
		fn, ok := funcs[t.text]
		if !ok {
			return nil, fmt.Errorf("unknown name %q", t.text)
		}
		if !p.isOp("(") {
			return nil, fmt.Errorf("%s needs parentheses", t.text)
		}
		p.pos++
		arg, err := p.expr()
		if err != nil {
			return nil, err
		}
		if !p.isOp(")") {
			return nil, fmt.Errorf("missing ) after %s argument", t.text)
		}
		p.pos++
		return func(x float64) float64 { return fn(arg(x)) }, nil
	case tokOp:
		if t.text == "(" {
			inner, err := p.expr()
			if err != nil {
				return nil, err
			}
			if !p.isOp(")") {
				return nil, fmt.Errorf("missing )")
			}
			p.pos++
			return inner, nil
		}
	}
	return nil, fmt.Errorf("unexpected %q", t.text)
}
