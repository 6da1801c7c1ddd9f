package expr

import (
	"math"
	"strconv"
	"strings"
)

// Source resolves identifiers to numeric values during substitution.
// Names are plain variable names ("power") or dotted entity properties
// ("reactor.temperature").
type Source interface {
	Resolve(name string) (float64, bool)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(name string) (float64, bool)

// Resolve implements Source.
func (f SourceFunc) Resolve(name string) (float64, bool) { return f(name) }

// Evaluate substitutes identifiers, sanitizes, parses, and evaluates a
// condition, returning its truth value. The empty condition is false.
// Truthiness is numeric: any non-zero result is true.
func Evaluate(condition string, src Source) (bool, error) {
	v, err := EvaluateNumber(condition, src)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// EvaluateNumber evaluates a condition as a numeric expression.
// Comparisons and logical operators yield 1 or 0.
func EvaluateNumber(condition string, src Source) (float64, error) {
	condition = strings.TrimSpace(condition)
	if condition == "" {
		return 0, nil
	}

	substituted, err := substitute(condition, src)
	if err != nil {
		return 0, err
	}
	if err := checkSafe(condition, substituted); err != nil {
		return 0, err
	}

	p := &parser{expr: condition, input: substituted}
	v, err := p.parseOr()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos != len(p.input) {
		return 0, evalErr(ErrCodeSyntax, condition, "unexpected %q", p.input[p.pos:])
	}
	return v, nil
}

// Check is Evaluate with errors folded into false, the behavior rule and
// event gates want: a condition that cannot be evaluated does not hold.
func Check(condition string, src Source) bool {
	ok, err := Evaluate(condition, src)
	return err == nil && ok
}

// CheckAll reports whether every condition holds. The empty list holds.
func CheckAll(conditions []string, src Source) bool {
	for _, c := range conditions {
		if !Check(c, src) {
			return false
		}
	}
	return true
}

// CheckAny reports whether at least one condition holds.
func CheckAny(conditions []string, src Source) bool {
	for _, c := range conditions {
		if Check(c, src) {
			return true
		}
	}
	return false
}

// FormatNumber renders a float in the plain decimal form the evaluator
// accepts (never exponent notation).
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// substitute replaces every identifier with its resolved numeric value.
// Anything that looks like an identifier but does not resolve fails the
// expression; that is what stops function calls and property probes.
func substitute(condition string, src Source) (string, error) {
	var b strings.Builder
	i := 0
	for i < len(condition) {
		c := condition[i]
		if !isIdentStart(c) {
			b.WriteByte(c)
			i++
			continue
		}
		start := i
		for i < len(condition) && isIdentPart(condition[i]) {
			i++
		}
		for i < len(condition) && condition[i] == '.' && i+1 < len(condition) && isIdentStart(condition[i+1]) {
			i++
			for i < len(condition) && isIdentPart(condition[i]) {
				i++
			}
		}
		name := condition[start:i]
		if src == nil {
			return "", evalErr(ErrCodeUnknownName, condition, "unknown name %q", name)
		}
		v, ok := src.Resolve(name)
		if !ok {
			return "", evalErr(ErrCodeUnknownName, condition, "unknown name %q", name)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", evalErr(ErrCodeNotFinite, condition, "%q is not finite", name)
		}
		if v < 0 {
			b.WriteByte('(')
			b.WriteString(FormatNumber(v))
			b.WriteByte(')')
		} else {
			b.WriteString(FormatNumber(v))
		}
	}
	return b.String(), nil
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// checkSafe enforces the post-substitution character whitelist.
func checkSafe(expr, substituted string) error {
	for _, c := range substituted {
		switch {
		case c >= '0' && c <= '9':
		case strings.ContainsRune("+-*/().<>=!&| \t", c):
		default:
			return evalErr(ErrCodeUnsafeChar, expr, "disallowed character %q", c)
		}
	}
	return nil
}

// parser is a recursive descent parser over the substituted expression.
//
// Grammar, loosest binding first:
//
//	or    = and { "||" and }
//	and   = cmp { "&&" cmp }
//	cmp   = sum [ ("<"|">"|"<="|">="|"=="|"="|"!=") sum ]
//	sum   = term { ("+"|"-") term }
//	term  = unary { ("*"|"/") unary }
//	unary = [ "-" | "!" ] unary | primary
//	prim  = number | "(" or ")"
type parser struct {
	expr  string
	input string
	pos   int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
}

// accept consumes s if it is next, longest operators first at call sites.
func (p *parser) accept(s string) bool {
	p.skipSpace()
	if strings.HasPrefix(p.input[p.pos:], s) {
		p.pos += len(s)
		return true
	}
	return false
}

func bool01(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (p *parser) parseOr() (float64, error) {
	v, err := p.parseAnd()
	if err != nil {
		return 0, err
	}
	for p.accept("||") {
		r, err := p.parseAnd()
		if err != nil {
			return 0, err
		}
		v = bool01(v != 0 || r != 0)
	}
	return v, nil
}

func (p *parser) parseAnd() (float64, error) {
	v, err := p.parseCmp()
	if err != nil {
		return 0, err
	}
	for p.accept("&&") {
		r, err := p.parseCmp()
		if err != nil {
			return 0, err
		}
		v = bool01(v != 0 && r != 0)
	}
	return v, nil
}

func (p *parser) parseCmp() (float64, error) {
	v, err := p.parseSum()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	for _, op := range []string{"<=", ">=", "==", "!=", "<", ">", "="} {
		if p.accept(op) {
			r, err := p.parseSum()
			if err != nil {
				return 0, err
			}
			switch op {
			case "<":
				return bool01(v < r), nil
			case ">":
				return bool01(v > r), nil
			case "<=":
				return bool01(v <= r), nil
			case ">=":
				return bool01(v >= r), nil
			case "!=":
				return bool01(v != r), nil
			default: // "==" and the single "=" alias
				return bool01(v == r), nil
			}
		}
	}
	return v, nil
}

func (p *parser) parseSum() (float64, error) {
	v, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		switch {
		case p.accept("+"):
			r, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			v += r
		case p.accept("-"):
			r, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			v -= r
		default:
			return v, nil
		}
	}
}

func (p *parser) parseTerm() (float64, error) {
	v, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		switch {
		case p.accept("*"):
			r, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			v *= r
		case p.accept("/"):
			r, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			if r == 0 {
				return 0, evalErr(ErrCodeDivideByZero, p.expr, "division by zero")
			}
			v /= r
		default:
			return v, nil
		}
	}
}

func (p *parser) parseUnary() (float64, error) {
	p.skipSpace()
	if p.accept("!") {
		v, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		return bool01(v == 0), nil
	}
	if p.accept("-") {
		v, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		return -v, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (float64, error) {
	p.skipSpace()
	if p.accept("(") {
		v, err := p.parseOr()
		if err != nil {
			return 0, err
		}
		if !p.accept(")") {
			return 0, evalErr(ErrCodeSyntax, p.expr, "missing closing parenthesis")
		}
		return v, nil
	}
	start := p.pos
	for p.pos < len(p.input) && (p.input[p.pos] >= '0' && p.input[p.pos] <= '9' || p.input[p.pos] == '.') {
		p.pos++
	}
	if p.pos == start {
		return 0, evalErr(ErrCodeSyntax, p.expr, "expected a number at offset %d", start)
	}
	v, err := strconv.ParseFloat(p.input[start:p.pos], 64)
	if err != nil {
		return 0, evalErr(ErrCodeSyntax, p.expr, "bad number %q", p.input[start:p.pos])
	}
	return v, nil
}
