package expr

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/goliatone/go-formbuilder/internal/coerce"
)

// Evaluator is a small, dependency-free arithmetic evaluator for custom
// derived-field formulas. It never executes code: the grammar is limited to
//
// - numeric literals: `3`, `2.5`, `.5`, `1e3`
// - binary operators: `+`, `-`, `*`, `/`, `%`
// - unary sign: `-a`, `+a`
// - parentheses: `(a + b) * 2`
// - named references: `price * qty`, resolved from Context.Values
//
// Blank references evaluate to 0; unknown references and references holding
// non-numeric text are errors. Division by zero and non-finite results are errors.
type Evaluator struct{}

// Context supplies the values named references resolve against.
type Context struct {
	Values map[string]any
}

// New returns an Evaluator.
func New() *Evaluator { return &Evaluator{} }

// Eval parses and evaluates expression in one step.
func (e *Evaluator) Eval(expression string, ctx Context) (float64, error) {
	compiled, err := Parse(expression)
	if err != nil {
		return 0, err
	}
	return compiled.Eval(ctx)
}

// Expression is a parsed formula that can be evaluated repeatedly.
type Expression struct {
	root node
	refs []string
}

// Parse compiles expression into an Expression.
func Parse(expression string) (*Expression, error) {
	trimmed := strings.TrimSpace(expression)
	if trimmed == "" {
		return nil, errors.New("derived/expr: empty expression")
	}
	tokens, err := tokenize(trimmed)
	if err != nil {
		return nil, err
	}
	stream := &tokenStream{tokens: tokens}
	root, err := parseAdditive(stream, 0)
	if err != nil {
		return nil, err
	}
	if stream.pos < len(stream.tokens) {
		return nil, fmt.Errorf("derived/expr: unexpected token %q", stream.tokens[stream.pos].raw)
	}
	return &Expression{root: root, refs: collectRefs(tokens)}, nil
}

// References lists the identifiers the expression reads, in first-use order.
func (x *Expression) References() []string {
	if x == nil {
		return nil
	}
	return append([]string(nil), x.refs...)
}

// Eval evaluates the expression against ctx.
func (x *Expression) Eval(ctx Context) (float64, error) {
	if x == nil || x.root == nil {
		return 0, errors.New("derived/expr: empty expression")
	}
	result, err := x.root.eval(ctx)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0, errors.New("derived/expr: result is not a finite number")
	}
	return result, nil
}

const maxDepth = 64

type tokenKind int

const (
	tokenNumber tokenKind = iota
	tokenIdentifier
	tokenPlus
	tokenMinus
	tokenStar
	tokenSlash
	tokenPercent
	tokenLParen
	tokenRParen
)

type token struct {
	kind tokenKind
	raw  string
}

func tokenize(input string) ([]token, error) {
	var tokens []token
	i := 0

	for i < len(input) {
		ch := input[i]
		if ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' {
			i++
			continue
		}

		switch ch {
		case '+':
			tokens = append(tokens, token{kind: tokenPlus, raw: "+"})
			i++
			continue
		case '-':
			tokens = append(tokens, token{kind: tokenMinus, raw: "-"})
			i++
			continue
		case '*':
			tokens = append(tokens, token{kind: tokenStar, raw: "*"})
			i++
			continue
		case '/':
			tokens = append(tokens, token{kind: tokenSlash, raw: "/"})
			i++
			continue
		case '%':
			tokens = append(tokens, token{kind: tokenPercent, raw: "%"})
			i++
			continue
		case '(':
			tokens = append(tokens, token{kind: tokenLParen, raw: "("})
			i++
			continue
		case ')':
			tokens = append(tokens, token{kind: tokenRParen, raw: ")"})
			i++
			continue
		}

		switch {
		case isDigit(ch) || ch == '.':
			start := i
			for i < len(input) && (isDigit(input[i]) || input[i] == '.') {
				i++
			}
			if i < len(input) && (input[i] == 'e' || input[i] == 'E') {
				j := i + 1
				if j < len(input) && (input[j] == '+' || input[j] == '-') {
					j++
				}
				if j < len(input) && isDigit(input[j]) {
					for j < len(input) && isDigit(input[j]) {
						j++
					}
					i = j
				}
			}
			raw := input[start:i]
			if _, err := strconv.ParseFloat(raw, 64); err != nil {
				return nil, fmt.Errorf("derived/expr: invalid number literal %q", raw)
			}
			tokens = append(tokens, token{kind: tokenNumber, raw: raw})
		case isIdentStart(ch):
			start := i
			for i < len(input) && isIdentPart(input[i]) {
				i++
			}
			tokens = append(tokens, token{kind: tokenIdentifier, raw: input[start:i]})
		default:
			return nil, fmt.Errorf("derived/expr: unexpected character %q", string(ch))
		}
	}

	return tokens, nil
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch byte) bool {
	return ch == '_' || ch == '$' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch) || ch == '.'
}

func collectRefs(tokens []token) []string {
	var refs []string
	seen := make(map[string]struct{})
	for _, tok := range tokens {
		if tok.kind != tokenIdentifier {
			continue
		}
		if _, ok := seen[tok.raw]; ok {
			continue
		}
		seen[tok.raw] = struct{}{}
		refs = append(refs, tok.raw)
	}
	return refs
}

type node interface {
	eval(ctx Context) (float64, error)
}

type numberNode struct {
	value float64
}

func (n numberNode) eval(Context) (float64, error) {
	return n.value, nil
}

type refNode struct {
	name string
}

func (n refNode) eval(ctx Context) (float64, error) {
	value, ok := ctx.Values[n.name]
	if !ok {
		return 0, fmt.Errorf("derived/expr: unknown reference %q", n.name)
	}
	if coerce.Empty(value) {
		return 0, nil
	}
	number, ok := coerce.StrictFloat(value)
	if !ok {
		return 0, fmt.Errorf("derived/expr: reference %q is not numeric", n.name)
	}
	return number, nil
}

type negateNode struct {
	inner node
}

func (n negateNode) eval(ctx Context) (float64, error) {
	value, err := n.inner.eval(ctx)
	if err != nil {
		return 0, err
	}
	return -value, nil
}

type binaryNode struct {
	op    tokenKind
	left  node
	right node
}

func (n binaryNode) eval(ctx Context) (float64, error) {
	left, err := n.left.eval(ctx)
	if err != nil {
		return 0, err
	}
	right, err := n.right.eval(ctx)
	if err != nil {
		return 0, err
	}
	switch n.op {
	case tokenPlus:
		return left + right, nil
	case tokenMinus:
		return left - right, nil
	case tokenStar:
		return left * right, nil
	case tokenSlash:
		if right == 0 {
			return 0, errors.New("derived/expr: division by zero")
		}
		return left / right, nil
	case tokenPercent:
		if right == 0 {
			return 0, errors.New("derived/expr: division by zero")
		}
		return math.Mod(left, right), nil
	default:
		return 0, errors.New("derived/expr: unsupported operator")
	}
}

type tokenStream struct {
	tokens []token
	pos    int
}

func parseAdditive(stream *tokenStream, depth int) (node, error) {
	left, err := parseMultiplicative(stream, depth)
	if err != nil {
		return nil, err
	}
	for {
		op, ok := stream.matchAny(tokenPlus, tokenMinus)
		if !ok {
			return left, nil
		}
		right, err := parseMultiplicative(stream, depth)
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

func parseMultiplicative(stream *tokenStream, depth int) (node, error) {
	left, err := parseUnary(stream, depth)
	if err != nil {
		return nil, err
	}
	for {
		op, ok := stream.matchAny(tokenStar, tokenSlash, tokenPercent)
		if !ok {
			return left, nil
		}
		right, err := parseUnary(stream, depth)
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

func parseUnary(stream *tokenStream, depth int) (node, error) {
	if depth > maxDepth {
		return nil, errors.New("derived/expr: expression nested too deeply")
	}
	if stream.match(tokenMinus) {
		inner, err := parseUnary(stream, depth+1)
		if err != nil {
			return nil, err
		}
		return negateNode{inner: inner}, nil
	}
	if stream.match(tokenPlus) {
		return parseUnary(stream, depth+1)
	}
	return parsePrimary(stream, depth)
}

func parsePrimary(stream *tokenStream, depth int) (node, error) {
	if stream.match(tokenLParen) {
		inner, err := parseAdditive(stream, depth+1)
		if err != nil {
			return nil, err
		}
		if !stream.match(tokenRParen) {
			return nil, errors.New("derived/expr: missing closing ')'")
		}
		return inner, nil
	}

	if stream.pos >= len(stream.tokens) {
		return nil, errors.New("derived/expr: unexpected end of expression")
	}
	tok := stream.tokens[stream.pos]
	switch tok.kind {
	case tokenNumber:
		stream.pos++
		value, err := strconv.ParseFloat(tok.raw, 64)
		if err != nil {
			return nil, fmt.Errorf("derived/expr: invalid number literal %q", tok.raw)
		}
		return numberNode{value: value}, nil
	case tokenIdentifier:
		stream.pos++
		return refNode{name: tok.raw}, nil
	default:
		return nil, fmt.Errorf("derived/expr: expected operand, got %q", tok.raw)
	}
}

func (s *tokenStream) match(kind tokenKind) bool {
	if s.pos >= len(s.tokens) {
		return false
	}
	if s.tokens[s.pos].kind != kind {
		return false
	}
	s.pos++
	return true
}

func (s *tokenStream) matchAny(kinds ...tokenKind) (tokenKind, bool) {
	if s.pos >= len(s.tokens) {
		return 0, false
	}
	current := s.tokens[s.pos].kind
	for _, kind := range kinds {
		if current == kind {
			s.pos++
			return kind, true
		}
	}
	return 0, false
}
