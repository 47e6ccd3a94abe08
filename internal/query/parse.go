// Package query implements the node selection language used by
// GET /v1/nodes?where=...
//
//	type == "Model" AND attributes.visible == true
//	name matches "^liver" OR references.display contains "ModelDisplay3"
//	NOT (attributes.opacity < 0.5)
//
// Fields are id, type, name, roles, attributes.<key> and references.<role>.
// roles and references.<role> are lists and only support contains.
package query

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Operator is a comparison operator.
type Operator string

const (
	OpEq       Operator = "=="
	OpNeq      Operator = "!="
	OpGt       Operator = ">"
	OpGte      Operator = ">="
	OpLt       Operator = "<"
	OpLte      Operator = "<="
	OpContains Operator = "contains"
	OpMatches  Operator = "matches"
)

type node interface{ isNode() }

type logical struct {
	and         bool
	left, right node
}

type not struct{ inner node }

type comparison struct {
	field []string
	op    Operator
	value literal
	re    *regexp.Regexp // compiled once for matches
}

func (*logical) isNode()    {}
func (*not) isNode()        {}
func (*comparison) isNode() {}

// literal is a constant from the query text.
type literal struct {
	str    string
	num    float64
	isNum  bool
	isBool bool
}

type tokenKind int

const (
	tokWord tokenKind = iota
	tokOp
	tokString
	tokNumber
	tokLParen
	tokRParen
	tokEOF
)

type token struct {
	kind tokenKind
	val  string
	pos  int
}

func tokenize(src string) ([]token, error) {
	var out []token
	for i := 0; i < len(src); {
		ch := src[i]
		switch {
		case unicode.IsSpace(rune(ch)):
			i++
		case ch == '(':
			out = append(out, token{tokLParen, "(", i})
			i++
		case ch == ')':
			out = append(out, token{tokRParen, ")", i})
			i++
		case strings.ContainsRune("=!<>", rune(ch)):
			n := 1
			if i+1 < len(src) && src[i+1] == '=' {
				n = 2
			}
			op := src[i : i+n]
			if op == "=" || op == "!" {
				return nil, fmt.Errorf("unknown operator %q at position %d", op, i)
			}
			out = append(out, token{tokOp, op, i})
			i += n
		case ch == '"' || ch == '\'':
			var b strings.Builder
			j := i + 1
			for ; j < len(src) && src[j] != ch; j++ {
				if src[j] == '\\' && j+1 < len(src) {
					j++
				}
				b.WriteByte(src[j])
			}
			if j >= len(src) {
				return nil, fmt.Errorf("unterminated string starting at position %d", i)
			}
			out = append(out, token{tokString, b.String(), i})
			i = j + 1
		case unicode.IsDigit(rune(ch)) || ch == '-' || ch == '.':
			j := i + 1
			for j < len(src) && (unicode.IsDigit(rune(src[j])) || src[j] == '.') {
				j++
			}
			out = append(out, token{tokNumber, src[i:j], i})
			i = j
		case unicode.IsLetter(rune(ch)) || ch == '_':
			j := i
			for j < len(src) && (unicode.IsLetter(rune(src[j])) || unicode.IsDigit(rune(src[j])) || strings.ContainsRune("_.-", rune(src[j]))) {
				j++
			}
			out = append(out, token{tokWord, src[i:j], i})
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q at position %d", ch, i)
		}
	}
	return append(out, token{kind: tokEOF, pos: len(src)}), nil
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token    { return p.tokens[p.pos] }
func (p *parser) consume() token { t := p.tokens[p.pos]; p.pos++; return t }

func (p *parser) keyword(kw string) bool {
	t := p.peek()
	return t.kind == tokWord && strings.EqualFold(t.val, kw)
}

// Query is a parsed selection expression. The zero value is not usable;
// call Parse.
type Query struct {
	src  string
	root node
}

// String returns the source text.
func (q *Query) String() string { return q.src }

// Parse parses a selection expression.
func Parse(src string) (*Query, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q at position %d", t.val, t.pos)
	}
	return &Query{src: src, root: root}, nil
}

// or = and ( "OR" and )*
func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.keyword("OR") {
		p.consume()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &logical{left: left, right: right}
	}
	return left, nil
}

// and = unary ( "AND" unary )*
func (p *parser) parseAnd() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.keyword("AND") {
		p.consume()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &logical{and: true, left: left, right: right}
	}
	return left, nil
}

// unary = "NOT" unary | "(" or ")" | comparison
func (p *parser) parseUnary() (node, error) {
	if p.keyword("NOT") {
		p.consume()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &not{inner: inner}, nil
	}
	if p.peek().kind == tokLParen {
		p.consume()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if t := p.consume(); t.kind != tokRParen {
			return nil, fmt.Errorf("expected \")\" at position %d", t.pos)
		}
		return inner, nil
	}
	return p.parseComparison()
}

// comparison = field operator literal
func (p *parser) parseComparison() (node, error) {
	f := p.consume()
	if f.kind != tokWord {
		return nil, fmt.Errorf("expected field name at position %d, got %q", f.pos, f.val)
	}
	field := strings.SplitN(f.val, ".", 2)
	if err := checkField(field); err != nil {
		return nil, fmt.Errorf("position %d: %w", f.pos, err)
	}

	c := &comparison{field: field}
	switch t := p.consume(); {
	case t.kind == tokOp:
		c.op = Operator(t.val)
	case t.kind == tokWord && strings.EqualFold(t.val, string(OpContains)):
		c.op = OpContains
	case t.kind == tokWord && strings.EqualFold(t.val, string(OpMatches)):
		c.op = OpMatches
	default:
		return nil, fmt.Errorf("expected operator at position %d, got %q", t.pos, t.val)
	}
	if isListField(field) && c.op != OpContains {
		return nil, fmt.Errorf("field %s is a list and only supports contains", f.val)
	}

	v, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}
	c.value = v
	switch c.op {
	case OpGt, OpGte, OpLt, OpLte:
		if !v.isNum {
			return nil, fmt.Errorf("operator %s needs a number, got %q", c.op, v.str)
		}
	case OpMatches:
		if c.re, err = regexp.Compile(v.str); err != nil {
			return nil, fmt.Errorf("matches: invalid pattern %q: %w", v.str, err)
		}
	}
	return c, nil
}

func (p *parser) parseLiteral() (literal, error) {
	t := p.consume()
	switch t.kind {
	case tokString:
		return literal{str: t.val}, nil
	case tokNumber:
		f, err := strconv.ParseFloat(t.val, 64)
		if err != nil {
			return literal{}, fmt.Errorf("invalid number %q at position %d", t.val, t.pos)
		}
		return literal{str: t.val, num: f, isNum: true}, nil
	case tokWord:
		if b := strings.ToLower(t.val); b == "true" || b == "false" {
			return literal{str: b, isBool: true}, nil
		}
		return literal{str: t.val}, nil // bare word
	}
	return literal{}, fmt.Errorf("expected a value at position %d, got %q", t.pos, t.val)
}

func checkField(path []string) error {
	switch path[0] {
	case "id", "type", "name", "roles":
		if len(path) == 1 {
			return nil
		}
	case "attributes", "references":
		if len(path) == 2 && path[1] != "" {
			return nil
		}
	}
	return fmt.Errorf("unknown field %q", strings.Join(path, "."))
}

func isListField(path []string) bool {
	return path[0] == "roles" || path[0] == "references"
}
