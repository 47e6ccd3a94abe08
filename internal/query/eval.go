package query

import (
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/gyaneshwarpardhi/scenegraph/internal/document"
)

// Match reports whether p satisfies the query. A missing attribute compares
// unequal to everything and never satisfies an ordering.
func (q *Query) Match(p document.ProtoNode) bool {
	return eval(q.root, p)
}

// Filter returns the nodes of nodes that match, keeping their order.
func (q *Query) Filter(nodes []document.ProtoNode) []document.ProtoNode {
	out := make([]document.ProtoNode, 0, len(nodes))
	for _, n := range nodes {
		if q.Match(n) {
			out = append(out, n)
		}
	}
	return out
}

func eval(n node, p document.ProtoNode) bool {
	switch e := n.(type) {
	case *logical:
		if e.and {
			return eval(e.left, p) && eval(e.right, p)
		}
		return eval(e.left, p) || eval(e.right, p)
	case *not:
		return !eval(e.inner, p)
	case *comparison:
		return e.eval(p)
	}
	return false
}

func (c *comparison) eval(p document.ProtoNode) bool {
	if isListField(c.field) {
		return slices.Contains(listField(c.field, p), c.value.str)
	}
	v, ok := scalarField(c.field, p)
	if !ok {
		return c.op == OpNeq
	}
	switch c.op {
	case OpEq:
		return c.equal(v)
	case OpNeq:
		return !c.equal(v)
	case OpContains:
		return strings.Contains(v, c.value.str)
	case OpMatches:
		return c.re.MatchString(v)
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return false
	}
	switch c.op {
	case OpGt:
		return f > c.value.num
	case OpGte:
		return f >= c.value.num
	case OpLt:
		return f < c.value.num
	case OpLte:
		return f <= c.value.num
	}
	return false
}

// equal compares numerically when both sides are numbers and
// case-insensitively for booleans.
func (c *comparison) equal(v string) bool {
	switch {
	case c.value.isNum:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return err == nil && math.Abs(f-c.value.num) < 1e-9
	case c.value.isBool:
		return strings.EqualFold(v, c.value.str)
	}
	return v == c.value.str
}

func scalarField(path []string, p document.ProtoNode) (string, bool) {
	switch path[0] {
	case "id":
		return p.ID, true
	case "type":
		return p.TypeTag, true
	case "name":
		return p.Name, true
	case "attributes":
		v, ok := p.Attributes[path[1]]
		return v, ok
	}
	return "", false
}

func listField(path []string, p document.ProtoNode) []string {
	if path[0] == "roles" {
		return p.Roles()
	}
	return p.References[path[1]]
}
