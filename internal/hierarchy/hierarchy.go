// Package hierarchy is a constrained view over a scene graph in which the
// "parent" role forms a forest: every node has at most one parent and no node
// is its own ancestor.
package hierarchy

import (
	"errors"
	"fmt"
	"slices"

	"github.com/gyaneshwarpardhi/scenegraph/internal/kind"
	"github.com/gyaneshwarpardhi/scenegraph/internal/nodeid"
	"github.com/gyaneshwarpardhi/scenegraph/internal/scene"
)

// Role is the reference role that stores the hierarchy parent.
const Role = kind.RoleParent

var (
	ErrCycle        = errors.New("parent assignment would create a cycle")
	ErrNodeNotFound = errors.New("node not found")
	// ErrUnsupportedKind is kind.ErrCapability, so one errors.Is check covers
	// hierarchy and typed-role rejections alike.
	ErrUnsupportedKind = kind.ErrCapability
)

// Hierarchy wraps a Graph. It holds no state of its own; children are
// answered from the graph's reference index.
type Hierarchy struct {
	g     *scene.Graph
	kinds *kind.Registry
}

// New creates a Hierarchy over g. kinds may be nil.
func New(g *scene.Graph, kinds *kind.Registry) *Hierarchy {
	return &Hierarchy{g: g, kinds: kinds}
}

// SetParent makes parent the hierarchy parent of child. It is rejected,
// leaving the graph untouched, when parent is child or one of its
// descendants.
//
// Both nodes must be live. A dangling parent can still enter the graph
// through a merge, which keeps a document's unresolved parent as declared;
// Parent reports it and AncestorChain stops there.
func (h *Hierarchy) SetParent(child, parent nodeid.ID) error {
	c, ok := h.g.Node(child)
	if !ok {
		return fmt.Errorf("set parent of %s: %w", child, ErrNodeNotFound)
	}
	p, ok := h.g.Node(parent)
	if !ok {
		return fmt.Errorf("set parent of %s to %s: %w", child, parent, ErrNodeNotFound)
	}
	if !h.kinds.Supports(c.Tag(), kind.CapHierarchy) {
		return fmt.Errorf("set parent of %s: %w (%s)", child, ErrUnsupportedKind, c.Tag())
	}
	if !h.kinds.Supports(p.Tag(), kind.CapHierarchy) {
		return fmt.Errorf("set parent of %s to %s: %w (%s)", child, parent, ErrUnsupportedKind, p.Tag())
	}
	if h.reaches(parent, child) {
		return fmt.Errorf("set parent of %s to %s: %w", child, parent, ErrCycle)
	}
	c.SetReference(Role, []nodeid.ID{parent})
	return nil
}

// ClearParent detaches child from its parent, making it a root.
func (h *Hierarchy) ClearParent(child nodeid.ID) error {
	c, ok := h.g.Node(child)
	if !ok {
		return fmt.Errorf("clear parent of %s: %w", child, ErrNodeNotFound)
	}
	c.SetReference(Role, nil)
	return nil
}

// CheckRetarget reports whether pointing every parent reference to from at
// to instead would keep the hierarchy a forest. It does not modify the graph.
func (h *Hierarchy) CheckRetarget(from, to nodeid.ID) error {
	if from == to {
		return nil
	}
	for _, r := range h.g.ReferencesTo(from) {
		if r.Role != Role {
			continue
		}
		if h.reaches(to, r.ID) {
			return fmt.Errorf("retarget parent of %s from %s to %s: %w", r.ID, from, to, ErrCycle)
		}
	}
	return nil
}

// reaches reports whether walking up from start passes through target.
func (h *Hierarchy) reaches(start, target nodeid.ID) bool {
	seen := make(map[nodeid.ID]bool)
	for cur := start; ; {
		if cur == target {
			return true
		}
		if seen[cur] {
			return false
		}
		seen[cur] = true
		next, ok := h.Parent(cur)
		if !ok {
			return false
		}
		cur = next
	}
}

// Parent returns the recorded parent of id. The parent may be dangling.
func (h *Hierarchy) Parent(id nodeid.ID) (nodeid.ID, bool) {
	n, ok := h.g.Node(id)
	if !ok {
		return nodeid.None, false
	}
	refs := n.References(Role)
	if len(refs) == 0 {
		return nodeid.None, false
	}
	return refs[0], true
}

// Children returns the nodes whose parent is id, in insertion order.
func (h *Hierarchy) Children(id nodeid.ID) []nodeid.ID {
	var out []nodeid.ID
	for _, r := range h.g.ReferencesTo(id) {
		if r.Role == Role {
			out = append(out, r.ID)
		}
	}
	return out
}

// AncestorChain returns the live ancestors of id followed by id itself,
// root first. The walk stops at a missing or dangling parent. An unknown id
// yields an empty chain.
func (h *Hierarchy) AncestorChain(id nodeid.ID) []nodeid.ID {
	if !h.g.IsIDInUse(id) {
		return nil
	}
	chain := []nodeid.ID{id}
	seen := map[nodeid.ID]bool{id: true}
	for cur := id; ; {
		p, ok := h.Parent(cur)
		if !ok || !h.g.IsIDInUse(p) || seen[p] {
			break
		}
		seen[p] = true
		chain = append(chain, p)
		cur = p
	}
	slices.Reverse(chain)
	return chain
}

// Depth returns the number of live ancestors of id; roots have depth 0.
func (h *Hierarchy) Depth(id nodeid.ID) int {
	chain := h.AncestorChain(id)
	if len(chain) == 0 {
		return 0
	}
	return len(chain) - 1
}

// Roots returns every hierarchy-capable node whose parent is unset or does
// not resolve, in insertion order.
func (h *Hierarchy) Roots() []nodeid.ID {
	var out []nodeid.ID
	for _, n := range h.g.Nodes() {
		if !h.kinds.Supports(n.Tag(), kind.CapHierarchy) {
			continue
		}
		p, ok := h.Parent(n.ID())
		if !ok || !h.g.IsIDInUse(p) {
			out = append(out, n.ID())
		}
	}
	return out
}

// Walk visits id and its descendants depth first, children in insertion
// order. Returning false from fn skips the node's subtree.
func (h *Hierarchy) Walk(id nodeid.ID, fn func(id nodeid.ID, depth int) bool) {
	seen := make(map[nodeid.ID]bool)
	var visit func(nodeid.ID, int)
	visit = func(cur nodeid.ID, depth int) {
		if seen[cur] {
			return
		}
		seen[cur] = true
		if !fn(cur, depth) {
			return
		}
		for _, c := range h.Children(cur) {
			visit(c, depth+1)
		}
	}
	visit(id, 0)
}
