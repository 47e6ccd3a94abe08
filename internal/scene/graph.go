package scene

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/gyaneshwarpardhi/scenegraph/internal/nodeid"
)

var (
	// ErrIDInUse is returned when inserting a node whose ID is already live.
	ErrIDInUse = errors.New("node id already in use")
	// ErrNodeOwned is returned when inserting a node that belongs to a graph.
	ErrNodeOwned = errors.New("node already belongs to a graph")
	// ErrInvalidID is returned when inserting a node whose ID does not parse.
	ErrInvalidID = errors.New("invalid node id")
)

// Graph owns every node of a scene and keeps the reverse reference index in
// step with them.
//
// A Graph is single-threaded: callers that share one across goroutines must
// serialize access themselves.
type Graph struct {
	nodes   map[nodeid.ID]*Node
	alloc   *nodeid.Allocator
	index   refIndex
	ordinal uint64

	subs      map[nodeid.ID][]*subscription
	nextSub   int
	pending   []Event
	deferred  []func(*Graph)
	depth     int
	notifying bool
}

// New allocates an empty Graph with its own identifier allocator.
func New() *Graph {
	return &Graph{
		nodes: make(map[nodeid.ID]*Node),
		alloc: nodeid.NewAllocator(),
		index: newRefIndex(),
		subs:  make(map[nodeid.ID][]*subscription),
	}
}

// AddNode allocates a fresh ID for tag, stores a node with the given
// attributes (applied in key order) and returns the ID. tag must satisfy
// nodeid.ValidTag.
func (g *Graph) AddNode(tag string, attrs map[string]string) nodeid.ID {
	g.beginMutation()
	defer g.endMutation()

	n := NewNode(g.alloc.Allocate(tag), tag)
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		n.SetAttribute(k, attrs[k])
	}
	g.attach(n)
	return n.id
}

// InsertNode commits a detached node under its own ID, together with its
// references. It is how merged and restored nodes enter the graph.
func (g *Graph) InsertNode(n *Node) error {
	if n.owner != nil {
		return fmt.Errorf("insert %s: %w", n.id, ErrNodeOwned)
	}
	tag, seq, err := nodeid.Parse(string(n.id))
	if err != nil {
		return fmt.Errorf("insert %s: %w: %v", n.id, ErrInvalidID, err)
	}
	if g.IsIDInUse(n.id) {
		return fmt.Errorf("insert %s: %w", n.id, ErrIDInUse)
	}
	g.beginMutation()
	defer g.endMutation()

	g.alloc.Advance(tag, seq)
	g.attach(n)
	return nil
}

// Reserve makes sure the allocator will never issue id, without creating a
// node. References to id stay dangling until a node with that ID is inserted.
func (g *Graph) Reserve(id nodeid.ID) error {
	tag, seq, err := nodeid.Parse(string(id))
	if err != nil {
		return fmt.Errorf("reserve %s: %w: %v", id, ErrInvalidID, err)
	}
	g.alloc.Advance(tag, seq)
	return nil
}

func (g *Graph) attach(n *Node) {
	g.ordinal++
	n.ordinal = g.ordinal
	n.owner = g
	g.nodes[n.id] = n
	for _, role := range n.roleNames {
		g.index.add(n.id, role, n.roles[role])
		g.emit(Event{Kind: ReferencesChanged, Referrer: n.id, Role: role})
	}
	for _, r := range g.ReferencesTo(n.id) {
		g.emit(Event{Kind: TargetAdded, Referrer: r.ID, Role: r.Role, Target: n.id})
	}
}

// RemoveNode removes id from the graph. Role entries elsewhere that name id
// are kept and keep being indexed, so re-inserting the same ID reattaches
// them. Removing an unknown ID is a no-op.
func (g *Graph) RemoveNode(id nodeid.ID) {
	n, ok := g.nodes[id]
	if !ok {
		return
	}
	g.beginMutation()
	defer g.endMutation()

	for _, role := range n.roleNames {
		g.index.remove(id, role, n.roles[role])
	}
	delete(g.nodes, id)
	n.owner = nil
	for _, r := range g.ReferencesTo(id) {
		g.emit(Event{Kind: TargetRemoved, Referrer: r.ID, Role: r.Role, Target: id})
	}
}

// Node returns the live node for id.
func (g *Graph) Node(id nodeid.ID) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// IsIDInUse reports whether a live node holds id.
func (g *Graph) IsIDInUse(id nodeid.ID) bool {
	_, ok := g.nodes[id]
	return ok
}

// Len returns the number of live nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Nodes returns all live nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ordinal < out[j].ordinal })
	return out
}

// PeekNext exposes the allocator's next sequence number for tag.
func (g *Graph) PeekNext(tag string) int {
	return g.alloc.PeekNext(tag)
}

// ReferencesTo returns every (referrer, role) naming id, ordered by referrer
// insertion order then role name. It works for dangling targets too.
func (g *Graph) ReferencesTo(id nodeid.ID) []Referrer {
	m := g.index.referrers(id)
	out := make([]Referrer, 0, len(m))
	for r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		oi, oj := g.nodes[out[i].ID].ordinal, g.nodes[out[j].ID].ordinal
		if oi != oj {
			return oi < oj
		}
		return out[i].Role < out[j].Role
	})
	return out
}

// Dangling returns every referenced ID that no live node holds, sorted.
func (g *Graph) Dangling() []nodeid.ID {
	var out []nodeid.ID
	for _, t := range g.index.targets() {
		if !g.IsIDInUse(t) {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return out
}

// RewriteReference retargets every role entry naming oldID to newID and
// returns how many role lists changed. List order is preserved; a list that
// held no duplicates before the rewrite holds none after it.
func (g *Graph) RewriteReference(oldID, newID nodeid.ID) int {
	if oldID == newID {
		return 0
	}
	g.beginMutation()
	defer g.endMutation()

	changed := 0
	for _, r := range g.ReferencesTo(oldID) {
		n := g.nodes[r.ID]
		list := n.roles[r.Role]
		unique := !hasDuplicates(list)
		next := make([]nodeid.ID, 0, len(list))
		seen := make(map[nodeid.ID]bool, len(list))
		for _, t := range list {
			if t == oldID {
				t = newID
			}
			if unique && seen[t] {
				continue
			}
			seen[t] = true
			next = append(next, t)
		}
		if n.SetReference(r.Role, next) {
			changed++
		}
	}
	return changed
}

func hasDuplicates(list []nodeid.ID) bool {
	seen := make(map[nodeid.ID]bool, len(list))
	for _, t := range list {
		if seen[t] {
			return true
		}
		seen[t] = true
	}
	return false
}

// CheckIndex rebuilds the reference index from the nodes and reports the
// first difference from the maintained one.
func (g *Graph) CheckIndex() error {
	want := newRefIndex()
	for id, n := range g.nodes {
		for _, role := range n.roleNames {
			want.add(id, role, n.roles[role])
		}
	}
	return g.index.diff(want)
}

// referencesChanged is called by an owned node after a role list changed.
func (g *Graph) referencesChanged(n *Node, role string, old, targets []nodeid.ID) {
	if g == nil {
		return
	}
	g.index.remove(n.id, role, old)
	g.index.add(n.id, role, targets)
	g.emit(Event{Kind: ReferencesChanged, Referrer: n.id, Role: role})
}

// nodeModified is called by an owned node after its name or attributes changed.
func (g *Graph) nodeModified(n *Node) {
	if g == nil {
		return
	}
	for _, r := range g.ReferencesTo(n.id) {
		g.emit(Event{Kind: TargetModified, Referrer: r.ID, Role: r.Role, Target: n.id})
	}
}
