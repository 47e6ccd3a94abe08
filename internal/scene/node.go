package scene

import (
	"slices"

	"github.com/gyaneshwarpardhi/scenegraph/internal/nodeid"
)

// Attribute is one entry of a node's ordered attribute bag.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Node is a typed record in the scene. It references other nodes by ID only;
// it never owns them.
//
// A Node can be used on its own. Once inserted into a Graph, every mutation
// is reported to the Graph synchronously so its reference index and
// subscribers stay in step.
type Node struct {
	id   nodeid.ID
	tag  string
	name string

	attrKeys []string
	attrs    map[string]string

	roleNames []string
	roles     map[string][]nodeid.ID

	owner   *Graph
	ordinal uint64 // insertion order within owner
}

// NewNode creates a detached node.
func NewNode(id nodeid.ID, tag string) *Node {
	return &Node{
		id:    id,
		tag:   tag,
		attrs: make(map[string]string),
		roles: make(map[string][]nodeid.ID),
	}
}

func (n *Node) ID() nodeid.ID { return n.id }
func (n *Node) Tag() string   { return n.tag }
func (n *Node) Name() string  { return n.name }

// Owned reports whether the node currently belongs to a graph.
func (n *Node) Owned() bool { return n.owner != nil }

// SetName changes the display name. Names need not be unique.
func (n *Node) SetName(name string) bool {
	if n.name == name {
		return false
	}
	n.owner.beginMutation()
	defer n.owner.endMutation()
	n.name = name
	n.owner.nodeModified(n)
	return true
}

// SetAttribute sets key to value, appending the key if it is new.
func (n *Node) SetAttribute(key, value string) bool {
	old, ok := n.attrs[key]
	if ok && old == value {
		return false
	}
	n.owner.beginMutation()
	defer n.owner.endMutation()
	if !ok {
		n.attrKeys = append(n.attrKeys, key)
	}
	n.attrs[key] = value
	n.owner.nodeModified(n)
	return true
}

// Attribute returns the value stored under key.
func (n *Node) Attribute(key string) (string, bool) {
	v, ok := n.attrs[key]
	return v, ok
}

// RemoveAttribute deletes key. It reports whether the key was present.
func (n *Node) RemoveAttribute(key string) bool {
	if _, ok := n.attrs[key]; !ok {
		return false
	}
	n.owner.beginMutation()
	defer n.owner.endMutation()
	delete(n.attrs, key)
	n.attrKeys = slices.DeleteFunc(n.attrKeys, func(k string) bool { return k == key })
	n.owner.nodeModified(n)
	return true
}

// Attributes returns the attribute bag in insertion order.
func (n *Node) Attributes() []Attribute {
	out := make([]Attribute, len(n.attrKeys))
	for i, k := range n.attrKeys {
		out[i] = Attribute{Key: k, Value: n.attrs[k]}
	}
	return out
}

// AttributeMap returns a copy of the attribute bag.
func (n *Node) AttributeMap() map[string]string {
	out := make(map[string]string, len(n.attrs))
	for k, v := range n.attrs {
		out[k] = v
	}
	return out
}

// SetReference replaces the full target list of role and reports whether it
// changed. An empty list removes the role. Single-valued roles are plain
// lists of length ≤ 1; enforcing that is up to the caller.
func (n *Node) SetReference(role string, targets []nodeid.ID) bool {
	old := n.roles[role]
	if slices.Equal(old, targets) {
		return false
	}
	n.owner.beginMutation()
	defer n.owner.endMutation()

	if len(targets) == 0 {
		delete(n.roles, role)
		n.roleNames = slices.DeleteFunc(n.roleNames, func(r string) bool { return r == role })
	} else {
		if _, ok := n.roles[role]; !ok {
			n.roleNames = append(n.roleNames, role)
		}
		n.roles[role] = slices.Clone(targets)
	}
	n.owner.referencesChanged(n, role, old, targets)
	return true
}

// References returns the targets of role, or an empty list if it was never set.
func (n *Node) References(role string) []nodeid.ID {
	return slices.Clone(n.roles[role])
}

// Roles returns the names of all non-empty roles in the order they were first set.
func (n *Node) Roles() []string {
	return slices.Clone(n.roleNames)
}

// Clone returns a detached deep copy of n.
func (n *Node) Clone() *Node {
	c := NewNode(n.id, n.tag)
	c.name = n.name
	c.attrKeys = slices.Clone(n.attrKeys)
	for k, v := range n.attrs {
		c.attrs[k] = v
	}
	c.roleNames = slices.Clone(n.roleNames)
	for r, ts := range n.roles {
		c.roles[r] = slices.Clone(ts)
	}
	return c
}
