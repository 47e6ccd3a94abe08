package document

import (
	"maps"
	"slices"
	"sort"

	"github.com/gyaneshwarpardhi/scenegraph/internal/nodeid"
	"github.com/gyaneshwarpardhi/scenegraph/internal/scene"
)

// CurrentVersion is written into exported documents.
const CurrentVersion = "1"

// Document is the parsed form of a serialized scene: proto-nodes in document
// order.
type Document struct {
	Version string      `yaml:"version" json:"version"`
	Nodes   []ProtoNode `yaml:"nodes" json:"nodes"`
}

// ProtoNode is one node as declared by a document, before its ID has been
// checked against a target graph. References name peer nodes by their
// declared IDs; the hierarchy parent is an ordinary role named "parent".
type ProtoNode struct {
	TypeTag    string              `yaml:"type" json:"type" validate:"required,typetag"`
	ID         string              `yaml:"id" json:"id" validate:"required,nodeid"`
	Name       string              `yaml:"name,omitempty" json:"name,omitempty"`
	Attributes map[string]string   `yaml:"attributes,omitempty" json:"attributes,omitempty" validate:"dive,keys,attrkey,endkeys"`
	References map[string][]string `yaml:"references,omitempty" json:"references,omitempty" validate:"dive,keys,rolename,endkeys,dive,nodeid"`
}

// Roles returns the reference role names in sorted order.
func (p ProtoNode) Roles() []string {
	out := make([]string, 0, len(p.References))
	for r := range p.References {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Remap returns a copy of p whose own ID and every reference target found in
// table are replaced by the mapped value. Targets missing from table are
// kept as they are.
func (p ProtoNode) Remap(table map[nodeid.ID]nodeid.ID) ProtoNode {
	out := ProtoNode{
		TypeTag: p.TypeTag,
		ID:      lookup(table, p.ID),
		Name:    p.Name,
	}
	if p.Attributes != nil {
		out.Attributes = make(map[string]string, len(p.Attributes))
		for k, v := range p.Attributes {
			out.Attributes[k] = v
		}
	}
	if p.References != nil {
		out.References = make(map[string][]string, len(p.References))
		for role, targets := range p.References {
			rewritten := make([]string, len(targets))
			for i, t := range targets {
				rewritten[i] = lookup(table, t)
			}
			out.References[role] = rewritten
		}
	}
	return out
}

// Equivalent reports whether b is a, node for node, once a's ids and
// reference targets have been renamed through mapping. Absent and empty
// attribute or reference maps compare equal.
func Equivalent(a, b []ProtoNode, mapping map[nodeid.ID]nodeid.ID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !sameProto(a[i].Remap(mapping), b[i]) {
			return false
		}
	}
	return true
}

func sameProto(x, y ProtoNode) bool {
	if x.TypeTag != y.TypeTag || x.ID != y.ID || x.Name != y.Name {
		return false
	}
	if !maps.Equal(x.Attributes, y.Attributes) || len(x.References) != len(y.References) {
		return false
	}
	for role, targets := range x.References {
		other, ok := y.References[role]
		if !ok || !slices.Equal(targets, other) {
			return false
		}
	}
	return true
}

func lookup(table map[nodeid.ID]nodeid.ID, raw string) string {
	if final, ok := table[nodeid.ID(raw)]; ok {
		return string(final)
	}
	return raw
}

// Build creates a detached scene node from p. Attributes are applied in key
// order and roles in name order so the result does not depend on map
// iteration.
func (p ProtoNode) Build() *scene.Node {
	n := scene.NewNode(nodeid.ID(p.ID), p.TypeTag)
	n.SetName(p.Name)
	keys := make([]string, 0, len(p.Attributes))
	for k := range p.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		n.SetAttribute(k, p.Attributes[k])
	}
	for _, role := range p.Roles() {
		n.SetReference(role, nodeid.FromStrings(p.References[role]))
	}
	return n
}

// FromNode converts a scene node to its document form.
func FromNode(n *scene.Node) ProtoNode {
	p := ProtoNode{TypeTag: n.Tag(), ID: string(n.ID()), Name: n.Name()}
	if attrs := n.AttributeMap(); len(attrs) > 0 {
		p.Attributes = attrs
	}
	for _, role := range n.Roles() {
		if p.References == nil {
			p.References = make(map[string][]string)
		}
		p.References[role] = nodeid.Strings(n.References(role))
	}
	return p
}

// Export snapshots every node of g, in insertion order.
func Export(g *scene.Graph) *Document {
	nodes := g.Nodes()
	doc := &Document{Version: CurrentVersion, Nodes: make([]ProtoNode, 0, len(nodes))}
	for _, n := range nodes {
		doc.Nodes = append(doc.Nodes, FromNode(n))
	}
	return doc
}
