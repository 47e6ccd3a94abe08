package hierarchy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/scenegraph/internal/hierarchy"
	"github.com/gyaneshwarpardhi/scenegraph/internal/kind"
	"github.com/gyaneshwarpardhi/scenegraph/internal/nodeid"
	"github.com/gyaneshwarpardhi/scenegraph/internal/scene"
)

// buildTree creates Folder1 ← {Model1 ← Model3, Model2}.
func buildTree(t *testing.T) (*scene.Graph, *hierarchy.Hierarchy) {
	t.Helper()
	g := scene.New()
	h := hierarchy.New(g, kind.Default())
	root := g.AddNode("Folder", nil)
	a := g.AddNode("Model", nil)
	b := g.AddNode("Model", nil)
	c := g.AddNode("Model", nil)
	require.NoError(t, h.SetParent(a, root))
	require.NoError(t, h.SetParent(b, root))
	require.NoError(t, h.SetParent(c, a))
	return g, h
}

func parents(g *scene.Graph) map[nodeid.ID][]nodeid.ID {
	out := make(map[nodeid.ID][]nodeid.ID)
	for _, n := range g.Nodes() {
		out[n.ID()] = n.References(hierarchy.Role)
	}
	return out
}

func TestQueries(t *testing.T) {
	_, h := buildTree(t)

	p, ok := h.Parent("Model3")
	require.True(t, ok)
	assert.Equal(t, nodeid.ID("Model1"), p)
	_, ok = h.Parent("Folder1")
	assert.False(t, ok)

	assert.Equal(t, []nodeid.ID{"Model1", "Model2"}, h.Children("Folder1"))
	assert.Equal(t, []nodeid.ID{"Model3"}, h.Children("Model1"))
	assert.Empty(t, h.Children("Model3"))

	assert.Equal(t, []nodeid.ID{"Folder1", "Model1", "Model3"}, h.AncestorChain("Model3"))
	assert.Equal(t, 2, h.Depth("Model3"))
	assert.Equal(t, 0, h.Depth("Folder1"))
	assert.Empty(t, h.AncestorChain("Model99"))
	assert.Equal(t, []nodeid.ID{"Folder1"}, h.Roots())
}

func TestSetParent_RejectsCycles(t *testing.T) {
	testCases := []struct {
		name   string
		child  nodeid.ID
		parent nodeid.ID
	}{
		{name: "self", child: "Model1", parent: "Model1"},
		{name: "direct child", child: "Model1", parent: "Model3"},
		{name: "grandchild", child: "Folder1", parent: "Model3"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			g, h := buildTree(t)
			before := parents(g)

			err := h.SetParent(tc.child, tc.parent)
			assert.ErrorIs(t, err, hierarchy.ErrCycle)
			assert.Equal(t, before, parents(g))
			require.NoError(t, g.CheckIndex())
		})
	}
}

func TestSetParent_Reparent(t *testing.T) {
	g, h := buildTree(t)
	require.NoError(t, h.SetParent("Model3", "Model2"))

	assert.Empty(t, h.Children("Model1"))
	assert.Equal(t, []nodeid.ID{"Model3"}, h.Children("Model2"))
	require.NoError(t, g.CheckIndex())
}

func TestSetParent_Errors(t *testing.T) {
	g, h := buildTree(t)
	disp := g.AddNode("ModelDisplay", nil)

	assert.ErrorIs(t, h.SetParent("Model9", "Folder1"), hierarchy.ErrNodeNotFound)
	assert.ErrorIs(t, h.SetParent("Model1", "Folder9"), hierarchy.ErrNodeNotFound)
	assert.ErrorIs(t, h.SetParent(disp, "Folder1"), hierarchy.ErrUnsupportedKind)
	assert.ErrorIs(t, h.SetParent("Model1", disp), hierarchy.ErrUnsupportedKind)
	assert.ErrorIs(t, h.ClearParent("Model9"), hierarchy.ErrNodeNotFound)
}

func TestClearParent(t *testing.T) {
	_, h := buildTree(t)
	require.NoError(t, h.ClearParent("Model1"))

	assert.Equal(t, []nodeid.ID{"Folder1", "Model1"}, h.Roots())
	assert.Equal(t, 1, h.Depth("Model3"))
}

func TestDanglingParent(t *testing.T) {
	g, h := buildTree(t)
	g.RemoveNode("Model1")

	p, ok := h.Parent("Model3")
	require.True(t, ok)
	assert.Equal(t, nodeid.ID("Model1"), p, "parent entry is kept")
	assert.Equal(t, []nodeid.ID{"Model3"}, h.AncestorChain("Model3"))
	assert.Equal(t, 0, h.Depth("Model3"))
	assert.Contains(t, h.Roots(), nodeid.ID("Model3"))
	assert.Equal(t, []nodeid.ID{"Model3"}, h.Children("Model1"), "children of a dangling id stay queryable")
}

func TestWalk(t *testing.T) {
	_, h := buildTree(t)

	var visited []nodeid.ID
	var depths []int
	h.Walk("Folder1", func(id nodeid.ID, depth int) bool {
		visited = append(visited, id)
		depths = append(depths, depth)
		return id != "Model2"
	})
	assert.Equal(t, []nodeid.ID{"Folder1", "Model1", "Model3", "Model2"}, visited)
	assert.Equal(t, []int{0, 1, 2, 1}, depths)
}

func TestNilRegistryIsPermissive(t *testing.T) {
	g := scene.New()
	h := hierarchy.New(g, nil)
	a := g.AddNode("Anything", nil)
	b := g.AddNode("Other", nil)
	assert.NoError(t, h.SetParent(a, b))
}

func TestDanglingParent_OnlyFromDocuments(t *testing.T) {
	g, h := buildTree(t)
	before := parents(g)

	assert.ErrorIs(t, h.SetParent("Model2", "Folder7"), hierarchy.ErrNodeNotFound)
	assert.Equal(t, before, parents(g))

	// A node inserted with an unresolved parent keeps it.
	n := scene.NewNode("Model9", "Model")
	n.SetReference(hierarchy.Role, []nodeid.ID{"Folder7"})
	require.NoError(t, g.InsertNode(n))
	p, ok := h.Parent("Model9")
	require.True(t, ok)
	assert.Equal(t, nodeid.ID("Folder7"), p)
	assert.Equal(t, []nodeid.ID{"Model9"}, h.AncestorChain("Model9"))
}

func TestCheckRetarget(t *testing.T) {
	tests := []struct {
		name     string
		from, to nodeid.ID
		cycle    bool
	}{
		{"onto a descendant", "Folder1", "Model3", true},
		{"onto the referrer itself", "Model1", "Model3", true},
		{"onto a sibling", "Model1", "Model2", false},
		{"onto a dangling id", "Folder1", "Folder9", false},
		{"no parent referrers", "Model3", "Folder1", false},
		{"same id", "Folder1", "Folder1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, h := buildTree(t)
			before := parents(g)
			err := h.CheckRetarget(tt.from, tt.to)
			if tt.cycle {
				assert.ErrorIs(t, err, hierarchy.ErrCycle)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, before, parents(g))
		})
	}
}
