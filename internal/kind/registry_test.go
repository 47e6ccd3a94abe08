package kind_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/scenegraph/internal/config"
	"github.com/gyaneshwarpardhi/scenegraph/internal/kind"
)

func TestDefault(t *testing.T) {
	r := kind.Default()
	assert.False(t, r.Strict())

	assert.True(t, r.Supports("Model", kind.CapHierarchy))
	assert.False(t, r.Supports("ModelDisplay", kind.CapHierarchy))
	assert.True(t, r.Supports("LinearTransform", kind.CapTransform))
	assert.True(t, r.Supports("SomethingNew", kind.CapHierarchy), "lenient registry accepts unknown tags")
	assert.True(t, r.Known("SomethingNew"))

	assert.NoError(t, r.CheckRole("Model", kind.RoleParent, 1))
	assert.Error(t, r.CheckRole("Model", kind.RoleParent, 2))
	assert.NoError(t, r.CheckRole("Model", kind.RoleDisplay, 5))
	assert.NoError(t, r.CheckRole("Model", "undeclared", 9))
	assert.True(t, r.Unique("Model", kind.RoleDisplay))
	assert.False(t, r.Unique("Model", kind.RoleStorage))
}

func TestCheckTarget(t *testing.T) {
	r := kind.Default()
	tests := []struct {
		role, target string
		ok           bool
	}{
		{kind.RoleDisplay, "ModelDisplay", true},
		{kind.RoleDisplay, "Volume", false},
		{kind.RoleStorage, "ModelStorage", true},
		{kind.RoleStorage, "ModelDisplay", false},
		{kind.RoleTransform, "LinearTransform", true},
		{kind.RoleTransform, "Model", false},
		{kind.RoleParent, "Folder", true},
		{kind.RoleParent, "ModelDisplay", false},
		{kind.RoleDisplay, "SomethingNew", true},
		{"associated", "ModelDisplay", true},
	}
	for _, tt := range tests {
		t.Run(tt.role+"/"+tt.target, func(t *testing.T) {
			err := r.CheckTarget(tt.role, tt.target)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, kind.ErrCapability)
			}
		})
	}

	strict, err := kind.FromConfig(nil, true)
	require.NoError(t, err)
	assert.ErrorIs(t, strict.CheckTarget(kind.RoleDisplay, "SomethingNew"), kind.ErrCapability)
}

func TestNilRegistry(t *testing.T) {
	var r *kind.Registry
	assert.False(t, r.Strict())
	assert.True(t, r.Known("Anything"))
	assert.True(t, r.Supports("Anything", kind.CapDisplay))
	assert.NoError(t, r.CheckRole("Anything", kind.RoleParent, 3))
	assert.Nil(t, r.Tags())
}

func TestRegister_DuplicatePanics(t *testing.T) {
	r := kind.NewRegistry(true)
	r.Register(kind.Kind{Tag: "Model"})
	assert.Panics(t, func() { r.Register(kind.Kind{Tag: "Model"}) })
}

func TestFromConfig(t *testing.T) {
	r, err := kind.FromConfig([]config.KindDef{
		{Tag: "Scan", Capabilities: []string{"hierarchy", "storage"}, Roles: []config.RoleDef{{Name: "parent", Max: 1}, {Name: "display", Unique: true}}},
		{Tag: "ScanDisplay", Capabilities: []string{"display"}},
	}, true)
	require.NoError(t, err)

	assert.True(t, r.Strict())
	assert.Equal(t, []string{"Scan", "ScanDisplay"}, r.Tags())
	assert.False(t, r.Known("Model"))
	assert.False(t, r.Supports("Model", kind.CapHierarchy))
	assert.True(t, r.Supports("Scan", kind.CapStorage))
	assert.Error(t, r.CheckRole("Scan", kind.RoleParent, 2))
	assert.True(t, r.Unique("Scan", kind.RoleDisplay))

	_, err = kind.FromConfig([]config.KindDef{{Tag: "Scan", Capabilities: []string{"teleport"}}}, false)
	assert.ErrorContains(t, err, `unknown capability "teleport"`)

	_, err = kind.FromConfig([]config.KindDef{{Tag: "Scan"}, {Tag: "Scan"}}, false)
	assert.Error(t, err)
}

func TestFromConfig_EmptyUsesDefaults(t *testing.T) {
	r, err := kind.FromConfig(nil, true)
	require.NoError(t, err)
	assert.True(t, r.Strict())
	assert.Equal(t, kind.Default().Tags(), r.Tags())
	assert.False(t, r.Known("SomethingNew"))
}

func TestParseCapability(t *testing.T) {
	for _, c := range kind.KnownCapabilities {
		got, err := kind.ParseCapability(string(c))
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	_, err := kind.ParseCapability("")
	assert.Error(t, err)
}
