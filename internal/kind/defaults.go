package kind

import (
	"fmt"

	"github.com/gyaneshwarpardhi/scenegraph/internal/config"
)

// Well-known role names.
const (
	RoleParent    = "parent"
	RoleDisplay   = "display"
	RoleStorage   = "storage"
	RoleTransform = "transform"
)

var roleCapabilities = map[string]Capability{
	RoleParent:    CapHierarchy,
	RoleDisplay:   CapDisplay,
	RoleStorage:   CapStorage,
	RoleTransform: CapTransform,
}

// TargetCapability returns the capability a node must carry to be named
// through role.
func TargetCapability(role string) (Capability, bool) {
	c, ok := roleCapabilities[role]
	return c, ok
}

func caps(cs ...Capability) map[Capability]bool {
	m := make(map[Capability]bool, len(cs))
	for _, c := range cs {
		m[c] = true
	}
	return m
}

func roles(rs ...RoleSpec) map[string]RoleSpec {
	m := make(map[string]RoleSpec, len(rs))
	for _, r := range rs {
		m[r.Name] = r
	}
	return m
}

var parentRole = RoleSpec{Name: RoleParent, Max: 1}

// Default returns the workstation's built-in kind set. It is lenient so that
// documents written by newer tooling still load.
func Default() *Registry {
	r := NewRegistry(false)
	dataRoles := roles(
		parentRole,
		RoleSpec{Name: RoleDisplay, Unique: true},
		RoleSpec{Name: RoleStorage, Max: 1},
		RoleSpec{Name: RoleTransform, Max: 1},
	)
	for _, tag := range []string{"Model", "Volume", "LabelMapVolume", "Segmentation", "MarkupsFiducial"} {
		r.Register(Kind{Tag: tag, Capabilities: caps(CapHierarchy), Roles: dataRoles})
	}
	r.Register(Kind{Tag: "ModelHierarchy", Capabilities: caps(CapHierarchy), Roles: roles(parentRole, RoleSpec{Name: RoleDisplay, Max: 1})})
	r.Register(Kind{Tag: "Folder", Capabilities: caps(CapHierarchy), Roles: roles(parentRole)})
	r.Register(Kind{Tag: "Subject", Capabilities: caps(CapHierarchy), Roles: roles(parentRole)})
	for _, tag := range []string{"ModelDisplay", "VolumeDisplay", "SegmentationDisplay", "MarkupsDisplay"} {
		r.Register(Kind{Tag: tag, Capabilities: caps(CapDisplay)})
	}
	for _, tag := range []string{"ModelStorage", "VolumeArchetypeStorage", "SegmentationStorage"} {
		r.Register(Kind{Tag: tag, Capabilities: caps(CapStorage)})
	}
	r.Register(Kind{
		Tag:          "LinearTransform",
		Capabilities: caps(CapHierarchy, CapTransform),
		Roles:        roles(parentRole, RoleSpec{Name: RoleTransform, Max: 1}),
	})
	return r
}

// FromConfig builds a registry from the kinds table of the config file. An
// empty table yields Default().
func FromConfig(defs []config.KindDef, strict bool) (*Registry, error) {
	if len(defs) == 0 {
		d := Default()
		d.strict = strict
		return d, nil
	}
	r := NewRegistry(strict)
	for _, def := range defs {
		k := Kind{Tag: def.Tag, Capabilities: map[Capability]bool{}, Roles: map[string]RoleSpec{}}
		for _, s := range def.Capabilities {
			c, err := ParseCapability(s)
			if err != nil {
				return nil, fmt.Errorf("kind %s: %w", def.Tag, err)
			}
			k.Capabilities[c] = true
		}
		for _, rd := range def.Roles {
			k.Roles[rd.Name] = RoleSpec{Name: rd.Name, Max: rd.Max, Unique: rd.Unique}
		}
		if _, dup := r.Lookup(def.Tag); dup {
			return nil, fmt.Errorf("kind %s: declared twice", def.Tag)
		}
		r.Register(k)
	}
	return r, nil
}
