package kind

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Capability is a feature a node kind opts into.
type Capability string

const (
	CapHierarchy Capability = "hierarchy" // may take part in parent/child relations
	CapDisplay   Capability = "display"   // may be referenced through a display role
	CapStorage   Capability = "storage"   // may be referenced through a storage role
	CapTransform Capability = "transform" // may be referenced through a transform role
)

// ErrCapability is returned when a node kind lacks a capability a role
// requires of it.
var ErrCapability = errors.New("node kind lacks the required capability")

// KnownCapabilities lists every capability the registry understands.
var KnownCapabilities = []Capability{CapHierarchy, CapDisplay, CapStorage, CapTransform}

// ParseCapability converts a config string to a Capability.
func ParseCapability(s string) (Capability, error) {
	for _, c := range KnownCapabilities {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown capability %q", s)
}

// RoleSpec constrains one reference role of a kind.
type RoleSpec struct {
	Name   string
	Max    int  // 0 = unbounded
	Unique bool // duplicate targets are suppressed
}

// Kind describes one node type tag.
type Kind struct {
	Tag          string
	Capabilities map[Capability]bool
	Roles        map[string]RoleSpec
}

// Has reports whether the kind carries capability c.
func (k Kind) Has(c Capability) bool {
	return k.Capabilities[c]
}

// Role returns the spec for a role, if the kind declares one.
func (k Kind) Role(name string) (RoleSpec, bool) {
	r, ok := k.Roles[name]
	return r, ok
}

// Registry maps type tags to kinds. It is built once per session from config
// and is safe for concurrent reads; Register should only be called while the
// registry is being assembled.
//
// A nil *Registry is valid and permits everything.
type Registry struct {
	mu     sync.RWMutex
	kinds  map[string]Kind
	strict bool
}

// NewRegistry creates an empty Registry. A strict registry rejects tags it
// does not know; a lenient one treats them as fully capable.
func NewRegistry(strict bool) *Registry {
	return &Registry{kinds: make(map[string]Kind), strict: strict}
}

// Register adds a kind. Panics on duplicate tag to surface misconfiguration early.
func (r *Registry) Register(k Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.kinds[k.Tag]; exists {
		panic(fmt.Sprintf("kind registry: duplicate tag %q", k.Tag))
	}
	if k.Capabilities == nil {
		k.Capabilities = map[Capability]bool{}
	}
	if k.Roles == nil {
		k.Roles = map[string]RoleSpec{}
	}
	r.kinds[k.Tag] = k
}

// Lookup returns the kind registered for tag.
func (r *Registry) Lookup(tag string) (Kind, bool) {
	if r == nil {
		return Kind{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.kinds[tag]
	return k, ok
}

// Strict reports whether unknown tags are rejected.
func (r *Registry) Strict() bool {
	return r != nil && r.strict
}

// Known reports whether tag may be used at all.
func (r *Registry) Known(tag string) bool {
	if !r.Strict() {
		return true
	}
	_, ok := r.Lookup(tag)
	return ok
}

// Supports reports whether nodes of tag carry capability c. Unknown tags are
// capable of everything unless the registry is strict.
func (r *Registry) Supports(tag string, c Capability) bool {
	k, ok := r.Lookup(tag)
	if !ok {
		return !r.Strict()
	}
	return k.Has(c)
}

// CheckRole validates a target list for role on a node of tag. Roles the kind
// does not declare are unconstrained.
func (r *Registry) CheckRole(tag, role string, targets int) error {
	k, ok := r.Lookup(tag)
	if !ok {
		return nil
	}
	spec, ok := k.Role(role)
	if !ok {
		return nil
	}
	if spec.Max > 0 && targets > spec.Max {
		return fmt.Errorf("role %q of %s accepts at most %d targets, got %d", role, tag, spec.Max, targets)
	}
	return nil
}

// CheckTarget reports whether a node of targetTag may be named through role.
// Only typed roles (see TargetCapability) constrain their targets.
func (r *Registry) CheckTarget(role, targetTag string) error {
	c, ok := TargetCapability(role)
	if !ok || r.Supports(targetTag, c) {
		return nil
	}
	return fmt.Errorf("%w: %s cannot be a %s target (needs %s)", ErrCapability, targetTag, role, c)
}

// Unique reports whether role suppresses duplicate targets on nodes of tag.
func (r *Registry) Unique(tag, role string) bool {
	k, ok := r.Lookup(tag)
	if !ok {
		return false
	}
	spec, ok := k.Role(role)
	return ok && spec.Unique
}

// Tags returns all registered tags in sorted order.
func (r *Registry) Tags() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.kinds))
	for k := range r.kinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
