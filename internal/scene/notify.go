package scene

import (
	"errors"
	"fmt"

	"github.com/gyaneshwarpardhi/scenegraph/internal/nodeid"
)

// ErrReentrantMutation is the panic value raised when a subscriber mutates
// the graph from inside a notification. Queue the change with Graph.Defer.
var ErrReentrantMutation = errors.New("scene: graph mutated from inside a notification")

// EventKind discriminates notifications.
type EventKind int

const (
	// ReferencesChanged: the subscribed role's target list was replaced.
	ReferencesChanged EventKind = iota
	// TargetAdded: a node named by the role came into existence.
	TargetAdded
	// TargetModified: a node named by the role changed its name or attributes.
	TargetModified
	// TargetRemoved: a node named by the role was removed; the entry now dangles.
	TargetRemoved
)

func (k EventKind) String() string {
	switch k {
	case ReferencesChanged:
		return "references_changed"
	case TargetAdded:
		return "target_added"
	case TargetModified:
		return "target_modified"
	case TargetRemoved:
		return "target_removed"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is delivered to subscribers of (Referrer, Role).
type Event struct {
	Kind     EventKind
	Referrer nodeid.ID
	Role     string
	Target   nodeid.ID // zero for ReferencesChanged
}

// Handler receives events synchronously, in mutation order. It must not
// mutate the graph; use Graph.Defer instead.
type Handler func(Event)

type subscription struct {
	id       int
	referrer nodeid.ID
	role     string // "" = every role of referrer
	fn       Handler
}

// Subscribe registers fn for events concerning role on referrer. An empty
// role subscribes to every role. Subscriptions are keyed by ID and survive
// removal and re-insertion of the referrer. The returned func cancels.
func (g *Graph) Subscribe(referrer nodeid.ID, role string, fn Handler) (cancel func()) {
	g.nextSub++
	s := &subscription{id: g.nextSub, referrer: referrer, role: role, fn: fn}
	g.subs[referrer] = append(g.subs[referrer], s)
	return func() {
		list := g.subs[referrer]
		for i, cur := range list {
			if cur.id == s.id {
				g.subs[referrer] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		if len(g.subs[referrer]) == 0 {
			delete(g.subs, referrer)
		}
	}
}

// Batch runs fn as one mutation: notifications raised by the mutations inside
// fn are delivered after fn returns, so subscribers only observe the graph
// once the whole batch has been applied.
func (g *Graph) Batch(fn func()) {
	g.beginMutation()
	defer g.endMutation()
	fn()
}

// Defer queues fn to run once the current mutation (and its notifications)
// has finished. Outside a mutation fn runs immediately.
func (g *Graph) Defer(fn func(*Graph)) {
	if g.depth == 0 && !g.notifying {
		fn(g)
		return
	}
	g.deferred = append(g.deferred, fn)
}

func (g *Graph) emit(ev Event) {
	if len(g.subs[ev.Referrer]) == 0 {
		return
	}
	g.pending = append(g.pending, ev)
}

// flush delivers queued events in order. Handlers added or removed during
// delivery take effect for the next event.
func (g *Graph) flush() {
	for len(g.pending) > 0 {
		ev := g.pending[0]
		g.pending = g.pending[1:]
		for _, s := range append([]*subscription(nil), g.subs[ev.Referrer]...) {
			if s.role != "" && s.role != ev.Role {
				continue
			}
			g.deliver(s.fn, ev)
		}
	}
	g.pending = nil
}

func (g *Graph) deliver(fn Handler, ev Event) {
	g.notifying = true
	defer func() { g.notifying = false }()
	fn(ev)
}

// beginMutation guards every public mutation. It is nil-safe so detached
// nodes can share code paths with owned ones.
func (g *Graph) beginMutation() {
	if g == nil {
		return
	}
	if g.notifying {
		panic(ErrReentrantMutation)
	}
	g.depth++
}

func (g *Graph) endMutation() {
	if g == nil {
		return
	}
	g.depth--
	if g.depth > 0 {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			g.pending, g.deferred = nil, nil
			panic(r)
		}
	}()
	g.flush()
	for len(g.deferred) > 0 {
		fn := g.deferred[0]
		g.deferred = g.deferred[1:]
		fn(g)
	}
	g.deferred = nil
}
