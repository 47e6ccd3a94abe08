// Package merge folds a parsed document into a live scene graph.
//
// Incoming nodes whose declared id is already taken get a fresh id from the
// target graph's allocator, and every reference held by an incoming node,
// including its hierarchy parent, is rewritten through the complete
// declared → final table before anything is committed. The shape of the
// incoming hierarchy is therefore preserved exactly; only identifiers change.
package merge

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/scenegraph/internal/document"
	"github.com/gyaneshwarpardhi/scenegraph/internal/kind"
	"github.com/gyaneshwarpardhi/scenegraph/internal/metrics"
	"github.com/gyaneshwarpardhi/scenegraph/internal/nodeid"
	"github.com/gyaneshwarpardhi/scenegraph/internal/scene"
)

// Engine plans and commits merges. It is stateless between calls.
type Engine struct {
	kinds  *kind.Registry
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithKinds sets the kind registry used to admit incoming nodes.
func WithKinds(r *kind.Registry) Option {
	return func(e *Engine) { e.kinds = r }
}

// WithLogger sets the logger for per-node rejections and commit summaries.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{logger: slog.Default()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// candidate is an incoming node that takes part in id planning.
type candidate struct {
	index    int
	declared nodeid.ID
	tag      string
	proto    document.ProtoNode
	err      error // non-nil once the node is skipped
}

// Merge plans and commits protos into g and returns the plan. It never fails
// on document content: bad nodes are reported in plan.Rejected and skipped.
func (e *Engine) Merge(g *scene.Graph, protos []document.ProtoNode) (*ImportPlan, error) {
	start := time.Now()
	plan := e.Plan(g, protos)
	if err := e.Commit(g, plan); err != nil {
		metrics.MergesTotal.WithLabelValues("failed").Inc()
		return plan, err
	}
	metrics.MergeDuration.Observe(float64(time.Since(start).Milliseconds()))
	status := "ok"
	if len(plan.Rejected) > 0 {
		status = "partial"
	}
	metrics.MergesTotal.WithLabelValues(status).Inc()
	return plan, nil
}

// Plan works out where every node of protos would land in g. It does not
// modify g.
func (e *Engine) Plan(g *scene.Graph, protos []document.ProtoNode) *ImportPlan {
	plan := &ImportPlan{
		ID:      uuid.New().String(),
		Mapping: make(map[nodeid.ID]nodeid.ID),
	}

	cands, declared := e.admit(protos, plan)

	// Ids the document references without declaring stay dangling after the
	// merge, so no renamed node may take one of them.
	referenced := make(map[nodeid.ID]bool)
	for _, c := range cands {
		for _, targets := range c.proto.References {
			for _, t := range targets {
				referenced[nodeid.ID(t)] = true
			}
		}
	}

	// Collision scan and remap table. Fresh ids avoid anything live in the
	// target, anything the document declares or references, and anything
	// still referenced in the target, so that no reference ends up bound to
	// the wrong node.
	table := make(map[nodeid.ID]nodeid.ID, len(cands))
	taken := make(map[nodeid.ID]bool)
	next := make(map[string]int)
	for _, c := range cands {
		if !g.IsIDInUse(c.declared) {
			table[c.declared] = c.declared
			continue
		}
		seq := max(g.PeekNext(c.tag), next[c.tag])
		fresh := nodeid.New(c.tag, seq)
		for g.IsIDInUse(fresh) || declared[fresh] || referenced[fresh] || taken[fresh] || len(g.ReferencesTo(fresh)) > 0 {
			seq++
			fresh = nodeid.New(c.tag, seq)
		}
		taken[fresh] = true
		next[c.tag] = seq + 1
		table[c.declared] = fresh
	}

	// Rewrite every reference of every incoming node through the full table.
	incoming := make(map[nodeid.ID]*candidate, len(cands))
	for _, c := range cands {
		c.proto = c.proto.Remap(table)
		if c.err == nil {
			incoming[table[c.declared]] = c
		}
	}

	// Typed roles must name nodes whose kind carries the matching capability.
	// Targets are resolved against the whole incoming set before any node
	// drops out, so the outcome does not depend on document order.
	var mistyped []nodeid.ID
	for final, c := range incoming {
		if err := e.checkTargets(g, incoming, c.proto); err != nil {
			c.err = err
			mistyped = append(mistyped, final)
		}
	}
	for _, final := range mistyped {
		delete(incoming, final)
	}

	for final := range findParentCycles(g, incoming) {
		c := incoming[final]
		c.err = fmt.Errorf("%w through %s", ErrParentCycle, final)
		delete(incoming, final)
	}

	for _, c := range cands {
		if c.err != nil {
			e.reject(plan, c.index, string(c.declared), c.err)
			plan.Reserved = append(plan.Reserved, table[c.declared])
			continue
		}
		final := table[c.declared]
		if final != c.declared {
			plan.Collisions = append(plan.Collisions, c.declared)
		}
		plan.Mapping[c.declared] = final
		plan.Nodes = append(plan.Nodes, c.proto)
	}
	return plan
}

// admit validates protos. It returns the nodes that take part in id
// planning, including nodes rejected for reasons other than a duplicate or
// malformed id, and the set of every id the document declares.
func (e *Engine) admit(protos []document.ProtoNode, plan *ImportPlan) ([]*candidate, map[nodeid.ID]bool) {
	var cands []*candidate
	declared := make(map[nodeid.ID]bool, len(protos))
	for i, p := range protos {
		tag, _, idErr := nodeid.Parse(p.ID)
		if idErr != nil {
			e.reject(plan, i, p.ID, fmt.Errorf("%w: %v", ErrInvalidNode, idErr))
			continue
		}
		id := nodeid.ID(p.ID)
		if declared[id] {
			e.reject(plan, i, p.ID, ErrDuplicateID)
			continue
		}
		declared[id] = true

		p = e.suppressDuplicates(p)
		c := &candidate{index: i, declared: id, tag: tag, proto: p}
		c.err = e.check(p)
		cands = append(cands, c)
	}
	return cands, declared
}

func (e *Engine) check(p document.ProtoNode) error {
	if err := document.Validate(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidNode, err)
	}
	if !e.kinds.Known(p.TypeTag) {
		return fmt.Errorf("%w %q", ErrUnknownKind, p.TypeTag)
	}
	if parents := p.References[kind.RoleParent]; len(parents) > 0 {
		if len(parents) > 1 {
			return fmt.Errorf("%w: a node has at most one parent, got %d", ErrRoleLimit, len(parents))
		}
		if !e.kinds.Supports(p.TypeTag, kind.CapHierarchy) {
			return fmt.Errorf("%s cannot take a parent: %w", p.TypeTag, kind.ErrCapability)
		}
	}
	for _, role := range p.Roles() {
		if err := e.kinds.CheckRole(p.TypeTag, role, len(p.References[role])); err != nil {
			return fmt.Errorf("%w: %v", ErrRoleLimit, err)
		}
	}
	return nil
}

// suppressDuplicates drops repeated targets from the roles the kind marks
// unique, keeping first occurrences. p's own maps are not modified.
func (e *Engine) suppressDuplicates(p document.ProtoNode) document.ProtoNode {
	var refs map[string][]string
	for _, role := range p.Roles() {
		if !e.kinds.Unique(p.TypeTag, role) {
			continue
		}
		targets := p.References[role]
		seen := make(map[string]bool, len(targets))
		kept := make([]string, 0, len(targets))
		for _, t := range targets {
			if !seen[t] {
				seen[t] = true
				kept = append(kept, t)
			}
		}
		if len(kept) == len(targets) {
			continue
		}
		if refs == nil {
			refs = maps.Clone(p.References)
		}
		refs[role] = kept
	}
	if refs != nil {
		p.References = refs
	}
	return p
}

// checkTargets resolves every reference of p against the incoming set, then
// the graph, and checks the target kind. Dangling targets are not checked.
func (e *Engine) checkTargets(g *scene.Graph, incoming map[nodeid.ID]*candidate, p document.ProtoNode) error {
	for _, role := range p.Roles() {
		for _, t := range p.References[role] {
			var tag string
			if c, ok := incoming[nodeid.ID(t)]; ok {
				tag = c.tag
			} else if n, ok := g.Node(nodeid.ID(t)); ok {
				tag = n.Tag()
			} else {
				continue
			}
			if err := e.kinds.CheckTarget(role, tag); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) reject(plan *ImportPlan, index int, id string, err error) {
	ne := &NodeError{Index: index, ID: id, Err: err}
	plan.Rejected = append(plan.Rejected, ne)
	metrics.RejectedNodes.WithLabelValues(ne.Reason()).Inc()
	e.logger.Warn("merge: node skipped", "plan", plan.ID, "index", index, "id", id, "reason", ne.Reason(), "err", err)
}

// findParentCycles returns the final ids of incoming nodes that sit on a
// parent cycle of the merged hierarchy (target plus incoming).
func findParentCycles(g *scene.Graph, incoming map[nodeid.ID]*candidate) map[nodeid.ID]bool {
	parentOf := func(id nodeid.ID) (nodeid.ID, bool) {
		var refs []string
		if c, ok := incoming[id]; ok {
			refs = c.proto.References[kind.RoleParent]
		} else if n, ok := g.Node(id); ok {
			refs = nodeid.Strings(n.References(kind.RoleParent))
		}
		if len(refs) == 0 {
			return nodeid.None, false
		}
		return nodeid.ID(refs[0]), true
	}

	done := make(map[nodeid.ID]bool)
	onCycle := make(map[nodeid.ID]bool)
	for start := range incoming {
		var path []nodeid.ID
		pos := make(map[nodeid.ID]int)
		for cur := start; !done[cur]; {
			if i, seen := pos[cur]; seen {
				for _, id := range path[i:] {
					if _, ok := incoming[id]; ok {
						onCycle[id] = true
					}
				}
				break
			}
			pos[cur] = len(path)
			path = append(path, cur)
			p, ok := parentOf(cur)
			if !ok {
				break
			}
			cur = p
		}
		for _, id := range path {
			done[id] = true
		}
	}
	return onCycle
}

// Commit inserts the planned nodes into g in document order. It checks the
// whole plan against g first, so either every planned node is committed or
// none is. The inserts form one batch: subscribers are notified once the
// last node is in.
func (e *Engine) Commit(g *scene.Graph, plan *ImportPlan) error {
	if plan.Committed {
		return fmt.Errorf("commit plan %s: already committed", plan.ID)
	}
	for _, p := range plan.Nodes {
		if g.IsIDInUse(nodeid.ID(p.ID)) {
			return fmt.Errorf("commit plan %s: %w: %s is in use", plan.ID, ErrPlanStale, p.ID)
		}
	}
	for _, id := range plan.Reserved {
		if err := g.Reserve(id); err != nil {
			return fmt.Errorf("commit plan %s: %w", plan.ID, err)
		}
	}
	var insertErr error
	g.Batch(func() {
		for _, p := range plan.Nodes {
			if err := g.InsertNode(p.Build()); err != nil {
				// Unreachable after the check above unless the plan was edited.
				insertErr = errors.Join(fmt.Errorf("commit plan %s: partial commit", plan.ID), err)
				return
			}
		}
	})
	if insertErr != nil {
		return insertErr
	}
	plan.Committed = true

	renamed := len(plan.Renamed())
	metrics.MergedNodes.Add(float64(len(plan.Nodes)))
	metrics.CollisionsRenamed.Add(float64(renamed))
	e.logger.Info("merge committed", "plan", plan.ID, "nodes", len(plan.Nodes), "renamed", renamed, "rejected", len(plan.Rejected))
	return nil
}
