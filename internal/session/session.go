// Package session owns one scene graph and serializes every access to it.
//
// The graph, hierarchy and merge engine are single-threaded; a Session puts
// them behind a reader/writer lock, decodes incoming documents on a bounded
// worker pool and keeps the graph gauges current.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/scenegraph/internal/config"
	"github.com/gyaneshwarpardhi/scenegraph/internal/document"
	"github.com/gyaneshwarpardhi/scenegraph/internal/hierarchy"
	"github.com/gyaneshwarpardhi/scenegraph/internal/kind"
	"github.com/gyaneshwarpardhi/scenegraph/internal/merge"
	"github.com/gyaneshwarpardhi/scenegraph/internal/metrics"
	"github.com/gyaneshwarpardhi/scenegraph/internal/nodeid"
	"github.com/gyaneshwarpardhi/scenegraph/internal/query"
	"github.com/gyaneshwarpardhi/scenegraph/internal/scene"
)

var (
	// ErrQueueFull is returned by Import when the decode queue has no room.
	ErrQueueFull = errors.New("document decode queue full")
	// ErrDecode wraps syntax errors of an incoming document.
	ErrDecode = errors.New("document could not be decoded")
	// ErrNodeNotFound is shared with the hierarchy layer so one errors.Is
	// check covers both.
	ErrNodeNotFound = hierarchy.ErrNodeNotFound
)

// Session is the serialized owner of one Graph.
type Session struct {
	ID string

	mu    sync.RWMutex
	graph *scene.Graph
	kinds atomic.Pointer[kind.Registry]

	decoders *workerPool[*decodeJob]
	conf     config.SessionConf
	logger   *slog.Logger
}

type decodeJob struct {
	r     io.Reader
	codec document.Codec
	done  chan decodeResult
}

type decodeResult struct {
	doc *document.Document
	err error
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// New creates a Session with an empty graph and starts its decode workers.
// The workers stop when ctx is cancelled or Shutdown is called.
func New(ctx context.Context, conf config.SessionConf, kinds *kind.Registry, opts ...Option) *Session {
	s := &Session{
		ID:     uuid.New().String(),
		graph:  scene.New(),
		conf:   conf,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	s.kinds.Store(kinds)
	s.decoders = newWorkerPool[*decodeJob](ctx, conf.DecodeWorkers, conf.QueueDepth, func(_ context.Context, j *decodeJob) {
		doc, err := j.codec.Decode(j.r)
		j.done <- decodeResult{doc: doc, err: err}
	})
	s.logger.Info("session started", "session", s.ID, "decode_workers", conf.DecodeWorkers, "queue_depth", conf.QueueDepth)
	return s
}

// SwapKinds atomically replaces the kind registry (used on config reload).
// Nodes already in the graph are not re-checked.
func (s *Session) SwapKinds(r *kind.Registry) {
	s.kinds.Store(r)
}

// Kinds returns the current kind registry.
func (s *Session) Kinds() *kind.Registry {
	return s.kinds.Load()
}

func (s *Session) hierarchy() *hierarchy.Hierarchy {
	return hierarchy.New(s.graph, s.kinds.Load())
}

// QueueUtilization returns decode queue used / capacity (0–1).
func (s *Session) QueueUtilization() float64 {
	return s.decoders.Utilization()
}

// Import decodes a document from r on the worker pool and merges it. The
// wait for a decoder honours ctx and the configured import timeout. r is read
// to the end before Import returns and is not used afterwards.
func (s *Session) Import(ctx context.Context, r io.Reader, format string) (*merge.ImportPlan, error) {
	codec, err := document.CodecFor(format)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	job := &decodeJob{r: bytes.NewReader(data), codec: codec, done: make(chan decodeResult, 1)}
	if !s.decoders.Submit(job) {
		metrics.DecodeDropped.Inc()
		return nil, fmt.Errorf("%w (capacity %d)", ErrQueueFull, s.conf.QueueDepth)
	}
	metrics.DecodeQueueUtilization.Set(s.QueueUtilization())

	timeout := time.Duration(s.conf.ImportTimeoutMs) * time.Millisecond
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-job.done:
		if res.err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrDecode, codec.Format(), res.err)
		}
		return s.ImportDocument(res.doc)
	case <-timer.C:
		return nil, fmt.Errorf("document decode timeout after %v: %w", timeout, context.DeadlineExceeded)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ImportDocument merges an already decoded document into the graph.
func (s *Session) ImportDocument(doc *document.Document) (*merge.ImportPlan, error) {
	if err := document.CheckVersion(doc); err != nil {
		return nil, err
	}
	eng := merge.New(merge.WithKinds(s.kinds.Load()), merge.WithLogger(s.logger))

	s.mu.Lock()
	defer s.mu.Unlock()
	plan, err := eng.Merge(s.graph, doc.Nodes)
	s.updateGauges()
	return plan, err
}

// Export snapshots the graph as a document.
func (s *Session) Export() *document.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return document.Export(s.graph)
}

// AddNode creates a node of tag with a fresh id.
func (s *Session) AddNode(tag, name string, attrs map[string]string) (nodeid.ID, error) {
	kinds := s.kinds.Load()
	if !nodeid.ValidTag(tag) {
		return nodeid.None, fmt.Errorf("add node: %w: %q is not a valid type tag", merge.ErrInvalidNode, tag)
	}
	if !kinds.Known(tag) {
		return nodeid.None, fmt.Errorf("add node: %w %q", merge.ErrUnknownKind, tag)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	probe := document.ProtoNode{TypeTag: tag, ID: string(nodeid.New(tag, s.graph.PeekNext(tag))), Name: name, Attributes: attrs}
	if err := document.Validate(probe); err != nil {
		return nodeid.None, fmt.Errorf("add node: %w: %v", merge.ErrInvalidNode, err)
	}
	id := s.graph.AddNode(tag, attrs)
	if name != "" {
		n, _ := s.graph.Node(id)
		n.SetName(name)
	}
	metrics.NodesAdded.Inc()
	s.updateGauges()
	return id, nil
}

// RemoveNode removes id. References to it elsewhere are left dangling.
func (s *Session) RemoveNode(id nodeid.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.graph.IsIDInUse(id) {
		return fmt.Errorf("remove %s: %w", id, ErrNodeNotFound)
	}
	s.graph.RemoveNode(id)
	metrics.NodesRemoved.Inc()
	s.updateGauges()
	return nil
}

// SetReference replaces the target list of role on id. An empty list removes
// the role. The parent role goes through the hierarchy so cycles are refused.
func (s *Session) SetReference(id nodeid.ID, role string, targets []nodeid.ID) error {
	if role == hierarchy.Role {
		switch len(targets) {
		case 0:
			return s.ClearParent(id)
		case 1:
			return s.SetParent(id, targets[0])
		default:
			return fmt.Errorf("set %s.%s: %w: a node has at most one parent", id, role, merge.ErrRoleLimit)
		}
	}

	kinds := s.kinds.Load()
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.graph.Node(id)
	if !ok {
		return fmt.Errorf("set %s.%s: %w", id, role, ErrNodeNotFound)
	}
	if kinds.Unique(n.Tag(), role) {
		targets = dedupe(targets)
	}
	probe := document.ProtoNode{TypeTag: n.Tag(), ID: string(id), References: map[string][]string{role: nodeid.Strings(targets)}}
	if err := document.Validate(probe); err != nil {
		return fmt.Errorf("set %s.%s: %w: %v", id, role, merge.ErrInvalidNode, err)
	}
	if err := kinds.CheckRole(n.Tag(), role, len(targets)); err != nil {
		return fmt.Errorf("set %s.%s: %w: %v", id, role, merge.ErrRoleLimit, err)
	}
	for _, t := range targets {
		if tn, ok := s.graph.Node(t); ok {
			if err := kinds.CheckTarget(role, tn.Tag()); err != nil {
				return fmt.Errorf("set %s.%s: %w", id, role, err)
			}
		}
	}
	n.SetReference(role, targets)
	s.updateGauges()
	return nil
}

func dedupe(ids []nodeid.ID) []nodeid.ID {
	out := make([]nodeid.ID, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

// SetParent makes parent the hierarchy parent of child.
func (s *Session) SetParent(child, parent nodeid.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.hierarchy().SetParent(child, parent)
	if errors.Is(err, hierarchy.ErrCycle) {
		metrics.CycleRejections.Inc()
		s.logger.Warn("parent assignment refused", "child", child, "parent", parent, "err", err)
	}
	if err == nil {
		s.updateGauges()
	}
	return err
}

// ClearParent makes child a hierarchy root.
func (s *Session) ClearParent(child nodeid.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hierarchy().ClearParent(child); err != nil {
		return err
	}
	s.updateGauges()
	return nil
}

// Retarget points every reference to from at to instead and returns how many
// role lists changed. Either id may be dangling. It is refused, leaving the
// graph unchanged, when a live to does not suit one of the roles naming from
// or when moving the parent references would close a cycle.
func (s *Session) Retarget(from, to nodeid.ID) (int, error) {
	for _, id := range []nodeid.ID{from, to} {
		if !nodeid.Valid(string(id)) {
			return 0, fmt.Errorf("retarget: %w: %q is not a valid node id", merge.ErrInvalidNode, id)
		}
	}
	kinds := s.kinds.Load()
	s.mu.Lock()
	defer s.mu.Unlock()
	if tn, ok := s.graph.Node(to); ok {
		for _, r := range s.graph.ReferencesTo(from) {
			if err := kinds.CheckTarget(r.Role, tn.Tag()); err != nil {
				return 0, fmt.Errorf("retarget %s.%s: %w", r.ID, r.Role, err)
			}
		}
	}
	if err := s.hierarchy().CheckRetarget(from, to); err != nil {
		metrics.CycleRejections.Inc()
		s.logger.Warn("retarget refused", "from", from, "to", to, "err", err)
		return 0, err
	}
	changed := s.graph.RewriteReference(from, to)
	if changed > 0 {
		s.logger.Info("references retargeted", "from", from, "to", to, "lists", changed)
		s.updateGauges()
	}
	return changed, nil
}

// Node returns a snapshot of one node.
func (s *Session) Node(id nodeid.ID) (document.ProtoNode, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.graph.Node(id)
	if !ok {
		return document.ProtoNode{}, false
	}
	return document.FromNode(n), true
}

// Select returns snapshots of the nodes matching q, in insertion order.
func (s *Session) Select(q *query.Query) []document.ProtoNode {
	return q.Filter(s.Export().Nodes)
}

// Len returns the number of live nodes.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.Len()
}

// ReferencesTo returns every (referrer, role) naming id, live or dangling.
func (s *Session) ReferencesTo(id nodeid.ID) []scene.Referrer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.ReferencesTo(id)
}

// Dangling returns referenced ids that resolve to no live node.
func (s *Session) Dangling() []nodeid.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.Dangling()
}

// Children returns the hierarchy children of id.
func (s *Session) Children(id nodeid.ID) []nodeid.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hierarchy().Children(id)
}

// AncestorChain returns id's live ancestors then id, root first.
func (s *Session) AncestorChain(id nodeid.ID) []nodeid.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hierarchy().AncestorChain(id)
}

// Depth returns the number of live ancestors of id.
func (s *Session) Depth(id nodeid.ID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hierarchy().Depth(id)
}

// Roots returns hierarchy roots in insertion order.
func (s *Session) Roots() []nodeid.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hierarchy().Roots()
}

// Subscribe registers fn for events on (referrer, role). fn runs while the
// session holds its write lock, so it must not call back into the Session.
func (s *Session) Subscribe(referrer nodeid.ID, role string, fn scene.Handler) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.graph.Subscribe(referrer, role, fn)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		c()
	}
}

// CheckIndex verifies the reverse reference index against the nodes.
func (s *Session) CheckIndex() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.CheckIndex()
}

// Shutdown drains the decode pool.
func (s *Session) Shutdown() {
	s.decoders.Drain()
	s.logger.Info("session stopped", "session", s.ID)
}

// updateGauges must be called with the write lock held.
func (s *Session) updateGauges() {
	metrics.GraphNodes.Set(float64(s.graph.Len()))
	metrics.DanglingReferences.Set(float64(len(s.graph.Dangling())))
}

// ApplyConfig validates cfg and swaps in the kind registry it describes.
// Decode pool settings only take effect for new sessions.
func (s *Session) ApplyConfig(cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	kinds, err := kind.FromConfig(cfg.Kinds, cfg.Merge.StrictKinds)
	if err != nil {
		return fmt.Errorf("build kind registry: %w", err)
	}
	s.SwapKinds(kinds)
	s.logger.Info("kind registry swapped", "session", s.ID, "kinds", len(kinds.Tags()), "strict", kinds.Strict())
	return nil
}
