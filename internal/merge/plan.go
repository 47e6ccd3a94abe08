package merge

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gyaneshwarpardhi/scenegraph/internal/document"
	"github.com/gyaneshwarpardhi/scenegraph/internal/kind"
	"github.com/gyaneshwarpardhi/scenegraph/internal/nodeid"
)

var (
	ErrInvalidNode = errors.New("malformed node")
	ErrDuplicateID = errors.New("id declared more than once in the document")
	ErrUnknownKind = errors.New("unknown node kind")
	ErrRoleLimit   = errors.New("role exceeds its cardinality")
	ErrParentCycle = errors.New("parent chain forms a cycle")
	// ErrPlanStale is returned by Commit when the graph changed after planning.
	ErrPlanStale = errors.New("import plan no longer matches the graph")
)

// NodeError reports why one incoming node was skipped.
type NodeError struct {
	Index int    // position in the document
	ID    string // declared id, possibly malformed
	Err   error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %d (%q): %v", e.Index, e.ID, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// Reason returns a short label for metrics and API responses.
func (e *NodeError) Reason() string {
	switch {
	case errors.Is(e.Err, ErrDuplicateID):
		return "duplicate_id"
	case errors.Is(e.Err, ErrUnknownKind):
		return "unknown_kind"
	case errors.Is(e.Err, ErrRoleLimit):
		return "role_limit"
	case errors.Is(e.Err, kind.ErrCapability):
		return "unsupported_kind"
	case errors.Is(e.Err, ErrParentCycle):
		return "parent_cycle"
	default:
		return "invalid"
	}
}

func (e *NodeError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Index  int    `json:"index"`
		ID     string `json:"id"`
		Reason string `json:"reason"`
		Error  string `json:"error"`
	}{e.Index, e.ID, e.Reason(), e.Err.Error()})
}

// ImportPlan is the outcome of planning one merge: where every incoming node
// lands and what its references look like afterwards. It lives only for the
// duration of a merge.
type ImportPlan struct {
	ID string `json:"id"`

	// Mapping holds declared → final id for every committed node; the
	// identity for nodes that did not collide.
	Mapping map[nodeid.ID]nodeid.ID `json:"mapping"`

	// Nodes are the nodes to commit, in document order, with final ids and
	// rewritten references.
	Nodes []document.ProtoNode `json:"nodes"`

	// Collisions lists declared ids that were already taken in the target.
	Collisions []nodeid.ID `json:"collisions,omitempty"`

	// Reserved ids belong to skipped nodes. They are kept out of circulation
	// so references to a skipped node stay dangling instead of binding to an
	// unrelated node later.
	Reserved []nodeid.ID `json:"reserved,omitempty"`

	Rejected  []*NodeError `json:"rejected,omitempty"`
	Committed bool         `json:"committed"`
}

// Final returns the id a declared id was committed under.
func (p *ImportPlan) Final(declared nodeid.ID) (nodeid.ID, bool) {
	id, ok := p.Mapping[declared]
	return id, ok
}

// Renamed returns the subset of Mapping whose ids changed.
func (p *ImportPlan) Renamed() map[nodeid.ID]nodeid.ID {
	out := make(map[nodeid.ID]nodeid.ID)
	for from, to := range p.Mapping {
		if from != to {
			out[from] = to
		}
	}
	return out
}

// IsIdentity reports whether no committed node was renamed.
func (p *ImportPlan) IsIdentity() bool {
	return len(p.Renamed()) == 0
}
