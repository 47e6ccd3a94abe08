package scene

import (
	"fmt"
	"sort"

	"github.com/gyaneshwarpardhi/scenegraph/internal/nodeid"
)

// Referrer names one role entry pointing at a target.
type Referrer struct {
	ID   nodeid.ID `json:"id"`
	Role string    `json:"role"`
}

// refIndex maps a target ID to every (referrer, role) naming it. Counts track
// how many times the target appears in that role list so duplicates in a
// list are accounted for exactly.
type refIndex struct {
	byTarget map[nodeid.ID]map[Referrer]int
}

func newRefIndex() refIndex {
	return refIndex{byTarget: make(map[nodeid.ID]map[Referrer]int)}
}

func (ix refIndex) add(referrer nodeid.ID, role string, targets []nodeid.ID) {
	for _, t := range targets {
		m, ok := ix.byTarget[t]
		if !ok {
			m = make(map[Referrer]int)
			ix.byTarget[t] = m
		}
		m[Referrer{ID: referrer, Role: role}]++
	}
}

func (ix refIndex) remove(referrer nodeid.ID, role string, targets []nodeid.ID) {
	for _, t := range targets {
		m, ok := ix.byTarget[t]
		if !ok {
			continue
		}
		key := Referrer{ID: referrer, Role: role}
		if m[key] <= 1 {
			delete(m, key)
		} else {
			m[key]--
		}
		if len(m) == 0 {
			delete(ix.byTarget, t)
		}
	}
}

func (ix refIndex) referrers(target nodeid.ID) map[Referrer]int {
	return ix.byTarget[target]
}

func (ix refIndex) targets() []nodeid.ID {
	out := make([]nodeid.ID, 0, len(ix.byTarget))
	for t := range ix.byTarget {
		out = append(out, t)
	}
	return out
}

// diff returns a description of the first mismatch between ix and want.
func (ix refIndex) diff(want refIndex) error {
	if len(ix.byTarget) != len(want.byTarget) {
		return fmt.Errorf("index holds %d targets, expected %d", len(ix.byTarget), len(want.byTarget))
	}
	targets := want.targets()
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })
	for _, t := range targets {
		got := ix.byTarget[t]
		exp := want.byTarget[t]
		if len(got) != len(exp) {
			return fmt.Errorf("target %s: %d referrers indexed, expected %d", t, len(got), len(exp))
		}
		for r, n := range exp {
			if got[r] != n {
				return fmt.Errorf("target %s: referrer %s/%s counted %d, expected %d", t, r.ID, r.Role, got[r], n)
			}
		}
	}
	return nil
}
