package expansion

import (
	"sort"

	"github.com/gyaneshwarpardhi/kgexplorer/internal/graph"
)

// State is the expansion state of one node.
type State int

const (
	Unexpanded State = iota
	Expanding
	Expanded
)

func (s State) String() string {
	switch s {
	case Expanding:
		return "expanding"
	case Expanded:
		return "expanded"
	default:
		return "unexpanded"
	}
}

// VisitedSet records which nodes have been (or are being) expanded.
// A node enters Expanding at most once while it stays Expanded; a failed
// fetch returns it to Unexpanded so it can be retried.
type VisitedSet struct {
	states map[graph.NodeID]State
}

// NewVisitedSet creates an empty VisitedSet.
func NewVisitedSet() *VisitedSet {
	return &VisitedSet{states: make(map[graph.NodeID]State)}
}

// State returns the current state of id.
func (v *VisitedSet) State(id graph.NodeID) State { return v.states[id] }

// Begin moves id from Unexpanded to Expanding. It returns false when id is
// already Expanding or Expanded.
func (v *VisitedSet) Begin(id graph.NodeID) bool {
	if v.states[id] != Unexpanded {
		return false
	}
	v.states[id] = Expanding
	return true
}

// Complete marks id Expanded.
func (v *VisitedSet) Complete(id graph.NodeID) { v.states[id] = Expanded }

// Abort returns an Expanding id to Unexpanded. Other states are left alone.
func (v *VisitedSet) Abort(id graph.NodeID) {
	if v.states[id] == Expanding {
		delete(v.states, id)
	}
}

// Forget drops any record of id.
func (v *VisitedSet) Forget(id graph.NodeID) { delete(v.states, id) }

// Reset forgets every Expanded id and marks ids Expanded. Ids still Expanding
// keep their state so their fetch stays the only one in flight.
func (v *VisitedSet) Reset(ids ...graph.NodeID) {
	next := make(map[graph.NodeID]State, len(ids))
	for id, st := range v.states {
		if st == Expanding {
			next[id] = Expanding
		}
	}
	for _, id := range ids {
		next[id] = Expanded
	}
	v.states = next
}

// Expanded returns the Expanded ids in ascending order.
func (v *VisitedSet) Expanded() []graph.NodeID {
	out := make([]graph.NodeID, 0, len(v.states))
	for id, s := range v.states {
		if s == Expanded {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of ids that are Expanding or Expanded.
func (v *VisitedSet) Len() int { return len(v.states) }
