// Package graph holds the visible working set of the knowledge graph.
package graph

import "strings"

// MergeNodes returns the union of existing and incoming keyed by id.
// Existing entries win, so positions and pins accumulated on them survive.
// The order is existing first, then new incoming nodes in arrival order.
func MergeNodes(existing, incoming []*Node) []*Node {
	seen := make(map[NodeID]struct{}, len(existing)+len(incoming))
	out := make([]*Node, 0, len(existing)+len(incoming))
	for _, n := range existing {
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		out = append(out, n)
	}
	for _, n := range incoming {
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		out = append(out, n)
	}
	return out
}

// MergeEdges returns the union of existing and incoming keyed by (source, target, label).
// Duplicates are dropped silently; the first occurrence wins.
func MergeEdges(existing, incoming []Edge) []Edge {
	seen := make(map[EdgeKey]struct{}, len(existing)+len(incoming))
	out := make([]Edge, 0, len(existing)+len(incoming))
	for _, list := range [][]Edge{existing, incoming} {
		for _, e := range list {
			k := e.Key()
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, e)
		}
	}
	return out
}

// Store is the single source of truth for the visible subgraph.
// It is not safe for concurrent use; one goroutine owns it.
type Store struct {
	nodes    []*Node
	byID     map[NodeID]*Node
	declared []Edge
	inferred []Edge
}

// NewStore allocates an empty Store.
func NewStore() *Store {
	return &Store{byID: make(map[NodeID]*Node)}
}

// Merge unions nodes and declared edges into the store.
// Edges referencing a node absent from the resulting node set are dropped;
// the number of dropped edges is returned.
func (s *Store) Merge(nodes []Node, edges []Edge) (dropped int) {
	incoming := make([]*Node, 0, len(nodes))
	for i := range nodes {
		n := nodes[i]
		incoming = append(incoming, &n)
	}
	s.nodes = MergeNodes(s.nodes, incoming)
	s.reindex()

	valid := make([]Edge, 0, len(edges))
	for _, e := range edges {
		if e.Inferred {
			continue
		}
		if !s.HasNode(e.Source) || !s.HasNode(e.Target) {
			dropped++
			continue
		}
		valid = append(valid, e)
	}
	s.declared = MergeEdges(s.declared, valid)
	return dropped
}

// Replace resets the visible set to exactly nodes and edges.
// Node objects already in the store are reused so their layout state is kept.
func (s *Store) Replace(nodes []Node, edges []Edge) (dropped int) {
	prev := s.byID
	next := make([]*Node, 0, len(nodes))
	for i := range nodes {
		if n, ok := prev[nodes[i].ID]; ok {
			next = append(next, n)
			continue
		}
		n := nodes[i]
		next = append(next, &n)
	}
	s.nodes = MergeNodes(nil, next)
	s.reindex()
	s.declared = nil
	s.inferred = nil
	return s.Merge(nil, edges)
}

// RemoveNode removes the node and every edge where it is source or target.
func (s *Store) RemoveNode(id NodeID) bool {
	if _, ok := s.byID[id]; !ok {
		return false
	}
	kept := make([]*Node, 0, len(s.nodes)-1)
	for _, n := range s.nodes {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	s.nodes = kept
	delete(s.byID, id)
	s.declared = filterEdges(s.declared, func(e Edge) bool { return !e.Touches(id) })
	s.inferred = filterEdges(s.inferred, func(e Edge) bool { return !e.Touches(id) })
	return true
}

// RemoveRelation removes the declared edge with the given persisted id.
func (s *Store) RemoveRelation(id int64) bool {
	before := len(s.declared)
	s.declared = filterEdges(s.declared, func(e Edge) bool { return e.ID != id })
	return len(s.declared) != before
}

// RemoveEdge removes the declared edge with the given key.
func (s *Store) RemoveEdge(k EdgeKey) bool {
	before := len(s.declared)
	s.declared = filterEdges(s.declared, func(e Edge) bool { return e.Key() != k })
	return len(s.declared) != before
}

// UpdateNode edits label and summary in place.
func (s *Store) UpdateNode(id NodeID, f NodeFields) bool {
	n, ok := s.byID[id]
	if !ok {
		return false
	}
	if f.Label != nil {
		n.Label = *f.Label
	}
	if f.Summary != nil {
		n.Summary = *f.Summary
	}
	return true
}

// RenameLabel relabels declared edges whose label equals from, ignoring case.
// It returns the number of edges touched.
func (s *Store) RenameLabel(from, to string) int {
	n := 0
	for i := range s.declared {
		if strings.EqualFold(s.declared[i].Label, from) {
			s.declared[i].Label = to
			n++
		}
	}
	if n > 0 {
		s.declared = MergeEdges(nil, s.declared)
	}
	return n
}

// SetInferred replaces the inferred edge set. Edges with a missing endpoint are skipped.
func (s *Store) SetInferred(edges []Edge) {
	out := make([]Edge, 0, len(edges))
	for _, e := range edges {
		if !s.HasNode(e.Source) || !s.HasNode(e.Target) {
			continue
		}
		e.Inferred = true
		e.ID = 0
		out = append(out, e)
	}
	s.inferred = MergeEdges(nil, out)
}

// Clear removes all nodes and edges.
func (s *Store) Clear() {
	s.nodes = nil
	s.byID = make(map[NodeID]*Node)
	s.declared = nil
	s.inferred = nil
}

// Node returns a node by id (nil if not visible).
func (s *Store) Node(id NodeID) *Node { return s.byID[id] }

// HasNode reports whether id is visible.
func (s *Store) HasNode(id NodeID) bool {
	_, ok := s.byID[id]
	return ok
}

// Nodes returns the visible nodes in insertion order.
func (s *Store) Nodes() []*Node { return s.nodes }

// Declared returns the declared edges.
func (s *Store) Declared() []Edge { return s.declared }

// Inferred returns the inferred edges.
func (s *Store) Inferred() []Edge { return s.inferred }

// Edges returns declared edges followed by inferred ones.
func (s *Store) Edges() []Edge {
	out := make([]Edge, 0, len(s.declared)+len(s.inferred))
	out = append(out, s.declared...)
	return append(out, s.inferred...)
}

// NodeCount returns the number of visible nodes.
func (s *Store) NodeCount() int { return len(s.nodes) }

// EdgeCount returns the number of visible edges of both kinds.
func (s *Store) EdgeCount() int { return len(s.declared) + len(s.inferred) }

func (s *Store) reindex() {
	s.byID = make(map[NodeID]*Node, len(s.nodes))
	for _, n := range s.nodes {
		s.byID[n.ID] = n
	}
}

func filterEdges(edges []Edge, keep func(Edge) bool) []Edge {
	out := make([]Edge, 0, len(edges))
	for _, e := range edges {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
