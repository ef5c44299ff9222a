package graph

import "strings"

// NodeID identifies a node. Ids are assigned by the data provider and are stable.
type NodeID int64

// Node is an entity in the visible graph.
// Position and velocity are owned by the layout engine; FX/FY are the pin override.
type Node struct {
	ID         NodeID `json:"id"`
	Label      string `json:"label"`
	Summary    string `json:"summary,omitempty"`
	IsInstance bool   `json:"is_instance,omitempty"`

	X  float64  `json:"x"`
	Y  float64  `json:"y"`
	VX float64  `json:"vx"`
	VY float64  `json:"vy"`
	FX *float64 `json:"fx"`
	FY *float64 `json:"fy"`

	// Placed is false until the layout engine assigns a position.
	Placed bool `json:"-"`
}

// Pinned reports whether the node has a fixed-position override.
func (n *Node) Pinned() bool { return n.FX != nil && n.FY != nil }

// Pin fixes the node at (x, y).
func (n *Node) Pin(x, y float64) {
	n.FX = &x
	n.FY = &y
}

// Unpin clears the fixed-position override.
func (n *Node) Unpin() {
	n.FX = nil
	n.FY = nil
}

// NodeFields is the editable subset of a node.
type NodeFields struct {
	Label   *string `json:"title,omitempty"`
	Summary *string `json:"summary,omitempty"`
}

// EdgeKey is the identity of a displayed edge.
type EdgeKey struct {
	Source NodeID
	Target NodeID
	Label  string
}

// Edge is a displayed relation. Declared edges carry the persisted relation id;
// inferred edges are synthesized and have ID == 0.
type Edge struct {
	Source   NodeID `json:"source"`
	Target   NodeID `json:"target"`
	Label    string `json:"label"`
	Inferred bool   `json:"_inferred"`
	ID       int64  `json:"id,omitempty"`
}

// Key returns the (source, target, label) identity of the edge.
func (e Edge) Key() EdgeKey {
	return EdgeKey{Source: e.Source, Target: e.Target, Label: e.Label}
}

// Touches reports whether id is either endpoint of the edge.
func (e Edge) Touches(id NodeID) bool { return e.Source == id || e.Target == id }

// Relation is a persisted relation instance as listed by the provider catalog.
// SourceLabel/TargetLabel are informational; matching is always done by id.
type Relation struct {
	ID          int64  `json:"id"`
	Source      NodeID `json:"source"`
	Target      NodeID `json:"target"`
	SourceLabel string `json:"source_label"`
	TargetLabel string `json:"target_label"`
	Label       string `json:"label"`
	TypeID      int64  `json:"relation_type_id,omitempty"`
}

// Edge converts the relation to a declared edge.
func (r Relation) Edge() Edge {
	return Edge{Source: r.Source, Target: r.Target, Label: r.Label, ID: r.ID}
}

// Resolved reports whether both endpoint ids are known.
func (r Relation) Resolved() bool { return r.Source != 0 && r.Target != 0 }

// RelationType is an entry of the relation vocabulary.
type RelationType struct {
	ID          int64  `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	InverseName string `json:"inverse_name,omitempty" yaml:"inverse_name"`
	Symmetric   bool   `json:"symmetric" yaml:"symmetric"`
	Transitive  bool   `json:"transitive" yaml:"transitive"`
}

// HasInverse reports whether the type declares a non-empty inverse name.
func (t RelationType) HasInverse() bool { return strings.TrimSpace(t.InverseName) != "" }

// Neighborhood is the result of fetching one node's immediate surroundings.
type Neighborhood struct {
	Nodes []Node `json:"nodes"`
	Links []Edge `json:"links"`
}
