// Package inference derives inverse-direction edges from the relation vocabulary.
package inference

import (
	"strings"

	"github.com/gyaneshwarpardhi/kgexplorer/internal/graph"
)

// Vocabulary indexes relation types by case-folded name.
type Vocabulary struct {
	byName map[string]graph.RelationType
}

// NewVocabulary builds a Vocabulary. Later duplicates of a name are ignored.
func NewVocabulary(types []graph.RelationType) *Vocabulary {
	v := &Vocabulary{byName: make(map[string]graph.RelationType, len(types))}
	for _, t := range types {
		k := foldName(t.Name)
		if k == "" {
			continue
		}
		if _, exists := v.byName[k]; exists {
			continue
		}
		v.byName[k] = t
	}
	return v
}

// Lookup returns the relation type for name.
func (v *Vocabulary) Lookup(name string) (graph.RelationType, bool) {
	if v == nil {
		return graph.RelationType{}, false
	}
	t, ok := v.byName[foldName(name)]
	return t, ok
}

// Inverse returns the inverse name declared for name, if any.
func (v *Vocabulary) Inverse(name string) (string, bool) {
	t, ok := v.Lookup(name)
	if !ok || !t.HasInverse() {
		return "", false
	}
	return strings.TrimSpace(t.InverseName), true
}

// Len returns the number of distinct relation names.
func (v *Vocabulary) Len() int {
	if v == nil {
		return 0
	}
	return len(v.byName)
}

// Resolve recomputes the full inferred-edge set for the declared edges.
//
// For each declared (s, t, r) whose type has an inverse name, one inferred
// (t, s, inverse) is emitted when both s and t satisfy visible. Relations with
// no matching type produce nothing. An inferred edge whose key collides with a
// declared edge or an earlier inferred edge is skipped.
func Resolve(declared []graph.Edge, visible func(graph.NodeID) bool, vocab *Vocabulary) []graph.Edge {
	taken := make(map[graph.EdgeKey]struct{}, len(declared))
	for _, e := range declared {
		taken[e.Key()] = struct{}{}
	}

	var out []graph.Edge
	for _, e := range declared {
		if e.Inferred {
			continue
		}
		inv, ok := vocab.Inverse(e.Label)
		if !ok {
			continue // vocabulary gap
		}
		if !visible(e.Source) || !visible(e.Target) {
			continue
		}
		ie := graph.Edge{Source: e.Target, Target: e.Source, Label: inv, Inferred: true}
		if _, dup := taken[ie.Key()]; dup {
			continue
		}
		taken[ie.Key()] = struct{}{}
		out = append(out, ie)
	}
	return out
}

// ResolveStore recomputes inferred edges over the store's declared edges and installs them.
func ResolveStore(s *graph.Store, vocab *Vocabulary) int {
	inferred := Resolve(s.Declared(), s.HasNode, vocab)
	s.SetInferred(inferred)
	return len(inferred)
}

// IncomingWithInverse returns catalog relations targeting id whose type declares
// an inverse. These are the relations whose sources must be visible for the
// inverse edges of id to appear.
func IncomingWithInverse(relations []graph.Relation, id graph.NodeID, vocab *Vocabulary) []graph.Relation {
	var out []graph.Relation
	for _, r := range relations {
		if !r.Resolved() || r.Target != id {
			continue
		}
		if _, ok := vocab.Inverse(r.Label); !ok {
			continue
		}
		out = append(out, r)
	}
	return out
}

func foldName(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
