package inference_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/kgexplorer/internal/graph"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/inference"
)

func parentVocab() *inference.Vocabulary {
	return inference.NewVocabulary([]graph.RelationType{
		{ID: 1, Name: "parent_of", InverseName: "child_of"},
		{ID: 2, Name: "related_to", Symmetric: true, InverseName: "related_to"},
		{ID: 3, Name: "mentions"},
	})
}

func TestResolve_ParentChildScenario(t *testing.T) {
	s := graph.NewStore()
	s.Merge(
		[]graph.Node{{ID: 1, Label: "A"}, {ID: 2, Label: "B"}},
		[]graph.Edge{{Source: 1, Target: 2, Label: "parent_of", ID: 10}},
	)

	n := inference.ResolveStore(s, parentVocab())
	require.Equal(t, 1, n)

	edges := s.Edges()
	require.Len(t, edges, 2)
	assert.Equal(t, graph.Edge{Source: 1, Target: 2, Label: "parent_of", ID: 10}, edges[0])
	assert.Equal(t, graph.Edge{Source: 2, Target: 1, Label: "child_of", Inferred: true}, edges[1])
}

func TestResolve_RemovingEndpointDropsInferred(t *testing.T) {
	s := graph.NewStore()
	s.Merge(
		[]graph.Node{{ID: 1}, {ID: 2}},
		[]graph.Edge{{Source: 1, Target: 2, Label: "parent_of", ID: 10}},
	)
	vocab := parentVocab()
	inference.ResolveStore(s, vocab)
	require.Len(t, s.Inferred(), 1)

	s.RemoveNode(2)
	inference.ResolveStore(s, vocab)
	assert.Empty(t, s.Inferred())
}

func TestResolve_InvisibleEndpointSkipped(t *testing.T) {
	declared := []graph.Edge{{Source: 1, Target: 2, Label: "parent_of"}}
	visible := func(id graph.NodeID) bool { return id == 1 }
	assert.Empty(t, inference.Resolve(declared, visible, parentVocab()))
}

func TestResolve_VocabularyGapIsNotAnError(t *testing.T) {
	declared := []graph.Edge{
		{Source: 1, Target: 2, Label: "unknown_rel"},
		{Source: 1, Target: 2, Label: "mentions"},
	}
	all := func(graph.NodeID) bool { return true }
	assert.Empty(t, inference.Resolve(declared, all, parentVocab()))
	assert.Empty(t, inference.Resolve(declared, all, nil))
}

func TestResolve_SymmetricDoesNotDoubleRender(t *testing.T) {
	declared := []graph.Edge{
		{Source: 1, Target: 2, Label: "related_to", ID: 1},
		{Source: 2, Target: 1, Label: "related_to", ID: 2},
	}
	all := func(graph.NodeID) bool { return true }
	assert.Empty(t, inference.Resolve(declared, all, parentVocab()))

	one := declared[:1]
	got := inference.Resolve(one, all, parentVocab())
	require.Len(t, got, 1)
	assert.Equal(t, graph.EdgeKey{Source: 2, Target: 1, Label: "related_to"}, got[0].Key())
}

func TestResolve_CaseInsensitiveTypeLookup(t *testing.T) {
	declared := []graph.Edge{{Source: 1, Target: 2, Label: "Parent_Of"}}
	got := inference.Resolve(declared, func(graph.NodeID) bool { return true }, parentVocab())
	require.Len(t, got, 1)
	assert.Equal(t, "child_of", got[0].Label)
}

func TestResolve_MatchesByIDNotLabel(t *testing.T) {
	// Two visible nodes share a label; only the id-matched pair gets the inverse.
	s := graph.NewStore()
	s.Merge(
		[]graph.Node{{ID: 1, Label: "Mercury"}, {ID: 2, Label: "Mercury"}, {ID: 3, Label: "Sun"}},
		[]graph.Edge{{Source: 3, Target: 2, Label: "parent_of", ID: 1}},
	)
	inference.ResolveStore(s, parentVocab())

	require.Len(t, s.Inferred(), 1)
	assert.Equal(t, graph.NodeID(2), s.Inferred()[0].Source)
	assert.Equal(t, graph.NodeID(3), s.Inferred()[0].Target)
}

func TestIncomingWithInverse(t *testing.T) {
	rels := []graph.Relation{
		{ID: 1, Source: 5, Target: 2, Label: "parent_of"},
		{ID: 2, Source: 6, Target: 2, Label: "mentions"},
		{ID: 3, Source: 2, Target: 7, Label: "parent_of"},
		{ID: 4, Source: 0, Target: 2, Label: "parent_of"},
	}
	got := inference.IncomingWithInverse(rels, 2, parentVocab())
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].ID)
}

func TestVocabulary(t *testing.T) {
	v := parentVocab()
	assert.Equal(t, 3, v.Len())
	inv, ok := v.Inverse("parent_of")
	assert.True(t, ok)
	assert.Equal(t, "child_of", inv)
	_, ok = v.Inverse("mentions")
	assert.False(t, ok)
}
