package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/kgexplorer/internal/graph"
)

func TestMergeNodes_ExistingWins(t *testing.T) {
	a := &graph.Node{ID: 1, Label: "Cell", X: 40, Y: 50, Placed: true}
	a.Pin(40, 50)
	merged := graph.MergeNodes(
		[]*graph.Node{a},
		[]*graph.Node{{ID: 1, Label: "Cell (refetched)"}, {ID: 2, Label: "Nucleus"}},
	)

	require.Len(t, merged, 2)
	assert.Same(t, a, merged[0])
	assert.Equal(t, "Cell", merged[0].Label)
	assert.True(t, merged[0].Pinned())
	assert.Equal(t, graph.NodeID(2), merged[1].ID)
}

func TestMergeEdges_DedupByTriple(t *testing.T) {
	existing := []graph.Edge{{Source: 1, Target: 2, Label: "part_of", ID: 7}}
	incoming := []graph.Edge{
		{Source: 1, Target: 2, Label: "part_of", ID: 7},
		{Source: 1, Target: 2, Label: "contains", ID: 8},
		{Source: 2, Target: 1, Label: "part_of", ID: 9},
	}
	merged := graph.MergeEdges(existing, incoming)
	assert.Len(t, merged, 3)
}

func TestMerge_IsSetUnion(t *testing.T) {
	first := graph.Neighborhood{
		Nodes: []graph.Node{{ID: 1}, {ID: 2}, {ID: 3}},
		Links: []graph.Edge{{Source: 1, Target: 2, Label: "r"}, {Source: 1, Target: 3, Label: "r"}},
	}
	second := graph.Neighborhood{
		Nodes: []graph.Node{{ID: 3}, {ID: 4}, {ID: 1}},
		Links: []graph.Edge{{Source: 3, Target: 4, Label: "r"}, {Source: 1, Target: 3, Label: "r"}},
	}

	s := graph.NewStore()
	s.Merge(first.Nodes, first.Links)
	s.Merge(second.Nodes, second.Links)

	assert.Equal(t, 4, s.NodeCount())
	assert.Len(t, s.Declared(), 3)
}

func TestMerge_DropsDanglingEdges(t *testing.T) {
	s := graph.NewStore()
	dropped := s.Merge(
		[]graph.Node{{ID: 1}, {ID: 2}},
		[]graph.Edge{{Source: 1, Target: 2, Label: "r"}, {Source: 1, Target: 99, Label: "r"}},
	)
	assert.Equal(t, 1, dropped)
	assert.Len(t, s.Declared(), 1)
}

func TestMerge_IgnoresInferredInput(t *testing.T) {
	s := graph.NewStore()
	s.Merge(
		[]graph.Node{{ID: 1}, {ID: 2}},
		[]graph.Edge{{Source: 2, Target: 1, Label: "child_of", Inferred: true}},
	)
	assert.Empty(t, s.Declared())
}

func TestRemoveNode_ReferentialIntegrity(t *testing.T) {
	s := graph.NewStore()
	s.Merge(
		[]graph.Node{{ID: 1}, {ID: 2}, {ID: 3}},
		[]graph.Edge{
			{Source: 1, Target: 2, Label: "r", ID: 1},
			{Source: 2, Target: 3, Label: "r", ID: 2},
			{Source: 1, Target: 3, Label: "r", ID: 3},
		},
	)
	s.SetInferred([]graph.Edge{{Source: 2, Target: 1, Label: "inv"}, {Source: 3, Target: 1, Label: "inv"}})

	require.True(t, s.RemoveNode(2))
	assert.False(t, s.RemoveNode(2))
	assert.False(t, s.HasNode(2))
	for _, e := range s.Edges() {
		assert.NotEqual(t, graph.NodeID(2), e.Source)
		assert.NotEqual(t, graph.NodeID(2), e.Target)
	}
	assert.Len(t, s.Declared(), 1)
	assert.Len(t, s.Inferred(), 1)
}

func TestReplace_KeepsLayoutStateOfSurvivors(t *testing.T) {
	s := graph.NewStore()
	s.Merge([]graph.Node{{ID: 1, Label: "A"}, {ID: 2, Label: "B"}}, nil)
	s.Node(1).X, s.Node(1).Y, s.Node(1).Placed = 10, 20, true

	s.Replace([]graph.Node{{ID: 1}, {ID: 3}}, []graph.Edge{{Source: 1, Target: 3, Label: "r"}})

	require.Equal(t, 2, s.NodeCount())
	assert.False(t, s.HasNode(2))
	assert.Equal(t, 10.0, s.Node(1).X)
	assert.Equal(t, "A", s.Node(1).Label)
	assert.Len(t, s.Declared(), 1)
}

func TestSetInferred_SkipsOrphansAndStripsIDs(t *testing.T) {
	s := graph.NewStore()
	s.Merge([]graph.Node{{ID: 1}, {ID: 2}}, nil)
	s.SetInferred([]graph.Edge{
		{Source: 2, Target: 1, Label: "child_of", ID: 5},
		{Source: 3, Target: 1, Label: "child_of"},
	})

	require.Len(t, s.Inferred(), 1)
	assert.True(t, s.Inferred()[0].Inferred)
	assert.Zero(t, s.Inferred()[0].ID)
}

func TestRemoveRelationAndUpdate(t *testing.T) {
	s := graph.NewStore()
	s.Merge([]graph.Node{{ID: 1, Label: "old"}, {ID: 2}}, []graph.Edge{{Source: 1, Target: 2, Label: "r", ID: 42}})

	assert.True(t, s.RemoveRelation(42))
	assert.False(t, s.RemoveRelation(42))

	s.Merge(nil, []graph.Edge{{Source: 1, Target: 2, Label: "r"}})
	assert.True(t, s.RemoveEdge(graph.EdgeKey{Source: 1, Target: 2, Label: "r"}))
	assert.Empty(t, s.Declared())

	label := "new"
	assert.True(t, s.UpdateNode(1, graph.NodeFields{Label: &label}))
	assert.Equal(t, "new", s.Node(1).Label)
	assert.False(t, s.UpdateNode(9, graph.NodeFields{Label: &label}))
}

func TestPinUnpin(t *testing.T) {
	n := &graph.Node{ID: 1}
	n.Pin(3, 4)
	require.True(t, n.Pinned())
	assert.Equal(t, 3.0, *n.FX)
	n.Unpin()
	assert.Nil(t, n.FX)
	assert.Nil(t, n.FY)
}

func TestRenameLabel(t *testing.T) {
	s := graph.NewStore()
	s.Merge(
		[]graph.Node{{ID: 1}, {ID: 2}},
		[]graph.Edge{{Source: 1, Target: 2, Label: "parent_of", ID: 1}, {Source: 1, Target: 2, Label: "mentions", ID: 2}},
	)
	assert.Equal(t, 1, s.RenameLabel("Parent_Of", "ancestor_of"))
	assert.Equal(t, "ancestor_of", s.Declared()[0].Label)
	assert.Equal(t, "mentions", s.Declared()[1].Label)
	assert.Zero(t, s.RenameLabel("missing", "x"))
}
