package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/kgexplorer/internal/graph"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/provider"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/provider/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCRUDAndNeighborhood(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	parent, err := s.AddRelationType(ctx, graph.RelationType{Name: "parent_of", InverseName: "child_of"})
	require.NoError(t, err)
	_, err = s.AddRelationType(ctx, graph.RelationType{Name: "PARENT_OF"})
	assert.ErrorIs(t, err, provider.ErrConflict)

	bio, err := s.CreateNode(ctx, "Biology")
	require.NoError(t, err)
	cell, err := s.CreateNode(ctx, "Cell")
	require.NoError(t, err)
	_, err = s.CreateNode(ctx, "cell")
	assert.ErrorIs(t, err, provider.ErrConflict)

	rel, err := s.CreateRelation(ctx, bio.ID, cell.ID, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, "Biology", rel.SourceLabel)
	assert.Equal(t, "parent_of", rel.Label)

	nb, err := s.FetchNeighborhood(ctx, bio.ID)
	require.NoError(t, err)
	require.Len(t, nb.Nodes, 2)
	require.Len(t, nb.Links, 1)
	assert.Equal(t, graph.Edge{Source: bio.ID, Target: cell.ID, Label: "parent_of", ID: rel.ID}, nb.Links[0])

	types, err := s.FetchRelationTypes(ctx)
	require.NoError(t, err)
	require.Len(t, types, 1)
	assert.Equal(t, "child_of", types[0].InverseName)

	rels, err := s.FetchAllRelations(ctx)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, cell.ID, rels[0].Target)
	assert.Equal(t, "Cell", rels[0].TargetLabel)
}

func TestDeleteNode_Conflict(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	rt, err := s.AddRelationType(ctx, graph.RelationType{Name: "part_of"})
	require.NoError(t, err)
	a, _ := s.CreateNode(ctx, "Nucleus")
	b, _ := s.CreateNode(ctx, "Cell")
	rel, err := s.CreateRelation(ctx, a.ID, b.ID, rt.ID)
	require.NoError(t, err)

	err = s.DeleteNode(ctx, b.ID)
	require.ErrorIs(t, err, provider.ErrConflict)
	assert.Contains(t, err.Error(), "Node has 1 relation(s)")

	require.NoError(t, s.DeleteRelation(ctx, rel.ID))
	require.NoError(t, s.DeleteNode(ctx, b.ID))
	assert.ErrorIs(t, s.DeleteNode(ctx, b.ID), provider.ErrNotFound)
	assert.ErrorIs(t, s.DeleteRelation(ctx, rel.ID), provider.ErrNotFound)

	_, err = s.FetchNeighborhood(ctx, b.ID)
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

func TestUpdateNode_PartialFields(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	n, err := s.CreateNode(ctx, "Mitochondria")
	require.NoError(t, err)

	summary := "Powerhouse of the cell."
	require.NoError(t, s.UpdateNode(ctx, n.ID, graph.NodeFields{Summary: &summary}))
	nodes, err := s.FetchAllNodes(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "Mitochondria", nodes[0].Label)
	assert.Equal(t, summary, nodes[0].Summary)

	assert.ErrorIs(t, s.UpdateNode(ctx, 999, graph.NodeFields{Summary: &summary}), provider.ErrNotFound)
}

func TestCreateRelation_UnknownEndpoint(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	rt, err := s.AddRelationType(ctx, graph.RelationType{Name: "mentions"})
	require.NoError(t, err)
	a, _ := s.CreateNode(ctx, "A")

	_, err = s.CreateRelation(ctx, a.ID, 42, rt.ID)
	assert.ErrorIs(t, err, provider.ErrNotFound)
	_, err = s.CreateRelation(ctx, a.ID, a.ID, 77)
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

func TestReopenFileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.db")
	s, err := sqlite.New(path)
	require.NoError(t, err)
	_, err = s.CreateNode(context.Background(), "Persisted")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = sqlite.New(path)
	require.NoError(t, err)
	defer s.Close()
	nodes, err := s.FetchAllNodes(context.Background())
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "Persisted", nodes[0].Label)
}

func TestUpdateRelationType(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	parent, err := s.AddRelationType(ctx, graph.RelationType{Name: "parent_of", InverseName: "child_of"})
	require.NoError(t, err)
	_, err = s.AddRelationType(ctx, graph.RelationType{Name: "mentions"})
	require.NoError(t, err)
	a, err := s.CreateNode(ctx, "A")
	require.NoError(t, err)
	b, err := s.CreateNode(ctx, "B")
	require.NoError(t, err)
	_, err = s.CreateRelation(ctx, a.ID, b.ID, parent.ID)
	require.NoError(t, err)

	parent.InverseName = ""
	parent.Name = "ancestor_of"
	_, err = s.UpdateRelationType(ctx, parent)
	require.NoError(t, err)

	types, err := s.FetchRelationTypes(ctx)
	require.NoError(t, err)
	require.Len(t, types, 2)
	assert.Equal(t, "ancestor_of", types[0].Name)
	assert.False(t, types[0].HasInverse())

	nb, err := s.FetchNeighborhood(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, nb.Links, 1)
	assert.Equal(t, "ancestor_of", nb.Links[0].Label)

	parent.Name = "Mentions"
	_, err = s.UpdateRelationType(ctx, parent)
	assert.ErrorIs(t, err, provider.ErrConflict)
	_, err = s.UpdateRelationType(ctx, graph.RelationType{ID: 99, Name: "ghost"})
	assert.ErrorIs(t, err, provider.ErrNotFound)
}
