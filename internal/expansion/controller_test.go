package expansion_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/kgexplorer/internal/expansion"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/graph"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/provider"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/provider/memory"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/query"
)

// countingProvider counts neighbourhood fetches and can be told to fail them.
type countingProvider struct {
	*memory.Store
	fetches map[graph.NodeID]int
	fail    error
}

func (p *countingProvider) FetchNeighborhood(ctx context.Context, id graph.NodeID) (*graph.Neighborhood, error) {
	p.fetches[id]++
	if p.fail != nil {
		return nil, &provider.FetchError{Op: "neighbors", Err: p.fail}
	}
	return p.Store.FetchNeighborhood(ctx, id)
}

func fixture(t *testing.T) (*expansion.Controller, *countingProvider) {
	t.Helper()
	mem, err := memory.FromSeed(memory.Seed{
		RelationTypes: []graph.RelationType{
			{ID: 1, Name: "parent_of", InverseName: "child_of"},
			{ID: 2, Name: "mentions"},
		},
		Nodes: []memory.SeedNode{
			{ID: 1, Title: "A"}, {ID: 2, Title: "B"}, {ID: 3, Title: "C"}, {ID: 4, Title: "D"},
		},
		Relations: []memory.SeedRelation{
			{ID: 10, Source: 1, Target: 2, Type: "parent_of"},
			{ID: 11, Source: 2, Target: 3, Type: "mentions"},
			{ID: 12, Source: 4, Target: 2, Type: "parent_of"},
		},
	})
	require.NoError(t, err)
	p := &countingProvider{Store: mem, fetches: map[graph.NodeID]int{}}
	c := expansion.New(graph.NewStore(), nil, p, nil)
	require.NoError(t, c.RefreshCatalog(context.Background()))
	return c, p
}

func TestExpand_ParentChildScenario(t *testing.T) {
	c, _ := fixture(t)
	out, err := c.Expand(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, expansion.StatusMerged, out.Status)
	assert.Equal(t, 2, out.NewNodes)

	edges := c.Store().Edges()
	require.Len(t, edges, 2)
	assert.Equal(t, graph.Edge{Source: 1, Target: 2, Label: "parent_of", ID: 10}, edges[0])
	assert.Equal(t, graph.Edge{Source: 2, Target: 1, Label: "child_of", Inferred: true}, edges[1])
}

func TestExpand_Idempotent(t *testing.T) {
	c, p := fixture(t)
	ctx := context.Background()
	_, err := c.Expand(ctx, 1)
	require.NoError(t, err)
	nodes, edges := c.Store().NodeCount(), c.Store().EdgeCount()

	out, err := c.Expand(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, expansion.StatusSkipped, out.Status)
	assert.Equal(t, 1, p.fetches[1])
	assert.Equal(t, nodes, c.Store().NodeCount())
	assert.Equal(t, edges, c.Store().EdgeCount())
}

func TestExpand_NeighbourAlreadyPresentIsNotDuplicated(t *testing.T) {
	c, p := fixture(t)
	ctx := context.Background()
	_, err := c.Expand(ctx, 4) // brings in 2
	require.NoError(t, err)
	_, err = c.Expand(ctx, 1) // also returns 2
	require.NoError(t, err)

	count := 0
	for _, n := range c.Store().Nodes() {
		if n.ID == 2 {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Zero(t, p.fetches[2])
	assert.Equal(t, expansion.Unexpanded, c.Visited().State(2))
}

func TestExpand_FailureAllowsRetry(t *testing.T) {
	c, p := fixture(t)
	ctx := context.Background()
	p.fail = errors.New("connection refused")

	out, err := c.Expand(ctx, 1)
	require.Error(t, err)
	assert.True(t, provider.IsFetchFailure(err))
	assert.Equal(t, expansion.StatusFailed, out.Status)
	assert.Equal(t, expansion.Unexpanded, c.Visited().State(1))
	assert.Zero(t, c.Store().NodeCount())

	p.fail = nil
	out, err = c.Expand(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, expansion.StatusMerged, out.Status)
	assert.Equal(t, 2, p.fetches[1])
}

func TestBeginExpand_BlocksDuplicateInFlight(t *testing.T) {
	c, _ := fixture(t)
	_, ok := c.BeginExpand(1)
	require.True(t, ok)
	_, ok = c.BeginExpand(1)
	assert.False(t, ok)
	assert.Equal(t, expansion.Expanding, c.Visited().State(1))
}

func TestFinishExpand_DropsStaleResponse(t *testing.T) {
	c, p := fixture(t)
	ctx := context.Background()
	_, err := c.Expand(ctx, 1)
	require.NoError(t, err)

	ticket, ok := c.BeginExpand(2)
	require.True(t, ok)
	nb, err := p.FetchNeighborhood(ctx, 2)
	require.NoError(t, err)

	// node 2 is removed while its fetch is in flight
	c.Store().RemoveNode(2)
	out, err := c.FinishExpand(ticket, nb, nil)
	require.NoError(t, err)
	assert.Equal(t, expansion.StatusStale, out.Status)
	assert.False(t, c.Store().HasNode(2))
	assert.False(t, c.Store().HasNode(3))
}

func TestFinishExpand_OutOfOrderCompletion(t *testing.T) {
	c, p := fixture(t)
	ctx := context.Background()
	t1, ok := c.BeginExpand(1)
	require.True(t, ok)
	t4, ok := c.BeginExpand(4)
	require.True(t, ok)
	nb1, _ := p.FetchNeighborhood(ctx, 1)
	nb4, _ := p.FetchNeighborhood(ctx, 4)

	_, err := c.FinishExpand(t4, nb4, nil)
	require.NoError(t, err)
	_, err = c.FinishExpand(t1, nb1, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, c.Store().NodeCount())
	assert.Len(t, c.Store().Declared(), 2)
	assert.Len(t, c.Store().Inferred(), 2)
	assert.Equal(t, []graph.NodeID{1, 4}, c.Visited().Expanded())
}

func TestShowNodeAndNeighbors_Replaces(t *testing.T) {
	c, _ := fixture(t)
	ctx := context.Background()
	_, err := c.Expand(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, c.ShowNodeAndNeighbors(ctx, 2))

	// 2's own neighbourhood is {2, 3}; 1 and 4 are parents of 2, so they come
	// along for the child_of edges.
	ids := map[graph.NodeID]bool{}
	for _, n := range c.Store().Nodes() {
		ids[n.ID] = true
	}
	assert.Equal(t, map[graph.NodeID]bool{1: true, 2: true, 3: true, 4: true}, ids)
	assert.Len(t, c.Store().Inferred(), 2)
	assert.Equal(t, []graph.NodeID{2}, c.Visited().Expanded())
	sel, ok := c.Selected()
	assert.True(t, ok)
	assert.Equal(t, graph.NodeID(2), sel)
}

func TestShowNodeAndNeighbors_FailureKeepsState(t *testing.T) {
	c, p := fixture(t)
	ctx := context.Background()
	_, err := c.Expand(ctx, 1)
	require.NoError(t, err)
	p.fail = errors.New("timeout")

	require.Error(t, c.ShowNodeAndNeighbors(ctx, 3))
	assert.Equal(t, 2, c.Store().NodeCount())
	assert.Equal(t, []graph.NodeID{1}, c.Visited().Expanded())
}

func TestShowRelation(t *testing.T) {
	c, _ := fixture(t)
	ctx := context.Background()
	_, err := c.Expand(ctx, 1)
	require.NoError(t, err)
	c.Store().Node(1).X = 42
	require.True(t, c.Select(1))

	rel, ok := c.RelationByID(11)
	require.True(t, ok)
	require.NoError(t, c.ShowRelation(rel))

	assert.Equal(t, 2, c.Store().NodeCount())
	assert.True(t, c.Store().HasNode(2))
	assert.True(t, c.Store().HasNode(3))
	assert.Equal(t, []graph.Edge{{Source: 2, Target: 3, Label: "mentions", ID: 11}}, c.Store().Edges())
	_, selected := c.Selected()
	assert.False(t, selected)
	assert.Zero(t, c.Visited().Len())

	assert.ErrorIs(t, c.ShowRelation(graph.Relation{ID: 99}), provider.ErrNotFound)
}

func TestDeleteNode_ConflictLeavesStateUntouched(t *testing.T) {
	c, _ := fixture(t)
	ctx := context.Background()
	_, err := c.Expand(ctx, 1)
	require.NoError(t, err)

	err = c.DeleteNode(ctx, 2)
	require.ErrorIs(t, err, provider.ErrConflict)
	assert.True(t, c.Store().HasNode(2))
	assert.Len(t, c.Catalog().Nodes, 4)
}

func TestCreateAndDeleteRelation(t *testing.T) {
	c, _ := fixture(t)
	ctx := context.Background()
	_, err := c.Expand(ctx, 2)
	require.NoError(t, err)
	require.Len(t, c.Store().Inferred(), 0)

	rel, err := c.CreateRelation(ctx, 2, 3, 1)
	require.NoError(t, err)
	require.Len(t, c.Store().Inferred(), 1)
	assert.Equal(t, graph.EdgeKey{Source: 3, Target: 2, Label: "child_of"}, c.Store().Inferred()[0].Key())

	require.NoError(t, c.DeleteRelation(ctx, rel.ID))
	assert.Empty(t, c.Store().Inferred())
	for _, e := range c.Store().Declared() {
		assert.NotEqual(t, rel.ID, e.ID)
	}
	_, known := c.RelationByID(rel.ID)
	assert.False(t, known)
}

func TestCreateRelation_InvisibleEndpointOnlyUpdatesCatalog(t *testing.T) {
	c, _ := fixture(t)
	ctx := context.Background()
	_, err := c.Expand(ctx, 1)
	require.NoError(t, err)
	before := c.Store().EdgeCount()

	_, err = c.CreateRelation(ctx, 1, 4, 2)
	require.NoError(t, err)
	assert.Equal(t, before, c.Store().EdgeCount())
	assert.Len(t, c.Catalog().Relations, 4)
}

func TestCreateNodeThenDelete(t *testing.T) {
	c, _ := fixture(t)
	ctx := context.Background()
	var changes []expansion.Change
	c.OnChange(func(ch expansion.Change) { changes = append(changes, ch) })

	n, err := c.CreateNode(ctx, "E")
	require.NoError(t, err)
	assert.True(t, c.Store().HasNode(n.ID))
	sel, _ := c.Selected()
	assert.Equal(t, n.ID, sel)

	title := "Epsilon"
	require.NoError(t, c.UpdateNode(ctx, n.ID, graph.NodeFields{Label: &title}))
	assert.Equal(t, "Epsilon", c.Store().Node(n.ID).Label)

	require.NoError(t, c.DeleteNode(ctx, n.ID))
	assert.False(t, c.Store().HasNode(n.ID))
	_, selected := c.Selected()
	assert.False(t, selected)

	require.Len(t, changes, 3)
	assert.Equal(t, expansion.Appended, changes[0].Kind)
	assert.Equal(t, expansion.Edited, changes[1].Kind)
	assert.Equal(t, expansion.Removed, changes[2].Kind)
}

func TestCreateRelationType_RecomputesInference(t *testing.T) {
	c, _ := fixture(t)
	ctx := context.Background()
	_, err := c.Expand(ctx, 2) // 2 -mentions-> 3
	require.NoError(t, err)
	require.Empty(t, c.Store().Inferred())

	_, err = c.CreateRelationType(ctx, graph.RelationType{Name: "cites", InverseName: "cited_by"})
	require.NoError(t, err)
	assert.Equal(t, 3, c.Vocabulary().Len())
}

func TestSearchNodes(t *testing.T) {
	c, _ := fixture(t)
	got := c.SearchNodes("", query.MustCompile("degree >= 2"))
	require.Len(t, got, 1)
	assert.Equal(t, graph.NodeID(2), got[0].ID)

	got = c.SearchNodes("a", nil)
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].Label)

	assert.Len(t, c.SearchNodes("", nil), 4)
}

func TestShow_KeepsInFlightExpansion(t *testing.T) {
	c, p := fixture(t)
	ctx := context.Background()

	ticket, ok := c.BeginExpand(2)
	require.True(t, ok)
	require.NoError(t, c.ShowNodeAndNeighbors(ctx, 1))
	require.True(t, c.Store().HasNode(2))

	// a second click on 2 must not start another fetch
	_, ok = c.BeginExpand(2)
	assert.False(t, ok)
	assert.Equal(t, expansion.Expanding, c.Visited().State(2))

	nb, err := p.FetchNeighborhood(ctx, 2)
	require.NoError(t, err)
	out, err := c.FinishExpand(ticket, nb, nil)
	require.NoError(t, err)
	assert.Equal(t, expansion.StatusMerged, out.Status)
	assert.Equal(t, []graph.NodeID{1, 2}, c.Visited().Expanded())
}

func TestApplyCatalog_ReportsInferredChanges(t *testing.T) {
	c, _ := fixture(t)
	ctx := context.Background()
	_, err := c.Expand(ctx, 1)
	require.NoError(t, err)
	require.Len(t, c.Store().Inferred(), 1)

	var kinds []expansion.ChangeKind
	c.OnChange(func(ch expansion.Change) { kinds = append(kinds, ch.Kind) })

	cat := c.Catalog()
	require.NoError(t, c.RefreshCatalog(ctx))
	cat.Types = nil
	c.ApplyCatalog(&cat)
	assert.Empty(t, c.Store().Inferred())

	assert.Equal(t, []expansion.ChangeKind{expansion.Edited, expansion.Appended}, kinds)
}

func TestUpdateRelationType_SwapsInferredEdges(t *testing.T) {
	c, _ := fixture(t)
	ctx := context.Background()
	_, err := c.Expand(ctx, 1)
	require.NoError(t, err)
	require.Len(t, c.Store().Inferred(), 1)
	assert.Equal(t, "child_of", c.Store().Inferred()[0].Label)

	_, err = c.UpdateRelationType(ctx, graph.RelationType{ID: 1, Name: "parent_of", InverseName: "has_parent"})
	require.NoError(t, err)
	require.Len(t, c.Store().Inferred(), 1)
	assert.Equal(t, graph.EdgeKey{Source: 2, Target: 1, Label: "has_parent"}, c.Store().Inferred()[0].Key())

	_, err = c.UpdateRelationType(ctx, graph.RelationType{ID: 1, Name: "ancestor_of", InverseName: "has_parent"})
	require.NoError(t, err)
	require.Len(t, c.Store().Declared(), 1)
	assert.Equal(t, "ancestor_of", c.Store().Declared()[0].Label)
	rel, ok := c.RelationByID(10)
	require.True(t, ok)
	assert.Equal(t, "ancestor_of", rel.Label)
	require.Len(t, c.Store().Inferred(), 1)

	_, err = c.UpdateRelationType(ctx, graph.RelationType{ID: 1, Name: "mentions"})
	assert.ErrorIs(t, err, provider.ErrConflict)
}
