package provider

import (
	"context"
	"errors"
	"time"

	"github.com/gyaneshwarpardhi/kgexplorer/internal/graph"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/metrics"
)

// Instrumented wraps p so every call is counted and timed. The wrapper keeps
// the VocabularyEditor capability when p has it.
func Instrumented(p Provider) Provider {
	switch p.(type) {
	case *instrumented, *instrumentedEditor:
		return p
	}
	if ed, ok := p.(VocabularyEditor); ok {
		return &instrumentedEditor{instrumented: instrumented{next: p}, editor: ed}
	}
	return &instrumented{next: p}
}

type instrumented struct {
	next Provider
}

type instrumentedEditor struct {
	instrumented
	editor VocabularyEditor
}

func (i *instrumentedEditor) AddRelationType(ctx context.Context, t graph.RelationType) (stored graph.RelationType, err error) {
	defer func(start time.Time) { observe("add_relation_type", start, err) }(time.Now())
	return i.editor.AddRelationType(ctx, t)
}

func (i *instrumentedEditor) UpdateRelationType(ctx context.Context, t graph.RelationType) (stored graph.RelationType, err error) {
	defer func(start time.Time) { observe("update_relation_type", start, err) }(time.Now())
	return i.editor.UpdateRelationType(ctx, t)
}

func observe(op string, start time.Time, err error) {
	metrics.ProviderDuration.WithLabelValues(op).Observe(float64(time.Since(start).Milliseconds()))
	metrics.ProviderRequests.WithLabelValues(op, statusOf(err)).Inc()
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}

func (i *instrumented) FetchNeighborhood(ctx context.Context, id graph.NodeID) (nb *graph.Neighborhood, err error) {
	defer func(start time.Time) { observe("fetch_neighborhood", start, err) }(time.Now())
	return i.next.FetchNeighborhood(ctx, id)
}

func (i *instrumented) FetchAllNodes(ctx context.Context) (nodes []graph.Node, err error) {
	defer func(start time.Time) { observe("fetch_nodes", start, err) }(time.Now())
	return i.next.FetchAllNodes(ctx)
}

func (i *instrumented) FetchAllRelations(ctx context.Context) (rels []graph.Relation, err error) {
	defer func(start time.Time) { observe("fetch_relations", start, err) }(time.Now())
	return i.next.FetchAllRelations(ctx)
}

func (i *instrumented) FetchRelationTypes(ctx context.Context) (types []graph.RelationType, err error) {
	defer func(start time.Time) { observe("fetch_relation_types", start, err) }(time.Now())
	return i.next.FetchRelationTypes(ctx)
}

func (i *instrumented) CreateNode(ctx context.Context, title string) (n *graph.Node, err error) {
	defer func(start time.Time) { observe("create_node", start, err) }(time.Now())
	return i.next.CreateNode(ctx, title)
}

func (i *instrumented) UpdateNode(ctx context.Context, id graph.NodeID, fields graph.NodeFields) (err error) {
	defer func(start time.Time) { observe("update_node", start, err) }(time.Now())
	return i.next.UpdateNode(ctx, id, fields)
}

func (i *instrumented) DeleteNode(ctx context.Context, id graph.NodeID) (err error) {
	defer func(start time.Time) { observe("delete_node", start, err) }(time.Now())
	return i.next.DeleteNode(ctx, id)
}

func (i *instrumented) CreateRelation(ctx context.Context, source, target graph.NodeID, relationTypeID int64) (r *graph.Relation, err error) {
	defer func(start time.Time) { observe("create_relation", start, err) }(time.Now())
	return i.next.CreateRelation(ctx, source, target, relationTypeID)
}

func (i *instrumented) DeleteRelation(ctx context.Context, id int64) (err error) {
	defer func(start time.Time) { observe("delete_relation", start, err) }(time.Now())
	return i.next.DeleteRelation(ctx, id)
}

func (i *instrumented) Close() error { return i.next.Close() }
