package expansion

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gyaneshwarpardhi/kgexplorer/internal/graph"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/inference"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/provider"
)

// ErrUnsupported is returned when the provider lacks an optional capability.
var ErrUnsupported = errors.New("not supported by provider")

// CreateNode persists a node and shows it selected.
func (c *Controller) CreateNode(ctx context.Context, title string) (*graph.Node, error) {
	n, err := c.provider.CreateNode(ctx, title)
	if err != nil {
		return nil, fmt.Errorf("create node: %w", err)
	}
	c.ApplyCreateNode(*n)
	return n, nil
}

// ApplyCreateNode adds a persisted node to the catalog and the visible set.
func (c *Controller) ApplyCreateNode(n graph.Node) {
	if _, known := c.catalogNode(n.ID); !known {
		c.catalog.Nodes = append(c.catalog.Nodes, n)
	}
	c.store.Merge([]graph.Node{n}, nil)
	c.selected = n.ID
	c.resolve()
	c.emit(Change{Kind: Appended, Node: n.ID})
}

// UpdateNode persists label/summary edits.
func (c *Controller) UpdateNode(ctx context.Context, id graph.NodeID, fields graph.NodeFields) error {
	if err := c.provider.UpdateNode(ctx, id, fields); err != nil {
		return fmt.Errorf("update node %d: %w", id, err)
	}
	c.ApplyUpdateNode(id, fields)
	return nil
}

// ApplyUpdateNode mirrors a persisted edit into the catalog and store.
func (c *Controller) ApplyUpdateNode(id graph.NodeID, fields graph.NodeFields) {
	for i := range c.catalog.Nodes {
		if c.catalog.Nodes[i].ID != id {
			continue
		}
		if fields.Label != nil {
			c.catalog.Nodes[i].Label = *fields.Label
		}
		if fields.Summary != nil {
			c.catalog.Nodes[i].Summary = *fields.Summary
		}
	}
	if c.store.UpdateNode(id, fields) {
		c.emit(Change{Kind: Edited, Node: id})
	}
}

// DeleteNode deletes a node. A Conflict from the provider leaves all state untouched.
func (c *Controller) DeleteNode(ctx context.Context, id graph.NodeID) error {
	if err := c.provider.DeleteNode(ctx, id); err != nil {
		return fmt.Errorf("delete node %d: %w", id, err)
	}
	c.ApplyDeleteNode(id)
	return nil
}

// ApplyDeleteNode removes a deleted node and its edges everywhere.
func (c *Controller) ApplyDeleteNode(id graph.NodeID) {
	c.catalog.Nodes = filterNodes(c.catalog.Nodes, id)
	c.catalog.Relations = filterRelations(c.catalog.Relations, func(r graph.Relation) bool {
		return r.Source != id && r.Target != id
	})
	c.visited.Forget(id)
	if c.selected == id {
		c.selected = 0
	}
	removed := c.store.RemoveNode(id)
	c.resolve()
	if removed {
		c.emit(Change{Kind: Removed, Node: id})
	}
}

// CreateRelation persists a relation and shows it if both endpoints are visible.
func (c *Controller) CreateRelation(ctx context.Context, source, target graph.NodeID, relationTypeID int64) (*graph.Relation, error) {
	r, err := c.provider.CreateRelation(ctx, source, target, relationTypeID)
	if err != nil {
		return nil, fmt.Errorf("create relation: %w", err)
	}
	c.ApplyCreateRelation(*r)
	return r, nil
}

// ApplyCreateRelation adds a persisted relation to the catalog and, when both
// endpoints are visible, to the visible set.
func (c *Controller) ApplyCreateRelation(r graph.Relation) {
	if r.ID == 0 || !c.hasRelation(r.ID) {
		c.catalog.Relations = append(c.catalog.Relations, r)
	}
	if !c.store.HasNode(r.Source) || !c.store.HasNode(r.Target) {
		return
	}
	c.store.Merge(nil, []graph.Edge{r.Edge()})
	c.resolve()
	c.emit(Change{Kind: Appended, Node: r.Source})
}

// DeleteRelation deletes a persisted relation.
func (c *Controller) DeleteRelation(ctx context.Context, id int64) error {
	if err := c.provider.DeleteRelation(ctx, id); err != nil {
		return fmt.Errorf("delete relation %d: %w", id, err)
	}
	c.ApplyDeleteRelation(id)
	return nil
}

// ApplyDeleteRelation removes a deleted relation and, through recomputation,
// the inferred edge it generated.
func (c *Controller) ApplyDeleteRelation(id int64) {
	rel, known := c.RelationByID(id)
	c.catalog.Relations = filterRelations(c.catalog.Relations, func(r graph.Relation) bool { return r.ID != id })

	removed := c.store.RemoveRelation(id)
	if !removed && known && rel.Resolved() {
		// neighbourhood links from some backends carry no relation id
		removed = c.store.RemoveEdge(rel.Edge().Key())
	}
	c.resolve()
	if removed {
		c.emit(Change{Kind: Removed})
	}
}

// CreateRelationType adds a vocabulary entry when the provider supports it.
func (c *Controller) CreateRelationType(ctx context.Context, t graph.RelationType) (graph.RelationType, error) {
	ed, ok := c.provider.(provider.VocabularyEditor)
	if !ok {
		return graph.RelationType{}, fmt.Errorf("create relation type: %w", ErrUnsupported)
	}
	stored, err := ed.AddRelationType(ctx, t)
	if err != nil {
		return graph.RelationType{}, fmt.Errorf("create relation type: %w", err)
	}
	c.ApplyRelationType(stored)
	return stored, nil
}

// UpdateRelationType edits a vocabulary entry when the provider supports it.
func (c *Controller) UpdateRelationType(ctx context.Context, t graph.RelationType) (graph.RelationType, error) {
	ed, ok := c.provider.(provider.VocabularyEditor)
	if !ok {
		return graph.RelationType{}, fmt.Errorf("update relation type: %w", ErrUnsupported)
	}
	stored, err := ed.UpdateRelationType(ctx, t)
	if err != nil {
		return graph.RelationType{}, fmt.Errorf("update relation type %d: %w", t.ID, err)
	}
	c.ApplyRelationType(stored)
	return stored, nil
}

// ApplyRelationType adds or replaces t in the vocabulary and recomputes
// inferred edges. A rename relabels the relations and visible edges of that type.
func (c *Controller) ApplyRelationType(t graph.RelationType) {
	replaced := false
	for i := range c.catalog.Types {
		if c.catalog.Types[i].ID != t.ID {
			continue
		}
		if old := c.catalog.Types[i].Name; !strings.EqualFold(old, t.Name) {
			c.renameRelations(t.ID, old, t.Name)
		}
		c.catalog.Types[i] = t
		replaced = true
	}
	if !replaced {
		c.catalog.Types = append(c.catalog.Types, t)
	}
	c.vocab = inference.NewVocabulary(c.catalog.Types)
	c.resolve()
	c.emit(Change{Kind: Appended})
}

func (c *Controller) renameRelations(typeID int64, from, to string) {
	for i, r := range c.catalog.Relations {
		if r.TypeID == typeID || (r.TypeID == 0 && strings.EqualFold(r.Label, from)) {
			c.catalog.Relations[i].Label = to
		}
	}
	c.store.RenameLabel(from, to)
}

func (c *Controller) hasRelation(id int64) bool {
	_, ok := c.RelationByID(id)
	return ok
}

func filterNodes(nodes []graph.Node, drop graph.NodeID) []graph.Node {
	out := make([]graph.Node, 0, len(nodes))
	for _, n := range nodes {
		if n.ID != drop {
			out = append(out, n)
		}
	}
	return out
}

func filterRelations(rels []graph.Relation, keep func(graph.Relation) bool) []graph.Relation {
	out := make([]graph.Relation, 0, len(rels))
	for _, r := range rels {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
