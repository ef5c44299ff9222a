package expansion

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/gyaneshwarpardhi/kgexplorer/internal/graph"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/inference"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/query"
)

// Catalog is the read-only snapshot of everything the provider knows.
type Catalog struct {
	Nodes     []graph.Node         `json:"nodes"`
	Relations []graph.Relation     `json:"relations"`
	Types     []graph.RelationType `json:"relation_types"`
}

// RefreshCatalog fetches and installs a fresh catalog.
func (c *Controller) RefreshCatalog(ctx context.Context) error {
	cat, err := c.FetchCatalog(ctx)
	if err != nil {
		return err
	}
	c.ApplyCatalog(cat)
	return nil
}

// FetchCatalog loads nodes, relations and relation types concurrently.
// Concurrent calls share one round of requests. Safe to call off the owner goroutine.
func (c *Controller) FetchCatalog(ctx context.Context) (*Catalog, error) {
	v, err, _ := c.refresh.Do("catalog", func() (any, error) {
		var cat Catalog
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			cat.Nodes, err = c.provider.FetchAllNodes(gctx)
			return err
		})
		g.Go(func() (err error) {
			cat.Relations, err = c.provider.FetchAllRelations(gctx)
			return err
		})
		g.Go(func() (err error) {
			cat.Types, err = c.provider.FetchRelationTypes(gctx)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return &cat, nil
	})
	if err != nil {
		c.log.Warn("catalog refresh failed", "err", err)
		return nil, fmt.Errorf("refresh catalog: %w", err)
	}
	return v.(*Catalog), nil
}

// ApplyCatalog swaps the catalog caches and recomputes inferred edges,
// since the vocabulary may have changed. The change is reported as Appended
// when the inferred edge set moved, Edited otherwise.
func (c *Controller) ApplyCatalog(cat *Catalog) {
	before := c.store.Inferred()
	c.catalog = Catalog{
		Nodes:     append([]graph.Node(nil), cat.Nodes...),
		Relations: append([]graph.Relation(nil), cat.Relations...),
		Types:     append([]graph.RelationType(nil), cat.Types...),
	}
	c.vocab = inference.NewVocabulary(c.catalog.Types)
	c.resolve()
	c.log.Info("catalog refreshed",
		"nodes", len(cat.Nodes), "relations", len(cat.Relations), "relation_types", c.vocab.Len())
	kind := Edited
	if !sameEdges(before, c.store.Inferred()) {
		kind = Appended
	}
	c.emit(Change{Kind: kind})
}

// Catalog returns a copy of the cached catalog.
func (c *Controller) Catalog() Catalog {
	return Catalog{
		Nodes:     append([]graph.Node(nil), c.catalog.Nodes...),
		Relations: append([]graph.Relation(nil), c.catalog.Relations...),
		Types:     append([]graph.RelationType(nil), c.catalog.Types...),
	}
}

// RelationByID looks a relation up in the catalog.
func (c *Controller) RelationByID(id int64) (graph.Relation, bool) {
	for _, r := range c.catalog.Relations {
		if r.ID == id {
			return r, true
		}
	}
	return graph.Relation{}, false
}

// SearchNodes returns catalog nodes whose label contains text (ignoring case)
// and that satisfy f, ordered by label.
func (c *Controller) SearchNodes(text string, f *query.Filter) []graph.Node {
	degree := make(map[graph.NodeID]int, len(c.catalog.Nodes))
	for _, r := range c.catalog.Relations {
		degree[r.Source]++
		if r.Target != r.Source {
			degree[r.Target]++
		}
	}
	needle := strings.ToLower(strings.TrimSpace(text))
	var out []graph.Node
	for _, n := range c.catalog.Nodes {
		if needle != "" && !strings.Contains(strings.ToLower(n.Label), needle) {
			continue
		}
		if !f.Match(query.NodeRecord(n, degree[n.ID])) {
			continue
		}
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Label) < strings.ToLower(out[j].Label)
	})
	return out
}

func (c *Controller) catalogNode(id graph.NodeID) (graph.Node, bool) {
	for _, n := range c.catalog.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return graph.Node{}, false
}
