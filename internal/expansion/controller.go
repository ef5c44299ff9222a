// Package expansion orchestrates fetching neighbourhoods from the data
// provider and merging them into the visible graph.
//
// Every method except the provider calls themselves must run on the
// goroutine that owns the graph.Store. Operations that need I/O come in two
// halves: a Begin/Fetch half that is safe to run elsewhere and an
// Apply/Finish half that mutates state against whatever the store holds at
// that moment.
package expansion

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/gyaneshwarpardhi/kgexplorer/internal/graph"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/inference"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/metrics"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/provider"
)

// ChangeKind classifies a mutation of the visible set.
type ChangeKind int

const (
	// Appended means nodes or edges were added and existing positions stay valid.
	Appended ChangeKind = iota
	// Replaced means the visible set was swapped for a new one.
	Replaced
	// Removed means nodes or edges left the visible set.
	Removed
	// Edited means node fields changed without changing the graph shape.
	Edited
	// Selected means only the selection changed.
	Selected
)

// Change describes one mutation, delivered to OnChange callbacks.
type Change struct {
	Kind ChangeKind
	Node graph.NodeID
}

// Status is the result of an expansion attempt.
type Status string

const (
	StatusMerged  Status = "merged"
	StatusSkipped Status = "skipped"
	StatusStale   Status = "stale"
	StatusFailed  Status = "failed"
)

// Outcome summarises what an expansion did to the store.
type Outcome struct {
	Node     graph.NodeID `json:"node"`
	Status   Status       `json:"status"`
	NewNodes int          `json:"new_nodes"`
	NewEdges int          `json:"new_edges"`
	Dropped  int          `json:"dropped_edges"`
	Inferred int          `json:"inferred_edges"`
}

// Ticket is issued by BeginExpand and redeemed by FinishExpand.
type Ticket struct {
	Node graph.NodeID
	// WasVisible records whether Node was in the store when the request began.
	WasVisible bool
}

// Controller owns the visited set, the catalog caches and the selection.
type Controller struct {
	store    *graph.Store
	visited  *VisitedSet
	provider provider.Provider
	log      *slog.Logger

	catalog  Catalog
	vocab    *inference.Vocabulary
	selected graph.NodeID

	refresh  singleflight.Group
	onChange []func(Change)
}

// New creates a Controller over store. A nil visited set starts empty and a
// nil logger falls back to slog.Default.
func New(store *graph.Store, visited *VisitedSet, p provider.Provider, log *slog.Logger) *Controller {
	if visited == nil {
		visited = NewVisitedSet()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		store:    store,
		visited:  visited,
		provider: p,
		log:      log.With("component", "expansion"),
		vocab:    inference.NewVocabulary(nil),
	}
}

// OnChange registers a callback invoked after every mutation.
func (c *Controller) OnChange(fn func(Change)) {
	c.onChange = append(c.onChange, fn)
}

// Provider returns the data provider, for callers that run fetches themselves.
func (c *Controller) Provider() provider.Provider { return c.provider }

// Store returns the visible graph.
func (c *Controller) Store() *graph.Store { return c.store }

// Visited returns the visited set.
func (c *Controller) Visited() *VisitedSet { return c.visited }

// Vocabulary returns the current relation vocabulary.
func (c *Controller) Vocabulary() *inference.Vocabulary { return c.vocab }

// Expand fetches and merges the neighbourhood of id, at most once per node.
func (c *Controller) Expand(ctx context.Context, id graph.NodeID) (Outcome, error) {
	t, ok := c.BeginExpand(id)
	if !ok {
		return Outcome{Node: id, Status: StatusSkipped}, nil
	}
	nb, err := c.provider.FetchNeighborhood(ctx, id)
	return c.FinishExpand(t, nb, err)
}

// BeginExpand claims id for expansion. It returns false when id is already
// being expanded or has been expanded.
func (c *Controller) BeginExpand(id graph.NodeID) (Ticket, bool) {
	if !c.visited.Begin(id) {
		metrics.Expansions.WithLabelValues(string(StatusSkipped)).Inc()
		return Ticket{}, false
	}
	return Ticket{Node: id, WasVisible: c.store.HasNode(id)}, true
}

// FinishExpand merges a fetched neighbourhood into the current store state.
//
// On a fetch error nothing is merged and the node becomes expandable again.
// If the node was visible when the request began and has since been removed,
// the response is dropped so it cannot resurrect the node.
func (c *Controller) FinishExpand(t Ticket, nb *graph.Neighborhood, fetchErr error) (Outcome, error) {
	out := Outcome{Node: t.Node}
	if fetchErr != nil {
		c.visited.Abort(t.Node)
		out.Status = StatusFailed
		metrics.Expansions.WithLabelValues(string(StatusFailed)).Inc()
		c.log.Warn("expand failed", "node_id", t.Node, "err", fetchErr)
		return out, fmt.Errorf("expand %d: %w", t.Node, fetchErr)
	}
	if t.WasVisible && !c.store.HasNode(t.Node) {
		c.visited.Forget(t.Node)
		out.Status = StatusStale
		metrics.Expansions.WithLabelValues(string(StatusStale)).Inc()
		metrics.StaleDropped.Inc()
		c.log.Debug("stale neighbourhood dropped", "node_id", t.Node)
		return out, nil
	}

	nodesBefore, edgesBefore := c.store.NodeCount(), len(c.store.Declared())
	if nb != nil {
		out.Dropped = c.store.Merge(nb.Nodes, nb.Links)
	}
	c.visited.Complete(t.Node)
	out.NewNodes = c.store.NodeCount() - nodesBefore
	out.NewEdges = len(c.store.Declared()) - edgesBefore
	out.Inferred = c.resolve()
	out.Status = StatusMerged
	metrics.Expansions.WithLabelValues(string(StatusMerged)).Inc()
	c.log.Debug("expanded", "node_id", t.Node, "new_nodes", out.NewNodes, "new_edges", out.NewEdges)
	c.emit(Change{Kind: Appended, Node: t.Node})
	return out, nil
}

// ShowNodeAndNeighbors replaces the visible set with id's neighbourhood.
func (c *Controller) ShowNodeAndNeighbors(ctx context.Context, id graph.NodeID) error {
	nb, err := c.provider.FetchNeighborhood(ctx, id)
	return c.ApplyShow(id, nb, err)
}

// ApplyShow installs a fetched neighbourhood as the whole visible set.
// Sources of catalog relations into id whose type declares an inverse are
// added too, so the inverse edges of id appear. The visited set becomes {id}
// and id is selected.
func (c *Controller) ApplyShow(id graph.NodeID, nb *graph.Neighborhood, fetchErr error) error {
	if fetchErr != nil {
		c.log.Warn("show node failed", "node_id", id, "err", fetchErr)
		return fmt.Errorf("show %d: %w", id, fetchErr)
	}
	nodes := append([]graph.Node(nil), nb.Nodes...)
	edges := append([]graph.Edge(nil), nb.Links...)
	for _, r := range inference.IncomingWithInverse(c.catalog.Relations, id, c.vocab) {
		if src, ok := c.catalogNode(r.Source); ok {
			nodes = append(nodes, src)
			edges = append(edges, r.Edge())
		}
	}
	c.store.Replace(nodes, edges)
	c.visited.Reset(id)
	c.selected = 0
	if c.store.HasNode(id) {
		c.selected = id
	}
	c.resolve()
	c.emit(Change{Kind: Replaced, Node: id})
	return nil
}

// ShowRelation replaces the visible set with rel's two endpoints and rel itself,
// and clears the selection. Endpoints are taken from the store when visible,
// otherwise from the catalog.
func (c *Controller) ShowRelation(rel graph.Relation) error {
	if !rel.Resolved() {
		return fmt.Errorf("relation %d has unresolved endpoints: %w", rel.ID, provider.ErrNotFound)
	}
	var nodes []graph.Node
	for _, id := range []graph.NodeID{rel.Source, rel.Target} {
		if n := c.store.Node(id); n != nil {
			nodes = append(nodes, *n)
			continue
		}
		n, ok := c.catalogNode(id)
		if !ok {
			return fmt.Errorf("relation %d endpoint %d: %w", rel.ID, id, provider.ErrNotFound)
		}
		nodes = append(nodes, n)
	}
	c.store.Replace(nodes, []graph.Edge{rel.Edge()})
	c.visited.Reset()
	c.selected = 0
	c.resolve()
	c.emit(Change{Kind: Replaced})
	return nil
}

// Select marks a visible node as selected.
func (c *Controller) Select(id graph.NodeID) bool {
	if !c.store.HasNode(id) {
		return false
	}
	c.selected = id
	c.emit(Change{Kind: Selected, Node: id})
	return true
}

// ClearSelection deselects.
func (c *Controller) ClearSelection() {
	c.selected = 0
	c.emit(Change{Kind: Selected})
}

// Selected returns the selected node, if any.
func (c *Controller) Selected() (graph.NodeID, bool) {
	if c.selected == 0 || !c.store.HasNode(c.selected) {
		return 0, false
	}
	return c.selected, true
}

// resolve recomputes every inferred edge and returns how many there are.
func (c *Controller) resolve() int {
	n := inference.ResolveStore(c.store, c.vocab)
	metrics.ObserveGraph(c.store.NodeCount(), len(c.store.Declared()), len(c.store.Inferred()))
	return n
}

// sameEdges reports whether a and b hold the same edge keys.
func sameEdges(a, b []graph.Edge) bool {
	if len(a) != len(b) {
		return false
	}
	keys := make(map[graph.EdgeKey]struct{}, len(a))
	for _, e := range a {
		keys[e.Key()] = struct{}{}
	}
	for _, e := range b {
		if _, ok := keys[e.Key()]; !ok {
			return false
		}
	}
	return true
}

func (c *Controller) emit(ch Change) {
	for _, fn := range c.onChange {
		fn(ch)
	}
}
