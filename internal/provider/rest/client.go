// Package rest is a Graph Data Provider backed by the knowledge-builder HTTP backend.
package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"

	"github.com/gyaneshwarpardhi/kgexplorer/internal/config"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/graph"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/provider"
)

// Client talks to the backend's /api routes.
type Client struct {
	http *resty.Client
	cb   *gobreaker.CircuitBreaker
	log  *slog.Logger
}

var (
	_ provider.Provider         = (*Client)(nil)
	_ provider.VocabularyEditor = (*Client)(nil)
)

// apiError covers both error shapes the backend returns:
// {"error": "..."} and {"success": false, "message": "..."}.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (e *apiError) text() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}

// Open is the provider.Factory for kind "rest".
func Open(cfg config.ProviderConf) (provider.Provider, error) {
	return New(cfg)
}

// New creates a Client for cfg.BaseURL.
func New(cfg config.ProviderConf) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("rest provider: base_url is required")
	}
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	c := &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
		log: slog.Default().With("component", "rest-provider"),
	}
	if cfg.Breaker.Enabled {
		c.cb = newBreaker(cfg.BaseURL, cfg.Breaker, c.log)
	}
	return c, nil
}

func newBreaker(name string, cfg config.BreakerConf, log *slog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    time.Duration(cfg.IntervalSec) * time.Second,
		Timeout:     time.Duration(cfg.TimeoutSec) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= cfg.ReadyToTripRatio
		},
		// Answers the backend gave deliberately do not count against it.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, provider.ErrConflict) ||
				errors.Is(err, provider.ErrNotFound) ||
				errors.Is(err, provider.ErrInvalid) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change", "backend", name, "from", from.String(), "to", to.String())
		},
	})
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.GetClient().CloseIdleConnections()
	return nil
}

// do runs one request through the breaker and maps the response status onto
// the provider error taxonomy.
func (c *Client) do(ctx context.Context, op, method, path string, body, result any) error {
	call := func() (any, error) {
		req := c.http.R().SetContext(ctx).SetError(&apiError{})
		if body != nil {
			req.SetBody(body)
		}
		if result != nil {
			req.SetResult(result)
		}
		resp, err := req.Execute(method, path)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, &provider.FetchError{Op: op, Err: err}
		}
		return nil, statusError(op, resp)
	}
	if c.cb == nil {
		_, err := call()
		return err
	}
	_, err := c.cb.Execute(call)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &provider.FetchError{Op: op, Err: err}
	}
	return err
}

func statusError(op string, resp *resty.Response) error {
	if !resp.IsError() {
		return nil
	}
	msg, _ := resp.Error().(*apiError)
	switch resp.StatusCode() {
	case http.StatusConflict:
		return &provider.ConflictError{Message: msg.text()}
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, provider.ErrNotFound)
	case http.StatusBadRequest:
		return fmt.Errorf("%s: %s: %w", op, msg.text(), provider.ErrInvalid)
	default:
		return &provider.FetchError{Op: op, Err: fmt.Errorf("status %d", resp.StatusCode())}
	}
}

// FetchNeighborhood calls GET /api/page/{id}/neighbors.
func (c *Client) FetchNeighborhood(ctx context.Context, id graph.NodeID) (*graph.Neighborhood, error) {
	var nb graph.Neighborhood
	path := "/api/page/" + strconv.FormatInt(int64(id), 10) + "/neighbors"
	if err := c.do(ctx, "neighbors", http.MethodGet, path, nil, &nb); err != nil {
		return nil, err
	}
	// the backend answers an unknown page with an empty neighbourhood
	if len(nb.Nodes) == 0 {
		return nil, fmt.Errorf("node %d: %w", id, provider.ErrNotFound)
	}
	return &nb, nil
}

// FetchAllNodes calls GET /api/nodes.
func (c *Client) FetchAllNodes(ctx context.Context) ([]graph.Node, error) {
	var nodes []graph.Node
	if err := c.do(ctx, "nodes", http.MethodGet, "/api/nodes", nil, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

// FetchAllRelations calls GET /api/relations and resolves endpoint ids.
// The backend lists relations by title only, so ids come from the node
// catalog; a title shared by several nodes stays unresolved.
func (c *Client) FetchAllRelations(ctx context.Context) ([]graph.Relation, error) {
	var rels []graph.Relation
	if err := c.do(ctx, "relations", http.MethodGet, "/api/relations", nil, &rels); err != nil {
		return nil, err
	}
	if allResolved(rels) {
		return rels, nil
	}
	nodes, err := c.FetchAllNodes(ctx)
	if err != nil {
		return nil, err
	}
	ids := indexTitles(nodes)
	for i := range rels {
		if rels[i].Source == 0 {
			rels[i].Source = ids[rels[i].SourceLabel]
		}
		if rels[i].Target == 0 {
			rels[i].Target = ids[rels[i].TargetLabel]
		}
	}
	return rels, nil
}

func allResolved(rels []graph.Relation) bool {
	for _, r := range rels {
		if !r.Resolved() {
			return false
		}
	}
	return true
}

// indexTitles maps each unique title to its node id; ambiguous titles map to 0.
func indexTitles(nodes []graph.Node) map[string]graph.NodeID {
	ids := make(map[string]graph.NodeID, len(nodes))
	seen := make(map[string]int, len(nodes))
	for _, n := range nodes {
		seen[n.Label]++
		ids[n.Label] = n.ID
	}
	for title, count := range seen {
		if count > 1 {
			ids[title] = 0
		}
	}
	return ids
}

// FetchRelationTypes calls GET /api/relation-types.
func (c *Client) FetchRelationTypes(ctx context.Context) ([]graph.RelationType, error) {
	var types []graph.RelationType
	if err := c.do(ctx, "relation-types", http.MethodGet, "/api/relation-types", nil, &types); err != nil {
		return nil, err
	}
	return types, nil
}

// CreateNode calls POST /api/node/create.
func (c *Client) CreateNode(ctx context.Context, title string) (*graph.Node, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("title is required: %w", provider.ErrInvalid)
	}
	var n graph.Node
	if err := c.do(ctx, "create node", http.MethodPost, "/api/node/create", map[string]any{"title": title}, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// UpdateNode calls POST /api/node/update. The backend overwrites both fields,
// so a partial update first reads the current values from the catalog.
func (c *Client) UpdateNode(ctx context.Context, id graph.NodeID, fields graph.NodeFields) error {
	if fields.Label == nil || fields.Summary == nil {
		nodes, err := c.FetchAllNodes(ctx)
		if err != nil {
			return err
		}
		idx := -1
		for i := range nodes {
			if nodes[i].ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("node %d: %w", id, provider.ErrNotFound)
		}
		if fields.Label == nil {
			fields.Label = &nodes[idx].Label
		}
		if fields.Summary == nil {
			fields.Summary = &nodes[idx].Summary
		}
	}
	body := map[string]any{"id": id, "title": *fields.Label, "summary": *fields.Summary}
	return c.do(ctx, "update node", http.MethodPost, "/api/node/update", body, nil)
}

// DeleteNode calls DELETE /api/node/{id}; 409 means the node still has relations.
func (c *Client) DeleteNode(ctx context.Context, id graph.NodeID) error {
	return c.do(ctx, "delete node", http.MethodDelete, "/api/node/"+strconv.FormatInt(int64(id), 10), nil, nil)
}

// CreateRelation calls POST /api/relation/create. The backend does not echo the
// new relation, so it is looked up in the relation list afterwards.
func (c *Client) CreateRelation(ctx context.Context, source, target graph.NodeID, relationTypeID int64) (*graph.Relation, error) {
	body := map[string]any{"source": source, "target": target, "relation_id": relationTypeID}
	if err := c.do(ctx, "create relation", http.MethodPost, "/api/relation/create", body, nil); err != nil {
		return nil, err
	}

	types, err := c.FetchRelationTypes(ctx)
	if err != nil {
		return nil, err
	}
	created := graph.Relation{Source: source, Target: target, TypeID: relationTypeID}
	for _, t := range types {
		if t.ID == relationTypeID {
			created.Label = t.Name
		}
	}
	rels, err := c.FetchAllRelations(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range rels {
		if r.Source == source && r.Target == target && r.Label == created.Label && r.ID > created.ID {
			created.ID = r.ID
			created.SourceLabel = r.SourceLabel
			created.TargetLabel = r.TargetLabel
		}
	}
	if created.ID == 0 {
		c.log.Warn("created relation not found in listing", "source", source, "target", target, "type_id", relationTypeID)
	}
	return &created, nil
}

// DeleteRelation calls DELETE /api/relation/{id}.
func (c *Client) DeleteRelation(ctx context.Context, id int64) error {
	return c.do(ctx, "delete relation", http.MethodDelete, "/api/relation/"+strconv.FormatInt(id, 10), nil, nil)
}

// AddRelationType calls POST /api/relation-type and returns the stored entry.
func (c *Client) AddRelationType(ctx context.Context, t graph.RelationType) (graph.RelationType, error) {
	body := map[string]any{
		"name":         strings.TrimSpace(t.Name),
		"inverse_name": strings.TrimSpace(t.InverseName),
		"symmetric":    t.Symmetric,
		"transitive":   t.Transitive,
	}
	if err := c.do(ctx, "create relation type", http.MethodPost, "/api/relation-type", body, nil); err != nil {
		return graph.RelationType{}, err
	}
	types, err := c.FetchRelationTypes(ctx)
	if err != nil {
		return graph.RelationType{}, err
	}
	for _, stored := range types {
		if strings.EqualFold(stored.Name, strings.TrimSpace(t.Name)) {
			return stored, nil
		}
	}
	return graph.RelationType{}, &provider.FetchError{Op: "create relation type", Err: errors.New("created type missing from listing")}
}

// UpdateRelationType calls PATCH /api/relation-type/{id}. The backend answers
// unknown ids with success, so the listing is consulted to confirm the edit.
func (c *Client) UpdateRelationType(ctx context.Context, t graph.RelationType) (graph.RelationType, error) {
	name := strings.TrimSpace(t.Name)
	if name == "" {
		return graph.RelationType{}, fmt.Errorf("relation name is required: %w", provider.ErrInvalid)
	}
	body := map[string]any{
		"name":         name,
		"inverse_name": strings.TrimSpace(t.InverseName),
		"symmetric":    t.Symmetric,
		"transitive":   t.Transitive,
	}
	path := "/api/relation-type/" + strconv.FormatInt(t.ID, 10)
	if err := c.do(ctx, "update relation type", http.MethodPatch, path, body, nil); err != nil {
		return graph.RelationType{}, err
	}
	types, err := c.FetchRelationTypes(ctx)
	if err != nil {
		return graph.RelationType{}, err
	}
	for _, stored := range types {
		if stored.ID == t.ID {
			return stored, nil
		}
	}
	return graph.RelationType{}, fmt.Errorf("relation type %d: %w", t.ID, provider.ErrNotFound)
}
