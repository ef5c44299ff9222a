// Package memory is an in-process Graph Data Provider, used for demos and tests.
package memory

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/gyaneshwarpardhi/kgexplorer/internal/config"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/graph"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/provider"
)

// Seed is the YAML document a Store can be preloaded from.
type Seed struct {
	Nodes         []SeedNode           `yaml:"nodes"`
	RelationTypes []graph.RelationType `yaml:"relation_types"`
	Relations     []SeedRelation       `yaml:"relations"`
}

// SeedNode is one page of a Seed.
type SeedNode struct {
	ID         int64  `yaml:"id"`
	Title      string `yaml:"title"`
	Summary    string `yaml:"summary"`
	IsInstance bool   `yaml:"is_instance"`
}

// SeedRelation links two seed nodes by relation type name.
type SeedRelation struct {
	ID     int64  `yaml:"id"`
	Source int64  `yaml:"source"`
	Target int64  `yaml:"target"`
	Type   string `yaml:"type"`
}

type relation struct {
	id     int64
	source graph.NodeID
	target graph.NodeID
	typeID int64
}

// Store keeps pages, relations and relation types in maps guarded by one lock.
// Values handed out are copies.
type Store struct {
	mu        sync.RWMutex
	pages     map[graph.NodeID]graph.Node
	relations map[int64]relation
	types     map[int64]graph.RelationType
	nextPage  graph.NodeID
	nextRel   int64
}

var (
	_ provider.Provider         = (*Store)(nil)
	_ provider.VocabularyEditor = (*Store)(nil)
)

// New creates an empty Store.
func New() *Store {
	return &Store{
		pages:     make(map[graph.NodeID]graph.Node),
		relations: make(map[int64]relation),
		types:     make(map[int64]graph.RelationType),
		nextPage:  1,
		nextRel:   1,
	}
}

// Open is the provider.Factory for kind "memory".
func Open(cfg config.ProviderConf) (provider.Provider, error) {
	if cfg.SeedPath == "" {
		return New(), nil
	}
	return LoadSeed(cfg.SeedPath)
}

// LoadSeed reads a YAML seed file into a new Store.
func LoadSeed(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed %s: %w", path, err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return FromSeed(seed)
}

// FromSeed builds a Store from an in-memory Seed.
func FromSeed(seed Seed) (*Store, error) {
	s := New()
	for _, t := range seed.RelationTypes {
		if t.ID == 0 {
			t.ID = int64(len(s.types) + 1)
		}
		if _, dup := s.typeByName(t.Name); dup {
			return nil, fmt.Errorf("seed: duplicate relation type %q", t.Name)
		}
		s.types[t.ID] = t
	}
	for _, n := range seed.Nodes {
		id := graph.NodeID(n.ID)
		if id == 0 {
			id = s.nextPage
		}
		if _, dup := s.pages[id]; dup {
			return nil, fmt.Errorf("seed: duplicate node id %d", id)
		}
		s.pages[id] = graph.Node{ID: id, Label: n.Title, Summary: n.Summary, IsInstance: n.IsInstance}
		if id >= s.nextPage {
			s.nextPage = id + 1
		}
	}
	for _, r := range seed.Relations {
		t, ok := s.typeByName(r.Type)
		if !ok {
			return nil, fmt.Errorf("seed: relation %d: unknown type %q", r.ID, r.Type)
		}
		src, dst := graph.NodeID(r.Source), graph.NodeID(r.Target)
		if _, ok := s.pages[src]; !ok {
			return nil, fmt.Errorf("seed: relation %d: unknown source %d", r.ID, r.Source)
		}
		if _, ok := s.pages[dst]; !ok {
			return nil, fmt.Errorf("seed: relation %d: unknown target %d", r.ID, r.Target)
		}
		id := r.ID
		if id == 0 {
			id = s.nextRel
		}
		s.relations[id] = relation{id: id, source: src, target: dst, typeID: t.ID}
		if id >= s.nextRel {
			s.nextRel = id + 1
		}
	}
	return s, nil
}

// Close is a no-op for Store.
func (s *Store) Close() error { return nil }

// FetchNeighborhood returns the node and the targets of its outgoing relations.
func (s *Store) FetchNeighborhood(ctx context.Context, id graph.NodeID) (*graph.Neighborhood, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	page, ok := s.pages[id]
	if !ok {
		return nil, fmt.Errorf("node %d: %w", id, provider.ErrNotFound)
	}
	nb := &graph.Neighborhood{Nodes: []graph.Node{page}}
	for _, r := range s.sortedRelations() {
		if r.source != id {
			continue
		}
		nb.Nodes = append(nb.Nodes, s.pages[r.target])
		nb.Links = append(nb.Links, graph.Edge{
			Source: r.source,
			Target: r.target,
			Label:  s.types[r.typeID].Name,
			ID:     r.id,
		})
	}
	return nb, nil
}

// FetchAllNodes lists every page ordered by id.
func (s *Store) FetchAllNodes(ctx context.Context) ([]graph.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]graph.Node, 0, len(s.pages))
	for _, n := range s.pages {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FetchAllRelations lists every relation with its endpoint labels.
func (s *Store) FetchAllRelations(ctx context.Context) ([]graph.Relation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rels := s.sortedRelations()
	out := make([]graph.Relation, 0, len(rels))
	for _, r := range rels {
		out = append(out, s.describe(r))
	}
	return out, nil
}

// FetchRelationTypes lists the vocabulary ordered by id.
func (s *Store) FetchRelationTypes(ctx context.Context) ([]graph.RelationType, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]graph.RelationType, 0, len(s.types))
	for _, t := range s.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateNode adds a page. Titles are unique ignoring case.
func (s *Store) CreateNode(ctx context.Context, title string) (*graph.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("title is required: %w", provider.ErrInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.pages {
		if strings.EqualFold(p.Label, title) {
			return nil, &provider.ConflictError{Message: "Node with this title already exists."}
		}
	}
	n := graph.Node{ID: s.nextPage, Label: title}
	s.pages[n.ID] = n
	s.nextPage++
	return &n, nil
}

// AddRelationType registers a vocabulary entry. Names are unique ignoring case.
func (s *Store) AddRelationType(ctx context.Context, t graph.RelationType) (graph.RelationType, error) {
	if err := ctx.Err(); err != nil {
		return graph.RelationType{}, err
	}
	if strings.TrimSpace(t.Name) == "" {
		return graph.RelationType{}, fmt.Errorf("relation name is required: %w", provider.ErrInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.typeByName(t.Name); dup {
		return graph.RelationType{}, &provider.ConflictError{Message: "Relation type already exists"}
	}
	t.ID = int64(len(s.types) + 1)
	for {
		if _, taken := s.types[t.ID]; !taken {
			break
		}
		t.ID++
	}
	s.types[t.ID] = t
	return t, nil
}

// UpdateRelationType replaces the type with id t.ID. Relations of that type
// take the new name.
func (s *Store) UpdateRelationType(ctx context.Context, t graph.RelationType) (graph.RelationType, error) {
	if err := ctx.Err(); err != nil {
		return graph.RelationType{}, err
	}
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return graph.RelationType{}, fmt.Errorf("relation name is required: %w", provider.ErrInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.types[t.ID]; !ok {
		return graph.RelationType{}, fmt.Errorf("relation type %d: %w", t.ID, provider.ErrNotFound)
	}
	if other, dup := s.typeByName(t.Name); dup && other.ID != t.ID {
		return graph.RelationType{}, &provider.ConflictError{Message: "Relation type already exists"}
	}
	s.types[t.ID] = t
	return t, nil
}

// UpdateNode edits title and summary.
func (s *Store) UpdateNode(ctx context.Context, id graph.NodeID, fields graph.NodeFields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.pages[id]
	if !ok {
		return fmt.Errorf("node %d: %w", id, provider.ErrNotFound)
	}
	if fields.Label != nil {
		n.Label = *fields.Label
	}
	if fields.Summary != nil {
		n.Summary = *fields.Summary
	}
	s.pages[id] = n
	return nil
}

// DeleteNode removes a page that has no relations.
func (s *Store) DeleteNode(ctx context.Context, id graph.NodeID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pages[id]; !ok {
		return fmt.Errorf("node %d: %w", id, provider.ErrNotFound)
	}
	count := 0
	for _, r := range s.relations {
		if r.source == id || r.target == id {
			count++
		}
	}
	if count > 0 {
		return &provider.ConflictError{Message: fmt.Sprintf("Node has %d relation(s). Cannot delete.", count)}
	}
	delete(s.pages, id)
	return nil
}

// CreateRelation links source to target with the given relation type.
func (s *Store) CreateRelation(ctx context.Context, source, target graph.NodeID, relationTypeID int64) (*graph.Relation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pages[source]; !ok {
		return nil, fmt.Errorf("source %d: %w", source, provider.ErrNotFound)
	}
	if _, ok := s.pages[target]; !ok {
		return nil, fmt.Errorf("target %d: %w", target, provider.ErrNotFound)
	}
	if _, ok := s.types[relationTypeID]; !ok {
		return nil, fmt.Errorf("relation type %d: %w", relationTypeID, provider.ErrNotFound)
	}
	r := relation{id: s.nextRel, source: source, target: target, typeID: relationTypeID}
	s.relations[r.id] = r
	s.nextRel++
	out := s.describe(r)
	return &out, nil
}

// DeleteRelation removes a relation by id.
func (s *Store) DeleteRelation(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.relations[id]; !ok {
		return fmt.Errorf("relation %d: %w", id, provider.ErrNotFound)
	}
	delete(s.relations, id)
	return nil
}

func (s *Store) typeByName(name string) (graph.RelationType, bool) {
	for _, t := range s.types {
		if strings.EqualFold(t.Name, strings.TrimSpace(name)) {
			return t, true
		}
	}
	return graph.RelationType{}, false
}

func (s *Store) sortedRelations() []relation {
	out := make([]relation, 0, len(s.relations))
	for _, r := range s.relations {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (s *Store) describe(r relation) graph.Relation {
	return graph.Relation{
		ID:          r.id,
		Source:      r.source,
		Target:      r.target,
		SourceLabel: s.pages[r.source].Label,
		TargetLabel: s.pages[r.target].Label,
		Label:       s.types[r.typeID].Name,
		TypeID:      r.typeID,
	}
}
