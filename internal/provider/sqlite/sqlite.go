// Package sqlite is a Graph Data Provider over the knowledge database
// (tables pages, relations and relation_types).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/gyaneshwarpardhi/kgexplorer/internal/config"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/graph"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/provider"
)

const schema = `
CREATE TABLE IF NOT EXISTS pages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title TEXT NOT NULL,
    summary TEXT
);

CREATE TABLE IF NOT EXISTS relation_types (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    inverse_name TEXT,
    is_symmetric INTEGER DEFAULT 0,
    is_transitive INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS relations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source_page_id INTEGER NOT NULL,
    target_page_id INTEGER NOT NULL,
    relation_type_id INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_relations_source ON relations(source_page_id);
CREATE INDEX IF NOT EXISTS idx_relations_target ON relations(target_page_id);
`

// Store is the SQLite-backed provider.
type Store struct {
	db *sql.DB
}

var (
	_ provider.Provider         = (*Store)(nil)
	_ provider.VocabularyEditor = (*Store)(nil)
)

// Open is the provider.Factory for kind "sqlite".
func Open(cfg config.ProviderConf) (provider.Provider, error) {
	return New(cfg.DBPath)
}

// New opens (and if needed creates) the database at dsn.
// Use ":memory:" for a throwaway database.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection serialises writers, and a ":memory:" database would
	// otherwise be a different empty database per connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	if err := migrateInstanceColumn(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// migrateInstanceColumn adds pages.is_instance to databases created without it.
func migrateInstanceColumn(db *sql.DB) error {
	rows, err := db.Query(`PRAGMA table_info(pages)`)
	if err != nil {
		return fmt.Errorf("inspect pages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cid       int
			name      string
			typ       string
			notNull   int
			dflt      sql.NullString
			primaryKy int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &primaryKy); err != nil {
			return fmt.Errorf("inspect pages: %w", err)
		}
		if name == "is_instance" {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("inspect pages: %w", err)
	}
	rows.Close()
	if _, err := db.Exec(`ALTER TABLE pages ADD COLUMN is_instance INTEGER DEFAULT 0`); err != nil {
		return fmt.Errorf("add is_instance: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// FetchNeighborhood returns the page and the targets of its outgoing relations.
func (s *Store) FetchNeighborhood(ctx context.Context, id graph.NodeID) (*graph.Neighborhood, error) {
	var self graph.Node
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, COALESCE(summary, ''), COALESCE(is_instance, 0) FROM pages WHERE id = ?`, id,
	).Scan(&self.ID, &self.Label, &self.Summary, &self.IsInstance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("node %d: %w", id, provider.ErrNotFound)
	}
	if err != nil {
		return nil, fetchErr("neighbors", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.title, COALESCE(p.summary, ''), COALESCE(p.is_instance, 0),
		       r.id, r.source_page_id, r.target_page_id, rt.name
		FROM relations r
		JOIN pages p ON p.id = r.target_page_id
		JOIN relation_types rt ON rt.id = r.relation_type_id
		WHERE r.source_page_id = ?
		ORDER BY r.id`, id)
	if err != nil {
		return nil, fetchErr("neighbors", err)
	}
	defer rows.Close()

	nb := &graph.Neighborhood{Nodes: []graph.Node{self}}
	for rows.Next() {
		var (
			n graph.Node
			e graph.Edge
		)
		if err := rows.Scan(&n.ID, &n.Label, &n.Summary, &n.IsInstance, &e.ID, &e.Source, &e.Target, &e.Label); err != nil {
			return nil, fetchErr("neighbors", err)
		}
		nb.Nodes = append(nb.Nodes, n)
		nb.Links = append(nb.Links, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fetchErr("neighbors", err)
	}
	return nb, nil
}

// FetchAllNodes lists every page.
func (s *Store) FetchAllNodes(ctx context.Context) ([]graph.Node, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, COALESCE(summary, ''), COALESCE(is_instance, 0) FROM pages ORDER BY id`)
	if err != nil {
		return nil, fetchErr("nodes", err)
	}
	defer rows.Close()

	var out []graph.Node
	for rows.Next() {
		var n graph.Node
		if err := rows.Scan(&n.ID, &n.Label, &n.Summary, &n.IsInstance); err != nil {
			return nil, fetchErr("nodes", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fetchErr("nodes", err)
	}
	return out, nil
}

// FetchAllRelations lists every relation with endpoint titles and type name.
func (s *Store) FetchAllRelations(ctx context.Context) ([]graph.Relation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.source_page_id, r.target_page_id, s.title, t.title, rt.name, rt.id
		FROM relations r
		JOIN pages s ON r.source_page_id = s.id
		JOIN pages t ON r.target_page_id = t.id
		JOIN relation_types rt ON r.relation_type_id = rt.id
		ORDER BY r.id`)
	if err != nil {
		return nil, fetchErr("relations", err)
	}
	defer rows.Close()

	var out []graph.Relation
	for rows.Next() {
		var r graph.Relation
		if err := rows.Scan(&r.ID, &r.Source, &r.Target, &r.SourceLabel, &r.TargetLabel, &r.Label, &r.TypeID); err != nil {
			return nil, fetchErr("relations", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fetchErr("relations", err)
	}
	return out, nil
}

// FetchRelationTypes lists the relation vocabulary.
func (s *Store) FetchRelationTypes(ctx context.Context) ([]graph.RelationType, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(inverse_name, ''), COALESCE(is_symmetric, 0), COALESCE(is_transitive, 0)
		FROM relation_types ORDER BY id`)
	if err != nil {
		return nil, fetchErr("relation-types", err)
	}
	defer rows.Close()

	var out []graph.RelationType
	for rows.Next() {
		var t graph.RelationType
		if err := rows.Scan(&t.ID, &t.Name, &t.InverseName, &t.Symmetric, &t.Transitive); err != nil {
			return nil, fetchErr("relation-types", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fetchErr("relation-types", err)
	}
	return out, nil
}

// CreateNode inserts a page. Titles are unique ignoring case.
func (s *Store) CreateNode(ctx context.Context, title string) (*graph.Node, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("title is required: %w", provider.ErrInvalid)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fetchErr("create node", err)
	}
	defer tx.Rollback()

	var existing int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM pages WHERE LOWER(title) = ?`, strings.ToLower(title)).Scan(&existing)
	switch {
	case err == nil:
		return nil, &provider.ConflictError{Message: "Node with this title already exists."}
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fetchErr("create node", err)
	}

	res, err := tx.ExecContext(ctx, `INSERT INTO pages (title, summary) VALUES (?, '')`, title)
	if err != nil {
		return nil, fetchErr("create node", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fetchErr("create node", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fetchErr("create node", err)
	}
	return &graph.Node{ID: graph.NodeID(id), Label: title}, nil
}

// AddRelationType inserts a vocabulary entry. Names are unique ignoring case.
func (s *Store) AddRelationType(ctx context.Context, t graph.RelationType) (graph.RelationType, error) {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return graph.RelationType{}, fmt.Errorf("relation name is required: %w", provider.ErrInvalid)
	}
	var existing int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM relation_types WHERE LOWER(name) = ?`, strings.ToLower(t.Name)).Scan(&existing)
	switch {
	case err == nil:
		return graph.RelationType{}, &provider.ConflictError{Message: "Relation type already exists"}
	case !errors.Is(err, sql.ErrNoRows):
		return graph.RelationType{}, fetchErr("create relation type", err)
	}
	var inverse any
	if t.HasInverse() {
		inverse = t.InverseName
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO relation_types (name, inverse_name, is_symmetric, is_transitive) VALUES (?, ?, ?, ?)`,
		t.Name, inverse, t.Symmetric, t.Transitive)
	if err != nil {
		return graph.RelationType{}, fetchErr("create relation type", err)
	}
	if t.ID, err = res.LastInsertId(); err != nil {
		return graph.RelationType{}, fetchErr("create relation type", err)
	}
	return t, nil
}

// UpdateRelationType rewrites every column of the type with id t.ID.
func (s *Store) UpdateRelationType(ctx context.Context, t graph.RelationType) (graph.RelationType, error) {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return graph.RelationType{}, fmt.Errorf("relation name is required: %w", provider.ErrInvalid)
	}
	var other int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM relation_types WHERE LOWER(name) = ? AND id <> ?`, strings.ToLower(t.Name), t.ID).Scan(&other)
	switch {
	case err == nil:
		return graph.RelationType{}, &provider.ConflictError{Message: "Relation type already exists"}
	case !errors.Is(err, sql.ErrNoRows):
		return graph.RelationType{}, fetchErr("update relation type", err)
	}
	var inverse any
	if t.HasInverse() {
		inverse = t.InverseName
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE relation_types SET name = ?, inverse_name = ?, is_symmetric = ?, is_transitive = ? WHERE id = ?`,
		t.Name, inverse, t.Symmetric, t.Transitive, t.ID)
	if err != nil {
		return graph.RelationType{}, fetchErr("update relation type", err)
	}
	if err := affected(res, fmt.Sprintf("relation type %d", t.ID)); err != nil {
		return graph.RelationType{}, err
	}
	return t, nil
}

// UpdateNode edits title and/or summary.
func (s *Store) UpdateNode(ctx context.Context, id graph.NodeID, fields graph.NodeFields) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pages SET title = COALESCE(?, title), summary = COALESCE(?, summary) WHERE id = ?`,
		nullable(fields.Label), nullable(fields.Summary), id)
	if err != nil {
		return fetchErr("update node", err)
	}
	return affected(res, fmt.Sprintf("node %d", id))
}

// DeleteNode removes a page that has no relations.
func (s *Store) DeleteNode(ctx context.Context, id graph.NodeID) error {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM relations WHERE source_page_id = ? OR target_page_id = ?`, id, id).Scan(&count)
	if err != nil {
		return fetchErr("delete node", err)
	}
	if count > 0 {
		return &provider.ConflictError{Message: fmt.Sprintf("Node has %d relation(s). Cannot delete.", count)}
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM pages WHERE id = ?`, id)
	if err != nil {
		return fetchErr("delete node", err)
	}
	return affected(res, fmt.Sprintf("node %d", id))
}

// CreateRelation links two existing pages with an existing relation type.
func (s *Store) CreateRelation(ctx context.Context, source, target graph.NodeID, relationTypeID int64) (*graph.Relation, error) {
	r := graph.Relation{Source: source, Target: target, TypeID: relationTypeID}
	if err := s.lookupTitle(ctx, source, &r.SourceLabel); err != nil {
		return nil, err
	}
	if err := s.lookupTitle(ctx, target, &r.TargetLabel); err != nil {
		return nil, err
	}
	err := s.db.QueryRowContext(ctx, `SELECT name FROM relation_types WHERE id = ?`, relationTypeID).Scan(&r.Label)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("relation type %d: %w", relationTypeID, provider.ErrNotFound)
	}
	if err != nil {
		return nil, fetchErr("create relation", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO relations (source_page_id, target_page_id, relation_type_id) VALUES (?, ?, ?)`,
		source, target, relationTypeID)
	if err != nil {
		return nil, fetchErr("create relation", err)
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return nil, fetchErr("create relation", err)
	}
	return &r, nil
}

// DeleteRelation removes a relation by id.
func (s *Store) DeleteRelation(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM relations WHERE id = ?`, id)
	if err != nil {
		return fetchErr("delete relation", err)
	}
	return affected(res, fmt.Sprintf("relation %d", id))
}

func (s *Store) lookupTitle(ctx context.Context, id graph.NodeID, dst *string) error {
	err := s.db.QueryRowContext(ctx, `SELECT title FROM pages WHERE id = ?`, id).Scan(dst)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("node %d: %w", id, provider.ErrNotFound)
	}
	if err != nil {
		return fetchErr("lookup node", err)
	}
	return nil
}

func affected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fetchErr(what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, provider.ErrNotFound)
	}
	return nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func fetchErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &provider.FetchError{Op: op, Err: err}
}
