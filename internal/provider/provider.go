// Package provider defines the Graph Data Provider contract consumed by the
// expansion controller, and a registry of provider implementations.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/gyaneshwarpardhi/kgexplorer/internal/graph"
)

// Provider is the request/response contract of the persistence layer.
// All calls may block on I/O; callers must not hold graph state while waiting.
type Provider interface {
	FetchNeighborhood(ctx context.Context, id graph.NodeID) (*graph.Neighborhood, error)
	FetchAllNodes(ctx context.Context) ([]graph.Node, error)
	FetchAllRelations(ctx context.Context) ([]graph.Relation, error)
	FetchRelationTypes(ctx context.Context) ([]graph.RelationType, error)

	CreateNode(ctx context.Context, title string) (*graph.Node, error)
	UpdateNode(ctx context.Context, id graph.NodeID, fields graph.NodeFields) error
	// DeleteNode returns ErrConflict when the node still has relations.
	DeleteNode(ctx context.Context, id graph.NodeID) error

	CreateRelation(ctx context.Context, source, target graph.NodeID, relationTypeID int64) (*graph.Relation, error)
	DeleteRelation(ctx context.Context, id int64) error

	Close() error
}

// VocabularyEditor is implemented by providers that can add and edit relation types.
// UpdateRelationType replaces every field of the type with id t.ID.
type VocabularyEditor interface {
	AddRelationType(ctx context.Context, t graph.RelationType) (graph.RelationType, error)
	UpdateRelationType(ctx context.Context, t graph.RelationType) (graph.RelationType, error)
}

var (
	// ErrConflict signals a request the backend refused because of existing state,
	// e.g. deleting a node that still has relations.
	ErrConflict = errors.New("conflict")
	// ErrNotFound signals a missing node, relation or relation type.
	ErrNotFound = errors.New("not found")
	// ErrInvalid signals a request the backend rejected as malformed, e.g. an empty title.
	ErrInvalid = errors.New("invalid request")
)

// FetchError is a transport or server failure. The graph is left unchanged and
// the request may be retried.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *FetchError) Unwrap() error { return e.Err }

// IsFetchFailure reports whether err is a retryable fetch failure.
func IsFetchFailure(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// ConflictError carries the backend's user-facing message for a conflict.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return "conflict: " + e.Message }

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }
