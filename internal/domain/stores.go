package domain

import (
	"context"

	"github.com/google/uuid"
)

type NodeFilter struct {
	Kind  NodeKind
	Label string
}

// EdgeFilter selects edges. Nil ids and an empty Rel match anything.
type EdgeFilter struct {
	From *uuid.UUID
	To   *uuid.UUID
	Rel  Relation
}

func OutgoingFilter(from uuid.UUID, rel Relation) EdgeFilter {
	return EdgeFilter{From: &from, Rel: rel}
}

func IncomingFilter(to uuid.UUID, rel Relation) EdgeFilter {
	return EdgeFilter{To: &to, Rel: rel}
}

type SearchFilters struct {
	Kind  NodeKind
	Label string
	// CurrentOnly drops concepts that have been superseded by a newer version.
	CurrentOnly bool
}

type ScoredNode struct {
	Node
	Score float64 `json:"score"`
}

// GraphStore is the storage-agnostic contract consumed by every service.
//
// Upserts are idempotent on ID and atomic per entity. GetNode and GetEdge
// return (nil, nil) when nothing matches. List results are ordered by
// insertion, and Search breaks score ties by insertion order.
type GraphStore interface {
	UpsertNode(ctx context.Context, n *Node, prov Provenance) error
	UpsertEdge(ctx context.Context, e *Edge, prov Provenance) error
	GetNode(ctx context.Context, id uuid.UUID) (*Node, error)
	GetEdge(ctx context.Context, from, to uuid.UUID, rel Relation) (*Edge, error)
	DeleteEdge(ctx context.Context, id uuid.UUID) error
	ListNodes(ctx context.Context, filter NodeFilter) ([]Node, error)
	ListEdges(ctx context.Context, filter EdgeFilter) ([]Edge, error)
	Search(ctx context.Context, embedding []float32, topK int, filters SearchFilters) ([]ScoredNode, error)
}

type AssertionFilter struct {
	Subject   string
	Predicate string
}

// AssertionStore keeps assertions immutable: there is no update path.
type AssertionStore interface {
	Create(ctx context.Context, a *Assertion) error
	GetByID(ctx context.Context, id uuid.UUID) (*Assertion, error)
	List(ctx context.Context, filter AssertionFilter) ([]Assertion, error)
}

type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
