package store

import (
	"context"
	"sync"
	"time"

	"github.com/Harshitk-cp/protomind/internal/domain"
	"github.com/google/uuid"
)

// InMemoryGraphStore is a volatile GraphStore. Values are cloned on the way
// in and out so callers never share maps with the store.
type InMemoryGraphStore struct {
	mu        sync.RWMutex
	nodes     map[uuid.UUID]*domain.Node
	nodeOrder []uuid.UUID
	edges     map[uuid.UUID]*domain.Edge
	edgeOrder []uuid.UUID
	now       func() time.Time
}

func NewInMemoryGraphStore() *InMemoryGraphStore {
	return &InMemoryGraphStore{
		nodes: make(map[uuid.UUID]*domain.Node),
		edges: make(map[uuid.UUID]*domain.Edge),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *InMemoryGraphStore) UpsertNode(ctx context.Context, n *domain.Node, prov domain.Provenance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.nodes[n.ID]
	stored := stampNode(n, prev, prov, s.now())
	if prev == nil {
		s.nodeOrder = append(s.nodeOrder, stored.ID)
	}
	s.nodes[stored.ID] = stored
	return nil
}

func (s *InMemoryGraphStore) UpsertEdge(ctx context.Context, e *domain.Edge, prov domain.Provenance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := domain.EdgeID(e.From, e.To, e.Rel)
	prev := s.edges[id]
	stored := stampEdge(e, prev, prov, s.now())
	if prev == nil {
		s.edgeOrder = append(s.edgeOrder, id)
	}
	s.edges[id] = stored
	return nil
}

func (s *InMemoryGraphStore) GetNode(ctx context.Context, id uuid.UUID) (*domain.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodes[id].Clone(), nil
}

func (s *InMemoryGraphStore) GetEdge(ctx context.Context, from, to uuid.UUID, rel domain.Relation) (*domain.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.edges[domain.EdgeID(from, to, rel)].Clone(), nil
}

func (s *InMemoryGraphStore) DeleteEdge(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.edges[id]; !ok {
		return ErrNotFound
	}
	delete(s.edges, id)
	for i, eid := range s.edgeOrder {
		if eid == id {
			s.edgeOrder = append(s.edgeOrder[:i], s.edgeOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (s *InMemoryGraphStore) ListNodes(ctx context.Context, filter domain.NodeFilter) ([]domain.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var nodes []domain.Node
	for _, id := range s.nodeOrder {
		n := s.nodes[id]
		if matchNode(n, filter) {
			nodes = append(nodes, *n.Clone())
		}
	}
	return nodes, nil
}

func (s *InMemoryGraphStore) ListEdges(ctx context.Context, filter domain.EdgeFilter) ([]domain.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listEdgesLocked(filter), nil
}

func (s *InMemoryGraphStore) listEdgesLocked(filter domain.EdgeFilter) []domain.Edge {
	var edges []domain.Edge
	for _, id := range s.edgeOrder {
		e := s.edges[id]
		if matchEdge(e, filter) {
			edges = append(edges, *e.Clone())
		}
	}
	return edges
}

func (s *InMemoryGraphStore) Search(ctx context.Context, embedding []float32, topK int, filters domain.SearchFilters) ([]domain.ScoredNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	superseded := make(map[uuid.UUID]bool)
	if filters.CurrentOnly {
		for _, e := range s.listEdgesLocked(domain.EdgeFilter{Rel: domain.RelNextVersion}) {
			superseded[e.From] = true
		}
	}

	candidates := make([]domain.Node, 0, len(s.nodeOrder))
	for _, id := range s.nodeOrder {
		candidates = append(candidates, *s.nodes[id].Clone())
	}
	return rankNodes(candidates, embedding, topK, filters, superseded), nil
}

// InMemoryAssertionStore is a volatile AssertionStore.
type InMemoryAssertionStore struct {
	mu         sync.RWMutex
	assertions map[uuid.UUID]domain.Assertion
	order      []uuid.UUID
}

func NewInMemoryAssertionStore() *InMemoryAssertionStore {
	return &InMemoryAssertionStore{assertions: make(map[uuid.UUID]domain.Assertion)}
}

func (s *InMemoryAssertionStore) Create(ctx context.Context, a *domain.Assertion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if _, ok := s.assertions[a.ID]; !ok {
		s.order = append(s.order, a.ID)
	}
	s.assertions[a.ID] = *a
	return nil
}

func (s *InMemoryAssertionStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Assertion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assertions[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *InMemoryAssertionStore) List(ctx context.Context, filter domain.AssertionFilter) ([]domain.Assertion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Assertion
	for _, id := range s.order {
		a := s.assertions[id]
		if matchAssertion(&a, filter) {
			out = append(out, a)
		}
	}
	return out, nil
}
