package service

import (
	"context"
	"strings"
	"sync"

	"github.com/Harshitk-cp/protomind/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PrototypeService manages prototypes, their is_a inheritance DAG and the
// next_version chains of concepts.
type PrototypeService struct {
	graph    domain.GraphStore
	embedder domain.EmbeddingClient
	logger   *zap.Logger

	// mu is held from the invariant check to the write of is_a and
	// next_version edges.
	mu sync.Mutex
}

// NewPrototypeService returns a manager over graph. embedder may be nil, in
// which case prototypes and concepts are stored without embeddings.
func NewPrototypeService(graph domain.GraphStore, embedder domain.EmbeddingClient, logger *zap.Logger) *PrototypeService {
	return &PrototypeService{graph: graph, embedder: embedder, logger: logger}
}

type CreatePrototypeInput struct {
	Name        string
	Description string
	// Base is the single legacy parent; it is linked together with Parents.
	Base    *uuid.UUID
	Parents []uuid.UUID
	Source  string
}

func (s *PrototypeService) CreatePrototype(ctx context.Context, in CreatePrototypeInput) (*domain.Node, error) {
	node, err := domain.NewPrototypeNode(in.Name, in.Description)
	if err != nil {
		return nil, err
	}

	parents := in.Parents
	if in.Base != nil {
		parents = append([]uuid.UUID{*in.Base}, parents...)
	}
	parents = uniqueIDs(parents)
	for _, pid := range parents {
		if err := s.requirePrototype(ctx, pid); err != nil {
			return nil, err
		}
	}

	node.Embedding = s.embed(ctx, in.Name+" "+in.Description)
	prov := domain.NewProvenance(in.Source)
	if err := s.graph.UpsertNode(ctx, node, prov); err != nil {
		return nil, err
	}

	// A fresh node has no descendants, so none of these links can close a cycle.
	for _, pid := range parents {
		if err := s.graph.UpsertEdge(ctx, domain.NewEdge(node.ID, pid, domain.RelIsA, 1), prov); err != nil {
			return nil, err
		}
	}

	s.logger.Debug("prototype created",
		zap.String("prototype_id", node.ID.String()),
		zap.String("name", in.Name),
		zap.Int("parents", len(parents)))
	return node, nil
}

// GetPrototype returns nil when id does not name a prototype.
func (s *PrototypeService) GetPrototype(ctx context.Context, id uuid.UUID) (*domain.Node, error) {
	n, err := s.graph.GetNode(ctx, id)
	if err != nil || n == nil || n.Kind != domain.KindPrototype {
		return nil, err
	}
	return n, nil
}

// FindPrototypeByName returns the first prototype registered under name.
func (s *PrototypeService) FindPrototypeByName(ctx context.Context, name string) (*domain.Node, error) {
	nodes, err := s.graph.ListNodes(ctx, domain.NodeFilter{Kind: domain.KindPrototype, Label: name})
	if err != nil {
		return nil, err
	}
	for i := range nodes {
		if p, _ := nodes[i].Prototype(); p.Name == name {
			return &nodes[i], nil
		}
	}
	return nil, nil
}

// UpdatePrototype rewrites the description in place. Prototypes are not
// versioned.
func (s *PrototypeService) UpdatePrototype(ctx context.Context, id uuid.UUID, description, source string) (*domain.Node, error) {
	n, err := s.GetPrototype(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, domain.NotFound("prototype", id.String())
	}
	n.Props[domain.PropDescription] = description
	p, _ := n.Prototype()
	if emb := s.embed(ctx, p.Name+" "+description); emb != nil {
		n.Embedding = emb
	}
	if err := s.graph.UpsertNode(ctx, n, domain.NewProvenance(source)); err != nil {
		return nil, err
	}
	return n, nil
}

// AddParent links child is_a parent. A link that would make parent reachable
// from itself fails with InvariantViolation and writes nothing.
func (s *PrototypeService) AddParent(ctx context.Context, childID, parentID uuid.UUID, source string) error {
	if err := s.requirePrototype(ctx, childID); err != nil {
		return err
	}
	if err := s.requirePrototype(ctx, parentID); err != nil {
		return err
	}
	if childID == parentID {
		return domain.InvariantViolation("a prototype cannot inherit from itself")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.graph.GetEdge(ctx, childID, parentID, domain.RelIsA)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	cycle, err := s.reachable(ctx, parentID, childID, domain.RelIsA)
	if err != nil {
		return err
	}
	if cycle {
		return domain.InvariantViolation("is_a " + childID.String() + " -> " + parentID.String() + " would create an inheritance cycle")
	}

	return s.graph.UpsertEdge(ctx, domain.NewEdge(childID, parentID, domain.RelIsA, 1), domain.NewProvenance(source))
}

// Parents returns the direct is_a targets of id.
func (s *PrototypeService) Parents(ctx context.Context, id uuid.UUID) ([]domain.Node, error) {
	edges, err := s.graph.ListEdges(ctx, domain.OutgoingFilter(id, domain.RelIsA))
	if err != nil {
		return nil, err
	}
	var out []domain.Node
	for _, e := range edges {
		n, err := s.graph.GetNode(ctx, e.To)
		if err != nil {
			return nil, err
		}
		if n != nil {
			out = append(out, *n)
		}
	}
	return out, nil
}

// Ancestors returns every transitive parent of id in breadth-first order.
func (s *PrototypeService) Ancestors(ctx context.Context, id uuid.UUID) ([]domain.Node, error) {
	seen := map[uuid.UUID]bool{id: true}
	queue := []uuid.UUID{id}
	var out []domain.Node

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		parents, err := s.Parents(ctx, cur)
		if err != nil {
			return nil, err
		}
		for _, p := range parents {
			if seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			out = append(out, p)
			queue = append(queue, p.ID)
		}
	}
	return out, nil
}

// IsA reports whether id is ancestor or inherits from it.
func (s *PrototypeService) IsA(ctx context.Context, id, ancestor uuid.UUID) (bool, error) {
	if id == ancestor {
		return true, nil
	}
	return s.reachable(ctx, id, ancestor, domain.RelIsA)
}

type CreateConceptInput struct {
	PrototypeID uuid.UUID
	// Label is the display name; it defaults to data["name"] or the
	// prototype name.
	Label             string
	Data              map[string]any
	PreviousVersionID *uuid.UUID
	Source            string
}

// CreateConcept stores a new instance of a prototype. When PreviousVersionID
// is set the new concept supersedes it through a next_version edge.
func (s *PrototypeService) CreateConcept(ctx context.Context, in CreateConceptInput) (*domain.Node, error) {
	if in.PrototypeID == uuid.Nil {
		return nil, domain.MissingField("prototype_id")
	}
	proto, err := s.GetPrototype(ctx, in.PrototypeID)
	if err != nil {
		return nil, err
	}
	if proto == nil {
		return nil, domain.NotFound("prototype", in.PrototypeID.String())
	}
	protoPayload, _ := proto.Prototype()

	if in.PreviousVersionID != nil {
		prev, err := s.graph.GetNode(ctx, *in.PreviousVersionID)
		if err != nil {
			return nil, err
		}
		if prev == nil || prev.Kind != domain.KindConcept {
			return nil, domain.NotFound("concept", in.PreviousVersionID.String())
		}
		if err := s.requireHead(ctx, prev.ID); err != nil {
			return nil, err
		}
	}

	label := in.Label
	if label == "" {
		if name, ok := in.Data[domain.PropName].(string); ok {
			label = name
		} else {
			label = protoPayload.Name
		}
	}

	node, err := domain.NewConceptNode(proto.ID, protoPayload.Name, label, in.Data)
	if err != nil {
		return nil, err
	}
	node.Embedding = s.embed(ctx, conceptText(label, in.Data))

	if in.PreviousVersionID != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		// Checked again under the lock; a concurrent supersede may have won.
		if err := s.requireHead(ctx, *in.PreviousVersionID); err != nil {
			return nil, err
		}
	}

	prov := domain.NewProvenance(in.Source)
	if err := s.graph.UpsertNode(ctx, node, prov); err != nil {
		return nil, err
	}
	if in.PreviousVersionID != nil {
		if err := s.graph.UpsertEdge(ctx, domain.NewEdge(*in.PreviousVersionID, node.ID, domain.RelNextVersion, 1), prov); err != nil {
			return nil, err
		}
	}

	s.logger.Debug("concept created",
		zap.String("concept_id", node.ID.String()),
		zap.String("prototype_id", proto.ID.String()))
	return node, nil
}

// requireHead fails with InvariantViolation when id already has a successor.
func (s *PrototypeService) requireHead(ctx context.Context, id uuid.UUID) error {
	next, err := s.graph.ListEdges(ctx, domain.OutgoingFilter(id, domain.RelNextVersion))
	if err != nil {
		return err
	}
	if len(next) > 0 {
		return domain.InvariantViolation("concept " + id.String() + " is already superseded by " + next[0].To.String())
	}
	return nil
}

// GetConcept returns nil when id does not name a concept.
func (s *PrototypeService) GetConcept(ctx context.Context, id uuid.UUID) (*domain.Node, error) {
	n, err := s.graph.GetNode(ctx, id)
	if err != nil || n == nil || n.Kind != domain.KindConcept {
		return nil, err
	}
	return n, nil
}

// IsSuperseded reports whether id has an outgoing next_version edge.
func (s *PrototypeService) IsSuperseded(ctx context.Context, id uuid.UUID) (bool, error) {
	next, err := s.graph.ListEdges(ctx, domain.OutgoingFilter(id, domain.RelNextVersion))
	if err != nil {
		return false, err
	}
	return len(next) > 0, nil
}

// CurrentVersion follows next_version edges from id to the head of its chain.
func (s *PrototypeService) CurrentVersion(ctx context.Context, id uuid.UUID) (*domain.Node, error) {
	cur := id
	seen := map[uuid.UUID]bool{}
	for !seen[cur] {
		seen[cur] = true
		next, err := s.graph.ListEdges(ctx, domain.OutgoingFilter(cur, domain.RelNextVersion))
		if err != nil {
			return nil, err
		}
		if len(next) == 0 {
			break
		}
		cur = next[0].To
	}
	return s.GetConcept(ctx, cur)
}

// History returns the whole version chain containing id, oldest first.
func (s *PrototypeService) History(ctx context.Context, id uuid.UUID) ([]domain.Node, error) {
	root := id
	seen := map[uuid.UUID]bool{}
	for !seen[root] {
		seen[root] = true
		prev, err := s.graph.ListEdges(ctx, domain.IncomingFilter(root, domain.RelNextVersion))
		if err != nil {
			return nil, err
		}
		if len(prev) == 0 {
			break
		}
		root = prev[0].From
	}

	var chain []domain.Node
	cur := root
	seen = map[uuid.UUID]bool{}
	for !seen[cur] {
		seen[cur] = true
		n, err := s.GetConcept(ctx, cur)
		if err != nil {
			return nil, err
		}
		if n == nil {
			break
		}
		chain = append(chain, *n)
		next, err := s.graph.ListEdges(ctx, domain.OutgoingFilter(cur, domain.RelNextVersion))
		if err != nil {
			return nil, err
		}
		if len(next) == 0 {
			break
		}
		cur = next[0].To
	}
	return chain, nil
}

func (s *PrototypeService) requirePrototype(ctx context.Context, id uuid.UUID) error {
	p, err := s.GetPrototype(ctx, id)
	if err != nil {
		return err
	}
	if p == nil {
		return domain.NotFound("prototype", id.String())
	}
	return nil
}

// reachable walks outgoing rel edges breadth-first from start looking for target.
func (s *PrototypeService) reachable(ctx context.Context, start, target uuid.UUID, rel domain.Relation) (bool, error) {
	seen := map[uuid.UUID]bool{start: true}
	queue := []uuid.UUID{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == target {
			return true, nil
		}
		edges, err := s.graph.ListEdges(ctx, domain.OutgoingFilter(cur, rel))
		if err != nil {
			return false, err
		}
		for _, e := range edges {
			if !seen[e.To] {
				seen[e.To] = true
				queue = append(queue, e.To)
			}
		}
	}
	return false, nil
}

func (s *PrototypeService) embed(ctx context.Context, text string) []float32 {
	return embedText(ctx, s.embedder, s.logger, text)
}

// embedText returns nil when no embedder is configured or the call fails;
// callers store the node without a vector and search falls back to labels.
func embedText(ctx context.Context, embedder domain.EmbeddingClient, logger *zap.Logger, text string) []float32 {
	text = strings.TrimSpace(text)
	if embedder == nil || text == "" {
		return nil
	}
	v, err := embedder.Embed(ctx, text)
	if err != nil {
		logger.Warn("embedding failed", zap.Error(err))
		return nil
	}
	return v
}

// conceptText is the text a concept is embedded from: its label followed by
// its string-valued fields in key order.
func conceptText(label string, data map[string]any) string {
	parts := []string{label}
	for _, k := range sortedKeys(data) {
		if s, ok := data[k].(string); ok && s != label {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
