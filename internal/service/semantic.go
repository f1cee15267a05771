package service

import (
	"context"
	"sort"
	"strings"

	"github.com/Harshitk-cp/protomind/internal/domain"
	"github.com/Harshitk-cp/protomind/internal/vector"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// SubstringMatchScore is the similarity assigned to label matches when
	// no query embedding is available.
	SubstringMatchScore = 0.5

	defaultSearchTopK   = 10
	maxEmbedConcurrency = 4

	documentPrototypeName = "Document"
)

// SemanticService builds mean embeddings from a node's own text and its
// associations, and ranks concepts by cosine similarity.
type SemanticService struct {
	graph       domain.GraphStore
	embedder    domain.EmbeddingClient
	logger      *zap.Logger
	defaultTopK int
}

func NewSemanticService(graph domain.GraphStore, embedder domain.EmbeddingClient, logger *zap.Logger) *SemanticService {
	return &SemanticService{
		graph:       graph,
		embedder:    embedder,
		logger:      logger,
		defaultTopK: defaultSearchTopK,
	}
}

func (s *SemanticService) SetDefaultTopK(k int) {
	if k > 0 {
		s.defaultTopK = k
	}
}

// Association links a new node to an existing one. A zero Weight counts as 1.
type Association struct {
	NodeID uuid.UUID
	Rel    domain.Relation
	Weight float64
}

type CreateNodeWithDocumentInput struct {
	Label        string
	Summary      string
	Tags         []string
	Metadata     map[string]any
	Associations []Association
	// PrototypeID defaults to the built-in Document prototype.
	PrototypeID *uuid.UUID
	Source      string
}

type NodeWithDocument struct {
	Concept  *domain.Node  `json:"concept"`
	Document *domain.Node  `json:"document"`
	Tags     []domain.Node `json:"tags"`
}

// CreateNodeWithDocument stores a concept together with its document, its tag
// nodes and its associations. The concept embedding is the mean of its own
// text vector, every tag vector and every associated node vector.
func (s *SemanticService) CreateNodeWithDocument(ctx context.Context, in CreateNodeWithDocumentInput) (*NodeWithDocument, error) {
	label := strings.TrimSpace(in.Label)
	if label == "" {
		return nil, domain.MissingField("label")
	}

	tags := make([]*domain.Node, 0, len(in.Tags))
	seen := make(map[uuid.UUID]bool, len(in.Tags))
	for _, t := range in.Tags {
		tag, err := domain.NewTagNode(t)
		if err != nil {
			return nil, err
		}
		if !seen[tag.ID] {
			seen[tag.ID] = true
			tags = append(tags, tag)
		}
	}

	assocNodes := make([]*domain.Node, len(in.Associations))
	for i, a := range in.Associations {
		if a.Rel != "" && domain.ReservedRelation(a.Rel) {
			return nil, domain.InvalidValue("associations.rel", "relation "+string(a.Rel)+" is maintained by the core")
		}
		if a.Weight < 0 {
			return nil, domain.OutOfRange("associations.weight", a.Weight, 0, 1e308)
		}
		n, err := s.graph.GetNode(ctx, a.NodeID)
		if err != nil {
			return nil, err
		}
		if n == nil {
			return nil, domain.NotFound("node", a.NodeID.String())
		}
		assocNodes[i] = n
	}

	proto, err := s.prototype(ctx, in.PrototypeID)
	if err != nil {
		return nil, err
	}
	protoPayload, _ := proto.Prototype()

	data := map[string]any{domain.PropName: label}
	if in.Summary != "" {
		data[domain.PropSummary] = in.Summary
	}
	concept, err := domain.NewConceptNode(proto.ID, protoPayload.Name, label, data)
	if err != nil {
		return nil, err
	}
	doc, err := domain.NewDocumentNode(concept.ID, 1, domain.CloneProps(in.Metadata))
	if err != nil {
		return nil, err
	}

	if err := s.embedTags(ctx, tags); err != nil {
		return nil, err
	}

	vecs := [][]float32{embedText(ctx, s.embedder, s.logger, label+" "+in.Summary)}
	weights := []float64{1}
	for _, t := range tags {
		vecs = append(vecs, t.Embedding)
		weights = append(weights, 1)
	}
	for i, n := range assocNodes {
		vecs = append(vecs, n.Embedding)
		weights = append(weights, weightOrOne(in.Associations[i].Weight))
	}
	concept.Embedding = vector.Mean(vecs, weights)

	prov := domain.NewProvenance(in.Source)
	for _, t := range tags {
		if err := s.graph.UpsertNode(ctx, t, prov); err != nil {
			return nil, err
		}
	}
	if err := s.graph.UpsertNode(ctx, concept, prov); err != nil {
		return nil, err
	}
	if err := s.graph.UpsertNode(ctx, doc, prov); err != nil {
		return nil, err
	}
	if err := s.graph.UpsertEdge(ctx, domain.NewEdge(concept.ID, doc.ID, domain.RelHasDocument, 1), prov); err != nil {
		return nil, err
	}
	for _, t := range tags {
		if err := s.graph.UpsertEdge(ctx, domain.NewEdge(concept.ID, t.ID, domain.RelTagged, 1), prov); err != nil {
			return nil, err
		}
	}
	for i, a := range in.Associations {
		rel := a.Rel
		if rel == "" {
			rel = domain.RelAssociated
		}
		edge := domain.NewEdge(concept.ID, assocNodes[i].ID, rel, weightOrOne(a.Weight))
		if err := s.graph.UpsertEdge(ctx, edge, prov); err != nil {
			return nil, err
		}
	}

	s.logger.Debug("node with document created",
		zap.String("concept_id", concept.ID.String()),
		zap.Int("tags", len(tags)),
		zap.Int("associations", len(in.Associations)))

	out := &NodeWithDocument{Concept: concept, Document: doc, Tags: make([]domain.Node, len(tags))}
	for i, t := range tags {
		out.Tags[i] = *t
	}
	return out, nil
}

// embedTags reuses stored tag vectors and embeds the rest concurrently.
func (s *SemanticService) embedTags(ctx context.Context, tags []*domain.Node) error {
	for _, t := range tags {
		existing, err := s.graph.GetNode(ctx, t.ID)
		if err != nil {
			return err
		}
		if existing != nil && len(existing.Embedding) > 0 {
			t.Embedding = existing.Embedding
		}
	}
	if s.embedder == nil {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxEmbedConcurrency)
	for _, t := range tags {
		if len(t.Embedding) > 0 {
			continue
		}
		g.Go(func() error {
			p, _ := t.Tag()
			t.Embedding = embedText(gctx, s.embedder, s.logger, p.Text)
			return nil
		})
	}
	return g.Wait()
}

// RecomputeEmbedding refreshes a node's mean embedding from its own text and
// the current vectors of its outgoing association edges, weighted by edge
// weight. Structural edges are ignored.
func (s *SemanticService) RecomputeEmbedding(ctx context.Context, id uuid.UUID) (*domain.Node, error) {
	n, err := s.graph.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, domain.NotFound("node", id.String())
	}

	summary, _ := n.Props[domain.PropSummary].(string)
	vecs := [][]float32{embedText(ctx, s.embedder, s.logger, n.DisplayName()+" "+summary)}
	weights := []float64{1}

	edges, err := s.graph.ListEdges(ctx, domain.OutgoingFilter(id, ""))
	if err != nil {
		return nil, err
	}
	for _, e := range edges {
		if domain.ReservedRelation(e.Rel) {
			continue
		}
		target, err := s.graph.GetNode(ctx, e.To)
		if err != nil {
			return nil, err
		}
		if target == nil || len(target.Embedding) == 0 {
			continue
		}
		vecs = append(vecs, target.Embedding)
		weights = append(weights, weightOrOne(e.Weight))
	}

	mean := vector.Mean(vecs, weights)
	if mean == nil {
		return n, nil
	}
	n.Embedding = mean
	if err := s.graph.UpsertNode(ctx, n, domain.NewProvenance("recompute")); err != nil {
		return nil, err
	}
	return n, nil
}

type SearchRequest struct {
	Query string
	// Embedding, when set, is used instead of embedding Query.
	Embedding           []float32
	TopK                int
	Filters             domain.SearchFilters
	SimilarityThreshold float64
}

func (s *SearchRequest) normalize(defaultTopK int) {
	if s.TopK <= 0 {
		s.TopK = defaultTopK
	}
	if s.Filters.Kind == "" {
		s.Filters.Kind = domain.KindConcept
	}
}

// SearchConcepts ranks nodes (concepts unless Filters.Kind says otherwise) by
// cosine similarity to the query, drops results below the threshold and
// returns at most TopK. Equal scores keep insertion order. Without a query
// embedding it falls back to a case-insensitive label substring match scored
// at SubstringMatchScore.
func (s *SemanticService) SearchConcepts(ctx context.Context, req SearchRequest) ([]domain.ScoredNode, error) {
	req.normalize(s.defaultTopK)
	if req.SimilarityThreshold < 0 || req.SimilarityThreshold > 1 {
		return nil, domain.OutOfRange("similarity_threshold", req.SimilarityThreshold, 0, 1)
	}

	emb := req.Embedding
	if len(emb) == 0 {
		if strings.TrimSpace(req.Query) == "" {
			return nil, domain.MissingField("query")
		}
		emb = embedText(ctx, s.embedder, s.logger, req.Query)
	}
	if len(emb) == 0 {
		return s.substringSearch(ctx, req)
	}

	results, err := s.graph.Search(ctx, emb, req.TopK, req.Filters)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ScoredNode, 0, len(results))
	for _, r := range results {
		if r.Score >= req.SimilarityThreshold {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *SemanticService) substringSearch(ctx context.Context, req SearchRequest) ([]domain.ScoredNode, error) {
	if s.embedder != nil {
		s.logger.Warn("query embedding unavailable, using label match", zap.String("query", req.Query))
	}
	out := []domain.ScoredNode{}
	if SubstringMatchScore < req.SimilarityThreshold {
		return out, nil
	}

	nodes, err := s.graph.ListNodes(ctx, domain.NodeFilter{Kind: req.Filters.Kind, Label: req.Filters.Label})
	if err != nil {
		return nil, err
	}
	superseded := map[uuid.UUID]bool{}
	if req.Filters.CurrentOnly {
		edges, err := s.graph.ListEdges(ctx, domain.EdgeFilter{Rel: domain.RelNextVersion})
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			superseded[e.From] = true
		}
	}

	q := strings.ToLower(strings.TrimSpace(req.Query))
	for _, n := range nodes {
		if superseded[n.ID] || !labelContains(n.Labels, q) {
			continue
		}
		out = append(out, domain.ScoredNode{Node: n, Score: SubstringMatchScore})
		if len(out) == req.TopK {
			break
		}
	}
	return out, nil
}

func (s *SemanticService) prototype(ctx context.Context, id *uuid.UUID) (*domain.Node, error) {
	if id != nil {
		n, err := s.graph.GetNode(ctx, *id)
		if err != nil {
			return nil, err
		}
		if n == nil || n.Kind != domain.KindPrototype {
			return nil, domain.NotFound("prototype", id.String())
		}
		return n, nil
	}

	nodes, err := s.graph.ListNodes(ctx, domain.NodeFilter{Kind: domain.KindPrototype, Label: documentPrototypeName})
	if err != nil {
		return nil, err
	}
	if len(nodes) > 0 {
		sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].CreatedAt.Before(nodes[j].CreatedAt) })
		return &nodes[0], nil
	}
	proto, err := domain.NewPrototypeNode(documentPrototypeName, "Free-form documents")
	if err != nil {
		return nil, err
	}
	if err := s.graph.UpsertNode(ctx, proto, domain.NewProvenance("system")); err != nil {
		return nil, err
	}
	return proto, nil
}

func labelContains(labels []string, q string) bool {
	for _, l := range labels {
		if strings.Contains(strings.ToLower(l), q) {
			return true
		}
	}
	return false
}

func weightOrOne(w float64) float64 {
	if w <= 0 {
		return 1
	}
	return w
}
