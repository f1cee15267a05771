package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Harshitk-cp/protomind/internal/domain"
	"github.com/Harshitk-cp/protomind/internal/embedding"
	"github.com/Harshitk-cp/protomind/internal/vector"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func embedWith(t *testing.T, text string) []float32 {
	t.Helper()
	v, err := embedding.NewMockClient(64).Embed(context.Background(), text)
	require.NoError(t, err)
	return v
}

func TestSearchConceptsThreshold(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	topic := env.prototype(t, "Topic")
	env.concept(t, topic, map[string]any{"name": "apple banana"})
	env.concept(t, topic, map[string]any{"name": "car engine"})

	results, err := env.semantic.SearchConcepts(ctx, SearchRequest{
		Query:               "zebra quantum physics",
		TopK:                5,
		SimilarityThreshold: 0.9,
	})
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestSearchConceptsRanksBySimilarity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	topic := env.prototype(t, "Topic")
	apple := env.concept(t, topic, map[string]any{"name": "apple banana"})
	env.concept(t, topic, map[string]any{"name": "car engine"})

	results, err := env.semantic.SearchConcepts(ctx, SearchRequest{Query: "apple banana", TopK: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, apple.ID, results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)

	t.Run("prototypes are excluded by default", func(t *testing.T) {
		results, err := env.semantic.SearchConcepts(ctx, SearchRequest{Query: "Topic"})
		require.NoError(t, err)
		for _, r := range results {
			assert.Equal(t, domain.KindConcept, r.Kind)
		}
	})

	t.Run("explicit embedding", func(t *testing.T) {
		results, err := env.semantic.SearchConcepts(ctx, SearchRequest{Embedding: embedWith(t, "car engine"), TopK: 1})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "car engine", results[0].DisplayName())
	})
}

func TestSearchConceptsCurrentOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	topic := env.prototype(t, "Topic")
	v1 := env.concept(t, topic, map[string]any{"name": "golang"})
	v2, err := env.protos.CreateConcept(ctx, CreateConceptInput{
		PrototypeID:       topic.ID,
		Data:              map[string]any{"name": "golang"},
		PreviousVersionID: &v1.ID,
	})
	require.NoError(t, err)

	all, err := env.semantic.SearchConcepts(ctx, SearchRequest{Query: "golang"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, v1.ID, all[0].ID, "equal scores keep insertion order")

	current, err := env.semantic.SearchConcepts(ctx, SearchRequest{Query: "golang", Filters: domain.SearchFilters{CurrentOnly: true}})
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, v2.ID, current[0].ID)
}

func TestSearchConceptsSubstringFallback(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	person := env.prototype(t, "Person")
	alice := env.concept(t, person, map[string]any{"name": "Alice"})
	env.concept(t, person, map[string]any{"name": "Bob"})

	t.Run("no embedder", func(t *testing.T) {
		svc := NewSemanticService(env.graph, nil, zap.NewNop())
		results, err := svc.SearchConcepts(ctx, SearchRequest{Query: "ALI"})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, alice.ID, results[0].ID)
		assert.Equal(t, SubstringMatchScore, results[0].Score)

		results, err = svc.SearchConcepts(ctx, SearchRequest{Query: "ali", SimilarityThreshold: 0.6})
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("embedder failure", func(t *testing.T) {
		me := new(MockEmbeddingClient)
		me.On("Embed", mock.Anything, "bob").Return(nil, errors.New("rate limited"))
		svc := NewSemanticService(env.graph, me, zap.NewNop())

		results, err := svc.SearchConcepts(ctx, SearchRequest{Query: "bob"})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "Bob", results[0].DisplayName())
		me.AssertExpectations(t)
	})
}

func TestSearchConceptsValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.semantic.SearchConcepts(ctx, SearchRequest{Query: "  "})
	assertKind(t, err, domain.KindMissingField)

	_, err = env.semantic.SearchConcepts(ctx, SearchRequest{Query: "x", SimilarityThreshold: 1.5})
	assertKind(t, err, domain.KindOutOfRange)
}

func TestCreateNodeWithDocument(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	topic := env.prototype(t, "Topic")
	related := env.concept(t, topic, map[string]any{"name": "concurrency"})

	out, err := env.semantic.CreateNodeWithDocument(ctx, CreateNodeWithDocumentInput{
		Label:    "Goroutines",
		Summary:  "lightweight threads",
		Tags:     []string{"go", "runtime", "go"},
		Metadata: map[string]any{"source": "notes"},
		Associations: []Association{
			{NodeID: related.ID, Weight: 3},
		},
	})
	require.NoError(t, err)
	require.Len(t, out.Tags, 2)

	doc, ok := out.Document.Document()
	require.True(t, ok)
	assert.Equal(t, 1, doc.Version)
	assert.Equal(t, "notes", doc.Content["source"])

	want := vector.Mean([][]float32{
		embedWith(t, "Goroutines lightweight threads"),
		embedWith(t, "go"),
		embedWith(t, "runtime"),
		related.Embedding,
	}, []float64{1, 1, 1, 3})
	assert.InDeltaSlice(t, want, out.Concept.Embedding, 1e-6)

	edges, err := env.graph.ListEdges(ctx, domain.OutgoingFilter(out.Concept.ID, ""))
	require.NoError(t, err)
	rels := map[domain.Relation]int{}
	for _, e := range edges {
		rels[e.Rel]++
		if e.Rel == domain.RelAssociated {
			assert.Equal(t, 3.0, e.Weight)
		}
	}
	assert.Equal(t, map[domain.Relation]int{domain.RelHasDocument: 1, domain.RelTagged: 2, domain.RelAssociated: 1}, rels)

	protos, err := env.graph.ListNodes(ctx, domain.NodeFilter{Kind: domain.KindPrototype, Label: "Document"})
	require.NoError(t, err)
	assert.Len(t, protos, 1)

	t.Run("reuses tags and the default prototype", func(t *testing.T) {
		before := countCalls(env.embedder, "go")
		_, err := env.semantic.CreateNodeWithDocument(ctx, CreateNodeWithDocumentInput{Label: "Channels", Tags: []string{"go"}})
		require.NoError(t, err)
		assert.Equal(t, before, countCalls(env.embedder, "go"), "stored tag vectors are reused")

		tags, err := env.graph.ListNodes(ctx, domain.NodeFilter{Kind: domain.KindTag})
		require.NoError(t, err)
		assert.Len(t, tags, 2)

		protos, err := env.graph.ListNodes(ctx, domain.NodeFilter{Kind: domain.KindPrototype, Label: "Document"})
		require.NoError(t, err)
		assert.Len(t, protos, 1)
	})

	t.Run("recompute matches creation", func(t *testing.T) {
		n, err := env.semantic.RecomputeEmbedding(ctx, out.Concept.ID)
		require.NoError(t, err)
		assert.InDeltaSlice(t, out.Concept.Embedding, n.Embedding, 1e-6)
	})
}

func TestCreateNodeWithDocumentValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   CreateNodeWithDocumentInput
		kind domain.ErrorKind
	}{
		{"missing label", CreateNodeWithDocumentInput{Summary: "x"}, domain.KindMissingField},
		{"blank tag", CreateNodeWithDocumentInput{Label: "x", Tags: []string{" "}}, domain.KindMissingField},
		{"unknown association", CreateNodeWithDocumentInput{Label: "x", Associations: []Association{{NodeID: uuid.New()}}}, domain.KindNotFound},
		{"structural association", CreateNodeWithDocumentInput{Label: "x", Associations: []Association{{NodeID: uuid.New(), Rel: domain.RelIsA}}}, domain.KindOutOfRange},
		{"unknown prototype", CreateNodeWithDocumentInput{Label: "x", PrototypeID: ptr(uuid.New())}, domain.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.semantic.CreateNodeWithDocument(ctx, tt.in)
			assertKind(t, err, tt.kind)
		})
	}

	nodes, err := env.graph.ListNodes(ctx, domain.NodeFilter{})
	require.NoError(t, err)
	assert.Empty(t, nodes, "invalid input must not write")
}

func countCalls(c *embedding.MockClient, text string) int {
	n := 0
	for _, call := range c.Recorded() {
		if strings.EqualFold(call, text) {
			n++
		}
	}
	return n
}
