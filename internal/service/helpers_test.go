package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Harshitk-cp/protomind/internal/domain"
	"github.com/Harshitk-cp/protomind/internal/embedding"
	"github.com/Harshitk-cp/protomind/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEnv struct {
	graph      *store.InMemoryGraphStore
	assertions *store.InMemoryAssertionStore
	embedder   *embedding.MockClient
	logger     *zap.Logger

	protos   *PrototypeService
	links    *GraphService
	orm      *ORM
	semantic *SemanticService
	claims   *AssertionService
	hebbian  *HebbianGraph
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		graph:      store.NewInMemoryGraphStore(),
		assertions: store.NewInMemoryAssertionStore(),
		embedder:   embedding.NewMockClient(64),
		logger:     zap.NewNop(),
	}
	env.protos = NewPrototypeService(env.graph, env.embedder, env.logger)
	env.links = NewGraphService(env.graph, env.logger)
	env.orm = NewORM(env.graph, env.protos, NewSchemaRegistry(), env.logger)
	env.semantic = NewSemanticService(env.graph, env.embedder, env.logger)
	env.claims = NewAssertionService(env.assertions, DefaultScoringPolicy(), env.logger)
	env.hebbian = NewHebbianGraph(env.graph, DefaultHebbianConfig(), env.logger)
	return env
}

func (e *testEnv) prototype(t *testing.T, name string, parents ...*domain.Node) *domain.Node {
	t.Helper()
	in := CreatePrototypeInput{Name: name, Source: "test"}
	for _, p := range parents {
		in.Parents = append(in.Parents, p.ID)
	}
	p, err := e.protos.CreatePrototype(context.Background(), in)
	require.NoError(t, err)
	return p
}

func (e *testEnv) concept(t *testing.T, proto *domain.Node, data map[string]any) *domain.Node {
	t.Helper()
	c, err := e.protos.CreateConcept(context.Background(), CreateConceptInput{PrototypeID: proto.ID, Data: data})
	require.NoError(t, err)
	return c
}

func assertKind(t *testing.T, err error, kind domain.ErrorKind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, domain.KindOf(err), "unexpected error: %v", err)
}

func ptr[T any](v T) *T {
	return &v
}

// stepClock replaces timeNow with a clock that advances by step on every
// read.
func stepClock(t *testing.T, start time.Time, step time.Duration) {
	t.Helper()
	var mu sync.Mutex
	cur := start
	prev := timeNow
	timeNow = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := cur
		cur = cur.Add(step)
		return now
	}
	t.Cleanup(func() { timeNow = prev })
}

// MockEmbeddingClient mocks domain.EmbeddingClient.
type MockEmbeddingClient struct {
	mock.Mock
}

func (m *MockEmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}
