package store

import (
	"context"
	"testing"
	"time"

	"github.com/Harshitk-cp/protomind/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type backendCase struct {
	name string
	open func(t *testing.T) (domain.GraphStore, domain.AssertionStore)
}

func backends() []backendCase {
	return []backendCase{
		{"memory", func(t *testing.T) (domain.GraphStore, domain.AssertionStore) {
			return NewInMemoryGraphStore(), NewInMemoryAssertionStore()
		}},
		{"badger", func(t *testing.T) (domain.GraphStore, domain.AssertionStore) {
			db, err := OpenBadger(BadgerOptions{InMemory: true})
			require.NoError(t, err)
			t.Cleanup(func() { _ = db.Close() })
			return db.Graph(), db.Assertions()
		}},
	}
}

func tagNode(t *testing.T, text string, emb []float32) *domain.Node {
	t.Helper()
	n, err := domain.NewTagNode(text)
	require.NoError(t, err)
	n.Embedding = emb
	return n
}

func TestGraphStore_UpsertIsIdempotent(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			ctx := context.Background()
			g, _ := bc.open(t)

			n, err := domain.NewPrototypeNode("Person", "first")
			require.NoError(t, err)
			require.NoError(t, g.UpsertNode(ctx, n, domain.NewProvenance("test")))
			created := n.CreatedAt

			n.Props[domain.PropDescription] = "second"
			require.NoError(t, g.UpsertNode(ctx, n, domain.NewProvenance("test")))

			nodes, err := g.ListNodes(ctx, domain.NodeFilter{})
			require.NoError(t, err)
			require.Len(t, nodes, 1)
			assert.Equal(t, "second", nodes[0].Props[domain.PropDescription])

			got, err := g.GetNode(ctx, n.ID)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.True(t, got.CreatedAt.Equal(created))
			require.NotNil(t, got.Provenance)
			assert.Equal(t, "test", got.Provenance.Source)
		})
	}
}

func TestGraphStore_MissingReturnsNil(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			ctx := context.Background()
			g, a := bc.open(t)

			n, err := g.GetNode(ctx, uuid.New())
			assert.NoError(t, err)
			assert.Nil(t, n)

			e, err := g.GetEdge(ctx, uuid.New(), uuid.New(), domain.RelIsA)
			assert.NoError(t, err)
			assert.Nil(t, e)

			as, err := a.GetByID(ctx, uuid.New())
			assert.NoError(t, err)
			assert.Nil(t, as)

			assert.ErrorIs(t, g.DeleteEdge(ctx, uuid.New()), ErrNotFound)
		})
	}
}

func TestGraphStore_Edges(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			ctx := context.Background()
			g, _ := bc.open(t)

			a, b, c := tagNode(t, "a", nil), tagNode(t, "b", nil), tagNode(t, "c", nil)
			for _, n := range []*domain.Node{a, b, c} {
				require.NoError(t, g.UpsertNode(ctx, n, domain.NewProvenance("")))
			}

			ab := domain.NewEdge(a.ID, b.ID, domain.RelAssociated, 1)
			require.NoError(t, g.UpsertEdge(ctx, ab, domain.NewProvenance("")))
			require.NoError(t, g.UpsertEdge(ctx, domain.NewEdge(a.ID, c.ID, domain.RelTagged, 1), domain.NewProvenance("")))
			require.NoError(t, g.UpsertEdge(ctx, domain.NewEdge(c.ID, b.ID, domain.RelAssociated, 1), domain.NewProvenance("")))

			// Re-linking the same triple updates in place.
			again := domain.NewEdge(a.ID, b.ID, domain.RelAssociated, 2.5)
			require.NoError(t, g.UpsertEdge(ctx, again, domain.NewProvenance("")))
			assert.Equal(t, ab.ID, again.ID)

			out, err := g.ListEdges(ctx, domain.OutgoingFilter(a.ID, ""))
			require.NoError(t, err)
			require.Len(t, out, 2)
			assert.Equal(t, b.ID, out[0].To)
			assert.Equal(t, 2.5, out[0].Weight)
			assert.Equal(t, c.ID, out[1].To)

			in, err := g.ListEdges(ctx, domain.IncomingFilter(b.ID, domain.RelAssociated))
			require.NoError(t, err)
			assert.Len(t, in, 2)

			got, err := g.GetEdge(ctx, a.ID, b.ID, domain.RelAssociated)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, ab.ID, got.ID)

			require.NoError(t, g.DeleteEdge(ctx, ab.ID))
			got, err = g.GetEdge(ctx, a.ID, b.ID, domain.RelAssociated)
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestGraphStore_Search(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			ctx := context.Background()
			g, _ := bc.open(t)

			first := tagNode(t, "first", []float32{1, 0})
			second := tagNode(t, "second", []float32{1, 0})
			far := tagNode(t, "far", []float32{0, 1})
			bare := tagNode(t, "bare", nil)
			for _, n := range []*domain.Node{first, second, far, bare} {
				require.NoError(t, g.UpsertNode(ctx, n, domain.NewProvenance("")))
			}

			results, err := g.Search(ctx, []float32{1, 0}, 10, domain.SearchFilters{})
			require.NoError(t, err)
			require.Len(t, results, 3)
			assert.Equal(t, first.ID, results[0].ID, "ties keep insertion order")
			assert.Equal(t, second.ID, results[1].ID)
			assert.Equal(t, far.ID, results[2].ID)
			assert.InDelta(t, 1.0, results[0].Score, 1e-6)
			assert.InDelta(t, 0.0, results[2].Score, 1e-6)

			top, err := g.Search(ctx, []float32{1, 0}, 1, domain.SearchFilters{})
			require.NoError(t, err)
			assert.Len(t, top, 1)

			labeled, err := g.Search(ctx, []float32{1, 0}, 10, domain.SearchFilters{Label: "far"})
			require.NoError(t, err)
			require.Len(t, labeled, 1)
			assert.Equal(t, far.ID, labeled[0].ID)
		})
	}
}

func TestGraphStore_SearchCurrentOnly(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			ctx := context.Background()
			g, _ := bc.open(t)

			v1 := tagNode(t, "v1", []float32{1, 0})
			v2 := tagNode(t, "v2", []float32{1, 0})
			require.NoError(t, g.UpsertNode(ctx, v1, domain.NewProvenance("")))
			require.NoError(t, g.UpsertNode(ctx, v2, domain.NewProvenance("")))
			require.NoError(t, g.UpsertEdge(ctx, domain.NewEdge(v1.ID, v2.ID, domain.RelNextVersion, 1), domain.NewProvenance("")))

			results, err := g.Search(ctx, []float32{1, 0}, 10, domain.SearchFilters{CurrentOnly: true})
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, v2.ID, results[0].ID)
		})
	}
}

func TestAssertionStore_ListFilters(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			ctx := context.Background()
			_, s := bc.open(t)

			now := time.Now().UTC()
			for _, a := range []domain.Assertion{
				{Subject: "Alice", Predicate: "status", Object: "active", Truth: 0.8, Status: domain.AssertionActive, CreatedAt: now},
				{Subject: "Alice", Predicate: "city", Object: "Paris", Truth: 0.8, Status: domain.AssertionActive, CreatedAt: now},
				{Subject: "Bob", Predicate: "status", Object: "pending", Truth: 0.8, Status: domain.AssertionActive, CreatedAt: now},
			} {
				a := a
				require.NoError(t, s.Create(ctx, &a))
				assert.NotEqual(t, uuid.Nil, a.ID)
			}

			all, err := s.List(ctx, domain.AssertionFilter{})
			require.NoError(t, err)
			assert.Len(t, all, 3)

			alice, err := s.List(ctx, domain.AssertionFilter{Subject: "Alice"})
			require.NoError(t, err)
			require.Len(t, alice, 2)
			assert.Equal(t, "status", alice[0].Predicate)

			status, err := s.List(ctx, domain.AssertionFilter{Subject: "Alice", Predicate: "status"})
			require.NoError(t, err)
			require.Len(t, status, 1)
			assert.Equal(t, "active", status[0].Object)

			got, err := s.GetByID(ctx, status[0].ID)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "Alice", got.Subject)
		})
	}
}

func TestInMemoryGraphStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	g := NewInMemoryGraphStore()

	n := tagNode(t, "x", []float32{1})
	require.NoError(t, g.UpsertNode(ctx, n, domain.NewProvenance("")))

	got, err := g.GetNode(ctx, n.ID)
	require.NoError(t, err)
	got.Props[domain.PropTag] = "mutated"

	again, err := g.GetNode(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "x", again.Props[domain.PropTag])
}

func TestOpen(t *testing.T) {
	b, err := Open(context.Background(), Options{Backend: BackendMemory})
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, b.Name)
	assert.NoError(t, b.Ping(context.Background()))
	b.Close()

	_, err = Open(context.Background(), Options{Backend: "cassandra"})
	assert.Error(t, err)

	_, err = Open(context.Background(), Options{Backend: BackendPostgres})
	assert.Error(t, err)
}
