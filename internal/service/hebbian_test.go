package service

import (
	"context"
	"testing"

	"github.com/Harshitk-cp/protomind/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func hebbianPair(t *testing.T, env *testEnv) (uuid.UUID, uuid.UUID) {
	t.Helper()
	topic := env.prototype(t, "Topic")
	a := env.concept(t, topic, map[string]any{"name": "a"})
	b := env.concept(t, topic, map[string]any{"name": "b"})
	return a.ID, b.ID
}

func TestHebbianLinkIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a, b := hebbianPair(t, env)

	_, err := env.hebbian.Link(ctx, a, b, nil)
	require.NoError(t, err)
	e, err := env.hebbian.Link(ctx, a, b, ptr(5.0))
	require.NoError(t, err)
	assert.Equal(t, 1.0, e.Weight, "an existing link keeps its weight")

	edges, err := env.graph.ListEdges(ctx, domain.EdgeFilter{Rel: domain.RelReinforces})
	require.NoError(t, err)
	assert.Len(t, edges, 1)

	_, err = env.hebbian.Link(ctx, a, uuid.New(), nil)
	assertKind(t, err, domain.KindNotFound)
	_, err = env.hebbian.Link(ctx, b, a, ptr(-1.0))
	assertKind(t, err, domain.KindOutOfRange)
	_, err = env.hebbian.Link(ctx, b, a, ptr(1000.0))
	assertKind(t, err, domain.KindOutOfRange)
}

func TestHebbianAccessIsCapped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a, b := hebbianPair(t, env)

	cfg := DefaultHebbianConfig()
	cfg.ReinforceDelta = 3
	cfg.MaxWeight = 10
	h := NewHebbianGraph(env.graph, cfg, zap.NewNop())

	e, err := h.Access(ctx, a, b)
	require.NoError(t, err)
	assert.Equal(t, 1.0, e.Weight, "first access creates the link")

	for i := 0; i < 10; i++ {
		e, err = h.Access(ctx, a, b)
		require.NoError(t, err)
		assert.LessOrEqual(t, e.Weight, cfg.MaxWeight)
	}
	w, err := h.GetWeight(ctx, a, b)
	require.NoError(t, err)
	assert.Equal(t, 10.0, w)
}

func TestHebbianDecayPrunes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a, b := hebbianPair(t, env)

	cfg := DefaultHebbianConfig()
	cfg.DecayRate = 0.99
	h := NewHebbianGraph(env.graph, cfg, zap.NewNop())

	_, err := h.Link(ctx, a, b, ptr(0.5))
	require.NoError(t, err)

	var pruned int
	for i := 0; i < 10; i++ {
		res, err := h.DecayAll(ctx)
		require.NoError(t, err)
		pruned += res.Pruned
		if pruned > 0 {
			break
		}
	}
	assert.Equal(t, 1, pruned)

	w, err := h.GetWeight(ctx, a, b)
	require.NoError(t, err)
	assert.Zero(t, w)

	res, err := h.DecayAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DecayResult{}, *res)
}

func TestHebbianDecayKeepsStrongLinks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a, b := hebbianPair(t, env)

	_, err := env.hebbian.Link(ctx, a, b, ptr(10.0))
	require.NoError(t, err)
	_, err = env.hebbian.Link(ctx, b, a, ptr(0.01))
	require.NoError(t, err)

	res, err := env.hebbian.DecayAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DecayResult{Processed: 2, Decayed: 1, Pruned: 1}, *res)

	w, err := env.hebbian.GetWeight(ctx, a, b)
	require.NoError(t, err)
	assert.InDelta(t, 9.5, w, 1e-9)
}

func TestHebbianStrongest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	topic := env.prototype(t, "Topic")
	hub := env.concept(t, topic, map[string]any{"name": "hub"})

	weights := []float64{2, 7, 4}
	var ids []uuid.UUID
	for i, w := range weights {
		n := env.concept(t, topic, map[string]any{"name": string(rune('x' + i))})
		ids = append(ids, n.ID)
		_, err := env.hebbian.Link(ctx, hub.ID, n.ID, ptr(w))
		require.NoError(t, err)
	}

	top, err := env.hebbian.Strongest(ctx, hub.ID, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, ids[1], top[0].To)
	assert.Equal(t, ids[2], top[1].To)
}

func TestHebbianConfigSanitized(t *testing.T) {
	h := NewHebbianGraph(nil, HebbianConfig{ReinforceDelta: -1, DecayRate: 2, MaxWeight: -1, Epsilon: -1}, zap.NewNop())
	assert.Equal(t, DefaultHebbianConfig(), h.Config())
}
