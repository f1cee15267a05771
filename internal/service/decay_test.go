package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestDecaySchedulerRunsAndStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	env := newTestEnv(t)
	ctx := context.Background()
	a, b := hebbianPair(t, env)

	cfg := DefaultHebbianConfig()
	cfg.DecayRate = 0.99
	h := NewHebbianGraph(env.graph, cfg, zap.NewNop())
	_, err := h.Link(ctx, a, b, ptr(0.5))
	require.NoError(t, err)

	s := NewDecayScheduler(h, zap.NewNop())
	s.SetInterval(5 * time.Millisecond)
	s.Start()

	assert.Eventually(t, func() bool {
		w, err := h.GetWeight(ctx, a, b)
		return err == nil && w == 0
	}, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	s.Stop()
}

func TestDecaySchedulerIgnoresNonPositiveInterval(t *testing.T) {
	s := NewDecayScheduler(nil, zap.NewNop())
	s.SetInterval(0)
	assert.Equal(t, defaultDecayInterval, s.interval)
}
