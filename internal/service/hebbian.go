package service

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/Harshitk-cp/protomind/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type HebbianConfig struct {
	InitialWeight  float64
	ReinforceDelta float64
	MaxWeight      float64
	// DecayRate is the fraction of weight removed per pass, in [0,1].
	DecayRate float64
	// Epsilon is the weight below which a link is pruned.
	Epsilon float64
}

func DefaultHebbianConfig() HebbianConfig {
	return HebbianConfig{
		InitialWeight:  1.0,
		ReinforceDelta: 1.0,
		MaxWeight:      100.0,
		DecayRate:      0.05,
		Epsilon:        0.01,
	}
}

// sanitized replaces out-of-domain values with the defaults.
func (c HebbianConfig) sanitized() HebbianConfig {
	d := DefaultHebbianConfig()
	if c.MaxWeight <= 0 || math.IsNaN(c.MaxWeight) {
		c.MaxWeight = d.MaxWeight
	}
	if c.InitialWeight <= 0 || c.InitialWeight > c.MaxWeight {
		c.InitialWeight = math.Min(d.InitialWeight, c.MaxWeight)
	}
	if c.ReinforceDelta < 0 || math.IsNaN(c.ReinforceDelta) {
		c.ReinforceDelta = d.ReinforceDelta
	}
	if c.DecayRate < 0 || c.DecayRate > 1 || math.IsNaN(c.DecayRate) {
		c.DecayRate = d.DecayRate
	}
	if c.Epsilon < 0 || math.IsNaN(c.Epsilon) {
		c.Epsilon = d.Epsilon
	}
	return c
}

// HebbianGraph keeps "reinforces" edges whose weight grows on access and
// shrinks on every decay pass. It starts no goroutines; DecayAll is driven by
// the caller.
type HebbianGraph struct {
	graph  domain.GraphStore
	cfg    HebbianConfig
	logger *zap.Logger

	// serializes read-modify-write of link weights
	mu sync.Mutex
}

func NewHebbianGraph(graph domain.GraphStore, cfg HebbianConfig, logger *zap.Logger) *HebbianGraph {
	return &HebbianGraph{graph: graph, cfg: cfg.sanitized(), logger: logger}
}

func (h *HebbianGraph) Config() HebbianConfig {
	return h.cfg
}

// Link creates the link at weight (or the configured initial weight when
// weight is nil). An existing link is returned unchanged.
func (h *HebbianGraph) Link(ctx context.Context, from, to uuid.UUID, weight *float64) (*domain.Edge, error) {
	w := h.cfg.InitialWeight
	if weight != nil {
		w = *weight
	}
	if math.IsNaN(w) || w <= 0 || w > h.cfg.MaxWeight {
		return nil, domain.OutOfRange("weight", w, 0, h.cfg.MaxWeight)
	}
	if err := h.requireNodes(ctx, from, to); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.linkLocked(ctx, from, to, w)
}

func (h *HebbianGraph) linkLocked(ctx context.Context, from, to uuid.UUID, w float64) (*domain.Edge, error) {
	existing, err := h.graph.GetEdge(ctx, from, to, domain.RelReinforces)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	e := domain.NewEdge(from, to, domain.RelReinforces, w)
	if err := h.graph.UpsertEdge(ctx, e, domain.NewProvenance("hebbian")); err != nil {
		return nil, err
	}
	return e, nil
}

// Access reinforces the link by ReinforceDelta, never past MaxWeight. A
// missing link is created at the initial weight first.
func (h *HebbianGraph) Access(ctx context.Context, from, to uuid.UUID) (*domain.Edge, error) {
	if err := h.requireNodes(ctx, from, to); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	e, err := h.graph.GetEdge(ctx, from, to, domain.RelReinforces)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return h.linkLocked(ctx, from, to, h.cfg.InitialWeight)
	}

	e.Weight = math.Min(e.Weight+h.cfg.ReinforceDelta, h.cfg.MaxWeight)
	if err := h.graph.UpsertEdge(ctx, e, domain.NewProvenance("hebbian")); err != nil {
		return nil, err
	}
	return e, nil
}

// GetWeight returns 0 for a missing link.
func (h *HebbianGraph) GetWeight(ctx context.Context, from, to uuid.UUID) (float64, error) {
	e, err := h.graph.GetEdge(ctx, from, to, domain.RelReinforces)
	if err != nil || e == nil {
		return 0, err
	}
	return e.Weight, nil
}

// Strongest returns up to n outgoing links of from, heaviest first.
func (h *HebbianGraph) Strongest(ctx context.Context, from uuid.UUID, n int) ([]domain.Edge, error) {
	edges, err := h.graph.ListEdges(ctx, domain.OutgoingFilter(from, domain.RelReinforces))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(edges, func(i, j int) bool { return edges[i].Weight > edges[j].Weight })
	if n > 0 && len(edges) > n {
		edges = edges[:n]
	}
	return edges, nil
}

// DecayAll multiplies every link weight by (1 - DecayRate) and deletes the
// links that fall below Epsilon.
func (h *HebbianGraph) DecayAll(ctx context.Context) (*domain.DecayResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	edges, err := h.graph.ListEdges(ctx, domain.EdgeFilter{Rel: domain.RelReinforces})
	if err != nil {
		return nil, err
	}

	result := &domain.DecayResult{}
	factor := 1 - h.cfg.DecayRate
	for i := range edges {
		e := &edges[i]
		result.Processed++

		w := e.Weight * factor
		if w < h.cfg.Epsilon {
			if err := h.graph.DeleteEdge(ctx, e.ID); err != nil {
				return result, err
			}
			result.Pruned++
			continue
		}
		if w == e.Weight {
			continue
		}
		e.Weight = w
		if err := h.graph.UpsertEdge(ctx, e, domain.NewProvenance("decay")); err != nil {
			return result, err
		}
		result.Decayed++
	}

	if result.Pruned > 0 || result.Decayed > 0 {
		h.logger.Info("decay pass complete",
			zap.Int("processed", result.Processed),
			zap.Int("decayed", result.Decayed),
			zap.Int("pruned", result.Pruned))
	}
	return result, nil
}

func (h *HebbianGraph) requireNodes(ctx context.Context, ids ...uuid.UUID) error {
	for _, id := range ids {
		n, err := h.graph.GetNode(ctx, id)
		if err != nil {
			return err
		}
		if n == nil {
			return domain.NotFound("node", id.String())
		}
	}
	return nil
}
