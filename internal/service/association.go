package service

import (
	"context"
	"math"

	"github.com/Harshitk-cp/protomind/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GraphService creates and reads generic association edges between nodes.
type GraphService struct {
	graph  domain.GraphStore
	logger *zap.Logger
}

func NewGraphService(graph domain.GraphStore, logger *zap.Logger) *GraphService {
	return &GraphService{graph: graph, logger: logger}
}

type CreateAssociationInput struct {
	From   uuid.UUID
	To     uuid.UUID
	Rel    domain.Relation
	Weight *float64
	Props  map[string]any
	Source string
}

// CreateAssociation upserts a weighted edge. Re-creating the same
// (from, to, rel) triple overwrites its weight and props.
func (s *GraphService) CreateAssociation(ctx context.Context, in CreateAssociationInput) (*domain.Edge, error) {
	if in.From == uuid.Nil {
		return nil, domain.MissingField("from")
	}
	if in.To == uuid.Nil {
		return nil, domain.MissingField("to")
	}
	if in.Rel == "" {
		in.Rel = domain.RelAssociated
	}
	if domain.ReservedRelation(in.Rel) {
		return nil, domain.InvalidValue("rel", "relation "+string(in.Rel)+" is maintained by the core")
	}
	weight := 1.0
	if in.Weight != nil {
		weight = *in.Weight
	}
	if weight < 0 || math.IsNaN(weight) || math.IsInf(weight, 0) {
		return nil, domain.OutOfRange("weight", weight, 0, math.MaxFloat64)
	}

	for _, id := range []uuid.UUID{in.From, in.To} {
		n, err := s.graph.GetNode(ctx, id)
		if err != nil {
			return nil, err
		}
		if n == nil {
			return nil, domain.NotFound("node", id.String())
		}
	}

	edge := domain.NewEdge(in.From, in.To, in.Rel, weight)
	edge.Props = domain.CloneProps(in.Props)
	if err := s.graph.UpsertEdge(ctx, edge, domain.NewProvenance(in.Source)); err != nil {
		return nil, err
	}

	s.logger.Debug("association created",
		zap.String("from", in.From.String()),
		zap.String("to", in.To.String()),
		zap.String("rel", string(in.Rel)))
	return edge, nil
}

// GetAssociations lists edges touching id. rel may be empty to match any
// relation. An unknown node yields an empty list.
func (s *GraphService) GetAssociations(ctx context.Context, id uuid.UUID, dir domain.Direction, rel domain.Relation) ([]domain.Edge, error) {
	if dir == "" {
		dir = domain.DirectionBoth
	}
	if !domain.ValidDirection(string(dir)) {
		return nil, domain.InvalidValue("direction", "direction must be incoming, outgoing or both")
	}

	var out []domain.Edge
	if dir == domain.DirectionOutgoing || dir == domain.DirectionBoth {
		edges, err := s.graph.ListEdges(ctx, domain.OutgoingFilter(id, rel))
		if err != nil {
			return nil, err
		}
		out = append(out, edges...)
	}
	if dir == domain.DirectionIncoming || dir == domain.DirectionBoth {
		edges, err := s.graph.ListEdges(ctx, domain.IncomingFilter(id, rel))
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			// self-loops were already collected as outgoing
			if dir == domain.DirectionBoth && e.From == id {
				continue
			}
			out = append(out, e)
		}
	}
	return out, nil
}
