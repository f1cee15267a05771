package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/protomind/internal/domain"
	"github.com/Harshitk-cp/protomind/internal/service"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GraphHandler serves generic associations and document nodes.
type GraphHandler struct {
	links    *service.GraphService
	semantic *service.SemanticService
	logger   *zap.Logger
}

func NewGraphHandler(links *service.GraphService, semantic *service.SemanticService, logger *zap.Logger) *GraphHandler {
	return &GraphHandler{links: links, semantic: semantic, logger: logger}
}

type createAssociationRequest struct {
	From   uuid.UUID      `json:"from" validate:"required"`
	To     uuid.UUID      `json:"to" validate:"required"`
	Rel    string         `json:"rel,omitempty"`
	Weight *float64       `json:"weight,omitempty" validate:"omitempty,gte=0"`
	Props  map[string]any `json:"props,omitempty"`
	Source string         `json:"source,omitempty"`
}

func (h *GraphHandler) CreateAssociation(w http.ResponseWriter, r *http.Request) {
	var req createAssociationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	edge, err := h.links.CreateAssociation(r.Context(), service.CreateAssociationInput{
		From:   req.From,
		To:     req.To,
		Rel:    domain.Relation(req.Rel),
		Weight: req.Weight,
		Props:  normalizeMap(req.Props),
		Source: source(req.Source),
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, edge)
}

type associationsResponse struct {
	Associations []domain.Edge `json:"associations"`
	Count        int           `json:"count"`
}

// GetAssociations reads direction (incoming|outgoing|both) and rel from the
// query string.
func (h *GraphHandler) GetAssociations(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	q := r.URL.Query()
	edges, err := h.links.GetAssociations(r.Context(), id, domain.Direction(q.Get("direction")), domain.Relation(q.Get("rel")))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if edges == nil {
		edges = []domain.Edge{}
	}
	writeJSON(w, http.StatusOK, associationsResponse{Associations: edges, Count: len(edges)})
}

type associationRequest struct {
	NodeID uuid.UUID `json:"node_id" validate:"required"`
	Rel    string    `json:"rel,omitempty"`
	Weight float64   `json:"weight,omitempty" validate:"gte=0"`
}

type createDocumentRequest struct {
	Label        string               `json:"label" validate:"required"`
	Summary      string               `json:"summary,omitempty"`
	Tags         []string             `json:"tags,omitempty" validate:"dive,required"`
	Metadata     map[string]any       `json:"metadata,omitempty"`
	Associations []associationRequest `json:"associations,omitempty" validate:"dive"`
	PrototypeID  *uuid.UUID           `json:"prototype_id,omitempty"`
	Source       string               `json:"source,omitempty"`
}

func (h *GraphHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	assocs := make([]service.Association, len(req.Associations))
	for i, a := range req.Associations {
		assocs[i] = service.Association{NodeID: a.NodeID, Rel: domain.Relation(a.Rel), Weight: a.Weight}
	}
	out, err := h.semantic.CreateNodeWithDocument(r.Context(), service.CreateNodeWithDocumentInput{
		Label:        req.Label,
		Summary:      req.Summary,
		Tags:         req.Tags,
		Metadata:     normalizeMap(req.Metadata),
		Associations: assocs,
		PrototypeID:  req.PrototypeID,
		Source:       source(req.Source),
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *GraphHandler) RecomputeEmbedding(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	n, err := h.semantic.RecomputeEmbedding(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}
