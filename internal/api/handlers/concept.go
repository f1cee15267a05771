package handlers

import (
	"net/http"
	"strconv"

	"github.com/Harshitk-cp/protomind/internal/domain"
	"github.com/Harshitk-cp/protomind/internal/service"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ConceptHandler struct {
	protos   *service.PrototypeService
	semantic *service.SemanticService
	logger   *zap.Logger
}

func NewConceptHandler(protos *service.PrototypeService, semantic *service.SemanticService, logger *zap.Logger) *ConceptHandler {
	return &ConceptHandler{protos: protos, semantic: semantic, logger: logger}
}

type createConceptRequest struct {
	PrototypeID         uuid.UUID      `json:"prototype_id" validate:"required"`
	Label               string         `json:"label,omitempty"`
	Data                map[string]any `json:"data,omitempty"`
	PreviousVersionUUID *uuid.UUID     `json:"previous_version_uuid,omitempty"`
	Source              string         `json:"source,omitempty"`
}

type conceptResponse struct {
	*domain.Node
	PrototypeID uuid.UUID      `json:"prototype_id"`
	Data        map[string]any `json:"data"`
	Superseded  bool           `json:"superseded"`
}

func newConceptResponse(n *domain.Node, superseded bool) conceptResponse {
	c, _ := n.Concept()
	return conceptResponse{Node: n, PrototypeID: c.PrototypeID, Data: c.Data, Superseded: superseded}
}

func (h *ConceptHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createConceptRequest
	if !decodeBody(w, r, &req) {
		return
	}

	node, err := h.protos.CreateConcept(r.Context(), service.CreateConceptInput{
		PrototypeID:       req.PrototypeID,
		Label:             req.Label,
		Data:              normalizeMap(req.Data),
		PreviousVersionID: req.PreviousVersionUUID,
		Source:            source(req.Source),
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, newConceptResponse(node, false))
}

func (h *ConceptHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	node, err := h.protos.GetConcept(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if node == nil {
		writeError(w, http.StatusNotFound, "concept not found")
		return
	}
	superseded, err := h.protos.IsSuperseded(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newConceptResponse(node, superseded))
}

func (h *ConceptHandler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	chain, err := h.protos.History(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if len(chain) == 0 {
		writeError(w, http.StatusNotFound, "concept not found")
		return
	}
	out := make([]conceptResponse, len(chain))
	for i := range chain {
		out[i] = newConceptResponse(&chain[i], i < len(chain)-1)
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": out, "count": len(out)})
}

type searchResponse struct {
	Results []domain.ScoredNode `json:"results"`
	Count   int                 `json:"count"`
}

// Search reads q, top_k, threshold, kind, label and current_only from the
// query string.
func (h *ConceptHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := domain.SearchFilters{
		Kind:  domain.NodeKind(q.Get("kind")),
		Label: q.Get("label"),
	}
	if filters.Kind != "" && !domain.ValidNodeKind(string(filters.Kind)) {
		writeError(w, http.StatusBadRequest, "invalid kind")
		return
	}
	if v := q.Get("current_only"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid current_only")
			return
		}
		filters.CurrentOnly = b
	}

	results, err := h.semantic.SearchConcepts(r.Context(), service.SearchRequest{
		Query:               q.Get("q"),
		TopK:                queryInt(r, "top_k", 0),
		Filters:             filters,
		SimilarityThreshold: queryFloat(r, "threshold", 0),
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Results: results, Count: len(results)})
}
