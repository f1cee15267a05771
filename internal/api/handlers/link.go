package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/protomind/internal/domain"
	"github.com/Harshitk-cp/protomind/internal/service"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LinkHandler exposes the reinforcement graph.
type LinkHandler struct {
	hebbian *service.HebbianGraph
	logger  *zap.Logger
}

func NewLinkHandler(hebbian *service.HebbianGraph, logger *zap.Logger) *LinkHandler {
	return &LinkHandler{hebbian: hebbian, logger: logger}
}

type linkRequest struct {
	From   uuid.UUID `json:"from" validate:"required"`
	To     uuid.UUID `json:"to" validate:"required"`
	Weight *float64  `json:"weight,omitempty" validate:"omitempty,gt=0"`
}

func (h *LinkHandler) Link(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if !decodeBody(w, r, &req) {
		return
	}
	e, err := h.hebbian.Link(r.Context(), req.From, req.To, req.Weight)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (h *LinkHandler) Access(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if !decodeBody(w, r, &req) {
		return
	}
	e, err := h.hebbian.Access(r.Context(), req.From, req.To)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *LinkHandler) Decay(w http.ResponseWriter, r *http.Request) {
	res, err := h.hebbian.DecayAll(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Strongest lists the heaviest outgoing links of a node; limit defaults to 10.
func (h *LinkHandler) Strongest(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	edges, err := h.hebbian.Strongest(r.Context(), id, queryInt(r, "limit", 10))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if edges == nil {
		edges = []domain.Edge{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"links": edges, "count": len(edges)})
}
