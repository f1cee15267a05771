package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/protomind/internal/domain"
	"github.com/Harshitk-cp/protomind/internal/service"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type PrototypeHandler struct {
	svc    *service.PrototypeService
	logger *zap.Logger
}

func NewPrototypeHandler(svc *service.PrototypeService, logger *zap.Logger) *PrototypeHandler {
	return &PrototypeHandler{svc: svc, logger: logger}
}

type createPrototypeRequest struct {
	Name        string      `json:"name" validate:"required"`
	Description string      `json:"description,omitempty"`
	Base        *uuid.UUID  `json:"base,omitempty"`
	Parents     []uuid.UUID `json:"parents,omitempty"`
	Source      string      `json:"source,omitempty"`
}

type prototypeResponse struct {
	*domain.Node
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func newPrototypeResponse(n *domain.Node) prototypeResponse {
	p, _ := n.Prototype()
	return prototypeResponse{Node: n, Name: p.Name, Description: p.Description}
}

func (h *PrototypeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createPrototypeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	node, err := h.svc.CreatePrototype(r.Context(), service.CreatePrototypeInput{
		Name:        req.Name,
		Description: req.Description,
		Base:        req.Base,
		Parents:     req.Parents,
		Source:      source(req.Source),
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, newPrototypeResponse(node))
}

func (h *PrototypeHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	node, err := h.svc.GetPrototype(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if node == nil {
		writeError(w, http.StatusNotFound, "prototype not found")
		return
	}

	ancestors, err := h.svc.Ancestors(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	ids := make([]uuid.UUID, len(ancestors))
	for i, a := range ancestors {
		ids[i] = a.ID
	}
	writeJSON(w, http.StatusOK, struct {
		prototypeResponse
		Ancestors []uuid.UUID `json:"ancestors"`
	}{newPrototypeResponse(node), ids})
}

type addParentRequest struct {
	ParentID uuid.UUID `json:"parent_id" validate:"required"`
	Source   string    `json:"source,omitempty"`
}

func (h *PrototypeHandler) AddParent(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	var req addParentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.svc.AddParent(r.Context(), id, req.ParentID, source(req.Source)); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
