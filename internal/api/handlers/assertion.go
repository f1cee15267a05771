package handlers

import (
	"errors"
	"net/http"

	"github.com/Harshitk-cp/protomind/internal/api/middleware"
	"github.com/Harshitk-cp/protomind/internal/domain"
	"github.com/Harshitk-cp/protomind/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AssertionHandler struct {
	svc    *service.AssertionService
	logger *zap.Logger
}

func NewAssertionHandler(svc *service.AssertionService, logger *zap.Logger) *AssertionHandler {
	return &AssertionHandler{svc: svc, logger: logger}
}

// Range checks on the confidence signals are left to the service so the
// client sees the same OutOfRange error from every entry point.
type createAssertionRequest struct {
	Subject         string     `json:"subject" validate:"required"`
	Predicate       string     `json:"predicate" validate:"required"`
	Object          any        `json:"object"`
	Truth           *float64   `json:"truth,omitempty"`
	Strength        *float64   `json:"strength,omitempty"`
	VoteScore       int        `json:"vote_score,omitempty"`
	SourceRel       *float64   `json:"source_rel,omitempty"`
	Source          string     `json:"source,omitempty" validate:"omitempty,oneof=user agent tool derived inferred"`
	Status          string     `json:"status,omitempty"`
	PrevAssertionID *uuid.UUID `json:"prev_assertion_id,omitempty"`
}

func (h *AssertionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAssertionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	a, err := h.svc.Create(r.Context(), service.CreateAssertionInput{
		Subject:         req.Subject,
		Predicate:       req.Predicate,
		Object:          normalizeJSON(req.Object),
		Truth:           req.Truth,
		Strength:        req.Strength,
		SourceRel:       req.SourceRel,
		VoteScore:       req.VoteScore,
		Source:          req.Source,
		TraceID:         middleware.RequestIDFromContext(r.Context()),
		Status:          domain.AssertionStatus(req.Status),
		PrevAssertionID: req.PrevAssertionID,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

type listAssertionsResponse struct {
	Assertions []domain.Assertion `json:"assertions"`
	Count      int                `json:"count"`
}

func (h *AssertionHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.svc.List(r.Context(), domain.AssertionFilter{
		Subject:   q.Get("subject"),
		Predicate: q.Get("predicate"),
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if list == nil {
		list = []domain.Assertion{}
	}
	writeJSON(w, http.StatusOK, listAssertionsResponse{Assertions: list, Count: len(list)})
}

func (h *AssertionHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	a, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrAssertionNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// Snapshot returns the resolved value per predicate together with the
// winning assertion's truth and score.
func (h *AssertionHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Resolve(r.Context(), chi.URLParam(r, "subject"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"subject":  res.Subject,
		"values":   res.Values(),
		"snapshot": res.Snapshot,
	})
}

func (h *AssertionHandler) Evidence(w http.ResponseWriter, r *http.Request) {
	subject := chi.URLParam(r, "subject")
	ev, err := h.svc.Evidence(r.Context(), subject, r.URL.Query().Get("predicate"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subject": subject, "evidence": ev})
}
