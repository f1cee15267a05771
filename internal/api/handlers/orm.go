package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/protomind/internal/domain"
	"github.com/Harshitk-cp/protomind/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type ORMHandler struct {
	orm    *service.ORM
	logger *zap.Logger
}

func NewORMHandler(orm *service.ORM, logger *zap.Logger) *ORMHandler {
	return &ORMHandler{orm: orm, logger: logger}
}

type fieldRequest struct {
	Name     string `json:"name" validate:"required"`
	Type     string `json:"type" validate:"required,oneof=string number boolean datetime url node_ref"`
	Required bool   `json:"required,omitempty"`
}

type registerPrototypeRequest struct {
	Name        string         `json:"name" validate:"required"`
	Description string         `json:"description,omitempty"`
	Fields      []fieldRequest `json:"fields" validate:"dive"`
}

func (h *ORMHandler) RegisterPrototype(w http.ResponseWriter, r *http.Request) {
	var req registerPrototypeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	schema := service.PrototypeSchema{Name: req.Name, Description: req.Description}
	for _, f := range req.Fields {
		schema.Fields = append(schema.Fields, service.FieldSchema{
			Name:     f.Name,
			Type:     domain.ValueType(f.Type),
			Required: f.Required,
		})
	}
	registered, err := h.orm.RegisterPrototype(r.Context(), schema)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, registered)
}

func (h *ORMHandler) Create(w http.ResponseWriter, r *http.Request) {
	var data map[string]any
	if !decodeBody(w, r, &data) {
		return
	}
	handle, err := h.orm.Create(r.Context(), chi.URLParam(r, "prototype"), normalizeMap(data))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	h.writeRecord(w, r, http.StatusCreated, handle)
}

func (h *ORMHandler) Get(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.lookup(w, r)
	if !ok {
		return
	}
	h.writeRecord(w, r, http.StatusOK, handle)
}

// Update sets every field in the body and saves once.
func (h *ORMHandler) Update(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var data map[string]any
	if !decodeBody(w, r, &data) {
		return
	}
	for k, v := range normalizeMap(data) {
		if err := handle.Set(k, v); err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
	}
	if err := handle.Save(r.Context()); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	h.writeRecord(w, r, http.StatusOK, handle)
}

// Find lists every current record of the prototype.
func (h *ORMHandler) Find(w http.ResponseWriter, r *http.Request) {
	handles, err := h.orm.Find(r.Context(), chi.URLParam(r, "prototype"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	records := make([]map[string]any, 0, len(handles))
	for _, hd := range handles {
		rec, err := hd.ToJSON(r.Context())
		if err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
		records = append(records, rec)
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records, "count": len(records)})
}

// FindOne returns the first record matching every field of the body, or
// {"record": null}.
func (h *ORMHandler) FindOne(w http.ResponseWriter, r *http.Request) {
	var query map[string]any
	if !decodeBody(w, r, &query) {
		return
	}
	handle, err := h.orm.FindOne(r.Context(), chi.URLParam(r, "prototype"), normalizeMap(query))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if handle == nil {
		writeJSON(w, http.StatusOK, map[string]any{"record": nil})
		return
	}
	rec, err := handle.ToJSON(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"record": rec})
}

func (h *ORMHandler) lookup(w http.ResponseWriter, r *http.Request) (*service.Handle, bool) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return nil, false
	}
	handle, err := h.orm.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return nil, false
	}
	if handle == nil || handle.Prototype() != chi.URLParam(r, "prototype") {
		writeError(w, http.StatusNotFound, "record not found")
		return nil, false
	}
	return handle, true
}

func (h *ORMHandler) writeRecord(w http.ResponseWriter, r *http.Request, status int, handle *service.Handle) {
	rec, err := handle.ToJSON(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	version, err := handle.Version(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, status, map[string]any{"record": rec, "version": version})
}
