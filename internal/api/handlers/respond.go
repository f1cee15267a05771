package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/Harshitk-cp/protomind/internal/api/middleware"
	"github.com/Harshitk-cp/protomind/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report json field names in validation errors.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type errorResponse struct {
	Error string           `json:"error"`
	Kind  domain.ErrorKind `json:"kind,omitempty"`
	Field string           `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeServiceError maps structured errors to 4xx responses. Anything else is
// logged and reported as a bare 500 so backend details never reach clients.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	var de *domain.Error
	if errors.As(err, &de) {
		status := http.StatusBadRequest
		switch de.Kind {
		case domain.KindNotFound:
			status = http.StatusNotFound
		case domain.KindInvariantViolation:
			status = http.StatusConflict
		}
		writeJSON(w, status, errorResponse{Error: de.Message, Kind: de.Kind, Field: de.Field})
		return
	}
	logger.Error("request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
		zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

// decodeBody decodes and validates a JSON request body. It writes the 400
// response itself and reports whether the handler should continue.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if reflect.Indirect(reflect.ValueOf(dst)).Kind() != reflect.Struct {
		return true
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			kind := domain.KindOutOfRange
			if fe.Tag() == "required" {
				kind = domain.KindMissingField
			}
			writeJSON(w, http.StatusBadRequest, errorResponse{
				Error: fe.Field() + " failed " + fe.Tag() + " validation",
				Kind:  kind,
				Field: fe.Field(),
			})
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func urlID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+param)
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, def int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil {
		return v
	}
	return def
}

func queryFloat(r *http.Request, key string, def float64) float64 {
	if v, err := strconv.ParseFloat(r.URL.Query().Get(key), 64); err == nil {
		return v
	}
	return def
}

// normalizeJSON turns json.Number values decoded with UseNumber into int64
// when integral and float64 otherwise.
func normalizeJSON(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case map[string]any:
		for k, e := range x {
			x[k] = normalizeJSON(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = normalizeJSON(e)
		}
		return x
	}
	return v
}

func normalizeMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return normalizeJSON(m).(map[string]any)
}

func source(s string) string {
	if s == "" {
		return "api"
	}
	return s
}
