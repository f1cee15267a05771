package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Harshitk-cp/protomind/internal/embedding"
	"github.com/Harshitk-cp/protomind/internal/service"
	"github.com/Harshitk-cp/protomind/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestServer(t *testing.T, apiKey string) *httptest.Server {
	t.Helper()
	app := NewApp(store.NewMemoryBackend(), embedding.NewMockClient(64), Options{
		APIKey:            apiKey,
		SearchDefaultTopK: 10,
		Scoring:           service.DefaultScoringPolicy(),
		Hebbian:           service.DefaultHebbianConfig(),
	}, zap.NewNop())
	srv := httptest.NewServer(app.Router)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, srv.URL+path, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, "")
	status, body := do(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, store.BackendMemory, body["backend"])
}

func TestConceptLifecycle(t *testing.T) {
	srv := newTestServer(t, "")

	status, proto := do(t, srv, http.MethodPost, "/v1/prototypes", map[string]any{"name": "Person"})
	require.Equal(t, http.StatusCreated, status)
	protoID := proto["uuid"].(string)

	status, v1 := do(t, srv, http.MethodPost, "/v1/concepts", map[string]any{
		"prototype_id": protoID,
		"label":        "Alice",
		"data":         map[string]any{"age": 30},
	})
	require.Equal(t, http.StatusCreated, status)
	v1ID := v1["uuid"].(string)

	status, v2 := do(t, srv, http.MethodPost, "/v1/concepts", map[string]any{
		"prototype_id":          protoID,
		"label":                 "Alice",
		"data":                  map[string]any{"age": 31},
		"previous_version_uuid": v1ID,
	})
	require.Equal(t, http.StatusCreated, status)

	status, got := do(t, srv, http.MethodGet, "/v1/concepts/"+v1ID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, got["superseded"])

	status, hist := do(t, srv, http.MethodGet, "/v1/concepts/"+v1ID+"/history", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, hist["count"])

	// Branching the version chain is refused.
	status, body := do(t, srv, http.MethodPost, "/v1/concepts", map[string]any{
		"prototype_id":          protoID,
		"label":                 "Alice",
		"previous_version_uuid": v1ID,
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "InvariantViolation", body["kind"])

	status, res := do(t, srv, http.MethodGet, "/v1/concepts/search?q=Alice&current_only=true", nil)
	require.Equal(t, http.StatusOK, status)
	results := res["results"].([]any)
	require.NotEmpty(t, results)
	assert.Equal(t, v2["uuid"], results[0].(map[string]any)["uuid"])
}

func TestPrototypeCycleRejected(t *testing.T) {
	srv := newTestServer(t, "")

	_, a := do(t, srv, http.MethodPost, "/v1/prototypes", map[string]any{"name": "A"})
	_, b := do(t, srv, http.MethodPost, "/v1/prototypes", map[string]any{"name": "B", "parents": []any{a["uuid"]}})

	status, _ := do(t, srv, http.MethodPost, "/v1/prototypes/"+a["uuid"].(string)+"/parents", map[string]any{"parent_id": b["uuid"]})
	assert.Equal(t, http.StatusConflict, status)

	status, got := do(t, srv, http.MethodGet, "/v1/prototypes/"+b["uuid"].(string), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, got["ancestors"], 1)
}

func TestAssertionSnapshot(t *testing.T) {
	srv := newTestServer(t, "")

	status, first := do(t, srv, http.MethodPost, "/v1/assertions", map[string]any{
		"subject": "Alice", "predicate": "status", "object": "active", "truth": 0.6,
	})
	require.Equal(t, http.StatusCreated, status)
	assert.NotEmpty(t, first["provenance"].(map[string]any)["trace_id"])

	status, _ = do(t, srv, http.MethodPost, "/v1/assertions", map[string]any{
		"subject": "Alice", "predicate": "status", "object": "pending", "truth": 0.9, "vote_score": 3,
	})
	require.Equal(t, http.StatusCreated, status)

	status, snap := do(t, srv, http.MethodGet, "/v1/subjects/Alice/snapshot", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "pending", snap["values"].(map[string]any)["status"])

	status, ev := do(t, srv, http.MethodGet, "/v1/subjects/Alice/evidence?predicate=status", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, ev["evidence"].(map[string]any)["status"], 2)

	status, list := do(t, srv, http.MethodGet, "/v1/assertions?subject=Alice", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, list["count"])

	status, _ = do(t, srv, http.MethodGet, "/v1/assertions/"+first["id"].(string), nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t, "")

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
		wantKind   string
	}{
		{"missing field", http.MethodPost, "/v1/assertions", map[string]any{"predicate": "status", "object": "x"}, http.StatusBadRequest, "MissingField"},
		{"out of range", http.MethodPost, "/v1/assertions", map[string]any{"subject": "A", "predicate": "p", "object": "x", "truth": 1.5}, http.StatusBadRequest, "OutOfRange"},
		{"unknown concept", http.MethodGet, "/v1/concepts/6f1c3c52-1b7a-4d7e-9a57-0e0c4f0b1a11", nil, http.StatusNotFound, ""},
		{"bad threshold", http.MethodGet, "/v1/concepts/search?q=x&threshold=2", nil, http.StatusBadRequest, "OutOfRange"},
		{"structural rel", http.MethodPost, "/v1/associations", map[string]any{
			"from": "6f1c3c52-1b7a-4d7e-9a57-0e0c4f0b1a11", "to": "0b3c3c52-1b7a-4d7e-9a57-0e0c4f0b1a22", "rel": "is_a",
		}, http.StatusBadRequest, "OutOfRange"},
		{"reinforcement rel", http.MethodPost, "/v1/associations", map[string]any{
			"from": "6f1c3c52-1b7a-4d7e-9a57-0e0c4f0b1a11", "to": "0b3c3c52-1b7a-4d7e-9a57-0e0c4f0b1a22", "rel": "reinforces", "weight": 1e9,
		}, http.StatusBadRequest, "OutOfRange"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, srv, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, status)
			if tt.wantKind != "" {
				assert.Equal(t, tt.wantKind, body["kind"])
			}
		})
	}
}

func TestDocumentsAndLinks(t *testing.T) {
	srv := newTestServer(t, "")

	status, first := do(t, srv, http.MethodPost, "/v1/documents", map[string]any{
		"label": "Go", "summary": "a language", "tags": []string{"lang"},
	})
	require.Equal(t, http.StatusCreated, status)
	goID := first["concept"].(map[string]any)["uuid"].(string)

	status, second := do(t, srv, http.MethodPost, "/v1/documents", map[string]any{
		"label": "Gophers", "tags": []string{"lang", "mascot"},
		"associations": []any{map[string]any{"node_id": goID, "weight": 2}},
	})
	require.Equal(t, http.StatusCreated, status)
	gopherID := second["concept"].(map[string]any)["uuid"].(string)

	status, assoc := do(t, srv, http.MethodGet, "/v1/nodes/"+goID+"/associations?direction=incoming&rel=associated_with", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, assoc["count"])

	status, _ = do(t, srv, http.MethodPost, "/v1/links", map[string]any{"from": gopherID, "to": goID})
	require.Equal(t, http.StatusCreated, status)
	status, link := do(t, srv, http.MethodPost, "/v1/links/access", map[string]any{"from": gopherID, "to": goID})
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, link["weight"])

	status, strongest := do(t, srv, http.MethodGet, "/v1/nodes/"+gopherID+"/links", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, strongest["count"])

	status, decay := do(t, srv, http.MethodPost, "/v1/links/decay", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, decay["processed"])
}

func TestORMRoutes(t *testing.T) {
	srv := newTestServer(t, "")

	status, _ := do(t, srv, http.MethodPost, "/v1/orm/prototypes", map[string]any{
		"name": "Book",
		"fields": []any{
			map[string]any{"name": "title", "type": "string", "required": true},
			map[string]any{"name": "pages", "type": "number"},
		},
	})
	require.Equal(t, http.StatusCreated, status)

	status, created := do(t, srv, http.MethodPost, "/v1/orm/Book", map[string]any{"title": "Dune", "pages": 412})
	require.Equal(t, http.StatusCreated, status)
	record := created["record"].(map[string]any)
	id := record["uuid"].(string)

	status, updated := do(t, srv, http.MethodPatch, "/v1/orm/Book/"+id, map[string]any{"pages": 500})
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 500, updated["record"].(map[string]any)["pages"])
	assert.EqualValues(t, 2, updated["version"])

	status, found := do(t, srv, http.MethodPost, "/v1/orm/Book/find", map[string]any{"title": "Dune"})
	require.Equal(t, http.StatusOK, status)
	assert.NotNil(t, found["record"])

	status, missing := do(t, srv, http.MethodPost, "/v1/orm/Book/find", map[string]any{"title": "Emma"})
	require.Equal(t, http.StatusOK, status)
	assert.Nil(t, missing["record"])

	status, _ = do(t, srv, http.MethodPost, "/v1/orm/Book", map[string]any{"pages": 1})
	assert.Equal(t, http.StatusBadRequest, status)
	// A prototype named like the registration route could never be reached.
	status, body := do(t, srv, http.MethodPost, "/v1/orm/prototypes", map[string]any{
		"name":   "prototypes",
		"fields": []any{map[string]any{"name": "title", "type": "string"}},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "name", body["field"])
}

func TestAPIKeyAuth(t *testing.T) {
	srv := newTestServer(t, "secret")

	status, _ := do(t, srv, http.MethodGet, "/v1/assertions", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/v1/assertions", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Health stays open.
	status, _ = do(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, "")
	do(t, srv, http.MethodGet, "/health", nil)

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(b), `protomind_http_requests_total{method="GET",route="/health",status="200"}`))
}
