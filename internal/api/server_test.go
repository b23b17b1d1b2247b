package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpshade/pocket-capsules/internal/service"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   struct {
		Code    string   `json:"code"`
		Message string   `json:"message"`
		Errors  []string `json:"errors"`
	} `json:"error"`
}

func newTestServer(t *testing.T) *APIServer {
	t.Helper()
	svc, err := service.NewService(service.Options{LibraryDir: t.TempDir(), IncludeBuiltin: true})
	require.NoError(t, err)
	require.NoError(t, svc.InitLibrary())
	return NewAPIServer(svc, 0, nil)
}

func do(t *testing.T, s *APIServer, method, target string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json" && rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func TestListCapsules(t *testing.T) {
	s := newTestServer(t)

	rec, env := do(t, s, http.MethodGet, "/api/v1/capsules?category=forms&format=ids", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	var ids []string
	require.NoError(t, json.Unmarshal(env.Data, &ids))
	assert.Len(t, ids, 6)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	rec, env = do(t, s, http.MethodGet, "/api/v1/capsules?platform=watch", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "CONSTRAINT_VIOLATION", env.Error.Code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestGetCapsule(t *testing.T) {
	s := newTestServer(t)

	rec, env := do(t, s, http.MethodGet, "/api/v1/capsules/spinner?code=false", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var capsule map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &capsule))
	assert.Equal(t, "spinner", capsule["id"])
	assert.NotContains(t, capsule, "code")

	rec, env = do(t, s, http.MethodGet, "/api/v1/capsules/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestCreateAndDeleteCapsule(t *testing.T) {
	s := newTestServer(t)

	body := map[string]interface{}{
		"id":          "pricing-table",
		"name":        "Pricing Table",
		"category":    "layout",
		"description": "Three column pricing table with a highlighted plan",
		"tags":        []string{"layout", "pricing"},
		"code":        "export function PricingTable() {}",
		"outputs": []map[string]interface{}{
			{"id": "summary", "name": "Plan summary", "type": "Markdown"},
		},
	}
	rec, env := do(t, s, http.MethodPost, "/api/v1/capsules", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, env.Success)

	// the submitted port is wired into the catalog
	rec, env = do(t, s, http.MethodGet, "/api/v1/connect?from=pricing-table.summary&to=markdown-viewer.source", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var check struct {
		Output     struct{ Type string } `json:"output"`
		Compatible bool                  `json:"compatible"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &check))
	assert.Equal(t, "markdown", check.Output.Type)
	assert.True(t, check.Compatible)

	bad := map[string]interface{}{}
	for k, v := range body {
		bad[k] = v
	}
	bad["id"] = "pricing-table-2"
	bad["outputs"] = []map[string]interface{}{{"id": "summary", "name": "Summary", "type": "hologram"}}
	rec, env = do(t, s, http.MethodPost, "/api/v1/capsules", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.Len(t, env.Error.Errors, 1)
	assert.Contains(t, env.Error.Errors[0], "outputs.0.type: Invalid enum value.")

	rec, env = do(t, s, http.MethodPost, "/api/v1/capsules", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ALREADY_EXISTS", env.Error.Code)

	rec, env = do(t, s, http.MethodPost, "/api/v1/capsules", map[string]interface{}{"id": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Error.Errors, "code: Required")

	rec, _ = do(t, s, http.MethodDelete, "/api/v1/capsules/pricing-table", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, s, http.MethodDelete, "/api/v1/capsules/spinner", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "embedded capsules are read-only")
}

func TestForms(t *testing.T) {
	s := newTestServer(t)

	rec, env := do(t, s, http.MethodPost, "/api/v1/forms/waitlist", map[string]string{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)
	assert.Equal(t, []string{"email: Invalid email"}, env.Error.Errors)

	rec, env = do(t, s, http.MethodPost, "/api/v1/forms/waitlist", map[string]string{"email": " Ada@Example.com "})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sub struct {
		ID     string                 `json:"submissionId"`
		Schema string                 `json:"schema"`
		Data   map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &sub))
	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, "waitlist", sub.Schema)
	assert.Equal(t, "ada@example.com", sub.Data["email"])
	assert.Equal(t, "other", sub.Data["role"])

	rec, _ = do(t, s, http.MethodPost, "/api/v1/forms/list_capsules", map[string]string{})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, s, http.MethodGet, "/api/v1/forms/waitlist", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestThemesAreNotImplemented(t *testing.T) {
	rec, env := do(t, newTestServer(t), http.MethodGet, "/api/v1/themes/dark", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.Equal(t, "NOT_IMPLEMENTED", env.Error.Code)
}

func TestSearchAndCompat(t *testing.T) {
	s := newTestServer(t)

	rec, _ := do(t, s, http.MethodGet, "/api/v1/search?q=spinner&limit=3", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env := do(t, s, http.MethodGet, "/api/v1/boolean-search?expr=audio+AND", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, env.Error.Errors)

	rec, env = do(t, s, http.MethodGet, "/api/v1/compat?from=markdown&to=html", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var res struct {
		Compatible bool `json:"compatible"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.True(t, res.Compatible)

	rec, _ = do(t, s, http.MethodGet, "/api/v1/connect?from=embedding-generator&to=vector-search", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, s, http.MethodGet, "/api/v1/suggest?type=hologram", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConnectTakesDottedPortRefs(t *testing.T) {
	s := newTestServer(t)

	rec, env := do(t, s, http.MethodGet, "/api/v1/connect?from=llm-prompt.response&to=markdown-viewer.source", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var check struct {
		From       struct{ Capsule, Port string } `json:"from"`
		To         struct{ Capsule, Port string } `json:"to"`
		Compatible bool                           `json:"compatible"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &check))
	assert.Equal(t, "llm-prompt", check.From.Capsule)
	assert.Equal(t, "response", check.From.Port)
	assert.Equal(t, "source", check.To.Port)
	assert.True(t, check.Compatible)

	rec, env = do(t, s, http.MethodGet, "/api/v1/connect?from=llm-prompt.stream&to=markdown-viewer&output=response", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &check))
	assert.Equal(t, "response", check.From.Port)

	rec, _ = do(t, s, http.MethodGet, "/api/v1/connect?from=llm-prompt.nope&to=markdown-viewer.source", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVerifyAndExport(t *testing.T) {
	s := newTestServer(t)

	rec, env := do(t, s, http.MethodGet, "/api/v1/verify", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/export?metadata_only=true", nil)
	out := httptest.NewRecorder()
	s.Handler().ServeHTTP(out, req)
	require.Equal(t, http.StatusOK, out.Code)

	var snap struct {
		Metadata struct {
			TotalCapsules int `json:"totalCapsules"`
		} `json:"metadata"`
		Capsules []map[string]interface{} `json:"capsules"`
	}
	require.NoError(t, json.Unmarshal(out.Body.Bytes(), &snap))
	require.NotEmpty(t, snap.Capsules)
	assert.NotContains(t, snap.Capsules[0], "code")

	rec, _ = do(t, s, http.MethodGet, "/api/v1/export?metadata_only=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPanicsBecomeInternalErrors(t *testing.T) {
	s := newTestServer(t)
	h := s.withMiddleware(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestOpenAPIDocumentLoads(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/openapi.json", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	doc, err := openapi3.NewLoader().LoadFromData(rec.Body.Bytes())
	require.NoError(t, err)

	require.NotNil(t, doc.Paths.Value("/api/v1/forms/waitlist"))
	assert.NotNil(t, doc.Paths.Value("/api/v1/forms/waitlist").Post.RequestBody)

	waitlist := doc.Components.Schemas["waitlist"].Value
	require.NotNil(t, waitlist)
	assert.Equal(t, []string{"email"}, waitlist.Required)
	assert.Len(t, waitlist.Properties["role"].Value.Enum, 5)
	assert.Equal(t, "other", waitlist.Properties["role"].Value.Default)
}
