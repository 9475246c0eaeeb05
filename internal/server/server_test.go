package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turbolytics/activerecord/pkg/memory"
	"github.com/turbolytics/activerecord/pkg/record"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	schema := record.MustSchema("items", "id",
		record.Field{Name: "id", Type: record.Integer},
		record.Field{Name: "name", Type: record.String},
		record.Field{Name: "qty", Type: record.Integer, Nullable: true},
	)
	s := New(map[string]*record.Model{
		"items": record.NewModel(schema, memory.New()),
	})
	ts := httptest.NewServer(s.Routes())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, u, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, u, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := do(t, http.MethodGet, ts.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, ts.URL+"/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTables(t *testing.T) {
	ts := newTestServer(t)

	resp, body := do(t, http.MethodGet, ts.URL+"/api/v1/tables", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["count"])

	resp, body = do(t, http.MethodGet, ts.URL+"/api/v1/tables/items", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "id", body["primary_key"])

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/v1/tables/orders/rows", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRowLifecycle(t *testing.T) {
	ts := newTestServer(t)
	rows := ts.URL + "/api/v1/tables/items/rows"

	resp, created := do(t, http.MethodPost, rows, `{"name": "bolt", "qty": 10, "id": 77}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, float64(1), created["id"])
	do(t, http.MethodPost, rows, `{"name": "nut"}`)

	resp, row := do(t, http.MethodGet, rows+"/1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "bolt", row["name"])
	assert.Equal(t, float64(10), row["qty"])

	resp, row = do(t, http.MethodPut, rows+"/1", `{"qty": 5}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(5), row["qty"])
	assert.Equal(t, "bolt", row["name"])

	resp, list := do(t, http.MethodGet, rows+"?"+url.Values{"where": {"qty < 6"}, "order": {"-id"}}.Encode(), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), list["count"])

	resp, count := do(t, http.MethodGet, ts.URL+"/api/v1/tables/items/count", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), count["count"])

	resp, _ = do(t, http.MethodDelete, rows+"/1", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, rows+"/1", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBadRequests(t *testing.T) {
	ts := newTestServer(t)
	rows := ts.URL + "/api/v1/tables/items/rows"

	testCases := []struct {
		name   string
		method string
		url    string
		body   string
	}{
		{"injection in where", http.MethodGet, rows + "?" + url.Values{"where": {"qty = 1 or 1 = 1"}}.Encode(), ""},
		{"unknown field in where", http.MethodGet, rows + "?" + url.Values{"where": {"colour = 'red'"}}.Encode(), ""},
		{"bad limit", http.MethodGet, rows + "?limit=ten", ""},
		{"bad id", http.MethodGet, rows + "/abc", ""},
		{"type mismatch", http.MethodPost, rows, `{"name": "bolt", "qty": "many"}`},
		{"missing required", http.MethodPost, rows, `{"qty": 1}`},
		{"bad json", http.MethodPost, rows, `{`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := do(t, tc.method, tc.url, tc.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.NotEmpty(t, body["error"])
		})
	}
}
