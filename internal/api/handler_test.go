package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/kgexplorer/internal/api"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/config"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/engine"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/graph"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/provider/memory"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/render"
)

const configYAML = `
version: v1
provider:
  kind: memory
session:
  root_node: 1
viewport:
  width: 800
  height: 600
`

type fixture struct {
	srv    *httptest.Server
	sess   *engine.Session
	loader *config.Loader
	path   string
}

func setup(t *testing.T) *fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kgx.yaml")
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))
	loader, err := config.NewLoader(path)
	require.NoError(t, err)

	p, err := memory.FromSeed(memory.Seed{
		Nodes: []memory.SeedNode{{ID: 1, Title: "Cell"}, {ID: 2, Title: "Nucleus"}, {ID: 3, Title: "Chromatin", IsInstance: true}},
		RelationTypes: []graph.RelationType{
			{ID: 1, Name: "contains", InverseName: "part_of"},
		},
		Relations: []memory.SeedRelation{
			{ID: 10, Source: 1, Target: 2, Type: "contains"},
			{ID: 11, Source: 2, Target: 3, Type: "contains"},
		},
	})
	require.NoError(t, err)

	sess, err := engine.New(loader.Config(), p, nil)
	require.NoError(t, err)
	sess.Start(context.Background())
	t.Cleanup(sess.Shutdown)
	require.NoError(t, sess.Bootstrap(context.Background()))

	loader.OnChange(func(c *config.Config) { _ = sess.Reconfigure(context.Background(), c) })

	srv := httptest.NewServer(api.New(sess, loader))
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, sess: sess, loader: loader, path: path}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestGetGraph(t *testing.T) {
	f := setup(t)
	resp := f.do(t, http.MethodGet, "/v1/graph", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var frame render.Frame
	decodeBody(t, resp, &frame)
	assert.Len(t, frame.Glyphs, 2)
	assert.Equal(t, 800.0, frame.Width)
	assert.Equal(t, graph.NodeID(1), frame.Selected)
}

func TestRequestIDIsEchoed(t *testing.T) {
	f := setup(t)
	req, _ := http.NewRequest(http.MethodGet, f.srv.URL+"/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "abc-123", resp.Header.Get("X-Request-ID"))
}

func TestExpandRoute(t *testing.T) {
	f := setup(t)
	resp := f.do(t, http.MethodPost, "/v1/nodes/2/expand", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Status   string `json:"status"`
		NewNodes int    `json:"new_nodes"`
	}
	decodeBody(t, resp, &out)
	assert.Equal(t, "merged", out.Status)
	assert.Equal(t, 1, out.NewNodes)

	resp = f.do(t, http.MethodPost, "/v1/nodes/2/expand", nil)
	decodeBody(t, resp, &out)
	assert.Equal(t, "skipped", out.Status)
}

func TestErrorMapping(t *testing.T) {
	f := setup(t)
	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		want   int
	}{
		{"delete with relations conflicts", http.MethodDelete, "/v1/nodes/1", nil, http.StatusConflict},
		{"unknown node", http.MethodPost, "/v1/nodes/99/expand", nil, http.StatusNotFound},
		{"bad id", http.MethodPost, "/v1/nodes/abc/show", nil, http.StatusBadRequest},
		{"unknown relation", http.MethodPost, "/v1/relations/99/show", nil, http.StatusNotFound},
		{"missing title", http.MethodPost, "/v1/nodes", map[string]string{}, http.StatusBadRequest},
		{"duplicate title", http.MethodPost, "/v1/nodes", map[string]string{"title": "cell"}, http.StatusConflict},
		{"bad pointer kind", http.MethodPost, "/v1/pointer", map[string]string{"kind": "hover"}, http.StatusBadRequest},
		{"bad filter", http.MethodGet, "/v1/catalog/nodes?where=degree%3E", nil, http.StatusBadRequest},
		{"incomplete relation", http.MethodPost, "/v1/relations", map[string]int{"source": 1}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
			var e struct {
				Error string `json:"error"`
			}
			decodeBody(t, resp, &e)
			assert.NotEmpty(t, e.Error)
		})
	}
}

func TestNodeAndRelationLifecycle(t *testing.T) {
	f := setup(t)

	resp := f.do(t, http.MethodPost, "/v1/nodes", map[string]string{"title": "Ribosome"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var n graph.Node
	decodeBody(t, resp, &n)
	require.NotZero(t, n.ID)

	resp = f.do(t, http.MethodPost, "/v1/relations", map[string]int64{"source": 1, "target": int64(n.ID), "relation_type_id": 1})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var rel graph.Relation
	decodeBody(t, resp, &rel)

	var frame render.Frame
	decodeBody(t, f.do(t, http.MethodGet, "/v1/graph", nil), &frame)
	assert.Len(t, frame.Edges, 4)

	resp = f.do(t, http.MethodPatch, "/v1/nodes/"+itoa(int64(n.ID)), map[string]string{"title": "Ribosome 80S"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodDelete, "/v1/relations/"+itoa(rel.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = f.do(t, http.MethodDelete, "/v1/nodes/"+itoa(int64(n.ID)), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCatalogRoutes(t *testing.T) {
	f := setup(t)

	var search struct {
		Nodes []graph.Node `json:"nodes"`
		Count int          `json:"count"`
	}
	decodeBody(t, f.do(t, http.MethodGet, "/v1/catalog/nodes?where=is_instance%20%3D%3D%20true", nil), &search)
	require.Equal(t, 1, search.Count)
	assert.Equal(t, "Chromatin", search.Nodes[0].Label)

	var types struct {
		Types []graph.RelationType `json:"relation_types"`
	}
	decodeBody(t, f.do(t, http.MethodGet, "/v1/catalog/relation-types", nil), &types)
	assert.Len(t, types.Types, 1)

	resp := f.do(t, http.MethodPost, "/v1/catalog/relation-types", graph.RelationType{Name: "regulates", InverseName: "regulated_by"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var counts map[string]int
	resp = f.do(t, http.MethodPost, "/v1/catalog/refresh", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &counts)
	assert.Equal(t, 3, counts["nodes"])
	assert.Equal(t, 2, counts["relation_types"])
}

func TestPointerAndPNG(t *testing.T) {
	f := setup(t)
	resp := f.do(t, http.MethodPost, "/v1/pointer", map[string]interface{}{"kind": "click", "node": 2})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Node graph.NodeID `json:"node"`
		Hit  bool         `json:"hit"`
	}
	decodeBody(t, resp, &out)
	assert.True(t, out.Hit)
	assert.Equal(t, graph.NodeID(2), out.Node)

	resp = f.do(t, http.MethodGet, "/v1/graph.png", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
}

func TestShowRoutes(t *testing.T) {
	f := setup(t)
	resp := f.do(t, http.MethodPost, "/v1/relations/11/show", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var frame render.Frame
	decodeBody(t, resp, &frame)
	assert.Len(t, frame.Glyphs, 2)
	assert.Zero(t, frame.Selected)

	resp = f.do(t, http.MethodPost, "/v1/nodes/2/show", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &frame)
	assert.Equal(t, graph.NodeID(2), frame.Selected)
}

func TestConfigReload(t *testing.T) {
	f := setup(t)
	updated := configYAML + "render:\n  background: \"#000000\"\n"
	require.NoError(t, os.WriteFile(f.path, []byte(updated), 0o600))

	resp := f.do(t, http.MethodPost, "/v1/config/reload", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "#000000", f.sess.RenderConfig().Background)

	require.NoError(t, os.WriteFile(f.path, []byte("provider:\n  kind: memory\n"), 0o600))
	resp = f.do(t, http.MethodPost, "/v1/config/reload", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestProbes(t *testing.T) {
	f := setup(t)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", nil).StatusCode)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/readyz", nil).StatusCode)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/metrics", nil).StatusCode)
}

func itoa(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestUpdateRelationTypeRoute(t *testing.T) {
	f := setup(t)
	inferred := func() []string {
		var labels []string
		for _, e := range f.sess.Frame().Edges {
			if e.Inferred {
				labels = append(labels, e.Label.Text)
			}
		}
		return labels
	}
	require.Equal(t, []string{"part_of"}, inferred())

	resp := f.do(t, http.MethodPatch, "/v1/catalog/relation-types/1", graph.RelationType{Name: "contains", InverseName: "inside"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stored graph.RelationType
	decodeBody(t, resp, &stored)
	assert.Equal(t, int64(1), stored.ID)
	assert.Equal(t, []string{"inside"}, inferred())

	tests := []struct {
		path string
		body graph.RelationType
		want int
	}{
		{"/v1/catalog/relation-types/99", graph.RelationType{Name: "ghost"}, http.StatusNotFound},
		{"/v1/catalog/relation-types/x", graph.RelationType{Name: "ghost"}, http.StatusBadRequest},
		{"/v1/catalog/relation-types/1", graph.RelationType{}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, f.do(t, http.MethodPatch, tt.path, tt.body).StatusCode, tt.path)
	}
}
