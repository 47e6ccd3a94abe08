package api_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/scenegraph/internal/api"
	"github.com/gyaneshwarpardhi/scenegraph/internal/config"
	"github.com/gyaneshwarpardhi/scenegraph/internal/kind"
	"github.com/gyaneshwarpardhi/scenegraph/internal/session"
)

func newServer(t *testing.T, loader *config.Loader) (*httptest.Server, *session.Session) {
	t.Helper()
	conf := config.SessionConf{DecodeWorkers: 1, QueueDepth: 4, ImportTimeoutMs: 5000}
	sess := session.New(context.Background(), conf, kind.Default(),
		session.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	srv := httptest.NewServer(api.New(sess, loader))
	t.Cleanup(func() {
		srv.Close()
		sess.Shutdown()
	})
	return srv, sess
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]interface{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func TestNodesLifecycle(t *testing.T) {
	srv, _ := newServer(t, nil)

	resp, body := do(t, http.MethodPost, srv.URL+"/v1/nodes", `{"type":"Folder","name":"study"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Folder1", body["id"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, body = do(t, http.MethodPost, srv.URL+"/v1/nodes", `{"type":"Model","attributes":{"color":"red"}}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Model1", body["id"])

	resp, _ = do(t, http.MethodPut, srv.URL+"/v1/nodes/Model1/parent", `{"parent":"Folder1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = do(t, http.MethodGet, srv.URL+"/v1/nodes/Model1/ancestors", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []interface{}{"Folder1", "Model1"}, body["ancestors"])
	assert.EqualValues(t, 1, body["depth"])

	resp, body = do(t, http.MethodGet, srv.URL+"/v1/nodes/Folder1/children", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []interface{}{"Model1"}, body["children"])

	resp, _ = do(t, http.MethodPut, srv.URL+"/v1/nodes/Folder1/parent", `{"parent":"Model1"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = do(t, http.MethodDelete, srv.URL+"/v1/nodes/Folder1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, srv.URL+"/v1/nodes/Folder1", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = do(t, http.MethodGet, srv.URL+"/v1/nodes/Folder1/referrers", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["live"])
	assert.Equal(t, []interface{}{map[string]interface{}{"id": "Model1", "role": "parent"}}, body["referrers"])

	resp, body = do(t, http.MethodGet, srv.URL+"/v1/nodes", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["count"])
	assert.Equal(t, []interface{}{"Folder1"}, body["dangling"])

	resp, _ = do(t, http.MethodDelete, srv.URL+"/v1/nodes/Folder1", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListNodes_Where(t *testing.T) {
	srv, sess := newServer(t, nil)
	_, err := sess.AddNode("Model", "liver", map[string]string{"opacity": "0.8"})
	require.NoError(t, err)
	_, err = sess.AddNode("Model", "kidney", map[string]string{"opacity": "0.2"})
	require.NoError(t, err)
	_, err = sess.AddNode("Folder", "study", nil)
	require.NoError(t, err)

	resp, body := do(t, http.MethodGet, srv.URL+"/v1/nodes?where="+url.QueryEscape(`type == "Model" AND attributes.opacity > 0.5`), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["count"])
	nodes := body["nodes"].([]interface{})
	assert.Equal(t, "liver", nodes[0].(map[string]interface{})["name"])

	resp, _ = do(t, http.MethodGet, srv.URL+"/v1/nodes?where="+url.QueryEscape(`colour == "red"`), "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSetReference(t *testing.T) {
	srv, sess := newServer(t, nil)
	id, err := sess.AddNode("Model", "", nil)
	require.NoError(t, err)

	resp, body := do(t, http.MethodPut, srv.URL+"/v1/nodes/"+string(id)+"/references/display", `{"targets":["ModelDisplay1","ModelDisplay1"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]interface{}{"display": []interface{}{"ModelDisplay1"}}, body["references"])

	resp, _ = do(t, http.MethodPut, srv.URL+"/v1/nodes/"+string(id)+"/references/storage", `{"targets":["ModelStorage1","ModelStorage2"]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = do(t, http.MethodPut, srv.URL+"/v1/nodes/"+string(id)+"/references/display", `{"targets":["not an id"]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPut, srv.URL+"/v1/nodes/Model9/references/display", `{"targets":[]}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodPut, srv.URL+"/v1/nodes/"+string(id)+"/references/display", `{`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = do(t, http.MethodPost, srv.URL+"/v1/references/retarget", `{"from":"ModelDisplay1","to":"ModelDisplay2"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["changed"])
}

const collidingDoc = `version: "1"
nodes:
  - {type: ModelHierarchy, id: ModelHierarchy1}
  - {type: ModelHierarchy, id: ModelHierarchy2, references: {parent: [ModelHierarchy1]}}
  - {type: Model, id: Model1, references: {parent: [ModelHierarchy2]}}
  - {type: Model, id: Model-2}
`

func TestMergeAndExport(t *testing.T) {
	srv, sess := newServer(t, nil)
	_, err := sess.AddNode("ModelHierarchy", "", nil)
	require.NoError(t, err)

	resp, body := do(t, http.MethodPost, srv.URL+"/v1/documents/merge?format=yaml", collidingDoc)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["committed"])
	assert.Equal(t, []interface{}{"ModelHierarchy1"}, body["collisions"])
	mapping := body["mapping"].(map[string]interface{})
	assert.Equal(t, "ModelHierarchy3", mapping["ModelHierarchy1"])
	rejected := body["rejected"].([]interface{})
	require.Len(t, rejected, 1)
	assert.Equal(t, "invalid", rejected[0].(map[string]interface{})["reason"])

	resp, body = do(t, http.MethodGet, srv.URL+"/v1/nodes/ModelHierarchy2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]interface{}{"parent": []interface{}{"ModelHierarchy3"}}, body["references"])

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/v1/documents/export?format=mrml", nil)
	require.NoError(t, err)
	exp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer exp.Body.Close()
	assert.Equal(t, http.StatusOK, exp.StatusCode)
	assert.Equal(t, "application/xml", exp.Header.Get("Content-Type"))
	raw, _ := io.ReadAll(exp.Body)
	assert.Contains(t, string(raw), `<ModelHierarchy id="ModelHierarchy3"`)
}

func TestMergeErrors(t *testing.T) {
	srv, _ := newServer(t, nil)

	resp, _ := do(t, http.MethodPost, srv.URL+"/v1/documents/merge?format=nrrd", collidingDoc)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, srv.URL+"/v1/documents/merge?format=json", `{"nodes":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, srv.URL+"/v1/documents/export?format=nrrd", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestKindsAndConfigReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenegraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: \"1\"\n"), 0o644))
	loader, err := config.NewLoader(path)
	require.NoError(t, err)

	srv, _ := newServer(t, loader)

	resp, body := do(t, http.MethodGet, srv.URL+"/v1/kinds", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["strict"])
	assert.Contains(t, body["kinds"], "Model")

	require.NoError(t, os.WriteFile(path, []byte(`version: "1"
merge:
  strict_kinds: true
kinds:
  - tag: Scan
    capabilities: [hierarchy]
`), 0o644))
	resp, body = do(t, http.MethodPost, srv.URL+"/v1/config/reload", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["kinds_count"])

	resp, _ = do(t, http.MethodPost, srv.URL+"/v1/nodes", `{"type":"Model"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	require.NoError(t, os.WriteFile(path, []byte("kinds: []\n"), 0o644))
	resp, _ = do(t, http.MethodPost, srv.URL+"/v1/config/reload", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestConfigReload_NoLoader(t *testing.T) {
	srv, _ := newServer(t, nil)
	resp, _ := do(t, http.MethodPost, srv.URL+"/v1/config/reload", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProbes(t *testing.T) {
	srv, _ := newServer(t, nil)

	resp, body := do(t, http.MethodGet, srv.URL+"/healthz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, body = do(t, http.MethodGet, srv.URL+"/readyz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ready", body["status"])

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/metrics", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "abc")
	m, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer m.Body.Close()
	assert.Equal(t, http.StatusOK, m.StatusCode)
	assert.Equal(t, "abc", m.Header.Get("X-Request-ID"))
	raw, _ := io.ReadAll(m.Body)
	assert.Contains(t, string(raw), "scenegraph_graph_nodes")
}
