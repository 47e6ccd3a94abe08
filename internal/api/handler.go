package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/scenegraph/internal/config"
	"github.com/gyaneshwarpardhi/scenegraph/internal/document"
	"github.com/gyaneshwarpardhi/scenegraph/internal/metrics"
	"github.com/gyaneshwarpardhi/scenegraph/internal/nodeid"
	"github.com/gyaneshwarpardhi/scenegraph/internal/query"
	"github.com/gyaneshwarpardhi/scenegraph/internal/session"
)

const maxDocumentBytes = 32 << 20

// Handler holds all HTTP handler dependencies.
type Handler struct {
	sess   *session.Session
	loader *config.Loader
	mux    *http.ServeMux
}

// New creates an HTTP handler and registers all routes. loader may be nil,
// in which case config reload is unavailable.
func New(sess *session.Session, loader *config.Loader) http.Handler {
	h := &Handler{sess: sess, loader: loader, mux: http.NewServeMux()}

	h.mux.HandleFunc("POST /v1/nodes", h.addNode)
	h.mux.HandleFunc("GET /v1/nodes", h.listNodes)
	h.mux.HandleFunc("GET /v1/nodes/{id}", h.getNode)
	h.mux.HandleFunc("DELETE /v1/nodes/{id}", h.removeNode)
	h.mux.HandleFunc("PUT /v1/nodes/{id}/references/{role}", h.setReference)
	h.mux.HandleFunc("GET /v1/nodes/{id}/referrers", h.referrers)
	h.mux.HandleFunc("PUT /v1/nodes/{id}/parent", h.setParent)
	h.mux.HandleFunc("DELETE /v1/nodes/{id}/parent", h.clearParent)
	h.mux.HandleFunc("GET /v1/nodes/{id}/children", h.children)
	h.mux.HandleFunc("GET /v1/nodes/{id}/ancestors", h.ancestors)
	h.mux.HandleFunc("POST /v1/references/retarget", h.retarget)
	h.mux.HandleFunc("POST /v1/documents/merge", h.mergeDocument)
	h.mux.HandleFunc("GET /v1/documents/export", h.exportDocument)
	h.mux.HandleFunc("GET /v1/kinds", h.listKinds)
	h.mux.HandleFunc("POST /v1/config/reload", h.reloadConfig)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(h.mux)
}

type addNodeRequest struct {
	Type       string            `json:"type"`
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes"`
}

// POST /v1/nodes: create a node with a fresh id.
func (h *Handler) addNode(w http.ResponseWriter, r *http.Request) {
	var req addNodeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Type == "" {
		writeError(w, http.StatusBadRequest, "node type is required")
		return
	}
	id, err := h.sess.AddNode(req.Type, req.Name, req.Attributes)
	if err != nil {
		writeErr(w, err)
		return
	}
	n, _ := h.sess.Node(id)
	writeJSON(w, http.StatusCreated, n)
}

// GET /v1/nodes?where=<query>: nodes in insertion order, optionally filtered.
func (h *Handler) listNodes(w http.ResponseWriter, r *http.Request) {
	var nodes []document.ProtoNode
	if where := r.URL.Query().Get("where"); where != "" {
		q, err := query.Parse(where)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid where: %s", err))
			return
		}
		nodes = h.sess.Select(q)
	} else {
		nodes = h.sess.Export().Nodes
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(nodes),
		"nodes":    nodes,
		"dangling": emptyIfNil(h.sess.Dangling()),
	})
}

// GET /v1/nodes/{id}
func (h *Handler) getNode(w http.ResponseWriter, r *http.Request) {
	id := nodeid.ID(r.PathValue("id"))
	n, ok := h.sess.Node(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("node %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// DELETE /v1/nodes/{id}: references to the node elsewhere are kept.
func (h *Handler) removeNode(w http.ResponseWriter, r *http.Request) {
	id := nodeid.ID(r.PathValue("id"))
	if err := h.sess.RemoveNode(id); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"removed":   id,
		"referrers": emptyIfNil(h.sess.ReferencesTo(id)),
	})
}

type targetsRequest struct {
	Targets []string `json:"targets"`
}

// PUT /v1/nodes/{id}/references/{role}: replace a role's target list.
func (h *Handler) setReference(w http.ResponseWriter, r *http.Request) {
	var req targetsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id := nodeid.ID(r.PathValue("id"))
	if err := h.sess.SetReference(id, r.PathValue("role"), nodeid.FromStrings(req.Targets)); err != nil {
		writeErr(w, err)
		return
	}
	n, _ := h.sess.Node(id)
	writeJSON(w, http.StatusOK, n)
}

// GET /v1/nodes/{id}/referrers: works for removed ids too.
func (h *Handler) referrers(w http.ResponseWriter, r *http.Request) {
	id := nodeid.ID(r.PathValue("id"))
	_, live := h.sess.Node(id)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":        id,
		"live":      live,
		"referrers": emptyIfNil(h.sess.ReferencesTo(id)),
	})
}

type parentRequest struct {
	Parent string `json:"parent"`
}

// PUT /v1/nodes/{id}/parent
func (h *Handler) setParent(w http.ResponseWriter, r *http.Request) {
	var req parentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id := nodeid.ID(r.PathValue("id"))
	if err := h.sess.SetParent(id, nodeid.ID(req.Parent)); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":        id,
		"ancestors": h.sess.AncestorChain(id),
	})
}

// DELETE /v1/nodes/{id}/parent
func (h *Handler) clearParent(w http.ResponseWriter, r *http.Request) {
	id := nodeid.ID(r.PathValue("id"))
	if err := h.sess.ClearParent(id); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "ancestors": h.sess.AncestorChain(id)})
}

// GET /v1/nodes/{id}/children
func (h *Handler) children(w http.ResponseWriter, r *http.Request) {
	id := nodeid.ID(r.PathValue("id"))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":       id,
		"children": emptyIfNil(h.sess.Children(id)),
	})
}

// GET /v1/nodes/{id}/ancestors: root first, ending with id itself.
func (h *Handler) ancestors(w http.ResponseWriter, r *http.Request) {
	id := nodeid.ID(r.PathValue("id"))
	chain := h.sess.AncestorChain(id)
	if len(chain) == 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("node %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":        id,
		"ancestors": chain,
		"depth":     len(chain) - 1,
	})
}

type retargetRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// POST /v1/references/retarget: point every reference to one id at another.
func (h *Handler) retarget(w http.ResponseWriter, r *http.Request) {
	var req retargetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	changed, err := h.sess.Retarget(nodeid.ID(req.From), nodeid.ID(req.To))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"from": req.From, "to": req.To, "changed": changed})
}

// POST /v1/documents/merge?format=yaml|json|mrml: merge a document into the
// graph. Individual bad nodes are reported in the plan, not as an error.
func (h *Handler) mergeDocument(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxDocumentBytes)
	plan, err := h.sess.Import(r.Context(), body, r.URL.Query().Get("format"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// GET /v1/documents/export?format=yaml|json|mrml
func (h *Handler) exportDocument(w http.ResponseWriter, r *http.Request) {
	codec, err := document.CodecFor(r.URL.Query().Get("format"))
	if err != nil {
		writeErr(w, err)
		return
	}
	var buf bytes.Buffer
	if err := codec.Encode(&buf, h.sess.Export()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", codec.ContentType())
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// GET /v1/kinds: the registry in force.
func (h *Handler) listKinds(w http.ResponseWriter, r *http.Request) {
	kinds := h.sess.Kinds()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"strict": kinds.Strict(),
		"kinds":  emptyIfNil(kinds.Tags()),
	})
}

// POST /v1/config/reload: re-read the config file and swap the kind registry.
func (h *Handler) reloadConfig(w http.ResponseWriter, r *http.Request) {
	if h.loader == nil {
		writeError(w, http.StatusNotFound, "no config file loaded")
		return
	}
	cfg, err := h.loader.Reload()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := h.sess.ApplyConfig(cfg); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reloaded":    true,
		"kinds_count": len(h.sess.Kinds().Tags()),
	})
}

// GET /healthz: always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz: 503 if the decode queue is >80% full.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	util := h.sess.QueueUtilization()
	metrics.DecodeQueueUtilization.Set(util)
	if util > 0.8 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":            "overloaded",
			"queue_utilization": util,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ready",
		"session":           h.sess.ID,
		"nodes":             h.sess.Len(),
		"queue_utilization": util,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return false
	}
	return true
}

func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
