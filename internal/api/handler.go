package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/kgexplorer/internal/config"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/engine"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/event"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/graph"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/metrics"
	"github.com/gyaneshwarpardhi/kgexplorer/internal/render"
)

// Handler holds all HTTP handler dependencies.
type Handler struct {
	sess   *engine.Session
	loader *config.Loader
	mux    *http.ServeMux
}

// New creates an HTTP handler and registers all routes.
// loader may be nil, which disables the reload route.
func New(sess *engine.Session, loader *config.Loader) http.Handler {
	h := &Handler{sess: sess, loader: loader, mux: http.NewServeMux()}

	h.mux.HandleFunc("GET /v1/graph", h.getGraph)
	h.mux.HandleFunc("GET /v1/graph.png", h.getGraphPNG)
	h.mux.HandleFunc("POST /v1/pointer", h.pointer)
	h.mux.HandleFunc("POST /v1/nodes", h.createNode)
	h.mux.HandleFunc("PATCH /v1/nodes/{id}", h.updateNode)
	h.mux.HandleFunc("DELETE /v1/nodes/{id}", h.deleteNode)
	h.mux.HandleFunc("POST /v1/nodes/{id}/expand", h.expand)
	h.mux.HandleFunc("POST /v1/nodes/{id}/show", h.showNode)
	h.mux.HandleFunc("POST /v1/relations", h.createRelation)
	h.mux.HandleFunc("DELETE /v1/relations/{id}", h.deleteRelation)
	h.mux.HandleFunc("POST /v1/relations/{id}/show", h.showRelation)
	h.mux.HandleFunc("GET /v1/catalog/nodes", h.searchNodes)
	h.mux.HandleFunc("GET /v1/catalog/relation-types", h.listRelationTypes)
	h.mux.HandleFunc("POST /v1/catalog/relation-types", h.createRelationType)
	h.mux.HandleFunc("PATCH /v1/catalog/relation-types/{id}", h.updateRelationType)
	h.mux.HandleFunc("POST /v1/catalog/refresh", h.refreshCatalog)
	h.mux.HandleFunc("POST /v1/config/reload", h.reloadConfig)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(h.mux)
}

// GET /v1/graph — latest frame.
func (h *Handler) getGraph(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sess.Frame())
}

// GET /v1/graph.png — latest frame rasterised.
func (h *Handler) getGraphPNG(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := render.WritePNG(&buf, h.sess.Frame(), h.sess.RenderConfig()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// POST /v1/pointer — dispatch a pointer gesture.
func (h *Handler) pointer(w http.ResponseWriter, r *http.Request) {
	var ev event.Pointer
	if !decode(w, r, &ev) {
		return
	}
	if err := ev.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ev.ReceivedAt = time.Now()
	id, hit, err := h.sess.Pointer(r.Context(), ev)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"node": id, "hit": hit})
}

// POST /v1/nodes — create a node.
func (h *Handler) createNode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title string `json:"title"`
	}
	if !decode(w, r, &body) {
		return
	}
	if body.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	n, err := h.sess.CreateNode(r.Context(), body.Title)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

// PATCH /v1/nodes/{id} — edit title and summary.
func (h *Handler) updateNode(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var fields graph.NodeFields
	if !decode(w, r, &fields) {
		return
	}
	if err := h.sess.UpdateNode(r.Context(), graph.NodeID(id), fields); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"updated": id})
}

// DELETE /v1/nodes/{id} — 409 while the node still has relations.
func (h *Handler) deleteNode(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.sess.DeleteNode(r.Context(), graph.NodeID(id)); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": id})
}

// POST /v1/nodes/{id}/expand — merge the neighbourhood of a node.
func (h *Handler) expand(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	out, err := h.sess.Expand(r.Context(), graph.NodeID(id))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// POST /v1/nodes/{id}/show — replace the view with a node's neighbourhood.
func (h *Handler) showNode(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.sess.Show(r.Context(), graph.NodeID(id)); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.sess.Frame())
}

// POST /v1/relations — create a relation.
func (h *Handler) createRelation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Source graph.NodeID `json:"source"`
		Target graph.NodeID `json:"target"`
		TypeID int64        `json:"relation_type_id"`
	}
	if !decode(w, r, &body) {
		return
	}
	if body.Source == 0 || body.Target == 0 || body.TypeID == 0 {
		writeError(w, http.StatusBadRequest, "source, target and relation_type_id are required")
		return
	}
	rel, err := h.sess.CreateRelation(r.Context(), body.Source, body.Target, body.TypeID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rel)
}

// DELETE /v1/relations/{id}
func (h *Handler) deleteRelation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.sess.DeleteRelation(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": id})
}

// POST /v1/relations/{id}/show — replace the view with one relation.
func (h *Handler) showRelation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.sess.ShowRelation(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.sess.Frame())
}

// GET /v1/catalog/nodes?q=&where= — search the catalog.
func (h *Handler) searchNodes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	nodes, err := h.sess.SearchNodes(r.Context(), q.Get("q"), q.Get("where"))
	if err != nil {
		writeErr(w, err)
		return
	}
	if nodes == nil {
		nodes = []graph.Node{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"nodes": nodes, "count": len(nodes)})
}

// GET /v1/catalog/relation-types
func (h *Handler) listRelationTypes(w http.ResponseWriter, r *http.Request) {
	cat, err := h.sess.Catalog(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	types := cat.Types
	if types == nil {
		types = []graph.RelationType{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"relation_types": types})
}

// POST /v1/catalog/relation-types — add a vocabulary entry.
func (h *Handler) createRelationType(w http.ResponseWriter, r *http.Request) {
	var t graph.RelationType
	if !decode(w, r, &t) {
		return
	}
	if t.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	stored, err := h.sess.CreateRelationType(r.Context(), t)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

// PATCH /v1/catalog/relation-types/{id} — replace a vocabulary entry.
func (h *Handler) updateRelationType(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var t graph.RelationType
	if !decode(w, r, &t) {
		return
	}
	if t.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	t.ID = id
	stored, err := h.sess.UpdateRelationType(r.Context(), t)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

// POST /v1/catalog/refresh
func (h *Handler) refreshCatalog(w http.ResponseWriter, r *http.Request) {
	if err := h.sess.RefreshCatalog(r.Context()); err != nil {
		writeErr(w, err)
		return
	}
	cat, err := h.sess.Catalog(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"nodes":          len(cat.Nodes),
		"relations":      len(cat.Relations),
		"relation_types": len(cat.Types),
	})
}

// POST /v1/config/reload — re-read the config file; listeners reconfigure the session.
func (h *Handler) reloadConfig(w http.ResponseWriter, r *http.Request) {
	if h.loader == nil {
		writeError(w, http.StatusNotFound, "config reload is not available")
		return
	}
	cfg, err := h.loader.Reload()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reloaded": true,
		"version":  cfg.Version,
	})
}

// GET /healthz — always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "session": h.sess.ID()})
}

// GET /readyz — 503 if the loop queue is >80% full.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	util := h.sess.QueueUtilization()
	metrics.QueueUtilization.Set(util)
	if util > 0.8 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":            "overloaded",
			"queue_utilization": util,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ready",
		"queue_utilization": util,
	})
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid id %q", r.PathValue("id")))
		return 0, false
	}
	return id, true
}
