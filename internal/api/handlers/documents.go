package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mytimetablemaker/transit-sync/internal/kvstore"
)

// maxDocumentBytes bounds an uploaded route document
const maxDocumentBytes = 8 << 20

// RouteLocker excludes timetable writes to a route while a document is
// exported or imported
type RouteLocker interface {
	LockRoute(route kvstore.Route) func()
}

// DocumentHandler serves the per-route sync documents
type DocumentHandler struct {
	store kvstore.Store
	locks RouteLocker
}

// NewDocumentHandler creates a new handler over store
func NewDocumentHandler(store kvstore.Store, locks RouteLocker) *DocumentHandler {
	return &DocumentHandler{store: store, locks: locks}
}

// ImportResponse is the JSON response for PUT /api/documents/{route}
type ImportResponse struct {
	Route   string `json:"route"`
	Entries int    `json:"entries"`
}

// GetDocument handles GET /api/documents/{route}
// Returns every key of the route namespace
func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	route, err := kvstore.ParseRoute(chi.URLParam(r, "route"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unknown route", err)
		return
	}

	unlock := h.locks.LockRoute(route)
	doc, err := kvstore.ExportRoute(r.Context(), h.store, route)
	unlock()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to export route", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// PutDocument handles PUT /api/documents/{route}
// Replaces the route namespace with the uploaded document (last write wins)
func (h *DocumentHandler) PutDocument(w http.ResponseWriter, r *http.Request) {
	route, err := kvstore.ParseRoute(chi.URLParam(r, "route"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unknown route", err)
		return
	}

	var doc kvstore.Document
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDocumentBytes)).Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid document", err)
		return
	}
	if doc.Route == "" {
		doc.Route = route.Token()
	}
	if doc.Route != route.Token() {
		writeError(w, http.StatusBadRequest, "Document route does not match the path", nil)
		return
	}

	unlock := h.locks.LockRoute(route)
	err = kvstore.ImportRoute(r.Context(), h.store, &doc)
	unlock()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Failed to import document", err)
		return
	}
	writeJSON(w, http.StatusOK, ImportResponse{Route: doc.Route, Entries: len(doc.Entries)})
}
