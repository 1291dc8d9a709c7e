package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleObjectState answers GET /objects/{type}/{id}/state?at=T.
// A missing entry is a normal 200 response with log_found=false.
func (h *Handler) handleObjectState(w http.ResponseWriter, r *http.Request) {
	ts, err := timestampParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	state, err := h.engine.ObjectStateAt(r.Context(), objectRefFromRequest(r), ts)
	if err != nil {
		writeLookupError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, state)
}

// handleFieldState answers GET /objects/{type}/{id}/fields/{field}?at=T.
func (h *Handler) handleFieldState(w http.ResponseWriter, r *http.Request) {
	ts, err := timestampParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	fieldName := chi.URLParam(r, "fieldName")
	state, err := h.engine.FieldStateAt(r.Context(), objectRefFromRequest(r), fieldName, ts)
	if err != nil {
		writeLookupError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, state)
}
