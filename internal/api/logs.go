package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rpattn/auditq/internal/auth"
	"github.com/rpattn/auditq/internal/domain"
	"github.com/rpattn/auditq/internal/export"
	"github.com/rpattn/auditq/internal/repository"
)

type recordPayload struct {
	Action string         `json:"action"`
	Actor  string         `json:"actor"`
	Before map[string]any `json:"before"`
	After  map[string]any `json:"after"`
}

// handleRecord answers POST /objects/{type}/{id}/logs, appending a log entry
// for a mutation of the object.
func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	ref := objectRefFromRequest(r)
	if !h.registry.Contains(ref.ObjectType) {
		writeError(w, http.StatusNotFound, fmt.Errorf("object type %q is not tracked", ref.ObjectType))
		return
	}

	var payload recordPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	action := strings.ToUpper(strings.TrimSpace(payload.Action))
	switch action {
	case domain.ActionCreate, domain.ActionUpdate, domain.ActionDelete:
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid action %q", payload.Action))
		return
	}

	actor := strings.TrimSpace(payload.Actor)
	if actor == "" {
		actor, _ = auth.ActorFromContext(r.Context())
	}

	entry, recorded, err := h.recorder.Record(r.Context(), ref, action, payload.Before, payload.After, actor)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !recorded {
		writeJSON(w, http.StatusOK, map[string]any{"recorded": false})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"recorded": true, "entry": entry})
}

// handleListLogs answers GET /objects/{type}/{id}/logs, newest first.
func (h *Handler) handleListLogs(w http.ResponseWriter, r *http.Request) {
	ref := objectRefFromRequest(r)
	limit := intQueryParam(r, "limit", 50)
	offset := intQueryParam(r, "offset", 0)

	entries, err := h.entries.ListForObject(r.Context(), ref, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	total, err := h.entries.CountForObject(r.Context(), ref)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"total":   total,
	})
}

// handleGetEntry answers GET /logs/{logID}: the explicit secondary fetch of
// a full record behind a lookup result's log_entry_id. Entry ids are globally
// unique and the route carries no object type, so the fetch goes straight to
// the repository; engine.Entry serves callers that already hold a type.
func (h *Handler) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "logID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid log entry id: %w", err))
		return
	}

	entry, err := h.entries.Entry(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrEntryNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

// handleExport answers GET /objects/{type}/{id}/export?format=xlsx|csv.
func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	ref := objectRefFromRequest(r)
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = "xlsx"
	}

	switch format {
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(ref, format)))
		if err := h.exporter.WriteXLSX(r.Context(), ref, w); err != nil {
			writeError(w, http.StatusInternalServerError, err)
		}
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(ref, format)))
		if err := h.exporter.WriteCSV(r.Context(), ref, w); err != nil {
			writeError(w, http.StatusInternalServerError, err)
		}
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unsupported export format %q", format))
	}
}
