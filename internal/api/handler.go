// Package api exposes the audit log over HTTP: recording changes, listing
// trails, exporting, and the point-in-time state queries.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rpattn/auditq/internal/auditor"
	"github.com/rpattn/auditq/internal/domain"
	"github.com/rpattn/auditq/internal/export"
	"github.com/rpattn/auditq/internal/history"
	"github.com/rpattn/auditq/internal/repository"
)

// Handler serves the audit log HTTP API.
type Handler struct {
	engine   *history.Engine
	registry *auditor.Registry
	recorder *auditor.Recorder
	entries  repository.LogEntryRepository
	exporter *export.Service
}

// NewHandler wires the API over the lookup engine, the tracked-type
// registry, the recorder, and the log entry repository.
func NewHandler(engine *history.Engine, registry *auditor.Registry, recorder *auditor.Recorder, entries repository.LogEntryRepository, exporter *export.Service) *Handler {
	return &Handler{
		engine:   engine,
		registry: registry,
		recorder: recorder,
		entries:  entries,
		exporter: exporter,
	}
}

// Routes mounts the API on a chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/objects/{objectType}/{objectID}", func(r chi.Router) {
		r.Post("/logs", h.handleRecord)
		r.Get("/logs", h.handleListLogs)
		r.Get("/state", h.handleObjectState)
		r.Get("/fields/{fieldName}", h.handleFieldState)
		r.Get("/export", h.handleExport)
	})
	r.Get("/logs/{logID}", h.handleGetEntry)
	return r
}

func objectRefFromRequest(r *http.Request) domain.ObjectRef {
	return domain.ObjectRef{
		ObjectType: chi.URLParam(r, "objectType"),
		ObjectID:   chi.URLParam(r, "objectID"),
	}
}

// timestampParam parses the required "at" query parameter as RFC 3339.
func timestampParam(r *http.Request) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("at"))
	if raw == "" {
		return time.Time{}, fmt.Errorf("query parameter 'at' is required")
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid 'at' timestamp %q: expected RFC 3339", raw)
	}
	return ts, nil
}

func intQueryParam(r *http.Request, name string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeLookupError distinguishes wiring defects and store failures; both are
// server-side errors, but unregistered types are logged loudly because they
// mean the deployment is missing a Register call.
func writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, history.ErrNoLogSource) {
		log.Printf("[API] lookup against unregistered object type: %v", err)
	}
	writeError(w, http.StatusInternalServerError, err)
}
