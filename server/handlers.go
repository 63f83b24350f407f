package server

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/onnwee/ytchat-collector/monitor"
)

// StatusSource is the supervisor state the HTTP surface reports.
type StatusSource interface {
	Snapshot() monitor.Snapshot
	Ready() bool
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	status StatusSource
	// db is nil when the Postgres sink is disabled.
	db *sql.DB
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(status StatusSource, db *sql.DB) *Handlers {
	return &Handlers{status: status, db: db}
}

// HandleStatus returns the supervisor snapshot as JSON.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.status == nil {
		http.Error(w, "supervisor not running", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, h.status.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
