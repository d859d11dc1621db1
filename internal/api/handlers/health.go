package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/mytimetablemaker/transit-sync/internal/config"
	"github.com/mytimetablemaker/transit-sync/internal/db"
)

// RunRepository reads recorded refresh runs
type RunRepository interface {
	LastRun(ctx context.Context, operatorCode string) (*db.RefreshRun, error)
}

// HealthHandler reports database connectivity and per-operator freshness
type HealthHandler struct {
	runs      RunRepository
	operators []config.Operator
}

// NewHealthHandler creates a new handler with the given repository
func NewHealthHandler(runs RunRepository, operators []config.Operator) *HealthHandler {
	return &HealthHandler{runs: runs, operators: operators}
}

// OperatorFreshness is the last refresh outcome of one operator
type OperatorFreshness struct {
	Operator    string     `json:"operator"`
	Source      string     `json:"source"`
	LastRefresh *time.Time `json:"lastRefresh,omitempty"`
	Updated     bool       `json:"updated"`
	Error       string     `json:"error,omitempty"`
}

// HealthResponse is the JSON response for GET /health
type HealthResponse struct {
	Status    string              `json:"status"`
	Database  string              `json:"database"`
	Operators []OperatorFreshness `json:"operators"`
	Timestamp time.Time           `json:"timestamp"`
}

// GetHealth handles GET /health
func (h *HealthHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:    "ok",
		Database:  "connected",
		Operators: make([]OperatorFreshness, 0, len(h.operators)),
		Timestamp: time.Now().UTC(),
	}
	for _, op := range h.operators {
		f := OperatorFreshness{Operator: op.Code, Source: string(op.Source)}
		run, err := h.runs.LastRun(ctx, op.Code)
		if err != nil {
			resp.Status = "error"
			resp.Database = "disconnected"
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		if run != nil {
			f.LastRefresh = run.FinishedAt
			f.Updated = run.Updated
			f.Error = run.Error
		}
		resp.Operators = append(resp.Operators, f)
	}
	writeJSON(w, http.StatusOK, resp)
}
