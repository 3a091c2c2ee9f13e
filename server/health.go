package server

import (
	"context"
	"net/http"
	"time"

	"github.com/worameth/clinicdesk/records"
)

type HealthHandler struct {
	repo records.Repository
}

func NewHealthHandler(repo records.Repository) *HealthHandler {
	return &HealthHandler{repo: repo}
}

type HealthResponse struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	deps := map[string]string{"records": "ok"}
	status := http.StatusOK
	overall := "ok"

	if _, err := h.repo.ListDoctors(ctx); err != nil {
		deps["records"] = err.Error()
		overall = "degraded"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, HealthResponse{Status: overall, Dependencies: deps})
}
