// Copyright 2025 Certen Protocol
//
// Health/control HTTP surface, alongside the gRPC surface in
// internal/server/grpcapi. Grounded on pkg/server/proof_handlers.go's
// handler-struct-with-logger construction and writeJSON/writeError shape.

package httpapi

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/certen/ev-prover/internal/server/grpcapi"
)

// Handler serves /health by delegating to the same Status() source the
// gRPC server exposes, so the two surfaces never drift.
type Handler struct {
	status func(r *http.Request) (*grpcapi.StatusResponse, error)
	logger *log.Logger
}

// New wraps srv's Status method for HTTP exposure.
func New(srv grpcapi.Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(log.Writer(), "[HealthAPI] ", log.LstdFlags)
	}
	return &Handler{
		status: func(r *http.Request) (*grpcapi.StatusResponse, error) {
			return srv.Status(r.Context(), &grpcapi.StatusRequest{})
		},
		logger: logger,
	}
}

// HandleHealth handles GET /health.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "only GET is allowed")
		return
	}

	status, err := h.status(r)
	if err != nil {
		h.logger.Printf("health check failed: %v", err)
		h.writeError(w, http.StatusInternalServerError, "STATUS_UNAVAILABLE", err.Error())
		return
	}

	httpStatus := http.StatusOK
	for _, p := range status.Pipelines {
		if !p.Healthy {
			httpStatus = http.StatusServiceUnavailable
			break
		}
	}
	h.writeJSON(w, httpStatus, status)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Printf("error encoding response: %v", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{"code": code, "message": message},
	})
}
