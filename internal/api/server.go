// internal/api/server.go

// Package api exposes the approval workflow over HTTP. The portal gateway
// terminates authentication and forwards the caller's principal id in the
// X-Principal-ID header; authorization decisions stay in the engine.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"property-approvals/internal/approval"
	apperrors "property-approvals/internal/common/errors"
	"property-approvals/internal/common/logger"
)

const principalHeader = "X-Principal-ID"

// WorkflowEngine is the slice of the engine the API layer needs.
type WorkflowEngine interface {
	CreateRequest(ctx context.Context, input approval.CreateInput) (*approval.Request, error)
	GetRequest(ctx context.Context, id uuid.UUID) (*approval.Request, error)
	ListRequests(ctx context.Context, filter approval.Filter) (*approval.Page, error)
	ResolveRequest(ctx context.Context, callerID string, id uuid.UUID, resolution approval.Resolution, notes *string) (*approval.Request, error)
	CancelRequest(ctx context.Context, callerID string, id uuid.UUID) (*approval.Request, error)
	BulkResolve(ctx context.Context, callerID string, ids []uuid.UUID, resolution approval.Resolution, notes *string) (*approval.BulkResult, error)
	GetStats(ctx context.Context, since *time.Time) (*approval.Stats, error)
}

// RequestExporter streams filtered requests in a given format.
type RequestExporter interface {
	Export(ctx context.Context, w io.Writer, filter approval.Filter, format approval.Format) error
}

// Server holds the HTTP handlers for the approval API.
type Server struct {
	engine   WorkflowEngine
	exporter RequestExporter
	logger   logger.Logger
}

func NewServer(engine WorkflowEngine, exporter RequestExporter, log logger.Logger) *Server {
	return &Server{
		engine:   engine,
		exporter: exporter,
		logger:   log.WithFields(map[string]interface{}{"component": "api"}),
	}
}

// Routes registers the approval endpoints on a fresh mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/approvals", s.handleCreate)
	mux.HandleFunc("GET /api/approvals", s.handleList)
	mux.HandleFunc("GET /api/approvals/stats", s.handleStats)
	mux.HandleFunc("GET /api/approvals/export", s.handleExport)
	mux.HandleFunc("GET /api/approvals/{id}", s.handleGet)
	mux.HandleFunc("POST /api/approvals/{id}/approve", s.handleApprove)
	mux.HandleFunc("POST /api/approvals/{id}/reject", s.handleReject)
	mux.HandleFunc("POST /api/approvals/{id}/cancel", s.handleCancel)
	mux.HandleFunc("POST /api/approvals/bulk", s.handleBulkResolve)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	return mux
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			s.logger.Warn("response write failed", map[string]interface{}{"error": err.Error()})
		}
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).Error("request failed", nil)
	}

	var se *apperrors.StandardError
	if e, ok := err.(*apperrors.StandardError); ok {
		se = e
	} else {
		se = &apperrors.StandardError{
			Code:      "INTERNAL_ERROR",
			Message:   "Internal server error",
			Timestamp: time.Now().UTC(),
		}
	}
	s.writeJSON(w, status, map[string]interface{}{"error": se})
}

func principalID(r *http.Request) (string, error) {
	id := r.Header.Get(principalHeader)
	if id == "" {
		return "", apperrors.NewAuthorizationError("missing " + principalHeader + " header")
	}
	return id, nil
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, apperrors.NewValidationError("id must be a UUID")
	}
	return id, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
