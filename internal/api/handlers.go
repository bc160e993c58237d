// internal/api/handlers.go
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"property-approvals/internal/approval"
	apperrors "property-approvals/internal/common/errors"
)

type createRequestBody struct {
	Kind     approval.Kind   `json:"kind"`
	TargetID string          `json:"target_id"`
	Notes    *string         `json:"notes,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	caller, err := principalID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var body createRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, apperrors.NewValidationError("request body is not valid JSON"))
		return
	}

	created, err := s.engine.CreateRequest(r.Context(), approval.CreateInput{
		Kind:        body.Kind,
		TargetID:    body.TargetID,
		RequestedBy: caller,
		Notes:       body.Notes,
		Metadata:    body.Metadata,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	req, err := s.engine.GetRequest(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, req)
}

// parseFilter reads the listing filter from the query string.
func parseFilter(r *http.Request) (approval.Filter, error) {
	q := r.URL.Query()
	filter := approval.Filter{
		Status: approval.Status(q.Get("status")),
		Kind:   approval.Kind(q.Get("kind")),
		Search: q.Get("search"),
	}

	for name, dst := range map[string]**time.Time{"from": &filter.CreatedFrom, "to": &filter.CreatedTo} {
		if raw := q.Get(name); raw != "" {
			ts, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return filter, apperrors.NewValidationError(name + " must be an RFC 3339 timestamp")
			}
			*dst = &ts
		}
	}

	for name, dst := range map[string]*int{"page": &filter.Page, "page_size": &filter.PageSize} {
		if raw := q.Get(name); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				return filter, apperrors.NewValidationError(name + " must be a positive integer")
			}
			*dst = n
		}
	}

	return filter, nil
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	page, err := s.engine.ListRequests(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, page)
}

type resolveBody struct {
	Notes *string `json:"notes,omitempty"`
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request, resolution approval.Resolution) {
	caller, err := principalID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var body resolveBody
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.writeError(w, apperrors.NewValidationError("request body is not valid JSON"))
			return
		}
	}

	req, err := s.engine.ResolveRequest(r.Context(), caller, id, resolution, body.Notes)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.resolve(w, r, approval.ResolutionApproved)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	s.resolve(w, r, approval.ResolutionRejected)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	caller, err := principalID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	req, err := s.engine.CancelRequest(r.Context(), caller, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, req)
}

type bulkResolveBody struct {
	IDs        []uuid.UUID         `json:"ids"`
	Resolution approval.Resolution `json:"resolution"`
	Notes      *string             `json:"notes,omitempty"`
}

func (s *Server) handleBulkResolve(w http.ResponseWriter, r *http.Request) {
	caller, err := principalID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var body bulkResolveBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, apperrors.NewValidationError("request body is not valid JSON"))
		return
	}

	result, err := s.engine.BulkResolve(r.Context(), caller, body.IDs, body.Resolution, body.Notes)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var since *time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.writeError(w, apperrors.NewValidationError("since must be an RFC 3339 timestamp"))
			return
		}
		since = &ts
	}

	stats, err := s.engine.GetStats(r.Context(), since)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	format, err := approval.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="approvals.`+string(format)+`"`)

	if err := s.exporter.Export(r.Context(), w, filter, format); err != nil {
		// Headers are already gone; all we can do is log.
		s.logger.WithError(err).Error("export failed mid-stream", nil)
	}
}
