// internal/dispatch/maintenance-approval/handler.go
package maintenanceapproval

import (
	"context"
	"database/sql"
	"fmt"

	"property-approvals/internal/approval"
	"property-approvals/internal/common/logger"
)

// Handler releases an approved maintenance request for scheduling.
// Rejection keeps the work order in its submitted state for the manager
// to amend and resubmit.
type Handler struct {
	db     *sql.DB
	logger logger.Logger
}

func NewHandler(db *sql.DB, log logger.Logger) *Handler {
	return &Handler{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"handler": approval.KindMaintenanceApproval.String()}),
	}
}

func (h *Handler) Kind() approval.Kind {
	return approval.KindMaintenanceApproval
}

func (h *Handler) Apply(ctx context.Context, req *approval.Request, resolution approval.Resolution) error {
	if resolution != approval.ResolutionApproved {
		return nil
	}

	res, err := h.db.ExecContext(ctx, `
		UPDATE maintenance_requests SET status = 'approved', approved_at = now(), updated_at = now()
		WHERE id = $1`,
		req.TargetID)
	if err != nil {
		return fmt.Errorf("approve maintenance request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("maintenance request %s not found", req.TargetID)
	}

	h.logger.Info("maintenance request approved", map[string]interface{}{
		"requestId":     req.ID.String(),
		"maintenanceId": req.TargetID,
	})
	return nil
}
